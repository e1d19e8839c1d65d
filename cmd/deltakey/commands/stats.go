package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/nainya/deltakey/internal/server"
)

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show database statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd, func(ctx context.Context, svc *server.Service) error {
				stats, err := svc.Stats(ctx)
				if err != nil {
					return err
				}
				if a.jsonOut {
					return writeJSON(cmd.OutOrStdout(), stats)
				}
				return renderStats(cmd.OutOrStdout(), stats)
			})
		},
	}
}
