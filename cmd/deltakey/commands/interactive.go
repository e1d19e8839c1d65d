package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/nainya/deltakey/internal/console"
	"github.com/nainya/deltakey/internal/server"
)

func newInteractiveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "interactive",
		Aliases: []string{"i"},
		Short:   "Identify an item step by step in the terminal",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd, func(ctx context.Context, svc *server.Service) error {
				c := console.New(svc, svc.DefaultSession(), cmd.InOrStdin(), cmd.OutOrStdout())
				return c.Run(ctx)
			})
		},
	}
}
