package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nainya/deltakey/internal/server"
)

func newKeyCmd(a *app) *cobra.Command {
	var (
		format   string
		maxSteps int
		apply    bool
	)
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Generate a greedy identification key",
		Long: `Build a key from the full item set, following the most common value at
each step. With --apply the session is reset and the key replayed into it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.jsonOut {
				format = "json"
			}
			switch format {
			case "text", "json", "yaml":
			default:
				return fmt.Errorf("unknown format %q (want text, json or yaml)", format)
			}

			return a.withService(cmd, func(ctx context.Context, svc *server.Service) error {
				var out interface{}
				var steps []server.StepView
				if apply {
					key, err := svc.AutoKey(ctx, "", maxSteps)
					if err != nil {
						return err
					}
					out, steps = key, key.Steps
				} else {
					built, err := svc.Key(ctx, maxSteps)
					if err != nil {
						return err
					}
					out, steps = map[string]interface{}{"steps": built}, built
				}

				w := cmd.OutOrStdout()
				switch format {
				case "json":
					return writeJSON(w, out)
				case "yaml":
					enc := yaml.NewEncoder(w)
					enc.SetIndent(2)
					if err := enc.Encode(out); err != nil {
						return err
					}
					return enc.Close()
				}
				return renderKey(w, steps)
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "Output format (text, json, yaml)")
	cmd.Flags().IntVar(&maxSteps, "max-steps", 0, "Maximum key steps (default key.max_steps)")
	cmd.Flags().BoolVar(&apply, "apply", false, "Reset the session and replay the key into it")
	return cmd
}
