package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/nainya/deltakey/internal/server"
)

func characterArg(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("character must be a number, got %q", s)
	}
	return n, nil
}

func newRankCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rank",
		Short: "Rank characters by how well they separate the remaining items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd, func(ctx context.Context, svc *server.Service) error {
				ranked, err := svc.Rank(ctx, "")
				if err != nil {
					return err
				}
				if a.jsonOut {
					return writeJSON(cmd.OutOrStdout(), ranked)
				}
				return renderCharacters(cmd.OutOrStdout(), ranked)
			})
		},
	}
}

func newProposeCmd(a *app) *cobra.Command {
	var exclude []int
	cmd := &cobra.Command{
		Use:   "propose",
		Short: "Show the best next character and its values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd, func(ctx context.Context, svc *server.Service) error {
				p, err := svc.Propose(ctx, "", exclude)
				if err != nil {
					return err
				}
				if a.jsonOut {
					return writeJSON(cmd.OutOrStdout(), p)
				}
				return renderProposal(cmd.OutOrStdout(), p)
			})
		},
	}
	cmd.Flags().IntSliceVar(&exclude, "exclude", nil, "Characters to skip for this proposal")
	return cmd
}

func newAddFilterCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "add-filter <character> <value>",
		Short: "Keep only items matching a value for a character",
		Long: `Append a filter to the session. The value is read according to the
character's type: state numbers for multistate characters (2, 1&3),
numbers or ranges for numeric ones (4, 3-5), free text otherwise.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := characterArg(args[0])
			if err != nil {
				return err
			}
			return a.withService(cmd, func(ctx context.Context, svc *server.Service) error {
				state, err := svc.AddFilter(ctx, "", n, args[1])
				if err != nil {
					return err
				}
				if a.jsonOut {
					return writeJSON(cmd.OutOrStdout(), state)
				}
				return renderState(cmd.OutOrStdout(), state)
			})
		},
	}
}

func newExcludeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "exclude <character>",
		Short: "Never propose a character in this session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := characterArg(args[0])
			if err != nil {
				return err
			}
			return a.withService(cmd, func(ctx context.Context, svc *server.Service) error {
				state, err := svc.Exclude(ctx, "", n)
				if err != nil {
					return err
				}
				if a.jsonOut {
					return writeJSON(cmd.OutOrStdout(), state)
				}
				return renderState(cmd.OutOrStdout(), state)
			})
		},
	}
}

// stateCommand builds a command that runs a session operation and prints
// the resulting state
func stateCommand(a *app, use, short string, op func(*server.Service, context.Context, string) (*server.StateView, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd, func(ctx context.Context, svc *server.Service) error {
				state, err := op(svc, ctx, "")
				if err != nil {
					return err
				}
				if a.jsonOut {
					return writeJSON(cmd.OutOrStdout(), state)
				}
				return renderState(cmd.OutOrStdout(), state)
			})
		},
	}
}

func newStateCmd(a *app) *cobra.Command {
	return stateCommand(a, "state", "Show the session's filters and remaining items", (*server.Service).State)
}

func newResetCmd(a *app) *cobra.Command {
	return stateCommand(a, "reset", "Clear all filters and exclusions", (*server.Service).Reset)
}

func newUndoCmd(a *app) *cobra.Command {
	return stateCommand(a, "undo", "Remove the most recent filter", (*server.Service).Undo)
}

func newValuesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "values <character>",
		Short: "Show a character's values over the remaining items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := characterArg(args[0])
			if err != nil {
				return err
			}
			return a.withService(cmd, func(ctx context.Context, svc *server.Service) error {
				values, err := svc.Values(ctx, "", n)
				if err != nil {
					return err
				}
				if a.jsonOut {
					return writeJSON(cmd.OutOrStdout(), values)
				}
				return renderValues(cmd.OutOrStdout(), values)
			})
		},
	}
}

func newSessionsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List stored sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd, func(ctx context.Context, svc *server.Service) error {
				list, err := svc.ListSessions(ctx)
				if err != nil {
					return err
				}
				if a.jsonOut {
					return writeJSON(cmd.OutOrStdout(), list)
				}
				data := pterm.TableData{{"Session", "Filters", "Updated"}}
				for _, s := range list {
					data = append(data, []string{s.ID, strconv.Itoa(s.Selections), s.UpdatedAt.Format("2006-01-02 15:04:05")})
				}
				return renderTable(cmd.OutOrStdout(), data)
			})
		},
	}
}
