package commands

import (
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/nainya/deltakey/pkg/parser"
)

func newIngestCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <dir>",
		Short: "Load a DELTA dataset into the database",
		Long: `Parse the chars, specs and items files in <dir> and replace the stored
matrix with the result. Sessions are kept; their filters are evaluated
against the new matrix.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			m, err := parser.ParseDir(args[0], parser.WithLogger(a.log.Zerolog()))
			if err != nil {
				return fmt.Errorf("failed to parse %s: %w", args[0], err)
			}

			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.SaveMatrix(cmd.Context(), m); err != nil {
				return fmt.Errorf("failed to save matrix: %w", err)
			}
			a.log.DbLogger("save_matrix").LogDbOperation(time.Since(start), len(m.Items()), nil)

			if a.jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
					"database":   store.Path(),
					"characters": len(m.Characters()),
					"items":      len(m.Items()),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), pterm.Success.Sprintf("Ingested %d characters and %d items into %s",
				len(m.Characters()), len(m.Items()), store.Path()))
			return nil
		},
	}
}
