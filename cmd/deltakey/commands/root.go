// Package commands implements the deltakey command-line interface
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nainya/deltakey/internal/config"
	"github.com/nainya/deltakey/internal/logger"
	"github.com/nainya/deltakey/internal/metrics"
	"github.com/nainya/deltakey/internal/server"
	"github.com/nainya/deltakey/pkg/storage"
)

// Version is the CLI version reported by --version
var Version = "0.1.0"

// app carries configuration shared by every subcommand
type app struct {
	v          *viper.Viper
	configFile string
	jsonOut    bool

	cfg *config.Config
	log *logger.Logger
}

// NewRootCmd builds the command tree with fresh flag state
func NewRootCmd() *cobra.Command {
	a := &app{v: config.New()}

	root := &cobra.Command{
		Use:   "deltakey",
		Short: "Progressive identification over DELTA character matrices",
		Long: `deltakey loads a DELTA dataset (chars, specs, items) into SQLite and
narrows it down to a single item by proposing the most discriminating
character at each step.

Examples:
  deltakey ingest ./beetles         # Parse chars/specs/items into delta.db
  deltakey propose                  # Best next character for the session
  deltakey add-filter 3 2           # Keep items with state 2 of character 3
  deltakey key --format yaml        # Generate a greedy key
  deltakey interactive              # Guided identification in the terminal
  deltakey serve                    # gRPC, HTTP and metrics servers`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initialize(cmd.ErrOrStderr())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "Configuration file path (default ./deltakey.yaml if present)")
	pf.String("db", "", "SQLite database path (default delta.db)")
	pf.String("session", "", "Session id (default \"default\")")
	pf.String("log-level", "", "Logging level (debug, info, warn, error)")
	pf.BoolVar(&a.jsonOut, "json", false, "Print JSON instead of tables")

	_ = a.v.BindPFlag("database.path", pf.Lookup("db"))
	_ = a.v.BindPFlag("session.default_id", pf.Lookup("session"))
	_ = a.v.BindPFlag("log.level", pf.Lookup("log-level"))

	root.AddCommand(
		newIngestCmd(a),
		newRankCmd(a),
		newProposeCmd(a),
		newAddFilterCmd(a),
		newExcludeCmd(a),
		newStateCmd(a),
		newResetCmd(a),
		newUndoCmd(a),
		newValuesCmd(a),
		newSessionsCmd(a),
		newKeyCmd(a),
		newInteractiveCmd(a),
		newStatsCmd(a),
		newServeCmd(a),
	)
	return root
}

// Execute runs the CLI and reports errors on stderr
func Execute() int {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func (a *app) initialize(stderr io.Writer) error {
	cfg, err := config.Load(a.v, a.configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	a.cfg = cfg
	a.log = logger.NewLogger(logger.Config{
		Level:  cfg.Log.Level,
		Pretty: cfg.Log.Pretty,
		Output: stderr,
	})
	return nil
}

func (a *app) openStore(ctx context.Context) (*storage.Store, error) {
	store, err := storage.Open(ctx, a.cfg.Database.Path, storage.WithLogger(a.log.Zerolog()))
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", a.cfg.Database.Path, err)
	}
	return store, nil
}

// openService opens the database and loads the matrix. The caller closes
// the returned store.
func (a *app) openService(ctx context.Context, m *metrics.Metrics) (*server.Service, *storage.Store, error) {
	store, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	opts := []server.ServiceOption{
		server.WithLogger(a.log),
		server.WithDefaultSession(a.cfg.Session.DefaultID),
		server.WithMaxSteps(a.cfg.Key.MaxSteps),
	}
	if m != nil {
		opts = append(opts, server.WithMetrics(m))
	}
	svc, err := server.NewService(ctx, store, opts...)
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("%w (run 'deltakey ingest <dir>' first)", err)
	}
	return svc, store, nil
}

// withService runs fn against a service over the configured database
func (a *app) withService(cmd *cobra.Command, fn func(ctx context.Context, svc *server.Service) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	svc, store, err := a.openService(ctx, nil)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(ctx, svc)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
