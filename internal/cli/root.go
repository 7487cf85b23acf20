// Package cli implements the journalimport command line tool.
package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/tradejournal/internal/bootstrap"
	"github.com/JonMunkholm/tradejournal/internal/config"
	"github.com/JonMunkholm/tradejournal/internal/core"
	"github.com/JonMunkholm/tradejournal/internal/logging"
)

// Version is set at build time with -ldflags "-X ...cli.Version=v1.2.3".
var Version = "dev"

// rootOptions holds the persistent flags and the configuration they produce.
type rootOptions struct {
	envFile   string
	dbDriver  string
	dbURL     string
	logLevel  string
	logFormat string

	cfg *config.Config
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	ro := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "journalimport",
		Short:         "Import trading journal snapshots",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&ro.envFile, "env-file", ".env", "Environment file to load before reading configuration")
	pf.StringVar(&ro.dbDriver, "db-driver", "", "Database driver: sqlite|pgx (overrides DB_DRIVER)")
	pf.StringVar(&ro.dbURL, "db", "", "Database URL or SQLite path (overrides DATABASE_URL)")
	pf.StringVar(&ro.logLevel, "log-level", "", "Log level: debug|info|warn|error (overrides LOG_LEVEL)")
	pf.StringVar(&ro.logFormat, "log-format", "", "Log format: text|json (overrides LOG_FORMAT)")

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return ro.load(cmd.ErrOrStderr())
	}

	cmd.AddCommand(
		newMigrateCmd(ro),
		newOwnerCmd(ro),
		newImportCmd(ro),
		newPreviewCmd(ro),
		newRunsCmd(ro),
	)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "journalimport %s\n", Version)
		},
	})

	return cmd
}

// Execute runs the root command and exits non-zero on error.
// SIGINT and SIGTERM cancel the command's context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

// load reads .env and the environment, applies flag overrides and sets up
// logging on w.
func (ro *rootOptions) load(w io.Writer) error {
	config.LoadDotEnv(ro.envFile)

	if ro.dbDriver != "" {
		os.Setenv("DB_DRIVER", ro.dbDriver)
	}
	if ro.dbURL != "" {
		os.Setenv("DATABASE_URL", ro.dbURL)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if ro.logLevel != "" {
		cfg.Logging.Level = ro.logLevel
	}
	if ro.logFormat != "" {
		cfg.Logging.Format = ro.logFormat
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format, w)
	ro.cfg = cfg
	return nil
}

// openDB opens the configured database without migrating it.
func (ro *rootOptions) openDB(ctx context.Context) (*sql.DB, error) {
	return bootstrap.OpenDB(ctx, ro.cfg, false)
}

// openService opens the database and builds the import service. The
// caller closes the returned database.
func (ro *rootOptions) openService(ctx context.Context) (*core.Service, *sql.DB, error) {
	db, err := ro.openDB(ctx)
	if err != nil {
		return nil, nil, err
	}
	svc, err := bootstrap.NewService(db, ro.cfg)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return svc, db, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
