/*
main.go - Application entry point

PURPOSE:
  Command-line entry for the dispatch backend. One binary, three commands:

    serve         (default) HTTP API, optional scheduled master sync
    sync-masters  One master-data sync, progress as NDJSON on stdout
    migrate       Create missing tables and indexes, then exit

STARTUP SEQUENCE:
  1. Parse flags, read MILLOPS_* environment and the --config file
  2. Build the zap logger
  3. Open the store (SQLite or Postgres)
  4. Run the command

EXAMPLES:
  # Run with a file database
  ./server --db-path=./data/millops.db

  # Run against Postgres, creating tables on first start
  MILLOPS_DB_DRIVER=postgres MILLOPS_DATABASE_URL=postgres://... ./server --migrate

  # Sync master data from cron, skipping rows that fail
  ./server sync-masters --sync-failure-policy=skip

SEE ALSO:
  - config/config.go: Every setting and its default
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/warp/millops/config"
	"github.com/warp/millops/logging"
	"github.com/warp/millops/store"
	"github.com/warp/millops/store/postgres"
	"github.com/warp/millops/store/sqlite"
)

// app is the state shared by every command once PersistentPreRunE ran.
type app struct {
	cfg        config.Config
	configFile string
	logger     *zap.Logger
	stdout     io.Writer
}

func main() {
	if err := newRootCommand(os.Stdout, os.Stderr).ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	a := &app{cfg: config.Default(), stdout: stdout}

	rc := &cobra.Command{
		Use:   "server",
		Short: "Dispatch statistics and master-data backend for the mill dashboard",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Load(viper.New(), cmd.Flags(), a.configFile); err != nil {
				return err
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			logger, err := logging.New(a.cfg.LogLevel, a.cfg.LogFormat)
			if err != nil {
				return err
			}
			a.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
		SilenceUsage: true,
	}
	rc.PersistentFlags().StringVarP(&a.configFile, "config", "c", "", "YAML configuration file")
	a.cfg.RegisterFlags(rc.PersistentFlags())

	rc.AddCommand(newServeCommand(a))
	rc.AddCommand(newSyncCommand(a))
	rc.AddCommand(newMigrateCommand(a))

	rc.SetOut(stdout)
	rc.SetErr(stderr)
	return rc
}

// openStore opens the configured database.
func (a *app) openStore(ctx context.Context) (store.Store, func() error, error) {
	switch a.cfg.DBDriver {
	case config.DriverPostgres:
		opts := postgres.DefaultOptions()
		opts.Migrate = a.cfg.Migrate
		if n := a.cfg.SyncBatchSize + 5; n > opts.MaxOpenConns {
			opts.MaxOpenConns = n
		}
		s, err := postgres.New(ctx, a.cfg.DatabaseURL, opts)
		if err != nil {
			return nil, nil, err
		}
		a.logger.Info("connected to postgres", zap.Bool("migrate", opts.Migrate))
		return s, s.Close, nil
	case config.DriverSQLite:
		s, err := sqlite.New(a.cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		a.logger.Info("opened sqlite database", zap.String("path", a.cfg.DBPath))
		return s, s.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown db-driver %q", a.cfg.DBDriver)
}
