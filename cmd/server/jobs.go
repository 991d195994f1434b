package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/millops/dispatch"
)

// =============================================================================
// SYNC-MASTERS
// =============================================================================

func newSyncCommand(a *app) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "sync-masters",
		Short: "Propagate master data onto dispatch rows once",
		Long: `Runs one master-data sync and prints its events as newline-delimited
JSON on stdout, the same stream POST /api/sync-master-data returns.

With --refresh, the four masters first collect any new natural keys from
dispatch data. Exits non-zero when the run aborts.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, closeStore, err := a.openStore(ctx)
			if err != nil {
				return fmt.Errorf("failed to initialize database: %w", err)
			}
			defer closeStore()

			if refresh {
				for _, m := range []dispatch.Master{
					dispatch.YarnCountMaster,
					dispatch.FabricCountMaster,
					dispatch.MarketMaster,
					dispatch.CustomerMaster,
				} {
					n, err := m.Refresh(ctx, st)
					if err != nil {
						return err
					}
					a.logger.Info("master refreshed", zap.String("master", m.Name), zap.Int("keys", n))
				}
			}

			enc := json.NewEncoder(a.stdout)
			gone := false
			rec := a.newReconciler(st, nil)
			out := rec.Run(ctx, func(e dispatch.Event) {
				if gone {
					return
				}
				if err := enc.Encode(e); err != nil {
					gone = true
					a.logger.Warn("cannot write sync events, continuing without output", zap.Error(err))
				}
			})
			if out.Status == dispatch.StatusAborted {
				return fmt.Errorf("sync %s aborted: %w", out.RunID, out.Err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "refresh the masters from dispatch data before syncing")
	return cmd
}

// =============================================================================
// MIGRATE
// =============================================================================

func newMigrateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create missing tables and indexes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a.cfg.Migrate = true
			// Both stores create missing tables on open once Migrate is set.
			_, closeStore, err := a.openStore(ctx)
			if err != nil {
				return fmt.Errorf("failed to migrate database: %w", err)
			}
			defer closeStore()

			a.logger.Info("database migrated", zap.String("driver", a.cfg.DBDriver))
			return nil
		},
	}
}
