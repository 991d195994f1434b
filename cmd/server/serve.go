package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/millops/api"
	"github.com/warp/millops/dispatch"
	"github.com/warp/millops/store"
)

func newServeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Runs the HTTP API until SIGINT or SIGTERM.

On shutdown the server stops accepting connections, waits up to
shutdown-timeout for requests in flight, stops the sync scheduler and
closes the database.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
}

// newReconciler builds the reconciler the configuration describes.
func (a *app) newReconciler(s store.Store, reg prometheus.Registerer) *dispatch.Reconciler {
	rec := dispatch.NewReconciler(s, a.logger.Named("sync"))
	rec.BatchSize = a.cfg.SyncBatchSize
	rec.Policy = a.cfg.FailurePolicy()
	rec.Metrics = dispatch.NewMetrics(reg)
	return rec
}

func (a *app) serve(ctx context.Context) error {
	st, closeStore, err := a.openStore(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	rec := a.newReconciler(st, reg)
	handler := api.NewHandler(st, rec, a.logger.Named("api"))
	router := api.NewRouter(handler, api.RouterOptions{
		CORSOrigins:  a.cfg.CORSOrigins,
		MaxBodyBytes: a.cfg.MaxBodyBytes,
		Registry:     reg,
	})

	scheduler := api.NewMasterSyncScheduler(rec, a.logger, a.cfg.SyncInterval)
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		a.logger.Info("server starting",
			zap.Int("port", a.cfg.Port),
			zap.String("api", fmt.Sprintf("http://localhost:%d/api", a.cfg.Port)))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		a.logger.Info("shutting down server", zap.String("signal", sig.String()))
	case err, ok := <-errc:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	a.logger.Info("server stopped")
	return nil
}
