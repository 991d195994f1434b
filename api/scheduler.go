/*
scheduler.go - Periodic master-data sync

PURPOSE:
  Runs the master-data reconciler on a fixed interval so dispatch rows pick
  up curated master values without anyone pressing the sync button.

DESIGN:
  - One background goroutine driven by a ticker
  - Runs never overlap: a tick that arrives while a run is in progress
    is dropped by the ticker itself
  - Stop cancels the context of a run in progress; the reconciler stops
    before its next batch

CONFIGURATION:
  - Interval: Time between runs (sync-interval, 0 disables the scheduler)
  - RunOnStart: Run once immediately (default: true)

USAGE:
  scheduler := NewMasterSyncScheduler(reconciler, logger, time.Hour)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - sync.go: Manual sync endpoint
  - dispatch/reconcile.go: Reconciler
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/millops/dispatch"
)

// MasterSyncScheduler runs master-data syncs periodically.
type MasterSyncScheduler struct {
	Reconciler *dispatch.Reconciler
	Logger     *zap.Logger
	Interval   time.Duration
	RunOnStart bool

	ticker *time.Ticker
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewMasterSyncScheduler creates a new scheduler.
func NewMasterSyncScheduler(rec *dispatch.Reconciler, logger *zap.Logger, interval time.Duration) *MasterSyncScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MasterSyncScheduler{
		Reconciler: rec,
		Logger:     logger.Named("scheduler"),
		Interval:   interval,
		RunOnStart: true,
	}
}

// Start begins the scheduler. It is a no-op when the interval is not
// positive or the scheduler is already running.
func (s *MasterSyncScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Interval <= 0 {
		s.Logger.Info("master sync scheduler disabled")
		return
	}
	if s.ticker != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.ticker = time.NewTicker(s.Interval)
	s.wg.Add(1)

	go s.run(ctx, s.ticker)

	s.Logger.Info("master sync scheduler started", zap.Duration("interval", s.Interval))
}

// Stop stops the scheduler and waits for a run in progress to return.
func (s *MasterSyncScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	s.cancel()
	s.wg.Wait()
	s.ticker = nil
	s.Logger.Info("master sync scheduler stopped")
}

func (s *MasterSyncScheduler) run(ctx context.Context, ticker *time.Ticker) {
	defer s.wg.Done()

	if s.RunOnStart {
		s.sync(ctx)
	}

	for {
		select {
		case <-ticker.C:
			s.sync(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *MasterSyncScheduler) sync(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	out := s.Reconciler.Run(ctx, nil)

	fields := []zap.Field{
		zap.String("run_id", out.RunID),
		zap.String("status", string(out.Status)),
		zap.Int("completed", out.Completed),
		zap.Int("total", out.Total),
	}
	switch out.Status {
	case dispatch.StatusOK:
		s.Logger.Info("scheduled master sync completed", fields...)
	case dispatch.StatusPartialFailure:
		s.Logger.Warn("scheduled master sync completed with failures",
			append(fields, zap.Strings("failed_keys", out.FailedKeys()))...)
	default:
		s.Logger.Error("scheduled master sync aborted", append(fields, zap.Error(out.Err))...)
	}
}
