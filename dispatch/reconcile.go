/*
reconcile.go - Master-data reconciliation

PURPOSE:
  Copies the curated values of the three master tables onto dispatch_data by
  equality on their natural key:

    count_master     item_description -> smpl_count, blend
    market_master    ship_to_city     -> market
    customer_master  bill_to_customer -> customer_name

  Dispatch rows without a matching master row are left alone.

FLOW:
  1. Fetch the three reference sets concurrently. Any failure ends the run
     with an error event before a single update is issued.
  2. Emit start{total}, total being the sum of the three set sizes.
  3. Process the stages in order (count, market, customer). Each stage is cut
     into batches of BatchSize; the updates of one batch run concurrently and
     the next batch starts only once all of them returned. One progress event
     follows every batch, counting across stages.
  4. Emit complete, or error if the run was aborted.

FAILURE POLICY:
  abort: the first failed update cancels the rest of its batch and ends the
         run with an error event. Earlier batches stay applied.
  skip:  failed keys are collected, the run continues, and complete carries
         status "partial_failure" with the failed keys.

  Updates are keyed by natural key, so re-running after a failure is safe.

SEE ALSO:
  - api/sync.go: NDJSON streaming endpoint
  - api/scheduler.go: Periodic runs
*/
package dispatch

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/warp/millops/store"
)

// DefaultBatchSize bounds the number of concurrent updates per batch.
const DefaultBatchSize = 15

// CompleteMessage is the message of a successful complete event.
const CompleteMessage = "Dispatch master data updated successfully"

// =============================================================================
// STAGES
// =============================================================================

// Stage maps one master table onto the target table.
type Stage struct {
	Name    string
	Source  string
	Match   string
	Set     []string
	Filters []store.Filter
}

// Query returns the reference-set query of the stage.
func (s Stage) Query() store.Query {
	return store.Query{
		Table:   s.Source,
		Columns: append([]string{s.Match}, s.Set...),
		Filters: s.Filters,
		OrderBy: []store.Order{store.Asc("id")},
	}
}

var (
	// CountStage copies smpl_count and blend by item_description. Rows where
	// both are empty carry nothing to copy.
	CountStage = Stage{
		Name:    "count",
		Source:  store.TableCountMaster,
		Match:   "item_description",
		Set:     []string{"smpl_count", "blend"},
		Filters: []store.Filter{store.Or(store.Neq("smpl_count", ""), store.Neq("blend", ""))},
	}

	// MarketStage copies market by ship_to_city.
	MarketStage = Stage{
		Name:    "market",
		Source:  store.TableMarketMaster,
		Match:   "ship_to_city",
		Set:     []string{"market"},
		Filters: store.Present("market"),
	}

	// CustomerStage copies customer_name by bill_to_customer.
	CustomerStage = Stage{
		Name:    "customer",
		Source:  store.TableCustomerMaster,
		Match:   "bill_to_customer",
		Set:     []string{"customer_name"},
		Filters: store.Present("customer_name"),
	}
)

// MasterStages returns the stages of a full run, in order.
func MasterStages() []Stage {
	return []Stage{CountStage, MarketStage, CustomerStage}
}

// =============================================================================
// POLICY AND OUTCOME
// =============================================================================

// FailurePolicy decides what a failed row update does to the run.
type FailurePolicy string

const (
	PolicyAbort FailurePolicy = "abort"
	PolicySkip  FailurePolicy = "skip"
)

// ParseFailurePolicy validates a configured policy. Empty means abort.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyAbort:
		return PolicyAbort, nil
	case PolicySkip:
		return PolicySkip, nil
	}
	return "", fmt.Errorf("unknown sync failure policy %q (want abort or skip)", s)
}

// Status is the final state of a run.
type Status string

const (
	StatusOK             Status = "ok"
	StatusPartialFailure Status = "partial_failure"
	StatusAborted        Status = "aborted"
)

// Failure is one row update that did not apply.
type Failure struct {
	Stage string `json:"stage"`
	Key   string `json:"key"`
	Error string `json:"error"`
}

// Outcome summarises a run.
type Outcome struct {
	RunID     string
	Status    Status
	Total     int
	Completed int
	Failed    []Failure
	Err       error
}

// FailedKeys returns the natural keys that did not apply.
func (o Outcome) FailedKeys() []string {
	keys := make([]string, len(o.Failed))
	for i, f := range o.Failed {
		keys[i] = f.Key
	}
	return keys
}

// =============================================================================
// RECONCILER
// =============================================================================

// Reconciler runs master-data syncs against a store.
type Reconciler struct {
	Store     store.Store
	Target    string
	Stages    []Stage
	BatchSize int
	Policy    FailurePolicy
	Logger    *zap.Logger
	Metrics   *Metrics
}

// NewReconciler creates a reconciler with the default target, stages, batch
// size and abort policy.
func NewReconciler(s store.Store, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		Store:     s,
		Target:    store.TableDispatchData,
		Stages:    MasterStages(),
		BatchSize: DefaultBatchSize,
		Policy:    PolicyAbort,
		Logger:    logger,
	}
}

// Run performs a full sync over every stage, reporting through emit.
func (r *Reconciler) Run(ctx context.Context, emit func(Event)) Outcome {
	emit = orDiscard(emit)
	runID := uuid.NewString()
	log := r.logger().With(zap.String("run_id", runID))
	started := time.Now()

	sets, err := r.fetch(ctx)
	if err != nil {
		log.Error("sync aborted: failed to fetch master data", zap.Error(err))
		emit(errorEvent(runID, err, 0, 0))
		out := Outcome{RunID: runID, Status: StatusAborted, Err: err}
		r.Metrics.run(out.Status, time.Since(started))
		return out
	}

	out := r.run(ctx, runID, r.stages(), sets, emit)
	r.Metrics.run(out.Status, time.Since(started))
	return out
}

// Reconcile syncs a single stage from rows already in hand.
func (r *Reconciler) Reconcile(ctx context.Context, stage Stage, rows []store.Row, emit func(Event)) Outcome {
	emit = orDiscard(emit)
	return r.run(ctx, uuid.NewString(), []Stage{stage}, [][]store.Row{rows}, emit)
}

// fetch loads every reference set concurrently.
func (r *Reconciler) fetch(ctx context.Context) ([][]store.Row, error) {
	stages := r.stages()
	sets := make([][]store.Row, len(stages))

	g, gctx := errgroup.WithContext(ctx)
	for i, st := range stages {
		g.Go(func() error {
			rows, err := r.Store.Fetch(gctx, st.Query())
			if err != nil {
				return fmt.Errorf("failed to fetch %s: %w", st.Source, err)
			}
			sets[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sets, nil
}

func (r *Reconciler) run(ctx context.Context, runID string, stages []Stage, sets [][]store.Row, emit func(Event)) Outcome {
	log := r.logger().With(zap.String("run_id", runID))

	out := Outcome{RunID: runID, Status: StatusOK}
	for _, rows := range sets {
		out.Total += len(rows)
	}

	log.Info("sync started", zap.Int("total", out.Total), zap.String("policy", string(r.policy())))
	emit(Event{Type: EventStart, RunID: runID, Total: out.Total})

	size := r.batchSize()
	for i, st := range stages {
		rows := sets[i]
		for lo := 0; lo < len(rows); lo += size {
			if err := ctx.Err(); err != nil {
				return r.abort(log, out, err, emit)
			}

			hi := min(lo+size, len(rows))
			failed, err := r.batch(ctx, log, st, rows[lo:hi])
			if err != nil {
				return r.abort(log, out, err, emit)
			}

			out.Completed += hi - lo
			out.Failed = append(out.Failed, failed...)
			emit(Event{
				Type:      EventProgress,
				Stage:     st.Name,
				Completed: out.Completed,
				Total:     out.Total,
				Percent:   percent(out.Completed, out.Total),
			})
		}
		log.Debug("sync stage finished", zap.String("stage", st.Name), zap.Int("rows", len(rows)))
	}

	if len(out.Failed) > 0 {
		out.Status = StatusPartialFailure
	}
	log.Info("sync finished",
		zap.String("status", string(out.Status)),
		zap.Int("completed", out.Completed),
		zap.Int("failed", len(out.Failed)))

	emit(Event{
		Type:      EventComplete,
		Message:   CompleteMessage,
		Status:    out.Status,
		Completed: out.Completed,
		Total:     out.Total,
		Failed:    out.Failed,
	})
	return out
}

// batch applies one wave of updates and waits for all of them.
func (r *Reconciler) batch(ctx context.Context, log *zap.Logger, st Stage, rows []store.Row) ([]Failure, error) {
	errs := make([]error, len(rows))

	var g *errgroup.Group
	gctx := ctx
	if r.policy() == PolicyAbort {
		g, gctx = errgroup.WithContext(ctx)
	} else {
		g = new(errgroup.Group)
	}

	for i, row := range rows {
		g.Go(func() error {
			errs[i] = r.apply(gctx, st, row)
			if r.policy() == PolicyAbort {
				return errs[i]
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var failed []Failure
	for i, err := range errs {
		if err == nil {
			continue
		}
		key := store.Text(rows[i][st.Match])
		log.Warn("sync row update failed",
			zap.String("stage", st.Name),
			zap.String("key", key),
			zap.Error(err))
		failed = append(failed, Failure{Stage: st.Name, Key: key, Error: err.Error()})
	}
	return failed, nil
}

// apply propagates one reference row. A blank natural key matches nothing
// useful and issues no update.
func (r *Reconciler) apply(ctx context.Context, st Stage, row store.Row) error {
	key := store.Text(row[st.Match])
	if strings.TrimSpace(key) == "" {
		r.Metrics.row(st.Name, resultSkipped)
		return nil
	}

	set := make(store.Row, len(st.Set))
	for _, col := range st.Set {
		set[col] = row[col]
	}
	if _, err := r.Store.Update(ctx, r.target(), set, store.Eq(st.Match, key)); err != nil {
		r.Metrics.row(st.Name, resultFailed)
		return fmt.Errorf("%s %q: %w", st.Match, key, err)
	}
	r.Metrics.row(st.Name, resultOK)
	return nil
}

func (r *Reconciler) abort(log *zap.Logger, out Outcome, err error, emit func(Event)) Outcome {
	out.Status = StatusAborted
	out.Err = err
	log.Error("sync aborted",
		zap.Int("completed", out.Completed),
		zap.Int("total", out.Total),
		zap.Error(err))
	emit(errorEvent(out.RunID, err, out.Completed, out.Total))
	return out
}

func (r *Reconciler) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

func (r *Reconciler) stages() []Stage {
	if len(r.Stages) == 0 {
		return MasterStages()
	}
	return r.Stages
}

func (r *Reconciler) target() string {
	if r.Target == "" {
		return store.TableDispatchData
	}
	return r.Target
}

func (r *Reconciler) batchSize() int {
	if r.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return r.BatchSize
}

func (r *Reconciler) policy() FailurePolicy {
	if r.Policy == "" {
		return PolicyAbort
	}
	return r.Policy
}

func percent(completed, total int) int {
	if total == 0 {
		return 100
	}
	return int(math.Round(float64(completed) / float64(total) * 100))
}
