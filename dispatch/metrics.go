package dispatch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	MetricSyncRuns       = "sync_runs_total"
	MetricSyncRowUpdates = "sync_row_updates_total"
	MetricSyncDuration   = "sync_duration_seconds"

	metricsNamespace = "millops"
)

// Row update results.
const (
	resultOK      = "ok"
	resultFailed  = "failed"
	resultSkipped = "skipped"
)

// Metrics records master-data sync activity. A nil *Metrics records nothing.
type Metrics struct {
	Runs       *prometheus.CounterVec
	RowUpdates *prometheus.CounterVec
	Duration   prometheus.Histogram
}

// NewMetrics creates the sync collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      MetricSyncRuns,
				Help:      "Master-data sync runs by outcome.",
			},
			[]string{"status"},
		),
		RowUpdates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      MetricSyncRowUpdates,
				Help:      "Per-key dispatch updates issued by the sync, by stage and result.",
			},
			[]string{"stage", "result"},
		),
		Duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      MetricSyncDuration,
				Help:      "Wall time of master-data sync runs.",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.Runs, m.RowUpdates, m.Duration)
	}
	return m
}

func (m *Metrics) run(status Status, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(string(status)).Inc()
	m.Duration.Observe(elapsed.Seconds())
}

func (m *Metrics) row(stage, result string) {
	if m == nil {
		return
	}
	m.RowUpdates.WithLabelValues(stage, result).Inc()
}
