package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Tracer returns the tracer used for reconciliation spans.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// SyncMetrics exposes reconciliation activity to Prometheus.
// All methods are safe on a nil receiver.
type SyncMetrics struct {
	runs          *prometheus.CounterVec
	runDuration   prometheus.Histogram
	conflicts     prometheus.Counter
	merged        prometheus.Counter
	fetchAttempts prometheus.Counter
	storedQuotes  prometheus.Gauge
}

// NewSyncMetrics registers the sync collectors with reg.
// A nil reg creates unregistered collectors, which is what tests want.
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	factory := promauto.With(reg)

	return &SyncMetrics{
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quotesync",
			Name:      "sync_runs_total",
			Help:      "Reconciliation runs by outcome.",
		}, []string{"outcome"}),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "quotesync",
			Name:      "sync_run_duration_seconds",
			Help:      "Time from fetch start to the end of compare or apply.",
			Buckets:   prometheus.DefBuckets,
		}),
		conflicts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "quotesync",
			Name:      "sync_conflicts_total",
			Help:      "Conflict entries surfaced to a decision surface.",
		}),
		merged: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "quotesync",
			Name:      "sync_merged_quotes_total",
			Help:      "Remote quotes appended or replaced in the store.",
		}),
		fetchAttempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "quotesync",
			Name:      "sync_fetch_attempts_total",
			Help:      "Calls made to the remote quote source, including retries.",
		}),
		storedQuotes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "quotesync",
			Name:      "stored_quotes",
			Help:      "Quotes currently held by the store.",
		}),
	}
}

// ObserveRun records one finished run.
func (m *SyncMetrics) ObserveRun(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}

	m.runs.WithLabelValues(outcome).Inc()
	m.runDuration.Observe(elapsed.Seconds())
}

// AddConflicts counts surfaced conflicts.
func (m *SyncMetrics) AddConflicts(n int) {
	if m == nil || n <= 0 {
		return
	}

	m.conflicts.Add(float64(n))
}

// AddMerged counts quotes written by an apply step.
func (m *SyncMetrics) AddMerged(n int) {
	if m == nil || n <= 0 {
		return
	}

	m.merged.Add(float64(n))
}

// IncFetchAttempt counts one call to the remote source.
func (m *SyncMetrics) IncFetchAttempt() {
	if m == nil {
		return
	}

	m.fetchAttempts.Inc()
}

// SetStoredQuotes reports the size of the store.
func (m *SyncMetrics) SetStoredQuotes(n int) {
	if m == nil {
		return
	}

	m.storedQuotes.Set(float64(n))
}
