package importer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the import pipeline's Prometheus collectors. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	rows        *prometheus.CounterVec
	runs        *prometheus.CounterVec
	runDuration prometheus.Histogram
	conflicts   *prometheus.CounterVec
	bestEffort  *prometheus.CounterVec
	activeRuns  prometheus.Gauge
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		rows: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "warehouse",
			Subsystem: "import",
			Name:      "rows_total",
			Help:      "Imported rows by outcome (success, failed).",
		}, []string{"outcome"}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "warehouse",
			Subsystem: "import",
			Name:      "runs_total",
			Help:      "Import runs by outcome (complete, cancelled, rejected).",
		}, []string{"outcome"}),
		runDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "warehouse",
			Subsystem: "import",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of import runs.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		conflicts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "warehouse",
			Subsystem: "import",
			Name:      "precheck_conflicts_total",
			Help:      "Existing unique values found by precheck, by field.",
		}, []string{"field"}),
		bestEffort: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "warehouse",
			Subsystem: "import",
			Name:      "best_effort_failures_total",
			Help:      "Logged non-fatal failures by step (geocode, grant, media).",
		}, []string{"step"}),
		activeRuns: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "warehouse",
			Subsystem: "import",
			Name:      "active_runs",
			Help:      "Import runs currently executing.",
		}),
	}
}

func (m *Metrics) observeRow(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.rows.WithLabelValues("success").Inc()
	} else {
		m.rows.WithLabelValues("failed").Inc()
	}
}

func (m *Metrics) observeRun(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
	if d > 0 {
		m.runDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) observeConflicts(field string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.conflicts.WithLabelValues(field).Add(float64(n))
}

func (m *Metrics) observeBestEffort(step string) {
	if m == nil {
		return
	}
	m.bestEffort.WithLabelValues(step).Inc()
}

func (m *Metrics) runStarted() {
	if m != nil {
		m.activeRuns.Inc()
	}
}

func (m *Metrics) runFinished() {
	if m != nil {
		m.activeRuns.Dec()
	}
}
