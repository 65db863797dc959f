package resolver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instrumentation for resolution runs,
// following the teacher's EnableMetrics/recordGitMirror idiom: a
// value that is safe to leave nil (no-op) or constructed once against
// a registerer at startup.
type Metrics struct {
	resolutionCount   *prometheus.CounterVec
	resolutionLatency prometheus.Histogram
	packageSelected   prometheus.Gauge
}

// NewMetrics registers the resolver's metrics against reg and returns
// a Metrics value to pass to Resolve. A nil reg is rejected by the
// caller; use NoopMetrics instead when metrics are disabled.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		resolutionCount: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "wit_resolution_count",
			Help: "Count of dependency resolution runs by outcome.",
		}, []string{"outcome"}),
		resolutionLatency: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "wit_resolution_latency_seconds",
			Help:    "Wall-clock time of a full dependency resolution run.",
			Buckets: prometheus.DefBuckets,
		}),
		packageSelected: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "wit_package_selected_count",
			Help: "Number of packages selected by the most recent resolution run.",
		}),
	}
}

// NoopMetrics returns a Metrics value whose recording methods are
// safe no-ops, for callers that have not enabled metrics.
func NoopMetrics() *Metrics { return nil }

func (m *Metrics) observeLatency(seconds float64) {
	if m == nil {
		return
	}
	m.resolutionLatency.Observe(seconds)
}

func (m *Metrics) incOutcome(outcome string) {
	if m == nil {
		return
	}
	m.resolutionCount.WithLabelValues(outcome).Inc()
}

func (m *Metrics) setSelected(n int) {
	if m == nil {
		return
	}
	m.packageSelected.Set(float64(n))
}

const (
	outcomeSuccess        = "success"
	outcomeNotAncestor    = "not_ancestor"
	outcomeSourceConflict = "source_conflict"
	outcomeDependentNewer = "dependent_newer"
	outcomeGitError       = "git_error"
)
