// Package prometheus provides the Prometheus-backed implementations of the
// Metrics interfaces declared next to the instrumented packages.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/betterforces/swr/pkg/coordinator"
	"github.com/betterforces/swr/pkg/metrics"
)

// coordinatorMetrics implements coordinator.Metrics.
type coordinatorMetrics struct {
	lookups   *prometheus.CounterVec
	refreshes prometheus.Counter
}

// NewCoordinatorMetrics creates coordinator metrics backed by the shared
// registry. Returns nil when metrics are disabled.
func NewCoordinatorMetrics() coordinator.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}
	reg := metrics.GetRegistry()

	return &coordinatorMetrics{
		lookups: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "swr_lookups_total",
				Help: "Total read lookups by cache freshness outcome",
			},
			[]string{"freshness"}, // "fresh", "stale", "absent"
		),
		refreshes: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "swr_refreshes_enqueued_total",
				Help: "Total background refresh jobs enqueued",
			},
		),
	}
}

func (m *coordinatorMetrics) RecordLookup(freshness string) {
	m.lookups.WithLabelValues(freshness).Inc()
}

func (m *coordinatorMetrics) RecordRefreshEnqueued() {
	m.refreshes.Inc()
}
