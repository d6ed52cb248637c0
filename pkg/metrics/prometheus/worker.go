package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/betterforces/swr/pkg/metrics"
	"github.com/betterforces/swr/pkg/worker"
)

// workerMetrics implements worker.Metrics.
type workerMetrics struct {
	fetches    *prometheus.CounterVec
	fetchTime  *prometheus.HistogramVec
	tasks      *prometheus.CounterVec
	queueDepth prometheus.Gauge
}

// NewWorkerMetrics creates worker metrics backed by the shared registry.
// Returns nil when metrics are disabled.
func NewWorkerMetrics() worker.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}
	reg := metrics.GetRegistry()

	return &workerMetrics{
		fetches: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "swr_upstream_fetches_total",
				Help: "Total upstream fetches by outcome",
			},
			[]string{"outcome"}, // "ok", "not_found", "transient"
		),
		fetchTime: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "swr_upstream_fetch_duration_seconds",
				Help: "Duration of upstream fetches",
				Buckets: []float64{
					0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
				},
			},
			[]string{"outcome"},
		),
		tasks: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "swr_tasks_resolved_total",
				Help: "Total tasks transitioned to a terminal status",
			},
			[]string{"status"}, // "completed", "failed"
		),
		queueDepth: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "swr_queue_depth",
				Help: "Number of fetch jobs currently queued",
			},
		),
	}
}

func (m *workerMetrics) RecordFetch(outcome string, d time.Duration) {
	m.fetches.WithLabelValues(outcome).Inc()
	m.fetchTime.WithLabelValues(outcome).Observe(d.Seconds())
}

func (m *workerMetrics) RecordTaskResolved(status string) {
	m.tasks.WithLabelValues(status).Inc()
}

func (m *workerMetrics) SetQueueDepth(n int) {
	m.queueDepth.Set(float64(n))
}
