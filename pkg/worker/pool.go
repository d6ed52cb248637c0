package worker

import (
	"context"

	"github.com/betterforces/swr/internal/logger"
	"github.com/betterforces/swr/pkg/ratelimit"
	"github.com/betterforces/swr/pkg/store"
	"github.com/betterforces/swr/pkg/upstream"
)

// Pool runs a fixed number of workers draining the same queue. All workers
// share one upstream limiter, so the pool size controls fetch concurrency
// while the limiter controls fetch rate.
type Pool struct {
	workers []*Worker
}

// NewPool creates count workers sharing the given store, fetcher and
// limiter. metrics may be nil.
func NewPool(count int, s *store.Store, fetcher upstream.Fetcher, limiter *ratelimit.Limiter, cfg Config, metrics Metrics) *Pool {
	if count < 1 {
		count = 1
	}

	workers := make([]*Worker, count)
	for i := range workers {
		workers[i] = New(s, fetcher, limiter, cfg, metrics)
	}
	return &Pool{workers: workers}
}

// Start launches all workers.
func (p *Pool) Start(ctx context.Context) {
	logger.Info("Starting worker pool", "count", len(p.workers))
	for _, w := range p.workers {
		w.Start(ctx)
	}
}

// Stop shuts down all workers and blocks until in-flight jobs finish.
func (p *Pool) Stop() {
	for _, w := range p.workers {
		w.Stop()
	}
	logger.Info("Worker pool stopped")
}
