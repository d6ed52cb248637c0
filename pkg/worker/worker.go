// Package worker consumes queued fetch jobs, performs the rate-limited
// upstream call, and publishes the outcome to the cache and task records.
//
// Any number of workers may run against the same store and share one rate
// limiter; the limiter, not the worker count, bounds the total upstream call
// rate. Per-key serialization comes from the dedup lock: a job whose lock has
// expired is abandoned, so at most one fetch per key is ever in flight.
package worker

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/betterforces/swr/internal/logger"
	"github.com/betterforces/swr/internal/telemetry"
	"github.com/betterforces/swr/pkg/ratelimit"
	"github.com/betterforces/swr/pkg/store"
	"github.com/betterforces/swr/pkg/upstream"
)

// Configuration defaults
const (
	// defaultPopTimeout is how long a blocking queue pop waits before the
	// loop re-checks for shutdown.
	defaultPopTimeout = 5 * time.Second

	// defaultFetchTimeout bounds a single upstream fetch.
	defaultFetchTimeout = 30 * time.Second
)

// Metrics is implemented by the Prometheus metrics package. A nil Metrics
// disables instrumentation.
type Metrics interface {
	// RecordFetch records an upstream fetch with its outcome
	// (ok, not_found, transient) and duration.
	RecordFetch(outcome string, d time.Duration)

	// RecordTaskResolved counts task terminal transitions by status.
	RecordTaskResolved(status string)

	// SetQueueDepth publishes the current queue length.
	SetQueueDepth(n int)
}

// Config holds worker tuning knobs.
type Config struct {
	// PopTimeout is the blocking pop timeout. Default: 5s.
	PopTimeout time.Duration

	// FetchTimeout bounds a single upstream fetch. Default: 30s.
	FetchTimeout time.Duration

	// CacheTTL is the expiry applied to cache entries written on success.
	// Should equal the configured stale TTL.
	CacheTTL time.Duration

	// TaskStatusTTL is the expiry applied to task records on terminal
	// transitions.
	TaskStatusTTL time.Duration
}

func (c *Config) applyDefaults() {
	if c.PopTimeout <= 0 {
		c.PopTimeout = defaultPopTimeout
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = defaultFetchTimeout
	}
}

// Worker is a single consumer loop.
//
// Lifecycle mirrors the rest of the background machinery: New, Start(ctx),
// Stop. Shutdown is cooperative: cancelling the context stops the loop from
// popping new jobs, but a job already popped runs to completion, including
// its upstream call.
type Worker struct {
	store   *store.Store
	fetcher upstream.Fetcher
	limiter *ratelimit.Limiter
	cfg     Config
	metrics Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a worker. metrics may be nil.
func New(s *store.Store, fetcher upstream.Fetcher, limiter *ratelimit.Limiter, cfg Config, metrics Metrics) *Worker {
	cfg.applyDefaults()
	return &Worker{
		store:   s,
		fetcher: fetcher,
		limiter: limiter,
		cfg:     cfg,
		metrics: metrics,
	}
}

// Start launches the worker loop. Call Stop (or cancel ctx) to shut down.
func (w *Worker) Start(ctx context.Context) {
	w.ctx, w.cancel = context.WithCancel(ctx)

	logger.Info("Worker started",
		"pop_timeout", w.cfg.PopTimeout.String(),
		"fetch_timeout", w.cfg.FetchTimeout.String(),
	)

	w.wg.Add(1)
	go w.run()
}

// Stop requests shutdown and blocks until the loop has exited, including any
// job in progress. Safe to call multiple times.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

func (w *Worker) run() {
	defer w.wg.Done()

	for {
		job, err := w.store.PopJob(w.ctx, w.cfg.PopTimeout)
		if w.ctx.Err() != nil {
			logger.Info("Worker stopped")
			return
		}
		if err != nil {
			logger.Error("Queue pop failed", logger.KeyError, err)
			// Avoid a tight loop when the store is unhappy.
			select {
			case <-w.ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}

		if w.metrics != nil {
			if n, err := w.store.QueueLen(w.ctx); err == nil {
				w.metrics.SetQueueDepth(n)
			}
		}

		if job == nil {
			continue
		}
		w.process(job)
	}
}

// process handles one job end to end. It runs on a context detached from the
// loop's cancellation so shutdown never abandons an in-flight fetch; the
// fetch itself is bounded by FetchTimeout.
func (w *Worker) process(job *store.Job) {
	ctx := context.WithoutCancel(w.ctx)
	ctx, span := telemetry.StartSpan(ctx, "worker.process")
	defer span.End()
	span.SetAttributes(attribute.String("swr.key", job.Key))

	// The job carries only the key; the current dedup lock tells us which
	// task this fetch is for.
	taskID, err := w.store.PeekLock(ctx, job.Key)
	if err != nil {
		if store.IsNotFound(err) {
			// Lock expired before we got to the job. Nothing owns this
			// fetch anymore; drop it.
			logger.Warn("Abandoning job with expired lock", logger.KeyKey, job.Key)
			return
		}
		logger.Error("Lock peek failed", logger.KeyKey, job.Key, logger.KeyError, err)
		return
	}

	if err := w.limiter.Acquire(ctx); err != nil {
		logger.Error("Rate limiter wait failed", logger.KeyKey, job.Key, logger.KeyError, err)
		return
	}

	fetchCtx, cancel := context.WithTimeout(ctx, w.cfg.FetchTimeout)
	defer cancel()

	start := time.Now()
	payload, err := w.fetcher.Fetch(fetchCtx, job.Key)
	elapsed := time.Since(start)

	if err != nil {
		w.handleFailure(ctx, job.Key, taskID, err, elapsed)
		return
	}

	if w.metrics != nil {
		w.metrics.RecordFetch("ok", elapsed)
	}

	entry := &store.Entry{Key: job.Key, Payload: payload, FetchedAt: time.Now().UTC()}
	if err := w.store.PutEntry(ctx, entry, w.cfg.CacheTTL); err != nil {
		// The fetch succeeded but we cannot publish it; fail the task so
		// pollers are not left hanging until the status TTL.
		logger.ErrorCtx(ctx, "Cache write failed", logger.KeyKey, job.Key, logger.KeyError, err)
		w.failTask(ctx, job.Key, taskID, store.FailureTransient, "cache write failed")
		return
	}

	w.completeTask(ctx, job.Key, taskID, payload)

	logger.InfoCtx(ctx, "Fetch completed",
		logger.KeyKey, job.Key,
		logger.KeyTaskID, taskID,
		logger.KeyDuration, elapsed.String(),
	)
}

// completeTask marks the owning task completed, completes any related task
// that attached to the key while this fetch was running, then releases the
// lock.
func (w *Worker) completeTask(ctx context.Context, key, taskID string, payload []byte) {
	if err := w.store.CompleteTask(ctx, taskID, payload, w.cfg.TaskStatusTTL); err != nil {
		if !store.IsNotFound(err) && !store.IsInvalidTransition(err) {
			logger.ErrorCtx(ctx, "Task completion failed",
				logger.KeyTaskID, taskID, logger.KeyError, err)
		}
	} else if w.metrics != nil {
		w.metrics.RecordTaskResolved(string(store.TaskCompleted))
	}

	// If the lock expired mid-fetch and a newer task claimed the key, that
	// task's requesters are polling for data we just produced. Complete it
	// too; its queued job will find no lock and be abandoned.
	if current, err := w.store.PeekLock(ctx, key); err == nil && current != taskID {
		err := w.store.CompleteTaskBy(ctx, current, payload, taskID, w.cfg.TaskStatusTTL)
		if err == nil {
			logger.InfoCtx(ctx, "Related task completed",
				logger.KeyTaskID, current, "completed_by", taskID)
		}
	}

	if err := w.store.ReleaseLock(ctx, key); err != nil {
		logger.WarnCtx(ctx, "Lock release failed", logger.KeyKey, key, logger.KeyError, err)
	}
}

func (w *Worker) handleFailure(ctx context.Context, key, taskID string, fetchErr error, elapsed time.Duration) {
	kind := upstream.KindOf(fetchErr)

	if w.metrics != nil {
		w.metrics.RecordFetch(kind.String(), elapsed)
	}

	var failure store.FailureKind
	switch kind {
	case upstream.KindNotFound:
		failure = store.FailureNotFound
		logger.WarnCtx(ctx, "Upstream reported key not found", logger.KeyKey, key)
	default:
		failure = store.FailureTransient
		logger.ErrorCtx(ctx, "Upstream fetch failed",
			logger.KeyKey, key, logger.KeyError, fetchErr)
	}

	w.failTask(ctx, key, taskID, failure, fetchErr.Error())
}

// failTask records the failure and releases the lock so a later request can
// retry the key.
func (w *Worker) failTask(ctx context.Context, key, taskID string, kind store.FailureKind, msg string) {
	if err := w.store.FailTask(ctx, taskID, kind, msg, w.cfg.TaskStatusTTL); err != nil {
		if !store.IsNotFound(err) && !store.IsInvalidTransition(err) {
			logger.ErrorCtx(ctx, "Task failure record failed",
				logger.KeyTaskID, taskID, logger.KeyError, err)
		}
	} else if w.metrics != nil {
		w.metrics.RecordTaskResolved(string(store.TaskFailed))
	}

	if err := w.store.ReleaseLock(ctx, key); err != nil {
		logger.WarnCtx(ctx, "Lock release failed", logger.KeyKey, key, logger.KeyError, err)
	}
}
