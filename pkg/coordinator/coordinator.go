// Package coordinator implements the read-path decision logic sitting between
// the API boundary and the store.
//
// Every lookup classifies the cached entry as fresh, stale, or absent and
// resolves to a tagged Result: either data to serve immediately or a pollable
// task handle. Readers are never blocked on background work; the worst a
// lookup does synchronously is a handful of store operations.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/betterforces/swr/internal/logger"
	"github.com/betterforces/swr/internal/telemetry"
	"github.com/betterforces/swr/pkg/store"
)

// ResultKind discriminates the two shapes a lookup can resolve to.
type ResultKind int

const (
	// ResultData means Payload holds servable data.
	ResultData ResultKind = iota

	// ResultPending means no data is available yet; TaskID is a handle the
	// caller can poll.
	ResultPending
)

// Result is the outcome of a lookup. Kind is the authoritative discriminator;
// callers must branch on it, never on which fields happen to be set.
type Result struct {
	Kind ResultKind

	// Set when Kind == ResultData.
	Payload []byte
	Stale   bool
	Age     time.Duration

	// Set when Kind == ResultPending.
	TaskID     string
	RetryAfter time.Duration
}

// Metrics is implemented by the Prometheus metrics package. A nil Metrics
// disables instrumentation.
type Metrics interface {
	// RecordLookup counts a lookup by freshness outcome.
	RecordLookup(freshness string)

	// RecordRefreshEnqueued counts background refresh jobs this coordinator
	// created.
	RecordRefreshEnqueued()
}

// Config holds the TTLs and hints governing the freshness state machine.
type Config struct {
	// FreshTTL is the age below which entries are served with no side
	// effects.
	FreshTTL time.Duration

	// StaleTTL is the age at and beyond which entries are treated as absent.
	StaleTTL time.Duration

	// TaskStatusTTL bounds how long task records outlive their last write.
	TaskStatusTTL time.Duration

	// PendingLockTTL is the dedup lock expiry. Must be shorter than the
	// upstream latency timeout, or an expired lock could race a live fetch.
	PendingLockTTL time.Duration

	// RetryAfterHint is returned with pending handles to pace pollers.
	RetryAfterHint time.Duration
}

// Coordinator resolves reads against the cache and triggers deduplicated
// background refreshes.
type Coordinator struct {
	store   *store.Store
	cfg     Config
	metrics Metrics

	// group collapses concurrent in-process acquire attempts for the same
	// key. This is a fast path only: the store's atomic check-and-set is the
	// correctness mechanism, and keeps the invariant across processes too.
	group singleflight.Group

	// now is swappable for tests.
	now func() time.Time
}

// New creates a coordinator. metrics may be nil.
func New(s *store.Store, cfg Config, metrics Metrics) *Coordinator {
	return &Coordinator{
		store:   s,
		cfg:     cfg,
		metrics: metrics,
		now:     time.Now,
	}
}

// Lookup resolves a read for key.
//
//   - Fresh entry: data result, no side effects.
//   - Stale entry: data result marked stale, plus a fire-and-forget refresh
//     enqueue. Refresh errors on this path are swallowed: the reader already
//     has servable data.
//   - Absent: a pending result carrying the task handle. If another requester
//     already owns the refresh, the existing handle is returned, so all
//     concurrent first-time readers of a key converge on one upstream fetch.
func (c *Coordinator) Lookup(ctx context.Context, key string) (Result, error) {
	ctx, span := telemetry.StartSpan(ctx, "coordinator.Lookup")
	defer span.End()
	span.SetAttributes(attribute.String("swr.key", key))

	entry, err := c.store.GetEntry(ctx, key)
	if err != nil && !store.IsNotFound(err) {
		telemetry.RecordError(ctx, err)
		return Result{}, fmt.Errorf("cache lookup for %q: %w", key, err)
	}

	freshness := store.Absent
	var age time.Duration
	if entry != nil {
		age = entry.Age(c.now())
		freshness = store.Classify(age, c.cfg.FreshTTL, c.cfg.StaleTTL)
	}
	if c.metrics != nil {
		c.metrics.RecordLookup(freshness.String())
	}
	span.SetAttributes(attribute.String("swr.freshness", freshness.String()))

	switch freshness {
	case store.Fresh:
		return Result{Kind: ResultData, Payload: entry.Payload, Age: age}, nil

	case store.Stale:
		// Serve immediately; the refresh is a side effect the reader never
		// waits on or hears about.
		if taskID, created, err := c.ensureRefresh(ctx, key); err != nil {
			logger.WarnCtx(ctx, "Failed to enqueue stale refresh",
				logger.KeyKey, key, logger.KeyError, err)
		} else if created {
			logger.DebugCtx(ctx, "Stale refresh enqueued",
				logger.KeyKey, key, logger.KeyTaskID, taskID)
		}
		return Result{Kind: ResultData, Payload: entry.Payload, Stale: true, Age: age}, nil

	default: // store.Absent
		taskID, created, err := c.ensureRefresh(ctx, key)
		if err != nil {
			// This path has no data to fall back on; the reader must hear
			// about the failure.
			telemetry.RecordError(ctx, err)
			return Result{}, fmt.Errorf("scheduling fetch for %q: %w", key, err)
		}
		if created {
			logger.InfoCtx(ctx, "Fetch task created",
				logger.KeyKey, key, logger.KeyTaskID, taskID)
		}
		return Result{Kind: ResultPending, TaskID: taskID, RetryAfter: c.cfg.RetryAfterHint}, nil
	}
}

// ensureRefresh guarantees a live refresh exists for key and returns its task
// id. created reports whether this call actually created the task (and
// enqueued the job) rather than joining an existing one.
//
// Deduplication layers, outermost first:
//  1. singleflight collapses concurrent in-process callers (optimization);
//  2. a plain lock read skips the write path when a refresh is in flight
//     (optimization);
//  3. the store's atomic check-and-set decides the winner (authoritative).
func (c *Coordinator) ensureRefresh(ctx context.Context, key string) (taskID string, created bool, err error) {
	type refreshOutcome struct {
		taskID  string
		created bool
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		if owner, err := c.store.PeekLock(ctx, key); err == nil {
			return refreshOutcome{taskID: owner}, nil
		} else if !store.IsNotFound(err) {
			return nil, err
		}

		id := uuid.NewString()
		owner, acquired, err := c.store.AcquireLock(ctx, key, id, c.cfg.PendingLockTTL)
		if err != nil {
			return nil, err
		}
		if !acquired {
			// Lost the race; converge on the winner's handle.
			return refreshOutcome{taskID: owner}, nil
		}

		task := &store.Task{
			ID:        id,
			Key:       key,
			Status:    store.TaskProcessing,
			CreatedAt: c.now().UTC(),
		}
		if err := c.store.CreateTask(ctx, task, c.cfg.TaskStatusTTL); err != nil {
			_ = c.store.ReleaseLock(ctx, key)
			return nil, err
		}
		if err := c.store.EnqueueJob(ctx, key); err != nil {
			_ = c.store.ReleaseLock(ctx, key)
			return nil, err
		}

		if c.metrics != nil {
			c.metrics.RecordRefreshEnqueued()
		}
		return refreshOutcome{taskID: id, created: true}, nil
	})
	if err != nil {
		return "", false, err
	}

	out := v.(refreshOutcome)
	return out.taskID, out.created, nil
}
