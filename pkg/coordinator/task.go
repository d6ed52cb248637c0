package coordinator

import (
	"context"
	"fmt"

	"github.com/betterforces/swr/internal/logger"
	"github.com/betterforces/swr/pkg/store"
)

// Task returns the current view of a task for the status endpoint.
//
// One extra wrinkle beyond a plain read: if the task is still processing but
// the cache meanwhile holds FRESH data for its key (some other task
// repopulated it), the task is completed on the spot so its pollers stop
// waiting on work that no longer matters.
func (c *Coordinator) Task(ctx context.Context, id string) (*store.Task, error) {
	task, err := c.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.Status != store.TaskProcessing {
		return task, nil
	}

	entry, err := c.store.GetEntry(ctx, task.Key)
	if err != nil {
		if store.IsNotFound(err) {
			return task, nil
		}
		return nil, fmt.Errorf("checking cache for task %q: %w", id, err)
	}

	if store.Classify(entry.Age(c.now()), c.cfg.FreshTTL, c.cfg.StaleTTL) != store.Fresh {
		return task, nil
	}

	// Fresh data appeared while this task was pending; complete it now.
	err = c.store.CompleteTask(ctx, id, entry.Payload, c.cfg.TaskStatusTTL)
	if err != nil && !store.IsInvalidTransition(err) && !store.IsNotFound(err) {
		return nil, err
	}
	logger.DebugCtx(ctx, "Task completed by concurrent cache update",
		logger.KeyTaskID, id, logger.KeyKey, task.Key)

	return c.store.GetTask(ctx, id)
}
