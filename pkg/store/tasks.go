package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// TaskStatus is the lifecycle state of a background fetch task.
type TaskStatus string

const (
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// FailureKind distinguishes failure classes so callers can decide whether a
// retry makes sense without string-matching error messages.
type FailureKind string

const (
	// FailureNone is set on non-failed tasks.
	FailureNone FailureKind = ""

	// FailureNotFound means the upstream reported the key does not exist.
	// Terminal; not retried automatically.
	FailureNotFound FailureKind = "not_found"

	// FailureTransient covers upstream and transport errors that a later
	// request may retry after the lock is released.
	FailureTransient FailureKind = "transient"
)

// Task is a pollable handle for an asynchronous fetch. Created when a
// cache-miss wins the dedup lock; transitioned out of processing exactly once,
// by the worker. Terminal records expire after the task status TTL, after
// which polls report unknown/expired.
type Task struct {
	ID        string          `json:"id"`
	Key       string          `json:"key"`
	Status    TaskStatus      `json:"status"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	ErrorKind FailureKind     `json:"error_kind,omitempty"`
	CreatedAt time.Time       `json:"created_at"`

	// CompletedBy names the task whose fetch satisfied this one, when a
	// concurrent task for the same key finished first.
	CompletedBy string `json:"completed_by,omitempty"`
}

// CreateTask stores a new task record with the given TTL.
func (s *Store) CreateTask(ctx context.Context, task *Task, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := encodeTask(task)
	if err != nil {
		return err
	}
	return s.update(func(txn *badger.Txn) error {
		return setWithTTL(txn, keyTask(task.ID), data, ttl)
	})
}

// GetTask returns the task record for id, or a StoreError with ErrNotFound
// once the record has expired or never existed.
func (s *Store) GetTask(ctx context.Context, id string) (*Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var task *Task
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyTask(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return notFound(fmt.Sprintf("task %q unknown or expired", id))
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var decErr error
			task, decErr = decodeTask(val)
			return decErr
		})
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// CompleteTask transitions the task to completed with the given result. The
// transition is applied at most once: a task already in a terminal state is
// left untouched and ErrInvalidTransition is returned. The TTL restarts the
// record's expiry clock.
func (s *Store) CompleteTask(ctx context.Context, id string, result json.RawMessage, ttl time.Duration) error {
	return s.transitionTask(ctx, id, ttl, func(t *Task) {
		t.Status = TaskCompleted
		t.Result = result
		t.Error = ""
		t.ErrorKind = FailureNone
	})
}

// CompleteTaskBy is CompleteTask for a related task satisfied by another
// task's fetch; byID records which task actually performed the upstream call.
func (s *Store) CompleteTaskBy(ctx context.Context, id string, result json.RawMessage, byID string, ttl time.Duration) error {
	return s.transitionTask(ctx, id, ttl, func(t *Task) {
		t.Status = TaskCompleted
		t.Result = result
		t.Error = ""
		t.ErrorKind = FailureNone
		t.CompletedBy = byID
	})
}

// FailTask transitions the task to failed, recording the failure kind and
// message. Same at-most-once semantics as CompleteTask.
func (s *Store) FailTask(ctx context.Context, id string, kind FailureKind, msg string, ttl time.Duration) error {
	return s.transitionTask(ctx, id, ttl, func(t *Task) {
		t.Status = TaskFailed
		t.Error = msg
		t.ErrorKind = kind
		t.Result = nil
	})
}

func (s *Store) transitionTask(ctx context.Context, id string, ttl time.Duration, apply func(*Task)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.update(func(txn *badger.Txn) error {
		item, err := txn.Get(keyTask(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return notFound(fmt.Sprintf("task %q unknown or expired", id))
		}
		if err != nil {
			return err
		}

		var task *Task
		if err := item.Value(func(val []byte) error {
			var decErr error
			task, decErr = decodeTask(val)
			return decErr
		}); err != nil {
			return err
		}

		if task.Status != TaskProcessing {
			return &StoreError{
				Code:    ErrInvalidTransition,
				Message: fmt.Sprintf("task %q already %s", id, task.Status),
			}
		}

		apply(task)

		data, err := encodeTask(task)
		if err != nil {
			return err
		}
		return setWithTTL(txn, keyTask(id), data, ttl)
	})
}
