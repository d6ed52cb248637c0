package store

import (
	"context"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"time"
)

// Dedup locks guarantee at most one in-flight background fetch per key.
//
// A lock is a key -> task-id record with a short TTL. AcquireLock is a true
// check-and-set: the read of the existing lock and the write of the new one
// happen in one serializable transaction, so under N concurrent requesters
// exactly one acquires the lock and the other N-1 observe the winner's task
// id. The TTL keeps a crashed worker from wedging a key forever; it must be
// shorter than the worst-case upstream latency budget.

// AcquireLock atomically installs a lock for key naming taskID, unless a
// live lock already exists. It returns the owning task id and whether this
// call won the acquisition.
func (s *Store) AcquireLock(ctx context.Context, key, taskID string, ttl time.Duration) (owner string, acquired bool, err error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	err = s.update(func(txn *badger.Txn) error {
		item, err := txn.Get(keyLock(key))
		if err == nil {
			// Live lock exists; report its owner.
			return item.Value(func(val []byte) error {
				owner = string(val)
				acquired = false
				return nil
			})
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := setWithTTL(txn, keyLock(key), []byte(taskID), ttl); err != nil {
			return err
		}
		owner = taskID
		acquired = true
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return owner, acquired, nil
}

// ReleaseLock removes the lock for key. Idempotent: releasing an absent or
// already-expired lock is not an error.
func (s *Store) ReleaseLock(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.update(func(txn *badger.Txn) error {
		return txn.Delete(keyLock(key))
	})
}

// PeekLock returns the task id owning the live lock for key, or a StoreError
// with ErrNotFound when no live lock exists.
func (s *Store) PeekLock(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var owner string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyLock(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return notFound(fmt.Sprintf("no lock for %q", key))
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			owner = string(val)
			return nil
		})
	})
	if err != nil {
		return "", err
	}
	return owner, nil
}
