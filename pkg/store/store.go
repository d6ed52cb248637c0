// Package store implements the shared persistent substrate for the cache
// front: cache entries, task records, dedup locks, and the durable FIFO job
// queue, all backed by a single BadgerDB instance.
//
// The Store is the only shared mutable state in the system. It is opened once
// at process start, passed by reference to the coordinator, the workers, and
// the API layer, and closed at shutdown.
//
// All read-modify-write operations run inside Badger transactions, which give
// serializable snapshot isolation. Conflicting concurrent commits are retried
// a bounded number of times; this is what makes the dedup lock's
// check-and-set genuinely atomic under concurrent requesters.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/betterforces/swr/internal/logger"
)

// maxTxnRetries bounds retries of transactions aborted by conflicts.
const maxTxnRetries = 16

// Config configures the backing BadgerDB instance.
type Config struct {
	// Path is the on-disk database directory. Ignored when InMemory is set.
	Path string `mapstructure:"path" yaml:"path"`

	// InMemory keeps all data in memory. Used by tests; queue durability
	// across restarts obviously does not hold in this mode.
	InMemory bool `mapstructure:"in_memory" yaml:"in_memory"`
}

// Store provides typed access to all persistent state.
type Store struct {
	db       *badger.DB
	queueSeq *badger.Sequence

	// notify wakes blocked PopJob callers when a job is enqueued. Buffered
	// with size 1: a pending wakeup is never lost, extra ones collapse.
	notify chan struct{}
}

// Open opens (or creates) the store at the configured location.
func Open(cfg Config) (*Store, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, fmt.Errorf("store: path is required")
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	seq, err := db.GetSequence(keyQueueSeq(), 128)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open queue sequence: %w", err)
	}

	logger.Info("Store opened", "path", cfg.Path, "in_memory", cfg.InMemory)

	return &Store{
		db:       db,
		queueSeq: seq,
		notify:   make(chan struct{}, 1),
	}, nil
}

// Close releases the queue sequence and closes the database. The store must
// not be used after Close.
func (s *Store) Close() error {
	if err := s.queueSeq.Release(); err != nil {
		logger.Warn("Failed to release queue sequence", "error", err)
	}
	return s.db.Close()
}

// Ping verifies the database is usable. Used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(txn *badger.Txn) error { return nil })
}

// update runs fn in a read-write transaction, retrying on conflict. Badger
// aborts a transaction when a key it read was written by a concurrently
// committed transaction; retrying re-evaluates fn against the new state.
func (s *Store) update(fn func(txn *badger.Txn) error) error {
	var err error
	for range maxTxnRetries {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return &StoreError{Code: ErrUnavailable, Message: "transaction conflict retries exhausted"}
}

// setWithTTL writes a value with an expiry inside txn.
func setWithTTL(txn *badger.Txn, key, val []byte, ttl time.Duration) error {
	entry := badger.NewEntry(key, val)
	if ttl > 0 {
		entry = entry.WithTTL(ttl)
	}
	return txn.SetEntry(entry)
}
