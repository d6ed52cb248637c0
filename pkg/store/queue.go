package store

import (
	"context"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// The job queue is a durable FIFO stored alongside the rest of the state.
// Jobs carry only the key: the worker resolves the owning task id from the
// dedup lock at dequeue time, so a queued job is always attributed to
// whichever task currently owns its key.

// queuePollInterval bounds how long a blocked PopJob waits before re-checking
// the queue even without a wakeup. The wakeup channel only reaches one of
// possibly several blocked workers, so the others fall back to polling.
const queuePollInterval = 250 * time.Millisecond

// Job is a queued fetch request.
type Job struct {
	Key        string    `json:"key"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// EnqueueJob appends a fetch job for key to the queue.
func (s *Store) EnqueueJob(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	seq, err := s.queueSeq.Next()
	if err != nil {
		return err
	}

	data, err := encodeJob(&Job{Key: key, EnqueuedAt: time.Now().UTC()})
	if err != nil {
		return err
	}

	err = s.update(func(txn *badger.Txn) error {
		return txn.Set(keyJob(seq), data)
	})
	if err != nil {
		return err
	}

	// Wake one blocked PopJob, if any. Non-blocking: a pending wakeup
	// already covers this job.
	select {
	case s.notify <- struct{}{}:
	default:
	}
	return nil
}

// PopJob removes and returns the oldest queued job. It blocks until a job is
// available, the timeout elapses (returning nil, nil), or ctx is cancelled.
// The timeout keeps workers responsive to shutdown signals.
func (s *Store) PopJob(ctx context.Context, timeout time.Duration) (*Job, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		job, err := s.tryPopJob(ctx)
		if err != nil || job != nil {
			return job, err
		}

		poll := time.NewTimer(queuePollInterval)
		select {
		case <-ctx.Done():
			poll.Stop()
			return nil, ctx.Err()
		case <-deadline.C:
			poll.Stop()
			return nil, nil
		case <-s.notify:
			poll.Stop()
		case <-poll.C:
		}
	}
}

// tryPopJob atomically removes the head of the queue. Returns nil, nil when
// the queue is empty.
func (s *Store) tryPopJob(ctx context.Context) (*Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var job *Job
	err := s.update(func(txn *badger.Txn) error {
		job = nil

		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixJob)
		opts.PrefetchValues = true
		opts.PrefetchSize = 1

		it := txn.NewIterator(opts)
		it.Rewind()
		if !it.Valid() {
			it.Close()
			return nil
		}

		item := it.Item()
		key := item.KeyCopy(nil)
		val, err := item.ValueCopy(nil)
		it.Close()
		if err != nil {
			return err
		}

		job, err = decodeJob(val)
		if err != nil {
			return err
		}
		return txn.Delete(key)
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// QueueLen returns the number of queued jobs. Used for metrics and tests.
func (s *Store) QueueLen(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixJob)
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}
