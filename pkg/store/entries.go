package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// Entry is a cached payload for a key. Entries are written wholesale by a
// successful worker fetch and never partially mutated.
type Entry struct {
	Key       string          `json:"key"`
	Payload   json.RawMessage `json:"payload"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// Age returns the entry age at the given instant.
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.FetchedAt)
}

// GetEntry retrieves the cache entry for key.
// Returns a StoreError with ErrNotFound if no entry exists or it has expired;
// absence is an expected result, not a failure.
func (s *Store) GetEntry(ctx context.Context, key string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var entry *Entry
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyEntry(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return notFound(fmt.Sprintf("no cache entry for %q", key))
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var decErr error
			entry, decErr = decodeEntry(val)
			return decErr
		})
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// PutEntry stores the cache entry for entry.Key, overwriting any previous
// entry unconditionally. The TTL bounds how long the record is readable; it
// should be the configured stale TTL, past which the entry classifies as
// absent anyway.
func (s *Store) PutEntry(ctx context.Context, entry *Entry, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := encodeEntry(entry)
	if err != nil {
		return err
	}

	return s.update(func(txn *badger.Txn) error {
		return setWithTTL(txn, keyEntry(entry.Key), data, ttl)
	})
}
