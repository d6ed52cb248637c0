package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// ============================================================================
// Database Key Namespace Design
// ============================================================================
//
// BadgerDB is a flat key-value store, so record types are organized into
// namespaces with short key prefixes:
//
// Data Type      Prefix   Key Format          Value               TTL
// ===========================================================================
// Cache Entry    "e:"     e:<key>             Entry (JSON)        stale TTL
// Task Record    "t:"     t:<task-id>         Task (JSON)         status TTL
// Dedup Lock     "p:"     p:<key>             task id (bytes)     lock TTL
// Queue Job      "q:"     q:<seq, 8B BE>      Job (JSON)          none
// Queue Seq      "sq"     sq                  Badger sequence     none
//
// Queue job keys embed a monotonically increasing sequence number encoded
// big-endian, so Badger's lexicographic iteration order is FIFO order.
// Expiry is enforced by Badger's native entry TTL: expired records are
// invisible to reads, which is exactly the "expired means unknown" contract
// for tasks and locks.

const (
	prefixEntry = "e:"
	prefixTask  = "t:"
	prefixLock  = "p:"
	prefixJob   = "q:"
)

func keyEntry(key string) []byte {
	return []byte(prefixEntry + key)
}

func keyTask(id string) []byte {
	return []byte(prefixTask + id)
}

func keyLock(key string) []byte {
	return []byte(prefixLock + key)
}

func keyJob(seq uint64) []byte {
	k := make([]byte, len(prefixJob)+8)
	copy(k, prefixJob)
	binary.BigEndian.PutUint64(k[len(prefixJob):], seq)
	return k
}

func keyQueueSeq() []byte {
	return []byte("sq")
}

func encodeEntry(e *Entry) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cache entry: %w", err)
	}
	return data, nil
}

func decodeEntry(data []byte) (*Entry, error) {
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, &StoreError{Code: ErrCorrupt, Message: fmt.Sprintf("cache entry: %v", err)}
	}
	return &e, nil
}

func encodeTask(t *Task) ([]byte, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("failed to encode task: %w", err)
	}
	return data, nil
}

func decodeTask(data []byte) (*Task, error) {
	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, &StoreError{Code: ErrCorrupt, Message: fmt.Sprintf("task: %v", err)}
	}
	return &t, nil
}

func encodeJob(j *Job) ([]byte, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("failed to encode job: %w", err)
	}
	return data, nil
}

func decodeJob(data []byte) (*Job, error) {
	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, &StoreError{Code: ErrCorrupt, Message: fmt.Sprintf("job: %v", err)}
	}
	return &j, nil
}
