package store

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestAcquireLockFirstWins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	owner, acquired, err := s.AcquireLock(ctx, "alice", "task-1", time.Minute)
	if err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}
	if !acquired || owner != "task-1" {
		t.Fatalf("Expected first acquire to win with task-1, got acquired=%v owner=%q", acquired, owner)
	}

	// Second acquire for the same key must lose and see the winner.
	owner, acquired, err = s.AcquireLock(ctx, "alice", "task-2", time.Minute)
	if err != nil {
		t.Fatalf("Second AcquireLock failed: %v", err)
	}
	if acquired {
		t.Error("Expected second acquire to lose")
	}
	if owner != "task-1" {
		t.Errorf("Expected loser to observe owner task-1, got %q", owner)
	}
}

func TestAcquireLockConcurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const n = 32
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
		owners  = make(map[string]struct{})
	)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			taskID := string(rune('a' + id%26))
			owner, acquired, err := s.AcquireLock(ctx, "hot-key", taskID, time.Minute)
			if err != nil {
				t.Errorf("AcquireLock failed: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if acquired {
				winners = append(winners, owner)
			}
			owners[owner] = struct{}{}
		}(i)
	}
	wg.Wait()

	if len(winners) != 1 {
		t.Fatalf("Expected exactly one winner, got %d", len(winners))
	}
	// Every contender, winner or loser, must have observed the same owner.
	if len(owners) != 1 {
		t.Errorf("Expected all contenders to converge on one owner, saw %d", len(owners))
	}
}

func TestReleaseLockIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, _, err := s.AcquireLock(ctx, "k", "t", time.Minute); err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}
	if err := s.ReleaseLock(ctx, "k"); err != nil {
		t.Fatalf("ReleaseLock failed: %v", err)
	}
	// Releasing again must not error.
	if err := s.ReleaseLock(ctx, "k"); err != nil {
		t.Errorf("Second ReleaseLock failed: %v", err)
	}

	if _, err := s.PeekLock(ctx, "k"); !IsNotFound(err) {
		t.Errorf("Expected not-found after release, got %v", err)
	}

	// The key is reacquirable after release.
	_, acquired, err := s.AcquireLock(ctx, "k", "t2", time.Minute)
	if err != nil || !acquired {
		t.Errorf("Expected reacquire to succeed, got acquired=%v err=%v", acquired, err)
	}
}

func TestLockExpires(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, _, err := s.AcquireLock(ctx, "k", "t1", 50*time.Millisecond); err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}

	time.Sleep(120 * time.Millisecond)

	if _, err := s.PeekLock(ctx, "k"); !IsNotFound(err) {
		t.Fatalf("Expected expired lock to read as not-found, got %v", err)
	}

	owner, acquired, err := s.AcquireLock(ctx, "k", "t2", time.Minute)
	if err != nil {
		t.Fatalf("AcquireLock after expiry failed: %v", err)
	}
	if !acquired || owner != "t2" {
		t.Errorf("Expected fresh acquire after expiry, got acquired=%v owner=%q", acquired, owner)
	}
}
