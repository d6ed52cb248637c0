package coordinator

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/betterforces/swr/pkg/store"
)

func newTestCoordinator(t *testing.T) (*Coordinator, *store.Store) {
	t.Helper()

	s, err := store.Open(store.Config{InMemory: true})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	c := New(s, Config{
		FreshTTL:       4 * time.Hour,
		StaleTTL:       24 * time.Hour,
		TaskStatusTTL:  5 * time.Minute,
		PendingLockTTL: time.Minute,
		RetryAfterHint: 2 * time.Second,
	}, nil)
	return c, s
}

func putEntry(t *testing.T, s *store.Store, key string, age time.Duration) {
	t.Helper()
	entry := &store.Entry{
		Key:       key,
		Payload:   json.RawMessage(`[{"id":1}]`),
		FetchedAt: time.Now().UTC().Add(-age),
	}
	if err := s.PutEntry(context.Background(), entry, 24*time.Hour); err != nil {
		t.Fatalf("PutEntry failed: %v", err)
	}
}

func TestLookupFresh(t *testing.T) {
	c, s := newTestCoordinator(t)
	ctx := context.Background()

	putEntry(t, s, "alice", time.Hour)

	res, err := c.Lookup(ctx, "alice")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if res.Kind != ResultData {
		t.Fatalf("Expected data result, got kind %v", res.Kind)
	}
	if res.Stale {
		t.Error("Fresh entry must not be marked stale")
	}
	if res.Age < time.Hour || res.Age > time.Hour+time.Minute {
		t.Errorf("Unexpected age: %v", res.Age)
	}

	// A fresh hit must not schedule any background work.
	if n, _ := s.QueueLen(ctx); n != 0 {
		t.Errorf("Expected empty queue after fresh hit, got %d", n)
	}
}

func TestLookupStaleServesAndSchedulesRefresh(t *testing.T) {
	c, s := newTestCoordinator(t)
	ctx := context.Background()

	putEntry(t, s, "alice", 10*time.Hour)

	res, err := c.Lookup(ctx, "alice")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if res.Kind != ResultData {
		t.Fatalf("Expected data result, got kind %v", res.Kind)
	}
	if !res.Stale {
		t.Error("Expected stale flag")
	}
	if string(res.Payload) != `[{"id":1}]` {
		t.Errorf("Unexpected payload: %s", res.Payload)
	}

	// Exactly one refresh must be scheduled, with the lock naming its task.
	if n, _ := s.QueueLen(ctx); n != 1 {
		t.Fatalf("Expected one queued refresh, got %d", n)
	}
	taskID, err := s.PeekLock(ctx, "alice")
	if err != nil {
		t.Fatalf("Expected live lock: %v", err)
	}
	task, err := s.GetTask(ctx, taskID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if task.Status != store.TaskProcessing || task.Key != "alice" {
		t.Errorf("Unexpected task: %+v", task)
	}
}

func TestLookupStaleDeduplicatesRefresh(t *testing.T) {
	c, s := newTestCoordinator(t)
	ctx := context.Background()

	putEntry(t, s, "alice", 10*time.Hour)

	for i := 0; i < 3; i++ {
		if _, err := c.Lookup(ctx, "alice"); err != nil {
			t.Fatalf("Lookup %d failed: %v", i, err)
		}
	}

	if n, _ := s.QueueLen(ctx); n != 1 {
		t.Errorf("Expected a single queued refresh across repeated stale reads, got %d", n)
	}
}

func TestLookupAbsentReturnsPendingHandle(t *testing.T) {
	c, s := newTestCoordinator(t)
	ctx := context.Background()

	res, err := c.Lookup(ctx, "newcomer")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if res.Kind != ResultPending {
		t.Fatalf("Expected pending result, got kind %v", res.Kind)
	}
	if res.TaskID == "" {
		t.Fatal("Expected a task id")
	}
	if res.RetryAfter != 2*time.Second {
		t.Errorf("Expected retry-after hint 2s, got %v", res.RetryAfter)
	}

	task, err := s.GetTask(ctx, res.TaskID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if task.Status != store.TaskProcessing {
		t.Errorf("Expected processing task, got %s", task.Status)
	}
}

func TestLookupAbsentConcurrentConvergesOnOneTask(t *testing.T) {
	c, s := newTestCoordinator(t)
	ctx := context.Background()

	const n = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		taskIDs = make(map[string]struct{})
	)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := c.Lookup(ctx, "newcomer")
			if err != nil {
				t.Errorf("Lookup failed: %v", err)
				return
			}
			if res.Kind != ResultPending {
				t.Errorf("Expected pending, got kind %v", res.Kind)
				return
			}
			mu.Lock()
			taskIDs[res.TaskID] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(taskIDs) != 1 {
		t.Errorf("Expected all requesters to share one task id, got %d", len(taskIDs))
	}
	if qn, _ := s.QueueLen(ctx); qn != 1 {
		t.Errorf("Expected exactly one queued job, got %d", qn)
	}
}

func TestLookupAbsentExpiredEntry(t *testing.T) {
	c, s := newTestCoordinator(t)
	ctx := context.Background()

	// Older than the stale threshold: classifies as absent even though the
	// record may still be physically present.
	putEntry(t, s, "old-timer", 30*time.Hour)

	res, err := c.Lookup(ctx, "old-timer")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if res.Kind != ResultPending {
		t.Fatalf("Expected pending for over-age entry, got kind %v", res.Kind)
	}
}

func TestTaskEarlyCompletionOnFreshCache(t *testing.T) {
	c, s := newTestCoordinator(t)
	ctx := context.Background()

	task := &store.Task{ID: "t1", Key: "alice", Status: store.TaskProcessing, CreatedAt: time.Now().UTC()}
	if err := s.CreateTask(ctx, task, time.Minute); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	// Fresh data appears for the key while the task is still processing.
	putEntry(t, s, "alice", time.Minute)

	got, err := c.Task(ctx, "t1")
	if err != nil {
		t.Fatalf("Task failed: %v", err)
	}
	if got.Status != store.TaskCompleted {
		t.Fatalf("Expected early completion, got %s", got.Status)
	}
	if string(got.Result) != `[{"id":1}]` {
		t.Errorf("Expected cached payload as result, got %s", got.Result)
	}
}

func TestTaskStaysProcessingOnStaleCache(t *testing.T) {
	c, s := newTestCoordinator(t)
	ctx := context.Background()

	task := &store.Task{ID: "t1", Key: "alice", Status: store.TaskProcessing, CreatedAt: time.Now().UTC()}
	if err := s.CreateTask(ctx, task, time.Minute); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	// Stale data is exactly what this task is refreshing; it must not
	// short-circuit the fetch.
	putEntry(t, s, "alice", 10*time.Hour)

	got, err := c.Task(ctx, "t1")
	if err != nil {
		t.Fatalf("Task failed: %v", err)
	}
	if got.Status != store.TaskProcessing {
		t.Errorf("Expected task to stay processing, got %s", got.Status)
	}
}

func TestTaskUnknown(t *testing.T) {
	c, _ := newTestCoordinator(t)

	_, err := c.Task(context.Background(), "missing")
	if !store.IsNotFound(err) {
		t.Fatalf("Expected not-found, got %v", err)
	}
}
