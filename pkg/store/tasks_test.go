package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func newProcessingTask(t *testing.T, s *Store, id, key string) {
	t.Helper()
	task := &Task{ID: id, Key: key, Status: TaskProcessing, CreatedAt: time.Now().UTC()}
	if err := s.CreateTask(context.Background(), task, time.Minute); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
}

func TestTaskLifecycleComplete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	newProcessingTask(t, s, "t1", "alice")

	got, err := s.GetTask(ctx, "t1")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.Status != TaskProcessing || got.Key != "alice" {
		t.Fatalf("Unexpected task: %+v", got)
	}

	result := json.RawMessage(`[{"id":42}]`)
	if err := s.CompleteTask(ctx, "t1", result, time.Minute); err != nil {
		t.Fatalf("CompleteTask failed: %v", err)
	}

	got, err = s.GetTask(ctx, "t1")
	if err != nil {
		t.Fatalf("GetTask after completion failed: %v", err)
	}
	if got.Status != TaskCompleted {
		t.Errorf("Expected completed, got %s", got.Status)
	}
	if string(got.Result) != `[{"id":42}]` {
		t.Errorf("Unexpected result: %s", got.Result)
	}
	if got.ErrorKind != FailureNone {
		t.Errorf("Expected no failure kind, got %q", got.ErrorKind)
	}
}

func TestTaskLifecycleFail(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	newProcessingTask(t, s, "t1", "ghost")

	if err := s.FailTask(ctx, "t1", FailureNotFound, "user not found", time.Minute); err != nil {
		t.Fatalf("FailTask failed: %v", err)
	}

	got, err := s.GetTask(ctx, "t1")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.Status != TaskFailed {
		t.Errorf("Expected failed, got %s", got.Status)
	}
	if got.ErrorKind != FailureNotFound {
		t.Errorf("Expected not_found kind, got %q", got.ErrorKind)
	}
	if got.Error != "user not found" {
		t.Errorf("Unexpected error message: %q", got.Error)
	}
}

func TestTaskTransitionIsAtMostOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	newProcessingTask(t, s, "t1", "alice")

	if err := s.CompleteTask(ctx, "t1", json.RawMessage(`[]`), time.Minute); err != nil {
		t.Fatalf("First transition failed: %v", err)
	}

	// A second terminal transition must be rejected and leave the record
	// untouched.
	err := s.FailTask(ctx, "t1", FailureTransient, "too late", time.Minute)
	if !IsInvalidTransition(err) {
		t.Fatalf("Expected invalid-transition error, got %v", err)
	}

	got, err := s.GetTask(ctx, "t1")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.Status != TaskCompleted {
		t.Errorf("Expected task to stay completed, got %s", got.Status)
	}
}

func TestCompleteTaskByRecordsProvenance(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	newProcessingTask(t, s, "related", "alice")

	if err := s.CompleteTaskBy(ctx, "related", json.RawMessage(`[]`), "winner", time.Minute); err != nil {
		t.Fatalf("CompleteTaskBy failed: %v", err)
	}

	got, err := s.GetTask(ctx, "related")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.Status != TaskCompleted {
		t.Errorf("Expected completed, got %s", got.Status)
	}
	if got.CompletedBy != "winner" {
		t.Errorf("Expected CompletedBy 'winner', got %q", got.CompletedBy)
	}
}

func TestGetTaskUnknown(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetTask(context.Background(), "never-existed")
	if !IsNotFound(err) {
		t.Fatalf("Expected not-found, got %v", err)
	}
}

func TestTaskRecordExpires(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	task := &Task{ID: "t1", Key: "alice", Status: TaskProcessing, CreatedAt: time.Now().UTC()}
	if err := s.CreateTask(ctx, task, 50*time.Millisecond); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	time.Sleep(120 * time.Millisecond)

	if _, err := s.GetTask(ctx, "t1"); !IsNotFound(err) {
		t.Fatalf("Expected expired task to read as not-found, got %v", err)
	}
}
