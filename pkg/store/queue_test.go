package store

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestQueueFIFO(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := s.EnqueueJob(ctx, fmt.Sprintf("key-%d", i)); err != nil {
			t.Fatalf("EnqueueJob failed: %v", err)
		}
	}

	n, err := s.QueueLen(ctx)
	if err != nil {
		t.Fatalf("QueueLen failed: %v", err)
	}
	if n != 5 {
		t.Fatalf("Expected queue length 5, got %d", n)
	}

	for i := 0; i < 5; i++ {
		job, err := s.PopJob(ctx, time.Second)
		if err != nil {
			t.Fatalf("PopJob failed: %v", err)
		}
		if job == nil {
			t.Fatalf("Expected job %d, got nil", i)
		}
		want := fmt.Sprintf("key-%d", i)
		if job.Key != want {
			t.Errorf("Expected %q at position %d, got %q", want, i, job.Key)
		}
	}

	n, err = s.QueueLen(ctx)
	if err != nil {
		t.Fatalf("QueueLen failed: %v", err)
	}
	if n != 0 {
		t.Errorf("Expected drained queue, got length %d", n)
	}
}

func TestPopJobTimeout(t *testing.T) {
	s := newTestStore(t)

	start := time.Now()
	job, err := s.PopJob(context.Background(), 100*time.Millisecond)
	if err != nil {
		t.Fatalf("PopJob failed: %v", err)
	}
	if job != nil {
		t.Fatalf("Expected nil job on timeout, got %+v", job)
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("PopJob returned before timeout: %v", elapsed)
	}
}

func TestPopJobWakesOnEnqueue(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	done := make(chan *Job, 1)
	go func() {
		job, err := s.PopJob(ctx, 5*time.Second)
		if err != nil {
			t.Errorf("PopJob failed: %v", err)
		}
		done <- job
	}()

	// Let the popper block first.
	time.Sleep(50 * time.Millisecond)
	if err := s.EnqueueJob(ctx, "woken"); err != nil {
		t.Fatalf("EnqueueJob failed: %v", err)
	}

	select {
	case job := <-done:
		if job == nil || job.Key != "woken" {
			t.Errorf("Expected job 'woken', got %+v", job)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("PopJob did not wake after enqueue")
	}
}

func TestPopJobCancelled(t *testing.T) {
	s := newTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := s.PopJob(ctx, 10*time.Second)
	if err != context.Canceled {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
}

func TestQueueSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := Open(Config{Path: dir})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := s.EnqueueJob(ctx, "durable"); err != nil {
		t.Fatalf("EnqueueJob failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s, err = Open(Config{Path: dir})
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer s.Close()

	job, err := s.PopJob(ctx, time.Second)
	if err != nil {
		t.Fatalf("PopJob after reopen failed: %v", err)
	}
	if job == nil || job.Key != "durable" {
		t.Fatalf("Expected job to survive reopen, got %+v", job)
	}
}
