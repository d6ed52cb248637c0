package client

import (
	"testing"
	"time"
)

func TestBackoffSchedule(t *testing.T) {
	b := DefaultBackoff()

	want := []time.Duration{
		2000 * time.Millisecond,
		3000 * time.Millisecond,
		4500 * time.Millisecond,
		6750 * time.Millisecond,
		10000 * time.Millisecond, // 10125ms capped
		10000 * time.Millisecond,
	}

	for attempt, expected := range want {
		if got := b.Delay(attempt); got != expected {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, expected)
		}
	}
}

func TestBackoffDefaults(t *testing.T) {
	var b Backoff
	b.applyDefaults()

	if b.Initial != 2*time.Second {
		t.Errorf("Expected initial 2s, got %v", b.Initial)
	}
	if b.Multiplier != 1.5 {
		t.Errorf("Expected multiplier 1.5, got %v", b.Multiplier)
	}
	if b.Max != 10*time.Second {
		t.Errorf("Expected max 10s, got %v", b.Max)
	}
	if b.MaxAttempts != 30 {
		t.Errorf("Expected 30 attempts, got %d", b.MaxAttempts)
	}
}
