package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestWriteJSON_SetsStatusAndContentType(t *testing.T) {
	w := httptest.NewRecorder()

	writeJSON(w, http.StatusAccepted, errorResponse("nope"))

	if w.Code != http.StatusAccepted {
		t.Errorf("Expected status %d, got %d", http.StatusAccepted, w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected application/json, got %q", ct)
	}

	var resp Response
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Status != "error" || resp.Error != "nope" {
		t.Errorf("Unexpected response: %+v", resp)
	}
}

func TestWritePayload_FreshnessHeaders(t *testing.T) {
	w := httptest.NewRecorder()

	writePayload(w, []byte(`[{"id":1}]`), true, 90*time.Minute)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	if got := w.Header().Get("Stale"); got != "true" {
		t.Errorf("Expected Stale true, got %q", got)
	}
	if got := w.Header().Get("Age"); got != "5400" {
		t.Errorf("Expected Age 5400, got %q", got)
	}
	if w.Body.String() != `[{"id":1}]` {
		t.Errorf("Payload must be written verbatim, got %s", w.Body.String())
	}
}

func TestWritePayload_OmitsAgeWhenUnknown(t *testing.T) {
	w := httptest.NewRecorder()

	writePayload(w, []byte(`[]`), false, 0)

	if got := w.Header().Get("Stale"); got != "false" {
		t.Errorf("Expected Stale false, got %q", got)
	}
	if got := w.Header().Get("Age"); got != "" {
		t.Errorf("Expected no Age header, got %q", got)
	}
}

func TestWritePending_HeaderMatchesBodyHint(t *testing.T) {
	w := httptest.NewRecorder()

	writePending(w, "task-1", 2*time.Second)

	if w.Code != http.StatusAccepted {
		t.Errorf("Expected status %d, got %d", http.StatusAccepted, w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "2" {
		t.Errorf("Expected Retry-After 2, got %q", got)
	}

	var resp PendingResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Status != "processing" || resp.TaskID != "task-1" || resp.RetryAfter != 2 {
		t.Errorf("Unexpected pending body: %+v", resp)
	}
}

func TestWritePending_RoundsUpToOneSecond(t *testing.T) {
	w := httptest.NewRecorder()

	writePending(w, "task-2", 100*time.Millisecond)

	if got := w.Header().Get("Retry-After"); got != "1" {
		t.Errorf("Expected Retry-After 1, got %q", got)
	}
}
