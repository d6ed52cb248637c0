package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/betterforces/swr/internal/logger"
)

// Response is the JSON envelope for non-payload responses (health, errors,
// task states). Payload-bearing 200s write the cached payload verbatim with
// freshness headers instead; the payload is opaque to this service.
type Response struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// PendingResponse is the 202 body handing the caller a pollable task handle.
type PendingResponse struct {
	Status     string `json:"status"`
	TaskID     string `json:"task_id"`
	RetryAfter int    `json:"retry_after"`
}

// FailedResponse is the body for a task that ended in failure.
type FailedResponse struct {
	Status    string `json:"status"`
	Error     string `json:"error"`
	ErrorKind string `json:"error_kind,omitempty"`
}

// writeJSON writes v as a JSON response with the given status code.
//
// Encoding is done to a buffer first so an encoding failure can still
// produce an error response before any headers are sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		logger.Error("Failed to encode JSON response", logger.KeyError, err)
		http.Error(w, `{"status":"error","error":"failed to encode response"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// writePayload writes raw cached data with freshness headers: "Stale" is
// always present, "Age" when the entry age is known.
func writePayload(w http.ResponseWriter, payload []byte, stale bool, age time.Duration) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Stale", strconv.FormatBool(stale))
	if age > 0 {
		w.Header().Set("Age", strconv.Itoa(int(age.Seconds())))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

// writePending writes the 202 handle response with a Retry-After header
// matching the body hint.
func writePending(w http.ResponseWriter, taskID string, retryAfter time.Duration) {
	secs := int(retryAfter.Seconds())
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	writeJSON(w, http.StatusAccepted, PendingResponse{
		Status:     "processing",
		TaskID:     taskID,
		RetryAfter: secs,
	})
}

// healthyResponse creates a successful health check response.
func healthyResponse(data any) Response {
	return Response{Status: "healthy", Timestamp: time.Now().UTC(), Data: data}
}

// unhealthyResponse creates a failed health check response.
func unhealthyResponse(errMsg string) Response {
	return Response{Status: "unhealthy", Timestamp: time.Now().UTC(), Error: errMsg}
}

// errorResponse creates a generic error response.
func errorResponse(errMsg string) Response {
	return Response{Status: "error", Timestamp: time.Now().UTC(), Error: errMsg}
}
