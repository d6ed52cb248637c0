package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newFastClient builds a client against srv with sleeping and transport
// retries disabled so poll loops run instantly.
func newFastClient(srv *httptest.Server, backoff Backoff) *Client {
	c := New(Config{BaseURL: srv.URL, Timeout: 2 * time.Second, Backoff: backoff})
	c.http.RetryMax = 0
	c.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return c
}

func TestSubmissionsImmediateHit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/users/tourist/submissions", r.URL.Path)
		w.Header().Set("Stale", "true")
		w.Header().Set("Age", "7200")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`[{"id":1}]`))
	}))
	defer srv.Close()

	c := newFastClient(srv, DefaultBackoff())

	data, err := c.Submissions(context.Background(), "tourist")
	require.NoError(t, err)
	assert.Equal(t, `[{"id":1}]`, string(data.Payload))
	assert.True(t, data.Stale)
	assert.Equal(t, 2*time.Hour, data.Age)
}

func TestSubmissionsPollsUntilCompleted(t *testing.T) {
	var polls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/newcomer/submissions":
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusAccepted)
			w.Write([]byte(`{"status":"processing","task_id":"task-1","retry_after":2}`))
		case "/tasks/task-1":
			if polls.Add(1) < 3 {
				w.WriteHeader(http.StatusAccepted)
				w.Write([]byte(`{"status":"processing"}`))
				return
			}
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`[{"id":9}]`))
		default:
			t.Errorf("Unexpected path: %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := newFastClient(srv, DefaultBackoff())

	data, err := c.Submissions(context.Background(), "newcomer")
	require.NoError(t, err)
	assert.Equal(t, `[{"id":9}]`, string(data.Payload))
	assert.False(t, data.Stale)
	assert.EqualValues(t, 3, polls.Load())
}

func TestSubmissionsTaskFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/ghost/submissions":
			w.WriteHeader(http.StatusAccepted)
			w.Write([]byte(`{"status":"processing","task_id":"task-1","retry_after":2}`))
		case "/tasks/task-1":
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"status":"failed","error":"user \"ghost\" not found","error_kind":"not_found"}`))
		}
	}))
	defer srv.Close()

	c := newFastClient(srv, DefaultBackoff())

	_, err := c.Submissions(context.Background(), "ghost")
	require.Error(t, err)
	assert.Equal(t, KindTaskFailed, KindOf(err))
	assert.Contains(t, err.Error(), "not_found")
}

func TestSubmissionsTaskExpired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/slow/submissions":
			w.WriteHeader(http.StatusAccepted)
			w.Write([]byte(`{"status":"processing","task_id":"task-1","retry_after":2}`))
		case "/tasks/task-1":
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"status":"error","error":"task not found or expired"}`))
		}
	}))
	defer srv.Close()

	c := newFastClient(srv, DefaultBackoff())

	_, err := c.Submissions(context.Background(), "slow")
	require.Error(t, err)
	assert.Equal(t, KindTaskFailed, KindOf(err))
}

func TestSubmissionsRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"status":"error","error":"rate limit exceeded"}`))
	}))
	defer srv.Close()

	c := newFastClient(srv, DefaultBackoff())

	_, err := c.Submissions(context.Background(), "anyone")
	require.Error(t, err)
	assert.Equal(t, KindRateLimited, KindOf(err))
}

func TestSubmissionsPollBudgetExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/forever/submissions":
			w.WriteHeader(http.StatusAccepted)
			w.Write([]byte(`{"status":"processing","task_id":"task-1","retry_after":2}`))
		default:
			w.WriteHeader(http.StatusAccepted)
			w.Write([]byte(`{"status":"processing"}`))
		}
	}))
	defer srv.Close()

	backoff := DefaultBackoff()
	backoff.MaxAttempts = 3
	c := newFastClient(srv, backoff)

	_, err := c.Submissions(context.Background(), "forever")
	require.Error(t, err)
	assert.Equal(t, KindPollTimeout, KindOf(err))
}

func TestSubmissionsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := newFastClient(srv, DefaultBackoff())

	_, err := c.Submissions(context.Background(), "anyone")
	require.Error(t, err)
	assert.Equal(t, KindTransport, KindOf(err))
}
