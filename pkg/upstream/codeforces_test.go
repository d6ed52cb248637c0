package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(handler http.HandlerFunc) (*CodeforcesClient, *httptest.Server) {
	srv := httptest.NewServer(handler)
	return NewCodeforcesClient(srv.URL, 5*time.Second), srv
}

func TestFetchSuccess(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/user.status" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("handle"); got != "tourist" {
			t.Errorf("Unexpected handle: %q", got)
		}
		w.Write([]byte(`{"status":"OK","result":[{"id":1},{"id":2}]}`))
	})
	defer srv.Close()

	payload, err := c.Fetch(context.Background(), "tourist")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if string(payload) != `[{"id":1},{"id":2}]` {
		t.Errorf("Unexpected payload: %s", payload)
	}
}

func TestFetchNullResultNormalized(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"OK","result":null}`))
	})
	defer srv.Close()

	payload, err := c.Fetch(context.Background(), "quiet")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if string(payload) != "[]" {
		t.Errorf("Expected normalized empty array, got %s", payload)
	}
}

func TestFetchHandleNotFound(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		// Codeforces reports unknown handles with HTTP 200 + FAILED status.
		w.Write([]byte(`{"status":"FAILED","comment":"handles: User with handle ghostuser not found"}`))
	})
	defer srv.Close()

	_, err := c.Fetch(context.Background(), "ghostuser")
	if !IsNotFound(err) {
		t.Fatalf("Expected not-found kind, got %v", err)
	}
}

func TestFetchFailedStatusIsTransient(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"FAILED","comment":"Call limit exceeded"}`))
	})
	defer srv.Close()

	_, err := c.Fetch(context.Background(), "tourist")
	if err == nil {
		t.Fatal("Expected error")
	}
	if KindOf(err) != KindTransient {
		t.Errorf("Expected transient kind, got %v", KindOf(err))
	}
}

func TestFetchMalformedResponseIsTransient(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>gateway error</html>"))
	})
	defer srv.Close()

	_, err := c.Fetch(context.Background(), "tourist")
	if KindOf(err) != KindTransient {
		t.Fatalf("Expected transient kind, got %v", err)
	}
}

func TestFetchTransportErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	c := NewCodeforcesClient(srv.URL, time.Second)
	_, err := c.Fetch(context.Background(), "tourist")
	if KindOf(err) != KindTransient {
		t.Fatalf("Expected transient kind, got %v", err)
	}
}

func TestKindOfPlainError(t *testing.T) {
	if KindOf(context.DeadlineExceeded) != KindTransient {
		t.Error("Plain errors must default to transient")
	}
}
