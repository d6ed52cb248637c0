// Package client is the Go consumer of the swr HTTP API. It hides the
// 202-and-poll contract behind a single blocking call: a lookup either
// returns data (possibly stale, with its age) or a terminal typed error.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/betterforces/swr/internal/logger"
)

// Data is a successful lookup result.
type Data struct {
	// Payload is the cached upstream document, verbatim.
	Payload json.RawMessage

	// Stale reports whether the payload came from the stale window. A
	// background refresh is already underway when true.
	Stale bool

	// Age is how long ago the payload was fetched from upstream.
	Age time.Duration
}

type pendingBody struct {
	Status     string `json:"status"`
	TaskID     string `json:"task_id"`
	RetryAfter int    `json:"retry_after"`
}

type failedBody struct {
	Status    string `json:"status"`
	Error     string `json:"error"`
	ErrorKind string `json:"error_kind"`
}

// Config configures a Client.
type Config struct {
	// BaseURL is the server root, e.g. "http://localhost:8080".
	BaseURL string

	// Timeout bounds each individual HTTP request.
	// Default: 15s
	Timeout time.Duration

	// Backoff is the polling schedule. Zero value means DefaultBackoff.
	Backoff Backoff
}

// Client talks to a swr server.
type Client struct {
	baseURL string
	http    *retryablehttp.Client
	backoff Backoff

	// sleep is swappable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Client.
//
// Transport-level failures and 429 responses are retried a bounded number of
// times inside each request. A 429 that survives those retries surfaces as a
// KindRateLimited error; server 5xx responses are NOT retried because in this
// protocol they carry task failure bodies, not transient conditions.
func New(cfg Config) *Client {
	cfg.Backoff.applyDefaults()
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	rc := retryablehttp.NewClient()
	rc.Logger = nil
	rc.RetryMax = 3
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if err != nil {
			return true, nil
		}
		return resp.StatusCode == http.StatusTooManyRequests, nil
	}
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    rc,
		backoff: cfg.Backoff,
		sleep:   sleepCtx,
	}
}

// Submissions looks up the cached submissions for handle, blocking through
// the poll cycle when the server answers 202.
//
// Returns:
//   - Data on success, with staleness and age populated from the response
//   - *Error with KindRateLimited, KindPollTimeout, KindTaskFailed or
//     KindTransport on terminal failure
func (c *Client) Submissions(ctx context.Context, handle string) (*Data, error) {
	resp, err := c.get(ctx, "/users/"+url.PathEscape(handle)+"/submissions")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return parseData(resp)
	case http.StatusAccepted:
		var pending pendingBody
		if err := json.NewDecoder(resp.Body).Decode(&pending); err != nil {
			return nil, &Error{Kind: KindTransport, Message: "malformed pending response", Err: err}
		}
		return c.pollTask(ctx, pending)
	case http.StatusTooManyRequests:
		return nil, &Error{Kind: KindRateLimited, Message: "server rate limit exceeded"}
	default:
		return nil, unexpectedStatus(resp)
	}
}

// pollTask waits out a refresh task until it resolves or the polling budget
// runs dry. The server's retry_after hint seeds the first wait; later waits
// follow the geometric backoff schedule.
func (c *Client) pollTask(ctx context.Context, pending pendingBody) (*Data, error) {
	wait := c.backoff.Delay(0)
	if pending.RetryAfter > 0 {
		wait = time.Duration(pending.RetryAfter) * time.Second
	}

	for attempt := 0; attempt < c.backoff.MaxAttempts; attempt++ {
		if err := c.sleep(ctx, wait); err != nil {
			return nil, &Error{Kind: KindTransport, Message: "polling interrupted", Err: err}
		}
		wait = c.backoff.Delay(attempt + 1)

		logger.DebugCtx(ctx, "Polling refresh task",
			logger.KeyTaskID, pending.TaskID, logger.KeyAttempt, attempt+1)

		data, done, err := c.pollOnce(ctx, pending.TaskID)
		if err != nil {
			return nil, err
		}
		if done {
			return data, nil
		}
	}

	return nil, &Error{
		Kind:    KindPollTimeout,
		Message: fmt.Sprintf("task %s did not resolve within %d polls", pending.TaskID, c.backoff.MaxAttempts),
	}
}

// pollOnce checks the task endpoint a single time. done is false while the
// task is still processing.
func (c *Client) pollOnce(ctx context.Context, taskID string) (data *Data, done bool, err error) {
	resp, err := c.get(ctx, "/tasks/"+url.PathEscape(taskID))
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		d, err := parseData(resp)
		return d, err == nil, err
	case http.StatusAccepted:
		io.Copy(io.Discard, resp.Body)
		return nil, false, nil
	case http.StatusNotFound:
		return nil, false, &Error{Kind: KindTaskFailed, Message: "task not found or expired"}
	case http.StatusInternalServerError:
		var failed failedBody
		if decodeErr := json.NewDecoder(resp.Body).Decode(&failed); decodeErr != nil || failed.Status != "failed" {
			return nil, false, unexpectedStatus(resp)
		}
		msg := failed.Error
		if failed.ErrorKind != "" {
			msg = fmt.Sprintf("%s (%s)", failed.Error, failed.ErrorKind)
		}
		return nil, false, &Error{Kind: KindTaskFailed, Message: msg}
	case http.StatusTooManyRequests:
		return nil, false, &Error{Kind: KindRateLimited, Message: "server rate limit exceeded"}
	default:
		return nil, false, unexpectedStatus(resp)
	}
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Message: "building request", Err: err}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Message: "request failed", Err: err}
	}
	return resp, nil
}

func parseData(resp *http.Response) (*Data, error) {
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Message: "reading payload", Err: err}
	}

	data := &Data{Payload: payload}
	data.Stale = resp.Header.Get("Stale") == "true"
	if age := resp.Header.Get("Age"); age != "" {
		if secs, err := strconv.Atoi(age); err == nil {
			data.Age = time.Duration(secs) * time.Second
		}
	}
	return data, nil
}

func unexpectedStatus(resp *http.Response) *Error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &Error{
		Kind:    KindTransport,
		Message: fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
