package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/betterforces/swr/internal/logger"
)

const defaultTimeout = 30 * time.Second

// CodeforcesClient fetches a user's submissions from the Codeforces API.
//
// The API wraps every response in a {status, comment, result} envelope and
// reports errors (including unknown handles) with HTTP 200 plus
// status=FAILED, so classification happens on the envelope, not the HTTP
// status code.
type CodeforcesClient struct {
	baseURL string
	http    *http.Client
}

// NewCodeforcesClient creates a client against the given API base URL
// (e.g. "https://codeforces.com/api").
func NewCodeforcesClient(baseURL string, timeout time.Duration) *CodeforcesClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &CodeforcesClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// envelope is the Codeforces API response wrapper.
type envelope struct {
	Status  string          `json:"status"`
	Comment string          `json:"comment"`
	Result  json.RawMessage `json:"result"`
}

// Fetch retrieves all submissions for the given handle. The returned payload
// is the raw JSON array from the envelope's result field.
func (c *CodeforcesClient) Fetch(ctx context.Context, key string) (json.RawMessage, error) {
	u := fmt.Sprintf("%s/user.status?handle=%s", c.baseURL, url.QueryEscape(key))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &Error{Kind: KindTransient, Message: "building request", Err: err}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindTransient, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindTransient, Message: "reading response", Err: err}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &Error{
			Kind:    KindTransient,
			Message: fmt.Sprintf("decoding response (http %d)", resp.StatusCode),
			Err:     err,
		}
	}

	if env.Status != "OK" {
		if isHandleNotFound(env.Comment) {
			return nil, &Error{
				Kind:    KindNotFound,
				Message: fmt.Sprintf("user %q not found", key),
			}
		}
		return nil, &Error{
			Kind:    KindTransient,
			Message: fmt.Sprintf("api status %s: %s", env.Status, env.Comment),
		}
	}

	logger.Debug("Upstream fetch succeeded", logger.KeyKey, key, "bytes", len(env.Result))

	// A null result with status OK means the user exists but has no
	// submissions; normalize to an empty array.
	if len(env.Result) == 0 || string(env.Result) == "null" {
		return json.RawMessage("[]"), nil
	}
	return env.Result, nil
}

// isHandleNotFound recognizes the comment variants Codeforces uses for
// missing handles, e.g. "handles: User with handle ghostuser not found".
func isHandleNotFound(comment string) bool {
	if !strings.Contains(comment, "User with handle") {
		return false
	}
	return strings.Contains(comment, "not found") ||
		strings.Contains(comment, "does not exist") ||
		strings.Contains(comment, "does not have")
}
