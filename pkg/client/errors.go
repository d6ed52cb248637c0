package client

import (
	"errors"
	"fmt"
)

// ErrorKind classifies terminal client errors so callers can branch without
// string matching.
type ErrorKind string

const (
	// KindRateLimited means the server answered 429 and the bounded retries
	// were exhausted.
	KindRateLimited ErrorKind = "rate_limited"

	// KindPollTimeout means the refresh task did not resolve within the
	// polling budget.
	KindPollTimeout ErrorKind = "poll_timeout"

	// KindTaskFailed means the refresh task resolved to failed.
	KindTaskFailed ErrorKind = "task_failed"

	// KindTransport covers connection and protocol failures.
	KindTransport ErrorKind = "transport"
)

// Error is a terminal client error with a machine-readable kind.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the kind from an error, or "" when it is not a client
// Error.
func KindOf(err error) ErrorKind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}
