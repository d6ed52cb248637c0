// Package upstream defines the fetch collaborator contract and its error
// model. The worker is the only caller; it treats the payload as opaque.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Kind classifies upstream failures so callers can branch on class instead
// of matching message strings.
type Kind int

const (
	// KindTransient covers transport errors, malformed responses, and
	// upstream-side errors that a later fetch may not hit again.
	KindTransient Kind = iota

	// KindNotFound means the upstream authoritatively reported that the key
	// does not exist. Terminal; retrying will not help.
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	default:
		return "transient"
	}
}

// Error is the error type returned by fetchers.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream: %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("upstream: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the failure kind of err, defaulting to KindTransient for
// errors that did not originate from a fetcher.
func KindOf(err error) Kind {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Kind
	}
	return KindTransient
}

// IsNotFound reports whether err is an upstream not-found error.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// Fetcher fetches the raw payload for a key from the upstream data source.
// Implementations must honor ctx cancellation and return *Error for upstream
// failures.
type Fetcher interface {
	Fetch(ctx context.Context, key string) (json.RawMessage, error)
}
