package store

import (
	"errors"
	"fmt"
)

// ErrorCode represents the type of store error that occurred.
type ErrorCode int

const (
	// ErrNotFound indicates the requested record does not exist or has expired.
	ErrNotFound ErrorCode = iota + 1

	// ErrInvalidTransition indicates a task status transition was rejected
	// because the task is already in a terminal state.
	ErrInvalidTransition

	// ErrUnavailable indicates the store could not complete the operation,
	// e.g. transaction conflict retries were exhausted.
	ErrUnavailable

	// ErrCorrupt indicates a stored record could not be decoded.
	ErrCorrupt
)

func (c ErrorCode) String() string {
	switch c {
	case ErrNotFound:
		return "not_found"
	case ErrInvalidTransition:
		return "invalid_transition"
	case ErrUnavailable:
		return "unavailable"
	case ErrCorrupt:
		return "corrupt"
	default:
		return fmt.Sprintf("unknown(%d)", int(c))
	}
}

// StoreError is the error type returned by Store operations. Callers branch
// on Code rather than matching message strings.
type StoreError struct {
	Code    ErrorCode
	Message string
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s: %s", e.Code, e.Message)
}

// IsNotFound reports whether err is a StoreError with code ErrNotFound.
func IsNotFound(err error) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Code == ErrNotFound
}

// IsInvalidTransition reports whether err is a StoreError with code
// ErrInvalidTransition.
func IsInvalidTransition(err error) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Code == ErrInvalidTransition
}

func notFound(what string) *StoreError {
	return &StoreError{Code: ErrNotFound, Message: what}
}
