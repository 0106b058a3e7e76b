// Package apierr defines the error type shared by the remote-service clients
// so the retry layer can classify transient vs. permanent failures.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error describes a failed remote call.
type Error struct {
	Service   string // assetstore, contentgen, imagegen, docedit, auth
	Status    int    // HTTP status, 0 for transport-level failures
	Message   string
	Transient bool // set for transport errors with no HTTP status
	Err       error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Service, e.Message, e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Service, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is worth retrying: rate limits,
// server-side errors, and transport failures. Auth failures, malformed
// requests, and missing remote resources are permanent.
func (e *Error) Retryable() bool {
	if e.Transient {
		return true
	}
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// New builds a permanent or retryable error from an HTTP status.
func New(service string, status int, message string) *Error {
	return &Error{Service: service, Status: status, Message: message}
}

// Wrap builds a transport-level (retryable) error around err.
func Wrap(service, message string, err error) *Error {
	return &Error{Service: service, Message: message, Transient: true, Err: err}
}

// IsRetryable reports whether err, anywhere in its chain, is a retryable
// remote failure. Unknown error types are treated as permanent.
func IsRetryable(err error) bool {
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return false
}
