package devops

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates the requested remote resource does not exist.
// Callers treat it as an explicit empty result, not a failure.
var ErrNotFound = errors.New("remote resource not found")

// TransientError indicates a retryable remote failure: network blip,
// timeout, 5xx response or malformed response body.
type TransientError struct {
	Op     string
	Status int
	Err    error
}

func (e *TransientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transient failure during %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("transient failure during %s: status %d", e.Op, e.Status)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// AuthError indicates the credential was rejected (401/403).
// It is never retried and fails the current project immediately.
type AuthError struct {
	Op     string
	Status int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication rejected (status %d) during %s", e.Status, e.Op)
}

// FatalError indicates an unclassified or non-recoverable remote failure,
// including transient retry exhaustion.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal failure during %s: %v", e.Op, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsAuth reports whether err is a credential rejection.
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsNotFound reports whether err means the remote resource is absent.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
