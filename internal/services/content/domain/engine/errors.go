package engine

import (
	"errors"

	apperrors "github.com/louisbranch/contentstream/internal/platform/errors"
	"github.com/louisbranch/contentstream/internal/services/content/domain/command"
)

var (
	// ErrRegistryRequired indicates a handler without a registry.
	ErrRegistryRequired = errors.New("engine registry is required")
	// ErrStreamsRequired indicates a handler without stream access.
	ErrStreamsRequired = errors.New("content streams are required")
	// ErrDeciderRequired indicates a registered command without a decider.
	ErrDeciderRequired = errors.New("decider is required")
)

// appendError marks an event log append failure. Unlike rejections it is an
// infrastructure fault of the commit itself.
type appendError struct {
	err error
}

func (e *appendError) Error() string { return "append events: " + e.err.Error() }
func (e *appendError) Unwrap() error { return e.err }

// IsAppendFailure reports whether err came from appending to the event log
// rather than from validating or deciding the command.
func IsAppendFailure(err error) bool {
	var target *appendError
	return errors.As(err, &target)
}

// IsCommandFailure reports whether err means the command itself cannot apply:
// a rejection, or a coded validation, relational, precondition or not-found
// error. Append failures and uncoded errors are infrastructure faults.
func IsCommandFailure(err error) bool {
	if err == nil || IsAppendFailure(err) {
		return false
	}
	var rejection *command.RejectionError
	if errors.As(err, &rejection) {
		return true
	}
	switch apperrors.Class(err) {
	case apperrors.ClassInfrastructure, apperrors.ClassConcurrency:
		return false
	default:
		return true
	}
}

// nonRetryableError wraps an error to signal that retrying the same command
// against the same state cannot succeed.
type nonRetryableError struct {
	err error
}

func (e *nonRetryableError) Error() string { return e.err.Error() }
func (e *nonRetryableError) Unwrap() error { return e.err }

// NonRetryable returns true from IsNonRetryable checks.
func (e *nonRetryableError) NonRetryable() bool { return true }

func wrapNonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &nonRetryableError{err: err}
}

// IsNonRetryable returns true when the error (or any error in its chain)
// signals that the operation must not be retried.
func IsNonRetryable(err error) bool {
	var target interface{ NonRetryable() bool }
	if errors.As(err, &target) {
		return target.NonRetryable()
	}
	return false
}
