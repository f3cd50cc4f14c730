package model

import (
	"errors"
	"fmt"
)

// Standard error codes.
const (
	ErrNotFound          = "NOT_FOUND"
	ErrConflict          = "CONFLICT"
	ErrForbidden         = "FORBIDDEN"
	ErrValidationError   = "VALIDATION_ERROR"
	ErrInvalidTransition = "INVALID_TRANSITION"
	ErrConcurrencyError  = "CONCURRENCY_ERROR"
)

// Conflict reasons. A CONFLICT envelope always carries one of these so
// callers can pick the right remediation (wait-or-override vs.
// reload-and-retry).
const (
	ConflictLockedByOther   = "LOCKED_BY_OTHER"
	ConflictVersionMismatch = "VERSION_MISMATCH"
	ConflictConcurrentEdit  = "CONCURRENT_EDIT"
)

// ErrorEnvelope is the standard error value returned by the core.
// It implements the error interface.
type ErrorEnvelope struct {
	Code    string `json:"code"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *ErrorEnvelope) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s/%s: %s", e.Code, e.Reason, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewNotFoundError returns a NOT_FOUND error.
func NewNotFoundError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrNotFound, Message: msg}
}

// NewConflictError returns a CONFLICT error with the given reason.
func NewConflictError(reason, msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrConflict, Reason: reason, Message: msg}
}

// NewForbiddenError returns a FORBIDDEN error.
func NewForbiddenError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrForbidden, Message: msg}
}

// NewValidationError returns a VALIDATION_ERROR.
func NewValidationError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrValidationError, Message: msg}
}

// NewInvalidTransitionError returns an INVALID_TRANSITION error naming
// both the current and the requested status.
func NewInvalidTransitionError(from, to Status) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrInvalidTransition,
		Message: fmt.Sprintf("no transition from %q to %q", from, to),
	}
}

// NewConcurrencyError returns a CONCURRENCY_ERROR after retries on a
// version-number race are exhausted.
func NewConcurrencyError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrConcurrencyError, Message: msg}
}

// CodeOf returns the envelope code of err, or empty string if err is not
// an ErrorEnvelope. Infrastructure errors (store connectivity) are plain
// wrapped errors and report no code.
func CodeOf(err error) string {
	var env *ErrorEnvelope
	if errors.As(err, &env) {
		return env.Code
	}
	return ""
}

// ReasonOf returns the conflict reason of err, or empty string.
func ReasonOf(err error) string {
	var env *ErrorEnvelope
	if errors.As(err, &env) {
		return env.Reason
	}
	return ""
}
