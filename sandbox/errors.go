package sandbox

import (
	"context"
	"errors"
	"fmt"
)

// Error is a classified router failure. Message is safe to surface to the
// conversation layer; Detail carries the full diagnostic (raw response
// bodies, wrapped causes) and is only ever logged.
type Error struct {
	Outcome Outcome
	Message string
	Detail  string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return e.Message + ": " + e.Detail
	}
	return e.Message
}

// WithDetail attaches diagnostic detail and returns the error.
func (e *Error) WithDetail(detail string) *Error {
	e.Detail = detail
	return e
}

// ConfigErrorf reports an unknown backend or missing required configuration.
func ConfigErrorf(format string, args ...any) *Error {
	return &Error{Outcome: OutcomeConfigError, Message: fmt.Sprintf(format, args...)}
}

// AuthFailuref reports a failed credential acquisition or rejection.
func AuthFailuref(format string, args ...any) *Error {
	return &Error{Outcome: OutcomeAuthFailure, Message: fmt.Sprintf(format, args...)}
}

// Timeoutf reports an execution that exceeded its budget.
func Timeoutf(format string, args ...any) *Error {
	return &Error{Outcome: OutcomeTimeout, Message: fmt.Sprintf(format, args...)}
}

// BackendErrorf reports a remote service error or malformed response.
func BackendErrorf(format string, args ...any) *Error {
	return &Error{Outcome: OutcomeBackendError, Message: fmt.Sprintf(format, args...)}
}

// Classify maps an arbitrary error to its outcome. Unclassified errors count
// as backend errors.
func Classify(err error) Outcome {
	var e *Error
	if errors.As(err, &e) {
		return e.Outcome
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return OutcomeTimeout
	}
	return OutcomeBackendError
}
