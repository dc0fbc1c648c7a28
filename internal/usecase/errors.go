package usecase

import "fmt"

type ErrorCode string

const (
	ErrorMalformedInput ErrorCode = "MALFORMED_INPUT"
	ErrorValidation     ErrorCode = "VALIDATION_FAILED"
	ErrorUpstream       ErrorCode = "UPSTREAM_ERROR"
	ErrorInternal       ErrorCode = "INTERNAL_ERROR"
)

// Error is the failure type returned by the chat use cases. Reason is a stable
// snake_case identifier; Detail is a human readable explanation safe to return
// to the caller.
type Error struct {
	Code   ErrorCode
	Reason string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Message returns the text shown to the client for this error.
func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	if e.Detail != "" {
		return e.Detail
	}
	return e.Reason
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

func invalid(reason, format string, args ...any) *Error {
	return &Error{Code: ErrorValidation, Reason: reason, Detail: fmt.Sprintf(format, args...)}
}
