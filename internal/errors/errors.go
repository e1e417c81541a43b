// Package errors provides the domain error taxonomy shared by the sync engine,
// the repositories and the reference server.
//
// Usage:
//
//	// Remote client - classify failures
//	if resp.StatusCode >= 400 {
//	    return errors.RemoteRejected(resp.StatusCode, "update rejected")
//	}
//
//	// Engine - absorb connectivity failures into the queue
//	if errors.Is(err, errors.ErrNetworkUnavailable) {
//	    return e.enqueue(ctx, op)
//	}
//
//	// Repository - roll back optimistic state on genuine rejections
//	if errors.Is(err, errors.ErrRemoteRejected) {
//	    cache.Rollback(snapshot)
//	}
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
	New    = errors.New
)

// Code represents a machine-readable error code.
type Code string

// Error codes used throughout the application.
const (
	// CodeNetworkUnavailable means the server could not be reached. Expected while
	// offline; the engine absorbs it into the pending queue.
	CodeNetworkUnavailable Code = "NETWORK_UNAVAILABLE"
	// CodeRemoteRejected means the server answered with a non-2xx status.
	CodeRemoteRejected Code = "REMOTE_REJECTED"
	// CodeLocalPersistence means a local store read or write failed.
	CodeLocalPersistence Code = "LOCAL_PERSISTENCE_FAILURE"
	// CodeDataUnavailable means neither the server nor the local store had the data.
	CodeDataUnavailable Code = "DATA_UNAVAILABLE"

	CodeNotFound   Code = "NOT_FOUND"
	CodeValidation Code = "VALIDATION"
	CodeConflict   Code = "CONFLICT"
	CodeInternal   Code = "INTERNAL"
)

// HTTPStatus returns the appropriate HTTP status code for an error code.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound, CodeDataUnavailable:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNetworkUnavailable:
		return http.StatusServiceUnavailable
	case CodeRemoteRejected:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error is a domain error with a code, message, and optional details.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	// RemoteStatus is the HTTP status returned by the server for CodeRemoteRejected.
	RemoteStatus int `json:"remote_status,omitempty"`
	cause        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target matches this error.
// Matches if target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// HTTPStatus returns the HTTP status code for this error.
func (e *Error) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a new error with additional details.
func (e *Error) WithDetails(details any) *Error {
	clone := *e
	clone.Details = details
	return &clone
}

// WithCause wraps an underlying error.
func (e *Error) WithCause(err error) *Error {
	clone := *e
	clone.cause = err
	return &clone
}

// Sentinel errors for use with errors.Is().
var (
	ErrNetworkUnavailable = &Error{Code: CodeNetworkUnavailable, Message: "network unavailable"}
	ErrRemoteRejected     = &Error{Code: CodeRemoteRejected, Message: "remote rejected"}
	ErrLocalPersistence   = &Error{Code: CodeLocalPersistence, Message: "local persistence failure"}
	ErrDataUnavailable    = &Error{Code: CodeDataUnavailable, Message: "data unavailable"}
	ErrNotFound           = &Error{Code: CodeNotFound, Message: "not found"}
	ErrValidation         = &Error{Code: CodeValidation, Message: "validation error"}
	ErrConflict           = &Error{Code: CodeConflict, Message: "conflict"}
	ErrInternal           = &Error{Code: CodeInternal, Message: "internal error"}
)

// NetworkUnavailable wraps a transport failure.
func NetworkUnavailable(err error, msg string) *Error {
	return &Error{Code: CodeNetworkUnavailable, Message: msg, cause: err}
}

// RemoteRejected creates an error for a non-2xx server answer.
func RemoteRejected(status int, msg string) *Error {
	return &Error{Code: CodeRemoteRejected, Message: msg, RemoteStatus: status}
}

// LocalPersistence wraps a local store failure.
func LocalPersistence(err error, msg string) *Error {
	return &Error{Code: CodeLocalPersistence, Message: msg, cause: err}
}

// DataUnavailable wraps the remote failure that left a read with no data.
func DataUnavailable(err error, msg string) *Error {
	return &Error{Code: CodeDataUnavailable, Message: msg, cause: err}
}

// NotFound creates a not found error.
func NotFound(msg string) *Error {
	return &Error{Code: CodeNotFound, Message: msg}
}

// NotFoundf creates a not found error with formatted message.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Validation creates a validation error.
func Validation(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg}
}

// Validationf creates a validation error with formatted message.
func Validationf(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// ValidationWithDetails creates a validation error with details.
func ValidationWithDetails(msg string, details any) *Error {
	return &Error{Code: CodeValidation, Message: msg, Details: details}
}

// Conflict creates a conflict error.
func Conflict(msg string) *Error {
	return &Error{Code: CodeConflict, Message: msg}
}

// Internal creates an internal error.
func Internal(msg string) *Error {
	return &Error{Code: CodeInternal, Message: msg}
}

// Wrap wraps an error with a code and message.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, cause: err}
}

// Wrapf wraps an error with a code and formatted message.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: err}
}

// RemoteStatusOf returns the server status carried by a RemoteRejected error, or 0.
func RemoteStatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) && e.Code == CodeRemoteRejected {
		return e.RemoteStatus
	}
	return 0
}
