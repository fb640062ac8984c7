// Package apperr defines the error taxonomy returned by core operations.
package apperr

import (
	"errors"
	"net/http"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeUnknown Code = "UNKNOWN"

	// Caller errors
	CodeValidation             Code = "VALIDATION"
	CodeNotFoundOrUnauthorized Code = "NOT_FOUND_OR_UNAUTHORIZED"
	CodeForbidden              Code = "FORBIDDEN"

	// Capacity and registration errors
	CodeCapacityViolation Code = "CAPACITY_VIOLATION"
	CodeEventNotApproved  Code = "EVENT_NOT_APPROVED"
	CodeEventPassed       Code = "EVENT_PASSED"
	CodeEventFull         Code = "EVENT_FULL"
	CodeAlreadyRegistered Code = "ALREADY_REGISTERED"

	// Moderation errors
	CodeInvalidTransition Code = "INVALID_TRANSITION"

	// Infrastructure errors
	CodeStorageUnavailable Code = "STORAGE_UNAVAILABLE"
)

// HTTPStatus maps a code to the HTTP status used when rendering it.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFoundOrUnauthorized:
		return http.StatusNotFound
	case CodeForbidden:
		return http.StatusForbidden
	case CodeCapacityViolation:
		return http.StatusUnprocessableEntity
	case CodeEventNotApproved,
		CodeEventPassed,
		CodeEventFull,
		CodeAlreadyRegistered,
		CodeInvalidTransition:
		return http.StatusConflict
	case CodeStorageUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is a typed failure of a core operation.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Code) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Code) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New returns an error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap returns an error with the given code that wraps err.
func Wrap(code Code, err error, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Storage wraps an infrastructure failure. Errors that already carry a code pass through.
func Storage(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return Wrap(CodeStorageUnavailable, err, "storage unavailable")
}

// CodeOf extracts the error code from any error.
// Returns CodeUnknown if the error is not an *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// Is checks if the error has the specified code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

// MessageOf returns the user-facing message of a typed error, or a generic one.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "an unexpected error occurred"
}
