// Package apperr defines the application's error taxonomy.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes, taxonomy.
const (
	CodeNotFound           = "NOT_FOUND"
	CodeInvalidInput       = "INVALID_INPUT"
	CodeConflict           = "CONFLICT"
	CodeConfiguration      = "CONFIGURATION"
	CodeTransientExternal  = "TRANSIENT_EXTERNAL"
	CodeIntegrityViolation = "INTEGRITY_VIOLATION"
	CodeInternal           = "INTERNAL"
)

// AppError is a structured application error.
type AppError struct {
	Code    string
	Message string
	Status  int
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// HTTPStatus returns the HTTP-equivalent status code for this error.
func (e *AppError) HTTPStatus() int { return e.Status }

// New creates an AppError with no wrapped cause.
func New(code, message string, status int) *AppError {
	return &AppError{Code: code, Message: message, Status: status}
}

// Wrap creates an AppError wrapping an underlying cause.
func Wrap(err error, code, message string, status int) *AppError {
	return &AppError{Code: code, Message: message, Status: status, Err: err}
}

// NotFound builds a NotFound error: message, chat session, or classification
// id does not exist.
func NotFound(message string) *AppError {
	return New(CodeNotFound, message, http.StatusNotFound)
}

// InvalidInput builds an InvalidInput error: empty or malformed input.
func InvalidInput(message string) *AppError {
	return New(CodeInvalidInput, message, http.StatusBadRequest)
}

// Conflict builds a Conflict error: an already-running operation.
func Conflict(message string) *AppError {
	return New(CodeConflict, message, http.StatusConflict)
}

// Configuration builds a Configuration error: fatal at startup.
func Configuration(message string) *AppError {
	return New(CodeConfiguration, message, http.StatusInternalServerError)
}

// TransientExternal builds a TransientExternal error: network or provider
// failure (LLM, mail, DB).
func TransientExternal(message string, cause error) *AppError {
	return Wrap(cause, CodeTransientExternal, message, http.StatusBadGateway)
}

// Integrity builds an IntegrityViolation error: a storage invariant was
// broken; the surrounding transaction must roll back.
func Integrity(message string, cause error) *AppError {
	return Wrap(cause, CodeIntegrityViolation, message, http.StatusInternalServerError)
}

// IsNotFound reports whether err is (or wraps) a NotFound AppError.
func IsNotFound(err error) bool {
	return codeIs(err, CodeNotFound)
}

// IsConflict reports whether err is (or wraps) a Conflict AppError.
func IsConflict(err error) bool {
	return codeIs(err, CodeConflict)
}

func codeIs(err error, code string) bool {
	var ae *AppError
	return errors.As(err, &ae) && ae.Code == code
}
