package domain

import (
	"errors"
	"net/http"
)

// HTTPError defines errors that can be mapped to HTTP status codes and a
// stable client-facing error code. Implementing this interface enables
// extensible error handling in the HTTP layer.
type HTTPError interface {
	error
	StatusCode() int
	ErrorCode() string
}

// Error codes surfaced to clients in the {"error":{"code","message"}} body.
const (
	CodeBadRequest         = "BAD_REQUEST"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeNotFound           = "NOT_FOUND"
	CodeNoContinueFile     = "NO_CONTINUE_FILE"
	CodeImageTooLarge      = "IMAGE_TOO_LARGE"
	CodeFileTooLarge       = "FILE_TOO_LARGE"
	CodeUpstreamError      = "OPENROUTER_ERROR"
	CodeTimeout            = "TIMEOUT"
	CodeStreamError        = "STREAM_ERROR"
	CodeInternal           = "INTERNAL_ERROR"
)

// Error is a coded domain error carrying the HTTP status it maps to.
type Error struct {
	Code    string
	Status  int
	Message string
}

func (e *Error) Error() string   { return e.Message }
func (e *Error) StatusCode() int { return e.Status }
func (e *Error) ErrorCode() string {
	if e.Code == "" {
		return CodeInternal
	}
	return e.Code
}

// Is allows errors.Is matching against the sentinel for the same code.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Code == CodeNotFound
	case ErrValidation:
		return e.Code == CodeBadRequest
	case ErrUnauthorized:
		return e.Code == CodeUnauthorized || e.Code == CodeInvalidCredentials
	}
	return false
}

// Sentinel errors - use with errors.Is()
var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
)

// Constructors for the common cases.

func BadRequest(message string) *Error {
	return &Error{Code: CodeBadRequest, Status: http.StatusBadRequest, Message: message}
}

func Unauthorized(message string) *Error {
	return &Error{Code: CodeUnauthorized, Status: http.StatusUnauthorized, Message: message}
}

func InvalidCredentials(message string) *Error {
	return &Error{Code: CodeInvalidCredentials, Status: http.StatusUnauthorized, Message: message}
}

func NotFound(message string) *Error {
	return &Error{Code: CodeNotFound, Status: http.StatusNotFound, Message: message}
}

func NoContinueFile(message string) *Error {
	return &Error{Code: CodeNoContinueFile, Status: http.StatusBadRequest, Message: message}
}

func ImageTooLarge(message string) *Error {
	return &Error{Code: CodeImageTooLarge, Status: http.StatusRequestEntityTooLarge, Message: message}
}

func FileTooLarge(message string) *Error {
	return &Error{Code: CodeFileTooLarge, Status: http.StatusRequestEntityTooLarge, Message: message}
}

// UpstreamError wraps a non-2xx or malformed response from the completion
// provider. The upstream status is preserved when it is a valid HTTP status,
// otherwise 502 is used.
func UpstreamError(status int, message string) *Error {
	if status < 400 || status > 599 {
		status = http.StatusBadGateway
	}
	return &Error{Code: CodeUpstreamError, Status: status, Message: message}
}

func Timeout(message string) *Error {
	return &Error{Code: CodeTimeout, Status: http.StatusGatewayTimeout, Message: message}
}

func StreamError(message string) *Error {
	return &Error{Code: CodeStreamError, Status: http.StatusInternalServerError, Message: message}
}

func Internal(message string) *Error {
	return &Error{Code: CodeInternal, Status: http.StatusInternalServerError, Message: message}
}

// AsError normalizes any error into a coded *Error, defaulting to
// INTERNAL_ERROR for unclassified failures.
func AsError(err error) *Error {
	var coded *Error
	if errors.As(err, &coded) {
		return coded
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return NotFound(err.Error())
	case errors.Is(err, ErrValidation):
		return BadRequest(err.Error())
	case errors.Is(err, ErrUnauthorized):
		return Unauthorized(err.Error())
	}
	return Internal("internal server error")
}
