// Package errors defines the sentinel errors shared by the index builder,
// reader, and search service, plus an AppError wrapper that carries an HTTP
// status for the serve command.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrFormat         = errors.New("invalid index format")
	ErrTermTooLong    = errors.New("term exceeds 65535 bytes")
	ErrIndexTooLarge  = errors.New("index exceeds 4 GiB offset range")
	ErrCorpusNotFound = errors.New("corpus not found")
	ErrQuerySyntax    = errors.New("malformed query")
	ErrInvalidInput   = errors.New("invalid input")
	ErrNotFound       = errors.New("not found")
	ErrLocked         = errors.New("index file is locked by another writer")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// FormatError reports a structurally invalid index file. It always matches
// ErrFormat under errors.Is.
type FormatError struct {
	Path   string
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	msg := fmt.Sprintf("%s: %s", ErrFormat.Error(), e.Reason)
	if e.Path != "" {
		msg = fmt.Sprintf("%s: %s", e.Path, msg)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *FormatError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrFormat}
	}
	return []error{ErrFormat, e.Err}
}

// Formatf builds a FormatError for path with a formatted reason.
func Formatf(path string, format string, args ...any) *FormatError {
	return &FormatError{Path: path, Reason: fmt.Sprintf(format, args...)}
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrQuerySyntax):
		return http.StatusBadRequest
	case errors.Is(err, ErrFormat), errors.Is(err, ErrCorpusNotFound):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Is and As re-export the standard helpers so callers importing this package
// under the name errors keep access to them.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }
