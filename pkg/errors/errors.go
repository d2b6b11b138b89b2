// Package errors defines the error taxonomy shared by the index tooling.
package errors

import (
	"errors"
	"fmt"
)

// Error codes.
const (
	CodeUnknown       = "UNKNOWN_ERROR"
	CodeFormatError   = "FORMAT_ERROR"
	CodeUsageError    = "USAGE_ERROR"
	CodeIOError       = "IO_ERROR"
	CodeInvalidInput  = "INVALID_INPUT"
	CodeNotFound      = "NOT_FOUND"
	CodeConfigError   = "CONFIG_ERROR"
	CodeStorageError  = "STORAGE_ERROR"
	CodeDatabaseError = "DATABASE_ERROR"
)

// AppError represents an error with a code and message.
type AppError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether target is an AppError carrying the same code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new AppError.
func New(code string, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new AppError with a formatted message.
func Newf(code string, format string, args ...interface{}) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps an existing error with an AppError.
func Wrap(code string, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// FormatErrorf reports a malformed index file. The offset is the absolute
// byte offset in the file where the bad value was found.
func FormatErrorf(offset int64, what string, expected, actual interface{}) *AppError {
	return Newf(CodeFormatError, "%s at offset %d: expected %v, got %v", what, offset, expected, actual)
}

// Usagef reports a violated calling precondition.
func Usagef(format string, args ...interface{}) *AppError {
	return Newf(CodeUsageError, format, args...)
}

// Sentinel instances for errors.Is comparisons.
var (
	ErrFormatError   = New(CodeFormatError, "malformed index")
	ErrUsageError    = New(CodeUsageError, "usage error")
	ErrIOError       = New(CodeIOError, "i/o error")
	ErrInvalidInput  = New(CodeInvalidInput, "invalid input")
	ErrNotFound      = New(CodeNotFound, "resource not found")
	ErrConfigError   = New(CodeConfigError, "configuration error")
	ErrStorageError  = New(CodeStorageError, "storage error")
	ErrDatabaseError = New(CodeDatabaseError, "database error")
)

// IsFormatError checks if the error is an index format error.
func IsFormatError(err error) bool {
	return errors.Is(err, ErrFormatError)
}

// IsUsageError checks if the error is a usage error.
func IsUsageError(err error) bool {
	return errors.Is(err, ErrUsageError)
}

// IsIOError checks if the error is an i/o error.
func IsIOError(err error) bool {
	return errors.Is(err, ErrIOError)
}

// IsInvalidInput checks if the error is an invalid input error.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsNotFound checks if the error is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// GetErrorMessage extracts the error message from an error.
func GetErrorMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
