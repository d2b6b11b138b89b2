package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected string
	}{
		{
			name:     "without underlying error",
			err:      New(CodeUsageError, "symbol map already released"),
			expected: "[USAGE_ERROR] symbol map already released",
		},
		{
			name:     "with underlying error",
			err:      Wrap(CodeIOError, "read header", errors.New("unexpected EOF")),
			expected: "[IO_ERROR] read header: unexpected EOF",
		},
		{
			name:     "format error with offset",
			err:      FormatErrorf(8, "format version", 1, 7),
			expected: "[FORMAT_ERROR] format version at offset 8: expected 1, got 7",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	underlying := errors.New("underlying error")
	err := Wrap(CodeStorageError, "upload failed", underlying)

	assert.Equal(t, underlying, err.Unwrap())
	assert.ErrorIs(t, err, underlying)
}

func TestAppError_Is(t *testing.T) {
	err1 := New(CodeFormatError, "bad magic")
	err2 := New(CodeFormatError, "bad version")
	err3 := New(CodeUsageError, "released")

	assert.True(t, errors.Is(err1, err2))
	assert.False(t, errors.Is(err1, err3))
}

func TestClassifiers(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
		want  bool
	}{
		{"format", FormatErrorf(0, "magic", "BINDEPS", "junk"), IsFormatError, true},
		{"wrapped format", fmt.Errorf("open: %w", FormatErrorf(0, "magic", 1, 2)), IsFormatError, true},
		{"usage", Usagef("collector released"), IsUsageError, true},
		{"usage is not format", Usagef("collector released"), IsFormatError, false},
		{"io", Wrap(CodeIOError, "mmap", errors.New("ENODEV")), IsIOError, true},
		{"invalid input", New(CodeInvalidInput, "empty name"), IsInvalidInput, true},
		{"not found", ErrNotFound, IsNotFound, true},
		{"nil", nil, IsUsageError, false},
		{"plain", errors.New("boom"), IsFormatError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.check(tt.err))
		})
	}
}

func TestGetErrorCode(t *testing.T) {
	assert.Equal(t, CodeUsageError, GetErrorCode(Usagef("x")))
	assert.Equal(t, CodeFormatError, GetErrorCode(fmt.Errorf("wrap: %w", ErrFormatError)))
	assert.Equal(t, CodeUnknown, GetErrorCode(errors.New("plain")))
}

func TestGetErrorMessage(t *testing.T) {
	assert.Equal(t, "empty name", GetErrorMessage(New(CodeInvalidInput, "empty name")))
	assert.Equal(t, "plain", GetErrorMessage(errors.New("plain")))
	assert.Equal(t, "", GetErrorMessage(nil))
}
