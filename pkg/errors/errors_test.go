package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeInvalidInput, "test message: %s", "value")

	if err.Code != ErrCodeInvalidInput {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeInvalidInput)
	}

	if err.Message != "test message: value" {
		t.Errorf("Message = %v, want %v", err.Message, "test message: value")
	}

	expected := "INVALID_INPUT: test message: value"
	if err.Error() != expected {
		t.Errorf("Error() = %v, want %v", err.Error(), expected)
	}
}

func TestWrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := Wrap(ErrCodeIntegrity, cause, "page 7 has two successors")

	if err.Code != ErrCodeIntegrity {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeIntegrity)
	}

	if err.Cause != cause {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}

	unwrapped := errors.Unwrap(err)
	if unwrapped != cause {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, cause)
	}

	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}
}

func TestIs(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		code     Code
		expected bool
	}{
		{
			name:     "matching code",
			err:      New(ErrCodeInvalidInput, "test"),
			code:     ErrCodeInvalidInput,
			expected: true,
		},
		{
			name:     "non-matching code",
			err:      New(ErrCodeInvalidInput, "test"),
			code:     ErrCodeIntegrity,
			expected: false,
		},
		{
			name:     "wrapped error",
			err:      Wrap(ErrCodeCancelled, New(ErrCodeInvalidInput, "inner"), "outer"),
			code:     ErrCodeCancelled,
			expected: true,
		},
		{
			name:     "fmt wrapped",
			err:      fmt.Errorf("basin: %w", New(ErrCodeIntegrity, "inner")),
			code:     ErrCodeIntegrity,
			expected: true,
		},
		{
			name:     "non-Error type",
			err:      errors.New("plain error"),
			code:     ErrCodeInvalidInput,
			expected: false,
		},
		{
			name:     "nil error",
			err:      nil,
			code:     ErrCodeInvalidInput,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, tt.code); got != tt.expected {
				t.Errorf("Is() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Code
	}{
		{
			name:     "Error type",
			err:      New(ErrCodePageNotFound, "test"),
			expected: ErrCodePageNotFound,
		},
		{
			name:     "plain error",
			err:      errors.New("plain"),
			expected: "",
		},
		{
			name:     "nil",
			err:      nil,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.expected {
				t.Errorf("GetCode() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "Error type",
			err:      New(ErrCodeInvalidInput, "friendly message"),
			expected: "friendly message",
		},
		{
			name:     "plain error",
			err:      errors.New("plain error"),
			expected: "plain error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UserMessage(tt.err); got != tt.expected {
				t.Errorf("UserMessage() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestCancelled(t *testing.T) {
	if Cancelled(nil, "basin") != nil {
		t.Error("Cancelled(nil) should return nil")
	}

	err := Cancelled(context.Canceled, "basin")
	if !Is(err, ErrCodeCancelled) {
		t.Errorf("code = %v, want %v", GetCode(err), ErrCodeCancelled)
	}
	if !errors.Is(err, context.Canceled) {
		t.Error("context.Canceled should stay in the chain")
	}
	if !IsCancelled(err) || !IsCancelled(context.Canceled) {
		t.Error("IsCancelled should accept coded and raw cancellation")
	}
	if IsCancelled(New(ErrCodeInternal, "boom")) {
		t.Error("internal error is not a cancellation")
	}
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{New(ErrCodeInvalidInput, "x"), true},
		{New(ErrCodeIntegrity, "x"), true},
		{New(ErrCodeInternal, "x"), true},
		{New(ErrCodeResourceExceeded, "x"), false},
		{Cancelled(context.Canceled, "x"), false},
		{errors.New("plain"), false},
	}

	for _, tt := range tests {
		if got := IsFatal(tt.err); got != tt.want {
			t.Errorf("IsFatal(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
