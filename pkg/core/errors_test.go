package core

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestExecutionError_Error(t *testing.T) {
	err := &ExecutionError{
		Category: ErrCategoryTransport,
		Code:     "test_error",
		Message:  "test message",
	}

	if got := err.Error(); got != "test message" {
		t.Errorf("Error() = %q, want %q", got, "test message")
	}
}

func TestExecutionError_ErrorWithCause(t *testing.T) {
	cause := errors.New("underlying error")
	err := &ExecutionError{
		Category: ErrCategoryTransport,
		Code:     "test_error",
		Message:  "test message",
		Cause:    cause,
	}

	got := err.Error()
	if !strings.Contains(got, "test message") {
		t.Errorf("Error() = %q, should contain 'test message'", got)
	}
	if !strings.Contains(got, "underlying error") {
		t.Errorf("Error() = %q, should contain 'underlying error'", got)
	}
}

func TestExecutionError_WithCause(t *testing.T) {
	original := ErrTransport
	cause := errors.New("adb: device offline")

	newErr := original.WithCause(cause)

	if newErr.Cause != cause {
		t.Error("WithCause() did not set cause")
	}
	if newErr.Code != original.Code {
		t.Error("WithCause() changed code")
	}
	if original.Cause != nil {
		t.Error("WithCause() modified original error")
	}
}

func TestExecutionError_WithMessage(t *testing.T) {
	original := ErrImageNotFound
	newErr := original.WithMessage("image button.png not found")

	if newErr.Message != "image button.png not found" {
		t.Errorf("Message = %q, want 'image button.png not found'", newErr.Message)
	}
	if original.Message == "image button.png not found" {
		t.Error("WithMessage() modified original error")
	}
}

func TestExecutionError_WithDetails(t *testing.T) {
	original := &ExecutionError{
		Code:    "test",
		Message: "test",
		Details: map[string]interface{}{"existing": "value"},
	}

	newErr := original.WithDetails(map[string]interface{}{
		"target":  "button.png",
		"timeout": 5000,
	})

	if newErr.Details["target"] != "button.png" {
		t.Error("WithDetails() did not add new details")
	}
	if newErr.Details["existing"] != "value" {
		t.Error("WithDetails() did not preserve existing details")
	}
	if _, ok := original.Details["target"]; ok {
		t.Error("WithDetails() modified original error")
	}
}

func TestPredefinedErrors(t *testing.T) {
	tests := []struct {
		err      *ExecutionError
		category ErrorCategory
		code     string
	}{
		{ErrTransport, ErrCategoryTransport, "transport"},
		{ErrImageNotFound, ErrCategoryNotFound, "image_not_found"},
		{ErrWaitTimeout, ErrCategoryTimeout, "wait_timeout"},
		{ErrInvalidArgument, ErrCategoryArgument, "invalid_argument"},
		{ErrInvalidFormat, ErrCategoryFormat, "invalid_format"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if tt.err.Category != tt.category {
				t.Errorf("Category = %s, want %s", tt.err.Category, tt.category)
			}
			if tt.err.Code != tt.code {
				t.Errorf("Code = %s, want %s", tt.err.Code, tt.code)
			}
			if tt.err.Message == "" {
				t.Error("Message should not be empty")
			}
		})
	}
}

func TestExecutionError_ErrorsIs(t *testing.T) {
	cause := errors.New("root cause")
	err := ErrTransport.WithCause(cause).WithMessage("adb push failed")

	if !errors.Is(err, cause) {
		t.Error("errors.Is() should find the cause")
	}
	if !errors.Is(err, ErrTransport) {
		t.Error("errors.Is() should match the sentinel by code")
	}
	if errors.Is(err, ErrImageNotFound) {
		t.Error("errors.Is() matched a different sentinel")
	}

	wrapped := fmt.Errorf("tap image: %w", err)
	if !errors.Is(wrapped, ErrTransport) {
		t.Error("errors.Is() should see through fmt wrapping")
	}
}

func TestCategoryOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"nil", nil, ErrCategoryNone},
		{"plain", errors.New("boom"), ErrCategoryUnknown},
		{"sentinel", ErrInvalidFormat, ErrCategoryFormat},
		{"wrapped", fmt.Errorf("x: %w", ErrWaitTimeout.WithMessage("y")), ErrCategoryTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CategoryOf(tt.err); got != tt.want {
				t.Errorf("CategoryOf() = %s, want %s", got, tt.want)
			}
		})
	}
}
