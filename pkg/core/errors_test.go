package core

import (
	"testing"
)

func TestError_Error(t *testing.T) {
	err := &Error{
		Type:    ErrInvalidRequest,
		Message: "question_count must be greater than zero",
	}

	expected := "invalid_request_error: question_count must be greater than zero"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestError_WithCode(t *testing.T) {
	err := &Error{
		Type:    ErrUnavailable,
		Message: "engine unreachable",
		Code:    "engine_connect_failed",
	}

	expected := "service_unavailable_error: engine unreachable (code: engine_connect_failed)"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestNewInvalidRequestErrorWithParam(t *testing.T) {
	err := NewInvalidRequestErrorWithParam("bad request", "application_id")
	if err.Type != ErrInvalidRequest {
		t.Errorf("Type = %v, want %v", err.Type, ErrInvalidRequest)
	}
	if err.Param != "application_id" {
		t.Errorf("Param = %q, want %q", err.Param, "application_id")
	}
}

func TestNewNotFoundError(t *testing.T) {
	err := NewNotFoundError("Session not found or already finalized")
	if err.Type != ErrNotFound {
		t.Errorf("Type = %v, want %v", err.Type, ErrNotFound)
	}
}

func TestError_IsRetryable(t *testing.T) {
	tests := []struct {
		name string
		typ  ErrorType
		want bool
	}{
		{"unavailable", ErrUnavailable, true},
		{"overloaded", ErrOverloaded, true},
		{"persistence", ErrPersistence, true},
		{"invalid", ErrInvalidRequest, false},
		{"not found", ErrNotFound, false},
		{"api", ErrAPI, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := &Error{Type: tt.typ, Message: "x"}
			if got := err.IsRetryable(); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}
