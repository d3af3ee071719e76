package model

import (
	"errors"
	"fmt"
	"testing"
)

func TestAPIError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *APIError
		want string
	}{
		{
			name: "without wrapped error",
			err: &APIError{
				Code:    "TEST_ERROR",
				Message: "something went wrong",
			},
			want: "TEST_ERROR: something went wrong",
		},
		{
			name: "with wrapped error",
			err: &APIError{
				Code:    "TEST_ERROR",
				Message: "something went wrong",
				Err:     errors.New("underlying cause"),
			},
			want: "TEST_ERROR: something went wrong (underlying cause)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Error()
			if got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAPIError_Unwrap(t *testing.T) {
	underlying := errors.New("underlying error")
	err := &APIError{Code: "TEST", Message: "test", Err: underlying}

	if err.Unwrap() != underlying {
		t.Errorf("Unwrap() = %v, want %v", err.Unwrap(), underlying)
	}

	errNoWrap := &APIError{Code: "TEST", Message: "test"}
	if errNoWrap.Unwrap() != nil {
		t.Error("Unwrap() should return nil when no wrapped error")
	}
}

func TestNewValidationError(t *testing.T) {
	err := NewValidationError("size", "select product size")

	if err.Code != "INVALID_INPUT" {
		t.Errorf("Code = %q, want %q", err.Code, "INVALID_INPUT")
	}
	if err.Message != "invalid size: select product size" {
		t.Errorf("Message = %q, want %q", err.Message, "invalid size: select product size")
	}
	if err.StatusCode != 400 {
		t.Errorf("StatusCode = %d, want %d", err.StatusCode, 400)
	}
}

func TestNewSyncFailedError(t *testing.T) {
	err := NewSyncFailedError("add to cart", errors.New("connection reset"))

	if err.Code != "SYNC_FAILED" {
		t.Errorf("Code = %q, want %q", err.Code, "SYNC_FAILED")
	}
	if err.Message != "add to cart could not be synced with the server" {
		t.Errorf("Message = %q", err.Message)
	}
	if !errors.Is(err, ErrSyncFailed) {
		t.Error("error should wrap ErrSyncFailed sentinel")
	}
}

func TestNewUpstreamError(t *testing.T) {
	err := NewUpstreamError("cart backend", errors.New("connection refused"))

	if err.Message != "cart backend request failed" {
		t.Errorf("Message = %q, want %q", err.Message, "cart backend request failed")
	}
	if err.StatusCode != 502 {
		t.Errorf("StatusCode = %d, want %d", err.StatusCode, 502)
	}
	if err.Err == nil {
		t.Error("wrapped error should not be nil")
	}
}

func TestNewInternalError(t *testing.T) {
	underlying := errors.New("boom")
	err := NewInternalError(underlying)

	if err.StatusCode != 500 {
		t.Errorf("StatusCode = %d, want %d", err.StatusCode, 500)
	}
	if err.Err != underlying {
		t.Error("wrapped error should be preserved")
	}
}

// TestErrorsIs verifies errors.Is() for every sentinel; the session and
// handler packages branch on these.
func TestErrorsIs(t *testing.T) {
	tests := []struct {
		name     string
		err      *APIError
		sentinel error
	}{
		{"Validation", NewValidationError("x", "y"), ErrInvalidInput},
		{"LoginRequired", NewLoginRequiredError(), ErrLoginRequired},
		{"Unauthorized", NewUnauthorizedError("x"), ErrUnauthorized},
		{"SyncFailed", NewSyncFailedError("x", nil), ErrSyncFailed},
		{"NotFound", NewNotFoundError("x"), ErrNotFound},
		{"Upstream", NewUpstreamError("x", nil), ErrUpstreamError},
		{"RateLimit", NewRateLimitError("x"), ErrRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.sentinel) {
				t.Errorf("errors.Is(%T, %v) = false, want true", tt.err, tt.sentinel)
			}
		})
	}
}

func TestIsUnauthorized(t *testing.T) {
	wrapped := fmt.Errorf("fetching cart: %w", NewUnauthorizedError("token rejected"))
	if !IsUnauthorized(wrapped) {
		t.Error("IsUnauthorized should see through fmt.Errorf wrapping")
	}
	if IsUnauthorized(NewUpstreamError("x", nil)) {
		t.Error("upstream error is not unauthorized")
	}

	var apiErr *APIError
	if !errors.As(wrapped, &apiErr) {
		t.Error("errors.As should find *APIError in wrapped error")
	}
}
