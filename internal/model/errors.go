package model

import (
	"errors"
	"fmt"
)

// Sentinel errors for the cart error taxonomy.
// Use errors.Is() to check against these.
var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrLoginRequired  = errors.New("login required")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrSyncFailed     = errors.New("sync failed")
	ErrStorageCorrupt = errors.New("storage corrupt")
	ErrNotFound       = errors.New("not found")
	ErrUpstreamError  = errors.New("upstream error")
	ErrRateLimited    = errors.New("rate limited")
)

// APIError represents a structured error for the local API and gateway results.
// Implements error interface and supports unwrapping.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"` // HTTP status, not serialized
	Err        error  `json:"-"` // Wrapped error, not serialized
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a 400 error for a caller-supplied argument
// that violates a precondition. No mutation happens when this is returned.
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:       "INVALID_INPUT",
		Message:    fmt.Sprintf("invalid %s: %s", field, reason),
		StatusCode: 400,
		Err:        ErrInvalidInput,
	}
}

// NewLoginRequiredError creates a 401 error for cart mutations attempted
// without a valid credential. Distinct from Unauthorized: nothing was sent
// to the server.
func NewLoginRequiredError() *APIError {
	return &APIError{
		Code:       "LOGIN_REQUIRED",
		Message:    "please login to add items to the cart",
		StatusCode: 401,
		Err:        ErrLoginRequired,
	}
}

// NewUnauthorizedError creates a 401 error for credentials the server rejected.
func NewUnauthorizedError(reason string) *APIError {
	return &APIError{
		Code:       "UNAUTHORIZED",
		Message:    reason,
		StatusCode: 401,
		Err:        ErrUnauthorized,
	}
}

// NewSyncFailedError wraps a background sync failure. The local mutation it
// belongs to is kept.
func NewSyncFailedError(op string, err error) *APIError {
	return &APIError{
		Code:       "SYNC_FAILED",
		Message:    fmt.Sprintf("%s could not be synced with the server", op),
		StatusCode: 502,
		Err:        fmt.Errorf("%w: %v", ErrSyncFailed, err),
	}
}

// NewNotFoundError creates a 404 error for missing resources.
func NewNotFoundError(resource string) *APIError {
	return &APIError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: 404,
		Err:        ErrNotFound,
	}
}

// NewUpstreamError creates a 502 error for backend failures.
func NewUpstreamError(service string, err error) *APIError {
	return &APIError{
		Code:       "UPSTREAM_ERROR",
		Message:    fmt.Sprintf("%s request failed", service),
		StatusCode: 502,
		Err:        fmt.Errorf("%w: %v", ErrUpstreamError, err),
	}
}

// NewRateLimitError creates a 429 error for rate limiting.
func NewRateLimitError(service string) *APIError {
	return &APIError{
		Code:       "RATE_LIMITED",
		Message:    fmt.Sprintf("%s rate limit exceeded, please retry later", service),
		StatusCode: 429,
		Err:        ErrRateLimited,
	}
}

// NewInternalError creates a 500 error for unexpected failures.
func NewInternalError(err error) *APIError {
	return &APIError{
		Code:       "INTERNAL_ERROR",
		Message:    "an internal error occurred",
		StatusCode: 500,
		Err:        err,
	}
}

// IsUnauthorized reports whether err means the server no longer accepts the
// credential.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}
