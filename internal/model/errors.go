package model

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the checkout error taxonomy.
// Use errors.Is() to check against these.
var (
	ErrNotFound       = errors.New("not found")
	ErrStoreNotFound  = errors.New("store not found")
	ErrInvalidRequest = errors.New("invalid request")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrStaleMapping   = errors.New("stale variant mapping")
	ErrTransport      = errors.New("transport failure")
	ErrUserErrors     = errors.New("storefront rejected cart")

	// ErrUpstreamRejected marks a non-retryable 4xx answer from a storefront.
	ErrUpstreamRejected = errors.New("upstream rejected request")
	// ErrStorefrontAuth marks a storefront token refused with 401/403.
	ErrStorefrontAuth = errors.New("storefront token rejected")
)

// APIError represents a structured error for API responses.
// Implements error interface and supports unwrapping.
type APIError struct {
	Code       string   `json:"code"`
	Message    string   `json:"message"`
	Details    []string `json:"details,omitempty"`
	StatusCode int      `json:"-"` // HTTP status, not serialized
	Err        error    `json:"-"` // Wrapped error, not serialized
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

// Retryable reports whether the caller may retry the same request unchanged.
func (e *APIError) Retryable() bool {
	return errors.Is(e.Err, ErrTransport)
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

// NewStoreNotFoundError creates a 404 error for an unknown store ID.
// Callers must never substitute a default store for this.
func NewStoreNotFoundError(storeID string) *APIError {
	return &APIError{
		Code:       "STORE_NOT_FOUND",
		Message:    fmt.Sprintf("store %q not found", storeID),
		StatusCode: 404,
		Err:        fmt.Errorf("%w: %w", ErrStoreNotFound, ErrNotFound),
	}
}

// NewValidationError creates a 400 error for invalid input.
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:       "VALIDATION_ERROR",
		Message:    fmt.Sprintf("invalid %s: %s", field, reason),
		StatusCode: 400,
		Err:        ErrInvalidRequest,
	}
}

// NewUnauthorizedError creates a 401 error for auth failures.
func NewUnauthorizedError(reason string) *APIError {
	return &APIError{
		Code:       "UNAUTHORIZED",
		Message:    reason,
		StatusCode: 401,
		Err:        ErrUnauthorized,
	}
}

// NewTransportError creates a 502 error for network, timeout and 5xx failures
// talking to a storefront.
func NewTransportError(service string, err error) *APIError {
	return &APIError{
		Code:       "UPSTREAM_ERROR",
		Message:    fmt.Sprintf("%s request failed", service),
		StatusCode: 502,
		Err:        fmt.Errorf("%w: %v", ErrTransport, err),
	}
}

// NewUpstreamError creates a 502 error for a storefront that answered with a
// non-retryable status. 401/403 also match ErrStorefrontAuth.
func NewUpstreamError(service string, statusCode int, err error) *APIError {
	wrapped := fmt.Errorf("%w: status %d: %v", ErrUpstreamRejected, statusCode, err)
	if statusCode == 401 || statusCode == 403 {
		wrapped = fmt.Errorf("%w: %w: status %d: %v", ErrUpstreamRejected, ErrStorefrontAuth, statusCode, err)
	}
	return &APIError{
		Code:       "UPSTREAM_ERROR",
		Message:    fmt.Sprintf("%s rejected the request (status %d)", service, statusCode),
		StatusCode: 502,
		Err:        wrapped,
	}
}

// NewStaleMappingError marks a variant that is known locally but rejected by the
// live store.
func NewStaleMappingError(storeID, variantID string, details []string) *APIError {
	return &APIError{
		Code:       "STALE_MAPPING",
		Message:    fmt.Sprintf("variant %s is no longer purchasable on store %s", variantID, storeID),
		Details:    details,
		StatusCode: 409,
		Err:        ErrStaleMapping,
	}
}

// NewUserErrorsError wraps GraphQL userErrors returned by a cart mutation.
func NewUserErrorsError(details []string) *APIError {
	return &APIError{
		Code:       "CART_REJECTED",
		Message:    "storefront rejected the cart: " + strings.Join(details, "; "),
		Details:    details,
		StatusCode: 422,
		Err:        ErrUserErrors,
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
