// Package errors defines the error taxonomy for the wallet explorer and its
// mapping onto HTTP responses.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/wallet-explorer/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryUserInput represents user input errors (4xx)
	CategoryUserInput ErrorCategory = "user_input"
	// CategorySystem represents system errors (5xx)
	CategorySystem ErrorCategory = "system"
	// CategoryProvider represents upstream chain provider errors
	CategoryProvider ErrorCategory = "provider"
	// CategoryStore represents graph store errors
	CategoryStore ErrorCategory = "store"
	// CategoryValidation represents validation errors
	CategoryValidation ErrorCategory = "validation"
	// CategoryNotFound represents not found errors
	CategoryNotFound ErrorCategory = "not_found"
)

// Error codes surfaced at the API boundary.
const (
	CodeRateLimitExceeded    = "RATE_LIMIT_EXCEEDED"
	CodeProviderUnavailable  = "PROVIDER_UNAVAILABLE"
	CodeMalformedTransaction = "MALFORMED_TRANSACTION"
	CodeInvalidCursor        = "INVALID_CURSOR"
	CodeStoreUnavailable     = "STORE_UNAVAILABLE"
	CodeInvalidAddress       = "INVALID_ADDRESS"
	CodeInvalidParameter     = "INVALID_PARAMETER"
	CodeNotFound             = "NOT_FOUND"
	CodeInternalError        = "INTERNAL_ERROR"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// ToServiceError converts to a ServiceError
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// Provider errors

// NewRateLimitExceededError indicates the provider kept throttling after all
// retry attempts were spent.
func NewRateLimitExceededError(method string, attempts int) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryProvider,
		StatusCode: http.StatusTooManyRequests,
		Code:       CodeRateLimitExceeded,
		Message:    fmt.Sprintf("provider rate limit exceeded for %s after %d attempts", method, attempts),
		Details: map[string]interface{}{
			"method":   method,
			"attempts": attempts,
		},
	}
}

// NewProviderUnavailableError indicates a network or transport failure
// reaching the provider.
func NewProviderUnavailableError(method string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryProvider,
		StatusCode: http.StatusBadGateway,
		Code:       CodeProviderUnavailable,
		Message:    fmt.Sprintf("chain provider unavailable during %s", method),
		Cause:      cause,
		Details: map[string]interface{}{
			"method": method,
		},
	}
}

// Normalization errors

// NewMalformedTransactionError indicates a raw provider record missing the
// fields required to build a canonical transaction.
func NewMalformedTransactionError(reason string, hash string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusUnprocessableEntity,
		Code:       CodeMalformedTransaction,
		Message:    fmt.Sprintf("malformed transaction: %s", reason),
		Details: map[string]interface{}{
			"reason": reason,
			"hash":   hash,
		},
	}
}

// Caller errors

// NewInvalidCursorError indicates a pagination cursor that is not an integer.
func NewInvalidCursorError(raw string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUserInput,
		StatusCode: http.StatusBadRequest,
		Code:       CodeInvalidCursor,
		Message:    fmt.Sprintf("pagination cursor must be an integer, got %q", raw),
		Details: map[string]interface{}{
			"cursor": raw,
		},
	}
}

// NewInvalidAddressError creates an invalid address error
func NewInvalidAddressError(address string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUserInput,
		StatusCode: http.StatusBadRequest,
		Code:       CodeInvalidAddress,
		Message:    fmt.Sprintf("invalid address format: %s", address),
		Details: map[string]interface{}{
			"address": address,
		},
	}
}

// NewInvalidParameterError creates an invalid parameter error
func NewInvalidParameterError(param string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       CodeInvalidParameter,
		Message:    fmt.Sprintf("invalid parameter '%s': %s", param, reason),
		Details: map[string]interface{}{
			"parameter": param,
			"reason":    reason,
		},
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string, id string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found: %s", resource, id),
		Details: map[string]interface{}{
			"resource": resource,
			"id":       id,
		},
	}
}

// Store and system errors

// NewStoreUnavailableError indicates a graph store connection failure. There
// is no safe fallback for these; they surface to the caller.
func NewStoreUnavailableError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryStore,
		StatusCode: http.StatusServiceUnavailable,
		Code:       CodeStoreUnavailable,
		Message:    fmt.Sprintf("graph store unavailable during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       CodeInternalError,
		Message:    message,
		Cause:      cause,
	}
}

// Categorize categorizes an existing error
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr
	}

	return NewInternalError("unexpected error", err)
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsCode reports whether the error carries the given code.
func IsCode(err error, code string) bool {
	catErr := Categorize(err)
	return catErr != nil && catErr.Code == code
}

// IsProviderError reports whether the error came from the upstream provider.
// Provider errors during a sync degrade to serving the store instead of
// failing the request.
func IsProviderError(err error) bool {
	catErr := Categorize(err)
	return catErr != nil && catErr.Category == CategoryProvider
}

// IsRetryable determines if an error is retryable against the provider.
// Only throttling responses are retried; transport failures propagate.
func IsRetryable(err error) bool {
	return IsCode(err, CodeRateLimitExceeded)
}
