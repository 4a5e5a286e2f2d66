package errors

import (
	"fmt"
)

// SearchError is the structured error type for invsearch.
// It provides rich context for error handling, logging, and user presentation.
type SearchError struct {
	// Code is the unique error code (e.g., "ERR_401_INVALID_ARGUMENT").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Store, Embedding, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *SearchError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *SearchError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with SearchError.
func (e *SearchError) Is(target error) bool {
	if t, ok := target.(*SearchError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *SearchError) WithDetail(key, value string) *SearchError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *SearchError) WithSuggestion(suggestion string) *SearchError {
	e.Suggestion = suggestion
	return e
}

// New creates a new SearchError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *SearchError {
	return &SearchError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a SearchError from an existing error, prefixing its message
// with operation context.
func Wrap(err error, code string, message string) *SearchError {
	if err == nil {
		return nil
	}
	return New(code, fmt.Sprintf("%s: %v", message, err), err)
}

// InvalidArgument creates a validation error surfaced to the caller directly.
func InvalidArgument(message string) *SearchError {
	return New(ErrCodeInvalidArgument, message, nil)
}

// StoreUnavailable creates a retryable catalog store error.
func StoreUnavailable(message string, cause error) *SearchError {
	return New(ErrCodeStoreUnavailable, message, cause)
}

// EmbeddingUnavailable creates an embedding service error after retries
// are exhausted. Callers recover by falling back to keyword-only behavior.
func EmbeddingUnavailable(message string, cause error) *SearchError {
	return New(ErrCodeEmbeddingUnavailable, message, cause)
}

// IndexInconsistency creates a cross-index partial-failure error.
// Not fatal to the calling request; flagged for a repair pass.
func IndexInconsistency(message string, cause error) *SearchError {
	return New(ErrCodeIndexInconsistency, message, cause)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error is a SearchError with the Retryable flag set.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if se, ok := err.(*SearchError); ok {
		return se.Retryable
	}
	return false
}

// IsInvalidArgument reports whether the error belongs to the validation category.
func IsInvalidArgument(err error) bool {
	if se, ok := err.(*SearchError); ok {
		return se.Category == CategoryValidation
	}
	return false
}

// GetCode extracts the error code from a SearchError.
// Returns empty string if not a SearchError.
func GetCode(err error) string {
	if se, ok := err.(*SearchError); ok {
		return se.Code
	}
	return ""
}

// GetCategory extracts the category from a SearchError.
// Returns empty string if not a SearchError.
func GetCategory(err error) Category {
	if se, ok := err.(*SearchError); ok {
		return se.Category
	}
	return ""
}
