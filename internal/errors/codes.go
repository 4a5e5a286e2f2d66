// Package errors provides structured error handling for invsearch.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Catalog store errors
//   - 3XX: Embedding service errors
//   - 4XX: Validation errors
//   - 5XX: Index / internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryStore indicates catalog store errors.
	CategoryStore Category = "STORE"
	// CategoryEmbedding indicates embedding service errors.
	CategoryEmbedding Category = "EMBEDDING"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryIndex indicates index consistency or internal errors.
	CategoryIndex Category = "INDEX"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Store errors (200-299)
	ErrCodeStoreUnavailable = "ERR_201_STORE_UNAVAILABLE"
	ErrCodeItemNotFound     = "ERR_202_ITEM_NOT_FOUND"
	ErrCodeStoreCorrupt     = "ERR_203_STORE_CORRUPT"

	// Embedding errors (300-399)
	ErrCodeEmbeddingTimeout     = "ERR_301_EMBEDDING_TIMEOUT"
	ErrCodeEmbeddingUnavailable = "ERR_302_EMBEDDING_UNAVAILABLE"
	ErrCodeEmbeddingMalformed   = "ERR_303_EMBEDDING_MALFORMED"

	// Validation errors (400-499)
	ErrCodeInvalidArgument   = "ERR_401_INVALID_ARGUMENT"
	ErrCodeQueryEmpty        = "ERR_402_QUERY_EMPTY"
	ErrCodeUnknownMode       = "ERR_403_UNKNOWN_MODE"
	ErrCodeInvalidLimit      = "ERR_404_INVALID_LIMIT"
	ErrCodeInvalidItem       = "ERR_405_INVALID_ITEM"
	ErrCodeUnknownChangeKind = "ERR_406_UNKNOWN_CHANGE_KIND"

	// Index errors (500-599)
	ErrCodeIndexInconsistency = "ERR_501_INDEX_INCONSISTENCY"
	ErrCodeDimensionMismatch  = "ERR_502_DIMENSION_MISMATCH"
	ErrCodeInternal           = "ERR_503_INTERNAL"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryIndex
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStore
	case '3':
		return CategoryEmbedding
	case '4':
		return CategoryValidation
	default:
		return CategoryIndex
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	if code == ErrCodeStoreCorrupt {
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
// Store outages are retryable because the change feed redelivers events;
// embedding timeouts are retryable within the bounded retry budget.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeStoreUnavailable, ErrCodeEmbeddingTimeout, ErrCodeEmbeddingUnavailable:
		return true
	}
	return false
}
