// Package errors provides structured error handling for PDFMCP.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors (fatal)
//   - 2XX: Ingestion and index IO errors
//   - 3XX: Provider and network errors
//   - 4XX: Validation errors
//   - 5XX: Internal and query lifecycle errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIngest indicates document ingestion and index IO errors.
	CategoryIngest Category = "INGEST"
	// CategoryProvider indicates embedding or generation provider errors.
	CategoryProvider Category = "PROVIDER"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
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
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config errors (100-199). All fatal: the process cannot serve without
	// valid settings and a non-empty document source.
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"
	ErrCodeCorpusEmpty    = "ERR_103_CORPUS_EMPTY"

	// Ingestion and index IO errors (200-299). Document codes mark a single
	// skipped document, never a failed corpus build.
	ErrCodeDocumentUnreadable = "ERR_201_DOCUMENT_UNREADABLE"
	ErrCodeDocumentParse      = "ERR_202_DOCUMENT_PARSE"
	ErrCodeDocumentEmpty      = "ERR_203_DOCUMENT_EMPTY"
	ErrCodeIndexIO            = "ERR_204_INDEX_IO"
	ErrCodeCorruptIndex       = "ERR_205_CORRUPT_INDEX"

	// Provider and network errors (300-399)
	ErrCodeProviderTimeout     = "ERR_301_PROVIDER_TIMEOUT"
	ErrCodeProviderUnavailable = "ERR_302_PROVIDER_UNAVAILABLE"
	ErrCodeRateLimited         = "ERR_303_RATE_LIMITED"

	// Validation errors (400-499)
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeQueryEmpty        = "ERR_402_QUERY_EMPTY"
	ErrCodeInvalidLimit      = "ERR_403_INVALID_LIMIT"
	ErrCodeDimensionMismatch = "ERR_404_DIMENSION_MISMATCH"

	// Internal and query lifecycle errors (500-599)
	ErrCodeInternal         = "ERR_501_INTERNAL"
	ErrCodeEmbeddingFailed  = "ERR_502_EMBEDDING_FAILED"
	ErrCodeSearchFailed     = "ERR_503_SEARCH_FAILED"
	ErrCodeIndexUnavailable = "ERR_504_INDEX_UNAVAILABLE"
	ErrCodeRetrievalTimeout = "ERR_505_RETRIEVAL_TIMEOUT"
	ErrCodeGenerationFailed = "ERR_506_GENERATION_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "101" from "ERR_101_CONFIG_NOT_FOUND")
	numStr := code[4:7]
	if len(numStr) < 1 {
		return CategoryInternal
	}

	switch numStr[0] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIngest
	case '3':
		return CategoryProvider
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	// Configuration errors abort the process.
	if categoryFromCode(code) == CategoryConfig {
		return SeverityFatal
	}

	// A skipped document degrades the corpus, the build continues.
	if isSkipCode(code) {
		return SeverityWarning
	}

	// Retryable errors get warning severity
	if isRetryableCode(code) {
		return SeverityWarning
	}

	// Default to error severity
	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeProviderTimeout, ErrCodeProviderUnavailable, ErrCodeRateLimited,
		ErrCodeIndexUnavailable, ErrCodeRetrievalTimeout:
		return true
	default:
		return false
	}
}

// isSkipCode checks if an error code marks a single skipped document.
func isSkipCode(code string) bool {
	switch code {
	case ErrCodeDocumentUnreadable, ErrCodeDocumentParse, ErrCodeDocumentEmpty:
		return true
	default:
		return false
	}
}
