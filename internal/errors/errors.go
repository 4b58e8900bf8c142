package errors

import (
	"fmt"
)

// PDFError is the structured error type for PDFMCP.
// It provides rich context for error handling, logging, and user presentation.
type PDFError struct {
	// Code is the unique error code (e.g., "ERR_103_CORPUS_EMPTY").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Ingest, Provider, etc.).
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
func (e *PDFError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *PDFError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with PDFError.
func (e *PDFError) Is(target error) bool {
	if t, ok := target.(*PDFError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *PDFError) WithDetail(key, value string) *PDFError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *PDFError) WithSuggestion(suggestion string) *PDFError {
	e.Suggestion = suggestion
	return e
}

// New creates a new PDFError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *PDFError {
	return &PDFError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a PDFError from an existing error.
// The error's message becomes the PDFError message.
func Wrap(code string, err error) *PDFError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a fatal configuration error.
func ConfigError(message string, cause error) *PDFError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// CorpusEmptyError reports that the document source yielded nothing indexable.
func CorpusEmptyError(dir string) *PDFError {
	return New(ErrCodeCorpusEmpty,
		fmt.Sprintf("no indexable documents in %s", dir), nil).
		WithDetail("documents_dir", dir).
		WithSuggestion("Place at least one readable PDF in the documents directory.")
}

// DocumentSkipped marks a single document as skipped during ingestion.
// The corpus build continues without it.
func DocumentSkipped(code, document, reason string, cause error) *PDFError {
	return New(code, fmt.Sprintf("skipping %s: %s", document, reason), cause).
		WithDetail("document", document)
}

// IndexUnavailable reports that a query arrived before any successful build.
func IndexUnavailable(cause error) *PDFError {
	return New(ErrCodeIndexUnavailable,
		"no corpus generation available yet", cause).
		WithSuggestion("Retry after the corpus build completes.")
}

// RetrievalTimeout reports that a query exceeded its deadline.
func RetrievalTimeout(cause error) *PDFError {
	return New(ErrCodeRetrievalTimeout, "retrieval timed out", cause)
}

// GenerationError reports an answer-generation failure.
// The query degrades to raw chunks rather than failing.
func GenerationError(message string, cause error) *PDFError {
	return New(ErrCodeGenerationFailed, message, cause)
}

// EmbeddingError reports an embedding provider failure.
func EmbeddingError(message string, cause error) *PDFError {
	return New(ErrCodeEmbeddingFailed, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *PDFError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *PDFError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error is a PDFError with Retryable flag set.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if pe, ok := err.(*PDFError); ok {
		return pe.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the process.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if pe, ok := err.(*PDFError); ok {
		return pe.Severity == SeverityFatal
	}
	return false
}

// IsSkip checks if an error marks a skipped document.
func IsSkip(err error) bool {
	if err == nil {
		return false
	}
	if pe, ok := err.(*PDFError); ok {
		return isSkipCode(pe.Code)
	}
	return false
}

// GetCode extracts the error code from a PDFError.
// Returns empty string if not a PDFError.
func GetCode(err error) string {
	if pe, ok := err.(*PDFError); ok {
		return pe.Code
	}
	return ""
}

// GetCategory extracts the category from a PDFError.
// Returns empty string if not a PDFError.
func GetCategory(err error) Category {
	if pe, ok := err.(*PDFError); ok {
		return pe.Category
	}
	return ""
}
