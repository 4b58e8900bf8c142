package mcp

import (
	"context"
	"errors"
	"fmt"

	pdferrors "github.com/pdfmcp/pdfmcp/internal/errors"
)

// Dedicated MCP error codes, beyond the JSON-RPC standard set.
const (
	// ErrCodeIndexUnavailable indicates no corpus generation exists yet.
	ErrCodeIndexUnavailable = -32001

	// ErrCodeTimeout indicates the request exceeded its deadline.
	ErrCodeTimeout = -32002

	// ErrCodeCorpusEmpty indicates the document source has nothing
	// indexable.
	ErrCodeCorpusEmpty = -32003

	// Standard JSON-RPC error codes.
	ErrCodeInvalidParams = -32602
	ErrCodeInternalError = -32603
)

// MCPError is a protocol error with a JSON-RPC code.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// NewInvalidParamsError creates an invalid-params error with a custom
// message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{
		Code:    ErrCodeInvalidParams,
		Message: msg,
	}
}

// MapError converts internal errors to MCP protocol errors.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var pdfErr *pdferrors.PDFError
	if errors.As(err, &pdfErr) {
		return mapPDFError(pdfErr)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{
			Code:    ErrCodeTimeout,
			Message: "Request timed out.",
		}
	case errors.Is(err, context.Canceled):
		return &MCPError{
			Code:    ErrCodeTimeout,
			Message: "Request was canceled.",
		}
	default:
		return &MCPError{
			Code:    ErrCodeInternalError,
			Message: "Internal server error.",
		}
	}
}

func mapPDFError(pe *pdferrors.PDFError) *MCPError {
	message := pe.Message
	if pe.Suggestion != "" {
		message = fmt.Sprintf("%s %s", pe.Message, pe.Suggestion)
	}

	switch pe.Code {
	case pdferrors.ErrCodeInvalidInput:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}

	case pdferrors.ErrCodeIndexUnavailable:
		return &MCPError{Code: ErrCodeIndexUnavailable, Message: message}

	case pdferrors.ErrCodeRetrievalTimeout:
		return &MCPError{Code: ErrCodeTimeout, Message: message}

	case pdferrors.ErrCodeCorpusEmpty:
		return &MCPError{Code: ErrCodeCorpusEmpty, Message: message}
	}

	switch pe.Category {
	case pdferrors.CategoryValidation:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}
