package mcp

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pdferrors "github.com/pdfmcp/pdfmcp/internal/errors"
)

func TestMapError_NilError(t *testing.T) {
	// Given: nil error
	var err error = nil

	// When: mapping the error
	result := MapError(err)

	// Then: returns nil
	assert.Nil(t, result)
}

func TestMapError_ValidationError(t *testing.T) {
	// Given: a validation error from the query service
	err := pdferrors.ValidationError("query cannot be empty", nil)

	// When: mapping the error
	result := MapError(err)

	// Then: returns invalid params error
	require.NotNil(t, result)
	assert.Equal(t, ErrCodeInvalidParams, result.Code)
	assert.Contains(t, result.Message, "query cannot be empty")
}

func TestMapError_IndexUnavailable(t *testing.T) {
	// Given: a query arrived before any corpus build succeeded
	err := pdferrors.IndexUnavailable(nil)

	// When: mapping the error
	result := MapError(err)

	// Then: returns index unavailable error with the retry suggestion
	require.NotNil(t, result)
	assert.Equal(t, ErrCodeIndexUnavailable, result.Code)
	assert.Contains(t, result.Message, "no corpus generation available")
	assert.Contains(t, result.Message, "Retry after the corpus build")
}

func TestMapError_RetrievalTimeout(t *testing.T) {
	// Given: a retrieval deadline error
	err := pdferrors.RetrievalTimeout(context.DeadlineExceeded)

	// When: mapping the error
	result := MapError(err)

	// Then: returns timeout error
	require.NotNil(t, result)
	assert.Equal(t, ErrCodeTimeout, result.Code)
	assert.Contains(t, result.Message, "retrieval timed out")
}

func TestMapError_CorpusEmpty(t *testing.T) {
	// Given: an empty corpus error
	err := pdferrors.CorpusEmptyError("/docs")

	// When: mapping the error
	result := MapError(err)

	// Then: returns corpus empty error with the suggestion appended
	require.NotNil(t, result)
	assert.Equal(t, ErrCodeCorpusEmpty, result.Code)
	assert.Contains(t, result.Message, "no indexable documents in /docs")
	assert.Contains(t, result.Message, "Place at least one readable PDF")
}

func TestMapError_DeadlineExceeded(t *testing.T) {
	// Given: a bare deadline exceeded error
	err := context.DeadlineExceeded

	// When: mapping the error
	result := MapError(err)

	// Then: returns timeout error
	require.NotNil(t, result)
	assert.Equal(t, ErrCodeTimeout, result.Code)
	assert.Contains(t, result.Message, "timed out")
}

func TestMapError_Canceled(t *testing.T) {
	// Given: a context canceled error
	err := context.Canceled

	// When: mapping the error
	result := MapError(err)

	// Then: returns timeout error
	require.NotNil(t, result)
	assert.Equal(t, ErrCodeTimeout, result.Code)
	assert.Contains(t, result.Message, "canceled")
}

func TestMapError_UnknownError(t *testing.T) {
	// Given: an unknown error
	err := errors.New("some unknown error")

	// When: mapping the error
	result := MapError(err)

	// Then: returns internal error without leaking the cause
	require.NotNil(t, result)
	assert.Equal(t, ErrCodeInternalError, result.Code)
	assert.Contains(t, result.Message, "Internal server error")
	assert.NotContains(t, result.Message, "some unknown error")
}

func TestMapError_UncodedCategoryFallback(t *testing.T) {
	// Given: a domain error whose code has no dedicated MCP mapping
	err := pdferrors.ConfigError("documents dir missing", nil)

	// When: mapping the error
	result := MapError(err)

	// Then: falls back to internal error
	require.NotNil(t, result)
	assert.Equal(t, ErrCodeInternalError, result.Code)
}

func TestMapError_WrappedDomainError(t *testing.T) {
	// Given: a wrapped validation error
	inner := pdferrors.ValidationError("max_chunks must be positive, got -3", nil)
	err := fmt.Errorf("query_documents: %w", inner)

	// When: mapping the error
	result := MapError(err)

	// Then: correctly identifies the wrapped error
	require.NotNil(t, result)
	assert.Equal(t, ErrCodeInvalidParams, result.Code)
	assert.Contains(t, result.Message, "max_chunks must be positive")
}

func TestMCPError_Error(t *testing.T) {
	// Given: an MCP error
	err := &MCPError{
		Code:    ErrCodeInvalidParams,
		Message: "missing required field",
	}

	// When: calling Error()
	msg := err.Error()

	// Then: returns formatted message
	assert.Contains(t, msg, "MCP error")
	assert.Contains(t, msg, "-32602")
	assert.Contains(t, msg, "missing required field")
}

func TestNewInvalidParamsError(t *testing.T) {
	// Given: a custom message
	msg := "query parameter is required"

	// When: creating invalid params error
	err := NewInvalidParamsError(msg)

	// Then: returns error with custom message
	assert.Equal(t, ErrCodeInvalidParams, err.Code)
	assert.Equal(t, msg, err.Message)
}
