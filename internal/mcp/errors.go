package mcp

import (
	"context"
	"errors"
	"fmt"

	errs "github.com/restocker/invsearch/internal/errors"
)

// JSON-RPC error codes surfaced to MCP clients.
const (
	ErrCodeInvalidParams = -32602
	ErrCodeInternalError = -32603

	// ErrCodeTimeout indicates the request timed out or was cancelled.
	ErrCodeTimeout = -32003

	// ErrCodeStoreUnavailable indicates the catalog store is unreachable.
	ErrCodeStoreUnavailable = -32004
)

// MCPError is a protocol error with a JSON-RPC code.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts engine errors to MCP protocol errors so clients can tell
// bad parameters from server trouble. Validation failures keep their message;
// everything else gets a generic one to avoid leaking internals.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	switch {
	case errs.IsInvalidArgument(err):
		return &MCPError{Code: ErrCodeInvalidParams, Message: err.Error()}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errs.GetCategory(err) == errs.CategoryStore:
		return &MCPError{Code: ErrCodeStoreUnavailable, Message: "Catalog store is unavailable."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}
