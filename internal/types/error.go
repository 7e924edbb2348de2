package types

import (
	"fmt"
	"strings"
)

// CustomError carries an HTTP status alongside the message, for errors raised
// inside middleware before a handler runs.
type CustomError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

func (e *CustomError) Error() string {
	return fmt.Sprintf("%d: %s [type: %s]", e.Code, e.Message, e.Type)
}

// SchemaError reports a failed DDL operation. The driver error is preserved so
// administrators see the engine's own message verbatim.
type SchemaError struct {
	Op    string // createTable, addColumn, ...
	Table string
	Err   error
}

func (e *SchemaError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("schema %s on %s failed", e.Op, e.Table)
	}
	return fmt.Sprintf("schema %s on %s failed: %v", e.Op, e.Table, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// ValidationError rejects an upload as a whole, carrying the accumulated
// row-numbered reasons.
type ValidationError struct {
	Message string
	Rows    []string
}

func (e *ValidationError) Error() string {
	if len(e.Rows) == 0 {
		return e.Message
	}
	return e.Message + ": " + strings.Join(e.Rows, "; ")
}

// AuthorizationError denies a request: missing capability or deadline passed.
type AuthorizationError struct {
	Message string
}

func (e *AuthorizationError) Error() string { return e.Message }

// InputError rejects malformed caller input: empty or oversized files, too
// many rows, unreadable workbooks, bad query parameters.
type InputError struct {
	Message string
}

func (e *InputError) Error() string { return e.Message }
