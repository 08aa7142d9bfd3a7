package models

import (
	"errors"
	"fmt"
)

// ErrSessionNotFound is returned by session mutations against a call id
// without a live session. Only GetOrCreate may heal a missing session; all
// other mutators surface this error.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionExists is returned by Create when a live session already exists
// for the call id.
var ErrSessionExists = errors.New("session already exists")

// ErrIncidentNotFound is returned when an incident log id is unknown.
var ErrIncidentNotFound = errors.New("incident log not found")

// ToolExecutionError describes a failed tool call: an unknown tool name,
// missing or invalid parameters, or a tool-internal fault. It is captured
// per call in the ToolResult and never aborts the turn.
type ToolExecutionError struct {
	ToolName string
	Reason   string
}

// Error implements the error interface.
func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %q: %s", e.ToolName, e.Reason)
}

// NewToolExecutionError creates a ToolExecutionError with a formatted reason.
func NewToolExecutionError(toolName, format string, args ...interface{}) *ToolExecutionError {
	return &ToolExecutionError{ToolName: toolName, Reason: fmt.Sprintf(format, args...)}
}

// ValidationError represents a request or configuration validation failure.
type ValidationError struct {
	message string
}

// NewValidationError creates a new validation error.
func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{message: fmt.Sprintf(format, args...)}
}

// Error returns the error message.
func (e *ValidationError) Error() string {
	return e.message
}

// IsValidationError checks whether err is a validation error.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
