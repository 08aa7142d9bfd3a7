// Package provider implements the completion backend abstraction for the
// agent pipeline. The pipeline treats the backend as a black-box text and
// tool-call generator behind the Provider interface.
package provider

import (
	"context"
	"encoding/json"
)

// Role represents the message sender role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message represents a conversation message sent to the model.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ToolUseBlock represents a tool call request from the model.
type ToolUseBlock struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolDefinition defines a tool that can be called by the model.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// StopReason indicates why the model stopped generating.
type StopReason string

const (
	StopReasonEndTurn   StopReason = "end_turn"
	StopReasonToolUse   StopReason = "tool_use"
	StopReasonMaxTokens StopReason = "max_tokens"
)

// Response represents the model's response.
type Response struct {
	// Content is the text content of the response (may be empty if the
	// model only requested tool calls).
	Content string

	// ToolCalls contains any tool use requests from the model.
	ToolCalls []ToolUseBlock

	// StopReason indicates why the model stopped generating.
	StopReason StopReason
}

// Request carries one completion request: a system prompt, the conversation
// so far, and the optional tool catalog. JSONResponse asks the model for a
// strict-JSON reply (used by the intent classifier).
type Request struct {
	SystemPrompt string
	Messages     []Message
	Tools        []ToolDefinition
	Model        string
	Temperature  float64
	MaxTokens    int
	JSONResponse bool
}

// Provider defines the interface for completion backends.
type Provider interface {
	// Complete sends the request to the model and returns the complete
	// response. Implementations must honor the context deadline.
	Complete(ctx context.Context, req Request) (*Response, error)

	// Name returns the provider name for logging.
	Name() string
}
