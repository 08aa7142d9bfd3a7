// Package models defines the domain types shared across the agent pipeline:
// session state, classification results, retrieval results, navigation
// results, tool results, and incident logs.
package models

import (
	"encoding/json"
	"time"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// SessionStatus represents the lifecycle state of a conversation session.
type SessionStatus string

const (
	StatusActive        SessionStatus = "active"
	StatusAwaitingInput SessionStatus = "awaiting_input"
	StatusCompleted     SessionStatus = "completed"
	StatusEscalated     SessionStatus = "escalated"
)

// Message is a single entry in the conversation history.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// DecisionRecord is a decision appended to the session's decision history.
type DecisionRecord struct {
	Step      int       `json:"step"`
	Decision  string    `json:"decision"`
	Timestamp time.Time `json:"timestamp"`
}

// ActionRecord is an executed tool call appended to the session.
type ActionRecord struct {
	ToolName   string                 `json:"tool_name"`
	Parameters map[string]interface{} `json:"parameters"`
	Result     interface{}            `json:"result"`
	Timestamp  time.Time              `json:"timestamp"`
}

// ConversationState is the per-call session record. There is exactly one
// live session per call id. TimestampLastUpdate is monotonically
// non-decreasing and is bumped by every named mutation operation; callers
// never write fields directly.
type ConversationState struct {
	SessionID           string            `json:"session_id"`
	WorkerName          string            `json:"worker_name"`
	Station             string            `json:"station"`
	CurrentDocumentID   string            `json:"current_document_id,omitempty"`
	CurrentStep         *int              `json:"current_step,omitempty"`
	Measurements        map[string]string `json:"measurements"`
	DecisionHistory     []DecisionRecord  `json:"decision_history"`
	ActionsExecuted     []ActionRecord    `json:"actions_executed"`
	ConversationHistory []Message         `json:"conversation_history"`
	Status              SessionStatus     `json:"status"`
	CallID              string            `json:"call_id"`
	TimestampStart      time.Time         `json:"timestamp_start"`
	TimestampLastUpdate time.Time         `json:"timestamp_last_update"`
}

// Clone returns a deep copy of the session. The store hands out clones so
// callers can never mutate shared state behind the store's back.
func (s *ConversationState) Clone() *ConversationState {
	if s == nil {
		return nil
	}
	c := *s
	if s.CurrentStep != nil {
		step := *s.CurrentStep
		c.CurrentStep = &step
	}
	c.Measurements = make(map[string]string, len(s.Measurements))
	for k, v := range s.Measurements {
		c.Measurements[k] = v
	}
	c.DecisionHistory = append([]DecisionRecord(nil), s.DecisionHistory...)
	c.ConversationHistory = append([]Message(nil), s.ConversationHistory...)
	c.ActionsExecuted = make([]ActionRecord, len(s.ActionsExecuted))
	for i, a := range s.ActionsExecuted {
		ac := a
		ac.Parameters = make(map[string]interface{}, len(a.Parameters))
		for k, v := range a.Parameters {
			ac.Parameters[k] = v
		}
		c.ActionsExecuted[i] = ac
	}
	return &c
}

// Intent is the closed set of worker intents the classifier may produce.
type Intent string

const (
	IntentQualityIssue    Intent = "quality_issue"
	IntentProcedureQuery  Intent = "procedure_query"
	IntentEquipmentIssue  Intent = "equipment_issue"
	IntentGeneralQuestion Intent = "general_question"
	IntentConfirmation    Intent = "confirmation"
)

// ValidIntent reports whether s is a member of the closed intent enum.
func ValidIntent(s string) bool {
	switch Intent(s) {
	case IntentQualityIssue, IntentProcedureQuery, IntentEquipmentIssue,
		IntentGeneralQuestion, IntentConfirmation:
		return true
	}
	return false
}

// IntentResult is the output of the intent classifier.
type IntentResult struct {
	Intent            Intent            `json:"intent"`
	Confidence        float64           `json:"confidence"`
	ExtractedEntities map[string]string `json:"extracted_entities"`
}

// NoDocumentID is the sentinel document id returned by the retriever when
// the similarity search produced no results at all.
const NoDocumentID = "NONE"

// RetrievedChunk is one indexed fragment of a procedure document returned
// by similarity search.
type RetrievedChunk struct {
	StepNumber *int    `json:"step_number,omitempty"`
	Text       string  `json:"text"`
	ChunkType  string  `json:"chunk_type"`
	Similarity float64 `json:"similarity"`
}

// RetrievalResult is the output of the knowledge retriever. An empty search
// yields DocumentID == NoDocumentID with Fallback false; a search backend
// error yields the named fallback document with Fallback true. The two
// paths are deliberately distinguishable by callers.
type RetrievalResult struct {
	DocumentID    string           `json:"document_id"`
	DocumentTitle string           `json:"document_title"`
	Chunks        []RetrievedChunk `json:"chunks"`
	Context       string           `json:"context"`
	Fallback      bool             `json:"fallback"`
}

// Found reports whether the retriever identified a concrete document.
func (r *RetrievalResult) Found() bool {
	return r.DocumentID != "" && r.DocumentID != NoDocumentID
}

// DecisionOutcome is a terminal quality-control disposition.
type DecisionOutcome string

const (
	OutcomeQuarantine DecisionOutcome = "QUARANTINE"
	OutcomeAccept     DecisionOutcome = "ACCEPT"
	OutcomeEscalate   DecisionOutcome = "ESCALATE"
)

// Decision is a disposition derived from the navigator's response text.
type Decision struct {
	Outcome   DecisionOutcome `json:"outcome"`
	Criteria  string          `json:"criteria"`
	Reasoning string          `json:"reasoning"`
}

// ToolCallRequest is a structured request from the navigation stage to
// invoke a measurement tool.
type ToolCallRequest struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// NavigationResult is the output of the decision navigator. Decision,
// NextStep, and RequiresUserInput are best-effort heuristics mined from the
// model's free text, not an authoritative parse.
type NavigationResult struct {
	ResponseText      string            `json:"response_text"`
	NextStep          *int              `json:"next_step,omitempty"`
	ToolCalls         []ToolCallRequest `json:"tool_calls"`
	Decision          *Decision         `json:"decision,omitempty"`
	RequiresUserInput bool              `json:"requires_user_input"`
}

// ToolResult is the outcome of executing a single tool call. A failed call
// has Error true and Message set; failures never abort sibling calls.
type ToolResult struct {
	ToolName   string                 `json:"tool_name"`
	Parameters map[string]interface{} `json:"parameters"`
	Result     interface{}            `json:"result"`
	Error      bool                   `json:"error"`
	Message    string                 `json:"message,omitempty"`
}

// IncidentLog is the durable record of a resolved quality issue. It is
// immutable once appended to the incident index.
type IncidentLog struct {
	LogID                 string                 `json:"log_id"`
	SessionID             string                 `json:"session_id"`
	Timestamp             time.Time              `json:"timestamp"`
	WorkerName            string                 `json:"worker_name"`
	Station               string                 `json:"station"`
	DocumentUsed          string                 `json:"document_used"`
	IssueDescription      string                 `json:"issue_description"`
	Measurements          map[string]interface{} `json:"measurements"`
	Decision              string                 `json:"decision"`
	ActionsTaken          []string               `json:"actions_taken"`
	ResolutionTimeSeconds int64                  `json:"resolution_time_seconds"`
	AllStepsCompleted     bool                   `json:"all_steps_completed"`
	DocumentationComplete bool                   `json:"documentation_complete"`
}
