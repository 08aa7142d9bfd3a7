// Package navigator guides a worker through a retrieved procedure using the
// completion provider with the measurement tool catalog, then mines the
// model's free text for decisions, step transitions, and input hints.
package navigator

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/fsalinas26/Guido/internal/agent/tools"
	"github.com/fsalinas26/Guido/internal/config"
	"github.com/fsalinas26/Guido/internal/logging"
	"github.com/fsalinas26/Guido/internal/metrics"
	"github.com/fsalinas26/Guido/internal/models"
	"github.com/fsalinas26/Guido/internal/provider"
)

const historyWindow = 5

// fallbackResponse is returned when the provider fails or times out.
const fallbackResponse = "I'm having trouble processing that. Could you describe the issue again?"

// Navigator drives the guidance stage of a turn.
type Navigator struct {
	provider provider.Provider
	model    config.ModelSettings
	timeout  time.Duration
	metrics  *metrics.Metrics
	logger   *logging.Logger
}

// New creates a Navigator backed by the given provider.
func New(p provider.Provider, model config.ModelSettings, timeout time.Duration, m *metrics.Metrics) *Navigator {
	return &Navigator{
		provider: p,
		model:    model,
		timeout:  timeout,
		metrics:  m,
		logger:   logging.GetLogger("agent.navigator"),
	}
}

// Navigate runs one guidance exchange. It never returns an error: provider
// failures collapse to a fixed retry response that keeps the conversation
// alive.
func (n *Navigator) Navigate(ctx context.Context, userMessage string, retrieval models.RetrievalResult, state *models.ConversationState) *models.NavigationResult {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	req := provider.Request{
		SystemPrompt: buildPrompt(retrieval, state),
		Messages:     buildMessages(state, userMessage),
		Tools:        tools.Definitions(),
		Model:        n.model.Name,
		Temperature:  n.model.Temperature,
		MaxTokens:    n.model.MaxTokens,
	}

	resp, err := n.provider.Complete(ctx, req)
	if err != nil {
		n.logger.ErrorWithErr("navigator provider call failed", err)
		if n.metrics != nil {
			n.metrics.FallbacksTotal.WithLabelValues("navigator").Inc()
		}
		return &models.NavigationResult{
			ResponseText:      fallbackResponse,
			ToolCalls:         []models.ToolCallRequest{},
			RequiresUserInput: true,
		}
	}

	calls := make([]models.ToolCallRequest, 0, len(resp.ToolCalls))
	for _, tc := range resp.ToolCalls {
		calls = append(calls, models.ToolCallRequest{ID: tc.ID, Name: tc.Name, Arguments: tc.Input})
	}

	result := &models.NavigationResult{
		ResponseText:      resp.Content,
		NextStep:          extractNextStep(resp.Content, state.CurrentStep),
		ToolCalls:         calls,
		Decision:          extractDecision(resp.Content),
		RequiresUserInput: requiresUserInput(resp.Content, calls),
	}
	n.logger.DebugWithFields("navigation complete",
		logging.Field("tool_calls", len(calls)),
		logging.Field("has_decision", result.Decision != nil))
	return result
}

func buildMessages(state *models.ConversationState, userMessage string) []provider.Message {
	history := state.ConversationHistory
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	msgs := make([]provider.Message, 0, len(history)+1)
	for _, m := range history {
		msgs = append(msgs, provider.Message{Role: provider.Role(m.Role), Content: m.Content})
	}
	msgs = append(msgs, provider.Message{Role: provider.RoleUser, Content: userMessage})
	return msgs
}

func buildPrompt(retrieval models.RetrievalResult, state *models.ConversationState) string {
	currentStep := "Not started"
	if state.CurrentStep != nil {
		currentStep = strconv.Itoa(*state.CurrentStep)
	}
	measurements, err := json.MarshalIndent(state.Measurements, "", "  ")
	if err != nil {
		measurements = []byte("{}")
	}

	return fmt.Sprintf(`You are an AI Manufacturing Supervisor helping a quality control worker through %s.

## Current Context

**SOP**: %s
**Current Step**: %s
**Worker**: %s
**Station**: %s

## Measurements Collected So Far
%s

## SOP Content
%s

## Your Role

You are guiding the worker through this SOP step-by-step via VOICE interaction. Your responses will be spoken aloud.

1. **Guide sequentially**: Walk through each step in order
2. **Ask clarifying questions**: When you need more information
3. **Use tools**: Call measurement tools when needed (measureDefectDepth, checkSurfaceRoughness, analyzeDefectPattern)
4. **Make decisions**: Based on SOP criteria and measurements
5. **Speak naturally**: Keep responses clear and conversational (this is voice)
6. **Be concise**: Avoid long explanations - workers are on the factory floor

## Decision Rules from SOP-QC-015

- If defect depth > 0.02mm: **QUARANTINE required**
- If defect depth <= 0.02mm: **ACCEPT with documentation**
- Surface roughness must be < Ra 1.6um
- Random pitting with depth > 0.02mm: **QUARANTINE + engineering review**

## Tool Usage

When you need measurements, use these tools:
- measureDefectDepth(location, defect_type) - Measures defect depth
- checkSurfaceRoughness(measurement_points) - Checks surface roughness
- analyzeDefectPattern(defect_description) - Identifies defect pattern

## Response Style

GOOD: "Let me measure that defect depth for you. [calls tool] The depth is 0.024mm, which exceeds tolerance. This batch needs to be quarantined."

BAD: "Based on the standard operating procedure SOP-QC-015 section 4.2.1, we must now proceed to execute a measurement of the surface defect depth utilizing the calibrated surface roughness gauge..."

Keep it natural, clear, and action-oriented.`,
		retrieval.DocumentID,
		retrieval.DocumentTitle,
		currentStep,
		state.WorkerName,
		state.Station,
		string(measurements),
		retrieval.Context,
	)
}

// decisionGroups are checked in priority order; the first matching group
// wins even when later groups also match.
var decisionGroups = []struct {
	keywords []string
	decision models.Decision
}{
	{
		keywords: []string{"quarantine", "reject"},
		decision: models.Decision{
			Outcome:   models.OutcomeQuarantine,
			Criteria:  "Defect exceeds tolerance",
			Reasoning: "Measurements indicate defect exceeds acceptable tolerances",
		},
	},
	{
		keywords: []string{"accept", "within tolerance"},
		decision: models.Decision{
			Outcome:   models.OutcomeAccept,
			Criteria:  "Defect within tolerance",
			Reasoning: "Measurements indicate defect is within acceptable tolerances",
		},
	},
	{
		keywords: []string{"escalate", "supervisor"},
		decision: models.Decision{
			Outcome:   models.OutcomeEscalate,
			Criteria:  "Requires expert review",
			Reasoning: "Issue requires human supervisor review",
		},
	},
}

func extractDecision(response string) *models.Decision {
	lower := strings.ToLower(response)
	for _, g := range decisionGroups {
		for _, kw := range g.keywords {
			if strings.Contains(lower, kw) {
				d := g.decision
				return &d
			}
		}
	}
	return nil
}

var stepPattern = regexp.MustCompile(`(?i)step (\d+)`)

func extractNextStep(response string, currentStep *int) *int {
	if m := stepPattern.FindStringSubmatch(response); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return &n
		}
	}
	if currentStep != nil {
		next := *currentStep + 1
		return &next
	}
	return nil
}

var confirmationKeywords = []string{"confirm", "verify", "check", "please", "can you"}

func requiresUserInput(response string, calls []models.ToolCallRequest) bool {
	if len(calls) > 0 {
		return false
	}
	if strings.Contains(response, "?") {
		return true
	}
	lower := strings.ToLower(response)
	for _, kw := range confirmationKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
