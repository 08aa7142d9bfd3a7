// Package intent classifies worker utterances into a closed set of intents
// by calling the completion provider. Pipeline continuity takes priority
// over classification fidelity: every failure path collapses to a
// deterministic fallback result instead of an error.
package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fsalinas26/Guido/internal/config"
	"github.com/fsalinas26/Guido/internal/logging"
	"github.com/fsalinas26/Guido/internal/metrics"
	"github.com/fsalinas26/Guido/internal/models"
	"github.com/fsalinas26/Guido/internal/provider"
)

const systemPrompt = `You are an intent classification system for a manufacturing AI assistant.

Your job is to classify worker queries into one of these categories:
1. quality_issue - Problems with part quality, defects, surface issues
2. procedure_query - Questions about how to do something
3. equipment_issue - Problems with tools, machines, or equipment
4. general_question - Other questions or clarifications
5. confirmation - Worker confirming completion of a task

Extract key entities like:
- part_type (e.g., "brake rotor", "shaft", "bearing")
- issue_type (e.g., "surface defects", "scratches", "pitting")
- location (e.g., "Line 3", "Station 5")

Respond ONLY with valid JSON in this format:
{
  "intent": "quality_issue",
  "confidence": 0.95,
  "extracted_entities": {
    "part_type": "brake rotor",
    "issue_type": "surface defects",
    "location": "Line 3"
  }
}`

// Classifier determines what the worker needs from their utterance.
type Classifier struct {
	provider provider.Provider
	model    config.ModelSettings
	timeout  time.Duration
	metrics  *metrics.Metrics
	logger   *logging.Logger
}

// NewClassifier creates an intent classifier.
func NewClassifier(p provider.Provider, model config.ModelSettings, timeout time.Duration, m *metrics.Metrics) *Classifier {
	return &Classifier{
		provider: p,
		model:    model,
		timeout:  timeout,
		metrics:  m,
		logger:   logging.GetLogger("agent.intent"),
	}
}

// Fallback is the deterministic result returned on any provider failure,
// malformed output, or out-of-enum intent.
func Fallback() models.IntentResult {
	return models.IntentResult{
		Intent:            models.IntentGeneralQuestion,
		Confidence:        0.5,
		ExtractedEntities: map[string]string{},
	}
}

// Classify produces an IntentResult for the utterance. The result is always
// drawn from the closed intent enum; errors never propagate.
func (c *Classifier) Classify(ctx context.Context, utterance string, sess *models.ConversationState) models.IntentResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	currentDoc := sess.CurrentDocumentID
	if currentDoc == "" {
		currentDoc = "None"
	}
	userMessage := fmt.Sprintf(`Worker context:
Name: %s
Station: %s
Current procedure: %s

Worker's message: %q

Classify this intent and extract entities.`, sess.WorkerName, sess.Station, currentDoc, utterance)

	resp, err := c.provider.Complete(ctx, provider.Request{
		SystemPrompt: systemPrompt,
		Messages:     []provider.Message{{Role: provider.RoleUser, Content: userMessage}},
		Model:        c.model.Name,
		Temperature:  c.model.Temperature,
		MaxTokens:    c.model.MaxTokens,
		JSONResponse: true,
	})
	if err != nil {
		c.logger.WarnWithFields("classification failed, using fallback",
			logging.Field("call_id", sess.CallID),
			logging.Field("error", err),
		)
		c.countFallback()
		return Fallback()
	}

	result, err := parseResult(resp.Content)
	if err != nil {
		c.logger.Warn("unparseable classification %q: %v", truncate(resp.Content, 120), err)
		c.countFallback()
		return Fallback()
	}
	c.logger.DebugWithFields("intent classified",
		logging.Field("call_id", sess.CallID),
		logging.Field("intent", result.Intent),
		logging.Field("confidence", result.Confidence),
	)
	return result
}

func (c *Classifier) countFallback() {
	if c.metrics != nil {
		c.metrics.FallbacksTotal.WithLabelValues("intent").Inc()
	}
}

// parseResult extracts an IntentResult from the model's reply. Models
// occasionally wrap JSON in code fences or prose, so the parser cuts the
// outermost brace pair before decoding.
func parseResult(content string) (models.IntentResult, error) {
	raw := extractJSON(content)
	if raw == "" {
		return models.IntentResult{}, fmt.Errorf("no JSON object in response")
	}

	var parsed struct {
		Intent            string            `json:"intent"`
		Confidence        float64           `json:"confidence"`
		ExtractedEntities map[string]string `json:"extracted_entities"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return models.IntentResult{}, fmt.Errorf("decoding classification: %w", err)
	}
	if !models.ValidIntent(parsed.Intent) {
		return models.IntentResult{}, fmt.Errorf("intent %q outside closed enum", parsed.Intent)
	}
	if parsed.Confidence < 0 || parsed.Confidence > 1 {
		return models.IntentResult{}, fmt.Errorf("confidence %v outside [0,1]", parsed.Confidence)
	}
	entities := parsed.ExtractedEntities
	if entities == nil {
		entities = map[string]string{}
	}
	return models.IntentResult{
		Intent:            models.Intent(parsed.Intent),
		Confidence:        parsed.Confidence,
		ExtractedEntities: entities,
	}, nil
}

func extractJSON(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return ""
	}
	return content[start : end+1]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
