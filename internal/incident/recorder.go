// Package incident journals every pipeline turn and materializes durable
// incident logs for quality issues that reached a decision.
package incident

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fsalinas26/Guido/internal/logging"
	"github.com/fsalinas26/Guido/internal/metrics"
	"github.com/fsalinas26/Guido/internal/models"
)

// Recorder journals turns and owns the append-only incident index.
type Recorder struct {
	mu      sync.RWMutex
	logs    []models.IncidentLog
	byID    map[string]int
	now     func() time.Time
	metrics *metrics.Metrics
	logger  *logging.Logger
}

// New creates an empty Recorder.
func New(m *metrics.Metrics) *Recorder {
	return NewWithClock(m, time.Now)
}

// NewWithClock creates a Recorder with an injected clock.
func NewWithClock(m *metrics.Metrics, now func() time.Time) *Recorder {
	return &Recorder{
		byID:    make(map[string]int),
		now:     now,
		metrics: m,
		logger:  logging.GetLogger("incident"),
	}
}

// RecordTurn journals one completed turn and, for a quality issue that has
// reached at least one decision, materializes a durable IncidentLog. It
// returns the log id when one was created.
func (r *Recorder) RecordTurn(session *models.ConversationState, intent models.Intent, documentUsed, userMessage, agentResponse string, toolResults []models.ToolResult) (string, bool) {
	if intent == models.IntentQualityIssue && len(session.DecisionHistory) > 0 {
		log := r.materialize(session, documentUsed, toolResults)
		r.mu.Lock()
		r.byID[log.LogID] = len(r.logs)
		r.logs = append(r.logs, log)
		r.mu.Unlock()

		if r.metrics != nil {
			r.metrics.IncidentsTotal.Inc()
		}
		r.logger.InfoWithFields("incident logged",
			logging.Field("log_id", log.LogID),
			logging.Field("session_id", session.SessionID),
			logging.Field("decision", log.Decision))
		return log.LogID, true
	}

	r.logger.InfoWithFields("interaction logged",
		logging.Field("session_id", session.SessionID),
		logging.Field("worker", session.WorkerName),
		logging.Field("intent", string(intent)),
		logging.Field("document", documentUsed),
		logging.Field("user_message", userMessage),
		logging.Field("agent_response", agentResponse))
	return "", false
}

func (r *Recorder) materialize(session *models.ConversationState, documentUsed string, toolResults []models.ToolResult) models.IncidentLog {
	resolution := int64(session.TimestampLastUpdate.Sub(session.TimestampStart) / time.Second)
	if resolution < 0 {
		resolution = 0
	}

	measurements := make(map[string]interface{})
	for _, res := range toolResults {
		if !res.Error {
			measurements[res.ToolName] = res.Result
		}
	}

	decision := "In progress"
	if n := len(session.DecisionHistory); n > 0 {
		decision = session.DecisionHistory[n-1].Decision
	}

	actions := make([]string, 0, len(session.ActionsExecuted))
	for _, a := range session.ActionsExecuted {
		actions = append(actions, a.ToolName)
	}

	now := r.now()
	return models.IncidentLog{
		LogID:                 fmt.Sprintf("INC-%d-%s", now.UnixMilli(), uuid.NewString()[:8]),
		SessionID:             session.SessionID,
		Timestamp:             now,
		WorkerName:            session.WorkerName,
		Station:               session.Station,
		DocumentUsed:          documentUsed,
		IssueDescription:      issueDescription(session),
		Measurements:          measurements,
		Decision:              decision,
		ActionsTaken:          actions,
		ResolutionTimeSeconds: resolution,
		AllStepsCompleted:     session.Status == models.StatusCompleted,
		DocumentationComplete: true,
	}
}

// issueDescription is the first worker utterance of the session.
func issueDescription(session *models.ConversationState) string {
	for _, msg := range session.ConversationHistory {
		if msg.Role == models.RoleUser {
			return msg.Content
		}
	}
	return "Quality issue reported"
}

// ByID returns a copy of the incident with the given log id.
func (r *Recorder) ByID(logID string) (models.IncidentLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.byID[logID]
	if !ok {
		return models.IncidentLog{}, models.ErrIncidentNotFound
	}
	return copyLog(r.logs[idx]), nil
}

// ListAll returns copies of every incident in append order.
func (r *Recorder) ListAll() []models.IncidentLog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.IncidentLog, len(r.logs))
	for i, l := range r.logs {
		out[i] = copyLog(l)
	}
	return out
}

// Count returns the number of materialized incidents.
func (r *Recorder) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.logs)
}

func copyLog(l models.IncidentLog) models.IncidentLog {
	c := l
	c.Measurements = make(map[string]interface{}, len(l.Measurements))
	for k, v := range l.Measurements {
		c.Measurements[k] = v
	}
	c.ActionsTaken = append([]string(nil), l.ActionsTaken...)
	return c
}
