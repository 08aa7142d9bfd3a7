// Package pipeline orchestrates one conversational turn through the five
// agent stages: intent classification, knowledge retrieval, decision
// navigation, action execution, and interaction logging.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/fsalinas26/Guido/internal/agent/intent"
	"github.com/fsalinas26/Guido/internal/agent/navigator"
	"github.com/fsalinas26/Guido/internal/agent/retriever"
	"github.com/fsalinas26/Guido/internal/agent/tools"
	"github.com/fsalinas26/Guido/internal/config"
	"github.com/fsalinas26/Guido/internal/incident"
	"github.com/fsalinas26/Guido/internal/logging"
	"github.com/fsalinas26/Guido/internal/metrics"
	"github.com/fsalinas26/Guido/internal/models"
	"github.com/fsalinas26/Guido/internal/session"
)

// apologyResponse is returned when a turn fails in a way the stage
// fallbacks could not absorb. The session is left exactly as it was before
// the turn started.
const apologyResponse = "I'm experiencing technical difficulties. Let me connect you with a supervisor."

// Result is the outcome of one turn.
type Result struct {
	ResponseText string
	Session      *models.ConversationState
	Err          error
}

// Orchestrator wires the five stages over a shared session store.
type Orchestrator struct {
	store      *session.Store
	classifier *intent.Classifier
	retriever  *retriever.Retriever
	navigator  *navigator.Navigator
	executor   *tools.Executor
	recorder   *incident.Recorder
	worker     config.WorkerDefaults
	metrics    *metrics.Metrics
	logger     *logging.Logger
}

// New assembles an orchestrator from its stages.
func New(
	store *session.Store,
	classifier *intent.Classifier,
	ret *retriever.Retriever,
	nav *navigator.Navigator,
	executor *tools.Executor,
	recorder *incident.Recorder,
	worker config.WorkerDefaults,
	m *metrics.Metrics,
) *Orchestrator {
	return &Orchestrator{
		store:      store,
		classifier: classifier,
		retriever:  ret,
		navigator:  nav,
		executor:   executor,
		recorder:   recorder,
		worker:     worker,
		metrics:    m,
		logger:     logging.GetLogger("pipeline"),
	}
}

// turnDelta collects every session mutation a turn wants to make. It is
// applied in one commit after all stages have run, so a failing turn leaves
// the session untouched.
type turnDelta struct {
	userMessage   string
	documentID    string
	setDocument   bool
	nextStep      *int
	decisionStep  int
	decision      string
	setDecision   bool
	status        models.SessionStatus
	setStatus     bool
	toolResults   []models.ToolResult
	measurements  map[string]string
	finalResponse string
}

// RunTurn processes one worker utterance end to end. Turns for the same
// call id are serialized; different call ids run fully in parallel. RunTurn
// never panics and never leaves a session partially mutated: any failure
// yields the fixed apology text and the pre-turn session snapshot.
func (o *Orchestrator) RunTurn(ctx context.Context, callID, userMessage string) (result *Result) {
	release := o.store.LockCall(callID)
	defer release()

	started := time.Now()
	snapshot := o.store.GetOrCreate(callID, o.worker.Name, o.worker.Station)

	defer func() {
		if r := recover(); r != nil {
			o.logger.ErrorWithFields("turn panicked",
				logging.Field("call_id", callID),
				logging.Field("panic", fmt.Sprint(r)))
			if o.metrics != nil {
				o.metrics.StageErrorsTotal.WithLabelValues("pipeline").Inc()
			}
			result = &Result{
				ResponseText: apologyResponse,
				Session:      snapshot,
				Err:          fmt.Errorf("turn failed: %v", r),
			}
		}
	}()

	o.logger.InfoWithFields("turn started",
		logging.Field("call_id", callID),
		logging.Field("utterance", userMessage))

	classification := o.classifier.Classify(ctx, userMessage, snapshot)
	retrieval := o.retriever.Retrieve(ctx, userMessage, classification)
	delta := o.runGuidance(ctx, userMessage, classification, retrieval, snapshot)

	final, err := o.commit(callID, delta)
	if err != nil {
		o.logger.ErrorWithErr("turn commit failed", err)
		if o.metrics != nil {
			o.metrics.StageErrorsTotal.WithLabelValues("commit").Inc()
		}
		return &Result{ResponseText: apologyResponse, Session: snapshot, Err: err}
	}

	o.recorder.RecordTurn(final, classification.Intent, retrieval.DocumentID, userMessage, delta.finalResponse, delta.toolResults)

	if o.metrics != nil {
		o.metrics.TurnsTotal.WithLabelValues(string(classification.Intent)).Inc()
		o.metrics.TurnDuration.Observe(time.Since(started).Seconds())
	}
	o.logger.InfoWithFields("turn complete",
		logging.Field("call_id", callID),
		logging.Field("intent", string(classification.Intent)),
		logging.Field("document", retrieval.DocumentID),
		logging.Field("duration_ms", time.Since(started).Milliseconds()))

	return &Result{ResponseText: delta.finalResponse, Session: final}
}

// runGuidance runs the navigation and action stages against the read-only
// snapshot and folds their outputs into a delta.
func (o *Orchestrator) runGuidance(ctx context.Context, userMessage string, classification models.IntentResult, retrieval models.RetrievalResult, snapshot *models.ConversationState) *turnDelta {
	delta := &turnDelta{userMessage: userMessage}

	if retrieval.Found() {
		delta.documentID = retrieval.DocumentID
		delta.setDocument = true
	}

	navigation := o.navigator.Navigate(ctx, userMessage, retrieval, snapshot)
	delta.finalResponse = navigation.ResponseText

	if len(navigation.ToolCalls) > 0 {
		delta.toolResults = o.executor.Execute(ctx, navigation.ToolCalls)
		delta.finalResponse += "\n\n" + tools.Narrative(delta.toolResults)
		delta.measurements = tools.Measurements(delta.toolResults)
	}

	if navigation.Decision != nil {
		delta.setDecision = true
		delta.decision = fmt.Sprintf("%s: %s", navigation.Decision.Outcome, navigation.Decision.Reasoning)
		if navigation.NextStep != nil {
			delta.decisionStep = *navigation.NextStep
		}
		if navigation.Decision.Outcome == models.OutcomeQuarantine || navigation.Decision.Outcome == models.OutcomeAccept {
			delta.status = models.StatusAwaitingInput
			delta.setStatus = true
		}
	}
	delta.nextStep = navigation.NextStep

	return delta
}

// commit applies the delta to the live session in stage order and returns
// the committed state.
func (o *Orchestrator) commit(callID string, delta *turnDelta) (*models.ConversationState, error) {
	if err := o.store.AppendMessage(callID, models.RoleUser, delta.userMessage); err != nil {
		return nil, err
	}
	if delta.setDocument {
		if _, err := o.store.Update(callID, session.Update{CurrentDocumentID: &delta.documentID}); err != nil {
			return nil, err
		}
	}
	for _, res := range delta.toolResults {
		if err := o.store.AppendAction(callID, res.ToolName, res.Parameters, res.Result); err != nil {
			return nil, err
		}
	}
	if len(delta.measurements) > 0 {
		if err := o.store.MergeMeasurements(callID, delta.measurements); err != nil {
			return nil, err
		}
	}
	if delta.setDecision {
		if err := o.store.AppendDecision(callID, delta.decisionStep, delta.decision); err != nil {
			return nil, err
		}
	}
	update := session.Update{}
	changed := false
	if delta.setStatus {
		update.Status = &delta.status
		changed = true
	}
	if delta.nextStep != nil {
		update.CurrentStep = delta.nextStep
		changed = true
	}
	if changed {
		if _, err := o.store.Update(callID, update); err != nil {
			return nil, err
		}
	}
	if err := o.store.AppendMessage(callID, models.RoleAssistant, delta.finalResponse); err != nil {
		return nil, err
	}

	final := o.store.Get(callID)
	if final == nil {
		return nil, models.ErrSessionNotFound
	}
	return final, nil
}
