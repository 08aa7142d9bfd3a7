package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fsalinas26/Guido/internal/agent/intent"
	"github.com/fsalinas26/Guido/internal/agent/navigator"
	"github.com/fsalinas26/Guido/internal/agent/retriever"
	"github.com/fsalinas26/Guido/internal/agent/tools"
	"github.com/fsalinas26/Guido/internal/config"
	"github.com/fsalinas26/Guido/internal/incident"
	"github.com/fsalinas26/Guido/internal/metrics"
	"github.com/fsalinas26/Guido/internal/models"
	"github.com/fsalinas26/Guido/internal/pipeline"
	"github.com/fsalinas26/Guido/internal/provider"
	"github.com/fsalinas26/Guido/internal/search"
	"github.com/fsalinas26/Guido/internal/session"
)

const qualityIssueJSON = `{"intent":"quality_issue","confidence":0.95,"extracted_entities":{"part_type":"brake rotor","issue_type":"scratches"}}`

func newTestServer(t *testing.T, navSteps ...provider.ScenarioStep) *Server {
	t.Helper()
	registry := prometheus.NewRegistry()
	store := session.NewStore()
	m := metrics.New(registry, store.Count)
	settings := config.DefaultAssistantSettings()
	cfg := config.Default()
	cfg.DemoMode = true

	intentSteps := make([]provider.ScenarioStep, len(navSteps))
	for i := range navSteps {
		intentSteps[i] = provider.ScenarioStep{Text: qualityIssueJSON}
	}
	recorder := incident.New(m)
	orch := pipeline.New(
		store,
		intent.NewClassifier(provider.NewScriptedProvider(intentSteps...), settings.Intent, time.Second, m),
		retriever.New(search.NewDemoIndex(), settings.Retrieval, time.Second, m),
		navigator.New(provider.NewScriptedProvider(navSteps...), settings.Navigator, time.Second, m),
		tools.NewExecutor(1, m),
		recorder,
		settings.Worker,
		m,
	)
	return New(cfg, settings, orch, store, recorder, registry)
}

func doJSON(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, req)
	return rec
}

func TestPipelineEndpoint(t *testing.T) {
	s := newTestServer(t, provider.ScenarioStep{Text: "Let's start with Step 1: stop the line."})

	rec := doJSON(t, s, http.MethodPost, "/api/agent/pipeline", map[string]string{
		"utterance": "I'm seeing scratches on these brake rotors",
		"call_id":   "call-1",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		ResponseText string                    `json:"response_text"`
		Session      *models.ConversationState `json:"session"`
		Error        string                    `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.ResponseText, "Step 1")
	require.NotNil(t, resp.Session)
	assert.Equal(t, "call-1", resp.Session.CallID)
	assert.Empty(t, resp.Error)
}

func TestPipelineEndpointCamelCaseFields(t *testing.T) {
	s := newTestServer(t, provider.ScenarioStep{Text: "Understood."})

	rec := doJSON(t, s, http.MethodPost, "/api/agent/pipeline", map[string]string{
		"userMessage": "scratches on the rotors",
		"callId":      "call-camel",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotNil(t, s.store.Get("call-camel"))
}

func TestPipelineEndpointMissingFields(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/agent/pipeline", map[string]string{"utterance": "hello"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/agent/pipeline", map[string]string{"call_id": "call-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPipelineEndpointAnswersOKOnInternalFailure(t *testing.T) {
	// exhausted script makes the navigator fall back, never a 5xx
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/agent/pipeline", map[string]string{
		"utterance": "scratches",
		"call_id":   "call-1",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		ResponseText string `json:"response_text"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ResponseText)
}

func TestVoiceWebhookLifecycle(t *testing.T) {
	s := newTestServer(t, provider.ScenarioStep{Text: "Let me check that for you."})

	// call-start creates the session and returns the greeting
	rec := doJSON(t, s, http.MethodPost, "/api/voice/webhook", map[string]interface{}{
		"type": "call-start",
		"call": map[string]string{"id": "call-v1"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var startResp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &startResp))
	assert.Equal(t, s.settings.Greeting, startResp["message"])
	require.NotNil(t, s.store.Get("call-v1"))

	// duplicate call-start is idempotent
	rec = doJSON(t, s, http.MethodPost, "/api/voice/webhook", map[string]interface{}{
		"type": "call-start",
		"call": map[string]string{"id": "call-v1"},
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	// transcript runs a turn
	rec = doJSON(t, s, http.MethodPost, "/api/voice/webhook", map[string]interface{}{
		"type":       "transcript",
		"call":       map[string]string{"id": "call-v1"},
		"transcript": map[string]string{"text": "scratches on the rotors"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var turnResp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &turnResp))
	assert.Equal(t, "Let me check that for you.", turnResp["message"])

	// empty transcript asks for a repeat without running a turn
	rec = doJSON(t, s, http.MethodPost, "/api/voice/webhook", map[string]interface{}{
		"type": "transcript",
		"call": map[string]string{"id": "call-v1"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &turnResp))
	assert.Equal(t, "I didn't catch that. Could you repeat?", turnResp["message"])

	// call-end deletes the session
	rec = doJSON(t, s, http.MethodPost, "/api/voice/webhook", map[string]interface{}{
		"type": "call-end",
		"call": map[string]string{"id": "call-v1"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, s.store.Get("call-v1"))

	// unknown event types are acknowledged
	rec = doJSON(t, s, http.MethodPost, "/api/voice/webhook", map[string]interface{}{
		"type": "speech-update",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestVoiceWebhookCallEndWaitsForTurn(t *testing.T) {
	s := newTestServer(t, provider.ScenarioStep{Text: "Checking."})
	_, err := s.store.Create("call-race", "Jake", "Line 3 - Quality Control")
	require.NoError(t, err)

	release := s.store.LockCall("call-race")
	done := make(chan struct{})
	go func() {
		doJSON(t, s, http.MethodPost, "/api/voice/webhook", map[string]interface{}{
			"type": "call-end",
			"call": map[string]string{"id": "call-race"},
		})
		close(done)
	}()

	// the delete must not land while the call lock is held
	select {
	case <-done:
		t.Fatal("call-end completed while the call lock was held")
	case <-time.After(50 * time.Millisecond):
	}
	require.NotNil(t, s.store.Get("call-race"))

	release()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("call-end did not complete after the call lock was released")
	}
	assert.Nil(t, s.store.Get("call-race"))
}

func TestSessionEndpoints(t *testing.T) {
	s := newTestServer(t, provider.ScenarioStep{Text: "Understood."})
	doJSON(t, s, http.MethodPost, "/api/agent/pipeline", map[string]string{
		"utterance": "scratches", "call_id": "call-1",
	})

	rec := doJSON(t, s, http.MethodGet, "/api/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listResp struct {
		Count    int                         `json:"count"`
		Sessions []*models.ConversationState `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listResp))
	assert.Equal(t, 1, listResp.Count)

	rec = doJSON(t, s, http.MethodGet, "/api/session/call-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var sess models.ConversationState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))
	assert.Equal(t, "call-1", sess.CallID)

	rec = doJSON(t, s, http.MethodGet, "/api/session/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLogEndpoints(t *testing.T) {
	s := newTestServer(t, provider.ScenarioStep{Text: "Quarantine the batch."})
	doJSON(t, s, http.MethodPost, "/api/agent/pipeline", map[string]string{
		"utterance": "deep scratches on the rotors", "call_id": "call-1",
	})

	rec := doJSON(t, s, http.MethodGet, "/api/logs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listResp struct {
		Count int                  `json:"count"`
		Logs  []models.IncidentLog `json:"logs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listResp))
	require.Equal(t, 1, listResp.Count)

	rec = doJSON(t, s, http.MethodGet, fmt.Sprintf("/api/logs/%s", listResp.Logs[0].LogID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/logs/INC-missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndReady(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, true, health["demo"])

	rec = doJSON(t, s, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, provider.ScenarioStep{Text: "Understood."})
	doJSON(t, s, http.MethodPost, "/api/agent/pipeline", map[string]string{
		"utterance": "scratches", "call_id": "call-1",
	})

	rec := doJSON(t, s, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "guido_turns_total")
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/api/agent/pipeline", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/agent/pipeline", nil)
	rec := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
