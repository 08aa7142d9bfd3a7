package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/fsalinas26/Guido/internal/models"
)

// pipelineRequest accepts both the snake_case and camelCase field names the
// original webhook clients send.
type pipelineRequest struct {
	Utterance   string `json:"utterance"`
	UserMessage string `json:"userMessage"`
	CallID      string `json:"call_id"`
	CallIDAlt   string `json:"callId"`
}

func (r *pipelineRequest) message() string {
	if r.Utterance != "" {
		return r.Utterance
	}
	return r.UserMessage
}

func (r *pipelineRequest) call() string {
	if r.CallID != "" {
		return r.CallID
	}
	return r.CallIDAlt
}

type pipelineResponse struct {
	ResponseText string                    `json:"response_text"`
	Session      *models.ConversationState `json:"session"`
	Error        string                    `json:"error,omitempty"`
}

// handlePipeline runs one full agent turn. Internal failures still answer
// 200 with the apology text so the voice layer always has something to
// speak; only malformed requests get a 4xx.
func (s *Server) handlePipeline(w http.ResponseWriter, r *http.Request) {
	var req pipelineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "request body must be valid JSON")
		return
	}
	if req.message() == "" || req.call() == "" {
		writeError(w, http.StatusBadRequest, "MISSING_FIELDS", "utterance and call_id are required")
		return
	}

	if err := s.turnGate.Acquire(r.Context(), 1); err != nil {
		writeError(w, http.StatusServiceUnavailable, "SERVER_BUSY", "too many concurrent turns")
		return
	}
	defer s.turnGate.Release(1)

	result := s.orch.RunTurn(r.Context(), req.call(), req.message())
	resp := pipelineResponse{
		ResponseText: result.ResponseText,
		Session:      result.Session,
	}
	if result.Err != nil {
		resp.Error = result.Err.Error()
	}
	writeOK(w, resp)
}

// voiceEvent is the webhook payload from the voice platform.
type voiceEvent struct {
	Type string `json:"type"`
	Call struct {
		ID string `json:"id"`
	} `json:"call"`
	Transcript struct {
		Text string `json:"text"`
	} `json:"transcript"`
}

// handleVoiceWebhook translates voice platform events into session
// lifecycle operations and pipeline turns. The message field of the reply
// is spoken to the worker.
func (s *Server) handleVoiceWebhook(w http.ResponseWriter, r *http.Request) {
	var event voiceEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "request body must be valid JSON")
		return
	}
	s.logger.Debug("voice webhook event: %s", event.Type)

	switch event.Type {
	case "call-start":
		if event.Call.ID == "" {
			writeError(w, http.StatusBadRequest, "MISSING_FIELDS", "call.id is required")
			return
		}
		if _, err := s.store.Create(event.Call.ID, s.settings.Worker.Name, s.settings.Worker.Station); err != nil && !errors.Is(err, models.ErrSessionExists) {
			writeError(w, http.StatusInternalServerError, "SESSION_ERROR", err.Error())
			return
		}
		writeOK(w, map[string]string{"message": s.settings.Greeting})

	case "transcript":
		if event.Call.ID == "" {
			writeError(w, http.StatusBadRequest, "MISSING_FIELDS", "call.id is required")
			return
		}
		if event.Transcript.Text == "" {
			writeOK(w, map[string]string{"message": "I didn't catch that. Could you repeat?"})
			return
		}
		if err := s.turnGate.Acquire(r.Context(), 1); err != nil {
			writeError(w, http.StatusServiceUnavailable, "SERVER_BUSY", "too many concurrent turns")
			return
		}
		defer s.turnGate.Release(1)

		result := s.orch.RunTurn(r.Context(), event.Call.ID, event.Transcript.Text)
		writeOK(w, map[string]string{"message": result.ResponseText})

	case "call-end":
		// serialize with any in-flight turn for this call before deleting
		release := s.store.LockCall(event.Call.ID)
		s.store.Delete(event.Call.ID)
		release()
		writeOK(w, map[string]bool{"success": true})

	case "function-call":
		writeOK(w, map[string]string{"result": "Function call handled"})

	default:
		s.logger.Debug("unhandled voice event type: %s", event.Type)
		writeOK(w, map[string]bool{"success": true})
	}
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.store.ListAll()
	writeOK(w, map[string]interface{}{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

func (s *Server) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	callID := strings.TrimPrefix(r.URL.Path, "/api/session/")
	if callID == "" || strings.Contains(callID, "/") {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "call id missing from path")
		return
	}
	sess := s.store.Get(callID)
	if sess == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "session not found")
		return
	}
	writeOK(w, sess)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	logs := s.recorder.ListAll()
	writeOK(w, map[string]interface{}{
		"logs":  logs,
		"count": len(logs),
	})
}

func (s *Server) handleLogByID(w http.ResponseWriter, r *http.Request) {
	logID := strings.TrimPrefix(r.URL.Path, "/api/logs/")
	if logID == "" || strings.Contains(logID, "/") {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "log id missing from path")
		return
	}
	log, err := s.recorder.ByID(logID)
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "incident log not found")
		return
	}
	writeOK(w, log)
}
