// Package api exposes the agent pipeline, session introspection, and
// incident logs over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/semaphore"

	"github.com/fsalinas26/Guido/internal/config"
	"github.com/fsalinas26/Guido/internal/incident"
	"github.com/fsalinas26/Guido/internal/logging"
	"github.com/fsalinas26/Guido/internal/pipeline"
	"github.com/fsalinas26/Guido/internal/session"
)

// Server handles HTTP API requests.
type Server struct {
	port     int
	server   *http.Server
	router   *http.ServeMux
	logger   *logging.Logger
	orch     *pipeline.Orchestrator
	store    *session.Store
	recorder *incident.Recorder
	settings *config.AssistantSettings
	turnGate *semaphore.Weighted
	registry *prometheus.Registry
	demoMode bool
}

// New creates a new API server.
func New(cfg *config.Config, settings *config.AssistantSettings, orch *pipeline.Orchestrator, store *session.Store, recorder *incident.Recorder, registry *prometheus.Registry) *Server {
	s := &Server{
		port:     cfg.APIPort,
		logger:   logging.GetLogger("api"),
		orch:     orch,
		store:    store,
		recorder: recorder,
		settings: settings,
		turnGate: semaphore.NewWeighted(int64(cfg.MaxConcurrentTurns)),
		registry: registry,
		demoMode: cfg.DemoMode,
		router:   http.NewServeMux(),
	}

	s.registerHandlers()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.APIPort),
		Handler:      s.corsMiddleware(s.router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// registerHandlers registers all HTTP handlers
func (s *Server) registerHandlers() {
	s.router.HandleFunc("/api/agent/pipeline", s.withMethod(http.MethodPost, s.handlePipeline))
	s.router.HandleFunc("/api/voice/webhook", s.withMethod(http.MethodPost, s.handleVoiceWebhook))
	s.router.HandleFunc("/api/sessions", s.withMethod(http.MethodGet, s.handleSessions))
	s.router.HandleFunc("/api/session/", s.withMethod(http.MethodGet, s.handleSessionByID))
	s.router.HandleFunc("/api/logs", s.withMethod(http.MethodGet, s.handleLogs))
	s.router.HandleFunc("/api/logs/", s.withMethod(http.MethodGet, s.handleLogByID))
	s.router.HandleFunc("/health", s.handleHealth)
	s.router.HandleFunc("/ready", s.handleReady)
	if s.registry != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}
}

// withMethod wraps a handler to enforce HTTP method
func (s *Server) withMethod(method string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
				fmt.Sprintf("method %s not allowed", r.Method))
			return
		}
		handler(w, r)
	}
}

// corsMiddleware adds CORS headers to allow browser access
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Start implements the lifecycle.Component interface.
func (s *Server) Start(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error: %v", err)
		}
	}()

	s.logger.Info("HTTP API server started and listening on port %d", s.port)
	return nil
}

// Stop implements the lifecycle.Component interface.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server...")

	done := make(chan error, 1)
	go func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		done <- s.server.Shutdown(shutdownCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			s.logger.Error("HTTP server shutdown error: %v", err)
			return err
		}
		s.logger.Info("HTTP server stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("HTTP server shutdown timeout")
		return ctx.Err()
	}
}

// Name implements the lifecycle.Component interface.
func (s *Server) Name() string {
	return "api-server"
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = writeJSON(w, map[string]interface{}{
		"status": "healthy",
		"demo":   s.demoMode,
	})
}

// handleReady handles readiness check requests
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = writeJSON(w, map[string]interface{}{
		"ready": true,
	})
}
