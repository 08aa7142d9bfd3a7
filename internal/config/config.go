// Package config holds runtime configuration for the Guido server: flag
// driven process settings plus a YAML assistant settings file.
package config

import (
	"time"

	"github.com/fsalinas26/Guido/internal/models"
)

// Config holds all process-level configuration for the application.
type Config struct {
	// APIPort is the port the API server listens on.
	APIPort int

	// LogLevel is the default logging level (debug, info, warn, error).
	LogLevel string

	// AssistantConfigPath is the path to the YAML assistant settings file.
	// Empty means built-in defaults.
	AssistantConfigPath string

	// DemoMode selects the in-memory similarity index and the scripted
	// completion provider instead of the real backends.
	DemoMode bool

	// WeaviateHost is the host:port of the similarity search backend.
	WeaviateHost string

	// WeaviateScheme is the URL scheme for the similarity search backend.
	WeaviateScheme string

	// WeaviateClass is the collection holding procedure document chunks.
	WeaviateClass string

	// SessionTTL is how long an idle session survives before the reaper
	// deletes it.
	SessionTTL time.Duration

	// ReaperInterval is how often the session reaper scans for idle sessions.
	ReaperInterval time.Duration

	// MaxConcurrentTurns bounds the number of turns processed in parallel
	// across all calls.
	MaxConcurrentTurns int

	// IntentTimeout is the deadline for one intent classification call.
	IntentTimeout time.Duration

	// NavigatorTimeout is the deadline for one decision navigation call.
	NavigatorTimeout time.Duration

	// SearchTimeout is the deadline for one similarity search call.
	SearchTimeout time.Duration
}

// Default returns a Config with production defaults.
func Default() *Config {
	return &Config{
		APIPort:            8080,
		LogLevel:           "info",
		WeaviateHost:       "localhost:8081",
		WeaviateScheme:     "http",
		WeaviateClass:      "ProcedureChunk",
		SessionTTL:         30 * time.Minute,
		ReaperInterval:     time.Minute,
		MaxConcurrentTurns: 32,
		IntentTimeout:      10 * time.Second,
		NavigatorTimeout:   30 * time.Second,
		SearchTimeout:      10 * time.Second,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.APIPort < 1 || c.APIPort > 65535 {
		return models.NewValidationError("APIPort must be between 1 and 65535")
	}
	if c.SessionTTL <= 0 {
		return models.NewValidationError("SessionTTL must be positive")
	}
	if c.ReaperInterval <= 0 {
		return models.NewValidationError("ReaperInterval must be positive")
	}
	if c.MaxConcurrentTurns < 1 {
		return models.NewValidationError("MaxConcurrentTurns must be at least 1")
	}
	if c.IntentTimeout <= 0 || c.NavigatorTimeout <= 0 || c.SearchTimeout <= 0 {
		return models.NewValidationError("provider timeouts must be positive")
	}
	if !c.DemoMode {
		if c.WeaviateHost == "" {
			return models.NewValidationError("WeaviateHost must not be empty")
		}
		if c.WeaviateScheme != "http" && c.WeaviateScheme != "https" {
			return models.NewValidationError("WeaviateScheme must be http or https")
		}
		if c.WeaviateClass == "" {
			return models.NewValidationError("WeaviateClass must not be empty")
		}
	}
	return nil
}
