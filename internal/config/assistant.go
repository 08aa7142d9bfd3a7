package config

import (
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/fsalinas26/Guido/internal/models"
)

// SupportedAssistantVersion is the only assistant settings schema version
// this build understands.
const SupportedAssistantVersion = 1

// ModelSettings selects and tunes one completion model.
type ModelSettings struct {
	Name        string  `yaml:"name"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// WorkerDefaults are applied when a call starts without worker metadata.
type WorkerDefaults struct {
	Name    string `yaml:"name"`
	Station string `yaml:"station"`
}

// RetrievalSettings tune the knowledge retriever.
type RetrievalSettings struct {
	// Limit is the number of nearest chunks requested per search.
	Limit int `yaml:"limit"`

	// FallbackDocumentID is returned when the search backend errors.
	FallbackDocumentID string `yaml:"fallback_document_id"`

	// FallbackDocumentTitle is the title of the fallback document.
	FallbackDocumentTitle string `yaml:"fallback_document_title"`

	// FallbackContext is the minimal context text for the fallback document.
	FallbackContext string `yaml:"fallback_context"`
}

// AssistantSettings is the YAML-backed configuration of the conversational
// assistant: defaults for new sessions, fixed texts, and model selection.
type AssistantSettings struct {
	Version   int               `yaml:"version"`
	Worker    WorkerDefaults    `yaml:"worker"`
	Greeting  string            `yaml:"greeting"`
	Intent    ModelSettings     `yaml:"intent_model"`
	Navigator ModelSettings     `yaml:"navigator_model"`
	Retrieval RetrievalSettings `yaml:"retrieval"`
}

// DefaultAssistantSettings returns the built-in assistant settings, matching
// the deployed quality-control assistant.
func DefaultAssistantSettings() *AssistantSettings {
	return &AssistantSettings{
		Version: SupportedAssistantVersion,
		Worker: WorkerDefaults{
			Name:    "Jake",
			Station: "Line 3 - Quality Control",
		},
		Greeting: "Hi, this is your AI Supervisor. I'm here to help you with any questions about procedures, quality issues, or equipment. What can I help you with today?",
		Intent: ModelSettings{
			Name:        "claude-3-5-haiku-20241022",
			Temperature: 0.1,
			MaxTokens:   200,
		},
		Navigator: ModelSettings{
			Name:        "claude-sonnet-4-5-20250929",
			Temperature: 0.2,
			MaxTokens:   500,
		},
		Retrieval: RetrievalSettings{
			Limit:                 10,
			FallbackDocumentID:    "SOP-QC-015",
			FallbackDocumentTitle: "Surface Defect Evaluation and Quarantine Protocol",
			FallbackContext:       "SOP-QC-015: Surface defect evaluation for brake rotors. Measure defect depth; quarantine when depth exceeds 0.02mm tolerance.",
		},
	}
}

// LoadAssistantSettings loads and validates an assistant settings file using
// Koanf. An empty path returns the built-in defaults. Missing individual
// fields fall back to their defaults so operators can override selectively.
func LoadAssistantSettings(path string) (*AssistantSettings, error) {
	settings := DefaultAssistantSettings()
	if path == "" {
		return settings, nil
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load assistant settings from %q: %w", path, err)
	}
	if err := k.UnmarshalWithConf("", settings, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("failed to parse assistant settings from %q: %w", path, err)
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("assistant settings validation failed for %q: %w", path, err)
	}
	return settings, nil
}

// Validate checks structural constraints of the assistant settings.
func (a *AssistantSettings) Validate() error {
	if a.Version != SupportedAssistantVersion {
		return models.NewValidationError("unsupported assistant settings version %d (want %d)", a.Version, SupportedAssistantVersion)
	}
	if a.Greeting == "" {
		return models.NewValidationError("greeting must not be empty")
	}
	if a.Intent.Name == "" || a.Navigator.Name == "" {
		return models.NewValidationError("intent_model.name and navigator_model.name must be set")
	}
	if a.Intent.MaxTokens < 1 || a.Navigator.MaxTokens < 1 {
		return models.NewValidationError("model max_tokens must be at least 1")
	}
	if a.Retrieval.Limit < 1 {
		return models.NewValidationError("retrieval.limit must be at least 1")
	}
	if a.Retrieval.FallbackDocumentID == "" {
		return models.NewValidationError("retrieval.fallback_document_id must not be empty")
	}
	return nil
}
