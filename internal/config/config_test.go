package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(c *Config) {}, false},
		{"bad port", func(c *Config) { c.APIPort = 0 }, true},
		{"zero ttl", func(c *Config) { c.SessionTTL = 0 }, true},
		{"zero reaper interval", func(c *Config) { c.ReaperInterval = 0 }, true},
		{"zero concurrency", func(c *Config) { c.MaxConcurrentTurns = 0 }, true},
		{"bad scheme", func(c *Config) { c.WeaviateScheme = "ftp" }, true},
		{"empty host allowed in demo mode", func(c *Config) {
			c.DemoMode = true
			c.WeaviateHost = ""
		}, false},
		{"empty host rejected otherwise", func(c *Config) { c.WeaviateHost = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadAssistantSettingsDefaults(t *testing.T) {
	settings, err := LoadAssistantSettings("")
	require.NoError(t, err)
	assert.Equal(t, "Jake", settings.Worker.Name)
	assert.Equal(t, "SOP-QC-015", settings.Retrieval.FallbackDocumentID)
	assert.Equal(t, 10, settings.Retrieval.Limit)
	assert.NotEmpty(t, settings.Greeting)
}

func TestLoadAssistantSettingsOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "assistant.yaml")
	content := `version: 1
worker:
  name: Maria
  station: Line 7 - Final Inspection
retrieval:
  limit: 5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	settings, err := LoadAssistantSettings(path)
	require.NoError(t, err)
	assert.Equal(t, "Maria", settings.Worker.Name)
	assert.Equal(t, "Line 7 - Final Inspection", settings.Worker.Station)
	assert.Equal(t, 5, settings.Retrieval.Limit)
	// Fields absent from the file keep their defaults.
	assert.Equal(t, "SOP-QC-015", settings.Retrieval.FallbackDocumentID)
	assert.NotEmpty(t, settings.Navigator.Name)
}

func TestLoadAssistantSettingsRejectsBadVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "assistant.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 9\n"), 0o644))

	_, err := LoadAssistantSettings(path)
	assert.Error(t, err)
}

func TestLoadAssistantSettingsMissingFile(t *testing.T) {
	_, err := LoadAssistantSettings(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
