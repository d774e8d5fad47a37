package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSettings(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	// Point at an explicit empty file so no stray settings.yaml on the
	// machine leaks into the test.
	cfgPath := writeSettings(t, "")

	cfg, err := Load(cfgPath)
	require.NoError(t, err)

	assert.Equal(t, "native", cfg.Provider)
	assert.Equal(t, "http://localhost:11434", cfg.Insight.URL)
	assert.Equal(t, "qwen3:latest", cfg.Insight.Model)
	assert.Equal(t, 90*time.Second, cfg.Insight.Timeout)
	assert.Equal(t, 250*time.Millisecond, cfg.Insight.Debounce)
	assert.Equal(t, 100*time.Millisecond, cfg.Insight.Throttle)

	assert.Equal(t, "http://localhost:8080", cfg.Questionnaire.URL)
	assert.Equal(t, 60*time.Second, cfg.Questionnaire.Timeout)
	assert.Equal(t, 100*time.Millisecond, cfg.Questionnaire.Throttle)
	assert.Equal(t, 8, cfg.Questionnaire.Detection.MinLength)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Preserve)
}

func TestLoadFromFile(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	cfgPath := writeSettings(t, `
provider: langchain
insight:
  url: http://insight.internal:11434
  model: llama3.2:latest
  timeout: 30s
  debounce: 500ms
questionnaire:
  url: http://quiz.internal:9000
  throttle: 50ms
  detection:
    min_length: 12
logging:
  level: debug
  preserve: true
`)

	cfg, err := Load(cfgPath)
	require.NoError(t, err)

	assert.Equal(t, "langchain", cfg.Provider)
	assert.Equal(t, "http://insight.internal:11434", cfg.Insight.URL)
	assert.Equal(t, "llama3.2:latest", cfg.Insight.Model)
	assert.Equal(t, 30*time.Second, cfg.Insight.Timeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Insight.Debounce)
	// Unset keys keep their defaults.
	assert.Equal(t, 100*time.Millisecond, cfg.Insight.Throttle)

	assert.Equal(t, "http://quiz.internal:9000", cfg.Questionnaire.URL)
	assert.Equal(t, 50*time.Millisecond, cfg.Questionnaire.Throttle)
	assert.Equal(t, 12, cfg.Questionnaire.Detection.MinLength)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Preserve)
}

func TestLoadInvalidDuration(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	cfgPath := writeSettings(t, `
insight:
  timeout: not-a-duration
`)

	_, err := Load(cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insight.timeout")
}

func TestEnvironmentOverrides(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	t.Setenv("MARKETLENS_PROVIDER", "langchain")
	t.Setenv("MARKETLENS_INSIGHT_MODEL", "gemma3:latest")
	t.Setenv("MARKETLENS_QUESTIONNAIRE_URL", "http://env.internal:8081")

	cfgPath := writeSettings(t, "")
	cfg, err := Load(cfgPath)
	require.NoError(t, err)

	assert.Equal(t, "langchain", cfg.Provider)
	assert.Equal(t, "gemma3:latest", cfg.Insight.Model)
	assert.Equal(t, "http://env.internal:8081", cfg.Questionnaire.URL)
}

func TestGet(t *testing.T) {
	t.Run("should panic before Load", func(t *testing.T) {
		saved := cfg
		cfg = nil
		defer func() { cfg = saved }()

		assert.Panics(t, func() { Get() })
	})

	t.Run("should return the loaded config", func(t *testing.T) {
		viper.Reset()
		defer viper.Reset()

		cfgPath := writeSettings(t, "provider: native\n")
		loaded, err := Load(cfgPath)
		require.NoError(t, err)
		assert.Same(t, loaded, Get())
	})
}
