package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Logging       LoggingConfig       `mapstructure:"logging"`
	Provider      string              `mapstructure:"provider"` // Selected insight provider: native, langchain
	Insight       InsightConfig       `mapstructure:"insight"`
	Questionnaire QuestionnaireConfig `mapstructure:"questionnaire"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	LogFile  string `mapstructure:"log_file"`
	Preserve bool   `mapstructure:"preserve"`
	Level    string `mapstructure:"level"`
}

// InsightConfig holds AI-insight endpoint configuration
type InsightConfig struct {
	URL         string        `mapstructure:"url"`
	Model       string        `mapstructure:"model"`
	Timeout     time.Duration `mapstructure:"-"`
	TimeoutStr  string        `mapstructure:"timeout"` // For parsing string duration
	Debounce    time.Duration `mapstructure:"-"`
	DebounceStr string        `mapstructure:"debounce"`
	Throttle    time.Duration `mapstructure:"-"`
	ThrottleStr string        `mapstructure:"throttle"`
}

// QuestionnaireConfig holds questionnaire backend configuration
type QuestionnaireConfig struct {
	URL         string          `mapstructure:"url"`
	Timeout     time.Duration   `mapstructure:"-"`
	TimeoutStr  string          `mapstructure:"timeout"`
	Throttle    time.Duration   `mapstructure:"-"`
	ThrottleStr string          `mapstructure:"throttle"`
	Detection   DetectionConfig `mapstructure:"detection"`
}

// DetectionConfig holds the advisory malformed-question thresholds
type DetectionConfig struct {
	MinLength int `mapstructure:"min_length"`
}

var cfg *Config

// Get returns the global config instance
func Get() *Config {
	if cfg == nil {
		panic("config not initialized")
	}
	return cfg
}

// Load loads configuration from file and environment
func Load(cfgFile string) (*Config, error) {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}

		xdgConfigHome := os.Getenv("XDG_CONFIG_HOME")
		if xdgConfigHome == "" {
			xdgConfigHome = filepath.Join(home, ".config")
		}
		cfgHome := filepath.Join(xdgConfigHome, ".marketlens")

		viper.AddConfigPath("./.marketlens") // Check project directory first
		viper.AddConfigPath(cfgHome)         // Then check XDG config location
		viper.SetConfigType("yaml")
		viper.SetConfigName("settings.yaml")
	}

	viper.AutomaticEnv()
	bindEnvironmentVariables()

	// Read config file if it exists; defaults cover the rest.
	_ = viper.ReadInConfig()

	cfg = &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := processDurations(cfg); err != nil {
		return nil, fmt.Errorf("failed to process durations: %w", err)
	}

	return cfg, nil
}

// setDefaults sets all default configuration values
func setDefaults() {
	viper.SetDefault("provider", "native")

	viper.SetDefault("insight.url", "http://localhost:11434")
	viper.SetDefault("insight.model", "qwen3:latest")
	viper.SetDefault("insight.timeout", "90s")
	viper.SetDefault("insight.debounce", "250ms")
	viper.SetDefault("insight.throttle", "100ms")

	viper.SetDefault("questionnaire.url", "http://localhost:8080")
	viper.SetDefault("questionnaire.timeout", "60s")
	viper.SetDefault("questionnaire.throttle", "100ms")
	viper.SetDefault("questionnaire.detection.min_length", 8)

	viper.SetDefault("logging.log_file", "./.marketlens/system.log")
	viper.SetDefault("logging.preserve", false)
	viper.SetDefault("logging.level", "info")
}

// bindEnvironmentVariables binds specific environment variables to Viper keys
func bindEnvironmentVariables() {
	viper.BindEnv("provider", "MARKETLENS_PROVIDER")
	viper.BindEnv("insight.url", "MARKETLENS_INSIGHT_URL")
	viper.BindEnv("insight.model", "MARKETLENS_INSIGHT_MODEL")
	viper.BindEnv("insight.timeout", "MARKETLENS_INSIGHT_TIMEOUT")
	viper.BindEnv("questionnaire.url", "MARKETLENS_QUESTIONNAIRE_URL")
	viper.BindEnv("questionnaire.timeout", "MARKETLENS_QUESTIONNAIRE_TIMEOUT")
	viper.BindEnv("logging.log_file", "MARKETLENS_LOG_FILE")
	viper.BindEnv("logging.level", "MARKETLENS_LOG_LEVEL")
	viper.BindEnv("logging.preserve", "MARKETLENS_LOG_PRESERVE")
}

// processDurations converts string durations to time.Duration
func processDurations(cfg *Config) error {
	durations := []struct {
		raw      string
		fallback time.Duration
		out      *time.Duration
		key      string
	}{
		{cfg.Insight.TimeoutStr, 90 * time.Second, &cfg.Insight.Timeout, "insight.timeout"},
		{cfg.Insight.DebounceStr, 250 * time.Millisecond, &cfg.Insight.Debounce, "insight.debounce"},
		{cfg.Insight.ThrottleStr, 100 * time.Millisecond, &cfg.Insight.Throttle, "insight.throttle"},
		{cfg.Questionnaire.TimeoutStr, 60 * time.Second, &cfg.Questionnaire.Timeout, "questionnaire.timeout"},
		{cfg.Questionnaire.ThrottleStr, 100 * time.Millisecond, &cfg.Questionnaire.Throttle, "questionnaire.throttle"},
	}

	for _, d := range durations {
		if d.raw == "" {
			*d.out = d.fallback
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", d.key, err)
		}
		*d.out = parsed
	}
	return nil
}

// GetConfigFileUsed returns the path to the config file being used
func GetConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
