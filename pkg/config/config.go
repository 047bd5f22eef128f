// Package config provides configuration loading and validation. It handles
// a JSON config file with environment variable substitution, so API keys
// can live in the environment rather than on disk.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"time"

	"momentum/pkg/governor"
	"momentum/pkg/llm"
)

// Defaults.
const (
	DefaultModel        = "gemini-2.5-flash"
	DefaultUserID       = "local"
	DefaultDatabasePath = "momentum.db"
	DefaultListenAddr   = ":8080"
)

// GovernorConfig configures the request governor. Durations are in
// milliseconds, matching the policy's native units in the config file.
type GovernorConfig struct {
	MinIntervalMS        int `json:"min_interval_ms"`
	WindowMS             int `json:"window_ms"`
	MaxRequestsPerWindow int `json:"max_requests_per_window"` // 0 disables the hard gate
	MaxAttempts          int `json:"max_attempts"`
	QuotaBaseDelayMS     int `json:"quota_base_delay_ms"`
	TransientBaseDelayMS int `json:"transient_base_delay_ms"`
}

// Config is the application configuration.
type Config struct {
	Model          string         `json:"model"`
	APIKey         string         `json:"api_key"` // supports ${ENV_VAR} substitution
	UserID         string         `json:"user_id"`
	DatabasePath   string         `json:"database_path"`
	ListenAddr     string         `json:"listen_addr"`
	MetricsEnabled bool           `json:"metrics_enabled"`
	Governor       GovernorConfig `json:"governor"`
}

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads and validates configuration from a JSON file with environment
// variable substitution.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Replace ${VAR} placeholders with environment values.
	dataStr := envVarRegex.ReplaceAllStringFunc(string(data), func(match string) string {
		envVar := match[2 : len(match)-1]
		if value := os.Getenv(envVar); value != "" {
			return value
		}
		return match // Leave unresolved placeholders visible to validation
	})

	var config Config
	if err := json.Unmarshal([]byte(dataStr), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Default returns a config with all defaults applied and the API key taken
// from the provider's conventional environment variable.
func Default() *Config {
	config := &Config{MetricsEnabled: true}
	config.applyDefaults()
	return config
}

func (c *Config) applyDefaults() {
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.UserID == "" {
		c.UserID = DefaultUserID
	}
	if c.DatabasePath == "" {
		c.DatabasePath = DefaultDatabasePath
	}
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.APIKey == "" {
		c.APIKey = apiKeyFromEnv(c.Model)
	}

	defaults := governor.DefaultPolicy()
	if c.Governor.MinIntervalMS == 0 {
		c.Governor.MinIntervalMS = int(defaults.MinInterval / time.Millisecond)
	}
	if c.Governor.WindowMS == 0 {
		c.Governor.WindowMS = int(defaults.Window / time.Millisecond)
	}
	if c.Governor.MaxAttempts == 0 {
		c.Governor.MaxAttempts = defaults.MaxAttempts
	}
	if c.Governor.QuotaBaseDelayMS == 0 {
		c.Governor.QuotaBaseDelayMS = int(defaults.QuotaBaseDelay / time.Millisecond)
	}
	if c.Governor.TransientBaseDelayMS == 0 {
		c.Governor.TransientBaseDelayMS = int(defaults.TransientBaseDelay / time.Millisecond)
	}
}

// apiKeyFromEnv returns the conventional environment key for the model's
// provider.
func apiKeyFromEnv(model string) string {
	provider, err := llm.ProviderForModel(model)
	if err != nil {
		return ""
	}
	switch provider {
	case llm.ProviderGoogle:
		return os.Getenv("GEMINI_API_KEY")
	case llm.ProviderOpenAI:
		return os.Getenv("OPENAI_API_KEY")
	default:
		return ""
	}
}

// Validate checks the configuration for problems that would fail later in
// confusing ways.
func (c *Config) Validate() error {
	if _, err := llm.ProviderForModel(c.Model); err != nil {
		return fmt.Errorf("invalid model: %w", err)
	}
	if c.APIKey == "" {
		return fmt.Errorf("api_key is required (set it in config or via the provider's environment variable)")
	}
	if envVarRegex.MatchString(c.APIKey) {
		return fmt.Errorf("api_key references an unset environment variable: %s", c.APIKey)
	}
	if c.Governor.MinIntervalMS < 0 || c.Governor.WindowMS <= 0 || c.Governor.MaxAttempts <= 0 {
		return fmt.Errorf("governor configuration values must be positive")
	}
	if c.Governor.MaxRequestsPerWindow < 0 {
		return fmt.Errorf("max_requests_per_window cannot be negative")
	}
	return nil
}

// GovernorPolicy converts the config into the governor's policy type.
func (c *Config) GovernorPolicy() governor.Policy {
	return governor.Policy{
		MinInterval:          time.Duration(c.Governor.MinIntervalMS) * time.Millisecond,
		Window:               time.Duration(c.Governor.WindowMS) * time.Millisecond,
		MaxRequestsPerWindow: c.Governor.MaxRequestsPerWindow,
		MaxAttempts:          c.Governor.MaxAttempts,
		QuotaBaseDelay:       time.Duration(c.Governor.QuotaBaseDelayMS) * time.Millisecond,
		TransientBaseDelay:   time.Duration(c.Governor.TransientBaseDelayMS) * time.Millisecond,
	}
}
