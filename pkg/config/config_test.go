package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{"api_key": "test-key"}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Model != DefaultModel {
		t.Errorf("expected default model, got %q", cfg.Model)
	}
	if cfg.UserID != DefaultUserID {
		t.Errorf("expected default user id, got %q", cfg.UserID)
	}
	if cfg.DatabasePath != DefaultDatabasePath {
		t.Errorf("expected default database path, got %q", cfg.DatabasePath)
	}
	if cfg.ListenAddr != DefaultListenAddr {
		t.Errorf("expected default listen addr, got %q", cfg.ListenAddr)
	}

	policy := cfg.GovernorPolicy()
	if policy.MinInterval != 5*time.Second {
		t.Errorf("expected 5s min interval, got %v", policy.MinInterval)
	}
	if policy.Window != time.Minute {
		t.Errorf("expected 60s window, got %v", policy.Window)
	}
	if policy.MaxRequestsPerWindow != 0 {
		t.Errorf("window cap should default to disabled, got %d", policy.MaxRequestsPerWindow)
	}
	if policy.MaxAttempts != 3 {
		t.Errorf("expected 3 attempts, got %d", policy.MaxAttempts)
	}
}

func TestLoadSubstitutesEnvVars(t *testing.T) {
	t.Setenv("MOMENTUM_TEST_KEY", "secret-from-env")
	path := writeConfig(t, `{"api_key": "${MOMENTUM_TEST_KEY}"}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.APIKey != "secret-from-env" {
		t.Errorf("expected env substitution, got %q", cfg.APIKey)
	}
}

func TestLoadRejectsUnresolvedEnvVar(t *testing.T) {
	os.Unsetenv("MOMENTUM_DEFINITELY_UNSET")
	path := writeConfig(t, `{"api_key": "${MOMENTUM_DEFINITELY_UNSET}"}`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for unresolved env var")
	}
	if !strings.Contains(err.Error(), "MOMENTUM_DEFINITELY_UNSET") {
		t.Errorf("error should name the unresolved variable: %v", err)
	}
}

func TestLoadRejectsMissingAPIKey(t *testing.T) {
	os.Unsetenv("GEMINI_API_KEY")
	path := writeConfig(t, `{"model": "gemini-2.5-flash"}`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing api key")
	}
}

func TestLoadFallsBackToProviderEnvKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "openai-env-key")
	path := writeConfig(t, `{"model": "gpt-4o"}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.APIKey != "openai-env-key" {
		t.Errorf("expected provider env fallback, got %q", cfg.APIKey)
	}
}

func TestLoadRejectsUnknownModel(t *testing.T) {
	path := writeConfig(t, `{"model": "mystery-9000", "api_key": "k"}`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown model prefix")
	}
}

func TestLoadRejectsBadJSON(t *testing.T) {
	path := writeConfig(t, `{"model": `)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestGovernorOverrides(t *testing.T) {
	path := writeConfig(t, `{
		"api_key": "k",
		"governor": {
			"min_interval_ms": 1000,
			"window_ms": 30000,
			"max_requests_per_window": 10,
			"max_attempts": 5
		}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	policy := cfg.GovernorPolicy()
	if policy.MinInterval != time.Second {
		t.Errorf("expected 1s min interval, got %v", policy.MinInterval)
	}
	if policy.Window != 30*time.Second {
		t.Errorf("expected 30s window, got %v", policy.Window)
	}
	if policy.MaxRequestsPerWindow != 10 {
		t.Errorf("expected window cap 10, got %d", policy.MaxRequestsPerWindow)
	}
	if policy.MaxAttempts != 5 {
		t.Errorf("expected 5 attempts, got %d", policy.MaxAttempts)
	}
	// Unset retry delays still pick up defaults.
	if policy.QuotaBaseDelay != 6*time.Second {
		t.Errorf("expected default quota base delay, got %v", policy.QuotaBaseDelay)
	}
}
