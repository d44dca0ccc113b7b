package config

import (
	"os"
	"path/filepath"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	// t.Setenv records the original value for restoration; Unsetenv
	// then makes the variable truly absent for the test body.
	for _, key := range []string{
		"OPENAI_API_KEY",
		"OPENAI_BASE_URL",
		"OPENAI_AGENTS_DISABLE_TRACING",
		"RELAY_OBSERVER_ENABLED",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	if cfg.API.BaseURL != DefaultBaseURL {
		t.Errorf("base url = %q", cfg.API.BaseURL)
	}
	if cfg.Run.MaxTurns != 10 || cfg.Run.TimeoutSeconds != 60 || cfg.Run.ToolTimeoutSeconds != 30 {
		t.Errorf("run defaults = %+v", cfg.Run)
	}
	if cfg.Tracing.Disabled || cfg.Tracing.BatchSize != 100 || cfg.Tracing.BatchTimeoutSeconds != 5 {
		t.Errorf("tracing defaults = %+v", cfg.Tracing)
	}
	if cfg.Observer.Enabled || cfg.Observer.Service != "relay" {
		t.Errorf("observer defaults = %+v", cfg.Observer)
	}
}

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	clearEnv(t)
	cfg := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if cfg.API.BaseURL != DefaultBaseURL || cfg.Run.MaxTurns != 10 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Tracing.Endpoint != DefaultBaseURL {
		t.Errorf("tracing endpoint fallback = %q", cfg.Tracing.Endpoint)
	}
}

func TestLoadTOMLFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "relay.toml")
	data := `
[api]
key = "sk-file"
base_url = "https://proxy.example.com/v1"

[run]
max_turns = 3
tool_timeout_seconds = 5

[tracing]
disabled = true
batch_size = 10

[observer]
enabled = true
service = "relay-dev"
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := Load(path)
	if cfg.API.Key != "sk-file" || cfg.API.BaseURL != "https://proxy.example.com/v1" {
		t.Errorf("api = %+v", cfg.API)
	}
	if cfg.Run.MaxTurns != 3 || cfg.Run.ToolTimeoutSeconds != 5 {
		t.Errorf("run = %+v", cfg.Run)
	}
	// Keys absent from the file keep defaults.
	if cfg.Run.TimeoutSeconds != 60 {
		t.Errorf("timeout = %d", cfg.Run.TimeoutSeconds)
	}
	if !cfg.Tracing.Disabled || cfg.Tracing.BatchSize != 10 {
		t.Errorf("tracing = %+v", cfg.Tracing)
	}
	if !cfg.Observer.Enabled || cfg.Observer.Service != "relay-dev" {
		t.Errorf("observer = %+v", cfg.Observer)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "relay.toml")
	data := `
[api]
key = "sk-file"
base_url = "https://file.example.com/v1"
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("OPENAI_BASE_URL", "https://env.example.com/v1")
	t.Setenv("OPENAI_AGENTS_DISABLE_TRACING", "1")
	t.Setenv("RELAY_OBSERVER_ENABLED", "true")

	cfg := Load(path)
	if cfg.API.Key != "sk-env" {
		t.Errorf("key = %q", cfg.API.Key)
	}
	if cfg.API.BaseURL != "https://env.example.com/v1" {
		t.Errorf("base url = %q", cfg.API.BaseURL)
	}
	if !cfg.Tracing.Disabled {
		t.Error("tracing not disabled via env")
	}
	if !cfg.Observer.Enabled {
		t.Error("observer not enabled via env")
	}
}

func TestTracingEndpointFallsBackToBaseURL(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_BASE_URL", "https://env.example.com/v1")
	cfg := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if cfg.Tracing.Endpoint != "https://env.example.com/v1" {
		t.Errorf("tracing endpoint = %q", cfg.Tracing.Endpoint)
	}
}

func TestAPIKeyFromEnv(t *testing.T) {
	clearEnv(t)
	if got := APIKeyFromEnv(); got != "" {
		t.Errorf("key = %q", got)
	}
	t.Setenv("OPENAI_API_KEY", "sk-abc")
	if got := APIKeyFromEnv(); got != "sk-abc" {
		t.Errorf("key = %q", got)
	}
}

func TestBaseURLFromEnv(t *testing.T) {
	clearEnv(t)
	if got := BaseURLFromEnv(); got != DefaultBaseURL {
		t.Errorf("base url = %q", got)
	}
	t.Setenv("OPENAI_BASE_URL", "https://alt.example.com")
	if got := BaseURLFromEnv(); got != "https://alt.example.com" {
		t.Errorf("base url = %q", got)
	}
}

func TestTracingDisabledFromEnv(t *testing.T) {
	cases := []struct {
		value string
		want  bool
	}{
		{"", false},
		{"0", false},
		{"false", false},
		{"1", true},
		{"true", true},
		{"TRUE", false},
	}
	for _, tc := range cases {
		t.Run("value_"+tc.value, func(t *testing.T) {
			clearEnv(t)
			if tc.value != "" {
				t.Setenv("OPENAI_AGENTS_DISABLE_TRACING", tc.value)
			}
			if got := TracingDisabledFromEnv(); got != tc.want {
				t.Errorf("disabled = %v, want %v", got, tc.want)
			}
		})
	}
}
