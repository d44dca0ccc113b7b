package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

// DefaultBaseURL is the Responses API root used when OPENAI_BASE_URL
// is unset.
const DefaultBaseURL = "https://api.openai.com/v1"

type Config struct {
	API      APIConfig      `toml:"api"`
	Run      RunConfig      `toml:"run"`
	Tracing  TracingConfig  `toml:"tracing"`
	Observer ObserverConfig `toml:"observer"`
}

type APIConfig struct {
	Key     string `toml:"key"`
	BaseURL string `toml:"base_url"`
}

type RunConfig struct {
	MaxTurns           int `toml:"max_turns"`
	TimeoutSeconds     int `toml:"timeout_seconds"`
	ToolTimeoutSeconds int `toml:"tool_timeout_seconds"`
}

type TracingConfig struct {
	Disabled            bool   `toml:"disabled"`
	Endpoint            string `toml:"endpoint"`
	BatchSize           int    `toml:"batch_size"`
	BatchTimeoutSeconds int    `toml:"batch_timeout_seconds"`
}

type ObserverConfig struct {
	Enabled  bool   `toml:"enabled"`
	Service  string `toml:"service"`
	Endpoint string `toml:"endpoint"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		API: APIConfig{BaseURL: DefaultBaseURL},
		Run: RunConfig{
			MaxTurns:           10,
			TimeoutSeconds:     60,
			ToolTimeoutSeconds: 30,
		},
		Tracing: TracingConfig{
			BatchSize:           100,
			BatchTimeoutSeconds: 5,
		},
		Observer: ObserverConfig{Service: "relay"},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "relay.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	// Env overrides
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.API.Key = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if TracingDisabledFromEnv() {
		cfg.Tracing.Disabled = true
	}
	if os.Getenv("RELAY_OBSERVER_ENABLED") == "true" || os.Getenv("RELAY_OBSERVER_ENABLED") == "1" {
		cfg.Observer.Enabled = true
	}

	// Fallbacks
	if cfg.Tracing.Endpoint == "" {
		cfg.Tracing.Endpoint = cfg.API.BaseURL
	}

	return cfg
}

// APIKeyFromEnv returns OPENAI_API_KEY, or "".
func APIKeyFromEnv() string {
	return os.Getenv("OPENAI_API_KEY")
}

// BaseURLFromEnv returns OPENAI_BASE_URL, or DefaultBaseURL when
// unset.
func BaseURLFromEnv() string {
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		return v
	}
	return DefaultBaseURL
}

// TracingDisabledFromEnv reports whether
// OPENAI_AGENTS_DISABLE_TRACING is set to "true" or "1".
func TracingDisabledFromEnv() bool {
	v := os.Getenv("OPENAI_AGENTS_DISABLE_TRACING")
	return v == "true" || v == "1"
}
