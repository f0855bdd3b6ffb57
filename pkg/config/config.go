// Package config loads relay's TOML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Provider kinds select the backend implementation for a configured provider.
const (
	KindOllama = "ollama"
	KindOpenAI = "openai"
)

// EnvConfigPath overrides the default config file location.
const EnvConfigPath = "RELAY_CONFIG"

// ProviderConfig configures a single completion backend.
type ProviderConfig struct {
	// Kind is the backend implementation: "ollama" or "openai".
	// OpenAI-compatible endpoints (Groq included) use "openai".
	Kind string `toml:"kind"`

	// BaseURL of the upstream API (e.g. "http://localhost:11434").
	BaseURL string `toml:"base_url"`

	// APIKey is the literal credential. Prefer APIKeyEnv.
	APIKey string `toml:"api_key"`

	// APIKeyEnv names an environment variable holding the credential.
	APIKeyEnv string `toml:"api_key_env"`
}

// ResolveAPIKey returns the literal key when set, otherwise the value of the
// configured environment variable.
func (p ProviderConfig) ResolveAPIKey() string {
	if p.APIKey != "" {
		return p.APIKey
	}
	if p.APIKeyEnv != "" {
		return os.Getenv(p.APIKeyEnv)
	}
	return ""
}

// EmbeddingConfig selects the model used to embed transcript content.
type EmbeddingConfig struct {
	// Model is a provider-prefixed model identifier
	// (e.g. "ollama:nomic-embed-text").
	Model string `toml:"model"`
}

// Config is relay's full configuration.
type Config struct {
	// DefaultModel is used when a command or request omits the model.
	DefaultModel string `toml:"default_model"`

	// DefaultProvider receives models with no recognized provider prefix.
	DefaultProvider string `toml:"default_provider"`

	// Timeout bounds a single completion request.
	Timeout Duration `toml:"timeout"`

	// DBPath is the transcript database. Empty means the default location
	// under ~/.relay; ":memory:" disables persistence.
	DBPath string `toml:"db"`

	Embedding EmbeddingConfig `toml:"embedding"`

	Providers map[string]ProviderConfig `toml:"providers"`
}

// Duration wraps time.Duration for TOML decoding of strings like "5m".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Default returns the built-in configuration: a local Ollama plus the two
// hosted OpenAI-compatible endpoints, keyed from conventional env vars.
func Default() *Config {
	return &Config{
		DefaultModel:    "ollama:qwen3-30b",
		DefaultProvider: "openai",
		Timeout:         Duration{5 * time.Minute},
		Providers: map[string]ProviderConfig{
			"ollama": {
				Kind:    KindOllama,
				BaseURL: "http://localhost:11434",
			},
			"openai": {
				Kind:      KindOpenAI,
				BaseURL:   "https://api.openai.com/v1",
				APIKeyEnv: "OPENAI_API_KEY",
			},
			"groq": {
				Kind:      KindOpenAI,
				BaseURL:   "https://api.groq.com/openai/v1",
				APIKeyEnv: "GROQ_API_KEY",
			},
		},
	}
}

// DefaultPath returns the conventional config file location, honoring the
// RELAY_CONFIG environment variable.
func DefaultPath() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".relay", "config.toml")
}

// Load reads the config file at path, layered over Default. An empty path
// resolves via DefaultPath; a missing file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	cfg.normalize()
	return cfg, nil
}

// normalize fills in per-provider defaults that a sparse TOML entry for a
// well-known provider would otherwise wipe out.
func (c *Config) normalize() {
	if c.Timeout.Duration <= 0 {
		c.Timeout = Duration{5 * time.Minute}
	}
	for name, p := range c.Providers {
		if p.Kind == "" {
			if name == "ollama" {
				p.Kind = KindOllama
			} else {
				p.Kind = KindOpenAI
			}
		}
		if p.APIKey == "" && p.APIKeyEnv == "" {
			switch name {
			case "openai":
				p.APIKeyEnv = "OPENAI_API_KEY"
			case "groq":
				p.APIKeyEnv = "GROQ_API_KEY"
			}
		}
		c.Providers[name] = p
	}
}
