// Package config handles loading and parsing of coachd.toml configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the top-level coachd configuration.
type Config struct {
	Coach   CoachConfig  `toml:"coach"`
	LLM     LLMConfig    `toml:"llm"`
	Planner LLMConfig    `toml:"planner"`
	Store   StoreConfig  `toml:"store"`
	Limits  LimitsConfig `toml:"limits"`
}

// CoachConfig identifies the assistant persona presented during onboarding.
type CoachConfig struct {
	Name string `toml:"name"`
}

// LLMConfig configures a language model endpoint.
type LLMConfig struct {
	Provider  string `toml:"provider"`
	Model     string `toml:"model"`
	APIKeyEnv string `toml:"api_key_env"`
	BaseURL   string `toml:"base_url"`
	MaxTokens int    `toml:"max_tokens"`
}

// StoreConfig selects the onboarding record backend.
type StoreConfig struct {
	Backend string `toml:"backend"` // "file" or "sqlite"
	Path    string `toml:"path"`
}

// LimitsConfig bounds external calls and retry behavior.
type LimitsConfig struct {
	ChatTimeoutSec int `toml:"chat_timeout_sec"`
	PlanTimeoutSec int `toml:"plan_timeout_sec"`
	ApplyRetries   int `toml:"apply_retries"`
}

// DefaultPath is the configuration file searched for in the working directory.
const DefaultPath = "coachd.toml"

// New creates a Config with default values.
func New() *Config {
	return &Config{
		Coach: CoachConfig{
			Name: "Coach",
		},
		LLM: LLMConfig{
			Provider:  "anthropic",
			Model:     "claude-sonnet-4-5",
			MaxTokens: 4096,
		},
		Store: StoreConfig{
			Backend: "file",
			Path:    "onboarding",
		},
		Limits: LimitsConfig{
			ChatTimeoutSec: 60,
			PlanTimeoutSec: 120,
			ApplyRetries:   3,
		},
	}
}

// LoadFile loads configuration from the given TOML file, applying
// defaults for any fields left unset.
func LoadFile(path string) (*Config, error) {
	cfg := New()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadDefault loads coachd.toml from the working directory if present,
// otherwise returns defaults.
func LoadDefault() (*Config, error) {
	if _, err := os.Stat(DefaultPath); err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	return LoadFile(DefaultPath)
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case "file", "sqlite":
	default:
		return fmt.Errorf("unknown store backend %q (expected \"file\" or \"sqlite\")", c.Store.Backend)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	if c.Limits.ApplyRetries < 1 {
		return fmt.Errorf("limits.apply_retries must be at least 1")
	}
	return nil
}

// PlannerConfig returns the planner LLM configuration, falling back to
// the main LLM settings for any unset field. The plan generator can run
// on a different model than the conversational agent.
func (c *Config) PlannerConfig() LLMConfig {
	p := c.Planner
	if p.Provider == "" {
		p.Provider = c.LLM.Provider
	}
	if p.Model == "" {
		p.Model = c.LLM.Model
	}
	if p.APIKeyEnv == "" {
		p.APIKeyEnv = c.LLM.APIKeyEnv
	}
	if p.BaseURL == "" {
		p.BaseURL = c.LLM.BaseURL
	}
	if p.MaxTokens == 0 {
		p.MaxTokens = c.LLM.MaxTokens
	}
	return p
}

// DefaultAPIKeyEnv returns the conventional API key environment
// variable for a provider.
func DefaultAPIKeyEnv(provider string) string {
	switch provider {
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	case "openai":
		return "OPENAI_API_KEY"
	case "google":
		return "GEMINI_API_KEY"
	case "groq":
		return "GROQ_API_KEY"
	case "mistral":
		return "MISTRAL_API_KEY"
	default:
		return ""
	}
}

// GetAPIKey resolves the API key for an LLM configuration, checking the
// configured environment variable first and then the provider's
// conventional one.
func GetAPIKey(llm LLMConfig) string {
	if llm.APIKeyEnv != "" {
		if v := os.Getenv(llm.APIKeyEnv); v != "" {
			return v
		}
	}
	if env := DefaultAPIKeyEnv(llm.Provider); env != "" {
		return os.Getenv(env)
	}
	return ""
}

// StorePath resolves the store path relative to a base directory when
// the configured path is not absolute.
func (c *Config) StorePath(base string) string {
	if filepath.IsAbs(c.Store.Path) {
		return c.Store.Path
	}
	return filepath.Join(base, c.Store.Path)
}
