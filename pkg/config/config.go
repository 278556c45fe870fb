// Package config loads application configuration from the user config
// directory and environment variables. Environment variables take
// precedence over file configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/GaryOcean428/monkey-coder-sub002/pkg/policy"
)

// Config holds the application configuration.
type Config struct {
	AnthropicAPIKey string
	OpenAIAPIKey    string
	GoogleAPIKey    string
	DeepSeekAPIKey  string

	Routing   RoutingConfig
	ConfigDir string
}

// RoutingConfig holds routing and learning tunables. The learning
// constants are deliberately configuration rather than hardcoded values.
type RoutingConfig struct {
	Learning policy.Config `yaml:"learning,omitempty"`

	// TrackerDecay is the EWMA step for performance records.
	TrackerDecay float64 `yaml:"tracker_decay,omitempty"`

	// Pricing maps provider -> model -> per-1k-token pricing.
	Pricing PricingConfig `yaml:"pricing,omitempty"`

	// Context limits per provider (tokens); zero means provider default.
	MaxContextTokens map[string]int `yaml:"max_context_tokens,omitempty"`
}

// PricingConfig maps provider -> model -> pricing.
type PricingConfig map[string]map[string]ModelPricing

// ModelPricing defines per-1k token pricing.
type ModelPricing struct {
	PromptPer1K     float64 `yaml:"prompt_per_1k,omitempty"`
	CompletionPer1K float64 `yaml:"completion_per_1k,omitempty"`
}

// Per1K returns a single blended per-1k rate for capability metadata.
func (m ModelPricing) Per1K() float64 {
	return (m.PromptPer1K + m.CompletionPer1K) / 2
}

// FileConfig is the structure of ~/.monkey-coder/config.yaml.
type FileConfig struct {
	APIKeys APIKeysConfig `yaml:"api_keys"`
	Routing RoutingConfig `yaml:"routing,omitempty"`
}

// APIKeysConfig holds API key configuration from file.
type APIKeysConfig struct {
	Anthropic string `yaml:"anthropic"`
	OpenAI    string `yaml:"openai"`
	Google    string `yaml:"google"`
	DeepSeek  string `yaml:"deepseek"`
}

// Load reads configuration from the config directory and environment.
func Load() (*Config, error) {
	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}
	return loadFrom(configDir)
}

// LoadFromDir loads configuration rooted at an explicit directory.
func LoadFromDir(dir string) (*Config, error) {
	return loadFrom(dir)
}

func loadFrom(configDir string) (*Config, error) {
	fileConfig := loadFileConfig(filepath.Join(configDir, "config.yaml"))

	cfg := &Config{
		AnthropicAPIKey: getEnvOrDefault("ANTHROPIC_API_KEY", fileConfig.APIKeys.Anthropic),
		OpenAIAPIKey:    getEnvOrDefault("OPENAI_API_KEY", fileConfig.APIKeys.OpenAI),
		GoogleAPIKey:    getEnvOrDefault("GOOGLE_API_KEY", fileConfig.APIKeys.Google),
		DeepSeekAPIKey:  getEnvOrDefault("DEEPSEEK_API_KEY", fileConfig.APIKeys.DeepSeek),
		Routing:         fileConfig.Routing,
		ConfigDir:       configDir,
	}
	applyRoutingDefaults(&cfg.Routing)
	return cfg, nil
}

// HasProvider reports whether the API key for a provider is configured.
func (c *Config) HasProvider(name string) bool {
	switch name {
	case "anthropic":
		return c.AnthropicAPIKey != ""
	case "openai":
		return c.OpenAIAPIKey != ""
	case "google":
		return c.GoogleAPIKey != ""
	case "deepseek":
		return c.DeepSeekAPIKey != ""
	default:
		return false
	}
}

// PersonasPath returns the persona table location.
func (c *Config) PersonasPath() string {
	return filepath.Join(c.ConfigDir, "personas.yaml")
}

// StatePath returns the location of a persisted state file.
func (c *Config) StatePath(name string) string {
	return filepath.Join(c.ConfigDir, "state", name)
}

// PriceFor looks up pricing for a provider/model, falling back to the
// provider's "default" entry.
func (r RoutingConfig) PriceFor(providerName, model string) (ModelPricing, bool) {
	providerPricing, ok := r.Pricing[providerName]
	if !ok {
		return ModelPricing{}, false
	}
	if entry, ok := providerPricing[model]; ok {
		return entry, true
	}
	if entry, ok := providerPricing["default"]; ok {
		return entry, true
	}
	return ModelPricing{}, false
}

func applyRoutingDefaults(r *RoutingConfig) {
	if r.TrackerDecay <= 0 {
		r.TrackerDecay = 0.1
	}
	if r.Pricing == nil {
		r.Pricing = DefaultPricing()
	}
}

// DefaultPricing returns a conservative built-in pricing table, used
// when no pricing is configured.
func DefaultPricing() PricingConfig {
	return PricingConfig{
		"anthropic": {
			"claude-sonnet-4-20250514": {PromptPer1K: 0.003, CompletionPer1K: 0.015},
			"claude-opus-4-20250514":   {PromptPer1K: 0.015, CompletionPer1K: 0.075},
		},
		"openai": {
			"gpt-5.2-instant":  {PromptPer1K: 0.001, CompletionPer1K: 0.004},
			"gpt-5.2-thinking": {PromptPer1K: 0.005, CompletionPer1K: 0.02},
			"gpt-5.2-codex":    {PromptPer1K: 0.004, CompletionPer1K: 0.016},
			"gpt-5.2-pro":      {PromptPer1K: 0.01, CompletionPer1K: 0.04},
		},
		"google": {
			"gemini-2.0-pro": {PromptPer1K: 0.00125, CompletionPer1K: 0.005},
		},
		"deepseek": {
			"default": {PromptPer1K: 0.00027, CompletionPer1K: 0.0011},
		},
	}
}

// loadFileConfig reads the config file, returning empty config if absent.
func loadFileConfig(path string) *FileConfig {
	cfg := &FileConfig{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}
	_ = yaml.Unmarshal(data, cfg)
	return cfg
}

func getEnvOrDefault(envVar, defaultValue string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	return defaultValue
}

func getConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	configDir := filepath.Join(home, ".monkey-coder")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return "", err
	}
	return configDir, nil
}
