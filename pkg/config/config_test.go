package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFromDirReadsFileConfig(t *testing.T) {
	dir := t.TempDir()
	data := `api_keys:
  anthropic: file-anthropic-key
  openai: file-openai-key
routing:
  tracker_decay: 0.2
  learning:
    epsilon_base: 0.4
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	cfg, err := LoadFromDir(dir)
	if err != nil {
		t.Fatalf("LoadFromDir() error = %v", err)
	}
	if cfg.AnthropicAPIKey != "file-anthropic-key" {
		t.Errorf("AnthropicAPIKey = %q, want file value", cfg.AnthropicAPIKey)
	}
	if cfg.Routing.TrackerDecay != 0.2 {
		t.Errorf("TrackerDecay = %v, want 0.2", cfg.Routing.TrackerDecay)
	}
	if cfg.Routing.Learning.EpsilonBase != 0.4 {
		t.Errorf("Learning.EpsilonBase = %v, want 0.4", cfg.Routing.Learning.EpsilonBase)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	data := `api_keys:
  anthropic: file-key
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ANTHROPIC_API_KEY", "env-key")

	cfg, err := LoadFromDir(dir)
	if err != nil {
		t.Fatalf("LoadFromDir() error = %v", err)
	}
	if cfg.AnthropicAPIKey != "env-key" {
		t.Errorf("AnthropicAPIKey = %q, want env-key", cfg.AnthropicAPIKey)
	}
}

func TestLoadFromDirMissingFile(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("DEEPSEEK_API_KEY", "")

	cfg, err := LoadFromDir(t.TempDir())
	if err != nil {
		t.Fatalf("LoadFromDir() error = %v", err)
	}
	if cfg.HasProvider("anthropic") {
		t.Error("HasProvider(anthropic) = true with no key configured")
	}
	// Defaults still apply without a file.
	if cfg.Routing.TrackerDecay != 0.1 {
		t.Errorf("TrackerDecay = %v, want default 0.1", cfg.Routing.TrackerDecay)
	}
	if len(cfg.Routing.Pricing) == 0 {
		t.Error("Pricing table empty, want built-in defaults")
	}
}

func TestHasProvider(t *testing.T) {
	cfg := &Config{OpenAIAPIKey: "key"}
	if !cfg.HasProvider("openai") {
		t.Error("HasProvider(openai) = false, want true")
	}
	if cfg.HasProvider("anthropic") {
		t.Error("HasProvider(anthropic) = true, want false")
	}
	if cfg.HasProvider("unknown") {
		t.Error("HasProvider(unknown) = true, want false")
	}
}

func TestPriceFor(t *testing.T) {
	r := RoutingConfig{Pricing: PricingConfig{
		"openai": {
			"gpt-5.2-instant": {PromptPer1K: 0.001, CompletionPer1K: 0.004},
			"default":         {PromptPer1K: 0.002, CompletionPer1K: 0.008},
		},
	}}

	got, ok := r.PriceFor("openai", "gpt-5.2-instant")
	if !ok || got.PromptPer1K != 0.001 {
		t.Errorf("PriceFor(known model) = %+v, %v", got, ok)
	}

	got, ok = r.PriceFor("openai", "gpt-9-experimental")
	if !ok || got.PromptPer1K != 0.002 {
		t.Errorf("PriceFor(unknown model) = %+v, want provider default", got)
	}

	if _, ok := r.PriceFor("mistral", "any"); ok {
		t.Error("PriceFor(unknown provider) = ok, want miss")
	}
}

func TestPerBlendedRate(t *testing.T) {
	m := ModelPricing{PromptPer1K: 0.01, CompletionPer1K: 0.03}
	if got := m.Per1K(); got != 0.02 {
		t.Errorf("Per1K() = %v, want 0.02", got)
	}
}

func TestStatePaths(t *testing.T) {
	cfg := &Config{ConfigDir: "/tmp/mc"}
	if got := cfg.PersonasPath(); got != filepath.Join("/tmp/mc", "personas.yaml") {
		t.Errorf("PersonasPath() = %q", got)
	}
	if got := cfg.StatePath("qtable.json"); got != filepath.Join("/tmp/mc", "state", "qtable.json") {
		t.Errorf("StatePath() = %q", got)
	}
}
