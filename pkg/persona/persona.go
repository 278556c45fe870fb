// Package persona maps requested personas to routing constraint profiles.
package persona

import (
	"strings"
	"sync"
)

// DefaultProfileName is the fallback profile used for unknown personas.
const DefaultProfileName = "balanced"

// RewardWeights are the persona-supplied weights of the reward function:
// reward = Success*success - Latency*latNorm - Cost*costNorm + Quality*quality.
type RewardWeights struct {
	Success float64 `yaml:"success" json:"success"`
	Latency float64 `yaml:"latency" json:"latency"`
	Cost    float64 `yaml:"cost" json:"cost"`
	Quality float64 `yaml:"quality" json:"quality"`
}

// ConstraintProfile biases candidate selection and reward weighting for
// one persona.
type ConstraintProfile struct {
	Name             string        `yaml:"-" json:"name"`
	AllowedProviders []string      `yaml:"allowed_providers,omitempty" json:"allowed_providers,omitempty"`
	Weights          RewardWeights `yaml:"weights" json:"weights"`
	MaxCostPerTask   float64       `yaml:"max_cost_per_task,omitempty" json:"max_cost_per_task,omitempty"`
}

// Allows reports whether a provider passes the profile's allow-list.
// An empty list allows every provider.
func (p ConstraintProfile) Allows(provider string) bool {
	if len(p.AllowedProviders) == 0 {
		return true
	}
	for _, allowed := range p.AllowedProviders {
		if allowed == provider {
			return true
		}
	}
	return false
}

// Registry resolves persona names to constraint profiles. Resolution is
// deterministic: the same name yields the same profile until an
// administrator updates the table.
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]ConstraintProfile
}

// NewRegistry creates a registry pre-populated with the built-in personas.
func NewRegistry() *Registry {
	r := &Registry{profiles: make(map[string]ConstraintProfile)}
	for _, p := range builtinProfiles() {
		r.SetProfile(p)
	}
	return r
}

// SetProfile installs or replaces a profile.
func (r *Registry) SetProfile(p ConstraintProfile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[strings.ToLower(p.Name)] = p
}

// Resolve returns the profile for a persona name. Unknown or empty names
// fall back to the balanced profile so malformed persona input never
// blocks task execution.
func (r *Registry) Resolve(name string) ConstraintProfile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.profiles[strings.ToLower(strings.TrimSpace(name))]; ok {
		return p
	}
	return r.profiles[DefaultProfileName]
}

// Names returns the registered persona names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		names = append(names, name)
	}
	return names
}

func builtinProfiles() []ConstraintProfile {
	return []ConstraintProfile{
		{
			Name:    DefaultProfileName,
			Weights: RewardWeights{Success: 1.0, Latency: 0.2, Cost: 0.2, Quality: 0.6},
		},
		{
			Name:    "developer",
			Weights: RewardWeights{Success: 1.0, Latency: 0.3, Cost: 0.3, Quality: 0.5},
		},
		{
			Name:    "architect",
			Weights: RewardWeights{Success: 1.0, Latency: 0.1, Cost: 0.1, Quality: 0.9},
		},
		{
			Name:    "reviewer",
			Weights: RewardWeights{Success: 1.0, Latency: 0.2, Cost: 0.2, Quality: 0.8},
		},
		{
			// Security reviews weight correctness and quality far above cost.
			Name:             "security",
			AllowedProviders: []string{"anthropic", "openai"},
			Weights:          RewardWeights{Success: 1.2, Latency: 0.05, Cost: 0.05, Quality: 1.0},
		},
		{
			Name:    "performance",
			Weights: RewardWeights{Success: 1.0, Latency: 0.8, Cost: 0.4, Quality: 0.4},
		},
	}
}
