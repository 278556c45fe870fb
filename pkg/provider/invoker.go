// Package provider defines the invocation layer boundary: the Invoker
// interface implemented by concrete AI provider clients, the capability
// registry consulted during routing, and the invocation error taxonomy.
package provider

import (
	"context"

	"github.com/GaryOcean428/monkey-coder-sub002/pkg/task"
)

// Invoker is the interface implemented by provider clients.
type Invoker interface {
	// Invoke sends a prompt to the given model and returns the result.
	Invoke(ctx context.Context, model string, prompt string) (*Result, error)

	// Name returns the provider identifier.
	Name() string

	// Models returns the models this provider serves.
	Models() []string
}

// Usage captures normalized token usage for one invocation.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Total returns the total token count, deriving it when the provider
// reports only the split counts.
func (u Usage) Total() int {
	if u.TotalTokens > 0 {
		return u.TotalTokens
	}
	return u.PromptTokens + u.CompletionTokens
}

// Result is the normalized outcome of one provider invocation.
type Result struct {
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	Output    string `json:"output"`
	Usage     Usage  `json:"usage"`
	LatencyMS int64  `json:"latency_ms"`

	// Quality is an optional provider-reported quality signal in [0,1].
	// When nil, callers derive one (see pkg/quality).
	Quality *float64 `json:"quality,omitempty"`
}

// Capability advertises one routable (provider, model) combination.
type Capability struct {
	Provider         string          `json:"provider"`
	Model            string          `json:"model"`
	MaxContextTokens int             `json:"max_context_tokens"`
	CostPer1KTokens  float64         `json:"cost_per_1k_tokens"`
	Strategies       []task.Strategy `json:"strategies"`
}

// SupportsStrategy reports whether the capability advertises the strategy.
// An empty strategy list means every strategy is allowed.
func (c Capability) SupportsStrategy(s task.Strategy) bool {
	if len(c.Strategies) == 0 {
		return true
	}
	for _, known := range c.Strategies {
		if known == s {
			return true
		}
	}
	return false
}

// Registry is the catalogue of provider capabilities consulted on every
// routing decision.
type Registry interface {
	// ListCandidates returns the capabilities advertised for a category.
	ListCandidates(category task.Category) []Capability
}
