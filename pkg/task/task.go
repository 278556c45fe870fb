// Package task defines the request and result types shared by the routing
// and orchestration layers.
package task

import (
	"fmt"
	"strings"
)

// Category classifies an incoming coding task.
type Category string

const (
	CategoryGenerate Category = "generate"
	CategoryAnalyze  Category = "analyze"
	CategoryRefactor Category = "refactor"
	CategoryTest     Category = "test"
	CategoryReview   Category = "review"
	CategorySecurity Category = "security"
)

// AllCategories returns every known task category in a stable order.
func AllCategories() []Category {
	return []Category{
		CategoryGenerate,
		CategoryAnalyze,
		CategoryRefactor,
		CategoryTest,
		CategoryReview,
		CategorySecurity,
	}
}

// ParseCategory validates a category string.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllCategories() {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown task category %q", s)
}

// ContextItem is a piece of structured context attached to a request,
// such as a file excerpt or a prior conversation turn.
type ContextItem struct {
	Kind    string `json:"kind"` // "file" or "turn"
	Label   string `json:"label,omitempty"`
	Content string `json:"content"`
}

// Request is an immutable description of one incoming coding task.
type Request struct {
	Category Category      `json:"category"`
	Prompt   string        `json:"prompt"`
	Context  []ContextItem `json:"context,omitempty"`
	Persona  string        `json:"persona,omitempty"`

	// ProviderOverride pins the request to a single provider when set.
	ProviderOverride string `json:"provider_override,omitempty"`
}

// Strategy is the execution strategy attached to a routing action.
type Strategy string

const (
	StrategySingleShot   Strategy = "single-shot"
	StrategyRetryBackoff Strategy = "retry-with-backoff"
	StrategyMultiVote    Strategy = "multi-sample-vote"
)

// AllStrategies returns every execution strategy in a stable order.
func AllStrategies() []Strategy {
	return []Strategy{StrategySingleShot, StrategyRetryBackoff, StrategyMultiVote}
}

// Action is one selectable (provider, model, strategy) triple.
type Action struct {
	Provider string   `json:"provider"`
	Model    string   `json:"model"`
	Strategy Strategy `json:"strategy"`
}

// Key returns a stable identifier for the action, usable as a map key
// and as part of a persisted value-table key.
func (a Action) Key() string {
	return a.Provider + "/" + a.Model + "/" + string(a.Strategy)
}

func (a Action) String() string { return a.Key() }

// IsZero reports whether the action is unset.
func (a Action) IsZero() bool {
	return a.Provider == "" && a.Model == ""
}

// Status is the overall outcome of an orchestrated task.
type Status string

const (
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
	StatusPartial   Status = "PARTIAL"
)

// NodeResult captures the outcome of a single plan node.
type NodeResult struct {
	Node      string  `json:"node"`
	Action    Action  `json:"action"`
	Output    string  `json:"output,omitempty"`
	Error     string  `json:"error,omitempty"`
	Attempts  int     `json:"attempts"`
	LatencyMS int64   `json:"latency_ms"`
	Cost      float64 `json:"cost"`
	Optional  bool    `json:"optional,omitempty"`
}

// Result is returned to the caller once a plan reaches a terminal state.
type Result struct {
	Status         Status       `json:"status"`
	Output         string       `json:"output,omitempty"`
	Nodes          []NodeResult `json:"nodes"`
	TotalCost      float64      `json:"total_cost"`
	TotalLatencyMS int64        `json:"total_latency_ms"`
}
