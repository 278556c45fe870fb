package provider

import (
	"context"
	"fmt"
	"sync"
)

// MockInvoker returns deterministic responses for local runs and tests.
// Behavior can be scripted per model: a fixed error, a simulated timeout,
// or a canned response with an optional quality signal.
type MockInvoker struct {
	mu sync.Mutex

	name            string
	models          []string
	responses       map[string]string
	defaultResponse string
	failWith        error
	timeout         bool
	quality         *float64
	latencyMS       int64
	calls           int
}

// MockOption configures a MockInvoker.
type MockOption func(*MockInvoker)

// WithMockResponses sets canned responses keyed by prompt.
func WithMockResponses(responses map[string]string) MockOption {
	return func(m *MockInvoker) { m.responses = responses }
}

// WithMockError makes every invocation fail with err.
func WithMockError(err error) MockOption {
	return func(m *MockInvoker) { m.failWith = err }
}

// WithMockTimeout makes every invocation fail as a timeout.
func WithMockTimeout() MockOption {
	return func(m *MockInvoker) { m.timeout = true }
}

// WithMockQuality attaches a quality signal to successful results.
func WithMockQuality(q float64) MockOption {
	return func(m *MockInvoker) { m.quality = &q }
}

// WithMockLatency sets the reported latency for successful results.
func WithMockLatency(ms int64) MockOption {
	return func(m *MockInvoker) { m.latencyMS = ms }
}

// NewMockInvoker creates a mock invoker with the given name.
func NewMockInvoker(name string, opts ...MockOption) *MockInvoker {
	if name == "" {
		name = "mock"
	}
	m := &MockInvoker{
		name:            name,
		models:          []string{name + "-1"},
		responses:       make(map[string]string),
		defaultResponse: "mock response:",
		latencyMS:       5,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name returns the mock provider identifier.
func (m *MockInvoker) Name() string { return m.name }

// Models returns the mock model list.
func (m *MockInvoker) Models() []string { return m.models }

// Calls returns how many times Invoke has been called.
func (m *MockInvoker) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Invoke returns a scripted result for the prompt.
func (m *MockInvoker) Invoke(_ context.Context, model string, prompt string) (*Result, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.timeout {
		return nil, &InvocationError{Provider: m.name, Timeout: true, Err: fmt.Errorf("simulated timeout")}
	}
	if m.failWith != nil {
		return nil, &InvocationError{Provider: m.name, Err: m.failWith}
	}
	if model == "" {
		model = m.models[0]
	}

	output, ok := m.responses[prompt]
	if !ok {
		output = fmt.Sprintf("%s\n%s", m.defaultResponse, prompt)
	}

	promptTokens := len(prompt) / 4
	completionTokens := len(output) / 4
	return &Result{
		Provider: m.name,
		Model:    model,
		Output:   output,
		Usage: Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
		LatencyMS: m.latencyMS,
		Quality:   m.quality,
	}, nil
}
