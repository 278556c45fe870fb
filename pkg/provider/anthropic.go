package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
)

// AnthropicInvoker implements Invoker for Claude models.
type AnthropicInvoker struct {
	client anthropic.Client
}

// NewAnthropicInvoker creates an Anthropic invoker.
func NewAnthropicInvoker(apiKey string) (*AnthropicInvoker, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	return &AnthropicInvoker{client: anthropic.NewClient()}, nil
}

// Name returns the provider identifier.
func (a *AnthropicInvoker) Name() string {
	return "anthropic"
}

// Models returns the supported Claude models.
func (a *AnthropicInvoker) Models() []string {
	return []string{
		"claude-sonnet-4-20250514",
		"claude-opus-4-20250514",
	}
}

// Invoke sends a prompt to Claude and returns the normalized result.
func (a *AnthropicInvoker) Invoke(ctx context.Context, model string, prompt string) (*Result, error) {
	start := time.Now()
	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: 4096,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, &InvocationError{Provider: a.Name(), Timeout: IsTimeout(err), Err: err}
	}

	var content string
	for _, block := range resp.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}

	return &Result{
		Provider: a.Name(),
		Model:    model,
		Output:   content,
		Usage: Usage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
		LatencyMS: time.Since(start).Milliseconds(),
	}, nil
}
