package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
)

// OpenAIInvoker implements Invoker for OpenAI models.
type OpenAIInvoker struct {
	client openai.Client
}

// NewOpenAIInvoker creates an OpenAI invoker.
func NewOpenAIInvoker(apiKey string) (*OpenAIInvoker, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}
	return &OpenAIInvoker{client: openai.NewClient()}, nil
}

// Name returns the provider identifier.
func (o *OpenAIInvoker) Name() string {
	return "openai"
}

// Models returns the supported OpenAI models.
func (o *OpenAIInvoker) Models() []string {
	return []string{
		"gpt-5.2-instant",
		"gpt-5.2-thinking",
		"gpt-5.2-codex",
		"gpt-5.2-pro",
	}
}

// Invoke sends a prompt to OpenAI and returns the normalized result.
func (o *OpenAIInvoker) Invoke(ctx context.Context, model string, prompt string) (*Result, error) {
	start := time.Now()
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		MaxCompletionTokens: openai.Int(4096),
	})
	if err != nil {
		return nil, &InvocationError{Provider: o.Name(), Timeout: IsTimeout(err), Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &InvocationError{Provider: o.Name(), Err: fmt.Errorf("no choices returned")}
	}

	return &Result{
		Provider: o.Name(),
		Model:    model,
		Output:   resp.Choices[0].Message.Content,
		Usage: Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
		LatencyMS: time.Since(start).Milliseconds(),
	}, nil
}
