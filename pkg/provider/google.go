package provider

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"
)

// GoogleInvoker implements Invoker for Gemini models.
type GoogleInvoker struct {
	client *genai.Client
}

// NewGoogleInvoker creates a Google Gemini invoker.
func NewGoogleInvoker(apiKey string) (*GoogleInvoker, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("google API key is required")
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create google client: %w", err)
	}
	return &GoogleInvoker{client: client}, nil
}

// Name returns the provider identifier.
func (g *GoogleInvoker) Name() string {
	return "google"
}

// Models returns the supported Gemini models.
func (g *GoogleInvoker) Models() []string {
	return []string{
		"gemini-2.0-pro",
	}
}

// Invoke sends a prompt to Gemini and returns the normalized result.
func (g *GoogleInvoker) Invoke(ctx context.Context, model string, prompt string) (*Result, error) {
	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
	if err != nil {
		return nil, &InvocationError{Provider: g.Name(), Timeout: IsTimeout(err), Err: err}
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, &InvocationError{Provider: g.Name(), Err: fmt.Errorf("no candidates returned")}
	}

	var content string
	if resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if part.Text != "" {
				content += part.Text
			}
		}
	}

	usage := Usage{}
	if resp.UsageMetadata != nil {
		usage.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		usage.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		usage.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
	}

	return &Result{
		Provider:  g.Name(),
		Model:     model,
		Output:    content,
		Usage:     usage,
		LatencyMS: time.Since(start).Milliseconds(),
	}, nil
}
