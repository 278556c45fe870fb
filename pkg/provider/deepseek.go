package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const deepseekBaseURL = "https://api.deepseek.com/v1"

// DeepSeekInvoker implements Invoker for DeepSeek models.
// DeepSeek exposes an OpenAI-compatible API.
type DeepSeekInvoker struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

type deepseekRequest struct {
	Model     string            `json:"model"`
	Messages  []deepseekMessage `json:"messages"`
	MaxTokens int               `json:"max_tokens,omitempty"`
}

type deepseekMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type deepseekResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

// NewDeepSeekInvoker creates a DeepSeek invoker.
func NewDeepSeekInvoker(apiKey string) (*DeepSeekInvoker, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("deepseek API key is required")
	}
	return &DeepSeekInvoker{
		apiKey:     apiKey,
		baseURL:    deepseekBaseURL,
		httpClient: &http.Client{},
	}, nil
}

// Name returns the provider identifier.
func (d *DeepSeekInvoker) Name() string {
	return "deepseek"
}

// Models returns the supported DeepSeek models.
func (d *DeepSeekInvoker) Models() []string {
	return []string{
		"deepseek-chat",
		"deepseek-coder",
		"deepseek-reasoner",
	}
}

// Invoke sends a prompt to DeepSeek and returns the normalized result.
func (d *DeepSeekInvoker) Invoke(ctx context.Context, model string, prompt string) (*Result, error) {
	start := time.Now()

	body, err := json.Marshal(deepseekRequest{
		Model:     model,
		Messages:  []deepseekMessage{{Role: "user", Content: prompt}},
		MaxTokens: 4096,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", d.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+d.apiKey)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, &InvocationError{Provider: d.Name(), Temporary: true, Timeout: IsTimeout(err), Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &InvocationError{Provider: d.Name(), Temporary: true, Err: err}
	}

	var parsed deepseekResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, &InvocationError{Provider: d.Name(), Status: resp.StatusCode, Err: fmt.Errorf("failed to parse response: %w", err)}
	}
	if parsed.Error != nil {
		return nil, &InvocationError{
			Provider: d.Name(),
			Status:   resp.StatusCode,
			Err:      fmt.Errorf("%s (type: %s, code: %s)", parsed.Error.Message, parsed.Error.Type, parsed.Error.Code),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &InvocationError{Provider: d.Name(), Status: resp.StatusCode, Err: fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody))}
	}
	if len(parsed.Choices) == 0 {
		return nil, &InvocationError{Provider: d.Name(), Err: fmt.Errorf("no choices returned")}
	}

	return &Result{
		Provider: d.Name(),
		Model:    model,
		Output:   parsed.Choices[0].Message.Content,
		Usage: Usage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
		},
		LatencyMS: time.Since(start).Milliseconds(),
	}, nil
}
