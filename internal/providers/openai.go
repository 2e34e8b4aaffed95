package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// defaultAttemptTimeout caps one request/response cycle. Each retry
// attempt gets a fresh deadline so a timed-out attempt can still be
// retried.
const defaultAttemptTimeout = 20 * time.Second

// OpenAIProvider implements Provider for OpenAI-compatible APIs
// (Groq, OpenAI, OpenRouter, DeepSeek, etc.)
type OpenAIProvider struct {
	name           string
	apiKey         string
	apiBase        string
	chatPath       string // defaults to "/chat/completions"
	defaultModel   string
	client         *http.Client
	retryConfig    RetryConfig
	attemptTimeout time.Duration
}

func NewOpenAIProvider(name, apiKey, apiBase, defaultModel string) *OpenAIProvider {
	if apiBase == "" {
		apiBase = "https://api.openai.com/v1"
	}
	apiBase = strings.TrimRight(apiBase, "/")

	return &OpenAIProvider{
		name:           name,
		apiKey:         apiKey,
		apiBase:        apiBase,
		chatPath:       "/chat/completions",
		defaultModel:   defaultModel,
		client:         &http.Client{Timeout: 60 * time.Second},
		retryConfig:    DefaultRetryConfig(),
		attemptTimeout: defaultAttemptTimeout,
	}
}

// NewGroqProvider returns a provider wired to Groq's OpenAI-compatible
// endpoint, the default backend for the assistant.
func NewGroqProvider(apiKey, model string) *OpenAIProvider {
	return NewOpenAIProvider("groq", apiKey, "https://api.groq.com/openai/v1", model)
}

// WithRetryConfig returns the provider with a custom retry policy.
func (p *OpenAIProvider) WithRetryConfig(cfg RetryConfig) *OpenAIProvider {
	p.retryConfig = cfg
	return p
}

// WithAttemptTimeout sets the per-attempt deadline.
func (p *OpenAIProvider) WithAttemptTimeout(d time.Duration) *OpenAIProvider {
	p.attemptTimeout = d
	return p
}

// WithHTTPClient swaps the HTTP client, mainly for tests.
func (p *OpenAIProvider) WithHTTPClient(c *http.Client) *OpenAIProvider {
	p.client = c
	return p
}

func (p *OpenAIProvider) Name() string         { return p.name }
func (p *OpenAIProvider) DefaultModel() string { return p.defaultModel }
func (p *OpenAIProvider) APIBase() string      { return p.apiBase }

func (p *OpenAIProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	body := p.buildRequestBody(req)

	return RetryDo(ctx, p.retryConfig, func() (*ChatResponse, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, p.attemptTimeout)
		defer cancel()

		respBody, err := p.doRequest(attemptCtx, body)
		if err != nil {
			return nil, err
		}
		defer respBody.Close()

		var oaiResp openAIResponse
		if err := json.NewDecoder(respBody).Decode(&oaiResp); err != nil {
			return nil, fmt.Errorf("%s: decode response: %w", p.name, err)
		}

		resp := p.parseResponse(&oaiResp)
		if strings.TrimSpace(resp.Content) == "" {
			return nil, ErrEmptyCompletion
		}
		return resp, nil
	})
}

func (p *OpenAIProvider) buildRequestBody(req ChatRequest) map[string]interface{} {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	msgs := make([]map[string]string, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, map[string]string{
			"role":    m.Role,
			"content": m.Content,
		})
	}

	body := map[string]interface{}{
		"model":    model,
		"messages": msgs,
	}
	if req.Temperature > 0 {
		body["temperature"] = req.Temperature
	}
	if req.TopP > 0 {
		body["top_p"] = req.TopP
	}
	if req.MaxTokens > 0 {
		body["max_tokens"] = req.MaxTokens
	}
	return body
}

func (p *OpenAIProvider) doRequest(ctx context.Context, body interface{}) (io.ReadCloser, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", p.name, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.apiBase+p.chatPath, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", p.name, err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: request failed: %w", p.name, err)
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		retryAfter := ParseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, &HTTPError{
			Status:     resp.StatusCode,
			Body:       fmt.Sprintf("%s: %s", p.name, string(respBody)),
			RetryAfter: retryAfter,
		}
	}

	return resp.Body, nil
}

// openAIResponse mirrors the subset of the chat completions wire format
// the assistant consumes.
type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
}

func (p *OpenAIProvider) parseResponse(resp *openAIResponse) *ChatResponse {
	result := &ChatResponse{FinishReason: "stop"}

	if len(resp.Choices) > 0 {
		result.Content = resp.Choices[0].Message.Content
		if fr := resp.Choices[0].FinishReason; fr != "" {
			result.FinishReason = fr
		}
	}
	if resp.Usage != nil {
		result.Usage = resp.Usage
	}
	return result
}
