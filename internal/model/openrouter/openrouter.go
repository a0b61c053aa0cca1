// Package openrouter provides an OpenRouter model implementation for Google ADK.
// OpenRouter exposes an OpenAI-compatible chat completions API in front of many models.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"time"

	"google.golang.org/adk/model"
	"google.golang.org/genai"
)

const (
	// DefaultBaseURL is the OpenRouter API endpoint
	DefaultBaseURL = "https://openrouter.ai/api/v1"
	// DefaultTimeout for API requests
	DefaultTimeout = 120 * time.Second
)

// Config holds configuration for the OpenRouter model
type Config struct {
	// APIKey is the OpenRouter API key (required)
	APIKey string
	// BaseURL is the API base URL (defaults to OpenRouter)
	BaseURL string
	// HTTPClient allows custom HTTP client (optional)
	HTTPClient *http.Client
	// Timeout for requests (defaults to 120s)
	Timeout time.Duration
	// SiteName is sent as X-Title header for OpenRouter rankings (optional)
	SiteName string
	// SiteURL is sent as HTTP-Referer for OpenRouter rankings (optional)
	SiteURL string
	// RateLimiter bounds concurrent calls (optional, unlimited when nil)
	RateLimiter *RateLimiter
}

// Model implements the ADK model.LLM interface for OpenRouter
type Model struct {
	name       string
	config     Config
	httpClient *http.Client
}

// NewModel creates a new OpenRouter model instance
func NewModel(ctx context.Context, modelName string, config *Config) (*Model, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if config.APIKey == "" {
		return nil, fmt.Errorf("APIKey is required")
	}
	if modelName == "" {
		return nil, fmt.Errorf("modelName is required")
	}

	cfg := *config
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Model{
		name:       modelName,
		config:     cfg,
		httpClient: cfg.HTTPClient,
	}, nil
}

// Name returns the model name
func (m *Model) Name() string {
	return m.name
}

// GenerateContent implements the model.LLM interface. Qualification prompts are short,
// so streaming requests are answered with a single complete response.
func (m *Model) GenerateContent(ctx context.Context, req *model.LLMRequest, stream bool) iter.Seq2[*model.LLMResponse, error] {
	return func(yield func(*model.LLMResponse, error) bool) {
		chatReq := m.convertRequest(req)
		if len(chatReq.Messages) == 0 {
			yield(nil, fmt.Errorf("request has no messages"))
			return
		}

		if rl := m.config.RateLimiter; rl != nil {
			release, err := rl.Acquire(ctx)
			if err != nil {
				yield(nil, fmt.Errorf("rate limiter: %w", err))
				return
			}
			defer release()
		}

		resp, err := m.complete(ctx, chatReq)
		if err != nil {
			yield(nil, err)
			return
		}
		yield(convertResponse(resp), nil)
	}
}

// complete performs one chat completion call
func (m *Model) complete(ctx context.Context, req *chatRequest) (*chatResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.config.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+m.config.APIKey)

	// OpenRouter-specific headers
	if m.config.SiteName != "" {
		httpReq.Header.Set("X-Title", m.config.SiteName)
	}
	if m.config.SiteURL != "" {
		httpReq.Header.Set("HTTP-Referer", m.config.SiteURL)
	}

	resp, err := m.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if out.Error != nil {
		code := out.Error.Code
		if code == 0 {
			code = http.StatusBadGateway
		}
		return nil, &APIError{StatusCode: code, Body: out.Error.Message}
	}
	return &out, nil
}

// convertRequest maps the ADK request onto chat messages. The system instruction
// becomes the leading system message and only text parts are carried.
func (m *Model) convertRequest(req *model.LLMRequest) *chatRequest {
	out := &chatRequest{Model: m.name}

	if req.Config != nil {
		if sys := joinText(req.Config.SystemInstruction); sys != "" {
			out.Messages = append(out.Messages, chatMessage{Role: "system", Content: sys})
		}
		out.Temperature = req.Config.Temperature
		out.TopP = req.Config.TopP
		if req.Config.MaxOutputTokens != 0 {
			maxTokens := req.Config.MaxOutputTokens
			out.MaxTokens = &maxTokens
		}
		out.Stop = req.Config.StopSequences
	}

	for _, content := range req.Contents {
		text := joinText(content)
		if text == "" {
			continue
		}
		out.Messages = append(out.Messages, chatMessage{Role: convertRole(content.Role), Content: text})
	}
	return out
}

func convertResponse(resp *chatResponse) *model.LLMResponse {
	llmResp := &model.LLMResponse{TurnComplete: true}

	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		llmResp.Content = &genai.Content{
			Role:  "model",
			Parts: []*genai.Part{{Text: choice.Message.Content}},
		}
		llmResp.FinishReason = convertFinishReason(choice.FinishReason)
	}

	if resp.Usage != nil {
		llmResp.UsageMetadata = &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     int32(resp.Usage.PromptTokens),
			CandidatesTokenCount: int32(resp.Usage.CompletionTokens),
			TotalTokenCount:      int32(resp.Usage.TotalTokens),
		}
	}
	return llmResp
}

func joinText(content *genai.Content) string {
	if content == nil {
		return ""
	}
	var parts []string
	for _, p := range content.Parts {
		if p != nil && p.Text != "" {
			parts = append(parts, p.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func convertRole(role string) string {
	switch role {
	case "model":
		return "assistant"
	case "system":
		return "system"
	default:
		return "user"
	}
}

func convertFinishReason(reason string) genai.FinishReason {
	switch reason {
	case "stop":
		return genai.FinishReasonStop
	case "length":
		return genai.FinishReasonMaxTokens
	case "content_filter":
		return genai.FinishReasonSafety
	default:
		return genai.FinishReasonUnspecified
	}
}
