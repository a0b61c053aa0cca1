package openrouter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/adk/model"
	"google.golang.org/genai"
)

func newTestModel(t *testing.T, handler http.HandlerFunc) *Model {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	m, err := NewModel(context.Background(), "openai/gpt-4o-mini", &Config{
		APIKey:      "test-key",
		BaseURL:     srv.URL + "/",
		RateLimiter: NewRateLimiter(1, 0),
	})
	require.NoError(t, err)
	return m
}

func generate(m *Model, req *model.LLMRequest) (*model.LLMResponse, error) {
	var resp *model.LLMResponse
	var err error
	for r, e := range m.GenerateContent(context.Background(), req, false) {
		resp, err = r, e
	}
	return resp, err
}

func qualificationRequest() *model.LLMRequest {
	temp := float32(0.3)
	return &model.LLMRequest{
		Contents: []*genai.Content{genai.NewContentFromText("Analyze this lead", genai.RoleUser)},
		Config: &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText("You are an expert lead qualification analyst.", genai.RoleUser),
			Temperature:       &temp,
			MaxOutputTokens:   500,
		},
	}
}

func TestNewModel_Validation(t *testing.T) {
	tests := []struct {
		name  string
		model string
		cfg   *Config
	}{
		{name: "nil config", model: "m", cfg: nil},
		{name: "missing key", model: "m", cfg: &Config{}},
		{name: "missing model", model: "", cfg: &Config{APIKey: "k"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewModel(context.Background(), tt.model, tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestGenerateContent_Success(t *testing.T) {
	var got chatRequest
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"id":"1","choices":[{"index":0,"message":{"role":"assistant","content":"{\"score\":8}"},"finish_reason":"stop"}],"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`))
	})

	resp, err := generate(m, qualificationRequest())
	require.NoError(t, err)
	require.NotNil(t, resp.Content)
	assert.Equal(t, `{"score":8}`, resp.Content.Parts[0].Text)
	assert.Equal(t, genai.FinishReasonStop, resp.FinishReason)
	assert.Equal(t, int32(15), resp.UsageMetadata.TotalTokenCount)

	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[1].Role)
	require.NotNil(t, got.MaxTokens)
	assert.Equal(t, int32(500), *got.MaxTokens)
	require.NotNil(t, got.Temperature)
	assert.InDelta(t, 0.3, *got.Temperature, 0.0001)
}

func TestGenerateContent_APIErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantCode  int
		transient bool
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{"error":"slow down"}`, wantCode: 429, transient: true},
		{name: "server error", status: http.StatusBadGateway, body: "upstream", wantCode: 502, transient: true},
		{name: "bad request", status: http.StatusBadRequest, body: "bad", wantCode: 400, transient: false},
		{name: "error payload in 200", status: http.StatusOK, body: `{"error":{"message":"provider down","code":503}}`, wantCode: 503, transient: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := generate(m, qualificationRequest())
			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.wantCode, apiErr.StatusCode)
			assert.Equal(t, tt.transient, apiErr.Transient())
		})
	}
}

func TestGenerateContent_EmptyRequest(t *testing.T) {
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no call expected")
	})
	_, err := generate(m, &model.LLMRequest{})
	assert.Error(t, err)
}
