// Package provider builds the ADK model behind the lead reasoner, backed by
// Google Gemini, Vertex AI or OpenRouter.
package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"webstar/noturno-leadfinder-worker/internal/config"
	"webstar/noturno-leadfinder-worker/internal/logging"
	"webstar/noturno-leadfinder-worker/internal/model/openrouter"

	"google.golang.org/adk/model"
	"google.golang.org/adk/model/gemini"
	"google.golang.org/genai"
)

// Backend represents the LLM backend to use
type Backend string

const (
	// BackendGemini uses Google AI Studio (Gemini API)
	BackendGemini Backend = "gemini"
	// BackendVertexAI uses Google Cloud Vertex AI
	BackendVertexAI Backend = "vertexai"
	// BackendOpenRouter uses OpenRouter API
	BackendOpenRouter Backend = "openrouter"
)

var providerLog = logging.New("Provider")

// Config holds configuration for creating an LLM model
type Config struct {
	Backend Backend

	// Model name; empty uses DefaultModel(Backend)
	Model string

	// Google AI Studio configuration
	GoogleAPIKey string

	// Vertex AI configuration
	GCPProject  string
	GCPLocation string

	// OpenRouter configuration
	OpenRouterAPIKey   string
	OpenRouterBaseURL  string
	OpenRouterSiteURL  string // For OpenRouter rankings (HTTP-Referer)
	OpenRouterSiteName string // For OpenRouter rankings (X-Title)
	OpenRouterLimiter  *openrouter.RateLimiter
}

// FromAppConfig maps the worker configuration onto a provider config
func FromAppConfig(cfg *config.Config) Config {
	backend := DetectBackend(cfg.LLMBackend, cfg.OpenRouterAPIKey != "", cfg.UseVertexAI)

	out := Config{
		Backend:            backend,
		GoogleAPIKey:       cfg.GoogleAPIKey,
		GCPProject:         cfg.GCPProject,
		GCPLocation:        cfg.GCPLocation,
		OpenRouterAPIKey:   cfg.OpenRouterAPIKey,
		OpenRouterBaseURL:  cfg.OpenRouterBaseURL,
		OpenRouterSiteName: "Noturno Leadfinder",
	}

	switch backend {
	case BackendOpenRouter:
		out.Model = cfg.OpenRouterModel
		out.OpenRouterLimiter = openrouter.NewRateLimiter(
			cfg.OpenRouterMaxConc,
			time.Duration(cfg.OpenRouterMinDelayMs)*time.Millisecond,
		)
	default:
		out.Model = cfg.GeminiModel
	}
	if out.Model == "" {
		out.Model = DefaultModel(backend)
	}
	return out
}

// NewModel creates a new LLM model based on the configuration
func NewModel(ctx context.Context, cfg Config) (model.LLM, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultModel(cfg.Backend)
	}
	switch cfg.Backend {
	case BackendGemini:
		return newGeminiModel(ctx, cfg)
	case BackendVertexAI:
		return newVertexAIModel(ctx, cfg)
	case BackendOpenRouter:
		return newOpenRouterModel(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported backend: %s", cfg.Backend)
	}
}

func newGeminiModel(ctx context.Context, cfg Config) (model.LLM, error) {
	if cfg.GoogleAPIKey == "" {
		return nil, fmt.Errorf("Google API key is required for Gemini backend")
	}

	providerLog.Info("Creating Gemini model (Google AI Studio)", map[string]interface{}{"model": cfg.Model})

	return gemini.NewModel(ctx, cfg.Model, &genai.ClientConfig{
		APIKey:  cfg.GoogleAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
}

func newVertexAIModel(ctx context.Context, cfg Config) (model.LLM, error) {
	if cfg.GCPProject == "" {
		return nil, fmt.Errorf("GCP Project is required for Vertex AI backend")
	}
	if cfg.GCPLocation == "" {
		return nil, fmt.Errorf("GCP Location is required for Vertex AI backend")
	}

	providerLog.Info("Creating Gemini model (Vertex AI)", map[string]interface{}{
		"model":    cfg.Model,
		"project":  cfg.GCPProject,
		"location": cfg.GCPLocation,
	})

	return gemini.NewModel(ctx, cfg.Model, &genai.ClientConfig{
		Project:  cfg.GCPProject,
		Location: cfg.GCPLocation,
		Backend:  genai.BackendVertexAI,
	})
}

func newOpenRouterModel(ctx context.Context, cfg Config) (model.LLM, error) {
	if cfg.OpenRouterAPIKey == "" {
		return nil, fmt.Errorf("OpenRouter API key is required for OpenRouter backend")
	}

	providerLog.Info("Creating OpenRouter model", map[string]interface{}{"model": cfg.Model})

	return openrouter.NewModel(ctx, cfg.Model, &openrouter.Config{
		APIKey:      cfg.OpenRouterAPIKey,
		BaseURL:     cfg.OpenRouterBaseURL,
		SiteURL:     cfg.OpenRouterSiteURL,
		SiteName:    cfg.OpenRouterSiteName,
		RateLimiter: cfg.OpenRouterLimiter,
	})
}

// DetectBackend picks the backend. A recognised explicit value wins, then an
// OpenRouter key, then Vertex AI, then the Gemini API.
func DetectBackend(explicit string, useOpenRouter, useVertexAI bool) Backend {
	switch b := Backend(strings.ToLower(strings.TrimSpace(explicit))); b {
	case BackendGemini, BackendVertexAI, BackendOpenRouter:
		return b
	}
	if useOpenRouter {
		return BackendOpenRouter
	}
	if useVertexAI {
		return BackendVertexAI
	}
	return BackendGemini
}

// DefaultModel returns the default model for each backend
func DefaultModel(backend Backend) string {
	switch backend {
	case BackendOpenRouter:
		return "google/gemini-2.5-flash" // Fast and cost-effective
	default:
		return "gemini-2.5-flash"
	}
}
