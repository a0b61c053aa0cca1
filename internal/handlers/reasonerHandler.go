package handlers

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"webstar/noturno-leadfinder-worker/internal/logging"

	"google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/model"
	"google.golang.org/adk/runner"
	"google.golang.org/adk/session"
	"google.golang.org/genai"
)

const (
	reasonerAppName = "lead_reasoner"
	reasonerUserID  = "system"
	// DefaultReasonerTemperature keeps scoring stable between runs
	DefaultReasonerTemperature = 0.3
	// DefaultReasonerMaxTokens bounds the JSON verdict
	DefaultReasonerMaxTokens = 500
)

var reasonerLog = logging.New("ReasonerHandler")

// ReasonerOptions tunes generation
type ReasonerOptions struct {
	Temperature     float32
	MaxOutputTokens int32
}

// ReasonerHandler answers single-turn prompts through an ADK agent. One agent is
// built per distinct system instruction and reused across calls.
type ReasonerHandler struct {
	llm            model.LLM
	opts           ReasonerOptions
	sessionService session.Service

	mu      sync.Mutex
	runners map[string]*runner.Runner
}

// NewReasonerHandler wraps an ADK model
func NewReasonerHandler(llm model.LLM, opts ReasonerOptions) (*ReasonerHandler, error) {
	if llm == nil {
		return nil, fmt.Errorf("model is required")
	}
	if opts.Temperature <= 0 {
		opts.Temperature = DefaultReasonerTemperature
	}
	if opts.MaxOutputTokens <= 0 {
		opts.MaxOutputTokens = DefaultReasonerMaxTokens
	}

	reasonerLog.Info("Initialized", map[string]interface{}{
		"model":       llm.Name(),
		"temperature": opts.Temperature,
		"max_tokens":  opts.MaxOutputTokens,
	})

	return &ReasonerHandler{
		llm:            llm,
		opts:           opts,
		sessionService: session.InMemoryService(),
		runners:        map[string]*runner.Runner{},
	}, nil
}

// ModelName returns the name of the underlying model, used for usage pricing
func (h *ReasonerHandler) ModelName() string {
	return h.llm.Name()
}

func (h *ReasonerHandler) runnerFor(system string) (*runner.Runner, error) {
	sum := sha1.Sum([]byte(system))
	key := hex.EncodeToString(sum[:])

	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.runners[key]; ok {
		return r, nil
	}

	temperature := h.opts.Temperature
	reasoner, err := llmagent.New(llmagent.Config{
		Name:        "lead_qualifier_agent",
		Model:       h.llm,
		Description: "Scores public posts as business leads and answers with a JSON verdict.",
		Instruction: system,
		GenerateContentConfig: &genai.GenerateContentConfig{
			Temperature:     &temperature,
			MaxOutputTokens: h.opts.MaxOutputTokens,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}

	r, err := runner.New(runner.Config{
		AppName:        reasonerAppName,
		Agent:          reasoner,
		SessionService: h.sessionService,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create runner: %w", err)
	}
	h.runners[key] = r
	return r, nil
}

// Complete sends prompt under the system instruction and returns the concatenated text reply
func (h *ReasonerHandler) Complete(ctx context.Context, system, prompt string) (string, error) {
	r, err := h.runnerFor(system)
	if err != nil {
		return "", err
	}

	createResp, err := h.sessionService.Create(ctx, &session.CreateRequest{
		AppName: reasonerAppName,
		UserID:  reasonerUserID,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	sessionID := createResp.Session.ID()
	defer func() {
		_ = h.sessionService.Delete(context.WithoutCancel(ctx), &session.DeleteRequest{
			AppName:   reasonerAppName,
			UserID:    reasonerUserID,
			SessionID: sessionID,
		})
	}()

	userMessage := &genai.Content{
		Role:  "user",
		Parts: []*genai.Part{{Text: prompt}},
	}
	runConfig := agent.RunConfig{StreamingMode: agent.StreamingModeNone}

	var sb strings.Builder
	for event, err := range r.Run(ctx, reasonerUserID, sessionID, userMessage, runConfig) {
		if err != nil {
			return "", err
		}
		if event == nil || event.Content == nil {
			continue
		}
		for _, part := range event.Content.Parts {
			if part != nil && part.Text != "" {
				sb.WriteString(part.Text)
			}
		}
	}

	if sb.Len() == 0 {
		return "", fmt.Errorf("empty response from model %s", h.llm.Name())
	}
	return sb.String(), nil
}
