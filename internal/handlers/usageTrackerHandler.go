package handlers

import (
	"context"
	"sync"
	"time"

	"webstar/noturno-leadfinder-worker/internal/dto"
	"webstar/noturno-leadfinder-worker/internal/logging"
)

const (
	// CharsPerToken is the approximate number of characters per token for estimation
	CharsPerToken = 4
	// fallbackPricingModel prices models missing from the pricing table
	fallbackPricingModel = "gemini-2.5-flash"
)

var usageLog = logging.New("UsageTracker")

// UsageSink persists usage metrics
type UsageSink interface {
	InsertUsageMetric(ctx context.Context, metric *dto.UsageMetricInput) error
}

// UsageTrackerHandler tracks AI usage metrics
type UsageTrackerHandler struct {
	sink    UsageSink
	model   string
	pricing map[string]dto.TokenPricing
	mu      sync.Mutex
	totals  UsageTotals
}

// UsageTotals accumulates what was tracked since process start
type UsageTotals struct {
	Operations int
	Failures   int
	Tokens     int
	CostUSD    float64
}

// NewUsageTrackerHandler creates a tracker for the given model. A nil sink only keeps totals.
func NewUsageTrackerHandler(sink UsageSink, model string) *UsageTrackerHandler {
	return &UsageTrackerHandler{
		sink:    sink,
		model:   model,
		pricing: dto.DefaultTokenPricing(),
	}
}

// EstimateTokens estimates token count from text length
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + CharsPerToken - 1) / CharsPerToken
}

// CalculateCost calculates the estimated cost for a given operation
func (h *UsageTrackerHandler) CalculateCost(model string, inputTokens, outputTokens int) float64 {
	pricing, ok := h.pricing[model]
	if !ok {
		pricing = h.pricing[fallbackPricingModel]
	}

	inputCost := float64(inputTokens) * pricing.InputPricePerMTok / 1_000_000
	outputCost := float64(outputTokens) * pricing.OutputPricePerMTok / 1_000_000

	return inputCost + outputCost
}

// TrackQualification records one qualification call. Failures to persist are logged, never returned.
func (h *UsageTrackerHandler) TrackQualification(ctx context.Context, usage dto.QualificationUsage) {
	inputTokens := EstimateTokens(usage.InputText)
	outputTokens := EstimateTokens(usage.OutputText)
	totalTokens := inputTokens + outputTokens
	durationMs := time.Since(usage.StartTime).Milliseconds()
	cost := h.CalculateCost(h.model, inputTokens, outputTokens)

	metric := dto.UsageMetricInput{
		UserID:          usage.UserID,
		OperationType:   dto.OperationLeadQualification,
		Model:           h.model,
		InputTokens:     inputTokens,
		OutputTokens:    outputTokens,
		TotalTokens:     totalTokens,
		EstimatedCostUS: cost,
		DurationMs:      durationMs,
		Success:         usage.Err == nil,
	}
	if usage.LeadID != "" {
		leadID := usage.LeadID
		metric.LeadID = &leadID
	}
	if usage.Err != nil {
		msg := usage.Err.Error()
		metric.ErrorMessage = &msg
	}

	h.mu.Lock()
	h.totals.Operations++
	if usage.Err != nil {
		h.totals.Failures++
	}
	h.totals.Tokens += totalTokens
	h.totals.CostUSD += cost
	h.mu.Unlock()

	usageLog.Debug("Tracked operation", map[string]interface{}{
		"operation": metric.OperationType,
		"tokens":    totalTokens,
		"cost_usd":  cost,
		"duration":  durationMs,
		"success":   metric.Success,
	})

	// Usage rows belong to a tenant; anonymous calls only count towards totals
	if h.sink == nil || usage.UserID == "" {
		return
	}
	if err := h.sink.InsertUsageMetric(ctx, &metric); err != nil {
		usageLog.Warn("Failed to insert usage metric", map[string]interface{}{"user_id": usage.UserID, "error": err.Error()})
	}
}

// Totals returns a snapshot of the accumulated usage
func (h *UsageTrackerHandler) Totals() UsageTotals {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.totals
}
