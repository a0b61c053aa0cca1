package dto

import "time"

// OperationType represents the type of AI operation performed
type OperationType string

const (
	OperationLeadQualification OperationType = "lead_qualification"
)

// UsageMetricInput is the input for creating a new usage metric
type UsageMetricInput struct {
	UserID          string        `json:"user_id"`
	LeadID          *string       `json:"lead_id,omitempty"`
	OperationType   OperationType `json:"operation_type"`
	Model           string        `json:"model"`
	InputTokens     int           `json:"input_tokens"`
	OutputTokens    int           `json:"output_tokens"`
	TotalTokens     int           `json:"total_tokens"`
	EstimatedCostUS float64       `json:"estimated_cost_usd"`
	DurationMs      int64         `json:"duration_ms"`
	Success         bool          `json:"success"`
	ErrorMessage    *string       `json:"error_message,omitempty"`
}

// LeadReport is the aggregate summary of a tenant's qualified leads
// @Description Summary of qualified leads
type LeadReport struct {
	TotalLeads     int            `json:"total_leads"`
	QualifiedLeads int            `json:"qualified_leads"`
	AverageScore   float64        `json:"average_score"`
	ByBudget       map[string]int `json:"by_budget"`
	ByMarketSize   map[string]int `json:"by_market_size"`
	ByPlatform     map[string]int `json:"by_platform"`
	TopLeads       []Lead         `json:"top_leads"`
	Markdown       string         `json:"markdown"`
}

// TokenPricing contains pricing information for token estimation
type TokenPricing struct {
	Model              string
	InputPricePerMTok  float64 // Price per million input tokens
	OutputPricePerMTok float64 // Price per million output tokens
}

// DefaultTokenPricing returns pricing for supported models (Gemini + OpenRouter)
func DefaultTokenPricing() map[string]TokenPricing {
	return map[string]TokenPricing{
		"gemini-2.5-flash": {
			Model:              "gemini-2.5-flash",
			InputPricePerMTok:  0.30,
			OutputPricePerMTok: 2.50,
		},
		"gemini-2.5-flash-lite": {
			Model:              "gemini-2.5-flash-lite",
			InputPricePerMTok:  0.10,
			OutputPricePerMTok: 0.40,
		},
		"gemini-2.5-pro": {
			Model:              "gemini-2.5-pro",
			InputPricePerMTok:  1.25,
			OutputPricePerMTok: 10.00,
		},
		"google/gemini-2.5-flash": {
			Model:              "google/gemini-2.5-flash",
			InputPricePerMTok:  0.30,
			OutputPricePerMTok: 2.50,
		},
		"openai/gpt-4o-mini": {
			Model:              "openai/gpt-4o-mini",
			InputPricePerMTok:  0.15,
			OutputPricePerMTok: 0.60,
		},
	}
}

// QualificationUsage describes one reasoning call for usage tracking
type QualificationUsage struct {
	UserID     string
	LeadID     string
	InputText  string
	OutputText string
	StartTime  time.Time
	Err        error
}
