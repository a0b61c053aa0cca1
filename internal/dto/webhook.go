package dto

// ErrorResponse represents an error response
// @Description Error response returned when request fails
type ErrorResponse struct {
	// Error message describing what went wrong
	Error string `json:"error" example:"Unauthorized: invalid webhook secret"`
}

// CycleTriggerResponse is returned when a cycle run is accepted
// @Description Acknowledgement of a cycle trigger
type CycleTriggerResponse struct {
	Status string `json:"status" example:"accepted"`
}

// SequenceSummary is the listing view of a follow-up sequence
// @Description Follow-up sequence listing entry
type SequenceSummary struct {
	Key         string `json:"key" example:"saas_demo"`
	Name        string `json:"name" example:"SaaS Demo Request"`
	Description string `json:"description"`
	TotalEmails int    `json:"total_emails" example:"4"`
	// DelayDays lists the per-step delays relative to the previous step
	DelayDays []int `json:"delay_days"`
}
