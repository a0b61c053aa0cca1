package dto

import "time"

// FollowUpStatus is the delivery state of one scheduled follow-up
type FollowUpStatus string

const (
	FollowUpPending   FollowUpStatus = "pending"
	FollowUpSent      FollowUpStatus = "sent"
	FollowUpSkipped   FollowUpStatus = "skipped" // lead replied or stopped before this was sent
	FollowUpFailed    FollowUpStatus = "failed"
	FollowUpCancelled FollowUpStatus = "cancelled"
)

// SequenceStep is one templated message inside a sequence.
// DelayDays is measured from the previous step, not from the sequence start.
type SequenceStep struct {
	Position        int    `json:"position" yaml:"position"`
	DelayDays       int    `json:"delay_days" yaml:"delay_days"`
	SubjectTemplate string `json:"subject_template" yaml:"subject"`
	BodyTemplate    string `json:"body_template" yaml:"body"`
}

// Sequence is a named, ordered outreach campaign
// @Description Follow-up sequence template
type Sequence struct {
	Key         string         `json:"key" yaml:"key"`
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description" yaml:"description"`
	Steps       []SequenceStep `json:"steps" yaml:"steps"`
}

// FollowUpScheduleEntry is one scheduled message of a sequence for one lead.
// (LeadID, SequenceName, Position) is unique.
type FollowUpScheduleEntry struct {
	ID           string         `json:"id,omitempty"`
	LeadID       string         `json:"lead_id"`
	UserID       string         `json:"user_id,omitempty"`
	SequenceName string         `json:"sequence_name"`
	Position     int            `json:"position"`
	ScheduledFor time.Time      `json:"scheduled_for"`
	Subject      string         `json:"subject"`
	Body         string         `json:"body"`
	Status       FollowUpStatus `json:"status"`
	StatusReason string         `json:"status_reason,omitempty"`
	SentAt       *time.Time     `json:"sent_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// ScheduleKey is the idempotency key of a schedule entry
type ScheduleKey struct {
	LeadID       string
	SequenceName string
	Position     int
}

// Key returns the idempotency key of the entry
func (e *FollowUpScheduleEntry) Key() ScheduleKey {
	return ScheduleKey{LeadID: e.LeadID, SequenceName: e.SequenceName, Position: e.Position}
}
