package dto

import "time"

// CycleStatus is the outcome of one tenant's processing in a cycle
type CycleStatus string

const (
	CycleStatusSuccess    CycleStatus = "success"
	CycleStatusNoNewLeads CycleStatus = "no_new_leads"
	CycleStatusError      CycleStatus = "error"
)

// CycleEventScrape is the event type written for each tenant cycle
const CycleEventScrape = "scrape_cycle"

// CycleLog is the persisted outcome record of one tenant cycle
type CycleLog struct {
	ID              string      `json:"id,omitempty"`
	UserID          string      `json:"user_id"`
	EventType       string      `json:"event_type"`
	Platform        string      `json:"platform"`
	Status          CycleStatus `json:"status"`
	Message         string      `json:"message,omitempty"`
	LeadsFound      int         `json:"leads_found"`
	EmailsSent      int         `json:"emails_sent"`
	ErrorMessage    string      `json:"error_message,omitempty"`
	DurationSeconds float64     `json:"duration_seconds"`
	CreatedAt       time.Time   `json:"created_at"`
}
