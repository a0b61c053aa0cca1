package services

import (
	"context"
	"time"

	"webstar/noturno-leadfinder-worker/internal/dto"
)

// LeadStore persists leads. Missing rows return dto.ErrNotFound.
type LeadStore interface {
	// LeadExists reports whether (userID, platform, externalID) is already stored
	LeadExists(ctx context.Context, userID string, platform dto.Platform, externalID string) (bool, error)
	InsertLead(ctx context.Context, lead *dto.Lead) (string, error)
	GetLead(ctx context.Context, leadID string) (*dto.Lead, error)
	ListUnscoredLeads(ctx context.Context, userID string, limit int) ([]dto.Lead, error)
	ListScoredLeads(ctx context.Context, userID string, limit int) ([]dto.Lead, error)
	ListLeadsByStatus(ctx context.Context, userID string, status dto.LeadStatus, limit int) ([]dto.Lead, error)
	UpdateLeadScore(ctx context.Context, leadID string, update dto.LeadScoreUpdate) error
	// RecordQualificationFailure counts one failed attempt; ListUnscoredLeads skips leads
	// at dto.MaxQualificationAttempts and returns the least attempted first
	RecordQualificationFailure(ctx context.Context, leadID string) error
	// UpdateLeadStatus rejects moves not allowed by LeadStatus.CanTransitionTo with dto.ErrIllegalTransition
	UpdateLeadStatus(ctx context.Context, leadID string, next dto.LeadStatus) error
	// RecordEmailSent stores the outreach bookkeeping of a delivered message
	RecordEmailSent(ctx context.Context, leadID, subject, trackingID string, sentAt time.Time) error
}

// FollowUpStore persists schedule entries. (lead, sequence, position) is unique.
type FollowUpStore interface {
	// CreateFollowUps inserts the entries whose key is not already stored and returns how many were inserted
	CreateFollowUps(ctx context.Context, entries []dto.FollowUpScheduleEntry) (int, error)
	ListFollowUps(ctx context.Context, leadID, sequenceName string) ([]dto.FollowUpScheduleEntry, error)
	HasFollowUps(ctx context.Context, leadID string) (bool, error)
	// ListDueFollowUps returns pending entries with scheduled_for <= now, oldest first.
	// An empty userID lists every tenant.
	ListDueFollowUps(ctx context.Context, userID string, now time.Time, limit int) ([]dto.FollowUpScheduleEntry, error)
	UpdateFollowUpStatus(ctx context.Context, entryID string, status dto.FollowUpStatus, reason string, sentAt *time.Time) error
	CancelPendingFollowUps(ctx context.Context, leadID, reason string) (int, error)
}

// TenantStore reads tenant accounts and their settings.
// Missing configs return (nil, nil) so callers fall back to defaults.
type TenantStore interface {
	ListActiveTenants(ctx context.Context) ([]dto.Tenant, error)
	GetTenantConfig(ctx context.Context, userID string) (*dto.TenantConfig, error)
	GetSMTPConfig(ctx context.Context, userID string) (*dto.SMTPConfig, error)
}

// CycleLogStore records per-tenant cycle outcomes
type CycleLogStore interface {
	InsertCycleLog(ctx context.Context, entry *dto.CycleLog) error
}

// Store is the full persistence boundary of the worker
type Store interface {
	LeadStore
	FollowUpStore
	TenantStore
	CycleLogStore
}
