// Package store holds the in-memory persistence backend used for dry runs and tests.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"webstar/noturno-leadfinder-worker/internal/dto"

	"github.com/google/uuid"
)

type leadKey struct {
	userID     string
	platform   dto.Platform
	externalID string
}

// Memory implements the worker's store interfaces on maps guarded by one lock.
// Every read returns copies.
type Memory struct {
	mu  sync.RWMutex
	now func() time.Time

	leads     map[string]dto.Lead
	leadOrder []string
	leadKeys  map[leadKey]string

	followUps     map[string]dto.FollowUpScheduleEntry
	followUpOrder []string
	followUpKeys  map[dto.ScheduleKey]string

	tenants   []dto.Tenant
	configs   map[string]dto.TenantConfig
	smtp      map[string]dto.SMTPConfig
	cycleLogs []dto.CycleLog
	usage     []dto.UsageMetricInput
}

// NewMemory creates an empty store
func NewMemory() *Memory {
	return &Memory{
		now:          func() time.Time { return time.Now().UTC() },
		leads:        make(map[string]dto.Lead),
		leadKeys:     make(map[leadKey]string),
		followUps:    make(map[string]dto.FollowUpScheduleEntry),
		followUpKeys: make(map[dto.ScheduleKey]string),
		configs:      make(map[string]dto.TenantConfig),
		smtp:         make(map[string]dto.SMTPConfig),
	}
}

// SetClock overrides the timestamp source
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// AddTenant registers a tenant with an optional config
func (m *Memory) AddTenant(t dto.Tenant, cfg *dto.TenantConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenants = append(m.tenants, t)
	if cfg != nil {
		c := *cfg
		c.UserID = t.ID
		m.configs[t.ID] = c
	}
}

// SetSMTPConfig stores delivery credentials for a tenant
func (m *Memory) SetSMTPConfig(cfg dto.SMTPConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.smtp[cfg.UserID] = cfg
}

// ModifyLead applies fn to a stored lead, standing in for external collaborators
// such as reply detection.
func (m *Memory) ModifyLead(leadID string, fn func(*dto.Lead)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[leadID]
	if !ok {
		return dto.ErrNotFound
	}
	fn(&l)
	l.UpdatedAt = m.now()
	m.leads[leadID] = l
	return nil
}

// Leads returns every stored lead of a tenant in insertion order
func (m *Memory) Leads(userID string) []dto.Lead {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filterLeads(func(l *dto.Lead) bool { return l.UserID == userID }, 0)
}

// CycleLogs returns the recorded cycle outcomes in insertion order
func (m *Memory) CycleLogs() []dto.CycleLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]dto.CycleLog(nil), m.cycleLogs...)
}

// UsageMetrics returns the recorded usage metrics
func (m *Memory) UsageMetrics() []dto.UsageMetricInput {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]dto.UsageMetricInput(nil), m.usage...)
}

// Leads

func (m *Memory) LeadExists(_ context.Context, userID string, platform dto.Platform, externalID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.leadKeys[leadKey{userID: userID, platform: platform, externalID: externalID}]
	return ok, nil
}

func (m *Memory) InsertLead(_ context.Context, lead *dto.Lead) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := leadKey{userID: lead.UserID, platform: lead.Platform, externalID: lead.ExternalID}
	if _, dup := m.leadKeys[key]; dup {
		return "", fmt.Errorf("lead %s/%s: %w", lead.Platform, lead.ExternalID, dto.ErrDuplicate)
	}

	l := *lead
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.Status == "" {
		l.Status = dto.LeadStatusNew
	}
	now := m.now()
	l.CreatedAt, l.UpdatedAt = now, now

	m.leads[l.ID] = l
	m.leadOrder = append(m.leadOrder, l.ID)
	m.leadKeys[key] = l.ID
	return l.ID, nil
}

func (m *Memory) GetLead(_ context.Context, leadID string) (*dto.Lead, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.leads[leadID]
	if !ok {
		return nil, dto.ErrNotFound
	}
	return &l, nil
}

func (m *Memory) ListUnscoredLeads(_ context.Context, userID string, limit int) ([]dto.Lead, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := m.filterLeads(func(l *dto.Lead) bool {
		return l.UserID == userID && l.Score == nil && l.QualificationAttempts < dto.MaxQualificationAttempts
	}, 0)
	sort.SliceStable(out, func(i, j int) bool { return out[i].QualificationAttempts < out[j].QualificationAttempts })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) RecordQualificationFailure(_ context.Context, leadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[leadID]
	if !ok {
		return dto.ErrNotFound
	}
	now := m.now()
	l.QualificationAttempts++
	l.QualificationFailedAt = &now
	l.UpdatedAt = now
	m.leads[leadID] = l
	return nil
}

func (m *Memory) ListScoredLeads(_ context.Context, userID string, limit int) ([]dto.Lead, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := m.filterLeads(func(l *dto.Lead) bool {
		return l.UserID == userID && l.Score != nil
	}, 0)
	sort.SliceStable(out, func(i, j int) bool { return *out[i].Score > *out[j].Score })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) ListLeadsByStatus(_ context.Context, userID string, status dto.LeadStatus, limit int) ([]dto.Lead, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filterLeads(func(l *dto.Lead) bool {
		return l.UserID == userID && l.Status == status
	}, limit), nil
}

func (m *Memory) UpdateLeadScore(_ context.Context, leadID string, u dto.LeadScoreUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[leadID]
	if !ok {
		return dto.ErrNotFound
	}
	score, urgency, wtp := u.Score, u.Urgency, u.WillingnessToPay
	l.Score, l.Urgency, l.WillingnessToPay = &score, &urgency, &wtp
	l.BudgetIndicator = u.BudgetIndicator
	l.MarketSize = u.MarketSize
	l.ProblemSummary = u.ProblemSummary
	l.PainPoints = append([]string(nil), u.PainPoints...)
	l.RecommendedApproach = u.RecommendedApproach
	l.UpdatedAt = m.now()
	m.leads[leadID] = l
	return nil
}

func (m *Memory) UpdateLeadStatus(_ context.Context, leadID string, next dto.LeadStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[leadID]
	if !ok {
		return dto.ErrNotFound
	}
	if !l.Status.CanTransitionTo(next) {
		return fmt.Errorf("%s -> %s: %w", l.Status, next, dto.ErrIllegalTransition)
	}
	l.Status = next
	l.UpdatedAt = m.now()
	m.leads[leadID] = l
	return nil
}

func (m *Memory) RecordEmailSent(_ context.Context, leadID, subject, trackingID string, sentAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[leadID]
	if !ok {
		return dto.ErrNotFound
	}
	l.EmailSent = true
	l.EmailSubject = subject
	l.EmailSentAt = &sentAt
	l.EmailTrackingID = trackingID
	l.UpdatedAt = m.now()
	m.leads[leadID] = l
	return nil
}

func (m *Memory) filterLeads(keep func(*dto.Lead) bool, limit int) []dto.Lead {
	out := []dto.Lead{}
	for _, id := range m.leadOrder {
		l := m.leads[id]
		if !keep(&l) {
			continue
		}
		out = append(out, l)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Follow-ups

func (m *Memory) CreateFollowUps(_ context.Context, entries []dto.FollowUpScheduleEntry) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inserted := 0
	for _, e := range entries {
		if _, exists := m.followUpKeys[e.Key()]; exists {
			continue
		}
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.Status == "" {
			e.Status = dto.FollowUpPending
		}
		e.CreatedAt = m.now()
		m.followUps[e.ID] = e
		m.followUpOrder = append(m.followUpOrder, e.ID)
		m.followUpKeys[e.Key()] = e.ID
		inserted++
	}
	return inserted, nil
}

func (m *Memory) ListFollowUps(_ context.Context, leadID, sequenceName string) ([]dto.FollowUpScheduleEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := m.filterFollowUps(func(e *dto.FollowUpScheduleEntry) bool {
		return e.LeadID == leadID && (sequenceName == "" || e.SequenceName == sequenceName)
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (m *Memory) HasFollowUps(_ context.Context, leadID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range m.followUpOrder {
		if m.followUps[id].LeadID == leadID {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) ListDueFollowUps(_ context.Context, userID string, now time.Time, limit int) ([]dto.FollowUpScheduleEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := m.filterFollowUps(func(e *dto.FollowUpScheduleEntry) bool {
		return e.Status == dto.FollowUpPending &&
			!e.ScheduledFor.After(now) &&
			(userID == "" || e.UserID == userID)
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].ScheduledFor.Before(out[j].ScheduledFor) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) UpdateFollowUpStatus(_ context.Context, entryID string, status dto.FollowUpStatus, reason string, sentAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.followUps[entryID]
	if !ok {
		return dto.ErrNotFound
	}
	e.Status = status
	e.StatusReason = reason
	if sentAt != nil {
		t := *sentAt
		e.SentAt = &t
	}
	m.followUps[entryID] = e
	return nil
}

func (m *Memory) CancelPendingFollowUps(_ context.Context, leadID, reason string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, e := range m.followUps {
		if e.LeadID != leadID || e.Status != dto.FollowUpPending {
			continue
		}
		e.Status = dto.FollowUpCancelled
		e.StatusReason = reason
		m.followUps[id] = e
		n++
	}
	return n, nil
}

func (m *Memory) filterFollowUps(keep func(*dto.FollowUpScheduleEntry) bool) []dto.FollowUpScheduleEntry {
	out := []dto.FollowUpScheduleEntry{}
	for _, id := range m.followUpOrder {
		e := m.followUps[id]
		if keep(&e) {
			out = append(out, e)
		}
	}
	return out
}

// Tenants

func (m *Memory) ListActiveTenants(_ context.Context) ([]dto.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []dto.Tenant{}
	for _, t := range m.tenants {
		if t.Active {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *Memory) GetTenantConfig(_ context.Context, userID string) (*dto.TenantConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg, ok := m.configs[userID]
	if !ok {
		return nil, nil
	}
	return &cfg, nil
}

func (m *Memory) GetSMTPConfig(_ context.Context, userID string) (*dto.SMTPConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg, ok := m.smtp[userID]
	if !ok {
		return nil, nil
	}
	return &cfg, nil
}

// Logs and metrics

func (m *Memory) InsertCycleLog(_ context.Context, entry *dto.CycleLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := *entry
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = m.now()
	}
	m.cycleLogs = append(m.cycleLogs, e)
	return nil
}

// InsertUsageMetric records one reasoning usage row
func (m *Memory) InsertUsageMetric(_ context.Context, metric *dto.UsageMetricInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage = append(m.usage, *metric)
	return nil
}
