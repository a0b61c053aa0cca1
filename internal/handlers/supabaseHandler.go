package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"webstar/noturno-leadfinder-worker/internal/dto"
	"webstar/noturno-leadfinder-worker/internal/logging"

	"github.com/supabase-community/postgrest-go"
	"github.com/supabase-community/supabase-go"
)

// Table names of the persistence boundary
const (
	tableLeads       = "leads"
	tableFollowUps   = "lead_follow_ups"
	tableUsers       = "users"
	tableUserConfigs = "user_keywords"
	tableSMTPConfigs = "user_smtp_configs"
	tableCycleLogs   = "automation_logs"
	tableUsage       = "usage_metrics"
)

var supabaseLog = logging.New("SupabaseHandler")

// SupabaseHandler implements the worker store on top of Supabase (PostgREST)
type SupabaseHandler struct {
	client *supabase.Client
	now    func() time.Time
}

// NewSupabaseHandler creates a new SupabaseHandler instance
// url is the Supabase project URL (e.g., "https://xxx.supabase.co")
// key is the Supabase service role key
func NewSupabaseHandler(url, key string) (*SupabaseHandler, error) {
	if url == "" {
		return nil, fmt.Errorf("supabase URL is required")
	}
	if key == "" {
		return nil, fmt.Errorf("supabase key is required")
	}

	supabaseLog.Info("Initializing", map[string]interface{}{"url": url})

	client, err := supabase.NewClient(url, key, &supabase.ClientOptions{})
	if err != nil {
		supabaseLog.Error("Failed to create client", map[string]interface{}{"error": err.Error()})
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}

	return &SupabaseHandler{
		client: client,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// GetClient returns the underlying Supabase client for advanced operations
func (h *SupabaseHandler) GetClient() *supabase.Client {
	return h.client
}

// decodeRows parses a PostgREST JSON array response
func decodeRows[T any](data []byte, what string) ([]T, error) {
	var rows []T
	if len(data) == 0 {
		return rows, nil
	}
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse %s response: %w", what, err)
	}
	return rows, nil
}

// isDuplicateError matches PostgreSQL unique violations surfaced by PostgREST
func isDuplicateError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "23505") || strings.Contains(strings.ToLower(msg), "duplicate key")
}

func withLimit(b *postgrest.FilterBuilder, limit int) *postgrest.FilterBuilder {
	if limit > 0 {
		return b.Limit(limit, "")
	}
	return b
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// Leads

func (h *SupabaseHandler) LeadExists(ctx context.Context, userID string, platform dto.Platform, externalID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	data, _, err := h.client.From(tableLeads).
		Select("id", "", false).
		Eq("user_id", userID).
		Eq("platform", string(platform)).
		Eq("external_id", externalID).
		Limit(1, "").
		Execute()
	if err != nil {
		return false, fmt.Errorf("failed to check lead existence: %w", err)
	}
	rows, err := decodeRows[map[string]interface{}](data, "lead existence")
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// InsertLead inserts a new lead and returns the generated ID.
// A row with the same (user_id, platform, external_id) yields dto.ErrDuplicate.
func (h *SupabaseHandler) InsertLead(ctx context.Context, lead *dto.Lead) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	status := lead.Status
	if status == "" {
		status = dto.LeadStatusNew
	}
	insertData := map[string]interface{}{
		"user_id":     lead.UserID,
		"username":    lead.Username,
		"platform":    string(lead.Platform),
		"post_url":    lead.PostURL,
		"external_id": lead.ExternalID,
		"source":      lead.Source,
		"language":    lead.Language,
		"title":       lead.Title,
		"content":     lead.Content,
		"status":      string(status),
	}
	if lead.Name != "" {
		insertData["name"] = lead.Name
	}
	if lead.Email != "" {
		insertData["email"] = lead.Email
	}
	if lead.ProfileURL != "" {
		insertData["profile_url"] = lead.ProfileURL
	}
	if lead.SourceCreatedAt != nil {
		insertData["source_created_at"] = formatTime(*lead.SourceCreatedAt)
	}

	data, _, err := h.client.From(tableLeads).Insert(insertData, false, "", "representation", "").Execute()
	if err != nil {
		if isDuplicateError(err) {
			return "", fmt.Errorf("%w: lead %s/%s", dto.ErrDuplicate, lead.Platform, lead.ExternalID)
		}
		supabaseLog.Error("Failed to insert lead", map[string]interface{}{"external_id": lead.ExternalID, "error": err.Error()})
		return "", fmt.Errorf("failed to insert lead: %w", err)
	}

	inserted, err := decodeRows[dto.Lead](data, "lead insert")
	if err != nil {
		return "", err
	}
	if len(inserted) == 0 || inserted[0].ID == "" {
		return "", fmt.Errorf("no lead was inserted")
	}

	supabaseLog.Debug("Lead inserted", map[string]interface{}{"id": inserted[0].ID, "platform": lead.Platform})
	return inserted[0].ID, nil
}

func (h *SupabaseHandler) GetLead(ctx context.Context, leadID string) (*dto.Lead, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, _, err := h.client.From(tableLeads).Select("*", "", false).Eq("id", leadID).Limit(1, "").Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to get lead: %w", err)
	}
	leads, err := decodeRows[dto.Lead](data, "lead")
	if err != nil {
		return nil, err
	}
	if len(leads) == 0 {
		return nil, fmt.Errorf("%w: lead %s", dto.ErrNotFound, leadID)
	}
	return &leads[0], nil
}

// ListUnscoredLeads returns leads awaiting qualification that have not exhausted their
// attempts, least attempted first, then oldest first
func (h *SupabaseHandler) ListUnscoredLeads(ctx context.Context, userID string, limit int) ([]dto.Lead, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q := h.client.From(tableLeads).
		Select("*", "", false).
		Eq("user_id", userID).
		Is("score", "null").
		Lt("qualification_attempts", strconv.Itoa(dto.MaxQualificationAttempts)).
		// one order param; the tie-break column rides in the first term
		Order("qualification_attempts.asc,created_at", &postgrest.OrderOpts{Ascending: true})
	data, _, err := withLimit(q, limit).Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to list unscored leads: %w", err)
	}
	return decodeRows[dto.Lead](data, "unscored leads")
}

// ListScoredLeads returns qualified leads, highest score first
func (h *SupabaseHandler) ListScoredLeads(ctx context.Context, userID string, limit int) ([]dto.Lead, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q := h.client.From(tableLeads).
		Select("*", "", false).
		Eq("user_id", userID).
		Not("score", "is", "null").
		Order("score", &postgrest.OrderOpts{Ascending: false})
	data, _, err := withLimit(q, limit).Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to list scored leads: %w", err)
	}
	return decodeRows[dto.Lead](data, "scored leads")
}

func (h *SupabaseHandler) ListLeadsByStatus(ctx context.Context, userID string, status dto.LeadStatus, limit int) ([]dto.Lead, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q := h.client.From(tableLeads).
		Select("*", "", false).
		Eq("user_id", userID).
		Eq("status", string(status)).
		Order("created_at", &postgrest.OrderOpts{Ascending: true})
	data, _, err := withLimit(q, limit).Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to list %s leads: %w", status, err)
	}
	return decodeRows[dto.Lead](data, "leads by status")
}

func (h *SupabaseHandler) UpdateLeadScore(ctx context.Context, leadID string, u dto.LeadScoreUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	update := map[string]interface{}{
		"score":                u.Score,
		"urgency":              u.Urgency,
		"budget_indicator":     string(u.BudgetIndicator),
		"market_size":          string(u.MarketSize),
		"willingness_to_pay":   u.WillingnessToPay,
		"problem_summary":      u.ProblemSummary,
		"pain_points":          u.PainPoints,
		"recommended_approach": u.RecommendedApproach,
		"updated_at":           formatTime(h.now()),
	}
	if _, _, err := h.client.From(tableLeads).Update(update, "minimal", "").Eq("id", leadID).Execute(); err != nil {
		supabaseLog.Error("Failed to update lead score", map[string]interface{}{"lead_id": leadID, "error": err.Error()})
		return fmt.Errorf("failed to update lead score: %w", err)
	}
	return nil
}

// RecordQualificationFailure counts a failed qualification attempt on a lead
func (h *SupabaseHandler) RecordQualificationFailure(ctx context.Context, leadID string) error {
	lead, err := h.GetLead(ctx, leadID)
	if err != nil {
		return err
	}
	now := formatTime(h.now())
	update := map[string]interface{}{
		"qualification_attempts":  lead.QualificationAttempts + 1,
		"qualification_failed_at": now,
		"updated_at":              now,
	}
	if _, _, err := h.client.From(tableLeads).Update(update, "minimal", "").Eq("id", leadID).Execute(); err != nil {
		return fmt.Errorf("failed to record qualification failure: %w", err)
	}
	return nil
}

// UpdateLeadStatus moves a lead along its lifecycle. The update is conditional on the
// status read, so a concurrent change makes it fail instead of skipping a check.
func (h *SupabaseHandler) UpdateLeadStatus(ctx context.Context, leadID string, next dto.LeadStatus) error {
	lead, err := h.GetLead(ctx, leadID)
	if err != nil {
		return err
	}
	if !lead.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", dto.ErrIllegalTransition, lead.Status, next)
	}

	update := map[string]interface{}{
		"status":     string(next),
		"updated_at": formatTime(h.now()),
	}
	data, _, err := h.client.From(tableLeads).
		Update(update, "representation", "").
		Eq("id", leadID).
		Eq("status", string(lead.Status)).
		Execute()
	if err != nil {
		return fmt.Errorf("failed to update lead status: %w", err)
	}
	rows, err := decodeRows[map[string]interface{}](data, "lead status update")
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("%w: lead %s changed status concurrently", dto.ErrIllegalTransition, leadID)
	}

	supabaseLog.Debug("Lead status updated", map[string]interface{}{"lead_id": leadID, "from": lead.Status, "to": next})
	return nil
}

func (h *SupabaseHandler) RecordEmailSent(ctx context.Context, leadID, subject, trackingID string, sentAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	update := map[string]interface{}{
		"email_sent":        true,
		"email_sent_at":     formatTime(sentAt),
		"email_subject":     subject,
		"email_tracking_id": trackingID,
		"updated_at":        formatTime(h.now()),
	}
	if _, _, err := h.client.From(tableLeads).Update(update, "minimal", "").Eq("id", leadID).Execute(); err != nil {
		return fmt.Errorf("failed to record sent email: %w", err)
	}
	return nil
}

// Follow-ups

// CreateFollowUps inserts the entries whose (lead, sequence, position) is not stored yet
func (h *SupabaseHandler) CreateFollowUps(ctx context.Context, entries []dto.FollowUpScheduleEntry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	type group struct{ leadID, sequence string }
	existing := map[dto.ScheduleKey]bool{}
	seen := map[group]bool{}
	for _, e := range entries {
		g := group{e.LeadID, e.SequenceName}
		if seen[g] {
			continue
		}
		seen[g] = true
		stored, err := h.ListFollowUps(ctx, e.LeadID, e.SequenceName)
		if err != nil {
			return 0, err
		}
		for i := range stored {
			existing[stored[i].Key()] = true
		}
	}

	rows := make([]map[string]interface{}, 0, len(entries))
	for i := range entries {
		e := &entries[i]
		if existing[e.Key()] {
			continue
		}
		existing[e.Key()] = true
		status := e.Status
		if status == "" {
			status = dto.FollowUpPending
		}
		rows = append(rows, map[string]interface{}{
			"lead_id":       e.LeadID,
			"user_id":       e.UserID,
			"sequence_name": e.SequenceName,
			"position":      e.Position,
			"scheduled_for": formatTime(e.ScheduledFor),
			"subject":       e.Subject,
			"body":          e.Body,
			"status":        string(status),
		})
	}
	if len(rows) == 0 {
		return 0, nil
	}

	_, _, err := h.client.From(tableFollowUps).Insert(rows, false, "", "minimal", "").Execute()
	if err == nil {
		return len(rows), nil
	}
	if !isDuplicateError(err) {
		return 0, fmt.Errorf("failed to insert follow-ups: %w", err)
	}

	// A concurrent writer stored some of the keys; the batch is atomic, so retry row by row
	supabaseLog.Warn("Follow-up batch hit stored keys, inserting individually", map[string]interface{}{
		"lead_id": entries[0].LeadID,
		"rows":    len(rows),
	})
	return h.insertFollowUpRows(ctx, rows)
}

func (h *SupabaseHandler) insertFollowUpRows(ctx context.Context, rows []map[string]interface{}) (int, error) {
	inserted := 0
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return inserted, err
		}
		_, _, err := h.client.From(tableFollowUps).Insert(row, false, "", "minimal", "").Execute()
		switch {
		case err == nil:
			inserted++
		case isDuplicateError(err):
			continue
		default:
			return inserted, fmt.Errorf("failed to insert follow-up: %w", err)
		}
	}
	return inserted, nil
}

// ListFollowUps returns a lead's entries by position. An empty sequenceName lists all sequences.
func (h *SupabaseHandler) ListFollowUps(ctx context.Context, leadID, sequenceName string) ([]dto.FollowUpScheduleEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q := h.client.From(tableFollowUps).Select("*", "", false).Eq("lead_id", leadID)
	if sequenceName != "" {
		q = q.Eq("sequence_name", sequenceName)
	}
	data, _, err := q.Order("position", &postgrest.OrderOpts{Ascending: true}).Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to list follow-ups: %w", err)
	}
	return decodeRows[dto.FollowUpScheduleEntry](data, "follow-ups")
}

func (h *SupabaseHandler) HasFollowUps(ctx context.Context, leadID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	data, _, err := h.client.From(tableFollowUps).Select("id", "", false).Eq("lead_id", leadID).Limit(1, "").Execute()
	if err != nil {
		return false, fmt.Errorf("failed to check follow-ups: %w", err)
	}
	rows, err := decodeRows[map[string]interface{}](data, "follow-up existence")
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

func (h *SupabaseHandler) ListDueFollowUps(ctx context.Context, userID string, now time.Time, limit int) ([]dto.FollowUpScheduleEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q := h.client.From(tableFollowUps).
		Select("*", "", false).
		Eq("status", string(dto.FollowUpPending)).
		Lte("scheduled_for", formatTime(now))
	if userID != "" {
		q = q.Eq("user_id", userID)
	}
	q = q.Order("scheduled_for", &postgrest.OrderOpts{Ascending: true})
	data, _, err := withLimit(q, limit).Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to list due follow-ups: %w", err)
	}
	return decodeRows[dto.FollowUpScheduleEntry](data, "due follow-ups")
}

func (h *SupabaseHandler) UpdateFollowUpStatus(ctx context.Context, entryID string, status dto.FollowUpStatus, reason string, sentAt *time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	update := map[string]interface{}{"status": string(status)}
	if reason != "" {
		update["status_reason"] = reason
	}
	if sentAt != nil {
		update["sent_at"] = formatTime(*sentAt)
	}
	if _, _, err := h.client.From(tableFollowUps).Update(update, "minimal", "").Eq("id", entryID).Execute(); err != nil {
		return fmt.Errorf("failed to update follow-up status: %w", err)
	}
	return nil
}

func (h *SupabaseHandler) CancelPendingFollowUps(ctx context.Context, leadID, reason string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	update := map[string]interface{}{
		"status":        string(dto.FollowUpCancelled),
		"status_reason": reason,
	}
	data, _, err := h.client.From(tableFollowUps).
		Update(update, "representation", "").
		Eq("lead_id", leadID).
		Eq("status", string(dto.FollowUpPending)).
		Execute()
	if err != nil {
		return 0, fmt.Errorf("failed to cancel follow-ups: %w", err)
	}
	rows, err := decodeRows[map[string]interface{}](data, "follow-up cancel")
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// Tenants

func (h *SupabaseHandler) ListActiveTenants(ctx context.Context) ([]dto.Tenant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, _, err := h.client.From(tableUsers).
		Select("id,email,name,is_active", "", false).
		Eq("is_active", strconv.FormatBool(true)).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to list active tenants: %w", err)
	}
	tenants, err := decodeRows[dto.Tenant](data, "tenants")
	if err != nil {
		return nil, err
	}
	supabaseLog.Debug("Active tenants loaded", map[string]interface{}{"count": len(tenants)})
	return tenants, nil
}

// GetTenantConfig returns (nil, nil) when the tenant never saved a configuration
func (h *SupabaseHandler) GetTenantConfig(ctx context.Context, userID string) (*dto.TenantConfig, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, _, err := h.client.From(tableUserConfigs).Select("*", "", false).Eq("user_id", userID).Limit(1, "").Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant config: %w", err)
	}
	configs, err := decodeRows[dto.TenantConfig](data, "tenant config")
	if err != nil {
		return nil, err
	}
	if len(configs) == 0 {
		return nil, nil
	}
	return &configs[0], nil
}

// GetSMTPConfig returns (nil, nil) when the tenant has no delivery credentials
func (h *SupabaseHandler) GetSMTPConfig(ctx context.Context, userID string) (*dto.SMTPConfig, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, _, err := h.client.From(tableSMTPConfigs).Select("*", "", false).Eq("user_id", userID).Limit(1, "").Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to get SMTP config: %w", err)
	}
	configs, err := decodeRows[dto.SMTPConfig](data, "SMTP config")
	if err != nil {
		return nil, err
	}
	if len(configs) == 0 {
		return nil, nil
	}
	return &configs[0], nil
}

// Logs and metrics

// cycleLogRow maps a cycle log onto the automation_logs columns
func cycleLogRow(entry *dto.CycleLog) map[string]interface{} {
	row := map[string]interface{}{
		"user_id":          entry.UserID,
		"event_type":       entry.EventType,
		"platform":         entry.Platform,
		"status":           string(entry.Status),
		"leads_found":      entry.LeadsFound,
		"emails_sent":      entry.EmailsSent,
		"duration_seconds": entry.DurationSeconds,
	}
	if entry.Message != "" {
		row["message"] = entry.Message
	}
	if entry.ErrorMessage != "" {
		row["error_message"] = entry.ErrorMessage
	}
	return row
}

func (h *SupabaseHandler) InsertCycleLog(ctx context.Context, entry *dto.CycleLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, _, err := h.client.From(tableCycleLogs).Insert(cycleLogRow(entry), false, "", "minimal", "").Execute(); err != nil {
		supabaseLog.Error("Failed to insert cycle log", map[string]interface{}{"user_id": entry.UserID, "error": err.Error()})
		return fmt.Errorf("failed to insert cycle log: %w", err)
	}
	return nil
}

// InsertUsageMetric records one reasoning usage row
func (h *SupabaseHandler) InsertUsageMetric(ctx context.Context, metric *dto.UsageMetricInput) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, _, err := h.client.From(tableUsage).Insert(metric, false, "", "minimal", "").Execute(); err != nil {
		return fmt.Errorf("failed to insert usage metric: %w", err)
	}
	return nil
}
