package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"webstar/noturno-leadfinder-worker/internal/dto"
	"webstar/noturno-leadfinder-worker/internal/logging"
	"webstar/noturno-leadfinder-worker/internal/sequences"
)

// DefaultDueLimit caps GetDueEntries when no limit is given
const DefaultDueLimit = 50

// ErrUnknownSequence is returned when a schedule references a sequence that is not defined
var ErrUnknownSequence = errors.New("unknown sequence")

// stopStatuses end a sequence before the next send
var stopStatuses = map[dto.LeadStatus]bool{
	dto.LeadStatusReplied:   true,
	dto.LeadStatusConverted: true,
	dto.LeadStatusArchived:  true,
	dto.LeadStatusBadFit:    true,
}

var followUpLog = logging.New("FollowUpEngine")

// LeadData is the lead side of template personalization. Empty fields use defaults.
type LeadData struct {
	Name           string
	Username       string
	Platform       string
	Title          string
	ProblemSummary string
	Industry       string
	BusinessName   string
	Location       string
}

// LeadDataFrom extracts personalization data from a persisted lead
func LeadDataFrom(l *dto.Lead) LeadData {
	return LeadData{
		Name:           l.Name,
		Username:       l.Username,
		Platform:       string(l.Platform),
		Title:          l.Title,
		ProblemSummary: l.ProblemSummary,
		Industry:       l.Industry,
		BusinessName:   l.BusinessName,
		Location:       l.Location,
	}
}

// SenderData is the operator side of template personalization
type SenderData struct {
	Name       string
	Profession string
}

// FollowUpEngine expands sequences into dated schedules and decides whether a sequence may continue
type FollowUpEngine struct {
	table     *sequences.Table
	leads     LeadStore
	followUps FollowUpStore
}

// NewFollowUpEngine creates an engine over the given sequence table and stores
func NewFollowUpEngine(table *sequences.Table, leads LeadStore, followUps FollowUpStore) *FollowUpEngine {
	return &FollowUpEngine{table: table, leads: leads, followUps: followUps}
}

// ListSequences returns a summary of every defined sequence, sorted by key
func (e *FollowUpEngine) ListSequences() []dto.SequenceSummary {
	all := e.table.All()
	out := make([]dto.SequenceSummary, 0, len(all))
	for _, seq := range all {
		delays := make([]int, len(seq.Steps))
		for i, step := range seq.Steps {
			delays[i] = step.DelayDays
		}
		out = append(out, dto.SequenceSummary{
			Key:         seq.Key,
			Name:        seq.Name,
			Description: seq.Description,
			TotalEmails: len(seq.Steps),
			DelayDays:   delays,
		})
	}
	return out
}

// BuildSchedule expands a sequence into pending entries. Each step is scheduled
// DelayDays after the previous one, starting at start. Templates are stored
// unpersonalized and rendered at send time.
func (e *FollowUpEngine) BuildSchedule(leadID, userID, sequenceName string, start time.Time) ([]dto.FollowUpScheduleEntry, error) {
	seq, ok := e.table.Get(sequenceName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSequence, sequenceName)
	}

	entries := make([]dto.FollowUpScheduleEntry, 0, len(seq.Steps))
	current := start
	for _, step := range seq.Steps {
		current = current.AddDate(0, 0, step.DelayDays)
		entries = append(entries, dto.FollowUpScheduleEntry{
			LeadID:       leadID,
			UserID:       userID,
			SequenceName: seq.Key,
			Position:     step.Position,
			ScheduledFor: current,
			Subject:      step.SubjectTemplate,
			Body:         step.BodyTemplate,
			Status:       dto.FollowUpPending,
		})
	}
	return entries, nil
}

// CreateSchedule persists the schedule of a lead for a sequence. Entries already
// stored under the same (lead, sequence, position) are left untouched, so calling
// it twice never duplicates. Returns the entries now stored for that lead and sequence.
func (e *FollowUpEngine) CreateSchedule(ctx context.Context, lead *dto.Lead, sequenceName string, start time.Time) ([]dto.FollowUpScheduleEntry, error) {
	entries, err := e.BuildSchedule(lead.ID, lead.UserID, sequenceName, start)
	if err != nil {
		return nil, err
	}

	inserted, err := e.followUps.CreateFollowUps(ctx, entries)
	if err != nil {
		return nil, fmt.Errorf("failed to store schedule for lead %s: %w", lead.ID, err)
	}

	followUpLog.Info("Schedule created", map[string]interface{}{
		"lead_id":  lead.ID,
		"sequence": sequenceName,
		"steps":    len(entries),
		"inserted": inserted,
	})

	return e.followUps.ListFollowUps(ctx, lead.ID, sequenceName)
}

// Personalize substitutes the known {placeholders} of a template. Missing data falls back
// to neutral defaults so the output never carries a recognised placeholder.
func Personalize(template string, lead LeadData, sender SenderData) string {
	name := firstNonEmpty(lead.Name, lead.Username, "there")
	topic := "your recent post"
	if title := strings.TrimSpace(lead.Title); title != "" {
		topic = truncateTopic(title, 50) + "..."
	}

	r := strings.NewReplacer(
		"{name}", name,
		"{platform}", firstNonEmpty(lead.Platform, "the internet"),
		"{topic}", topic,
		"{problem_summary}", firstNonEmpty(lead.ProblemSummary, "the challenge you mentioned"),
		"{industry}", firstNonEmpty(lead.Industry, "your industry"),
		"{business_name}", firstNonEmpty(lead.BusinessName, "your business"),
		"{location}", firstNonEmpty(lead.Location, "your area"),
		"{sender_name}", firstNonEmpty(sender.Name, "Your Name"),
		"{profession}", firstNonEmpty(sender.Profession, "professional"),
		"{tip_1}", "Automate your outreach",
		"{tip_2}", "Use data-driven targeting",
		"{tip_3}", "Follow up consistently",
	)
	return r.Replace(template)
}

// ShouldContinue decides whether the next message of a lead's sequence may be sent.
// Lookup errors other than a missing lead fail open: the sequence continues.
func (e *FollowUpEngine) ShouldContinue(ctx context.Context, leadID string) (bool, string) {
	lead, err := e.leads.GetLead(ctx, leadID)
	if errors.Is(err, dto.ErrNotFound) || (err == nil && lead == nil) {
		return false, "Lead not found"
	}
	if err != nil {
		followUpLog.Error("Error checking sequence continuation", map[string]interface{}{
			"lead_id": leadID,
			"error":   err.Error(),
		})
		return true, "Error checking status (fail-open)"
	}

	if lead.EmailReplied {
		return false, "Lead replied"
	}
	if stopStatuses[lead.Status] {
		return false, fmt.Sprintf("Lead status is %s", lead.Status)
	}
	return true, "Continue"
}

// GetDueEntries returns pending entries scheduled at or before now, earliest first.
// An empty userID covers every tenant; a non-positive limit uses DefaultDueLimit.
func (e *FollowUpEngine) GetDueEntries(ctx context.Context, userID string, now time.Time, limit int) ([]dto.FollowUpScheduleEntry, error) {
	if limit <= 0 {
		limit = DefaultDueLimit
	}
	entries, err := e.followUps.ListDueFollowUps(ctx, userID, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list due follow-ups: %w", err)
	}
	return entries, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func truncateTopic(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// ClosingMessage renders the closing step for a lead that replied with positive intent
func (e *FollowUpEngine) ClosingMessage(lead LeadData, sender SenderData) (subject, body string, err error) {
	seq, ok := e.table.Get(sequences.Closing)
	if !ok || len(seq.Steps) == 0 {
		return "", "", fmt.Errorf("%w: %s", ErrUnknownSequence, sequences.Closing)
	}
	step := seq.Steps[0]
	return Personalize(step.SubjectTemplate, lead, sender), Personalize(step.BodyTemplate, lead, sender), nil
}
