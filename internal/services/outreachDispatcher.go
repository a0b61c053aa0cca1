package services

import (
	"context"
	"fmt"
	"time"

	"webstar/noturno-leadfinder-worker/internal/dto"
	"webstar/noturno-leadfinder-worker/internal/logging"

	"github.com/google/uuid"
)

var dispatchLog = logging.New("OutreachDispatcher")

// Sender delivers one message. A nil SMTP config means "use the sender's default".
type Sender interface {
	Send(ctx context.Context, recipient, subject, body string, smtp *dto.SMTPConfig) (bool, string)
}

// DispatchSettings configures the dispatcher. Zero values use the defaults.
type DispatchSettings struct {
	DefaultSequence string
	// DefaultSMTP is used for tenants without their own delivery credentials
	DefaultSMTP *dto.SMTPConfig
	Clock       func() time.Time
}

// OutreachDispatcher enrols qualified leads into sequences, sends due follow-ups
// and moves responded leads to closing.
type OutreachDispatcher struct {
	engine    *FollowUpEngine
	leads     LeadStore
	followUps FollowUpStore
	tenants   TenantStore
	sender    Sender
	settings  DispatchSettings
}

// NewOutreachDispatcher creates a dispatcher
func NewOutreachDispatcher(engine *FollowUpEngine, leads LeadStore, followUps FollowUpStore, tenants TenantStore, sender Sender, settings DispatchSettings) *OutreachDispatcher {
	if settings.DefaultSequence == "" {
		settings.DefaultSequence = "saas_demo"
	}
	if settings.Clock == nil {
		settings.Clock = func() time.Time { return time.Now().UTC() }
	}
	return &OutreachDispatcher{
		engine:    engine,
		leads:     leads,
		followUps: followUps,
		tenants:   tenants,
		sender:    sender,
		settings:  settings,
	}
}

type dispatchRun struct {
	tc     dto.TenantConfig
	smtp   *dto.SMTPConfig
	sender SenderData
	now    time.Time
	limit  int
	sent   int
}

func (r *dispatchRun) full() bool { return r.sent >= r.limit }

// ProcessBatch runs enrolment, due sends and closing for one tenant, sending at most
// limit emails. Returns the number of emails sent.
func (d *OutreachDispatcher) ProcessBatch(ctx context.Context, tc dto.TenantConfig, limit int) (int, error) {
	if limit <= 0 {
		return 0, nil
	}

	smtp, err := d.tenants.GetSMTPConfig(ctx, tc.UserID)
	if err != nil {
		return 0, fmt.Errorf("failed to load SMTP config: %w", err)
	}
	if smtp == nil {
		smtp = d.settings.DefaultSMTP
	}

	run := &dispatchRun{
		tc:    tc,
		smtp:  smtp,
		now:   d.settings.Clock(),
		limit: limit,
		sender: SenderData{
			Name:       tc.SenderName,
			Profession: tc.SenderProfession,
		},
	}
	if run.sender.Name == "" && smtp != nil {
		run.sender.Name = smtp.SenderName
	}

	enrolled, err := d.enrol(ctx, run)
	if err != nil {
		return 0, err
	}
	if err := d.sendDue(ctx, run); err != nil {
		return run.sent, err
	}
	if err := d.closeResponded(ctx, run); err != nil {
		return run.sent, err
	}

	dispatchLog.Info("Outreach batch finished", map[string]interface{}{
		"user_id":  tc.UserID,
		"enrolled": enrolled,
		"sent":     run.sent,
		"limit":    limit,
	})
	return run.sent, nil
}

// enrol schedules the tenant's default sequence for qualified new leads that have an
// email and no schedule yet
func (d *OutreachDispatcher) enrol(ctx context.Context, run *dispatchRun) (int, error) {
	leads, err := d.leads.ListLeadsByStatus(ctx, run.tc.UserID, dto.LeadStatusNew, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to list new leads: %w", err)
	}

	sequenceName := run.tc.SequenceName
	if sequenceName == "" {
		sequenceName = d.settings.DefaultSequence
	}

	enrolled := 0
	for i := range leads {
		if ctx.Err() != nil {
			break
		}
		lead := &leads[i]
		if lead.Email == "" || lead.Score == nil || *lead.Score < run.tc.MinScore {
			continue
		}
		has, err := d.followUps.HasFollowUps(ctx, lead.ID)
		if err != nil {
			dispatchLog.Warn("Failed to check schedule, skipping lead", map[string]interface{}{"lead_id": lead.ID, "error": err.Error()})
			continue
		}
		if has {
			continue
		}
		if _, err := d.engine.CreateSchedule(ctx, lead, sequenceName, run.now); err != nil {
			dispatchLog.Error("Failed to enrol lead", map[string]interface{}{"lead_id": lead.ID, "sequence": sequenceName, "error": err.Error()})
			continue
		}
		enrolled++
	}
	return enrolled, nil
}

func (d *OutreachDispatcher) sendDue(ctx context.Context, run *dispatchRun) error {
	if run.full() {
		return nil
	}
	// failed and skipped entries do not count against the limit, so read past it
	due, err := d.engine.GetDueEntries(ctx, run.tc.UserID, run.now, max(run.limit, DefaultDueLimit))
	if err != nil {
		return err
	}

	for _, entry := range due {
		if run.full() || ctx.Err() != nil {
			break
		}

		if ok, reason := d.engine.ShouldContinue(ctx, entry.LeadID); !ok {
			d.stopSequence(ctx, entry, reason)
			continue
		}

		lead, err := d.leads.GetLead(ctx, entry.LeadID)
		if err != nil {
			dispatchLog.Warn("Failed to load lead for follow-up", map[string]interface{}{"entry_id": entry.ID, "error": err.Error()})
			continue
		}
		if lead.Email == "" {
			d.markEntry(ctx, entry.ID, dto.FollowUpFailed, "Lead has no email", nil)
			continue
		}

		data := LeadDataFrom(lead)
		subject := Personalize(entry.Subject, data, run.sender)
		body := Personalize(entry.Body, data, run.sender)

		ok, msg := d.sender.Send(ctx, lead.Email, subject, body, run.smtp)
		if !ok {
			dispatchLog.Warn("Follow-up delivery failed", map[string]interface{}{"lead_id": lead.ID, "position": entry.Position, "reason": msg})
			d.markEntry(ctx, entry.ID, dto.FollowUpFailed, msg, nil)
			continue
		}

		sentAt := run.now
		d.markEntry(ctx, entry.ID, dto.FollowUpSent, "", &sentAt)
		if lead.Status == dto.LeadStatusNew {
			if err := d.leads.UpdateLeadStatus(ctx, lead.ID, dto.LeadStatusContacted); err != nil {
				dispatchLog.Warn("Failed to mark lead contacted", map[string]interface{}{"lead_id": lead.ID, "error": err.Error()})
			}
		}
		d.recordSent(ctx, lead.ID, subject, sentAt)
		run.sent++
	}
	return nil
}

// closeResponded sends the closing message to leads that replied with positive intent
func (d *OutreachDispatcher) closeResponded(ctx context.Context, run *dispatchRun) error {
	if run.full() {
		return nil
	}
	leads, err := d.leads.ListLeadsByStatus(ctx, run.tc.UserID, dto.LeadStatusResponded, run.limit-run.sent)
	if err != nil {
		return fmt.Errorf("failed to list responded leads: %w", err)
	}

	for i := range leads {
		if run.full() || ctx.Err() != nil {
			break
		}
		lead := &leads[i]
		if lead.Email == "" {
			continue
		}

		subject, body, err := d.engine.ClosingMessage(LeadDataFrom(lead), run.sender)
		if err != nil {
			return err
		}
		ok, msg := d.sender.Send(ctx, lead.Email, subject, body, run.smtp)
		if !ok {
			dispatchLog.Warn("Closing delivery failed", map[string]interface{}{"lead_id": lead.ID, "reason": msg})
			continue
		}

		if err := d.leads.UpdateLeadStatus(ctx, lead.ID, dto.LeadStatusClosing); err != nil {
			dispatchLog.Warn("Failed to mark lead closing", map[string]interface{}{"lead_id": lead.ID, "error": err.Error()})
		}
		if _, err := d.followUps.CancelPendingFollowUps(ctx, lead.ID, "Moved to closing"); err != nil {
			dispatchLog.Warn("Failed to cancel follow-ups", map[string]interface{}{"lead_id": lead.ID, "error": err.Error()})
		}
		d.recordSent(ctx, lead.ID, subject, run.now)
		run.sent++
	}
	return nil
}

// stopSequence skips the entry and cancels whatever is still pending for the lead
func (d *OutreachDispatcher) stopSequence(ctx context.Context, entry dto.FollowUpScheduleEntry, reason string) {
	d.markEntry(ctx, entry.ID, dto.FollowUpSkipped, reason, nil)
	n, err := d.followUps.CancelPendingFollowUps(ctx, entry.LeadID, reason)
	if err != nil {
		dispatchLog.Warn("Failed to cancel follow-ups", map[string]interface{}{"lead_id": entry.LeadID, "error": err.Error()})
		return
	}
	dispatchLog.Info("Sequence stopped", map[string]interface{}{
		"lead_id":   entry.LeadID,
		"sequence":  entry.SequenceName,
		"reason":    reason,
		"cancelled": n,
	})
}

func (d *OutreachDispatcher) markEntry(ctx context.Context, entryID string, status dto.FollowUpStatus, reason string, sentAt *time.Time) {
	if err := d.followUps.UpdateFollowUpStatus(ctx, entryID, status, reason, sentAt); err != nil {
		dispatchLog.Warn("Failed to update follow-up status", map[string]interface{}{
			"entry_id": entryID,
			"status":   status,
			"error":    err.Error(),
		})
	}
}

func (d *OutreachDispatcher) recordSent(ctx context.Context, leadID, subject string, sentAt time.Time) {
	if err := d.leads.RecordEmailSent(ctx, leadID, subject, uuid.NewString(), sentAt); err != nil {
		dispatchLog.Warn("Failed to record sent email", map[string]interface{}{"lead_id": leadID, "error": err.Error()})
	}
}
