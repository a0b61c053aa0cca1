package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"webstar/noturno-leadfinder-worker/internal/dto"
	"webstar/noturno-leadfinder-worker/internal/sequences"
	"webstar/noturno-leadfinder-worker/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMessage struct {
	to, subject, body string
	smtp              *dto.SMTPConfig
}

type fakeSender struct {
	mu      sync.Mutex
	fail    map[string]bool
	message []sentMessage
}

func (s *fakeSender) Send(_ context.Context, to, subject, body string, smtp *dto.SMTPConfig) (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail[to] {
		return false, "mailbox unavailable"
	}
	s.message = append(s.message, sentMessage{to: to, subject: subject, body: body, smtp: smtp})
	return true, "sent"
}

type dispatchFixture struct {
	mem    *store.Memory
	sender *fakeSender
	d      *OutreachDispatcher
	now    time.Time
}

func newDispatchFixture(t *testing.T) *dispatchFixture {
	t.Helper()
	mem := store.NewMemory()
	sender := &fakeSender{fail: map[string]bool{}}
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	engine := NewFollowUpEngine(defaultTable(t), mem, mem)
	d := NewOutreachDispatcher(engine, mem, mem, mem, sender, DispatchSettings{
		Clock: func() time.Time { return now },
	})
	return &dispatchFixture{mem: mem, sender: sender, d: d, now: now}
}

func (f *dispatchFixture) insertLead(t *testing.T, l dto.Lead) string {
	t.Helper()
	if l.UserID == "" {
		l.UserID = "u1"
	}
	id, err := f.mem.InsertLead(context.Background(), &l)
	require.NoError(t, err)
	if l.Score != nil {
		require.NoError(t, f.mem.UpdateLeadScore(context.Background(), id, dto.LeadScoreUpdate{
			Score: *l.Score, Urgency: 5, WillingnessToPay: 5, ProblemSummary: l.ProblemSummary,
		}))
	}
	return id
}

func intPtr(n int) *int { return &n }

func TestProcessBatch_EnrolAndSendFirstStep(t *testing.T) {
	ctx := context.Background()
	f := newDispatchFixture(t)

	good := f.insertLead(t, dto.Lead{ExternalID: "1", Email: "ana@example.com", Name: "Ana", Platform: dto.PlatformReddit, Title: "CRM help", Score: intPtr(8), ProblemSummary: "losing leads"})
	f.insertLead(t, dto.Lead{ExternalID: "2", Email: "low@example.com", Score: intPtr(3)})
	f.insertLead(t, dto.Lead{ExternalID: "3", Score: intPtr(9)})
	f.insertLead(t, dto.Lead{ExternalID: "4", Email: "unscored@example.com"})

	sent, err := f.d.ProcessBatch(ctx, dto.TenantConfig{UserID: "u1", MinScore: 7, SenderName: "Rui"}, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	require.Len(t, f.sender.message, 1)
	msg := f.sender.message[0]
	assert.Equal(t, "ana@example.com", msg.to)
	assert.Equal(t, "Re: Your reddit post about CRM help...", msg.subject)
	assert.Contains(t, msg.body, "Hi Ana,")
	assert.Contains(t, msg.body, "losing leads")
	assert.Contains(t, msg.body, "Rui")
	assert.Nil(t, msg.smtp)

	lead, err := f.mem.GetLead(ctx, good)
	require.NoError(t, err)
	assert.Equal(t, dto.LeadStatusContacted, lead.Status)
	assert.True(t, lead.EmailSent)
	assert.Equal(t, msg.subject, lead.EmailSubject)
	assert.NotEmpty(t, lead.EmailTrackingID)

	entries, err := f.mem.ListFollowUps(ctx, good, sequences.SaaSDemo)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.Equal(t, dto.FollowUpSent, entries[0].Status)
	assert.Equal(t, dto.FollowUpPending, entries[1].Status)

	t.Run("second run does not re-enrol or resend", func(t *testing.T) {
		sent, err := f.d.ProcessBatch(ctx, dto.TenantConfig{UserID: "u1", MinScore: 7}, 5)
		require.NoError(t, err)
		assert.Equal(t, 0, sent)
		assert.Len(t, f.sender.message, 1)
	})
}

func TestProcessBatch_StopConditionCancelsSequence(t *testing.T) {
	ctx := context.Background()
	f := newDispatchFixture(t)
	id := f.insertLead(t, dto.Lead{ExternalID: "1", Email: "ana@example.com", Score: intPtr(9)})

	engine := NewFollowUpEngine(defaultTable(t), f.mem, f.mem)
	_, err := engine.CreateSchedule(ctx, &dto.Lead{ID: id, UserID: "u1"}, sequences.SaaSDemo, f.now.AddDate(0, 0, -30))
	require.NoError(t, err)
	require.NoError(t, f.mem.ModifyLead(id, func(l *dto.Lead) { l.EmailReplied = true }))

	sent, err := f.d.ProcessBatch(ctx, dto.TenantConfig{UserID: "u1", MinScore: 7}, 5)
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
	assert.Empty(t, f.sender.message)

	entries, err := f.mem.ListFollowUps(ctx, id, sequences.SaaSDemo)
	require.NoError(t, err)
	assert.Equal(t, dto.FollowUpSkipped, entries[0].Status)
	assert.Equal(t, "Lead replied", entries[0].StatusReason)
	for _, e := range entries[1:] {
		assert.Equal(t, dto.FollowUpCancelled, e.Status)
	}
}

func TestProcessBatch_FailedDeliveryAndLimit(t *testing.T) {
	ctx := context.Background()
	f := newDispatchFixture(t)
	f.sender.fail["bounce@example.com"] = true

	bounce := f.insertLead(t, dto.Lead{ExternalID: "1", Email: "bounce@example.com", Score: intPtr(9)})
	f.insertLead(t, dto.Lead{ExternalID: "2", Email: "b@example.com", Score: intPtr(9)})
	f.insertLead(t, dto.Lead{ExternalID: "3", Email: "c@example.com", Score: intPtr(9)})

	sent, err := f.d.ProcessBatch(ctx, dto.TenantConfig{UserID: "u1"}, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	entries, err := f.mem.ListFollowUps(ctx, bounce, sequences.SaaSDemo)
	require.NoError(t, err)
	assert.Equal(t, dto.FollowUpFailed, entries[0].Status)
	assert.Equal(t, "mailbox unavailable", entries[0].StatusReason)

	lead, err := f.mem.GetLead(ctx, bounce)
	require.NoError(t, err)
	assert.Equal(t, dto.LeadStatusNew, lead.Status)
}

func TestProcessBatch_ClosingAndTenantSMTP(t *testing.T) {
	ctx := context.Background()
	f := newDispatchFixture(t)
	f.mem.SetSMTPConfig(dto.SMTPConfig{UserID: "u1", Server: "smtp.example.com", Username: "u", Password: "p", SenderName: "Rui Costa"})

	id := f.insertLead(t, dto.Lead{ExternalID: "1", Email: "ana@example.com", Name: "Ana", Title: "CRM help"})
	require.NoError(t, f.mem.UpdateLeadStatus(ctx, id, dto.LeadStatusContacted))
	require.NoError(t, f.mem.UpdateLeadStatus(ctx, id, dto.LeadStatusResponded))
	_, err := f.mem.CreateFollowUps(ctx, []dto.FollowUpScheduleEntry{{LeadID: id, UserID: "u1", SequenceName: sequences.SaaSDemo, Position: 3, ScheduledFor: f.now.AddDate(0, 0, 5)}})
	require.NoError(t, err)

	sent, err := f.d.ProcessBatch(ctx, dto.TenantConfig{UserID: "u1"}, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	require.Len(t, f.sender.message, 1)
	msg := f.sender.message[0]
	assert.Equal(t, "Next steps - CRM help...", msg.subject)
	assert.Contains(t, msg.body, "Rui Costa")
	require.NotNil(t, msg.smtp)
	assert.Equal(t, "smtp.example.com", msg.smtp.Server)

	lead, err := f.mem.GetLead(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, dto.LeadStatusClosing, lead.Status)

	entries, err := f.mem.ListFollowUps(ctx, id, "")
	require.NoError(t, err)
	assert.Equal(t, dto.FollowUpCancelled, entries[0].Status)
}

func TestProcessBatch_ZeroLimit(t *testing.T) {
	f := newDispatchFixture(t)
	sent, err := f.d.ProcessBatch(context.Background(), dto.TenantConfig{UserID: "u1"}, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
}
