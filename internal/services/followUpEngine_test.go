package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"webstar/noturno-leadfinder-worker/internal/dto"
	"webstar/noturno-leadfinder-worker/internal/sequences"
	"webstar/noturno-leadfinder-worker/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultTable(t *testing.T) *sequences.Table {
	t.Helper()
	table, err := sequences.Default()
	require.NoError(t, err)
	return table
}

func testTable(t *testing.T) *sequences.Table {
	t.Helper()
	table, err := sequences.Parse([]byte(`
sequences:
  three_step:
    name: Three Step
    description: test
    steps:
      - {position: 1, delay_days: 0, subject: "Hi {name}", body: "About {topic}"}
      - {position: 2, delay_days: 2, subject: "Again", body: "{problem_summary}"}
      - {position: 3, delay_days: 4, subject: "Last", body: "{sender_name}"}
`))
	require.NoError(t, err)
	return table
}

// failingLeads makes GetLead fail with a non-not-found error
type failingLeads struct {
	*store.Memory
	err error
}

func (f failingLeads) GetLead(context.Context, string) (*dto.Lead, error) { return nil, f.err }

func TestBuildSchedule_CumulativeDelays(t *testing.T) {
	mem := store.NewMemory()
	e := NewFollowUpEngine(testTable(t), mem, mem)
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	entries, err := e.BuildSchedule("lead-1", "u1", "three_step", start)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	want := []time.Time{
		time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 3, 10, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 7, 10, 0, 0, 0, time.UTC),
	}
	for i, entry := range entries {
		assert.Equal(t, want[i], entry.ScheduledFor)
		assert.Equal(t, i+1, entry.Position)
		assert.Equal(t, dto.FollowUpPending, entry.Status)
		assert.Equal(t, "three_step", entry.SequenceName)
	}
	assert.Equal(t, "Hi {name}", entries[0].Subject, "templates are rendered at send time")

	_, err = e.BuildSchedule("lead-1", "u1", "nope", start)
	assert.ErrorIs(t, err, ErrUnknownSequence)
}

func TestCreateSchedule_Idempotent(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	e := NewFollowUpEngine(defaultTable(t), mem, mem)
	lead := &dto.Lead{ID: "lead-1", UserID: "u1"}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	first, err := e.CreateSchedule(ctx, lead, sequences.SaaSDemo, start)
	require.NoError(t, err)
	require.Len(t, first, 4)

	second, err := e.CreateSchedule(ctx, lead, sequences.SaaSDemo, start.AddDate(0, 1, 0))
	require.NoError(t, err)
	require.Len(t, second, 4)
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].ScheduledFor, second[i].ScheduledFor, "existing entries are not rescheduled")
	}

	_, err = e.CreateSchedule(ctx, lead, "unknown", start)
	assert.ErrorIs(t, err, ErrUnknownSequence)
}

func TestPersonalize(t *testing.T) {
	tests := []struct {
		name     string
		template string
		lead     LeadData
		sender   SenderData
		want     string
	}{
		{
			name:     "full data",
			template: "Hi {name}, saw your {platform} post about {topic} ({problem_summary}). {sender_name}, {profession}",
			lead:     LeadData{Name: "Ana", Platform: "reddit", Title: "CRM help", ProblemSummary: "losing leads"},
			sender:   SenderData{Name: "Rui", Profession: "consultant"},
			want:     "Hi Ana, saw your reddit post about CRM help... (losing leads). Rui, consultant",
		},
		{
			name:     "username fallback",
			template: "Hi {name}",
			lead:     LeadData{Username: "founder_jane"},
			want:     "Hi founder_jane",
		},
		{
			name:     "all defaults",
			template: "{name}|{platform}|{topic}|{problem_summary}|{industry}|{business_name}|{location}|{sender_name}|{profession}",
			want:     "there|the internet|your recent post|the challenge you mentioned|your industry|your business|your area|Your Name|professional",
		},
		{
			name:     "topic truncated to 50 runes",
			template: "{topic}",
			lead:     LeadData{Title: strings.Repeat("é", 60)},
			want:     strings.Repeat("é", 50) + "...",
		},
		{
			name:     "tips",
			template: "{tip_1}; {tip_2}; {tip_3}",
			want:     "Automate your outreach; Use data-driven targeting; Follow up consistently",
		},
		{
			name:     "unknown placeholder left alone",
			template: "{coupon}",
			want:     "{coupon}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Personalize(tt.template, tt.lead, tt.sender))
		})
	}
}

func TestPersonalize_DefaultSequencesLeaveNoPlaceholders(t *testing.T) {
	placeholder := regexp.MustCompile(`\{[a-z_0-9]+\}`)
	for _, seq := range defaultTable(t).All() {
		for _, step := range seq.Steps {
			subject := Personalize(step.SubjectTemplate, LeadData{}, SenderData{})
			body := Personalize(step.BodyTemplate, LeadData{}, SenderData{})
			assert.False(t, placeholder.MatchString(subject), "%s/%d subject: %s", seq.Key, step.Position, subject)
			assert.False(t, placeholder.MatchString(body), "%s/%d body", seq.Key, step.Position)
		}
	}
}

func TestShouldContinue(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	e := NewFollowUpEngine(defaultTable(t), mem, mem)

	insert := func(l dto.Lead) string {
		l.UserID = "u1"
		id, err := mem.InsertLead(ctx, &l)
		require.NoError(t, err)
		return id
	}

	contacted := insert(dto.Lead{ExternalID: "1", Status: dto.LeadStatusContacted})
	replied := insert(dto.Lead{ExternalID: "2", Status: dto.LeadStatusContacted, EmailReplied: true})
	converted := insert(dto.Lead{ExternalID: "3", Status: dto.LeadStatusConverted})
	badFit := insert(dto.Lead{ExternalID: "4", Status: dto.LeadStatusBadFit})
	statusReplied := insert(dto.Lead{ExternalID: "5", Status: dto.LeadStatusReplied})

	tests := []struct {
		name   string
		leadID string
		ok     bool
		reason string
	}{
		{name: "active lead", leadID: contacted, ok: true, reason: "Continue"},
		{name: "missing lead", leadID: "nope", ok: false, reason: "Lead not found"},
		{name: "reply flag", leadID: replied, ok: false, reason: "Lead replied"},
		{name: "converted", leadID: converted, ok: false, reason: "Lead status is converted"},
		{name: "bad fit", leadID: badFit, ok: false, reason: "Lead status is bad_fit"},
		{name: "replied status", leadID: statusReplied, ok: false, reason: "Lead status is replied"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := e.ShouldContinue(ctx, tt.leadID)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.reason, reason)
		})
	}

	t.Run("terminal status stays stopped after other changes", func(t *testing.T) {
		require.NoError(t, mem.ModifyLead(converted, func(l *dto.Lead) {
			l.EmailOpened = true
			l.EmailReplied = false
		}))
		ok, _ := e.ShouldContinue(ctx, converted)
		assert.False(t, ok)
	})

	t.Run("lookup error fails open", func(t *testing.T) {
		broken := NewFollowUpEngine(defaultTable(t), failingLeads{Memory: mem, err: errors.New("connection reset")}, mem)
		ok, reason := broken.ShouldContinue(ctx, contacted)
		assert.True(t, ok)
		assert.Equal(t, "Error checking status (fail-open)", reason)
	})
}

func TestGetDueEntries(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	e := NewFollowUpEngine(defaultTable(t), mem, mem)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := e.CreateSchedule(ctx, &dto.Lead{ID: "l1", UserID: "u1"}, sequences.SaaSDemo, start)
	require.NoError(t, err)
	_, err = e.CreateSchedule(ctx, &dto.Lead{ID: "l2", UserID: "u2"}, sequences.SaaSDemo, start.Add(-time.Hour))
	require.NoError(t, err)

	due, err := e.GetDueEntries(ctx, "", start.AddDate(0, 0, 2), 0)
	require.NoError(t, err)
	require.Len(t, due, 4)
	assert.Equal(t, "l2", due[0].LeadID)
	for i := 1; i < len(due); i++ {
		assert.False(t, due[i].ScheduledFor.Before(due[i-1].ScheduledFor))
	}

	due, err = e.GetDueEntries(ctx, "u1", start.AddDate(0, 0, 2), 1)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, 1, due[0].Position)
}

func TestListSequences(t *testing.T) {
	mem := store.NewMemory()
	summaries := NewFollowUpEngine(defaultTable(t), mem, mem).ListSequences()

	byKey := map[string]dto.SequenceSummary{}
	for _, s := range summaries {
		byKey[s.Key] = s
	}
	require.Contains(t, byKey, sequences.SaaSDemo)
	assert.Equal(t, 4, byKey[sequences.SaaSDemo].TotalEmails)
	assert.Equal(t, []int{0, 2, 4, 7}, byKey[sequences.SaaSDemo].DelayDays)
	assert.Equal(t, 1, byKey[sequences.Closing].TotalEmails)
}
