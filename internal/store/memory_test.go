package store

import (
	"context"
	"testing"
	"time"

	"webstar/noturno-leadfinder-worker/internal/dto"
	"webstar/noturno-leadfinder-worker/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ services.Store = (*Memory)(nil)

func TestMemory_LeadUniqueness(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	id, err := m.InsertLead(ctx, &dto.Lead{UserID: "u1", Platform: dto.PlatformReddit, ExternalID: "abc"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	_, err = m.InsertLead(ctx, &dto.Lead{UserID: "u1", Platform: dto.PlatformReddit, ExternalID: "abc"})
	assert.ErrorIs(t, err, dto.ErrDuplicate)

	_, err = m.InsertLead(ctx, &dto.Lead{UserID: "u2", Platform: dto.PlatformReddit, ExternalID: "abc"})
	assert.NoError(t, err, "uniqueness is per tenant")

	exists, err := m.LeadExists(ctx, "u1", dto.PlatformReddit, "abc")
	require.NoError(t, err)
	assert.True(t, exists)

	lead, err := m.GetLead(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, dto.LeadStatusNew, lead.Status)

	_, err = m.GetLead(ctx, "missing")
	assert.ErrorIs(t, err, dto.ErrNotFound)
}

func TestMemory_ScoreAndStatus(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	a, _ := m.InsertLead(ctx, &dto.Lead{UserID: "u1", Platform: dto.PlatformReddit, ExternalID: "a"})
	b, _ := m.InsertLead(ctx, &dto.Lead{UserID: "u1", Platform: dto.PlatformReddit, ExternalID: "b"})

	unscored, err := m.ListUnscoredLeads(ctx, "u1", 10)
	require.NoError(t, err)
	assert.Len(t, unscored, 2)

	require.NoError(t, m.UpdateLeadScore(ctx, b, dto.LeadScoreUpdate{Score: 9, Urgency: 4, WillingnessToPay: 3}))
	require.NoError(t, m.UpdateLeadScore(ctx, a, dto.LeadScoreUpdate{Score: 5, Urgency: 4, WillingnessToPay: 3}))

	scored, err := m.ListScoredLeads(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, scored, 2)
	assert.Equal(t, b, scored[0].ID)

	t.Run("legal transitions", func(t *testing.T) {
		require.NoError(t, m.UpdateLeadStatus(ctx, a, dto.LeadStatusContacted))
		require.NoError(t, m.UpdateLeadStatus(ctx, a, dto.LeadStatusResponded))
		require.NoError(t, m.UpdateLeadStatus(ctx, a, dto.LeadStatusClosing))
	})

	t.Run("illegal transitions", func(t *testing.T) {
		assert.ErrorIs(t, m.UpdateLeadStatus(ctx, b, dto.LeadStatusConverted), dto.ErrIllegalTransition)
		require.NoError(t, m.UpdateLeadStatus(ctx, b, dto.LeadStatusArchived))
		assert.ErrorIs(t, m.UpdateLeadStatus(ctx, b, dto.LeadStatusContacted), dto.ErrIllegalTransition)
	})

	closing, err := m.ListLeadsByStatus(ctx, "u1", dto.LeadStatusClosing, 0)
	require.NoError(t, err)
	require.Len(t, closing, 1)
	assert.Equal(t, a, closing[0].ID)
}

func TestMemory_QualificationFailures(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	a, _ := m.InsertLead(ctx, &dto.Lead{UserID: "u1", Platform: dto.PlatformReddit, ExternalID: "a"})
	b, _ := m.InsertLead(ctx, &dto.Lead{UserID: "u1", Platform: dto.PlatformReddit, ExternalID: "b"})

	require.NoError(t, m.RecordQualificationFailure(ctx, a))

	unscored, err := m.ListUnscoredLeads(ctx, "u1", 1)
	require.NoError(t, err)
	require.Len(t, unscored, 1)
	assert.Equal(t, b, unscored[0].ID, "least attempted first")

	lead, err := m.GetLead(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, 1, lead.QualificationAttempts)
	assert.NotNil(t, lead.QualificationFailedAt)

	for i := 1; i < dto.MaxQualificationAttempts; i++ {
		require.NoError(t, m.RecordQualificationFailure(ctx, a))
	}
	unscored, err = m.ListUnscoredLeads(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, unscored, 1)
	assert.Equal(t, b, unscored[0].ID, "leads at the attempt limit are skipped")

	assert.ErrorIs(t, m.RecordQualificationFailure(ctx, "missing"), dto.ErrNotFound)
}

func TestMemory_FollowUps(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	entries := []dto.FollowUpScheduleEntry{
		{LeadID: "l1", UserID: "u1", SequenceName: "saas_demo", Position: 1, ScheduledFor: base},
		{LeadID: "l1", UserID: "u1", SequenceName: "saas_demo", Position: 2, ScheduledFor: base.AddDate(0, 0, 2)},
		{LeadID: "l2", UserID: "u2", SequenceName: "saas_demo", Position: 1, ScheduledFor: base.Add(-time.Hour)},
	}
	n, err := m.CreateFollowUps(ctx, entries)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = m.CreateFollowUps(ctx, entries)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "re-inserting existing keys is a no-op")

	due, err := m.ListDueFollowUps(ctx, "", base, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "l2", due[0].LeadID, "earliest first")

	due, err = m.ListDueFollowUps(ctx, "u1", base, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)

	sentAt := base
	require.NoError(t, m.UpdateFollowUpStatus(ctx, due[0].ID, dto.FollowUpSent, "", &sentAt))

	cancelled, err := m.CancelPendingFollowUps(ctx, "l1", "Lead replied")
	require.NoError(t, err)
	assert.Equal(t, 1, cancelled)

	list, err := m.ListFollowUps(ctx, "l1", "saas_demo")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, dto.FollowUpSent, list[0].Status)
	assert.Equal(t, dto.FollowUpCancelled, list[1].Status)
	assert.Equal(t, "Lead replied", list[1].StatusReason)

	has, err := m.HasFollowUps(ctx, "l3")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestMemory_Tenants(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.AddTenant(dto.Tenant{ID: "u1", Active: true}, &dto.TenantConfig{Keywords: []string{"crm"}})
	m.AddTenant(dto.Tenant{ID: "u2", Active: false}, nil)
	m.AddTenant(dto.Tenant{ID: "u3", Active: true}, nil)

	tenants, err := m.ListActiveTenants(ctx)
	require.NoError(t, err)
	assert.Len(t, tenants, 2)

	cfg, err := m.GetTenantConfig(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "u1", cfg.UserID)

	cfg, err = m.GetTenantConfig(ctx, "u3")
	require.NoError(t, err)
	assert.Nil(t, cfg)

	smtp, err := m.GetSMTPConfig(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, smtp)
}
