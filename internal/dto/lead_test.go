package dto

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLeadStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status   LeadStatus
		expected bool
	}{
		{LeadStatusNew, false},
		{LeadStatusContacted, false},
		{LeadStatusReplied, false},
		{LeadStatusResponded, false},
		{LeadStatusClosing, false},
		{LeadStatusConverted, true},
		{LeadStatusArchived, true},
		{LeadStatusBadFit, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.status.IsTerminal())
		})
	}
}

func TestLeadStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		name     string
		from     LeadStatus
		to       LeadStatus
		expected bool
	}{
		{"new to contacted", LeadStatusNew, LeadStatusContacted, true},
		{"new to closing is skipped step", LeadStatusNew, LeadStatusClosing, false},
		{"contacted to replied", LeadStatusContacted, LeadStatusReplied, true},
		{"contacted to responded", LeadStatusContacted, LeadStatusResponded, true},
		{"responded to closing", LeadStatusResponded, LeadStatusClosing, true},
		{"replied to closing", LeadStatusReplied, LeadStatusClosing, true},
		{"closing to converted", LeadStatusClosing, LeadStatusConverted, true},
		{"new to archived", LeadStatusNew, LeadStatusArchived, true},
		{"contacted to bad_fit", LeadStatusContacted, LeadStatusBadFit, true},
		{"converted to new", LeadStatusConverted, LeadStatusNew, false},
		{"archived to contacted", LeadStatusArchived, LeadStatusContacted, false},
		{"bad_fit to archived", LeadStatusBadFit, LeadStatusArchived, false},
		{"converted to archived", LeadStatusConverted, LeadStatusArchived, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestTenantConfig_CommunitiesFor(t *testing.T) {
	t.Run("explicit platform override", func(t *testing.T) {
		cfg := TenantConfig{Communities: map[string][]string{"reddit": {"SaaS"}}, Subreddits: []string{"startups"}}
		assert.Equal(t, []string{"SaaS"}, cfg.CommunitiesFor(PlatformReddit))
	})

	t.Run("legacy subreddits apply to reddit only", func(t *testing.T) {
		cfg := TenantConfig{Subreddits: []string{"startups"}}
		assert.Equal(t, []string{"startups"}, cfg.CommunitiesFor(PlatformReddit))
		assert.Nil(t, cfg.CommunitiesFor(PlatformHackerNews))
	})

	t.Run("no override", func(t *testing.T) {
		cfg := TenantConfig{}
		assert.Nil(t, cfg.CommunitiesFor(PlatformIndieHackers))
	})
}

func TestSMTPConfig_IsConfigured(t *testing.T) {
	var nilCfg *SMTPConfig
	assert.False(t, nilCfg.IsConfigured())
	assert.False(t, (&SMTPConfig{Server: "smtp.example.com"}).IsConfigured())
	assert.True(t, (&SMTPConfig{Server: "smtp.example.com", Username: "u", Password: "p"}).IsConfigured())
}
