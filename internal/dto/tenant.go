package dto

// Tenant is an operator account with its own configuration and lead set
type Tenant struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
	Active bool   `json:"is_active"`
}

// TenantConfig holds the per-tenant scraping and outreach settings.
// Empty fields mean "use the built-in default".
type TenantConfig struct {
	UserID    string   `json:"user_id"`
	Keywords  []string `json:"keywords"`
	Languages []string `json:"languages"`
	Platforms []string `json:"active_platforms"`
	// Communities overrides the catalog per platform, e.g. {"reddit": ["SaaS"]}
	Communities map[string][]string `json:"communities,omitempty"`
	// Subreddits is the legacy reddit-only override, merged into Communities
	Subreddits      []string `json:"subreddits,omitempty"`
	MinScore        int      `json:"min_score"`
	SequenceName    string   `json:"sequence_name,omitempty"`
	OutreachEnabled *bool    `json:"outreach_enabled,omitempty"`
	// Sender data used when personalizing follow-ups
	SenderName       string `json:"sender_name,omitempty"`
	SenderProfession string `json:"sender_profession,omitempty"`
}

// CommunitiesFor returns the tenant override for a platform, nil when none is set
func (c *TenantConfig) CommunitiesFor(platform Platform) []string {
	if list, ok := c.Communities[string(platform)]; ok && len(list) > 0 {
		return list
	}
	if platform == PlatformReddit && len(c.Subreddits) > 0 {
		return c.Subreddits
	}
	return nil
}

// SMTPConfig holds per-tenant delivery credentials
type SMTPConfig struct {
	UserID     string `json:"user_id"`
	Server     string `json:"smtp_server"`
	Port       int    `json:"smtp_port"`
	Username   string `json:"smtp_username"`
	Password   string `json:"smtp_password"`
	SenderName string `json:"sender_name"`
}

// IsConfigured reports whether the credentials are complete enough to send
func (c *SMTPConfig) IsConfigured() bool {
	return c != nil && c.Server != "" && c.Username != "" && c.Password != ""
}
