package dto

import "time"

// Platform identifies the public content source a candidate was found on
type Platform string

const (
	PlatformReddit       Platform = "reddit"
	PlatformHackerNews   Platform = "hackernews"
	PlatformIndieHackers Platform = "indiehackers"
	PlatformGoogle       Platform = "google"
)

// BudgetTier is the spending capacity inferred by the qualifier
type BudgetTier string

const (
	BudgetLow        BudgetTier = "low"
	BudgetMedium     BudgetTier = "medium"
	BudgetHigh       BudgetTier = "high"
	BudgetEnterprise BudgetTier = "enterprise"
)

// MarketSize is the market size inferred by the qualifier
type MarketSize string

const (
	MarketSmall  MarketSize = "small"
	MarketMedium MarketSize = "medium"
	MarketLarge  MarketSize = "large"
)

// RawCandidate is a post converted by a source adapter into the common shape.
// It is never persisted directly.
type RawCandidate struct {
	Platform     Platform   `json:"platform"`
	ExternalID   string     `json:"external_id,omitempty"`
	AuthorHandle string     `json:"author_handle"`
	Title        string     `json:"title"`
	BodyText     string     `json:"body_text"`
	CanonicalURL string     `json:"canonical_url"`
	ProfileURL   string     `json:"profile_url,omitempty"`
	SourceLabel  string     `json:"source_label"`
	Language     string     `json:"language"`
	CreatedAt    *time.Time `json:"created_at,omitempty"`
	// EngagementScore is upvotes plus comments or the platform equivalent
	EngagementScore int `json:"engagement_score"`
	CommentCount    int `json:"comment_count"`
	// HasEngagement is false when the platform exposes no engagement signal for this
	// entry; such candidates bypass the engagement filter.
	HasEngagement bool `json:"has_engagement"`
}

// QualifiedLead is a RawCandidate plus the scoring returned by the reasoning service
type QualifiedLead struct {
	RawCandidate
	Score               int        `json:"score"`
	Urgency             int        `json:"urgency"`
	BudgetTier          BudgetTier `json:"budget_tier"`
	MarketSize          MarketSize `json:"market_size"`
	WillingnessToPay    int        `json:"willingness_to_pay"`
	ProblemSummary      string     `json:"problem_summary"`
	PainPoints          []string   `json:"pain_points"`
	RecommendedApproach string     `json:"recommended_approach"`
}

// LeadStatus is the lifecycle state of a persisted lead
type LeadStatus string

const (
	LeadStatusNew       LeadStatus = "new"
	LeadStatusContacted LeadStatus = "contacted"
	LeadStatusReplied   LeadStatus = "replied"
	LeadStatusResponded LeadStatus = "responded"
	LeadStatusClosing   LeadStatus = "closing"
	LeadStatusConverted LeadStatus = "converted"
	LeadStatusArchived  LeadStatus = "archived"
	LeadStatusBadFit    LeadStatus = "bad_fit"
)

// IsTerminal reports whether no further transition is allowed
func (s LeadStatus) IsTerminal() bool {
	switch s {
	case LeadStatusConverted, LeadStatusArchived, LeadStatusBadFit:
		return true
	}
	return false
}

var leadTransitions = map[LeadStatus][]LeadStatus{
	LeadStatusNew:       {LeadStatusContacted},
	LeadStatusContacted: {LeadStatusReplied, LeadStatusResponded},
	LeadStatusReplied:   {LeadStatusClosing},
	LeadStatusResponded: {LeadStatusClosing},
	LeadStatusClosing:   {LeadStatusConverted},
}

// CanTransitionTo reports whether moving from s to next is a legal lifecycle step.
// Any non-terminal state may be archived or marked bad_fit.
func (s LeadStatus) CanTransitionTo(next LeadStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if next == LeadStatusArchived || next == LeadStatusBadFit {
		return true
	}
	for _, allowed := range leadTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Lead represents a persisted lead owned by one tenant
// @Description Lead found on a public platform and optionally qualified
type Lead struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	Name            string     `json:"name,omitempty"`
	Username        string     `json:"username"`
	Email           string     `json:"email,omitempty"`
	Platform        Platform   `json:"platform"`
	ProfileURL      string     `json:"profile_url,omitempty"`
	PostURL         string     `json:"post_url"`
	ExternalID      string     `json:"external_id"`
	Source          string     `json:"source"`
	Language        string     `json:"language"`
	Title           string     `json:"title"`
	Content         string     `json:"content"`
	Industry        string     `json:"industry,omitempty"`
	BusinessName    string     `json:"company_name,omitempty"`
	Location        string     `json:"location,omitempty"`
	SourceCreatedAt *time.Time `json:"source_created_at,omitempty"`

	// Scoring, nil Score means not yet qualified
	Score               *int       `json:"score,omitempty"`
	Urgency             *int       `json:"urgency,omitempty"`
	BudgetIndicator     BudgetTier `json:"budget_indicator,omitempty"`
	MarketSize          MarketSize `json:"market_size,omitempty"`
	WillingnessToPay    *int       `json:"willingness_to_pay,omitempty"`
	ProblemSummary      string     `json:"problem_summary,omitempty"`
	PainPoints          []string   `json:"pain_points,omitempty"`
	RecommendedApproach string     `json:"recommended_approach,omitempty"`

	// Failed qualification bookkeeping, leads at MaxQualificationAttempts are no longer retried
	QualificationAttempts int        `json:"qualification_attempts"`
	QualificationFailedAt *time.Time `json:"qualification_failed_at,omitempty"`

	Status LeadStatus `json:"status"`

	// Outreach bookkeeping, the open/click/reply flags are written by external collaborators
	EmailSubject    string     `json:"email_subject,omitempty"`
	EmailSent       bool       `json:"email_sent"`
	EmailSentAt     *time.Time `json:"email_sent_at,omitempty"`
	EmailOpened     bool       `json:"email_opened"`
	EmailOpenedAt   *time.Time `json:"email_opened_at,omitempty"`
	EmailClicked    bool       `json:"email_clicked"`
	EmailClickedAt  *time.Time `json:"email_clicked_at,omitempty"`
	EmailReplied    bool       `json:"email_replied"`
	EmailRepliedAt  *time.Time `json:"email_replied_at,omitempty"`
	LastReplyBody   string     `json:"last_reply_body,omitempty"`
	EmailTrackingID string     `json:"email_tracking_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsQualified reports whether the qualifier has scored this lead
func (l *Lead) IsQualified() bool {
	return l.Score != nil
}

// MaxQualificationAttempts bounds how often an unscored lead is sent to the reasoning service
const MaxQualificationAttempts = 3

// LeadScoreUpdate carries the qualifier output written back onto a lead
type LeadScoreUpdate struct {
	Score               int        `json:"score"`
	Urgency             int        `json:"urgency"`
	BudgetIndicator     BudgetTier `json:"budget_indicator"`
	MarketSize          MarketSize `json:"market_size"`
	WillingnessToPay    int        `json:"willingness_to_pay"`
	ProblemSummary      string     `json:"problem_summary"`
	PainPoints          []string   `json:"pain_points"`
	RecommendedApproach string     `json:"recommended_approach"`
}

// ScoreUpdateFrom extracts the scoring fields of a qualified lead
func ScoreUpdateFrom(q *QualifiedLead) LeadScoreUpdate {
	return LeadScoreUpdate{
		Score:               q.Score,
		Urgency:             q.Urgency,
		BudgetIndicator:     q.BudgetTier,
		MarketSize:          q.MarketSize,
		WillingnessToPay:    q.WillingnessToPay,
		ProblemSummary:      q.ProblemSummary,
		PainPoints:          q.PainPoints,
		RecommendedApproach: q.RecommendedApproach,
	}
}

// Candidate rebuilds the raw candidate view of a persisted lead, used to re-qualify
func (l *Lead) Candidate() RawCandidate {
	return RawCandidate{
		Platform:     l.Platform,
		ExternalID:   l.ExternalID,
		AuthorHandle: l.Username,
		Title:        l.Title,
		BodyText:     l.Content,
		CanonicalURL: l.PostURL,
		ProfileURL:   l.ProfileURL,
		SourceLabel:  l.Source,
		Language:     l.Language,
		CreatedAt:    l.SourceCreatedAt,
	}
}
