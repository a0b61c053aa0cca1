package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"webstar/noturno-leadfinder-worker/internal/dto"
	"webstar/noturno-leadfinder-worker/internal/model/openrouter"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type reasonerReply struct {
	text string
	err  error
}

// fakeReasoner replays scripted replies in order, repeating the last one
type fakeReasoner struct {
	mu      sync.Mutex
	replies []reasonerReply
	byTitle map[string]string
	prompts []string
}

func (r *fakeReasoner) Complete(_ context.Context, system, prompt string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prompts = append(r.prompts, prompt)

	for title, text := range r.byTitle {
		if strings.Contains(prompt, "Title: "+title+"\n") {
			return text, nil
		}
	}
	if len(r.replies) == 0 {
		return "", errors.New("no reply scripted")
	}
	reply := r.replies[0]
	if len(r.replies) > 1 {
		r.replies = r.replies[1:]
	}
	return reply.text, reply.err
}

func (r *fakeReasoner) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.prompts)
}

type recordingUsage struct {
	records []dto.QualificationUsage
}

func (u *recordingUsage) TrackQualification(_ context.Context, usage dto.QualificationUsage) {
	u.records = append(u.records, usage)
}

func fastQualifier(r Reasoner) *Qualifier {
	return NewQualifier(r, QualifierOptions{BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond})
}

const validReply = `{"score": 8, "urgency": 6, "budget_indicator": "high", "market_size": "medium",
"willingness_to_pay": 7, "problem_summary": "Needs lead automation", "pain_points": ["manual work", " "], "recommended_approach": "Offer a demo"}`

func TestParseQualification(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
		check   func(t *testing.T, q *dto.QualifiedLead)
	}{
		{
			name: "plain json",
			raw:  validReply,
			check: func(t *testing.T, q *dto.QualifiedLead) {
				assert.Equal(t, 8, q.Score)
				assert.Equal(t, 6, q.Urgency)
				assert.Equal(t, dto.BudgetHigh, q.BudgetTier)
				assert.Equal(t, dto.MarketMedium, q.MarketSize)
				assert.Equal(t, []string{"manual work"}, q.PainPoints)
			},
		},
		{
			name: "fenced",
			raw:  "```json\n" + validReply + "\n```",
			check: func(t *testing.T, q *dto.QualifiedLead) {
				assert.Equal(t, 8, q.Score)
			},
		},
		{
			name: "clamped and normalized",
			raw:  `{"score": 15, "urgency": -3, "willingness_to_pay": 0.4, "budget_indicator": "HUGE", "market_size": ""}`,
			check: func(t *testing.T, q *dto.QualifiedLead) {
				assert.Equal(t, 10, q.Score)
				assert.Equal(t, 1, q.Urgency)
				assert.Equal(t, 1, q.WillingnessToPay)
				assert.Equal(t, dto.BudgetMedium, q.BudgetTier)
				assert.Equal(t, dto.MarketSmall, q.MarketSize)
			},
		},
		{
			name: "surrounding prose",
			raw:  "Here you go: " + validReply + " Hope this helps",
			check: func(t *testing.T, q *dto.QualifiedLead) {
				assert.Equal(t, "Offer a demo", q.RecommendedApproach)
			},
		},
		{name: "missing score", raw: `{"urgency": 5, "willingness_to_pay": 5}`, wantErr: true},
		{name: "missing willingness", raw: `{"score": 5, "urgency": 5}`, wantErr: true},
		{
			name: "huge magnitudes",
			raw:  `{"score": 1e300, "urgency": 9.2e18, "willingness_to_pay": -1e300}`,
			check: func(t *testing.T, q *dto.QualifiedLead) {
				assert.Equal(t, 10, q.Score)
				assert.Equal(t, 10, q.Urgency)
				assert.Equal(t, 1, q.WillingnessToPay)
			},
		},
		{
			name: "extra keys ignored",
			raw:  `{"score": 5, "urgency": 5, "willingness_to_pay": 5, "reasoning": "long thread", "confidence": 0.7}`,
			check: func(t *testing.T, q *dto.QualifiedLead) {
				assert.Equal(t, 5, q.Score)
				assert.Equal(t, 5, q.WillingnessToPay)
			},
		},
		{name: "wrong type", raw: `{"score": "high", "urgency": 5, "willingness_to_pay": 5}`, wantErr: true},
		{name: "not json", raw: "I cannot help with that", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := ParseQualification(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrParse)
				return
			}
			require.NoError(t, err)
			tt.check(t, q)
		})
	}
}

func TestPrefix(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{name: "short", in: "abc", n: 5, want: "abc"},
		{name: "ascii cut", in: "abcdef", n: 3, want: "abc"},
		{name: "multibyte cut", in: "ação rápida", n: 3, want: "açã"},
		{name: "emoji", in: "🚀🚀🚀", n: 2, want: "🚀🚀"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := prefix(tt.in, tt.n)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}

func TestBuildQualificationPrompt(t *testing.T) {
	c := dto.RawCandidate{
		Platform:     dto.PlatformReddit,
		AuthorHandle: "founder_jane",
		Title:        "Need help",
		BodyText:     strings.Repeat("á", 1600),
		CanonicalURL: "https://reddit.com/r/SaaS/x",
	}

	prompt := BuildQualificationPrompt(c)
	assert.Contains(t, prompt, "Platform: reddit\n")
	assert.Contains(t, prompt, "Username: founder_jane\n")
	assert.Contains(t, prompt, "Post URL: https://reddit.com/r/SaaS/x")
	assert.Contains(t, prompt, "Content: "+strings.Repeat("á", 1500)+"...\n")
	assert.Contains(t, prompt, `"willingness_to_pay": <1-10>`)
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "openrouter 429", err: &openrouter.APIError{StatusCode: 429}, want: true},
		{name: "openrouter 503 wrapped", err: fmt.Errorf("call: %w", &openrouter.APIError{StatusCode: 503}), want: true},
		{name: "openrouter 401", err: &openrouter.APIError{StatusCode: 401}, want: false},
		{name: "genai 500", err: genai.APIError{Code: 500}, want: true},
		{name: "genai 400", err: genai.APIError{Code: 400}, want: false},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "plain", err: errors.New("boom"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestQualify_RetriesTransientThenSucceeds(t *testing.T) {
	r := &fakeReasoner{replies: []reasonerReply{
		{err: &openrouter.APIError{StatusCode: 429}},
		{err: &openrouter.APIError{StatusCode: 502}},
		{text: validReply},
	}}
	usage := &recordingUsage{}
	q := NewQualifier(r, QualifierOptions{BaseDelay: time.Millisecond, Usage: usage})

	lead := q.Qualify(context.Background(), dto.RawCandidate{Platform: dto.PlatformReddit, ExternalID: "abc", Title: "t"})
	require.NotNil(t, lead)
	assert.Equal(t, "abc", lead.ExternalID)
	assert.Equal(t, 8, lead.Score)
	assert.Equal(t, 3, r.calls())

	require.Len(t, usage.records, 1)
	assert.NoError(t, usage.records[0].Err)
	assert.Equal(t, validReply, usage.records[0].OutputText)
}

func TestQualify_GivesUpAfterMaxAttempts(t *testing.T) {
	r := &fakeReasoner{replies: []reasonerReply{{err: &openrouter.APIError{StatusCode: 500}}}}
	q := fastQualifier(r)

	assert.Nil(t, q.Qualify(context.Background(), dto.RawCandidate{Title: "t"}))
	assert.Equal(t, DefaultQualifyAttempts, r.calls())
}

func TestQualify_PermanentErrorNotRetried(t *testing.T) {
	r := &fakeReasoner{replies: []reasonerReply{{err: &openrouter.APIError{StatusCode: 401}}}}
	q := fastQualifier(r)

	assert.Nil(t, q.Qualify(context.Background(), dto.RawCandidate{Title: "t"}))
	assert.Equal(t, 1, r.calls())
}

func TestQualify_ParseFailureReturnsNil(t *testing.T) {
	r := &fakeReasoner{replies: []reasonerReply{{text: "not json at all"}}}
	q := fastQualifier(r)

	assert.Nil(t, q.Qualify(context.Background(), dto.RawCandidate{Title: "t"}))
	assert.Equal(t, 1, r.calls(), "parse failures are not retried")
}

func TestQualify_Disabled(t *testing.T) {
	q := NewQualifier(nil, QualifierOptions{})
	assert.False(t, q.Enabled())
	assert.Nil(t, q.Qualify(context.Background(), dto.RawCandidate{Title: "t"}))
}

func TestQualifyLead_AttributesUsage(t *testing.T) {
	usage := &recordingUsage{}
	q := NewQualifier(&fakeReasoner{replies: []reasonerReply{{text: validReply}}}, QualifierOptions{Usage: usage})

	lead := &dto.Lead{ID: "lead-1", UserID: "user-1", Platform: dto.PlatformHackerNews, ExternalID: "h1", Title: "t"}
	got := q.QualifyLead(context.Background(), lead)
	require.NotNil(t, got)
	assert.Equal(t, dto.PlatformHackerNews, got.Platform)

	require.Len(t, usage.records, 1)
	assert.Equal(t, "user-1", usage.records[0].UserID)
	assert.Equal(t, "lead-1", usage.records[0].LeadID)
}

func TestQualifyBatch(t *testing.T) {
	reply := func(score, urgency int) string {
		return fmt.Sprintf(`{"score": %d, "urgency": %d, "willingness_to_pay": 5}`, score, urgency)
	}
	r := &fakeReasoner{byTitle: map[string]string{
		"a": reply(7, 3),
		"b": reply(9, 1),
		"c": reply(4, 9),
		"d": reply(7, 8),
		"e": "garbage",
		"f": reply(7, 3),
	}}
	q := NewQualifier(r, QualifierOptions{BaseDelay: time.Millisecond})

	var in []dto.RawCandidate
	for _, title := range []string{"a", "b", "c", "d", "e", "f"} {
		in = append(in, dto.RawCandidate{ExternalID: title, Title: title})
	}

	got := q.QualifyBatch(context.Background(), in, 5)
	ids := make([]string, 0, len(got))
	for _, l := range got {
		ids = append(ids, l.ExternalID)
	}
	assert.Equal(t, []string{"b", "d", "a", "f"}, ids)

	t.Run("batch cap", func(t *testing.T) {
		capped := NewQualifier(r, QualifierOptions{MaxBatch: 2})
		got := capped.QualifyBatch(context.Background(), in, 1)
		assert.Len(t, got, 2)
	})
}

func TestGenerateLeadReport(t *testing.T) {
	score := func(n int) *int { return &n }
	leads := []dto.Lead{
		{Username: "ana", Platform: dto.PlatformReddit, Score: score(9), Urgency: score(5), BudgetIndicator: dto.BudgetHigh, MarketSize: dto.MarketMedium, ProblemSummary: "churn", PostURL: "https://x/1"},
		{Username: "bo", Platform: dto.PlatformHackerNews, Score: score(6), Urgency: score(2), BudgetIndicator: dto.BudgetLow, MarketSize: dto.MarketSmall},
		{Username: "cy", Platform: dto.PlatformReddit, Score: score(3), Urgency: score(9), BudgetIndicator: dto.BudgetLow, MarketSize: dto.MarketSmall},
		{Username: "unscored", Platform: dto.PlatformReddit},
	}

	report := GenerateLeadReport(leads)
	assert.Equal(t, 4, report.TotalLeads)
	assert.Equal(t, 3, report.QualifiedLeads)
	assert.InDelta(t, 6.0, report.AverageScore, 0.001)
	assert.Equal(t, map[string]int{"high": 1, "low": 2}, report.ByBudget)
	assert.Equal(t, map[string]int{"reddit": 2, "hackernews": 1}, report.ByPlatform)
	require.Len(t, report.TopLeads, 3)
	assert.Equal(t, "ana", report.TopLeads[0].Username)

	assert.Contains(t, report.Markdown, "# Lead Qualification Report")
	assert.Contains(t, report.Markdown, "- High (8-10): 1")
	assert.Contains(t, report.Markdown, "- Medium (5-7): 1")
	assert.Contains(t, report.Markdown, "- Low (1-4): 1")
	assert.Contains(t, report.Markdown, "### 1. @ana (reddit)")
	assert.Contains(t, report.Markdown, "**Score:** 9/10 | **Urgency:** 5/10")

	assert.Equal(t, "No qualified leads found.", GenerateLeadReport(nil).Markdown)
}
