package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"webstar/noturno-leadfinder-worker/internal/dto"
	"webstar/noturno-leadfinder-worker/internal/logging"
	"webstar/noturno-leadfinder-worker/internal/model/openrouter"

	"github.com/cenkalti/backoff/v4"
	"google.golang.org/genai"
)

const (
	DefaultQualifyBatchSize = 100
	DefaultQualifyAttempts  = 3
	DefaultRetryBaseDelay   = 2 * time.Second
	DefaultRetryMaxDelay    = 30 * time.Second
	DefaultAttemptTimeout   = 60 * time.Second

	promptContentLimit = 1500
	rawLogPrefix       = 200
)

// ErrParse marks a reasoning response that does not match the qualification schema
var ErrParse = errors.New("qualification response does not match schema")

// QualificationSystemPrompt carries the scoring rubric sent with every qualification
const QualificationSystemPrompt = `You are an expert B2B sales qualification AI. Your job is to analyze leads
found on social media and forums, and score them based on:

1. **Urgency (1-10)**: How urgently do they need a solution?
   - 9-10: Desperate, need solution NOW
   - 7-8: Active pain, searching for solutions
   - 5-6: Interested, exploring options
   - 3-4: Mild curiosity
   - 1-2: Just browsing

2. **Score (1-10)**: Overall qualification as a potential customer
   - Consider: pain level, specificity, engagement, decision-maker signals

3. **Budget Indicator**: Estimate their likely budget
   - low: <$50/month
   - medium: $50-200/month
   - high: $200-500/month
   - enterprise: $500+/month

4. **Market Size**:
   - small: Individual/freelancer
   - medium: Small team/startup
   - large: Established company

5. **Willingness to Pay (1-10)**: How likely are they to pay for a solution?

6. **Problem Summary**: One sentence describing their core problem.

7. **Pain Points**: 2-4 specific pain points mentioned or implied.

8. **Recommended Approach**: How should a salesperson approach this lead?

Be realistic and conservative with scoring. Most leads are NOT high quality.
Look for buying signals: urgency language, specific problems, budget mentions,
frustration with current solutions, requests for recommendations.

Respond ONLY with valid JSON, no markdown formatting.`

const responseFormat = `Respond with JSON in this exact format:
{
    "score": <1-10>,
    "urgency": <1-10>,
    "budget_indicator": "<low|medium|high|enterprise>",
    "market_size": "<small|medium|large>",
    "willingness_to_pay": <1-10>,
    "problem_summary": "<one sentence summary>",
    "pain_points": ["<point 1>", "<point 2>"],
    "recommended_approach": "<how to approach this lead>"
}`

var qualifierLog = logging.New("Qualifier")

// Reasoner is the external reasoning service used to score candidates
type Reasoner interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// UsageTracker records the cost of reasoning calls
type UsageTracker interface {
	TrackQualification(ctx context.Context, usage dto.QualificationUsage)
}

// QualifierOptions tunes batching and retry behavior. Zero values use the defaults.
type QualifierOptions struct {
	MaxBatch       int
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	AttemptTimeout time.Duration
	Usage          UsageTracker
}

// Qualifier scores candidates through a Reasoner. It never returns an error:
// every failure is logged and reported as a nil lead.
type Qualifier struct {
	reasoner Reasoner
	opts     QualifierOptions
}

// NewQualifier creates a qualifier. A nil reasoner disables qualification.
func NewQualifier(reasoner Reasoner, opts QualifierOptions) *Qualifier {
	if opts.MaxBatch <= 0 {
		opts.MaxBatch = DefaultQualifyBatchSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultQualifyAttempts
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultRetryBaseDelay
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = DefaultRetryMaxDelay
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = DefaultAttemptTimeout
	}
	return &Qualifier{reasoner: reasoner, opts: opts}
}

// Enabled reports whether a reasoning service is configured
func (q *Qualifier) Enabled() bool {
	return q != nil && q.reasoner != nil
}

// Qualify scores one candidate, returning nil on any failure
func (q *Qualifier) Qualify(ctx context.Context, c dto.RawCandidate) *dto.QualifiedLead {
	return q.qualify(ctx, c, dto.QualificationUsage{})
}

// QualifyLead scores a persisted lead, attributing usage to its tenant
func (q *Qualifier) QualifyLead(ctx context.Context, lead *dto.Lead) *dto.QualifiedLead {
	return q.qualify(ctx, lead.Candidate(), dto.QualificationUsage{UserID: lead.UserID, LeadID: lead.ID})
}

func (q *Qualifier) qualify(ctx context.Context, c dto.RawCandidate, usage dto.QualificationUsage) *dto.QualifiedLead {
	if !q.Enabled() {
		return nil
	}

	prompt := BuildQualificationPrompt(c)
	usage.InputText = QualificationSystemPrompt + prompt
	usage.StartTime = time.Now()

	raw, err := q.complete(ctx, prompt)
	usage.OutputText = raw
	usage.Err = err
	if q.opts.Usage != nil {
		q.opts.Usage.TrackQualification(ctx, usage)
	}
	if err != nil {
		qualifierLog.Error("Reasoning call failed", map[string]interface{}{
			"platform":    c.Platform,
			"external_id": c.ExternalID,
			"error":       err.Error(),
		})
		return nil
	}

	lead, err := ParseQualification(raw)
	if err != nil {
		qualifierLog.Error("Failed to parse reasoning response", map[string]interface{}{
			"platform":    c.Platform,
			"external_id": c.ExternalID,
			"error":       err.Error(),
			"raw_prefix":  prefix(raw, rawLogPrefix),
		})
		return nil
	}
	lead.RawCandidate = c
	return lead
}

// complete calls the reasoner with bounded exponential backoff on transient failures
func (q *Qualifier) complete(ctx context.Context, prompt string) (string, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = q.opts.BaseDelay
	b.Multiplier = 2
	b.MaxInterval = q.opts.MaxDelay
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(q.opts.MaxAttempts-1)), ctx)

	var out string
	attempt := 0
	op := func() error {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, q.opts.AttemptTimeout)
		defer cancel()

		resp, err := q.reasoner.Complete(attemptCtx, QualificationSystemPrompt, prompt)
		if err == nil {
			out = resp
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		qualifierLog.Warn("Transient reasoning failure, retrying", map[string]interface{}{
			"attempt": attempt,
			"wait":    wait.String(),
			"error":   err.Error(),
		})
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return "", fmt.Errorf("after %d attempt(s): %w", attempt, err)
	}
	return out, nil
}

// IsTransient reports whether a reasoning error is worth retrying:
// rate limits, 5xx responses, connection failures and per-attempt timeouts.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var orErr *openrouter.APIError
	if errors.As(err, &orErr) {
		return orErr.Transient()
	}
	var gErr genai.APIError
	if errors.As(err, &gErr) {
		return gErr.Code == 429 || gErr.Code >= 500
	}
	var gErrPtr *genai.APIError
	if errors.As(err, &gErrPtr) && gErrPtr != nil {
		return gErrPtr.Code == 429 || gErrPtr.Code >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, context.DeadlineExceeded)
}

// BuildQualificationPrompt renders the user prompt for one candidate
func BuildQualificationPrompt(c dto.RawCandidate) string {
	var sb strings.Builder
	sb.WriteString("Analyze this lead and provide qualification scores:\n\n")
	fmt.Fprintf(&sb, "Platform: %s\n", c.Platform)
	fmt.Fprintf(&sb, "Username: %s\n", c.AuthorHandle)
	fmt.Fprintf(&sb, "Title: %s\n", c.Title)
	fmt.Fprintf(&sb, "Content: %s\n", truncateRunes(c.BodyText, promptContentLimit))
	fmt.Fprintf(&sb, "Post URL: %s\n\n", c.CanonicalURL)
	sb.WriteString(responseFormat)
	return sb.String()
}

type qualificationResponse struct {
	Score               *float64 `json:"score"`
	Urgency             *float64 `json:"urgency"`
	BudgetIndicator     string   `json:"budget_indicator"`
	MarketSize          string   `json:"market_size"`
	WillingnessToPay    *float64 `json:"willingness_to_pay"`
	ProblemSummary      string   `json:"problem_summary"`
	PainPoints          []string `json:"pain_points"`
	RecommendedApproach string   `json:"recommended_approach"`
}

// ParseQualification decodes a reasoning response into scoring fields.
// The result has no candidate attached; errors wrap ErrParse.
func ParseQualification(raw string) (*dto.QualifiedLead, error) {
	payload, err := extractJSONObject(raw)
	if err != nil {
		return nil, err
	}

	// Extra keys such as "reasoning" are ignored; types and the required numerics are not
	var resp qualificationResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	switch {
	case resp.Score == nil:
		return nil, fmt.Errorf("%w: missing score", ErrParse)
	case resp.Urgency == nil:
		return nil, fmt.Errorf("%w: missing urgency", ErrParse)
	case resp.WillingnessToPay == nil:
		return nil, fmt.Errorf("%w: missing willingness_to_pay", ErrParse)
	}

	painPoints := make([]string, 0, len(resp.PainPoints))
	for _, p := range resp.PainPoints {
		if p = strings.TrimSpace(p); p != "" {
			painPoints = append(painPoints, p)
		}
	}

	return &dto.QualifiedLead{
		Score:               clampScore(*resp.Score),
		Urgency:             clampScore(*resp.Urgency),
		BudgetTier:          normalizeBudget(resp.BudgetIndicator),
		MarketSize:          normalizeMarket(resp.MarketSize),
		WillingnessToPay:    clampScore(*resp.WillingnessToPay),
		ProblemSummary:      strings.TrimSpace(resp.ProblemSummary),
		PainPoints:          painPoints,
		RecommendedApproach: strings.TrimSpace(resp.RecommendedApproach),
	}, nil
}

// extractJSONObject strips markdown fences and returns the outermost {...} span
func extractJSONObject(raw string) ([]byte, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimPrefix(s, "json")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object found", ErrParse)
	}
	return []byte(s[start : end+1]), nil
}

// clampScore bounds v to [1,10] before converting, so huge values cannot overflow int
func clampScore(v float64) int {
	switch {
	case math.IsNaN(v), v <= 1:
		return 1
	case v >= 10:
		return 10
	}
	return int(math.Round(v))
}

func normalizeBudget(v string) dto.BudgetTier {
	switch b := dto.BudgetTier(strings.ToLower(strings.TrimSpace(v))); b {
	case dto.BudgetLow, dto.BudgetMedium, dto.BudgetHigh, dto.BudgetEnterprise:
		return b
	}
	return dto.BudgetMedium
}

func normalizeMarket(v string) dto.MarketSize {
	switch m := dto.MarketSize(strings.ToLower(strings.TrimSpace(v))); m {
	case dto.MarketSmall, dto.MarketMedium, dto.MarketLarge:
		return m
	}
	return dto.MarketSmall
}

// QualifyBatch scores candidates sequentially, keeps those at or above minScore
// and returns them sorted by (score, urgency) descending.
func (q *Qualifier) QualifyBatch(ctx context.Context, candidates []dto.RawCandidate, minScore int) []dto.QualifiedLead {
	if len(candidates) > q.opts.MaxBatch {
		candidates = candidates[:q.opts.MaxBatch]
	}

	qualified := make([]dto.QualifiedLead, 0, len(candidates))
	for i, c := range candidates {
		if ctx.Err() != nil {
			break
		}
		lead := q.Qualify(ctx, c)
		switch {
		case lead == nil:
			qualifierLog.Info("Failed to qualify", map[string]interface{}{"index": i + 1, "total": len(candidates)})
		case lead.Score >= minScore:
			qualified = append(qualified, *lead)
		default:
			qualifierLog.Debug("Below threshold", map[string]interface{}{"index": i + 1, "score": lead.Score, "min_score": minScore})
		}
	}

	SortQualified(qualified)

	qualifierLog.Info("Batch qualified", map[string]interface{}{
		"qualified": len(qualified),
		"processed": len(candidates),
		"min_score": minScore,
	})
	return qualified
}

// SortQualified orders leads by score then urgency, both descending, stable on ties
func SortQualified(leads []dto.QualifiedLead) {
	sort.SliceStable(leads, func(i, j int) bool {
		if leads[i].Score != leads[j].Score {
			return leads[i].Score > leads[j].Score
		}
		return leads[i].Urgency > leads[j].Urgency
	})
}

// GenerateLeadReport summarises the scored leads among the given ones
func GenerateLeadReport(leads []dto.Lead) dto.LeadReport {
	report := dto.LeadReport{
		TotalLeads:   len(leads),
		ByBudget:     map[string]int{},
		ByMarketSize: map[string]int{},
		ByPlatform:   map[string]int{},
	}

	scored := make([]dto.Lead, 0, len(leads))
	sum := 0
	for _, l := range leads {
		if !l.IsQualified() {
			continue
		}
		scored = append(scored, l)
		sum += *l.Score
		report.ByBudget[string(l.BudgetIndicator)]++
		report.ByMarketSize[string(l.MarketSize)]++
		report.ByPlatform[string(l.Platform)]++
	}
	report.QualifiedLeads = len(scored)
	if len(scored) > 0 {
		report.AverageScore = math.Round(float64(sum)/float64(len(scored))*10) / 10
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if *scored[i].Score != *scored[j].Score {
			return *scored[i].Score > *scored[j].Score
		}
		return intValue(scored[i].Urgency) > intValue(scored[j].Urgency)
	})
	if len(scored) > 10 {
		report.TopLeads = scored[:10]
	} else {
		report.TopLeads = scored
	}

	report.Markdown = renderLeadReport(report, scored)
	return report
}

func renderLeadReport(report dto.LeadReport, scored []dto.Lead) string {
	if len(scored) == 0 {
		return "No qualified leads found."
	}

	high, medium, low := 0, 0, 0
	for _, l := range scored {
		switch s := *l.Score; {
		case s >= 8:
			high++
		case s >= 5:
			medium++
		default:
			low++
		}
	}

	var sb strings.Builder
	sb.WriteString("# Lead Qualification Report\n")
	fmt.Fprintf(&sb, "Total Qualified Leads: %d\n", len(scored))
	fmt.Fprintf(&sb, "Average Score: %.1f\n\n", report.AverageScore)

	sb.WriteString("## Score Distribution\n")
	fmt.Fprintf(&sb, "- High (8-10): %d\n", high)
	fmt.Fprintf(&sb, "- Medium (5-7): %d\n", medium)
	fmt.Fprintf(&sb, "- Low (1-4): %d\n\n", low)

	writeCounts(&sb, "By Platform", report.ByPlatform)
	writeCounts(&sb, "By Budget", report.ByBudget)

	fmt.Fprintf(&sb, "## Top %d Leads\n", len(report.TopLeads))
	for i, l := range report.TopLeads {
		fmt.Fprintf(&sb, "\n### %d. @%s (%s)\n", i+1, l.Username, l.Platform)
		fmt.Fprintf(&sb, "**Score:** %d/10 | **Urgency:** %d/10\n", *l.Score, intValue(l.Urgency))
		fmt.Fprintf(&sb, "**Budget:** %s | **Market:** %s\n", l.BudgetIndicator, l.MarketSize)
		fmt.Fprintf(&sb, "**Problem:** %s\n", l.ProblemSummary)
		fmt.Fprintf(&sb, "**URL:** %s\n", l.PostURL)
	}
	return sb.String()
}

func writeCounts(sb *strings.Builder, title string, counts map[string]int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintf(sb, "## %s\n", title)
	for _, k := range keys {
		fmt.Fprintf(sb, "- %s: %d\n", k, counts[k])
	}
	sb.WriteString("\n")
}

func intValue(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}

// prefix returns at most n runes of s
func prefix(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
