package services

import (
	"context"
	"sort"
	"strings"
	"sync/atomic"

	"webstar/noturno-leadfinder-worker/internal/dto"
	"webstar/noturno-leadfinder-worker/internal/logging"
	"webstar/noturno-leadfinder-worker/internal/sources"
)

const (
	DefaultMaxRequestsPerCycle  = 20
	DefaultKeywordsPerCommunity = 3
	DefaultLimitPerCall         = 10
	DefaultMinEngagement        = 2
)

// DefaultPlatforms are scraped when a tenant does not choose any
var DefaultPlatforms = []dto.Platform{dto.PlatformReddit, dto.PlatformHackerNews, dto.PlatformIndieHackers}

var scrapeLog = logging.New("ScrapeOrchestrator")

// RequestBudget is the shared cap on outbound adapter calls for one scrape
type RequestBudget struct {
	remaining atomic.Int64
}

// NewRequestBudget creates a budget of n calls
func NewRequestBudget(n int) *RequestBudget {
	b := &RequestBudget{}
	b.remaining.Store(int64(n))
	return b
}

// Take consumes one call, returning false once the budget is exhausted
func (b *RequestBudget) Take() bool {
	for {
		cur := b.remaining.Load()
		if cur <= 0 {
			return false
		}
		if b.remaining.CompareAndSwap(cur, cur-1) {
			return true
		}
	}
}

// Remaining returns the calls left
func (b *RequestBudget) Remaining() int {
	return int(b.remaining.Load())
}

// ScrapeSettings tunes the orchestrator
type ScrapeSettings struct {
	MaxRequestsPerCycle  int
	KeywordsPerCommunity int
	LimitPerCall         int
	MinEngagement        int
}

func (s ScrapeSettings) withDefaults() ScrapeSettings {
	if s.MaxRequestsPerCycle <= 0 {
		s.MaxRequestsPerCycle = DefaultMaxRequestsPerCycle
	}
	if s.KeywordsPerCommunity <= 0 {
		s.KeywordsPerCommunity = DefaultKeywordsPerCommunity
	}
	if s.LimitPerCall <= 0 {
		s.LimitPerCall = DefaultLimitPerCall
	}
	if s.MinEngagement < 0 {
		s.MinEngagement = 0
	}
	return s
}

// ScrapeOrchestrator fans out across platforms and languages and returns a ranked, unique candidate list
type ScrapeOrchestrator struct {
	adapters map[dto.Platform]sources.Adapter
	catalog  *sources.Catalog
	settings ScrapeSettings
}

// NewScrapeOrchestrator creates an orchestrator over the given adapters
func NewScrapeOrchestrator(catalog *sources.Catalog, settings ScrapeSettings, adapters ...sources.Adapter) *ScrapeOrchestrator {
	byPlatform := make(map[dto.Platform]sources.Adapter, len(adapters))
	for _, a := range adapters {
		if a != nil {
			byPlatform[a.Platform()] = a
		}
	}
	if catalog == nil {
		catalog = &sources.Catalog{Languages: map[string]sources.LanguageCatalog{}}
	}
	settings = settings.withDefaults()

	scrapeLog.Info("Initializing ScrapeOrchestrator", map[string]interface{}{
		"platforms":              len(byPlatform),
		"max_requests_per_cycle": settings.MaxRequestsPerCycle,
		"keywords_per_community": settings.KeywordsPerCommunity,
		"min_engagement":         settings.MinEngagement,
	})

	return &ScrapeOrchestrator{
		adapters: byPlatform,
		catalog:  catalog,
		settings: settings,
	}
}

type callKey struct {
	platform  dto.Platform
	community string
	terms     string
}

// Scrape runs one budgeted pass over the tenant's languages and platforms
func (o *ScrapeOrchestrator) Scrape(ctx context.Context, tc dto.TenantConfig) []dto.RawCandidate {
	languages := tc.Languages
	if len(languages) == 0 {
		languages = []string{sources.LangEnglish}
	}
	platforms := resolvePlatforms(tc.Platforms)
	budget := NewRequestBudget(o.settings.MaxRequestsPerCycle)

	scrapeLog.Info("Scrape started", map[string]interface{}{
		"user_id":   tc.UserID,
		"languages": strings.Join(languages, ","),
		"platforms": joinPlatforms(platforms),
		"budget":    budget.Remaining(),
	})

	for _, p := range platforms {
		if _, ok := o.adapters[p]; !ok {
			scrapeLog.Warn("Unknown or disabled platform", map[string]interface{}{"platform": p})
		}
	}

	var collected []dto.RawCandidate
	seenCalls := map[callKey]bool{}

	for _, lang := range languages {
		if ctx.Err() != nil || budget.Remaining() == 0 {
			break
		}

		keywords := tc.Keywords
		if len(keywords) == 0 {
			keywords = o.catalog.Keywords(lang)
		}

		plan := o.communitiesFor(tc, lang, platforms)
		if len(plan) == 0 {
			scrapeLog.Warn("No communities configured for language, skipping", map[string]interface{}{
				"language": lang,
			})
			continue
		}

		for _, p := range platforms {
			communities, ok := plan[p]
			if !ok {
				continue
			}
			adapter := o.adapters[p]

			for _, community := range communities {
				for _, terms := range o.callTerms(adapter, keywords) {
					key := callKey{platform: p, community: community, terms: strings.Join(terms, "|")}
					if seenCalls[key] {
						continue
					}
					if ctx.Err() != nil {
						break
					}
					if !budget.Take() {
						scrapeLog.Warn("Request budget exhausted, stopping scrape", map[string]interface{}{
							"user_id": tc.UserID,
							"max":     o.settings.MaxRequestsPerCycle,
						})
						return o.finish(collected)
					}
					seenCalls[key] = true

					batch, err := adapter.ListCandidates(ctx, terms, community, o.settings.LimitPerCall)
					if err != nil {
						scrapeLog.Warn("Adapter call failed, skipping", map[string]interface{}{
							"platform":  p,
							"community": community,
							"language":  lang,
							"error":     err.Error(),
						})
						continue
					}

					batch = tagLanguage(batch, lang, adapter.KeywordSearched())
					if !adapter.KeywordSearched() {
						batch = FilterByKeywords(batch, keywords)
					}
					collected = append(collected, batch...)
				}
			}
		}
	}

	return o.finish(collected)
}

func (o *ScrapeOrchestrator) finish(collected []dto.RawCandidate) []dto.RawCandidate {
	filtered := FilterByEngagement(collected, o.settings.MinEngagement)
	unique := Deduplicate(filtered)
	RankByEngagement(unique)

	scrapeLog.Info("Scrape finished", map[string]interface{}{
		"collected":  len(collected),
		"engaged":    len(filtered),
		"unique":     len(unique),
		"platforms":  len(o.adapters),
		"per_source": countByPlatform(unique),
	})
	return unique
}

// communitiesFor resolves the communities to visit for each platform in lang.
// Platforms without an adapter or without communities are left out.
func (o *ScrapeOrchestrator) communitiesFor(tc dto.TenantConfig, lang string, platforms []dto.Platform) map[dto.Platform][]string {
	plan := map[dto.Platform][]string{}
	for _, p := range platforms {
		if _, ok := o.adapters[p]; !ok {
			continue
		}
		communities := tc.CommunitiesFor(p)
		if len(communities) == 0 {
			communities = o.catalog.Communities(lang, p)
		}
		if len(communities) > 0 {
			plan[p] = communities
		}
	}
	return plan
}

// callTerms splits keywords into per-call query terms. Search adapters get one call per
// keyword, capped per community; feed adapters get a single call carrying every keyword.
func (o *ScrapeOrchestrator) callTerms(adapter sources.Adapter, keywords []string) [][]string {
	if !adapter.KeywordSearched() {
		return [][]string{keywords}
	}
	if len(keywords) == 0 {
		return [][]string{nil}
	}
	n := o.settings.KeywordsPerCommunity
	if n > len(keywords) {
		n = len(keywords)
	}
	out := make([][]string, 0, n)
	for _, kw := range keywords[:n] {
		out = append(out, []string{kw})
	}
	return out
}

// FilterByKeywords keeps candidates whose title or body contains any keyword, case-insensitively
func FilterByKeywords(candidates []dto.RawCandidate, keywords []string) []dto.RawCandidate {
	if len(keywords) == 0 {
		return candidates
	}
	out := make([]dto.RawCandidate, 0, len(candidates))
	for _, c := range candidates {
		if sources.MatchesAnyKeyword(c, keywords) {
			out = append(out, c)
		}
	}
	return out
}

// FilterByEngagement drops candidates below minScore, except those without an engagement signal
func FilterByEngagement(candidates []dto.RawCandidate, minScore int) []dto.RawCandidate {
	out := make([]dto.RawCandidate, 0, len(candidates))
	for _, c := range candidates {
		if !c.HasEngagement || c.EngagementScore >= minScore {
			out = append(out, c)
		}
	}
	return out
}

// Deduplicate keeps the first occurrence of each natural key, in input order
func Deduplicate(candidates []dto.RawCandidate) []dto.RawCandidate {
	seen := make(map[string]struct{}, len(candidates))
	out := make([]dto.RawCandidate, 0, len(candidates))
	for _, c := range candidates {
		key := sources.NaturalKey(c)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}

// RankByEngagement sorts in place by engagement descending, keeping insertion order on ties
func RankByEngagement(candidates []dto.RawCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].EngagementScore > candidates[j].EngagementScore
	})
}

func tagLanguage(batch []dto.RawCandidate, lang string, searched bool) []dto.RawCandidate {
	for i := range batch {
		if batch[i].Language != "" {
			continue
		}
		if searched {
			batch[i].Language = lang
			continue
		}
		batch[i].Language = sources.DetectLanguage(batch[i].Title+" "+batch[i].BodyText, lang)
	}
	return batch
}

func resolvePlatforms(names []string) []dto.Platform {
	if len(names) == 0 {
		return append([]dto.Platform(nil), DefaultPlatforms...)
	}
	out := make([]dto.Platform, 0, len(names))
	seen := map[dto.Platform]bool{}
	for _, n := range names {
		p := dto.Platform(strings.ToLower(strings.TrimSpace(n)))
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

func joinPlatforms(platforms []dto.Platform) string {
	names := make([]string, len(platforms))
	for i, p := range platforms {
		names[i] = string(p)
	}
	return strings.Join(names, ",")
}

func countByPlatform(candidates []dto.RawCandidate) map[string]int {
	counts := map[string]int{}
	for _, c := range candidates {
		counts[string(c.Platform)]++
	}
	return counts
}
