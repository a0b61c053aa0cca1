package sources

import (
	"context"
	"fmt"
	"strings"

	"webstar/noturno-leadfinder-worker/internal/dto"
	"webstar/noturno-leadfinder-worker/internal/logging"
)

// GoogleMaxResults caps one site search
const GoogleMaxResults = 20

// SearchHit is one organic web search result
type SearchHit struct {
	Position int
	Title    string
	Link     string
	Snippet  string
}

// WebSearcher runs a web search query
type WebSearcher interface {
	SearchWeb(ctx context.Context, query string, num int) ([]SearchHit, error)
}

var googleLog = logging.New("GoogleAdapter")

// GoogleAdapter finds public threads on a community domain through site-restricted web search
type GoogleAdapter struct {
	searcher WebSearcher
}

// NewGoogleAdapter creates a Google site-search adapter
func NewGoogleAdapter(searcher WebSearcher) *GoogleAdapter {
	return &GoogleAdapter{searcher: searcher}
}

func (a *GoogleAdapter) Platform() dto.Platform { return dto.PlatformGoogle }

func (a *GoogleAdapter) KeywordSearched() bool { return true }

// ListCandidates searches site:{community} for the quoted query terms
func (a *GoogleAdapter) ListCandidates(ctx context.Context, queryTerms []string, community string, limit int) ([]dto.RawCandidate, error) {
	domain := strings.TrimSpace(community)
	if domain == "" {
		return nil, fmt.Errorf("site domain is required")
	}
	if limit <= 0 || limit > GoogleMaxResults {
		limit = GoogleMaxResults
	}

	query := buildSiteQuery(domain, queryTerms)
	hits, err := a.searcher.SearchWeb(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("site search %q failed: %w", query, err)
	}

	candidates := make([]dto.RawCandidate, 0, len(hits))
	for _, hit := range hits {
		title := cleanText(hit.Title)
		if title == "" || hit.Link == "" {
			continue
		}
		candidates = append(candidates, dto.RawCandidate{
			Platform:     dto.PlatformGoogle,
			ExternalID:   hit.Link,
			Title:        title,
			BodyText:     cleanText(hit.Snippet),
			CanonicalURL: hit.Link,
			SourceLabel:  domain,
		})
		if len(candidates) >= limit {
			break
		}
	}

	googleLog.Info("Site search completed", map[string]interface{}{
		"site":       domain,
		"query":      query,
		"candidates": len(candidates),
	})

	return candidates, nil
}

func buildSiteQuery(domain string, terms []string) string {
	var b strings.Builder
	b.WriteString("site:")
	b.WriteString(domain)
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		quoted = append(quoted, `"`+strings.ReplaceAll(t, `"`, "")+`"`)
	}
	if len(quoted) > 0 {
		b.WriteString(" ")
		b.WriteString(strings.Join(quoted, " OR "))
	}
	return b.String()
}
