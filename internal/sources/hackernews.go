package sources

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"webstar/noturno-leadfinder-worker/internal/dto"
	"webstar/noturno-leadfinder-worker/internal/fetcher"
	"webstar/noturno-leadfinder-worker/internal/logging"

	"github.com/PuerkitoBio/goquery"
)

// HackerNewsBaseURL is the public HN web host
const HackerNewsBaseURL = "https://news.ycombinator.com"

var (
	hnLog    = logging.New("HackerNewsAdapter")
	digitsRe = regexp.MustCompile(`(\d+)`)
)

// HackerNewsAdapter reads the Show HN and Ask HN listing pages
type HackerNewsAdapter struct {
	fetcher PageFetcher
	baseURL string
	opts    fetcher.Options
}

// NewHackerNewsAdapter creates a Hacker News adapter. baseURL may be empty for the public host.
func NewHackerNewsAdapter(f PageFetcher, baseURL string) *HackerNewsAdapter {
	if baseURL == "" {
		baseURL = HackerNewsBaseURL
	}
	return &HackerNewsAdapter{
		fetcher: f,
		baseURL: strings.TrimRight(baseURL, "/"),
		opts: fetcher.Options{
			MinDelay: 2 * time.Second,
			MaxDelay: 5 * time.Second,
		},
	}
}

func (a *HackerNewsAdapter) Platform() dto.Platform { return dto.PlatformHackerNews }

// KeywordSearched is false: the listing pages are not filtered by the platform
func (a *HackerNewsAdapter) KeywordSearched() bool { return false }

// ListCandidates reads the "show" or "ask" listing. Query terms are ignored here
// and applied later by the orchestrator.
func (a *HackerNewsAdapter) ListCandidates(ctx context.Context, _ []string, community string, limit int) ([]dto.RawCandidate, error) {
	community = strings.ToLower(strings.TrimSpace(community))
	if community == "" {
		community = "show"
	}
	if limit <= 0 {
		limit = 30
	}

	resp, err := a.fetcher.Fetch(ctx, a.baseURL+"/"+community, a.opts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch HN %s: %w", community, err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HN %s: %w", community, err)
	}

	label := hnSourceLabel(community)
	candidates := make([]dto.RawCandidate, 0, limit)

	doc.Find("tr.athing").EachWithBreak(func(i int, row *goquery.Selection) bool {
		if len(candidates) >= limit {
			return false
		}
		c, ok := a.parseRow(row, label)
		if !ok {
			hnLog.Debug("Skipping unparseable row", map[string]interface{}{
				"community": community,
				"index":     i,
			})
			return true
		}
		candidates = append(candidates, c)
		return true
	})

	hnLog.Info("Listed page", map[string]interface{}{
		"community":  community,
		"candidates": len(candidates),
	})

	return candidates, nil
}

func (a *HackerNewsAdapter) parseRow(row *goquery.Selection, label string) (dto.RawCandidate, bool) {
	id, _ := row.Attr("id")
	id = strings.TrimSpace(id)
	title := cleanText(row.Find("span.titleline > a").First().Text())
	if id == "" || title == "" {
		return dto.RawCandidate{}, false
	}

	c := dto.RawCandidate{
		Platform:     dto.PlatformHackerNews,
		ExternalID:   id,
		AuthorHandle: "unknown",
		Title:        title,
		BodyText:     title,
		CanonicalURL: a.baseURL + "/item?id=" + id,
		SourceLabel:  label,
	}

	// Metadata lives in the following row
	sub := row.Next()
	if sub.Length() == 0 {
		return c, true
	}

	var points int
	if scoreSel := sub.Find("span.score").First(); scoreSel.Length() > 0 {
		points = firstInt(scoreSel.Text())
		c.HasEngagement = true
	}

	if author := cleanText(sub.Find("a.hnuser").First().Text()); author != "" {
		c.AuthorHandle = author
		c.ProfileURL = a.baseURL + "/user?id=" + author
	}

	if age, ok := sub.Find("span.age").First().Attr("title"); ok {
		if t, ok := parseHNAge(age); ok {
			c.CreatedAt = &t
		}
	}

	// The last link reads "N comments", or "discuss" when there are none
	if last := sub.Find("a").Last(); last.Length() > 0 {
		text := strings.ToLower(last.Text())
		if strings.Contains(text, "comment") {
			c.CommentCount = firstInt(text)
		}
	}

	c.EngagementScore = points + c.CommentCount
	return c, true
}

func hnSourceLabel(community string) string {
	switch community {
	case "show":
		return "Show HN"
	case "ask":
		return "Ask HN"
	}
	return "HN " + community
}

// parseHNAge reads the span.age title, "2024-01-15T10:00:00" optionally followed by a unix timestamp
func parseHNAge(s string) (time.Time, bool) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return time.Time{}, false
	}
	if t, err := time.Parse("2006-01-02T15:04:05", fields[0]); err == nil {
		return t.UTC(), true
	}
	if len(fields) > 1 {
		if sec, err := strconv.ParseInt(fields[1], 10, 64); err == nil {
			return time.Unix(sec, 0).UTC(), true
		}
	}
	return time.Time{}, false
}

func firstInt(s string) int {
	m := digitsRe.FindString(s)
	if m == "" {
		return 0
	}
	n, _ := strconv.Atoi(m)
	return n
}
