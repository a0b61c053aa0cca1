package sources

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"webstar/noturno-leadfinder-worker/internal/dto"
	"webstar/noturno-leadfinder-worker/internal/fetcher"
	"webstar/noturno-leadfinder-worker/internal/logging"

	"github.com/PuerkitoBio/goquery"
)

const (
	// IndieHackersBaseURL is the public Indie Hackers host
	IndieHackersBaseURL = "https://www.indiehackers.com"
	// IndieHackersMaxBody is how much excerpt text is kept per post
	IndieHackersMaxBody = 500
)

// Markup changes often, so each field has an ordered list of selectors
var (
	ihEntrySelectors   = []string{".feed-item", ".post-card", "article", ".ember-view.post"}
	ihTitleSelectors   = []string{"h2", "h3", ".title", ".post-title", "a.feed-item__title"}
	ihLinkSelectors    = []string{`a[href*="/post/"]`, `a[href*="/product/"]`}
	ihAuthorSelectors  = []string{".author", ".username", ".user-link"}
	ihContentSelectors = []string{".content", ".body", ".excerpt", "p"}
)

var ihLog = logging.New("IndieHackersAdapter")

// IndieHackersAdapter reads the Indie Hackers feed pages
type IndieHackersAdapter struct {
	fetcher  PageFetcher
	renderer PageRenderer
	baseURL  string
	opts     fetcher.Options
}

// NewIndieHackersAdapter creates an Indie Hackers adapter. renderer may be nil, in which
// case the raw page is fetched through the polite fetcher.
func NewIndieHackersAdapter(f PageFetcher, renderer PageRenderer, baseURL string) *IndieHackersAdapter {
	if baseURL == "" {
		baseURL = IndieHackersBaseURL
	}
	return &IndieHackersAdapter{
		fetcher:  f,
		renderer: renderer,
		baseURL:  strings.TrimRight(baseURL, "/"),
		opts: fetcher.Options{
			MinDelay: 3 * time.Second,
			MaxDelay: 6 * time.Second,
		},
	}
}

func (a *IndieHackersAdapter) Platform() dto.Platform { return dto.PlatformIndieHackers }

func (a *IndieHackersAdapter) KeywordSearched() bool { return false }

// ListCandidates reads one feed page ("latest" by default)
func (a *IndieHackersAdapter) ListCandidates(ctx context.Context, _ []string, community string, limit int) ([]dto.RawCandidate, error) {
	community = strings.Trim(strings.TrimSpace(community), "/")
	if community == "" {
		community = "latest"
	}
	if limit <= 0 {
		limit = 20
	}

	pageURL := a.baseURL + "/" + community
	html, err := a.load(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse Indie Hackers %s: %w", community, err)
	}

	entries := firstMatch(doc.Selection, ihEntrySelectors)
	candidates := make([]dto.RawCandidate, 0, limit)

	entries.EachWithBreak(func(i int, entry *goquery.Selection) bool {
		if len(candidates) >= limit {
			return false
		}
		c, ok := a.parseEntry(entry)
		if !ok {
			ihLog.Debug("Skipping entry without title", map[string]interface{}{
				"community": community,
				"index":     i,
			})
			return true
		}
		candidates = append(candidates, c)
		return true
	})

	ihLog.Info("Listed feed", map[string]interface{}{
		"community":  community,
		"entries":    entries.Length(),
		"candidates": len(candidates),
		"rendered":   a.renderer != nil,
	})

	return candidates, nil
}

func (a *IndieHackersAdapter) load(ctx context.Context, pageURL string) ([]byte, error) {
	if a.renderer != nil {
		html, err := a.renderer.RenderHTML(ctx, pageURL)
		if err == nil && strings.TrimSpace(html) != "" {
			return []byte(html), nil
		}
		ihLog.Warn("Renderer failed, falling back to direct fetch", map[string]interface{}{
			"url":   pageURL,
			"error": fmt.Sprint(err),
		})
	}

	resp, err := a.fetcher.Fetch(ctx, pageURL, a.opts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", pageURL, err)
	}
	return resp.Body, nil
}

func (a *IndieHackersAdapter) parseEntry(entry *goquery.Selection) (dto.RawCandidate, bool) {
	title := cleanText(firstMatch(entry, ihTitleSelectors).First().Text())
	if title == "" {
		return dto.RawCandidate{}, false
	}

	link := ""
	if href, ok := firstMatch(entry, ihLinkSelectors).First().Attr("href"); ok {
		link = a.absolute(strings.TrimSpace(href))
	}

	author := cleanText(firstMatch(entry, ihAuthorSelectors).First().Text())
	if author == "" {
		author = "unknown"
	}

	body := clip(cleanText(firstMatch(entry, ihContentSelectors).First().Text()), IndieHackersMaxBody)
	if body == "" {
		body = title
	}

	c := dto.RawCandidate{
		Platform:     dto.PlatformIndieHackers,
		ExternalID:   postSlug(link),
		AuthorHandle: author,
		Title:        title,
		BodyText:     body,
		CanonicalURL: link,
		SourceLabel:  "Indie Hackers",
	}
	if c.CanonicalURL == "" {
		c.CanonicalURL = a.baseURL
	}
	if author != "unknown" {
		c.ProfileURL = a.baseURL + "/" + author
	}
	return c, true
}

func (a *IndieHackersAdapter) absolute(href string) string {
	if href == "" || strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	if !strings.HasPrefix(href, "/") {
		href = "/" + href
	}
	return a.baseURL + href
}

// postSlug returns the last path segment of a /post/ or /product/ link
func postSlug(link string) string {
	for _, marker := range []string{"/post/", "/product/"} {
		i := strings.Index(link, marker)
		if i < 0 {
			continue
		}
		slug := link[i+len(marker):]
		if j := strings.IndexAny(slug, "?#"); j >= 0 {
			slug = slug[:j]
		}
		slug = strings.Trim(slug, "/")
		if j := strings.LastIndex(slug, "/"); j >= 0 {
			slug = slug[j+1:]
		}
		return slug
	}
	return ""
}

// firstMatch returns the matches of the first selector that finds anything
func firstMatch(s *goquery.Selection, selectors []string) *goquery.Selection {
	for _, sel := range selectors {
		if found := s.Find(sel); found.Length() > 0 {
			return found
		}
	}
	return s.Find(selectors[len(selectors)-1])
}
