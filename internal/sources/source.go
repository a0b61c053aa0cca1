// Package sources converts platform payloads into the common RawCandidate shape.
package sources

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"unicode/utf8"

	"webstar/noturno-leadfinder-worker/internal/dto"
	"webstar/noturno-leadfinder-worker/internal/fetcher"
)

// Adapter lists candidates from one platform family
type Adapter interface {
	Platform() dto.Platform
	// KeywordSearched reports whether results are already matched against the query
	// terms by the platform. Feed-based adapters return false.
	KeywordSearched() bool
	ListCandidates(ctx context.Context, queryTerms []string, community string, limit int) ([]dto.RawCandidate, error)
}

// PageFetcher is the polite GET used by adapters
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string, opts fetcher.Options) (*fetcher.Response, error)
}

// PageRenderer returns the rendered HTML of a client-side rendered page
type PageRenderer interface {
	RenderHTML(ctx context.Context, pageURL string) (string, error)
}

// NaturalKey returns the dedup identity of a candidate:
// platform:external_id, or platform:author:title[:50] when there is no external id.
func NaturalKey(c dto.RawCandidate) string {
	if c.ExternalID != "" {
		return string(c.Platform) + ":" + c.ExternalID
	}
	return string(c.Platform) + ":" + c.AuthorHandle + ":" + truncateRunes(c.Title, 50)
}

// PersistentID returns the external id used to key a persisted lead.
// Candidates without one get a sha1 fingerprint of their natural key.
func PersistentID(c dto.RawCandidate) string {
	if c.ExternalID != "" {
		return c.ExternalID
	}
	return hashString(NaturalKey(c))
}

// MatchesAnyKeyword reports whether title+body contains any keyword, case-insensitively.
// An empty keyword list matches everything.
func MatchesAnyKeyword(c dto.RawCandidate, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	text := strings.ToLower(c.Title + " " + c.BodyText)
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func hashString(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// truncateRunes cuts s to at most n runes
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

func clip(s string, max int) string {
	return truncateRunes(strings.TrimSpace(s), max)
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
