package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"webstar/noturno-leadfinder-worker/internal/dto"
	"webstar/noturno-leadfinder-worker/internal/fetcher"
	"webstar/noturno-leadfinder-worker/internal/logging"
)

const (
	// RedditBaseURL is the public JSON host. No OAuth is needed for search and listings.
	RedditBaseURL = "https://www.reddit.com"
	// RedditMaxBody is how much selftext is kept per post
	RedditMaxBody = 2000
	redditMaxLimit = 100
)

var redditLog = logging.New("RedditAdapter")

// RedditAdapter searches subreddits through the public JSON endpoints
type RedditAdapter struct {
	fetcher PageFetcher
	baseURL string
	opts    fetcher.Options
}

// NewRedditAdapter creates a Reddit adapter. baseURL may be empty for the public host.
func NewRedditAdapter(f PageFetcher, baseURL string) *RedditAdapter {
	if baseURL == "" {
		baseURL = RedditBaseURL
	}
	return &RedditAdapter{
		fetcher: f,
		baseURL: strings.TrimRight(baseURL, "/"),
		opts: fetcher.Options{
			Headers: map[string]string{"Accept": "application/json"},
		},
	}
}

func (a *RedditAdapter) Platform() dto.Platform { return dto.PlatformReddit }

func (a *RedditAdapter) KeywordSearched() bool { return true }

type redditListing struct {
	Data struct {
		Children []json.RawMessage `json:"children"`
	} `json:"data"`
}

type redditChild struct {
	Kind string     `json:"kind"`
	Data redditPost `json:"data"`
}

type redditPost struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Permalink   string  `json:"permalink"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	Author      string  `json:"author"`
	Selftext    string  `json:"selftext"`
	CreatedUTC  float64 `json:"created_utc"`
	Subreddit   string  `json:"subreddit"`
	Stickied    bool    `json:"stickied"`
}

// ListCandidates searches r/{community} for the joined query terms, newest first.
// Without query terms it lists the newest posts instead.
func (a *RedditAdapter) ListCandidates(ctx context.Context, queryTerms []string, community string, limit int) ([]dto.RawCandidate, error) {
	community = strings.TrimPrefix(strings.TrimSpace(community), "r/")
	if community == "" {
		return nil, fmt.Errorf("subreddit is required")
	}
	if limit <= 0 || limit > redditMaxLimit {
		limit = redditMaxLimit
	}

	pageURL := a.buildURL(community, strings.TrimSpace(strings.Join(queryTerms, " ")), limit)

	resp, err := a.fetcher.Fetch(ctx, pageURL, a.opts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch r/%s: %w", community, err)
	}

	var listing redditListing
	if err := json.Unmarshal(resp.Body, &listing); err != nil {
		return nil, fmt.Errorf("failed to parse r/%s listing: %w", community, err)
	}

	candidates := make([]dto.RawCandidate, 0, len(listing.Data.Children))
	for i, raw := range listing.Data.Children {
		var child redditChild
		if err := json.Unmarshal(raw, &child); err != nil {
			redditLog.Warn("Skipping unparseable post", map[string]interface{}{
				"subreddit": community,
				"index":     i,
				"error":     err.Error(),
			})
			continue
		}
		post := child.Data
		if post.ID == "" || strings.TrimSpace(post.Title) == "" {
			redditLog.Debug("Skipping post without id or title", map[string]interface{}{
				"subreddit": community,
				"index":     i,
			})
			continue
		}
		if post.Stickied {
			continue
		}

		candidates = append(candidates, a.toCandidate(post, community))
		if len(candidates) >= limit {
			break
		}
	}

	redditLog.Info("Listed subreddit", map[string]interface{}{
		"subreddit":  community,
		"query":      strings.Join(queryTerms, " "),
		"candidates": len(candidates),
	})

	return candidates, nil
}

func (a *RedditAdapter) buildURL(subreddit, query string, limit int) string {
	if query == "" {
		return fmt.Sprintf("%s/r/%s/new.json?limit=%d", a.baseURL, url.PathEscape(subreddit), limit)
	}
	params := url.Values{}
	params.Set("q", query)
	params.Set("restrict_sr", "on")
	params.Set("sort", "new")
	params.Set("limit", fmt.Sprintf("%d", limit))
	return fmt.Sprintf("%s/r/%s/search.json?%s", a.baseURL, url.PathEscape(subreddit), params.Encode())
}

func (a *RedditAdapter) toCandidate(post redditPost, subreddit string) dto.RawCandidate {
	author := post.Author
	if author == "" {
		author = "[deleted]"
	}

	c := dto.RawCandidate{
		Platform:        dto.PlatformReddit,
		ExternalID:      post.ID,
		AuthorHandle:    author,
		Title:           cleanText(post.Title),
		BodyText:        clip(post.Selftext, RedditMaxBody),
		CanonicalURL:    "https://reddit.com" + post.Permalink,
		SourceLabel:     "r/" + subreddit,
		EngagementScore: post.Score + post.NumComments,
		CommentCount:    post.NumComments,
		HasEngagement:   true,
	}
	if c.BodyText == "" {
		c.BodyText = c.Title
	}
	if author != "[deleted]" {
		c.ProfileURL = "https://reddit.com/user/" + author
	}
	if post.CreatedUTC > 0 {
		created := time.Unix(int64(post.CreatedUTC), 0).UTC()
		c.CreatedAt = &created
	}
	return c
}
