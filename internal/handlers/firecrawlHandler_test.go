package handlers

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"webstar/noturno-leadfinder-worker/internal/sources"

	"github.com/mendableai/firecrawl-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ sources.PageRenderer = (*FirecrawlHandler)(nil)

type fakeScrapeClient struct {
	mu       sync.Mutex
	docs     map[string]*firecrawl.FirecrawlDocument
	errs     map[string]error
	delay    time.Duration
	params   []*firecrawl.ScrapeParams
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (f *fakeScrapeClient) ScrapeURL(u string, params *firecrawl.ScrapeParams) (*firecrawl.FirecrawlDocument, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.params = append(f.params, params)
	if err := f.errs[u]; err != nil {
		return nil, err
	}
	return f.docs[u], nil
}

func TestFirecrawlConstants(t *testing.T) {
	assert.Equal(t, 5, MaxConcurrentScrapes, "MaxConcurrentScrapes should be 5")
	assert.Greater(t, int(DefaultScrapeTimeout.Seconds()), 0, "DefaultScrapeTimeout should be positive")
}

func TestScrapeURL(t *testing.T) {
	client := &fakeScrapeClient{
		docs: map[string]*firecrawl.FirecrawlDocument{
			"https://raw.example":   {RawHTML: "<html>raw</html>", HTML: "<p>clean</p>"},
			"https://clean.example": {HTML: "<p>clean</p>"},
			"https://empty.example": {},
		},
		errs: map[string]error{"https://down.example": errors.New("502 bad gateway")},
	}
	h := newFirecrawlHandler(client)

	tests := []struct {
		name     string
		url      string
		wantOK   bool
		wantHTML string
		wantErr  string
	}{
		{name: "prefers raw html", url: "https://raw.example", wantOK: true, wantHTML: "<html>raw</html>"},
		{name: "falls back to html", url: "https://clean.example", wantOK: true, wantHTML: "<p>clean</p>"},
		{name: "empty document", url: "https://empty.example", wantErr: ErrRenderEmpty.Error()},
		{name: "upstream error", url: "https://down.example", wantErr: "502 bad gateway"},
		{name: "invalid url", url: "not a url", wantErr: "invalid URL"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			page := h.ScrapeURL(context.Background(), tc.url)
			assert.Equal(t, tc.url, page.URL)
			assert.Equal(t, tc.wantOK, page.Success)
			assert.Equal(t, tc.wantHTML, page.HTML)
			assert.Equal(t, tc.wantErr, page.Error)
		})
	}

	require.NotEmpty(t, client.params)
	assert.Equal(t, []string{"rawHtml"}, client.params[0].Formats)
}

func TestScrapeURL_Timeout(t *testing.T) {
	client := &fakeScrapeClient{
		docs:  map[string]*firecrawl.FirecrawlDocument{"https://slow.example": {RawHTML: "<html/>"}},
		delay: 200 * time.Millisecond,
	}
	h := newFirecrawlHandler(client)
	h.SetTimeout(10 * time.Millisecond)

	page := h.ScrapeURL(context.Background(), "https://slow.example")
	assert.False(t, page.Success)
	assert.Equal(t, "scrape timeout exceeded", page.Error)
}

func TestRenderHTML(t *testing.T) {
	client := &fakeScrapeClient{
		docs: map[string]*firecrawl.FirecrawlDocument{"https://www.indiehackers.com/latest": {RawHTML: "<div class='feed'></div>"}},
	}
	h := newFirecrawlHandler(client)

	html, err := h.RenderHTML(context.Background(), "https://www.indiehackers.com/latest")
	require.NoError(t, err)
	assert.Equal(t, "<div class='feed'></div>", html)

	_, err = h.RenderHTML(context.Background(), "https://missing.example")
	assert.Error(t, err)
}

func TestScrapeURLs(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		h := newFirecrawlHandler(&fakeScrapeClient{})
		assert.Empty(t, h.ScrapeURLs(context.Background(), nil))
	})

	t.Run("keeps order and bounds concurrency", func(t *testing.T) {
		client := &fakeScrapeClient{docs: map[string]*firecrawl.FirecrawlDocument{}, delay: 20 * time.Millisecond}
		var urls []string
		for _, host := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
			u := "https://" + host + ".example"
			urls = append(urls, u)
			client.docs[u] = &firecrawl.FirecrawlDocument{RawHTML: host}
		}
		h := newFirecrawlHandler(client)

		pages := h.ScrapeURLs(context.Background(), urls)
		require.Len(t, pages, len(urls))
		for i, page := range pages {
			assert.Equal(t, urls[i], page.URL)
			assert.True(t, page.Success)
		}
		assert.LessOrEqual(t, int(client.peak.Load()), MaxConcurrentScrapes)
	})
}
