package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"webstar/noturno-leadfinder-worker/internal/logging"

	"github.com/mendableai/firecrawl-go/v2"
)

const (
	// DefaultScrapeTimeout is the timeout for scraping a single URL
	DefaultScrapeTimeout = 30 * time.Second
	// MaxConcurrentScrapes limits how many URLs we scrape in parallel
	MaxConcurrentScrapes = 5
	// renderWaitMs gives client-side rendered pages time to hydrate before capture
	renderWaitMs = 2000
)

var firecrawlLog = logging.New("FirecrawlHandler")

// ErrRenderEmpty is returned when the rendering service answers without HTML
var ErrRenderEmpty = errors.New("render returned no html")

// ScrapedPage represents the scraped content from a single URL
type ScrapedPage struct {
	// URL that was scraped
	URL string `json:"url"`
	// HTML is the rendered page source
	HTML string `json:"html,omitempty"`
	// Error message if scraping failed
	Error string `json:"error,omitempty"`
	// Success indicates whether the scrape was successful
	Success bool `json:"success"`
}

// scrapeClient is the part of the Firecrawl SDK we use
type scrapeClient interface {
	ScrapeURL(url string, params *firecrawl.ScrapeParams) (*firecrawl.FirecrawlDocument, error)
}

// FirecrawlHandler renders client-side pages through the Firecrawl API
type FirecrawlHandler struct {
	app     scrapeClient
	timeout time.Duration
}

// NewFirecrawlHandler creates a new FirecrawlHandler instance
// apiKey is required, apiURL can be empty to use the default Firecrawl API
func NewFirecrawlHandler(apiKey string, apiURL string) (*FirecrawlHandler, error) {
	firecrawlLog.Info("Initializing", map[string]interface{}{"api_url": apiURL})
	app, err := firecrawl.NewFirecrawlApp(apiKey, apiURL)
	if err != nil {
		firecrawlLog.Error("Failed to create FirecrawlApp", map[string]interface{}{"error": err.Error()})
		return nil, err
	}

	return newFirecrawlHandler(app), nil
}

func newFirecrawlHandler(app scrapeClient) *FirecrawlHandler {
	return &FirecrawlHandler{
		app:     app,
		timeout: DefaultScrapeTimeout,
	}
}

// SetTimeout allows customizing the scrape timeout
func (h *FirecrawlHandler) SetTimeout(timeout time.Duration) {
	h.timeout = timeout
}

// RenderHTML returns the rendered HTML of a page
func (h *FirecrawlHandler) RenderHTML(ctx context.Context, pageURL string) (string, error) {
	page := h.ScrapeURL(ctx, pageURL)
	if !page.Success {
		return "", fmt.Errorf("render %s: %s", pageURL, page.Error)
	}
	return page.HTML, nil
}

// ScrapeURL renders a single URL. Failures are reported on the page, never as an error.
func (h *FirecrawlHandler) ScrapeURL(ctx context.Context, targetURL string) *ScrapedPage {
	result := &ScrapedPage{URL: targetURL}

	parsedURL, err := url.Parse(targetURL)
	if err != nil || parsedURL.Host == "" {
		firecrawlLog.Warn("Invalid URL", map[string]interface{}{"url": targetURL})
		result.Error = "invalid URL"
		return result
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	type scrapeResult struct {
		data *firecrawl.FirecrawlDocument
		err  error
	}
	resultChan := make(chan scrapeResult, 1)

	// The SDK takes no context, so the call runs aside and is abandoned on timeout
	go func() {
		wait := renderWaitMs
		scrapedData, err := h.app.ScrapeURL(targetURL, &firecrawl.ScrapeParams{
			Formats: []string{"rawHtml"},
			WaitFor: &wait,
		})
		resultChan <- scrapeResult{data: scrapedData, err: err}
	}()

	select {
	case <-ctx.Done():
		firecrawlLog.Warn("Timeout exceeded", map[string]interface{}{"url": targetURL})
		result.Error = "scrape timeout exceeded"
	case res := <-resultChan:
		switch {
		case res.err != nil:
			firecrawlLog.Warn("Scrape error", map[string]interface{}{"url": targetURL, "error": res.err.Error()})
			result.Error = res.err.Error()
		case res.data == nil || (res.data.RawHTML == "" && res.data.HTML == ""):
			result.Error = ErrRenderEmpty.Error()
		default:
			result.HTML = res.data.RawHTML
			if result.HTML == "" {
				result.HTML = res.data.HTML
			}
			result.Success = true
			firecrawlLog.Debug("Rendered page", map[string]interface{}{"url": targetURL, "html_length": len(result.HTML)})
		}
	}

	return result
}

// ScrapeURLs renders multiple URLs concurrently, at most MaxConcurrentScrapes at a time.
// Results keep the input order.
func (h *FirecrawlHandler) ScrapeURLs(ctx context.Context, urls []string) []ScrapedPage {
	if len(urls) == 0 {
		return []ScrapedPage{}
	}

	results := make([]ScrapedPage, len(urls))
	var wg sync.WaitGroup
	semaphore := make(chan struct{}, MaxConcurrentScrapes)

	for i, targetURL := range urls {
		wg.Add(1)
		go func(index int, u string) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			results[index] = *h.ScrapeURL(ctx, u)
		}(i, targetURL)
	}

	wg.Wait()
	return results
}
