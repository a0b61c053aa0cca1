package handlers

import (
	"context"
	"fmt"
	"strconv"

	"webstar/noturno-leadfinder-worker/internal/logging"
	"webstar/noturno-leadfinder-worker/internal/sources"

	g "github.com/serpapi/google-search-results-golang"
)

const (
	// ResultsPerPage is the number of results SerpAPI returns per page
	ResultsPerPage = 10
	// MaxResultsPerRequest is the maximum results we allow per request
	MaxResultsPerRequest = 100
	// MaxPagesToFetch is the maximum number of pages we'll fetch to prevent excessive API calls
	MaxPagesToFetch = 10
)

var googleSearchLog = logging.New("GoogleSearchHandler")

// serpSearchFunc runs one SerpAPI query and returns the decoded JSON
type serpSearchFunc func(parameters map[string]string, apiKey string) (map[string]interface{}, error)

func serpAPISearch(parameters map[string]string, apiKey string) (map[string]interface{}, error) {
	search := g.NewGoogleSearch(parameters, apiKey)
	return search.GetJSON()
}

// GoogleSearchParams describes one paginated web search
type GoogleSearchParams struct {
	Q              string
	Hl             string   // language used in the query
	Gl             string   // country to use for the search
	ExcludeDomains []string // domains to exclude from search results (e.g., "instagram.com", "linkedin.com")
	Num            int      // total number of results to return (will fetch multiple pages if needed)
	Start          int      // result offset for pagination (0 = first page)
}

// Pagination represents the pagination info from SerpAPI
type Pagination struct {
	Current int    `json:"current"`
	Next    string `json:"next,omitempty"`
}

// SearchResponse contains the organic results of a paginated search
type SearchResponse struct {
	TotalResults   int                 `json:"total_results"`
	PagesFetched   int                 `json:"pages_fetched"`
	OrganicResults []sources.SearchHit `json:"organic_results"`
	Pagination     Pagination          `json:"serpapi_pagination"`
}

// GoogleSearchHandler searches Google through SerpAPI
type GoogleSearchHandler struct {
	apiKey string
	hl     string
	gl     string
	search serpSearchFunc
}

func NewGoogleSearchHandler(apiKey string) *GoogleSearchHandler {
	return &GoogleSearchHandler{
		apiKey: apiKey,
		hl:     "en",
		search: serpAPISearch,
	}
}

// SetLocale sets the interface language and country used by SearchWeb
func (h *GoogleSearchHandler) SetLocale(hl, gl string) {
	h.hl = hl
	h.gl = gl
}

// SearchWeb returns up to num organic results for query
func (h *GoogleSearchHandler) SearchWeb(ctx context.Context, query string, num int) ([]sources.SearchHit, error) {
	resp, err := h.Search(ctx, GoogleSearchParams{Q: query, Hl: h.hl, Gl: h.gl, Num: num})
	if err != nil {
		return nil, err
	}
	return resp.OrganicResults, nil
}

// fetchPage fetches a single page of results from SerpAPI
func (h *GoogleSearchHandler) fetchPage(query, hl, gl string, start int) ([]sources.SearchHit, *Pagination, error) {
	parameters := map[string]string{
		"engine": "google",
		"q":      query,
		"num":    strconv.Itoa(ResultsPerPage),
		"start":  strconv.Itoa(start),
	}
	if hl != "" {
		parameters["hl"] = hl
	}
	if gl != "" {
		parameters["gl"] = gl
	}

	resp, err := h.search(parameters, h.apiKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch page at start=%d: %w", start, err)
	}

	var results []sources.SearchHit
	if organicResults, ok := resp["organic_results"].([]interface{}); ok {
		for _, item := range organicResults {
			itemMap, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			results = append(results, sources.SearchHit{
				Position: getInt(itemMap, "position"),
				Title:    getString(itemMap, "title"),
				Link:     getString(itemMap, "link"),
				Snippet:  getString(itemMap, "snippet"),
			})
		}
	}

	var pagination *Pagination
	if paginationMap, ok := resp["serpapi_pagination"].(map[string]interface{}); ok {
		pagination = &Pagination{
			Current: getInt(paginationMap, "current"),
			Next:    getString(paginationMap, "next"),
		}
	}

	return results, pagination, nil
}

// Search performs a Google search and fetches multiple pages if needed to meet the requested number of results
func (h *GoogleSearchHandler) Search(ctx context.Context, params GoogleSearchParams) (*SearchResponse, error) {
	query := params.Q
	for _, domain := range params.ExcludeDomains {
		query += " -site:" + domain
	}

	totalRequested := params.Num
	if totalRequested <= 0 {
		totalRequested = ResultsPerPage
	} else if totalRequested > MaxResultsPerRequest {
		totalRequested = MaxResultsPerRequest
	}

	pagesNeeded := (totalRequested + ResultsPerPage - 1) / ResultsPerPage
	if pagesNeeded > MaxPagesToFetch {
		pagesNeeded = MaxPagesToFetch
	}

	result := &SearchResponse{
		OrganicResults: []sources.SearchHit{},
	}

	currentStart := params.Start
	pagesFetched := 0

	for pagesFetched < pagesNeeded && len(result.OrganicResults) < totalRequested {
		if err := ctx.Err(); err != nil {
			if pagesFetched == 0 {
				return nil, err
			}
			break
		}

		pageResults, pagination, err := h.fetchPage(query, params.Hl, params.Gl, currentStart)
		if err != nil {
			// Only the first page is fatal, later failures keep what was collected
			if pagesFetched == 0 {
				return nil, err
			}
			googleSearchLog.Warn("Stopping pagination after page error", map[string]interface{}{
				"query": params.Q,
				"start": currentStart,
				"error": err.Error(),
			})
			break
		}

		pagesFetched++

		for _, res := range pageResults {
			if len(result.OrganicResults) >= totalRequested {
				break
			}
			// Positions are sequential across pages
			res.Position = len(result.OrganicResults) + 1
			result.OrganicResults = append(result.OrganicResults, res)
		}

		if pagination != nil {
			result.Pagination = *pagination
		}
		if pagination == nil || pagination.Next == "" || len(pageResults) == 0 {
			break
		}

		currentStart += ResultsPerPage
	}

	result.TotalResults = len(result.OrganicResults)
	result.PagesFetched = pagesFetched

	googleSearchLog.Debug("Search completed", map[string]interface{}{
		"query":   params.Q,
		"results": result.TotalResults,
		"pages":   pagesFetched,
	})
	return result, nil
}

// Helper functions to safely extract values from map[string]interface{}
func getString(m map[string]interface{}, key string) string {
	if val, ok := m[key].(string); ok {
		return val
	}
	return ""
}

func getInt(m map[string]interface{}, key string) int {
	if val, ok := m[key].(float64); ok {
		return int(val)
	}
	return 0
}
