// Package websearch fetches external context for the curation sub-pipeline.
package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cortex-mentor/cortex/pkg/errors"
)

// SearchResult is one hit from a web search.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Searcher runs a web search and returns ranked results.
type Searcher interface {
	Search(ctx context.Context, query string) ([]SearchResult, error)
}

// HTTPSearcher queries a JSON search endpoint (GET with a q parameter).
type HTTPSearcher struct {
	endpoint   string
	httpClient *http.Client
}

func NewHTTPSearcher(endpoint string) *HTTPSearcher {
	return &HTTPSearcher{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type searchResponse struct {
	Results []SearchResult `json:"results"`
}

func (s *HTTPSearcher) Search(ctx context.Context, query string) ([]SearchResult, error) {
	u := s.endpoint
	if strings.Contains(u, "?") {
		u += "&q=" + url.QueryEscape(query)
	} else {
		u += "?q=" + url.QueryEscape(query)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.InvalidInput, "failed to build search request")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.ServiceUnavailable, "search service unreachable")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ServiceUnavailable, "failed to read search response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.New(errors.ServiceUnavailable,
			fmt.Sprintf("search service returned status %d", resp.StatusCode))
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, errors.Wrap(err, errors.InvalidResponse, "failed to decode search response")
	}
	return parsed.Results, nil
}

// FormatResults renders results as a compact text block for prompting.
func FormatResults(results []SearchResult) string {
	if len(results) == 0 {
		return ""
	}
	var b strings.Builder
	for _, r := range results {
		fmt.Fprintf(&b, "- %s (%s): %s\n", r.Title, r.URL, r.Snippet)
	}
	return b.String()
}
