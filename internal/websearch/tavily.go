// Package websearch provides the optional web-search capability attached to
// agents, backed by the Tavily search API.
package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/mindmark/mindmark-server/internal/model"
)

// Searcher returns markdown-formatted search results for a query.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// TavilyClient calls the Tavily search API.
type TavilyClient struct {
	client    *resty.Client
	apiKey    string
	maxTokens int
}

// NewTavilyClient creates a search client. maxTokens caps the size of the
// markdown result fed back to the model.
func NewTavilyClient(baseURL, apiKey string, maxTokens int) *TavilyClient {
	c := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetTimeout(30 * time.Second)
	return &TavilyClient{client: c, apiKey: apiKey, maxTokens: maxTokens}
}

type searchRequest struct {
	APIKey        string `json:"api_key"`
	Query         string `json:"query"`
	SearchDepth   string `json:"search_depth"`
	IncludeAnswer bool   `json:"include_answer"`
	MaxResults    int    `json:"max_results"`
}

type searchResponse struct {
	Answer  string `json:"answer"`
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

func (t *TavilyClient) Search(ctx context.Context, query string) (string, error) {
	reqBody := searchRequest{
		APIKey:        t.apiKey,
		Query:         query,
		SearchDepth:   "advanced",
		IncludeAnswer: true,
		MaxResults:    5,
	}

	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(&reqBody).
		Post("/search")
	if err != nil {
		return "", fmt.Errorf("search request: %v: %w", err, model.ErrUnavailable)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("search status %d: %w", resp.StatusCode(), model.ErrUnavailable)
	}

	var out searchResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", fmt.Errorf("decode search response: %w", err)
	}

	var b strings.Builder
	if out.Answer != "" {
		fmt.Fprintf(&b, "**Answer:** %s\n\n", out.Answer)
	}
	for _, r := range out.Results {
		fmt.Fprintf(&b, "### [%s](%s)\n%s\n\n", r.Title, r.URL, r.Content)
	}
	return capTokens(b.String(), t.maxTokens), nil
}

// capTokens truncates markdown to roughly maxTokens tokens. A token averages
// about four bytes of English text.
func capTokens(s string, maxTokens int) string {
	if maxTokens <= 0 {
		return s
	}
	limit := maxTokens * 4
	if len(s) <= limit {
		return s
	}
	cut := s[:limit]
	// avoid splitting a multi-byte rune
	for len(cut) > 0 && cut[len(cut)-1]&0xC0 == 0x80 {
		cut = cut[:len(cut)-1]
	}
	return cut + "\n\n*(results truncated)*"
}
