// Package tavily implements converse.Searcher against the Tavily search API.
package tavily

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	nurl "net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"

	"github.com/avendel/converse"
)

const defaultBaseURL = "https://api.tavily.com"

// Client queries the Tavily search API.
//
// When includeAnswer is requested and Tavily returns a synthesized answer,
// the answer becomes the first WebResult; raw hits follow. With content
// fetching enabled, each hit's snippet is replaced by readable text extracted
// from the page itself when the fetch succeeds.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client

	fetchContent bool
	fetchLimit   int
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint. Used in tests.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithContentFetch enables fetching each result URL and extracting its
// readable text, up to limit bytes of extracted text per page. Failed fetches
// keep the Tavily snippet.
func WithContentFetch(limit int) Option {
	return func(c *Client) {
		c.fetchContent = true
		c.fetchLimit = limit
	}
}

// New creates a Tavily client.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		fetchLimit: 8000,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type searchRequest struct {
	APIKey        string `json:"api_key"`
	Query         string `json:"query"`
	MaxResults    int    `json:"max_results"`
	IncludeAnswer bool   `json:"include_answer"`
}

type searchResponse struct {
	Answer  string `json:"answer"`
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// Search runs the query and returns at most maxResults hits, best first.
// An empty slice with nil error means the query matched nothing.
func (c *Client) Search(ctx context.Context, query string, maxResults int, includeAnswer bool) ([]converse.WebResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("tavily: empty query")
	}
	if maxResults <= 0 {
		maxResults = 1
	}

	payload, err := json.Marshal(searchRequest{
		APIKey:        c.apiKey,
		Query:         query,
		MaxResults:    maxResults,
		IncludeAnswer: includeAnswer,
	})
	if err != nil {
		return nil, fmt.Errorf("tavily: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("tavily: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tavily: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &converse.ErrHTTP{
			Status:     resp.StatusCode,
			Body:       string(body),
			RetryAfter: converse.ParseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("tavily: decode response: %w", err)
	}

	var out []converse.WebResult
	if includeAnswer && strings.TrimSpace(parsed.Answer) != "" {
		out = append(out, converse.WebResult{Title: "Answer", Content: parsed.Answer})
	}
	for _, r := range parsed.Results {
		content := r.Content
		if c.fetchContent {
			if text := c.extractPage(ctx, r.URL); text != "" {
				content = text
			}
		}
		out = append(out, converse.WebResult{Title: r.Title, URL: r.URL, Content: content})
	}

	if len(out) > maxResults {
		out = out[:maxResults]
	}
	return out, nil
}

// extractPage downloads the URL and returns its readable text, or "" if the
// fetch or extraction fails. Failures are silent; the snippet stands in.
func (c *Client) extractPage(ctx context.Context, url string) string {
	fetchCtx, cancel := context.WithTimeout(ctx, 8*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, url, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; converse/1.0)")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return ""
	}

	pageURL, err := nurl.Parse(url)
	if err != nil {
		return ""
	}

	article, err := readability.FromReader(io.LimitReader(resp.Body, 512<<10), pageURL)
	if err != nil {
		return ""
	}

	text := strings.TrimSpace(article.TextContent)
	if c.fetchLimit > 0 && len(text) > c.fetchLimit {
		text = text[:c.fetchLimit]
	}
	return text
}

var _ converse.Searcher = (*Client)(nil)
