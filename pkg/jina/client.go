// Package jina provides a client for the Jina AI reader and search API.
package jina

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/datapulse/internal/resilience"
)

// Default endpoints.
const (
	DefaultReadURL   = "https://r.jina.ai"
	DefaultSearchURL = "https://s.jina.ai"
)

// Client defines the Jina AI Reader operations. Each call is a single
// attempt; callers layer retry and circuit breaking on top.
type Client interface {
	// Read fetches a URL via Jina AI Reader and returns the extracted content.
	Read(ctx context.Context, targetURL string, opts ReadOptions) (*ReadResponse, error)
	// Search performs a web search via Jina AI Search and returns results.
	Search(ctx context.Context, query string, opts SearchOptions) (*SearchResponse, error)
	// HasKey reports whether an API key is configured.
	HasKey() bool
}

// ReadOptions tunes one reader request.
type ReadOptions struct {
	// Format is markdown, html, text or screenshot. Empty means markdown.
	Format          string
	TargetSelector  string
	WaitForSelector string
	NoCache         bool
	// WithGeneratedAlt asks the reader to caption images.
	WithGeneratedAlt bool
	Cookie           string
	ProxyURL         string
	// PostMode sends the target in a POST body, needed for hash-routed SPAs.
	PostMode bool
}

// SearchOptions tunes one search request.
type SearchOptions struct {
	// Sites restricts results to these domains.
	Sites []string
	// Limit caps the number of results. Zero means 5.
	Limit int
}

// ReadResponse is the parsed Jina API response.
type ReadResponse struct {
	Code int      `json:"code"`
	Data ReadData `json:"data"`
}

// ReadData holds the content from Jina.
type ReadData struct {
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Description string    `json:"description"`
	Content     string    `json:"content"`
	Usage       ReadUsage `json:"usage"`
}

// ReadUsage tracks token consumption.
type ReadUsage struct {
	Tokens int `json:"tokens"`
}

// SearchResponse is the parsed Jina Search API response.
type SearchResponse struct {
	Code int            `json:"code"`
	Data []SearchResult `json:"data"`
}

// SearchResult represents a single search result.
type SearchResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Content     string `json:"content"`
	Description string `json:"description"`
}

// Option configures the Jina client.
type Option func(*httpClient)

// WithBaseURL sets a custom reader base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithSearchBaseURL sets a custom search base URL (for testing).
func WithSearchBaseURL(u string) Option {
	return func(c *httpClient) {
		c.searchBaseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey        string
	baseURL       string
	searchBaseURL string
	http          *http.Client
}

// NewClient creates a new Jina AI client. The API key is optional for
// reads and required for search.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:        apiKey,
		baseURL:       DefaultReadURL,
		searchBaseURL: DefaultSearchURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) HasKey() bool { return c.apiKey != "" }

// do executes one request and maps non-2xx statuses onto the resilience
// error taxonomy.
func (c *httpClient) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, eris.Wrap(err, "jina: request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, resp.StatusCode, eris.Wrap(err, "jina: read response body")
	}
	return body, resp.StatusCode, statusError(resp, body)
}

func statusError(resp *http.Response, body []byte) error {
	code := resp.StatusCode
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusTooManyRequests:
		return resilience.NewRateLimitError(fmt.Sprintf("jina: status %d", code), resp.Header.Get("Retry-After"))
	case resilience.IsTransientHTTPStatus(code):
		return resilience.NewTransientError(eris.Errorf("jina: status %d: %s", code, snippet(body)), code)
	case code == http.StatusUnprocessableEntity:
		return nil
	default:
		return eris.Errorf("jina: unexpected status %d: %s", code, snippet(body))
	}
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

func (c *httpClient) Read(ctx context.Context, targetURL string, opts ReadOptions) (*ReadResponse, error) {
	var (
		req *http.Request
		err error
	)
	if opts.PostMode {
		payload, _ := json.Marshal(map[string]string{"url": targetURL})
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/", bytes.NewReader(payload))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/%s", c.baseURL, targetURL), nil)
	}
	if err != nil {
		return nil, eris.Wrap(err, "jina: create request")
	}
	c.setReadHeaders(req, opts)

	body, statusCode, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if statusCode == http.StatusUnprocessableEntity {
		return nil, eris.Errorf("jina: target rejected: %s", snippet(body))
	}

	var result ReadResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "jina: unmarshal response")
	}
	if result.Data.URL == "" {
		result.Data.URL = targetURL
	}
	return &result, nil
}

func (c *httpClient) setReadHeaders(req *http.Request, opts ReadOptions) {
	format := opts.Format
	if format == "" {
		format = "markdown"
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Return-Format", format)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if opts.TargetSelector != "" {
		req.Header.Set("X-Target-Selector", opts.TargetSelector)
	}
	if opts.WaitForSelector != "" {
		req.Header.Set("X-Wait-For-Selector", opts.WaitForSelector)
	}
	if opts.NoCache {
		req.Header.Set("X-No-Cache", "true")
	}
	if opts.WithGeneratedAlt {
		req.Header.Set("X-With-Generated-Alt", "true")
	}
	if opts.Cookie != "" {
		req.Header.Set("X-Set-Cookie", opts.Cookie)
	}
	if opts.ProxyURL != "" {
		req.Header.Set("X-Proxy-Url", opts.ProxyURL)
	}
}

func (c *httpClient) Search(ctx context.Context, query string, opts SearchOptions) (*SearchResponse, error) {
	if c.apiKey == "" {
		return nil, eris.New("jina: api key required for search")
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 5
	}

	q := query
	for _, s := range opts.Sites {
		q += " site:" + s
	}
	reqURL := fmt.Sprintf("%s/%s", c.searchBaseURL, url.PathEscape(q))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "jina: create search request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	body, statusCode, err := c.do(req)
	if err != nil {
		return nil, err
	}

	// Jina returns 422 when no results are available for the query.
	if statusCode == http.StatusUnprocessableEntity {
		return &SearchResponse{Code: statusCode}, nil
	}

	var result SearchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "jina: unmarshal search response")
	}
	kept := result.Data[:0]
	for _, r := range result.Data {
		if r.URL == "" {
			continue
		}
		kept = append(kept, r)
		if len(kept) == limit {
			break
		}
	}
	result.Data = kept
	return &result, nil
}
