// Package fetcher performs the outbound HTTP requests made by collectors,
// with per-host rate limiting and retry.
package fetcher

import (
	"context"
	"net/http"
)

// Request describes one GET.
type Request struct {
	URL     string
	Accept  string
	Headers map[string]string
}

// Response is a fully-read HTTP response.
type Response struct {
	URL         string
	StatusCode  int
	ContentType string
	Header      http.Header
	Body        []byte
}

// Fetcher defines the interface collectors use for remote reads.
type Fetcher interface {
	// Fetch performs the request, retrying transient failures, and returns
	// the body of a 2xx response. Non-2xx responses are mapped onto the
	// resilience error taxonomy.
	Fetch(ctx context.Context, req Request) (*Response, error)
}
