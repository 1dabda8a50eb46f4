package jina

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/datapulse/internal/resilience"
)

func TestRead_Success(t *testing.T) {
	t.Parallel()

	want := ReadResponse{
		Code: 200,
		Data: ReadData{
			Title:   "Launch notes",
			URL:     "https://blog.example.com/launch",
			Content: "# Launch notes\n\nWe shipped.",
			Usage:   ReadUsage{Tokens: 2150},
		},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "markdown", r.Header.Get("X-Return-Format"))
		assert.Equal(t, "/https://blog.example.com/launch", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(want)
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	got, err := client.Read(context.Background(), "https://blog.example.com/launch", ReadOptions{})

	require.NoError(t, err)
	assert.Equal(t, want.Code, got.Code)
	assert.Equal(t, want.Data.Title, got.Data.Title)
	assert.Equal(t, want.Data.Content, got.Data.Content)
	assert.Equal(t, want.Data.Usage.Tokens, got.Data.Usage.Tokens)
}

func TestRead_OptionHeaders(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text", r.Header.Get("X-Return-Format"))
		assert.Equal(t, "article", r.Header.Get("X-Target-Selector"))
		assert.Equal(t, "#main", r.Header.Get("X-Wait-For-Selector"))
		assert.Equal(t, "true", r.Header.Get("X-No-Cache"))
		assert.Equal(t, "true", r.Header.Get("X-With-Generated-Alt"))
		assert.Equal(t, "sid=1", r.Header.Get("X-Set-Cookie"))
		assert.Equal(t, "http://proxy:8080", r.Header.Get("X-Proxy-Url"))
		assert.Empty(t, r.Header.Get("Authorization"))

		json.NewEncoder(w).Encode(ReadResponse{Code: 200, Data: ReadData{Content: "ok"}})
	}))
	defer srv.Close()

	client := NewClient("", WithBaseURL(srv.URL))
	got, err := client.Read(context.Background(), "https://example.com", ReadOptions{
		Format:           "text",
		TargetSelector:   "article",
		WaitForSelector:  "#main",
		NoCache:          true,
		WithGeneratedAlt: true,
		Cookie:           "sid=1",
		ProxyURL:         "http://proxy:8080",
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got.Data.Content)
	assert.Equal(t, "https://example.com", got.Data.URL)
}

func TestRead_PostMode(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"url":"https://app.example.com/#/page"}`, string(body))

		json.NewEncoder(w).Encode(ReadResponse{Code: 200, Data: ReadData{Title: "SPA"}})
	}))
	defer srv.Close()

	client := NewClient("k", WithBaseURL(srv.URL))
	got, err := client.Read(context.Background(), "https://app.example.com/#/page", ReadOptions{PostMode: true})

	require.NoError(t, err)
	assert.Equal(t, "SPA", got.Data.Title)
}

func TestRead_RateLimited(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"rate limit exceeded"}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.Read(context.Background(), "https://example.com", ReadOptions{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.True(t, resilience.IsRateLimited(err))
	assert.Equal(t, 7*time.Second, resilience.RetryAfterOf(err))
}

func TestRead_ServerErrorIsTransient(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`service unavailable`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.Read(context.Background(), "https://example.com", ReadOptions{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.True(t, resilience.IsTransient(err))
	assert.Equal(t, int32(1), attempts.Load())
}

func TestRead_ClientErrorIsPermanent(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.Read(context.Background(), "https://example.com", ReadOptions{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.False(t, resilience.IsTransient(err))
}

func TestRead_MalformedJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.Read(context.Background(), "https://example.com", ReadOptions{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal")
}

func TestRead_ContextCancellation(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.Read(ctx, "https://example.com", ReadOptions{})

	require.Error(t, err)
}

func TestWithHTTPClient(t *testing.T) {
	t.Parallel()
	customClient := &http.Client{}
	c := NewClient("test-key", WithHTTPClient(customClient))
	hc := c.(*httpClient)
	assert.Equal(t, customClient, hc.http)
}

func TestNewClient_Defaults(t *testing.T) {
	t.Parallel()
	c := NewClient("my-key")
	hc := c.(*httpClient)
	assert.Equal(t, "my-key", hc.apiKey)
	assert.Equal(t, DefaultReadURL, hc.baseURL)
	assert.Equal(t, DefaultSearchURL, hc.searchBaseURL)
	assert.Equal(t, 30*time.Second, hc.http.Timeout)
	assert.True(t, c.HasKey())
	assert.False(t, NewClient("").HasKey())
}

func TestSearch_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Empty(t, r.Header.Get("X-Return-Format"))
		assert.Equal(t, "/golang release site:go.dev site:github.com", r.URL.Path)

		json.NewEncoder(w).Encode(SearchResponse{
			Code: 200,
			Data: []SearchResult{
				{Title: "Go 1.25", URL: "https://go.dev/blog/go1.25"},
				{Title: "no url"},
				{Title: "Release notes", URL: "https://go.dev/doc/go1.25"},
				{Title: "Tags", URL: "https://github.com/golang/go/tags"},
			},
		})
	}))
	defer srv.Close()

	client := NewClient("test-key", WithSearchBaseURL(srv.URL))
	got, err := client.Search(context.Background(), "golang release", SearchOptions{
		Sites: []string{"go.dev", "github.com"},
		Limit: 2,
	})

	require.NoError(t, err)
	require.Len(t, got.Data, 2)
	assert.Equal(t, "https://go.dev/blog/go1.25", got.Data[0].URL)
	assert.Equal(t, "https://go.dev/doc/go1.25", got.Data[1].URL)
}

func TestSearch_RequiresKey(t *testing.T) {
	t.Parallel()

	_, err := NewClient("").Search(context.Background(), "anything", SearchOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api key required")
}

func TestSearch_NoResults(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	client := NewClient("test-key", WithSearchBaseURL(srv.URL))
	got, err := client.Search(context.Background(), "nothing here", SearchOptions{})

	require.NoError(t, err)
	assert.Empty(t, got.Data)
	assert.Equal(t, http.StatusUnprocessableEntity, got.Code)
}

func TestSearch_RateLimited(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewClient("test-key", WithSearchBaseURL(srv.URL))
	_, err := client.Search(context.Background(), "q", SearchOptions{})

	require.Error(t, err)
	assert.True(t, resilience.IsRateLimited(err))
}

func TestSearch_MalformedJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithSearchBaseURL(srv.URL))
	_, err := client.Search(context.Background(), "test query", SearchOptions{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal")
}

func TestWithBaseURL_TrimsSlash(t *testing.T) {
	t.Parallel()
	c := NewClient("k", WithBaseURL("https://custom.reader.ai/"), WithSearchBaseURL("https://custom.search.ai/"))
	hc := c.(*httpClient)
	assert.Equal(t, "https://custom.reader.ai", hc.baseURL)
	assert.Equal(t, "https://custom.search.ai", hc.searchBaseURL)
}
