package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/datapulse/internal/collector"
	"github.com/sells-group/datapulse/internal/inbox"
	"github.com/sells-group/datapulse/internal/model"
	"github.com/sells-group/datapulse/internal/reader"
	"github.com/sells-group/datapulse/internal/router"
	"github.com/sells-group/datapulse/pkg/jina"
)

var testImpl = &mcp.Implementation{Name: "datapulse-test", Version: "0.0.1"}

// pageCollector serves any URL under https://ok.example/.
type pageCollector struct{}

func (pageCollector) Name() string                 { return "page" }
func (pageCollector) SourceType() model.SourceType { return model.SourceGeneric }
func (pageCollector) Reliability() float64         { return 0.68 }
func (pageCollector) Tier() int                    { return collector.TierLocal }
func (pageCollector) SetupHint() string            { return "" }
func (pageCollector) CanHandle(string) bool        { return true }

func (pageCollector) Parse(_ context.Context, url string) (*model.ParseResult, error) {
	if !strings.HasPrefix(url, "https://ok.example/") {
		return nil, errors.New("not found")
	}
	return &model.ParseResult{
		URL:        url,
		Title:      "Page " + url,
		Content:    strings.Repeat("body text ", 100),
		Author:     "ok.example",
		Success:    true,
		SourceType: model.SourceGeneric,
	}, nil
}

func (pageCollector) HealthCheck(context.Context) collector.Health {
	return collector.Health{Status: collector.StatusOK, Available: true}
}

// searchPage also answers web searches with two fixed hits.
type searchPage struct{ pageCollector }

func (searchPage) Search(_ context.Context, query string, _ jina.SearchOptions) ([]jina.SearchResult, error) {
	if query == "fail" {
		return nil, errors.New("search upstream down")
	}
	return []jina.SearchResult{
		{Title: "Hit one", URL: "https://hits.example/1", Content: strings.Repeat("first hit text ", 40)},
		{Title: "Hit two", URL: "https://hits.example/2", Description: "second hit summary"},
	}, nil
}

func session(t *testing.T) *mcp.ClientSession {
	t.Helper()
	return sessionWith(t, pageCollector{})
}

func sessionWith(t *testing.T, c collector.Collector) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	in, err := inbox.Open(ctx, inbox.NewFileBackend(filepath.Join(t.TempDir(), "inbox.json")), inbox.Options{})
	require.NoError(t, err)
	srv := New(reader.New(router.New(c), in, reader.Options{}), "test")

	serverT, clientT := mcp.NewInMemoryTransports()
	go func() { _ = srv.Run(ctx, serverT) }()

	s, err := mcp.NewClient(testImpl, nil).Connect(ctx, clientT, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func call(t *testing.T, s *mcp.ClientSession, name string, args any) (string, bool) {
	t.Helper()
	res, err := s.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return tc.Text, res.IsError
}

func TestTools_Listed(t *testing.T) {
	s := session(t)
	res, err := s.ListTools(context.Background(), nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		"read_url", "read_batch", "query_inbox", "search", "detect_platform", "health", "build_digest",
	}, names)
}

func TestReadURL_ThenQueryInbox(t *testing.T) {
	s := session(t)

	text, isErr := call(t, s, "read_url", map[string]any{"url": "https://ok.example/a"})
	require.False(t, isErr, text)
	var it model.Item
	require.NoError(t, json.Unmarshal([]byte(text), &it))
	assert.Equal(t, "page", it.Parser)
	assert.Equal(t, "ok.example", it.SourceName)

	text, isErr = call(t, s, "query_inbox", map[string]any{"limit": 5})
	require.False(t, isErr)
	var items []model.Item
	require.NoError(t, json.Unmarshal([]byte(text), &items))
	require.Len(t, items, 1)
	assert.Equal(t, it.ID, items[0].ID)
}

func TestReadURL_Failures(t *testing.T) {
	s := session(t)

	text, isErr := call(t, s, "read_url", map[string]any{"url": "https://missing.example/"})
	assert.True(t, isErr)
	assert.Contains(t, text, "no parser produced successful result")

	text, isErr = call(t, s, "read_url", map[string]any{"url": "https://ok.example/b", "min_confidence": 0.99})
	assert.True(t, isErr)
	assert.Contains(t, text, "confidence below threshold")

	_, isErr = call(t, s, "read_url", map[string]any{"url": ""})
	assert.True(t, isErr)
}

func TestReadBatch(t *testing.T) {
	s := session(t)

	text, isErr := call(t, s, "read_batch", map[string]any{
		"urls": []string{"https://ok.example/1", "https://ok.example/1/", "https://bad.example/"},
	})
	require.False(t, isErr, text)
	var items []model.Item
	require.NoError(t, json.Unmarshal([]byte(text), &items))
	assert.Len(t, items, 1)
}

func TestSearch(t *testing.T) {
	s := sessionWith(t, searchPage{})

	text, isErr := call(t, s, "search", map[string]any{"query": "circuit breakers", "limit": 2})
	require.False(t, isErr, text)
	var items []model.Item
	require.NoError(t, json.Unmarshal([]byte(text), &items))
	require.Len(t, items, 2)
	assert.Equal(t, "Hit one", items[0].Title)
	assert.Contains(t, items[0].Tags, reader.SearchTag)
	q, _ := items[1].Extra.Str(model.ExtraSearchQuery)
	assert.Equal(t, "circuit breakers", q)

	text, isErr = call(t, s, "search", map[string]any{"query": "fail"})
	assert.True(t, isErr)
	assert.Contains(t, text, "search upstream down")

	_, isErr = call(t, s, "search", map[string]any{})
	assert.True(t, isErr)

	text, isErr = call(t, session(t), "search", map[string]any{"query": "x"})
	assert.True(t, isErr)
	assert.Contains(t, text, "no search-capable collector")
}

func TestDetectPlatformAndHealth(t *testing.T) {
	s := session(t)

	text, isErr := call(t, s, "detect_platform", map[string]any{"url": "https://ok.example/x"})
	require.False(t, isErr)
	assert.Equal(t, "page", text)

	text, _ = call(t, s, "detect_platform", map[string]any{"url": "https://nope.example/"})
	assert.Equal(t, "generic", text)

	text, isErr = call(t, s, "health", map[string]any{})
	require.False(t, isErr)
	var h reader.Health
	require.NoError(t, json.Unmarshal([]byte(text), &h))
	assert.True(t, h.OK)
	assert.Equal(t, []string{"page"}, h.Parsers)
}

func TestBuildDigest(t *testing.T) {
	s := session(t)

	text, isErr := call(t, s, "build_digest", map[string]any{})
	require.False(t, isErr)
	var d map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &d))
	assert.Equal(t, "1.0", d["version"])
	assert.Equal(t, []any{}, d["primary"])

	_, isErr = call(t, s, "read_url", map[string]any{"url": "https://ok.example/d"})
	require.False(t, isErr)
	text, _ = call(t, s, "build_digest", map[string]any{"top_n": 1})
	require.NoError(t, json.Unmarshal([]byte(text), &d))
	assert.Len(t, d["primary"], 1)
}
