package collector

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/datapulse/internal/model"
	"github.com/sells-group/datapulse/internal/resilience"
	"github.com/sells-group/datapulse/pkg/jina"
)

type fakeJina struct {
	key       bool
	reads     atomic.Int32
	searches  atomic.Int32
	readResp  *jina.ReadResponse
	readErr   error
	searchErr error
	lastOpts  jina.ReadOptions
}

func (f *fakeJina) Read(_ context.Context, _ string, opts jina.ReadOptions) (*jina.ReadResponse, error) {
	f.reads.Add(1)
	f.lastOpts = opts
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.readResp, nil
}

func (f *fakeJina) Search(_ context.Context, _ string, _ jina.SearchOptions) (*jina.SearchResponse, error) {
	f.searches.Add(1)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return &jina.SearchResponse{Code: 200, Data: []jina.SearchResult{{Title: "hit", URL: "https://hit.example"}}}, nil
}

func (f *fakeJina) HasKey() bool { return f.key }

var longBody = strings.Repeat("Readable proxied article text. ", 10)

func fastJina(client jina.Client, opts JinaOptions) *Jina {
	opts.Retry = resilience.RetryConfig{MaxAttempts: 1, InitialBackoff: time.Millisecond}
	breakers := resilience.NewServiceBreakers(resilience.CircuitBreakerConfig{FailureThreshold: 2, RecoveryTimeout: time.Hour})
	return NewJina(client, breakers, opts)
}

func TestJina_ParseAndCache(t *testing.T) {
	fake := &fakeJina{readResp: &jina.ReadResponse{Code: 200, Data: jina.ReadData{
		Title:   "Proxied",
		Content: longBody,
		Usage:   jina.ReadUsage{Tokens: 77},
	}}}
	j := fastJina(fake, JinaOptions{Read: jina.ReadOptions{TargetSelector: "article"}})

	res, err := j.Parse(context.Background(), "https://spa.example.com/a")
	require.NoError(t, err)
	assert.Equal(t, "Proxied", res.Title)
	assert.Equal(t, []string{model.FlagProxy, "css_targeted"}, res.ConfidenceFlags)
	assert.Equal(t, []string{"jina", "generic"}, res.Tags)
	tokens, _ := res.Extra.Num("tokens")
	assert.Equal(t, 77.0, tokens)
	assert.Equal(t, "article", fake.lastOpts.TargetSelector)

	res.Tags = append(res.Tags, "mutated")
	again, err := j.Parse(context.Background(), "https://spa.example.com/a")
	require.NoError(t, err)
	assert.Equal(t, int32(1), fake.reads.Load())
	assert.Equal(t, []string{"jina", "generic"}, again.Tags)
}

func TestJina_TitleFromFirstLine(t *testing.T) {
	fake := &fakeJina{readResp: &jina.ReadResponse{Data: jina.ReadData{Content: "\n## Heading Title\n" + longBody}}}
	res, err := fastJina(fake, JinaOptions{}).Parse(context.Background(), "https://example.com/x")
	require.NoError(t, err)
	assert.Equal(t, "Heading Title", res.Title)
	assert.NotContains(t, res.Content, "Heading Title")
}

func TestJina_RejectsChallengePages(t *testing.T) {
	fake := &fakeJina{readResp: &jina.ReadResponse{Data: jina.ReadData{
		Title:   "Just a moment...",
		Content: "Just a moment... Checking your browser before accessing the site. " + strings.Repeat(".", 60),
	}}}
	_, err := fastJina(fake, JinaOptions{}).Parse(context.Background(), "https://example.com/x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no usable content")
}

func TestJina_BreakerOpensOnReadOnly(t *testing.T) {
	fake := &fakeJina{key: true, readErr: resilience.NewRateLimitError("jina: status 429", "")}
	j := fastJina(fake, JinaOptions{})

	_, err := j.Parse(context.Background(), "https://example.com/1")
	require.Error(t, err)
	assert.True(t, resilience.IsRateLimited(err))

	_, err = j.Parse(context.Background(), "https://example.com/2")
	require.Error(t, err)
	assert.True(t, resilience.IsCircuitOpen(err))
	assert.Equal(t, int32(1), fake.reads.Load())

	h := j.HealthCheck(context.Background())
	assert.Equal(t, StatusErr, h.Status)
	assert.False(t, h.Available)

	results, err := j.Search(context.Background(), "still works", jina.SearchOptions{})
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestJina_InvalidURL(t *testing.T) {
	j := fastJina(&fakeJina{}, JinaOptions{})
	assert.False(t, j.CanHandle("not a url"))
	_, err := j.Parse(context.Background(), "example.com/no-scheme")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid url")
}

func TestJina_Health(t *testing.T) {
	assert.Equal(t, StatusWarn, fastJina(&fakeJina{}, JinaOptions{}).HealthCheck(context.Background()).Status)
	assert.Equal(t, StatusOK, fastJina(&fakeJina{key: true}, JinaOptions{}).HealthCheck(context.Background()).Status)
	j := fastJina(&fakeJina{}, JinaOptions{})
	assert.Equal(t, "Set JINA_API_KEY for higher rate limits", j.SetupHint())
	assert.Equal(t, TierPublic, j.Tier())
}
