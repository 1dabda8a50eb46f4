package collector

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/datapulse/internal/cache"
	"github.com/sells-group/datapulse/internal/model"
	"github.com/sells-group/datapulse/internal/resilience"
	"github.com/sells-group/datapulse/internal/urlkit"
	"github.com/sells-group/datapulse/pkg/jina"
)

// Breaker names used by the Jina collector.
const (
	JinaReadBreaker   = "jina.read"
	JinaSearchBreaker = "jina.search"
)

const (
	minJinaContent = 100
	maxJinaTitle   = 200
)

// JinaOptions configures the Jina collector.
type JinaOptions struct {
	Read     jina.ReadOptions
	Retry    resilience.RetryConfig
	CacheTTL time.Duration
	// CacheSize bounds the result cache. Zero uses the cache default.
	CacheSize int
}

// Jina reads any page through the Jina reader proxy. Reads and searches
// have independent circuit breakers.
type Jina struct {
	meta
	client jina.Client
	opts   JinaOptions
	read   *resilience.CircuitBreaker
	search *resilience.CircuitBreaker
	cache  *cache.TTL[string, *model.ParseResult]
}

// NewJina creates the Jina collector. Breakers come from the shared
// registry so their state shows up in diagnostics.
func NewJina(client jina.Client, breakers *resilience.ServiceBreakers, opts JinaOptions) *Jina {
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = resilience.RetryConfig{MaxAttempts: 2, InitialBackoff: time.Second, MaxBackoff: 10 * time.Second}
	}
	return &Jina{
		meta: meta{
			name:       "jina",
			sourceType: model.SourceGeneric,
			tier:       TierPublic,
			setupHint:  "Set JINA_API_KEY for higher rate limits",
		},
		client: client,
		opts:   opts,
		read:   breakers.Get(JinaReadBreaker),
		search: breakers.Get(JinaSearchBreaker),
		cache:  cache.New[string, *model.ParseResult](opts.CacheSize, opts.CacheTTL),
	}
}

func (j *Jina) CanHandle(rawURL string) bool {
	u, err := url.Parse(rawURL)
	return err == nil && u.Scheme != "" && u.Host != ""
}

func (j *Jina) HealthCheck(_ context.Context) Health {
	if j.read.State() == resilience.CircuitOpen {
		return Health{Status: StatusErr, Message: "read circuit open", Available: false}
	}
	if j.client.HasKey() {
		return Health{Status: StatusOK, Message: "JINA_API_KEY set", Available: true}
	}
	return Health{Status: StatusWarn, Message: "JINA_API_KEY not set (anonymous rate limits apply)", Available: true}
}

// Parse reads the URL through the reader proxy. Successful results are
// cached per URL.
func (j *Jina) Parse(ctx context.Context, rawURL string) (*model.ParseResult, error) {
	if !j.CanHandle(rawURL) {
		return nil, eris.Errorf("jina: invalid url %q", rawURL)
	}
	if cached, ok := j.cache.Get(rawURL); ok {
		return cloneResult(cached), nil
	}

	retry := j.opts.Retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("jina", "read")
	}
	resp, err := resilience.ExecuteVal(ctx, j.read, func(ctx context.Context) (*jina.ReadResponse, error) {
		return resilience.DoVal(ctx, retry, func(ctx context.Context) (*jina.ReadResponse, error) {
			return j.client.Read(ctx, rawURL, j.opts.Read)
		})
	})
	if err != nil {
		return nil, eris.Wrapf(err, "jina: read %s", rawURL)
	}

	title, content := splitTitle(resp.Data.Title, resp.Data.Content)
	if len(content) < minJinaContent || looksLikeChallenge(content) {
		return nil, eris.New("jina: response has no usable content")
	}

	res := j.success(rawURL, urlkit.Truncate(urlkit.CleanText(title), maxJinaTitle), urlkit.CleanText(content), "")
	res.Tags = []string{"jina", string(j.sourceType)}
	res.ConfidenceFlags = j.flags()
	res.Extra["collector"] = model.String("jina")
	if resp.Data.Usage.Tokens > 0 {
		res.Extra["tokens"] = model.Number(float64(resp.Data.Usage.Tokens))
	}
	if resp.Data.Description != "" {
		res.Extra["description"] = model.String(resp.Data.Description)
	}

	j.cache.Set(rawURL, cloneResult(res))
	return res, nil
}

// Search runs a web search behind the search breaker.
func (j *Jina) Search(ctx context.Context, query string, opts jina.SearchOptions) ([]jina.SearchResult, error) {
	resp, err := resilience.ExecuteVal(ctx, j.search, func(ctx context.Context) (*jina.SearchResponse, error) {
		return j.client.Search(ctx, query, opts)
	})
	if err != nil {
		return nil, eris.Wrap(err, "jina: search")
	}
	return resp.Data, nil
}

func (j *Jina) flags() []string {
	flags := []string{model.FlagProxy}
	if j.opts.Read.TargetSelector != "" {
		flags = append(flags, "css_targeted")
	}
	if j.opts.Read.WithGeneratedAlt {
		flags = append(flags, "image_captioned")
	}
	return flags
}

// splitTitle uses the reader's title when present, otherwise the first
// non-blank line of the markdown.
func splitTitle(title, content string) (string, string) {
	if strings.TrimSpace(title) != "" {
		return strings.TrimSpace(title), strings.TrimSpace(content)
	}
	var lines []string
	for _, ln := range strings.Split(content, "\n") {
		if strings.TrimSpace(ln) != "" {
			lines = append(lines, ln)
		}
	}
	if len(lines) == 0 {
		return "", ""
	}
	return strings.TrimSpace(strings.TrimLeft(lines[0], "#")), strings.TrimSpace(strings.Join(lines[1:], "\n"))
}

func cloneResult(r *model.ParseResult) *model.ParseResult {
	cp := *r
	cp.Tags = append([]string(nil), r.Tags...)
	cp.ConfidenceFlags = append([]string(nil), r.ConfidenceFlags...)
	cp.Extra = r.Extra.Clone()
	return &cp
}
