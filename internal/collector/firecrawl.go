package collector

import (
	"context"
	"net/url"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/datapulse/internal/model"
	"github.com/sells-group/datapulse/internal/resilience"
	"github.com/sells-group/datapulse/internal/urlkit"
	"github.com/sells-group/datapulse/pkg/firecrawl"
)

// FirecrawlBreaker names the Firecrawl circuit breaker.
const FirecrawlBreaker = "firecrawl.scrape"

// FirecrawlOptions configures the Firecrawl collector.
type FirecrawlOptions struct {
	Retry resilience.RetryConfig
	// WaitFor delays the scrape to let client-side rendering settle.
	WaitFor time.Duration
}

// Firecrawl renders pages through the hosted Firecrawl browser. It is the
// last fallback for script-heavy pages the other collectors cannot read.
type Firecrawl struct {
	meta
	client  firecrawl.Client
	opts    FirecrawlOptions
	breaker *resilience.CircuitBreaker
}

// NewFirecrawl creates the Firecrawl collector.
func NewFirecrawl(client firecrawl.Client, breakers *resilience.ServiceBreakers, opts FirecrawlOptions) *Firecrawl {
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = resilience.RetryConfig{MaxAttempts: 2, InitialBackoff: 2 * time.Second, MaxBackoff: 15 * time.Second}
	}
	return &Firecrawl{
		meta: meta{
			name:       "firecrawl",
			sourceType: model.SourceGeneric,
			tier:       TierSetup,
			setupHint:  "Set FIRECRAWL_API_KEY and firecrawl.enabled",
		},
		client:  client,
		opts:    opts,
		breaker: breakers.Get(FirecrawlBreaker),
	}
}

func (f *Firecrawl) CanHandle(rawURL string) bool {
	u, err := url.Parse(rawURL)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func (f *Firecrawl) HealthCheck(_ context.Context) Health {
	if f.breaker.State() == resilience.CircuitOpen {
		return Health{Status: StatusErr, Message: "scrape circuit open", Available: false}
	}
	return Health{Status: StatusOK, Message: "FIRECRAWL_API_KEY set", Available: true}
}

func (f *Firecrawl) Parse(ctx context.Context, rawURL string) (*model.ParseResult, error) {
	if !f.CanHandle(rawURL) {
		return nil, eris.Errorf("firecrawl: invalid url %q", rawURL)
	}

	retry := f.opts.Retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("firecrawl", "scrape")
	}
	req := firecrawl.ScrapeRequest{
		URL:             rawURL,
		OnlyMainContent: true,
		WaitFor:         int(f.opts.WaitFor / time.Millisecond),
	}
	resp, err := resilience.ExecuteVal(ctx, f.breaker, func(ctx context.Context) (*firecrawl.ScrapeResponse, error) {
		return resilience.DoVal(ctx, retry, func(ctx context.Context) (*firecrawl.ScrapeResponse, error) {
			return f.client.Scrape(ctx, req)
		})
	})
	if err != nil {
		return nil, eris.Wrapf(err, "firecrawl: scrape %s", rawURL)
	}

	md := resp.Data.Metadata
	if md.StatusCode >= 400 {
		return nil, eris.Errorf("firecrawl: upstream returned HTTP %d", md.StatusCode)
	}
	title, content := splitTitle(md.Title, resp.Data.Markdown)
	if len(content) < minJinaContent || looksLikeChallenge(content) {
		return nil, eris.New("firecrawl: response has no usable content")
	}

	res := f.success(rawURL, urlkit.Truncate(urlkit.CleanText(title), maxJinaTitle), urlkit.CleanText(content), "")
	res.Tags = []string{"firecrawl", string(f.sourceType)}
	res.ConfidenceFlags = []string{model.FlagProxy, "rendered"}
	res.Extra["collector"] = model.String("firecrawl")
	if md.Description != "" {
		res.Extra["description"] = model.String(md.Description)
	}
	if md.Language != "" {
		res.Extra["language"] = model.String(md.Language)
	}
	return res, nil
}
