package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/datapulse/internal/catalog"
	"github.com/sells-group/datapulse/internal/collector"
	"github.com/sells-group/datapulse/internal/config"
	"github.com/sells-group/datapulse/internal/digest"
	"github.com/sells-group/datapulse/internal/fetcher"
	"github.com/sells-group/datapulse/internal/inbox"
	"github.com/sells-group/datapulse/internal/ranking"
	"github.com/sells-group/datapulse/internal/reader"
	"github.com/sells-group/datapulse/internal/resilience"
	"github.com/sells-group/datapulse/internal/router"
	"github.com/sells-group/datapulse/pkg/firecrawl"
	"github.com/sells-group/datapulse/pkg/jina"
)

// appEnv holds the initialized dependencies shared by the commands.
type appEnv struct {
	Reader   *reader.Reader
	Inbox    *inbox.Inbox
	Catalog  *catalog.Catalog
	Breakers *resilience.ServiceBreakers
	closers  []func() error
}

// Close releases backend resources in reverse order of creation.
func (e *appEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			zap.L().Warn("close failed", zap.Error(err))
		}
	}
}

// openBackend picks the inbox persistence layer named by the config.
func openBackend(ctx context.Context, c config.InboxConfig) (inbox.Backend, func() error, error) {
	switch c.Backend {
	case "", "file":
		return inbox.NewFileBackend(c.Path), nil, nil
	case "sqlite":
		dsn := c.DSN
		if dsn == "" {
			dsn = "datapulse.db"
		}
		b, err := inbox.NewSQLiteBackend(ctx, dsn)
		if err != nil {
			return nil, nil, err
		}
		return b, b.Close, nil
	case "postgres":
		b, err := inbox.NewPostgresBackend(ctx, c.DSN)
		if err != nil {
			return nil, nil, err
		}
		if err := b.Migrate(ctx); err != nil {
			b.Close() //nolint:errcheck
			return nil, nil, err
		}
		return b, b.Close, nil
	default:
		return nil, nil, eris.Errorf("unsupported inbox backend: %s", c.Backend)
	}
}

// buildRouter registers the collectors in fallback order: platform
// adapters first, then the generic HTML reader, then the Jina and
// Firecrawl proxies when enabled.
func buildRouter(c *config.Config, breakers *resilience.ServiceBreakers) *router.Router {
	retry := resilience.FromRetryConfig(c.Retry.MaxAttempts, c.Retry.BaseDelayMs, c.Retry.MaxDelayMs, c.Retry.BackoffFactor)

	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:    c.Reader.UserAgent,
		Timeout:      time.Duration(c.Reader.TimeoutSecs) * time.Second,
		MaxBodyBytes: c.Fetch.MaxBodyBytes,
		Retry:        retry,
		HostRate:     rate.Limit(c.Fetch.HostRate),
		HostBurst:    c.Fetch.HostBurst,
	})

	rt := router.New(
		collector.NewTwitter(f, collector.TwitterOptions{
			APIBase:         c.Twitter.APIBase,
			NitterInstances: c.Twitter.NitterInstances,
		}),
		collector.NewReddit(f),
		collector.NewHackerNews(f, collector.HackerNewsOptions{APIBase: c.HackerNews.APIBase}),
		collector.NewArxiv(f, collector.ArxivOptions{APIBase: c.Arxiv.APIBase}),
		collector.NewRSS(f),
		collector.NewGeneric(f),
	)

	if c.Jina.Enabled {
		var opts []jina.Option
		if c.Jina.BaseURL != "" {
			opts = append(opts, jina.WithBaseURL(c.Jina.BaseURL))
		}
		if c.Jina.SearchURL != "" {
			opts = append(opts, jina.WithSearchBaseURL(c.Jina.SearchURL))
		}
		client := jina.NewClient(c.Jina.APIKey, opts...)
		rt.Register(collector.NewJina(client, breakers, collector.JinaOptions{
			Retry:     retry,
			CacheTTL:  time.Duration(c.Jina.CacheTTLSecs) * time.Second,
			CacheSize: c.Jina.CacheSize,
		}), false)
	}

	if c.Firecrawl.Enabled {
		var opts []firecrawl.Option
		if c.Firecrawl.BaseURL != "" {
			opts = append(opts, firecrawl.WithBaseURL(c.Firecrawl.BaseURL))
		}
		rt.Register(collector.NewFirecrawl(firecrawl.NewClient(c.Firecrawl.APIKey, opts...), breakers, collector.FirecrawlOptions{
			Retry:   retry,
			WaitFor: time.Duration(c.Firecrawl.WaitForSecs) * time.Second,
		}), false)
	}
	return rt
}

// newRanker builds the ranking engine from config.
func newRanker(c config.RankingConfig) (*ranking.Engine, error) {
	w := ranking.Weights{
		Confidence:    c.Weights.Confidence,
		Authority:     c.Weights.Authority,
		Corroboration: c.Weights.Corroboration,
		Recency:       c.Weights.Recency,
	}
	halfLife := time.Duration(c.HalfLifeHours * float64(time.Hour))
	return ranking.New(w, halfLife)
}

// initEnv wires config into a ready Reader.
func initEnv(ctx context.Context, c *config.Config) (*appEnv, error) {
	env := &appEnv{}

	backend, closeFn, err := openBackend(ctx, c.Inbox)
	if err != nil {
		return nil, eris.Wrap(err, "open inbox backend")
	}
	if closeFn != nil {
		env.closers = append(env.closers, closeFn)
	}

	in, err := inbox.Open(ctx, backend, inbox.Options{MaxItems: c.Inbox.MaxItems, KeepDays: c.Inbox.KeepDays})
	if err != nil {
		env.Close()
		return nil, eris.Wrap(err, "open inbox")
	}
	env.Inbox = in

	ranker, err := newRanker(c.Ranking)
	if err != nil {
		env.Close()
		return nil, err
	}

	env.Catalog = catalog.Open(c.Catalog.Path)
	env.Breakers = resilience.NewServiceBreakers(resilience.FromCircuitConfig(
		c.Circuit.FailureThreshold, c.Circuit.RecoveryTimeoutSecs, c.Circuit.RateLimitWeight,
	))

	env.Reader = reader.New(buildRouter(c, env.Breakers), in, reader.Options{
		Catalog: env.Catalog,
		Ranker:  ranker,
		Digest: digest.Options{
			TopN:         c.Digest.TopN,
			SecondaryN:   c.Digest.SecondaryN,
			MaxPerSource: c.Digest.MaxPerSource,
		},
		Concurrency:  c.Reader.Concurrency,
		Profile:      c.Catalog.Profile,
		MarkdownPath: c.Reader.MarkdownPath,
		AutoRegister: c.Reader.AutoRegister,
	})

	zap.L().Debug("environment ready",
		zap.String("inbox_backend", c.Inbox.Backend),
		zap.Int("stored", in.Len()),
		zap.Strings("parsers", env.Reader.Router().AvailableParsers()),
	)
	return env, nil
}
