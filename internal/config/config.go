package config

import (
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Inbox      InboxConfig      `yaml:"inbox" mapstructure:"inbox"`
	Catalog    CatalogConfig    `yaml:"catalog" mapstructure:"catalog"`
	Reader     ReaderConfig     `yaml:"reader" mapstructure:"reader"`
	Ranking    RankingConfig    `yaml:"ranking" mapstructure:"ranking"`
	Digest     DigestConfig     `yaml:"digest" mapstructure:"digest"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Circuit    CircuitConfig    `yaml:"circuit" mapstructure:"circuit"`
	Fetch      FetchConfig      `yaml:"fetch" mapstructure:"fetch"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	Firecrawl  FirecrawlConfig  `yaml:"firecrawl" mapstructure:"firecrawl"`
	Twitter    TwitterConfig    `yaml:"twitter" mapstructure:"twitter"`
	HackerNews HackerNewsConfig `yaml:"hackernews" mapstructure:"hackernews"`
	Arxiv      ArxivConfig      `yaml:"arxiv" mapstructure:"arxiv"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Feed       FeedConfig       `yaml:"feed" mapstructure:"feed"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// InboxConfig selects and bounds the item store. Backend is file, sqlite
// or postgres; DSN is used by the database backends.
type InboxConfig struct {
	Path     string `yaml:"path" mapstructure:"path"`
	Backend  string `yaml:"backend" mapstructure:"backend"`
	DSN      string `yaml:"dsn" mapstructure:"dsn"`
	MaxItems int    `yaml:"max_items" mapstructure:"max_items"`
	KeepDays int    `yaml:"keep_days" mapstructure:"keep_days"`
}

// CatalogConfig locates the source catalog document.
type CatalogConfig struct {
	Path    string `yaml:"path" mapstructure:"path"`
	Profile string `yaml:"profile" mapstructure:"profile"`
}

// ReaderConfig tunes ingestion.
type ReaderConfig struct {
	Concurrency   int     `yaml:"concurrency" mapstructure:"concurrency"`
	MinConfidence float64 `yaml:"min_confidence" mapstructure:"min_confidence"`
	TimeoutSecs   int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UserAgent     string  `yaml:"user_agent" mapstructure:"user_agent"`
	MarkdownPath  string  `yaml:"markdown_path" mapstructure:"markdown_path"`
	AutoRegister  bool    `yaml:"auto_register" mapstructure:"auto_register"`
}

// RankingConfig holds the composite score weights and recency half-life.
type RankingConfig struct {
	HalfLifeHours float64        `yaml:"half_life_hours" mapstructure:"half_life_hours"`
	Weights       RankingWeights `yaml:"weights" mapstructure:"weights"`
}

// RankingWeights must sum to 1.
type RankingWeights struct {
	Confidence    float64 `yaml:"confidence" mapstructure:"confidence"`
	Authority     float64 `yaml:"authority" mapstructure:"authority"`
	Corroboration float64 `yaml:"corroboration" mapstructure:"corroboration"`
	Recency       float64 `yaml:"recency" mapstructure:"recency"`
}

// DigestConfig sizes digests.
type DigestConfig struct {
	TopN         int `yaml:"top_n" mapstructure:"top_n"`
	SecondaryN   int `yaml:"secondary_n" mapstructure:"secondary_n"`
	MaxPerSource int `yaml:"max_per_source" mapstructure:"max_per_source"`
}

// RetryConfig configures retry behavior for outbound calls.
type RetryConfig struct {
	MaxAttempts   int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	BaseDelayMs   int     `yaml:"base_delay_ms" mapstructure:"base_delay_ms"`
	MaxDelayMs    int     `yaml:"max_delay_ms" mapstructure:"max_delay_ms"`
	BackoffFactor float64 `yaml:"backoff_factor" mapstructure:"backoff_factor"`
}

// CircuitConfig configures per-service circuit breakers.
type CircuitConfig struct {
	FailureThreshold    int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	RecoveryTimeoutSecs int `yaml:"recovery_timeout_secs" mapstructure:"recovery_timeout_secs"`
	RateLimitWeight     int `yaml:"rate_limit_weight" mapstructure:"rate_limit_weight"`
}

// FetchConfig sizes the per-host politeness limiter.
type FetchConfig struct {
	HostRate     float64 `yaml:"host_rate" mapstructure:"host_rate"`
	HostBurst    int     `yaml:"host_burst" mapstructure:"host_burst"`
	MaxBodyBytes int64   `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
}

// JinaConfig holds Jina AI reader and search settings.
type JinaConfig struct {
	APIKey       string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL      string `yaml:"base_url" mapstructure:"base_url"`
	SearchURL    string `yaml:"search_url" mapstructure:"search_url"`
	CacheTTLSecs int    `yaml:"cache_ttl_secs" mapstructure:"cache_ttl_secs"`
	CacheSize    int    `yaml:"cache_size" mapstructure:"cache_size"`
	Enabled      bool   `yaml:"enabled" mapstructure:"enabled"`
}

// FirecrawlConfig enables the hosted rendering fallback.
type FirecrawlConfig struct {
	APIKey      string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	WaitForSecs int    `yaml:"wait_for_secs" mapstructure:"wait_for_secs"`
	Enabled     bool   `yaml:"enabled" mapstructure:"enabled"`
}

// HackerNewsConfig points the Hacker News collector at the Firebase API.
type HackerNewsConfig struct {
	APIBase string `yaml:"api_base" mapstructure:"api_base"`
}

// ArxivConfig points the arXiv collector at the export query API.
type ArxivConfig struct {
	APIBase string `yaml:"api_base" mapstructure:"api_base"`
}

// TwitterConfig points the X/Twitter collector at its upstreams.
type TwitterConfig struct {
	APIBase         string   `yaml:"api_base" mapstructure:"api_base"`
	NitterInstances []string `yaml:"nitter_instances" mapstructure:"nitter_instances"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr        string   `yaml:"addr" mapstructure:"addr"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// FeedConfig describes the published feeds.
type FeedConfig struct {
	Title   string `yaml:"title" mapstructure:"title"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// MonitoringConfig configures the background health alerts of the server.
type MonitoringConfig struct {
	Enabled           bool   `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL        string `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs int    `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	DLQThreshold      int    `yaml:"dlq_threshold" mapstructure:"dlq_threshold"`
}

// legacyEnv maps config keys to environment names that predate the
// DATAPULSE_<SECTION>_<KEY> scheme.
var legacyEnv = map[string][]string{
	"inbox.path":               {"DATAPULSE_INBOX_PATH", "INBOX_FILE"},
	"inbox.max_items":          {"DATAPULSE_INBOX_MAX_ITEMS", "DATAPULSE_MAX_INBOX"},
	"inbox.keep_days":          {"DATAPULSE_INBOX_KEEP_DAYS", "DATAPULSE_KEEP_DAYS"},
	"catalog.path":             {"DATAPULSE_CATALOG_PATH", "DATAPULSE_SOURCE_CATALOG"},
	"ranking.half_life_hours":  {"DATAPULSE_RANKING_HALF_LIFE_HOURS", "DATAPULSE_RECENCY_HALF_LIFE"},
	"reader.markdown_path":     {"DATAPULSE_READER_MARKDOWN_PATH", "DATAPULSE_MARKDOWN_PATH"},
	"jina.api_key":             {"DATAPULSE_JINA_API_KEY", "JINA_API_KEY"},
	"firecrawl.api_key":        {"DATAPULSE_FIRECRAWL_API_KEY", "FIRECRAWL_API_KEY"},
	"twitter.api_base":         {"DATAPULSE_TWITTER_API_BASE", "FXTWITTER_API_URL"},
	"twitter.nitter_instances": {"DATAPULSE_TWITTER_NITTER_INSTANCES", "NITTER_INSTANCES"},
}

// Load reads configuration from defaults, an optional config.yaml in the
// working directory or $HOME/.datapulse, and the environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.datapulse")

	// Environment
	v.SetEnvPrefix("DATAPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range legacyEnv {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", key)
		}
	}

	// Defaults
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "json")
	v.SetDefault("inbox.path", "unified_inbox.json")
	v.SetDefault("inbox.backend", "file")
	v.SetDefault("inbox.max_items", 500)
	v.SetDefault("inbox.keep_days", 30)
	v.SetDefault("catalog.path", "datapulse_source_catalog.json")
	v.SetDefault("catalog.profile", "default")
	v.SetDefault("reader.concurrency", 5)
	v.SetDefault("reader.min_confidence", 0.0)
	v.SetDefault("reader.timeout_secs", 30)
	v.SetDefault("reader.user_agent", "datapulse/1.0")
	v.SetDefault("ranking.half_life_hours", 24.0)
	v.SetDefault("ranking.weights.confidence", 0.25)
	v.SetDefault("ranking.weights.authority", 0.30)
	v.SetDefault("ranking.weights.corroboration", 0.25)
	v.SetDefault("ranking.weights.recency", 0.20)
	v.SetDefault("digest.top_n", 3)
	v.SetDefault("digest.secondary_n", 5)
	v.SetDefault("digest.max_per_source", 2)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay_ms", 1000)
	v.SetDefault("retry.max_delay_ms", 30000)
	v.SetDefault("retry.backoff_factor", 2.0)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.recovery_timeout_secs", 60)
	v.SetDefault("circuit.rate_limit_weight", 2)
	v.SetDefault("fetch.host_rate", 2.0)
	v.SetDefault("fetch.host_burst", 4)
	v.SetDefault("fetch.max_body_bytes", 5<<20)
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("jina.search_url", "https://s.jina.ai")
	v.SetDefault("jina.cache_ttl_secs", 300)
	v.SetDefault("jina.cache_size", 128)
	v.SetDefault("jina.enabled", true)
	v.SetDefault("firecrawl.base_url", "https://api.firecrawl.dev/v1")
	v.SetDefault("firecrawl.enabled", false)
	v.SetDefault("twitter.api_base", "https://api.fxtwitter.com")
	v.SetDefault("hackernews.api_base", "https://hacker-news.firebaseio.com/v0")
	v.SetDefault("arxiv.api_base", "https://export.arxiv.org/api/query")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("feed.title", "DataPulse")
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.dlq_threshold", 20)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validation modes.
const (
	ModeCLI   = "cli"
	ModeServe = "serve"
	ModeMCP   = "mcp"
)

// Validate reports every invalid setting for the given run mode at once.
func (c *Config) Validate(mode string) error {
	var errs []string
	add := func(format string, args ...any) { errs = append(errs, fmt.Sprintf(format, args...)) }

	switch mode {
	case ModeCLI, ModeMCP:
	case ModeServe:
		if strings.TrimSpace(c.Server.Addr) == "" {
			add("server.addr is required")
		}
		if c.Monitoring.Enabled && c.Monitoring.DLQThreshold < 1 {
			add("monitoring.dlq_threshold must be >= 1, got %d", c.Monitoring.DLQThreshold)
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Inbox.Backend {
	case "file", "sqlite":
	case "postgres":
		if c.Inbox.DSN == "" {
			add("inbox.dsn is required for the postgres backend")
		}
	default:
		add("inbox.backend must be file, sqlite or postgres, got %q", c.Inbox.Backend)
	}
	if c.Inbox.MaxItems < 1 {
		add("inbox.max_items must be >= 1, got %d", c.Inbox.MaxItems)
	}
	if c.Inbox.KeepDays < 1 {
		add("inbox.keep_days must be >= 1, got %d", c.Inbox.KeepDays)
	}
	if c.Firecrawl.Enabled && c.Firecrawl.APIKey == "" {
		add("firecrawl.api_key is required when firecrawl is enabled")
	}
	if c.Reader.Concurrency < 1 {
		add("reader.concurrency must be >= 1, got %d", c.Reader.Concurrency)
	}
	if c.Reader.MinConfidence < 0 || c.Reader.MinConfidence > 1 {
		add("reader.min_confidence must be within [0, 1], got %g", c.Reader.MinConfidence)
	}
	if c.Ranking.HalfLifeHours <= 0 {
		add("ranking.half_life_hours must be > 0, got %g", c.Ranking.HalfLifeHours)
	}
	w := c.Ranking.Weights
	for _, f := range []struct {
		name string
		val  float64
	}{
		{"confidence", w.Confidence},
		{"authority", w.Authority},
		{"corroboration", w.Corroboration},
		{"recency", w.Recency},
	} {
		if f.val < 0 {
			add("ranking.weights.%s must be >= 0", f.name)
		}
	}
	if sum := w.Confidence + w.Authority + w.Corroboration + w.Recency; math.Abs(sum-1) > 1e-6 {
		add("ranking.weights must sum to 1.0, got %.6f", sum)
	}
	if c.Digest.TopN < 1 {
		add("digest.top_n must be >= 1, got %d", c.Digest.TopN)
	}
	if c.Digest.SecondaryN < 0 {
		add("digest.secondary_n must be >= 0, got %d", c.Digest.SecondaryN)
	}
	if c.Digest.MaxPerSource < 1 {
		add("digest.max_per_source must be >= 1, got %d", c.Digest.MaxPerSource)
	}
	if c.Retry.MaxAttempts < 1 {
		add("retry.max_attempts must be >= 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Circuit.FailureThreshold < 1 {
		add("circuit.failure_threshold must be >= 1, got %d", c.Circuit.FailureThreshold)
	}

	if len(errs) > 0 {
		return eris.New("config: invalid: " + strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger. Call it once at startup.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
