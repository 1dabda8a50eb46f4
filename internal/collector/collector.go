// Package collector holds the in-repo adapters that turn a URL into a
// model.ParseResult, and the capability interface the router dispatches on.
package collector

import (
	"context"

	"github.com/sells-group/datapulse/internal/confidence"
	"github.com/sells-group/datapulse/internal/model"
	"github.com/sells-group/datapulse/internal/urlkit"
)

// Health statuses.
const (
	StatusOK   = "ok"
	StatusWarn = "warn"
	StatusErr  = "err"
)

// Operational tiers.
const (
	TierLocal  = 0 // no external dependency
	TierPublic = 1 // free public network dependency
	TierSetup  = 2 // needs operator setup such as credentials
)

// excerptRunes is the excerpt length collectors attach to results.
const excerptRunes = 260

// Health is the outcome of one collector health check.
type Health struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Available bool   `json:"available"`
}

// Collector is the contract every adapter implements. Parse returns a
// successful result or an error; it never returns both.
type Collector interface {
	Name() string
	SourceType() model.SourceType
	Reliability() float64
	Tier() int
	SetupHint() string

	CanHandle(url string) bool
	Parse(ctx context.Context, url string) (*model.ParseResult, error)
	HealthCheck(ctx context.Context) Health
}

// meta carries the static metadata shared by all collectors.
type meta struct {
	name       string
	sourceType model.SourceType
	tier       int
	setupHint  string
}

func (m meta) Name() string                 { return m.name }
func (m meta) SourceType() model.SourceType { return m.sourceType }
func (m meta) Tier() int                    { return m.tier }
func (m meta) SetupHint() string            { return m.setupHint }
func (m meta) Reliability() float64         { return confidence.Reliability(m.name) }

// success builds a successful result stamped with this collector's type.
func (m meta) success(url, title, content, author string) *model.ParseResult {
	return &model.ParseResult{
		URL:        url,
		Title:      title,
		Content:    content,
		Author:     author,
		Excerpt:    urlkit.Excerpt(content, excerptRunes),
		Success:    true,
		MediaType:  model.MediaText,
		SourceType: m.sourceType,
		Extra:      model.Extra{},
	}
}
