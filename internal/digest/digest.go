// Package digest builds bounded, source-diverse selections of ranked items.
package digest

import (
	"fmt"
	"time"

	"github.com/sells-group/datapulse/internal/model"
	"github.com/sells-group/datapulse/internal/ranking"
	"github.com/sells-group/datapulse/internal/urlkit"
)

// Version is the digest document format version.
const Version = "1.0"

// Selection defaults.
const (
	DefaultTopN         = 3
	DefaultSecondaryN   = 5
	DefaultMaxPerSource = 2
)

// Options controls selection sizes. Zero values take the defaults.
type Options struct {
	TopN         int `mapstructure:"top_n" json:"top_n"`
	SecondaryN   int `mapstructure:"secondary_n" json:"secondary_n"`
	MaxPerSource int `mapstructure:"max_per_source" json:"max_per_source"`
}

func (o Options) withDefaults() Options {
	if o.TopN <= 0 {
		o.TopN = DefaultTopN
	}
	if o.SecondaryN < 0 {
		o.SecondaryN = 0
	} else if o.SecondaryN == 0 {
		o.SecondaryN = DefaultSecondaryN
	}
	if o.MaxPerSource <= 0 {
		o.MaxPerSource = DefaultMaxPerSource
	}
	return o
}

// Stats summarizes how the selection was made.
type Stats struct {
	CandidatesTotal      int `json:"candidates_total"`
	CandidatesAfterDedup int `json:"candidates_after_dedup"`
	SourcesSeen          int `json:"sources_seen"`
	SelectedPrimary      int `json:"selected_primary"`
	SelectedSecondary    int `json:"selected_secondary"`
}

// Digest is the rendered selection.
type Digest struct {
	Version     string        `json:"version"`
	GeneratedAt string        `json:"generated_at"`
	DigestDate  string        `json:"digest_date"`
	Stats       Stats         `json:"stats"`
	Primary     []*model.Item `json:"primary"`
	Secondary   []*model.Item `json:"secondary"`
	Provenance  string        `json:"provenance"`
}

// Builder ranks candidate pools and selects digests.
type Builder struct {
	engine  *ranking.Engine
	opts    Options
	nowFunc func() time.Time
}

// NewBuilder returns a builder. A nil engine uses ranking.Default.
func NewBuilder(engine *ranking.Engine, opts Options) *Builder {
	if engine == nil {
		engine = ranking.Default()
	}
	return &Builder{engine: engine, opts: opts.withDefaults(), nowFunc: time.Now}
}

// Options returns the effective selection options.
func (b *Builder) Options() Options { return b.opts }

// Build ranks the pool, keeps the best item per content fingerprint and
// admits items in rank order while no source exceeds MaxPerSource. Items
// in the pool are annotated in place; callers pass copies when the stored
// records must stay untouched.
func (b *Builder) Build(pool []*model.Item, authority map[string]float64) *Digest {
	return b.BuildWith(pool, authority, b.opts)
}

// BuildWith is Build with per-call options.
func (b *Builder) BuildWith(pool []*model.Item, authority map[string]float64, opts Options) *Digest {
	opts = opts.withDefaults()
	now := b.nowFunc().UTC()

	d := &Digest{
		Version:     Version,
		GeneratedAt: model.FormatTime(now),
		DigestDate:  now.Format(time.DateOnly),
		Primary:     []*model.Item{},
		Secondary:   []*model.Item{},
	}
	d.Stats.CandidatesTotal = len(pool)
	if len(pool) == 0 {
		d.Provenance = "Curated from 0 candidates; nothing to select."
		return d
	}

	ranked := b.engine.Rank(pool, authority)
	deduped := Dedup(ranked)
	d.Stats.CandidatesAfterDedup = len(deduped)

	sources := make(map[string]struct{}, len(deduped))
	for _, it := range deduped {
		sources[it.SourceName] = struct{}{}
	}
	d.Stats.SourcesSeen = len(sources)

	selected := SelectDiverse(deduped, opts.TopN+opts.SecondaryN, opts.MaxPerSource)
	for _, it := range selected {
		it.SetDigestDate(now)
	}
	split := min(opts.TopN, len(selected))
	d.Primary = append(d.Primary, selected[:split]...)
	d.Secondary = append(d.Secondary, selected[split:]...)
	d.Stats.SelectedPrimary = len(d.Primary)
	d.Stats.SelectedSecondary = len(d.Secondary)

	d.Provenance = fmt.Sprintf(
		"Curated from %d candidates (%d after dedup) across %d sources; max %d per source.",
		d.Stats.CandidatesTotal, d.Stats.CandidatesAfterDedup, d.Stats.SourcesSeen, opts.MaxPerSource)
	return d
}

// Dedup keeps the first item per content fingerprint. Input must already
// be in rank order.
func Dedup(ranked []*model.Item) []*model.Item {
	seen := make(map[string]struct{}, len(ranked))
	out := make([]*model.Item, 0, len(ranked))
	for _, it := range ranked {
		fp := urlkit.Fingerprint(it.Content)
		if _, ok := seen[fp]; ok {
			continue
		}
		seen[fp] = struct{}{}
		out = append(out, it)
	}
	return out
}

// SelectDiverse admits items in order, skipping any whose source already
// has maxPerSource admissions, until limit items are admitted.
func SelectDiverse(items []*model.Item, limit, maxPerSource int) []*model.Item {
	if limit <= 0 {
		return []*model.Item{}
	}
	perSource := make(map[string]int)
	out := make([]*model.Item, 0, min(limit, len(items)))
	for _, it := range items {
		if perSource[it.SourceName] >= maxPerSource {
			continue
		}
		perSource[it.SourceName]++
		out = append(out, it)
		if len(out) == limit {
			break
		}
	}
	return out
}
