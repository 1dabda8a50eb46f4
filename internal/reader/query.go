package reader

import (
	"context"
	"time"

	"github.com/sells-group/datapulse/internal/collector"
	"github.com/sells-group/datapulse/internal/digest"
	"github.com/sells-group/datapulse/internal/model"
	"github.com/sells-group/datapulse/internal/resilience"
	"github.com/sells-group/datapulse/internal/router"
)

// FeedQuery selects inbox items for feeds and digests. A nil SourceIDs
// means the profile's subscription; a zero Since means no lower bound.
type FeedQuery struct {
	Profile       string
	SourceIDs     []string
	Since         time.Time
	MinConfidence float64
	Limit         int
}

// QueryFeed returns copies of the matching items, newest first.
func (r *Reader) QueryFeed(q FeedQuery) []*model.Item {
	stored := r.inbox.AllItems(q.MinConfidence)

	items := make([]*model.Item, 0, len(stored))
	for _, it := range stored {
		if !q.Since.IsZero() {
			ts, ok := it.FetchedTime()
			if !ok || ts.Before(q.Since) {
				continue
			}
		}
		items = append(items, it.Clone())
	}

	if r.catalog != nil {
		profile := q.Profile
		if profile == "" {
			profile = r.opts.Profile
		}
		items = r.catalog.FilterBySubscription(items, profile, q.SourceIDs)
	}
	if q.Limit > 0 && len(items) > q.Limit {
		items = items[:q.Limit]
	}
	return items
}

// ListMemory returns copies of up to limit stored items, highest
// confidence first.
func (r *Reader) ListMemory(limit int, minConfidence float64) []*model.Item {
	stored := r.inbox.Query(limit, minConfidence)
	out := make([]*model.Item, len(stored))
	for i, it := range stored {
		out[i] = it.Clone()
	}
	return out
}

// DigestOptions narrows the candidate pool and sizes the selection. Zero
// sizes take the reader's configured digest options.
type DigestOptions struct {
	Profile       string
	SourceIDs     []string
	Since         time.Time
	MinConfidence float64
	TopN          int
	SecondaryN    int
	MaxPerSource  int
}

// BuildDigest selects a digest from the subscription-filtered inbox.
// Stored items are not modified.
func (r *Reader) BuildDigest(_ context.Context, opts DigestOptions) *digest.Digest {
	pool := r.QueryFeed(FeedQuery{
		Profile:       opts.Profile,
		SourceIDs:     opts.SourceIDs,
		Since:         opts.Since,
		MinConfidence: opts.MinConfidence,
	})

	sel := r.digests.Options()
	if opts.TopN > 0 {
		sel.TopN = opts.TopN
	}
	if opts.SecondaryN > 0 {
		sel.SecondaryN = opts.SecondaryN
	}
	if opts.MaxPerSource > 0 {
		sel.MaxPerSource = opts.MaxPerSource
	}
	return r.digests.BuildWith(pool, r.authority(), sel)
}

// Rank scores items in place against the catalog's authority weights.
func (r *Reader) Rank(items []*model.Item) []*model.Item {
	return r.ranker.Rank(items, r.authority())
}

func (r *Reader) authority() map[string]float64 {
	if r.catalog == nil {
		return nil
	}
	return r.catalog.BuildAuthorityMap()
}

// Health is the reader's self-report.
type Health struct {
	OK         bool                  `json:"ok"`
	Parsers    []string              `json:"parsers"`
	Stored     int                   `json:"stored"`
	DLQ        int                   `json:"dlq"`
	Failures   []resilience.DLQEntry `json:"recent_failures"`
	Collectors router.Report         `json:"collectors"`
	Counts     map[string]int        `json:"counts"`
}

// Health runs collector health checks and summarizes stored state. OK is
// false when any collector reports an error.
func (r *Reader) Health(ctx context.Context) Health {
	report := r.router.Doctor(ctx)
	counts := report.Counts()
	return Health{
		OK:         counts[collector.StatusErr] == 0,
		Parsers:    r.router.AvailableParsers(),
		Stored:     r.inbox.Len(),
		DLQ:        r.dlq.Len(),
		Failures:   r.dlq.List(resilience.DLQFilter{Limit: 10}),
		Collectors: report,
		Counts:     counts,
	}
}
