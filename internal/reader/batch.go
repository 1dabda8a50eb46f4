package reader

import (
	"context"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/datapulse/internal/model"
	"github.com/sells-group/datapulse/internal/urlkit"
)

// BatchOptions controls ReadBatch.
type BatchOptions struct {
	MinConfidence float64
	// FailFast returns the first failure instead of skipping it.
	FailFast bool
	// Concurrency overrides the reader's permit count when positive.
	Concurrency int
}

// DedupURLs trims inputs and drops repeats that differ only by a trailing
// slash, keeping first-seen order.
func DedupURLs(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		key := urlkit.NormalizeForDedup(u)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, u)
	}
	return out
}

// ReadBatch reads every distinct URL with bounded concurrency and returns
// the successes sorted by confidence, highest first. Failures are logged
// and, unless they are confidence rejections, pushed to the DLQ.
func (r *Reader) ReadBatch(ctx context.Context, urls []string, opts BatchOptions) ([]*model.Item, error) {
	urls = DedupURLs(urls)
	if len(urls) == 0 {
		return []*model.Item{}, nil
	}

	limit := r.opts.Concurrency
	if opts.Concurrency > 0 {
		limit = opts.Concurrency
	}

	zap.L().Info("reader: batch start",
		zap.Int("urls", len(urls)),
		zap.Int("concurrency", limit),
		zap.Bool("fail_fast", opts.FailFast),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	results := make([]*model.Item, len(urls))
	var failed atomic.Int64

	for i, u := range urls {
		g.Go(func() error {
			it, err := r.Read(gctx, u, opts.MinConfidence)
			if err != nil {
				failed.Add(1)
				log := zap.L().With(zap.String("url", urlkit.RedactForLog(u)))
				if IsLowConfidence(err) {
					log.Info("reader: batch item below confidence floor", zap.Error(err))
				} else {
					entry := r.dlq.Push(u, err)
					log.Warn("reader: batch item failed",
						zap.String("error_type", entry.ErrorType),
						zap.Error(err),
					)
				}
				if opts.FailFast {
					return eris.Wrapf(err, "reader: batch read %s", urlkit.RedactForLog(u))
				}
				return nil // isolate individual failures
			}
			r.dlq.Remove(u)
			results[i] = it
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]*model.Item, 0, len(results))
	for _, it := range results {
		if it != nil {
			out = append(out, it)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })

	zap.L().Info("reader: batch complete",
		zap.Int("succeeded", len(out)),
		zap.Int64("failed", failed.Load()),
	)
	return out, nil
}
