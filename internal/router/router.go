// Package router orders collectors and runs the fallback chain for a URL.
package router

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/datapulse/internal/collector"
	"github.com/sells-group/datapulse/internal/model"
	"github.com/sells-group/datapulse/internal/urlkit"
)

// ErrNoParser matches every routing failure where no collector succeeded.
var ErrNoParser = eris.New("no parser produced a successful result")

// NoParserError reports a URL that every candidate failed on. Parser and
// Hint describe the last collector tried, if any.
type NoParserError struct {
	URL    string
	Parser string
	Hint   string
	Causes []string
}

func (e *NoParserError) Error() string {
	msg := "no parser produced successful result for " + e.URL
	if e.Hint != "" {
		msg += fmt.Sprintf("\nhint (%s): %s", e.Parser, e.Hint)
	}
	return msg
}

// Is makes errors.Is(err, ErrNoParser) hold.
func (e *NoParserError) Is(target error) bool { return target == ErrNoParser }

// Router holds collectors in fallback order.
type Router struct {
	mu         sync.RWMutex
	collectors []collector.Collector
}

// New creates a router with collectors in the given order.
func New(cs ...collector.Collector) *Router {
	return &Router{collectors: append([]collector.Collector(nil), cs...)}
}

// Register adds a collector at the front when priority is set, otherwise at
// the back.
func (r *Router) Register(c collector.Collector, priority bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if priority {
		r.collectors = append([]collector.Collector{c}, r.collectors...)
		return
	}
	r.collectors = append(r.collectors, c)
}

// Collectors returns a snapshot of the registered collectors in order.
func (r *Router) Collectors() []collector.Collector {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]collector.Collector(nil), r.collectors...)
}

// AvailableParsers returns collector names in fallback order.
func (r *Router) AvailableParsers() []string {
	cs := r.Collectors()
	names := make([]string, len(cs))
	for i, c := range cs {
		names[i] = c.Name()
	}
	return names
}

// candidates orders collectors matching the platform hint first, each group
// keeping registration order.
func (r *Router) candidates(hint string) []collector.Collector {
	cs := r.Collectors()
	preferred := make([]collector.Collector, 0, len(cs))
	rest := make([]collector.Collector, 0, len(cs))
	for _, c := range cs {
		if c.Name() == hint || string(c.SourceType()) == hint {
			preferred = append(preferred, c)
		} else {
			rest = append(rest, c)
		}
	}
	return append(preferred, rest...)
}

// Route runs the fallback chain. The first successful result is returned
// together with the collector that produced it. When every candidate
// fails the returned result is a failure, the collector is the last one
// tried (nil if none could handle the URL) and the error is a
// *NoParserError.
func (r *Router) Route(ctx context.Context, url string) (*model.ParseResult, collector.Collector, error) {
	hint := urlkit.PlatformHint(url)

	var (
		last   collector.Collector
		causes []string
	)
	for _, c := range r.candidates(hint) {
		if !c.CanHandle(url) {
			continue
		}
		last = c
		res, err := safeParse(ctx, c, url)
		if err == nil {
			return res, c, nil
		}
		causes = append(causes, fmt.Sprintf("%s: %v", c.Name(), err))
		zap.L().Debug("router: collector failed, trying next",
			zap.String("adapter", c.Name()),
			zap.String("url", urlkit.RedactForLog(url)),
			zap.Error(err),
		)
		if ctx.Err() != nil {
			break
		}
	}

	nerr := &NoParserError{URL: url, Causes: causes}
	if last != nil {
		nerr.Parser = last.Name()
		nerr.Hint = last.SetupHint()
	}
	zap.L().Warn("router: all collectors failed",
		zap.String("url", urlkit.RedactForLog(url)),
		zap.String("hint", hint),
		zap.Int("attempts", len(causes)),
	)
	return model.Failure(url, nerr.Error()), last, nerr
}

// safeParse turns panics and unsuccessful results into ordinary errors so
// one broken collector cannot abort the chain.
func safeParse(ctx context.Context, c collector.Collector, url string) (res *model.ParseResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			res = nil
			err = eris.Errorf("panic in collector %s: %v", c.Name(), p)
		}
	}()
	res, err = c.Parse(ctx, url)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, eris.New("collector returned no result")
	}
	if !res.Success {
		msg := strings.TrimSpace(res.Error)
		if msg == "" {
			msg = "unsuccessful result"
		}
		return nil, eris.New(msg)
	}
	if res.SourceType == "" {
		res.SourceType = c.SourceType()
	}
	return res, nil
}
