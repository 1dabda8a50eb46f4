// Package reader is the ingestion facade: it routes URLs through the
// collector chain, scores and stores the results, and answers feed, digest
// and health queries over the inbox and source catalog.
package reader

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/datapulse/internal/catalog"
	"github.com/sells-group/datapulse/internal/confidence"
	"github.com/sells-group/datapulse/internal/digest"
	"github.com/sells-group/datapulse/internal/inbox"
	"github.com/sells-group/datapulse/internal/model"
	"github.com/sells-group/datapulse/internal/ranking"
	"github.com/sells-group/datapulse/internal/resilience"
	"github.com/sells-group/datapulse/internal/router"
	"github.com/sells-group/datapulse/internal/urlkit"
)

// DefaultConcurrency bounds in-flight reads per batch.
const DefaultConcurrency = 5

const maxTitleRunes = 300

// ErrLowConfidence rejects a fetched item whose confidence is under the
// caller's floor. The item was fetched but not stored.
var ErrLowConfidence = eris.New("confidence below threshold")

// IsLowConfidence reports whether err is a confidence rejection.
func IsLowConfidence(err error) bool {
	return errors.Is(err, ErrLowConfidence)
}

// Options configures a Reader. Nil collaborators get defaults: no catalog
// means no subscription filtering and no authority map.
type Options struct {
	Catalog      *catalog.Catalog
	Ranker       *ranking.Engine
	Digest       digest.Options
	DLQ          *resilience.DLQ
	Concurrency  int
	Profile      string
	MarkdownPath string
	AutoRegister bool
}

// Reader ties the router, inbox and catalog together.
type Reader struct {
	router  *router.Router
	inbox   *inbox.Inbox
	catalog *catalog.Catalog
	ranker  *ranking.Engine
	digests *digest.Builder
	dlq     *resilience.DLQ
	opts    Options
	nowFunc func() time.Time
}

// New builds a Reader.
func New(rt *router.Router, in *inbox.Inbox, opts Options) *Reader {
	if opts.Ranker == nil {
		opts.Ranker = ranking.Default()
	}
	if opts.DLQ == nil {
		opts.DLQ = resilience.NewDLQ(0)
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Profile == "" {
		opts.Profile = catalog.DefaultProfile
	}
	return &Reader{
		router:  rt,
		inbox:   in,
		catalog: opts.Catalog,
		ranker:  opts.Ranker,
		digests: digest.NewBuilder(opts.Ranker, opts.Digest),
		dlq:     opts.DLQ,
		opts:    opts,
		nowFunc: time.Now,
	}
}

// Router returns the collector router.
func (r *Reader) Router() *router.Router { return r.router }

// Inbox returns the backing inbox.
func (r *Reader) Inbox() *inbox.Inbox { return r.inbox }

// Catalog returns the source catalog, which may be nil.
func (r *Reader) Catalog() *catalog.Catalog { return r.catalog }

// DLQ returns the dead-letter list for failed batch reads.
func (r *Reader) DLQ() *resilience.DLQ { return r.dlq }

// Read fetches one URL, scores it and stores it in the inbox when it is
// new. Items below minConfidence are rejected with ErrLowConfidence.
func (r *Reader) Read(ctx context.Context, rawURL string, minConfidence float64) (*model.Item, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, eris.New("reader: empty url")
	}

	res, c, err := r.router.Route(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if res.URL == "" {
		res.URL = rawURL
	}

	it := ToItem(res, c.Name(), r.nowFunc())
	if it.Confidence < minConfidence {
		return nil, eris.Wrapf(ErrLowConfidence, "reader: %.3f < %.3f for %s",
			it.Confidence, minConfidence, urlkit.RedactForLog(rawURL))
	}

	log := zap.L().With(zap.String("url", urlkit.RedactForLog(it.URL)), zap.String("adapter", c.Name()))
	if r.inbox.Add(it) {
		if err := r.inbox.Save(ctx); err != nil {
			return nil, eris.Wrap(err, "reader: persist item")
		}
		log.Info("reader: stored item", zap.String("id", it.ID), zap.Float64("confidence", it.Confidence))
	} else {
		log.Info("reader: item already in inbox", zap.String("id", it.ID))
	}

	if r.opts.MarkdownPath != "" {
		if err := inbox.AppendMarkdown(r.opts.MarkdownPath, it); err != nil {
			log.Warn("reader: markdown append failed", zap.Error(err))
		}
	}
	if r.opts.AutoRegister && r.catalog != nil {
		r.autoRegister(it)
	}
	return it.Clone(), nil
}

// autoRegister adds a catalog source for URLs nothing in the catalog
// claims yet.
func (r *Reader) autoRegister(it *model.Item) {
	res := r.catalog.Resolve(it.URL)
	if res.SourceID != "" {
		return
	}
	src, err := r.catalog.RegisterAutoSource(res.Name, string(it.SourceType), it.URL)
	if err != nil {
		zap.L().Warn("reader: auto-register source failed", zap.String("name", res.Name), zap.Error(err))
		return
	}
	zap.L().Debug("reader: auto-registered source", zap.String("id", src.ID), zap.String("name", src.Name))
}

// ToItem converts a successful parse result into a scored Item.
func ToItem(res *model.ParseResult, parser string, now time.Time) *model.Item {
	sourceType := res.SourceType
	if sourceType == "" {
		sourceType = model.SourceGeneric
	}
	sourceName := strings.TrimSpace(res.Author)
	if sourceName == "" {
		sourceName = string(sourceType)
	}
	if sourceName == "" {
		sourceName = parser
	}

	title := strings.TrimSpace(res.Title)
	hasTitle := title != ""
	if !hasTitle {
		title = "Untitled"
	}
	title = urlkit.Truncate(title, maxTitleRunes)

	media := res.MediaType
	if media == "" {
		media = model.MediaText
	}

	conf, reasons := confidence.Score(confidence.Input{
		Parser:        parser,
		HasTitle:      hasTitle,
		ContentLength: len([]rune(res.Content)),
		HasSource:     sourceName != "",
		HasAuthor:     strings.TrimSpace(res.Author) != "",
		Media:         media,
		Flags:         res.ConfidenceFlags,
	})

	extra := model.Extra{model.ExtraRawExcerpt: model.String(res.Excerpt)}
	for k, v := range res.Extra {
		extra[k] = v
	}

	it := &model.Item{
		SourceType:        sourceType,
		SourceName:        sourceName,
		Title:             title,
		Content:           res.Content,
		URL:               res.URL,
		Parser:            parser,
		MediaType:         media,
		Confidence:        conf,
		ConfidenceFactors: reasons,
		Tags:              dedupTags(append([]string{string(sourceType), parser}, res.Tags...)),
		Language:          urlkit.Language(fmt.Sprintf("%s %s", res.Title, res.Content)),
		Extra:             extra,
	}
	it.EnsureDefaults(now)
	return it
}

func dedupTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// DetectPlatform returns the name of the collector that can read url, or
// "generic" when none succeeds. It fetches but does not store.
func (r *Reader) DetectPlatform(ctx context.Context, rawURL string) string {
	_, c, err := r.router.Route(ctx, rawURL)
	if err != nil || c == nil {
		return string(model.SourceGeneric)
	}
	return c.Name()
}
