package reader

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/datapulse/internal/model"
	"github.com/sells-group/datapulse/internal/urlkit"
	"github.com/sells-group/datapulse/pkg/jina"
)

// SearchTag marks items that came from a web search.
const SearchTag = "jina_search"

// ErrNoSearcher is returned when no registered collector can search.
var ErrNoSearcher = eris.New("no search-capable collector configured")

// Searcher is implemented by collectors that can run web searches.
type Searcher interface {
	Search(ctx context.Context, query string, opts jina.SearchOptions) ([]jina.SearchResult, error)
}

// SearchOptions controls Reader.Search.
type SearchOptions struct {
	Sites []string
	Limit int
	// FetchContent reads each hit through the collector chain. Hits that
	// fail to read keep the search snippet.
	FetchContent  bool
	MinConfidence float64
}

func (r *Reader) searcher() Searcher {
	for _, c := range r.router.Collectors() {
		if s, ok := c.(Searcher); ok {
			return s
		}
	}
	return nil
}

// Search runs a web search and stores the hits as items. The inbox is
// saved once for the whole result set.
func (r *Reader) Search(ctx context.Context, query string, opts SearchOptions) ([]*model.Item, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, eris.New("reader: empty search query")
	}
	s := r.searcher()
	if s == nil {
		return nil, eris.Wrap(ErrNoSearcher, "reader: search")
	}

	hits, err := s.Search(ctx, query, jina.SearchOptions{Sites: opts.Sites, Limit: opts.Limit})
	if err != nil {
		return nil, eris.Wrap(err, "reader: search")
	}

	now := r.nowFunc()
	items := make([]*model.Item, 0, len(hits))
	added := 0
	for _, hit := range hits {
		if strings.TrimSpace(hit.URL) == "" {
			continue
		}
		it := r.searchItem(ctx, hit, opts.FetchContent, now)
		it.Tags = dedupTags(append(it.Tags, SearchTag))
		it.Extra[model.ExtraSearchQuery] = model.String(query)
		if it.Confidence < opts.MinConfidence {
			continue
		}
		if r.inbox.Add(it) {
			added++
		}
		items = append(items, it.Clone())
	}

	if added > 0 {
		if err := r.inbox.Save(ctx); err != nil {
			return nil, eris.Wrap(err, "reader: persist search results")
		}
	}
	zap.L().Info("reader: search complete",
		zap.String("query", query),
		zap.Int("hits", len(hits)),
		zap.Int("kept", len(items)),
		zap.Int("stored", added),
	)
	return items, nil
}

func (r *Reader) searchItem(ctx context.Context, hit jina.SearchResult, fetch bool, now time.Time) *model.Item {
	if fetch {
		res, c, err := r.router.Route(ctx, hit.URL)
		if err == nil {
			if res.URL == "" {
				res.URL = hit.URL
			}
			return ToItem(res, c.Name(), now)
		}
		zap.L().Debug("reader: search hit unreadable, keeping snippet",
			zap.String("url", urlkit.RedactForLog(hit.URL)), zap.Error(err))
	}

	content := strings.TrimSpace(hit.Content)
	if content == "" {
		content = strings.TrimSpace(hit.Description)
	}
	res := &model.ParseResult{
		URL:             hit.URL,
		Title:           hit.Title,
		Content:         content,
		Excerpt:         urlkit.Excerpt(content, 260),
		Success:         true,
		MediaType:       model.MediaText,
		SourceType:      model.SourceGeneric,
		ConfidenceFlags: []string{model.FlagProxy},
		Extra:           model.Extra{},
	}
	if hit.Description != "" {
		res.Extra["description"] = model.String(hit.Description)
	}
	return ToItem(res, "jina", now)
}
