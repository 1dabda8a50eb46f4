package inbox

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/datapulse/internal/model"
)

// Defaults applied when Options fields are zero.
const (
	DefaultMaxItems = 500
	DefaultKeepDays = 30
)

// Options bound the inbox size and age.
type Options struct {
	MaxItems int
	KeepDays int
}

// Inbox is an in-memory, size- and age-bounded item list backed by a
// Backend. Items are kept newest first.
type Inbox struct {
	mu       sync.Mutex
	saveMu   sync.Mutex // orders concurrent backend writes
	backend  Backend
	items    []*model.Item
	maxItems int
	keepDays int
	nowFunc  func() time.Time
}

// Open loads the inbox from backend and prunes it.
func Open(ctx context.Context, backend Backend, opts Options) (*Inbox, error) {
	in := newInbox(backend, opts)
	if err := in.Reload(ctx); err != nil {
		return nil, err
	}
	return in, nil
}

func newInbox(backend Backend, opts Options) *Inbox {
	if opts.MaxItems <= 0 {
		opts.MaxItems = DefaultMaxItems
	}
	if opts.KeepDays <= 0 {
		opts.KeepDays = DefaultKeepDays
	}
	return &Inbox{
		backend:  backend,
		maxItems: opts.MaxItems,
		keepDays: opts.KeepDays,
		nowFunc:  time.Now,
	}
}

// Reload replaces in-memory state with the backend contents.
func (in *Inbox) Reload(ctx context.Context) error {
	loaded, err := in.backend.Load(ctx)
	if err != nil {
		return eris.Wrap(err, "inbox: load")
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	in.items = make([]*model.Item, 0, len(loaded))
	for i := range loaded {
		it := loaded[i]
		it.EnsureDefaults(in.nowFunc())
		in.items = append(in.items, &it)
	}
	in.pruneLocked()
	return nil
}

// Add inserts the item unless one with the same id already exists. The
// oldest items are dropped once MaxItems is exceeded.
func (in *Inbox) Add(it *model.Item) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	it.EnsureDefaults(in.nowFunc())
	for _, existing := range in.items {
		if existing.ID == it.ID {
			return false
		}
	}
	in.items = append(in.items, it)
	sortNewestFirst(in.items)
	if len(in.items) > in.maxItems {
		in.items = in.items[:in.maxItems]
	}
	return true
}

// Save prunes and writes every item to the backend.
func (in *Inbox) Save(ctx context.Context) error {
	in.saveMu.Lock()
	defer in.saveMu.Unlock()

	in.mu.Lock()
	in.pruneLocked()
	snapshot := make([]model.Item, len(in.items))
	for i, it := range in.items {
		snapshot[i] = *it
	}
	in.mu.Unlock()

	if err := in.backend.Save(ctx, snapshot); err != nil {
		return eris.Wrap(err, "inbox: save")
	}
	zap.L().Debug("inbox: saved", zap.Int("items", len(snapshot)))
	return nil
}

// Query returns up to limit items at or above minConfidence, highest
// confidence first. A limit of zero or less means no limit.
func (in *Inbox) Query(limit int, minConfidence float64) []*model.Item {
	return in.selectItems(limit, minConfidence, false)
}

// QueryUnprocessed is Query restricted to items not yet marked processed.
func (in *Inbox) QueryUnprocessed(limit int, minConfidence float64) []*model.Item {
	return in.selectItems(limit, minConfidence, true)
}

func (in *Inbox) selectItems(limit int, minConfidence float64, unprocessedOnly bool) []*model.Item {
	in.mu.Lock()
	out := make([]*model.Item, 0, len(in.items))
	for _, it := range in.items {
		if it.Confidence < minConfidence || (unprocessedOnly && it.Processed) {
			continue
		}
		out = append(out, it)
	}
	in.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// AllItems returns items at or above minConfidence in stored order, newest
// first.
func (in *Inbox) AllItems(minConfidence float64) []*model.Item {
	in.mu.Lock()
	defer in.mu.Unlock()
	out := make([]*model.Item, 0, len(in.items))
	for _, it := range in.items {
		if it.Confidence >= minConfidence {
			out = append(out, it)
		}
	}
	return out
}

// Get returns the item with id, if present.
func (in *Inbox) Get(id string) (*model.Item, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	for _, it := range in.items {
		if it.ID == id {
			return it, true
		}
	}
	return nil, false
}

// MarkProcessed sets the processed flag. It reports false for unknown ids.
func (in *Inbox) MarkProcessed(id string, processed bool) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	for _, it := range in.items {
		if it.ID == id {
			it.Processed = processed
			return true
		}
	}
	return false
}

// Clear drops every item. Call Save to persist.
func (in *Inbox) Clear() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	n := len(in.items)
	in.items = nil
	return n
}

// Len returns the number of stored items.
func (in *Inbox) Len() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.items)
}

// pruneLocked drops expired items, removes duplicate ids (the later record
// wins) and enforces the size bound. Items with unparsable timestamps are
// kept.
func (in *Inbox) pruneLocked() {
	cutoff := in.nowFunc().UTC().AddDate(0, 0, -in.keepDays)

	index := make(map[string]int, len(in.items))
	kept := make([]*model.Item, 0, len(in.items))
	for _, it := range in.items {
		if ts, ok := it.FetchedTime(); ok && ts.Before(cutoff) {
			continue
		}
		if pos, dup := index[it.ID]; dup {
			kept[pos] = it
			continue
		}
		index[it.ID] = len(kept)
		kept = append(kept, it)
	}
	sortNewestFirst(kept)
	if len(kept) > in.maxItems {
		kept = kept[:in.maxItems]
	}
	in.items = kept
}

// sortNewestFirst orders by fetch time descending. Unparsable timestamps
// sort last.
func sortNewestFirst(items []*model.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		ti, okI := items[i].FetchedTime()
		tj, okJ := items[j].FetchedTime()
		if okI != okJ {
			return okI
		}
		return ti.After(tj)
	})
}
