package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/datapulse/internal/model"
)

// DefaultProfile is the subscription profile used when none is named.
const DefaultProfile = "default"

const documentVersion = 1

// document is the persisted catalog layout.
type document struct {
	Version       int                 `json:"version"`
	Sources       []Source            `json:"sources"`
	Subscriptions map[string][]string `json:"subscriptions"`
	Packs         []Pack              `json:"packs"`
}

// Catalog holds sources, packs and subscriptions. Every mutation saves the
// whole document.
type Catalog struct {
	mu            sync.RWMutex
	path          string
	version       int
	sources       map[string]*Source
	subscriptions map[string][]string
	packs         map[string]*Pack
	nowFunc       func() time.Time
}

// Open loads the catalog at path. Missing or corrupt files yield an empty
// catalog.
func Open(path string) *Catalog {
	c := newCatalog(path)
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			zap.L().Warn("catalog: cannot read file, starting empty", zap.String("path", path), zap.Error(err))
		}
		return c
	}
	c.decode(data)
	return c
}

func newCatalog(path string) *Catalog {
	return &Catalog{
		path:          path,
		version:       documentVersion,
		sources:       map[string]*Source{},
		subscriptions: map[string][]string{},
		packs:         map[string]*Pack{},
		nowFunc:       time.Now,
	}
}

// Path returns the backing file.
func (c *Catalog) Path() string { return c.path }

func (c *Catalog) decode(data []byte) {
	var raw struct {
		Version       any                        `json:"version"`
		Sources       []json.RawMessage          `json:"sources"`
		Subscriptions map[string]json.RawMessage `json:"subscriptions"`
		Packs         []json.RawMessage          `json:"packs"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		zap.L().Warn("catalog: corrupt document, starting empty", zap.String("path", c.path), zap.Error(err))
		return
	}
	if v, ok := raw.Version.(float64); ok {
		c.version = int(v)
	}

	for _, row := range raw.Sources {
		var rs rawSource
		if err := json.Unmarshal(row, &rs); err != nil {
			zap.L().Debug("catalog: skipping malformed source", zap.Error(err))
			continue
		}
		s := rs.normalize()
		c.sources[s.ID] = &s
	}

	for profile, row := range raw.Subscriptions {
		var ids []any
		if err := json.Unmarshal(row, &ids); err != nil {
			continue
		}
		key := strings.TrimSpace(profile)
		if key == "" {
			key = DefaultProfile
		}
		kept := []string{}
		for _, v := range ids {
			sid, ok := v.(string)
			if !ok {
				continue
			}
			if sid = strings.TrimSpace(sid); sid != "" && c.sources[sid] != nil {
				kept = append(kept, sid)
			}
		}
		c.subscriptions[key] = kept
	}

	for _, row := range raw.Packs {
		var rp rawPack
		if err := json.Unmarshal(row, &rp); err != nil {
			continue
		}
		p := rp.normalize()
		c.packs[p.Slug] = &p
	}
}

// Save writes the catalog atomically.
func (c *Catalog) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.saveLocked()
}

func (c *Catalog) saveLocked() error {
	doc := document{
		Version:       c.version,
		Sources:       make([]Source, 0, len(c.sources)),
		Subscriptions: c.subscriptions,
		Packs:         make([]Pack, 0, len(c.packs)),
	}
	for _, id := range sortedKeys(c.sources) {
		doc.Sources = append(doc.Sources, *c.sources[id])
	}
	for _, slug := range sortedKeys(c.packs) {
		doc.Packs = append(doc.Packs, *c.packs[slug])
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return eris.Wrap(err, "catalog: encode")
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "catalog: create dir %s", dir)
	}
	tmp, err := os.CreateTemp(dir, ".catalog-*.json")
	if err != nil {
		return eris.Wrap(err, "catalog: create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrap(err, "catalog: write temp file")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "catalog: close temp file")
	}
	return eris.Wrapf(os.Rename(tmp.Name(), c.path), "catalog: replace %s", c.path)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func profileKey(profile string) string {
	if p := strings.TrimSpace(profile); p != "" {
		return p
	}
	return DefaultProfile
}

// ListSources returns sources sorted by lowercase name.
func (c *Catalog) ListSources(includeInactive, publicOnly bool) []*Source {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.listSourcesLocked(includeInactive, publicOnly)
}

func (c *Catalog) listSourcesLocked(includeInactive, publicOnly bool) []*Source {
	out := make([]*Source, 0, len(c.sources))
	for _, s := range c.sources {
		if (!includeInactive && !s.IsActive) || (publicOnly && !s.IsPublic) {
			continue
		}
		out = append(out, s.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		ni, nj := strings.ToLower(out[i].Name), strings.ToLower(out[j].Name)
		if ni != nj {
			return ni < nj
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ListPacks returns packs sorted by lowercase name.
func (c *Catalog) ListPacks(publicOnly bool) []*Pack {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Pack, 0, len(c.packs))
	for _, p := range c.packs {
		if publicOnly && !p.IsPublic {
			continue
		}
		out = append(out, p.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

// GetSource looks a source up by id.
func (c *Catalog) GetSource(id string) (*Source, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.sources[id]
	if !ok {
		return nil, false
	}
	return s.clone(), true
}

// GetPack looks a pack up by slug, case-insensitively.
func (c *Catalog) GetPack(slug string) (*Pack, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.packs[strings.ToLower(strings.TrimSpace(slug))]
	if !ok {
		return nil, false
	}
	return p.clone(), true
}

// Subscription returns the source ids a profile subscribes to.
func (c *Catalog) Subscription(profile string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string{}, c.subscriptions[profileKey(profile)]...)
}

// Profiles returns every profile with a subscription entry.
func (c *Catalog) Profiles() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return sortedKeys(c.subscriptions)
}

// SetSubscription replaces a profile's subscription, dropping unknown ids.
func (c *Catalog) SetSubscription(profile string, ids []string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := []string{}
	for _, id := range ids {
		if id = strings.TrimSpace(id); c.sources[id] != nil {
			kept = append(kept, id)
		}
	}
	c.subscriptions[profileKey(profile)] = kept
	return append([]string{}, kept...), c.saveLocked()
}

// Subscribe adds one source to a profile. It reports false when the source
// is unknown or already subscribed.
func (c *Catalog) Subscribe(profile, id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sources[id] == nil {
		return false, nil
	}
	key := profileKey(profile)
	for _, existing := range c.subscriptions[key] {
		if existing == id {
			return false, nil
		}
	}
	c.subscriptions[key] = append(c.subscriptions[key], id)
	return true, c.saveLocked()
}

// Unsubscribe removes one source from a profile.
func (c *Catalog) Unsubscribe(profile, id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := profileKey(profile)
	cur := c.subscriptions[key]
	kept := make([]string, 0, len(cur))
	for _, existing := range cur {
		if existing != id {
			kept = append(kept, existing)
		}
	}
	if len(kept) == len(cur) {
		return false, nil
	}
	c.subscriptions[key] = kept
	return true, c.saveLocked()
}

// InstallPack subscribes a profile to every known source in a pack and
// returns how many were newly added. Unknown packs add nothing.
func (c *Catalog) InstallPack(profile, slug string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.packs[strings.ToLower(strings.TrimSpace(slug))]
	if !ok {
		return 0, nil
	}
	key := profileKey(profile)
	ids := make(map[string]bool)
	for _, id := range c.subscriptions[key] {
		ids[id] = true
	}
	added := 0
	for _, id := range p.SourceIDs {
		if c.sources[id] != nil && !ids[id] {
			ids[id] = true
			added++
		}
	}
	c.subscriptions[key] = sortedKeys(ids)
	return added, c.saveLocked()
}

// AddSource inserts or replaces a source after normalizing it the same way
// loaded records are. A zero Tier or AuthorityWeight takes the default.
func (c *Catalog) AddSource(s Source) (*Source, error) {
	tier := float64(s.Tier)
	weight := s.AuthorityWeight
	raw := rawSource{
		ID:              s.ID,
		Name:            &s.Name,
		SourceType:      s.SourceType,
		Config:          s.Config,
		IsActive:        &s.IsActive,
		IsPublic:        &s.IsPublic,
		Tags:            s.Tags,
		Match:           s.Match,
		Tier:            &tier,
		AuthorityWeight: &weight,
		CreatedAt:       s.CreatedAt,
	}
	if s.Tier == 0 {
		raw.Tier = nil
	}
	if s.AuthorityWeight == 0 {
		raw.AuthorityWeight = nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	norm := raw.normalize()
	c.touch(&norm)
	c.sources[norm.ID] = &norm
	return norm.clone(), c.saveLocked()
}

// RemoveSource deletes a source and drops it from every subscription.
func (c *Catalog) RemoveSource(id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sources[id] == nil {
		return false, nil
	}
	delete(c.sources, id)
	for profile, ids := range c.subscriptions {
		kept := make([]string, 0, len(ids))
		for _, existing := range ids {
			if existing != id {
				kept = append(kept, existing)
			}
		}
		c.subscriptions[profile] = kept
	}
	return true, c.saveLocked()
}

// AddPack inserts or replaces a pack keyed by its lowercase slug.
func (c *Catalog) AddPack(p Pack) (*Pack, error) {
	raw := rawPack{
		Name:        &p.Name,
		Slug:        p.Slug,
		Description: p.Description,
		SourceIDs:   p.SourceIDs,
		IsPublic:    &p.IsPublic,
		CreatedAt:   p.CreatedAt,
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	norm := raw.normalize()
	now := model.FormatTime(c.nowFunc())
	if norm.CreatedAt == "" {
		norm.CreatedAt = now
	}
	norm.UpdatedAt = now
	c.packs[norm.Slug] = &norm
	return norm.clone(), c.saveLocked()
}

// RegisterAutoSource returns the source derived from (name, type, url),
// creating it with a URL prefix rule when it does not exist yet.
func (c *Catalog) RegisterAutoSource(name, sourceType, sourceURL string) (*Source, error) {
	id := sourceID(name, sourceType, sourceURL)

	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.sources[id]; ok {
		return s.clone(), nil
	}
	st := normalizeSourceType(sourceType)
	s := &Source{
		ID:              id,
		Name:            name,
		SourceType:      st,
		Config:          map[string]any{"url": sourceURL},
		IsActive:        true,
		IsPublic:        true,
		Tags:            []string{st},
		Match:           Match{URLPrefix: sourceURL},
		Tier:            DefaultTier,
		AuthorityWeight: DefaultAuthority,
	}
	c.touch(s)
	c.sources[id] = s
	zap.L().Debug("catalog: registered source", zap.String("id", id), zap.String("name", name))
	return s.clone(), c.saveLocked()
}

func (c *Catalog) touch(s *Source) {
	now := model.FormatTime(c.nowFunc())
	if s.CreatedAt == "" {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
}
