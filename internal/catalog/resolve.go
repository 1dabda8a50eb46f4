package catalog

import (
	"net/url"
	"sort"
	"strings"

	"github.com/sells-group/datapulse/internal/model"
	"github.com/sells-group/datapulse/internal/urlkit"
)

// Resolve priorities. Higher wins; ties break on lowercase name then id.
const (
	scoreURLPrefix  = 100
	scoreDomain     = 90
	scorePattern    = 80
	scoreConfigURL  = 70
	scoreConfigHost = 50
	scoreTypeOnly   = 20
)

// Resolution is the public view of the source a URL resolves to. SourceID
// is empty for synthesized placeholders.
type Resolution struct {
	SourceID   string         `json:"source_id,omitempty"`
	SourceType string         `json:"source_type"`
	Name       string         `json:"name"`
	Config     map[string]any `json:"config"`
	Tags       []string       `json:"tags"`
	Match      Match          `json:"match"`
	IsPublic   bool           `json:"is_public"`
	IsActive   bool           `json:"is_active"`
}

func (s *Source) resolveScore(seed, host, hint string) int {
	score := 0
	if d := strings.ToLower(s.Match.Domain); d != "" && urlkit.HostMatches(d, host) {
		score = max(score, scoreDomain)
	}
	if p := s.Match.URLPrefix; p != "" && strings.HasPrefix(seed, p) {
		score = max(score, scoreURLPrefix)
	}
	if matchPattern(s.Match.Pattern, seed) {
		score = max(score, scorePattern)
	}
	srcURL := strings.ToLower(strings.TrimSpace(s.URL()))
	if srcURL != "" && strings.HasPrefix(seed, srcURL) {
		score = max(score, scoreConfigURL)
	}
	if srcHost := hostOf(srcURL); srcHost != "" && urlkit.HostMatches(srcHost, host) {
		score = max(score, scoreConfigHost)
	}
	if s.SourceType == hint && score < scoreTypeOnly {
		score = scoreTypeOnly
	}
	return score
}

// Resolve finds the best active source for url, or synthesizes a
// placeholder from the host and platform hint when nothing matches.
func (c *Catalog) Resolve(rawURL string) Resolution {
	hint := urlkit.PlatformHint(rawURL)
	seed := rawURL
	var host, path string
	if u, err := url.Parse(rawURL); err == nil {
		host = strings.ToLower(u.Hostname())
		path = u.Path
		if s := u.String(); s != "" {
			seed = s
		}
	}
	normHint := normalizeSourceType(hint)

	c.mu.RLock()
	type ranked struct {
		score int
		src   *Source
	}
	var hits []ranked
	for _, s := range c.sources {
		if !s.IsActive {
			continue
		}
		if score := s.resolveScore(seed, host, normHint); score > 0 {
			hits = append(hits, ranked{score, s})
		}
	}
	if len(hits) > 0 {
		sort.Slice(hits, func(i, j int) bool {
			if hits[i].score != hits[j].score {
				return hits[i].score > hits[j].score
			}
			ni, nj := strings.ToLower(hits[i].src.Name), strings.ToLower(hits[j].src.Name)
			if ni != nj {
				return ni < nj
			}
			return hits[i].src.ID < hits[j].src.ID
		})
		chosen := hits[0].src.clone()
		c.mu.RUnlock()
		return Resolution{
			SourceID:   chosen.ID,
			SourceType: chosen.SourceType,
			Name:       chosen.Name,
			Config:     chosen.Config,
			Tags:       chosen.Tags,
			Match:      chosen.Match,
			IsPublic:   chosen.IsPublic,
			IsActive:   chosen.IsActive,
		}
	}
	c.mu.RUnlock()

	seedHost := host
	if seedHost == "" {
		seedHost = urlkit.Truncate(path, 30)
	}
	name := host
	if name == "" {
		name = hint
	}
	if name == "" {
		name = "source"
	}
	return Resolution{
		SourceType: hint,
		Name:       name,
		Config:     map[string]any{"url": seed, "seed_host": seedHost},
		Tags:       []string{hint},
		IsPublic:   true,
		IsActive:   true,
	}
}

// FilterBySubscription keeps items matched by at least one active source in
// the target set. A nil ids slice means the profile's subscription, falling
// back to every public active source; when that is still empty all items
// pass through.
func (c *Catalog) FilterBySubscription(items []*model.Item, profile string, ids []string) []*model.Item {
	if len(items) == 0 {
		return []*model.Item{}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if ids == nil {
		ids = append([]string(nil), c.subscriptions[profileKey(profile)]...)
		if len(ids) == 0 {
			for _, s := range c.listSourcesLocked(false, true) {
				ids = append(ids, s.ID)
			}
		}
		if len(ids) == 0 {
			return items
		}
	}

	targets := make([]*Source, 0, len(ids))
	for _, id := range ids {
		if s := c.sources[id]; s != nil && s.IsActive {
			targets = append(targets, s)
		}
	}

	out := make([]*model.Item, 0, len(items))
	for _, it := range items {
		for _, s := range targets {
			if s.Matches(it) {
				out = append(out, it)
				break
			}
		}
	}
	return out
}

// BuildAuthorityMap maps each active source's lowercase name and its
// registered domain to its authority weight. Explicit match domains take
// precedence over the configured URL's domain.
func (c *Catalog) BuildAuthorityMap() map[string]float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]float64, len(c.sources)*2)
	for _, s := range c.listSourcesLocked(false, false) {
		if name := strings.ToLower(strings.TrimSpace(s.Name)); name != "" {
			out[name] = s.AuthorityWeight
		}
		domain := strings.ToLower(strings.TrimSpace(s.Match.Domain))
		if domain == "" && s.URL() != "" {
			domain = urlkit.Domain(s.URL())
		}
		if domain != "" && domain != "unknown" {
			out[domain] = s.AuthorityWeight
		}
	}
	return out
}
