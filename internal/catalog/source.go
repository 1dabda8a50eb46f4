// Package catalog is the registry of named sources, source packs and
// per-profile subscriptions. It resolves URLs to sources, filters items by
// subscription and supplies authority weights to ranking.
package catalog

import (
	"crypto/sha1" //nolint:gosec // id derivation only
	"encoding/hex"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/sells-group/datapulse/internal/model"
	"github.com/sells-group/datapulse/internal/urlkit"
)

// Tier and authority bounds. Out-of-range values are clamped on load.
const (
	MinTier          = 1
	MaxTier          = 3
	DefaultTier      = 2
	DefaultAuthority = 0.5
)

// Match holds the explicit URL matching rules of a source.
type Match struct {
	Domain    string `json:"domain,omitempty" yaml:"domain,omitempty"`
	URLPrefix string `json:"url_prefix,omitempty" yaml:"url_prefix,omitempty"`
	Pattern   string `json:"pattern,omitempty" yaml:"pattern,omitempty"`
}

// Source is a named, typed, matchable origin of items. SourceType may be
// a "|"-separated list of types.
type Source struct {
	ID              string         `json:"id" yaml:"id"`
	Name            string         `json:"name" yaml:"name"`
	SourceType      string         `json:"source_type" yaml:"source_type"`
	Config          map[string]any `json:"config" yaml:"config"`
	IsActive        bool           `json:"is_active" yaml:"is_active"`
	IsPublic        bool           `json:"is_public" yaml:"is_public"`
	Tags            []string       `json:"tags" yaml:"tags"`
	Match           Match          `json:"match" yaml:"match"`
	Tier            int            `json:"tier" yaml:"tier"`
	AuthorityWeight float64        `json:"authority_weight" yaml:"authority_weight"`
	CreatedAt       string         `json:"created_at" yaml:"created_at"`
	UpdatedAt       string         `json:"updated_at" yaml:"updated_at"`
}

// Pack groups source ids under a slug for bulk subscription.
type Pack struct {
	Name        string   `json:"name" yaml:"name"`
	Slug        string   `json:"slug" yaml:"slug"`
	Description string   `json:"description" yaml:"description"`
	SourceIDs   []string `json:"source_ids" yaml:"source_ids"`
	IsPublic    bool     `json:"is_public" yaml:"is_public"`
	CreatedAt   string   `json:"created_at" yaml:"created_at"`
	UpdatedAt   string   `json:"updated_at" yaml:"updated_at"`
}

// rawSource is the lenient on-disk shape. Pointers distinguish missing
// fields from zero values so defaults can apply.
type rawSource struct {
	ID              string         `json:"id" yaml:"id"`
	Name            *string        `json:"name" yaml:"name"`
	SourceType      string         `json:"source_type" yaml:"source_type"`
	Type            string         `json:"type" yaml:"type"`
	Config          map[string]any `json:"config" yaml:"config"`
	IsActive        *bool          `json:"is_active" yaml:"is_active"`
	IsPublic        *bool          `json:"is_public" yaml:"is_public"`
	Tags            []string       `json:"tags" yaml:"tags"`
	Match           Match          `json:"match" yaml:"match"`
	Tier            *float64       `json:"tier" yaml:"tier"`
	AuthorityWeight *float64       `json:"authority_weight" yaml:"authority_weight"`
	CreatedAt       string         `json:"created_at" yaml:"created_at"`
	UpdatedAt       string         `json:"updated_at" yaml:"updated_at"`
}

type rawPack struct {
	Name        *string  `json:"name" yaml:"name"`
	Slug        string   `json:"slug" yaml:"slug"`
	Description string   `json:"description" yaml:"description"`
	SourceIDs   []string `json:"source_ids" yaml:"source_ids"`
	IsPublic    *bool    `json:"is_public" yaml:"is_public"`
	CreatedAt   string   `json:"created_at" yaml:"created_at"`
	UpdatedAt   string   `json:"updated_at" yaml:"updated_at"`
}

// sourceID derives the id used when a record does not carry one.
func sourceID(name, sourceType, rawURL string) string {
	sum := sha1.Sum([]byte(name + ":" + sourceType + ":" + rawURL)) //nolint:gosec
	return hex.EncodeToString(sum[:])[:12]
}

// normalizeSourceType lowercases known and unknown types alike; an empty
// value becomes generic.
func normalizeSourceType(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return string(model.SourceGeneric)
	}
	return v
}

func clampTier(v *float64) int {
	if v == nil {
		return DefaultTier
	}
	t := int(*v)
	return max(MinTier, min(MaxTier, t))
}

func clampAuthority(v *float64) float64 {
	if v == nil {
		return DefaultAuthority
	}
	return max(0, min(1, *v))
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func (r rawSource) normalize() Source {
	st := r.SourceType
	if strings.TrimSpace(st) == "" {
		st = r.Type
	}
	st = normalizeSourceType(st)

	name := "source"
	if r.Name != nil {
		name = strings.TrimSpace(*r.Name)
	}
	if name == "" {
		name = st
	}

	cfg := r.Config
	if cfg == nil {
		cfg = map[string]any{}
	}
	id := strings.TrimSpace(r.ID)
	if id == "" {
		id = sourceID(name, st, configString(cfg, "url"))
	}

	tags := make([]string, 0, len(r.Tags))
	for _, t := range r.Tags {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}

	return Source{
		ID:         id,
		Name:       name,
		SourceType: st,
		Config:     cfg,
		IsActive:   boolOr(r.IsActive, true),
		IsPublic:   boolOr(r.IsPublic, true),
		Tags:       tags,
		Match: Match{
			Domain:    strings.TrimSpace(r.Match.Domain),
			URLPrefix: strings.TrimSpace(r.Match.URLPrefix),
			Pattern:   strings.TrimSpace(r.Match.Pattern),
		},
		Tier:            clampTier(r.Tier),
		AuthorityWeight: clampAuthority(r.AuthorityWeight),
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func (r rawPack) normalize() Pack {
	name := "pack"
	if r.Name != nil {
		name = strings.TrimSpace(*r.Name)
	}
	slug := strings.TrimSpace(r.Slug)
	if slug == "" {
		slug = urlkit.Slug(name, 80)
	}
	ids := make([]string, 0, len(r.SourceIDs))
	for _, id := range r.SourceIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return Pack{
		Name:        name,
		Slug:        strings.ToLower(slug),
		Description: r.Description,
		SourceIDs:   ids,
		IsPublic:    boolOr(r.IsPublic, true),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func configString(cfg map[string]any, key string) string {
	if v, ok := cfg[key].(string); ok {
		return v
	}
	return ""
}

// URL returns the configured source URL, if any.
func (s *Source) URL() string { return configString(s.Config, "url") }

// Types returns the declared source types.
func (s *Source) Types() []string { return strings.Split(s.SourceType, "|") }

func (s *Source) hasType(st string) bool {
	if s.SourceType == st {
		return true
	}
	for _, t := range s.Types() {
		if t == st {
			return true
		}
	}
	return false
}

// compiledPatterns caches match patterns by source text. Patterns that do
// not compile are stored as a nil *regexp.Regexp.
var compiledPatterns sync.Map

func compilePattern(pattern string) *regexp.Regexp {
	if cached, ok := compiledPatterns.Load(pattern); ok {
		return cached.(*regexp.Regexp)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		re = nil
	}
	actual, _ := compiledPatterns.LoadOrStore(pattern, re)
	return actual.(*regexp.Regexp)
}

// matchPattern treats pattern as a regular expression, falling back to a
// substring test when it does not compile.
func matchPattern(pattern, target string) bool {
	if pattern == "" {
		return false
	}
	re := compilePattern(pattern)
	if re == nil {
		return strings.Contains(target, pattern)
	}
	return re.MatchString(target)
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// Matches reports whether the item belongs to this source. The type must
// agree first; then domain, URL prefix, pattern and finally the configured
// source URL are tried in order.
func (s *Source) Matches(it *model.Item) bool {
	if !s.hasType(string(it.SourceType)) {
		return false
	}
	host := hostOf(it.URL)

	if d := strings.ToLower(s.Match.Domain); d != "" && urlkit.HostMatches(d, host) {
		return true
	}
	if p := s.Match.URLPrefix; p != "" && strings.HasPrefix(it.URL, p) {
		return true
	}
	if matchPattern(s.Match.Pattern, it.URL) {
		return true
	}
	srcURL := strings.ToLower(s.URL())
	if srcURL != "" && strings.HasPrefix(it.URL, srcURL) {
		return true
	}
	if srcHost := hostOf(srcURL); srcHost != "" && urlkit.HostMatches(srcHost, host) {
		return true
	}
	return false
}

// clone returns a copy safe to hand to callers.
func (s *Source) clone() *Source {
	cp := *s
	cp.Config = make(map[string]any, len(s.Config))
	for k, v := range s.Config {
		cp.Config[k] = v
	}
	cp.Tags = append([]string(nil), s.Tags...)
	return &cp
}

func (p *Pack) clone() *Pack {
	cp := *p
	cp.SourceIDs = append([]string(nil), p.SourceIDs...)
	return &cp
}
