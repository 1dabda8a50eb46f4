package model

import (
	"crypto/md5" //nolint:gosec // id derivation, not a security boundary
	"encoding/hex"
	"strings"
	"time"
)

// SourceType is the coarse platform tag attached to every item.
type SourceType string

const (
	SourceTwitter  SourceType = "twitter"
	SourceReddit   SourceType = "reddit"
	SourceYouTube  SourceType = "youtube"
	SourceBilibili SourceType = "bilibili"
	SourceTelegram SourceType = "telegram"
	SourceWeChat   SourceType = "wechat"
	SourceXHS      SourceType = "xhs"
	SourceRSS      SourceType = "rss"
	SourceHN       SourceType = "hackernews"
	SourceArxiv    SourceType = "arxiv"
	SourceGeneric  SourceType = "generic"
	SourceManual   SourceType = "manual"
)

// AllSourceTypes returns every known source type in declaration order.
func AllSourceTypes() []SourceType {
	return []SourceType{
		SourceTwitter,
		SourceReddit,
		SourceYouTube,
		SourceBilibili,
		SourceTelegram,
		SourceWeChat,
		SourceXHS,
		SourceRSS,
		SourceHN,
		SourceArxiv,
		SourceGeneric,
		SourceManual,
	}
}

// ParseSourceType maps a raw string onto a known SourceType. Unknown or
// empty values map to SourceGeneric and ok is false.
func ParseSourceType(raw string) (st SourceType, ok bool) {
	v := SourceType(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range AllSourceTypes() {
		if v == known {
			return known, true
		}
	}
	return SourceGeneric, false
}

// UnmarshalText lets unknown persisted types degrade to generic instead of
// failing the whole record.
func (s *SourceType) UnmarshalText(b []byte) error {
	*s, _ = ParseSourceType(string(b))
	return nil
}

// MediaType describes the dominant medium of an item.
type MediaType string

const (
	MediaText  MediaType = "text"
	MediaVideo MediaType = "video"
	MediaAudio MediaType = "audio"
	MediaImage MediaType = "image"
)

// ParseMediaType maps a raw string onto a MediaType, defaulting to text.
func ParseMediaType(raw string) MediaType {
	switch MediaType(strings.ToLower(strings.TrimSpace(raw))) {
	case MediaVideo:
		return MediaVideo
	case MediaAudio:
		return MediaAudio
	case MediaImage:
		return MediaImage
	default:
		return MediaText
	}
}

// UnmarshalText normalizes persisted media types.
func (m *MediaType) UnmarshalText(b []byte) error {
	*m = ParseMediaType(string(b))
	return nil
}

// Extra keys written by the core.
const (
	ExtraRawExcerpt     = "raw_excerpt"
	ExtraScoreBreakdown = "score_breakdown"
	ExtraSearchQuery    = "search_query"
)

// Item is the canonical unit of content stored in the inbox.
type Item struct {
	ID                string     `json:"id"`
	SourceType        SourceType `json:"source_type"`
	SourceName        string     `json:"source_name"`
	Title             string     `json:"title"`
	Content           string     `json:"content"`
	URL               string     `json:"url"`
	Parser            string     `json:"parser"`
	FetchedAt         string     `json:"fetched_at"`
	MediaType         MediaType  `json:"media_type"`
	Score             int        `json:"score"`
	Confidence        float64    `json:"confidence"`
	ConfidenceFactors []string   `json:"confidence_factors"`
	QualityRank       int        `json:"quality_rank"`
	Tags              []string   `json:"tags"`
	Language          string     `json:"language"`
	Category          string     `json:"category"`
	Extra             Extra      `json:"extra"`
	Processed         bool       `json:"processed"`
	DigestDate        *string    `json:"digest_date"`
}

// ItemID derives the stable item id from url and title. Body text is
// deliberately excluded so refetches of the same story collide.
func ItemID(url, title string) string {
	sum := md5.Sum([]byte(url + ":" + title)) //nolint:gosec
	return hex.EncodeToString(sum[:])[:12]
}

// NewItem builds an Item with its id, fetch timestamp and defaults filled in.
func NewItem(sourceType SourceType, sourceName, title, content, url string) *Item {
	it := &Item{
		SourceType: sourceType,
		SourceName: sourceName,
		Title:      title,
		Content:    content,
		URL:        url,
	}
	it.EnsureDefaults(time.Now())
	return it
}

// EnsureDefaults fills the id, fetch time, media type, language and extra
// bag when they are missing. Existing values are never overwritten.
func (it *Item) EnsureDefaults(now time.Time) {
	if it.ID == "" {
		it.ID = ItemID(it.URL, it.Title)
	}
	if it.FetchedAt == "" {
		it.FetchedAt = FormatTime(now)
	}
	if it.SourceType == "" {
		it.SourceType = SourceGeneric
	}
	if it.MediaType == "" {
		it.MediaType = MediaText
	}
	if it.Language == "" {
		it.Language = "unknown"
	}
	if it.Extra == nil {
		it.Extra = Extra{}
	}
	if it.Tags == nil {
		it.Tags = []string{}
	}
	if it.ConfidenceFactors == nil {
		it.ConfidenceFactors = []string{}
	}
}

// FetchedTime parses FetchedAt. ok is false when the stored value is not a
// recognizable timestamp.
func (it *Item) FetchedTime() (time.Time, bool) {
	return ParseTime(it.FetchedAt)
}

// SetDigestDate stamps the item as selected into a digest on the given day.
func (it *Item) SetDigestDate(day time.Time) {
	d := day.UTC().Format(time.DateOnly)
	it.DigestDate = &d
}

// Clone returns a deep copy so ranking passes can annotate without touching
// the stored record.
func (it *Item) Clone() *Item {
	cp := *it
	cp.ConfidenceFactors = append([]string(nil), it.ConfidenceFactors...)
	cp.Tags = append([]string(nil), it.Tags...)
	cp.Extra = it.Extra.Clone()
	if it.DigestDate != nil {
		d := *it.DigestDate
		cp.DigestDate = &d
	}
	return &cp
}

// FormatTime renders timestamps the way items persist them.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.DateOnly,
}

// ParseTime accepts RFC3339 timestamps as well as naive ISO-8601 values,
// which are interpreted as UTC.
func ParseTime(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
