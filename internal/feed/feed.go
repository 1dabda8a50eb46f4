// Package feed renders inbox items as JSON Feed 1.1, RSS 2.0 and Atom 1.0
// documents.
package feed

import (
	"encoding/json"
	"encoding/xml"
	"io"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/datapulse/internal/model"
	"github.com/sells-group/datapulse/internal/urlkit"
)

// Format is an output document type.
type Format string

// Supported formats.
const (
	FormatJSON Format = "json"
	FormatRSS  Format = "rss"
	FormatAtom Format = "atom"
)

// JSONFeedVersion is the version URL written into every JSON Feed document.
const JSONFeedVersion = "https://jsonfeed.org/version/1.1"

const (
	atomNS       = "http://www.w3.org/2005/Atom"
	summaryRunes = 260
)

// ParseFormat accepts json, rss or atom in any case.
func ParseFormat(raw string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(raw))); f {
	case FormatJSON, FormatRSS, FormatAtom:
		return f, nil
	case "":
		return FormatJSON, nil
	default:
		return "", eris.Errorf("feed: unknown format %q (want json, rss or atom)", raw)
	}
}

// ContentType is the HTTP media type for f.
func (f Format) ContentType() string {
	switch f {
	case FormatRSS:
		return "application/rss+xml; charset=utf-8"
	case FormatAtom:
		return "application/atom+xml; charset=utf-8"
	default:
		return "application/feed+json; charset=utf-8"
	}
}

// Meta describes the feed itself.
type Meta struct {
	Title       string
	HomeURL     string
	FeedURL     string
	Description string
	// Updated is used for the feed timestamp and for items whose fetch
	// time cannot be parsed. Zero means now.
	Updated time.Time
}

func (m Meta) withDefaults() Meta {
	if m.Title == "" {
		m.Title = "DataPulse"
	}
	if m.Description == "" {
		m.Description = "Items collected by DataPulse"
	}
	if m.Updated.IsZero() {
		m.Updated = time.Now()
	}
	m.Updated = m.Updated.UTC()
	return m
}

// Render writes items in format f.
func Render(w io.Writer, f Format, meta Meta, items []*model.Item) error {
	switch f {
	case FormatRSS:
		return WriteRSS(w, meta, items)
	case FormatAtom:
		return WriteAtom(w, meta, items)
	case FormatJSON, "":
		return WriteJSON(w, meta, items)
	default:
		return eris.Errorf("feed: unknown format %q", f)
	}
}

func itemTime(it *model.Item, fallback time.Time) time.Time {
	if ts, ok := it.FetchedTime(); ok {
		return ts
	}
	return fallback
}

func summaryOf(it *model.Item) string {
	if s, ok := it.Extra.Str(model.ExtraRawExcerpt); ok && strings.TrimSpace(s) != "" {
		return s
	}
	return urlkit.Excerpt(it.Content, summaryRunes)
}

// --- JSON Feed 1.1 ---

// JSONFeed is a JSON Feed 1.1 document.
type JSONFeed struct {
	Version     string         `json:"version"`
	Title       string         `json:"title"`
	HomePageURL string         `json:"home_page_url,omitempty"`
	FeedURL     string         `json:"feed_url,omitempty"`
	Description string         `json:"description,omitempty"`
	Items       []JSONFeedItem `json:"items"`
}

// JSONFeedAuthor is one entry of an item's authors list.
type JSONFeedAuthor struct {
	Name string `json:"name"`
}

// JSONFeedItem is one feed item.
type JSONFeedItem struct {
	ID            string           `json:"id"`
	URL           string           `json:"url"`
	Title         string           `json:"title"`
	ContentText   string           `json:"content_text"`
	Summary       string           `json:"summary,omitempty"`
	DatePublished string           `json:"date_published"`
	Authors       []JSONFeedAuthor `json:"authors"`
	Tags          []string         `json:"tags,omitempty"`
	Extension     *jsonExtension   `json:"_datapulse,omitempty"`
}

type jsonExtension struct {
	SourceType  model.SourceType `json:"source_type"`
	Confidence  float64          `json:"confidence"`
	Score       int              `json:"score"`
	QualityRank int              `json:"quality_rank,omitempty"`
}

// BuildJSON builds the JSON Feed document.
func BuildJSON(meta Meta, items []*model.Item) JSONFeed {
	meta = meta.withDefaults()
	doc := JSONFeed{
		Version:     JSONFeedVersion,
		Title:       meta.Title,
		HomePageURL: meta.HomeURL,
		FeedURL:     meta.FeedURL,
		Description: meta.Description,
		Items:       make([]JSONFeedItem, 0, len(items)),
	}
	for _, it := range items {
		doc.Items = append(doc.Items, JSONFeedItem{
			ID:            it.ID,
			URL:           it.URL,
			Title:         it.Title,
			ContentText:   it.Content,
			Summary:       summaryOf(it),
			DatePublished: itemTime(it, meta.Updated).Format(time.RFC3339),
			Authors:       []JSONFeedAuthor{{Name: it.SourceName}},
			Tags:          it.Tags,
			Extension: &jsonExtension{
				SourceType:  it.SourceType,
				Confidence:  it.Confidence,
				Score:       it.Score,
				QualityRank: it.QualityRank,
			},
		})
	}
	return doc
}

// WriteJSON writes the JSON Feed document.
func WriteJSON(w io.Writer, meta Meta, items []*model.Item) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(BuildJSON(meta, items)); err != nil {
		return eris.Wrap(err, "feed: encode json feed")
	}
	return nil
}

// --- RSS 2.0 ---

type rssRoot struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title         string    `xml:"title"`
	Link          string    `xml:"link"`
	Description   string    `xml:"description"`
	LastBuildDate string    `xml:"lastBuildDate"`
	Generator     string    `xml:"generator"`
	Items         []rssItem `xml:"item"`
}

type rssGUID struct {
	IsPermaLink bool   `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

type rssItem struct {
	Title       string   `xml:"title"`
	Link        string   `xml:"link"`
	GUID        rssGUID  `xml:"guid"`
	Description string   `xml:"description"`
	PubDate     string   `xml:"pubDate"`
	Author      string   `xml:"author,omitempty"`
	Categories  []string `xml:"category"`
}

// WriteRSS writes an RSS 2.0 document.
func WriteRSS(w io.Writer, meta Meta, items []*model.Item) error {
	meta = meta.withDefaults()
	doc := rssRoot{
		Version: "2.0",
		Channel: rssChannel{
			Title:         meta.Title,
			Link:          meta.HomeURL,
			Description:   meta.Description,
			LastBuildDate: meta.Updated.Format(time.RFC1123Z),
			Generator:     "datapulse",
			Items:         make([]rssItem, 0, len(items)),
		},
	}
	for _, it := range items {
		doc.Channel.Items = append(doc.Channel.Items, rssItem{
			Title:       it.Title,
			Link:        it.URL,
			GUID:        rssGUID{Value: it.ID},
			Description: summaryOf(it),
			PubDate:     itemTime(it, meta.Updated).Format(time.RFC1123Z),
			Author:      it.SourceName,
			Categories:  it.Tags,
		})
	}
	return writeXML(w, doc, "rss")
}

// --- Atom 1.0 ---

type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Xmlns   string      `xml:"xmlns,attr"`
	Title   string      `xml:"title"`
	ID      string      `xml:"id"`
	Updated string      `xml:"updated"`
	Links   []atomLink  `xml:"link"`
	Entries []atomEntry `xml:"entry"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr,omitempty"`
}

type atomPerson struct {
	Name string `xml:"name"`
}

type atomCategory struct {
	Term string `xml:"term,attr"`
}

type atomEntry struct {
	Title      string         `xml:"title"`
	Link       atomLink       `xml:"link"`
	ID         string         `xml:"id"`
	Updated    string         `xml:"updated"`
	Summary    string         `xml:"summary"`
	Author     atomPerson     `xml:"author"`
	Categories []atomCategory `xml:"category"`
}

// AtomEntryID is the stable entry id for an item.
func AtomEntryID(it *model.Item) string {
	return "urn:datapulse:" + it.ID
}

// WriteAtom writes an Atom 1.0 document. The feed's updated time is the
// newest item's fetch time, or Meta.Updated when there are no items.
func WriteAtom(w io.Writer, meta Meta, items []*model.Item) error {
	meta = meta.withDefaults()
	updated := time.Time{}
	entries := make([]atomEntry, 0, len(items))
	for _, it := range items {
		ts := itemTime(it, meta.Updated)
		if ts.After(updated) {
			updated = ts
		}
		cats := make([]atomCategory, 0, len(it.Tags))
		for _, t := range it.Tags {
			cats = append(cats, atomCategory{Term: t})
		}
		entries = append(entries, atomEntry{
			Title:      it.Title,
			Link:       atomLink{Href: it.URL, Rel: "alternate"},
			ID:         AtomEntryID(it),
			Updated:    ts.Format(time.RFC3339),
			Summary:    summaryOf(it),
			Author:     atomPerson{Name: it.SourceName},
			Categories: cats,
		})
	}
	if updated.IsZero() {
		updated = meta.Updated
	}

	doc := atomFeed{
		Xmlns:   atomNS,
		Title:   meta.Title,
		ID:      "urn:datapulse:feed:" + urlkit.Slug(meta.Title, 60),
		Updated: updated.Format(time.RFC3339),
		Entries: entries,
	}
	if meta.HomeURL != "" {
		doc.Links = append(doc.Links, atomLink{Href: meta.HomeURL, Rel: "alternate"})
	}
	if meta.FeedURL != "" {
		doc.Links = append(doc.Links, atomLink{Href: meta.FeedURL, Rel: "self"})
	}
	return writeXML(w, doc, "atom")
}

func writeXML(w io.Writer, doc any, kind string) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return eris.Wrapf(err, "feed: write %s header", kind)
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return eris.Wrapf(err, "feed: encode %s", kind)
	}
	if err := enc.Close(); err != nil {
		return eris.Wrapf(err, "feed: flush %s", kind)
	}
	_, err := io.WriteString(w, "\n")
	return err
}
