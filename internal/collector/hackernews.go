package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rotisserie/eris"

	"github.com/sells-group/datapulse/internal/fetcher"
	"github.com/sells-group/datapulse/internal/model"
	"github.com/sells-group/datapulse/internal/urlkit"
)

// DefaultHackerNewsAPI is the public Firebase endpoint for HN items.
const DefaultHackerNewsAPI = "https://hacker-news.firebaseio.com/v0"

const (
	hnHighScore    = 100
	hnBusyComments = 50
)

var hnItemID = regexp.MustCompile(`[?&]id=(\d+)`)

// HackerNewsOptions configures the HN collector.
type HackerNewsOptions struct {
	// APIBase overrides the Firebase endpoint.
	APIBase string
}

// HackerNews reads stories, comments and polls through the Firebase API.
type HackerNews struct {
	meta
	fetch  fetcher.Fetcher
	api    string
	strict *bluemonday.Policy
}

// NewHackerNews creates the Hacker News collector.
func NewHackerNews(f fetcher.Fetcher, opts HackerNewsOptions) *HackerNews {
	api := strings.TrimRight(opts.APIBase, "/")
	if api == "" {
		api = DefaultHackerNewsAPI
	}
	return &HackerNews{
		meta:   meta{name: "hackernews", sourceType: model.SourceHN, tier: TierPublic},
		fetch:  f,
		api:    api,
		strict: bluemonday.StrictPolicy(),
	}
}

func (h *HackerNews) CanHandle(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Hostname(), "news.ycombinator.com")
}

func (h *HackerNews) HealthCheck(_ context.Context) Health {
	return Health{Status: StatusOK, Message: "public firebase api", Available: true}
}

// HNItemID extracts the numeric item id from an HN URL, or "".
func HNItemID(rawURL string) string {
	if m := hnItemID.FindStringSubmatch(rawURL); m != nil {
		return m[1]
	}
	return ""
}

type hnItem struct {
	ID          int64  `json:"id"`
	Type        string `json:"type"`
	By          string `json:"by"`
	Time        int64  `json:"time"`
	Title       string `json:"title"`
	Text        string `json:"text"`
	URL         string `json:"url"`
	Score       int    `json:"score"`
	Descendants int    `json:"descendants"`
	Dead        bool   `json:"dead"`
	Deleted     bool   `json:"deleted"`
}

// Parse fetches one item and renders its title, link, text and counters.
func (h *HackerNews) Parse(ctx context.Context, rawURL string) (*model.ParseResult, error) {
	id := HNItemID(rawURL)
	if id == "" {
		return nil, eris.New("hackernews: could not extract item id")
	}

	resp, err := h.fetch.Fetch(ctx, fetcher.Request{
		URL:    fmt.Sprintf("%s/item/%s.json", h.api, id),
		Accept: "application/json",
	})
	if err != nil {
		return nil, err
	}

	// Firebase answers unknown ids with a literal null.
	body := bytes.TrimSpace(resp.Body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return nil, eris.Errorf("hackernews: item %s not found", id)
	}
	var item hnItem
	if err := json.Unmarshal(body, &item); err != nil {
		return nil, eris.Wrap(err, "hackernews: unexpected json payload")
	}
	if item.Dead || item.Deleted {
		return nil, eris.Errorf("hackernews: item %s is dead or deleted", id)
	}
	if item.Type == "" {
		item.Type = "story"
	}

	var parts []string
	if item.Title != "" {
		parts = append(parts, "**"+item.Title+"**")
	}
	if item.URL != "" {
		parts = append(parts, "Link: "+item.URL)
	}
	if text := h.plainText(item.Text); text != "" {
		parts = append(parts, text)
	}
	parts = append(parts, fmt.Sprintf("Score: %d | Comments: %d", item.Score, item.Descendants))

	title := item.Title
	if title == "" {
		title = "HN #" + id
	}
	res := h.success(rawURL, title, strings.Join(parts, "\n\n"), item.By)
	res.Tags = []string{"hackernews", item.Type}
	res.ConfidenceFlags = []string{"hn-api"}
	if item.Score >= hnHighScore {
		res.ConfidenceFlags = append(res.ConfidenceFlags, model.FlagEngagement)
	}
	if item.Descendants >= hnBusyComments {
		res.ConfidenceFlags = append(res.ConfidenceFlags, model.FlagComments)
	}
	res.Extra["hn_id"] = model.String(id)
	res.Extra["hn_score"] = model.Number(float64(item.Score))
	res.Extra["hn_comments"] = model.Number(float64(item.Descendants))
	res.Extra["hn_type"] = model.String(item.Type)
	res.Extra["hn_time"] = model.Number(float64(item.Time))
	res.Extra["linked_url"] = model.String(item.URL)
	return res, nil
}

// plainText turns HN's paragraph-tagged HTML into plain text.
func (h *HackerNews) plainText(raw string) string {
	raw = strings.ReplaceAll(raw, "<p>", "\n\n")
	return urlkit.CleanText(html.UnescapeString(h.strict.Sanitize(raw)))
}
