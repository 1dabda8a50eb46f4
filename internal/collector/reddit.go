package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/datapulse/internal/fetcher"
	"github.com/sells-group/datapulse/internal/model"
	"github.com/sells-group/datapulse/internal/urlkit"
)

const (
	redditUserAgent   = "DataPulse/1.0 (+https://github.com/sells-group/datapulse)"
	maxRedditComments = 15
	maxReplyDepth     = 3
	maxRepliesPerNode = 3
)

// Reddit reads public threads through the native .json endpoint.
type Reddit struct {
	meta
	fetch fetcher.Fetcher
}

// NewReddit creates the Reddit collector.
func NewReddit(f fetcher.Fetcher) *Reddit {
	return &Reddit{
		meta:  meta{name: "reddit", sourceType: model.SourceReddit, tier: TierPublic},
		fetch: f,
	}
}

func (r *Reddit) CanHandle(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return urlkit.IsPlatformHost(urlkit.HintReddit, u.Hostname()) && strings.Contains(u.Path, "/comments/")
}

func (r *Reddit) HealthCheck(_ context.Context) Health {
	return Health{Status: StatusOK, Message: "public json endpoint", Available: true}
}

type redditListing struct {
	Data struct {
		Children []redditThing `json:"children"`
	} `json:"data"`
}

type redditThing struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type redditPost struct {
	Title       string  `json:"title"`
	Author      string  `json:"author"`
	Subreddit   string  `json:"subreddit_name_prefixed"`
	Score       int     `json:"score"`
	CreatedUTC  float64 `json:"created_utc"`
	NumComments int     `json:"num_comments"`
	Selftext    string  `json:"selftext"`
	URL         string  `json:"url"`
	IsSelf      bool    `json:"is_self"`
	Flair       string  `json:"link_flair_text"`
}

type redditComment struct {
	Author string `json:"author"`
	Body   string `json:"body"`
	Score  int    `json:"score"`
	// Replies is "" when empty and a listing otherwise.
	Replies json.RawMessage `json:"replies"`
}

// JSONURL maps a thread URL onto its .json endpoint.
func JSONURL(rawURL string) string {
	normalized := strings.TrimRight(strings.TrimSpace(rawURL), "/")
	if normalized == "" || strings.HasSuffix(normalized, ".json") {
		return normalized
	}
	return normalized + "/.json"
}

// Parse fetches the thread and renders the post plus its top comments.
func (r *Reddit) Parse(ctx context.Context, rawURL string) (*model.ParseResult, error) {
	jsonURL := JSONURL(rawURL)
	if jsonURL == "" {
		return nil, eris.New("reddit: invalid post url")
	}

	resp, err := r.fetch.Fetch(ctx, fetcher.Request{
		URL:     jsonURL,
		Accept:  "application/json",
		Headers: map[string]string{"User-Agent": redditUserAgent},
	})
	if err != nil {
		return nil, err
	}

	var listings []redditListing
	if err := json.Unmarshal(resp.Body, &listings); err != nil {
		return nil, eris.Wrap(err, "reddit: unexpected json payload")
	}
	if len(listings) == 0 || len(listings[0].Data.Children) == 0 {
		return nil, eris.New("reddit: unexpected json payload")
	}
	var post redditPost
	if err := json.Unmarshal(listings[0].Data.Children[0].Data, &post); err != nil {
		return nil, eris.Wrap(err, "reddit: decode post")
	}
	if post.Title == "" {
		post.Title = "Untitled"
	}
	if post.Author == "" {
		post.Author = "[deleted]"
	}
	if post.Subreddit == "" {
		post.Subreddit = "r/unknown"
	}

	var comments []string
	if len(listings) > 1 {
		comments = topComments(listings[1].Data.Children)
	}

	content := urlkit.CleanText(renderPost(post, comments))
	res := r.success(rawURL, fmt.Sprintf("[%s] %s", post.Subreddit, post.Title), content, "u/"+post.Author)
	res.Tags = []string{"reddit", strings.ToLower(post.Subreddit)}
	if post.Flair != "" {
		res.Tags = append(res.Tags, strings.ReplaceAll(strings.ToLower(post.Flair), " ", "-"))
	}
	if !post.IsSelf {
		res.Tags = append(res.Tags, "link-post")
	}
	res.ConfidenceFlags = []string{model.FlagNativeJSON}
	if len(comments) > 0 {
		res.ConfidenceFlags = append(res.ConfidenceFlags, model.FlagComments)
	}
	res.Extra["score"] = model.Number(float64(post.Score))
	res.Extra["num_comments"] = model.Number(float64(post.NumComments))
	res.Extra["created_utc"] = model.Number(post.CreatedUTC)
	res.Extra["flair"] = model.String(post.Flair)
	return res, nil
}

func renderPost(p redditPost, comments []string) string {
	ts := ""
	if p.CreatedUTC > 0 {
		ts = time.Unix(int64(p.CreatedUTC), 0).UTC().Format("2006-01-02 15:04 UTC")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", p.Title)
	fmt.Fprintf(&b, "**%s** · u/%s · %s\n", p.Subreddit, p.Author, ts)
	fmt.Fprintf(&b, "\nscore %d · comments %d\n", p.Score, p.NumComments)
	if p.Flair != "" {
		fmt.Fprintf(&b, "flair: %s\n", p.Flair)
	}
	switch {
	case p.Selftext != "":
		b.WriteString("\n---\n" + p.Selftext + "\n")
	case p.URL != "" && !p.IsSelf:
		b.WriteString("\nlink: " + p.URL + "\n")
	}
	if len(comments) > 0 {
		b.WriteString("\n---\n## Top Comments\n")
		for _, c := range comments {
			b.WriteString(c + "\n")
		}
	}
	return b.String()
}

// topComments renders the highest-scored top-level comments with a few
// nested replies each.
func topComments(children []redditThing) []string {
	var top []redditComment
	for _, c := range children {
		if c.Kind != "t1" {
			continue
		}
		var rc redditComment
		if json.Unmarshal(c.Data, &rc) == nil {
			top = append(top, rc)
		}
	}
	sort.SliceStable(top, func(i, j int) bool { return top[i].Score > top[j].Score })
	if len(top) > maxRedditComments {
		top = top[:maxRedditComments]
	}

	var out []string
	for _, c := range top {
		body := quoteBody(c.Body)
		if body == "" || body == "[deleted]" || body == "[removed]" {
			continue
		}
		out = append(out, fmt.Sprintf("\n### u/%s (score %d)\n> %s", authorOr(c.Author), c.Score, body))
		if nested := nestedReplies(c.Replies, 1); len(nested) > 0 {
			out = append(out, strings.Join(nested, "\n"))
		}
	}
	return out
}

func nestedReplies(raw json.RawMessage, depth int) []string {
	if depth > maxReplyDepth || !bytes.HasPrefix(bytes.TrimSpace(raw), []byte("{")) {
		return nil
	}
	var listing redditListing
	if json.Unmarshal(raw, &listing) != nil {
		return nil
	}
	var out []string
	for i, child := range listing.Data.Children {
		if i >= maxRepliesPerNode {
			break
		}
		if child.Kind != "t1" {
			continue
		}
		var rc redditComment
		if json.Unmarshal(child.Data, &rc) != nil {
			continue
		}
		body := quoteBody(rc.Body)
		if body == "" {
			continue
		}
		out = append(out, fmt.Sprintf("%s u/%s: %s", strings.Repeat(">", depth+1), authorOr(rc.Author), body))
		out = append(out, nestedReplies(rc.Replies, depth+1)...)
	}
	return out
}

func quoteBody(s string) string {
	return strings.ReplaceAll(urlkit.CleanText(s), "\n", "\n> ")
}

func authorOr(a string) string {
	if a == "" {
		return "[deleted]"
	}
	return a
}
