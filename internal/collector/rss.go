package collector

import (
	"context"
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"
	"github.com/rotisserie/eris"

	"github.com/sells-group/datapulse/internal/fetcher"
	"github.com/sells-group/datapulse/internal/model"
	"github.com/sells-group/datapulse/internal/urlkit"
)

const feedAccept = "application/rss+xml, application/atom+xml, application/feed+json, application/xml;q=0.9, text/xml;q=0.8"

// RSS reads RSS, Atom and JSON feeds and returns the newest entry.
type RSS struct {
	meta
	fetch  fetcher.Fetcher
	strict *bluemonday.Policy
}

// NewRSS creates the feed collector.
func NewRSS(f fetcher.Fetcher) *RSS {
	return &RSS{
		meta:   meta{name: "rss", sourceType: model.SourceRSS, tier: TierLocal},
		fetch:  f,
		strict: bluemonday.StrictPolicy(),
	}
}

func (r *RSS) CanHandle(url string) bool { return urlkit.IsFeedURL(url) }

func (r *RSS) HealthCheck(_ context.Context) Health {
	return Health{Status: StatusOK, Message: "built-in feed parser", Available: true}
}

// Parse fetches the feed and builds a result from its first entry.
func (r *RSS) Parse(ctx context.Context, url string) (*model.ParseResult, error) {
	resp, err := r.fetch.Fetch(ctx, fetcher.Request{URL: url, Accept: feedAccept})
	if err != nil {
		return nil, err
	}

	feed, err := gofeed.NewParser().ParseString(string(resp.Body))
	if err != nil {
		return nil, eris.Wrap(err, "rss: invalid feed")
	}
	if len(feed.Items) == 0 {
		return nil, eris.New("rss: feed has no entries")
	}

	feedTitle := strings.TrimSpace(feed.Title)
	if feedTitle == "" {
		feedTitle = url
	}
	first := feed.Items[0]

	body := first.Content
	if strings.TrimSpace(body) == "" {
		body = first.Description
	}
	content := urlkit.CleanText(r.strict.Sanitize(body))
	if content == "" {
		content = "No content available"
	}

	link := strings.TrimSpace(first.Link)
	if link == "" {
		link = url
	}

	res := r.success(link, fmt.Sprintf("[%s] %s", feedTitle, strings.TrimSpace(first.Title)), content, feedTitle)
	res.Tags = append([]string{"rss", "feed"}, first.Categories...)
	res.ConfidenceFlags = []string{"rss-feed", "latest-item"}
	res.Extra["source_url"] = model.String(url)
	res.Extra["published"] = model.String(first.Published)
	res.Extra["feed_type"] = model.String(feed.FeedType)
	if first.Author != nil && first.Author.Name != "" {
		res.Extra["entry_author"] = model.String(first.Author.Name)
	}
	return res, nil
}
