package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/datapulse/internal/fetcher"
	"github.com/sells-group/datapulse/internal/model"
	"github.com/sells-group/datapulse/internal/urlkit"
)

// DefaultFxTwitterAPI is the public FxTwitter endpoint.
const DefaultFxTwitterAPI = "https://api.fxtwitter.com"

const maxTweetTitle = 180

var (
	statusPattern   = regexp.MustCompile(`(?:x|twitter)\.com/([a-zA-Z0-9_]{1,15})/status/(\d+)`)
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{1,15}$`)
	reservedPaths   = map[string]bool{
		"home": true, "explore": true, "search": true, "messages": true,
		"notifications": true, "settings": true, "i": true,
	}
)

// TwitterOptions configures the Twitter collector.
type TwitterOptions struct {
	// APIBase overrides the FxTwitter endpoint.
	APIBase string
	// NitterInstances are tried in order when FxTwitter fails.
	NitterInstances []string
}

// Twitter reads posts and profiles from X/Twitter via FxTwitter, with an
// optional Nitter HTML fallback.
type Twitter struct {
	meta
	fetch  fetcher.Fetcher
	api    string
	nitter []string
}

// NewTwitter creates the Twitter collector.
func NewTwitter(f fetcher.Fetcher, opts TwitterOptions) *Twitter {
	api := strings.TrimRight(opts.APIBase, "/")
	if api == "" {
		api = DefaultFxTwitterAPI
	}
	nitter := make([]string, 0, len(opts.NitterInstances))
	for _, n := range opts.NitterInstances {
		if n = strings.TrimRight(strings.TrimSpace(n), "/"); n != "" {
			nitter = append(nitter, n)
		}
	}
	return &Twitter{
		meta:   meta{name: "twitter", sourceType: model.SourceTwitter, tier: TierPublic},
		fetch:  f,
		api:    api,
		nitter: nitter,
	}
}

func (t *Twitter) CanHandle(rawURL string) bool {
	host := strings.TrimPrefix(urlkit.Host(rawURL), "www.")
	return urlkit.IsPlatformHost(urlkit.HintTwitter, host)
}

func (t *Twitter) HealthCheck(_ context.Context) Health {
	msg := "fxtwitter api"
	if len(t.nitter) > 0 {
		msg += fmt.Sprintf(", %d nitter fallbacks", len(t.nitter))
	}
	return Health{Status: StatusOK, Message: msg, Available: true}
}

type fxResponse struct {
	Code    int     `json:"code"`
	Message string  `json:"message"`
	Tweet   *fxPost `json:"tweet"`
	User    *fxUser `json:"user"`
}

type fxUser struct {
	Name        string `json:"name"`
	ScreenName  string `json:"screen_name"`
	Description string `json:"description"`
	Followers   int    `json:"followers"`
	Following   int    `json:"following"`
	URL         string `json:"url"`
}

type fxPost struct {
	Text      string  `json:"text"`
	CreatedAt string  `json:"created_at"`
	Author    fxUser  `json:"author"`
	Likes     int     `json:"likes"`
	Retweets  int     `json:"retweets"`
	Replies   int     `json:"replies"`
	Views     int     `json:"views"`
	IsArticle bool    `json:"is_article"`
	Quote     *fxPost `json:"quote"`
	Media     *struct {
		All []struct {
			Type string `json:"type"`
			URL  string `json:"url"`
		} `json:"all"`
	} `json:"media"`
	Article *struct {
		Title   string `json:"title"`
		Content struct {
			Blocks []struct {
				Text string `json:"text"`
			} `json:"blocks"`
		} `json:"content"`
	} `json:"article"`
}

// Parse reads a status or a public profile.
func (t *Twitter) Parse(ctx context.Context, rawURL string) (*model.ParseResult, error) {
	if m := statusPattern.FindStringSubmatch(rawURL); m != nil {
		user, id := m[1], m[2]
		res, err := t.parseStatus(ctx, rawURL, user, id)
		if err == nil {
			return res, nil
		}
		if len(t.nitter) == 0 {
			return nil, err
		}
		zap.L().Warn("twitter: fxtwitter failed, trying nitter",
			zap.String("url", rawURL),
			zap.Error(err),
		)
		res, nerr := t.parseNitter(ctx, rawURL, user+"/status/"+id)
		if nerr != nil {
			return nil, eris.Errorf("twitter: fxtwitter: %v; nitter: %v", err, nerr)
		}
		return res, nil
	}

	if profile := profileName(rawURL); profile != "" {
		return t.parseProfile(ctx, rawURL, profile)
	}
	return nil, eris.New("twitter: url is neither a status nor a public profile")
}

func (t *Twitter) getFx(ctx context.Context, path string) (*fxResponse, error) {
	resp, err := t.fetch.Fetch(ctx, fetcher.Request{URL: t.api + "/" + path, Accept: "application/json"})
	if err != nil {
		return nil, err
	}
	var out fxResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, eris.Wrap(err, "twitter: decode fxtwitter response")
	}
	if out.Code != 200 {
		return nil, eris.Errorf("twitter: fxtwitter code %d: %s", out.Code, out.Message)
	}
	return &out, nil
}

func (t *Twitter) parseStatus(ctx context.Context, rawURL, user, id string) (*model.ParseResult, error) {
	fx, err := t.getFx(ctx, user+"/status/"+id)
	if err != nil {
		return nil, err
	}
	if fx.Tweet == nil {
		return nil, eris.New("twitter: fxtwitter response has no tweet")
	}
	tw := fx.Tweet
	screen := tw.Author.ScreenName
	if screen == "" {
		screen = user
	}

	var title, body string
	if tw.IsArticle && tw.Article != nil {
		title = tw.Article.Title
		if title == "" {
			title = "X Article by @" + screen
		}
		parts := make([]string, 0, len(tw.Article.Content.Blocks))
		for _, b := range tw.Article.Content.Blocks {
			parts = append(parts, b.Text)
		}
		body = strings.Join(parts, "\n\n")
	} else {
		title = "Tweet by @" + screen
		if tw.CreatedAt != "" {
			title += " (" + tw.CreatedAt + ")"
		}
		body = tw.Text
	}

	var features []string
	if tw.Quote != nil {
		features = append(features, "quote")
		body += "\n\n[Quoted Tweet] " + tw.Quote.Text
	}
	media := model.MediaText
	if tw.Media != nil && len(tw.Media.All) > 0 {
		media = model.MediaImage
		body += "\n\n## Media\n"
		for i, m := range tw.Media.All {
			if m.Type == "video" || m.Type == "gif" {
				media = model.MediaVideo
			}
			body += fmt.Sprintf("%d. %s: %s\n", i+1, m.Type, m.URL)
		}
	}
	content := urlkit.CleanText(fmt.Sprintf("%s\n\nlikes %d · retweets %d · views %d", body, tw.Likes, tw.Retweets, tw.Views))

	res := t.success(rawURL, urlkit.Truncate(title, maxTweetTitle), content, "@"+screen)
	res.MediaType = media
	res.Tags = []string{"twitter", "x"}
	res.ConfidenceFlags = []string{"fxtwitter", model.FlagEngagement}
	res.Extra["tweet_id"] = model.String(id)
	res.Extra["screen_name"] = model.String(screen)
	res.Extra["likes"] = model.Number(float64(tw.Likes))
	res.Extra["retweets"] = model.Number(float64(tw.Retweets))
	res.Extra["replies"] = model.Number(float64(tw.Replies))
	res.Extra["views"] = model.Number(float64(tw.Views))
	res.Extra["is_article"] = model.Bool(tw.IsArticle)
	if len(features) > 0 {
		res.Extra["features"] = model.String(strings.Join(features, ","))
	}
	return res, nil
}

func (t *Twitter) parseProfile(ctx context.Context, rawURL, profile string) (*model.ParseResult, error) {
	fx, err := t.getFx(ctx, profile)
	if err != nil {
		return nil, err
	}
	u := fx.User
	if u == nil {
		return nil, eris.New("twitter: fxtwitter response has no user")
	}
	source := u.URL
	if source == "" {
		source = rawURL
	}
	content := strings.Join([]string{
		"# X Profile: @" + profile,
		"Name: " + u.Name,
		fmt.Sprintf("Followers: %d", u.Followers),
		fmt.Sprintf("Following: %d", u.Following),
		"",
		"Bio: " + u.Description,
		"Source: " + source,
	}, "\n")

	res := t.success(rawURL, "X Profile: @"+profile, urlkit.CleanText(content), "@"+profile)
	res.Tags = []string{"twitter", "profile"}
	res.ConfidenceFlags = []string{"fxtwitter", "profile"}
	res.Extra["followers"] = model.Number(float64(u.Followers))
	res.Extra["following"] = model.Number(float64(u.Following))
	return res, nil
}

func (t *Twitter) parseNitter(ctx context.Context, rawURL, path string) (*model.ParseResult, error) {
	var lastErr error
	for _, instance := range t.nitter {
		nitterURL := instance + "/" + path
		resp, err := t.fetch.Fetch(ctx, fetcher.Request{URL: nitterURL, Accept: "text/html"})
		if err != nil {
			lastErr = err
			continue
		}
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
		if err != nil {
			lastErr = eris.Wrap(err, "nitter: parse html")
			continue
		}
		body := doc.Find("div.tweet-content").First()
		if body.Length() == 0 {
			body = doc.Find("div.main-tweet").First()
		}
		text := urlkit.CleanText(body.Text())
		if text == "" {
			lastErr = eris.Errorf("nitter: tweet body missing at %s", instance)
			continue
		}
		author := strings.TrimSpace(doc.Find("a.fullname").First().Text())
		if author == "" {
			author = strings.TrimSpace(doc.Find("a.username").First().Text())
		}
		title := "Tweet"
		if author != "" {
			title = "Tweet by " + author
		}
		res := t.success(rawURL, title, text, author)
		res.Tags = []string{"twitter", "nitter"}
		res.ConfidenceFlags = []string{"nitter-fallback"}
		res.Extra["nitter_url"] = model.String(nitterURL)
		return res, nil
	}
	if lastErr == nil {
		lastErr = eris.New("nitter: no instances configured")
	}
	return nil, lastErr
}

func profileName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	parts := strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' })
	if len(parts) != 1 || reservedPaths[parts[0]] || !usernamePattern.MatchString(parts[0]) {
		return ""
	}
	return parts[0]
}
