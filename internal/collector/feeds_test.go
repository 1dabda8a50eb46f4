package collector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/datapulse/internal/model"
)

const rssDoc = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Ops Weekly</title>
  <link>https://ops.example.com</link>
  <description>Notes</description>
  <item>
    <title>Breakers in practice</title>
    <link>https://ops.example.com/breakers</link>
    <description><![CDATA[<p>Half open means <b>one</b> trial call.</p>]]></description>
    <category>resilience</category>
    <pubDate>Mon, 05 Oct 2026 10:00:00 GMT</pubDate>
  </item>
  <item>
    <title>Older</title>
    <link>https://ops.example.com/older</link>
  </item>
</channel>
</rss>`

func TestRSS_FirstEntry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(rssDoc))
	}))
	defer srv.Close()

	feedURL := srv.URL + "/feed.xml"
	res, err := NewRSS(testFetcher()).Parse(context.Background(), feedURL)
	require.NoError(t, err)

	assert.Equal(t, "https://ops.example.com/breakers", res.URL)
	assert.Equal(t, "[Ops Weekly] Breakers in practice", res.Title)
	assert.Equal(t, "Half open means one trial call.", res.Content)
	assert.Equal(t, "Ops Weekly", res.Author)
	assert.Equal(t, model.SourceRSS, res.SourceType)
	assert.Equal(t, []string{"rss", "feed", "resilience"}, res.Tags)
	assert.Equal(t, []string{"rss-feed", "latest-item"}, res.ConfidenceFlags)
	src, _ := res.Extra.Str("source_url")
	assert.Equal(t, feedURL, src)
	ft, _ := res.Extra.Str("feed_type")
	assert.Equal(t, "rss", ft)
}

func TestRSS_EmptyFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<?xml version="1.0"?><rss version="2.0"><channel><title>Empty</title></channel></rss>`))
	}))
	defer srv.Close()

	_, err := NewRSS(testFetcher()).Parse(context.Background(), srv.URL+"/rss")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no entries")
}

func TestRSS_InvalidFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`this is not a feed`))
	}))
	defer srv.Close()

	_, err := NewRSS(testFetcher()).Parse(context.Background(), srv.URL+"/rss")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid feed")
}

func TestRSS_CanHandle(t *testing.T) {
	r := NewRSS(testFetcher())
	assert.True(t, r.CanHandle("https://example.com/feed.xml"))
	assert.True(t, r.CanHandle("https://example.com/rss"))
	assert.True(t, r.CanHandle("https://example.com/atom/all"))
	assert.False(t, r.CanHandle("https://example.com/post/1"))
	assert.Equal(t, TierLocal, r.Tier())
}

const redditThread = `[
 {"kind":"Listing","data":{"children":[{"kind":"t3","data":{
   "title":"Circuit breakers everywhere",
   "author":"opsfan",
   "subreddit_name_prefixed":"r/golang",
   "score":420,
   "created_utc":1790000000,
   "num_comments":3,
   "selftext":"How do you size thresholds?",
   "is_self":true,
   "link_flair_text":"Show and Tell"}}]}},
 {"kind":"Listing","data":{"children":[
   {"kind":"t1","data":{"author":"low","body":"meh","score":1,"replies":""}},
   {"kind":"t1","data":{"author":"high","body":"Start at five.","score":50,"replies":{"kind":"Listing","data":{"children":[
     {"kind":"t1","data":{"author":"child","body":"Agreed.","score":3,"replies":""}}]}}}},
   {"kind":"t1","data":{"author":"gone","body":"[deleted]","score":99,"replies":""}},
   {"kind":"more","data":{}}
 ]}}
]`

func TestReddit_Thread(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/r/golang/comments/abc/circuit_breakers/.json", r.URL.Path)
		assert.Equal(t, redditUserAgent, r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(redditThread))
	}))
	defer srv.Close()

	threadURL := srv.URL + "/r/golang/comments/abc/circuit_breakers/"
	res, err := NewReddit(testFetcher()).Parse(context.Background(), threadURL)
	require.NoError(t, err)

	assert.Equal(t, threadURL, res.URL)
	assert.Equal(t, "[r/golang] Circuit breakers everywhere", res.Title)
	assert.Equal(t, "u/opsfan", res.Author)
	assert.Equal(t, []string{"reddit", "r/golang", "show-and-tell"}, res.Tags)
	assert.Equal(t, []string{model.FlagNativeJSON, model.FlagComments}, res.ConfidenceFlags)
	assert.Contains(t, res.Content, "How do you size thresholds?")
	assert.Contains(t, res.Content, "### u/high (score 50)")
	assert.Contains(t, res.Content, ">> u/child: Agreed.")
	assert.NotContains(t, res.Content, "[deleted]")
	assert.Less(t, strings.Index(res.Content, "u/high"), strings.Index(res.Content, "u/low"))
	score, _ := res.Extra.Num("score")
	assert.Equal(t, 420.0, score)
}

func TestReddit_BadPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":404}`))
	}))
	defer srv.Close()

	_, err := NewReddit(testFetcher()).Parse(context.Background(), srv.URL+"/r/x/comments/a/b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected json payload")
}

func TestReddit_CanHandle(t *testing.T) {
	r := NewReddit(testFetcher())
	assert.True(t, r.CanHandle("https://www.reddit.com/r/test/comments/a/b/"))
	assert.True(t, r.CanHandle("https://old.reddit.com/r/test/comments/a/b"))
	assert.False(t, r.CanHandle("https://www.reddit.com/r/test/"))
	assert.False(t, r.CanHandle("https://example.com/r/test/comments/a/b"))
}

func TestJSONURL(t *testing.T) {
	assert.Equal(t, "https://reddit.com/r/a/comments/b/c/.json", JSONURL("https://reddit.com/r/a/comments/b/c/"))
	assert.Equal(t, "https://reddit.com/r/a/comments/b/c/.json", JSONURL("https://reddit.com/r/a/comments/b/c"))
	assert.Equal(t, "https://reddit.com/x.json", JSONURL("https://reddit.com/x.json"))
	assert.Equal(t, "", JSONURL("  "))
}
