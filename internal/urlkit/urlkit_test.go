package urlkit

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlatformHint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		url  string
		want string
	}{
		{"https://x.com/u/status/1", HintTwitter},
		{"https://mobile.twitter.com/u/status/1", HintTwitter},
		{"https://old.reddit.com/r/golang/comments/a/b/", HintReddit},
		{"https://youtu.be/abc", HintYouTube},
		{"https://b23.tv/xyz", HintBilibili},
		{"https://t.me/channel/12", HintTelegram},
		{"https://mp.weixin.qq.com/s/abc", HintWeChat},
		{"https://xhslink.com/a", HintXHS},
		{"https://blog.example.com/index.xml", HintRSS},
		{"https://example.com/feed", HintRSS},
		{"https://example.com/article", HintGeneric},
		{"not a url", HintGeneric},
	}
	for _, tc := range tests {
		t.Run(tc.url, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, PlatformHint(tc.url))
		})
	}
}

func TestDomain(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "bbc.co.uk", Domain("https://news.bbc.co.uk/story"))
	assert.Equal(t, "nature.com", Domain("https://www.nature.com/articles/1"))
	assert.Equal(t, "x.com", Domain("https://x.com/u/status/1"))
	assert.Equal(t, "10.0.0.1", Domain("http://10.0.0.1/a"))
	assert.Equal(t, "unknown", Domain("nohost"))
	assert.Equal(t, "nature_com", DomainTag("https://nature.com"))
}

func TestHostMatches(t *testing.T) {
	t.Parallel()

	assert.True(t, HostMatches("x.com", "x.com"))
	assert.True(t, HostMatches("x.com", "mobile.x.com"))
	assert.False(t, HostMatches("x.com", "notx.com"))
	assert.False(t, HostMatches("", "x.com"))
}

func TestNormalizeForDedup(t *testing.T) {
	t.Parallel()

	assert.Equal(t, NormalizeForDedup("https://x.com/u/status/1"), NormalizeForDedup(" https://x.com/u/status/1/ "))
}

func TestExtractURLs(t *testing.T) {
	t.Parallel()

	got := ExtractURLs("see https://a.com/x, and https://b.com/y). again https://a.com/x.")
	assert.Equal(t, []string{"https://a.com/x", "https://b.com/y"}, got)
}

func TestExcerpt(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "short", Excerpt("  short  ", 260))
	long := strings.Repeat("word ", 100)
	ex := Excerpt(long, 20)
	assert.True(t, strings.HasSuffix(ex, "…"))
	assert.LessOrEqual(t, len([]rune(ex)), 21)
}

func TestLanguage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "unknown", Language(""))
	assert.Equal(t, "en", Language("The quick brown fox jumps over the lazy dog"))
	assert.Equal(t, "zh", Language("这是一个中文句子，用于测试语言检测"))
	assert.Equal(t, "other", Language("Съешь же ещё этих мягких французских булок"))
}

func TestSlug(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "cafe-creme-news", Slug("Café  Crème_News!", 70))
	assert.Equal(t, "untitled", Slug("!!!", 70))
	assert.Equal(t, "abc", Slug("abcdef", 3))
}

func TestFingerprint(t *testing.T) {
	t.Parallel()

	t.Run("case and whitespace insensitive", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, Fingerprint("Hello   World\n"), Fingerprint("hello world"))
	})

	t.Run("different content differs", func(t *testing.T) {
		t.Parallel()
		assert.NotEqual(t, Fingerprint("alpha"), Fingerprint("beta"))
	})

	t.Run("empty never collides", func(t *testing.T) {
		t.Parallel()
		assert.NotEqual(t, Fingerprint(""), Fingerprint(""))
		assert.NotEqual(t, Fingerprint("   "), Fingerprint(""))
	})
}

func TestValidateExternalURL(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidateExternalURL("https://example.com/a"))
	assert.Error(t, ValidateExternalURL("ftp://example.com"))
	assert.Error(t, ValidateExternalURL("http://localhost:8080"))
	assert.Error(t, ValidateExternalURL("http://printer.local"))
	assert.Error(t, ValidateExternalURL("http://192.168.1.10"))
	assert.Error(t, ValidateExternalURL("http://127.0.0.1"))
	assert.Error(t, ValidateExternalURL("https://"))
}

func TestRedactForLog(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "https://a.com/p [redacted]", RedactForLog("https://a.com/p?token=1"))
	assert.Equal(t, "https://a.com/p", RedactForLog("https://a.com/p"))
}
