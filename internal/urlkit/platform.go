// Package urlkit holds the URL and text helpers shared by routing, ranking
// and storage: platform hints, registered domains, fingerprints and slugs.
package urlkit

import (
	"net/url"
	"strings"
)

// Platform hints produced by PlatformHint.
const (
	HintTwitter  = "twitter"
	HintReddit   = "reddit"
	HintYouTube  = "youtube"
	HintBilibili = "bilibili"
	HintTelegram = "telegram"
	HintWeChat   = "wechat"
	HintXHS      = "xhs"
	HintRSS      = "rss"
	HintGeneric  = "generic"
)

var platformHosts = []struct {
	hint  string
	hosts map[string]bool
}{
	{HintTwitter, set("twitter.com", "x.com", "mobile.twitter.com", "mobile.x.com")},
	{HintReddit, set("reddit.com", "www.reddit.com", "old.reddit.com", "new.reddit.com", "np.reddit.com", "m.reddit.com")},
	{HintYouTube, set("youtube.com", "youtu.be", "www.youtube.com", "m.youtube.com")},
	{HintBilibili, set("bilibili.com", "www.bilibili.com", "b23.tv")},
	{HintTelegram, set("t.me", "telegram.me", "telegram.org")},
}

var xhsHosts = set("xiaohongshu.com", "www.xiaohongshu.com", "xhslink.com")

func set(vals ...string) map[string]bool {
	m := make(map[string]bool, len(vals))
	for _, v := range vals {
		m[v] = true
	}
	return m
}

// Host returns the lowercased hostname of rawURL without port, or "".
func Host(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// PlatformHint derives a coarse platform tag from the structure of a URL.
// It depends only on the URL, never on which adapters are registered.
func PlatformHint(rawURL string) string {
	host := Host(rawURL)
	for _, p := range platformHosts {
		if p.hosts[host] {
			return p.hint
		}
	}
	lower := strings.ToLower(rawURL)
	if strings.Contains(lower, "mp.weixin.qq.com") {
		return HintWeChat
	}
	if xhsHosts[host] {
		return HintXHS
	}
	if IsFeedURL(rawURL) {
		return HintRSS
	}
	return HintGeneric
}

// IsFeedURL reports whether the URL looks like an RSS or Atom document.
func IsFeedURL(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	return strings.HasSuffix(lower, ".xml") ||
		strings.Contains(lower, "/rss") ||
		strings.Contains(lower, "/atom") ||
		strings.Contains(lower, "feed")
}

// IsPlatformHost reports whether host belongs to the given hint's host table.
func IsPlatformHost(hint, host string) bool {
	host = strings.ToLower(host)
	if hint == HintXHS {
		return xhsHosts[host]
	}
	for _, p := range platformHosts {
		if p.hint == hint {
			return p.hosts[host]
		}
	}
	return false
}

// NormalizeForDedup canonicalizes a URL for batch deduplication. Surrounding
// whitespace and trailing slashes are ignored.
func NormalizeForDedup(rawURL string) string {
	return strings.TrimRight(strings.TrimSpace(rawURL), "/")
}
