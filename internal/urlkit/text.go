package urlkit

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

var (
	urlPattern    = regexp.MustCompile(`(?i)https?://[a-zA-Z0-9\-._~:/?#\[\]@!$&'()*+,;=%]+`)
	spaceRun      = regexp.MustCompile(`[ \t]+`)
	blankLines    = regexp.MustCompile(`\n{3,}`)
	anyWhitespace = regexp.MustCompile(`\s+`)
	slugStrip     = regexp.MustCompile(`[^a-z0-9\s_-]`)
	slugJoin      = regexp.MustCompile(`[\s_-]+`)
)

// ExtractURLs returns the http(s) URLs found in text, in order of first
// appearance, with trailing punctuation trimmed.
func ExtractURLs(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range urlPattern.FindAllString(text, -1) {
		u := strings.TrimRight(m, ".,;:!?)")
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

// CleanText collapses horizontal whitespace and runs of blank lines.
func CleanText(text string) string {
	text = spaceRun.ReplaceAllString(text, " ")
	text = blankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// Excerpt returns at most maxRunes runes of cleaned text, cut on a word
// boundary and suffixed with an ellipsis when truncated.
func Excerpt(text string, maxRunes int) string {
	cleaned := CleanText(text)
	if utf8.RuneCountInString(cleaned) <= maxRunes {
		return cleaned
	}
	cropped := string([]rune(cleaned)[:maxRunes])
	if i := strings.LastIndex(cropped, " "); i > 0 {
		cropped = cropped[:i]
	}
	return cropped + "…"
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// Language makes a cheap script-based guess: "zh", "en", "other", or
// "unknown" for empty text. Only the first 2000 runes are sampled.
func Language(text string) string {
	if text == "" {
		return "unknown"
	}
	sample := []rune(text)
	if len(sample) > 2000 {
		sample = sample[:2000]
	}
	var han, ascii int
	for _, r := range sample {
		if r >= 0x4e00 && r <= 0x9fff {
			han++
		}
		if r < utf8.RuneSelf {
			ascii++
		}
	}
	n := float64(len(sample))
	if float64(han)/n > 0.05 {
		return "zh"
	}
	if float64(ascii)/n > 0.7 {
		return "en"
	}
	return "other"
}

// Slug produces a lowercase ASCII slug, transliterating accents via NFKD.
func Slug(text string, maxLen int) string {
	decomposed := norm.NFKD.String(text)
	var b strings.Builder
	for _, r := range decomposed {
		if r < utf8.RuneSelf && !unicode.Is(unicode.Mn, r) {
			b.WriteRune(r)
		}
	}
	s := strings.ToLower(strings.TrimSpace(b.String()))
	s = slugStrip.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	s = slugJoin.ReplaceAllString(s, "-")
	if maxLen > 0 && len(s) > maxLen {
		s = s[:maxLen]
	}
	if s == "" {
		return "untitled"
	}
	return s
}

// Fingerprint hashes body text after lowercasing and collapsing whitespace,
// so trivially reformatted copies of a story collide. Empty content gets a
// fresh random fingerprint on every call and never collides.
func Fingerprint(content string) string {
	normalized := strings.TrimSpace(anyWhitespace.ReplaceAllString(strings.ToLower(content), " "))
	if normalized == "" {
		return "empty:" + uuid.NewString()
	}
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:16])
}

// ContentHash is the plain sha256 of content, used in exported metadata.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
