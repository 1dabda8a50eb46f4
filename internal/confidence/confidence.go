// Package confidence turns the structural signals of one extraction into a
// bounded trust score with explanatory reasons.
package confidence

import (
	"math"
	"strings"

	"github.com/sells-group/datapulse/internal/model"
)

// Score bounds.
const (
	MinScore = 0.01
	MaxScore = 0.99

	// FallbackReliability applies to collectors missing from BaseReliability.
	FallbackReliability = 0.62
)

// BaseReliability is the starting score per collector name.
var BaseReliability = map[string]float64{
	"twitter":    0.92,
	"reddit":     0.90,
	"youtube":    0.90,
	"bilibili":   0.84,
	"telegram":   0.78,
	"wechat":     0.80,
	"xhs":        0.72,
	"rss":        0.74,
	"arxiv":      0.88,
	"hackernews": 0.82,
	"generic":    0.68,
	"jina":       0.64,
	"firecrawl":  0.66,
	"manual":     1.00,
}

// Content length tiers.
const (
	longContent   = 2500
	mediumContent = 800
	thinContent   = 150
)

// Input is everything the scorer looks at.
type Input struct {
	Parser        string
	HasTitle      bool
	ContentLength int
	HasSource     bool
	HasAuthor     bool
	Media         model.MediaType
	Flags         []string
}

// Reliability returns the base reliability for a collector name.
func Reliability(parser string) float64 {
	if r, ok := BaseReliability[parser]; ok {
		return r
	}
	return FallbackReliability
}

// Score computes the confidence and the ordered, duplicate-free reasons.
// It is pure: identical inputs always produce identical outputs.
func Score(in Input) (float64, []string) {
	var reasons []string
	score := Reliability(in.Parser)

	if in.HasTitle {
		score += 0.04
		reasons = append(reasons, "title")
	} else {
		score -= 0.03
		reasons = append(reasons, "no_title")
	}

	if in.HasSource {
		score += 0.03
		reasons = append(reasons, "source_name")
	}
	if in.HasAuthor {
		score += 0.02
		reasons = append(reasons, "author")
	}

	switch {
	case in.ContentLength >= longContent:
		score += 0.08
		reasons = append(reasons, "long_content")
	case in.ContentLength >= mediumContent:
		score += 0.04
		reasons = append(reasons, "medium_content")
	case in.ContentLength < thinContent:
		score -= 0.12
		reasons = append(reasons, "thin_content")
	}

	if in.Media == model.MediaVideo || in.Media == model.MediaAudio {
		score += 0.02
		reasons = append(reasons, "media")
	}

	for _, flag := range in.Flags {
		switch {
		case flag == model.FlagTranscript:
			score += 0.04
			reasons = append(reasons, "transcript")
		case flag == model.FlagComments:
			score += 0.02
			reasons = append(reasons, "comments")
		case flag == model.FlagThread:
			score += 0.02
			reasons = append(reasons, "thread")
		case strings.HasPrefix(flag, "lang:"):
			score += 0.01
			reasons = append(reasons, "language_hint")
		case flag == model.FlagEngagement:
			score += 0.03
			reasons = append(reasons, "engagement")
		case flag == model.FlagProxy:
			score -= 0.03
			reasons = append(reasons, "proxy_fallback")
		case flag == "wechat" || flag == "xiaohongshu":
			reasons = append(reasons, flag)
		}
	}

	score = math.Max(MinScore, math.Min(MaxScore, score))
	return round4(score), dedupe(reasons)
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
