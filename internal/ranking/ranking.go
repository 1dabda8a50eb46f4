// Package ranking computes the composite quality score of items from four
// normalized dimensions: confidence, source authority, cross-source
// corroboration and recency.
package ranking

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/datapulse/internal/model"
	"github.com/sells-group/datapulse/internal/urlkit"
)

// DefaultHalfLife is the recency half-life used when none is configured.
const DefaultHalfLife = 24 * time.Hour

// unknownAuthority is used when neither source name nor domain is known.
const unknownAuthority = 0.5

// unparsableRecency is used for items whose fetch time cannot be read.
const unparsableRecency = 0.5

// Weights are the per-dimension multipliers. They must sum to 1.
type Weights struct {
	Confidence    float64 `mapstructure:"confidence" json:"confidence"`
	Authority     float64 `mapstructure:"authority" json:"authority"`
	Corroboration float64 `mapstructure:"corroboration" json:"corroboration"`
	Recency       float64 `mapstructure:"recency" json:"recency"`
}

// DefaultWeights returns the stock weighting.
func DefaultWeights() Weights {
	return Weights{Confidence: 0.25, Authority: 0.30, Corroboration: 0.25, Recency: 0.20}
}

// Sum adds the four weights.
func (w Weights) Sum() float64 {
	return w.Confidence + w.Authority + w.Corroboration + w.Recency
}

// Validate checks that every weight is non-negative and that they sum to
// one within 1e-6.
func (w Weights) Validate() error {
	var errs []string
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"confidence", w.Confidence},
		{"authority", w.Authority},
		{"corroboration", w.Corroboration},
		{"recency", w.Recency},
	} {
		if f.v < 0 {
			errs = append(errs, fmt.Sprintf("%s weight must be >= 0", f.name))
		}
	}
	if sum := w.Sum(); math.Abs(sum-1) > 1e-6 {
		errs = append(errs, fmt.Sprintf("weights must sum to 1.0, got %.6f", sum))
	}
	if len(errs) > 0 {
		return eris.New("ranking: invalid weights: " + strings.Join(errs, "; "))
	}
	return nil
}

// Breakdown holds the four dimension values behind a score, each rounded
// to four decimals.
type Breakdown struct {
	Confidence    float64 `json:"confidence"`
	Authority     float64 `json:"authority"`
	Corroboration float64 `json:"corroboration"`
	Recency       float64 `json:"recency"`
}

// Extra renders the breakdown for the item's extra bag.
func (b Breakdown) Extra() model.Extra {
	return model.Extra{
		"confidence":    model.Number(b.Confidence),
		"authority":     model.Number(b.Authority),
		"corroboration": model.Number(b.Corroboration),
		"recency":       model.Number(b.Recency),
	}
}

// Engine scores and ranks batches of items.
type Engine struct {
	weights  Weights
	halfLife time.Duration
	nowFunc  func() time.Time
}

// New returns an engine. A non-positive half-life falls back to
// DefaultHalfLife.
func New(w Weights, halfLife time.Duration) (*Engine, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if halfLife <= 0 {
		halfLife = DefaultHalfLife
	}
	return &Engine{weights: w, halfLife: halfLife, nowFunc: time.Now}, nil
}

// Default returns an engine with default weights and half-life.
func Default() *Engine {
	return &Engine{weights: DefaultWeights(), halfLife: DefaultHalfLife, nowFunc: time.Now}
}

// Weights returns the engine's weights.
func (e *Engine) Weights() Weights { return e.weights }

// RecencyScore is 2^(-age/halfLife) for a persisted timestamp. Future
// timestamps count as age zero.
func RecencyScore(fetchedAt string, now time.Time, halfLife time.Duration) float64 {
	ts, ok := model.ParseTime(fetchedAt)
	if !ok {
		return unparsableRecency
	}
	if halfLife <= 0 {
		halfLife = DefaultHalfLife
	}
	age := max(0, now.Sub(ts).Hours())
	return math.Pow(2, -age/halfLife.Hours())
}

// AuthorityScore looks the item up by lowercase source name, then by its
// registered domain.
func AuthorityScore(it *model.Item, authority map[string]float64) float64 {
	if w, ok := authority[strings.ToLower(it.SourceName)]; ok {
		return w
	}
	if w, ok := authority[urlkit.Domain(it.URL)]; ok {
		return w
	}
	return unknownAuthority
}

// CorroborationScore maps how many batch items share a fingerprint to a
// score: one is 0, two is 0.5, three or more is 1.
func CorroborationScore(count int) float64 {
	switch {
	case count <= 1:
		return 0
	case count == 2:
		return 0.5
	default:
		return 1
	}
}

// FingerprintCounts counts content fingerprints across a batch.
func FingerprintCounts(items []*model.Item) map[string]int {
	counts := make(map[string]int, len(items))
	for _, it := range items {
		counts[urlkit.Fingerprint(it.Content)]++
	}
	return counts
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

// Score computes the composite 0-100 score for one item given how many
// batch items share its fingerprint. The item is not modified.
func (e *Engine) Score(it *model.Item, authority map[string]float64, corroborating int, now time.Time) (int, Breakdown) {
	conf := it.Confidence
	auth := AuthorityScore(it, authority)
	corr := CorroborationScore(corroborating)
	rec := RecencyScore(it.FetchedAt, now, e.halfLife)

	// Conversions keep each product rounded before the sum so no platform
	// fuses them and lands a half-point score on a different side.
	raw := float64(e.weights.Confidence*conf) +
		float64(e.weights.Authority*auth) +
		float64(e.weights.Corroboration*corr) +
		float64(e.weights.Recency*rec)
	score := int(math.Max(0, math.Min(100, math.Round(raw*100))))

	return score, Breakdown{
		Confidence:    round4(conf),
		Authority:     round4(auth),
		Corroboration: round4(corr),
		Recency:       round4(rec),
	}
}

// Rank scores every item, sorts the slice in place by score then
// confidence (both descending, stable) and assigns 1-based quality ranks.
// Confidence itself is never changed.
func (e *Engine) Rank(items []*model.Item, authority map[string]float64) []*model.Item {
	if len(items) == 0 {
		return items
	}
	now := e.nowFunc()

	fps := make([]string, len(items))
	counts := make(map[string]int, len(items))
	for i, it := range items {
		fps[i] = urlkit.Fingerprint(it.Content)
		counts[fps[i]]++
	}

	for i, it := range items {
		score, bd := e.Score(it, authority, counts[fps[i]], now)
		it.Score = score
		if it.Extra == nil {
			it.Extra = model.Extra{}
		}
		it.Extra[model.ExtraScoreBreakdown] = model.Map(bd.Extra())
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].Confidence > items[j].Confidence
	})
	for i, it := range items {
		it.QualityRank = i + 1
	}
	return items
}
