package ranking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/datapulse/internal/model"
)

var now = time.Date(2026, 10, 10, 12, 0, 0, 0, time.UTC)

func fixedEngine(t *testing.T) *Engine {
	t.Helper()
	e := Default()
	e.nowFunc = func() time.Time { return now }
	return e
}

func item(source, url, content string, conf float64, fetched time.Time) *model.Item {
	it := model.NewItem(model.SourceGeneric, source, "t "+url, content, url)
	it.Confidence = conf
	it.FetchedAt = model.FormatTime(fetched)
	return it
}

func TestWeights_Validate(t *testing.T) {
	require.NoError(t, DefaultWeights().Validate())

	err := Weights{Confidence: 0.5, Authority: 0.5, Corroboration: 0.5}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "weights must sum to 1.0")

	err = Weights{Confidence: -0.2, Authority: 0.7, Corroboration: 0.3, Recency: 0.2}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "confidence weight must be >= 0")

	_, err = New(Weights{Confidence: 1}, 0)
	require.NoError(t, err)
	_, err = New(Weights{}, time.Hour)
	require.Error(t, err)
}

func TestRecencyScore(t *testing.T) {
	assert.Equal(t, 1.0, RecencyScore(model.FormatTime(now), now, 24*time.Hour))
	assert.InDelta(t, 0.5, RecencyScore(model.FormatTime(now.Add(-24*time.Hour)), now, 24*time.Hour), 1e-9)
	assert.InDelta(t, 0.25, RecencyScore(model.FormatTime(now.Add(-48*time.Hour)), now, 0), 1e-9)
	assert.Equal(t, 1.0, RecencyScore(model.FormatTime(now.Add(time.Hour)), now, 24*time.Hour))
	assert.Equal(t, 0.5, RecencyScore("not a time", now, 24*time.Hour))
	assert.InDelta(t, 0.5, RecencyScore("2026-10-10T06:00:00", now, 6*time.Hour), 1e-9)
}

func TestAuthorityScore(t *testing.T) {
	amap := map[string]float64{"ops weekly": 0.95, "example.com": 0.9}

	assert.Equal(t, 0.95, AuthorityScore(&model.Item{SourceName: "Ops Weekly", URL: "https://other.org/"}, amap))
	assert.Equal(t, 0.9, AuthorityScore(&model.Item{SourceName: "someone", URL: "https://blog.example.com/x"}, amap))
	assert.Equal(t, 0.5, AuthorityScore(&model.Item{SourceName: "nobody", URL: "https://unknown.net/"}, amap))
	assert.Equal(t, 0.5, AuthorityScore(&model.Item{}, nil))
}

func TestCorroborationScore(t *testing.T) {
	assert.Equal(t, 0.0, CorroborationScore(0))
	assert.Equal(t, 0.0, CorroborationScore(1))
	assert.Equal(t, 0.5, CorroborationScore(2))
	assert.Equal(t, 1.0, CorroborationScore(3))
	assert.Equal(t, 1.0, CorroborationScore(7))
}

func TestFingerprintCounts_NormalizesAndIgnoresEmpty(t *testing.T) {
	items := []*model.Item{
		{Content: "Breaking  News\ttoday"},
		{Content: "breaking news TODAY"},
		{Content: ""},
		{Content: ""},
	}
	counts := FingerprintCounts(items)
	assert.Len(t, counts, 3)

	maxCount := 0
	for _, n := range counts {
		maxCount = max(maxCount, n)
	}
	assert.Equal(t, 2, maxCount)
}

func TestRank_CorroboratedTripleScoresFull(t *testing.T) {
	e := fixedEngine(t)
	items := []*model.Item{
		item("a", "https://a.example/1", "Same story body", 0.6, now),
		item("b", "https://b.example/1", "same   STORY body", 0.6, now),
		item("c", "https://c.example/1", "Same story body ", 0.6, now),
		item("d", "https://d.example/1", "Lonely story", 0.6, now),
	}
	e.Rank(items, nil)

	for _, it := range items {
		bd, ok := it.Extra.Sub(model.ExtraScoreBreakdown)
		require.True(t, ok)
		corr, _ := bd.Num("corroboration")
		if it.SourceName == "d" {
			assert.Equal(t, 0.0, corr)
			assert.Equal(t, 4, it.QualityRank)
		} else {
			assert.Equal(t, 1.0, corr)
		}
	}
}

func TestRank_XComScenario(t *testing.T) {
	e := fixedEngine(t)
	amap := map[string]float64{"x.com": 0.9}
	items := []*model.Item{
		item("@u", "https://x.com/u/status/1", "Launch day", 0.9, now),
		item("@v", "https://x.com/v/status/2", "launch DAY", 0.9, now),
		item("@w", "https://x.com/w/status/3", "Launch day", 0.9, now),
	}
	e.Rank(items, amap)

	// 0.25*0.9 + 0.30*0.9 + 0.25*1 + 0.20*1 = 0.945; 94.5 rounds half away from zero.
	for _, it := range items {
		assert.Equal(t, 95, it.Score)
		bd, ok := it.Extra.Sub(model.ExtraScoreBreakdown)
		require.True(t, ok)
		auth, _ := bd.Num("authority")
		assert.Equal(t, 0.9, auth)
	}

	full, err := New(Weights{Authority: 0.5, Corroboration: 0.5}, 0)
	require.NoError(t, err)
	full.nowFunc = func() time.Time { return now }
	full.Rank(items, map[string]float64{"x.com": 1})
	assert.Equal(t, 100, items[0].Score)
}

func TestRank_SortsAndAssignsRanks(t *testing.T) {
	e := fixedEngine(t)
	items := []*model.Item{
		item("old", "https://a.example/old", "old", 0.5, now.Add(-96*time.Hour)),
		item("fresh-low", "https://a.example/fl", "fl", 0.4, now),
		item("fresh-high", "https://a.example/fh", "fh", 0.9, now),
	}
	ranked := e.Rank(items, nil)

	require.Len(t, ranked, 3)
	assert.Equal(t, "fresh-high", ranked[0].SourceName)
	assert.Equal(t, "fresh-low", ranked[1].SourceName)
	assert.Equal(t, "old", ranked[2].SourceName)
	for i, it := range ranked {
		assert.Equal(t, i+1, it.QualityRank)
	}
	assert.Equal(t, 0.9, ranked[0].Confidence)
}

func TestRank_TieBreaksOnConfidence(t *testing.T) {
	e, err := New(Weights{Authority: 1}, 0)
	require.NoError(t, err)
	e.nowFunc = func() time.Time { return now }

	items := []*model.Item{
		item("a", "https://a.example/1", "x", 0.3, now),
		item("b", "https://b.example/1", "y", 0.8, now),
	}
	e.Rank(items, nil)
	assert.Equal(t, 50, items[0].Score)
	assert.Equal(t, "b", items[0].SourceName)
}

func TestScore_BreakdownRounded(t *testing.T) {
	e := fixedEngine(t)
	it := item("s", "https://a.example/", "c", 0.123456, now.Add(-5*time.Hour))
	_, bd := e.Score(it, nil, 1, now)
	assert.Equal(t, 0.1235, bd.Confidence)
	assert.Equal(t, 0.5, bd.Authority)
	assert.Equal(t, 0.8655, bd.Recency)
}

func TestRank_Empty(t *testing.T) {
	assert.Empty(t, Default().Rank(nil, nil))
}
