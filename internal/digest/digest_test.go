package digest

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/datapulse/internal/model"
)

var now = time.Date(2026, 10, 12, 9, 30, 0, 0, time.UTC)

func fixedBuilder(opts Options) *Builder {
	b := NewBuilder(nil, opts)
	b.nowFunc = func() time.Time { return now }
	return b
}

func candidate(source, url, content string, conf float64) *model.Item {
	it := model.NewItem(model.SourceGeneric, source, "title "+url, content, url)
	it.Confidence = conf
	it.FetchedAt = model.FormatTime(now)
	return it
}

func TestBuild_EmptyPool(t *testing.T) {
	d := fixedBuilder(Options{}).Build(nil, nil)

	assert.Equal(t, Version, d.Version)
	assert.Equal(t, "2026-10-12", d.DigestDate)
	assert.Equal(t, 0, d.Stats.CandidatesTotal)
	assert.NotNil(t, d.Primary)
	assert.NotNil(t, d.Secondary)
	assert.Empty(t, d.Primary)
	assert.Empty(t, d.Secondary)
	assert.Contains(t, d.Provenance, "Curated from 0")
}

func TestBuild_PrimarySecondarySplit(t *testing.T) {
	var pool []*model.Item
	for i := range 15 {
		pool = append(pool, candidate(fmt.Sprintf("source_%d", i),
			fmt.Sprintf("https://example.com/%d", i),
			fmt.Sprintf("unique content number %d", i), 0.5+float64(i)/100))
	}
	d := fixedBuilder(Options{TopN: 3, SecondaryN: 5}).Build(pool, nil)

	assert.Equal(t, 15, d.Stats.CandidatesTotal)
	assert.Equal(t, 15, d.Stats.CandidatesAfterDedup)
	assert.Equal(t, 15, d.Stats.SourcesSeen)
	assert.Len(t, d.Primary, 3)
	assert.Len(t, d.Secondary, 5)
	assert.Equal(t, 3, d.Stats.SelectedPrimary)
	assert.Equal(t, 5, d.Stats.SelectedSecondary)
	assert.Equal(t, "source_14", d.Primary[0].SourceName)
	assert.Contains(t, d.Provenance, "Curated from 15")

	for _, it := range append(d.Primary, d.Secondary...) {
		require.NotNil(t, it.DigestDate)
		assert.Equal(t, "2026-10-12", *it.DigestDate)
	}
}

func TestBuild_MaxPerSource(t *testing.T) {
	var pool []*model.Item
	for i := range 10 {
		pool = append(pool, candidate("same_source", fmt.Sprintf("https://same.com/%d", i),
			fmt.Sprintf("different content %d", i), 0.8))
	}
	pool = append(pool, candidate("other", "https://other.com/1", "other content", 0.3))

	d := fixedBuilder(Options{TopN: 3, SecondaryN: 5, MaxPerSource: 2}).Build(pool, nil)

	counts := map[string]int{}
	for _, it := range append(d.Primary, d.Secondary...) {
		counts[it.SourceName]++
	}
	assert.Equal(t, 2, counts["same_source"])
	assert.Equal(t, 1, counts["other"])
	assert.Len(t, d.Primary, 3)
	assert.Empty(t, d.Secondary)
}

func TestBuild_FingerprintDedupKeepsBest(t *testing.T) {
	shared := "identical article about machine learning breakthroughs"
	pool := []*model.Item{
		candidate("src_b", "https://b.com/2", shared, 0.7),
		candidate("src_a", "https://a.com/1", shared, 0.9),
		candidate("src_c", "https://c.com/3", "gardening tips and tricks", 0.8),
	}
	d := fixedBuilder(Options{TopN: 3, SecondaryN: 3}).Build(pool, nil)

	assert.Equal(t, 3, d.Stats.CandidatesTotal)
	assert.Equal(t, 2, d.Stats.CandidatesAfterDedup)
	require.Len(t, d.Primary, 2)

	var names []string
	for _, it := range d.Primary {
		names = append(names, it.SourceName)
	}
	assert.Contains(t, names, "src_a")
	assert.NotContains(t, names, "src_b")
}

func TestSelectDiverse(t *testing.T) {
	items := []*model.Item{
		{SourceName: "a"}, {SourceName: "a"}, {SourceName: "a"},
		{SourceName: "b"}, {SourceName: "c"}, {SourceName: "c"},
	}
	got := SelectDiverse(items, 4, 1)
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].SourceName)
	assert.Equal(t, "b", got[1].SourceName)
	assert.Equal(t, "c", got[2].SourceName)

	assert.Len(t, SelectDiverse(items, 2, 5), 2)
	assert.Empty(t, SelectDiverse(items, 0, 5))
}

func TestOptions_Defaults(t *testing.T) {
	o := NewBuilder(nil, Options{}).Options()
	assert.Equal(t, Options{TopN: 3, SecondaryN: 5, MaxPerSource: 2}, o)

	o = NewBuilder(nil, Options{SecondaryN: -1}).Options()
	assert.Equal(t, 0, o.SecondaryN)
}
