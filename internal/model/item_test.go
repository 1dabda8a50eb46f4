package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemID(t *testing.T) {
	t.Parallel()

	t.Run("deterministic", func(t *testing.T) {
		t.Parallel()
		a := ItemID("https://x.com/u/status/1", "hello")
		b := ItemID("https://x.com/u/status/1", "hello")
		assert.Equal(t, a, b)
		assert.Len(t, a, 12)
	})

	t.Run("title changes id", func(t *testing.T) {
		t.Parallel()
		assert.NotEqual(t, ItemID("https://a.com", "one"), ItemID("https://a.com", "two"))
	})

	t.Run("url changes id", func(t *testing.T) {
		t.Parallel()
		assert.NotEqual(t, ItemID("https://a.com/1", "t"), ItemID("https://a.com/2", "t"))
	})

	t.Run("md5 of url and title", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, "0a04d81e3147", ItemID("https://example.com", "Title"))
	})
}

func TestNewItem_Defaults(t *testing.T) {
	t.Parallel()

	it := NewItem(SourceGeneric, "src", "Title", "body", "https://example.com")
	assert.Equal(t, ItemID("https://example.com", "Title"), it.ID)
	assert.Equal(t, MediaText, it.MediaType)
	assert.Equal(t, "unknown", it.Language)
	assert.NotNil(t, it.Extra)

	_, ok := it.FetchedTime()
	assert.True(t, ok)
}

func TestItem_ContentDoesNotAffectID(t *testing.T) {
	t.Parallel()

	a := NewItem(SourceGeneric, "s", "Same", "first body", "https://e.com/p")
	b := NewItem(SourceGeneric, "s", "Same", "second body", "https://e.com/p")
	assert.Equal(t, a.ID, b.ID)
}

func TestParseSourceType(t *testing.T) {
	t.Parallel()

	st, ok := ParseSourceType(" Twitter ")
	assert.True(t, ok)
	assert.Equal(t, SourceTwitter, st)

	st, ok = ParseSourceType("myspace")
	assert.False(t, ok)
	assert.Equal(t, SourceGeneric, st)
}

func TestItem_JSONRoundTrip(t *testing.T) {
	t.Parallel()

	it := NewItem(SourceReddit, "r/golang", "Post", "content", "https://reddit.com/r/golang/1")
	it.Extra["upvotes"] = Number(42)
	it.Extra["nsfw"] = Bool(false)
	it.Extra[ExtraScoreBreakdown] = Map(Extra{"authority": Number(0.5)})
	it.SetDigestDate(time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC))

	b, err := json.Marshal(it)
	require.NoError(t, err)

	var got Item
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, it.ID, got.ID)
	assert.Equal(t, SourceReddit, got.SourceType)
	n, ok := got.Extra.Num("upvotes")
	require.True(t, ok)
	assert.InDelta(t, 42.0, n, 1e-9)
	sub, ok := got.Extra.Sub(ExtraScoreBreakdown)
	require.True(t, ok)
	a, _ := sub.Num("authority")
	assert.InDelta(t, 0.5, a, 1e-9)
	require.NotNil(t, got.DigestDate)
	assert.Equal(t, "2026-03-04", *got.DigestDate)
}

func TestExtra_DropsUnsupportedShapes(t *testing.T) {
	t.Parallel()

	var e Extra
	require.NoError(t, json.Unmarshal([]byte(`{"a":"x","b":[1,2],"c":null,"d":3}`), &e))
	assert.Len(t, e, 2)
	s, ok := e.Str("a")
	assert.True(t, ok)
	assert.Equal(t, "x", s)
	_, present := e["c"]
	assert.False(t, present)
}

func TestExtra_NullIsNotZero(t *testing.T) {
	t.Parallel()

	var v Value
	require.Error(t, json.Unmarshal([]byte(`null`), &v))

	var e Extra
	require.NoError(t, json.Unmarshal([]byte(`{"views":null,"likes":0}`), &e))
	_, present := e["views"]
	assert.False(t, present)
	likes, ok := e.Num("likes")
	assert.True(t, ok)
	assert.Equal(t, 0.0, likes)
}

func TestItem_UnknownSourceTypeDecodesGeneric(t *testing.T) {
	t.Parallel()

	var it Item
	require.NoError(t, json.Unmarshal([]byte(`{"id":"abc","source_type":"friendster","media_type":"VIDEO"}`), &it))
	assert.Equal(t, SourceGeneric, it.SourceType)
	assert.Equal(t, MediaVideo, it.MediaType)
}

func TestParseTime(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in string
		ok bool
	}{
		{"2026-01-02T03:04:05Z", true},
		{"2026-01-02T03:04:05.123456", true},
		{"2026-01-02T03:04:05+05:30", true},
		{"2026-01-02", true},
		{"not a time", false},
		{"", false},
	}
	for _, tc := range cases {
		_, ok := ParseTime(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
	}
}

func TestItem_Clone(t *testing.T) {
	t.Parallel()

	it := NewItem(SourceGeneric, "s", "t", "c", "https://e.com")
	it.Tags = []string{"a"}
	cp := it.Clone()
	cp.Tags[0] = "b"
	cp.Extra["k"] = String("v")
	assert.Equal(t, "a", it.Tags[0])
	_, ok := it.Extra["k"]
	assert.False(t, ok)
}
