package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestCache(size int, ttl time.Duration) (*TTL[string, int], *time.Time) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New[string, int](size, ttl)
	c.nowFunc = func() time.Time { return now }
	return c, &now
}

func TestTTL_GetSet(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(4, time.Minute)
	c.Set("a", 1)

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestTTL_Expiry(t *testing.T) {
	t.Parallel()

	c, now := newTestCache(4, time.Minute)
	c.Set("a", 1)
	c.SetWithTTL("b", 2, time.Hour)

	*now = now.Add(2 * time.Minute)

	_, ok := c.Get("a")
	assert.False(t, ok)
	v, ok := c.Get("b")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, c.Len())
}

func TestTTL_EvictsSoonestExpiring(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(2, time.Minute)
	c.SetWithTTL("short", 1, time.Second)
	c.SetWithTTL("long", 2, time.Hour)
	c.SetWithTTL("mid", 3, time.Minute)

	_, ok := c.Get("short")
	assert.False(t, ok)
	_, ok = c.Get("long")
	assert.True(t, ok)
	_, ok = c.Get("mid")
	assert.True(t, ok)
}

func TestTTL_DeleteClear(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(4, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	assert.True(t, c.Delete("a"))
	assert.False(t, c.Delete("a"))
	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestTTL_Concurrent(t *testing.T) {
	t.Parallel()

	c := New[int, int](50, time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Set(i, i)
			c.Get(i)
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 50)
}
