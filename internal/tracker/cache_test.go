package tracker

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newClock() *fakeClock { return &fakeClock{now: time.Unix(1_700_000_000, 0)} }

// TestCache_EvictsLeastRecentlyUsed tests capacity-bound eviction order
func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewCache[int](3, 0, nil)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3)

	_, ok := c.Get("a") // a becomes most recent
	require.True(t, ok)

	assert.True(t, c.Put("d", 4))
	_, ok = c.Get("b")
	assert.False(t, ok, "b was least recently used")

	for _, k := range []string{"a", "c", "d"} {
		_, ok := c.Get(k)
		assert.True(t, ok, k)
	}
	assert.Equal(t, 3, c.Len())
	assert.Equal(t, uint64(1), c.GetMetrics().Evictions)
}

func TestCache_NeverExceedsCapacity(t *testing.T) {
	c := NewCache[int](64, 0, nil)
	for i := 0; i < 10000; i++ {
		c.Put(fmt.Sprintf("k%d", i), i)
		require.LessOrEqual(t, c.Len(), 64)
	}
	assert.Equal(t, uint64(10000-64), c.GetMetrics().Evictions)
}

func TestCache_TTLExpiry(t *testing.T) {
	clock := newClock()
	c := NewCache[string](8, time.Minute, clock.Now)
	c.Put("x", "v")

	clock.Advance(59 * time.Second)
	v, ok := c.Get("x")
	require.True(t, ok)
	assert.Equal(t, "v", v)

	clock.Advance(2 * time.Second)
	_, ok = c.Get("x")
	assert.False(t, ok)
	assert.Zero(t, c.Len())

	m := c.GetMetrics()
	assert.Equal(t, uint64(1), m.Hits)
	assert.Equal(t, uint64(1), m.Misses)
	assert.Equal(t, uint64(1), m.Evictions)
	assert.InDelta(t, 0.5, m.HitRate, 1e-12)
}

func TestCache_PutRefreshesTTL(t *testing.T) {
	clock := newClock()
	c := NewCache[int](8, time.Minute, clock.Now)
	c.Put("x", 1)
	clock.Advance(50 * time.Second)
	c.Put("x", 2)
	clock.Advance(50 * time.Second)

	v, ok := c.Get("x")
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestCache_CleanupExpired(t *testing.T) {
	clock := newClock()
	c := NewCache[int](8, time.Minute, clock.Now)
	c.Put("old1", 1)
	c.Put("old2", 2)
	clock.Advance(30 * time.Second)
	c.Put("fresh", 3)
	_, _ = c.Get("old1") // access does not refresh TTL
	clock.Advance(45 * time.Second)

	assert.Equal(t, 2, c.CleanupExpired())
	assert.Equal(t, 1, c.Len())
}

func TestCache_Remove(t *testing.T) {
	c := NewCache[int](2, 0, nil)
	c.Put("a", 1)
	assert.True(t, c.Remove("a"))
	assert.False(t, c.Remove("a"))
	assert.Zero(t, c.Len())
}
