package planning_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/warp/backoffice/planning"
)

func TestCache_ExpiresAfterTTL(t *testing.T) {
	// GIVEN: A cache with a 30 minute TTL and a controllable clock
	// WHEN: Reading before and after the TTL
	// THEN: Hit before, miss after, and the entry is dropped

	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	c := planning.NewCache[string, int]("test", 30*time.Minute)
	c.Now = func() time.Time { return now }

	c.Set("Week 10", 42)

	now = now.Add(29 * time.Minute)
	v, ok := c.Get("Week 10")
	assert.True(t, ok)
	assert.Equal(t, 42, v)

	now = now.Add(time.Minute)
	_, ok = c.Get("Week 10")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCache_InvalidateAndPurge(t *testing.T) {
	c := planning.NewCache[string, string]("test", 0)
	assert.Equal(t, planning.DefaultCacheTTL, c.TTL())

	c.Set("a", "1")
	c.Set("b", "2")
	c.Invalidate("a")

	_, ok := c.Get("a")
	assert.False(t, ok)
	v, ok := c.Get("b")
	assert.True(t, ok)
	assert.Equal(t, "2", v)

	c.Purge()
	assert.Equal(t, 0, c.Len())
}

func TestCache_SetIfCurrentRefusesAfterInvalidate(t *testing.T) {
	// GIVEN: A loader read the generation, then a write invalidated the key
	// WHEN: The loader tries to store what it read
	// THEN: The value is refused and the next reader misses

	c := planning.NewCache[string, string]("test", time.Hour)
	gen := c.Generation("Week 12")

	c.Invalidate("Week 12")
	assert.False(t, c.SetIfCurrent("Week 12", gen, "stale"))
	_, ok := c.Get("Week 12")
	assert.False(t, ok)

	fresh := c.Generation("Week 12")
	assert.True(t, c.SetIfCurrent("Week 12", fresh, "fresh"))
	v, ok := c.Get("Week 12")
	assert.True(t, ok)
	assert.Equal(t, "fresh", v)

	other := c.Generation("Week 13")
	c.Purge()
	assert.False(t, c.SetIfCurrent("Week 13", other, "stale"))
}
