package cachekit_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Sumatoshi-tech/codefang-index/internal/cachekit"
)

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	c := cachekit.New[string, int](2)
	c.Put("a", 1)
	c.Put("b", 2)

	_, _ = c.Get("a") // touch a so b becomes LRU

	c.Put("c", 3) // evicts b

	_, ok := c.Get("b")
	assert.False(t, ok)

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	v, ok = c.Get("c")
	assert.True(t, ok)
	assert.Equal(t, 3, v)
}

func TestLRUStats(t *testing.T) {
	t.Parallel()

	c := cachekit.New[string, int](1)
	c.Put("a", 1)

	_, _ = c.Get("a")
	_, _ = c.Get("missing")

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate(), 0.001)
}

func TestSizeFromFileCount(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 30, cachekit.SizeFromFileCount(10))
	assert.Equal(t, 100, cachekit.SizeFromFileCount(500))
	assert.Equal(t, 300, cachekit.SizeFromFileCount(5000))
}
