package services

import (
	"albumgrab/types"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestCache(freshness time.Duration) (*CompletionCache, *time.Time) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c := NewCompletionCache(freshness)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestCompletionCacheServesFreshEntries(t *testing.T) {
	c, now := newTestCache(30 * time.Second)

	entry := c.Put("album-1", types.CompletionDownloaded)
	assert.Equal(t, *now, entry.ObservedAt)

	*now = now.Add(29 * time.Second)
	got, ok := c.Get("album-1")
	assert.True(t, ok)
	assert.Equal(t, types.CompletionDownloaded, got.Status)
}

func TestCompletionCacheHidesStaleEntries(t *testing.T) {
	c, now := newTestCache(30 * time.Second)
	c.Put("album-1", types.CompletionNotDownloaded)

	*now = now.Add(31 * time.Second)
	_, ok := c.Get("album-1")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())

	assert.Equal(t, 1, c.Evict())
	assert.Equal(t, 0, c.Len())
}

func TestCompletionCacheEvictKeepsFresh(t *testing.T) {
	c, now := newTestCache(30 * time.Second)
	c.Put("old", types.CompletionNotDownloaded)
	*now = now.Add(20 * time.Second)
	c.Put("new", types.CompletionNotDownloaded)
	*now = now.Add(15 * time.Second)

	assert.Equal(t, 1, c.Evict())
	_, ok := c.Get("new")
	assert.True(t, ok)
}

func TestCompletionCacheInvalidateAndClear(t *testing.T) {
	c, _ := newTestCache(time.Minute)
	c.Put("a", types.CompletionNotDownloaded)
	c.Put("b", types.CompletionDownloaded)

	c.Invalidate("a")
	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Clear()
	assert.Equal(t, 0, c.Len())
}
