package services

import (
	"albumgrab/types"
	"sync"
	"time"
)

// CompletionCache remembers completion checks for a bounded time. An entry
// older than the freshness window is never returned.
type CompletionCache struct {
	mu        sync.RWMutex
	entries   map[string]types.CacheEntry
	freshness time.Duration
	now       func() time.Time
}

// NewCompletionCache creates an empty cache
func NewCompletionCache(freshness time.Duration) *CompletionCache {
	return &CompletionCache{
		entries:   make(map[string]types.CacheEntry),
		freshness: freshness,
		now:       time.Now,
	}
}

// Get returns a fresh entry for identity
func (c *CompletionCache) Get(identity string) (types.CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[identity]
	if !ok || c.now().Sub(entry.ObservedAt) > c.freshness {
		return types.CacheEntry{}, false
	}
	return entry, true
}

// Put records a completion status observed now
func (c *CompletionCache) Put(identity string, status types.CompletionStatus) types.CacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := types.CacheEntry{
		Identity:   identity,
		Status:     status,
		ObservedAt: c.now(),
	}
	c.entries[identity] = entry
	return entry
}

// Invalidate drops the entry for identity regardless of its age
func (c *CompletionCache) Invalidate(identity string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, identity)
}

// Evict removes every stale entry and returns how many went
func (c *CompletionCache) Evict() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	evicted := 0
	for identity, entry := range c.entries {
		if now.Sub(entry.ObservedAt) > c.freshness {
			delete(c.entries, identity)
			evicted++
		}
	}
	return evicted
}

// Clear empties the cache
func (c *CompletionCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]types.CacheEntry)
}

// Len counts entries, stale ones included
func (c *CompletionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
