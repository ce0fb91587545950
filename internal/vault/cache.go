// Package vault implements the secret backend fallback chain: a manager
// that orders backends by priority, a TTL-bound resolution cache, and the
// normalized dispatch path for vault operations.
package vault

import (
	"sync"
	"time"

	"github.com/connkeep/connkeep/pkg/backend"
)

// DefaultCacheTTL is the validity window of a cached resolution. One
// constant for the whole cache, not per entry.
const DefaultCacheTTL = 300 * time.Second

// cacheEntry pairs a credential with its storage time. Entries are never
// mutated in place; a refresh replaces the entry wholesale.
type cacheEntry struct {
	cred     *backend.Credential
	storedAt time.Time
}

// Cache is a TTL-bound store of previously resolved credentials. It is a
// single shared resource guarded by a reader-mostly lock; InvalidateAll
// clears it atomically, so no reader ever observes a half-cleared cache.
type Cache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry
	now     func() time.Time
}

// NewCache creates a cache with the given TTL. A non-positive ttl falls
// back to DefaultCacheTTL.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// Get returns a copy of the cached credential for key. An entry older
// than the TTL is never served; the lookup that finds one stale wipes and
// drops it on the spot.
func (c *Cache) Get(key string) (*backend.Credential, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.storedAt) > c.ttl {
		c.evictStale(key, entry.storedAt)
		return nil, false
	}

	// Hand out an independent copy so callers can zeroize their result
	// without wiping the cached entry.
	clone, err := entry.cred.Clone()
	if err != nil {
		return nil, false
	}
	return clone, true
}

// evictStale wipes and removes the entry under key, but only if it is
// still the one observed at storedAt; a Put that raced in between must
// not lose its fresh entry.
func (c *Cache) evictStale(key string, storedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok || !entry.storedAt.Equal(storedAt) {
		return
	}
	entry.cred.Zeroize()
	delete(c.entries, key)
}

// Put stores a credential under key, replacing any previous entry.
func (c *Cache) Put(key string, cred *backend.Credential) {
	clone, err := cred.Clone()
	if err != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.entries[key]; ok {
		old.cred.Zeroize()
	}
	c.entries[key] = cacheEntry{cred: clone, storedAt: c.now()}
}

// Remove drops the entry for key, if any.
func (c *Cache) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.entries[key]; ok {
		old.cred.Zeroize()
		delete(c.entries, key)
	}
}

// InvalidateAll drops every entry in one atomic step. Called on any entity
// mutation and on backend reconfiguration.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, entry := range c.entries {
		entry.cred.Zeroize()
	}
	c.entries = make(map[string]cacheEntry)
}

// Len returns the number of entries currently held, including any that
// have aged past the TTL but have not been swept.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
