package vault

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/connkeep/connkeep/pkg/backend"
)

func TestCache_GetPut(t *testing.T) {
	t.Parallel()

	c := NewCache(DefaultCacheTTL)
	cred := backend.New("admin", "hunter2", "corp", "")

	_, ok := c.Get("k1")
	assert.False(t, ok)

	c.Put("k1", cred)
	got, ok := c.Get("k1")
	require.True(t, ok)
	assert.Equal(t, "admin", got.Username)
	assert.Equal(t, "corp", got.Domain)

	password, err := got.Password.Reveal()
	require.NoError(t, err)
	assert.Equal(t, "hunter2", password)
}

func TestCache_GetReturnsIndependentCopy(t *testing.T) {
	t.Parallel()

	c := NewCache(DefaultCacheTTL)
	c.Put("k1", backend.New("admin", "hunter2", "", ""))

	first, ok := c.Get("k1")
	require.True(t, ok)
	first.Zeroize()

	// Zeroizing the handed-out copy must not corrupt the cached entry.
	second, ok := c.Get("k1")
	require.True(t, ok)
	password, err := second.Password.Reveal()
	require.NoError(t, err)
	assert.Equal(t, "hunter2", password)
}

func TestCache_TTLExpiry(t *testing.T) {
	t.Parallel()

	c := NewCache(300 * time.Second)
	base := time.Now()
	c.now = func() time.Time { return base }

	c.Put("k1", backend.New("admin", "hunter2", "", ""))

	c.now = func() time.Time { return base.Add(299 * time.Second) }
	_, ok := c.Get("k1")
	assert.True(t, ok, "entry inside the TTL window must be served")

	c.now = func() time.Time { return base.Add(301 * time.Second) }
	_, ok = c.Get("k1")
	assert.False(t, ok, "entry past the TTL must never be served")
}

func TestCache_StaleLookupDropsEntry(t *testing.T) {
	t.Parallel()

	c := NewCache(300 * time.Second)
	base := time.Now()
	c.now = func() time.Time { return base }
	c.Put("k1", backend.New("admin", "hunter2", "", ""))

	c.now = func() time.Time { return base.Add(301 * time.Second) }
	_, ok := c.Get("k1")
	require.False(t, ok)
	assert.Equal(t, 0, c.Len(), "the lookup that finds an entry stale must drop it")
}

func TestCache_StaleEvictionYieldsToConcurrentRefresh(t *testing.T) {
	t.Parallel()

	c := NewCache(300 * time.Second)
	base := time.Now()
	c.now = func() time.Time { return base }
	c.Put("k1", backend.New("old", "old-pass", "", ""))

	c.now = func() time.Time { return base.Add(301 * time.Second) }
	c.Put("k1", backend.New("new", "new-pass", "", ""))

	// The refresh above is what an eviction racing a Put would see: a
	// different storedAt under the same key. It must survive.
	c.evictStale("k1", base)
	got, ok := c.Get("k1")
	require.True(t, ok)
	assert.Equal(t, "new", got.Username)
}

func TestCache_PutReplacesEntryAndResetsClock(t *testing.T) {
	t.Parallel()

	c := NewCache(300 * time.Second)
	base := time.Now()
	c.now = func() time.Time { return base }
	c.Put("k1", backend.New("old", "old-pass", "", ""))

	c.now = func() time.Time { return base.Add(200 * time.Second) }
	c.Put("k1", backend.New("new", "new-pass", "", ""))

	c.now = func() time.Time { return base.Add(400 * time.Second) }
	got, ok := c.Get("k1")
	require.True(t, ok, "refresh must restart the TTL window")
	assert.Equal(t, "new", got.Username)
}

func TestCache_RemoveAndInvalidateAll(t *testing.T) {
	t.Parallel()

	c := NewCache(DefaultCacheTTL)
	c.Put("k1", backend.New("a", "pa", "", ""))
	c.Put("k2", backend.New("b", "pb", "", ""))
	require.Equal(t, 2, c.Len())

	c.Remove("k1")
	_, ok := c.Get("k1")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())

	c.InvalidateAll()
	assert.Equal(t, 0, c.Len())
	_, ok = c.Get("k2")
	assert.False(t, ok)
}

func TestCache_NonPositiveTTLFallsBackToDefault(t *testing.T) {
	t.Parallel()

	c := NewCache(0)
	assert.Equal(t, DefaultCacheTTL, c.ttl)
}
