package profile

import (
	"sync"
	"time"
)

// TTL is how long a cached profile stays valid after Set or MergeUpdate.
const TTL = 5 * time.Minute

type entry struct {
	profile  UserProfile
	cachedAt time.Time
}

// Cache holds profiles per conversation. Expiry is fixed at write time; reads
// do not extend it. Each conversation has a generation that Invalidate and
// MergeUpdate advance, so a fill computed from an older store read can be
// refused with SetIfGeneration.
type Cache struct {
	mu      sync.Mutex
	entries map[int64]entry
	gens    map[int64]uint64
	ttl     time.Duration
	now     func() time.Time
}

// CacheOption customizes a Cache.
type CacheOption func(*Cache)

// WithTTL overrides the entry lifetime.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCache builds an empty cache with TTL expiry.
func NewCache(opts ...CacheOption) *Cache {
	c := &Cache{
		entries: make(map[int64]entry),
		gens:    make(map[int64]uint64),
		ttl:     TTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached profile while it is younger than the TTL.
func (c *Cache) Get(conversationID int64) (UserProfile, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[conversationID]
	if !ok {
		return UserProfile{}, false
	}
	if c.now().Sub(e.cachedAt) >= c.ttl {
		delete(c.entries, conversationID)
		return UserProfile{}, false
	}
	return e.profile.Clone(), true
}

// Set stores profile and restarts its TTL.
func (c *Cache) Set(conversationID int64, profile UserProfile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[conversationID] = entry{profile: profile.Clone(), cachedAt: c.now()}
}

// Generation returns the current generation of conversationID.
func (c *Cache) Generation(conversationID int64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[conversationID]
}

// SetIfGeneration stores profile only if no Invalidate or MergeUpdate ran
// for conversationID since gen was read. It reports whether it stored.
func (c *Cache) SetIfGeneration(conversationID int64, gen uint64, profile UserProfile) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[conversationID] != gen {
		return false
	}
	c.entries[conversationID] = entry{profile: profile.Clone(), cachedAt: c.now()}
	return true
}

// Invalidate drops the entry for conversationID.
func (c *Cache) Invalidate(conversationID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[conversationID]++
	delete(c.entries, conversationID)
}

// MergeUpdate applies patch to a live entry and restarts its TTL. It reports
// false, changing nothing, when there is no live entry to merge into.
func (c *Cache) MergeUpdate(conversationID int64, patch Patch) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[conversationID]++
	e, ok := c.entries[conversationID]
	now := c.now()
	if !ok || now.Sub(e.cachedAt) >= c.ttl {
		delete(c.entries, conversationID)
		return false
	}
	patch.apply(&e.profile)
	e.cachedAt = now
	c.entries[conversationID] = e
	return true
}

// Len returns the number of entries, including expired ones not yet read.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
