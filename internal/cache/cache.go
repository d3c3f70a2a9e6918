// Package cache provides the per-operator-family TTL caches that sit in
// front of the extraction and validation operators.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"sort"
	"sync"
	"time"
)

// Key hashes a serialized input to a 128-bit hex string. Two calls with
// equal inputs always produce the same key.
func Key(input any) string {
	b, err := json.Marshal(input)
	if err != nil {
		b = []byte{}
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:16])
}

type entry struct {
	value     any
	createdAt time.Time
	expiresAt time.Time
	hits      int
}

// Stats is a point-in-time view of one cache.
type Stats struct {
	Size    int     `json:"size"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// Cache is one TTL-bounded family cache. A single mutex guards all state.
type Cache struct {
	mu      sync.Mutex
	name    string
	ttl     time.Duration
	max     int
	entries map[string]*entry
	hits    int64
	misses  int64
}

// New builds an empty cache holding at most max entries for ttl each.
func New(name string, ttl time.Duration, max int) *Cache {
	if max < 1 {
		max = 1
	}
	return &Cache{
		name:    name,
		ttl:     ttl,
		max:     max,
		entries: make(map[string]*entry),
	}
}

// Get returns the live value under key. An expired entry counts as a miss
// and is dropped.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		delete(c.entries, key)
		c.misses++
		return nil, false
	}
	e.hits++
	c.hits++
	return e.value, true
}

// Put stores value under key. Inserting into a full cache first evicts the
// oldest ceil(10%) of entries by creation time.
func (c *Cache) Put(key string, value any) {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.max {
		c.evictOldest()
	}
	c.entries[key] = &entry{
		value:     value,
		createdAt: now,
		expiresAt: now.Add(c.ttl),
	}
}

// SetTTL changes the cache's lifetime. Existing entries are re-stamped from
// their creation time, so a shorter TTL can expire them immediately.
func (c *Cache) SetTTL(ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ttl == c.ttl {
		return
	}
	c.ttl = ttl
	for _, e := range c.entries {
		e.expiresAt = e.createdAt.Add(ttl)
	}
}

// evictOldest removes ceil(0.1 * max) entries, oldest created first. Caller
// holds the mutex.
func (c *Cache) evictOldest() {
	n := int(math.Ceil(0.1 * float64(c.max)))
	if n < 1 {
		n = 1
	}
	type aged struct {
		key string
		at  time.Time
	}
	all := make([]aged, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, aged{k, e.createdAt})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].at.Equal(all[j].at) {
			return all[i].key < all[j].key
		}
		return all[i].at.Before(all[j].at)
	})
	if n > len(all) {
		n = len(all)
	}
	for _, a := range all[:n] {
		delete(c.entries, a.key)
	}
}

// Sweep drops entries expired as of now and returns how many were removed.
func (c *Cache) Sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Clear empties the cache and resets its counters, returning the number of
// entries removed.
func (c *Cache) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.entries)
	c.entries = make(map[string]*entry)
	c.hits = 0
	c.misses = 0
	return n
}

// Stats reports current size and lookup counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Stats{
		Size:   len(c.entries),
		Hits:   c.hits,
		Misses: c.misses,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}
