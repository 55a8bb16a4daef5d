/*-------------------------------------------------------------------------
 *
 * exoquery - In-Memory Query Cache
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	// DefaultCapacity is the entry limit of a memory cache
	DefaultCapacity = 512

	// DefaultTTL is how long cached results stay valid
	DefaultTTL = time.Hour
)

// MemoryCache is a size-bounded LRU cache whose entries expire after a TTL
type MemoryCache struct {
	lru *expirable.LRU[string, *Entry]
	ttl time.Duration
}

// NewMemoryCache creates a memory cache. Non-positive arguments select
// the defaults.
func NewMemoryCache(capacity int, ttl time.Duration) *MemoryCache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryCache{
		lru: expirable.NewLRU[string, *Entry](capacity, nil, ttl),
		ttl: ttl,
	}
}

// Get returns the entry for key, if present and not expired
func (c *MemoryCache) Get(_ context.Context, key string) (*Entry, bool, error) {
	entry, ok := c.lru.Get(key)
	return entry, ok, nil
}

// Set stores entry under key, evicting the least recently used entry
// when full
func (c *MemoryCache) Set(_ context.Context, key string, entry *Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	c.lru.Add(key, entry)
	return nil
}

// Purge removes all entries
func (c *MemoryCache) Purge(_ context.Context) error {
	c.lru.Purge()
	return nil
}

// Len returns the number of cached entries
func (c *MemoryCache) Len() int {
	return c.lru.Len()
}

// Stats returns cache statistics
func (c *MemoryCache) Stats() map[string]interface{} {
	return map[string]interface{}{
		"total_entries": c.lru.Len(),
		"cache_ttl_sec": c.ttl.Seconds(),
	}
}

// Close releases nothing; it satisfies Cache
func (c *MemoryCache) Close() error {
	return nil
}
