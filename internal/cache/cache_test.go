/*-------------------------------------------------------------------------
 *
 * exoquery - Query Result Cache Tests
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exoquery/internal/archive"
)

func TestKey(t *testing.T) {
	a := Key("Show me planets  around M dwarfs", "qwen", "k=2")
	assert.Len(t, a, 32)
	assert.Equal(t, a, Key("show me planets around m dwarfs", "qwen", "k=2"))
	assert.Equal(t, a, Key("  show me\tplanets around m dwarfs ", "qwen", "k=2"))
	assert.NotEqual(t, a, Key("show me planets around m dwarfs", "llama", "k=2"))
	assert.NotEqual(t, a, Key("show me planets around k dwarfs", "qwen", "k=2"))
	assert.NotEqual(t, a, Key("show me planets around m dwarfs", "qwen", "k=3"))
	assert.NotEqual(t, Key("b", "a", ""), Key("", "a", "b"), "fields must not run together")
}

func TestMemoryCache_SetGet(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(4, time.Minute)
	defer c.Close()

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	entry := &Entry{
		ColumnRequests: []string{"planet radius"},
		Candidates:     []string{"pl_rade", "pl_radj"},
		Query:          archive.ArchiveQuery{Select: "pl_name, hostname, pl_rade", Where: "default_flag = 1"},
	}
	require.NoError(t, c.Set(ctx, "k", entry))
	assert.False(t, entry.CreatedAt.IsZero())

	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "pl_name, hostname, pl_rade", got.Query.Select)
	assert.Equal(t, []string{"pl_rade", "pl_radj"}, got.Candidates)
	assert.Equal(t, 1, c.Len())

	require.NoError(t, c.Purge(ctx))
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCache_Eviction(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(2, time.Minute)

	require.NoError(t, c.Set(ctx, "a", &Entry{}))
	require.NoError(t, c.Set(ctx, "b", &Entry{}))
	_, ok, _ := c.Get(ctx, "a")
	require.True(t, ok)
	require.NoError(t, c.Set(ctx, "c", &Entry{}))

	_, ok, _ = c.Get(ctx, "b")
	assert.False(t, ok, "least recently used entry should be evicted")
	_, ok, _ = c.Get(ctx, "a")
	assert.True(t, ok)
	_, ok, _ = c.Get(ctx, "c")
	assert.True(t, ok)
}

func TestMemoryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(8, 20*time.Millisecond)

	require.NoError(t, c.Set(ctx, "k", &Entry{}))
	time.Sleep(60 * time.Millisecond)

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCache_Defaults(t *testing.T) {
	c := NewMemoryCache(0, 0)
	stats := c.Stats()
	assert.Equal(t, 0, stats["total_entries"])
	assert.Equal(t, DefaultTTL.Seconds(), stats["cache_ttl_sec"])
}

func TestMemoryCache_Concurrent(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(64, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i%8)
			_ = c.Set(ctx, key, &Entry{Query: archive.ArchiveQuery{Select: key}})
			_, _, _ = c.Get(ctx, key)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 8, c.Len())
}

func TestNewRedisCache_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := NewRedisCache(ctx, RedisConfig{Addr: "127.0.0.1:1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "127.0.0.1:1")
}
