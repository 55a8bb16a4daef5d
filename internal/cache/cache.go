/*-------------------------------------------------------------------------
 *
 * exoquery - Query Result Cache
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

// Package cache stores generated archive queries keyed by question and
// model, so a repeated question skips the model calls.
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spaolacci/murmur3"

	"exoquery/internal/archive"
)

// Backend names
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Entry is a cached generation result
type Entry struct {
	ColumnRequests []string             `json:"column_requests"`
	Candidates     []string             `json:"candidates"`
	Query          archive.ArchiveQuery `json:"query"`
	Summary        string               `json:"summary,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
}

// Cache is a store of generation results. Implementations are safe for
// concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) (*Entry, bool, error)
	Set(ctx context.Context, key string, entry *Entry) error
	Purge(ctx context.Context) error
	Close() error
}

// Key derives the cache key for a question answered by a model. variant
// carries everything else the answer depends on, such as the retrieval
// depth and fingerprints of the index and prompt templates. Case and runs
// of whitespace in the question do not change the key.
func Key(question, model, variant string) string {
	text := strings.Join(strings.Fields(strings.ToLower(question)), " ")
	h1, h2 := murmur3.Sum128([]byte(model + "\x00" + variant + "\x00" + text))
	return fmt.Sprintf("%016x%016x", h1, h2)
}
