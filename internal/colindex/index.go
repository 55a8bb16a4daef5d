/*-------------------------------------------------------------------------
 *
 * exoquery - Column Embedding Index
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

// Package colindex implements exact nearest-neighbor retrieval over the
// column catalog. Every record is embedded once at build time and every
// search scans all vectors, so results are exact and deterministic for a
// fixed encoder.
package colindex

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spaolacci/murmur3"
	"golang.org/x/sync/errgroup"

	"exoquery/internal/catalog"
	"exoquery/internal/enhance"
	qerrors "exoquery/internal/errors"
	"exoquery/internal/logging"
)

// DefaultBuildConcurrency is the number of records embedded in parallel
// during Build
const DefaultBuildConcurrency = 4

// Encoder turns text into a vector. embedding.Provider satisfies it.
type Encoder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	ModelName() string
	ProviderName() string
}

// Options configures Build and Restore
type Options struct {
	// TextForm selects what is embedded per record. Restore uses the form
	// recorded in the snapshot instead.
	TextForm catalog.TextForm

	// SchemaSource identifies where the catalog came from (e.g. its CSV path)
	SchemaSource string

	// Instruments enables telescope normalization of search text
	Instruments []string

	// BuildConcurrency bounds parallel encoder calls during Build
	BuildConcurrency int
}

// Result is one search hit
type Result struct {
	Record   catalog.ColumnRecord `json:"record"`
	Position int                  `json:"position"`
	// Distance is the squared Euclidean distance to the query vector
	Distance float64 `json:"distance"`
}

// Index is a read-only column index, safe for concurrent Search. Only the
// instrument list may change after construction.
type Index struct {
	catalog      *catalog.Catalog
	vectors      [][]float32
	dims         int
	textForm     catalog.TextForm
	schemaSource string
	encoder      Encoder

	mu          sync.RWMutex
	instruments []string
}

// Build embeds every catalog record and returns the index. An empty
// catalog, an encoder failure or vectors of differing length yield
// IndexUnavailable.
func Build(ctx context.Context, cat *catalog.Catalog, enc Encoder, opts Options) (*Index, error) {
	if cat.Len() == 0 {
		return nil, qerrors.IndexUnavailable("cannot build an index from an empty catalog", nil)
	}
	if enc == nil {
		return nil, qerrors.IndexUnavailable("no encoder configured", nil)
	}

	form := opts.TextForm
	if form == "" {
		form = catalog.TextName
	}
	limit := opts.BuildConcurrency
	if limit < 1 {
		limit = DefaultBuildConcurrency
	}

	start := time.Now()
	texts := cat.Texts(form)
	vectors := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, text := range texts {
		g.Go(func() error {
			vec, err := enc.Embed(gctx, text)
			if err != nil {
				return fmt.Errorf("failed to embed column %q: %w", cat.At(i).Name, err)
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, qerrors.IndexUnavailable("index build failed", err)
	}

	dims, err := checkDimensions(cat, vectors)
	if err != nil {
		return nil, qerrors.IndexUnavailable("index build failed", err)
	}

	logging.Info("index_built",
		"columns", cat.Len(),
		"dimensions", dims,
		"text_form", string(form),
		"encoder", enc.ProviderName()+"/"+enc.ModelName(),
		"duration_ms", time.Since(start).Milliseconds())

	return &Index{
		catalog:      cat,
		vectors:      vectors,
		dims:         dims,
		textForm:     form,
		schemaSource: opts.SchemaSource,
		instruments:  opts.Instruments,
		encoder:      enc,
	}, nil
}

func checkDimensions(cat *catalog.Catalog, vectors [][]float32) (int, error) {
	if len(vectors) != cat.Len() {
		return 0, fmt.Errorf("%d vectors for %d columns", len(vectors), cat.Len())
	}
	dims := len(vectors[0])
	if dims == 0 {
		return 0, fmt.Errorf("column %q has an empty vector", cat.At(0).Name)
	}
	for i, vec := range vectors {
		if len(vec) != dims {
			return 0, fmt.Errorf("column %q has %d dimensions, expected %d", cat.At(i).Name, len(vec), dims)
		}
	}
	return dims, nil
}

// Search returns the min(k, Len()) records closest to queryText, closest
// first, ties broken by lower catalog position. k must be at least 1.
func (ix *Index) Search(ctx context.Context, queryText string, k int) ([]Result, error) {
	if k < 1 {
		return nil, qerrors.InvalidArgument(fmt.Sprintf("k must be at least 1, got %d", k))
	}
	if strings.TrimSpace(queryText) == "" {
		return nil, qerrors.InvalidArgument("search text cannot be empty")
	}

	text := queryText
	if instruments := ix.Instruments(); len(instruments) > 0 {
		text = enhance.NormalizeText(queryText, instruments)
	}

	vec, err := ix.encoder.Embed(ctx, text)
	if err != nil {
		return nil, qerrors.IndexUnavailable("failed to embed search text", err)
	}
	if len(vec) != ix.dims {
		return nil, qerrors.IndexUnavailable(
			fmt.Sprintf("search vector has %d dimensions, index has %d", len(vec), ix.dims), nil)
	}

	results := ix.rank(vec, k)
	logging.Debug("index_search", "query", text, "k", k, "results", len(results))
	return results, nil
}

// rank scores every vector against query and keeps the k best
func (ix *Index) rank(query []float32, k int) []Result {
	order := make([]int, len(ix.vectors))
	distances := make([]float64, len(ix.vectors))
	for i, vec := range ix.vectors {
		order[i] = i
		distances[i] = squaredL2(query, vec)
	}

	sort.Slice(order, func(a, b int) bool {
		da, db := distances[order[a]], distances[order[b]]
		if da != db {
			return da < db
		}
		return order[a] < order[b]
	})

	if k > len(order) {
		k = len(order)
	}
	results := make([]Result, k)
	for i := 0; i < k; i++ {
		pos := order[i]
		results[i] = Result{
			Record:   ix.catalog.At(pos),
			Position: pos,
			Distance: distances[pos],
		}
	}
	return results
}

func squaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

// Len returns the number of indexed columns
func (ix *Index) Len() int {
	return len(ix.vectors)
}

// Dimensions returns the vector length
func (ix *Index) Dimensions() int {
	return ix.dims
}

// Catalog returns the indexed catalog
func (ix *Index) Catalog() *catalog.Catalog {
	return ix.catalog
}

// SchemaSource returns the catalog source identifier
func (ix *Index) SchemaSource() string {
	return ix.schemaSource
}

// TextForm returns the record text form the vectors were built from
func (ix *Index) TextForm() catalog.TextForm {
	return ix.textForm
}

// Instruments returns the telescope names used to normalize search text
func (ix *Index) Instruments() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.instruments
}

// SetInstruments replaces the telescope names used by later searches
func (ix *Index) SetInstruments(names []string) {
	names = append([]string(nil), names...)
	ix.mu.Lock()
	ix.instruments = names
	ix.mu.Unlock()
	logging.Info("index_instruments_set", "count", len(names))
}

// Fingerprint identifies what a search over this index can return: the
// catalog source and texts, the encoder, the vector shape and the
// instrument list. Two indexes with equal fingerprints answer the same
// text with the same columns.
func (ix *Index) Fingerprint() string {
	h := murmur3.New128()
	write := func(s string) {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	write(ix.schemaSource)
	write(string(ix.textForm))
	write(ix.encoder.ProviderName() + "/" + ix.encoder.ModelName())
	write(fmt.Sprintf("%dx%d", len(ix.vectors), ix.dims))
	for _, text := range ix.catalog.Texts(ix.textForm) {
		write(text)
	}
	write("instruments")
	for _, name := range ix.Instruments() {
		write(name)
	}
	h1, h2 := h.Sum128()
	return fmt.Sprintf("%016x%016x", h1, h2)
}
