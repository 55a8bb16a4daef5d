/*-------------------------------------------------------------------------
 *
 * exoquery - Query Generation
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

// Package querygen turns a free-text question into an archive query: the
// model splits the question into column searches, the index retrieves
// candidate columns, and the model writes the query from those
// candidates before the enhancement rules repair it.
package querygen

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"exoquery/internal/archive"
	"exoquery/internal/cache"
	"exoquery/internal/catalog"
	"exoquery/internal/colindex"
	"exoquery/internal/enhance"
	qerrors "exoquery/internal/errors"
	"exoquery/internal/llm"
	"exoquery/internal/logging"
	"exoquery/internal/prompts"
)

const (
	// DefaultK is the number of columns retrieved per sub-query
	DefaultK = 2

	// DefaultTimeoutRetries is how often a timed-out model call is repeated
	DefaultTimeoutRetries = 1

	// DefaultRetryBackoff is the wait before the first repeat; it doubles
	// on each further attempt
	DefaultRetryBackoff = 500 * time.Millisecond

	// DateLayout formats CURRENT_DATE
	DateLayout = "2006-01-02"
)

// Index is the retrieval side of the pipeline. *colindex.Index satisfies it.
type Index interface {
	Search(ctx context.Context, text string, k int) ([]colindex.Result, error)
	Catalog() *catalog.Catalog
	// Fingerprint changes whenever Search could answer differently
	Fingerprint() string
}

// Options configures a Generator. Zero values select the defaults.
type Options struct {
	// K is the number of columns retrieved per sub-query
	K int

	// IncludeSummary adds a model-written narrative of the final query
	IncludeSummary bool

	// TimeoutRetries bounds repeats of a timed-out model call. Negative
	// disables them.
	TimeoutRetries int
	RetryBackoff   time.Duration

	// MalformedRetries re-prompts when the model reply cannot be parsed
	MalformedRetries int

	// Templates overrides the embedded prompt templates
	Templates *prompts.Registry

	// Cache stores results by question, model, K, index and templates;
	// nil disables caching
	Cache cache.Cache

	// Now supplies CURRENT_DATE
	Now func() time.Time
}

// Result is the outcome of one generation
type Result struct {
	RequestID      string                 `json:"request_id"`
	Question       string                 `json:"question"`
	ColumnRequests []string               `json:"column_requests"`
	Candidates     []string               `json:"candidates"`
	Query          archive.ArchiveQuery   `json:"query"`
	Columns        []catalog.ColumnRecord `json:"columns"`
	Summary        string                 `json:"summary,omitempty"`
	Cached         bool                   `json:"cached"`
}

// Generator runs the question-to-query pipeline. It holds no per-request
// state and is safe for concurrent use.
type Generator struct {
	index     Index
	model     llm.Completer
	templates atomic.Pointer[prompts.Registry]
	opts      Options
}

// New creates a Generator over a ready index and a model client
func New(index Index, model llm.Completer, opts Options) *Generator {
	if opts.K <= 0 {
		opts.K = DefaultK
	}
	if opts.TimeoutRetries == 0 {
		opts.TimeoutRetries = DefaultTimeoutRetries
	} else if opts.TimeoutRetries < 0 {
		opts.TimeoutRetries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = DefaultRetryBackoff
	}
	if opts.MalformedRetries < 0 {
		opts.MalformedRetries = 0
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	templates := opts.Templates
	if templates == nil {
		templates = prompts.Default()
	}
	g := &Generator{
		index: index,
		model: model,
		opts:  opts,
	}
	g.templates.Store(templates)
	return g
}

// SetTemplates replaces the prompt templates used by later requests.
// Requests already running keep the registry they started with.
func (g *Generator) SetTemplates(r *prompts.Registry) {
	if r == nil {
		r = prompts.Default()
	}
	g.templates.Store(r)
	logging.Info("prompt_templates_set", "templates", len(r.Names()))
}

// cacheKey identifies the answer to question under the current model,
// retrieval depth, index and templates
func (g *Generator) cacheKey(question string, templates *prompts.Registry) string {
	variant := fmt.Sprintf("k=%d;index=%s;prompts=%s",
		g.opts.K, g.index.Fingerprint(), templates.Fingerprint())
	return cache.Key(question, g.model.ProviderName()+"/"+g.model.ModelName(), variant)
}

// Generate translates question into an enhanced archive query. Any error
// aborts the request; no query is returned with it.
func (g *Generator) Generate(ctx context.Context, question string) (*Result, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, qerrors.InvalidArgument("question cannot be empty")
	}

	start := time.Now()
	res := &Result{RequestID: uuid.NewString(), Question: question}
	log := logging.With("request_id", res.RequestID)
	log.Debug("generate_start", "question", question)

	templates := g.templates.Load()
	var key string
	if g.opts.Cache != nil {
		key = g.cacheKey(question, templates)
		entry, ok, err := g.opts.Cache.Get(ctx, key)
		if err != nil {
			log.Warn("cache_get_failed", "error", err)
		} else if ok {
			g.fromCache(ctx, log, templates, key, entry, res)
			log.Info("generate_cache_hit", "select", res.Query.Select)
			return res, nil
		}
	}

	requests, err := g.columnRequests(ctx, log, templates, question)
	if err != nil {
		log.Error("column_requests_failed", "error", err)
		return nil, err
	}
	res.ColumnRequests = requests

	candidates, err := g.retrieve(ctx, requests)
	if err != nil {
		log.Error("column_retrieval_failed", "error", err)
		return nil, err
	}
	res.Candidates = candidates
	log.Debug("candidates_retrieved", "requests", len(requests), "candidates", strings.Join(candidates, ","))

	raw, err := g.archiveQuery(ctx, log, templates, question, candidates)
	if err != nil {
		log.Error("archive_query_failed", "error", err)
		return nil, err
	}

	res.Query = enhance.Query(raw)
	res.Columns = g.describe(res.Query)

	if g.opts.IncludeSummary {
		summary, err := g.summarize(ctx, log, templates, question, res)
		if err != nil {
			log.Warn("summary_failed", "error", err)
		}
		res.Summary = summary
	}

	if g.opts.Cache != nil {
		g.store(ctx, log, key, res)
	}

	log.Info("generate_complete",
		"select", res.Query.Select, "where", res.Query.Where,
		"duration_ms", time.Since(start).Milliseconds())
	return res, nil
}

// fromCache fills res from a cached entry. The slices are copied so
// callers cannot modify the entry. A summary missing from the entry is
// generated when requested and stored back.
func (g *Generator) fromCache(ctx context.Context, log *logging.Logger, templates *prompts.Registry, key string, entry *cache.Entry, res *Result) {
	res.ColumnRequests = append([]string(nil), entry.ColumnRequests...)
	res.Candidates = append([]string(nil), entry.Candidates...)
	res.Query = entry.Query.Clone()
	res.Summary = entry.Summary
	res.Columns = g.describe(res.Query)
	res.Cached = true

	if g.opts.IncludeSummary && res.Summary == "" {
		summary, err := g.summarize(ctx, log, templates, res.Question, res)
		if err != nil {
			log.Warn("summary_failed", "error", err)
			return
		}
		res.Summary = summary
		g.store(ctx, log, key, res)
	}
}

// store writes res to the cache under key
func (g *Generator) store(ctx context.Context, log *logging.Logger, key string, res *Result) {
	entry := &cache.Entry{
		ColumnRequests: append([]string(nil), res.ColumnRequests...),
		Candidates:     append([]string(nil), res.Candidates...),
		Query:          res.Query.Clone(),
		Summary:        res.Summary,
	}
	if err := g.opts.Cache.Set(ctx, key, entry); err != nil {
		log.Warn("cache_set_failed", "error", err)
	}
}

// columnRequests asks the model to split the question into column searches
func (g *Generator) columnRequests(ctx context.Context, log *logging.Logger, templates *prompts.Registry, question string) ([]string, error) {
	prompt, err := templates.Render(prompts.GenerateColumnQuery, map[string]string{
		prompts.VarUserQuery: question,
	})
	if err != nil {
		return nil, err
	}

	var requests []string
	err = g.completeJSON(ctx, log, "column_query", prompt, func(reply string) error {
		var req archive.ColumnSearchRequest
		if err := llm.DecodeJSONObject(reply, &req); err != nil {
			return err
		}
		requests = requests[:0]
		for _, r := range req.ColumnRequests {
			if r = strings.TrimSpace(r); r != "" {
				requests = append(requests, r)
			}
		}
		if len(requests) == 0 {
			return qerrors.MalformedModelOutput("column_requests is empty", nil)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return requests, nil
}

// retrieve searches the index once per sub-query and concatenates the
// column names in order. Repeats are kept.
func (g *Generator) retrieve(ctx context.Context, requests []string) ([]string, error) {
	var candidates []string
	for _, sub := range requests {
		results, err := g.index.Search(ctx, sub, g.opts.K)
		if err != nil {
			return nil, err
		}
		for _, r := range results {
			candidates = append(candidates, r.Record.Name)
		}
	}
	return candidates, nil
}

// archiveQuery asks the model for the query over the candidate columns
func (g *Generator) archiveQuery(ctx context.Context, log *logging.Logger, templates *prompts.Registry, question string, candidates []string) (archive.ArchiveQuery, error) {
	prompt, err := templates.Render(prompts.GenerateAstroquery, map[string]string{
		prompts.VarUserQuery:       question,
		prompts.VarRelevantColumns: FormatCandidates(candidates),
		prompts.VarCurrentDate:     g.opts.Now().Format(DateLayout),
	})
	if err != nil {
		return archive.ArchiveQuery{}, err
	}

	var q archive.ArchiveQuery
	err = g.completeJSON(ctx, log, "archive_query", prompt, func(reply string) error {
		q = archive.ArchiveQuery{}
		return llm.DecodeJSONObject(reply, &q)
	})
	return q, err
}

// summarize asks the model for a short narrative of the final query
func (g *Generator) summarize(ctx context.Context, log *logging.Logger, templates *prompts.Registry, question string, res *Result) (string, error) {
	queryJSON, err := json.MarshalIndent(res.Query, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal query: %w", err)
	}
	descriptions := make([]string, len(res.Columns))
	for i, rec := range res.Columns {
		descriptions[i] = "- " + rec.Describe()
	}

	prompt, err := templates.Render(prompts.SummarizeQuery, map[string]string{
		prompts.VarUserQuery:          question,
		prompts.VarArchiveQuery:       string(queryJSON),
		prompts.VarColumnDescriptions: strings.Join(descriptions, "\n"),
	})
	if err != nil {
		return "", err
	}
	reply, err := g.complete(ctx, log, "summary", prompt)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(reply), nil
}

// describe looks up the catalog record of each selected column. Select
// tokens that are not catalog columns are skipped.
func (g *Generator) describe(q archive.ArchiveQuery) []catalog.ColumnRecord {
	cat := g.index.Catalog()
	var records []catalog.ColumnRecord
	for _, token := range enhance.SplitSelect(q.Select) {
		if rec, ok := cat.Lookup(enhance.ColumnOf(token)); ok {
			records = append(records, rec)
		}
	}
	return records
}

// FormatCandidates renders column names as a JSON list for the prompt
func FormatCandidates(names []string) string {
	if names == nil {
		names = []string{}
	}
	data, _ := json.Marshal(names)
	return string(data)
}
