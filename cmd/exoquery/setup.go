/*-------------------------------------------------------------------------
 *
 * exoquery - Component Setup
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"exoquery/internal/cache"
	"exoquery/internal/catalog"
	"exoquery/internal/colindex"
	"exoquery/internal/config"
	"exoquery/internal/embedding"
	qerrors "exoquery/internal/errors"
	"exoquery/internal/llm"
	"exoquery/internal/logging"
	"exoquery/internal/querygen"
	"exoquery/internal/storage"
)

// loadInstruments reads the optional instrument list
func loadInstruments(cfg *config.Config) ([]string, error) {
	if cfg.Catalog.InstrumentsPath == "" {
		return nil, nil
	}
	instruments, err := catalog.LoadInstrumentsFile(cfg.Catalog.InstrumentsPath)
	if err != nil {
		return nil, qerrors.InvalidArgument(fmt.Sprintf("failed to load instruments: %v", err))
	}
	return instruments, nil
}

// snapshotCachePath is where an object storage snapshot is kept locally
func snapshotCachePath(cfg *config.Config, loc storage.Location) (string, error) {
	dir := cfg.Index.CacheDir
	if dir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			return "", fmt.Errorf("failed to locate cache directory: %w", err)
		}
		dir = filepath.Join(base, "exoquery")
	}
	return filepath.Join(dir, loc.Bucket, filepath.Base(loc.Key)), nil
}

// localSnapshot returns a local path for the configured snapshot,
// downloading it first when it lives in object storage
func localSnapshot(ctx context.Context, cfg *config.Config) (string, error) {
	loc, remote, err := storage.ParseLocation(cfg.Index.SnapshotPath)
	if err != nil {
		return "", qerrors.InvalidArgument(err.Error())
	}
	if !remote {
		return cfg.Index.SnapshotPath, nil
	}

	path, err := snapshotCachePath(cfg, loc)
	if err != nil {
		return "", err
	}
	store, err := storage.NewS3Storage(ctx, loc.Bucket, cfg.Index.S3)
	if err != nil {
		return "", qerrors.IndexUnavailable("cannot reach snapshot storage", err)
	}

	logging.Info("snapshot_download", "location", loc.String(), "path", path)
	if err := storage.Fetch(ctx, store, loc.Key, path); err != nil {
		return "", qerrors.IndexUnavailable(fmt.Sprintf("failed to download snapshot %s", loc), err)
	}
	return path, nil
}

// openIndex restores the column index from the configured snapshot
func openIndex(ctx context.Context, cfg *config.Config) (*colindex.Index, error) {
	enc, err := embedding.NewProvider(cfg.EmbeddingProviderConfig())
	if err != nil {
		return nil, qerrors.IndexUnavailable("failed to create embedding provider", err)
	}
	instruments, err := loadInstruments(cfg)
	if err != nil {
		return nil, err
	}
	path, err := localSnapshot(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return colindex.Restore(path, enc, colindex.Options{Instruments: instruments})
}

// pipeline is everything a command needs to generate queries
type pipeline struct {
	gen   *querygen.Generator
	index *colindex.Index
	model llm.Completer
	cache cache.Cache
}

// Close releases the result cache
func (p *pipeline) Close() {
	if p.cache != nil {
		if err := p.cache.Close(); err != nil {
			logging.Warn("cache_close_failed", "error", err)
		}
	}
}

// newPipeline restores the index and connects the model and cache
func newPipeline(ctx context.Context, cfg *config.Config) (*pipeline, error) {
	index, err := openIndex(ctx, cfg)
	if err != nil {
		return nil, err
	}

	model, err := llm.NewCompleter(cfg.LLMClientConfig())
	if err != nil {
		return nil, err
	}

	opts := cfg.GeneratorOptions()
	templates, err := loadTemplates(cfg)
	if err != nil {
		return nil, qerrors.InvalidArgument(fmt.Sprintf("failed to load prompt templates: %v", err))
	}
	opts.Templates = templates

	resultCache, err := cfg.OpenCache(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open result cache: %w", err)
	}
	opts.Cache = resultCache

	return &pipeline{
		gen:   querygen.New(index, model, opts),
		index: index,
		model: model,
		cache: resultCache,
	}, nil
}
