/*-------------------------------------------------------------------------
 *
 * exoquery - Settings Reload
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package main

import (
	"fmt"

	"exoquery/internal/config"
	"exoquery/internal/prompts"
	"exoquery/internal/watch"
)

type templateSetter interface {
	SetTemplates(r *prompts.Registry)
}

type instrumentSetter interface {
	SetInstruments(names []string)
}

// loadTemplates builds the registry for the configured prompt directory
func loadTemplates(cfg *config.Config) (*prompts.Registry, error) {
	templates := prompts.Default()
	if cfg.Generation.PromptDir == "" {
		return templates, nil
	}
	if err := templates.LoadDir(cfg.Generation.PromptDir); err != nil {
		return nil, err
	}
	return templates, nil
}

// watchSettings reloads prompt template overrides and the instrument list
// when their files change. A failed reload is logged and the previous
// settings stay in use. The returned function stops all watchers.
func watchSettings(cfg *config.Config, gen templateSetter, index instrumentSetter) (func(), error) {
	var watchers []*watch.Watcher
	stop := func() {
		for _, w := range watchers {
			w.Stop()
		}
	}

	if dir := cfg.Generation.PromptDir; dir != "" {
		w, err := watch.NewDirWatcher(dir, prompts.FileSuffix, func() error {
			templates, err := loadTemplates(cfg)
			if err != nil {
				return err
			}
			gen.SetTemplates(templates)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to watch prompt templates: %w", err)
		}
		watchers = append(watchers, w)
	}

	if path := cfg.Catalog.InstrumentsPath; path != "" {
		w, err := watch.NewFileWatcher(path, func() error {
			instruments, err := loadInstruments(cfg)
			if err != nil {
				return err
			}
			index.SetInstruments(instruments)
			return nil
		})
		if err != nil {
			stop()
			return nil, fmt.Errorf("failed to watch instruments: %w", err)
		}
		watchers = append(watchers, w)
	}

	for _, w := range watchers {
		w.Start()
	}
	return stop, nil
}
