/*-------------------------------------------------------------------------
 *
 * exoquery - File Watcher
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

// Package watch reloads settings files while a long-running command is
// active. Directories are watched instead of files because editors often
// replace a file on save.
package watch

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"exoquery/internal/logging"
)

// DefaultDebounce collapses bursts of events into one reload
const DefaultDebounce = 100 * time.Millisecond

// Watcher calls a reload function when matching files in a directory
// change
type Watcher struct {
	watcher  *fsnotify.Watcher
	target   string
	match    func(path string) bool
	reloadFn func() error
	debounce time.Duration

	done     chan struct{}
	stopOnce sync.Once
}

// NewFileWatcher reloads when the file at path is written, created,
// removed or renamed
func NewFileWatcher(path string, reloadFn func() error) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	return newWatcher(filepath.Dir(abs), abs, func(name string) bool {
		return name == abs
	}, reloadFn)
}

// NewDirWatcher reloads when any file in dir whose name ends in suffix
// changes
func NewDirWatcher(dir, suffix string, reloadFn func() error) (*Watcher, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	return newWatcher(abs, filepath.Join(abs, "*"+suffix), func(name string) bool {
		return filepath.Dir(name) == abs && strings.HasSuffix(name, suffix)
	}, reloadFn)
}

func newWatcher(dir, target string, match func(string) bool, reloadFn func() error) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}

	return &Watcher{
		watcher:  watcher,
		target:   target,
		match:    match,
		reloadFn: reloadFn,
		debounce: DefaultDebounce,
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching for changes
func (w *Watcher) Start() {
	go w.watch()
}

// Stop ends watching. It may be called more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.watcher.Close()
	})
}

// Target describes what is watched, for logs
func (w *Watcher) Target() string {
	return w.target
}

func (w *Watcher) watch() {
	var timer *time.Timer
	const changes = fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			name, err := filepath.Abs(event.Name)
			if err != nil || !w.match(name) || event.Op&changes == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Warn("watch_error", "target", w.target, "error", err)

		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

func (w *Watcher) reload() {
	select {
	case <-w.done:
		return
	default:
	}
	if err := w.reloadFn(); err != nil {
		logging.Warn("watch_reload_failed", "target", w.target, "error", err)
		return
	}
	logging.Info("watch_reloaded", "target", w.target)
}
