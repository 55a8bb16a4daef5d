/*-------------------------------------------------------------------------
 *
 * exoquery - File Watcher Tests
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package watch

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// counter records reload calls
type counter struct {
	mu  sync.Mutex
	n   int
	err error
}

func (c *counter) reload() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return c.err
}

func (c *counter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// waitForCount polls until c reaches want or the deadline passes
func waitForCount(t *testing.T, c *counter, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.count() >= want {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("expected %d reloads, got %d", want, c.count())
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

func TestNewFileWatcher(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "instruments.txt")
	writeFile(t, path, "Kepler\n")

	c := &counter{}
	w, err := NewFileWatcher(path, c.reload)
	if err != nil {
		t.Fatalf("NewFileWatcher failed: %v", err)
	}
	defer w.Stop()

	if w.Target() != path {
		t.Errorf("Expected target %s, got %s", path, w.Target())
	}
}

func TestNewFileWatcherInvalidDirectory(t *testing.T) {
	c := &counter{}
	if _, err := NewFileWatcher("/nonexistent/directory/instruments.txt", c.reload); err == nil {
		t.Fatal("Expected error for invalid directory, got nil")
	}
	if _, err := NewDirWatcher("/nonexistent/prompts", ".prompt.tmpl", c.reload); err == nil {
		t.Fatal("Expected error for invalid directory, got nil")
	}
}

func TestFileWatcherReloadOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "instruments.txt")
	writeFile(t, path, "Kepler\n")

	c := &counter{}
	w, err := NewFileWatcher(path, c.reload)
	if err != nil {
		t.Fatalf("NewFileWatcher failed: %v", err)
	}
	w.Start()
	defer w.Stop()

	writeFile(t, path, "Kepler\nTESS\n")
	waitForCount(t, c, 1)
}

func TestFileWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "instruments.txt")
	writeFile(t, path, "Kepler\n")

	c := &counter{}
	w, err := NewFileWatcher(path, c.reload)
	if err != nil {
		t.Fatalf("NewFileWatcher failed: %v", err)
	}
	w.Start()
	defer w.Stop()

	writeFile(t, filepath.Join(dir, "other.txt"), "ignored")
	time.Sleep(300 * time.Millisecond)
	if c.count() != 0 {
		t.Errorf("Expected no reloads, got %d", c.count())
	}
}

func TestFileWatcherDebounces(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "instruments.txt")
	writeFile(t, path, "Kepler\n")

	c := &counter{}
	w, err := NewFileWatcher(path, c.reload)
	if err != nil {
		t.Fatalf("NewFileWatcher failed: %v", err)
	}
	w.debounce = 200 * time.Millisecond
	w.Start()
	defer w.Stop()

	for i := 0; i < 5; i++ {
		writeFile(t, path, "Kepler\nTESS\n")
		time.Sleep(10 * time.Millisecond)
	}
	waitForCount(t, c, 1)
	time.Sleep(400 * time.Millisecond)
	if c.count() != 1 {
		t.Errorf("Expected 1 reload for a burst of writes, got %d", c.count())
	}
}

func TestDirWatcherMatchesSuffix(t *testing.T) {
	dir := t.TempDir()

	c := &counter{}
	w, err := NewDirWatcher(dir, ".prompt.tmpl", c.reload)
	if err != nil {
		t.Fatalf("NewDirWatcher failed: %v", err)
	}
	w.Start()
	defer w.Stop()

	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")
	time.Sleep(300 * time.Millisecond)
	if c.count() != 0 {
		t.Fatalf("Expected no reloads for other files, got %d", c.count())
	}

	path := filepath.Join(dir, "generate_column_query.prompt.tmpl")
	writeFile(t, path, "{{.USER_QUERY}}")
	waitForCount(t, c, 1)

	if err := os.Remove(path); err != nil {
		t.Fatalf("Failed to remove %s: %v", path, err)
	}
	waitForCount(t, c, 2)
}

func TestWatcherReloadErrorKeepsWatching(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "instruments.txt")
	writeFile(t, path, "Kepler\n")

	c := &counter{err: errors.New("unreadable")}
	w, err := NewFileWatcher(path, c.reload)
	if err != nil {
		t.Fatalf("NewFileWatcher failed: %v", err)
	}
	w.Start()
	defer w.Stop()

	writeFile(t, path, "TESS\n")
	waitForCount(t, c, 1)
	writeFile(t, path, "K2\n")
	waitForCount(t, c, 2)
}

func TestWatcherStop(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "instruments.txt")
	writeFile(t, path, "Kepler\n")

	c := &counter{}
	w, err := NewFileWatcher(path, c.reload)
	if err != nil {
		t.Fatalf("NewFileWatcher failed: %v", err)
	}
	w.Start()
	w.Stop()
	w.Stop()

	writeFile(t, path, "TESS\n")
	time.Sleep(300 * time.Millisecond)
	if c.count() != 0 {
		t.Errorf("Expected no reloads after Stop, got %d", c.count())
	}
}
