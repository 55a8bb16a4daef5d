/*-------------------------------------------------------------------------
 *
 * exoquery - Index Snapshot File Tests
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package snapshot

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"exoquery/internal/catalog"
	qerrors "exoquery/internal/errors"
)

func sampleSnapshot() *Snapshot {
	return &Snapshot{
		Meta: Meta{
			SchemaSource:    "assets/nexsci_ps_columns.csv",
			TextForm:        catalog.TextName,
			Dimensions:      3,
			EncoderProvider: "ollama",
			EncoderModel:    "nomic-embed-text",
		},
		Records: []catalog.ColumnRecord{
			{Name: "pl_name", ShortDescription: "Planet Name", LongDescription: "Most common name"},
			{Name: "hostname", ShortDescription: "Host Name"},
			{Name: "pl_rade", ShortDescription: "Planet Radius [Earth Radius]"},
		},
		Vectors: [][]float32{
			{0.1, 0.2, 0.3},
			{-1, 0, 1},
			{3.5, 2.25, -0.125},
		},
	}
}

func TestWriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index", "columns.db")
	want := sampleSnapshot()

	if err := Write(path, want); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}

	if !reflect.DeepEqual(got.Records, want.Records) {
		t.Errorf("Records = %+v, want %+v", got.Records, want.Records)
	}
	if !reflect.DeepEqual(got.Vectors, want.Vectors) {
		t.Errorf("Vectors = %v, want %v", got.Vectors, want.Vectors)
	}
	if got.Meta.Count != 3 || got.Meta.Dimensions != 3 {
		t.Errorf("unexpected meta %+v", got.Meta)
	}
	if got.Meta.SchemaSource != want.Meta.SchemaSource || got.Meta.TextForm != catalog.TextName {
		t.Errorf("unexpected meta %+v", got.Meta)
	}
	if got.Meta.EncoderModel != "nomic-embed-text" || got.Meta.CreatedAt.IsZero() {
		t.Errorf("unexpected meta %+v", got.Meta)
	}
}

func TestWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "columns.db")

	if err := Write(path, sampleSnapshot()); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	// Overwriting an existing snapshot replaces it
	if err := Write(path, sampleSnapshot()); err != nil {
		t.Fatalf("second Write() error: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "columns.db" {
		names := []string{}
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("unexpected directory contents: %v", names)
	}
}

func TestWriteRejectsMismatchedCounts(t *testing.T) {
	s := sampleSnapshot()
	s.Vectors = s.Vectors[:2]
	if err := Write(filepath.Join(t.TempDir(), "columns.db"), s); err == nil {
		t.Fatal("expected error for mismatched record and vector counts")
	}
}

func TestReadMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.db")
	_, err := Read(path)
	if !errors.Is(err, qerrors.ErrIndexUnavailable) {
		t.Fatalf("expected IndexUnavailable, got %v", err)
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Error("Read() must not create a missing snapshot")
	}
}

func tamper(t *testing.T, path, statement string, args ...interface{}) {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("failed to open snapshot: %v", err)
	}
	defer db.Close()
	if _, err := db.Exec(statement, args...); err != nil {
		t.Fatalf("failed to tamper with snapshot: %v", err)
	}
}

func TestReadCorrupt(t *testing.T) {
	tests := []struct {
		name      string
		statement string
		args      []interface{}
	}{
		{
			name:      "count mismatch",
			statement: "UPDATE meta SET value = '4' WHERE key = 'count'",
		},
		{
			name:      "dimension mismatch",
			statement: "UPDATE meta SET value = '8' WHERE key = 'dimensions'",
		},
		{
			name:      "missing row",
			statement: "DELETE FROM columns WHERE position = 1",
		},
		{
			name:      "bad vector blob",
			statement: "UPDATE columns SET embedding = ? WHERE position = 0",
			args:      []interface{}{[]byte{0xff, 0xfe, 0xfd}},
		},
		{
			name:      "unknown format version",
			statement: "UPDATE meta SET value = '99' WHERE key = 'format_version'",
		},
		{
			name:      "missing metadata",
			statement: "DELETE FROM meta WHERE key = 'dimensions'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "columns.db")
			if err := Write(path, sampleSnapshot()); err != nil {
				t.Fatalf("Write() error: %v", err)
			}
			tamper(t, path, tt.statement, tt.args...)

			_, err := Read(path)
			if !errors.Is(err, qerrors.ErrCorruptIndex) {
				t.Fatalf("expected CorruptIndex, got %v", err)
			}
		})
	}
}

func TestReadNotASnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "columns.db")
	if err := os.WriteFile(path, []byte("definitely not sqlite"), 0600); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	_, err := Read(path)
	if err == nil || !qerrors.IsIndexError(err) {
		t.Fatalf("expected an index error, got %v", err)
	}
}

func TestReadMeta(t *testing.T) {
	path := filepath.Join(t.TempDir(), "columns.db")
	if err := Write(path, sampleSnapshot()); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	meta, err := ReadMeta(path)
	if err != nil {
		t.Fatalf("ReadMeta() error: %v", err)
	}
	if meta.Count != 3 || meta.FormatVersion != FormatVersion || meta.EncoderProvider != "ollama" {
		t.Errorf("unexpected meta %+v", meta)
	}
}

func TestWriteReadURISyntaxInPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "build?v=1#x 100%", "columns?.db")
	if err := Write(path, sampleSnapshot()); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("snapshot not written at %s: %v", path, err)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if len(got.Records) != 3 {
		t.Errorf("got %d records, want 3", len(got.Records))
	}
}

func TestSQLiteDSN(t *testing.T) {
	tests := []struct {
		path string
		mode string
		want string
	}{
		{"/data/index.db", "ro", "file:/data/index.db?mode=ro"},
		{"/data/a?b.db", "ro", "file:/data/a%3Fb.db?mode=ro"},
		{"/data/a#b.db", "rwc", "file:/data/a%23b.db?mode=rwc"},
		{"/data/100%.db", "ro", "file:/data/100%25.db?mode=ro"},
	}
	for _, tt := range tests {
		if got := sqliteDSN(tt.path, tt.mode); got != tt.want {
			t.Errorf("sqliteDSN(%q, %q) = %q, want %q", tt.path, tt.mode, got, tt.want)
		}
	}
}

func TestSerializeEmbedding(t *testing.T) {
	in := []float32{1.5, -2.25, 0}
	out := deserializeEmbedding(serializeEmbedding(in))
	if !reflect.DeepEqual(in, out) {
		t.Errorf("deserializeEmbedding(serializeEmbedding(%v)) = %v", in, out)
	}
	if deserializeEmbedding([]byte{1, 2, 3}) != nil {
		t.Error("expected nil for truncated data")
	}
}
