/*-------------------------------------------------------------------------
 *
 * exoquery - Index Snapshot Files
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

// Package snapshot reads and writes the column index snapshot: one SQLite
// file holding the catalog, its vectors and the metadata needed to check
// them on load.
package snapshot

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/golang/snappy"
	_ "github.com/mattn/go-sqlite3"

	"exoquery/internal/catalog"
	qerrors "exoquery/internal/errors"
	"exoquery/internal/logging"
)

// FormatVersion is the snapshot layout written by this package
const FormatVersion = 1

// Meta describes a snapshot
type Meta struct {
	FormatVersion   int              `json:"format_version"`
	SchemaSource    string           `json:"schema_source"`
	TextForm        catalog.TextForm `json:"text_form"`
	Dimensions      int              `json:"dimensions"`
	Count           int              `json:"count"`
	EncoderProvider string           `json:"encoder_provider"`
	EncoderModel    string           `json:"encoder_model"`
	CreatedAt       time.Time        `json:"created_at"`
}

// Snapshot is the persisted state of a column index. Vectors[i] belongs
// to Records[i].
type Snapshot struct {
	Meta    Meta
	Records []catalog.ColumnRecord
	Vectors [][]float32
}

const schema = `
    CREATE TABLE meta (
        key TEXT PRIMARY KEY,
        value TEXT NOT NULL
    );

    CREATE TABLE columns (
        position INTEGER PRIMARY KEY,
        name TEXT NOT NULL UNIQUE,
        short_description TEXT NOT NULL DEFAULT '',
        long_description TEXT NOT NULL DEFAULT '',

        -- snappy-compressed little-endian float32 vector
        embedding BLOB NOT NULL
    );
    `

// Write stores the snapshot at path. The file is built next to path and
// renamed into place, so readers never see a partial snapshot.
func Write(path string, s *Snapshot) error {
	if len(s.Records) != len(s.Vectors) {
		return fmt.Errorf("snapshot has %d records but %d vectors", len(s.Records), len(s.Vectors))
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary snapshot: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()

	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if err := writeDB(tmpPath, s); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to move snapshot into place: %w", err)
	}
	committed = true

	logging.Info("snapshot_written", "path", path, "columns", len(s.Records), "dimensions", s.Meta.Dimensions)
	return nil
}

func writeDB(path string, s *Snapshot) error {
	db, err := sql.Open("sqlite3", sqliteDSN(path, "rwc"))
	if err != nil {
		return fmt.Errorf("failed to open snapshot database: %w", err)
	}
	defer db.Close()

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	meta := s.Meta
	meta.FormatVersion = FormatVersion
	meta.Count = len(s.Records)
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}

	values := map[string]string{
		"format_version":   strconv.Itoa(meta.FormatVersion),
		"schema_source":    meta.SchemaSource,
		"text_form":        string(meta.TextForm),
		"dimensions":       strconv.Itoa(meta.Dimensions),
		"count":            strconv.Itoa(meta.Count),
		"encoder_provider": meta.EncoderProvider,
		"encoder_model":    meta.EncoderModel,
		"created_at":       meta.CreatedAt.Format(time.RFC3339),
	}
	for k, v := range values {
		if _, err := tx.Exec("INSERT INTO meta (key, value) VALUES (?, ?)", k, v); err != nil {
			return fmt.Errorf("failed to write metadata %s: %w", k, err)
		}
	}

	stmt, err := tx.Prepare(`
        INSERT INTO columns (position, name, short_description, long_description, embedding)
        VALUES (?, ?, ?, ?, ?)
    `)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i, rec := range s.Records {
		blob := snappy.Encode(nil, serializeEmbedding(s.Vectors[i]))
		if _, err := stmt.Exec(i, rec.Name, rec.ShortDescription, rec.LongDescription, blob); err != nil {
			return fmt.Errorf("failed to insert column %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Read loads a snapshot. A missing or unreadable file is IndexUnavailable;
// a file whose contents disagree with its metadata is CorruptIndex.
func Read(path string) (*Snapshot, error) {
	db, err := openReadOnly(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	meta, err := readMeta(db)
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(`
        SELECT position, name, short_description, long_description, embedding
        FROM columns
        ORDER BY position
    `)
	if err != nil {
		return nil, qerrors.CorruptIndex(fmt.Sprintf("failed to read columns: %v", err))
	}
	defer rows.Close()

	s := &Snapshot{Meta: *meta}
	for rows.Next() {
		var (
			position int
			rec      catalog.ColumnRecord
			blob     []byte
		)
		if err := rows.Scan(&position, &rec.Name, &rec.ShortDescription, &rec.LongDescription, &blob); err != nil {
			return nil, qerrors.CorruptIndex(fmt.Sprintf("failed to scan column: %v", err))
		}
		if position != len(s.Records) {
			return nil, qerrors.CorruptIndex(fmt.Sprintf("column positions are not contiguous at %d", position))
		}

		raw, err := snappy.Decode(nil, blob)
		if err != nil {
			return nil, qerrors.CorruptIndex(fmt.Sprintf("column %q: invalid vector encoding: %v", rec.Name, err))
		}
		vec := deserializeEmbedding(raw)
		if len(vec) != meta.Dimensions {
			return nil, qerrors.CorruptIndex(fmt.Sprintf("column %q: vector has %d dimensions, expected %d", rec.Name, len(vec), meta.Dimensions))
		}

		s.Records = append(s.Records, rec)
		s.Vectors = append(s.Vectors, vec)
	}
	if err := rows.Err(); err != nil {
		return nil, qerrors.CorruptIndex(fmt.Sprintf("failed to read columns: %v", err))
	}

	if len(s.Records) != meta.Count {
		return nil, qerrors.CorruptIndex(fmt.Sprintf("snapshot lists %d columns but holds %d", meta.Count, len(s.Records)))
	}

	logging.Debug("snapshot_read", "path", path, "columns", len(s.Records), "dimensions", meta.Dimensions)
	return s, nil
}

// ReadMeta loads only the snapshot metadata
func ReadMeta(path string) (*Meta, error) {
	db, err := openReadOnly(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return readMeta(db)
}

// sqliteDSN builds a URI filename. The path is percent-encoded so that
// '?', '#' and '%' in it are not read as URI syntax.
func sqliteDSN(path, mode string) string {
	escaped := (&url.URL{Path: filepath.ToSlash(path)}).EscapedPath()
	return "file:" + escaped + "?" + url.Values{"mode": {mode}}.Encode()
}

func openReadOnly(path string) (*sql.DB, error) {
	// sql.Open would create a missing file
	if _, err := os.Stat(path); err != nil {
		return nil, qerrors.IndexUnavailable(fmt.Sprintf("snapshot %s is not readable", path), err)
	}
	db, err := sql.Open("sqlite3", sqliteDSN(path, "ro"))
	if err != nil {
		return nil, qerrors.IndexUnavailable(fmt.Sprintf("failed to open snapshot %s", path), err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, qerrors.IndexUnavailable(fmt.Sprintf("failed to open snapshot %s", path), err)
	}
	return db, nil
}

func readMeta(db *sql.DB) (*Meta, error) {
	rows, err := db.Query("SELECT key, value FROM meta")
	if err != nil {
		return nil, qerrors.CorruptIndex(fmt.Sprintf("failed to read snapshot metadata: %v", err))
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, qerrors.CorruptIndex(fmt.Sprintf("failed to read snapshot metadata: %v", err))
		}
		values[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, qerrors.CorruptIndex(fmt.Sprintf("failed to read snapshot metadata: %v", err))
	}

	meta := &Meta{
		SchemaSource:    values["schema_source"],
		TextForm:        catalog.TextForm(values["text_form"]),
		EncoderProvider: values["encoder_provider"],
		EncoderModel:    values["encoder_model"],
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"format_version", &meta.FormatVersion},
		{"dimensions", &meta.Dimensions},
		{"count", &meta.Count},
	}
	for _, field := range ints {
		n, err := strconv.Atoi(values[field.key])
		if err != nil {
			return nil, qerrors.CorruptIndex(fmt.Sprintf("snapshot metadata %q is missing or invalid", field.key))
		}
		*field.dst = n
	}

	if meta.FormatVersion != FormatVersion {
		return nil, qerrors.CorruptIndex(fmt.Sprintf("unsupported snapshot format version %d", meta.FormatVersion))
	}
	if created, err := time.Parse(time.RFC3339, values["created_at"]); err == nil {
		meta.CreatedAt = created
	}
	return meta, nil
}

// serializeEmbedding converts float32 slice to bytes
func serializeEmbedding(embedding []float32) []byte {
	buf := make([]byte, len(embedding)*4)
	for i, v := range embedding {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// deserializeEmbedding converts bytes back to float32 slice
func deserializeEmbedding(data []byte) []float32 {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil
	}

	embedding := make([]float32, len(data)/4)
	for i := range embedding {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		embedding[i] = math.Float32frombits(bits)
	}
	return embedding
}
