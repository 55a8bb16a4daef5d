/*-------------------------------------------------------------------------
 *
 * exoquery - Column Catalog Sources
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package catalog

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"exoquery/internal/logging"
)

// referenceMarker identifies bibliographic rows in the scraped column list
// that do not describe queryable data.
const referenceMarker = "Reference"

// LoadCSV reads a catalog from CSV with the header
// "Column Name, Short Description, Long Description". Extra fields after
// the third are joined back into the long description.
func LoadCSV(r io.Reader) (*Catalog, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("catalog is empty")
		}
		return nil, fmt.Errorf("failed to read catalog header: %w", err)
	}
	if len(header) < 2 || !strings.EqualFold(strings.TrimSpace(header[0]), "Column Name") {
		return nil, fmt.Errorf("unexpected catalog header: %v", header)
	}

	var records []ColumnRecord
	skipped := 0
	for line := 2; ; line++ {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read catalog line %d: %w", line, err)
		}
		if len(fields) == 0 || strings.TrimSpace(fields[0]) == "" {
			continue
		}

		rec := ColumnRecord{Name: strings.TrimSpace(fields[0])}
		if len(fields) > 1 {
			rec.ShortDescription = strings.TrimSpace(fields[1])
		}
		if len(fields) > 2 {
			rec.LongDescription = strings.TrimSpace(strings.Join(fields[2:], ", "))
		}
		if strings.Contains(rec.ShortDescription, referenceMarker) {
			skipped++
			continue
		}
		records = append(records, rec)
	}

	logging.Debug("catalog_loaded", "records", len(records), "skipped_references", skipped)
	return New(records)
}

// LoadCSVFile reads a CSV catalog from disk
func LoadCSVFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer f.Close()

	cat, err := LoadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cat, nil
}

// LoadInstruments reads an instrument/telescope name list: one name per
// line, blank lines and lines starting with '#' are ignored. Order is kept.
func LoadInstruments(r io.Reader) ([]string, error) {
	var names []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read instrument list: %w", err)
	}
	return names, nil
}

// LoadInstrumentsFile reads an instrument list from disk
func LoadInstrumentsFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open instrument list: %w", err)
	}
	defer f.Close()
	return LoadInstruments(f)
}
