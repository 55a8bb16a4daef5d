/*-------------------------------------------------------------------------
 *
 * exoquery - Column Catalog
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

// Package catalog holds the fixed list of Planetary Systems table columns
// that the embedding index searches over.
package catalog

import (
	"fmt"
	"strings"
)

// ColumnRecord describes one column of the archive table
type ColumnRecord struct {
	Name             string `json:"name"`
	ShortDescription string `json:"short_description"`
	LongDescription  string `json:"long_description,omitempty"`
}

// TextForm selects which textual representation of a record is embedded
type TextForm string

const (
	// TextName embeds the bare column name
	TextName TextForm = "name"
	// TextDescription embeds the formatted name and descriptions
	TextDescription TextForm = "description"
)

// ParseTextForm converts a configuration value to a TextForm. An empty
// value selects TextName.
func ParseTextForm(s string) (TextForm, error) {
	switch TextForm(strings.ToLower(strings.TrimSpace(s))) {
	case "", TextName:
		return TextName, nil
	case TextDescription:
		return TextDescription, nil
	default:
		return "", fmt.Errorf("unknown text form %q (expected %q or %q)", s, TextName, TextDescription)
	}
}

// Text returns the record's textual representation for the given form
func (r ColumnRecord) Text(form TextForm) string {
	if form == TextDescription {
		return r.Describe()
	}
	return r.Name
}

// Describe formats the record as a one-line description
func (r ColumnRecord) Describe() string {
	return fmt.Sprintf("Column: %s. Description: %s - %s.", r.Name, r.ShortDescription, r.LongDescription)
}

// Catalog is an ordered, read-only list of column records
type Catalog struct {
	records []ColumnRecord
	byName  map[string]int
}

// New creates a catalog from records in source order. Names must be
// non-empty and unique.
func New(records []ColumnRecord) (*Catalog, error) {
	c := &Catalog{
		records: make([]ColumnRecord, len(records)),
		byName:  make(map[string]int, len(records)),
	}
	for i, rec := range records {
		rec.Name = strings.TrimSpace(rec.Name)
		if rec.Name == "" {
			return nil, fmt.Errorf("record %d has an empty column name", i)
		}
		if prev, exists := c.byName[rec.Name]; exists {
			return nil, fmt.Errorf("duplicate column name %q at records %d and %d", rec.Name, prev, i)
		}
		c.byName[rec.Name] = i
		c.records[i] = rec
	}
	return c, nil
}

// Len returns the number of records
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.records)
}

// At returns the record at position i
func (c *Catalog) At(i int) ColumnRecord {
	return c.records[i]
}

// Records returns a copy of all records in catalog order
func (c *Catalog) Records() []ColumnRecord {
	out := make([]ColumnRecord, len(c.records))
	copy(out, c.records)
	return out
}

// Lookup returns the record with the given name
func (c *Catalog) Lookup(name string) (ColumnRecord, bool) {
	i, ok := c.byName[name]
	if !ok {
		return ColumnRecord{}, false
	}
	return c.records[i], true
}

// Texts returns the textual form of every record in catalog order
func (c *Catalog) Texts(form TextForm) []string {
	texts := make([]string, len(c.records))
	for i, rec := range c.records {
		texts[i] = rec.Text(form)
	}
	return texts
}
