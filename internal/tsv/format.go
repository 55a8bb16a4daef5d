/*-------------------------------------------------------------------------
 *
 * exoquery - Tab Separated Output
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

// Package tsv writes tab separated tables for scripts that consume the
// search and batch output
package tsv

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var escaper = strings.NewReplacer("\\", "\\\\", "\t", "\\t", "\n", "\\n", "\r", "\\r")

// Value converts a cell to a single-line string. Floats keep four
// decimals so distances line up; slices and maps become JSON.
func Value(v interface{}) string {
	var s string
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		s = val
	case float32:
		s = strconv.FormatFloat(float64(val), 'f', 4, 32)
	case float64:
		s = strconv.FormatFloat(val, 'f', 4, 64)
	case []string, []interface{}, map[string]interface{}:
		data, err := json.Marshal(val)
		if err != nil {
			s = fmt.Sprintf("%v", val)
		} else {
			s = string(data)
		}
	default:
		s = fmt.Sprintf("%v", val)
	}
	return escaper.Replace(s)
}

// Row joins escaped cells with tabs
func Row(cells ...interface{}) string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = Value(c)
	}
	return strings.Join(out, "\t")
}

// Write prints a header line followed by one line per row. Nothing is
// written for an empty header.
func Write(w io.Writer, header []string, rows [][]interface{}) error {
	if len(header) == 0 {
		return nil
	}
	cells := make([]interface{}, len(header))
	for i, h := range header {
		cells[i] = h
	}
	if _, err := fmt.Fprintln(w, Row(cells...)); err != nil {
		return err
	}
	for _, r := range rows {
		if _, err := fmt.Fprintln(w, Row(r...)); err != nil {
			return err
		}
	}
	return nil
}
