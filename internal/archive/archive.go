/*-------------------------------------------------------------------------
 *
 * exoquery - Archive Query Types
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

// Package archive defines the structured objects exchanged with the
// language model: the column-search request and the archive query.
package archive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Table is the archive table every query targets
const Table = "ps"

// ColumnSearchRequest is the model's decomposition of a question into
// column-search sub-queries.
type ColumnSearchRequest struct {
	ColumnRequests []string `json:"column_requests"`
}

// UnmarshalJSON requires the column_requests key and accepts a single
// string in place of a list.
func (r *ColumnSearchRequest) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	value, ok := raw["column_requests"]
	if !ok || isNull(value) {
		return fmt.Errorf("missing required key %q", "column_requests")
	}

	list, err := stringList(value)
	if err != nil {
		return fmt.Errorf("column_requests: %w", err)
	}
	r.ColumnRequests = list
	return nil
}

// ArchiveQuery is a structured query against the Planetary Systems table.
// Select is a comma-separated column list and Where an optional predicate;
// any other keys the model emits (order, format, ...) are kept verbatim in
// Extra.
type ArchiveQuery struct {
	Select string
	Where  string
	Extra  map[string]json.RawMessage
}

// Clone returns a deep copy of the query
func (q ArchiveQuery) Clone() ArchiveQuery {
	out := ArchiveQuery{Select: q.Select, Where: q.Where}
	if q.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(q.Extra))
		for k, v := range q.Extra {
			out.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out
}

// Equal reports whether two queries are identical including passthrough
// keys.
func (q ArchiveQuery) Equal(other ArchiveQuery) bool {
	if q.Select != other.Select || q.Where != other.Where || len(q.Extra) != len(other.Extra) {
		return false
	}
	for k, v := range q.Extra {
		ov, ok := other.Extra[k]
		if !ok || !bytes.Equal(v, ov) {
			return false
		}
	}
	return true
}

// Criteria returns the query as the flat key/value criteria accepted by
// the archive service.
func (q ArchiveQuery) Criteria() map[string]interface{} {
	criteria := map[string]interface{}{"select": q.Select}
	if q.Where != "" {
		criteria["where"] = q.Where
	}
	for k, v := range q.Extra {
		var decoded interface{}
		if err := json.Unmarshal(v, &decoded); err == nil {
			criteria[k] = decoded
		}
	}
	return criteria
}

// MarshalJSON writes select, then where, then passthrough keys in sorted
// order.
func (q ArchiveQuery) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	writeField := func(key string, value []byte) {
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}
		k, _ := json.Marshal(key)
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(value)
	}

	sel, err := json.Marshal(q.Select)
	if err != nil {
		return nil, err
	}
	writeField("select", sel)

	if q.Where != "" {
		where, err := json.Marshal(q.Where)
		if err != nil {
			return nil, err
		}
		writeField("where", where)
	}

	keys := make([]string, 0, len(q.Extra))
	for k := range q.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		var compact bytes.Buffer
		if err := json.Compact(&compact, q.Extra[k]); err != nil {
			return nil, fmt.Errorf("passthrough key %q: %w", k, err)
		}
		writeField(k, compact.Bytes())
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON requires select. A select given as a list of strings is
// joined with ", " and a null where is treated as absent.
func (q *ArchiveQuery) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	value, ok := raw["select"]
	if !ok || isNull(value) {
		return fmt.Errorf("missing required key %q", "select")
	}
	var sel string
	if err := json.Unmarshal(value, &sel); err != nil {
		list, listErr := stringList(value)
		if listErr != nil {
			return fmt.Errorf("select must be a string or a list of strings")
		}
		sel = strings.Join(list, ", ")
	}

	var where string
	if value, ok := raw["where"]; ok && !isNull(value) {
		if err := json.Unmarshal(value, &where); err != nil {
			return fmt.Errorf("where must be a string")
		}
	}

	delete(raw, "select")
	delete(raw, "where")

	*q = ArchiveQuery{Select: sel, Where: where}
	if len(raw) > 0 {
		q.Extra = raw
	}
	return nil
}

func isNull(value json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(value), []byte("null"))
}

// stringList decodes a JSON list of strings or a single string
func stringList(value json.RawMessage) ([]string, error) {
	var list []string
	if err := json.Unmarshal(value, &list); err == nil {
		return list, nil
	}
	var single string
	if err := json.Unmarshal(value, &single); err == nil {
		return []string{single}, nil
	}
	return nil, fmt.Errorf("expected a list of strings")
}
