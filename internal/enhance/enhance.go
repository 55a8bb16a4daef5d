/*-------------------------------------------------------------------------
 *
 * exoquery - Archive Query Enhancement
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

// Package enhance holds the deterministic rewrite rules applied to user
// text before retrieval and to model-generated archive queries after
// generation.
package enhance

import (
	"strings"
	"unicode"

	"exoquery/internal/archive"
)

// Columns the archive query must always carry, and the unit pairs that must
// travel together.
const (
	ColumnPlanetName = "pl_name"
	ColumnHostName   = "hostname"

	ColumnRadiusEarth   = "pl_rade"
	ColumnRadiusJupiter = "pl_radj"
	ColumnMassEarth     = "pl_masse"
	ColumnMassJupiter   = "pl_massj"

	// DefaultFlagPredicate restricts results to the default parameter set
	// of each planet.
	DefaultFlagPredicate = "default_flag = 1"
	defaultFlagColumn    = "default_flag"
)

// Query applies the enhancement rules to q and returns a new query. The
// input is not modified. Rules, in order:
//
//  1. hostname is added after pl_name (or first when pl_name is absent)
//  2. pl_name is added first when absent
//  3. where gets default_flag = 1, alone or AND-ed onto the predicate
//  4. pl_rade and pl_radj are completed as a pair
//  5. pl_masse and pl_massj are completed as a pair
//
// Query is idempotent and never adds a column that is already selected.
func Query(q archive.ArchiveQuery) archive.ArchiveQuery {
	out := q.Clone()
	tokens := SplitSelect(out.Select)

	if indexOf(tokens, ColumnHostName) < 0 {
		if i := indexOf(tokens, ColumnPlanetName); i >= 0 {
			tokens = insertAt(tokens, i+1, ColumnHostName)
		} else {
			tokens = insertAt(tokens, 0, ColumnHostName)
		}
	}

	if indexOf(tokens, ColumnPlanetName) < 0 {
		tokens = insertAt(tokens, 0, ColumnPlanetName)
	}

	out.Where = withDefaultFlag(out.Where)

	tokens = pairUnits(tokens, ColumnRadiusEarth, ColumnRadiusJupiter)
	tokens = pairUnits(tokens, ColumnMassEarth, ColumnMassJupiter)

	out.Select = strings.Join(tokens, ", ")
	return out
}

// pairUnits inserts the earth-unit column right before a lone
// jupiter-unit column, or the jupiter-unit column right after a lone
// earth-unit column.
func pairUnits(tokens []string, earth, jupiter string) []string {
	e := indexOf(tokens, earth)
	j := indexOf(tokens, jupiter)
	switch {
	case j >= 0 && e < 0:
		return insertAt(tokens, j, earth)
	case e >= 0 && j < 0:
		return insertAt(tokens, e+1, jupiter)
	}
	return tokens
}

func withDefaultFlag(where string) string {
	trimmed := strings.TrimSpace(where)
	if trimmed == "" {
		return DefaultFlagPredicate
	}
	if strings.Contains(strings.ToLower(trimmed), defaultFlagColumn) {
		return where
	}
	if hasTopLevelOr(trimmed) {
		trimmed = "(" + trimmed + ")"
	}
	return trimmed + " AND " + DefaultFlagPredicate
}

// SplitSelect splits a select list on top-level commas. Commas inside
// parentheses or quotes do not split, and empty tokens are dropped. A list
// with an unclosed parenthesis or quote is split on every comma instead,
// so columns added after the opener stay visible.
func SplitSelect(sel string) []string {
	if tokens, ok := splitNested(sel); ok {
		return tokens
	}
	var tokens []string
	for _, part := range strings.Split(sel, ",") {
		if tok := strings.TrimSpace(part); tok != "" {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

// splitNested splits on commas outside parentheses and quotes. ok is false
// when the list ends inside an open parenthesis or quote.
func splitNested(sel string) (tokens []string, ok bool) {
	var current strings.Builder
	depth := 0
	var quote rune

	flush := func() {
		if tok := strings.TrimSpace(current.String()); tok != "" {
			tokens = append(tokens, tok)
		}
		current.Reset()
	}

	for _, r := range sel {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case r == '(':
			depth++
		case r == ')':
			if depth > 0 {
				depth--
			}
		case r == ',' && depth == 0:
			flush()
			continue
		}
		current.WriteRune(r)
	}
	if depth > 0 || quote != 0 {
		return nil, false
	}
	flush()

	return tokens, true
}

// ColumnOf returns the column identifier of a select token: the token up
// to the first whitespace, lowercased. "pl_rade AS radius" -> "pl_rade".
func ColumnOf(token string) string {
	fields := strings.Fields(token)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[0])
}

func indexOf(tokens []string, column string) int {
	for i, tok := range tokens {
		if ColumnOf(tok) == column {
			return i
		}
	}
	return -1
}

func insertAt(tokens []string, i int, value string) []string {
	out := make([]string, 0, len(tokens)+1)
	out = append(out, tokens[:i]...)
	out = append(out, value)
	return append(out, tokens[i:]...)
}

// hasTopLevelOr reports whether the predicate has an OR operator outside
// parentheses and string literals.
func hasTopLevelOr(predicate string) bool {
	runes := []rune(predicate)
	depth := 0
	var quote rune

	isWordRune := func(i int) bool {
		if i < 0 || i >= len(runes) {
			return false
		}
		r := runes[i]
		return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
	}

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case r == '(':
			depth++
		case r == ')':
			if depth > 0 {
				depth--
			}
		case depth == 0 && (r == 'o' || r == 'O') && i+1 < len(runes):
			next := runes[i+1]
			if (next == 'r' || next == 'R') && !isWordRune(i-1) && !isWordRune(i+2) {
				return true
			}
		}
	}
	return false
}
