/*-------------------------------------------------------------------------
 *
 * exoquery - Query Text Normalization
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package enhance

import "strings"

const telescopeWord = "telescope"

// NormalizeText lowercases a free-text query and, for each instrument in
// list order that the query mentions without the word "telescope" right
// after it, appends " <instrument> telescope" once. Column descriptions in
// the archive always phrase instruments that way, so the qualifier pulls
// the right columns closer in embedding space.
//
// NormalizeText(NormalizeText(q, l), l) == NormalizeText(q, l).
func NormalizeText(query string, instruments []string) string {
	normalized := strings.ToLower(query)

	for _, instrument := range instruments {
		name := strings.ToLower(strings.Join(strings.Fields(instrument), " "))
		if name == "" || strings.HasSuffix(name, telescopeWord) {
			continue
		}
		if !strings.Contains(normalized, name) {
			continue
		}
		qualified := name + " " + telescopeWord
		if strings.Contains(normalized, qualified) {
			continue
		}
		normalized += " " + qualified
	}

	return normalized
}
