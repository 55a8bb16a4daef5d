/*-------------------------------------------------------------------------
 *
 * exoquery - Model Output Parsing
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package llm

import (
	"encoding/json"
	"strings"

	qerrors "exoquery/internal/errors"
)

// objectText returns the span from the first '{' to the last '}'
// inclusive. Markdown fences and surrounding prose fall outside it.
func objectText(raw string) (string, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return "", qerrors.MalformedModelOutput("no JSON object in model output: "+truncate(raw, 200), nil)
	}
	return raw[start : end+1], nil
}

// ExtractJSONObject parses the JSON object embedded in a model reply
func ExtractJSONObject(raw string) (map[string]interface{}, error) {
	text, err := objectText(raw)
	if err != nil {
		return nil, err
	}
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil, qerrors.MalformedModelOutput("invalid JSON in model output", err)
	}
	return obj, nil
}

// DecodeJSONObject decodes the JSON object embedded in a model reply into
// v. Decoding errors from v's own UnmarshalJSON are reported the same way
// as syntax errors.
func DecodeJSONObject(raw string, v interface{}) error {
	text, err := objectText(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(text), v); err != nil {
		return qerrors.MalformedModelOutput("model output does not match the expected shape", err)
	}
	return nil
}
