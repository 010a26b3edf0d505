// Package templatize implements the two inverse rewrites at the heart of
// a portable Solution: replacing concrete item identifiers embedded
// anywhere in a template's JSON with symbolic placeholder tokens, and
// resolving those tokens back into concrete values from a run-scoped
// dictionary at deploy time.
//
// Payloads are loosely typed, so both operations are structural walks
// over a cty.Value tree decoded from JSON with an implied type, rather
// than rewrites of known fields.
package templatize

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// Placeholder suffixes for the values most adapters need.
const (
	SuffixItemID = ".itemId"
	SuffixURL    = ".url"
)

// placeholderPattern matches a whole placeholder token such as
// {{abc123.itemId}} or {{abc123.url:optional}}.
var placeholderPattern = regexp.MustCompile(`\{\{[^{}]+\}\}`)

// Placeholder builds the token that Templatize substitutes for an id.
func Placeholder(itemID, suffix string) string {
	return "{{" + itemID + suffix + "}}"
}

// Templatize replaces every whole-token occurrence of itemID anywhere in
// the JSON payload with Placeholder(itemID, suffix). Occurrences inside
// larger strings, such as URLs, are rewritten too. The operation is
// composable: placeholders already present for other ids are never
// disturbed. A nil or empty payload passes through unchanged.
func Templatize(raw json.RawMessage, itemID, suffix string) (json.RawMessage, error) {
	if len(raw) == 0 {
		return raw, nil
	}
	v, err := fromJSON(raw)
	if err != nil {
		return nil, err
	}
	out, err := TemplatizeValue(v, itemID, suffix)
	if err != nil {
		return nil, err
	}
	return toJSON(out)
}

// TemplatizeValue is Templatize over an already-decoded cty.Value.
func TemplatizeValue(v cty.Value, itemID, suffix string) (cty.Value, error) {
	if itemID == "" {
		return v, nil
	}
	token := Placeholder(itemID, suffix)
	return cty.Transform(v, func(_ cty.Path, v cty.Value) (cty.Value, error) {
		if v.IsNull() || v.Type() != cty.String {
			return v, nil
		}
		return cty.StringVal(replaceToken(v.AsString(), itemID, token)), nil
	})
}

// TemplatizeString rewrites occurrences of itemID within a single string.
// Adapters use it for typed fields such as an item's URL.
func TemplatizeString(s, itemID, suffix string) string {
	if itemID == "" {
		return s
	}
	return replaceToken(s, itemID, Placeholder(itemID, suffix))
}

// replaceToken substitutes repl for each occurrence of id in s that is a
// whole identifier: the characters on both sides must not be identifier
// characters, and the occurrence must not sit inside an existing
// placeholder token.
func replaceToken(s, id, repl string) string {
	if id == "" || !strings.Contains(s, id) {
		return s
	}
	spans := placeholderPattern.FindAllStringIndex(s, -1)

	var b strings.Builder
	i := 0
	for i < len(s) {
		j := strings.Index(s[i:], id)
		if j < 0 {
			b.WriteString(s[i:])
			break
		}
		j += i
		end := j + len(id)
		if isWholeToken(s, j, end) && !insideSpan(spans, j) {
			b.WriteString(s[i:j])
			b.WriteString(repl)
			i = end
			continue
		}
		// Not a standalone occurrence; emit one byte and keep scanning.
		b.WriteString(s[i : j+1])
		i = j + 1
	}
	return b.String()
}

func isWholeToken(s string, start, end int) bool {
	if start > 0 && isIdentChar(s[start-1]) {
		return false
	}
	if end < len(s) && isIdentChar(s[end]) {
		return false
	}
	return true
}

func isIdentChar(c byte) bool {
	return c == '_' ||
		(c >= '0' && c <= '9') ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z')
}

func insideSpan(spans [][]int, pos int) bool {
	for _, sp := range spans {
		if pos >= sp[0] && pos < sp[1] {
			return true
		}
	}
	return false
}

// fromJSON decodes arbitrary JSON into a cty.Value using its implied type.
func fromJSON(raw json.RawMessage) (cty.Value, error) {
	ty, err := ctyjson.ImpliedType(raw)
	if err != nil {
		return cty.NilVal, err
	}
	return ctyjson.Unmarshal(raw, ty)
}

// toJSON re-encodes a cty.Value produced by fromJSON.
func toJSON(v cty.Value) (json.RawMessage, error) {
	return ctyjson.Marshal(v, v.Type())
}
