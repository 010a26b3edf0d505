package templatize

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/zclconf/go-cty/cty"
)

// tokenPattern captures the pieces of one placeholder: the dictionary
// key, the field path into the entry, and the optional qualifier.
var tokenPattern = regexp.MustCompile(`\{\{([^{}.:]+)\.([^{}:]+)(:optional)?\}\}`)

// Interpolate resolves placeholder tokens anywhere in the JSON payload
// against the dictionary. Unresolvable non-optional placeholders are left
// in place as literal text; they are a later validation failure, not an
// interpolation error. An unresolvable token with the :optional qualifier
// removes the field or array element that holds it. A nil or empty
// payload passes through unchanged.
func Interpolate(raw json.RawMessage, dict *Dictionary) (json.RawMessage, error) {
	if len(raw) == 0 {
		return raw, nil
	}
	v, err := fromJSON(raw)
	if err != nil {
		return nil, err
	}
	out, removed := interpolate(v, dict)
	if removed {
		// The entire payload was a single unresolvable optional token.
		return json.RawMessage("null"), nil
	}
	return toJSON(out)
}

// InterpolateValue is Interpolate over an already-decoded cty.Value. A
// value that would be removed outright resolves to null.
func InterpolateValue(v cty.Value, dict *Dictionary) cty.Value {
	out, removed := interpolate(v, dict)
	if removed {
		return cty.NullVal(cty.DynamicPseudoType)
	}
	return out
}

// InterpolateString resolves placeholders within a single string,
// leaving unresolvable non-optional tokens in place and dropping
// unresolvable optional ones.
func InterpolateString(s string, dict *Dictionary) string {
	out, _ := interpolateString(s, dict)
	return out
}

// interpolate walks the value tree. The second result reports that the
// value's owning field or element should be removed entirely.
func interpolate(v cty.Value, dict *Dictionary) (cty.Value, bool) {
	if v.IsNull() {
		return v, false
	}
	ty := v.Type()
	switch {
	case ty == cty.String:
		s, removed := interpolateString(v.AsString(), dict)
		if removed {
			return cty.NilVal, true
		}
		return cty.StringVal(s), false

	case ty.IsObjectType():
		attrs := make(map[string]cty.Value, len(ty.AttributeTypes()))
		for name := range ty.AttributeTypes() {
			av, removed := interpolate(v.GetAttr(name), dict)
			if removed {
				continue
			}
			attrs[name] = av
		}
		if len(attrs) == 0 {
			return cty.EmptyObjectVal, false
		}
		return cty.ObjectVal(attrs), false

	case ty.IsTupleType():
		elems := make([]cty.Value, 0, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			out, removed := interpolate(ev, dict)
			if removed {
				continue
			}
			elems = append(elems, out)
		}
		if len(elems) == 0 {
			return cty.EmptyTupleVal, false
		}
		return cty.TupleVal(elems), false

	default:
		// Numbers and bools cannot carry placeholders.
		return v, false
	}
}

// interpolateString resolves every token in s. When s is exactly one
// token, resolution replaces the whole string and an unresolvable
// optional token removes the owning field instead.
func interpolateString(s string, dict *Dictionary) (string, bool) {
	m := tokenPattern.FindStringSubmatchIndex(s)
	if m == nil {
		return s, false
	}

	// Whole-string token: removal semantics apply.
	if m[0] == 0 && m[1] == len(s) {
		key, field, optional := tokenParts(s, m)
		if val, ok := dict.Resolve(key, field); ok {
			return val, false
		}
		if optional {
			return "", true
		}
		return s, false
	}

	var b strings.Builder
	rest := s
	for {
		m := tokenPattern.FindStringSubmatchIndex(rest)
		if m == nil {
			b.WriteString(rest)
			return b.String(), false
		}
		b.WriteString(rest[:m[0]])
		key, field, optional := tokenParts(rest, m)
		if val, ok := dict.Resolve(key, field); ok {
			b.WriteString(val)
		} else if !optional {
			b.WriteString(rest[m[0]:m[1]])
		}
		rest = rest[m[1]:]
	}
}

func tokenParts(s string, m []int) (key, field string, optional bool) {
	key = s[m[2]:m[3]]
	field = s[m[4]:m[5]]
	optional = m[6] >= 0
	return key, field, optional
}
