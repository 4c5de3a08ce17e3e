// Package resolve rewrites placeholder references in plan inputs against the
// accumulated execution state. Plans reference prior outputs as
// $$STEP_1_OUTPUT$$ (whole value), $$STEP_1_OUTPUT$$.field (one field of a
// mapping output) or as a substring inside a longer string.
package resolve

import (
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
)

// Resolve recursively walks a JSON-like value and substitutes placeholders
// from state. Three tiers apply to strings, in order, for each state key:
//
//  1. the whole string equals $$KEY$$ — the state value is returned as-is,
//     preserving its type;
//  2. the string is a field reference ($$KEY$$.field or $$KEY.field$$) and
//     the state value is a mapping containing field — that field's value is
//     returned. A missing field is diagnosed and falls through;
//  3. any remaining $$KEY$$ occurrence inside a longer string is replaced by
//     the stringified state value.
//
// Non-string leaves pass through unchanged.
func Resolve(value any, state map[string]any) any {
	switch v := value.(type) {
	case string:
		return resolveString(v, state)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = Resolve(item, state)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = Resolve(item, state)
		}
		return out
	default:
		return value
	}
}

func resolveString(s string, state map[string]any) any {
	// Sorted key order keeps substring substitution deterministic.
	keys := make([]string, 0, len(state))
	for k := range state {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := state[k]
		placeholder := "$$" + k + "$$"

		if s == placeholder {
			return v
		}

		// Field reference in either form: $$KEY$$.field or $$KEY.field$$.
		fieldPath := ""
		if strings.HasPrefix(s, placeholder+".") {
			fieldPath = s[len(placeholder)+1:]
		} else if inner, ok := strings.CutPrefix(s, "$$"+k+"."); ok {
			if f, ok := strings.CutSuffix(inner, "$$"); ok && !strings.Contains(f, "$$") {
				fieldPath = f
			}
		}
		if fieldPath != "" {
			if m, ok := v.(map[string]any); ok {
				if fv, ok := m[fieldPath]; ok {
					return fv
				}
			}
			log.Printf("[Resolve] Placeholder %s could not be resolved: %s is %T", s, k, v)
		}

		if strings.Contains(s, placeholder) {
			s = strings.ReplaceAll(s, placeholder, Stringify(v))
		}
	}
	return s
}

// Stringify renders a state value for substring substitution and terminal
// output: strings pass through, mappings and sequences become compact JSON,
// everything else uses the default format.
func Stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	default:
		return fmt.Sprintf("%v", t)
	}
}
