// Package template resolves {{dotted.path}} placeholders in user-entered
// strings against the run-time execution context.
package template

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([^{}\s]+)\s*\}\}`)

// Resolve replaces every {{dotted.path}} occurrence in input with the value
// found by walking data. Unresolvable paths fail open: the placeholder text
// is left unchanged so a misconfigured node is visible in its output instead
// of silently producing an empty string.
func Resolve(input string, data map[string]any) string {
	return resolve(input, data, nil)
}

// ResolveWithFallback behaves like Resolve but substitutes fallback for
// unresolvable paths.
func ResolveWithFallback(input string, data map[string]any, fallback string) string {
	return resolve(input, data, &fallback)
}

func resolve(input string, data map[string]any, fallback *string) string {
	return placeholderPattern.ReplaceAllStringFunc(input, func(match string) string {
		path := placeholderPattern.FindStringSubmatch(match)[1]

		value, ok := Lookup(path, data)
		if !ok {
			if fallback != nil {
				return *fallback
			}

			return match
		}

		return Stringify(value)
	})
}

// Lookup walks data by splitting path on ".". A missing intermediate key or a
// non-map intermediate value short-circuits to not-found.
func Lookup(path string, data map[string]any) (any, bool) {
	parts := strings.Split(path, ".")
	var current any = data

	for _, part := range parts {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		current, ok = node[part]
		if !ok {
			return nil, false
		}
	}

	if current == nil {
		return nil, false
	}

	return current, true
}

// Stringify renders a resolved value for interpolation. Arrays are joined
// with ", "; maps render as JSON; numbers keep their shortest form.
func Stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case []string:
		return strings.Join(v, ", ")
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, Stringify(item))
		}

		return strings.Join(parts, ", ")
	case map[string]any:
		raw, err := json.Marshal(v)
		if err != nil {
			return ""
		}

		return string(raw)
	case nil:
		return ""
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return ""
		}

		return strings.Trim(string(raw), `"`)
	}
}
