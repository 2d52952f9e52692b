// Package template provides dotted-path string interpolation for step inputs.
//
// The only supported syntax is {{path.to.value}} resolved against a context
// map built from prior step state. This is deliberately not a general
// templating language: no expressions, no conditionals, no function calls.
package template

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var tokenPattern = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// ResolveString substitutes every {{path}} token in s against the context.
// Unresolved paths substitute the empty string; non-scalar values serialize
// to compact JSON.
func ResolveString(s string, context map[string]interface{}) string {
	return tokenPattern.ReplaceAllStringFunc(s, func(token string) string {
		match := tokenPattern.FindStringSubmatch(token)
		if len(match) < 2 {
			return ""
		}
		value, ok := Lookup(match[1], context)
		if !ok || value == nil {
			return ""
		}
		return stringify(value)
	})
}

// ResolveValue walks an arbitrary JSON-shaped value and substitutes tokens in
// every string it contains. Maps and slices are copied; the input is never
// mutated.
func ResolveValue(value interface{}, context map[string]interface{}) interface{} {
	switch v := value.(type) {
	case string:
		return ResolveString(v, context)
	case map[string]interface{}:
		resolved := make(map[string]interface{}, len(v))
		for key, item := range v {
			resolved[key] = ResolveValue(item, context)
		}
		return resolved
	case []interface{}:
		resolved := make([]interface{}, len(v))
		for i, item := range v {
			resolved[i] = ResolveValue(item, context)
		}
		return resolved
	default:
		return value
	}
}

// Lookup resolves a dotted path against the context. It navigates nested
// map[string]interface{} levels only; any other intermediate type ends the
// walk unresolved.
func Lookup(path string, context map[string]interface{}) (interface{}, bool) {
	parts := strings.Split(path, ".")
	current := context

	for i, part := range parts {
		value, ok := current[part]
		if !ok {
			return nil, false
		}
		if i == len(parts)-1 {
			return value, true
		}
		next, ok := value.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current = next
	}
	return nil, false
}

// stringify renders a resolved value for substitution into a string
func stringify(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case bool, int, int64, float64:
		return fmt.Sprintf("%v", v)
	default:
		// Non-scalar values serialize to compact JSON
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}
