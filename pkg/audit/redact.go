package audit

import (
	"regexp"
)

// Markers substituted for redacted or truncated content
const (
	RedactionMarker  = "[REDACTED]"
	TruncationMarker = "[TRUNCATED]"
)

// maxRedactDepth bounds recursion through nested payloads so cyclic or
// unbounded structures cannot stall the recorder
const maxRedactDepth = 6

var (
	secretKeyPattern = regexp.MustCompile(`(?i)key|token|secret|password|authorization`)

	secretValuePatterns = []*regexp.Regexp{
		regexp.MustCompile(`^sk-[A-Za-z0-9_-]+`),
		regexp.MustCompile(`(?i)^bearer\s+\S+`),
		regexp.MustCompile(`(?i)api[_-]key`),
	}
)

// RedactMap returns a copy of the input with secret-like content replaced.
// Any field whose key matches a secret-like pattern is replaced wholesale;
// string values that look like credentials are redacted even under
// innocuous keys. The input is never mutated.
func RedactMap(input map[string]interface{}) map[string]interface{} {
	if input == nil {
		return nil
	}
	redacted, _ := redactValue(input, 0).(map[string]interface{})
	return redacted
}

// RedactValue redacts an arbitrary JSON-shaped value
func RedactValue(value interface{}) interface{} {
	return redactValue(value, 0)
}

func redactValue(value interface{}, depth int) interface{} {
	if depth > maxRedactDepth {
		return TruncationMarker
	}

	switch v := value.(type) {
	case map[string]interface{}:
		redacted := make(map[string]interface{}, len(v))
		for key, item := range v {
			if secretKeyPattern.MatchString(key) {
				redacted[key] = RedactionMarker
				continue
			}
			redacted[key] = redactValue(item, depth+1)
		}
		return redacted
	case []interface{}:
		redacted := make([]interface{}, len(v))
		for i, item := range v {
			redacted[i] = redactValue(item, depth+1)
		}
		return redacted
	case string:
		for _, pattern := range secretValuePatterns {
			if pattern.MatchString(v) {
				return RedactionMarker
			}
		}
		return v
	default:
		return value
	}
}
