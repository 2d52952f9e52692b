package utils

import (
	"encoding/json"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseJSON parses a JSON string, tolerating the markdown code fences LLM
// responses often wrap payloads in
func ParseJSON(input string, result any) error {
	return json.Unmarshal([]byte(stripCodeFence(input, "json")), result)
}

// ParseYAML parses a YAML string, tolerating markdown code fences
func ParseYAML(input string, result any) error {
	return yaml.Unmarshal([]byte(stripCodeFence(input, "yaml", "yml")), result)
}

func stripCodeFence(input string, languages ...string) string {
	trimmed := strings.TrimSpace(input)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	body := trimmed[3:]
	for _, language := range languages {
		if strings.HasPrefix(body, language) {
			body = body[len(language):]
			break
		}
	}

	if end := strings.LastIndex(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}
