package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext() map[string]interface{} {
	return map[string]interface{}{
		"steps": map[string]interface{}{
			"fetch": map[string]interface{}{
				"status": "completed",
				"result": map[string]interface{}{
					"count": float64(3),
					"items": []interface{}{"a", "b"},
				},
			},
		},
		"task": map[string]interface{}{"title": "nightly sync"},
	}
}

func TestResolveStringSubstitutesDottedPaths(t *testing.T) {
	out := ResolveString("task {{task.title}}: {{steps.fetch.status}}", testContext())
	assert.Equal(t, "task nightly sync: completed", out)
}

func TestResolveStringScalarFormatting(t *testing.T) {
	out := ResolveString("count={{steps.fetch.result.count}}", testContext())
	assert.Equal(t, "count=3", out)
}

func TestResolveStringNonScalarSerializesToJSON(t *testing.T) {
	out := ResolveString("items: {{steps.fetch.result.items}}", testContext())
	assert.Equal(t, `items: ["a","b"]`, out)
}

func TestResolveStringUnresolvedPathSubstitutesEmpty(t *testing.T) {
	out := ResolveString("[{{steps.missing.result}}]", testContext())
	assert.Equal(t, "[]", out)
}

func TestResolveStringWhitespaceInsideToken(t *testing.T) {
	out := ResolveString("{{  task.title  }}", testContext())
	assert.Equal(t, "nightly sync", out)
}

func TestResolveStringLeavesPlainTextAlone(t *testing.T) {
	out := ResolveString("no tokens here", testContext())
	assert.Equal(t, "no tokens here", out)
}

func TestResolveValueWalksNestedStructures(t *testing.T) {
	input := map[string]interface{}{
		"url":   "https://example.com/{{task.title}}",
		"count": 7,
		"nested": []interface{}{
			"{{steps.fetch.status}}",
			map[string]interface{}{"again": "{{task.title}}"},
		},
	}

	resolved := ResolveValue(input, testContext()).(map[string]interface{})

	assert.Equal(t, "https://example.com/nightly sync", resolved["url"])
	assert.Equal(t, 7, resolved["count"])
	nested := resolved["nested"].([]interface{})
	assert.Equal(t, "completed", nested[0])
	assert.Equal(t, "nightly sync", nested[1].(map[string]interface{})["again"])

	// The input must not be mutated
	assert.Equal(t, "https://example.com/{{task.title}}", input["url"])
}

func TestLookupStopsAtNonMapIntermediate(t *testing.T) {
	_, ok := Lookup("task.title.deeper", testContext())
	assert.False(t, ok)

	value, ok := Lookup("steps.fetch.result.count", testContext())
	require.True(t, ok)
	assert.Equal(t, float64(3), value)
}
