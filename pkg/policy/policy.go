// Package policy implements the trust and policy engine that decides whether
// a tool call is permitted.
package policy

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/stagehand-ai/stagehand/pkg/models"
)

// Decision is the outcome of a policy evaluation
type Decision struct {
	// Allowed reports whether the call may proceed
	Allowed bool `json:"allowed"`

	// Reason is the human-readable explanation for a denial
	Reason string `json:"reason,omitempty"`
}

// ResolveToolPolicy maps a server's governance record and a tool name to an
// allow/deny decision. It is pure: no I/O, no mutation of either argument,
// and identical inputs always produce identical output.
//
// Evaluation order:
//  1. blocked trust state denies everything
//  2. a deny_tools pattern match denies
//  3. a non-empty allow_tools list with no match denies
//  4. otherwise allow
func ResolveToolPolicy(server models.ServerGovernance, toolName string) Decision {
	if server.TrustState == models.TrustBlocked {
		return Decision{Allowed: false, Reason: "blocked by trust policy"}
	}

	for _, pattern := range server.DenyTools {
		if MatchToolPattern(pattern, toolName) {
			return Decision{
				Allowed: false,
				Reason:  fmt.Sprintf("denied by pattern %q", pattern),
			}
		}
	}

	if len(server.AllowTools) > 0 {
		for _, pattern := range server.AllowTools {
			if MatchToolPattern(pattern, toolName) {
				return Decision{Allowed: true}
			}
		}
		return Decision{Allowed: false, Reason: "not in allow list"}
	}

	return Decision{Allowed: true}
}

// MatchToolPattern reports whether a tool name matches a pattern. The only
// wildcard is "*", matching any run of characters. Matching is
// case-insensitive and anchored to the full string.
func MatchToolPattern(pattern, toolName string) bool {
	var builder strings.Builder
	builder.WriteString("^")
	for i, part := range strings.Split(strings.ToLower(pattern), "*") {
		if i > 0 {
			builder.WriteString(".*")
		}
		builder.WriteString(regexp.QuoteMeta(part))
	}
	builder.WriteString("$")

	matched, err := regexp.MatchString(builder.String(), strings.ToLower(toolName))
	if err != nil {
		return false
	}
	return matched
}
