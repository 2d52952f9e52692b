// Package metatools implements the governance meta-tools. All three are
// deterministic, side-effect-free functions: identical input always yields
// identical output, and none of them perform I/O.
package metatools

import (
	"regexp"
	"sort"

	"github.com/stagehand-ai/stagehand/pkg/models"
	"github.com/stagehand-ai/stagehand/pkg/policy"
)

// HighRiskThreshold is the score at or above which policy_gate denies
// regardless of the raw policy result
const HighRiskThreshold = 70

// Risk score contributions. Monotonic: less trust, higher tier and more
// sensitive input keys can only raise the score.
const (
	riskBlocked   = 90
	riskUntrusted = 40
	riskTrusted   = 10

	riskTierHigh   = 20
	riskTierMedium = 10

	riskPerSecretKey = 15
)

var sensitiveKeyPattern = regexp.MustCompile(`(?i)key|token|secret|password|credential|authorization`)

// GateResult is the output of policy_gate
type GateResult struct {
	// Decision is "allow" or "deny"
	Decision string `json:"decision"`

	// RiskScore is the computed risk in [0, 100]
	RiskScore int `json:"risk_score"`

	// RequiredControls lists the controls that must accompany the call
	RequiredControls []string `json:"required_controls"`

	// PolicyReason carries the raw policy denial reason, when any
	PolicyReason string `json:"policy_reason,omitempty"`
}

// PolicyGate combines the allow/deny policy with a numeric risk score. The
// policy result and the score threshold are two independent deny paths;
// either one suffices to deny.
func PolicyGate(server models.ServerGovernance, toolName string, inputPreview map[string]interface{}) GateResult {
	score := riskTrusted
	controls := []string{}

	switch server.TrustState {
	case models.TrustBlocked:
		score = riskBlocked
		controls = append(controls, "blocked_server")
	case models.TrustUntrusted:
		score = riskUntrusted
		controls = append(controls, "untrusted_server")
	}

	switch server.RiskTier {
	case models.RiskHigh:
		score += riskTierHigh
		controls = append(controls, "high_risk_tier")
	case models.RiskMedium:
		score += riskTierMedium
	}

	if n := countSensitiveKeys(inputPreview); n > 0 {
		score += n * riskPerSecretKey
		controls = append(controls, "sensitive_input")
	}

	if score > 100 {
		score = 100
	}

	decision := policy.ResolveToolPolicy(server, toolName)

	result := GateResult{
		Decision:         "allow",
		RiskScore:        score,
		RequiredControls: controls,
		PolicyReason:     decision.Reason,
	}

	if !decision.Allowed || score >= HighRiskThreshold {
		result.Decision = "deny"
		result.RequiredControls = append(result.RequiredControls, "human_approval")
	}

	return result
}

// countSensitiveKeys counts top-level preview keys that look secret-bearing.
// Keys are visited in sorted order so the count, and therefore the score, is
// stable across calls.
func countSensitiveKeys(preview map[string]interface{}) int {
	keys := make([]string, 0, len(preview))
	for key := range preview {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	count := 0
	for _, key := range keys {
		if sensitiveKeyPattern.MatchString(key) {
			count++
		}
	}
	return count
}
