package metatools

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagehand-ai/stagehand/pkg/models"
)

func server(trust models.TrustState, tier models.RiskTier) models.ServerGovernance {
	record := models.DefaultGovernance("server-1")
	record.TrustState = trust
	record.RiskTier = tier
	return record
}

func TestPolicyGateTrustedLowRiskAllows(t *testing.T) {
	result := PolicyGate(server(models.TrustTrusted, models.RiskLow), "echo", nil)

	assert.Equal(t, "allow", result.Decision)
	assert.Equal(t, 10, result.RiskScore)
	assert.Empty(t, result.RequiredControls)
}

func TestPolicyGateBlockedServerDenies(t *testing.T) {
	result := PolicyGate(server(models.TrustBlocked, models.RiskLow), "echo", nil)

	assert.Equal(t, "deny", result.Decision)
	assert.Equal(t, 90, result.RiskScore)
	assert.Contains(t, result.RequiredControls, "blocked_server")
	assert.Contains(t, result.RequiredControls, "human_approval")
	assert.NotEmpty(t, result.PolicyReason)
}

func TestPolicyGateScoreThresholdDeniesIndependently(t *testing.T) {
	// untrusted (40) + high tier (20) + one secret key (15) = 75 >= 70
	result := PolicyGate(server(models.TrustUntrusted, models.RiskHigh), "echo",
		map[string]interface{}{"api_key": "sk-123"})

	assert.Equal(t, "deny", result.Decision)
	assert.Equal(t, 75, result.RiskScore)
	assert.Contains(t, result.RequiredControls, "untrusted_server")
	assert.Contains(t, result.RequiredControls, "high_risk_tier")
	assert.Contains(t, result.RequiredControls, "sensitive_input")
	assert.Contains(t, result.RequiredControls, "human_approval")
	assert.Empty(t, result.PolicyReason)
}

func TestPolicyGateUntrustedMediumBelowThreshold(t *testing.T) {
	result := PolicyGate(server(models.TrustUntrusted, models.RiskMedium), "echo",
		map[string]interface{}{"message": "hello"})

	assert.Equal(t, "allow", result.Decision)
	assert.Equal(t, 50, result.RiskScore)
}

func TestPolicyGateScoreClampsAt100(t *testing.T) {
	result := PolicyGate(server(models.TrustBlocked, models.RiskHigh), "echo", map[string]interface{}{
		"api_key":  "a",
		"token":    "b",
		"password": "c",
	})

	assert.Equal(t, 100, result.RiskScore)
}

func TestPolicyGateIsDeterministic(t *testing.T) {
	input := map[string]interface{}{"token": "t", "secret": "s", "message": "m"}
	record := server(models.TrustUntrusted, models.RiskHigh)

	first := PolicyGate(record, "echo", input)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, PolicyGate(record, "echo", input))
	}
}

func TestEvaluateResponseStructuredBeatsLeakedSecret(t *testing.T) {
	candidates := []Candidate{
		{ID: "leaky", Text: "The answer is ready. password: hunter2 should work for the deploy."},
		{ID: "clean", Text: "- first, check the config\n- second, run the deploy\n- third, verify"},
	}

	result := EvaluateResponse(candidates, nil)

	assert.Equal(t, "clean", result.WinnerID)
	require.Len(t, result.Scores, 2)
	assert.Less(t, result.Scores[0].Total, result.Scores[1].Total)

	// The safety criterion carries the penalty; the others do not
	assert.InDelta(t, 0.1, result.Scores[0].PerCriterion["safety"], 1e-9)
	assert.InDelta(t, 0.5, result.Scores[0].PerCriterion["clarity"], 1e-9)
}

func TestEvaluateResponseTieKeepsEarliestCandidate(t *testing.T) {
	candidates := []Candidate{
		{ID: "first", Text: "plain answer"},
		{ID: "second", Text: "another plain answer"},
	}

	result := EvaluateResponse(candidates, nil)
	assert.Equal(t, "first", result.WinnerID)
}

func TestEvaluateResponseCustomRubric(t *testing.T) {
	rubric := []Criterion{{Name: "safety", Weight: 1.0}}
	candidates := []Candidate{
		{ID: "leaky", Text: "api_key=sk-live-123"},
		{ID: "clean", Text: "nothing sensitive here"},
	}

	result := EvaluateResponse(candidates, rubric)

	assert.Equal(t, "clean", result.WinnerID)
	assert.InDelta(t, 0.1, result.Scores[0].Total, 1e-9)
	assert.InDelta(t, 0.5, result.Scores[1].Total, 1e-9)
}

func TestEvaluateResponseIsDeterministic(t *testing.T) {
	candidates := []Candidate{
		{ID: "a", Text: "1. step one\n2. step two"},
		{ID: "b", Text: "free-form prose that goes on for a while without any list structure"},
	}

	first := EvaluateResponse(candidates, nil)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, EvaluateResponse(candidates, nil))
	}
}

func TestOrchestrationPlanShape(t *testing.T) {
	plan := OrchestrationPlan(PlanRequest{
		Goal:   "summarize the incident",
		Models: []string{"gpt-4o", "claude"},
	})

	require.NotEmpty(t, plan.Steps)
	assert.Equal(t, "policy_gate", plan.Steps[0].Type)
	assert.Equal(t, "summarize", plan.Steps[len(plan.Steps)-1].Type)

	types := make([]string, 0, len(plan.Steps))
	for i, step := range plan.Steps {
		types = append(types, step.Type)
		assert.Equal(t, fmt.Sprintf("step-%d", i+1), step.ID)
	}
	assert.Equal(t, []string{"policy_gate", "generate", "generate", "evaluate_response", "summarize"}, types)
}

func TestOrchestrationPlanSingleModelSkipsEvaluation(t *testing.T) {
	plan := OrchestrationPlan(PlanRequest{Goal: "g", Models: []string{"gpt-4o"}})

	for _, step := range plan.Steps {
		assert.NotEqual(t, "evaluate_response", step.Type)
	}
}

func TestOrchestrationPlanDefaultsToOneModel(t *testing.T) {
	plan := OrchestrationPlan(PlanRequest{Goal: "g"})

	generates := 0
	for _, step := range plan.Steps {
		if step.Type == "generate" {
			generates++
			assert.Equal(t, "default", step.Model)
		}
	}
	assert.Equal(t, 1, generates)
}

func TestOrchestrationPlanApprovalModeAlways(t *testing.T) {
	plan := OrchestrationPlan(PlanRequest{
		Goal:     "g",
		Controls: PlanControls{ApprovalMode: "always"},
	})

	var hasApproval bool
	for _, step := range plan.Steps {
		if step.Type == "human_approval" {
			hasApproval = true
		}
	}
	assert.True(t, hasApproval)
}

func TestOrchestrationPlanHighRiskScoreAddsApproval(t *testing.T) {
	plan := OrchestrationPlan(PlanRequest{Goal: "g", RiskScore: HighRiskThreshold})

	// The approval step sits before the closing summarize step
	require.GreaterOrEqual(t, len(plan.Steps), 2)
	assert.Equal(t, "human_approval", plan.Steps[len(plan.Steps)-2].Type)

	below := OrchestrationPlan(PlanRequest{Goal: "g", RiskScore: HighRiskThreshold - 1})
	for _, step := range below.Steps {
		assert.NotEqual(t, "human_approval", step.Type)
	}
}
