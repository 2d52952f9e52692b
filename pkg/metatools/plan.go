package metatools

import "fmt"

// PlanControls are the orchestration controls influencing plan shape
type PlanControls struct {
	// ApprovalMode is "always", "untrusted_only" or "off"
	ApprovalMode string `json:"approval_mode"`

	// GovernanceEnabled reports whether governance checks are active
	GovernanceEnabled bool `json:"governance_enabled"`
}

// PlanRequest is the input of orchestration_plan
type PlanRequest struct {
	// Goal is the objective the plan serves
	Goal string `json:"goal"`

	// Models lists the candidate models or agents to generate with
	Models []string `json:"models"`

	// Controls shape the plan
	Controls PlanControls `json:"controls"`

	// RiskScore is an optional precomputed policy_gate score
	RiskScore int `json:"risk_score"`
}

// PlanStep is one ordered step of an orchestration plan
type PlanStep struct {
	// ID is the step identifier, unique within the plan
	ID string `json:"id"`

	// Type is the step kind: policy_gate, generate, evaluate_response,
	// human_approval or summarize
	Type string `json:"type"`

	// Description says what the step does
	Description string `json:"description"`

	// Model is set on generate steps
	Model string `json:"model,omitempty"`
}

// Plan is the output of orchestration_plan
type Plan struct {
	// Goal echoes the request goal
	Goal string `json:"goal"`

	// Steps is the ordered plan
	Steps []PlanStep `json:"steps"`
}

// OrchestrationPlan emits an ordered plan for a goal. The plan always opens
// with a policy_gate step and closes with a summarize step. An
// evaluate_response step appears whenever multiple candidate generations are
// implied, and a human_approval step whenever approval mode is "always" or
// the risk is high. This function only plans; it performs no execution.
func OrchestrationPlan(req PlanRequest) Plan {
	plan := Plan{Goal: req.Goal}

	plan.Steps = append(plan.Steps, PlanStep{
		ID:          "step-1",
		Type:        "policy_gate",
		Description: "check governance policy and score risk before any work",
	})

	models := req.Models
	if len(models) == 0 {
		models = []string{"default"}
	}
	for _, model := range models {
		plan.Steps = append(plan.Steps, PlanStep{
			ID:          fmt.Sprintf("step-%d", len(plan.Steps)+1),
			Type:        "generate",
			Description: fmt.Sprintf("generate a candidate response with %s", model),
			Model:       model,
		})
	}

	if len(models) > 1 {
		plan.Steps = append(plan.Steps, PlanStep{
			ID:          fmt.Sprintf("step-%d", len(plan.Steps)+1),
			Type:        "evaluate_response",
			Description: "score the candidates and pick a winner",
		})
	}

	if req.Controls.ApprovalMode == "always" || req.RiskScore >= HighRiskThreshold {
		plan.Steps = append(plan.Steps, PlanStep{
			ID:          fmt.Sprintf("step-%d", len(plan.Steps)+1),
			Type:        "human_approval",
			Description: "pause for a human decision before acting on the result",
		})
	}

	plan.Steps = append(plan.Steps, PlanStep{
		ID:          fmt.Sprintf("step-%d", len(plan.Steps)+1),
		Type:        "summarize",
		Description: "summarize the outcome for the requester",
	})

	return plan
}
