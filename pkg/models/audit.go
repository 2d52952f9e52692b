package models

import "time"

// Decision is the governance outcome of a tool call attempt
type Decision string

const (
	// DecisionAllowed means policy permitted the call
	DecisionAllowed Decision = "allowed"

	// DecisionDenied means policy refused the call
	DecisionDenied Decision = "denied"

	// DecisionApprovalRequired means the call paused on a pending approval
	DecisionApprovalRequired Decision = "approval_required"
)

// CallStatus is the execution outcome of a tool call attempt
type CallStatus string

const (
	// CallSuccess means the tool executed and returned a result
	CallSuccess CallStatus = "success"

	// CallFailed means the tool executed and returned an error
	CallFailed CallStatus = "failed"

	// CallNotExecuted means the tool body never ran
	CallNotExecuted CallStatus = "not_executed"
)

// AuditError captures the error surfaced by a failed or refused call
type AuditError struct {
	// Code is the machine-readable error code
	Code string `json:"code"`

	// Message is the human-readable error message
	Message string `json:"message"`
}

// AuditServer is the governance snapshot embedded in an audit record
type AuditServer struct {
	// ServerID of the target server
	ServerID string `json:"server_id"`

	// TrustState at call time
	TrustState TrustState `json:"trust_state"`

	// RiskTier at call time
	RiskTier RiskTier `json:"risk_tier"`

	// Owner of the governance record
	Owner string `json:"owner,omitempty"`

	// AllowTools at call time
	AllowTools []string `json:"allow_tools,omitempty"`

	// DenyTools at call time
	DenyTools []string `json:"deny_tools,omitempty"`
}

// AuditRecord describes one governed tool call attempt. Records are
// append-only and written before the caller observes a result.
type AuditRecord struct {
	// CorrelationID ties the record to the originating call
	CorrelationID string `json:"correlation_id"`

	// StartedAt is when the attempt began
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when execution finished; nil when the tool never ran
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// NotExecutedAt is when the attempt was refused; nil when the tool ran
	NotExecutedAt *time.Time `json:"not_executed_at,omitempty"`

	// LatencyMS is the non-negative duration of the attempt
	LatencyMS int64 `json:"latency_ms"`

	// ActorID is who made the attempt
	ActorID string `json:"actor_id,omitempty"`

	// Server is the governance snapshot at call time
	Server AuditServer `json:"server"`

	// ToolName of the attempted call
	ToolName string `json:"tool_name"`

	// Input is the redacted tool input
	Input map[string]interface{} `json:"input,omitempty"`

	// Output is the redacted tool output; nil when the tool never ran
	Output interface{} `json:"output,omitempty"`

	// Error surfaced by the attempt, if any
	Error *AuditError `json:"error,omitempty"`

	// Decision is the governance outcome
	Decision Decision `json:"decision"`

	// Status is the execution outcome
	Status CallStatus `json:"status"`

	// ApprovalID links the record to an approval request, if any
	ApprovalID string `json:"approval_id,omitempty"`

	// Note is free-form context
	Note string `json:"note,omitempty"`
}
