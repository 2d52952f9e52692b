package models

import "time"

// Actor identifies who requested or decided something
type Actor struct {
	// ID of the actor's account
	ID string `json:"id"`

	// Username of the actor
	Username string `json:"username,omitempty"`

	// Role of the actor
	Role string `json:"role,omitempty"`
}

// ApprovalRequest is a time-boxed, single-use authorization token gating one
// specific tool call. ConsumedAt is nil until exactly one successful
// consumption; once set it never changes.
type ApprovalRequest struct {
	// ID of the approval request
	ID string `json:"approval_id"`

	// ServerID is the server the gated call targets
	ServerID string `json:"server_id"`

	// ToolName is the tool the gated call targets
	ToolName string `json:"tool_name"`

	// Input is the tool input captured at request time
	Input map[string]interface{} `json:"input,omitempty"`

	// Reason explains why approval is required
	Reason string `json:"reason,omitempty"`

	// TaskID scopes task-step approvals; empty for governance approvals
	TaskID string `json:"task_id,omitempty"`

	// StepID scopes task-step approvals; empty for governance approvals
	StepID string `json:"step_id,omitempty"`

	// Actor is who triggered the gated call
	Actor Actor `json:"actor"`

	// RequestedAt is when the request was created
	RequestedAt time.Time `json:"requested_at"`

	// ExpiresAt is when the request stops being consumable
	ExpiresAt time.Time `json:"expires_at"`

	// ConsumedAt is when the request was consumed, nil if never
	ConsumedAt *time.Time `json:"consumed_at,omitempty"`
}

// Expired reports whether the request has passed its deadline. Expiry is
// independent of consumption state.
func (a *ApprovalRequest) Expired(now time.Time) bool {
	return !now.Before(a.ExpiresAt)
}

// Consumed reports whether the request has already been used
func (a *ApprovalRequest) Consumed() bool {
	return a.ConsumedAt != nil
}
