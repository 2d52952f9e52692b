// Package gateway implements the governed tool-call entry point: the
// three-way policy decision, approval-gated execution and audit-before-respond
// ordering.
package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stagehand-ai/stagehand/pkg/approval"
	"github.com/stagehand-ai/stagehand/pkg/audit"
	"github.com/stagehand-ai/stagehand/pkg/boundary"
	"github.com/stagehand-ai/stagehand/pkg/logging"
	"github.com/stagehand-ai/stagehand/pkg/metatools"
	"github.com/stagehand-ai/stagehand/pkg/models"
	"github.com/stagehand-ai/stagehand/pkg/policy"
	"github.com/stagehand-ai/stagehand/pkg/tools"
)

// CodePolicyDenied is returned when the policy engine refuses a call
const CodePolicyDenied = "MCP_POLICY_DENIED"

// CodeToolNotFound is returned when the requested tool is not registered
const CodeToolNotFound = "MCP_TOOL_NOT_FOUND"

// CodedError is a gateway failure with a machine-readable code
type CodedError struct {
	// Code is the machine-readable error code
	Code string

	// Message is the human-readable error message
	Message string
}

// Error implements the error interface
func (e *CodedError) Error() string { return e.Message }

// CallOptions carry the optional context of a tool call
type CallOptions struct {
	// Reason explains the call, folded into any approval request
	Reason string

	// TaskID scopes the call to a task step
	TaskID string

	// StepID scopes the call to a task step
	StepID string
}

// CallResult is the outcome of a tool call attempt
type CallResult struct {
	// CorrelationID ties the result to its audit record
	CorrelationID string `json:"correlation_id"`

	// Decision is the governance branch taken
	Decision models.Decision `json:"decision"`

	// Status is the execution outcome
	Status models.CallStatus `json:"status"`

	// Output is the tool output on success
	Output interface{} `json:"output,omitempty"`

	// ApprovalID is set when the call paused on a pending approval
	ApprovalID string `json:"approval_id,omitempty"`

	// ToolName echoes the requested tool
	ToolName string `json:"tool_name"`
}

// Gateway is the single entry point for governed tool calls. Every attempt
// is audited before the result is surfaced.
type Gateway struct {
	governance   *policy.GovernanceService
	approvals    *approval.Manager
	recorder     *audit.Recorder
	boundary     *boundary.Boundary
	registry     *tools.Registry
	logger       logging.Logger
	approvalMode models.ApprovalMode
	approvalTTL  time.Duration
	now          func() time.Time
}

// Options configure a gateway
type Options struct {
	Governance   *policy.GovernanceService
	Approvals    *approval.Manager
	Recorder     *audit.Recorder
	Boundary     *boundary.Boundary
	Registry     *tools.Registry
	Logger       logging.Logger
	ApprovalMode models.ApprovalMode

	// ApprovalTTL overrides the approval manager default when positive
	ApprovalTTL time.Duration
}

// New creates a gateway
func New(opts Options) *Gateway {
	mode := opts.ApprovalMode
	if mode == "" {
		mode = models.ApprovalModeUntrustedOnly
	}
	return &Gateway{
		governance:   opts.Governance,
		approvals:    opts.Approvals,
		recorder:     opts.Recorder,
		boundary:     opts.Boundary,
		registry:     opts.Registry,
		logger:       opts.Logger,
		approvalMode: mode,
		approvalTTL:  opts.ApprovalTTL,
		now:          time.Now,
	}
}

// CallTool implements the three-way decision: policy denial, approval
// required, or execution through the boundary. The audit record for the
// branch taken is written before the result is returned.
func (g *Gateway) CallTool(ctx context.Context, serverID, toolName string, input map[string]interface{}, actor models.Actor, opts CallOptions) (CallResult, error) {
	startedAt := g.now().UTC()
	result := CallResult{
		CorrelationID: uuid.New().String(),
		ToolName:      toolName,
	}

	server, err := g.governance.Get(serverID)
	if err != nil {
		return result, err
	}

	decision := policy.ResolveToolPolicy(server, toolName)
	if !decision.Allowed {
		result.Decision = models.DecisionDenied
		result.Status = models.CallNotExecuted

		callErr := &CodedError{Code: CodePolicyDenied, Message: decision.Reason}
		if err := g.audit(result, server, actor, input, startedAt, nil, callErr, ""); err != nil {
			return result, err
		}
		return result, callErr
	}

	if g.requiresApproval(server) {
		request, err := g.approvals.Create(serverID, toolName, input, actor, approval.CreateOptions{
			Reason: opts.Reason,
			TaskID: opts.TaskID,
			StepID: opts.StepID,
			TTL:    g.approvalTTL,
		})
		if err != nil {
			return result, err
		}

		result.Decision = models.DecisionApprovalRequired
		result.Status = models.CallNotExecuted
		result.ApprovalID = request.ID

		if err := g.audit(result, server, actor, input, startedAt, nil, nil, request.ID); err != nil {
			return result, err
		}
		return result, nil
	}

	return g.execute(ctx, result, server, toolName, input, actor, startedAt, "")
}

// Approve consumes an approval and executes the approved call. Policy is
// re-resolved against the server's current governance state first, so an
// approval created before a policy tightening cannot bypass it.
func (g *Gateway) Approve(ctx context.Context, approvalID string, actor models.Actor) (CallResult, error) {
	startedAt := g.now().UTC()

	request, err := g.approvals.Get(approvalID)
	if err != nil {
		return CallResult{}, err
	}

	result := CallResult{
		CorrelationID: uuid.New().String(),
		ToolName:      request.ToolName,
		ApprovalID:    request.ID,
	}

	server, err := g.governance.Get(request.ServerID)
	if err != nil {
		return result, err
	}

	decision := policy.ResolveToolPolicy(server, request.ToolName)
	if !decision.Allowed {
		result.Decision = models.DecisionDenied
		result.Status = models.CallNotExecuted

		callErr := &CodedError{Code: CodePolicyDenied, Message: decision.Reason}
		if err := g.audit(result, server, actor, request.Input, startedAt, nil, callErr, request.ID); err != nil {
			return result, err
		}
		return result, callErr
	}

	if _, err := g.approvals.Consume(approvalID); err != nil {
		// A consumed or expired approval is a refused attempt; it still
		// gets an audit record
		result.Decision = models.DecisionDenied
		result.Status = models.CallNotExecuted
		if auditErr := g.audit(result, server, actor, request.Input, startedAt, nil, err, request.ID); auditErr != nil {
			return result, auditErr
		}
		return result, err
	}

	return g.execute(ctx, result, server, request.ToolName, request.Input, actor, startedAt, request.ID)
}

// PolicyGate exposes the policy_gate meta-tool result for a prospective call
func (g *Gateway) PolicyGate(serverID, toolName string, inputPreview map[string]interface{}) (metatools.GateResult, error) {
	server, err := g.governance.Get(serverID)
	if err != nil {
		return metatools.GateResult{}, err
	}
	return metatools.PolicyGate(server, toolName, inputPreview), nil
}

// requiresApproval applies the active approval mode to a server's trust state
func (g *Gateway) requiresApproval(server models.ServerGovernance) bool {
	switch g.approvalMode {
	case models.ApprovalModeOff:
		return false
	default:
		return server.TrustState != models.TrustTrusted
	}
}

// execute runs the call through the boundary and audits the outcome
func (g *Gateway) execute(ctx context.Context, result CallResult, server models.ServerGovernance, toolName string, input map[string]interface{}, actor models.Actor, startedAt time.Time, approvalID string) (CallResult, error) {
	result.Decision = models.DecisionAllowed

	tool, err := g.registry.Get(server.ID, toolName)
	if err != nil {
		result.Status = models.CallFailed
		callErr := &CodedError{
			Code:    CodeToolNotFound,
			Message: fmt.Sprintf("tool %q is not registered on server %q", toolName, server.ID),
		}
		completedAt := g.now().UTC()
		if err := g.auditExecuted(result, server, actor, input, startedAt, completedAt, nil, callErr, approvalID); err != nil {
			return result, err
		}
		return result, callErr
	}

	output, execErr := g.boundary.Execute(ctx, boundary.Request{
		ToolID:  server.ID + "/" + toolName,
		Input:   input,
		Execute: boundary.ExecuteFunc(tool.Handler),
	})
	completedAt := g.now().UTC()

	if execErr != nil {
		result.Status = models.CallFailed
		if err := g.auditExecuted(result, server, actor, input, startedAt, completedAt, nil, execErr, approvalID); err != nil {
			return result, err
		}
		return result, execErr
	}

	result.Status = models.CallSuccess
	result.Output = output
	if err := g.auditExecuted(result, server, actor, input, startedAt, completedAt, output, nil, approvalID); err != nil {
		return result, err
	}
	return result, nil
}

// audit writes the record of a branch that never executed
func (g *Gateway) audit(result CallResult, server models.ServerGovernance, actor models.Actor, input map[string]interface{}, startedAt time.Time, output interface{}, callErr error, approvalID string) error {
	notExecutedAt := g.now().UTC()
	record := g.buildRecord(result, server, actor, input, startedAt, output, callErr, approvalID)
	record.NotExecutedAt = &notExecutedAt
	return g.append(record)
}

// auditExecuted writes the record of an executed call
func (g *Gateway) auditExecuted(result CallResult, server models.ServerGovernance, actor models.Actor, input map[string]interface{}, startedAt, completedAt time.Time, output interface{}, callErr error, approvalID string) error {
	record := g.buildRecord(result, server, actor, input, startedAt, output, callErr, approvalID)
	record.CompletedAt = &completedAt
	return g.append(record)
}

func (g *Gateway) buildRecord(result CallResult, server models.ServerGovernance, actor models.Actor, input map[string]interface{}, startedAt time.Time, output interface{}, callErr error, approvalID string) models.AuditRecord {
	record := models.AuditRecord{
		CorrelationID: result.CorrelationID,
		StartedAt:     startedAt,
		ActorID:       actor.ID,
		Server: models.AuditServer{
			ServerID:   server.ID,
			TrustState: server.TrustState,
			RiskTier:   server.RiskTier,
			Owner:      server.Owner,
			AllowTools: server.AllowTools,
			DenyTools:  server.DenyTools,
		},
		ToolName:   result.ToolName,
		Input:      input,
		Output:     output,
		Decision:   result.Decision,
		Status:     result.Status,
		ApprovalID: approvalID,
	}

	if callErr != nil {
		record.Error = &models.AuditError{
			Code:    errorCode(callErr),
			Message: callErr.Error(),
		}
	}

	return record
}

func (g *Gateway) append(record models.AuditRecord) error {
	if err := g.recorder.Record(record); err != nil {
		return fmt.Errorf("failed to audit tool call: %w", err)
	}
	return nil
}

// errorCode extracts the machine-readable code of a call failure
func errorCode(err error) string {
	switch typed := err.(type) {
	case *CodedError:
		return typed.Code
	case *boundary.Error:
		return typed.Code
	case *approval.Error:
		return typed.Code
	default:
		return "TOOL_EXECUTION_FAILED"
	}
}
