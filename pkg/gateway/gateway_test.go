package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagehand-ai/stagehand/pkg/approval"
	"github.com/stagehand-ai/stagehand/pkg/audit"
	"github.com/stagehand-ai/stagehand/pkg/boundary"
	"github.com/stagehand-ai/stagehand/pkg/logging"
	"github.com/stagehand-ai/stagehand/pkg/models"
	"github.com/stagehand-ai/stagehand/pkg/policy"
	"github.com/stagehand-ai/stagehand/pkg/storage"
	"github.com/stagehand-ai/stagehand/pkg/tools"
)

type fixture struct {
	gateway    *Gateway
	governance *policy.GovernanceService
	approvals  *approval.Manager
	recorder   *audit.Recorder
}

func newFixture(t *testing.T, mode models.ApprovalMode) *fixture {
	t.Helper()

	provider := storage.NewMemoryProvider()
	require.NoError(t, provider.Initialize())

	logger := logging.NewNopLogger()
	governance := policy.NewGovernanceService(provider.GetGovernanceStore(), logger)
	approvals := approval.NewManager(provider.GetApprovalStore(), logger)
	recorder := audit.NewRecorder(provider.GetAuditStore(), logger)

	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(tools.Tool{
		ServerID: "srv",
		Name:     "echo",
		Handler: func(ctx context.Context, input map[string]interface{}) (interface{}, error) {
			return map[string]interface{}{"echo": input["message"]}, nil
		},
	}))
	require.NoError(t, registry.Register(tools.Tool{
		ServerID: "srv",
		Name:     "broken",
		Handler: func(ctx context.Context, input map[string]interface{}) (interface{}, error) {
			return nil, errors.New("upstream unavailable")
		},
	}))

	return &fixture{
		gateway: New(Options{
			Governance:   governance,
			Approvals:    approvals,
			Recorder:     recorder,
			Boundary:     boundary.New(boundary.Config{}, logger),
			Registry:     registry,
			Logger:       logger,
			ApprovalMode: mode,
		}),
		governance: governance,
		approvals:  approvals,
		recorder:   recorder,
	}
}

func actor() models.Actor {
	return models.Actor{ID: "account-1", Username: "operator"}
}

func (f *fixture) trust(t *testing.T, serverID string) {
	t.Helper()
	_, err := f.governance.Update(serverID, map[string]interface{}{"trust_state": "trusted"})
	require.NoError(t, err)
}

func (f *fixture) auditRecords(t *testing.T) []models.AuditRecord {
	t.Helper()
	records, err := f.recorder.List(storage.AuditFilter{})
	require.NoError(t, err)
	return records
}

func TestCallToolTrustedServerExecutes(t *testing.T) {
	f := newFixture(t, models.ApprovalModeUntrustedOnly)
	f.trust(t, "srv")

	result, err := f.gateway.CallTool(context.Background(), "srv", "echo",
		map[string]interface{}{"message": "hi"}, actor(), CallOptions{})
	require.NoError(t, err)

	assert.Equal(t, models.DecisionAllowed, result.Decision)
	assert.Equal(t, models.CallSuccess, result.Status)
	assert.Equal(t, map[string]interface{}{"echo": "hi"}, result.Output)

	records := f.auditRecords(t)
	require.Len(t, records, 1)
	assert.Equal(t, result.CorrelationID, records[0].CorrelationID)
	assert.Equal(t, models.CallSuccess, records[0].Status)
	require.NotNil(t, records[0].CompletedAt)
	assert.Nil(t, records[0].NotExecutedAt)
}

func TestCallToolUntrustedServerPausesOnApproval(t *testing.T) {
	f := newFixture(t, models.ApprovalModeUntrustedOnly)

	result, err := f.gateway.CallTool(context.Background(), "srv", "echo",
		map[string]interface{}{"message": "hi"}, actor(), CallOptions{Reason: "routine"})
	require.NoError(t, err)

	assert.Equal(t, models.DecisionApprovalRequired, result.Decision)
	assert.Equal(t, models.CallNotExecuted, result.Status)
	assert.NotEmpty(t, result.ApprovalID)
	assert.Nil(t, result.Output)

	records := f.auditRecords(t)
	require.Len(t, records, 1)
	assert.Equal(t, models.DecisionApprovalRequired, records[0].Decision)
	assert.Equal(t, result.ApprovalID, records[0].ApprovalID)
	require.NotNil(t, records[0].NotExecutedAt)
}

func TestCallToolPolicyDenied(t *testing.T) {
	f := newFixture(t, models.ApprovalModeUntrustedOnly)
	_, err := f.governance.Update("srv", map[string]interface{}{"trust_state": "blocked"})
	require.NoError(t, err)

	result, err := f.gateway.CallTool(context.Background(), "srv", "echo", nil, actor(), CallOptions{})

	var cerr *CodedError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, CodePolicyDenied, cerr.Code)
	assert.Equal(t, models.DecisionDenied, result.Decision)
	assert.Equal(t, models.CallNotExecuted, result.Status)

	records := f.auditRecords(t)
	require.Len(t, records, 1)
	require.NotNil(t, records[0].Error)
	assert.Equal(t, CodePolicyDenied, records[0].Error.Code)
}

func TestCallToolApprovalModeOffSkipsApproval(t *testing.T) {
	f := newFixture(t, models.ApprovalModeOff)

	result, err := f.gateway.CallTool(context.Background(), "srv", "echo",
		map[string]interface{}{"message": "hi"}, actor(), CallOptions{})
	require.NoError(t, err)
	assert.Equal(t, models.CallSuccess, result.Status)
}

func TestCallToolUnknownToolFailsWithAudit(t *testing.T) {
	f := newFixture(t, models.ApprovalModeUntrustedOnly)
	f.trust(t, "srv")

	_, err := f.gateway.CallTool(context.Background(), "srv", "no_such_tool", nil, actor(), CallOptions{})

	var cerr *CodedError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, CodeToolNotFound, cerr.Code)

	records := f.auditRecords(t)
	require.Len(t, records, 1)
	assert.Equal(t, models.CallFailed, records[0].Status)
}

func TestCallToolHandlerFailureAudited(t *testing.T) {
	f := newFixture(t, models.ApprovalModeUntrustedOnly)
	f.trust(t, "srv")

	result, err := f.gateway.CallTool(context.Background(), "srv", "broken", nil, actor(), CallOptions{})
	require.Error(t, err)
	assert.Equal(t, models.CallFailed, result.Status)

	records := f.auditRecords(t)
	require.Len(t, records, 1)
	require.NotNil(t, records[0].Error)
	assert.Equal(t, "TOOL_EXECUTION_FAILED", records[0].Error.Code)
}

func TestApproveExecutesOnce(t *testing.T) {
	f := newFixture(t, models.ApprovalModeUntrustedOnly)

	pending, err := f.gateway.CallTool(context.Background(), "srv", "echo",
		map[string]interface{}{"message": "hi"}, actor(), CallOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, pending.ApprovalID)

	result, err := f.gateway.Approve(context.Background(), pending.ApprovalID, actor())
	require.NoError(t, err)
	assert.Equal(t, models.CallSuccess, result.Status)
	assert.Equal(t, map[string]interface{}{"echo": "hi"}, result.Output)

	// The approval is single-use
	_, err = f.gateway.Approve(context.Background(), pending.ApprovalID, actor())
	var aerr *approval.Error
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, approval.CodeConsumed, aerr.Code)
}

func TestApproveConsumedApprovalIsAudited(t *testing.T) {
	f := newFixture(t, models.ApprovalModeUntrustedOnly)

	pending, err := f.gateway.CallTool(context.Background(), "srv", "echo",
		map[string]interface{}{"message": "hi"}, actor(), CallOptions{})
	require.NoError(t, err)

	_, err = f.gateway.Approve(context.Background(), pending.ApprovalID, actor())
	require.NoError(t, err)

	_, err = f.gateway.Approve(context.Background(), pending.ApprovalID, actor())
	require.Error(t, err)

	// Request, execution, and the refused re-approval each left a record;
	// the list comes back newest first
	records := f.auditRecords(t)
	require.Len(t, records, 3)
	refused := records[0]
	assert.Equal(t, models.DecisionDenied, refused.Decision)
	assert.Equal(t, models.CallNotExecuted, refused.Status)
	require.NotNil(t, refused.NotExecutedAt)
	require.NotNil(t, refused.Error)
	assert.Equal(t, approval.CodeConsumed, refused.Error.Code)
}

func TestApproveRevalidatesCurrentPolicy(t *testing.T) {
	f := newFixture(t, models.ApprovalModeUntrustedOnly)

	pending, err := f.gateway.CallTool(context.Background(), "srv", "echo",
		map[string]interface{}{"message": "hi"}, actor(), CallOptions{})
	require.NoError(t, err)

	// Policy tightens between request and approval
	_, err = f.governance.Update("srv", map[string]interface{}{"deny_tools": []interface{}{"echo"}})
	require.NoError(t, err)

	_, err = f.gateway.Approve(context.Background(), pending.ApprovalID, actor())
	var cerr *CodedError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, CodePolicyDenied, cerr.Code)

	// The denial must not consume the approval
	request, err := f.approvals.Get(pending.ApprovalID)
	require.NoError(t, err)
	assert.False(t, request.Consumed())
}

func TestApproveUnknownApproval(t *testing.T) {
	f := newFixture(t, models.ApprovalModeUntrustedOnly)

	_, err := f.gateway.Approve(context.Background(), "missing", actor())
	var aerr *approval.Error
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, approval.CodeNotFound, aerr.Code)
}

func TestPolicyGateHelper(t *testing.T) {
	f := newFixture(t, models.ApprovalModeUntrustedOnly)

	result, err := f.gateway.PolicyGate("srv", "echo", map[string]interface{}{"api_key": "x"})
	require.NoError(t, err)
	assert.Equal(t, "allow", result.Decision)
	assert.Equal(t, 65, result.RiskScore) // untrusted 40 + medium 10 + secret 15
}
