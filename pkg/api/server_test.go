package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagehand-ai/stagehand/pkg/approval"
	"github.com/stagehand-ai/stagehand/pkg/audit"
	"github.com/stagehand-ai/stagehand/pkg/auth"
	"github.com/stagehand-ai/stagehand/pkg/boundary"
	"github.com/stagehand-ai/stagehand/pkg/config"
	"github.com/stagehand-ai/stagehand/pkg/engine"
	"github.com/stagehand-ai/stagehand/pkg/gateway"
	"github.com/stagehand-ai/stagehand/pkg/logging"
	"github.com/stagehand-ai/stagehand/pkg/models"
	"github.com/stagehand-ai/stagehand/pkg/policy"
	"github.com/stagehand-ai/stagehand/pkg/queue"
	"github.com/stagehand-ai/stagehand/pkg/services"
	"github.com/stagehand-ai/stagehand/pkg/storage"
	"github.com/stagehand-ai/stagehand/pkg/tools"
	"github.com/stagehand-ai/stagehand/pkg/workflow"
)

type apiFixture struct {
	server     *Server
	governance *policy.GovernanceService
	token      string
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	provider := storage.NewMemoryProvider()
	require.NoError(t, provider.Initialize())

	logger := logging.NewNopLogger()
	governance := policy.NewGovernanceService(provider.GetGovernanceStore(), logger)
	approvals := approval.NewManager(provider.GetApprovalStore(), logger)
	recorder := audit.NewRecorder(provider.GetAuditStore(), logger)
	guard := boundary.New(boundary.Config{}, logger)
	jobs := queue.NewMemoryQueue(16)

	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(tools.Tool{
		ServerID: "srv",
		Name:     "echo",
		Handler: func(ctx context.Context, input map[string]interface{}) (interface{}, error) {
			return map[string]interface{}{"echo": input["message"]}, nil
		},
	}))

	gw := gateway.New(gateway.Options{
		Governance:   governance,
		Approvals:    approvals,
		Recorder:     recorder,
		Boundary:     guard,
		Registry:     registry,
		Logger:       logger,
		ApprovalMode: models.ApprovalModeUntrustedOnly,
	})

	stepEngine := engine.New(engine.Options{
		Tasks:     provider.GetTaskStore(),
		Approvals: approvals,
		Registry:  registry,
		Boundary:  guard,
		Jobs:      jobs,
		Logger:    logger,
	})

	workflows := workflow.NewService(provider.GetWorkflowStore(), provider.GetWorkflowRunStore(), jobs, logger)

	accountService := services.NewAccountService(provider.GetAccountStore())
	_, err := accountService.CreateAccount("alice", "s3cret", auth.RoleAdmin)
	require.NoError(t, err)

	jwtService := services.NewJWTService("test-secret", 1)

	server := NewServer(&config.Config{}, Deps{
		AccountService: accountService,
		JWTService:     jwtService,
		Gateway:        gw,
		Governance:     governance,
		Recorder:       recorder,
		Engine:         stepEngine,
		Workflows:      workflows,
		Registry:       registry,
		Logger:         logger,
	})

	f := &apiFixture{server: server, governance: governance}
	f.token = f.login(t, "alice", "s3cret").Token
	return f
}

// do issues a request against the router. A []byte body is sent raw; anything
// else is JSON-encoded.
func (f *apiFixture) do(t *testing.T, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.([]byte); ok {
			buf.Write(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) login(t *testing.T, username, password string) LoginResponse {
	t.Helper()

	saved := f.token
	f.token = ""
	rec := f.do(t, http.MethodPost, "/api/v1/login", LoginRequest{Username: username, Password: password}, nil)
	f.token = saved

	require.Equal(t, http.StatusOK, rec.Code)
	var resp LoginResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func errorCodeOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Error.Code
}

func TestHealthIsPublic(t *testing.T) {
	f := newAPIFixture(t)
	f.token = ""

	rec := f.do(t, http.MethodGet, "/api/v1/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeJSON(t, rec)["status"])
}

func TestLoginSuccessAndFailure(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.login(t, "alice", "s3cret")
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "alice", resp.Username)
	assert.Equal(t, auth.RoleAdmin, resp.Role)

	f.token = ""
	rec := f.do(t, http.MethodPost, "/api/v1/login", LoginRequest{Username: "alice", Password: "wrong"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "AUTH_FAILED", errorCodeOf(t, rec))
}

func TestAuthenticatedRoutesRejectMissingToken(t *testing.T) {
	f := newAPIFixture(t)

	f.token = ""
	rec := f.do(t, http.MethodGet, "/api/v1/tasks", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	f.token = "not-a-token"
	rec = f.do(t, http.MethodGet, "/api/v1/tasks", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCallToolTrustedServer(t *testing.T) {
	f := newAPIFixture(t)
	_, err := f.governance.Update("srv", map[string]interface{}{"trust_state": "trusted"})
	require.NoError(t, err)

	rec := f.do(t, http.MethodPost, "/api/v1/servers/srv/tools/echo/call",
		CallToolRequest{Input: map[string]interface{}{"message": "hi"}}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeJSON(t, rec)
	assert.Equal(t, string(models.DecisionAllowed), body["decision"])
	output := body["output"].(map[string]interface{})
	assert.Equal(t, "hi", output["echo"])
}

func TestCallToolUntrustedServerReturns202(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/servers/srv/tools/echo/call",
		CallToolRequest{Input: map[string]interface{}{"message": "hi"}, Reason: "routine"}, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	body := decodeJSON(t, rec)
	assert.Equal(t, string(models.DecisionApprovalRequired), body["decision"])
	assert.NotEmpty(t, body["approval_id"])
}

func TestCallToolBlockedServerReturns403(t *testing.T) {
	f := newAPIFixture(t)
	_, err := f.governance.Update("srv", map[string]interface{}{"trust_state": "blocked"})
	require.NoError(t, err)

	rec := f.do(t, http.MethodPost, "/api/v1/servers/srv/tools/echo/call",
		CallToolRequest{Input: map[string]interface{}{"message": "hi"}}, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, gateway.CodePolicyDenied, errorCodeOf(t, rec))
}

func TestCallToolUnknownToolReturns404(t *testing.T) {
	f := newAPIFixture(t)
	_, err := f.governance.Update("srv", map[string]interface{}{"trust_state": "trusted"})
	require.NoError(t, err)

	rec := f.do(t, http.MethodPost, "/api/v1/servers/srv/tools/no_such_tool/call",
		CallToolRequest{}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, gateway.CodeToolNotFound, errorCodeOf(t, rec))
}

func TestApproveEndpointExecutesOnce(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/servers/srv/tools/echo/call",
		CallToolRequest{Input: map[string]interface{}{"message": "hi"}}, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	approvalID := decodeJSON(t, rec)["approval_id"].(string)

	rec = f.do(t, http.MethodPost, "/api/v1/approvals/"+approvalID+"/approve", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	output := decodeJSON(t, rec)["output"].(map[string]interface{})
	assert.Equal(t, "hi", output["echo"])

	// Single-use: the second approval attempt conflicts
	rec = f.do(t, http.MethodPost, "/api/v1/approvals/"+approvalID+"/approve", nil, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, approval.CodeConsumed, errorCodeOf(t, rec))
}

func TestApproveUnknownApprovalReturns404(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/approvals/missing/approve", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, approval.CodeNotFound, errorCodeOf(t, rec))
}

func TestListAuditWithFilters(t *testing.T) {
	f := newAPIFixture(t)
	_, err := f.governance.Update("srv", map[string]interface{}{"trust_state": "trusted"})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		rec := f.do(t, http.MethodPost, "/api/v1/servers/srv/tools/echo/call",
			CallToolRequest{Input: map[string]interface{}{"message": fmt.Sprintf("m%d", i)}}, nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := f.do(t, http.MethodGet, "/api/v1/audit?decision=allowed&limit=2", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	records := decodeJSON(t, rec)["records"].([]interface{})
	assert.Len(t, records, 2)

	rec = f.do(t, http.MethodGet, "/api/v1/audit?decision=denied", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeJSON(t, rec)["records"])

	rec = f.do(t, http.MethodGet, "/api/v1/audit?limit=nope", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPatchGovernance(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPatch, "/api/v1/servers/srv/governance",
		map[string]interface{}{"trust_state": "trusted", "risk_tier": "high"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeJSON(t, rec)
	assert.Equal(t, string(models.TrustTrusted), body["trust_state"])
	assert.Equal(t, string(models.RiskHigh), body["risk_tier"])

	// Immutable fields reject the whole patch
	rec = f.do(t, http.MethodPatch, "/api/v1/servers/srv/governance",
		map[string]interface{}{"owner": "mallory"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCodeOf(t, rec))
}

func TestGetServerIncludesToolCatalog(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/servers/srv", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeJSON(t, rec)
	assert.NotNil(t, body["governance"])
	catalog := body["tools"].([]interface{})
	require.Len(t, catalog, 1)
}

func TestTaskLifecycle(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/tasks", CreateTaskRequest{
		Title: "demo",
		Steps: []models.Step{
			{ID: "greet", Type: models.StepTypeTool, ToolID: "srv/echo",
				Input: map[string]interface{}{"message": "hello"}},
		},
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	body := decodeJSON(t, rec)
	taskID := body["id"].(string)
	assert.Equal(t, string(models.TaskStatusPending), body["status"])

	rec = f.do(t, http.MethodPost, "/api/v1/tasks/"+taskID+"/run", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(models.TaskStatusCompleted), decodeJSON(t, rec)["status"])

	rec = f.do(t, http.MethodGet, "/api/v1/tasks/"+taskID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateTaskValidation(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/tasks", CreateTaskRequest{Title: "no-steps"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCodeOf(t, rec))
}

func TestCancelTask(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/tasks", CreateTaskRequest{
		Title: "to-cancel",
		Steps: []models.Step{
			{ID: "a", Type: models.StepTypeTool, ToolID: "srv/echo"},
		},
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	taskID := decodeJSON(t, rec)["id"].(string)

	rec = f.do(t, http.MethodPost, "/api/v1/tasks/"+taskID+"/cancel", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(models.TaskStatusCanceled), decodeJSON(t, rec)["status"])
}

func TestTaskApprovalDecisionRejectsBadVerdict(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/tasks/t1/steps/s1/approval",
		TaskApprovalRequest{Decision: "maybe"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCodeOf(t, rec))
}

func TestGetMissingTaskReturns404(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/tasks/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", errorCodeOf(t, rec))
}

func TestCreateWorkflowFromJSONAndTrigger(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/workflows", models.Workflow{
		Name:    "report",
		Enabled: true,
		Trigger: models.Trigger{Type: models.TriggerManual},
		Steps: []models.Step{
			{ID: "a", Type: models.StepTypeTool, ToolID: "srv/echo",
				Input: map[string]interface{}{"message": "x"}},
		},
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	workflowID := decodeJSON(t, rec)["id"].(string)

	rec = f.do(t, http.MethodPost, "/api/v1/workflows/"+workflowID+"/trigger",
		TriggerWorkflowRequest{Payload: map[string]interface{}{"source": "api"}}, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	run := decodeJSON(t, rec)
	assert.Equal(t, string(models.RunStatusQueued), run["status"])

	rec = f.do(t, http.MethodGet, "/api/v1/workflows/"+workflowID+"/runs", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	runs := decodeJSON(t, rec)["runs"].([]interface{})
	assert.Len(t, runs, 1)
}

func TestCreateWorkflowFromYAML(t *testing.T) {
	f := newAPIFixture(t)

	body := []byte(`
name: nightly
enabled: true
trigger:
  type: cron
  cron: "*/5 * * * *"
steps:
  - id: fetch
    type: tool
    tool_id: srv/echo
`)
	rec := f.do(t, http.MethodPost, "/api/v1/workflows", body,
		map[string]string{"Content-Type": "application/x-yaml"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "nightly", decodeJSON(t, rec)["name"])
}

func TestCreateWorkflowValidation(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/workflows", models.Workflow{Name: "no-steps"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCodeOf(t, rec))
}

func TestDeleteWorkflow(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/workflows", models.Workflow{
		Name:    "temp",
		Trigger: models.Trigger{Type: models.TriggerManual},
		Steps:   []models.Step{{ID: "a", Type: models.StepTypeTool, ToolID: "srv/echo"}},
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	workflowID := decodeJSON(t, rec)["id"].(string)

	rec = f.do(t, http.MethodDelete, "/api/v1/workflows/"+workflowID, nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/workflows/"+workflowID, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAccountEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/accounts",
		CreateAccountRequest{Username: "bob", Password: "pw"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	bobID := decodeJSON(t, rec)["id"].(string)

	rec = f.do(t, http.MethodGet, "/api/v1/accounts", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	accounts := decodeJSON(t, rec)["accounts"].([]interface{})
	assert.Len(t, accounts, 2)

	rec = f.do(t, http.MethodGet, "/api/v1/accounts/me", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", decodeJSON(t, rec)["username"])

	rec = f.do(t, http.MethodDelete, "/api/v1/accounts/"+bobID, nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
