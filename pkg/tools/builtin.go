package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/stagehand-ai/stagehand/pkg/metatools"
	"github.com/stagehand-ai/stagehand/pkg/policy"
	"github.com/stagehand-ai/stagehand/pkg/utils"
)

// BuiltinDeps are the services the builtin tools draw on
type BuiltinDeps struct {
	// Governance resolves server governance for policy_gate
	Governance *policy.GovernanceService

	// HTTP performs outbound requests for http_request and web_fetch
	HTTP *utils.HTTPClient

	// WorkspaceRoot anchors file_read and file_write
	WorkspaceRoot string
}

// RegisterBuiltin registers the builtin tool set, meta-tools included, under
// BuiltinServerID
func RegisterBuiltin(registry *Registry, deps BuiltinDeps) error {
	builtins := []Tool{
		{
			ServerID:    BuiltinServerID,
			Name:        "policy_gate",
			Description: "Combine the tool policy with a numeric risk score",
			Handler:     policyGateHandler(deps.Governance),
		},
		{
			ServerID:    BuiltinServerID,
			Name:        "evaluate_response",
			Description: "Score candidate texts against a weighted rubric",
			Handler:     evaluateResponseHandler,
		},
		{
			ServerID:    BuiltinServerID,
			Name:        "orchestration_plan",
			Description: "Emit an ordered orchestration plan for a goal",
			Handler:     orchestrationPlanHandler,
		},
		{
			ServerID:    BuiltinServerID,
			Name:        "http_request",
			Description: "Perform an HTTP request",
			Handler:     httpRequestHandler(deps.HTTP),
		},
		{
			ServerID:    BuiltinServerID,
			Name:        "web_fetch",
			Description: "Fetch the body of a URL",
			Handler:     webFetchHandler(deps.HTTP),
		},
		{
			ServerID:    BuiltinServerID,
			Name:        "file_read",
			Description: "Read a file under the workspace",
			Handler:     fileReadHandler(deps.WorkspaceRoot),
		},
		{
			ServerID:    BuiltinServerID,
			Name:        "file_write",
			Description: "Write a file under the workspace",
			Handler:     fileWriteHandler(deps.WorkspaceRoot),
		},
		{
			ServerID:    BuiltinServerID,
			Name:        "echo",
			Description: "Return the input unchanged",
			Handler:     echoHandler,
		},
	}

	for _, tool := range builtins {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

// decodeInput maps a loose tool input onto a typed request
func decodeInput(input map[string]interface{}, target interface{}) error {
	raw, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("failed to encode tool input: %w", err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("failed to decode tool input: %w", err)
	}
	return nil
}

func policyGateHandler(governance *policy.GovernanceService) Handler {
	return func(ctx context.Context, input map[string]interface{}) (interface{}, error) {
		var req struct {
			ServerID     string                 `json:"server_id"`
			ToolName     string                 `json:"tool_name"`
			InputPreview map[string]interface{} `json:"input_preview"`
		}
		if err := decodeInput(input, &req); err != nil {
			return nil, err
		}
		if req.ServerID == "" || req.ToolName == "" {
			return nil, fmt.Errorf("policy_gate requires server_id and tool_name")
		}

		server, err := governance.Get(req.ServerID)
		if err != nil {
			return nil, err
		}
		return metatools.PolicyGate(server, req.ToolName, req.InputPreview), nil
	}
}

func evaluateResponseHandler(ctx context.Context, input map[string]interface{}) (interface{}, error) {
	var req struct {
		Candidates []metatools.Candidate `json:"candidates"`
		Criteria   []metatools.Criterion `json:"criteria"`
	}
	if err := decodeInput(input, &req); err != nil {
		return nil, err
	}
	if len(req.Candidates) == 0 {
		return nil, fmt.Errorf("evaluate_response requires at least one candidate")
	}
	return metatools.EvaluateResponse(req.Candidates, req.Criteria), nil
}

func orchestrationPlanHandler(ctx context.Context, input map[string]interface{}) (interface{}, error) {
	var req metatools.PlanRequest
	if err := decodeInput(input, &req); err != nil {
		return nil, err
	}
	if req.Goal == "" {
		return nil, fmt.Errorf("orchestration_plan requires a goal")
	}
	return metatools.OrchestrationPlan(req), nil
}

func httpRequestHandler(client *utils.HTTPClient) Handler {
	return func(ctx context.Context, input map[string]interface{}) (interface{}, error) {
		var req utils.HTTPRequest
		if err := decodeInput(input, &req); err != nil {
			return nil, err
		}
		if req.URL == "" {
			return nil, fmt.Errorf("http_request requires a url")
		}

		resp, err := client.Do(ctx, &req)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"status_code": resp.StatusCode,
			"body":        resp.Body,
			"metadata":    resp.Metadata,
		}, nil
	}
}

func webFetchHandler(client *utils.HTTPClient) Handler {
	return func(ctx context.Context, input map[string]interface{}) (interface{}, error) {
		rawURL, _ := input["url"].(string)
		if rawURL == "" {
			return nil, fmt.Errorf("web_fetch requires a url")
		}

		resp, err := client.Do(ctx, &utils.HTTPRequest{URL: rawURL})
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"status_code": resp.StatusCode,
			"content":     string(resp.RawBody),
		}, nil
	}
}

// resolveWorkspacePath anchors a tool-supplied path under the workspace
// root. The boundary has already vetted the path; this keeps the handlers
// honest even when called directly.
func resolveWorkspacePath(root, rawPath string) (string, error) {
	if root == "" {
		root = "."
	}
	resolved := rawPath
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(root, resolved)
	}
	return filepath.Clean(resolved), nil
}

func fileReadHandler(workspaceRoot string) Handler {
	return func(ctx context.Context, input map[string]interface{}) (interface{}, error) {
		rawPath, _ := input["path"].(string)
		if rawPath == "" {
			return nil, fmt.Errorf("file_read requires a path")
		}

		resolved, err := resolveWorkspacePath(workspaceRoot, rawPath)
		if err != nil {
			return nil, err
		}
		content, err := os.ReadFile(resolved)
		if err != nil {
			return nil, fmt.Errorf("failed to read file: %w", err)
		}
		return map[string]interface{}{
			"path":    rawPath,
			"content": string(content),
		}, nil
	}
}

func fileWriteHandler(workspaceRoot string) Handler {
	return func(ctx context.Context, input map[string]interface{}) (interface{}, error) {
		rawPath, _ := input["path"].(string)
		content, _ := input["content"].(string)
		if rawPath == "" {
			return nil, fmt.Errorf("file_write requires a path")
		}

		resolved, err := resolveWorkspacePath(workspaceRoot, rawPath)
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create parent directory: %w", err)
		}
		if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
			return nil, fmt.Errorf("failed to write file: %w", err)
		}
		return map[string]interface{}{
			"path":    rawPath,
			"written": len(content),
		}, nil
	}
}

func echoHandler(ctx context.Context, input map[string]interface{}) (interface{}, error) {
	return input, nil
}
