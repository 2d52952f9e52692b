// Package boundary implements the tool execution boundary: the sandboxing
// wrapper enforcing domain, path and timeout limits before any tool body
// runs.
package boundary

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/stagehand-ai/stagehand/pkg/logging"
)

// Boundary error codes
const (
	CodeDomainBlocked  = "TOOL_DOMAIN_BLOCKED"
	CodePathNotAllowed = "TOOL_PATH_NOT_ALLOWED"
	CodeTimeout        = "TOOL_TIMEOUT"
)

// Error is a guard failure. The tool body is never invoked when one is
// returned.
type Error struct {
	// Code is the machine-readable error code
	Code string

	// Message is the human-readable error message
	Message string
}

// Error implements the error interface
func (e *Error) Error() string { return e.Message }

// DefaultTimeout applies when neither the input nor the config supplies one
const DefaultTimeout = 30 * time.Second

// Config constrains what tool bodies may reach
type Config struct {
	// AllowedDomains restricts outbound hostnames when non-empty
	AllowedDomains []string

	// DeniedDomains always blocks matching hostnames
	DeniedDomains []string

	// WorkspaceRoot anchors all filesystem access
	WorkspaceRoot string

	// AllowedPaths lists workspace-relative directories tools may touch
	AllowedPaths []string

	// DefaultTimeout bounds tool execution when the input supplies none
	DefaultTimeout time.Duration
}

// ExecuteFunc is a tool body wrapped by the boundary
type ExecuteFunc func(ctx context.Context, input map[string]interface{}) (interface{}, error)

// Request describes one boundary-wrapped execution
type Request struct {
	// ToolID identifies the tool, for logging
	ToolID string

	// Input is the tool input; "url", "path" and "timeout_ms" keys drive
	// the guards
	Input map[string]interface{}

	// Execute is the tool body
	Execute ExecuteFunc
}

// Boundary wraps tool bodies with the three guards. Guards run in the order
// domain, path, timeout; the first failure short-circuits.
type Boundary struct {
	config Config
	logger logging.Logger
}

// New creates a boundary with the given config
func New(config Config, logger logging.Logger) *Boundary {
	if config.DefaultTimeout <= 0 {
		config.DefaultTimeout = DefaultTimeout
	}
	return &Boundary{config: config, logger: logger}
}

// Execute runs a tool body behind the guards
func (b *Boundary) Execute(ctx context.Context, req Request) (interface{}, error) {
	if err := b.checkDomain(req.Input); err != nil {
		b.logger.Warn("tool blocked by domain guard",
			logging.F("tool_id", req.ToolID), logging.F("error", err.Error()))
		return nil, err
	}

	if err := b.checkPath(req.Input); err != nil {
		b.logger.Warn("tool blocked by path guard",
			logging.F("tool_id", req.ToolID), logging.F("error", err.Error()))
		return nil, err
	}

	return b.executeWithTimeout(ctx, req)
}

// checkDomain fails when the input carries a URL whose hostname is denied,
// or is absent from a configured allowlist
func (b *Boundary) checkDomain(input map[string]interface{}) error {
	rawURL, ok := input["url"].(string)
	if !ok || rawURL == "" {
		return nil
	}

	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Hostname() == "" {
		return &Error{Code: CodeDomainBlocked, Message: fmt.Sprintf("invalid url %q", rawURL)}
	}
	hostname := strings.ToLower(parsed.Hostname())

	for _, denied := range b.config.DeniedDomains {
		if matchDomain(hostname, denied) {
			return &Error{
				Code:    CodeDomainBlocked,
				Message: fmt.Sprintf("domain %q is denied", hostname),
			}
		}
	}

	if len(b.config.AllowedDomains) > 0 {
		for _, allowed := range b.config.AllowedDomains {
			if matchDomain(hostname, allowed) {
				return nil
			}
		}
		return &Error{
			Code:    CodeDomainBlocked,
			Message: fmt.Sprintf("domain %q is not in the allow list", hostname),
		}
	}

	return nil
}

// matchDomain reports whether hostname is the entry itself or a subdomain
// of it
func matchDomain(hostname, entry string) bool {
	entry = strings.ToLower(strings.TrimSpace(entry))
	return hostname == entry || strings.HasSuffix(hostname, "."+entry)
}

// checkPath fails unless the input's path, resolved against the workspace
// root, falls under an allowed directory
func (b *Boundary) checkPath(input map[string]interface{}) error {
	rawPath, ok := input["path"].(string)
	if !ok || rawPath == "" {
		return nil
	}

	root := b.config.WorkspaceRoot
	if root == "" {
		root = "."
	}

	resolved := rawPath
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(root, resolved)
	}
	resolved = filepath.Clean(resolved)

	// Everything must stay under the workspace root
	relative, err := filepath.Rel(root, resolved)
	if err != nil || relative == ".." || strings.HasPrefix(relative, ".."+string(filepath.Separator)) {
		return &Error{
			Code:    CodePathNotAllowed,
			Message: fmt.Sprintf("path %q escapes the workspace", rawPath),
		}
	}

	for _, allowed := range b.config.AllowedPaths {
		allowed = filepath.Clean(allowed)
		// "." allows the whole workspace
		if allowed == "." || relative == allowed || strings.HasPrefix(relative, allowed+string(filepath.Separator)) {
			return nil
		}
	}

	return &Error{
		Code:    CodePathNotAllowed,
		Message: fmt.Sprintf("path %q is not in an allowed directory", rawPath),
	}
}

// executeWithTimeout races the tool body against a deadline. On expiry the
// result is discarded; the underlying operation is not force-cancelled and
// callers must treat its side effects as unknown.
func (b *Boundary) executeWithTimeout(ctx context.Context, req Request) (interface{}, error) {
	timeout := b.config.DefaultTimeout
	if raw, ok := req.Input["timeout_ms"]; ok {
		if ms, ok := toInt64(raw); ok && ms > 0 {
			timeout = time.Duration(ms) * time.Millisecond
		}
	}

	type outcome struct {
		result interface{}
		err    error
	}
	done := make(chan outcome, 1)

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	go func() {
		result, err := req.Execute(execCtx, req.Input)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-execCtx.Done():
		if execCtx.Err() == context.DeadlineExceeded {
			return nil, &Error{
				Code:    CodeTimeout,
				Message: fmt.Sprintf("tool %q timed out after %s", req.ToolID, timeout),
			}
		}
		return nil, execCtx.Err()
	}
}

func toInt64(raw interface{}) (int64, bool) {
	switch v := raw.(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}
