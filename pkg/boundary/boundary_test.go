package boundary

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagehand-ai/stagehand/pkg/logging"
)

func passthrough(ctx context.Context, input map[string]interface{}) (interface{}, error) {
	return "ran", nil
}

func newBoundary(config Config) *Boundary {
	return New(config, logging.NewNopLogger())
}

func TestExecuteDeniedDomainBlocks(t *testing.T) {
	b := newBoundary(Config{DeniedDomains: []string{"internal.example.com"}})

	_, err := b.Execute(context.Background(), Request{
		ToolID:  "test/web_fetch",
		Input:   map[string]interface{}{"url": "https://api.internal.example.com/admin"},
		Execute: passthrough,
	})

	var berr *Error
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, CodeDomainBlocked, berr.Code)
}

func TestExecuteDenyListWinsOverAllowList(t *testing.T) {
	b := newBoundary(Config{
		AllowedDomains: []string{"example.com"},
		DeniedDomains:  []string{"evil.example.com"},
	})

	_, err := b.Execute(context.Background(), Request{
		Input:   map[string]interface{}{"url": "https://evil.example.com"},
		Execute: passthrough,
	})
	var berr *Error
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, CodeDomainBlocked, berr.Code)

	result, err := b.Execute(context.Background(), Request{
		Input:   map[string]interface{}{"url": "https://good.example.com"},
		Execute: passthrough,
	})
	require.NoError(t, err)
	assert.Equal(t, "ran", result)
}

func TestExecuteAllowListRestrictsDomains(t *testing.T) {
	b := newBoundary(Config{AllowedDomains: []string{"example.com"}})

	_, err := b.Execute(context.Background(), Request{
		Input:   map[string]interface{}{"url": "https://other.org"},
		Execute: passthrough,
	})
	var berr *Error
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, CodeDomainBlocked, berr.Code)
}

func TestExecuteInvalidURLBlocks(t *testing.T) {
	b := newBoundary(Config{})

	_, err := b.Execute(context.Background(), Request{
		Input:   map[string]interface{}{"url": "not a url"},
		Execute: passthrough,
	})
	var berr *Error
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, CodeDomainBlocked, berr.Code)
}

func TestExecutePathEscapeBlocked(t *testing.T) {
	b := newBoundary(Config{WorkspaceRoot: "/srv/workspace", AllowedPaths: []string{"."}})

	for _, path := range []string{"../etc/passwd", "sub/../../secrets", "/etc/passwd"} {
		_, err := b.Execute(context.Background(), Request{
			Input:   map[string]interface{}{"path": path},
			Execute: passthrough,
		})
		var berr *Error
		require.ErrorAs(t, err, &berr, "path %q", path)
		assert.Equal(t, CodePathNotAllowed, berr.Code, "path %q", path)
	}
}

func TestExecutePathInsideWorkspaceAllowed(t *testing.T) {
	b := newBoundary(Config{WorkspaceRoot: "/srv/workspace", AllowedPaths: []string{"."}})

	result, err := b.Execute(context.Background(), Request{
		Input:   map[string]interface{}{"path": "reports/out.txt"},
		Execute: passthrough,
	})
	require.NoError(t, err)
	assert.Equal(t, "ran", result)
}

func TestExecutePathOutsideAllowedDirectoryBlocked(t *testing.T) {
	b := newBoundary(Config{WorkspaceRoot: "/srv/workspace", AllowedPaths: []string{"data"}})

	result, err := b.Execute(context.Background(), Request{
		Input:   map[string]interface{}{"path": "data/input.csv"},
		Execute: passthrough,
	})
	require.NoError(t, err)
	assert.Equal(t, "ran", result)

	_, err = b.Execute(context.Background(), Request{
		Input:   map[string]interface{}{"path": "other/input.csv"},
		Execute: passthrough,
	})
	var berr *Error
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, CodePathNotAllowed, berr.Code)
}

func TestExecuteDomainGuardRunsBeforePathGuard(t *testing.T) {
	b := newBoundary(Config{
		DeniedDomains: []string{"blocked.test"},
		WorkspaceRoot: "/srv/workspace",
		AllowedPaths:  []string{"data"},
	})

	// Both guards would fail; the domain guard reports first
	_, err := b.Execute(context.Background(), Request{
		Input: map[string]interface{}{
			"url":  "https://blocked.test",
			"path": "../escape",
		},
		Execute: passthrough,
	})
	var berr *Error
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, CodeDomainBlocked, berr.Code)
}

func TestExecuteTimeout(t *testing.T) {
	b := newBoundary(Config{DefaultTimeout: 20 * time.Millisecond})

	_, err := b.Execute(context.Background(), Request{
		ToolID: "test/slow",
		Input:  map[string]interface{}{},
		Execute: func(ctx context.Context, input map[string]interface{}) (interface{}, error) {
			select {
			case <-time.After(5 * time.Second):
				return "too late", nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	})

	var berr *Error
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, CodeTimeout, berr.Code)
}

func TestExecuteTimeoutOverrideFromInput(t *testing.T) {
	b := newBoundary(Config{DefaultTimeout: 5 * time.Second})

	start := time.Now()
	_, err := b.Execute(context.Background(), Request{
		Input: map[string]interface{}{"timeout_ms": float64(20)},
		Execute: func(ctx context.Context, input map[string]interface{}) (interface{}, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})

	var berr *Error
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, CodeTimeout, berr.Code)
	assert.Less(t, time.Since(start), time.Second)
}

func TestExecutePassesInputThrough(t *testing.T) {
	b := newBoundary(Config{})

	result, err := b.Execute(context.Background(), Request{
		Input: map[string]interface{}{"message": "hello"},
		Execute: func(ctx context.Context, input map[string]interface{}) (interface{}, error) {
			return input["message"], nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", result)
}
