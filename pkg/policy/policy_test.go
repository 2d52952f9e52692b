package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stagehand-ai/stagehand/pkg/models"
)

func governanceRecord(trust models.TrustState, allow, deny []string) models.ServerGovernance {
	record := models.DefaultGovernance("server-1")
	record.TrustState = trust
	record.AllowTools = allow
	record.DenyTools = deny
	return record
}

func TestResolveToolPolicyBlockedServerDeniesEverything(t *testing.T) {
	server := governanceRecord(models.TrustBlocked, []string{"*"}, nil)

	decision := ResolveToolPolicy(server, "echo")

	assert.False(t, decision.Allowed)
	assert.Contains(t, decision.Reason, "blocked")
}

func TestResolveToolPolicyDenyPatternWinsOverAllowList(t *testing.T) {
	server := governanceRecord(models.TrustTrusted, []string{"*"}, []string{"delete_*"})

	assert.False(t, ResolveToolPolicy(server, "delete_account").Allowed)
	assert.True(t, ResolveToolPolicy(server, "list_accounts").Allowed)
}

func TestResolveToolPolicyAllowListRestricts(t *testing.T) {
	server := governanceRecord(models.TrustUntrusted, []string{"read_*", "echo"}, nil)

	assert.True(t, ResolveToolPolicy(server, "read_file").Allowed)
	assert.True(t, ResolveToolPolicy(server, "echo").Allowed)

	decision := ResolveToolPolicy(server, "write_file")
	assert.False(t, decision.Allowed)
	assert.Equal(t, "not in allow list", decision.Reason)
}

func TestResolveToolPolicyEmptyAllowListAllowsAll(t *testing.T) {
	server := governanceRecord(models.TrustUntrusted, nil, nil)

	assert.True(t, ResolveToolPolicy(server, "anything").Allowed)
}

func TestResolveToolPolicyIsPure(t *testing.T) {
	server := governanceRecord(models.TrustUntrusted, []string{"read_*"}, []string{"read_secret"})

	first := ResolveToolPolicy(server, "read_secret")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, ResolveToolPolicy(server, "read_secret"))
	}

	// The arguments must come back unchanged
	assert.Equal(t, []string{"read_*"}, server.AllowTools)
	assert.Equal(t, []string{"read_secret"}, server.DenyTools)
}

func TestMatchToolPattern(t *testing.T) {
	tests := []struct {
		pattern string
		tool    string
		want    bool
	}{
		{"*", "anything", true},
		{"echo", "echo", true},
		{"echo", "Echo", true},
		{"ECHO", "echo", true},
		{"echo", "echo2", false},
		{"delete_*", "delete_account", true},
		{"delete_*", "undelete_account", false},
		{"*_file", "read_file", true},
		{"read_*_meta", "read_file_meta", true},
		{"read_*_meta", "read_file", false},
		{"a.b", "axb", false}, // dot is literal, not regex
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, MatchToolPattern(tt.pattern, tt.tool),
			"pattern=%q tool=%q", tt.pattern, tt.tool)
	}
}
