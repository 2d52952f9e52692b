package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagehand-ai/stagehand/pkg/logging"
	"github.com/stagehand-ai/stagehand/pkg/models"
	"github.com/stagehand-ai/stagehand/pkg/storage"
)

func newGovernanceService(t *testing.T) *GovernanceService {
	t.Helper()
	provider := storage.NewMemoryProvider()
	require.NoError(t, provider.Initialize())
	return NewGovernanceService(provider.GetGovernanceStore(), logging.NewNopLogger())
}

func TestGetUnknownServerReturnsDefault(t *testing.T) {
	svc := newGovernanceService(t)

	record, err := svc.Get("never-configured")
	require.NoError(t, err)

	assert.Equal(t, "never-configured", record.ID)
	assert.Equal(t, models.TrustUntrusted, record.TrustState)
	assert.Equal(t, models.RiskMedium, record.RiskTier)
	assert.Empty(t, record.AllowTools)
	assert.Empty(t, record.DenyTools)
}

func TestUpdateAppliesPatch(t *testing.T) {
	svc := newGovernanceService(t)

	updated, err := svc.Update("server-1", map[string]interface{}{
		"trust_state": "trusted",
		"risk_tier":   "high",
		"allow_tools": []interface{}{"read_*"},
		"deny_tools":  []interface{}{"read_secret"},
		"notes":       "search backend",
	})
	require.NoError(t, err)

	assert.Equal(t, models.TrustTrusted, updated.TrustState)
	assert.Equal(t, models.RiskHigh, updated.RiskTier)
	assert.Equal(t, []string{"read_*"}, updated.AllowTools)
	assert.Equal(t, []string{"read_secret"}, updated.DenyTools)
	assert.Equal(t, "search backend", updated.Notes)

	// The patch must be persisted
	reloaded, err := svc.Get("server-1")
	require.NoError(t, err)
	assert.Equal(t, updated.TrustState, reloaded.TrustState)
}

func TestUpdateRejectsUnknownAndImmutableFields(t *testing.T) {
	svc := newGovernanceService(t)

	_, err := svc.Update("server-1", map[string]interface{}{"owner": "someone-else"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "owner", verr.Field)

	_, err = svc.Update("server-1", map[string]interface{}{"favourite_color": "blue"})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "favourite_color", verr.Field)
}

func TestUpdateRejectsInvalidEnumWithoutMutation(t *testing.T) {
	svc := newGovernanceService(t)

	_, err := svc.Update("server-1", map[string]interface{}{"trust_state": "trusted"})
	require.NoError(t, err)

	// An invalid patch must leave the earlier state intact even when other
	// fields in the same patch are valid
	_, err = svc.Update("server-1", map[string]interface{}{
		"notes":     "should not land",
		"risk_tier": "extreme",
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "risk_tier", verr.Field)

	record, err := svc.Get("server-1")
	require.NoError(t, err)
	assert.Equal(t, models.TrustTrusted, record.TrustState)
	assert.Empty(t, record.Notes)
}

func TestUpdateRejectsBlockedToTrusted(t *testing.T) {
	svc := newGovernanceService(t)

	_, err := svc.Update("server-1", map[string]interface{}{"trust_state": "blocked"})
	require.NoError(t, err)

	_, err = svc.Update("server-1", map[string]interface{}{"trust_state": "trusted"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "trust_state", verr.Field)

	// The two-step path through untrusted is allowed
	_, err = svc.Update("server-1", map[string]interface{}{"trust_state": "untrusted"})
	require.NoError(t, err)
	updated, err := svc.Update("server-1", map[string]interface{}{"trust_state": "trusted"})
	require.NoError(t, err)
	assert.Equal(t, models.TrustTrusted, updated.TrustState)
}

func TestUpdateRejectsMalformedPatternList(t *testing.T) {
	svc := newGovernanceService(t)

	_, err := svc.Update("server-1", map[string]interface{}{
		"allow_tools": []interface{}{"read_*", ""},
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "allow_tools", verr.Field)

	_, err = svc.Update("server-1", map[string]interface{}{"deny_tools": "not-a-list"})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "deny_tools", verr.Field)
}

func TestListReturnsOnlyConfiguredServers(t *testing.T) {
	svc := newGovernanceService(t)

	_, err := svc.Get("implicit")
	require.NoError(t, err)

	_, err = svc.Update("explicit", map[string]interface{}{"trust_state": "trusted"})
	require.NoError(t, err)

	records, err := svc.List()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "explicit", records[0].ID)
}
