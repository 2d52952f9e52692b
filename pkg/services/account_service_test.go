package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagehand-ai/stagehand/pkg/auth"
	"github.com/stagehand-ai/stagehand/pkg/storage"
)

func newAccountService(t *testing.T) *AccountService {
	t.Helper()
	provider := storage.NewMemoryProvider()
	require.NoError(t, provider.Initialize())
	return NewAccountService(provider.GetAccountStore())
}

func TestCreateAccountAndAuthenticate(t *testing.T) {
	svc := newAccountService(t)

	id, err := svc.CreateAccount("alice", "s3cret", auth.RoleAdmin)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := svc.Authenticate("alice", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = svc.Authenticate("alice", "wrong")
	assert.Error(t, err)

	_, err = svc.Authenticate("nobody", "s3cret")
	assert.Error(t, err)
}

func TestCreateAccountDefaultsRole(t *testing.T) {
	svc := newAccountService(t)

	id, err := svc.CreateAccount("bob", "pw", "")
	require.NoError(t, err)

	account, err := svc.GetAccount(id)
	require.NoError(t, err)
	assert.Equal(t, auth.RoleOperator, account.Role)
}

func TestCreateAccountRejectsDuplicateUsername(t *testing.T) {
	svc := newAccountService(t)

	_, err := svc.CreateAccount("alice", "pw", "")
	require.NoError(t, err)

	_, err = svc.CreateAccount("alice", "pw2", "")
	assert.Error(t, err)
}

func TestValidateAPIToken(t *testing.T) {
	svc := newAccountService(t)

	id, err := svc.CreateAccount("alice", "pw", "")
	require.NoError(t, err)

	account, err := svc.GetAccount(id)
	require.NoError(t, err)
	require.NotEmpty(t, account.APIToken)

	got, err := svc.ValidateToken(account.APIToken)
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = svc.ValidateToken("bogus")
	assert.Error(t, err)
}

func TestGetActor(t *testing.T) {
	svc := newAccountService(t)

	id, err := svc.CreateAccount("alice", "pw", auth.RoleAdmin)
	require.NoError(t, err)

	actor, err := svc.GetActor(id)
	require.NoError(t, err)
	assert.Equal(t, id, actor.ID)
	assert.Equal(t, "alice", actor.Username)
	assert.Equal(t, auth.RoleAdmin, actor.Role)
}

func TestDeleteAccount(t *testing.T) {
	svc := newAccountService(t)

	id, err := svc.CreateAccount("alice", "pw", "")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteAccount(id))

	_, err = svc.GetAccount(id)
	assert.Error(t, err)
}

func TestListAccounts(t *testing.T) {
	svc := newAccountService(t)

	_, err := svc.CreateAccount("alice", "pw", "")
	require.NoError(t, err)
	_, err = svc.CreateAccount("bob", "pw", "")
	require.NoError(t, err)

	accounts, err := svc.ListAccounts()
	require.NoError(t, err)
	assert.Len(t, accounts, 2)
}
