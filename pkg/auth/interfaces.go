// Package auth provides authentication and authorization functionality.
package auth

import (
	"time"

	"github.com/stagehand-ai/stagehand/pkg/models"
)

// AccountService manages accounts and authentication
type AccountService interface {
	// Authenticate verifies credentials and returns an account ID
	Authenticate(username, password string) (string, error)

	// ValidateToken verifies a bearer token and returns an account ID
	ValidateToken(token string) (string, error)

	// CreateAccount creates a new account with the given role
	CreateAccount(username, password, role string) (string, error)

	// DeleteAccount removes an account
	DeleteAccount(accountID string) error

	// GetAccount retrieves account information
	GetAccount(accountID string) (Account, error)

	// GetActor resolves an account into the actor identity attached to
	// approvals and audit records
	GetActor(accountID string) (models.Actor, error)

	// ListAccounts returns all accounts
	ListAccounts() ([]Account, error)
}

// Account roles
const (
	// RoleAdmin may manage accounts and governance
	RoleAdmin = "admin"

	// RoleOperator may run tasks and workflows
	RoleOperator = "operator"
)

// Account represents an operator of the system
type Account struct {
	// ID of the account
	ID string `json:"id"`

	// Username for the account
	Username string `json:"username"`

	// Role of the account (e.g. "admin", "operator")
	Role string `json:"role"`

	// PasswordHash is the hashed password (not exposed via API)
	PasswordHash string `json:"-"`

	// APIToken for authentication
	APIToken string `json:"-"`

	// CreatedAt is when the account was created
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the account was last updated
	UpdatedAt time.Time `json:"updated_at"`
}

// Actor converts the account to the actor identity used by governance
func (a Account) Actor() models.Actor {
	return models.Actor{ID: a.ID, Username: a.Username, Role: a.Role}
}
