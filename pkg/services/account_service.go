// Package services provides the account and token services backing the API
// layer.
package services

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/stagehand-ai/stagehand/pkg/auth"
	"github.com/stagehand-ai/stagehand/pkg/models"
	"github.com/stagehand-ai/stagehand/pkg/storage"
)

// AccountService implements the auth.AccountService interface
type AccountService struct {
	store storage.AccountStore
}

// NewAccountService creates a new account service with the given storage backend
func NewAccountService(store storage.AccountStore) *AccountService {
	return &AccountService{
		store: store,
	}
}

// Authenticate verifies credentials and returns an account ID
func (s *AccountService) Authenticate(username, password string) (string, error) {
	if username == "" || password == "" {
		return "", fmt.Errorf("username and password are required")
	}

	account, err := s.store.GetAccountByUsername(username)
	if err != nil {
		return "", fmt.Errorf("authentication failed")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return "", fmt.Errorf("authentication failed")
	}

	return account.ID, nil
}

// ValidateToken verifies an API token and returns an account ID
func (s *AccountService) ValidateToken(token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("token is required")
	}

	account, err := s.store.GetAccountByToken(token)
	if err != nil {
		return "", fmt.Errorf("invalid token")
	}

	return account.ID, nil
}

// CreateAccount creates a new account with the given role
func (s *AccountService) CreateAccount(username, password, role string) (string, error) {
	if username == "" || password == "" {
		return "", fmt.Errorf("username and password are required")
	}
	if role == "" {
		role = auth.RoleOperator
	}

	// Usernames are unique
	_, err := s.store.GetAccountByUsername(username)
	if err == nil {
		return "", fmt.Errorf("username already exists")
	}
	if err != storage.ErrAccountNotFound {
		return "", fmt.Errorf("failed to check username availability: %w", err)
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	apiToken, err := generateAPIToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate API token: %w", err)
	}

	accountID := uuid.New().String()
	now := time.Now().UTC()
	account := auth.Account{
		ID:           accountID,
		Username:     username,
		Role:         role,
		PasswordHash: string(passwordHash),
		APIToken:     apiToken,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.store.SaveAccount(account); err != nil {
		return "", fmt.Errorf("failed to save account: %w", err)
	}

	return accountID, nil
}

// DeleteAccount removes an account
func (s *AccountService) DeleteAccount(accountID string) error {
	if accountID == "" {
		return fmt.Errorf("account ID is required")
	}

	if err := s.store.DeleteAccount(accountID); err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}

	return nil
}

// GetAccount retrieves account information
func (s *AccountService) GetAccount(accountID string) (auth.Account, error) {
	if accountID == "" {
		return auth.Account{}, fmt.Errorf("account ID is required")
	}

	account, err := s.store.GetAccount(accountID)
	if err != nil {
		return auth.Account{}, fmt.Errorf("failed to get account: %w", err)
	}

	return account, nil
}

// GetActor returns the actor identity of an account for audit records
func (s *AccountService) GetActor(accountID string) (models.Actor, error) {
	account, err := s.GetAccount(accountID)
	if err != nil {
		return models.Actor{}, err
	}
	return account.Actor(), nil
}

// ListAccounts returns all accounts (admin only)
func (s *AccountService) ListAccounts() ([]auth.Account, error) {
	accounts, err := s.store.ListAccounts()
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	return accounts, nil
}

// generateAPIToken generates a secure random API token
func generateAPIToken() (string, error) {
	bytes := make([]byte, 32) // 256 bits
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
