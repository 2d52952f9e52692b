package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/stagehand-ai/stagehand/pkg/middleware"
)

// LoginRequest represents a login request
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse represents a login response
type LoginResponse struct {
	Token     string `json:"token"`
	AccountID string `json:"account_id"`
	Username  string `json:"username"`
	Role      string `json:"role"`
}

// handleLogin handles user login and returns a JWT token
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
		return
	}

	accountID, err := s.accountService.Authenticate(req.Username, req.Password)
	if err != nil {
		writeErrorCode(w, http.StatusUnauthorized, "AUTH_FAILED", "authentication failed")
		return
	}

	account, err := s.accountService.GetAccount(accountID)
	if err != nil {
		writeError(w, err)
		return
	}

	token, err := s.jwtService.GenerateToken(account)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		Token:     token,
		AccountID: accountID,
		Username:  account.Username,
		Role:      account.Role,
	})
}

// CreateAccountRequest represents an account creation request
type CreateAccountRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

// handleCreateAccount creates a new account
func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
		return
	}

	accountID, err := s.accountService.CreateAccount(req.Username, req.Password, req.Role)
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	account, err := s.accountService.GetAccount(accountID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, account)
}

// handleListAccounts returns all accounts
func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.accountService.ListAccounts()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"accounts": accounts})
}

// handleGetCurrentAccount returns the authenticated account
func (s *Server) handleGetCurrentAccount(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountID(r)
	if !ok {
		writeErrorCode(w, http.StatusUnauthorized, "AUTH_FAILED", "authentication required")
		return
	}

	account, err := s.accountService.GetAccount(accountID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// handleDeleteAccount removes an account
func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.accountService.DeleteAccount(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// actor resolves the authenticated account into an audit actor
func (s *Server) actor(r *http.Request) (string, bool) {
	return middleware.GetAccountID(r)
}
