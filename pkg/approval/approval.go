// Package approval implements the approval lifecycle: creation, TTL expiry
// and single-use consumption of approval requests.
package approval

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stagehand-ai/stagehand/pkg/logging"
	"github.com/stagehand-ai/stagehand/pkg/models"
	"github.com/stagehand-ai/stagehand/pkg/storage"
)

// DefaultTTL is how long an approval request stays consumable
const DefaultTTL = 10 * time.Minute

// Error is a terminal approval lifecycle failure. Callers must start a fresh
// approval cycle rather than retry the same approval ID.
type Error struct {
	// Code is the machine-readable error code
	Code string

	// Message is the human-readable error message
	Message string
}

// Error implements the error interface
func (e *Error) Error() string { return e.Message }

// Lifecycle error codes
const (
	CodeNotFound = "MCP_APPROVAL_NOT_FOUND"
	CodeConsumed = "MCP_APPROVAL_CONSUMED"
	CodeExpired  = "MCP_APPROVAL_EXPIRED"
)

// Manager creates, stores, expires and consumes approval requests
type Manager struct {
	store  storage.ApprovalStore
	logger logging.Logger
	now    func() time.Time

	// mu serializes the consume check-and-set so that two concurrent
	// consume calls on one approval yield exactly one success
	mu sync.Mutex
}

// NewManager creates an approval manager backed by the given store
func NewManager(store storage.ApprovalStore, logger logging.Logger) *Manager {
	return &Manager{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// CreateOptions carries the optional fields of an approval request
type CreateOptions struct {
	// Reason explains why approval is required
	Reason string

	// TaskID scopes the approval to a task step
	TaskID string

	// StepID scopes the approval to a task step
	StepID string

	// TTL overrides DefaultTTL when positive
	TTL time.Duration
}

// Create issues a fresh approval request with a new identifier and an
// expiry of now + TTL.
func (m *Manager) Create(serverID, toolName string, input map[string]interface{}, actor models.Actor, opts CreateOptions) (models.ApprovalRequest, error) {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	now := m.now().UTC()
	request := models.ApprovalRequest{
		ID:          uuid.New().String(),
		ServerID:    serverID,
		ToolName:    toolName,
		Input:       input,
		Reason:      opts.Reason,
		TaskID:      opts.TaskID,
		StepID:      opts.StepID,
		Actor:       actor,
		RequestedAt: now,
		ExpiresAt:   now.Add(ttl),
	}

	if err := m.store.SaveApproval(request); err != nil {
		return models.ApprovalRequest{}, fmt.Errorf("failed to persist approval request: %w", err)
	}

	m.logger.Info("approval request created",
		logging.F("approval_id", request.ID),
		logging.F("server_id", serverID),
		logging.F("tool_name", toolName),
		logging.F("expires_at", request.ExpiresAt))

	return request, nil
}

// Get returns the stored approval request
func (m *Manager) Get(id string) (models.ApprovalRequest, error) {
	request, err := m.store.GetApproval(id)
	if err == storage.ErrApprovalNotFound {
		return models.ApprovalRequest{}, &Error{Code: CodeNotFound, Message: "approval request not found"}
	}
	if err != nil {
		return models.ApprovalRequest{}, fmt.Errorf("failed to load approval request: %w", err)
	}
	return request, nil
}

// Consume marks an approval as used. Failure order: not found, already
// consumed, expired. Consumption is atomic: concurrent calls on the same
// approval produce exactly one success.
func (m *Manager) Consume(id string) (models.ApprovalRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	request, err := m.Get(id)
	if err != nil {
		return models.ApprovalRequest{}, err
	}

	if request.Consumed() {
		return models.ApprovalRequest{}, &Error{Code: CodeConsumed, Message: "approval request already consumed"}
	}

	now := m.now().UTC()
	if request.Expired(now) {
		return models.ApprovalRequest{}, &Error{Code: CodeExpired, Message: "approval request expired"}
	}

	request.ConsumedAt = &now
	if err := m.store.SaveApproval(request); err != nil {
		return models.ApprovalRequest{}, fmt.Errorf("failed to persist approval consumption: %w", err)
	}

	m.logger.Info("approval request consumed",
		logging.F("approval_id", request.ID),
		logging.F("server_id", request.ServerID),
		logging.F("tool_name", request.ToolName))

	return request, nil
}
