// Package storage provides interfaces for persistent storage.
package storage

import (
	"errors"

	"github.com/stagehand-ai/stagehand/pkg/auth"
	"github.com/stagehand-ai/stagehand/pkg/models"
)

// Errors returned by storage backends
var (
	ErrTaskNotFound       = errors.New("task not found")
	ErrWorkflowNotFound   = errors.New("workflow not found")
	ErrRunNotFound        = errors.New("workflow run not found")
	ErrApprovalNotFound   = errors.New("approval not found")
	ErrGovernanceNotFound = errors.New("governance record not found")
	ErrAccountNotFound    = errors.New("account not found")
)

// Provider defines the interface for persistence backends
type Provider interface {
	// Initialize sets up the storage backend
	Initialize() error

	// Close cleans up resources
	Close() error

	// GetTaskStore returns a store for tasks
	GetTaskStore() TaskStore

	// GetWorkflowStore returns a store for workflow definitions
	GetWorkflowStore() WorkflowStore

	// GetWorkflowRunStore returns a store for workflow runs
	GetWorkflowRunStore() WorkflowRunStore

	// GetApprovalStore returns a store for approval requests
	GetApprovalStore() ApprovalStore

	// GetGovernanceStore returns a store for server governance records
	GetGovernanceStore() GovernanceStore

	// GetAuditStore returns a store for audit records
	GetAuditStore() AuditStore

	// GetAccountStore returns a store for account data
	GetAccountStore() AccountStore
}

// TaskStore manages task persistence
type TaskStore interface {
	// SaveTask persists a task, overwriting any previous state
	SaveTask(task models.Task) error

	// GetTask retrieves a task by ID
	GetTask(id string) (models.Task, error)

	// ListTasks returns all tasks
	ListTasks() ([]models.Task, error)

	// DeleteTask removes a task
	DeleteTask(id string) error
}

// WorkflowStore manages workflow definition persistence
type WorkflowStore interface {
	// SaveWorkflow persists a workflow definition
	SaveWorkflow(workflow models.Workflow) error

	// GetWorkflow retrieves a workflow by ID
	GetWorkflow(id string) (models.Workflow, error)

	// ListWorkflows returns all workflow definitions
	ListWorkflows() ([]models.Workflow, error)

	// DeleteWorkflow removes a workflow definition
	DeleteWorkflow(id string) error
}

// WorkflowRunStore manages workflow run persistence. Runs are append-only;
// there is no delete.
type WorkflowRunStore interface {
	// SaveRun persists a workflow run, overwriting any previous state
	SaveRun(run models.WorkflowRun) error

	// GetRun retrieves a run by ID
	GetRun(id string) (models.WorkflowRun, error)

	// ListRuns returns all runs for a workflow, most recent first
	ListRuns(workflowID string) ([]models.WorkflowRun, error)
}

// ApprovalStore manages approval request persistence
type ApprovalStore interface {
	// SaveApproval persists an approval request
	SaveApproval(approval models.ApprovalRequest) error

	// GetApproval retrieves an approval request by ID
	GetApproval(id string) (models.ApprovalRequest, error)
}

// GovernanceStore manages server governance record persistence
type GovernanceStore interface {
	// SaveGovernance persists a governance record
	SaveGovernance(record models.ServerGovernance) error

	// GetGovernance retrieves a governance record by server ID
	GetGovernance(serverID string) (models.ServerGovernance, error)

	// ListGovernance returns all governance records
	ListGovernance() ([]models.ServerGovernance, error)
}

// AuditFilter narrows an audit listing
type AuditFilter struct {
	// Limit caps the number of records returned; 0 means no cap
	Limit int

	// ServerID filters by target server when non-empty
	ServerID string

	// Decision filters by governance decision when non-empty
	Decision models.Decision
}

// AuditStore manages audit record persistence. Appends are serialized by the
// recorder in pkg/audit; stores only need to be safe for concurrent use.
type AuditStore interface {
	// AppendAudit appends an audit record
	AppendAudit(record models.AuditRecord) error

	// ListAudit returns audit records matching the filter, most recent first
	ListAudit(filter AuditFilter) ([]models.AuditRecord, error)
}

// AccountStore manages account persistence
type AccountStore interface {
	// SaveAccount persists an account
	SaveAccount(account auth.Account) error

	// GetAccount retrieves an account by ID
	GetAccount(id string) (auth.Account, error)

	// GetAccountByUsername retrieves an account by username
	GetAccountByUsername(username string) (auth.Account, error)

	// GetAccountByToken retrieves an account by API token
	GetAccountByToken(token string) (auth.Account, error)

	// ListAccounts returns all accounts
	ListAccounts() ([]auth.Account, error)

	// DeleteAccount removes an account
	DeleteAccount(id string) error
}
