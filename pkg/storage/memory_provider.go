package storage

import (
	"sort"
	"sync"

	"github.com/stagehand-ai/stagehand/pkg/auth"
	"github.com/stagehand-ai/stagehand/pkg/models"
)

// MemoryProvider implements the Provider interface using in-memory storage
type MemoryProvider struct {
	taskStore       *MemoryTaskStore
	workflowStore   *MemoryWorkflowStore
	runStore        *MemoryWorkflowRunStore
	approvalStore   *MemoryApprovalStore
	governanceStore *MemoryGovernanceStore
	auditStore      *MemoryAuditStore
	accountStore    *MemoryAccountStore
}

// NewMemoryProvider creates a new in-memory storage provider
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		taskStore:       &MemoryTaskStore{tasks: make(map[string]models.Task)},
		workflowStore:   &MemoryWorkflowStore{workflows: make(map[string]models.Workflow)},
		runStore:        &MemoryWorkflowRunStore{runs: make(map[string]models.WorkflowRun)},
		approvalStore:   &MemoryApprovalStore{approvals: make(map[string]models.ApprovalRequest)},
		governanceStore: &MemoryGovernanceStore{records: make(map[string]models.ServerGovernance)},
		auditStore:      &MemoryAuditStore{},
		accountStore:    &MemoryAccountStore{accounts: make(map[string]auth.Account)},
	}
}

// Initialize sets up the storage backend
func (p *MemoryProvider) Initialize() error {
	// Nothing to initialize for in-memory storage
	return nil
}

// Close cleans up resources
func (p *MemoryProvider) Close() error {
	// Nothing to close for in-memory storage
	return nil
}

// GetTaskStore returns a store for tasks
func (p *MemoryProvider) GetTaskStore() TaskStore { return p.taskStore }

// GetWorkflowStore returns a store for workflow definitions
func (p *MemoryProvider) GetWorkflowStore() WorkflowStore { return p.workflowStore }

// GetWorkflowRunStore returns a store for workflow runs
func (p *MemoryProvider) GetWorkflowRunStore() WorkflowRunStore { return p.runStore }

// GetApprovalStore returns a store for approval requests
func (p *MemoryProvider) GetApprovalStore() ApprovalStore { return p.approvalStore }

// GetGovernanceStore returns a store for server governance records
func (p *MemoryProvider) GetGovernanceStore() GovernanceStore { return p.governanceStore }

// GetAuditStore returns a store for audit records
func (p *MemoryProvider) GetAuditStore() AuditStore { return p.auditStore }

// GetAccountStore returns a store for account data
func (p *MemoryProvider) GetAccountStore() AccountStore { return p.accountStore }

// MemoryTaskStore implements the TaskStore interface using in-memory storage
type MemoryTaskStore struct {
	tasks map[string]models.Task
	mu    sync.RWMutex
}

// SaveTask persists a task
func (s *MemoryTaskStore) SaveTask(task models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks[task.ID] = task
	return nil
}

// GetTask retrieves a task by ID
func (s *MemoryTaskStore) GetTask(id string) (models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[id]
	if !ok {
		return models.Task{}, ErrTaskNotFound
	}
	return task, nil
}

// ListTasks returns all tasks
func (s *MemoryTaskStore) ListTasks() ([]models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := make([]models.Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		tasks = append(tasks, task)
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
	return tasks, nil
}

// DeleteTask removes a task
func (s *MemoryTaskStore) DeleteTask(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return ErrTaskNotFound
	}
	delete(s.tasks, id)
	return nil
}

// MemoryWorkflowStore implements the WorkflowStore interface using in-memory storage
type MemoryWorkflowStore struct {
	workflows map[string]models.Workflow
	mu        sync.RWMutex
}

// SaveWorkflow persists a workflow definition
func (s *MemoryWorkflowStore) SaveWorkflow(workflow models.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.workflows[workflow.ID] = workflow
	return nil
}

// GetWorkflow retrieves a workflow by ID
func (s *MemoryWorkflowStore) GetWorkflow(id string) (models.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	workflow, ok := s.workflows[id]
	if !ok {
		return models.Workflow{}, ErrWorkflowNotFound
	}
	return workflow, nil
}

// ListWorkflows returns all workflow definitions
func (s *MemoryWorkflowStore) ListWorkflows() ([]models.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	workflows := make([]models.Workflow, 0, len(s.workflows))
	for _, workflow := range s.workflows {
		workflows = append(workflows, workflow)
	}
	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].CreatedAt.After(workflows[j].CreatedAt)
	})
	return workflows, nil
}

// DeleteWorkflow removes a workflow definition
func (s *MemoryWorkflowStore) DeleteWorkflow(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.workflows[id]; !ok {
		return ErrWorkflowNotFound
	}
	delete(s.workflows, id)
	return nil
}

// MemoryWorkflowRunStore implements the WorkflowRunStore interface using in-memory storage
type MemoryWorkflowRunStore struct {
	runs map[string]models.WorkflowRun
	mu   sync.RWMutex
}

// SaveRun persists a workflow run
func (s *MemoryWorkflowRunStore) SaveRun(run models.WorkflowRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[run.ID] = run
	return nil
}

// GetRun retrieves a run by ID
func (s *MemoryWorkflowRunStore) GetRun(id string) (models.WorkflowRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return models.WorkflowRun{}, ErrRunNotFound
	}
	return run, nil
}

// ListRuns returns all runs for a workflow, most recent first
func (s *MemoryWorkflowRunStore) ListRuns(workflowID string) ([]models.WorkflowRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]models.WorkflowRun, 0)
	for _, run := range s.runs {
		if run.WorkflowID == workflowID {
			runs = append(runs, run)
		}
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	return runs, nil
}

// MemoryApprovalStore implements the ApprovalStore interface using in-memory storage
type MemoryApprovalStore struct {
	approvals map[string]models.ApprovalRequest
	mu        sync.RWMutex
}

// SaveApproval persists an approval request
func (s *MemoryApprovalStore) SaveApproval(approval models.ApprovalRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.approvals[approval.ID] = approval
	return nil
}

// GetApproval retrieves an approval request by ID
func (s *MemoryApprovalStore) GetApproval(id string) (models.ApprovalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	approval, ok := s.approvals[id]
	if !ok {
		return models.ApprovalRequest{}, ErrApprovalNotFound
	}
	return approval, nil
}

// MemoryGovernanceStore implements the GovernanceStore interface using in-memory storage
type MemoryGovernanceStore struct {
	records map[string]models.ServerGovernance
	mu      sync.RWMutex
}

// SaveGovernance persists a governance record
func (s *MemoryGovernanceStore) SaveGovernance(record models.ServerGovernance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[record.ID] = record
	return nil
}

// GetGovernance retrieves a governance record by server ID
func (s *MemoryGovernanceStore) GetGovernance(serverID string) (models.ServerGovernance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[serverID]
	if !ok {
		return models.ServerGovernance{}, ErrGovernanceNotFound
	}
	return record, nil
}

// ListGovernance returns all governance records
func (s *MemoryGovernanceStore) ListGovernance() ([]models.ServerGovernance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]models.ServerGovernance, 0, len(s.records))
	for _, record := range s.records {
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].ID < records[j].ID
	})
	return records, nil
}

// MemoryAuditStore implements the AuditStore interface using in-memory storage
type MemoryAuditStore struct {
	records []models.AuditRecord
	mu      sync.RWMutex
}

// AppendAudit appends an audit record
func (s *MemoryAuditStore) AppendAudit(record models.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, record)
	return nil
}

// ListAudit returns audit records matching the filter, most recent first
func (s *MemoryAuditStore) ListAudit(filter AuditFilter) ([]models.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]models.AuditRecord, 0)
	// Walk backwards so the newest records come first
	for i := len(s.records) - 1; i >= 0; i-- {
		record := s.records[i]
		if filter.ServerID != "" && record.Server.ServerID != filter.ServerID {
			continue
		}
		if filter.Decision != "" && record.Decision != filter.Decision {
			continue
		}
		matched = append(matched, record)
		if filter.Limit > 0 && len(matched) >= filter.Limit {
			break
		}
	}
	return matched, nil
}

// MemoryAccountStore implements the AccountStore interface using in-memory storage
type MemoryAccountStore struct {
	accounts map[string]auth.Account
	mu       sync.RWMutex
}

// SaveAccount persists an account
func (s *MemoryAccountStore) SaveAccount(account auth.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts[account.ID] = account
	return nil
}

// GetAccount retrieves an account by ID
func (s *MemoryAccountStore) GetAccount(id string) (auth.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[id]
	if !ok {
		return auth.Account{}, ErrAccountNotFound
	}
	return account, nil
}

// GetAccountByUsername retrieves an account by username
func (s *MemoryAccountStore) GetAccountByUsername(username string) (auth.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, account := range s.accounts {
		if account.Username == username {
			return account, nil
		}
	}
	return auth.Account{}, ErrAccountNotFound
}

// GetAccountByToken retrieves an account by API token
func (s *MemoryAccountStore) GetAccountByToken(token string) (auth.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, account := range s.accounts {
		if account.APIToken != "" && account.APIToken == token {
			return account, nil
		}
	}
	return auth.Account{}, ErrAccountNotFound
}

// ListAccounts returns all accounts
func (s *MemoryAccountStore) ListAccounts() ([]auth.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts := make([]auth.Account, 0, len(s.accounts))
	for _, account := range s.accounts {
		accounts = append(accounts, account)
	}
	return accounts, nil
}

// DeleteAccount removes an account
func (s *MemoryAccountStore) DeleteAccount(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[id]; !ok {
		return ErrAccountNotFound
	}
	delete(s.accounts, id)
	return nil
}
