package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/stagehand-ai/stagehand/pkg/auth"
	"github.com/stagehand-ai/stagehand/pkg/models"
)

// PostgreSQLProvider implements the Provider interface using PostgreSQL.
// Records are stored as JSONB documents keyed by ID, with a few extracted
// columns for filtering.
type PostgreSQLProvider struct {
	db              *sql.DB
	taskStore       *PostgreSQLTaskStore
	workflowStore   *PostgreSQLWorkflowStore
	runStore        *PostgreSQLWorkflowRunStore
	approvalStore   *PostgreSQLApprovalStore
	governanceStore *PostgreSQLGovernanceStore
	auditStore      *PostgreSQLAuditStore
	accountStore    *PostgreSQLAccountStore
}

// PostgreSQLProviderConfig contains configuration for the PostgreSQL provider
type PostgreSQLProviderConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewPostgreSQLProvider creates a new PostgreSQL storage provider
func NewPostgreSQLProvider(config PostgreSQLProviderConfig) (*PostgreSQLProvider, error) {
	// Set default port if not specified
	if config.Port == 0 {
		config.Port = 5432
	}

	// Set default SSL mode if not specified
	if config.SSLMode == "" {
		config.SSLMode = "disable"
	}

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.Database, config.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	provider := &PostgreSQLProvider{db: db}
	provider.taskStore = &PostgreSQLTaskStore{db: db}
	provider.workflowStore = &PostgreSQLWorkflowStore{db: db}
	provider.runStore = &PostgreSQLWorkflowRunStore{db: db}
	provider.approvalStore = &PostgreSQLApprovalStore{db: db}
	provider.governanceStore = &PostgreSQLGovernanceStore{db: db}
	provider.auditStore = &PostgreSQLAuditStore{db: db}
	provider.accountStore = &PostgreSQLAccountStore{db: db}

	return provider, nil
}

// Initialize sets up the storage backend
func (p *PostgreSQLProvider) Initialize() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL,
			document JSONB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS workflows (
			id TEXT PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL,
			document JSONB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS workflow_runs (
			id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			document JSONB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_workflow_runs_workflow_id ON workflow_runs (workflow_id)`,
		`CREATE TABLE IF NOT EXISTS approvals (
			id TEXT PRIMARY KEY,
			document JSONB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS governance (
			server_id TEXT PRIMARY KEY,
			document JSONB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS audit_records (
			seq BIGSERIAL PRIMARY KEY,
			server_id TEXT NOT NULL,
			decision TEXT NOT NULL,
			document JSONB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_records_server_id ON audit_records (server_id)`,
		`CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			username TEXT UNIQUE NOT NULL,
			api_token TEXT,
			document JSONB NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := p.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// Close cleans up resources
func (p *PostgreSQLProvider) Close() error {
	return p.db.Close()
}

// GetTaskStore returns a store for tasks
func (p *PostgreSQLProvider) GetTaskStore() TaskStore { return p.taskStore }

// GetWorkflowStore returns a store for workflow definitions
func (p *PostgreSQLProvider) GetWorkflowStore() WorkflowStore { return p.workflowStore }

// GetWorkflowRunStore returns a store for workflow runs
func (p *PostgreSQLProvider) GetWorkflowRunStore() WorkflowRunStore { return p.runStore }

// GetApprovalStore returns a store for approval requests
func (p *PostgreSQLProvider) GetApprovalStore() ApprovalStore { return p.approvalStore }

// GetGovernanceStore returns a store for server governance records
func (p *PostgreSQLProvider) GetGovernanceStore() GovernanceStore { return p.governanceStore }

// GetAuditStore returns a store for audit records
func (p *PostgreSQLProvider) GetAuditStore() AuditStore { return p.auditStore }

// GetAccountStore returns a store for account data
func (p *PostgreSQLProvider) GetAccountStore() AccountStore { return p.accountStore }

// PostgreSQLTaskStore implements the TaskStore interface using PostgreSQL
type PostgreSQLTaskStore struct {
	db *sql.DB
}

// SaveTask persists a task
func (s *PostgreSQLTaskStore) SaveTask(task models.Task) error {
	document, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO tasks (id, created_at, document) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET document = $3`,
		task.ID, task.CreatedAt, document)
	if err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}
	return nil
}

// GetTask retrieves a task by ID
func (s *PostgreSQLTaskStore) GetTask(id string) (models.Task, error) {
	var document []byte
	err := s.db.QueryRow(`SELECT document FROM tasks WHERE id = $1`, id).Scan(&document)
	if err == sql.ErrNoRows {
		return models.Task{}, ErrTaskNotFound
	}
	if err != nil {
		return models.Task{}, fmt.Errorf("failed to get task: %w", err)
	}

	var task models.Task
	if err := json.Unmarshal(document, &task); err != nil {
		return models.Task{}, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	return task, nil
}

// ListTasks returns all tasks, most recent first
func (s *PostgreSQLTaskStore) ListTasks() ([]models.Task, error) {
	rows, err := s.db.Query(`SELECT document FROM tasks ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]models.Task, 0)
	for rows.Next() {
		var document []byte
		if err := rows.Scan(&document); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		var task models.Task
		if err := json.Unmarshal(document, &task); err != nil {
			return nil, fmt.Errorf("failed to unmarshal task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// DeleteTask removes a task
func (s *PostgreSQLTaskStore) DeleteTask(id string) error {
	result, err := s.db.Exec(`DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// PostgreSQLWorkflowStore implements the WorkflowStore interface using PostgreSQL
type PostgreSQLWorkflowStore struct {
	db *sql.DB
}

// SaveWorkflow persists a workflow definition
func (s *PostgreSQLWorkflowStore) SaveWorkflow(workflow models.Workflow) error {
	document, err := json.Marshal(workflow)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO workflows (id, created_at, document) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET document = $3`,
		workflow.ID, workflow.CreatedAt, document)
	if err != nil {
		return fmt.Errorf("failed to save workflow: %w", err)
	}
	return nil
}

// GetWorkflow retrieves a workflow by ID
func (s *PostgreSQLWorkflowStore) GetWorkflow(id string) (models.Workflow, error) {
	var document []byte
	err := s.db.QueryRow(`SELECT document FROM workflows WHERE id = $1`, id).Scan(&document)
	if err == sql.ErrNoRows {
		return models.Workflow{}, ErrWorkflowNotFound
	}
	if err != nil {
		return models.Workflow{}, fmt.Errorf("failed to get workflow: %w", err)
	}

	var workflow models.Workflow
	if err := json.Unmarshal(document, &workflow); err != nil {
		return models.Workflow{}, fmt.Errorf("failed to unmarshal workflow: %w", err)
	}
	return workflow, nil
}

// ListWorkflows returns all workflow definitions, most recent first
func (s *PostgreSQLWorkflowStore) ListWorkflows() ([]models.Workflow, error) {
	rows, err := s.db.Query(`SELECT document FROM workflows ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	defer rows.Close()

	workflows := make([]models.Workflow, 0)
	for rows.Next() {
		var document []byte
		if err := rows.Scan(&document); err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}
		var workflow models.Workflow
		if err := json.Unmarshal(document, &workflow); err != nil {
			return nil, fmt.Errorf("failed to unmarshal workflow: %w", err)
		}
		workflows = append(workflows, workflow)
	}
	return workflows, rows.Err()
}

// DeleteWorkflow removes a workflow definition
func (s *PostgreSQLWorkflowStore) DeleteWorkflow(id string) error {
	result, err := s.db.Exec(`DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return ErrWorkflowNotFound
	}
	return nil
}

// PostgreSQLWorkflowRunStore implements the WorkflowRunStore interface using PostgreSQL
type PostgreSQLWorkflowRunStore struct {
	db *sql.DB
}

// SaveRun persists a workflow run
func (s *PostgreSQLWorkflowRunStore) SaveRun(run models.WorkflowRun) error {
	document, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO workflow_runs (id, workflow_id, created_at, document) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET document = $4`,
		run.ID, run.WorkflowID, run.CreatedAt, document)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID
func (s *PostgreSQLWorkflowRunStore) GetRun(id string) (models.WorkflowRun, error) {
	var document []byte
	err := s.db.QueryRow(`SELECT document FROM workflow_runs WHERE id = $1`, id).Scan(&document)
	if err == sql.ErrNoRows {
		return models.WorkflowRun{}, ErrRunNotFound
	}
	if err != nil {
		return models.WorkflowRun{}, fmt.Errorf("failed to get run: %w", err)
	}

	var run models.WorkflowRun
	if err := json.Unmarshal(document, &run); err != nil {
		return models.WorkflowRun{}, fmt.Errorf("failed to unmarshal run: %w", err)
	}
	return run, nil
}

// ListRuns returns all runs for a workflow, most recent first
func (s *PostgreSQLWorkflowRunStore) ListRuns(workflowID string) ([]models.WorkflowRun, error) {
	rows, err := s.db.Query(`
		SELECT document FROM workflow_runs WHERE workflow_id = $1 ORDER BY created_at DESC`,
		workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]models.WorkflowRun, 0)
	for rows.Next() {
		var document []byte
		if err := rows.Scan(&document); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		var run models.WorkflowRun
		if err := json.Unmarshal(document, &run); err != nil {
			return nil, fmt.Errorf("failed to unmarshal run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// PostgreSQLApprovalStore implements the ApprovalStore interface using PostgreSQL
type PostgreSQLApprovalStore struct {
	db *sql.DB
}

// SaveApproval persists an approval request
func (s *PostgreSQLApprovalStore) SaveApproval(approval models.ApprovalRequest) error {
	document, err := json.Marshal(approval)
	if err != nil {
		return fmt.Errorf("failed to marshal approval: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO approvals (id, document) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET document = $2`,
		approval.ID, document)
	if err != nil {
		return fmt.Errorf("failed to save approval: %w", err)
	}
	return nil
}

// GetApproval retrieves an approval request by ID
func (s *PostgreSQLApprovalStore) GetApproval(id string) (models.ApprovalRequest, error) {
	var document []byte
	err := s.db.QueryRow(`SELECT document FROM approvals WHERE id = $1`, id).Scan(&document)
	if err == sql.ErrNoRows {
		return models.ApprovalRequest{}, ErrApprovalNotFound
	}
	if err != nil {
		return models.ApprovalRequest{}, fmt.Errorf("failed to get approval: %w", err)
	}

	var approval models.ApprovalRequest
	if err := json.Unmarshal(document, &approval); err != nil {
		return models.ApprovalRequest{}, fmt.Errorf("failed to unmarshal approval: %w", err)
	}
	return approval, nil
}

// PostgreSQLGovernanceStore implements the GovernanceStore interface using PostgreSQL
type PostgreSQLGovernanceStore struct {
	db *sql.DB
}

// SaveGovernance persists a governance record
func (s *PostgreSQLGovernanceStore) SaveGovernance(record models.ServerGovernance) error {
	document, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal governance record: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO governance (server_id, document) VALUES ($1, $2)
		ON CONFLICT (server_id) DO UPDATE SET document = $2`,
		record.ID, document)
	if err != nil {
		return fmt.Errorf("failed to save governance record: %w", err)
	}
	return nil
}

// GetGovernance retrieves a governance record by server ID
func (s *PostgreSQLGovernanceStore) GetGovernance(serverID string) (models.ServerGovernance, error) {
	var document []byte
	err := s.db.QueryRow(`SELECT document FROM governance WHERE server_id = $1`, serverID).Scan(&document)
	if err == sql.ErrNoRows {
		return models.ServerGovernance{}, ErrGovernanceNotFound
	}
	if err != nil {
		return models.ServerGovernance{}, fmt.Errorf("failed to get governance record: %w", err)
	}

	var record models.ServerGovernance
	if err := json.Unmarshal(document, &record); err != nil {
		return models.ServerGovernance{}, fmt.Errorf("failed to unmarshal governance record: %w", err)
	}
	return record, nil
}

// ListGovernance returns all governance records
func (s *PostgreSQLGovernanceStore) ListGovernance() ([]models.ServerGovernance, error) {
	rows, err := s.db.Query(`SELECT document FROM governance ORDER BY server_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list governance records: %w", err)
	}
	defer rows.Close()

	records := make([]models.ServerGovernance, 0)
	for rows.Next() {
		var document []byte
		if err := rows.Scan(&document); err != nil {
			return nil, fmt.Errorf("failed to scan governance record: %w", err)
		}
		var record models.ServerGovernance
		if err := json.Unmarshal(document, &record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal governance record: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// PostgreSQLAuditStore implements the AuditStore interface using PostgreSQL
type PostgreSQLAuditStore struct {
	db *sql.DB
}

// AppendAudit appends an audit record
func (s *PostgreSQLAuditStore) AppendAudit(record models.AuditRecord) error {
	document, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO audit_records (server_id, decision, document) VALUES ($1, $2, $3)`,
		record.Server.ServerID, string(record.Decision), document)
	if err != nil {
		return fmt.Errorf("failed to append audit record: %w", err)
	}
	return nil
}

// ListAudit returns audit records matching the filter, most recent first.
// Records that fail to unmarshal are skipped rather than failing the read.
func (s *PostgreSQLAuditStore) ListAudit(filter AuditFilter) ([]models.AuditRecord, error) {
	query := `SELECT document FROM audit_records WHERE 1=1`
	args := []interface{}{}

	if filter.ServerID != "" {
		args = append(args, filter.ServerID)
		query += fmt.Sprintf(` AND server_id = $%d`, len(args))
	}
	if filter.Decision != "" {
		args = append(args, string(filter.Decision))
		query += fmt.Sprintf(` AND decision = $%d`, len(args))
	}
	query += ` ORDER BY seq DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}
	defer rows.Close()

	records := make([]models.AuditRecord, 0)
	for rows.Next() {
		var document []byte
		if err := rows.Scan(&document); err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		var record models.AuditRecord
		if err := json.Unmarshal(document, &record); err != nil {
			// Skip unparseable records
			continue
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// PostgreSQLAccountStore implements the AccountStore interface using PostgreSQL
type PostgreSQLAccountStore struct {
	db *sql.DB
}

// SaveAccount persists an account
func (s *PostgreSQLAccountStore) SaveAccount(account auth.Account) error {
	document, err := json.Marshal(accountDocument{
		Account:      account,
		PasswordHash: account.PasswordHash,
		APIToken:     account.APIToken,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO accounts (id, username, api_token, document) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET username = $2, api_token = $3, document = $4`,
		account.ID, account.Username, account.APIToken, document)
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

// accountDocument keeps the hash and token in the stored document even though
// the API-facing struct hides them from JSON
type accountDocument struct {
	auth.Account
	PasswordHash string `json:"password_hash"`
	APIToken     string `json:"api_token"`
}

func (s *PostgreSQLAccountStore) scanAccount(row *sql.Row) (auth.Account, error) {
	var document []byte
	err := row.Scan(&document)
	if err == sql.ErrNoRows {
		return auth.Account{}, ErrAccountNotFound
	}
	if err != nil {
		return auth.Account{}, fmt.Errorf("failed to get account: %w", err)
	}

	var doc accountDocument
	if err := json.Unmarshal(document, &doc); err != nil {
		return auth.Account{}, fmt.Errorf("failed to unmarshal account: %w", err)
	}
	account := doc.Account
	account.PasswordHash = doc.PasswordHash
	account.APIToken = doc.APIToken
	return account, nil
}

// GetAccount retrieves an account by ID
func (s *PostgreSQLAccountStore) GetAccount(id string) (auth.Account, error) {
	return s.scanAccount(s.db.QueryRow(`SELECT document FROM accounts WHERE id = $1`, id))
}

// GetAccountByUsername retrieves an account by username
func (s *PostgreSQLAccountStore) GetAccountByUsername(username string) (auth.Account, error) {
	return s.scanAccount(s.db.QueryRow(`SELECT document FROM accounts WHERE username = $1`, username))
}

// GetAccountByToken retrieves an account by API token
func (s *PostgreSQLAccountStore) GetAccountByToken(token string) (auth.Account, error) {
	return s.scanAccount(s.db.QueryRow(
		`SELECT document FROM accounts WHERE api_token = $1 AND api_token <> ''`, token))
}

// ListAccounts returns all accounts
func (s *PostgreSQLAccountStore) ListAccounts() ([]auth.Account, error) {
	rows, err := s.db.Query(`SELECT document FROM accounts ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	accounts := make([]auth.Account, 0)
	for rows.Next() {
		var document []byte
		if err := rows.Scan(&document); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		var doc accountDocument
		if err := json.Unmarshal(document, &doc); err != nil {
			return nil, fmt.Errorf("failed to unmarshal account: %w", err)
		}
		account := doc.Account
		account.PasswordHash = doc.PasswordHash
		account.APIToken = doc.APIToken
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

// DeleteAccount removes an account
func (s *PostgreSQLAccountStore) DeleteAccount(id string) error {
	result, err := s.db.Exec(`DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return ErrAccountNotFound
	}
	return nil
}
