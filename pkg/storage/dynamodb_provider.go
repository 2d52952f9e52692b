package storage

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"

	"github.com/stagehand-ai/stagehand/pkg/auth"
	"github.com/stagehand-ai/stagehand/pkg/models"
)

// DynamoDBProvider implements the Provider interface using DynamoDB. Each
// entity lives in its own table; records are stored as JSON documents in a
// "Document" string attribute so the schema stays key-value.
type DynamoDBProvider struct {
	client      dynamodbiface.DynamoDBAPI
	tablePrefix string
}

// DynamoDBProviderConfig contains configuration for the DynamoDB provider
type DynamoDBProviderConfig struct {
	Region      string
	AccessKey   string
	SecretKey   string
	TablePrefix string
	Endpoint    string // Optional, for local DynamoDB
}

// NewDynamoDBProvider creates a new DynamoDB storage provider
func NewDynamoDBProvider(config DynamoDBProviderConfig) (*DynamoDBProvider, error) {
	awsConfig := &aws.Config{
		Region: aws.String(config.Region),
	}

	// Set credentials if provided
	if config.AccessKey != "" && config.SecretKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(
			config.AccessKey,
			config.SecretKey,
			"",
		)
	}

	// Set endpoint for local DynamoDB if provided
	if config.Endpoint != "" {
		awsConfig.Endpoint = aws.String(config.Endpoint)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	prefix := config.TablePrefix
	if prefix == "" {
		prefix = "stagehand_"
	}

	return &DynamoDBProvider{
		client:      dynamodb.New(sess),
		tablePrefix: prefix,
	}, nil
}

// Table names, by entity
func (p *DynamoDBProvider) tableName(entity string) string {
	return p.tablePrefix + entity
}

// Initialize sets up the storage backend, creating tables that do not exist
func (p *DynamoDBProvider) Initialize() error {
	tables := []string{"tasks", "workflows", "workflow_runs", "approvals", "governance", "audit", "accounts"}
	for _, table := range tables {
		if err := p.ensureTable(p.tableName(table)); err != nil {
			return fmt.Errorf("failed to ensure table %s: %w", table, err)
		}
	}
	return nil
}

func (p *DynamoDBProvider) ensureTable(name string) error {
	_, err := p.client.DescribeTable(&dynamodb.DescribeTableInput{
		TableName: aws.String(name),
	})
	if err == nil {
		return nil
	}
	if aerr, ok := err.(awserr.Error); !ok || aerr.Code() != dynamodb.ErrCodeResourceNotFoundException {
		return err
	}

	_, err = p.client.CreateTable(&dynamodb.CreateTableInput{
		TableName: aws.String(name),
		AttributeDefinitions: []*dynamodb.AttributeDefinition{
			{AttributeName: aws.String("ID"), AttributeType: aws.String("S")},
		},
		KeySchema: []*dynamodb.KeySchemaElement{
			{AttributeName: aws.String("ID"), KeyType: aws.String("HASH")},
		},
		BillingMode: aws.String("PAY_PER_REQUEST"),
	})
	if err != nil {
		return err
	}

	return p.client.WaitUntilTableExists(&dynamodb.DescribeTableInput{
		TableName: aws.String(name),
	})
}

// Close cleans up resources
func (p *DynamoDBProvider) Close() error {
	// The DynamoDB client does not hold connections that need closing
	return nil
}

// putDocument writes a JSON document with the given ID and extra attributes
func (p *DynamoDBProvider) putDocument(table, id string, doc interface{}, extra map[string]string) error {
	document, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	item := map[string]*dynamodb.AttributeValue{
		"ID":       {S: aws.String(id)},
		"Document": {S: aws.String(string(document))},
	}
	for key, value := range extra {
		item[key] = &dynamodb.AttributeValue{S: aws.String(value)}
	}

	_, err = p.client.PutItem(&dynamodb.PutItemInput{
		TableName: aws.String(p.tableName(table)),
		Item:      item,
	})
	return err
}

// getDocument reads the JSON document with the given ID into out. Returns
// notFound when the item does not exist.
func (p *DynamoDBProvider) getDocument(table, id string, out interface{}, notFound error) error {
	result, err := p.client.GetItem(&dynamodb.GetItemInput{
		TableName: aws.String(p.tableName(table)),
		Key: map[string]*dynamodb.AttributeValue{
			"ID": {S: aws.String(id)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to get item: %w", err)
	}
	if result.Item == nil {
		return notFound
	}
	documentAttr, ok := result.Item["Document"]
	if !ok || documentAttr.S == nil {
		return notFound
	}
	return json.Unmarshal([]byte(*documentAttr.S), out)
}

// scanDocuments reads every document in a table, invoking decode per item
func (p *DynamoDBProvider) scanDocuments(table string, decode func(document []byte) error) error {
	input := &dynamodb.ScanInput{TableName: aws.String(p.tableName(table))}
	for {
		result, err := p.client.Scan(input)
		if err != nil {
			return fmt.Errorf("failed to scan table: %w", err)
		}
		for _, item := range result.Items {
			documentAttr, ok := item["Document"]
			if !ok || documentAttr.S == nil {
				continue
			}
			if err := decode([]byte(*documentAttr.S)); err != nil {
				return err
			}
		}
		if result.LastEvaluatedKey == nil {
			return nil
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
}

func (p *DynamoDBProvider) deleteDocument(table, id string, notFound error) error {
	result, err := p.client.DeleteItem(&dynamodb.DeleteItemInput{
		TableName: aws.String(p.tableName(table)),
		Key: map[string]*dynamodb.AttributeValue{
			"ID": {S: aws.String(id)},
		},
		ReturnValues: aws.String("ALL_OLD"),
	})
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	if len(result.Attributes) == 0 {
		return notFound
	}
	return nil
}

// GetTaskStore returns a store for tasks
func (p *DynamoDBProvider) GetTaskStore() TaskStore { return &dynamoTaskStore{p} }

// GetWorkflowStore returns a store for workflow definitions
func (p *DynamoDBProvider) GetWorkflowStore() WorkflowStore { return &dynamoWorkflowStore{p} }

// GetWorkflowRunStore returns a store for workflow runs
func (p *DynamoDBProvider) GetWorkflowRunStore() WorkflowRunStore { return &dynamoWorkflowRunStore{p} }

// GetApprovalStore returns a store for approval requests
func (p *DynamoDBProvider) GetApprovalStore() ApprovalStore { return &dynamoApprovalStore{p} }

// GetGovernanceStore returns a store for server governance records
func (p *DynamoDBProvider) GetGovernanceStore() GovernanceStore { return &dynamoGovernanceStore{p} }

// GetAuditStore returns a store for audit records
func (p *DynamoDBProvider) GetAuditStore() AuditStore { return &dynamoAuditStore{p} }

// GetAccountStore returns a store for account data
func (p *DynamoDBProvider) GetAccountStore() AccountStore { return &dynamoAccountStore{p} }

type dynamoTaskStore struct{ p *DynamoDBProvider }

func (s *dynamoTaskStore) SaveTask(task models.Task) error {
	return s.p.putDocument("tasks", task.ID, task, nil)
}

func (s *dynamoTaskStore) GetTask(id string) (models.Task, error) {
	var task models.Task
	err := s.p.getDocument("tasks", id, &task, ErrTaskNotFound)
	return task, err
}

func (s *dynamoTaskStore) ListTasks() ([]models.Task, error) {
	tasks := make([]models.Task, 0)
	err := s.p.scanDocuments("tasks", func(document []byte) error {
		var task models.Task
		if err := json.Unmarshal(document, &task); err != nil {
			return err
		}
		tasks = append(tasks, task)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
	return tasks, nil
}

func (s *dynamoTaskStore) DeleteTask(id string) error {
	return s.p.deleteDocument("tasks", id, ErrTaskNotFound)
}

type dynamoWorkflowStore struct{ p *DynamoDBProvider }

func (s *dynamoWorkflowStore) SaveWorkflow(workflow models.Workflow) error {
	return s.p.putDocument("workflows", workflow.ID, workflow, nil)
}

func (s *dynamoWorkflowStore) GetWorkflow(id string) (models.Workflow, error) {
	var workflow models.Workflow
	err := s.p.getDocument("workflows", id, &workflow, ErrWorkflowNotFound)
	return workflow, err
}

func (s *dynamoWorkflowStore) ListWorkflows() ([]models.Workflow, error) {
	workflows := make([]models.Workflow, 0)
	err := s.p.scanDocuments("workflows", func(document []byte) error {
		var workflow models.Workflow
		if err := json.Unmarshal(document, &workflow); err != nil {
			return err
		}
		workflows = append(workflows, workflow)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].CreatedAt.After(workflows[j].CreatedAt)
	})
	return workflows, nil
}

func (s *dynamoWorkflowStore) DeleteWorkflow(id string) error {
	return s.p.deleteDocument("workflows", id, ErrWorkflowNotFound)
}

type dynamoWorkflowRunStore struct{ p *DynamoDBProvider }

func (s *dynamoWorkflowRunStore) SaveRun(run models.WorkflowRun) error {
	return s.p.putDocument("workflow_runs", run.ID, run, map[string]string{
		"WorkflowID": run.WorkflowID,
	})
}

func (s *dynamoWorkflowRunStore) GetRun(id string) (models.WorkflowRun, error) {
	var run models.WorkflowRun
	err := s.p.getDocument("workflow_runs", id, &run, ErrRunNotFound)
	return run, err
}

func (s *dynamoWorkflowRunStore) ListRuns(workflowID string) ([]models.WorkflowRun, error) {
	runs := make([]models.WorkflowRun, 0)
	err := s.p.scanDocuments("workflow_runs", func(document []byte) error {
		var run models.WorkflowRun
		if err := json.Unmarshal(document, &run); err != nil {
			return err
		}
		if run.WorkflowID == workflowID {
			runs = append(runs, run)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	return runs, nil
}

type dynamoApprovalStore struct{ p *DynamoDBProvider }

func (s *dynamoApprovalStore) SaveApproval(approval models.ApprovalRequest) error {
	return s.p.putDocument("approvals", approval.ID, approval, nil)
}

func (s *dynamoApprovalStore) GetApproval(id string) (models.ApprovalRequest, error) {
	var approval models.ApprovalRequest
	err := s.p.getDocument("approvals", id, &approval, ErrApprovalNotFound)
	return approval, err
}

type dynamoGovernanceStore struct{ p *DynamoDBProvider }

func (s *dynamoGovernanceStore) SaveGovernance(record models.ServerGovernance) error {
	return s.p.putDocument("governance", record.ID, record, nil)
}

func (s *dynamoGovernanceStore) GetGovernance(serverID string) (models.ServerGovernance, error) {
	var record models.ServerGovernance
	err := s.p.getDocument("governance", serverID, &record, ErrGovernanceNotFound)
	return record, err
}

func (s *dynamoGovernanceStore) ListGovernance() ([]models.ServerGovernance, error) {
	records := make([]models.ServerGovernance, 0)
	err := s.p.scanDocuments("governance", func(document []byte) error {
		var record models.ServerGovernance
		if err := json.Unmarshal(document, &record); err != nil {
			return err
		}
		records = append(records, record)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].ID < records[j].ID
	})
	return records, nil
}

type dynamoAuditStore struct{ p *DynamoDBProvider }

// auditItem pairs a record with its sequence key for ordering
type auditItem struct {
	Seq    string             `json:"seq"`
	Record models.AuditRecord `json:"record"`
}

func (s *dynamoAuditStore) AppendAudit(record models.AuditRecord) error {
	// Nanosecond timestamp plus correlation ID gives append ordering and a
	// unique key
	seq := strconv.FormatInt(time.Now().UnixNano(), 10)
	id := seq + ":" + record.CorrelationID
	return s.p.putDocument("audit", id, auditItem{Seq: seq, Record: record}, map[string]string{
		"ServerID": record.Server.ServerID,
		"Decision": string(record.Decision),
	})
}

func (s *dynamoAuditStore) ListAudit(filter AuditFilter) ([]models.AuditRecord, error) {
	items := make([]auditItem, 0)
	err := s.p.scanDocuments("audit", func(document []byte) error {
		var item auditItem
		if err := json.Unmarshal(document, &item); err != nil {
			// Skip unparseable records
			return nil
		}
		if filter.ServerID != "" && item.Record.Server.ServerID != filter.ServerID {
			return nil
		}
		if filter.Decision != "" && item.Record.Decision != filter.Decision {
			return nil
		}
		items = append(items, item)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].Seq > items[j].Seq
	})
	records := make([]models.AuditRecord, 0, len(items))
	for _, item := range items {
		records = append(records, item.Record)
		if filter.Limit > 0 && len(records) >= filter.Limit {
			break
		}
	}
	return records, nil
}

type dynamoAccountStore struct{ p *DynamoDBProvider }

func (s *dynamoAccountStore) SaveAccount(account auth.Account) error {
	return s.p.putDocument("accounts", account.ID, accountDocument{
		Account:      account,
		PasswordHash: account.PasswordHash,
		APIToken:     account.APIToken,
	}, map[string]string{
		"Username": account.Username,
		"APIToken": account.APIToken,
	})
}

func (s *dynamoAccountStore) GetAccount(id string) (auth.Account, error) {
	var doc accountDocument
	if err := s.p.getDocument("accounts", id, &doc, ErrAccountNotFound); err != nil {
		return auth.Account{}, err
	}
	account := doc.Account
	account.PasswordHash = doc.PasswordHash
	account.APIToken = doc.APIToken
	return account, nil
}

func (s *dynamoAccountStore) findAccount(match func(auth.Account) bool) (auth.Account, error) {
	var found *auth.Account
	err := s.p.scanDocuments("accounts", func(document []byte) error {
		var doc accountDocument
		if err := json.Unmarshal(document, &doc); err != nil {
			return err
		}
		account := doc.Account
		account.PasswordHash = doc.PasswordHash
		account.APIToken = doc.APIToken
		if found == nil && match(account) {
			found = &account
		}
		return nil
	})
	if err != nil {
		return auth.Account{}, err
	}
	if found == nil {
		return auth.Account{}, ErrAccountNotFound
	}
	return *found, nil
}

func (s *dynamoAccountStore) GetAccountByUsername(username string) (auth.Account, error) {
	return s.findAccount(func(a auth.Account) bool { return a.Username == username })
}

func (s *dynamoAccountStore) GetAccountByToken(token string) (auth.Account, error) {
	if token == "" {
		return auth.Account{}, ErrAccountNotFound
	}
	return s.findAccount(func(a auth.Account) bool { return a.APIToken == token })
}

func (s *dynamoAccountStore) ListAccounts() ([]auth.Account, error) {
	accounts := make([]auth.Account, 0)
	err := s.p.scanDocuments("accounts", func(document []byte) error {
		var doc accountDocument
		if err := json.Unmarshal(document, &doc); err != nil {
			return err
		}
		account := doc.Account
		account.PasswordHash = doc.PasswordHash
		account.APIToken = doc.APIToken
		accounts = append(accounts, account)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

func (s *dynamoAccountStore) DeleteAccount(id string) error {
	return s.p.deleteDocument("accounts", id, ErrAccountNotFound)
}
