package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/stagehand-ai/stagehand/pkg/api"
	"github.com/stagehand-ai/stagehand/pkg/approval"
	"github.com/stagehand-ai/stagehand/pkg/audit"
	"github.com/stagehand-ai/stagehand/pkg/auth"
	"github.com/stagehand-ai/stagehand/pkg/boundary"
	"github.com/stagehand-ai/stagehand/pkg/config"
	"github.com/stagehand-ai/stagehand/pkg/engine"
	"github.com/stagehand-ai/stagehand/pkg/gateway"
	"github.com/stagehand-ai/stagehand/pkg/logging"
	"github.com/stagehand-ai/stagehand/pkg/models"
	"github.com/stagehand-ai/stagehand/pkg/policy"
	"github.com/stagehand-ai/stagehand/pkg/queue"
	"github.com/stagehand-ai/stagehand/pkg/services"
	"github.com/stagehand-ai/stagehand/pkg/storage"
	"github.com/stagehand-ai/stagehand/pkg/tools"
	"github.com/stagehand-ai/stagehand/pkg/utils"
	"github.com/stagehand-ai/stagehand/pkg/workflow"
)

// App holds the assembled application
type App struct {
	config    *config.Config
	logger    logging.Logger
	provider  storage.Provider
	jobs      queue.JobQueue
	server    *api.Server
	worker    *workflow.Worker
	scheduler *workflow.Scheduler

	cancelBackground context.CancelFunc
}

// NewApp wires storage, governance, the engine, the workflow runtime and the
// HTTP server from the loaded configuration.
func NewApp(cfg *config.Config) (*App, error) {
	logger := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}, os.Stdout)

	provider, err := config.NewStorageProvider(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage provider: %w", err)
	}
	if err := provider.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	jobs, err := config.NewJobQueue(context.Background(), cfg.Queue)
	if err != nil {
		return nil, fmt.Errorf("failed to create job queue: %w", err)
	}

	governance := policy.NewGovernanceService(provider.GetGovernanceStore(), logger)
	approvals := approval.NewManager(provider.GetApprovalStore(), logger)
	recorder := audit.NewRecorder(provider.GetAuditStore(), logger)

	guard := boundary.New(boundary.Config{
		AllowedDomains: cfg.Boundary.AllowedDomains,
		DeniedDomains:  cfg.Boundary.DeniedDomains,
		WorkspaceRoot:  cfg.Boundary.WorkspaceRoot,
		AllowedPaths:   cfg.Boundary.AllowedPaths,
		DefaultTimeout: cfg.Boundary.DefaultTimeout(),
	}, logger)

	registry := tools.NewRegistry()
	if err := tools.RegisterBuiltin(registry, tools.BuiltinDeps{
		Governance:    governance,
		HTTP:          utils.NewHTTPClient(),
		WorkspaceRoot: cfg.Boundary.WorkspaceRoot,
	}); err != nil {
		return nil, fmt.Errorf("failed to register builtin tools: %w", err)
	}

	callGateway := gateway.New(gateway.Options{
		Governance:   governance,
		Approvals:    approvals,
		Recorder:     recorder,
		Boundary:     guard,
		Registry:     registry,
		Logger:       logger,
		ApprovalMode: models.ApprovalMode(cfg.Governance.ApprovalMode),
		ApprovalTTL:  time.Duration(cfg.Governance.ApprovalTTLMinutes) * time.Minute,
	})

	var llm utils.ChatClient
	if cfg.LLM.APIKey != "" {
		llm = utils.NewLLMClient(utils.LLMProvider(cfg.LLM.Provider), cfg.LLM.APIKey, cfg.LLM.BaseURL)
	}

	stepEngine := engine.New(engine.Options{
		Tasks:     provider.GetTaskStore(),
		Approvals: approvals,
		Registry:  registry,
		Boundary:  guard,
		LLM:       llm,
		Jobs:      jobs,
		Logger:    logger,
	})

	workflows := workflow.NewService(provider.GetWorkflowStore(), provider.GetWorkflowRunStore(), jobs, logger)
	executor := workflow.NewExecutor(workflows, stepEngine, provider.GetWorkflowStore(), provider.GetWorkflowRunStore(), logger)
	worker := workflow.NewWorker(jobs, executor, logger)
	scheduler := workflow.NewScheduler(workflows, logger)

	accountService := services.NewAccountService(provider.GetAccountStore())
	jwtService := services.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiration)

	if cfg.Auth.BootstrapAdmin {
		if err := bootstrapAdmin(accountService, cfg, logger); err != nil {
			return nil, err
		}
	}

	server := api.NewServer(cfg, api.Deps{
		AccountService: accountService,
		JWTService:     jwtService,
		Gateway:        callGateway,
		Governance:     governance,
		Recorder:       recorder,
		Engine:         stepEngine,
		Workflows:      workflows,
		Registry:       registry,
		Logger:         logger,
	})

	// The websocket manager lives in the server, which needs the engine,
	// so the notifier is attached after both exist
	stepEngine.SetNotifier(server.TaskNotifier())

	return &App{
		config:    cfg,
		logger:    logger,
		provider:  provider,
		jobs:      jobs,
		server:    server,
		worker:    worker,
		scheduler: scheduler,
	}, nil
}

// Start runs the queue worker, the cron scheduler and the HTTP server. It
// blocks until the server exits.
func (a *App) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancelBackground = cancel

	go a.worker.Run(ctx)
	go a.scheduler.Run(ctx)

	return a.server.Start()
}

// Stop shuts the application down gracefully
func (a *App) Stop(ctx context.Context) error {
	if a.cancelBackground != nil {
		a.cancelBackground()
	}

	err := a.server.Stop(ctx)

	if closeErr := a.jobs.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if closeErr := a.provider.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// bootstrapAdmin ensures an admin account exists on first start. A generated
// password is logged once when none is configured.
func bootstrapAdmin(accounts *services.AccountService, cfg *config.Config, logger logging.Logger) error {
	existing, err := accounts.ListAccounts()
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	password := cfg.Auth.BootstrapAdminPassword
	generated := false
	if password == "" {
		buf := make([]byte, 16)
		if _, err := rand.Read(buf); err != nil {
			return fmt.Errorf("failed to generate admin password: %w", err)
		}
		password = hex.EncodeToString(buf)
		generated = true
	}

	id, err := accounts.CreateAccount("admin", password, auth.RoleAdmin)
	if err != nil {
		return fmt.Errorf("failed to bootstrap admin account: %w", err)
	}

	fields := []logging.Field{logging.F("account_id", id)}
	if generated {
		fields = append(fields, logging.F("password", password))
	}
	logger.Info("bootstrapped admin account", fields...)
	return nil
}
