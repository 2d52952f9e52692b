// Package api exposes the governed execution engine over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/stagehand-ai/stagehand/pkg/audit"
	"github.com/stagehand-ai/stagehand/pkg/auth"
	"github.com/stagehand-ai/stagehand/pkg/config"
	"github.com/stagehand-ai/stagehand/pkg/engine"
	"github.com/stagehand-ai/stagehand/pkg/gateway"
	"github.com/stagehand-ai/stagehand/pkg/logging"
	"github.com/stagehand-ai/stagehand/pkg/middleware"
	"github.com/stagehand-ai/stagehand/pkg/policy"
	"github.com/stagehand-ai/stagehand/pkg/services"
	"github.com/stagehand-ai/stagehand/pkg/tools"
	"github.com/stagehand-ai/stagehand/pkg/workflow"
)

// Server represents the HTTP API server
type Server struct {
	config         *config.Config
	router         *mux.Router
	server         *http.Server
	logger         logging.Logger
	accountService auth.AccountService
	jwtService     *services.JWTService
	gateway        *gateway.Gateway
	governance     *policy.GovernanceService
	recorder       *audit.Recorder
	engine         *engine.Engine
	workflows      *workflow.Service
	registry       *tools.Registry
	wsManager      *WebSocketManager
}

// Deps are the services the server exposes
type Deps struct {
	AccountService auth.AccountService
	JWTService     *services.JWTService
	Gateway        *gateway.Gateway
	Governance     *policy.GovernanceService
	Recorder       *audit.Recorder
	Engine         *engine.Engine
	Workflows      *workflow.Service
	Registry       *tools.Registry
	Logger         logging.Logger
}

// NewServer creates a new API server
func NewServer(cfg *config.Config, deps Deps) *Server {
	s := &Server{
		config:         cfg,
		router:         mux.NewRouter(),
		logger:         deps.Logger,
		accountService: deps.AccountService,
		jwtService:     deps.JWTService,
		gateway:        deps.Gateway,
		governance:     deps.Governance,
		recorder:       deps.Recorder,
		engine:         deps.Engine,
		workflows:      deps.Workflows,
		registry:       deps.Registry,
		wsManager:      NewWebSocketManager(deps.Logger),
	}

	s.setupRoutes()
	return s
}

// Router returns the configured router, e.g. for httptest servers
func (s *Server) Router() http.Handler {
	return s.router
}

// TaskNotifier returns the sink for engine task updates
func (s *Server) TaskNotifier() engine.Notifier {
	return s.wsManager
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", logging.F("addr", addr))

	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop stops the HTTP server gracefully
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	authMiddleware := middleware.NewAuthMiddleware(s.accountService, s.jwtService)

	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Public routes
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost, http.MethodOptions)

	// Authenticated routes
	authenticated := api.PathPrefix("").Subrouter()
	authenticated.Use(authMiddleware.Authenticate)

	accounts := authenticated.PathPrefix("/accounts").Subrouter()
	accounts.HandleFunc("", s.handleCreateAccount).Methods(http.MethodPost, http.MethodOptions)
	accounts.HandleFunc("", s.handleListAccounts).Methods(http.MethodGet, http.MethodOptions)
	accounts.HandleFunc("/me", s.handleGetCurrentAccount).Methods(http.MethodGet, http.MethodOptions)
	accounts.HandleFunc("/{id}", s.handleDeleteAccount).Methods(http.MethodDelete, http.MethodOptions)

	servers := authenticated.PathPrefix("/servers").Subrouter()
	servers.HandleFunc("", s.handleListServers).Methods(http.MethodGet, http.MethodOptions)
	servers.HandleFunc("/{id}", s.handleGetServer).Methods(http.MethodGet, http.MethodOptions)
	servers.HandleFunc("/{id}/governance", s.handlePatchGovernance).Methods(http.MethodPatch, http.MethodOptions)
	servers.HandleFunc("/{id}/tools/{tool}/call", s.handleCallTool).Methods(http.MethodPost, http.MethodOptions)

	approvals := authenticated.PathPrefix("/approvals").Subrouter()
	approvals.HandleFunc("/{id}/approve", s.handleApprove).Methods(http.MethodPost, http.MethodOptions)

	authenticated.HandleFunc("/audit", s.handleListAudit).Methods(http.MethodGet, http.MethodOptions)

	tasks := authenticated.PathPrefix("/tasks").Subrouter()
	tasks.HandleFunc("", s.handleCreateTask).Methods(http.MethodPost, http.MethodOptions)
	tasks.HandleFunc("", s.handleListTasks).Methods(http.MethodGet, http.MethodOptions)
	tasks.HandleFunc("/{id}", s.handleGetTask).Methods(http.MethodGet, http.MethodOptions)
	tasks.HandleFunc("/{id}/run", s.handleRunTask).Methods(http.MethodPost, http.MethodOptions)
	tasks.HandleFunc("/{id}/cancel", s.handleCancelTask).Methods(http.MethodPost, http.MethodOptions)
	tasks.HandleFunc("/{id}/steps/{stepId}/approval", s.handleTaskApprovalDecision).Methods(http.MethodPost, http.MethodOptions)
	tasks.HandleFunc("/{id}/updates", s.handleTaskUpdates).Methods(http.MethodGet)

	workflows := authenticated.PathPrefix("/workflows").Subrouter()
	workflows.HandleFunc("", s.handleCreateWorkflow).Methods(http.MethodPost, http.MethodOptions)
	workflows.HandleFunc("", s.handleListWorkflows).Methods(http.MethodGet, http.MethodOptions)
	workflows.HandleFunc("/{id}", s.handleGetWorkflow).Methods(http.MethodGet, http.MethodOptions)
	workflows.HandleFunc("/{id}", s.handleUpdateWorkflow).Methods(http.MethodPut, http.MethodOptions)
	workflows.HandleFunc("/{id}", s.handleDeleteWorkflow).Methods(http.MethodDelete, http.MethodOptions)
	workflows.HandleFunc("/{id}/trigger", s.handleTriggerWorkflow).Methods(http.MethodPost, http.MethodOptions)
	workflows.HandleFunc("/{id}/runs", s.handleListWorkflowRuns).Methods(http.MethodGet, http.MethodOptions)

	s.router.Use(middleware.CORS)
}

// handleHealth reports liveness
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
