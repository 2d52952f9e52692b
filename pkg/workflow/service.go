// Package workflow implements trigger-driven workflow definitions: CRUD,
// cron and event trigger evaluation, and idempotent run dispatch through the
// job queue.
package workflow

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/stagehand-ai/stagehand/pkg/logging"
	"github.com/stagehand-ai/stagehand/pkg/models"
	"github.com/stagehand-ai/stagehand/pkg/queue"
	"github.com/stagehand-ai/stagehand/pkg/storage"
	"github.com/stagehand-ai/stagehand/pkg/utils"
)

// JobTypeRun is the queue job type for workflow run dispatch
const JobTypeRun = "workflow_run"

// minRefireInterval suppresses duplicate near-simultaneous trigger firings
const minRefireInterval = 55 * time.Second

// ValidationError signals a rejected workflow definition
type ValidationError struct {
	// Field is the offending field
	Field string

	// Message describes the violation
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on %q: %s", e.Field, e.Message)
}

// Code returns the machine-readable error code
func (e *ValidationError) Code() string { return "VALIDATION_ERROR" }

// Only the every-minute and every-N-minutes patterns are accepted; anything
// else the cron library would take is rejected up front
var supportedCronPattern = regexp.MustCompile(`^(\*|\*/([0-9]+)) \* \* \* \*$`)

// Service owns workflow definitions and dispatches runs
type Service struct {
	workflows storage.WorkflowStore
	runs      storage.WorkflowRunStore
	jobs      queue.JobQueue
	logger    logging.Logger
	now       func() time.Time
}

// NewService creates a workflow service
func NewService(workflows storage.WorkflowStore, runs storage.WorkflowRunStore, jobs queue.JobQueue, logger logging.Logger) *Service {
	return &Service{
		workflows: workflows,
		runs:      runs,
		jobs:      jobs,
		logger:    logger,
		now:       time.Now,
	}
}

// Create validates and persists a new workflow definition
func (s *Service) Create(workflow models.Workflow) (models.Workflow, error) {
	if err := validate(&workflow); err != nil {
		return models.Workflow{}, err
	}

	if workflow.ID == "" {
		workflow.ID = uuid.New().String()
	}
	now := s.now().UTC()
	workflow.CreatedAt = now
	workflow.UpdatedAt = now
	workflow.LastTriggeredAt = nil
	workflow.LastRunID = ""

	if err := s.workflows.SaveWorkflow(workflow); err != nil {
		return models.Workflow{}, fmt.Errorf("failed to persist workflow: %w", err)
	}

	s.logger.Info("workflow created",
		logging.F("workflow_id", workflow.ID),
		logging.F("trigger", string(workflow.Trigger.Type)))

	return workflow, nil
}

// CreateFromYAML parses a YAML workflow body and creates it
func (s *Service) CreateFromYAML(content string) (models.Workflow, error) {
	var workflow models.Workflow
	if err := utils.ParseYAML(content, &workflow); err != nil {
		return models.Workflow{}, &ValidationError{Field: "body", Message: fmt.Sprintf("invalid YAML: %s", err)}
	}
	return s.Create(workflow)
}

// Update validates and replaces a workflow definition, preserving its
// creation and trigger history
func (s *Service) Update(id string, workflow models.Workflow) (models.Workflow, error) {
	existing, err := s.workflows.GetWorkflow(id)
	if err != nil {
		return models.Workflow{}, err
	}

	if err := validate(&workflow); err != nil {
		return models.Workflow{}, err
	}

	workflow.ID = existing.ID
	workflow.CreatedAt = existing.CreatedAt
	workflow.LastTriggeredAt = existing.LastTriggeredAt
	workflow.LastRunID = existing.LastRunID
	workflow.UpdatedAt = s.now().UTC()

	if err := s.workflows.SaveWorkflow(workflow); err != nil {
		return models.Workflow{}, fmt.Errorf("failed to persist workflow: %w", err)
	}
	return workflow, nil
}

// Get returns a workflow by id
func (s *Service) Get(id string) (models.Workflow, error) {
	return s.workflows.GetWorkflow(id)
}

// List returns all workflows
func (s *Service) List() ([]models.Workflow, error) {
	return s.workflows.ListWorkflows()
}

// Delete removes a workflow definition. Its runs are kept.
func (s *Service) Delete(id string) error {
	return s.workflows.DeleteWorkflow(id)
}

// ListRuns returns the run history of a workflow, most recent first
func (s *Service) ListRuns(workflowID string) ([]models.WorkflowRun, error) {
	return s.runs.ListRuns(workflowID)
}

// GetRun returns one run by id
func (s *Service) GetRun(runID string) (models.WorkflowRun, error) {
	return s.runs.GetRun(runID)
}

// Trigger fires a workflow manually
func (s *Service) Trigger(ctx context.Context, id string, payload map[string]interface{}) (models.WorkflowRun, bool, error) {
	workflow, err := s.workflows.GetWorkflow(id)
	if err != nil {
		return models.WorkflowRun{}, false, err
	}
	return s.queueRun(ctx, workflow, models.TriggerManual, payload)
}

// Sweep evaluates all cron-triggered workflows against the current UTC
// minute. It is meant to be called once per minute by the scheduler.
func (s *Service) Sweep(ctx context.Context) error {
	workflows, err := s.workflows.ListWorkflows()
	if err != nil {
		return fmt.Errorf("failed to list workflows: %w", err)
	}

	now := s.now().UTC()
	for _, workflow := range workflows {
		if !workflow.Enabled || workflow.Trigger.Type != models.TriggerCron {
			continue
		}
		if !cronMatches(workflow.Trigger.Cron, now) {
			continue
		}
		if !s.mayRefire(workflow, now) {
			continue
		}

		if _, _, err := s.queueRun(ctx, workflow, models.TriggerCron, nil); err != nil {
			s.logger.Error("failed to queue cron run",
				logging.F("workflow_id", workflow.ID),
				logging.F("error", err.Error()))
		}
	}

	return nil
}

// RunCompletedEvent notifies the service of a finished conversation run
type RunCompletedEvent struct {
	// RunID is the finished run
	RunID string `json:"run_id"`

	// Event is the event name, matched against trigger filters
	Event string `json:"event,omitempty"`

	// Payload is passed through to the triggered runs
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// NotifyRunCompleted fires every enabled workflow whose trigger matches the
// event: runCompleted triggers with an empty or matching filter, and
// event triggers whose named event equals the event name.
func (s *Service) NotifyRunCompleted(ctx context.Context, event RunCompletedEvent) error {
	workflows, err := s.workflows.ListWorkflows()
	if err != nil {
		return fmt.Errorf("failed to list workflows: %w", err)
	}

	now := s.now().UTC()
	for _, workflow := range workflows {
		if !workflow.Enabled {
			continue
		}
		switch workflow.Trigger.Type {
		case models.TriggerRunCompleted:
			if workflow.Trigger.Event != "" && workflow.Trigger.Event != event.Event {
				continue
			}
		case models.TriggerEvent:
			if workflow.Trigger.Event != event.Event {
				continue
			}
		default:
			continue
		}
		if !s.mayRefire(workflow, now) {
			continue
		}

		payload := map[string]interface{}{"source_run_id": event.RunID}
		for key, value := range event.Payload {
			payload[key] = value
		}

		if _, _, err := s.queueRun(ctx, workflow, workflow.Trigger.Type, payload); err != nil {
			s.logger.Error("failed to queue notified run",
				logging.F("workflow_id", workflow.ID),
				logging.F("error", err.Error()))
		}
	}

	return nil
}

// queueRun creates a run record and submits it to the job queue. The
// idempotency key combines workflow id, trigger type and the UTC minute
// bucket, so repeated triggers within the bucket dedupe to one job.
func (s *Service) queueRun(ctx context.Context, workflow models.Workflow, triggerType models.TriggerType, payload map[string]interface{}) (models.WorkflowRun, bool, error) {
	now := s.now().UTC()
	runID := uuid.New().String()

	key := fmt.Sprintf("%s:%s:%s", workflow.ID, triggerType, now.Format("200601021504"))
	job, deduped, err := s.jobs.Enqueue(ctx, JobTypeRun, map[string]interface{}{
		"run_id":      runID,
		"workflow_id": workflow.ID,
	}, queue.EnqueueOptions{IdempotencyKey: key})
	if err != nil {
		return models.WorkflowRun{}, false, fmt.Errorf("failed to enqueue workflow run: %w", err)
	}
	if deduped {
		s.logger.Debug("workflow trigger deduplicated",
			logging.F("workflow_id", workflow.ID),
			logging.F("idempotency_key", key))
		return models.WorkflowRun{}, true, nil
	}

	steps := make([]models.RunStep, 0, len(workflow.Steps))
	for _, step := range workflow.Steps {
		steps = append(steps, models.RunStep{
			ID:     step.ID,
			Name:   step.Name,
			Type:   step.Type,
			Status: models.StepStatusPending,
		})
	}

	run := models.WorkflowRun{
		ID:             runID,
		WorkflowID:     workflow.ID,
		Status:         models.RunStatusQueued,
		TriggerType:    triggerType,
		TriggerPayload: payload,
		Steps:          steps,
		JobID:          job.ID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.runs.SaveRun(run); err != nil {
		return models.WorkflowRun{}, false, fmt.Errorf("failed to persist workflow run: %w", err)
	}

	workflow.LastTriggeredAt = &now
	workflow.LastRunID = run.ID
	workflow.UpdatedAt = now
	if err := s.workflows.SaveWorkflow(workflow); err != nil {
		return models.WorkflowRun{}, false, fmt.Errorf("failed to update workflow trigger state: %w", err)
	}

	s.logger.Info("workflow run queued",
		logging.F("workflow_id", workflow.ID),
		logging.F("run_id", run.ID),
		logging.F("trigger", string(triggerType)))

	return run, false, nil
}

// mayRefire enforces the minimum re-fire interval
func (s *Service) mayRefire(workflow models.Workflow, now time.Time) bool {
	if workflow.LastTriggeredAt == nil {
		return true
	}
	return now.Sub(*workflow.LastTriggeredAt) >= minRefireInterval
}

// cronMatches reports whether a supported cron expression fires at the
// given UTC minute
func cronMatches(expr string, now time.Time) bool {
	match := supportedCronPattern.FindStringSubmatch(expr)
	if match == nil {
		return false
	}
	if match[1] == "*" {
		return true
	}

	interval, err := strconv.Atoi(match[2])
	if err != nil || interval <= 0 {
		return false
	}
	return now.Minute()%interval == 0
}

// validate checks a workflow definition before any state mutation
func validate(workflow *models.Workflow) error {
	if workflow.Name == "" {
		return &ValidationError{Field: "name", Message: "must not be empty"}
	}
	if len(workflow.Steps) == 0 {
		return &ValidationError{Field: "steps", Message: "must contain at least one step"}
	}

	switch workflow.Trigger.Type {
	case models.TriggerManual, models.TriggerRunCompleted:
	case models.TriggerEvent:
		// An event trigger without a name could never fire
		if workflow.Trigger.Event == "" {
			return &ValidationError{Field: "trigger.event", Message: "must name an event"}
		}
	case models.TriggerCron:
		if !supportedCronPattern.MatchString(workflow.Trigger.Cron) {
			return &ValidationError{
				Field:   "trigger.cron",
				Message: fmt.Sprintf("unsupported expression %q; only \"* * * * *\" and \"*/N * * * *\" are accepted", workflow.Trigger.Cron),
			}
		}
		// The pattern gate is deliberately stricter than the cron library;
		// the parse check catches malformed N values
		if _, err := cron.ParseStandard(workflow.Trigger.Cron); err != nil {
			return &ValidationError{Field: "trigger.cron", Message: err.Error()}
		}
	default:
		return &ValidationError{
			Field:   "trigger.type",
			Message: fmt.Sprintf("must be one of manual, cron, event, runCompleted; got %q", workflow.Trigger.Type),
		}
	}

	seen := make(map[string]bool, len(workflow.Steps))
	for i := range workflow.Steps {
		step := &workflow.Steps[i]
		if step.ID == "" {
			step.ID = uuid.New().String()
		}
		if seen[step.ID] {
			return &ValidationError{Field: "steps", Message: fmt.Sprintf("duplicate step id %q", step.ID)}
		}
		seen[step.ID] = true

		switch step.Type {
		case models.StepTypeTool, models.StepTypeLLM, models.StepTypeJob, models.StepTypeCondition:
		default:
			return &ValidationError{Field: "steps", Message: fmt.Sprintf("unknown step type %q", step.Type)}
		}
	}
	for _, step := range workflow.Steps {
		for _, dep := range step.DependsOn {
			if !seen[dep] {
				return &ValidationError{Field: "steps", Message: fmt.Sprintf("step %q depends on unknown step %q", step.ID, dep)}
			}
		}
	}

	return nil
}
