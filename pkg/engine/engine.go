// Package engine implements the step execution engine: draft creation and
// the bounded, resumable run loop that drives task steps through tools, LLM
// calls, queued jobs and conditions.
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stagehand-ai/stagehand/pkg/approval"
	"github.com/stagehand-ai/stagehand/pkg/boundary"
	"github.com/stagehand-ai/stagehand/pkg/logging"
	"github.com/stagehand-ai/stagehand/pkg/models"
	"github.com/stagehand-ai/stagehand/pkg/queue"
	"github.com/stagehand-ai/stagehand/pkg/storage"
	"github.com/stagehand-ai/stagehand/pkg/template"
	"github.com/stagehand-ai/stagehand/pkg/tools"
	"github.com/stagehand-ai/stagehand/pkg/utils"
)

// DefaultMaxSteps bounds a run when the caller supplies no limit. It also
// guards against cyclic dependsOn graphs, which are not otherwise detected.
const DefaultMaxSteps = 50

// maxSummaryLength bounds the synthesized task summary
const maxSummaryLength = 500

// Notifier receives task state changes, e.g. for websocket delivery
type Notifier interface {
	TaskUpdated(task models.Task)
}

// Engine drives task step execution. Steps within one run execute
// sequentially; independent runs may execute concurrently because each
// task's state lives in its own persisted record.
type Engine struct {
	tasks     storage.TaskStore
	approvals *approval.Manager
	registry  *tools.Registry
	boundary  *boundary.Boundary
	llm       utils.ChatClient
	jobs      queue.JobQueue
	logger    logging.Logger
	notifier  Notifier
	now       func() time.Time
}

// Options configure an engine
type Options struct {
	Tasks     storage.TaskStore
	Approvals *approval.Manager
	Registry  *tools.Registry
	Boundary  *boundary.Boundary
	LLM       utils.ChatClient
	Jobs      queue.JobQueue
	Logger    logging.Logger
	Notifier  Notifier
}

// New creates an engine
func New(opts Options) *Engine {
	return &Engine{
		tasks:     opts.Tasks,
		approvals: opts.Approvals,
		registry:  opts.Registry,
		boundary:  opts.Boundary,
		llm:       opts.LLM,
		jobs:      opts.Jobs,
		logger:    opts.Logger,
		notifier:  opts.Notifier,
		now:       time.Now,
	}
}

// SetNotifier installs the task update sink. The HTTP layer that owns the
// sink is constructed after the engine, so this is wired late.
func (e *Engine) SetNotifier(n Notifier) {
	e.notifier = n
}

// ValidationError signals a rejected draft. No state is mutated when one is
// returned.
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

// CreateDraft validates and persists a new task with every step normalized
// to pending
func (e *Engine) CreateDraft(title, objective string, steps []models.Step, settings models.TaskSettings, actor models.Actor) (models.Task, error) {
	if title == "" {
		return models.Task{}, &ValidationError{Field: "title", Message: "must not be empty"}
	}
	if len(steps) == 0 {
		return models.Task{}, &ValidationError{Field: "steps", Message: "must contain at least one step"}
	}

	seen := make(map[string]bool, len(steps))
	for i := range steps {
		step := &steps[i]
		if step.ID == "" {
			step.ID = uuid.New().String()
		}
		if seen[step.ID] {
			return models.Task{}, &ValidationError{Field: "steps", Message: fmt.Sprintf("duplicate step id %q", step.ID)}
		}
		seen[step.ID] = true

		switch step.Type {
		case models.StepTypeTool, models.StepTypeLLM, models.StepTypeJob, models.StepTypeCondition:
		default:
			return models.Task{}, &ValidationError{Field: "steps", Message: fmt.Sprintf("unknown step type %q", step.Type)}
		}

		step.Status = models.StepStatusPending
		step.Result = nil
		step.Error = ""
		step.ApprovalID = ""
		step.StartedAt = nil
		step.CompletedAt = nil
	}

	// Dependencies must reference declared steps
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if !seen[dep] {
				return models.Task{}, &ValidationError{Field: "steps", Message: fmt.Sprintf("step %q depends on unknown step %q", step.ID, dep)}
			}
		}
	}

	now := e.now().UTC()
	task := models.Task{
		ID:        uuid.New().String(),
		Title:     title,
		Objective: objective,
		Steps:     steps,
		Settings:  settings,
		Status:    models.TaskStatusPending,
		CreatedBy: actor.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := e.tasks.SaveTask(task); err != nil {
		return models.Task{}, fmt.Errorf("failed to persist task: %w", err)
	}

	e.logger.Info("task drafted",
		logging.F("task_id", task.ID),
		logging.F("steps", len(task.Steps)))

	return task, nil
}

// Get returns a task by id
func (e *Engine) Get(taskID string) (models.Task, error) {
	return e.tasks.GetTask(taskID)
}

// List returns all tasks
func (e *Engine) List() ([]models.Task, error) {
	return e.tasks.ListTasks()
}

// RunOptions bound a run
type RunOptions struct {
	// MaxSteps caps step executions in this invocation; zero means
	// DefaultMaxSteps
	MaxSteps int
}

// Run advances a task until it finishes, pauses on an approval gate, fails,
// or exhausts the step budget. Step selection is stateless, so a later Run
// call resumes a paused task from the same point.
func (e *Engine) Run(ctx context.Context, taskID string, opts RunOptions) (models.Task, error) {
	task, err := e.tasks.GetTask(taskID)
	if err != nil {
		return models.Task{}, err
	}

	if task.Status.Terminal() {
		return task, nil
	}

	maxSteps := opts.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}

	task.Status = models.TaskStatusRunning

	halted := false
	for executed := 0; executed < maxSteps && !halted; executed++ {
		// Cancellation takes effect at the step-selection boundary
		current, err := e.tasks.GetTask(taskID)
		if err == nil && current.Status == models.TaskStatusCanceled {
			task.Status = models.TaskStatusCanceled
			return task, e.persist(&task)
		}

		step := selectStep(&task)
		if step == nil {
			break
		}

		if step.RequiresApproval {
			paused, err := e.gateOnApproval(&task, step)
			if err != nil {
				return task, err
			}
			if paused {
				return task, nil
			}
		}

		stepHalted, err := e.executeStep(ctx, &task, step)
		if err != nil {
			return task, err
		}
		if task.Status == models.TaskStatusFailed {
			return task, nil
		}
		halted = stepHalted
	}

	// A false condition ends the run without failing it
	if halted || allCompleted(&task) {
		task.Status = models.TaskStatusCompleted
		task.Summary = synthesizeSummary(&task)
	} else if task.Status == models.TaskStatusRunning {
		// Budget exhausted or dependencies unsatisfied; a later Run call
		// picks up from here
		task.Status = models.TaskStatusPending
	}

	return task, e.persist(&task)
}

// Cancel marks a task canceled. In-flight step execution is not interrupted;
// the run loop observes the cancellation at its next step boundary.
func (e *Engine) Cancel(taskID string) (models.Task, error) {
	task, err := e.tasks.GetTask(taskID)
	if err != nil {
		return models.Task{}, err
	}
	if task.Status.Terminal() {
		return task, nil
	}

	task.Status = models.TaskStatusCanceled
	if err := e.persist(&task); err != nil {
		return models.Task{}, err
	}

	e.logger.Info("task canceled", logging.F("task_id", task.ID))
	return task, nil
}

// ApplyApprovalDecision applies a human decision to an approval-gated step.
// Approval consumes the request and resets the step to pending so the next
// Run call resumes it; rejection fails the step and the task with the note
// folded into the error.
func (e *Engine) ApplyApprovalDecision(taskID, stepID string, approved bool, notes string) (models.Task, error) {
	task, err := e.tasks.GetTask(taskID)
	if err != nil {
		return models.Task{}, err
	}

	step := task.FindStep(stepID)
	if step == nil {
		return models.Task{}, &ValidationError{Field: "step_id", Message: fmt.Sprintf("step %q not found", stepID)}
	}
	if step.ApprovalID == "" {
		return models.Task{}, &ValidationError{Field: "step_id", Message: fmt.Sprintf("step %q has no pending approval", stepID)}
	}

	if !approved {
		message := "approval rejected"
		if notes != "" {
			message = fmt.Sprintf("approval rejected: %s", notes)
		}
		step.Status = models.StepStatusFailed
		step.Error = message
		task.Status = models.TaskStatusFailed
		task.Error = message
		if err := e.persist(&task); err != nil {
			return models.Task{}, err
		}
		return task, nil
	}

	if _, err := e.approvals.Consume(step.ApprovalID); err != nil {
		return models.Task{}, err
	}

	step.RequiresApproval = false
	step.Status = models.StepStatusPending
	task.Status = models.TaskStatusPending
	if err := e.persist(&task); err != nil {
		return models.Task{}, err
	}

	e.logger.Info("step approval granted",
		logging.F("task_id", taskID),
		logging.F("step_id", stepID))

	return task, nil
}

// gateOnApproval creates or checks the step's approval. It reports
// paused=true when the run must stop and wait for a human decision.
func (e *Engine) gateOnApproval(task *models.Task, step *models.Step) (bool, error) {
	if step.ApprovalID == "" {
		request, err := e.approvals.Create(serverOf(step), toolOf(step), step.Input, models.Actor{ID: task.CreatedBy}, approval.CreateOptions{
			Reason: fmt.Sprintf("step %q of task %q requires approval", step.Name, task.Title),
			TaskID: task.ID,
			StepID: step.ID,
		})
		if err != nil {
			return false, err
		}

		step.ApprovalID = request.ID
		task.Status = models.TaskStatusWaitingApproval
		return true, e.persist(task)
	}

	request, err := e.approvals.Get(step.ApprovalID)
	if err != nil {
		return false, err
	}
	if !request.Consumed() {
		// Undecided; return unchanged
		task.Status = models.TaskStatusWaitingApproval
		return true, e.persist(task)
	}

	return false, nil
}

// executeStep resolves templates, dispatches by type and records the
// outcome. It reports halted=true when a false condition stops the run.
func (e *Engine) executeStep(ctx context.Context, task *models.Task, step *models.Step) (bool, error) {
	startedAt := e.now().UTC()
	step.Status = models.StepStatusRunning
	step.StartedAt = &startedAt

	templateCtx := buildTemplateContext(task, step.ID)
	input := resolveInput(step.Input, templateCtx)
	prompt := template.ResolveString(step.Prompt, templateCtx)

	var (
		result interface{}
		err    error
		halted bool
	)

	switch step.Type {
	case models.StepTypeTool:
		result, err = e.runToolStep(ctx, step, input)
	case models.StepTypeLLM:
		result, err = e.runLLMStep(ctx, task, step, prompt)
	case models.StepTypeJob:
		result, err = e.runJobStep(ctx, task, step, input)
	case models.StepTypeCondition:
		result, halted, err = e.runConditionStep(step, templateCtx)
	default:
		err = fmt.Errorf("unknown step type %q", step.Type)
	}

	completedAt := e.now().UTC()
	step.CompletedAt = &completedAt

	if err != nil {
		step.Status = models.StepStatusFailed
		step.Error = err.Error()
		task.Status = models.TaskStatusFailed
		task.Error = fmt.Sprintf("step %q failed: %s", step.ID, err.Error())

		e.logger.Warn("step failed",
			logging.F("task_id", task.ID),
			logging.F("step_id", step.ID),
			logging.F("error", err.Error()))

		// A step failure always reaches the task record before the run
		// returns
		if persistErr := e.persist(task); persistErr != nil {
			return false, persistErr
		}
		return false, nil
	}

	step.Status = models.StepStatusCompleted
	step.Result = result
	if err := e.persist(task); err != nil {
		return false, err
	}

	return halted, nil
}

func (e *Engine) runToolStep(ctx context.Context, step *models.Step, input map[string]interface{}) (interface{}, error) {
	serverID, toolName := serverOf(step), toolOf(step)
	tool, err := e.registry.Get(serverID, toolName)
	if err != nil {
		return nil, fmt.Errorf("tool %q is not registered on server %q", toolName, serverID)
	}

	return e.boundary.Execute(ctx, boundary.Request{
		ToolID:  step.ToolID,
		Input:   input,
		Execute: boundary.ExecuteFunc(tool.Handler),
	})
}

func (e *Engine) runLLMStep(ctx context.Context, task *models.Task, step *models.Step, prompt string) (interface{}, error) {
	if e.llm == nil {
		return nil, fmt.Errorf("no completion provider configured")
	}

	model := step.Model
	if model == "" {
		model = task.Settings.Model
	}

	messages := []utils.Message{}
	if task.Objective != "" {
		messages = append(messages, utils.Message{Role: "system", Content: task.Objective})
	}
	messages = append(messages, utils.Message{Role: "user", Content: prompt})

	text, raw, err := e.llm.ChatCompletion(ctx, model, task.Settings.Temperature, messages)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"text": text,
		"raw":  raw,
	}, nil
}

// runJobStep defers work to the job queue and returns a queued stub; the
// step itself performs no real side effect
func (e *Engine) runJobStep(ctx context.Context, task *models.Task, step *models.Step, input map[string]interface{}) (interface{}, error) {
	stub := map[string]interface{}{
		"queued":  true,
		"task_id": task.ID,
		"step_id": step.ID,
	}

	if e.jobs != nil {
		job, _, err := e.jobs.Enqueue(ctx, "task_step_job", map[string]interface{}{
			"task_id": task.ID,
			"step_id": step.ID,
			"input":   input,
		}, queue.EnqueueOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to enqueue job step: %w", err)
		}
		stub["job_id"] = job.ID
	}

	return stub, nil
}

func (e *Engine) runConditionStep(step *models.Step, templateCtx map[string]interface{}) (interface{}, bool, error) {
	if step.Condition == nil {
		return nil, false, fmt.Errorf("condition step %q has no condition", step.ID)
	}

	matched, err := EvaluateCondition(*step.Condition, templateCtx)
	if err != nil {
		return nil, false, err
	}

	// A false condition halts the remaining steps without failing the run
	return map[string]interface{}{"matched": matched}, !matched, nil
}

func (e *Engine) persist(task *models.Task) error {
	task.UpdatedAt = e.now().UTC()
	if err := e.tasks.SaveTask(*task); err != nil {
		return fmt.Errorf("failed to persist task: %w", err)
	}
	if e.notifier != nil {
		e.notifier.TaskUpdated(*task)
	}
	return nil
}

// selectStep returns the first pending step whose dependencies are all
// completed, or nil when none is runnable
func selectStep(task *models.Task) *models.Step {
	for i := range task.Steps {
		step := &task.Steps[i]
		if step.Status != models.StepStatusPending {
			continue
		}

		ready := true
		for _, dep := range step.DependsOn {
			if depStep := task.FindStep(dep); depStep == nil || depStep.Status != models.StepStatusCompleted {
				ready = false
				break
			}
		}
		if ready {
			return step
		}
	}
	return nil
}

func allCompleted(task *models.Task) bool {
	for _, step := range task.Steps {
		if step.Status != models.StepStatusCompleted {
			return false
		}
	}
	return true
}

// buildTemplateContext exposes every prior step to templating under its id
func buildTemplateContext(task *models.Task, currentStepID string) map[string]interface{} {
	ctx := make(map[string]interface{}, len(task.Steps))
	for _, step := range task.Steps {
		if step.ID == currentStepID {
			continue
		}
		ctx[step.ID] = map[string]interface{}{
			"id":     step.ID,
			"status": string(step.Status),
			"input":  step.Input,
			"result": step.Result,
			"error":  step.Error,
		}
	}
	return ctx
}

func resolveInput(input map[string]interface{}, templateCtx map[string]interface{}) map[string]interface{} {
	if input == nil {
		return nil
	}
	resolved, _ := template.ResolveValue(input, templateCtx).(map[string]interface{})
	return resolved
}

// serverOf splits a step's tool id into its server part; a bare tool name
// belongs to the builtin server
func serverOf(step *models.Step) string {
	if idx := strings.Index(step.ToolID, "/"); idx > 0 {
		return step.ToolID[:idx]
	}
	return tools.BuiltinServerID
}

func toolOf(step *models.Step) string {
	if idx := strings.Index(step.ToolID, "/"); idx > 0 {
		return step.ToolID[idx+1:]
	}
	return step.ToolID
}

// synthesizeSummary joins step results into a bounded-length summary
func synthesizeSummary(task *models.Task) string {
	var builder strings.Builder
	for _, step := range task.Steps {
		if step.Result == nil {
			continue
		}
		line := fmt.Sprintf("%s: %s\n", step.Name, template.ResolveString(stringifyResult(step.Result), nil))
		if builder.Len()+len(line) > maxSummaryLength {
			builder.WriteString(line[:maxSummaryLength-builder.Len()])
			break
		}
		builder.WriteString(line)
	}
	return strings.TrimSpace(builder.String())
}

func stringifyResult(result interface{}) string {
	switch v := result.(type) {
	case string:
		return v
	case map[string]interface{}:
		if text, ok := v["text"].(string); ok {
			return text
		}
		return fmt.Sprintf("%v", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
