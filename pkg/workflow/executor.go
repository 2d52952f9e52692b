package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/stagehand-ai/stagehand/pkg/engine"
	"github.com/stagehand-ai/stagehand/pkg/logging"
	"github.com/stagehand-ai/stagehand/pkg/models"
	"github.com/stagehand-ai/stagehand/pkg/storage"
)

// Executor drives a queued workflow run through the step engine. The run
// reuses the task step loop, so conditions, approvals and templating behave
// identically in both front-ends.
type Executor struct {
	service   *Service
	engine    *engine.Engine
	workflows storage.WorkflowStore
	runs      storage.WorkflowRunStore
	logger    logging.Logger
	now       func() time.Time
}

// NewExecutor creates a workflow run executor
func NewExecutor(service *Service, stepEngine *engine.Engine, workflows storage.WorkflowStore, runs storage.WorkflowRunStore, logger logging.Logger) *Executor {
	return &Executor{
		service:   service,
		engine:    stepEngine,
		workflows: workflows,
		runs:      runs,
		logger:    logger,
		now:       time.Now,
	}
}

// ExecuteRun executes one queued run to completion or failure and notifies
// runCompleted listeners afterwards
func (e *Executor) ExecuteRun(ctx context.Context, runID string) error {
	run, err := e.runs.GetRun(runID)
	if err != nil {
		return fmt.Errorf("failed to load workflow run: %w", err)
	}
	if run.Status != models.RunStatusQueued {
		// Already picked up by another worker or finished
		return nil
	}

	workflow, err := e.workflows.GetWorkflow(run.WorkflowID)
	if err != nil {
		return e.failRun(&run, fmt.Sprintf("workflow not found: %s", err))
	}

	run.Status = models.RunStatusRunning
	if err := e.saveRun(&run); err != nil {
		return err
	}

	// The engine works on its own copy of the step graph
	steps := append([]models.Step(nil), workflow.Steps...)

	task, err := e.engine.CreateDraft(
		fmt.Sprintf("workflow: %s", workflow.Name),
		"",
		steps,
		models.TaskSettings{},
		models.Actor{ID: "workflow:" + workflow.ID},
	)
	if err != nil {
		return e.failRun(&run, fmt.Sprintf("failed to draft run steps: %s", err))
	}

	task, err = e.engine.Run(ctx, task.ID, engine.RunOptions{})
	if err != nil {
		return e.failRun(&run, err.Error())
	}

	mirrorSteps(&run, &task)

	switch task.Status {
	case models.TaskStatusCompleted:
		run.Status = models.RunStatusCompleted
		run.Output = lastCompletedResult(&task)
	case models.TaskStatusFailed:
		run.Status = models.RunStatusFailed
		run.Error = task.Error
	default:
		// waiting_approval or budget exhaustion; the run stays resumable
		// through the task it spawned
		run.Status = models.RunStatusRunning
	}

	if err := e.saveRun(&run); err != nil {
		return err
	}

	e.logger.Info("workflow run finished",
		logging.F("workflow_id", workflow.ID),
		logging.F("run_id", run.ID),
		logging.F("status", string(run.Status)))

	if run.Status == models.RunStatusCompleted {
		// Chained workflows are throttled by the minimum re-fire interval
		if err := e.service.NotifyRunCompleted(ctx, RunCompletedEvent{
			RunID: run.ID,
			Event: workflow.Name,
		}); err != nil {
			e.logger.Error("runCompleted notification failed",
				logging.F("run_id", run.ID),
				logging.F("error", err.Error()))
		}
	}

	return nil
}

func (e *Executor) failRun(run *models.WorkflowRun, message string) error {
	run.Status = models.RunStatusFailed
	run.Error = message
	return e.saveRun(run)
}

func (e *Executor) saveRun(run *models.WorkflowRun) error {
	run.UpdatedAt = e.now().UTC()
	if err := e.runs.SaveRun(*run); err != nil {
		return fmt.Errorf("failed to persist workflow run: %w", err)
	}
	return nil
}

// mirrorSteps copies per-step outcomes from the spawned task onto the run
// record
func mirrorSteps(run *models.WorkflowRun, task *models.Task) {
	for i := range run.Steps {
		if step := task.FindStep(run.Steps[i].ID); step != nil {
			run.Steps[i].Status = step.Status
			run.Steps[i].Result = step.Result
		}
	}
}

func lastCompletedResult(task *models.Task) interface{} {
	var result interface{}
	for _, step := range task.Steps {
		if step.Status == models.StepStatusCompleted && step.Result != nil {
			result = step.Result
		}
	}
	return result
}
