package workflow

import (
	"context"
	"time"

	"github.com/stagehand-ai/stagehand/pkg/logging"
	"github.com/stagehand-ai/stagehand/pkg/queue"
)

// Worker consumes the job queue and dispatches workflow runs to the executor
type Worker struct {
	jobs     queue.JobQueue
	executor *Executor
	logger   logging.Logger
}

// NewWorker creates a queue worker
func NewWorker(jobs queue.JobQueue, executor *Executor, logger logging.Logger) *Worker {
	return &Worker{jobs: jobs, executor: executor, logger: logger}
}

// Run consumes jobs until the context ends
func (w *Worker) Run(ctx context.Context) {
	for {
		job, err := w.jobs.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || err == queue.ErrQueueClosed {
				return
			}
			w.logger.Error("failed to dequeue job", logging.F("error", err.Error()))
			time.Sleep(time.Second)
			continue
		}

		w.handle(ctx, job)
	}
}

func (w *Worker) handle(ctx context.Context, job queue.Job) {
	switch job.Type {
	case JobTypeRun:
		runID, _ := job.Payload["run_id"].(string)
		if runID == "" {
			w.logger.Warn("workflow_run job missing run_id", logging.F("job_id", job.ID))
			return
		}
		if err := w.executor.ExecuteRun(ctx, runID); err != nil {
			w.logger.Error("workflow run execution failed",
				logging.F("job_id", job.ID),
				logging.F("run_id", runID),
				logging.F("error", err.Error()))
		}
	default:
		w.logger.Debug("ignoring job of unknown type",
			logging.F("job_id", job.ID),
			logging.F("type", job.Type))
	}
}
