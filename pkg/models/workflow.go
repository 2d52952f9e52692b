package models

import "time"

// TriggerType determines what causes a workflow to run
type TriggerType string

const (
	// TriggerManual fires only on an explicit API call
	TriggerManual TriggerType = "manual"

	// TriggerCron fires on a schedule
	TriggerCron TriggerType = "cron"

	// TriggerEvent fires on a named event
	TriggerEvent TriggerType = "event"

	// TriggerRunCompleted fires when a conversation run finishes
	TriggerRunCompleted TriggerType = "runCompleted"
)

// Trigger describes when a workflow should run
type Trigger struct {
	// Type of the trigger
	Type TriggerType `json:"type" yaml:"type"`

	// Cron is the schedule expression for cron triggers.
	// Only "* * * * *" and "*/N * * * *" are accepted.
	Cron string `json:"cron,omitempty" yaml:"cron,omitempty"`

	// Event is the event name filter for event and runCompleted triggers
	Event string `json:"event,omitempty" yaml:"event,omitempty"`
}

// Workflow is a trigger-driven step graph definition
type Workflow struct {
	// ID of the workflow
	ID string `json:"id" yaml:"id"`

	// Name of the workflow
	Name string `json:"name" yaml:"name"`

	// Enabled gates whether triggers fire
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Trigger describes when the workflow runs
	Trigger Trigger `json:"trigger" yaml:"trigger"`

	// Steps is the step graph executed per run
	Steps []Step `json:"steps" yaml:"steps"`

	// LastTriggeredAt is when the workflow last fired
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty" yaml:"-"`

	// LastRunID is the most recent run created for this workflow
	LastRunID string `json:"last_run_id,omitempty" yaml:"-"`

	// CreatedAt is when the workflow was created
	CreatedAt time.Time `json:"created_at" yaml:"-"`

	// UpdatedAt is when the workflow was last modified
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}

// RunStatus represents the state of a workflow run
type RunStatus string

const (
	// RunStatusQueued means the run is waiting for the job queue
	RunStatusQueued RunStatus = "queued"

	// RunStatusRunning means the run is executing
	RunStatusRunning RunStatus = "running"

	// RunStatusCompleted means the run finished successfully
	RunStatusCompleted RunStatus = "completed"

	// RunStatusFailed means the run failed
	RunStatusFailed RunStatus = "failed"
)

// RunStep is the per-run snapshot of a workflow step
type RunStep struct {
	// ID of the step
	ID string `json:"id"`

	// Name of the step
	Name string `json:"name,omitempty"`

	// Type of the step
	Type StepType `json:"type"`

	// Status of the step within this run
	Status StepStatus `json:"status"`

	// Result of the step within this run
	Result interface{} `json:"result,omitempty"`
}

// WorkflowRun records one execution of a workflow. Runs are created before
// the underlying job executes, updated in place, and never deleted.
type WorkflowRun struct {
	// ID of the run
	ID string `json:"id"`

	// WorkflowID is the workflow this run belongs to
	WorkflowID string `json:"workflow_id"`

	// Status of the run
	Status RunStatus `json:"status"`

	// TriggerType records what fired the run
	TriggerType TriggerType `json:"trigger_type"`

	// TriggerPayload is the payload carried by the trigger
	TriggerPayload map[string]interface{} `json:"trigger_payload,omitempty"`

	// Steps is the per-run step state
	Steps []RunStep `json:"steps"`

	// Output is the result of the final completed step
	Output interface{} `json:"output,omitempty"`

	// Error message if the run failed
	Error string `json:"error,omitempty"`

	// JobID is the queue job that dispatched this run
	JobID string `json:"job_id,omitempty"`

	// CreatedAt is when the run was created
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the run was last modified
	UpdatedAt time.Time `json:"updated_at"`
}
