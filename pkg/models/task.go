// Package models defines the core data records shared across stagehand.
package models

import "time"

// TaskStatus represents the overall state of a task
type TaskStatus string

const (
	// TaskStatusPending means the task has been created but not started
	TaskStatusPending TaskStatus = "pending"

	// TaskStatusRunning means the task is currently executing steps
	TaskStatusRunning TaskStatus = "running"

	// TaskStatusWaitingApproval means execution is paused on an approval gate
	TaskStatusWaitingApproval TaskStatus = "waiting_approval"

	// TaskStatusCompleted means every step finished successfully
	TaskStatusCompleted TaskStatus = "completed"

	// TaskStatusFailed means a step failed and the task stopped
	TaskStatusFailed TaskStatus = "failed"

	// TaskStatusCanceled means the task was canceled by the caller
	TaskStatusCanceled TaskStatus = "canceled"
)

// Terminal reports whether the status is a terminal state
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusCanceled
}

// StepStatus represents the state of a single step
type StepStatus string

const (
	// StepStatusPending means the step has not run yet
	StepStatusPending StepStatus = "pending"

	// StepStatusRunning means the step is executing
	StepStatusRunning StepStatus = "running"

	// StepStatusCompleted means the step finished successfully
	StepStatusCompleted StepStatus = "completed"

	// StepStatusFailed means the step failed
	StepStatusFailed StepStatus = "failed"
)

// StepType determines how a step is dispatched
type StepType string

const (
	// StepTypeTool executes a tool through the execution boundary
	StepTypeTool StepType = "tool"

	// StepTypeLLM calls the completion provider
	StepTypeLLM StepType = "llm"

	// StepTypeJob returns a queued stub; execution is deferred to the job queue
	StepTypeJob StepType = "job"

	// StepTypeCondition evaluates a predicate and may halt the remaining steps
	StepTypeCondition StepType = "condition"
)

// Step is one unit of work inside a task or workflow run
type Step struct {
	// ID of the step, unique within its task
	ID string `json:"id" yaml:"id"`

	// Name is a human-readable label
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Type determines how the step is dispatched
	Type StepType `json:"type" yaml:"type"`

	// ToolID identifies the tool for tool-type steps, as "serverId/toolName"
	ToolID string `json:"tool_id,omitempty" yaml:"tool_id,omitempty"`

	// Prompt is the templated prompt for llm-type steps
	Prompt string `json:"prompt,omitempty" yaml:"prompt,omitempty"`

	// Model overrides the task-level model for llm-type steps
	Model string `json:"model,omitempty" yaml:"model,omitempty"`

	// Input is the templated input payload
	Input map[string]interface{} `json:"input,omitempty" yaml:"input,omitempty"`

	// Condition holds the predicate for condition-type steps
	Condition *Condition `json:"condition,omitempty" yaml:"condition,omitempty"`

	// DependsOn lists step IDs that must complete before this step runs
	DependsOn []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`

	// RequiresApproval gates the step behind a human approval
	RequiresApproval bool `json:"requires_approval,omitempty" yaml:"requires_approval,omitempty"`

	// ApprovalID is the approval request created for this step, if any
	ApprovalID string `json:"approval_id,omitempty" yaml:"-"`

	// Status of the step
	Status StepStatus `json:"status" yaml:"-"`

	// Result of the step once completed
	Result interface{} `json:"result,omitempty" yaml:"-"`

	// Error message if the step failed
	Error string `json:"error,omitempty" yaml:"-"`

	// StartedAt is when the step began executing
	StartedAt *time.Time `json:"started_at,omitempty" yaml:"-"`

	// CompletedAt is when the step finished
	CompletedAt *time.Time `json:"completed_at,omitempty" yaml:"-"`
}

// Condition is the predicate evaluated by condition-type steps
type Condition struct {
	// Left operand, templated
	Left string `json:"left" yaml:"left"`

	// Op is one of "equals", "contains", "exists"
	Op string `json:"op" yaml:"op"`

	// Right operand, templated
	Right string `json:"right,omitempty" yaml:"right,omitempty"`
}

// TaskSettings carries per-task LLM defaults
type TaskSettings struct {
	// Model is the default model for llm-type steps
	Model string `json:"model,omitempty"`

	// Temperature is the sampling temperature for llm-type steps
	Temperature float64 `json:"temperature,omitempty"`
}

// Task is an ad-hoc, user-triggered run of a step graph
type Task struct {
	// ID of the task
	ID string `json:"id"`

	// Title of the task
	Title string `json:"title"`

	// Objective describes what the task is trying to achieve
	Objective string `json:"objective,omitempty"`

	// Status of the task
	Status TaskStatus `json:"status"`

	// Steps is the step graph
	Steps []Step `json:"steps"`

	// Settings carries LLM defaults
	Settings TaskSettings `json:"settings"`

	// Summary is synthesized from step results on completion
	Summary string `json:"summary,omitempty"`

	// Error message if the task failed
	Error string `json:"error,omitempty"`

	// CreatedBy is the account id of the task creator
	CreatedBy string `json:"created_by,omitempty"`

	// CreatedAt is when the task was created
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the task was last modified
	UpdatedAt time.Time `json:"updated_at"`

	// StartedAt is when the first run call began
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the task reached a terminal state
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// FindStep returns a pointer to the step with the given ID, or nil
func (t *Task) FindStep(id string) *Step {
	for i := range t.Steps {
		if t.Steps[i].ID == id {
			return &t.Steps[i]
		}
	}
	return nil
}
