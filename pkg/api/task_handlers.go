package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/stagehand-ai/stagehand/pkg/engine"
	"github.com/stagehand-ai/stagehand/pkg/models"
)

// CreateTaskRequest represents a task draft
type CreateTaskRequest struct {
	Title     string              `json:"title"`
	Objective string              `json:"objective,omitempty"`
	Steps     []models.Step       `json:"steps"`
	Settings  models.TaskSettings `json:"settings"`
}

// handleCreateTask drafts a new task
func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
		return
	}

	accountID, _ := s.actor(r)
	actor, err := s.accountService.GetActor(accountID)
	if err != nil {
		writeError(w, err)
		return
	}

	task, err := s.engine.CreateDraft(req.Title, req.Objective, req.Steps, req.Settings, actor)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, task)
}

// handleListTasks returns all tasks
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.engine.List()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tasks": tasks})
}

// handleGetTask returns one task
func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.engine.Get(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// RunTaskRequest bounds a run invocation
type RunTaskRequest struct {
	MaxSteps int `json:"max_steps,omitempty"`
}

// handleRunTask advances a task through the step loop
func (s *Server) handleRunTask(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req RunTaskRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErrorCode(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
			return
		}
	}

	task, err := s.engine.Run(r.Context(), id, engine.RunOptions{MaxSteps: req.MaxSteps})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// handleCancelTask marks a task canceled
func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.engine.Cancel(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// TaskApprovalRequest represents a human decision on an approval-gated step
type TaskApprovalRequest struct {
	Decision string `json:"decision"` // "approved" or "rejected"
	Notes    string `json:"notes,omitempty"`
}

// handleTaskApprovalDecision applies an approval decision to a task step
func (s *Server) handleTaskApprovalDecision(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	taskID, stepID := vars["id"], vars["stepId"]

	var req TaskApprovalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
		return
	}

	switch req.Decision {
	case "approved", "rejected":
	default:
		writeErrorCode(w, http.StatusBadRequest, "VALIDATION_ERROR", `decision must be "approved" or "rejected"`)
		return
	}

	task, err := s.engine.ApplyApprovalDecision(taskID, stepID, req.Decision == "approved", req.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}
