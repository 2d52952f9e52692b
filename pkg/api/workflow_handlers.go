package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/stagehand-ai/stagehand/pkg/models"
)

// handleCreateWorkflow creates a workflow from a JSON or YAML body
func (s *Server) handleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	contentType := r.Header.Get("Content-Type")

	if strings.Contains(contentType, "yaml") || strings.Contains(contentType, "yml") {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeErrorCode(w, http.StatusBadRequest, "VALIDATION_ERROR", "failed to read request body")
			return
		}
		created, err := s.workflows.CreateFromYAML(string(body))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
		return
	}

	var workflow models.Workflow
	if err := json.NewDecoder(r.Body).Decode(&workflow); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
		return
	}

	created, err := s.workflows.Create(workflow)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// handleListWorkflows returns all workflow definitions
func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	workflows, err := s.workflows.List()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"workflows": workflows})
}

// handleGetWorkflow returns one workflow definition
func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	workflow, err := s.workflows.Get(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, workflow)
}

// handleUpdateWorkflow replaces a workflow definition
func (s *Server) handleUpdateWorkflow(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var workflow models.Workflow
	if err := json.NewDecoder(r.Body).Decode(&workflow); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
		return
	}

	updated, err := s.workflows.Update(id, workflow)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// handleDeleteWorkflow removes a workflow definition; its runs are kept
func (s *Server) handleDeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	if err := s.workflows.Delete(mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// TriggerWorkflowRequest carries the manual trigger payload
type TriggerWorkflowRequest struct {
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// handleTriggerWorkflow fires a workflow manually
func (s *Server) handleTriggerWorkflow(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req TriggerWorkflowRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErrorCode(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
			return
		}
	}

	run, deduped, err := s.workflows.Trigger(r.Context(), id, req.Payload)
	if err != nil {
		writeError(w, err)
		return
	}
	if deduped {
		writeJSON(w, http.StatusOK, map[string]interface{}{"deduped": true})
		return
	}
	writeJSON(w, http.StatusAccepted, run)
}

// handleListWorkflowRuns returns a workflow's run history, most recent first
func (s *Server) handleListWorkflowRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.workflows.ListRuns(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}
