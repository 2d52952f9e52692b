package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/stagehand-ai/stagehand/pkg/gateway"
	"github.com/stagehand-ai/stagehand/pkg/models"
	"github.com/stagehand-ai/stagehand/pkg/storage"
)

// CallToolRequest represents a governed tool call
type CallToolRequest struct {
	Input  map[string]interface{} `json:"input"`
	Reason string                 `json:"reason,omitempty"`
}

// handleCallTool invokes a tool through the gateway's three-way decision
func (s *Server) handleCallTool(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	serverID, toolName := vars["id"], vars["tool"]

	var req CallToolRequest
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

	result, err := s.gateway.CallTool(r.Context(), serverID, toolName, req.Input, actor, gateway.CallOptions{
		Reason: req.Reason,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	if result.Decision == models.DecisionApprovalRequired {
		writeJSON(w, http.StatusAccepted, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleApprove consumes an approval and executes the approved call
func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	approvalID := mux.Vars(r)["id"]

	accountID, _ := s.actor(r)
	actor, err := s.accountService.GetActor(accountID)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := s.gateway.Approve(r.Context(), approvalID, actor)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleListAudit returns audit records, most recent first
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filter := storage.AuditFilter{
		ServerID: query.Get("server_id"),
		Decision: models.Decision(query.Get("decision")),
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeErrorCode(w, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}

	records, err := s.recorder.List(filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"records": records})
}
