package api

import (
	"encoding/json"
	"net/http"

	"github.com/stagehand-ai/stagehand/pkg/approval"
	"github.com/stagehand-ai/stagehand/pkg/boundary"
	"github.com/stagehand-ai/stagehand/pkg/engine"
	"github.com/stagehand-ai/stagehand/pkg/gateway"
	"github.com/stagehand-ai/stagehand/pkg/policy"
	"github.com/stagehand-ai/stagehand/pkg/storage"
	"github.com/stagehand-ai/stagehand/pkg/workflow"
)

// errorBody is the uniform error envelope
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

func writeErrorCode(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// writeError maps a service error onto an HTTP status and coded body
func writeError(w http.ResponseWriter, err error) {
	switch typed := err.(type) {
	case *policy.ValidationError:
		writeErrorCode(w, http.StatusBadRequest, typed.Code(), typed.Error())
	case *engine.ValidationError:
		writeErrorCode(w, http.StatusBadRequest, typed.Code(), typed.Error())
	case *workflow.ValidationError:
		writeErrorCode(w, http.StatusBadRequest, typed.Code(), typed.Error())
	case *gateway.CodedError:
		writeErrorCode(w, gatewayStatus(typed.Code), typed.Code, typed.Message)
	case *approval.Error:
		writeErrorCode(w, approvalStatus(typed.Code), typed.Code, typed.Message)
	case *boundary.Error:
		writeErrorCode(w, http.StatusUnprocessableEntity, typed.Code, typed.Message)
	default:
		if isNotFound(err) {
			writeErrorCode(w, http.StatusNotFound, "NOT_FOUND", err.Error())
			return
		}
		writeErrorCode(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}

func gatewayStatus(code string) int {
	switch code {
	case gateway.CodePolicyDenied:
		return http.StatusForbidden
	case gateway.CodeToolNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func approvalStatus(code string) int {
	switch code {
	case approval.CodeNotFound:
		return http.StatusNotFound
	case approval.CodeConsumed:
		return http.StatusConflict
	case approval.CodeExpired:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

func isNotFound(err error) bool {
	switch err {
	case storage.ErrTaskNotFound,
		storage.ErrWorkflowNotFound,
		storage.ErrRunNotFound,
		storage.ErrApprovalNotFound,
		storage.ErrGovernanceNotFound,
		storage.ErrAccountNotFound:
		return true
	}
	return false
}
