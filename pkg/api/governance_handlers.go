package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

// handleListServers returns all configured servers with their governance
// fields and tool catalogs
func (s *Server) handleListServers(w http.ResponseWriter, r *http.Request) {
	records, err := s.governance.List()
	if err != nil {
		writeError(w, err)
		return
	}

	servers := make([]map[string]interface{}, 0, len(records))
	for _, record := range records {
		servers = append(servers, map[string]interface{}{
			"governance": record,
			"tools":      s.registry.List(record.ID),
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"servers": servers})
}

// handleGetServer returns one server's governance record and tool catalog.
// Unconfigured servers resolve to the default governance record.
func (s *Server) handleGetServer(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	record, err := s.governance.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"governance": record,
		"tools":      s.registry.List(id),
	})
}

// handlePatchGovernance applies a partial governance update
func (s *Server) handlePatchGovernance(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var patch map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
		return
	}

	record, err := s.governance.Update(id, patch)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, record)
}
