// Package audit implements the append-only audit trail for governed tool
// calls, including secret redaction of recorded payloads.
package audit

import (
	"fmt"
	"sync"

	"github.com/stagehand-ai/stagehand/pkg/logging"
	"github.com/stagehand-ai/stagehand/pkg/models"
	"github.com/stagehand-ai/stagehand/pkg/storage"
)

// Recorder appends redacted audit records through a single serialized
// writer. One record write completes fully before the next begins, so
// concurrent callers never interleave records.
type Recorder struct {
	store  storage.AuditStore
	logger logging.Logger
	mu     sync.Mutex
}

// NewRecorder creates a recorder backed by the given store
func NewRecorder(store storage.AuditStore, logger logging.Logger) *Recorder {
	return &Recorder{store: store, logger: logger}
}

// Record redacts, finalizes and appends one audit record. It is written
// synchronously; callers must invoke it before surfacing a result so audit
// completeness does not depend on response delivery.
func (r *Recorder) Record(record models.AuditRecord) error {
	record.Input = RedactMap(record.Input)
	if record.Output != nil {
		record.Output = RedactValue(record.Output)
	}

	// Latency is measured to whichever end-time the branch produced
	end := record.CompletedAt
	if end == nil {
		end = record.NotExecutedAt
	}
	if end != nil {
		latency := end.Sub(record.StartedAt).Milliseconds()
		if latency < 0 {
			latency = 0
		}
		record.LatencyMS = latency
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.AppendAudit(record); err != nil {
		return fmt.Errorf("failed to append audit record: %w", err)
	}

	r.logger.Info("audit record appended",
		logging.F("correlation_id", record.CorrelationID),
		logging.F("server_id", record.Server.ServerID),
		logging.F("tool_name", record.ToolName),
		logging.F("decision", string(record.Decision)),
		logging.F("status", string(record.Status)))

	return nil
}

// List returns audit records matching the filter, most recent first.
// Reads are served from the store snapshot and do not block writers.
func (r *Recorder) List(filter storage.AuditFilter) ([]models.AuditRecord, error) {
	return r.store.ListAudit(filter)
}
