package audit

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagehand-ai/stagehand/pkg/logging"
	"github.com/stagehand-ai/stagehand/pkg/models"
	"github.com/stagehand-ai/stagehand/pkg/storage"
)

func newRecorder(t *testing.T) *Recorder {
	t.Helper()
	provider := storage.NewMemoryProvider()
	require.NoError(t, provider.Initialize())
	return NewRecorder(provider.GetAuditStore(), logging.NewNopLogger())
}

func TestRecordComputesLatencyFromCompletedAt(t *testing.T) {
	recorder := newRecorder(t)
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	completed := started.Add(250 * time.Millisecond)

	err := recorder.Record(models.AuditRecord{
		CorrelationID: "corr-1",
		StartedAt:     started,
		CompletedAt:   &completed,
		ToolName:      "echo",
		Decision:      models.DecisionAllowed,
		Status:        models.CallSuccess,
	})
	require.NoError(t, err)

	records, err := recorder.List(storage.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(250), records[0].LatencyMS)
	assert.Nil(t, records[0].NotExecutedAt)
}

func TestRecordComputesLatencyFromNotExecutedAt(t *testing.T) {
	recorder := newRecorder(t)
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	refused := started.Add(5 * time.Millisecond)

	err := recorder.Record(models.AuditRecord{
		CorrelationID: "corr-2",
		StartedAt:     started,
		NotExecutedAt: &refused,
		ToolName:      "delete_account",
		Decision:      models.DecisionDenied,
		Status:        models.CallNotExecuted,
		Error:         &models.AuditError{Code: "MCP_POLICY_DENIED", Message: "blocked by trust policy"},
	})
	require.NoError(t, err)

	records, err := recorder.List(storage.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(5), records[0].LatencyMS)
	assert.Nil(t, records[0].CompletedAt)
	require.NotNil(t, records[0].Error)
	assert.Equal(t, "MCP_POLICY_DENIED", records[0].Error.Code)
}

func TestRecordRedactsInputAndOutput(t *testing.T) {
	recorder := newRecorder(t)
	started := time.Now().UTC()
	completed := started.Add(time.Millisecond)

	err := recorder.Record(models.AuditRecord{
		CorrelationID: "corr-3",
		StartedAt:     started,
		CompletedAt:   &completed,
		ToolName:      "http_request",
		Input: map[string]interface{}{
			"url":     "https://api.example.com",
			"api_key": "sk-live-abc123",
			"nested":  map[string]interface{}{"authorization": "Bearer xyz"},
		},
		Output: map[string]interface{}{
			"token": "abc",
			"body":  "ok",
		},
		Decision: models.DecisionAllowed,
		Status:   models.CallSuccess,
	})
	require.NoError(t, err)

	records, err := recorder.List(storage.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, records, 1)

	record := records[0]
	assert.Equal(t, "https://api.example.com", record.Input["url"])
	assert.Equal(t, RedactionMarker, record.Input["api_key"])
	nested := record.Input["nested"].(map[string]interface{})
	assert.Equal(t, RedactionMarker, nested["authorization"])

	output := record.Output.(map[string]interface{})
	assert.Equal(t, RedactionMarker, output["token"])
	assert.Equal(t, "ok", output["body"])
}

func TestListFilters(t *testing.T) {
	recorder := newRecorder(t)
	started := time.Now().UTC()

	for i := 0; i < 3; i++ {
		serverID := "server-a"
		decision := models.DecisionAllowed
		if i == 2 {
			serverID = "server-b"
			decision = models.DecisionDenied
		}
		completed := started.Add(time.Millisecond)
		require.NoError(t, recorder.Record(models.AuditRecord{
			CorrelationID: fmt.Sprintf("corr-%d", i),
			StartedAt:     started,
			CompletedAt:   &completed,
			Server:        models.AuditServer{ServerID: serverID},
			ToolName:      "echo",
			Decision:      decision,
			Status:        models.CallSuccess,
		}))
	}

	records, err := recorder.List(storage.AuditFilter{ServerID: "server-a"})
	require.NoError(t, err)
	assert.Len(t, records, 2)

	records, err = recorder.List(storage.AuditFilter{Decision: models.DecisionDenied})
	require.NoError(t, err)
	assert.Len(t, records, 1)

	records, err = recorder.List(storage.AuditFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestConcurrentRecordsAllLand(t *testing.T) {
	recorder := newRecorder(t)
	started := time.Now().UTC()

	const writers = 20
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func(i int) {
			defer wg.Done()
			completed := started.Add(time.Millisecond)
			_ = recorder.Record(models.AuditRecord{
				CorrelationID: fmt.Sprintf("corr-%d", i),
				StartedAt:     started,
				CompletedAt:   &completed,
				ToolName:      "echo",
				Decision:      models.DecisionAllowed,
				Status:        models.CallSuccess,
			})
		}(i)
	}
	wg.Wait()

	records, err := recorder.List(storage.AuditFilter{})
	require.NoError(t, err)
	assert.Len(t, records, writers)
}

func TestRedactValueTruncatesDeepNesting(t *testing.T) {
	value := interface{}("leaf")
	for i := 0; i < maxRedactDepth+2; i++ {
		value = map[string]interface{}{"level": value}
	}

	redacted := RedactValue(value)
	for i := 0; i < maxRedactDepth+1; i++ {
		redacted = redacted.(map[string]interface{})["level"]
	}
	assert.Equal(t, TruncationMarker, redacted)
}
