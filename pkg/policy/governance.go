package policy

import (
	"fmt"
	"time"

	"github.com/stagehand-ai/stagehand/pkg/logging"
	"github.com/stagehand-ai/stagehand/pkg/models"
	"github.com/stagehand-ai/stagehand/pkg/storage"
)

// ValidationError signals a rejected governance patch. No state is mutated
// when one is returned.
type ValidationError struct {
	// Field is the offending patch field
	Field string

	// Message describes the violation
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on %q: %s", e.Field, e.Message)
}

// Code returns the machine-readable error code
func (e *ValidationError) Code() string { return "VALIDATION_ERROR" }

// GovernanceService owns server governance records. All reads and writes of
// governance state go through this service.
type GovernanceService struct {
	store  storage.GovernanceStore
	logger logging.Logger
	now    func() time.Time
}

// NewGovernanceService creates a governance service backed by the given store
func NewGovernanceService(store storage.GovernanceStore, logger logging.Logger) *GovernanceService {
	return &GovernanceService{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Get returns the governance record for a server, falling back to the
// untrusted/medium default for servers that were never configured.
func (s *GovernanceService) Get(serverID string) (models.ServerGovernance, error) {
	record, err := s.store.GetGovernance(serverID)
	if err == storage.ErrGovernanceNotFound {
		return models.DefaultGovernance(serverID), nil
	}
	if err != nil {
		return models.ServerGovernance{}, fmt.Errorf("failed to load governance record: %w", err)
	}
	return record, nil
}

// List returns all explicitly configured governance records
func (s *GovernanceService) List() ([]models.ServerGovernance, error) {
	return s.store.ListGovernance()
}

// Mutable patch fields and their validators. id, owner and created_at are
// immutable after creation; anything else is unknown.
var immutableFields = map[string]bool{
	"id":         true,
	"owner":      true,
	"created_at": true,
	"updated_at": true,
}

var patchFields = map[string]bool{
	"trust_state": true,
	"risk_tier":   true,
	"allow_tools": true,
	"deny_tools":  true,
	"notes":       true,
}

// Update validates and applies a patch to a server's governance record. The
// patch is a partial document; unknown fields, immutable fields, invalid enum
// values, malformed pattern lists and the direct blocked-to-trusted
// transition are each rejected with a ValidationError before any mutation.
func (s *GovernanceService) Update(serverID string, patch map[string]interface{}) (models.ServerGovernance, error) {
	record, err := s.Get(serverID)
	if err != nil {
		return models.ServerGovernance{}, err
	}

	// Validate every field before touching the record
	for field := range patch {
		if immutableFields[field] {
			return models.ServerGovernance{}, &ValidationError{Field: field, Message: "field is immutable"}
		}
		if !patchFields[field] {
			return models.ServerGovernance{}, &ValidationError{Field: field, Message: "unknown field"}
		}
	}

	updated := record

	if raw, ok := patch["trust_state"]; ok {
		value, ok := raw.(string)
		if !ok || !models.TrustState(value).Valid() {
			return models.ServerGovernance{}, &ValidationError{
				Field:   "trust_state",
				Message: fmt.Sprintf("must be one of untrusted, trusted, blocked; got %v", raw),
			}
		}
		next := models.TrustState(value)
		if record.TrustState == models.TrustBlocked && next == models.TrustTrusted {
			return models.ServerGovernance{}, &ValidationError{
				Field:   "trust_state",
				Message: "cannot transition blocked to trusted directly; pass through untrusted",
			}
		}
		updated.TrustState = next
	}

	if raw, ok := patch["risk_tier"]; ok {
		value, ok := raw.(string)
		if !ok || !models.RiskTier(value).Valid() {
			return models.ServerGovernance{}, &ValidationError{
				Field:   "risk_tier",
				Message: fmt.Sprintf("must be one of low, medium, high; got %v", raw),
			}
		}
		updated.RiskTier = models.RiskTier(value)
	}

	if raw, ok := patch["allow_tools"]; ok {
		patterns, err := toPatternList(raw)
		if err != nil {
			return models.ServerGovernance{}, &ValidationError{Field: "allow_tools", Message: err.Error()}
		}
		updated.AllowTools = patterns
	}

	if raw, ok := patch["deny_tools"]; ok {
		patterns, err := toPatternList(raw)
		if err != nil {
			return models.ServerGovernance{}, &ValidationError{Field: "deny_tools", Message: err.Error()}
		}
		updated.DenyTools = patterns
	}

	if raw, ok := patch["notes"]; ok {
		value, ok := raw.(string)
		if !ok {
			return models.ServerGovernance{}, &ValidationError{Field: "notes", Message: "must be a string"}
		}
		updated.Notes = value
	}

	updated.UpdatedAt = s.now().UTC()

	if err := s.store.SaveGovernance(updated); err != nil {
		return models.ServerGovernance{}, fmt.Errorf("failed to persist governance record: %w", err)
	}

	s.logger.Info("governance record updated",
		logging.F("server_id", serverID),
		logging.F("trust_state", string(updated.TrustState)),
		logging.F("risk_tier", string(updated.RiskTier)))

	return updated, nil
}

// toPatternList validates a patch value as an array of non-empty strings
func toPatternList(raw interface{}) ([]string, error) {
	items, ok := raw.([]interface{})
	if !ok {
		// A pre-typed string slice is also acceptable (internal callers)
		if typed, ok := raw.([]string); ok {
			for _, pattern := range typed {
				if pattern == "" {
					return nil, fmt.Errorf("patterns must be non-empty strings")
				}
			}
			return typed, nil
		}
		return nil, fmt.Errorf("must be an array of strings")
	}

	patterns := make([]string, 0, len(items))
	for _, item := range items {
		pattern, ok := item.(string)
		if !ok || pattern == "" {
			return nil, fmt.Errorf("patterns must be non-empty strings")
		}
		patterns = append(patterns, pattern)
	}
	return patterns, nil
}
