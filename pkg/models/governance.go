package models

import "time"

// TrustState is the per-server governance flag controlling whether tool
// calls require approval or are blocked outright
type TrustState string

const (
	// TrustUntrusted is the default state for unconfigured servers
	TrustUntrusted TrustState = "untrusted"

	// TrustTrusted exempts a server from approval in untrusted_only mode
	TrustTrusted TrustState = "trusted"

	// TrustBlocked denies every tool call to the server
	TrustBlocked TrustState = "blocked"
)

// Valid reports whether the trust state is a known value
func (s TrustState) Valid() bool {
	return s == TrustUntrusted || s == TrustTrusted || s == TrustBlocked
}

// RiskTier classifies how dangerous a server's tools are considered
type RiskTier string

const (
	// RiskLow for read-only or side-effect-free servers
	RiskLow RiskTier = "low"

	// RiskMedium is the default tier
	RiskMedium RiskTier = "medium"

	// RiskHigh for servers with destructive or sensitive tools
	RiskHigh RiskTier = "high"
)

// Valid reports whether the risk tier is a known value
func (t RiskTier) Valid() bool {
	return t == RiskLow || t == RiskMedium || t == RiskHigh
}

// ServerGovernance is the per-server governance record. ID, Owner and
// CreatedAt are immutable after creation.
type ServerGovernance struct {
	// ID of the server
	ID string `json:"id"`

	// TrustState of the server
	TrustState TrustState `json:"trust_state"`

	// RiskTier of the server
	RiskTier RiskTier `json:"risk_tier"`

	// AllowTools is a list of tool name patterns; when non-empty, only
	// matching tools are allowed
	AllowTools []string `json:"allow_tools"`

	// DenyTools is a list of tool name patterns that are always denied
	DenyTools []string `json:"deny_tools"`

	// Owner of the record
	Owner string `json:"owner,omitempty"`

	// Notes is free-form operator commentary
	Notes string `json:"notes,omitempty"`

	// CreatedAt is when the record was created
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the record was last patched
	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultGovernance returns the record used for any server that has not
// been explicitly configured
func DefaultGovernance(serverID string) ServerGovernance {
	now := time.Now().UTC()
	return ServerGovernance{
		ID:         serverID,
		TrustState: TrustUntrusted,
		RiskTier:   RiskMedium,
		AllowTools: []string{},
		DenyTools:  []string{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// ApprovalMode controls when tool calls require human approval
type ApprovalMode string

const (
	// ApprovalModeOff never requires approval
	ApprovalModeOff ApprovalMode = "off"

	// ApprovalModeUntrustedOnly requires approval unless the server is trusted
	ApprovalModeUntrustedOnly ApprovalMode = "untrusted_only"
)
