package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Event types emitted by the engine. Every admin change, lifecycle
// transition, and value movement produces one.
const (
	EventIssuerRegistered = "issuer_registered"
	EventKYCApproved      = "kyc_approved"
	EventKYCRevoked       = "kyc_revoked"
	EventBondCreated      = "bond_created"
	EventBondSubmitted    = "bond_submitted"
	EventBondInReview     = "bond_in_review"
	EventBondApproved     = "bond_approved"
	EventBondIssued       = "bond_issued"
	EventBondPurchased    = "bond_purchased"
	EventBondRedeemed     = "bond_redeemed"
	EventBondMatured      = "bond_matured"
	EventBondSettled      = "bond_settled"
	EventBondForceClosed  = "bond_force_closed"
	EventPaused           = "paused"
	EventUnpaused         = "unpaused"
	EventAdminChanged     = "admin_changed"
	EventBackendChanged   = "backend_changed"
	EventTreasuryChanged  = "treasury_changed"
	EventEmergencyPayout  = "emergency_payout"
	EventTreasuryLow      = "treasury_low"
)

// Event is an auditable record of something the engine did.
type Event struct {
	ID     string         `json:"id"`
	Type   string         `json:"type"`
	BondID int64          `json:"bond_id,omitempty"`
	Actor  common.Address `json:"actor"`
	Detail map[string]any `json:"detail,omitempty"`
	At     time.Time      `json:"at"`
}
