package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// BondStatus is the lifecycle state of a bond. Transitions only move forward;
// see CanTransition for the full table.
type BondStatus string

const (
	BondDraft     BondStatus = "draft"
	BondSubmitted BondStatus = "submitted"
	BondInReview  BondStatus = "in_review"
	BondApproved  BondStatus = "approved"
	BondIssued    BondStatus = "issued"
	BondMatured   BondStatus = "matured"
	BondSettled   BondStatus = "settled"
)

// statusRank orders statuses along the lifecycle. A transition is only legal
// to a strictly higher rank.
var statusRank = map[BondStatus]int{
	BondDraft:     0,
	BondSubmitted: 1,
	BondInReview:  2,
	BondApproved:  3,
	BondIssued:    4,
	BondMatured:   5,
	BondSettled:   6,
}

// Valid reports whether s is a known status value.
func (s BondStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// PreApproval reports whether a bond in this status may still be approved
// (draft, submitted, or in review).
func (s BondStatus) PreApproval() bool {
	return s == BondDraft || s == BondSubmitted || s == BondInReview
}

// Terminal reports whether the status accepts no further transitions.
func (s BondStatus) Terminal() bool {
	return s == BondSettled
}

// CanTransition reports whether moving from s to next is legal. Regression
// and skipping backwards are never allowed; the only multi-step jump is
// pre-approval → approved, since an admin may approve a bond at any review
// stage.
func (s BondStatus) CanTransition(next BondStatus) bool {
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[next]
	if !ok {
		return false
	}
	if s.Terminal() || to <= from {
		return false
	}
	if next == BondApproved {
		return s.PreApproval()
	}
	// Settled is reachable from Matured only (auto on last redemption, or
	// admin force-close).
	if next == BondSettled {
		return s == BondMatured
	}
	return to == from+1
}

// Bond is a fixed-term instrument with unit-based fractional ownership.
// FaceValue is the price and principal of a single unit, in the smallest
// native currency denomination. Rates are basis points (1 BP = 0.01%) so all
// money math stays in integers.
//
// AvailableUnits decreases monotonically as units are sold and is the sole
// gate on oversubscription. IssuedUnits counts token units actually minted to
// buyers and never exceeds the supply committed at issuance.
type Bond struct {
	ID             int64          `json:"id"`
	Issuer         common.Address `json:"issuer"`
	InterestRateBP int64          `json:"interest_rate_bp"`
	CouponRateBP   int64          `json:"coupon_rate_bp"`
	FaceValue      int64          `json:"face_value"`
	AvailableUnits int64          `json:"available_units"`
	IssuedUnits    int64          `json:"issued_units"`
	TargetRaise    int64          `json:"target_raise"`
	Duration       time.Duration  `json:"duration"`
	MaturityAt     time.Time      `json:"maturity_at,omitzero"` // zero until issuance
	Status         BondStatus     `json:"status"`
	TokenHandle    string         `json:"token_handle,omitempty"` // empty until issued
	CreatedAt      time.Time      `json:"created_at"`
	IssuedAt       time.Time      `json:"issued_at,omitzero"`
	SettledAt      time.Time      `json:"settled_at,omitzero"`
}

// Matured reports whether the bond has reached its maturity time. It is
// false for bonds that have not been issued yet (MaturityAt is zero).
func (b Bond) Matured(now time.Time) bool {
	return !b.MaturityAt.IsZero() && !now.Before(b.MaturityAt)
}

// BondParams carries the issuer-supplied fields of CreateBond. Validation
// lives in the engine.
type BondParams struct {
	InterestRateBP int64         `json:"interest_rate_bp"`
	CouponRateBP   int64         `json:"coupon_rate_bp"`
	FaceValue      int64         `json:"face_value"`
	AvailableUnits int64         `json:"available_units"`
	TargetRaise    int64         `json:"target_raise"`
	Duration       time.Duration `json:"duration"`
}
