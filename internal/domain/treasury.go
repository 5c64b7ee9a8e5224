package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EntryDirection marks which way native currency moved.
type EntryDirection string

const (
	DirectionIn  EntryDirection = "in"
	DirectionOut EntryDirection = "out"
)

// EntryKind classifies a treasury movement.
type EntryKind string

const (
	KindPurchase   EntryKind = "purchase"
	KindFunding    EntryKind = "funding"
	KindRedemption EntryKind = "redemption"
	KindReversal   EntryKind = "reversal"
	KindEmergency  EntryKind = "emergency"
)

// TreasuryEntry is one append-only row of the treasury ledger. The engine's
// native balance is always the sum of "in" amounts minus the sum of "out"
// amounts; failed operations are unwound with explicit reversal rows rather
// than deletions.
type TreasuryEntry struct {
	ID        string         `json:"id"`
	BondID    int64          `json:"bond_id,omitempty"`
	Wallet    common.Address `json:"wallet"`
	Direction EntryDirection `json:"direction"`
	Kind      EntryKind      `json:"kind"`
	Amount    int64          `json:"amount"`
	TxRef     string         `json:"tx_ref,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
