package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Issuer is a wallet registered to create bonds. Records are never deleted;
// revoking KYC flips the flag and leaves existing bonds untouched.
type Issuer struct {
	Wallet       common.Address `json:"wallet"`
	Registered   bool           `json:"registered"`
	KYCApproved  bool           `json:"kyc_approved"`
	RegisteredAt time.Time      `json:"registered_at"`
	KYCUpdatedAt time.Time      `json:"kyc_updated_at"`
}

// Holding is an investor's position in a single bond, in units.
type Holding struct {
	BondID    int64          `json:"bond_id"`
	Wallet    common.Address `json:"wallet"`
	Units     int64          `json:"units"`
	UpdatedAt time.Time      `json:"updated_at"`
}
