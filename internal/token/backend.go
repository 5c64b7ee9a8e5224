// Package token defines the external token capability the engine depends on.
// The engine only ever sees this interface; concrete backends live in
// internal/platform/chain (on-chain) and in this package (simulated).
package token

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// MintSpec describes a mint request. With an empty Handle the backend creates
// a new token class for the bond and returns its handle. With a non-empty
// Handle it mints additional units of the existing class to the given
// address, which the engine uses to unwind a burn when a later payout fails.
type MintSpec struct {
	Handle string
	Name   string
	Symbol string
	BondID int64
	Units  int64
	To     common.Address
}

// Backend is the token mint/transfer/burn capability. Every method returns a
// plain error; the engine wraps failures as domain.ErrExternalCall and
// unwinds its own state.
type Backend interface {
	Mint(ctx context.Context, spec MintSpec) (string, error)
	Transfer(ctx context.Context, handle string, to common.Address, units int64) error
	Burn(ctx context.Context, handle string, from common.Address, units int64) error
}
