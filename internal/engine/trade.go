package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/bondledger/internal/domain"
	"github.com/alanyoungcy/bondledger/internal/token"
)

// BuyBond sells units of an issued, unmatured bond to the caller. The
// attached payment must equal units*FaceValue exactly; overpayment is
// rejected, there is no refund path. Record state (available/issued units,
// the buyer's holding, the treasury credit) is finalized before the token
// transfer, and a transfer failure unwinds all of it. The reentrancy guard
// is held for the whole call.
func (e *Engine) BuyBond(ctx context.Context, caller common.Address, id int64, units, payment int64) error {
	if err := e.guard.Enter(id); err != nil {
		return fmt.Errorf("engine: buy bond %d: %w", id, err)
	}
	defer e.guard.Exit(id)

	if err := e.requireRunning(); err != nil {
		return err
	}
	if units <= 0 {
		return fmt.Errorf("engine: buy %d units: %w", units, domain.ErrInvalidParams)
	}

	bond, err := e.bonds.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("engine: bond %d: %w", id, err)
	}
	now := e.clock()
	if bond.Status != domain.BondIssued || bond.Matured(now) {
		return fmt.Errorf("engine: bond %d is not open for purchase: %w", id, domain.ErrInvalidState)
	}
	if units > bond.AvailableUnits {
		return fmt.Errorf("engine: %d units requested, %d available: %w", units, bond.AvailableUnits, domain.ErrInsufficientUnits)
	}
	cost, err := PurchaseCost(bond, units)
	if err != nil {
		return err
	}
	if payment != cost {
		return fmt.Errorf("engine: payment %d, price %d: %w", payment, cost, domain.ErrIncorrectPayment)
	}

	// Effects: commit the sale before touching the outside world.
	prevBond := bond
	bond.AvailableUnits -= units
	bond.IssuedUnits += units
	if err := e.bonds.Update(ctx, bond); err != nil {
		return fmt.Errorf("engine: persist bond %d: %w", id, err)
	}

	holding, err := e.holdings.Get(ctx, id, caller)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		e.restoreBond(ctx, prevBond)
		return fmt.Errorf("engine: lookup holding: %w", err)
	}
	prevHolding := holding
	holding.BondID = id
	holding.Wallet = caller
	holding.Units += units
	holding.UpdatedAt = now
	if err := e.holdings.Upsert(ctx, holding); err != nil {
		e.restoreBond(ctx, prevBond)
		return fmt.Errorf("engine: persist holding: %w", err)
	}

	treas := e.treasuryRef()
	if err := treas.Deposit(ctx, id, caller, cost, domain.KindPurchase); err != nil {
		e.restoreHolding(ctx, prevHolding, id, caller)
		e.restoreBond(ctx, prevBond)
		return err
	}

	// Interaction: deliver the token units last.
	if err := e.backendRef().Transfer(ctx, bond.TokenHandle, caller, units); err != nil {
		if revErr := treas.Reverse(ctx, id, caller, cost); revErr != nil {
			e.logger.ErrorContext(ctx, "failed to reverse deposit after transfer failure",
				slog.Int64("bond_id", id), slog.String("error", revErr.Error()))
		}
		e.restoreHolding(ctx, prevHolding, id, caller)
		e.restoreBond(ctx, prevBond)
		return fmt.Errorf("engine: deliver %d units of bond %d: %w: %v", units, id, domain.ErrExternalCall, err)
	}

	e.emit(ctx, domain.EventBondPurchased, id, caller, map[string]any{
		"units":   units,
		"payment": cost,
	})
	return nil
}

// RedeemBond redeems units of a matured bond held by the caller for
// principal plus coupon. Treasury sufficiency is checked before anything
// moves, so a short treasury burns no tokens. The burn precedes the native
// payout (the payout is the call that can reenter); a payout failure
// restores the records and re-mints the burned units. The reentrancy guard
// is held for the whole call.
func (e *Engine) RedeemBond(ctx context.Context, caller common.Address, id int64, units int64) error {
	if err := e.guard.Enter(id); err != nil {
		return fmt.Errorf("engine: redeem bond %d: %w", id, err)
	}
	defer e.guard.Exit(id)

	if err := e.requireRunning(); err != nil {
		return err
	}
	if units <= 0 {
		return fmt.Errorf("engine: redeem %d units: %w", units, domain.ErrInvalidParams)
	}

	bond, err := e.bonds.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("engine: bond %d: %w", id, err)
	}
	if bond.Status != domain.BondMatured {
		return fmt.Errorf("engine: bond %d is %s, want matured: %w", id, bond.Status, domain.ErrInvalidState)
	}

	holding, err := e.holdings.Get(ctx, id, caller)
	if err != nil {
		return fmt.Errorf("engine: holding of %s in bond %d: %w", caller.Hex(), id, notFoundAs(err, domain.ErrInsufficientHolding))
	}
	if holding.Units < units {
		return fmt.Errorf("engine: redeem %d units, holding %d: %w", units, holding.Units, domain.ErrInsufficientHolding)
	}

	payout, err := RedemptionPayout(bond, units)
	if err != nil {
		return err
	}
	treas := e.treasuryRef()
	if treas.Balance() < payout {
		return fmt.Errorf("engine: payout %d for bond %d: %w", payout, id, domain.ErrInsufficientTreasury)
	}

	// Effects: retire the position before any external call.
	prevBond := bond
	prevHolding := holding
	holding.Units -= units
	holding.UpdatedAt = e.clock()
	if err := e.holdings.Upsert(ctx, holding); err != nil {
		return fmt.Errorf("engine: persist holding: %w", err)
	}

	bond.IssuedUnits -= units
	settled := bond.IssuedUnits == 0
	if settled {
		bond.Status = domain.BondSettled
		bond.SettledAt = e.clock()
	}
	if err := e.bonds.Update(ctx, bond); err != nil {
		e.restoreHolding(ctx, prevHolding, id, caller)
		return fmt.Errorf("engine: persist bond %d: %w", id, err)
	}

	// Interactions: burn first, native transfer last.
	backend := e.backendRef()
	if err := backend.Burn(ctx, bond.TokenHandle, caller, units); err != nil {
		e.restoreBond(ctx, prevBond)
		e.restoreHolding(ctx, prevHolding, id, caller)
		return fmt.Errorf("engine: burn %d units of bond %d: %w: %v", units, id, domain.ErrExternalCall, err)
	}

	if err := treas.Payout(ctx, id, caller, payout, domain.KindRedemption); err != nil {
		e.restoreBond(ctx, prevBond)
		e.restoreHolding(ctx, prevHolding, id, caller)
		if _, mintErr := backend.Mint(ctx, token.MintSpec{
			Handle: bond.TokenHandle,
			BondID: id,
			Units:  units,
			To:     caller,
		}); mintErr != nil {
			e.logger.ErrorContext(ctx, "failed to re-mint after payout failure",
				slog.Int64("bond_id", id),
				slog.Int64("units", units),
				slog.String("error", mintErr.Error()),
			)
		}
		return err
	}

	e.emit(ctx, domain.EventBondRedeemed, id, caller, map[string]any{
		"units":  units,
		"payout": payout,
	})
	if settled {
		e.emit(ctx, domain.EventBondSettled, id, caller, nil)
	}
	return nil
}

// restoreBond writes back a pre-operation bond snapshot during unwinding.
func (e *Engine) restoreBond(ctx context.Context, prev domain.Bond) {
	if err := e.bonds.Update(ctx, prev); err != nil {
		e.logger.ErrorContext(ctx, "failed to restore bond during unwind",
			slog.Int64("bond_id", prev.ID),
			slog.String("error", err.Error()),
		)
	}
}

// restoreHolding writes back a pre-operation holding snapshot. The snapshot
// of a first-time buyer is zero valued, so fill in the keys.
func (e *Engine) restoreHolding(ctx context.Context, prev domain.Holding, bondID int64, wallet common.Address) {
	prev.BondID = bondID
	prev.Wallet = wallet
	if err := e.holdings.Upsert(ctx, prev); err != nil {
		e.logger.ErrorContext(ctx, "failed to restore holding during unwind",
			slog.Int64("bond_id", bondID),
			slog.String("wallet", wallet.Hex()),
			slog.String("error", err.Error()),
		)
	}
}
