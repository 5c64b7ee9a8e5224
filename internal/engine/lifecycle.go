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

// TokenMetadata names the token class minted for a bond at issuance.
type TokenMetadata struct {
	Name   string
	Symbol string
}

// CreateBond creates a new bond in draft for a registered, KYC-approved
// issuer and returns its id. Ids come from a monotonically increasing
// counter and are never reused.
func (e *Engine) CreateBond(ctx context.Context, caller common.Address, params domain.BondParams) (int64, error) {
	if err := e.requireRunning(); err != nil {
		return 0, err
	}

	issuer, err := e.issuers.GetByWallet(ctx, caller)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, fmt.Errorf("engine: issuer %s: %w", caller.Hex(), domain.ErrNotKYCApproved)
		}
		return 0, fmt.Errorf("engine: lookup issuer: %w", err)
	}
	if !issuer.KYCApproved {
		return 0, fmt.Errorf("engine: issuer %s: %w", caller.Hex(), domain.ErrNotKYCApproved)
	}

	if err := e.validateParams(params); err != nil {
		return 0, err
	}

	target := params.TargetRaise
	if target == 0 {
		target, err = PurchaseCost(domain.Bond{FaceValue: params.FaceValue}, params.AvailableUnits)
		if err != nil {
			return 0, err
		}
	}

	bond := domain.Bond{
		Issuer:         caller,
		InterestRateBP: params.InterestRateBP,
		CouponRateBP:   params.CouponRateBP,
		FaceValue:      params.FaceValue,
		AvailableUnits: params.AvailableUnits,
		TargetRaise:    target,
		Duration:       params.Duration,
		Status:         domain.BondDraft,
		CreatedAt:      e.clock(),
	}
	id, err := e.bonds.Create(ctx, bond)
	if err != nil {
		return 0, fmt.Errorf("engine: create bond: %w", err)
	}

	e.emit(ctx, domain.EventBondCreated, id, caller, map[string]any{
		"face_value":      params.FaceValue,
		"available_units": params.AvailableUnits,
		"coupon_rate_bp":  params.CouponRateBP,
	})
	return id, nil
}

func (e *Engine) validateParams(p domain.BondParams) error {
	switch {
	case p.FaceValue <= 0:
		return fmt.Errorf("engine: face value %d: %w", p.FaceValue, domain.ErrInvalidParams)
	case p.Duration <= 0:
		return fmt.Errorf("engine: duration %s: %w", p.Duration, domain.ErrInvalidParams)
	case p.AvailableUnits <= 0:
		return fmt.Errorf("engine: available units %d: %w", p.AvailableUnits, domain.ErrInvalidParams)
	case p.InterestRateBP < 0 || p.InterestRateBP > e.maxRateBP:
		return fmt.Errorf("engine: interest rate %d bp outside [0, %d]: %w", p.InterestRateBP, e.maxRateBP, domain.ErrInvalidParams)
	case p.CouponRateBP < 0 || p.CouponRateBP > e.maxRateBP:
		return fmt.Errorf("engine: coupon rate %d bp outside [0, %d]: %w", p.CouponRateBP, e.maxRateBP, domain.ErrInvalidParams)
	case p.TargetRaise < 0:
		return fmt.Errorf("engine: target raise %d: %w", p.TargetRaise, domain.ErrInvalidParams)
	}
	return nil
}

// SubmitBond moves the issuer's own draft into the review queue.
func (e *Engine) SubmitBond(ctx context.Context, caller common.Address, id int64) error {
	if err := e.requireRunning(); err != nil {
		return err
	}
	bond, err := e.bonds.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("engine: bond %d: %w", id, err)
	}
	if bond.Issuer != caller {
		return fmt.Errorf("engine: caller %s is not the issuer of bond %d: %w", caller.Hex(), id, domain.ErrUnauthorized)
	}
	if err := e.transition(ctx, &bond, domain.BondSubmitted); err != nil {
		return err
	}
	e.emit(ctx, domain.EventBondSubmitted, id, caller, nil)
	return nil
}

// ReviewBond marks a submitted bond as under review. Admin only.
func (e *Engine) ReviewBond(ctx context.Context, caller common.Address, id int64) error {
	if err := e.requireRunning(); err != nil {
		return err
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	bond, err := e.bonds.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("engine: bond %d: %w", id, err)
	}
	if err := e.transition(ctx, &bond, domain.BondInReview); err != nil {
		return err
	}
	e.emit(ctx, domain.EventBondInReview, id, caller, nil)
	return nil
}

// ApproveBond approves a bond in any pre-approval state. Admin only.
func (e *Engine) ApproveBond(ctx context.Context, caller common.Address, id int64) error {
	if err := e.requireRunning(); err != nil {
		return err
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	bond, err := e.bonds.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("engine: bond %d: %w", id, err)
	}
	if err := e.transition(ctx, &bond, domain.BondApproved); err != nil {
		return err
	}
	e.emit(ctx, domain.EventBondApproved, id, caller, nil)
	return nil
}

// IssueBond mints the token class for an approved bond and opens it for
// purchase. The mint and the transition are atomic from the caller's view:
// a mint failure leaves the record untouched, and if persisting the issued
// record fails the minted supply is burned back. Admin only.
func (e *Engine) IssueBond(ctx context.Context, caller common.Address, id int64, meta TokenMetadata) error {
	if err := e.requireRunning(); err != nil {
		return err
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}

	bond, err := e.bonds.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("engine: bond %d: %w", id, err)
	}
	if bond.Status != domain.BondApproved {
		return fmt.Errorf("engine: bond %d is %s, want approved: %w", id, bond.Status, domain.ErrInvalidState)
	}

	// Mint the full committed supply to the engine reserve. IssuedUnits can
	// never exceed this amount afterwards.
	backend := e.backendRef()
	handle, err := backend.Mint(ctx, token.MintSpec{
		Name:   meta.Name,
		Symbol: meta.Symbol,
		BondID: id,
		Units:  bond.AvailableUnits,
	})
	if err != nil {
		return fmt.Errorf("engine: mint bond %d: %w: %v", id, domain.ErrExternalCall, err)
	}

	now := e.clock()
	bond.TokenHandle = handle
	bond.IssuedAt = now
	bond.MaturityAt = now.Add(bond.Duration)
	bond.Status = domain.BondIssued
	if err := e.bonds.Update(ctx, bond); err != nil {
		if burnErr := backend.Burn(ctx, handle, common.Address{}, bond.AvailableUnits); burnErr != nil {
			e.logger.ErrorContext(ctx, "failed to unwind mint after store error",
				slog.Int64("bond_id", id),
				slog.String("handle", handle),
				slog.String("error", burnErr.Error()),
			)
		}
		return fmt.Errorf("engine: persist issued bond %d: %w", id, err)
	}

	e.emit(ctx, domain.EventBondIssued, id, caller, map[string]any{
		"token_handle": handle,
		"maturity_at":  bond.MaturityAt,
	})
	return nil
}

// MarkMature transitions an issued bond to matured once its maturity time
// has passed. Callable by anyone; the clock, not the caller, is the gate.
// No value moves.
func (e *Engine) MarkMature(ctx context.Context, caller common.Address, id int64) error {
	if err := e.requireRunning(); err != nil {
		return err
	}
	bond, err := e.bonds.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("engine: bond %d: %w", id, err)
	}
	if bond.Status != domain.BondIssued {
		return fmt.Errorf("engine: bond %d is %s, want issued: %w", id, bond.Status, domain.ErrInvalidState)
	}
	if !bond.Matured(e.clock()) {
		return fmt.Errorf("engine: bond %d matures at %s: %w", id, bond.MaturityAt, domain.ErrInvalidState)
	}
	bond.Status = domain.BondMatured
	if err := e.bonds.Update(ctx, bond); err != nil {
		return fmt.Errorf("engine: persist matured bond %d: %w", id, err)
	}
	e.emit(ctx, domain.EventBondMatured, id, caller, nil)
	return nil
}

// ForceClose settles a matured bond with obligations still outstanding,
// voiding unredeemed units. The normal path is automatic settlement when
// the last unit is redeemed; this is the admin override for stragglers.
func (e *Engine) ForceClose(ctx context.Context, caller common.Address, id int64) error {
	if err := e.requireRunning(); err != nil {
		return err
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	bond, err := e.bonds.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("engine: bond %d: %w", id, err)
	}
	if bond.Status != domain.BondMatured {
		return fmt.Errorf("engine: bond %d is %s, want matured: %w", id, bond.Status, domain.ErrInvalidState)
	}

	voided := bond.IssuedUnits
	bond.IssuedUnits = 0
	bond.Status = domain.BondSettled
	bond.SettledAt = e.clock()
	if err := e.bonds.Update(ctx, bond); err != nil {
		return fmt.Errorf("engine: persist settled bond %d: %w", id, err)
	}

	e.emit(ctx, domain.EventBondForceClosed, id, caller, map[string]any{
		"voided_units": voided,
	})
	e.emit(ctx, domain.EventBondSettled, id, caller, nil)
	return nil
}

// transition validates and persists a status change.
func (e *Engine) transition(ctx context.Context, bond *domain.Bond, next domain.BondStatus) error {
	if !bond.Status.CanTransition(next) {
		return fmt.Errorf("engine: bond %d cannot move %s -> %s: %w", bond.ID, bond.Status, next, domain.ErrInvalidState)
	}
	bond.Status = next
	if err := e.bonds.Update(ctx, *bond); err != nil {
		return fmt.Errorf("engine: persist bond %d: %w", bond.ID, err)
	}
	return nil
}
