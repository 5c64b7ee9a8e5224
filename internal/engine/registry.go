package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/bondledger/internal/domain"
)

// RegisterIssuer self-registers the caller as an issuer. Registration is
// once only; KYC approval starts false and is granted separately by the
// administrator.
func (e *Engine) RegisterIssuer(ctx context.Context, caller common.Address) error {
	if err := e.requireRunning(); err != nil {
		return err
	}

	_, err := e.issuers.GetByWallet(ctx, caller)
	switch {
	case err == nil:
		return fmt.Errorf("engine: issuer %s: %w", caller.Hex(), domain.ErrAlreadyRegistered)
	case !errors.Is(err, domain.ErrNotFound):
		return fmt.Errorf("engine: lookup issuer: %w", err)
	}

	now := e.clock()
	issuer := domain.Issuer{
		Wallet:       caller,
		Registered:   true,
		KYCApproved:  false,
		RegisteredAt: now,
		KYCUpdatedAt: now,
	}
	if err := e.issuers.Create(ctx, issuer); err != nil {
		return fmt.Errorf("engine: register issuer: %w", err)
	}

	e.emit(ctx, domain.EventIssuerRegistered, 0, caller, nil)
	return nil
}

// ApproveKYC grants KYC approval to a registered issuer. Admin only and
// idempotent: approving an already-approved issuer changes nothing.
func (e *Engine) ApproveKYC(ctx context.Context, caller, wallet common.Address) error {
	return e.setKYC(ctx, caller, wallet, true, domain.EventKYCApproved)
}

// RevokeKYC withdraws KYC approval. Existing bonds are untouched; the
// issuer only loses the ability to create new ones. Admin only, idempotent.
func (e *Engine) RevokeKYC(ctx context.Context, caller, wallet common.Address) error {
	return e.setKYC(ctx, caller, wallet, false, domain.EventKYCRevoked)
}

func (e *Engine) setKYC(ctx context.Context, caller, wallet common.Address, approved bool, event string) error {
	if err := e.requireRunning(); err != nil {
		return err
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}

	issuer, err := e.issuers.GetByWallet(ctx, wallet)
	if err != nil {
		return fmt.Errorf("engine: issuer %s: %w", wallet.Hex(), notFoundAs(err, domain.ErrNotRegistered))
	}

	if issuer.KYCApproved == approved {
		return nil
	}

	issuer.KYCApproved = approved
	issuer.KYCUpdatedAt = e.clock()
	if err := e.issuers.Update(ctx, issuer); err != nil {
		return fmt.Errorf("engine: update issuer kyc: %w", err)
	}

	e.emit(ctx, event, 0, caller, map[string]any{"issuer": wallet.Hex()})
	return nil
}
