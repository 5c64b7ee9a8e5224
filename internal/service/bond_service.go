package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/bondledger/internal/crypto"
	"github.com/alanyoungcy/bondledger/internal/domain"
	"github.com/alanyoungcy/bondledger/internal/engine"
)

// lockTTL bounds how long a value-moving bond operation may hold the
// cross-process lock before it expires on its own.
const lockTTL = 30 * time.Second

// BondService fronts the engine's bond operations with read caching and
// cross-process locking. The engine's in-process guard stops reentrant
// callbacks; the redis lock serializes value-moving calls across replicas.
type BondService struct {
	engine   *engine.Engine
	bonds    domain.BondStore
	holdings domain.HoldingStore
	cache    domain.BondCache
	locks    domain.LockManager
	signer   *crypto.Signer
	logger   *slog.Logger
}

// NewBondService creates a BondService. cache, locks, and signer may be nil;
// each disables its feature.
func NewBondService(
	eng *engine.Engine,
	bonds domain.BondStore,
	holdings domain.HoldingStore,
	cache domain.BondCache,
	locks domain.LockManager,
	signer *crypto.Signer,
	logger *slog.Logger,
) *BondService {
	return &BondService{
		engine:   eng,
		bonds:    bonds,
		holdings: holdings,
		cache:    cache,
		locks:    locks,
		signer:   signer,
		logger:   logger.With(slog.String("component", "bond_service")),
	}
}

// Get retrieves a bond by ID, checking the cache first and falling back to
// the engine on a cache miss.
func (s *BondService) Get(ctx context.Context, id int64) (domain.Bond, error) {
	if s.cache != nil {
		if b, err := s.cache.Get(ctx, id); err == nil {
			return b, nil
		}
	}

	b, err := s.engine.GetBond(ctx, id)
	if err != nil {
		return domain.Bond{}, fmt.Errorf("bond_service: get %d: %w", id, err)
	}

	// Back-fill cache; log but do not fail on cache write errors.
	if s.cache != nil {
		if cacheErr := s.cache.Set(ctx, b); cacheErr != nil {
			s.logger.WarnContext(ctx, "cache set failed",
				slog.Int64("bond_id", id),
				slog.String("error", cacheErr.Error()),
			)
		}
	}
	return b, nil
}

// ListByIssuer returns the issuer's bonds from the persistent store.
func (s *BondService) ListByIssuer(ctx context.Context, issuer common.Address, opts domain.ListOpts) ([]domain.Bond, error) {
	bonds, err := s.bonds.ListByIssuer(ctx, issuer, opts)
	if err != nil {
		return nil, fmt.Errorf("bond_service: list by issuer: %w", err)
	}
	return bonds, nil
}

// ListByStatus returns bonds in the given status from the persistent store.
func (s *BondService) ListByStatus(ctx context.Context, status domain.BondStatus, opts domain.ListOpts) ([]domain.Bond, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("bond_service: status %q: %w", status, domain.ErrInvalidParams)
	}
	bonds, err := s.bonds.ListByStatus(ctx, status, opts)
	if err != nil {
		return nil, fmt.Errorf("bond_service: list by status: %w", err)
	}
	return bonds, nil
}

// Holdings returns every open position in the given bond.
func (s *BondService) Holdings(ctx context.Context, bondID int64) ([]domain.Holding, error) {
	holdings, err := s.holdings.ListByBond(ctx, bondID)
	if err != nil {
		return nil, fmt.Errorf("bond_service: list holdings for bond %d: %w", bondID, err)
	}
	return holdings, nil
}

// HoldingsByWallet returns the wallet's positions across all bonds.
func (s *BondService) HoldingsByWallet(ctx context.Context, wallet common.Address) ([]domain.Holding, error) {
	holdings, err := s.holdings.ListByWallet(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("bond_service: list holdings for %s: %w", wallet.Hex(), err)
	}
	return holdings, nil
}

// Count returns the number of bonds ever created.
func (s *BondService) Count(ctx context.Context) (int64, error) {
	count, err := s.bonds.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("bond_service: count: %w", err)
	}
	return count, nil
}

// Create creates a draft bond for the caller.
func (s *BondService) Create(ctx context.Context, caller common.Address, params domain.BondParams) (int64, error) {
	return s.engine.CreateBond(ctx, caller, params)
}

// Submit moves the caller's draft into the review queue.
func (s *BondService) Submit(ctx context.Context, caller common.Address, id int64) error {
	defer s.invalidate(ctx, id)
	return s.engine.SubmitBond(ctx, caller, id)
}

// Review marks a submitted bond as under review.
func (s *BondService) Review(ctx context.Context, caller common.Address, id int64) error {
	defer s.invalidate(ctx, id)
	return s.engine.ReviewBond(ctx, caller, id)
}

// Approve approves a bond for issuance.
func (s *BondService) Approve(ctx context.Context, caller common.Address, id int64) error {
	defer s.invalidate(ctx, id)
	return s.engine.ApproveBond(ctx, caller, id)
}

// Issue mints the bond's token class and opens it for purchase.
func (s *BondService) Issue(ctx context.Context, caller common.Address, id int64, meta engine.TokenMetadata) error {
	defer s.invalidate(ctx, id)
	return s.engine.IssueBond(ctx, caller, id, meta)
}

// MarkMature transitions an issued bond past its maturity time.
func (s *BondService) MarkMature(ctx context.Context, caller common.Address, id int64) error {
	defer s.invalidate(ctx, id)
	return s.engine.MarkMature(ctx, caller, id)
}

// ForceClose settles a matured bond with outstanding units voided.
func (s *BondService) ForceClose(ctx context.Context, caller common.Address, id int64) error {
	defer s.invalidate(ctx, id)
	return s.engine.ForceClose(ctx, caller, id)
}

// Buy purchases units of an issued bond under the cross-process lock.
func (s *BondService) Buy(ctx context.Context, caller common.Address, id int64, units, payment int64) error {
	unlock, err := s.lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()
	defer s.invalidate(ctx, id)
	return s.engine.BuyBond(ctx, caller, id, units, payment)
}

// RedemptionResult reports a completed redemption with its signed receipt.
// Receipt signing is best effort; Signature is empty when no signer is
// configured.
type RedemptionResult struct {
	Receipt   crypto.Receipt `json:"receipt"`
	Signature string         `json:"signature,omitempty"`
}

// Redeem redeems units of a matured bond under the cross-process lock and
// returns a signed settlement receipt.
func (s *BondService) Redeem(ctx context.Context, caller common.Address, id int64, units int64) (RedemptionResult, error) {
	unlock, err := s.lock(ctx, id)
	if err != nil {
		return RedemptionResult{}, err
	}
	defer unlock()
	defer s.invalidate(ctx, id)

	bond, err := s.engine.GetBond(ctx, id)
	if err != nil {
		return RedemptionResult{}, fmt.Errorf("bond_service: redeem %d: %w", id, err)
	}
	payout, err := engine.RedemptionPayout(bond, units)
	if err != nil {
		return RedemptionResult{}, err
	}

	if err := s.engine.RedeemBond(ctx, caller, id, units); err != nil {
		return RedemptionResult{}, err
	}

	result := RedemptionResult{
		Receipt: crypto.Receipt{
			BondID:     id,
			Holder:     caller,
			Units:      units,
			Payout:     payout,
			RedeemedAt: time.Now().UTC().Unix(),
		},
	}
	if s.signer != nil {
		sig, err := s.signer.SignReceipt(result.Receipt)
		if err != nil {
			// The redemption already settled; hand back an unsigned receipt.
			s.logger.ErrorContext(ctx, "receipt signing failed",
				slog.Int64("bond_id", id),
				slog.String("error", err.Error()),
			)
			return result, nil
		}
		result.Signature = sig
	}
	return result, nil
}

func (s *BondService) lock(ctx context.Context, id int64) (func(), error) {
	if s.locks == nil {
		return func() {}, nil
	}
	unlock, err := s.locks.Acquire(ctx, fmt.Sprintf("bond:%d", id), lockTTL)
	if err != nil {
		return nil, fmt.Errorf("bond_service: lock bond %d: %w", id, err)
	}
	return unlock, nil
}

func (s *BondService) invalidate(ctx context.Context, id int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "cache invalidate failed",
			slog.Int64("bond_id", id),
			slog.String("error", err.Error()),
		)
		// Non-fatal: the cache will eventually expire on its own.
	}
}
