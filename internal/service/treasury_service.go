package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/bondledger/internal/domain"
	"github.com/alanyoungcy/bondledger/internal/engine"
)

// TreasuryService fronts treasury funding, emergency payouts, and ledger
// reads.
type TreasuryService struct {
	engine *engine.Engine
	ledger domain.TreasuryLedger
	logger *slog.Logger
}

// NewTreasuryService creates a TreasuryService.
func NewTreasuryService(eng *engine.Engine, ledger domain.TreasuryLedger, logger *slog.Logger) *TreasuryService {
	return &TreasuryService{
		engine: eng,
		ledger: ledger,
		logger: logger.With(slog.String("component", "treasury_service")),
	}
}

// Balance returns the engine's current native balance.
func (s *TreasuryService) Balance() int64 {
	return s.engine.TreasuryBalance()
}

// Fund deposits native currency into the shared treasury.
func (s *TreasuryService) Fund(ctx context.Context, caller common.Address, amount int64) error {
	return s.engine.FundTreasury(ctx, caller, amount)
}

// EmergencyWithdraw pays out treasury funds to an admin-chosen recipient.
func (s *TreasuryService) EmergencyWithdraw(ctx context.Context, caller, to common.Address, amount int64) error {
	return s.engine.EmergencyWithdraw(ctx, caller, to, amount)
}

// Ledger returns treasury ledger rows, optionally scoped to one bond via
// bondID > 0.
func (s *TreasuryService) Ledger(ctx context.Context, bondID int64, opts domain.ListOpts) ([]domain.TreasuryEntry, error) {
	var (
		entries []domain.TreasuryEntry
		err     error
	)
	if bondID > 0 {
		entries, err = s.ledger.ListByBond(ctx, bondID, opts)
	} else {
		entries, err = s.ledger.List(ctx, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("treasury_service: list ledger: %w", err)
	}
	return entries, nil
}
