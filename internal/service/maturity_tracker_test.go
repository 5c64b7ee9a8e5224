package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/bondledger/internal/domain"
	"github.com/alanyoungcy/bondledger/internal/engine"
	"github.com/alanyoungcy/bondledger/internal/store/memory"
	"github.com/alanyoungcy/bondledger/internal/token"
	"github.com/alanyoungcy/bondledger/internal/treasury"
)

func TestMaturitySweep(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	admin := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	issuer := common.HexToAddress("0x00000000000000000000000000000000000000b1")

	bonds := memory.NewBondStore()
	issuers := memory.NewIssuerStore()
	holdings := memory.NewHoldingStore()
	ledger := memory.NewTreasuryLedger()
	treas := treasury.New(ledger, treasury.NewSimTransferor(), logger)
	eng := engine.New(engine.Config{Admin: admin}, bonds, issuers, holdings, treas, token.NewSimBackend(), logger)

	if err := eng.RegisterIssuer(ctx, issuer); err != nil {
		t.Fatal(err)
	}
	if err := eng.ApproveKYC(ctx, admin, issuer); err != nil {
		t.Fatal(err)
	}
	id, err := eng.CreateBond(ctx, issuer, domain.BondParams{
		CouponRateBP:   500,
		FaceValue:      1000,
		AvailableUnits: 10,
		Duration:       time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := eng.ApproveBond(ctx, admin, id); err != nil {
		t.Fatal(err)
	}
	if err := eng.IssueBond(ctx, admin, id, engine.TokenMetadata{}); err != nil {
		t.Fatal(err)
	}

	// Push the bond past maturity without waiting.
	bond, _ := bonds.GetByID(ctx, id)
	bond.MaturityAt = time.Now().UTC().Add(-time.Minute)
	if err := bonds.Update(ctx, bond); err != nil {
		t.Fatal(err)
	}

	tracker := NewMaturityTracker(eng, bonds, nil, time.Minute, logger)
	if err := tracker.sweep(ctx); err != nil {
		t.Fatal(err)
	}

	bond, _ = bonds.GetByID(ctx, id)
	if bond.Status != domain.BondMatured {
		t.Errorf("status after sweep = %s, want matured", bond.Status)
	}

	// A second sweep finds nothing due and does not error.
	if err := tracker.sweep(ctx); err != nil {
		t.Fatal(err)
	}
}
