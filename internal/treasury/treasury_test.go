package treasury

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/bondledger/internal/domain"
	"github.com/alanyoungcy/bondledger/internal/store/memory"
)

var (
	alice = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func newTreasury(t *testing.T) (*Treasury, *memory.TreasuryLedger, *SimTransferor) {
	t.Helper()
	ledger := memory.NewTreasuryLedger()
	transferor := NewSimTransferor()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(ledger, transferor, logger), ledger, transferor
}

func TestDepositAndBalance(t *testing.T) {
	treas, ledger, _ := newTreasury(t)
	ctx := context.Background()

	if err := treas.Deposit(ctx, 1, alice, 1000, domain.KindPurchase); err != nil {
		t.Fatal(err)
	}
	if err := treas.Deposit(ctx, 0, bob, 250, domain.KindFunding); err != nil {
		t.Fatal(err)
	}
	if got := treas.Balance(); got != 1250 {
		t.Errorf("balance = %d, want 1250", got)
	}
	sum, err := ledger.Sum(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if sum != 1250 {
		t.Errorf("ledger sum = %d, want 1250", sum)
	}
}

func TestDepositRejectsNonPositive(t *testing.T) {
	treas, _, _ := newTreasury(t)
	ctx := context.Background()

	for _, amount := range []int64{0, -1} {
		if err := treas.Deposit(ctx, 1, alice, amount, domain.KindPurchase); !errors.Is(err, domain.ErrInvalidParams) {
			t.Errorf("deposit %d error = %v, want ErrInvalidParams", amount, err)
		}
	}
	if got := treas.Balance(); got != 0 {
		t.Errorf("balance = %d, want 0", got)
	}
}

func TestPayout(t *testing.T) {
	treas, ledger, transferor := newTreasury(t)
	ctx := context.Background()

	if err := treas.Deposit(ctx, 1, alice, 1000, domain.KindPurchase); err != nil {
		t.Fatal(err)
	}
	if err := treas.Payout(ctx, 1, bob, 400, domain.KindRedemption); err != nil {
		t.Fatal(err)
	}
	if got := treas.Balance(); got != 600 {
		t.Errorf("balance = %d, want 600", got)
	}
	if got := transferor.Received(bob); got != 400 {
		t.Errorf("bob received %d, want 400", got)
	}

	rows, err := ledger.List(ctx, domain.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("ledger rows = %d, want 2", len(rows))
	}
	out := rows[1]
	if out.Direction != domain.DirectionOut || out.Kind != domain.KindRedemption {
		t.Errorf("payout row = %+v", out)
	}
	if out.TxRef == "" {
		t.Error("payout row missing tx reference")
	}
}

func TestPayoutInsufficientBalance(t *testing.T) {
	treas, ledger, transferor := newTreasury(t)
	ctx := context.Background()

	if err := treas.Deposit(ctx, 1, alice, 100, domain.KindPurchase); err != nil {
		t.Fatal(err)
	}
	err := treas.Payout(ctx, 1, bob, 101, domain.KindRedemption)
	if !errors.Is(err, domain.ErrInsufficientTreasury) {
		t.Fatalf("error = %v, want ErrInsufficientTreasury", err)
	}
	if got := treas.Balance(); got != 100 {
		t.Errorf("balance = %d after failed payout, want 100", got)
	}
	if got := transferor.Received(bob); got != 0 {
		t.Errorf("bob received %d from failed payout, want 0", got)
	}
	rows, _ := ledger.List(ctx, domain.ListOpts{})
	if len(rows) != 1 {
		t.Errorf("ledger rows = %d, want 1 (deposit only)", len(rows))
	}
}

func TestPayoutTransferFailureRecredits(t *testing.T) {
	treas, ledger, transferor := newTreasury(t)
	ctx := context.Background()

	if err := treas.Deposit(ctx, 1, alice, 1000, domain.KindPurchase); err != nil {
		t.Fatal(err)
	}
	transferor.OnTransfer = func(context.Context, common.Address, int64) error {
		return fmt.Errorf("rpc unavailable")
	}

	err := treas.Payout(ctx, 1, bob, 400, domain.KindRedemption)
	if !errors.Is(err, domain.ErrExternalCall) {
		t.Fatalf("error = %v, want ErrExternalCall", err)
	}
	if got := treas.Balance(); got != 1000 {
		t.Errorf("balance = %d after failed transfer, want 1000", got)
	}
	rows, _ := ledger.List(ctx, domain.ListOpts{})
	if len(rows) != 1 {
		t.Errorf("ledger rows = %d, want 1 (deposit only)", len(rows))
	}
}

func TestReverseAppendsRow(t *testing.T) {
	treas, ledger, _ := newTreasury(t)
	ctx := context.Background()

	if err := treas.Deposit(ctx, 1, alice, 500, domain.KindPurchase); err != nil {
		t.Fatal(err)
	}
	if err := treas.Reverse(ctx, 1, alice, 500); err != nil {
		t.Fatal(err)
	}
	if got := treas.Balance(); got != 0 {
		t.Errorf("balance = %d after reversal, want 0", got)
	}

	rows, _ := ledger.List(ctx, domain.ListOpts{})
	if len(rows) != 2 {
		t.Fatalf("ledger rows = %d, want 2 (deposit kept, reversal appended)", len(rows))
	}
	if rows[1].Kind != domain.KindReversal || rows[1].Direction != domain.DirectionOut {
		t.Errorf("reversal row = %+v", rows[1])
	}
	sum, _ := ledger.Sum(ctx)
	if sum != 0 {
		t.Errorf("ledger sum = %d, want 0", sum)
	}
}

func TestLoadRestoresBalanceFromLedger(t *testing.T) {
	treas, ledger, _ := newTreasury(t)
	ctx := context.Background()

	if err := treas.Deposit(ctx, 1, alice, 900, domain.KindPurchase); err != nil {
		t.Fatal(err)
	}
	if err := treas.Payout(ctx, 1, bob, 300, domain.KindRedemption); err != nil {
		t.Fatal(err)
	}

	// A fresh instance over the same ledger recovers the balance.
	restarted := New(ledger, NewSimTransferor(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := restarted.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if got := restarted.Balance(); got != 600 {
		t.Errorf("balance after load = %d, want 600", got)
	}
}
