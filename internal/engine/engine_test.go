package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/bondledger/internal/domain"
	"github.com/alanyoungcy/bondledger/internal/store/memory"
	"github.com/alanyoungcy/bondledger/internal/token"
	"github.com/alanyoungcy/bondledger/internal/treasury"
)

var (
	admin    = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	issuer1  = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	investor = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	stranger = common.HexToAddress("0x00000000000000000000000000000000000000d1")
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	eng        *Engine
	bonds      *memory.BondStore
	holdings   *memory.HoldingStore
	ledger     *memory.TreasuryLedger
	backend    *token.SimBackend
	transferor *treasury.SimTransferor
	treasury   *treasury.Treasury
	clock      *testClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := newTestClock()

	bonds := memory.NewBondStore()
	issuers := memory.NewIssuerStore()
	holdings := memory.NewHoldingStore()
	ledger := memory.NewTreasuryLedger()
	backend := token.NewSimBackend()
	transferor := treasury.NewSimTransferor()

	treas := treasury.New(ledger, transferor, logger).WithClock(clock.Now)
	eng := New(Config{Admin: admin}, bonds, issuers, holdings, treas, backend, logger).
		WithClock(clock.Now)

	return &fixture{
		eng:        eng,
		bonds:      bonds,
		holdings:   holdings,
		ledger:     ledger,
		backend:    backend,
		transferor: transferor,
		treasury:   treas,
		clock:      clock,
	}
}

func defaultParams() domain.BondParams {
	return domain.BondParams{
		InterestRateBP: 450,
		CouponRateBP:   500,
		FaceValue:      1000,
		AvailableUnits: 100,
		Duration:       365 * 24 * time.Hour,
	}
}

// issuedBond walks a bond through register → KYC → create → approve → issue
// and returns its id.
func (f *fixture) issuedBond(t *testing.T, params domain.BondParams) int64 {
	t.Helper()
	ctx := context.Background()

	if err := f.eng.RegisterIssuer(ctx, issuer1); err != nil && !errors.Is(err, domain.ErrAlreadyRegistered) {
		t.Fatalf("RegisterIssuer: %v", err)
	}
	if err := f.eng.ApproveKYC(ctx, admin, issuer1); err != nil {
		t.Fatalf("ApproveKYC: %v", err)
	}
	id, err := f.eng.CreateBond(ctx, issuer1, params)
	if err != nil {
		t.Fatalf("CreateBond: %v", err)
	}
	if err := f.eng.ApproveBond(ctx, admin, id); err != nil {
		t.Fatalf("ApproveBond: %v", err)
	}
	if err := f.eng.IssueBond(ctx, admin, id, TokenMetadata{Name: "Test Bond", Symbol: "TB"}); err != nil {
		t.Fatalf("IssueBond: %v", err)
	}
	return id
}

func TestFullLifecycleScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id := f.issuedBond(t, defaultParams())

	bond, err := f.eng.GetBond(ctx, id)
	if err != nil {
		t.Fatalf("GetBond: %v", err)
	}
	if bond.TokenHandle == "" {
		t.Fatal("issued bond has empty token handle")
	}
	if bond.Status != domain.BondIssued {
		t.Fatalf("status = %s, want issued", bond.Status)
	}

	// Buy 10 units at the exact price.
	if err := f.eng.BuyBond(ctx, investor, id, 10, 10*1000); err != nil {
		t.Fatalf("BuyBond: %v", err)
	}
	bond, _ = f.eng.GetBond(ctx, id)
	if bond.AvailableUnits != 90 {
		t.Errorf("AvailableUnits = %d, want 90", bond.AvailableUnits)
	}
	if bond.IssuedUnits != 10 {
		t.Errorf("IssuedUnits = %d, want 10", bond.IssuedUnits)
	}
	if got := f.backend.Balance(bond.TokenHandle, investor); got != 10 {
		t.Errorf("investor token balance = %d, want 10", got)
	}
	if got := f.eng.TreasuryBalance(); got != 10_000 {
		t.Errorf("treasury = %d, want 10000", got)
	}

	// Issuer pre-funds the coupon obligation.
	if err := f.eng.FundTreasury(ctx, issuer1, 5_000); err != nil {
		t.Fatalf("FundTreasury: %v", err)
	}

	// Mature and redeem. A 5% coupon over a 365-day term on 10 units of
	// face 1000 pays 500 on top of the 10000 principal.
	f.clock.Advance(365 * 24 * time.Hour)
	if err := f.eng.MarkMature(ctx, stranger, id); err != nil {
		t.Fatalf("MarkMature: %v", err)
	}
	balBefore := f.eng.TreasuryBalance()
	if err := f.eng.RedeemBond(ctx, investor, id, 10); err != nil {
		t.Fatalf("RedeemBond: %v", err)
	}

	const payout = 10_000 + 500
	if got := f.transferor.Received(investor); got != payout {
		t.Errorf("investor received %d, want %d", got, payout)
	}
	if got := f.eng.TreasuryBalance(); got != balBefore-payout {
		t.Errorf("treasury = %d, want %d", got, balBefore-payout)
	}

	bond, _ = f.eng.GetBond(ctx, id)
	if bond.IssuedUnits != 0 {
		t.Errorf("IssuedUnits = %d, want 0", bond.IssuedUnits)
	}
	if got := f.backend.Balance(bond.TokenHandle, investor); got != 0 {
		t.Errorf("investor token balance = %d after burn, want 0", got)
	}
	// Last redemption settles the bond automatically.
	if bond.Status != domain.BondSettled {
		t.Errorf("status = %s, want settled", bond.Status)
	}
}

func TestKYCIdempotence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.eng.RegisterIssuer(ctx, issuer1); err != nil {
		t.Fatalf("RegisterIssuer: %v", err)
	}
	if err := f.eng.ApproveKYC(ctx, admin, issuer1); err != nil {
		t.Fatalf("first ApproveKYC: %v", err)
	}
	first, _ := f.eng.GetIssuer(ctx, issuer1)

	if err := f.eng.ApproveKYC(ctx, admin, issuer1); err != nil {
		t.Fatalf("second ApproveKYC: %v", err)
	}
	second, _ := f.eng.GetIssuer(ctx, issuer1)

	if first != second {
		t.Errorf("issuer changed on repeat approval: %+v != %+v", first, second)
	}
}

func TestRegisterIssuerTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.eng.RegisterIssuer(ctx, issuer1); err != nil {
		t.Fatalf("RegisterIssuer: %v", err)
	}
	err := f.eng.RegisterIssuer(ctx, issuer1)
	if !errors.Is(err, domain.ErrAlreadyRegistered) {
		t.Errorf("repeat registration error = %v, want ErrAlreadyRegistered", err)
	}
}

func TestKYCRequiresAdminAndRegistration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.eng.ApproveKYC(ctx, stranger, issuer1); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("non-admin ApproveKYC error = %v, want ErrUnauthorized", err)
	}
	if err := f.eng.ApproveKYC(ctx, admin, issuer1); !errors.Is(err, domain.ErrNotRegistered) {
		t.Errorf("unregistered ApproveKYC error = %v, want ErrNotRegistered", err)
	}
}

func TestCreateBondRequiresKYC(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.eng.CreateBond(ctx, issuer1, defaultParams())
	if !errors.Is(err, domain.ErrNotKYCApproved) {
		t.Errorf("unregistered CreateBond error = %v, want ErrNotKYCApproved", err)
	}

	if err := f.eng.RegisterIssuer(ctx, issuer1); err != nil {
		t.Fatalf("RegisterIssuer: %v", err)
	}
	_, err = f.eng.CreateBond(ctx, issuer1, defaultParams())
	if !errors.Is(err, domain.ErrNotKYCApproved) {
		t.Errorf("unapproved CreateBond error = %v, want ErrNotKYCApproved", err)
	}

	// Revocation closes the door again without touching existing bonds.
	if err := f.eng.ApproveKYC(ctx, admin, issuer1); err != nil {
		t.Fatalf("ApproveKYC: %v", err)
	}
	id, err := f.eng.CreateBond(ctx, issuer1, defaultParams())
	if err != nil {
		t.Fatalf("CreateBond: %v", err)
	}
	if err := f.eng.RevokeKYC(ctx, admin, issuer1); err != nil {
		t.Fatalf("RevokeKYC: %v", err)
	}
	if _, err := f.eng.CreateBond(ctx, issuer1, defaultParams()); !errors.Is(err, domain.ErrNotKYCApproved) {
		t.Errorf("post-revocation CreateBond error = %v, want ErrNotKYCApproved", err)
	}
	if bond, err := f.eng.GetBond(ctx, id); err != nil || bond.Status != domain.BondDraft {
		t.Errorf("existing bond touched by revocation: %+v, %v", bond, err)
	}
}

func TestCreateBondValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.eng.RegisterIssuer(ctx, issuer1); err != nil {
		t.Fatal(err)
	}
	if err := f.eng.ApproveKYC(ctx, admin, issuer1); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name   string
		mutate func(*domain.BondParams)
	}{
		{"zero face value", func(p *domain.BondParams) { p.FaceValue = 0 }},
		{"negative face value", func(p *domain.BondParams) { p.FaceValue = -1 }},
		{"zero duration", func(p *domain.BondParams) { p.Duration = 0 }},
		{"zero units", func(p *domain.BondParams) { p.AvailableUnits = 0 }},
		{"negative interest", func(p *domain.BondParams) { p.InterestRateBP = -1 }},
		{"interest over ceiling", func(p *domain.BondParams) { p.InterestRateBP = 10_001 }},
		{"coupon over ceiling", func(p *domain.BondParams) { p.CouponRateBP = 10_001 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params := defaultParams()
			tc.mutate(&params)
			if _, err := f.eng.CreateBond(ctx, issuer1, params); !errors.Is(err, domain.ErrInvalidParams) {
				t.Errorf("error = %v, want ErrInvalidParams", err)
			}
		})
	}
}

func TestBondIDsMonotonic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.eng.RegisterIssuer(ctx, issuer1); err != nil {
		t.Fatal(err)
	}
	if err := f.eng.ApproveKYC(ctx, admin, issuer1); err != nil {
		t.Fatal(err)
	}

	var last int64
	for i := 0; i < 5; i++ {
		id, err := f.eng.CreateBond(ctx, issuer1, defaultParams())
		if err != nil {
			t.Fatalf("CreateBond: %v", err)
		}
		if id <= last {
			t.Fatalf("id %d not greater than previous %d", id, last)
		}
		last = id
	}
}

func TestBuyBondInvalidStates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.eng.RegisterIssuer(ctx, issuer1); err != nil {
		t.Fatal(err)
	}
	if err := f.eng.ApproveKYC(ctx, admin, issuer1); err != nil {
		t.Fatal(err)
	}
	id, err := f.eng.CreateBond(ctx, issuer1, defaultParams())
	if err != nil {
		t.Fatal(err)
	}

	// Draft bond: no purchases.
	if err := f.eng.BuyBond(ctx, investor, id, 1, 1000); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("buy on draft error = %v, want ErrInvalidState", err)
	}

	if err := f.eng.ApproveBond(ctx, admin, id); err != nil {
		t.Fatal(err)
	}
	if err := f.eng.IssueBond(ctx, admin, id, TokenMetadata{}); err != nil {
		t.Fatal(err)
	}

	// Past maturity: no purchases, marked or not.
	f.clock.Advance(366 * 24 * time.Hour)
	if err := f.eng.BuyBond(ctx, investor, id, 1, 1000); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("buy past maturity error = %v, want ErrInvalidState", err)
	}
	if err := f.eng.MarkMature(ctx, admin, id); err != nil {
		t.Fatal(err)
	}
	if err := f.eng.BuyBond(ctx, investor, id, 1, 1000); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("buy on matured error = %v, want ErrInvalidState", err)
	}
}

func TestBuyBondOversubscription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.issuedBond(t, defaultParams())

	before, _ := f.eng.GetBond(ctx, id)
	err := f.eng.BuyBond(ctx, investor, id, 101, 101*1000)
	if !errors.Is(err, domain.ErrInsufficientUnits) {
		t.Fatalf("error = %v, want ErrInsufficientUnits", err)
	}

	after, _ := f.eng.GetBond(ctx, id)
	if before != after {
		t.Errorf("bond mutated by failed buy: %+v != %+v", before, after)
	}
	if got := f.eng.TreasuryBalance(); got != 0 {
		t.Errorf("treasury = %d after failed buy, want 0", got)
	}
}

func TestBuyBondExactPaymentRequired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.issuedBond(t, defaultParams())

	for _, payment := range []int64{9_999, 10_001, 0} {
		if err := f.eng.BuyBond(ctx, investor, id, 10, payment); !errors.Is(err, domain.ErrIncorrectPayment) {
			t.Errorf("payment %d error = %v, want ErrIncorrectPayment", payment, err)
		}
	}
	if got := f.eng.TreasuryBalance(); got != 0 {
		t.Errorf("treasury = %d after rejected payments, want 0", got)
	}
}

func TestBuyBondTransferFailureUnwinds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.issuedBond(t, defaultParams())
	bond, _ := f.eng.GetBond(ctx, id)

	// Burning the reserve makes the delivery transfer fail.
	if err := f.backend.Burn(ctx, bond.TokenHandle, common.Address{}, bond.AvailableUnits); err != nil {
		t.Fatal(err)
	}

	before, _ := f.eng.GetBond(ctx, id)
	err := f.eng.BuyBond(ctx, investor, id, 10, 10_000)
	if !errors.Is(err, domain.ErrExternalCall) {
		t.Fatalf("error = %v, want ErrExternalCall", err)
	}

	after, _ := f.eng.GetBond(ctx, id)
	if before != after {
		t.Errorf("bond mutated by unwound buy: %+v != %+v", before, after)
	}
	if got := f.eng.TreasuryBalance(); got != 0 {
		t.Errorf("treasury = %d after unwound buy, want 0", got)
	}
	if h, err := f.holdings.Get(ctx, id, investor); err == nil && h.Units != 0 {
		t.Errorf("holding = %d units after unwound buy, want 0", h.Units)
	}
}

func TestRedeemBeforeMaturityFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.issuedBond(t, defaultParams())
	if err := f.eng.BuyBond(ctx, investor, id, 10, 10_000); err != nil {
		t.Fatal(err)
	}

	if err := f.eng.RedeemBond(ctx, investor, id, 10); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("redeem on issued error = %v, want ErrInvalidState", err)
	}
}

func TestRedeemInsufficientTreasuryBurnsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.issuedBond(t, defaultParams())
	if err := f.eng.BuyBond(ctx, investor, id, 10, 10_000); err != nil {
		t.Fatal(err)
	}
	bond, _ := f.eng.GetBond(ctx, id)

	// The buy left 10000 in the treasury; the payout is 10500. Fund 499 so
	// the balance lands exactly one short.
	if err := f.eng.FundTreasury(ctx, issuer1, 499); err != nil {
		t.Fatal(err)
	}

	f.clock.Advance(365 * 24 * time.Hour)
	if err := f.eng.MarkMature(ctx, admin, id); err != nil {
		t.Fatal(err)
	}

	tokensBefore := f.backend.Balance(bond.TokenHandle, investor)
	err := f.eng.RedeemBond(ctx, investor, id, 10)
	if !errors.Is(err, domain.ErrInsufficientTreasury) {
		t.Fatalf("error = %v, want ErrInsufficientTreasury", err)
	}
	if got := f.backend.Balance(bond.TokenHandle, investor); got != tokensBefore {
		t.Errorf("tokens burned on failed redemption: %d -> %d", tokensBefore, got)
	}
	if got := f.eng.TreasuryBalance(); got != 10_499 {
		t.Errorf("treasury = %d, want 10499", got)
	}
	if h, _ := f.holdings.Get(ctx, id, investor); h.Units != 10 {
		t.Errorf("holding = %d units, want 10", h.Units)
	}
}

func TestRedeemMoreThanHeld(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.issuedBond(t, defaultParams())
	if err := f.eng.BuyBond(ctx, investor, id, 10, 10_000); err != nil {
		t.Fatal(err)
	}
	if err := f.eng.FundTreasury(ctx, issuer1, 100_000); err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(365 * 24 * time.Hour)
	if err := f.eng.MarkMature(ctx, admin, id); err != nil {
		t.Fatal(err)
	}

	if err := f.eng.RedeemBond(ctx, investor, id, 11); !errors.Is(err, domain.ErrInsufficientHolding) {
		t.Errorf("error = %v, want ErrInsufficientHolding", err)
	}
	if err := f.eng.RedeemBond(ctx, stranger, id, 1); !errors.Is(err, domain.ErrInsufficientHolding) {
		t.Errorf("non-holder error = %v, want ErrInsufficientHolding", err)
	}
}

func TestReentrantRedeemRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.issuedBond(t, defaultParams())
	if err := f.eng.BuyBond(ctx, investor, id, 20, 20_000); err != nil {
		t.Fatal(err)
	}
	if err := f.eng.FundTreasury(ctx, issuer1, 10_000); err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(365 * 24 * time.Hour)
	if err := f.eng.MarkMature(ctx, admin, id); err != nil {
		t.Fatal(err)
	}

	// A malicious recipient re-enters RedeemBond during its own payout. The
	// inner call must trip the guard; the outer call must complete with
	// exactly one payout.
	var innerErr error
	var reentered bool
	f.transferor.OnTransfer = func(ctx context.Context, to common.Address, amount int64) error {
		if !reentered {
			reentered = true
			innerErr = f.eng.RedeemBond(ctx, investor, id, 10)
		}
		return nil
	}

	balBefore := f.eng.TreasuryBalance()
	if err := f.eng.RedeemBond(ctx, investor, id, 10); err != nil {
		t.Fatalf("outer RedeemBond: %v", err)
	}
	if !reentered {
		t.Fatal("transfer hook never ran")
	}
	if !errors.Is(innerErr, domain.ErrReentrancy) {
		t.Fatalf("inner error = %v, want ErrReentrancy", innerErr)
	}

	const payout = 10_000 + 500
	if got := f.transferor.Received(investor); got != payout {
		t.Errorf("investor received %d, want exactly one payout %d", got, payout)
	}
	if got := f.eng.TreasuryBalance(); got != balBefore-payout {
		t.Errorf("treasury = %d, want %d", got, balBefore-payout)
	}
	if h, _ := f.holdings.Get(ctx, id, investor); h.Units != 10 {
		t.Errorf("holding = %d units, want 10", h.Units)
	}
}

func TestTreasuryConservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.issuedBond(t, defaultParams())

	var in, out int64
	buy := func(units int64) {
		t.Helper()
		cost := units * 1000
		if err := f.eng.BuyBond(ctx, investor, id, units, cost); err != nil {
			t.Fatalf("BuyBond(%d): %v", units, err)
		}
		in += cost
	}
	buy(10)
	buy(5)
	buy(25)

	if err := f.eng.FundTreasury(ctx, issuer1, 50_000); err != nil {
		t.Fatal(err)
	}
	in += 50_000

	f.clock.Advance(365 * 24 * time.Hour)
	if err := f.eng.MarkMature(ctx, admin, id); err != nil {
		t.Fatal(err)
	}

	redeem := func(units int64) {
		t.Helper()
		bond, _ := f.eng.GetBond(ctx, id)
		payout, err := RedemptionPayout(bond, units)
		if err != nil {
			t.Fatal(err)
		}
		if err := f.eng.RedeemBond(ctx, investor, id, units); err != nil {
			t.Fatalf("RedeemBond(%d): %v", units, err)
		}
		out += payout
	}
	redeem(10)
	redeem(7)

	if got := f.eng.TreasuryBalance(); got != in-out {
		t.Errorf("treasury = %d, want in-out = %d", got, in-out)
	}
	sum, err := f.ledger.Sum(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if sum != in-out {
		t.Errorf("ledger sum = %d, want %d", sum, in-out)
	}
}

func TestPauseBlocksMutationAllowsReads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.issuedBond(t, defaultParams())

	if err := f.eng.Pause(ctx, stranger); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("non-admin pause error = %v, want ErrUnauthorized", err)
	}
	if err := f.eng.Pause(ctx, admin); err != nil {
		t.Fatal(err)
	}

	if err := f.eng.BuyBond(ctx, investor, id, 1, 1000); !errors.Is(err, domain.ErrPaused) {
		t.Errorf("buy while paused error = %v, want ErrPaused", err)
	}
	if err := f.eng.RegisterIssuer(ctx, stranger); !errors.Is(err, domain.ErrPaused) {
		t.Errorf("register while paused error = %v, want ErrPaused", err)
	}
	if _, err := f.eng.GetBond(ctx, id); err != nil {
		t.Errorf("read while paused failed: %v", err)
	}

	if err := f.eng.Unpause(ctx, admin); err != nil {
		t.Fatal(err)
	}
	if err := f.eng.BuyBond(ctx, investor, id, 1, 1000); err != nil {
		t.Errorf("buy after unpause failed: %v", err)
	}
}

func TestAdminTransfer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.eng.TransferAdmin(ctx, stranger, stranger); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("non-admin transfer error = %v, want ErrUnauthorized", err)
	}
	if err := f.eng.TransferAdmin(ctx, admin, common.Address{}); !errors.Is(err, domain.ErrInvalidParams) {
		t.Errorf("zero-address transfer error = %v, want ErrInvalidParams", err)
	}
	if err := f.eng.TransferAdmin(ctx, admin, stranger); err != nil {
		t.Fatal(err)
	}
	if got := f.eng.Admin(); got != stranger {
		t.Errorf("admin = %s, want %s", got.Hex(), stranger.Hex())
	}
	if err := f.eng.Pause(ctx, admin); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("old admin still authorized: %v", err)
	}
}

func TestMarkMatureBeforeTimeFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.issuedBond(t, defaultParams())

	if err := f.eng.MarkMature(ctx, admin, id); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("early MarkMature error = %v, want ErrInvalidState", err)
	}
}

func TestForceCloseVoidsOutstandingUnits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.issuedBond(t, defaultParams())
	if err := f.eng.BuyBond(ctx, investor, id, 10, 10_000); err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(365 * 24 * time.Hour)
	if err := f.eng.MarkMature(ctx, admin, id); err != nil {
		t.Fatal(err)
	}

	if err := f.eng.ForceClose(ctx, stranger, id); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("non-admin force close error = %v, want ErrUnauthorized", err)
	}
	balBefore := f.eng.TreasuryBalance()
	if err := f.eng.ForceClose(ctx, admin, id); err != nil {
		t.Fatal(err)
	}

	bond, _ := f.eng.GetBond(ctx, id)
	if bond.Status != domain.BondSettled {
		t.Errorf("status = %s, want settled", bond.Status)
	}
	if bond.IssuedUnits != 0 {
		t.Errorf("IssuedUnits = %d, want 0", bond.IssuedUnits)
	}
	if got := f.eng.TreasuryBalance(); got != balBefore {
		t.Errorf("force close moved value: %d -> %d", balBefore, got)
	}

	// Terminal: nothing more is possible.
	if err := f.eng.RedeemBond(ctx, investor, id, 10); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("redeem after settle error = %v, want ErrInvalidState", err)
	}
	if err := f.eng.ForceClose(ctx, admin, id); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("second force close error = %v, want ErrInvalidState", err)
	}
}

func TestIssueBondMintFailureLeavesStateUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.eng.RegisterIssuer(ctx, issuer1); err != nil {
		t.Fatal(err)
	}
	if err := f.eng.ApproveKYC(ctx, admin, issuer1); err != nil {
		t.Fatal(err)
	}
	id, err := f.eng.CreateBond(ctx, issuer1, defaultParams())
	if err != nil {
		t.Fatal(err)
	}
	if err := f.eng.ApproveBond(ctx, admin, id); err != nil {
		t.Fatal(err)
	}

	backend := &failingBackend{mintErr: fmt.Errorf("mint rejected")}
	eng := New(Config{Admin: admin}, f.bonds, f.eng.issuers, f.holdings, f.treasury, backend,
		slog.New(slog.NewTextHandler(io.Discard, nil))).WithClock(f.clock.Now)

	err = eng.IssueBond(ctx, admin, id, TokenMetadata{})
	if !errors.Is(err, domain.ErrExternalCall) {
		t.Fatalf("error = %v, want ErrExternalCall", err)
	}
	bond, _ := f.eng.GetBond(ctx, id)
	if bond.Status != domain.BondApproved {
		t.Errorf("status = %s after failed mint, want approved", bond.Status)
	}
	if bond.TokenHandle != "" {
		t.Errorf("token handle = %q after failed mint, want empty", bond.TokenHandle)
	}
}

// failingBackend fails every operation with configured errors.
type failingBackend struct {
	mintErr error
}

func (b *failingBackend) Mint(context.Context, token.MintSpec) (string, error) {
	return "", b.mintErr
}

func (b *failingBackend) Transfer(context.Context, string, common.Address, int64) error {
	return fmt.Errorf("transfer rejected")
}

func (b *failingBackend) Burn(context.Context, string, common.Address, int64) error {
	return fmt.Errorf("burn rejected")
}

func TestSetTokenBackendSwap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.eng.SetTokenBackend(ctx, stranger, token.NewSimBackend()); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("non-admin swap: error = %v, want ErrUnauthorized", err)
	}
	if err := f.eng.SetTokenBackend(ctx, admin, nil); !errors.Is(err, domain.ErrInvalidParams) {
		t.Fatalf("nil backend: error = %v, want ErrInvalidParams", err)
	}

	replacement := token.NewSimBackend()
	if err := f.eng.SetTokenBackend(ctx, admin, replacement); err != nil {
		t.Fatalf("SetTokenBackend: %v", err)
	}

	// Issuance after the swap mints on the replacement backend only.
	id := f.issuedBond(t, defaultParams())
	bond, err := f.eng.GetBond(ctx, id)
	if err != nil {
		t.Fatalf("GetBond: %v", err)
	}
	if got := replacement.TotalSupply(bond.TokenHandle); got != bond.AvailableUnits {
		t.Errorf("replacement supply = %d, want %d", got, bond.AvailableUnits)
	}
	if got := f.backend.TotalSupply(bond.TokenHandle); got != 0 {
		t.Errorf("old backend supply = %d, want 0", got)
	}
}

func TestSetTreasurySwap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.eng.FundTreasury(ctx, investor, 300); err != nil {
		t.Fatalf("FundTreasury: %v", err)
	}

	if err := f.eng.SetTreasury(ctx, stranger, f.treasury); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("non-admin swap: error = %v, want ErrUnauthorized", err)
	}
	if err := f.eng.SetTreasury(ctx, admin, nil); !errors.Is(err, domain.ErrInvalidParams) {
		t.Fatalf("nil treasury: error = %v, want ErrInvalidParams", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	replacement := treasury.New(memory.NewTreasuryLedger(), treasury.NewSimTransferor(), logger).
		WithClock(f.clock.Now)
	if err := f.eng.SetTreasury(ctx, admin, replacement); err != nil {
		t.Fatalf("SetTreasury: %v", err)
	}

	// Deposits after the swap land in the replacement; the old treasury's
	// balance is untouched.
	if err := f.eng.FundTreasury(ctx, investor, 500); err != nil {
		t.Fatalf("FundTreasury after swap: %v", err)
	}
	if got := f.eng.TreasuryBalance(); got != 500 {
		t.Errorf("engine balance = %d, want 500", got)
	}
	if got := f.treasury.Balance(); got != 300 {
		t.Errorf("old treasury balance = %d, want 300", got)
	}
}
