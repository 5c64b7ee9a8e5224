package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/bondledger/internal/domain"
)

var (
	walletA = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	walletB = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func TestBondStoreIDsMonotonic(t *testing.T) {
	ctx := context.Background()
	s := NewBondStore()

	var last int64
	for i := 0; i < 5; i++ {
		id, err := s.Create(ctx, domain.Bond{Issuer: walletA, Status: domain.BondDraft})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if id <= last {
			t.Fatalf("id %d not above previous %d", id, last)
		}
		last = id
	}

	count, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 5 {
		t.Fatalf("count = %d, want 5", count)
	}
}

func TestBondStoreUpdateUnknown(t *testing.T) {
	s := NewBondStore()
	err := s.Update(context.Background(), domain.Bond{ID: 42})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestBondStoreListFilters(t *testing.T) {
	ctx := context.Background()
	s := NewBondStore()

	now := time.Now().UTC()
	if _, err := s.Create(ctx, domain.Bond{Issuer: walletA, Status: domain.BondDraft}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.Create(ctx, domain.Bond{Issuer: walletA, Status: domain.BondIssued, MaturityAt: now.Add(-time.Hour)}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.Create(ctx, domain.Bond{Issuer: walletB, Status: domain.BondIssued, MaturityAt: now.Add(time.Hour)}); err != nil {
		t.Fatalf("create: %v", err)
	}

	byIssuer, err := s.ListByIssuer(ctx, walletA, domain.ListOpts{})
	if err != nil {
		t.Fatalf("list by issuer: %v", err)
	}
	if len(byIssuer) != 2 {
		t.Fatalf("issuer bonds = %d, want 2", len(byIssuer))
	}

	issued, err := s.ListByStatus(ctx, domain.BondIssued, domain.ListOpts{Limit: 1})
	if err != nil {
		t.Fatalf("list by status: %v", err)
	}
	if len(issued) != 1 {
		t.Fatalf("limited issued bonds = %d, want 1", len(issued))
	}

	due, err := s.ListMaturedBefore(ctx, now)
	if err != nil {
		t.Fatalf("list matured: %v", err)
	}
	if len(due) != 1 || due[0].ID != 2 {
		t.Fatalf("due = %+v, want only bond 2", due)
	}
}

func TestIssuerStoreDuplicateCreate(t *testing.T) {
	ctx := context.Background()
	s := NewIssuerStore()

	if err := s.Create(ctx, domain.Issuer{Wallet: walletA}); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := s.Create(ctx, domain.Issuer{Wallet: walletA})
	if !errors.Is(err, domain.ErrAlreadyRegistered) {
		t.Fatalf("err = %v, want ErrAlreadyRegistered", err)
	}
}

func TestHoldingStoreUpsertAndList(t *testing.T) {
	ctx := context.Background()
	s := NewHoldingStore()

	if _, err := s.Get(ctx, 1, walletA); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("get empty: %v, want ErrNotFound", err)
	}

	if err := s.Upsert(ctx, domain.Holding{BondID: 1, Wallet: walletA, Units: 10}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.Upsert(ctx, domain.Holding{BondID: 1, Wallet: walletA, Units: 25}); err != nil {
		t.Fatalf("upsert overwrite: %v", err)
	}
	if err := s.Upsert(ctx, domain.Holding{BondID: 2, Wallet: walletA, Units: 5}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	h, err := s.Get(ctx, 1, walletA)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if h.Units != 25 {
		t.Fatalf("units = %d, want 25 (overwrite, not add)", h.Units)
	}

	byWallet, err := s.ListByWallet(ctx, walletA)
	if err != nil {
		t.Fatalf("list by wallet: %v", err)
	}
	if len(byWallet) != 2 {
		t.Fatalf("wallet holdings = %d, want 2", len(byWallet))
	}

	byBond, err := s.ListByBond(ctx, 1)
	if err != nil {
		t.Fatalf("list by bond: %v", err)
	}
	if len(byBond) != 1 {
		t.Fatalf("bond holdings = %d, want 1", len(byBond))
	}
}

func TestTreasuryLedgerSum(t *testing.T) {
	ctx := context.Background()
	s := NewTreasuryLedger()

	entries := []domain.TreasuryEntry{
		{BondID: 1, Direction: domain.DirectionIn, Amount: 1000},
		{BondID: 1, Direction: domain.DirectionOut, Amount: 300},
		{BondID: 2, Direction: domain.DirectionIn, Amount: 50},
	}
	for _, e := range entries {
		if err := s.Append(ctx, e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	sum, err := s.Sum(ctx)
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	if sum != 750 {
		t.Fatalf("sum = %d, want 750", sum)
	}

	byBond, err := s.ListByBond(ctx, 1, domain.ListOpts{})
	if err != nil {
		t.Fatalf("list by bond: %v", err)
	}
	if len(byBond) != 2 {
		t.Fatalf("bond rows = %d, want 2", len(byBond))
	}
}

func TestTreasuryLedgerListBefore(t *testing.T) {
	ctx := context.Background()
	s := NewTreasuryLedger()
	cutoff := time.Now().UTC()

	if err := s.Append(ctx, domain.TreasuryEntry{Amount: 1, Direction: domain.DirectionIn, CreatedAt: cutoff.Add(-time.Hour)}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Append(ctx, domain.TreasuryEntry{Amount: 2, Direction: domain.DirectionIn, CreatedAt: cutoff.Add(time.Hour)}); err != nil {
		t.Fatalf("append: %v", err)
	}

	old, err := s.ListBefore(ctx, cutoff)
	if err != nil {
		t.Fatalf("list before: %v", err)
	}
	if len(old) != 1 || old[0].Amount != 1 {
		t.Fatalf("old rows = %+v, want only the hour-old row", old)
	}
}

func TestAuditStoreWindow(t *testing.T) {
	ctx := context.Background()
	s := NewAuditStore()

	if err := s.Log(ctx, "first", nil); err != nil {
		t.Fatalf("log: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	mid := time.Now().UTC()
	time.Sleep(5 * time.Millisecond)
	if err := s.Log(ctx, "second", map[string]any{"k": "v"}); err != nil {
		t.Fatalf("log: %v", err)
	}

	until, err := s.List(ctx, domain.ListOpts{Until: &mid})
	if err != nil {
		t.Fatalf("list until: %v", err)
	}
	if len(until) != 1 || until[0].Event != "first" {
		t.Fatalf("until window = %+v, want only 'first'", until)
	}

	since, err := s.List(ctx, domain.ListOpts{Since: &mid})
	if err != nil {
		t.Fatalf("list since: %v", err)
	}
	if len(since) != 1 || since[0].Event != "second" {
		t.Fatalf("since window = %+v, want only 'second'", since)
	}
}

func TestSchemaStoreVersion(t *testing.T) {
	ctx := context.Background()
	s := NewSchemaStore()

	v, err := s.Version(ctx)
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if v != 0 {
		t.Fatalf("fresh version = %d, want 0", v)
	}

	if err := s.SetVersion(ctx, 3, "test"); err != nil {
		t.Fatalf("set version: %v", err)
	}
	v, err = s.Version(ctx)
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if v != 3 {
		t.Fatalf("version = %d, want 3", v)
	}
}

func TestPaginate(t *testing.T) {
	in := []int{1, 2, 3, 4, 5}
	tests := []struct {
		name string
		opts domain.ListOpts
		want []int
	}{
		{"no opts", domain.ListOpts{}, []int{1, 2, 3, 4, 5}},
		{"limit", domain.ListOpts{Limit: 2}, []int{1, 2}},
		{"offset", domain.ListOpts{Offset: 3}, []int{4, 5}},
		{"offset and limit", domain.ListOpts{Offset: 1, Limit: 2}, []int{2, 3}},
		{"offset past end", domain.ListOpts{Offset: 9}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := paginate(in, tt.opts)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}
