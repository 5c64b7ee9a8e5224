package token

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var holder = common.HexToAddress("0x00000000000000000000000000000000000000e1")

func TestSimBackendMintTransferBurn(t *testing.T) {
	s := NewSimBackend()
	ctx := context.Background()

	handle, err := s.Mint(ctx, MintSpec{Name: "Bond A", Symbol: "BA", BondID: 1, Units: 100})
	if err != nil {
		t.Fatal(err)
	}
	if handle == "" {
		t.Fatal("empty handle")
	}
	if got := s.TotalSupply(handle); got != 100 {
		t.Errorf("supply = %d, want 100", got)
	}

	if err := s.Transfer(ctx, handle, holder, 30); err != nil {
		t.Fatal(err)
	}
	if got := s.Balance(handle, holder); got != 30 {
		t.Errorf("holder balance = %d, want 30", got)
	}
	if got := s.Balance(handle, common.Address{}); got != 70 {
		t.Errorf("reserve balance = %d, want 70", got)
	}

	if err := s.Burn(ctx, handle, holder, 30); err != nil {
		t.Fatal(err)
	}
	if got := s.TotalSupply(handle); got != 70 {
		t.Errorf("supply after burn = %d, want 70", got)
	}
}

func TestSimBackendRemintExistingClass(t *testing.T) {
	s := NewSimBackend()
	ctx := context.Background()

	handle, err := s.Mint(ctx, MintSpec{BondID: 1, Units: 10})
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.Mint(ctx, MintSpec{Handle: handle, BondID: 1, Units: 5, To: holder})
	if err != nil {
		t.Fatal(err)
	}
	if got != handle {
		t.Errorf("re-mint returned handle %q, want %q", got, handle)
	}
	if bal := s.Balance(handle, holder); bal != 5 {
		t.Errorf("holder balance = %d, want 5", bal)
	}
}

func TestSimBackendGuardsBalances(t *testing.T) {
	s := NewSimBackend()
	ctx := context.Background()

	handle, err := s.Mint(ctx, MintSpec{BondID: 1, Units: 10})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Transfer(ctx, handle, holder, 11); err == nil {
		t.Error("transfer beyond reserve succeeded")
	}
	if err := s.Burn(ctx, handle, holder, 1); err == nil {
		t.Error("burn beyond balance succeeded")
	}
	if err := s.Transfer(ctx, "no-such-handle", holder, 1); err == nil {
		t.Error("transfer on unknown handle succeeded")
	}
	if _, err := s.Mint(ctx, MintSpec{Handle: "no-such-handle", Units: 1}); err == nil {
		t.Error("re-mint on unknown handle succeeded")
	}
}
