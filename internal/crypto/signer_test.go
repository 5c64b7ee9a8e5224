package crypto

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

// A throwaway key for tests only.
const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestSignAndRecoverReceipt(t *testing.T) {
	s, err := NewSigner(testKeyHex, 1)
	if err != nil {
		t.Fatal(err)
	}

	r := Receipt{
		BondID:     42,
		Holder:     common.HexToAddress("0x00000000000000000000000000000000000000c1"),
		Units:      10,
		Payout:     10_500,
		RedeemedAt: 1_767_225_600,
	}
	sig, err := s.SignReceipt(r)
	if err != nil {
		t.Fatal(err)
	}

	got, err := RecoverReceiptSigner(r, sig, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got != s.Address() {
		t.Errorf("recovered %s, want %s", got.Hex(), s.Address().Hex())
	}

	// A tampered receipt recovers a different address.
	r.Payout++
	got, err = RecoverReceiptSigner(r, sig, 1)
	if err == nil && got == s.Address() {
		t.Error("tampered receipt still verifies")
	}

	// A different chain id changes the domain.
	r.Payout--
	got, err = RecoverReceiptSigner(r, sig, 137)
	if err == nil && got == s.Address() {
		t.Error("receipt verifies under wrong chain id")
	}
}

func TestNewSignerRejectsBadKey(t *testing.T) {
	if _, err := NewSigner("not-hex", 1); err == nil {
		t.Error("invalid key accepted")
	}
}
