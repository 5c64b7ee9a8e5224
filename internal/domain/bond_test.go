package domain

import (
	"testing"
	"time"
)

func TestCanTransitionForwardOnly(t *testing.T) {
	cases := []struct {
		from, to BondStatus
		want     bool
	}{
		{BondDraft, BondSubmitted, true},
		{BondSubmitted, BondInReview, true},
		{BondInReview, BondApproved, true},
		{BondApproved, BondIssued, true},
		{BondIssued, BondMatured, true},
		{BondMatured, BondSettled, true},

		// Pre-approval states may jump straight to approved.
		{BondDraft, BondApproved, true},
		{BondSubmitted, BondApproved, true},

		// No regression.
		{BondApproved, BondDraft, false},
		{BondIssued, BondApproved, false},
		{BondMatured, BondIssued, false},

		// No skipping past approval.
		{BondDraft, BondIssued, false},
		{BondApproved, BondMatured, false},
		{BondIssued, BondSettled, false},

		// Terminal state.
		{BondSettled, BondMatured, false},
		{BondSettled, BondSettled, false},

		// Unknown states.
		{BondStatus("bogus"), BondApproved, false},
		{BondDraft, BondStatus("bogus"), false},
	}

	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.want {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestStatusPreApproval(t *testing.T) {
	for _, s := range []BondStatus{BondDraft, BondSubmitted, BondInReview} {
		if !s.PreApproval() {
			t.Errorf("%s.PreApproval() = false, want true", s)
		}
	}
	for _, s := range []BondStatus{BondApproved, BondIssued, BondMatured, BondSettled} {
		if s.PreApproval() {
			t.Errorf("%s.PreApproval() = true, want false", s)
		}
	}
}

func TestBondMatured(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	var b Bond
	if b.Matured(now) {
		t.Error("unissued bond (zero MaturityAt) reported matured")
	}

	b.MaturityAt = now.Add(time.Hour)
	if b.Matured(now) {
		t.Error("bond matured before its maturity time")
	}

	b.MaturityAt = now
	if !b.Matured(now) {
		t.Error("bond not matured exactly at maturity time")
	}
}
