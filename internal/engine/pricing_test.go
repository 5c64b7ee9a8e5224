package engine

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/alanyoungcy/bondledger/internal/domain"
)

func TestPurchaseCost(t *testing.T) {
	cases := []struct {
		name  string
		face  int64
		units int64
		want  int64
	}{
		{"single unit", 1000, 1, 1000},
		{"many units", 1000, 100, 100_000},
		{"face of one", 1, 7, 7},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := PurchaseCost(domain.Bond{FaceValue: tc.face}, tc.units)
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.want {
				t.Errorf("cost = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestPurchaseCostOverflow(t *testing.T) {
	_, err := PurchaseCost(domain.Bond{FaceValue: math.MaxInt64}, 2)
	if !errors.Is(err, domain.ErrAmountOverflow) {
		t.Errorf("error = %v, want ErrAmountOverflow", err)
	}
}

func TestCouponAmount(t *testing.T) {
	year := 365 * 24 * time.Hour
	cases := []struct {
		name     string
		face     int64
		couponBP int64
		duration time.Duration
		units    int64
		want     int64
	}{
		// Full-year term: coupon is exactly rate * principal.
		{"full year 5 percent", 1000, 500, year, 10, 500},
		{"full year 1 bp", 10_000, 1, year, 1, 1},
		// Half-year term halves the annualized coupon.
		{"half year", 1000, 500, year / 2, 10, 250},
		// Tiny principal truncates to zero rather than rounding up.
		{"truncates to zero", 1, 1, year, 1, 0},
		// 1000 * 333 * (1/3 year) / 10000 = 11.1 truncated.
		{"truncates down", 1000, 333, year / 3, 1, 11},
		{"zero coupon", 1000, 0, year, 100, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bond := domain.Bond{
				FaceValue:    tc.face,
				CouponRateBP: tc.couponBP,
				Duration:     tc.duration,
			}
			got, err := CouponAmount(bond, tc.units)
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.want {
				t.Errorf("coupon = %d, want %d", got, tc.want)
			}
		})
	}
}

// Truncation happens once, on the aggregate. Redeeming in pieces can pay
// less than one big redemption, never more.
func TestCouponAggregateFirst(t *testing.T) {
	bond := domain.Bond{
		FaceValue:    7,
		CouponRateBP: 3,
		Duration:     365 * 24 * time.Hour,
	}
	whole, err := CouponAmount(bond, 1000)
	if err != nil {
		t.Fatal(err)
	}
	var pieces int64
	for i := 0; i < 10; i++ {
		c, err := CouponAmount(bond, 100)
		if err != nil {
			t.Fatal(err)
		}
		pieces += c
	}
	if pieces > whole {
		t.Errorf("piecewise coupons %d exceed aggregate %d", pieces, whole)
	}
}

func TestRedemptionPayout(t *testing.T) {
	bond := domain.Bond{
		FaceValue:    1000,
		CouponRateBP: 500,
		Duration:     365 * 24 * time.Hour,
	}
	got, err := RedemptionPayout(bond, 10)
	if err != nil {
		t.Fatal(err)
	}
	if want := int64(10_000 + 500); got != want {
		t.Errorf("payout = %d, want %d", got, want)
	}
}
