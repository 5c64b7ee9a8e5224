package engine

import (
	"fmt"
	"math/big"
	"time"

	"github.com/alanyoungcy/bondledger/internal/domain"
)

// BasisPointDenom converts basis points to a fraction: 1 BP = 1/10000.
const BasisPointDenom = 10_000

// secondsPerYear is the fixed year used to pro-rate annualized coupon rates
// over a bond's term. 365 days, no leap handling.
const secondsPerYear = 365 * 24 * 3600

// All money amounts are int64 in the smallest native denomination. Products
// are computed in big.Int and division truncates toward zero, aggregate
// first (units*faceValue*rate before dividing). This is the only truncation
// rule in the engine; every pricing path below goes through it.

// PurchaseCost returns the exact payment required to buy units. FaceValue is
// per unit, so the cost is simply units*FaceValue.
func PurchaseCost(b domain.Bond, units int64) (int64, error) {
	cost := new(big.Int).Mul(big.NewInt(units), big.NewInt(b.FaceValue))
	return toInt64(cost)
}

// CouponAmount returns the coupon earned by units held to maturity: the
// annualized coupon rate applied to the principal, pro-rated over the bond's
// full term.
//
//	coupon = units * faceValue * couponRateBP * durationSec / (10000 * secondsPerYear)
func CouponAmount(b domain.Bond, units int64) (int64, error) {
	num := new(big.Int).Mul(big.NewInt(units), big.NewInt(b.FaceValue))
	num.Mul(num, big.NewInt(b.CouponRateBP))
	num.Mul(num, big.NewInt(int64(b.Duration/time.Second)))

	den := new(big.Int).Mul(big.NewInt(BasisPointDenom), big.NewInt(secondsPerYear))
	return toInt64(num.Quo(num, den))
}

// RedemptionPayout returns principal plus coupon for units redeemed at or
// after maturity.
func RedemptionPayout(b domain.Bond, units int64) (int64, error) {
	principal, err := PurchaseCost(b, units)
	if err != nil {
		return 0, err
	}
	coupon, err := CouponAmount(b, units)
	if err != nil {
		return 0, err
	}
	payout := new(big.Int).Add(big.NewInt(principal), big.NewInt(coupon))
	return toInt64(payout)
}

func toInt64(v *big.Int) (int64, error) {
	if !v.IsInt64() {
		return 0, fmt.Errorf("engine: %s: %w", v.String(), domain.ErrAmountOverflow)
	}
	return v.Int64(), nil
}
