package math

import (
	"github.com/holiman/uint256"
)

// SecondsPerYear is used to convert annual rates into per-second rates.
const SecondsPerYear = 31_536_000

// LTV returns debt / collateralValue in basis points. Debt against zero
// value is reported as Max.
func LTV(debt, collateralValue *uint256.Int) (*uint256.Int, error) {
	if collateralValue.IsZero() {
		if debt.IsZero() {
			return Zero(), nil
		}
		return Max(), nil
	}
	return MulDiv(debt, bps, collateralValue, RoundDown)
}

// HealthFactor returns liquidationThresholdBps × 10000 / ltv. A position with
// no debt has Max health. Values below 10000 are liquidatable.
func HealthFactor(ltv *uint256.Int, liquidationThresholdBps uint64) (*uint256.Int, error) {
	if ltv.IsZero() {
		return Max(), nil
	}
	return MulDiv(uint256.NewInt(liquidationThresholdBps), bps, ltv, RoundDown)
}

// Interest returns principal × ratePerSecond × elapsedSeconds / Scale.
// This is simple interest; it understates compounding over long intervals.
func Interest(principal, ratePerSecond *uint256.Int, elapsedSeconds uint64) (*uint256.Int, error) {
	if elapsedSeconds == 0 || principal.IsZero() || ratePerSecond.IsZero() {
		return Zero(), nil
	}
	perSecond, err := Mul(principal, ratePerSecond)
	if err != nil {
		return nil, err
	}
	return MulDiv(perSecond, uint256.NewInt(elapsedSeconds), Scale, RoundDown)
}

// AuctionPrice is the linearly decayed price of a Dutch auction, floored at
// zero, and zero once elapsed reaches duration.
func AuctionPrice(startingPrice, decayRatePerSecond *uint256.Int, elapsed, duration uint64) (*uint256.Int, error) {
	if elapsed >= duration {
		return Zero(), nil
	}
	decayFactor, err := Mul(decayRatePerSecond, uint256.NewInt(elapsed))
	if err != nil {
		return nil, err
	}
	decay, err := MulDiv(startingPrice, decayFactor, Scale, RoundDown)
	if err != nil {
		return nil, err
	}
	if !decay.Lt(startingPrice) {
		return Zero(), nil
	}
	return Sub(startingPrice, decay)
}

// DeviationBps returns |old - new| / old in basis points. A zero on either
// side yields Max so the update is always rejected.
func DeviationBps(oldValue, newValue *uint256.Int) (*uint256.Int, error) {
	if oldValue.IsZero() || newValue.IsZero() {
		return Max(), nil
	}
	var diff *uint256.Int
	if oldValue.Gt(newValue) {
		diff = new(uint256.Int).Sub(oldValue, newValue)
	} else {
		diff = new(uint256.Int).Sub(newValue, oldValue)
	}
	return MulDiv(diff, bps, oldValue, RoundDown)
}

// RatePerSecond converts an annual simple rate in basis points into a Scale-d
// per-second rate.
func RatePerSecond(annualBps uint64) (*uint256.Int, error) {
	annual, err := MulDiv(Scale, uint256.NewInt(annualBps), bps, RoundDown)
	if err != nil {
		return nil, err
	}
	return Div(annual, uint256.NewInt(SecondsPerYear))
}
