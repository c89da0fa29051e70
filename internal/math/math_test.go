package math_test

import (
	"errors"
	"testing"

	"GoldLedger/internal/errs"
	"GoldLedger/internal/math"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Checked arithmetic
// ============================================================================

func TestCheckedArithmetic_Overflow(t *testing.T) {
	_, err := math.Add(math.Max(), uint256.NewInt(1))
	require.ErrorIs(t, err, errs.ErrArithmetic)

	_, err = math.Sub(uint256.NewInt(1), uint256.NewInt(2))
	require.ErrorIs(t, err, errs.ErrArithmetic)

	_, err = math.Mul(math.Max(), uint256.NewInt(2))
	require.ErrorIs(t, err, errs.ErrArithmetic)

	sum, err := math.Add(uint256.NewInt(2), uint256.NewInt(3))
	require.NoError(t, err)
	assert.Equal(t, uint64(5), sum.Uint64())
}

func TestDiv_ByZero(t *testing.T) {
	_, err := math.Div(uint256.NewInt(10), math.Zero())
	require.ErrorIs(t, err, errs.ErrDivisionByZero)
	// DivisionByZero is also an ArithmeticError.
	require.ErrorIs(t, err, errs.ErrArithmetic)
	assert.False(t, errors.Is(err, errs.ErrValidation))
}

func TestMulDiv_Rounding(t *testing.T) {
	down, err := math.MulDiv(uint256.NewInt(10), uint256.NewInt(1), uint256.NewInt(3), math.RoundDown)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), down.Uint64())

	up, err := math.MulDiv(uint256.NewInt(10), uint256.NewInt(1), uint256.NewInt(3), math.RoundUp)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), up.Uint64())

	exact, err := math.MulDiv(uint256.NewInt(9), uint256.NewInt(1), uint256.NewInt(3), math.RoundUp)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), exact.Uint64())
}

func TestParseAndFormatUnits(t *testing.T) {
	v, err := math.ParseUnits("2000.5")
	require.NoError(t, err)
	assert.Equal(t, "2000500000000000000000", v.Dec())
	assert.Equal(t, "2000.5", math.FormatUnits(v))

	_, err = math.ParseUnits("-1")
	require.ErrorIs(t, err, errs.ErrValidation)

	_, err = math.ParseUnits("0.0000000000000000001")
	require.ErrorIs(t, err, errs.ErrValidation)

	_, err = math.ParseUnits("abc")
	require.ErrorIs(t, err, errs.ErrValidation)
}

// ============================================================================
// LTV / health factor
// ============================================================================

func TestLTV(t *testing.T) {
	ltv, err := math.LTV(math.Units(7000), math.Units(9000))
	require.NoError(t, err)
	assert.Equal(t, uint64(7777), ltv.Uint64())

	ltv, err = math.LTV(math.Units(1), math.Zero())
	require.NoError(t, err)
	assert.True(t, math.IsMax(ltv), "debt against zero value is unbounded")

	ltv, err = math.LTV(math.Zero(), math.Zero())
	require.NoError(t, err)
	assert.True(t, ltv.IsZero())
}

func TestHealthFactor(t *testing.T) {
	hf, err := math.HealthFactor(math.Zero(), 8500)
	require.NoError(t, err)
	assert.True(t, math.IsMax(hf))

	hf, err = math.HealthFactor(uint256.NewInt(8500), 8500)
	require.NoError(t, err)
	assert.Equal(t, uint64(10_000), hf.Uint64())

	hf, err = math.HealthFactor(uint256.NewInt(9000), 8500)
	require.NoError(t, err)
	assert.Less(t, hf.Uint64(), uint64(10_000), "above the threshold means health below 1.0")
}

// ============================================================================
// Interest
// ============================================================================

func TestInterest_OneYearAtTenPercent(t *testing.T) {
	rate, err := math.RatePerSecond(1000)
	require.NoError(t, err)

	interest, err := math.Interest(math.Units(7000), rate, math.SecondsPerYear)
	require.NoError(t, err)

	assert.True(t, interest.Lt(math.Units(700)) || interest.Eq(math.Units(700)))
	assert.True(t, interest.Gt(math.Units(699)), "got %s", math.FormatUnits(interest))
}

func TestInterest_ZeroElapsed(t *testing.T) {
	rate, err := math.RatePerSecond(1000)
	require.NoError(t, err)
	interest, err := math.Interest(math.Units(7000), rate, 0)
	require.NoError(t, err)
	assert.True(t, interest.IsZero())
}

func TestInterest_Overflow(t *testing.T) {
	_, err := math.Interest(math.Max(), uint256.NewInt(2), 1)
	require.ErrorIs(t, err, errs.ErrArithmetic)
}

// ============================================================================
// Auction price
// ============================================================================

func TestAuctionPrice_LinearDecay(t *testing.T) {
	decay := new(uint256.Int).Div(math.Scale, uint256.NewInt(86_400))
	start := math.Units(1000)

	half, err := math.AuctionPrice(start, decay, 43_200, 86_400)
	require.NoError(t, err)
	assert.Equal(t, "500", math.ToDecimal(half).Round(6).String())

	prev := start
	for _, elapsed := range []uint64{0, 1, 600, 43_200, 80_000, 86_399} {
		p, err := math.AuctionPrice(start, decay, elapsed, 86_400)
		require.NoError(t, err)
		assert.False(t, p.Gt(prev), "price must not increase at elapsed=%d", elapsed)
		prev = p
	}
}

func TestAuctionPrice_ZeroAtOrAfterDuration(t *testing.T) {
	decay := uint256.NewInt(1)
	for _, elapsed := range []uint64{86_400, 100_000} {
		p, err := math.AuctionPrice(math.Units(1000), decay, elapsed, 86_400)
		require.NoError(t, err)
		assert.True(t, p.IsZero())
	}
}

func TestAuctionPrice_FlooredAtZero(t *testing.T) {
	// Decays to zero after half a day but the window is a full day.
	decay := new(uint256.Int).Div(math.Scale, uint256.NewInt(43_200))
	p, err := math.AuctionPrice(math.Units(1000), decay, 60_000, 86_400)
	require.NoError(t, err)
	assert.True(t, p.IsZero())
}

// ============================================================================
// Deviation
// ============================================================================

func TestDeviationBps(t *testing.T) {
	d, err := math.DeviationBps(math.Units(2000), math.Units(2100))
	require.NoError(t, err)
	assert.Equal(t, uint64(500), d.Uint64())

	d, err = math.DeviationBps(math.Units(2000), math.Units(1900))
	require.NoError(t, err)
	assert.Equal(t, uint64(500), d.Uint64())

	d, err = math.DeviationBps(math.Zero(), math.Units(1))
	require.NoError(t, err)
	assert.True(t, math.IsMax(d))

	d, err = math.DeviationBps(math.Units(1), math.Zero())
	require.NoError(t, err)
	assert.True(t, math.IsMax(d))
}
