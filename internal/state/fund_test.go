package state_test

import (
	"math/rand"
	"testing"

	"GoldLedger/internal/errs"
	"GoldLedger/internal/math"
	"GoldLedger/internal/state"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFund(t *testing.T, depositUnits uint64) *state.InsuranceFund {
	t.Helper()
	f, err := state.NewInsuranceFund(state.DefaultFundParams())
	require.NoError(t, err)
	if depositUnits > 0 {
		_, err = f.Deposit("OZT", units(depositUnits))
		require.NoError(t, err)
	}
	return f
}

func coverageHolds(b state.FundBalance) bool {
	lhs := new(uint256.Int).Mul(b.Balance, uint256.NewInt(math.BasisPoints))
	rhs := new(uint256.Int).Add(b.TotalClaimsPaid, uint256.NewInt(1))
	rhs.Mul(rhs, uint256.NewInt(state.DefaultMinCoverageBps))
	return !lhs.Lt(rhs)
}

func TestFund_CollectFee(t *testing.T) {
	f := newFund(t, 0)

	fee, _, err := f.CollectFee("OZT", units(1000))
	require.NoError(t, err)
	assert.True(t, fee.Eq(units(20)))

	b := f.Balance("OZT")
	assert.True(t, b.Balance.Eq(units(20)))
	assert.True(t, b.TotalFeesCollected.Eq(units(20)))

	_, _, err = f.CollectFee("OZT", math.Zero())
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestFund_ClaimableIsTheLargestPayableClaim(t *testing.T) {
	f := newFund(t, 1500)

	claimable, err := f.Claimable("OZT")
	require.NoError(t, err)
	assert.True(t, claimable.Lt(units(600)))
	assert.True(t, claimable.Gt(units(599)))

	over := new(uint256.Int).AddUint64(claimable, 1)
	_, err = f.PayClaim("OZT", over)
	require.ErrorIs(t, err, errs.ErrCoverage)
	assert.True(t, f.Balance("OZT").Balance.Eq(units(1500)), "rejected claim changes nothing")

	_, err = f.PayClaim("OZT", claimable)
	require.NoError(t, err)
	b := f.Balance("OZT")
	assert.True(t, b.TotalClaimsPaid.Eq(claimable))
	assert.True(t, coverageHolds(b))

	ok, err := f.CoverageSufficient("OZT")
	require.NoError(t, err)
	assert.True(t, ok)
}

// Withdrawals are scored against the claims already paid, claims against the
// total including themselves.
func TestFund_WithdrawAndClaimAsymmetry(t *testing.T) {
	f := newFund(t, 1500)
	_, err := f.PayClaim("OZT", units(100))
	require.NoError(t, err)

	// (1400 − 1000) × 10000 / 100 = 40000 bps.
	_, err = f.Withdraw("OZT", units(1000))
	require.NoError(t, err)

	// (400 − 300) × 10000 / 100 < 15000.
	_, err = f.Withdraw("OZT", units(300))
	require.ErrorIs(t, err, errs.ErrCoverage)

	// (400 − 100) × 10000 / 200 = 15000 minus the +1.
	_, err = f.PayClaim("OZT", units(100))
	require.ErrorIs(t, err, errs.ErrCoverage)

	_, err = f.Withdraw("OZT", units(401))
	assert.ErrorIs(t, err, errs.ErrCoverage)
}

func TestFund_UndoRestoresBalance(t *testing.T) {
	f := newFund(t, 1500)
	undo, err := f.PayClaim("OZT", units(10))
	require.NoError(t, err)
	undo()
	b := f.Balance("OZT")
	assert.True(t, b.Balance.Eq(units(1500)))
	assert.True(t, b.TotalClaimsPaid.IsZero())

	undo, err = f.Deposit("XAUT", units(1))
	require.NoError(t, err)
	undo()
	assert.Equal(t, []string{"OZT"}, f.Assets())

	fee, undo, err := f.CollectFee("PAXG", units(100))
	require.NoError(t, err)
	require.False(t, fee.IsZero())
	undo()
	assert.Equal(t, []string{"OZT"}, f.Assets(), "undo drops an asset the fund never held")
}

func TestFund_CoverageInvariantUnderRandomOperations(t *testing.T) {
	f := newFund(t, 100)
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 500; i++ {
		amount := units(uint64(rng.Intn(200) + 1))
		var err error
		switch rng.Intn(4) {
		case 0:
			_, err = f.Deposit("OZT", amount)
		case 1:
			_, _, err = f.CollectFee("OZT", amount)
		case 2:
			_, err = f.PayClaim("OZT", amount)
		case 3:
			_, err = f.Withdraw("OZT", amount)
		}
		if err != nil {
			require.ErrorIs(t, err, errs.ErrCoverage)
		}
		require.True(t, coverageHolds(f.Balance("OZT")), "coverage broken at step %d", i)
	}
}

func TestFundSnapshotRestore(t *testing.T) {
	f := newFund(t, 1500)
	_, _, err := f.CollectFee("OZT", units(50))
	require.NoError(t, err)

	restored := newFund(t, 0)
	require.NoError(t, restored.Restore(f.Snapshot()))
	assert.Equal(t, f.Snapshot(), restored.Snapshot())
}
