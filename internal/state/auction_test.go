package state_test

import (
	"testing"

	"GoldLedger/internal/errs"
	"GoldLedger/internal/math"
	"GoldLedger/internal/state"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startAuction liquidates a position whose seized PAXG appraises at 1000 ozt:
// 1250 PAXG borrowed to 900 at 2000, then repriced to 1600.
func startAuction(t *testing.T) (*fixture, *state.AuctionEngine, *state.Auction) {
	t.Helper()
	f := newFixture(t)
	user := uuid.New()
	f.deposit(t, user, 1250)
	loan := f.borrow(t, user, 900)
	f.setPAXG(t, 1600)

	seizure, _, err := f.pl.Liquidate(loan.ID, f.now)
	require.NoError(t, err)

	ae, err := state.NewAuctionEngine(state.DefaultAuctionParams())
	require.NoError(t, err)
	started, _, err := ae.Start(seizure, f.now)
	require.NoError(t, err)
	require.Len(t, started, 1)
	require.True(t, started[0].StartingPrice.Eq(units(1000)))
	return f, ae, started[0]
}

func mustBid(t *testing.T, ae *state.AuctionEngine, id uint64, bidder uuid.UUID, amount *uint256.Int, now int64) *state.BidResult {
	t.Helper()
	res, _, err := ae.Bid(id, bidder, amount, now)
	require.NoError(t, err)
	return res
}

// ============================================================================
// Lifecycle
// ============================================================================

func TestAuctionScenario(t *testing.T) {
	f, ae, a := startAuction(t)
	half := f.now + 43_200

	price, err := ae.CurrentPrice(a.ID, half)
	require.NoError(t, err)
	assert.False(t, price.Lt(units(500)), "price = %s", math.FormatUnits(price))
	assert.True(t, price.Lt(units(501)), "price = %s", math.FormatUnits(price))

	alice, bob := uuid.New(), uuid.New()
	res := mustBid(t, ae, a.ID, alice, units(520), half)
	assert.Nil(t, res.Refund)
	assert.Equal(t, state.AuctionStateActiveBidded, res.Auction.State())

	price, err = ae.CurrentPrice(a.ID, half+1)
	require.NoError(t, err)
	assert.True(t, price.Eq(units(520)), "price jumps to the highest bid")

	// 520 × 1.01 = 525.2.
	_, _, err = ae.Bid(a.ID, bob, units(525), half+2)
	require.ErrorIs(t, err, errs.ErrValidation)

	res = mustBid(t, ae, a.ID, bob, units(526), half+3)
	require.NotNil(t, res.Refund)
	assert.Equal(t, alice, res.Refund.Bidder)
	assert.True(t, res.Refund.Amount.Eq(units(520)))
	assert.Equal(t, bob, res.Auction.HighestBidder)

	_, _, err = ae.Settle(a.ID, half+4)
	require.ErrorIs(t, err, errs.ErrState, "window still open")

	end := a.StartTime + a.Duration
	_, _, err = ae.Bid(a.ID, alice, units(600), end)
	require.ErrorIs(t, err, errs.ErrState, "window closed")

	settled, _, err := ae.Settle(a.ID, end)
	require.NoError(t, err)
	assert.Equal(t, state.AuctionStateSettled, settled.State())
	assert.Empty(t, ae.Active())

	_, _, _, err = ae.Cancel(a.ID)
	assert.ErrorIs(t, err, errs.ErrState, "settled is terminal")
	_, _, err = ae.Bid(a.ID, alice, units(600), half)
	assert.ErrorIs(t, err, errs.ErrState)
}

func TestAuctionPrice_NonIncreasingWithoutBids(t *testing.T) {
	f, ae, a := startAuction(t)

	prev := a.StartingPrice
	for elapsed := int64(0); elapsed <= a.Duration; elapsed += 3600 {
		p, err := ae.CurrentPrice(a.ID, f.now+elapsed)
		require.NoError(t, err)
		assert.False(t, p.Gt(prev), "price rose at %ds", elapsed)
		prev = p
	}
	p, err := ae.CurrentPrice(a.ID, f.now+a.Duration)
	require.NoError(t, err)
	assert.True(t, p.IsZero())
}

func TestAuction_ZeroBidExpiredStaysActive(t *testing.T) {
	f, ae, a := startAuction(t)
	late := f.now + 2*a.Duration

	_, _, err := ae.Settle(a.ID, late)
	require.ErrorIs(t, err, errs.ErrState)
	status, err := ae.Status(a.ID)
	require.NoError(t, err)
	assert.Equal(t, state.AuctionStateActiveNoBids, status)
	assert.Equal(t, []uint64{a.ID}, ae.Active())

	cancelled, refund, _, err := ae.Cancel(a.ID)
	require.NoError(t, err)
	assert.Nil(t, refund)
	assert.Equal(t, state.AuctionStateCancelled, cancelled.State())
	assert.Empty(t, ae.Active())
}

func TestAuction_CancelRefundsStandingBid(t *testing.T) {
	f, ae, a := startAuction(t)
	bidder := uuid.New()
	mustBid(t, ae, a.ID, bidder, units(1000), f.now)

	_, refund, _, err := ae.Cancel(a.ID)
	require.NoError(t, err)
	require.NotNil(t, refund)
	assert.Equal(t, bidder, refund.Bidder)
	assert.True(t, refund.Amount.Eq(units(1000)))

	_, _, err = ae.Settle(a.ID, f.now+a.Duration)
	assert.ErrorIs(t, err, errs.ErrState, "cancelled is terminal")
}

func TestAuction_BidRejections(t *testing.T) {
	f, ae, a := startAuction(t)

	_, _, err := ae.Bid(a.ID, uuid.New(), units(999), f.now)
	assert.ErrorIs(t, err, errs.ErrValidation, "below the decayed price")
	_, _, err = ae.Bid(a.ID, uuid.Nil, units(1000), f.now)
	assert.ErrorIs(t, err, errs.ErrValidation)
	_, _, err = ae.Bid(a.ID+7, uuid.New(), units(1000), f.now)
	assert.ErrorIs(t, err, errs.ErrValidation)
	_, _, err = ae.Bid(a.ID, uuid.New(), math.Zero(), f.now+a.Duration-1)
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestAuction_BidUndoRestoresPreviousBid(t *testing.T) {
	f, ae, a := startAuction(t)
	alice := uuid.New()
	mustBid(t, ae, a.ID, alice, units(1000), f.now)

	_, undo, err := ae.Bid(a.ID, uuid.New(), units(2000), f.now+1)
	require.NoError(t, err)
	undo()

	got, _ := ae.Auction(a.ID)
	assert.Equal(t, alice, got.HighestBidder)
	assert.True(t, got.HighestBid.Eq(units(1000)))
}

func TestAuctionStart_OnlyFromLiquidation(t *testing.T) {
	ae, err := state.NewAuctionEngine(state.DefaultAuctionParams())
	require.NoError(t, err)

	forged := &state.Seizure{LoanID: 1, Lots: []state.Lot{{Asset: "PAXG", Amount: units(1), AppraisedValue: units(1), DebtShare: units(1)}}}
	_, _, err = ae.Start(forged, 0)
	require.ErrorIs(t, err, errs.ErrUnauthorized)
	assert.Empty(t, ae.Active())
}

func TestAuctionStart_SeizureConsumedOnce(t *testing.T) {
	f := newFixture(t)
	user := uuid.New()
	f.deposit(t, user, 1250)
	loan := f.borrow(t, user, 900)
	f.setPAXG(t, 1600)
	seizure, _, err := f.pl.Liquidate(loan.ID, f.now)
	require.NoError(t, err)

	ae, err := state.NewAuctionEngine(state.DefaultAuctionParams())
	require.NoError(t, err)
	_, undo, err := ae.Start(seizure, f.now)
	require.NoError(t, err)

	_, _, err = ae.Start(seizure, f.now)
	require.ErrorIs(t, err, errs.ErrState)

	undo()
	assert.Empty(t, ae.Active())
	started, _, err := ae.Start(seizure, f.now)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), started[0].ID, "undo rewinds auction ids")
}

func TestAuctionSnapshotRestore(t *testing.T) {
	f, ae, a := startAuction(t)
	mustBid(t, ae, a.ID, uuid.New(), units(1000), f.now)

	restored, err := state.NewAuctionEngine(state.DefaultAuctionParams())
	require.NoError(t, err)
	require.NoError(t, restored.Restore(ae.Snapshot()))

	assert.Equal(t, ae.Snapshot(), restored.Snapshot())
	assert.Equal(t, []uint64{a.ID}, restored.Active())
}
