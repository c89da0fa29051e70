package projection_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"GoldLedger/internal/core"
	"GoldLedger/internal/event"
	"GoldLedger/internal/persistence"
	"GoldLedger/internal/projection"
	"GoldLedger/internal/testutil"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sliceSource struct {
	rows []persistence.EventRow
}

func (s *sliceSource) LoadEventsFrom(_ context.Context, from int64, limit int) ([]persistence.EventRow, error) {
	var out []persistence.EventRow
	for _, r := range s.rows {
		if r.Sequence >= from && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func envelope(t *testing.T, seq int64, evt event.Event) *event.EventEnvelope {
	t.Helper()
	payload, err := event.Encode(evt)
	require.NoError(t, err)
	return &event.EventEnvelope{Sequence: seq, EventType: evt.EventType(), Payload: payload, Event: evt}
}

func row(env *event.EventEnvelope) persistence.EventRow {
	return persistence.EventRow{Sequence: env.Sequence, EventType: env.EventType.String(), Payload: env.Payload}
}

func loanLifecycle(t *testing.T, borrower uuid.UUID) []*event.EventEnvelope {
	return []*event.EventEnvelope{
		envelope(t, 1, &event.LoanOpened{LoanID: 7, Borrower: borrower, Principal: uint256.NewInt(1000), CreatedAt: 1_700_000_000}),
		envelope(t, 2, &event.LoanRepaid{LoanID: 7, Borrower: borrower, InterestPaid: uint256.NewInt(3),
			PrincipalPaid: uint256.NewInt(400), RemainingPrincipal: uint256.NewInt(600), RemainingInterest: new(uint256.Int)}),
		envelope(t, 3, &event.FundDeposited{Asset: "OZT", Amount: uint256.NewInt(50), Balance: uint256.NewInt(50)}),
		envelope(t, 4, &event.ClaimPaid{Asset: "OZT", Amount: uint256.NewInt(20), Balance: uint256.NewInt(30), TotalClaimsPaid: uint256.NewInt(20)}),
		envelope(t, 5, &event.PriceAccepted{Feed: "PAXG", Price: uint256.NewInt(2500), UpdatedAt: time.Unix(1_700_000_100, 0)}),
		envelope(t, 6, &event.PriceRejected{Feed: "PAXG", Reason: "stale"}),
	}
}

func scanLoan(t *testing.T, db *sql.DB, id int64) (principal, interest, state string) {
	t.Helper()
	require.NoError(t, db.QueryRow(
		`SELECT principal::text, interest_paid::text, state FROM projections.loans WHERE loan_id = $1`, id,
	).Scan(&principal, &interest, &state))
	return
}

func TestApplyEnvelopes_FoldsEvents(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	pw := projection.NewProjectionWorker(db, nil, &sliceSource{}, zerolog.Nop(), nil)
	envs := loanLifecycle(t, uuid.New())
	require.NoError(t, pw.ApplyEnvelopes(ctx, envs))
	assert.Equal(t, int64(6), pw.LastSequence())

	principal, interest, state := scanLoan(t, db, 7)
	assert.Equal(t, "600", principal)
	assert.Equal(t, "3", interest)
	assert.Equal(t, "Open", state)

	var balance, claims string
	require.NoError(t, db.QueryRow(
		`SELECT balance::text, total_claims::text FROM projections.fund WHERE asset = 'OZT'`,
	).Scan(&balance, &claims))
	assert.Equal(t, "30", balance)
	assert.Equal(t, "20", claims)

	var price, outcome string
	require.NoError(t, db.QueryRow(
		`SELECT price::text, last_outcome FROM projections.prices WHERE feed = 'PAXG'`,
	).Scan(&price, &outcome))
	assert.Equal(t, "2500", price, "rejection keeps the cached price")
	assert.Equal(t, "rejected", outcome)

	// Replaying below the watermark is a no-op.
	require.NoError(t, pw.ApplyEnvelopes(ctx, envs[1:2]))
	_, interest, _ = scanLoan(t, db, 7)
	assert.Equal(t, "3", interest)
}

func TestAuctionLifecycle(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	bidder := uuid.New()
	pw := projection.NewProjectionWorker(db, nil, &sliceSource{}, zerolog.Nop(), nil)
	require.NoError(t, pw.ApplyEnvelopes(ctx, []*event.EventEnvelope{
		envelope(t, 1, &event.AuctionStarted{AuctionID: 1, LoanID: 7, Asset: "PAXG", Amount: uint256.NewInt(2),
			DebtShare: uint256.NewInt(900), StartingPrice: uint256.NewInt(3000), StartTime: 1_700_000_000}),
		envelope(t, 2, &event.AuctionBid{AuctionID: 1, Bidder: bidder, Amount: uint256.NewInt(950)}),
	}))

	var bid, state string
	var who uuid.UUID
	require.NoError(t, db.QueryRow(
		`SELECT highest_bid::text, highest_bidder, state FROM projections.auctions WHERE auction_id = 1`,
	).Scan(&bid, &who, &state))
	assert.Equal(t, "950", bid)
	assert.Equal(t, bidder, who)
	assert.Equal(t, "ActiveBidded", state)

	require.NoError(t, pw.ApplyEnvelopes(ctx, []*event.EventEnvelope{
		envelope(t, 3, &event.AuctionSettled{AuctionID: 1, LoanID: 7, Winner: bidder, Asset: "PAXG",
			Amount: uint256.NewInt(2), Proceeds: uint256.NewInt(950)}),
	}))
	require.NoError(t, db.QueryRow(`SELECT state FROM projections.auctions WHERE auction_id = 1`).Scan(&state))
	assert.Equal(t, "Settled", state)
}

func TestCatchUpAndRebuild(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	src := &sliceSource{}
	for _, env := range loanLifecycle(t, uuid.New()) {
		src.rows = append(src.rows, row(env))
	}

	pw := projection.NewProjectionWorker(db, nil, src, zerolog.Nop(), nil)
	require.NoError(t, pw.CatchUp(ctx))
	assert.Equal(t, int64(6), pw.LastSequence())

	_, err := db.Exec(`UPDATE projections.loans SET principal = 1`)
	require.NoError(t, err)

	require.NoError(t, pw.Rebuild(ctx))
	principal, _, _ := scanLoan(t, db, 7)
	assert.Equal(t, "600", principal)
}

func TestRun_SkipsGapUntilLogCatchesUp(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	envs := loanLifecycle(t, uuid.New())
	src := &sliceSource{rows: []persistence.EventRow{row(envs[0])}}
	in := make(chan core.CoreOutput, 2)
	// Sequence 2 was dropped and is not yet in the log.
	in <- core.CoreOutput{Envelopes: envs[2:3]}
	close(in)

	pw := projection.NewProjectionWorker(db, in, src, zerolog.Nop(), nil)
	require.NoError(t, pw.Run(context.Background()))
	assert.Equal(t, int64(1), pw.LastSequence())

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM projections.fund`).Scan(&n))
	assert.Zero(t, n)
}
