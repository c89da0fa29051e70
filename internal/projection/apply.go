package projection

import (
	"context"
	"time"

	"GoldLedger/internal/event"
	"GoldLedger/internal/persistence"
	"GoldLedger/internal/state"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

func dec(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func nullableUUID(id uuid.UUID) interface{} {
	if id == uuid.Nil {
		return nil
	}
	return id
}

// apply folds one event into the projection tables. Events that no
// projection tracks are ignored.
func apply(ctx context.Context, x persistence.Execer, seq int64, evt event.Event) error {
	var err error
	switch e := evt.(type) {
	case *event.LoanOpened:
		_, err = x.ExecContext(ctx, `
			INSERT INTO projections.loans (loan_id, borrower, principal, state, opened_at, last_sequence, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, NOW())
			ON CONFLICT (loan_id) DO NOTHING
		`, int64(e.LoanID), e.Borrower, dec(e.Principal), state.LoanStateOpen.String(), time.Unix(e.CreatedAt, 0).UTC(), seq)

	case *event.LoanRepaid:
		loanState := state.LoanStateOpen
		if e.Closed {
			loanState = state.LoanStateRepaid
		}
		_, err = x.ExecContext(ctx, `
			UPDATE projections.loans
			SET principal = $2, interest_paid = interest_paid + $3::numeric, state = $4, last_sequence = $5, updated_at = NOW()
			WHERE loan_id = $1 AND last_sequence < $5
		`, int64(e.LoanID), dec(e.RemainingPrincipal), dec(e.InterestPaid), loanState.String(), seq)

	case *event.LiquidationStarted:
		_, err = x.ExecContext(ctx, `
			UPDATE projections.loans
			SET state = $2, last_sequence = $3, updated_at = NOW()
			WHERE loan_id = $1 AND last_sequence < $3
		`, int64(e.LoanID), state.LoanStateLiquidated.String(), seq)

	case *event.AuctionStarted:
		_, err = x.ExecContext(ctx, `
			INSERT INTO projections.auctions
				(auction_id, loan_id, asset, lot, debt, start_price, state, started_at, last_sequence, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
			ON CONFLICT (auction_id) DO NOTHING
		`, int64(e.AuctionID), int64(e.LoanID), e.Asset, dec(e.Amount), dec(e.DebtShare), dec(e.StartingPrice),
			state.AuctionStateActiveNoBids.String(), time.Unix(e.StartTime, 0).UTC(), seq)

	case *event.AuctionBid:
		_, err = x.ExecContext(ctx, `
			UPDATE projections.auctions
			SET highest_bid = $2, highest_bidder = $3, state = $4, last_sequence = $5, updated_at = NOW()
			WHERE auction_id = $1 AND last_sequence < $5
		`, int64(e.AuctionID), dec(e.Amount), e.Bidder, state.AuctionStateActiveBidded.String(), seq)

	case *event.AuctionSettled:
		_, err = x.ExecContext(ctx, `
			UPDATE projections.auctions
			SET highest_bid = $2, highest_bidder = $3, state = $4, last_sequence = $5, updated_at = NOW()
			WHERE auction_id = $1 AND last_sequence < $5
		`, int64(e.AuctionID), dec(e.Proceeds), nullableUUID(e.Winner), state.AuctionStateSettled.String(), seq)

	case *event.AuctionCancelled:
		_, err = x.ExecContext(ctx, `
			UPDATE projections.auctions
			SET state = $2, last_sequence = $3, updated_at = NOW()
			WHERE auction_id = $1 AND last_sequence < $3
		`, int64(e.AuctionID), state.AuctionStateCancelled.String(), seq)

	case *event.FundDeposited:
		err = upsertFund(ctx, x, e.Asset, e.Balance, nil, seq)
	case *event.FundWithdrawn:
		err = upsertFund(ctx, x, e.Asset, e.Balance, nil, seq)
	case *event.FeeCollected:
		err = upsertFund(ctx, x, e.Asset, e.Balance, nil, seq)
	case *event.ClaimPaid:
		err = upsertFund(ctx, x, e.Asset, e.Balance, e.TotalClaimsPaid, seq)

	case *event.PriceAccepted:
		_, err = x.ExecContext(ctx, `
			INSERT INTO projections.prices (feed, price, updated_at, last_outcome, last_reason, last_sequence)
			VALUES ($1, $2, $3, 'accepted', NULL, $4)
			ON CONFLICT (feed) DO UPDATE
			SET price = $2, updated_at = $3, last_outcome = 'accepted', last_reason = NULL, last_sequence = $4
			WHERE projections.prices.last_sequence < $4
		`, e.Feed, dec(e.Price), e.UpdatedAt.UTC(), seq)

	case *event.PriceRejected:
		// The cached price survives a rejection.
		_, err = x.ExecContext(ctx, `
			INSERT INTO projections.prices (feed, last_outcome, last_reason, last_sequence)
			VALUES ($1, 'rejected', $2, $3)
			ON CONFLICT (feed) DO UPDATE
			SET last_outcome = 'rejected', last_reason = $2, last_sequence = $3
			WHERE projections.prices.last_sequence < $3
		`, e.Feed, e.Reason, seq)

	case *event.FeedRemoved:
		_, err = x.ExecContext(ctx, `DELETE FROM projections.prices WHERE feed = $1`, e.Feed)

	default:
		return nil
	}
	return errors.Wrapf(err, "project %s at %d", evt.EventType(), seq)
}

// upsertFund records the balance after a fund event. claims is nil when the
// event does not change total claims.
func upsertFund(ctx context.Context, x persistence.Execer, asset string, balance, claims *uint256.Int, seq int64) error {
	var claimsArg interface{}
	if claims != nil {
		claimsArg = claims.Dec()
	}
	_, err := x.ExecContext(ctx, `
		INSERT INTO projections.fund (asset, balance, total_claims, last_sequence, updated_at)
		VALUES ($1, $2, COALESCE($3::numeric, 0), $4, NOW())
		ON CONFLICT (asset) DO UPDATE
		SET balance = $2,
		    total_claims = COALESCE($3::numeric, projections.fund.total_claims),
		    last_sequence = $4,
		    updated_at = NOW()
		WHERE projections.fund.last_sequence < $4
	`, asset, dec(balance), claimsArg, seq)
	return err
}
