package query

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"GoldLedger/internal/core"
	"GoldLedger/internal/errs"
	"GoldLedger/internal/math"
	"GoldLedger/internal/projection"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// EngineReader runs read-only closures against the live engine, serialized
// with command processing.
type EngineReader interface {
	Query(ctx context.Context, fn func(*core.Engine)) error
	GetSequence() int64
}

// QueryService answers reads. Point lookups of loans, auctions, the fund and
// prices go to the live engine so they reflect interest and auction decay as
// of now; lists and history read the projection tables and the event log.
// Every response carries the sequence it is consistent with.
type QueryService struct {
	db     *sql.DB
	engine EngineReader
}

func NewQueryService(db *sql.DB, engine EngineReader) *QueryService {
	return &QueryService{db: db, engine: engine}
}

func (qs *QueryService) live(ctx context.Context, fn func(e *core.Engine, seq int64) error) error {
	var ferr error
	err := qs.engine.Query(ctx, func(e *core.Engine) {
		ferr = fn(e, qs.engine.GetSequence())
	})
	if err != nil {
		return err
	}
	return ferr
}

func units(x *uint256.Int) decimal.Decimal { return math.ToDecimal(x) }

func unitsPtr(x *uint256.Int) *decimal.Decimal {
	if x == nil {
		return nil
	}
	d := math.ToDecimal(x)
	return &d
}

func optionalUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

// GetLoan returns a loan with its debt, LTV and health as of now.
func (qs *QueryService) GetLoan(ctx context.Context, id uint64) (*LoanResponse, error) {
	var resp LoanResponse
	err := qs.live(ctx, func(e *core.Engine, seq int64) error {
		v, err := e.Loan(id)
		if err != nil {
			return err
		}
		resp = LoanResponse{
			LoanID:          v.Loan.ID,
			Borrower:        v.Loan.Borrower,
			State:           v.State.String(),
			Principal:       units(v.Loan.Principal),
			InterestAccrued: units(v.Loan.InterestAccrued),
			CreatedAt:       time.Unix(v.Loan.CreatedAt, 0).UTC(),
			AsOfSequence:    seq,
		}
		if v.Debt != nil {
			resp.Debt = unitsPtr(v.Debt)
			resp.LTVBps = v.LTVBps.Dec()
			resp.Health = unitsPtr(v.Health)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetPosition returns a borrower's collateral, debt and aggregate LTV.
func (qs *QueryService) GetPosition(ctx context.Context, user uuid.UUID) (*PositionResponse, error) {
	var resp PositionResponse
	err := qs.live(ctx, func(e *core.Engine, seq int64) error {
		p, err := e.Position(user)
		if err != nil {
			return err
		}
		collateral := make(map[string]decimal.Decimal, len(p.Collateral))
		for asset, amt := range p.Collateral {
			collateral[asset] = units(amt)
		}
		resp = PositionResponse{
			User:            user,
			Collateral:      collateral,
			CollateralValue: units(p.CollateralValue),
			Debt:            units(p.Debt),
			LTVBps:          p.LTVBps.Dec(),
			Loans:           p.Loans,
			AsOfSequence:    seq,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetAuction returns an auction with its current asking price.
func (qs *QueryService) GetAuction(ctx context.Context, id uint64) (*AuctionResponse, error) {
	var resp AuctionResponse
	err := qs.live(ctx, func(e *core.Engine, seq int64) error {
		v, err := e.Auction(id)
		if err != nil {
			return err
		}
		a := v.Auction
		resp = AuctionResponse{
			AuctionID:     a.ID,
			LoanID:        a.LoanID,
			Asset:         a.Asset,
			Lot:           units(a.Amount),
			Debt:          units(a.DebtShare),
			StartingPrice: units(a.StartingPrice),
			StartTime:     time.Unix(a.StartTime, 0).UTC(),
			Duration:      time.Duration(a.Duration) * time.Second,
			State:         v.State.String(),
			HighestBid:    units(a.HighestBid),
			HighestBidder: optionalUUID(a.HighestBidder),
			CurrentPrice:  unitsPtr(v.CurrentPrice),
			MinNextBid:    unitsPtr(v.MinNextBid),
			AsOfSequence:  seq,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// ActiveAuctions lists the ids of auctions still accepting bids.
func (qs *QueryService) ActiveAuctions(ctx context.Context) ([]uint64, error) {
	var ids []uint64
	err := qs.live(ctx, func(e *core.Engine, _ int64) error {
		ids = e.ActiveAuctions()
		return nil
	})
	return ids, err
}

// GetFund returns the insurance fund balance of asset.
func (qs *QueryService) GetFund(ctx context.Context, asset string) (*FundResponse, error) {
	var resp FundResponse
	err := qs.live(ctx, func(e *core.Engine, seq int64) error {
		v, err := e.Fund(asset)
		if err != nil {
			return err
		}
		resp = FundResponse{
			Asset:              asset,
			Balance:            units(v.Balance),
			TotalClaimsPaid:    units(v.TotalClaimsPaid),
			TotalFeesCollected: units(v.TotalFeesCollected),
			Claimable:          units(v.Claimable),
			CoverageSufficient: v.CoverageSufficient,
			AsOfSequence:       seq,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetPrice returns the cached price of feed and whether it is usable now.
func (qs *QueryService) GetPrice(ctx context.Context, feed string) (*PriceResponse, error) {
	var resp PriceResponse
	err := qs.live(ctx, func(e *core.Engine, seq int64) error {
		if _, ok := e.FeedConfig(feed); !ok {
			return errs.Validation("price", "unknown feed %q", feed)
		}
		r := e.Price(feed)
		resp = PriceResponse{Feed: feed, Valid: r.Valid(), AsOfSequence: seq}
		if q, ok := r.Cached(); ok {
			resp.Price = unitsPtr(q.Price)
			at := q.UpdatedAt.UTC()
			resp.UpdatedAt = &at
		}
		if err := r.Err(); err != nil {
			resp.Reason = err.Error()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListLoans pages a borrower's loans from the projection, newest first.
func (qs *QueryService) ListLoans(ctx context.Context, borrower uuid.UUID, page Page) ([]LoanSummary, error) {
	query := `
		SELECT loan_id, borrower, principal, interest_paid, state, opened_at, last_sequence
		FROM projections.loans
		WHERE borrower = $1
	`
	args := []interface{}{borrower}
	if page.After > 0 {
		query += " AND loan_id < $2"
		args = append(args, page.After)
	}
	query += fmt.Sprintf(" ORDER BY loan_id DESC LIMIT $%d", len(args)+1)
	args = append(args, page.limit())

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list loans")
	}
	defer rows.Close()

	var loans []LoanSummary
	for rows.Next() {
		var l LoanSummary
		if err := rows.Scan(&l.LoanID, &l.Borrower, &l.Principal, &l.InterestPaid, &l.State, &l.OpenedAt, &l.LastSequence); err != nil {
			return nil, errors.Wrap(err, "scan loan")
		}
		l.Principal = l.Principal.Shift(-math.Decimals)
		l.InterestPaid = l.InterestPaid.Shift(-math.Decimals)
		loans = append(loans, l)
	}
	return loans, rows.Err()
}

// ListAuctions returns the auctions opened for a loan from the projection.
func (qs *QueryService) ListAuctions(ctx context.Context, loanID uint64) ([]AuctionSummary, error) {
	rows, err := qs.db.QueryContext(ctx, `
		SELECT auction_id, loan_id, asset, lot, highest_bid, highest_bidder, state, started_at
		FROM projections.auctions
		WHERE loan_id = $1
		ORDER BY auction_id
	`, int64(loanID))
	if err != nil {
		return nil, errors.Wrap(err, "list auctions")
	}
	defer rows.Close()

	var out []AuctionSummary
	for rows.Next() {
		var a AuctionSummary
		var bidder uuid.NullUUID
		if err := rows.Scan(&a.AuctionID, &a.LoanID, &a.Asset, &a.Lot, &a.HighestBid, &bidder, &a.State, &a.StartedAt); err != nil {
			return nil, errors.Wrap(err, "scan auction")
		}
		a.Lot = a.Lot.Shift(-math.Decimals)
		a.HighestBid = a.HighestBid.Shift(-math.Decimals)
		if bidder.Valid {
			a.HighestBidder = &bidder.UUID
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetJournalHistory pages the ledger moves touching user's accounts, newest
// first. page.After is an exclusive sequence cursor.
func (qs *QueryService) GetJournalHistory(ctx context.Context, user uuid.UUID, page Page) ([]JournalHistoryEntry, error) {
	prefix := fmt.Sprintf("user:%s:%%", user)
	query := `
		SELECT move_id, batch_id, event_ref, sequence, debit_account, credit_account,
		       asset, amount, journal_type, timestamp
		FROM event_log.moves
		WHERE (debit_account LIKE $1 OR credit_account LIKE $1)
	`
	args := []interface{}{prefix}
	if page.After > 0 {
		query += " AND sequence < $2"
		args = append(args, page.After)
	}
	query += fmt.Sprintf(" ORDER BY sequence DESC, move_id LIMIT $%d", len(args)+1)
	args = append(args, page.limit())

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "journal history")
	}
	defer rows.Close()

	var entries []JournalHistoryEntry
	for rows.Next() {
		var e JournalHistoryEntry
		var ts int64
		if err := rows.Scan(
			&e.MoveID, &e.BatchID, &e.EventRef, &e.Sequence, &e.DebitAccount, &e.CreditAccount,
			&e.Asset, &e.Amount, &e.JournalType, &ts,
		); err != nil {
			return nil, errors.Wrap(err, "scan move")
		}
		e.Amount = e.Amount.Shift(-math.Decimals)
		e.Timestamp = time.Unix(ts, 0).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- Admin APIs ---

const integrityPage = 1000

// VerifyIntegrity recomputes the hash chain over the persisted event log and
// reports breaks, sequence gaps and how far the projections lag the log.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}
	err := qs.live(ctx, func(_ *core.Engine, seq int64) error {
		report.LiveSequence = seq
		return nil
	})
	if err != nil {
		return nil, err
	}

	prev := core.GenesisHash()
	var expect int64 = 1
	for {
		rows, err := qs.db.QueryContext(ctx, `
			SELECT sequence, payload, state_hash, prev_hash
			FROM event_log.events
			WHERE sequence >= $1
			ORDER BY sequence
			LIMIT $2
		`, expect, integrityPage)
		if err != nil {
			return nil, errors.Wrap(err, "load events")
		}

		n := 0
		for rows.Next() {
			var seq int64
			var payload, stateHash, prevHash []byte
			if err := rows.Scan(&seq, &payload, &stateHash, &prevHash); err != nil {
				rows.Close()
				return nil, errors.Wrap(err, "scan event")
			}
			n++
			if seq != expect {
				report.SequenceGaps = append(report.SequenceGaps, expect)
			}

			var stored, storedPrev [32]byte
			copy(stored[:], stateHash)
			copy(storedPrev[:], prevHash)
			if storedPrev != prev || core.ChainHash(storedPrev, seq, payload) != stored {
				report.HashChainBreaks = append(report.HashChainBreaks, seq)
			}
			prev = stored
			expect = seq + 1
			report.CheckedThrough = seq
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, errors.Wrap(err, "iterate events")
		}
		if n < integrityPage {
			break
		}
	}

	watermark, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}
	report.ProjectionLag = report.CheckedThrough - watermark

	report.IsHealthy = len(report.HashChainBreaks) == 0 && len(report.SequenceGaps) == 0
	return report, nil
}

// --- helpers ---

func (qs *QueryService) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := qs.db.QueryRowContext(ctx,
		`SELECT last_sequence FROM projections.watermark WHERE projection = $1`, projection.Name,
	).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, errors.Wrap(err, "watermark")
}
