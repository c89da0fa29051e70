package core

import (
	"time"

	"GoldLedger/internal/access"
	"GoldLedger/internal/errs"
	"GoldLedger/internal/event"
	"GoldLedger/internal/ledger"
	"GoldLedger/internal/math"
	"GoldLedger/internal/state"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// PlaceBid escrows amount of the debt asset from the caller as the new
// highest bid. The displaced bid is refunded before the new one is escrowed,
// in the same batch.
func (e *Engine) PlaceBid(caller uuid.UUID, auctionID uint64, amount *uint256.Int) error {
	const op = "place bid"
	return e.run(op, []string{auctionResource(auctionID)}, func(t *tx, now time.Time) error {
		res, undo, err := e.auctions.Bid(auctionID, caller, amount, now.Unix())
		if err != nil {
			return err
		}
		t.undo(undo)

		b := e.batch(now)
		evt := &event.AuctionBid{AuctionID: auctionID, Bidder: caller, Amount: amount.Clone(), RefundAmount: math.Zero()}
		if res.Refund != nil {
			b.Move(ledger.JournalTypeBidRefund, ledger.AuctionEscrow(e.debtAsset), ledger.Wallet(res.Refund.Bidder, e.debtAsset), res.Refund.Amount)
			evt.RefundedBidder = res.Refund.Bidder
			evt.RefundAmount = res.Refund.Amount
		}
		b.Move(ledger.JournalTypeBidEscrow, ledger.Wallet(caller, e.debtAsset), ledger.AuctionEscrow(e.debtAsset), amount)
		if err := t.transfer(e.bank, op, b); err != nil {
			return err
		}
		t.emit(evt)
		if e.metrics != nil {
			e.metrics.AuctionBids.Inc()
		}
		return nil
	})
}

// Settlement is how a winning bid was distributed.
type Settlement struct {
	Auction    *state.Auction
	Fee        *uint256.Int
	DebtRepaid *uint256.Int
	Surplus    *uint256.Int
	Shortfall  *uint256.Int
	ClaimPaid  *uint256.Int
	Uncovered  *uint256.Int
}

// SettleAuction closes an expired auction with a bid. The lot goes to the
// winner; the proceeds pay the fund fee, then the lot's debt share, and any
// surplus goes to the borrower. A shortfall is claimed from the insurance
// fund up to what coverage allows; the rest is recorded as uncovered.
func (e *Engine) SettleAuction(caller uuid.UUID, auctionID uint64) (*Settlement, error) {
	const op = "settle auction"
	a, ok := e.auctions.Auction(auctionID)
	if !ok {
		return nil, errs.Validation(op, "unknown auction %d", auctionID)
	}
	var out *Settlement
	resources := []string{auctionResource(auctionID), loanResource(a.LoanID), fundResource(e.debtAsset)}
	err := e.run(op, resources, func(t *tx, now time.Time) error {
		settled, undo, err := e.auctions.Settle(auctionID, now.Unix())
		if err != nil {
			return err
		}
		t.undo(undo)

		s, err := e.distribute(t, settled)
		if err != nil {
			return err
		}

		b := e.batch(now).
			Move(ledger.JournalTypeAuctionRelease, ledger.AuctionEscrow(settled.Asset), ledger.Wallet(settled.HighestBidder, settled.Asset), settled.Amount).
			Move(ledger.JournalTypeFundFee, ledger.AuctionEscrow(e.debtAsset), ledger.InsuranceFund(e.debtAsset), s.Fee).
			Move(ledger.JournalTypeAuctionProceeds, ledger.AuctionEscrow(e.debtAsset), ledger.Issuance(e.debtAsset), s.DebtRepaid).
			Move(ledger.JournalTypeAuctionSurplus, ledger.AuctionEscrow(e.debtAsset), ledger.Wallet(settled.Borrower, e.debtAsset), s.Surplus).
			Move(ledger.JournalTypeFundClaim, ledger.InsuranceFund(e.debtAsset), ledger.Issuance(e.debtAsset), s.ClaimPaid)
		if err := t.transfer(e.bank, op, b); err != nil {
			return err
		}

		fund := e.fund.Balance(e.debtAsset)
		t.emit(&event.AuctionSettled{
			AuctionID:  settled.ID,
			LoanID:     settled.LoanID,
			Winner:     settled.HighestBidder,
			Asset:      settled.Asset,
			Amount:     settled.Amount,
			Proceeds:   settled.HighestBid,
			Fee:        s.Fee,
			DebtRepaid: s.DebtRepaid,
			Surplus:    s.Surplus,
			Shortfall:  s.Shortfall,
			ClaimPaid:  s.ClaimPaid,
			Uncovered:  s.Uncovered,
		})
		if !s.Fee.IsZero() {
			t.emit(&event.FeeCollected{Asset: e.debtAsset, From: settled.HighestBidder, Base: settled.HighestBid, Fee: s.Fee, Balance: fund.Balance})
		}
		if !s.ClaimPaid.IsZero() {
			t.emit(&event.ClaimPaid{Asset: e.debtAsset, Amount: s.ClaimPaid, Balance: fund.Balance, TotalClaimsPaid: fund.TotalClaimsPaid})
		}
		e.observeSettlement(s)
		out = s
		return nil
	})
	return out, err
}

// distribute splits the winning bid and records the fund side of it.
func (e *Engine) distribute(t *tx, a *state.Auction) (*Settlement, error) {
	fee, undo, err := e.fund.CollectFee(e.debtAsset, a.HighestBid)
	if err != nil {
		return nil, err
	}
	t.undo(undo)

	net, err := math.Sub(a.HighestBid, fee)
	if err != nil {
		return nil, err
	}
	s := &Settlement{
		Auction:    a,
		Fee:        fee,
		DebtRepaid: math.Min(net, a.DebtShare),
		ClaimPaid:  math.Zero(),
		Uncovered:  math.Zero(),
	}
	s.Surplus = new(uint256.Int).Sub(net, s.DebtRepaid)
	s.Shortfall = new(uint256.Int).Sub(a.DebtShare, s.DebtRepaid)
	if s.Shortfall.IsZero() {
		return s, nil
	}

	claimable, err := e.fund.Claimable(e.debtAsset)
	if err != nil {
		return nil, err
	}
	s.ClaimPaid = math.Min(s.Shortfall, claimable)
	if !s.ClaimPaid.IsZero() {
		undo, err := e.fund.PayClaim(e.debtAsset, s.ClaimPaid)
		if err != nil {
			return nil, err
		}
		t.undo(undo)
	}
	s.Uncovered = new(uint256.Int).Sub(s.Shortfall, s.ClaimPaid)
	if !s.Uncovered.IsZero() {
		e.logger.Warn().
			Uint64("auction_id", a.ID).
			Uint64("loan_id", a.LoanID).
			Str("uncovered", math.FormatUnits(s.Uncovered)).
			Msg("auction shortfall not covered by insurance fund")
	}
	return s, nil
}

func (e *Engine) observeSettlement(s *Settlement) {
	if e.metrics == nil {
		return
	}
	outcome := "exact"
	switch {
	case !s.Shortfall.IsZero():
		outcome = "shortfall"
	case !s.Surplus.IsZero():
		outcome = "surplus"
	}
	e.metrics.AuctionsSettled.WithLabelValues(outcome).Inc()
	if !s.ClaimPaid.IsZero() {
		e.metrics.ClaimsPaid.WithLabelValues(e.debtAsset).Inc()
	}
	if !s.Uncovered.IsZero() {
		e.metrics.UncoveredShortfalls.Inc()
	}
	e.observeFund(e.debtAsset)
}

// CancelAuction closes an active auction without a sale. Any standing bid is
// refunded and the lot passes to the insurance fund. Admins may cancel while
// the engine is paused.
func (e *Engine) CancelAuction(caller uuid.UUID, auctionID uint64) error {
	const op = "cancel auction"
	a, ok := e.auctions.Auction(auctionID)
	if !ok {
		return errs.Validation(op, "unknown auction %d", auctionID)
	}
	return e.exec(op, []string{auctionResource(auctionID), fundResource(a.Asset)}, func(t *tx, now time.Time) error {
		if err := e.require(access.RoleAdmin, caller, op); err != nil {
			return err
		}
		cancelled, refund, undo, err := e.auctions.Cancel(auctionID)
		if err != nil {
			return err
		}
		t.undo(undo)
		undo, err = e.fund.Deposit(cancelled.Asset, cancelled.Amount)
		if err != nil {
			return err
		}
		t.undo(undo)

		b := e.batch(now)
		evt := &event.AuctionCancelled{AuctionID: auctionID, Asset: cancelled.Asset, Amount: cancelled.Amount, RefundAmount: math.Zero()}
		if refund != nil {
			b.Move(ledger.JournalTypeBidRefund, ledger.AuctionEscrow(e.debtAsset), ledger.Wallet(refund.Bidder, e.debtAsset), refund.Amount)
			evt.RefundedBidder = refund.Bidder
			evt.RefundAmount = refund.Amount
		}
		b.Move(ledger.JournalTypeFundDeposit, ledger.AuctionEscrow(cancelled.Asset), ledger.InsuranceFund(cancelled.Asset), cancelled.Amount)
		if err := t.transfer(e.bank, op, b); err != nil {
			return err
		}
		t.emit(evt, &event.FundDeposited{
			Asset:   cancelled.Asset,
			Amount:  cancelled.Amount,
			Balance: e.fund.Balance(cancelled.Asset).Balance,
		})
		if e.metrics != nil {
			e.metrics.AuctionsCancelled.Inc()
			e.observeFund(cancelled.Asset)
		}
		return nil
	})
}
