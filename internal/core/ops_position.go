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

// ============================================================================
// Wallets
// ============================================================================

// CreditWallet brings amount of asset into user's wallet from outside the
// ledger. Keepers bridge external deposits this way.
func (e *Engine) CreditWallet(caller, user uuid.UUID, asset string, amount *uint256.Int) error {
	const op = "credit wallet"
	return e.run(op, []string{walletResource(user)}, func(t *tx, now time.Time) error {
		if err := e.require(access.RoleKeeper, caller, op); err != nil {
			return err
		}
		if err := positive(op, asset, amount); err != nil {
			return err
		}
		if user == uuid.Nil {
			return errs.Validation(op, "user is required")
		}
		b := e.batch(now).Move(ledger.JournalTypeExternalCredit, ledger.ExternalDeposits(asset), ledger.Wallet(user, asset), amount)
		if err := t.transfer(e.bank, op, b); err != nil {
			return err
		}
		t.emit(&event.WalletCredited{User: user, Asset: asset, Amount: amount.Clone(), Balance: e.bank.Balance(ledger.Wallet(user, asset))})
		return nil
	})
}

// DebitWallet sends amount of asset out of the caller's wallet.
func (e *Engine) DebitWallet(caller uuid.UUID, asset string, amount *uint256.Int) error {
	const op = "debit wallet"
	return e.run(op, []string{walletResource(caller)}, func(t *tx, now time.Time) error {
		if err := positive(op, asset, amount); err != nil {
			return err
		}
		b := e.batch(now).Move(ledger.JournalTypeExternalDebit, ledger.Wallet(caller, asset), ledger.ExternalDeposits(asset), amount)
		if err := t.transfer(e.bank, op, b); err != nil {
			return err
		}
		t.emit(&event.WalletDebited{User: caller, Asset: asset, Amount: amount.Clone(), Balance: e.bank.Balance(ledger.Wallet(caller, asset))})
		return nil
	})
}

// ============================================================================
// Collateral
// ============================================================================

func (e *Engine) ConfigureCollateral(caller uuid.UUID, asset string, enabled bool, haircutBps uint64, debtCeiling *uint256.Int) error {
	const op = "configure collateral"
	return e.run(op, []string{adminResource}, func(t *tx, now time.Time) error {
		if err := e.require(access.RoleManager, caller, op); err != nil {
			return err
		}
		if asset == e.debtAsset {
			return errs.Validation(op, "%s cannot be collateral", asset)
		}
		if err := e.positions.ConfigureCollateral(asset, enabled, haircutBps, debtCeiling); err != nil {
			return err
		}
		cfg, _ := e.positions.CollateralConfig(asset)
		t.emit(&event.CollateralConfigured{Asset: asset, Enabled: cfg.Enabled, HaircutBps: cfg.HaircutBps, DebtCeiling: cfg.DebtCeiling})
		return nil
	})
}

// DepositCollateral moves amount of asset from the caller's wallet into
// custody and credits their position.
func (e *Engine) DepositCollateral(caller uuid.UUID, asset string, amount *uint256.Int) error {
	const op = "deposit collateral"
	return e.run(op, []string{positionResource(caller)}, func(t *tx, now time.Time) error {
		undo, err := e.positions.Deposit(caller, asset, amount)
		if err != nil {
			return err
		}
		t.undo(undo)
		b := e.batch(now).Move(ledger.JournalTypeCollateralDeposit, ledger.Wallet(caller, asset), ledger.Custody(asset), amount)
		if err := t.transfer(e.bank, op, b); err != nil {
			return err
		}
		t.emit(&event.CollateralDeposited{User: caller, Asset: asset, Amount: amount.Clone(), Balance: e.positions.Balance(caller, asset)})
		return nil
	})
}

// WithdrawCollateral releases amount of asset back to the caller's wallet if
// the position stays within the max LTV.
func (e *Engine) WithdrawCollateral(caller uuid.UUID, asset string, amount *uint256.Int) error {
	const op = "withdraw collateral"
	return e.run(op, []string{positionResource(caller)}, func(t *tx, now time.Time) error {
		undo, err := e.positions.Withdraw(caller, asset, amount, now.Unix())
		if err != nil {
			return err
		}
		t.undo(undo)
		b := e.batch(now).Move(ledger.JournalTypeCollateralWithdraw, ledger.Custody(asset), ledger.Wallet(caller, asset), amount)
		if err := t.transfer(e.bank, op, b); err != nil {
			return err
		}
		t.emit(&event.CollateralWithdrawn{User: caller, Asset: asset, Amount: amount.Clone(), Balance: e.positions.Balance(caller, asset)})
		return nil
	})
}

// ============================================================================
// Loans
// ============================================================================

// OpenLoan issues amount of the debt asset to the caller against their
// collateral.
func (e *Engine) OpenLoan(caller uuid.UUID, amount *uint256.Int) (*state.Loan, error) {
	const op = "open loan"
	var loan *state.Loan
	err := e.run(op, []string{positionResource(caller)}, func(t *tx, now time.Time) error {
		l, undo, err := e.positions.OpenLoan(caller, amount, now.Unix())
		if err != nil {
			return err
		}
		t.undo(undo)
		ltv, err := e.positions.PositionLTV(caller, now.Unix())
		if err != nil {
			return err
		}
		b := e.batch(now).Move(ledger.JournalTypeLoanDisburse, ledger.Issuance(e.debtAsset), ledger.Wallet(caller, e.debtAsset), amount)
		if err := t.transfer(e.bank, op, b); err != nil {
			return err
		}
		t.emit(&event.LoanOpened{LoanID: l.ID, Borrower: caller, Principal: l.Principal, LTVBps: ltv.Uint64(), CreatedAt: l.CreatedAt})
		if e.metrics != nil {
			e.metrics.LoansOpened.Inc()
		}
		loan = l
		return nil
	})
	return loan, err
}

// RepayLoan burns amount of the debt asset from the caller's wallet against
// the loan, interest first.
func (e *Engine) RepayLoan(caller uuid.UUID, id uint64, amount *uint256.Int) (*state.Repayment, error) {
	const op = "repay loan"
	var rep *state.Repayment
	err := e.run(op, []string{loanResource(id), positionResource(caller)}, func(t *tx, now time.Time) error {
		r, undo, err := e.positions.RepayLoan(caller, id, amount, now.Unix())
		if err != nil {
			return err
		}
		t.undo(undo)
		b := e.batch(now).Move(ledger.JournalTypeLoanRepay, ledger.Wallet(caller, e.debtAsset), ledger.Issuance(e.debtAsset), amount)
		if err := t.transfer(e.bank, op, b); err != nil {
			return err
		}
		closed := r.Loan.State() == state.LoanStateRepaid
		t.emit(&event.LoanRepaid{
			LoanID:             id,
			Borrower:           caller,
			Amount:             amount.Clone(),
			InterestPaid:       r.InterestPaid,
			PrincipalPaid:      r.PrincipalPaid,
			RemainingPrincipal: r.Loan.Principal,
			RemainingInterest:  r.Loan.InterestAccrued,
			Closed:             closed,
		})
		if e.metrics != nil {
			outcome := "partial"
			if closed {
				outcome = "closed"
			}
			e.metrics.LoansRepaid.WithLabelValues(outcome).Inc()
		}
		rep = r
		return nil
	})
	return rep, err
}

// Liquidation is a liquidated loan and the auctions opened for its seized
// collateral.
type Liquidation struct {
	Seizure  *state.Seizure
	Auctions []*state.Auction
}

// LiquidateLoan seizes the loan's share of the borrower's collateral into
// auction escrow and opens one Dutch auction per seized asset. Anyone may
// call it once the position LTV reaches the liquidation threshold.
func (e *Engine) LiquidateLoan(caller uuid.UUID, id uint64) (*Liquidation, error) {
	const op = "liquidate loan"
	loan, ok := e.positions.Loan(id)
	if !ok {
		return nil, errs.Validation(op, "unknown loan %d", id)
	}
	var out *Liquidation
	err := e.run(op, []string{loanResource(id), positionResource(loan.Borrower)}, func(t *tx, now time.Time) error {
		ltv, err := e.positions.PositionLTV(loan.Borrower, now.Unix())
		if err != nil {
			return err
		}
		seizure, undo, err := e.positions.Liquidate(id, now.Unix())
		if err != nil {
			return err
		}
		t.undo(undo)
		started, undo, err := e.auctions.Start(seizure, now.Unix())
		if err != nil {
			return err
		}
		t.undo(undo)

		b := e.batch(now)
		lots := make([]event.SeizedLot, 0, len(started))
		for _, a := range started {
			b.Move(ledger.JournalTypeCollateralSeize, ledger.Custody(a.Asset), ledger.AuctionEscrow(a.Asset), a.Amount)
			lots = append(lots, event.SeizedLot{
				AuctionID:      a.ID,
				Asset:          a.Asset,
				Amount:         a.Amount,
				AppraisedValue: a.StartingPrice,
				DebtShare:      a.DebtShare,
			})
		}
		if err := t.transfer(e.bank, op, b); err != nil {
			return err
		}

		t.emit(&event.LiquidationStarted{
			LoanID:     id,
			Borrower:   loan.Borrower,
			Liquidator: caller,
			Debt:       seizure.Debt,
			LTVBps:     ltvText(ltv),
			Lots:       lots,
		})
		for _, a := range started {
			t.emit(&event.AuctionStarted{
				AuctionID:          a.ID,
				LoanID:             a.LoanID,
				Borrower:           a.Borrower,
				Asset:              a.Asset,
				Amount:             a.Amount,
				DebtShare:          a.DebtShare,
				StartingPrice:      a.StartingPrice,
				DecayRatePerSecond: a.DecayRatePerSecond,
				StartTime:          a.StartTime,
				Duration:           a.Duration,
			})
		}
		if e.metrics != nil {
			e.metrics.LoansLiquidated.Inc()
			for _, a := range started {
				e.metrics.AuctionsStarted.WithLabelValues(a.Asset).Inc()
			}
		}
		e.logger.Info().
			Uint64("loan_id", id).
			Str("borrower", loan.Borrower.String()).
			Str("debt", math.FormatUnits(seizure.Debt)).
			Int("lots", len(started)).
			Msg("loan liquidated")
		out = &Liquidation{Seizure: seizure, Auctions: started}
		return nil
	})
	return out, err
}

func positive(op, asset string, amount *uint256.Int) error {
	if asset == "" {
		return errs.Validation(op, "asset is required")
	}
	if amount == nil || amount.IsZero() {
		return errs.Validation(op, "amount must be positive")
	}
	return nil
}

func ltvText(ltv *uint256.Int) string {
	if math.IsMax(ltv) {
		return "max"
	}
	return ltv.Dec()
}
