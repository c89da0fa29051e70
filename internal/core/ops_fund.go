package core

import (
	"time"

	"GoldLedger/internal/access"
	"GoldLedger/internal/errs"
	"GoldLedger/internal/event"
	"GoldLedger/internal/ledger"
	"GoldLedger/internal/math"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// FundDeposit adds amount of asset from the caller's wallet to the fund.
func (e *Engine) FundDeposit(caller uuid.UUID, asset string, amount *uint256.Int) error {
	const op = "fund deposit"
	return e.run(op, []string{fundResource(asset)}, func(t *tx, now time.Time) error {
		undo, err := e.fund.Deposit(asset, amount)
		if err != nil {
			return err
		}
		t.undo(undo)
		b := e.batch(now).Move(ledger.JournalTypeFundDeposit, ledger.Wallet(caller, asset), ledger.InsuranceFund(asset), amount)
		if err := t.transfer(e.bank, op, b); err != nil {
			return err
		}
		t.emit(&event.FundDeposited{Asset: asset, From: caller, Amount: amount.Clone(), Balance: e.fund.Balance(asset).Balance})
		e.observeFund(asset)
		return nil
	})
}

// FundWithdraw pays amount of asset to `to` if coverage holds afterwards.
func (e *Engine) FundWithdraw(caller uuid.UUID, asset string, amount *uint256.Int, to uuid.UUID) error {
	const op = "fund withdraw"
	return e.run(op, []string{fundResource(asset)}, func(t *tx, now time.Time) error {
		if err := e.require(access.RoleAdmin, caller, op); err != nil {
			return err
		}
		if to == uuid.Nil {
			return errs.Validation(op, "recipient is required")
		}
		undo, err := e.fund.Withdraw(asset, amount)
		if err != nil {
			return err
		}
		t.undo(undo)
		b := e.batch(now).Move(ledger.JournalTypeFundWithdraw, ledger.InsuranceFund(asset), ledger.Wallet(to, asset), amount)
		if err := t.transfer(e.bank, op, b); err != nil {
			return err
		}
		t.emit(&event.FundWithdrawn{Asset: asset, To: to, Amount: amount.Clone(), Balance: e.fund.Balance(asset).Balance})
		e.observeFund(asset)
		return nil
	})
}

// PayClaim pays a claim of amount to `to` if coverage holds afterwards.
func (e *Engine) PayClaim(caller uuid.UUID, asset string, amount *uint256.Int, to uuid.UUID) error {
	const op = "pay claim"
	return e.run(op, []string{fundResource(asset)}, func(t *tx, now time.Time) error {
		if err := e.require(access.RoleManager, caller, op); err != nil {
			return err
		}
		if to == uuid.Nil {
			return errs.Validation(op, "recipient is required")
		}
		undo, err := e.fund.PayClaim(asset, amount)
		if err != nil {
			return err
		}
		t.undo(undo)
		b := e.batch(now).Move(ledger.JournalTypeFundClaim, ledger.InsuranceFund(asset), ledger.Wallet(to, asset), amount)
		if err := t.transfer(e.bank, op, b); err != nil {
			return err
		}
		fb := e.fund.Balance(asset)
		t.emit(&event.ClaimPaid{Asset: asset, To: to, Amount: amount.Clone(), Balance: fb.Balance, TotalClaimsPaid: fb.TotalClaimsPaid})
		if e.metrics != nil {
			e.metrics.ClaimsPaid.WithLabelValues(asset).Inc()
		}
		e.observeFund(asset)
		return nil
	})
}

// CollectFee charges the caller the fee on amount and credits it to the
// fund. It returns the fee.
func (e *Engine) CollectFee(caller uuid.UUID, asset string, amount *uint256.Int) (*uint256.Int, error) {
	const op = "collect fee"
	var fee *uint256.Int
	err := e.run(op, []string{fundResource(asset)}, func(t *tx, now time.Time) error {
		f, undo, err := e.fund.CollectFee(asset, amount)
		if err != nil {
			return err
		}
		t.undo(undo)
		b := e.batch(now).Move(ledger.JournalTypeFundFee, ledger.Wallet(caller, asset), ledger.InsuranceFund(asset), f)
		if err := t.transfer(e.bank, op, b); err != nil {
			return err
		}
		t.emit(&event.FeeCollected{Asset: asset, From: caller, Base: amount.Clone(), Fee: f, Balance: e.fund.Balance(asset).Balance})
		e.observeFund(asset)
		fee = f
		return nil
	})
	return fee, err
}

func (e *Engine) observeFund(asset string) {
	if e.metrics == nil {
		return
	}
	bal, _ := math.ToDecimal(e.fund.Balance(asset).Balance).Float64()
	e.metrics.InsuranceFundBalance.WithLabelValues(asset).Set(bal)
}
