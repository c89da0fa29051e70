package state

import (
	"sort"

	"GoldLedger/internal/errs"
	"GoldLedger/internal/math"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// Lot is one collateral asset seized from a liquidated position.
type Lot struct {
	Asset          string
	Amount         *uint256.Int
	AppraisedValue *uint256.Int // un-haircut ozt value at liquidation
	DebtShare      *uint256.Int // part of the loan's debt the lot must repay
}

// Seizure hands a liquidated loan's collateral to the auction engine. Only
// Liquidate can issue one and it can be consumed once.
type Seizure struct {
	LoanID   uint64
	Borrower uuid.UUID
	Debt     *uint256.Int
	Lots     []Lot

	issued   bool
	consumed bool
}

// Liquidate marks a loan whose position LTV reached the liquidation threshold
// as liquidated and seizes its pro-rata share (loan debt / position debt) of
// every collateral balance of the borrower. Anyone may call it.
func (pl *PositionLedger) Liquidate(id uint64, now int64) (*Seizure, Undo, error) {
	const op = "liquidate loan"
	l, err := pl.activeLoan(op, id)
	if err != nil {
		return nil, nil, err
	}
	if !l.State().CanTransitionTo(LoanStateLiquidated) {
		return nil, nil, errs.State(op, "loan %d is %s", id, l.State())
	}

	saved := l.clone()
	rollback := func() { l.restore(saved) }
	if err := l.accrue(now, pl.params.RatePerSecond); err != nil {
		return nil, nil, err
	}
	loanDebt, err := math.Add(l.Principal, l.InterestAccrued)
	if err != nil {
		rollback()
		return nil, nil, err
	}
	positionDebt, err := pl.PositionDebt(l.Borrower, now)
	if err != nil {
		rollback()
		return nil, nil, err
	}
	value, err := pl.CollateralValue(l.Borrower)
	if err != nil {
		rollback()
		return nil, nil, err
	}
	ltv, err := math.LTV(positionDebt, value)
	if err != nil {
		rollback()
		return nil, nil, err
	}
	if ltv.Lt(uint256.NewInt(pl.params.LiquidationThresholdBps)) {
		rollback()
		return nil, nil, errs.State(op, "loan %d LTV %s bps is below liquidation threshold %d",
			id, ltvString(ltv), pl.params.LiquidationThresholdBps)
	}

	lots, err := pl.seizeShares(l.Borrower, loanDebt, positionDebt)
	if err != nil {
		rollback()
		return nil, nil, err
	}
	if err := pl.allocateDebt(lots, loanDebt); err != nil {
		rollback()
		return nil, nil, err
	}

	// Writes start here.
	balancesBefore := pl.Balances(l.Borrower)
	totalsBefore := make(map[string]*uint256.Int, len(lots))
	for _, lot := range lots {
		cfg := pl.collateral[lot.Asset]
		totalsBefore[lot.Asset] = cfg.TotalDeposits
		cfg.TotalDeposits = new(uint256.Int).Sub(cfg.TotalDeposits, lot.Amount)
		pl.setBalance(l.Borrower, lot.Asset, new(uint256.Int).Sub(balancesBefore[lot.Asset], lot.Amount))
	}
	l.Liquidated = true
	l.LiquidatedAt = now
	pl.openSet(l.Borrower).Remove(l.ID)

	seizure := &Seizure{
		LoanID:   l.ID,
		Borrower: l.Borrower,
		Debt:     loanDebt,
		Lots:     lots,
		issued:   true,
	}
	return seizure, func() {
		for _, lot := range lots {
			pl.collateral[lot.Asset].TotalDeposits = totalsBefore[lot.Asset]
			pl.setBalance(l.Borrower, lot.Asset, balancesBefore[lot.Asset])
		}
		l.restore(saved)
		pl.openSet(l.Borrower).Add(l.ID)
	}, nil
}

// seizeShares computes balance × loanDebt / positionDebt per held asset,
// enabled or not.
func (pl *PositionLedger) seizeShares(borrower uuid.UUID, loanDebt, positionDebt *uint256.Int) ([]Lot, error) {
	balances := pl.balances[borrower]
	assets := make([]string, 0, len(balances))
	for a := range balances {
		assets = append(assets, a)
	}
	sort.Strings(assets)

	whole := loanDebt.Eq(positionDebt)
	var lots []Lot
	for _, a := range assets {
		amount := balances[a].Clone()
		if !whole {
			var err error
			amount, err = math.MulDiv(balances[a], loanDebt, positionDebt, math.RoundDown)
			if err != nil {
				return nil, err
			}
		}
		if amount.IsZero() {
			continue
		}
		appraised, err := pl.appraiseLot(a, amount)
		if err != nil {
			return nil, err
		}
		lots = append(lots, Lot{Asset: a, Amount: amount, AppraisedValue: appraised})
	}
	return lots, nil
}

// appraiseLot is Appraise, except that a lot with no usable price appraises
// to zero. Disabled assets are outside the position value, so their feeds may
// be gone; the lot is still seized and auctioned from a zero starting price.
func (pl *PositionLedger) appraiseLot(asset string, amount *uint256.Int) (*uint256.Int, error) {
	v, err := pl.Appraise(asset, amount)
	switch errs.KindOf(err) {
	case errs.KindOracleInvalid, errs.KindOracleUnavailable:
		return math.Zero(), nil
	}
	return v, err
}

// allocateDebt splits debt across lots by appraised value. The last lot takes
// the rounding remainder; with no appraisable value the first lot takes all.
func (pl *PositionLedger) allocateDebt(lots []Lot, debt *uint256.Int) error {
	if len(lots) == 0 {
		return nil
	}
	totalValue := math.Zero()
	for _, lot := range lots {
		var err error
		if totalValue, err = math.Add(totalValue, lot.AppraisedValue); err != nil {
			return err
		}
	}
	for i := range lots {
		lots[i].DebtShare = math.Zero()
	}
	if totalValue.IsZero() {
		lots[0].DebtShare = debt.Clone()
		return nil
	}
	remaining := debt.Clone()
	for i := range lots {
		if i == len(lots)-1 {
			lots[i].DebtShare = remaining
			break
		}
		share, err := math.MulDiv(debt, lots[i].AppraisedValue, totalValue, math.RoundDown)
		if err != nil {
			return err
		}
		lots[i].DebtShare = share
		remaining = new(uint256.Int).Sub(remaining, share)
	}
	return nil
}
