package state

import (
	"sort"

	"GoldLedger/internal/errs"
	"GoldLedger/internal/index"
	"GoldLedger/internal/math"
	"GoldLedger/internal/oracle"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// Undo reverts the writes of a successful component call. The engine runs it
// when a later step of the same operation fails.
type Undo func()

func noUndo() {}

// Pricer is the read side of the price oracle.
type Pricer interface {
	Read(asset string) oracle.Result
	ReadUnit() oracle.Result
}

// PositionLedger owns collateral balances and the loan registry.
type PositionLedger struct {
	params     RiskParams
	collateral map[string]*CollateralConfig
	balances   map[uuid.UUID]map[string]*uint256.Int
	loans      map[uint64]*Loan
	// openLoans holds each borrower's loans that still carry debt.
	openLoans  map[uuid.UUID]*index.Set[uint64]
	nextLoanID uint64
	prices     Pricer
}

func NewPositionLedger(params RiskParams, prices Pricer) (*PositionLedger, error) {
	if err := ValidateRiskParams(params); err != nil {
		return nil, err
	}
	return &PositionLedger{
		params:     params,
		collateral: make(map[string]*CollateralConfig),
		balances:   make(map[uuid.UUID]map[string]*uint256.Int),
		loans:      make(map[uint64]*Loan),
		openLoans:  make(map[uuid.UUID]*index.Set[uint64]),
		nextLoanID: 1,
		prices:     prices,
	}, nil
}

func (pl *PositionLedger) Params() RiskParams {
	p := pl.params
	p.RatePerSecond = pl.params.RatePerSecond.Clone()
	return p
}

// SetRiskParams replaces the risk parameters. Interest owed up to now is
// accrued at the old rate first.
func (pl *PositionLedger) SetRiskParams(params RiskParams, now int64) error {
	if err := ValidateRiskParams(params); err != nil {
		return err
	}
	accrued := make(map[uint64]*Loan)
	for _, l := range pl.loans {
		if l.State() != LoanStateOpen {
			continue
		}
		saved := l.clone()
		if err := l.accrue(now, pl.params.RatePerSecond); err != nil {
			for id, s := range accrued {
				pl.loans[id].restore(s)
			}
			return err
		}
		accrued[l.ID] = saved
	}
	pl.params = params
	pl.params.RatePerSecond = params.RatePerSecond.Clone()
	return nil
}

// ============================================================================
// Collateral configuration
// ============================================================================

// ConfigureCollateral creates or updates an asset's config. TotalDeposits is
// preserved across updates.
func (pl *PositionLedger) ConfigureCollateral(asset string, enabled bool, haircutBps uint64, debtCeiling *uint256.Int) error {
	if err := ValidateCollateralConfig(asset, haircutBps); err != nil {
		return err
	}
	if debtCeiling == nil {
		debtCeiling = math.Zero()
	}
	cfg, ok := pl.collateral[asset]
	if !ok {
		cfg = &CollateralConfig{Asset: asset, TotalDeposits: math.Zero()}
		pl.collateral[asset] = cfg
	}
	cfg.Enabled = enabled
	cfg.HaircutBps = haircutBps
	cfg.DebtCeiling = debtCeiling.Clone()
	return nil
}

func (pl *PositionLedger) CollateralConfig(asset string) (CollateralConfig, bool) {
	cfg, ok := pl.collateral[asset]
	if !ok {
		return CollateralConfig{}, false
	}
	return cfg.clone(), true
}

// CollateralAssets lists configured assets in name order.
func (pl *PositionLedger) CollateralAssets() []string {
	out := make([]string, 0, len(pl.collateral))
	for a := range pl.collateral {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// ============================================================================
// Balances
// ============================================================================

func (pl *PositionLedger) Balance(user uuid.UUID, asset string) *uint256.Int {
	if b, ok := pl.balances[user][asset]; ok {
		return b.Clone()
	}
	return math.Zero()
}

// Balances returns a copy of all of user's collateral balances.
func (pl *PositionLedger) Balances(user uuid.UUID) map[string]*uint256.Int {
	out := make(map[string]*uint256.Int, len(pl.balances[user]))
	for a, b := range pl.balances[user] {
		out[a] = b.Clone()
	}
	return out
}

func (pl *PositionLedger) setBalance(user uuid.UUID, asset string, v *uint256.Int) {
	m, ok := pl.balances[user]
	if !ok {
		m = make(map[string]*uint256.Int)
		pl.balances[user] = m
	}
	if v.IsZero() {
		delete(m, asset)
		if len(m) == 0 {
			delete(pl.balances, user)
		}
		return
	}
	m[asset] = v
}

// Deposit credits amount of an enabled asset to user.
func (pl *PositionLedger) Deposit(user uuid.UUID, asset string, amount *uint256.Int) (Undo, error) {
	const op = "deposit"
	if amount == nil || amount.IsZero() {
		return nil, errs.Validation(op, "amount must be positive")
	}
	cfg, ok := pl.collateral[asset]
	if !ok {
		return nil, errs.Validation(op, "unknown collateral asset %s", asset)
	}
	if !cfg.Enabled {
		return nil, errs.Validation(op, "collateral asset %s is disabled", asset)
	}

	before := pl.Balance(user, asset)
	newBalance, err := math.Add(before, amount)
	if err != nil {
		return nil, err
	}
	newTotal, err := math.Add(cfg.TotalDeposits, amount)
	if err != nil {
		return nil, err
	}
	if !cfg.DebtCeiling.IsZero() && newTotal.Gt(cfg.DebtCeiling) {
		return nil, errs.Validation(op, "%s deposits would exceed ceiling %s", asset, math.FormatUnits(cfg.DebtCeiling))
	}

	prevTotal := cfg.TotalDeposits
	pl.setBalance(user, asset, newBalance)
	cfg.TotalDeposits = newTotal
	return func() {
		pl.setBalance(user, asset, before)
		cfg.TotalDeposits = prevTotal
	}, nil
}

// Withdraw debits amount from user after checking that the position stays
// within MaxLTV on the post-withdrawal balances.
func (pl *PositionLedger) Withdraw(user uuid.UUID, asset string, amount *uint256.Int, now int64) (Undo, error) {
	const op = "withdraw"
	if amount == nil || amount.IsZero() {
		return nil, errs.Validation(op, "amount must be positive")
	}
	cfg, ok := pl.collateral[asset]
	if !ok {
		return nil, errs.Validation(op, "unknown collateral asset %s", asset)
	}
	before := pl.Balance(user, asset)
	if before.Lt(amount) {
		return nil, errs.Validation(op, "insufficient collateral: have %s, need %s",
			math.FormatUnits(before), math.FormatUnits(amount))
	}
	after := new(uint256.Int).Sub(before, amount)

	debt, err := pl.PositionDebt(user, now)
	if err != nil {
		return nil, err
	}
	if !debt.IsZero() {
		balances := pl.Balances(user)
		balances[asset] = after
		value, err := pl.valueOf(balances)
		if err != nil {
			return nil, err
		}
		ltv, err := math.LTV(debt, value)
		if err != nil {
			return nil, err
		}
		if ltv.Gt(uint256.NewInt(pl.params.MaxLTVBps)) {
			return nil, errs.Validation(op, "withdrawal would raise LTV to %s bps (max %d)", ltvString(ltv), pl.params.MaxLTVBps)
		}
	}

	prevTotal := cfg.TotalDeposits
	newTotal, err := math.Sub(cfg.TotalDeposits, amount)
	if err != nil {
		return nil, err
	}
	pl.setBalance(user, asset, after)
	cfg.TotalDeposits = newTotal
	return func() {
		pl.setBalance(user, asset, before)
		cfg.TotalDeposits = prevTotal
	}, nil
}

func ltvString(ltv *uint256.Int) string {
	if math.IsMax(ltv) {
		return "max"
	}
	return ltv.Dec()
}

// ============================================================================
// Loans
// ============================================================================

// OpenLoan borrows amount against user's collateral.
func (pl *PositionLedger) OpenLoan(user uuid.UUID, amount *uint256.Int, now int64) (*Loan, Undo, error) {
	const op = "open loan"
	if amount == nil || amount.IsZero() {
		return nil, nil, errs.Validation(op, "amount must be positive")
	}
	debt, err := pl.PositionDebt(user, now)
	if err != nil {
		return nil, nil, err
	}
	newDebt, err := math.Add(debt, amount)
	if err != nil {
		return nil, nil, err
	}
	value, err := pl.CollateralValue(user)
	if err != nil {
		return nil, nil, err
	}
	ltv, err := math.LTV(newDebt, value)
	if err != nil {
		return nil, nil, err
	}
	if ltv.Gt(uint256.NewInt(pl.params.MaxLTVBps)) {
		return nil, nil, errs.Validation(op, "resulting LTV %s bps exceeds max %d", ltvString(ltv), pl.params.MaxLTVBps)
	}

	loan := &Loan{
		ID:              pl.nextLoanID,
		Borrower:        user,
		Principal:       amount.Clone(),
		InterestAccrued: math.Zero(),
		CreatedAt:       now,
		LastAccrualTime: now,
	}
	pl.nextLoanID++
	pl.loans[loan.ID] = loan
	pl.openSet(user).Add(loan.ID)

	return loan.clone(), func() {
		delete(pl.loans, loan.ID)
		pl.openSet(user).Remove(loan.ID)
		pl.nextLoanID--
	}, nil
}

func (pl *PositionLedger) openSet(user uuid.UUID) *index.Set[uint64] {
	s, ok := pl.openLoans[user]
	if !ok {
		s = index.NewSet[uint64]()
		pl.openLoans[user] = s
	}
	return s
}

// activeLoan looks up a loan that is not liquidated.
func (pl *PositionLedger) activeLoan(op string, id uint64) (*Loan, error) {
	l, ok := pl.loans[id]
	if !ok {
		return nil, errs.Validation(op, "unknown loan %d", id)
	}
	if l.Liquidated {
		return nil, errs.State(op, "loan %d is liquidated", id)
	}
	return l, nil
}

// Repayment splits a repaid amount.
type Repayment struct {
	Loan          *Loan
	InterestPaid  *uint256.Int
	PrincipalPaid *uint256.Int
}

// RepayLoan applies amount to the loan, interest first. Only the borrower may
// repay.
func (pl *PositionLedger) RepayLoan(caller uuid.UUID, id uint64, amount *uint256.Int, now int64) (*Repayment, Undo, error) {
	const op = "repay loan"
	l, err := pl.activeLoan(op, id)
	if err != nil {
		return nil, nil, err
	}
	if l.Borrower != caller {
		return nil, nil, errs.Unauthorized(op, "loan %d belongs to another borrower", id)
	}
	if amount == nil || amount.IsZero() {
		return nil, nil, errs.Validation(op, "amount must be positive")
	}

	saved := l.clone()
	if err := l.accrue(now, pl.params.RatePerSecond); err != nil {
		return nil, nil, err
	}
	debt, err := math.Add(l.Principal, l.InterestAccrued)
	if err != nil {
		l.restore(saved)
		return nil, nil, err
	}
	if amount.Gt(debt) {
		l.restore(saved)
		return nil, nil, errs.Validation(op, "amount %s exceeds debt %s", math.FormatUnits(amount), math.FormatUnits(debt))
	}

	interestPaid := math.Min(amount, l.InterestAccrued)
	principalPaid := new(uint256.Int).Sub(amount, interestPaid)
	l.InterestAccrued = new(uint256.Int).Sub(l.InterestAccrued, interestPaid)
	l.Principal = new(uint256.Int).Sub(l.Principal, principalPaid)

	closed := l.State() == LoanStateRepaid
	if closed {
		pl.openSet(l.Borrower).Remove(l.ID)
	}

	return &Repayment{Loan: l.clone(), InterestPaid: interestPaid, PrincipalPaid: principalPaid}, func() {
		l.restore(saved)
		if closed {
			pl.openSet(l.Borrower).Add(l.ID)
		}
	}, nil
}

// Loan returns a copy of any loan, liquidated or not.
func (pl *PositionLedger) Loan(id uint64) (*Loan, bool) {
	l, ok := pl.loans[id]
	if !ok {
		return nil, false
	}
	return l.clone(), true
}

// LoansOf returns the ids of user's loans that still carry debt.
func (pl *PositionLedger) LoansOf(user uuid.UUID) []uint64 {
	s, ok := pl.openLoans[user]
	if !ok {
		return nil
	}
	ids := s.Items()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// LoanDebt is the loan's principal plus interest as of now. It does not
// persist the accrual.
func (pl *PositionLedger) LoanDebt(id uint64, now int64) (*uint256.Int, error) {
	l, err := pl.activeLoan("loan debt", id)
	if err != nil {
		return nil, err
	}
	return l.debtAt(now, pl.params.RatePerSecond)
}

// PositionDebt sums the debt views of every open loan of user.
func (pl *PositionLedger) PositionDebt(user uuid.UUID, now int64) (*uint256.Int, error) {
	total := math.Zero()
	for _, id := range pl.LoansOf(user) {
		d, err := pl.loans[id].debtAt(now, pl.params.RatePerSecond)
		if err != nil {
			return nil, err
		}
		if total, err = math.Add(total, d); err != nil {
			return nil, err
		}
	}
	return total, nil
}

// PositionLTV is the user's aggregate debt over collateral value.
func (pl *PositionLedger) PositionLTV(user uuid.UUID, now int64) (*uint256.Int, error) {
	debt, err := pl.PositionDebt(user, now)
	if err != nil {
		return nil, err
	}
	if debt.IsZero() {
		return math.Zero(), nil
	}
	value, err := pl.CollateralValue(user)
	if err != nil {
		return nil, err
	}
	return math.LTV(debt, value)
}

// LoanLTV evaluates the LTV of the position backing the loan. Collateral is
// shared across a borrower's loans, so every loan of a borrower reports the
// same figure.
func (pl *PositionLedger) LoanLTV(id uint64, now int64) (*uint256.Int, error) {
	l, err := pl.activeLoan("loan ltv", id)
	if err != nil {
		return nil, err
	}
	return pl.PositionLTV(l.Borrower, now)
}

// LoanHealth is the health factor of the loan's position.
func (pl *PositionLedger) LoanHealth(id uint64, now int64) (*uint256.Int, error) {
	ltv, err := pl.LoanLTV(id, now)
	if err != nil {
		return nil, err
	}
	return math.HealthFactor(ltv, pl.params.LiquidationThresholdBps)
}
