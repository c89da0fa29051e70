package state

import (
	"sort"

	"GoldLedger/internal/errs"
	"GoldLedger/internal/math"

	"github.com/holiman/uint256"
)

const (
	DefaultFeeRateBps     = 200
	DefaultMinCoverageBps = 15_000
)

// FundBalance is the insurance fund's position in one asset.
type FundBalance struct {
	Asset              string       `json:"asset"`
	Balance            *uint256.Int `json:"balance"`
	TotalClaimsPaid    *uint256.Int `json:"total_claims_paid"`
	TotalFeesCollected *uint256.Int `json:"total_fees_collected"`
}

func newFundBalance(asset string) *FundBalance {
	return &FundBalance{Asset: asset, Balance: math.Zero(), TotalClaimsPaid: math.Zero(), TotalFeesCollected: math.Zero()}
}

func (f *FundBalance) clone() *FundBalance {
	return &FundBalance{
		Asset:              f.Asset,
		Balance:            f.Balance.Clone(),
		TotalClaimsPaid:    f.TotalClaimsPaid.Clone(),
		TotalFeesCollected: f.TotalFeesCollected.Clone(),
	}
}

type FundParams struct {
	FeeRateBps     uint64
	MinCoverageBps uint64
}

func DefaultFundParams() FundParams {
	return FundParams{FeeRateBps: DefaultFeeRateBps, MinCoverageBps: DefaultMinCoverageBps}
}

func ValidateFundParams(p FundParams) error {
	if p.FeeRateBps > math.BasisPoints {
		return errs.Validation("fund params", "fee rate %d bps exceeds %d", p.FeeRateBps, math.BasisPoints)
	}
	if p.MinCoverageBps == 0 {
		return errs.Validation("fund params", "min coverage must be positive")
	}
	return nil
}

// InsuranceFund holds reserves that absorb auction shortfalls. Only Withdraw
// and PayClaim decrease a balance and both keep
// balance × 10000 / (claims + 1) at or above the minimum coverage.
type InsuranceFund struct {
	params   FundParams
	balances map[string]*FundBalance
}

func NewInsuranceFund(params FundParams) (*InsuranceFund, error) {
	if err := ValidateFundParams(params); err != nil {
		return nil, err
	}
	return &InsuranceFund{params: params, balances: make(map[string]*FundBalance)}, nil
}

func (f *InsuranceFund) Params() FundParams {
	return f.params
}

func (f *InsuranceFund) get(asset string) *FundBalance {
	b, ok := f.balances[asset]
	if !ok {
		b = newFundBalance(asset)
		f.balances[asset] = b
	}
	return b
}

// save returns an Undo that puts back the asset's balance as it is now. It
// must run before get creates the entry, or undo keeps an empty record.
func (f *InsuranceFund) save(asset string) Undo {
	prev, existed := f.balances[asset]
	if existed {
		prev = prev.clone()
	}
	return func() {
		if existed {
			f.balances[asset] = prev
		} else {
			delete(f.balances, asset)
		}
	}
}

// Balance returns the fund's position in asset.
func (f *InsuranceFund) Balance(asset string) FundBalance {
	if b, ok := f.balances[asset]; ok {
		return *b.clone()
	}
	return *newFundBalance(asset)
}

// Assets lists assets the fund has touched, in name order.
func (f *InsuranceFund) Assets() []string {
	out := make([]string, 0, len(f.balances))
	for a := range f.balances {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

func (f *InsuranceFund) Deposit(asset string, amount *uint256.Int) (Undo, error) {
	if amount == nil || amount.IsZero() {
		return nil, errs.Validation("fund deposit", "amount must be positive")
	}
	next, err := math.Add(f.Balance(asset).Balance, amount)
	if err != nil {
		return nil, err
	}
	undo := f.save(asset)
	f.get(asset).Balance = next
	return undo, nil
}

// FeeOn is the protocol fee skimmed from amount.
func (f *InsuranceFund) FeeOn(amount *uint256.Int) (*uint256.Int, error) {
	return math.ApplyBps(amount, f.params.FeeRateBps)
}

// CollectFee credits the fee on amount and returns it. A fee that rounds to
// zero is not an error.
func (f *InsuranceFund) CollectFee(asset string, amount *uint256.Int) (*uint256.Int, Undo, error) {
	if amount == nil || amount.IsZero() {
		return nil, nil, errs.Validation("collect fee", "amount must be positive")
	}
	fee, err := f.FeeOn(amount)
	if err != nil {
		return nil, nil, err
	}
	if fee.IsZero() {
		return fee, noUndo, nil
	}
	cur := f.Balance(asset)
	balance, err := math.Add(cur.Balance, fee)
	if err != nil {
		return nil, nil, err
	}
	fees, err := math.Add(cur.TotalFeesCollected, fee)
	if err != nil {
		return nil, nil, err
	}
	undo := f.save(asset)
	b := f.get(asset)
	b.Balance = balance
	b.TotalFeesCollected = fees
	return fee, undo, nil
}

// covered reports (balance − amount) × 10000 ≥ minCoverage × (claims + 1),
// the division-free form of the coverage ratio check.
func (f *InsuranceFund) covered(balance, amount, claims *uint256.Int) (bool, error) {
	remaining, err := math.Sub(balance, amount)
	if err != nil {
		return false, nil
	}
	lhs, err := math.Mul(remaining, uint256.NewInt(math.BasisPoints))
	if err != nil {
		return false, err
	}
	denom, err := math.Add(claims, uint256.NewInt(1))
	if err != nil {
		return false, err
	}
	rhs, err := math.Mul(denom, uint256.NewInt(f.params.MinCoverageBps))
	if err != nil {
		return false, err
	}
	return !lhs.Lt(rhs), nil
}

// Withdraw is scored against the claims paid so far.
func (f *InsuranceFund) Withdraw(asset string, amount *uint256.Int) (Undo, error) {
	const op = "fund withdraw"
	if amount == nil || amount.IsZero() {
		return nil, errs.Validation(op, "amount must be positive")
	}
	b := f.Balance(asset)
	if amount.Gt(b.Balance) {
		return nil, errs.Coverage(op, "amount %s exceeds fund balance %s", math.FormatUnits(amount), math.FormatUnits(b.Balance))
	}
	ok, err := f.covered(b.Balance, amount, b.TotalClaimsPaid)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.Coverage(op, "withdrawing %s would breach %d bps coverage", math.FormatUnits(amount), f.params.MinCoverageBps)
	}
	undo := f.save(asset)
	f.balances[asset].Balance = new(uint256.Int).Sub(b.Balance, amount)
	return undo, nil
}

// PayClaim is scored against the claims total including amount.
func (f *InsuranceFund) PayClaim(asset string, amount *uint256.Int) (Undo, error) {
	const op = "pay claim"
	if amount == nil || amount.IsZero() {
		return nil, errs.Validation(op, "amount must be positive")
	}
	b := f.Balance(asset)
	if amount.Gt(b.Balance) {
		return nil, errs.Coverage(op, "claim %s exceeds fund balance %s", math.FormatUnits(amount), math.FormatUnits(b.Balance))
	}
	claims, err := math.Add(b.TotalClaimsPaid, amount)
	if err != nil {
		return nil, err
	}
	ok, err := f.covered(b.Balance, amount, claims)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.Coverage(op, "claim %s would breach %d bps coverage", math.FormatUnits(amount), f.params.MinCoverageBps)
	}
	undo := f.save(asset)
	fb := f.balances[asset]
	fb.Balance = new(uint256.Int).Sub(b.Balance, amount)
	fb.TotalClaimsPaid = claims
	return undo, nil
}

// Claimable is the largest claim PayClaim would accept:
// floor((10000·b − minCoverage·(c + 1)) / (10000 + minCoverage)).
func (f *InsuranceFund) Claimable(asset string) (*uint256.Int, error) {
	b := f.Balance(asset)
	lhs, err := math.Mul(b.Balance, uint256.NewInt(math.BasisPoints))
	if err != nil {
		return nil, err
	}
	denom, err := math.Add(b.TotalClaimsPaid, uint256.NewInt(1))
	if err != nil {
		return nil, err
	}
	reserved, err := math.Mul(denom, uint256.NewInt(f.params.MinCoverageBps))
	if err != nil {
		return nil, err
	}
	if !lhs.Gt(reserved) {
		return math.Zero(), nil
	}
	return math.Div(new(uint256.Int).Sub(lhs, reserved), uint256.NewInt(math.BasisPoints+f.params.MinCoverageBps))
}

// CoverageSufficient reports whether the asset's current ratio meets the
// minimum.
func (f *InsuranceFund) CoverageSufficient(asset string) (bool, error) {
	b := f.Balance(asset)
	return f.covered(b.Balance, math.Zero(), b.TotalClaimsPaid)
}
