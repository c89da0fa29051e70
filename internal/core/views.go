package core

import (
	"GoldLedger/internal/errs"
	"GoldLedger/internal/ledger"
	"GoldLedger/internal/oracle"
	"GoldLedger/internal/state"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// Views read state as of the engine clock and never write.

// Price returns the cached price of asset, or of the unit feed when asset is
// oracle.UnitFeed.
func (e *Engine) Price(asset string) oracle.Result {
	return e.oracle.Read(asset)
}

// Feeds lists the configured assets.
func (e *Engine) Feeds() []string { return e.oracle.Supported() }

// FeedConfig returns the guards of a configured feed.
func (e *Engine) FeedConfig(feed string) (oracle.FeedConfig, bool) {
	return e.oracle.Config(feed)
}

func (e *Engine) RiskParams() state.RiskParams { return e.positions.Params() }

func (e *Engine) CollateralConfig(asset string) (state.CollateralConfig, bool) {
	return e.positions.CollateralConfig(asset)
}

// Collateral is user's credited balance of asset.
func (e *Engine) Collateral(user uuid.UUID, asset string) *uint256.Int {
	return e.positions.Balance(user, asset)
}

// WalletBalance is user's spendable ledger balance of asset.
func (e *Engine) WalletBalance(user uuid.UUID, asset string) *uint256.Int {
	return e.bank.Balance(ledger.Wallet(user, asset))
}

// AccountBalance is the balance of any non-boundary account.
func (e *Engine) AccountBalance(key ledger.AccountKey) *uint256.Int {
	return e.bank.Balance(key)
}

// Position is a borrower's aggregate view.
type Position struct {
	User            uuid.UUID
	Collateral      map[string]*uint256.Int
	CollateralValue *uint256.Int
	Debt            *uint256.Int
	LTVBps          *uint256.Int
	Loans           []uint64
}

func (e *Engine) Position(user uuid.UUID) (*Position, error) {
	now := e.clock.Now().Unix()
	debt, err := e.positions.PositionDebt(user, now)
	if err != nil {
		return nil, err
	}
	value, err := e.positions.CollateralValue(user)
	if err != nil {
		return nil, err
	}
	ltv, err := e.positions.PositionLTV(user, now)
	if err != nil {
		return nil, err
	}
	return &Position{
		User:            user,
		Collateral:      e.positions.Balances(user),
		CollateralValue: value,
		Debt:            debt,
		LTVBps:          ltv,
		Loans:           e.positions.LoansOf(user),
	}, nil
}

// LoanView is a loan with its live risk figures. Debt, LTV and health are nil
// once the loan is no longer open.
type LoanView struct {
	Loan   *state.Loan
	State  state.LoanState
	Debt   *uint256.Int
	LTVBps *uint256.Int
	Health *uint256.Int
}

func (e *Engine) Loan(id uint64) (*LoanView, error) {
	l, ok := e.positions.Loan(id)
	if !ok {
		return nil, errs.Validation("loan", "unknown loan %d", id)
	}
	v := &LoanView{Loan: l, State: l.State()}
	if v.State != state.LoanStateOpen {
		return v, nil
	}
	now := e.clock.Now().Unix()
	var err error
	if v.Debt, err = e.positions.LoanDebt(id, now); err != nil {
		return nil, err
	}
	if v.LTVBps, err = e.positions.LoanLTV(id, now); err != nil {
		return nil, err
	}
	if v.Health, err = e.positions.LoanHealth(id, now); err != nil {
		return nil, err
	}
	return v, nil
}

// LoansOf lists user's open loans.
func (e *Engine) LoansOf(user uuid.UUID) []uint64 { return e.positions.LoansOf(user) }

// AuctionView is an auction with its asking figures. CurrentPrice and
// MinNextBid are nil once the auction is terminal.
type AuctionView struct {
	Auction      *state.Auction
	State        state.AuctionState
	CurrentPrice *uint256.Int
	MinNextBid   *uint256.Int
}

func (e *Engine) Auction(id uint64) (*AuctionView, error) {
	a, ok := e.auctions.Auction(id)
	if !ok {
		return nil, errs.Validation("auction", "unknown auction %d", id)
	}
	v := &AuctionView{Auction: a, State: a.State()}
	if !v.State.Active() {
		return v, nil
	}
	now := e.clock.Now().Unix()
	var err error
	if v.CurrentPrice, err = e.auctions.CurrentPrice(id, now); err != nil {
		return nil, err
	}
	if v.MinNextBid, err = e.auctions.MinNextBid(id, now); err != nil {
		return nil, err
	}
	return v, nil
}

// ActiveAuctions lists auctions that are neither settled nor cancelled.
func (e *Engine) ActiveAuctions() []uint64 { return e.auctions.Active() }

// AuctionsOf lists the auctions opened for a loan.
func (e *Engine) AuctionsOf(loanID uint64) []uint64 { return e.auctions.ByLoan(loanID) }

// FundView is a fund balance with its coverage figures.
type FundView struct {
	state.FundBalance
	Claimable          *uint256.Int
	CoverageSufficient bool
}

func (e *Engine) Fund(asset string) (*FundView, error) {
	claimable, err := e.fund.Claimable(asset)
	if err != nil {
		return nil, err
	}
	ok, err := e.fund.CoverageSufficient(asset)
	if err != nil {
		return nil, err
	}
	return &FundView{FundBalance: e.fund.Balance(asset), Claimable: claimable, CoverageSufficient: ok}, nil
}

// FundAssets lists assets the fund has held.
func (e *Engine) FundAssets() []string { return e.fund.Assets() }
