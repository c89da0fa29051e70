package state

import (
	"sort"

	"GoldLedger/internal/errs"
	"GoldLedger/internal/index"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// CollateralBalance is one (user, asset) balance in a snapshot.
type CollateralBalance struct {
	User   uuid.UUID    `json:"user"`
	Asset  string       `json:"asset"`
	Amount *uint256.Int `json:"amount"`
}

// PositionSnapshot is the serializable state of a PositionLedger.
type PositionSnapshot struct {
	Params     RiskParams          `json:"params"`
	Collateral []CollateralConfig  `json:"collateral"`
	Balances   []CollateralBalance `json:"balances"`
	Loans      []Loan              `json:"loans"`
	NextLoanID uint64              `json:"next_loan_id"`
}

// Snapshot is sorted so equal ledgers serialize identically.
func (pl *PositionLedger) Snapshot() PositionSnapshot {
	snap := PositionSnapshot{Params: pl.Params(), NextLoanID: pl.nextLoanID}
	for _, a := range pl.CollateralAssets() {
		snap.Collateral = append(snap.Collateral, pl.collateral[a].clone())
	}
	for user, m := range pl.balances {
		for asset, amount := range m {
			snap.Balances = append(snap.Balances, CollateralBalance{User: user, Asset: asset, Amount: amount.Clone()})
		}
	}
	sort.Slice(snap.Balances, func(i, j int) bool {
		bi, bj := snap.Balances[i], snap.Balances[j]
		if bi.User != bj.User {
			return bi.User.String() < bj.User.String()
		}
		return bi.Asset < bj.Asset
	})
	ids := make([]uint64, 0, len(pl.loans))
	for id := range pl.loans {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		snap.Loans = append(snap.Loans, *pl.loans[id].clone())
	}
	return snap
}

// Restore replaces the ledger's state with snap.
func (pl *PositionLedger) Restore(snap PositionSnapshot) error {
	if err := ValidateRiskParams(snap.Params); err != nil {
		return err
	}
	collateral := make(map[string]*CollateralConfig, len(snap.Collateral))
	for _, c := range snap.Collateral {
		cfg := c.clone()
		collateral[c.Asset] = &cfg
	}
	balances := make(map[uuid.UUID]map[string]*uint256.Int)
	for _, b := range snap.Balances {
		if _, ok := collateral[b.Asset]; !ok {
			return errs.Validation("restore positions", "balance in unconfigured asset %s", b.Asset)
		}
		if b.Amount == nil || b.Amount.IsZero() {
			continue
		}
		m, ok := balances[b.User]
		if !ok {
			m = make(map[string]*uint256.Int)
			balances[b.User] = m
		}
		m[b.Asset] = b.Amount.Clone()
	}
	loans := make(map[uint64]*Loan, len(snap.Loans))
	open := make(map[uuid.UUID]*index.Set[uint64])
	for i := range snap.Loans {
		l := snap.Loans[i].clone()
		if l.ID == 0 || l.ID >= snap.NextLoanID {
			return errs.Validation("restore positions", "loan id %d outside [1, %d)", l.ID, snap.NextLoanID)
		}
		loans[l.ID] = l
		if l.State() == LoanStateOpen {
			s, ok := open[l.Borrower]
			if !ok {
				s = index.NewSet[uint64]()
				open[l.Borrower] = s
			}
			s.Add(l.ID)
		}
	}

	pl.params = snap.Params
	pl.params.RatePerSecond = snap.Params.RatePerSecond.Clone()
	pl.collateral = collateral
	pl.balances = balances
	pl.loans = loans
	pl.openLoans = open
	pl.nextLoanID = snap.NextLoanID
	return nil
}

// AuctionSnapshot is the serializable state of an AuctionEngine.
type AuctionSnapshot struct {
	Auctions []Auction `json:"auctions"`
	NextID   uint64    `json:"next_id"`
}

func (ae *AuctionEngine) Snapshot() AuctionSnapshot {
	snap := AuctionSnapshot{NextID: ae.nextID}
	ids := make([]uint64, 0, len(ae.auctions))
	for id := range ae.auctions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		snap.Auctions = append(snap.Auctions, *ae.auctions[id].clone())
	}
	return snap
}

func (ae *AuctionEngine) Restore(snap AuctionSnapshot) error {
	auctions := make(map[uint64]*Auction, len(snap.Auctions))
	active := index.NewSet[uint64]()
	for i := range snap.Auctions {
		a := snap.Auctions[i].clone()
		if a.ID == 0 || a.ID >= snap.NextID {
			return errs.Validation("restore auctions", "auction id %d outside [1, %d)", a.ID, snap.NextID)
		}
		if a.Settled && a.Cancelled {
			return errs.Validation("restore auctions", "auction %d is both settled and cancelled", a.ID)
		}
		auctions[a.ID] = a
		if a.State().Active() {
			active.Add(a.ID)
		}
	}
	ae.auctions = auctions
	ae.active = active
	ae.nextID = snap.NextID
	return nil
}

// FundSnapshot is the serializable state of an InsuranceFund.
type FundSnapshot struct {
	Balances []FundBalance `json:"balances"`
}

func (f *InsuranceFund) Snapshot() FundSnapshot {
	var snap FundSnapshot
	for _, a := range f.Assets() {
		snap.Balances = append(snap.Balances, *f.balances[a].clone())
	}
	return snap
}

func (f *InsuranceFund) Restore(snap FundSnapshot) error {
	balances := make(map[string]*FundBalance, len(snap.Balances))
	for i := range snap.Balances {
		b := &snap.Balances[i]
		if b.Balance == nil || b.TotalClaimsPaid == nil || b.TotalFeesCollected == nil {
			return errs.Validation("restore fund", "%s has missing fields", b.Asset)
		}
		balances[b.Asset] = b.clone()
	}
	f.balances = balances
	return nil
}
