package core

import (
	"GoldLedger/internal/ledger"
	"GoldLedger/internal/math"

	"github.com/holiman/uint256"
)

// Reconcile checks that every engine-held ledger account holds exactly what
// the owning component records: custody against deposits, escrow against
// active auctions, fund accounts against fund balances.
func (e *Engine) Reconcile(v *ledger.InvariantValidator) error {
	for _, asset := range e.positions.CollateralAssets() {
		cfg, _ := e.positions.CollateralConfig(asset)
		if err := v.ValidateHolds(ledger.Custody(asset), cfg.TotalDeposits); err != nil {
			return err
		}
	}

	escrow := make(map[string]*uint256.Int)
	add := func(asset string, amount *uint256.Int) {
		if cur, ok := escrow[asset]; ok {
			escrow[asset] = new(uint256.Int).Add(cur, amount)
			return
		}
		escrow[asset] = amount.Clone()
	}
	add(e.debtAsset, math.Zero())
	for _, asset := range e.positions.CollateralAssets() {
		add(asset, math.Zero())
	}
	for _, id := range e.auctions.Active() {
		a, _ := e.auctions.Auction(id)
		add(a.Asset, a.Amount)
		add(e.debtAsset, a.HighestBid)
	}
	for asset, amount := range escrow {
		if err := v.ValidateHolds(ledger.AuctionEscrow(asset), amount); err != nil {
			return err
		}
	}

	for _, asset := range e.fund.Assets() {
		if err := v.ValidateHolds(ledger.InsuranceFund(asset), e.fund.Balance(asset).Balance); err != nil {
			return err
		}
	}
	return v.ValidateInternalNonNegative()
}
