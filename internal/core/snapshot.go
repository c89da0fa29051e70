package core

import (
	"GoldLedger/internal/access"
	"GoldLedger/internal/errs"
	"GoldLedger/internal/ledger"
	"GoldLedger/internal/oracle"
	"GoldLedger/internal/state"

	"github.com/google/uuid"
)

// BalanceStore is a Transfers capability whose balances can be snapshotted.
type BalanceStore interface {
	Snapshot() []ledger.BalanceSnapshot
	Restore(snaps []ledger.BalanceSnapshot) error
}

// Snapshot is the serializable state of an engine, feed configuration
// included. Price sources are resolved by feed name on Restore.
type Snapshot struct {
	Sequence  int64                    `json:"sequence"`
	StateHash [32]byte                 `json:"state_hash"`
	Positions state.PositionSnapshot   `json:"positions"`
	Auctions  state.AuctionSnapshot    `json:"auctions"`
	Fund      state.FundSnapshot       `json:"fund"`
	Prices    []oracle.FeedSnapshot    `json:"prices"`
	Balances  []ledger.BalanceSnapshot `json:"balances,omitempty"`
	Roles     map[string][]uuid.UUID   `json:"roles"`
	Paused    bool                     `json:"paused"`
}

var allRoles = []access.Role{access.RoleAdmin, access.RoleManager, access.RoleKeeper, access.RolePauser}

// Snapshot captures the engine. Sequence and StateHash are filled in by the
// processor.
func (e *Engine) Snapshot() Snapshot {
	snap := Snapshot{
		Positions: e.positions.Snapshot(),
		Auctions:  e.auctions.Snapshot(),
		Fund:      e.fund.Snapshot(),
		Prices:    e.oracle.Snapshot(),
		Roles:     make(map[string][]uuid.UUID),
		Paused:    e.pause.IsPaused(),
	}
	if bs, ok := e.bank.(BalanceStore); ok {
		snap.Balances = bs.Snapshot()
	}
	for _, r := range allRoles {
		snap.Roles[r.String()] = e.roles.Members(r)
	}
	return snap
}

// Restore replaces the engine state with snap. Every component is rebuilt
// aside and swapped in only once all of them, and the bank, have loaded. On
// error the engine is unchanged.
func (e *Engine) Restore(snap Snapshot) error {
	const op = "restore snapshot"
	prices := oracle.New()
	if err := prices.Restore(snap.Prices, e.sources); err != nil {
		return err
	}
	positions, err := state.NewPositionLedger(e.positions.Params(), prices)
	if err != nil {
		return err
	}
	if err := positions.Restore(snap.Positions); err != nil {
		return err
	}
	auctions, err := state.NewAuctionEngine(e.auctions.Params())
	if err != nil {
		return err
	}
	if err := auctions.Restore(snap.Auctions); err != nil {
		return err
	}
	fund, err := state.NewInsuranceFund(e.fund.Params())
	if err != nil {
		return err
	}
	if err := fund.Restore(snap.Fund); err != nil {
		return err
	}

	roles := access.NewRoleSet()
	for name, members := range snap.Roles {
		r, err := access.ParseRole(name)
		if err != nil {
			return err
		}
		for _, m := range members {
			if err := roles.Grant(r, m); err != nil {
				return err
			}
		}
	}
	pause := &access.Switch{}
	if snap.Paused {
		if err := pause.Pause(); err != nil {
			return err
		}
	}

	// The bank is the one write outside the engine; it restores atomically.
	if bs, ok := e.bank.(BalanceStore); ok {
		if err := bs.Restore(snap.Balances); err != nil {
			return errs.Wrap(errs.KindValidation, op, err)
		}
	}
	e.oracle = prices
	e.positions = positions
	e.auctions = auctions
	e.fund = fund
	e.roles = roles
	e.pause = pause
	return nil
}
