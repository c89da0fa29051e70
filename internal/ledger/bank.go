package ledger

import (
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// SettlementHook observes each journal after its batch has been committed.
// It runs synchronously and may call back into the engine, the way a token
// transfer callback would.
type SettlementHook func(Journal)

// Bank is the in-process asset-transfer capability. Batches are applied
// all-or-nothing in leg order.
type Bank struct {
	tracker *BalanceTracker
	hook    SettlementHook
}

func NewBank(tracker *BalanceTracker) *Bank {
	if tracker == nil {
		tracker = NewBalanceTracker()
	}
	return &Bank{tracker: tracker}
}

// SetHook installs a post-settlement hook. Pass nil to remove it.
func (b *Bank) SetHook(h SettlementHook) { b.hook = h }

// Execute applies batch. On error nothing has moved.
func (b *Bank) Execute(batch *Batch) error {
	if err := b.tracker.ApplyBatch(batch); err != nil {
		return err
	}
	if b.hook != nil {
		for _, j := range batch.Journals {
			b.hook(j)
		}
	}
	return nil
}

// Balance returns the spendable balance of a user or system account.
func (b *Bank) Balance(key AccountKey) *uint256.Int {
	return b.tracker.Available(key)
}

// WalletBalance returns a user's spendable balance of asset.
func (b *Bank) WalletBalance(userID uuid.UUID, asset string) *uint256.Int {
	return b.tracker.WalletBalance(userID, asset)
}

// Tracker exposes the underlying balances for validation and snapshots.
func (b *Bank) Tracker() *BalanceTracker { return b.tracker }

// Snapshot returns every non-zero balance.
func (b *Bank) Snapshot() []BalanceSnapshot { return b.tracker.Snapshot() }

// Restore replaces all balances.
func (b *Bank) Restore(snaps []BalanceSnapshot) error { return b.tracker.Restore(snaps) }
