package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// ErrInsufficientBalance is returned when a leg would overdraw a user or
// system account.
var ErrInsufficientBalance = errors.New("ledger: insufficient balance")

// BalanceTracker maintains in-memory account balances. Balances are signed so
// external accounts can carry the negative side of issuance.
type BalanceTracker struct {
	balances map[AccountKey]*big.Int
}

func NewBalanceTracker() *BalanceTracker {
	return &BalanceTracker{
		balances: make(map[AccountKey]*big.Int),
	}
}

func (bt *BalanceTracker) get(key AccountKey) *big.Int {
	if b, ok := bt.balances[key]; ok {
		return b
	}
	return new(big.Int)
}

// ApplyBatch validates the batch, checks every leg in order against the
// running balances, then commits. Nothing is applied when any leg fails.
func (bt *BalanceTracker) ApplyBatch(batch *Batch) error {
	if err := batch.Validate(); err != nil {
		return fmt.Errorf("invalid batch: %w", err)
	}

	scratch := make(map[AccountKey]*big.Int)
	running := func(key AccountKey) *big.Int {
		if b, ok := scratch[key]; ok {
			return b
		}
		b := new(big.Int).Set(bt.get(key))
		scratch[key] = b
		return b
	}

	for _, j := range batch.Journals {
		amount := j.Amount.ToBig()
		from := running(j.CreditAccount)
		from.Sub(from, amount)
		if from.Sign() < 0 && !j.CreditAccount.MayGoNegative() {
			return fmt.Errorf("%w: %s short by %s %s",
				ErrInsufficientBalance, j.CreditAccount.AccountPath(), new(big.Int).Neg(from), j.Asset)
		}
		to := running(j.DebitAccount)
		to.Add(to, amount)
	}

	for key, b := range scratch {
		bt.balances[key] = b
	}
	return nil
}

// GetBalance returns the signed balance of an account.
func (bt *BalanceTracker) GetBalance(key AccountKey) *big.Int {
	return new(big.Int).Set(bt.get(key))
}

// Available returns the balance of a user or system account. Negative
// (external) balances read as zero.
func (bt *BalanceTracker) Available(key AccountKey) *uint256.Int {
	b := bt.get(key)
	if b.Sign() <= 0 {
		return new(uint256.Int)
	}
	v, _ := uint256.FromBig(b)
	return v
}

// WalletBalance is Available for a user's wallet.
func (bt *BalanceTracker) WalletBalance(userID uuid.UUID, asset string) *uint256.Int {
	return bt.Available(Wallet(userID, asset))
}

// ComputeGlobalBalance sums all account balances per asset (zero for a
// zero-sum ledger).
func (bt *BalanceTracker) ComputeGlobalBalance() map[string]*big.Int {
	totals := make(map[string]*big.Int)
	for key, balance := range bt.balances {
		t, ok := totals[key.Asset]
		if !ok {
			t = new(big.Int)
			totals[key.Asset] = t
		}
		t.Add(t, balance)
	}
	return totals
}

// ValidateNonNegative checks that a specific account balance is >= 0
func (bt *BalanceTracker) ValidateNonNegative(key AccountKey) error {
	if bt.get(key).Sign() < 0 {
		return fmt.Errorf("account %s has negative balance: %s", key.AccountPath(), bt.get(key))
	}
	return nil
}

// Keys returns every tracked account in path order.
func (bt *BalanceTracker) Keys() []AccountKey {
	keys := make([]AccountKey, 0, len(bt.balances))
	for k := range bt.balances {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].AccountPath() < keys[j].AccountPath() })
	return keys
}

// BalanceSnapshot is one account balance in a persisted snapshot.
type BalanceSnapshot struct {
	Scope    AccountScope   `json:"scope"`
	EntityID uuid.UUID      `json:"entity_id"`
	SubType  AccountSubType `json:"sub_type"`
	Asset    string         `json:"asset"`
	Balance  string         `json:"balance"`
}

// Snapshot returns all non-zero balances in path order.
func (bt *BalanceTracker) Snapshot() []BalanceSnapshot {
	out := make([]BalanceSnapshot, 0, len(bt.balances))
	for _, k := range bt.Keys() {
		b := bt.balances[k]
		if b.Sign() == 0 {
			continue
		}
		out = append(out, BalanceSnapshot{
			Scope:    k.Scope,
			EntityID: uuid.UUID(k.EntityID),
			SubType:  k.SubType,
			Asset:    k.Asset,
			Balance:  b.String(),
		})
	}
	return out
}

// Restore replaces all balances with snaps.
func (bt *BalanceTracker) Restore(snaps []BalanceSnapshot) error {
	balances := make(map[AccountKey]*big.Int, len(snaps))
	for _, s := range snaps {
		b, ok := new(big.Int).SetString(s.Balance, 10)
		if !ok {
			return fmt.Errorf("restore %s:%s: invalid balance %q", s.SubType, s.Asset, s.Balance)
		}
		key := AccountKey{Scope: s.Scope, EntityID: s.EntityID, SubType: s.SubType, Asset: s.Asset}
		balances[key] = b
	}
	bt.balances = balances
	return nil
}
