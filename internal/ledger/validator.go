package ledger

import (
	"fmt"

	"github.com/holiman/uint256"
)

// InvariantValidator checks ledger invariants
type InvariantValidator struct {
	tracker *BalanceTracker
}

func NewInvariantValidator(tracker *BalanceTracker) *InvariantValidator {
	return &InvariantValidator{
		tracker: tracker,
	}
}

// ValidateBatchBalance verifies batch is well-formed
func (v *InvariantValidator) ValidateBatchBalance(batch *Batch) error {
	return batch.Validate()
}

// ValidateGlobalBalance verifies the ledger is zero-sum per asset.
func (v *InvariantValidator) ValidateGlobalBalance() error {
	for asset, total := range v.tracker.ComputeGlobalBalance() {
		if total.Sign() != 0 {
			return fmt.Errorf("global balance for %s is non-zero: %s", asset, total)
		}
	}
	return nil
}

// ValidateInternalNonNegative checks that no user or system account is
// overdrawn.
func (v *InvariantValidator) ValidateInternalNonNegative() error {
	for _, key := range v.tracker.Keys() {
		if key.MayGoNegative() {
			continue
		}
		if err := v.tracker.ValidateNonNegative(key); err != nil {
			return err
		}
	}
	return nil
}

// ValidateHolds checks that an engine account holds exactly the amount the
// owning component believes it holds.
func (v *InvariantValidator) ValidateHolds(key AccountKey, expected *uint256.Int) error {
	got := v.tracker.GetBalance(key)
	if got.Cmp(expected.ToBig()) != 0 {
		return fmt.Errorf("account %s holds %s, components expect %s", key.AccountPath(), got, expected.Dec())
	}
	return nil
}
