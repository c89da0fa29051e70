package ledger_test

import (
	"errors"
	"testing"

	"GoldLedger/internal/ledger"
	"GoldLedger/internal/math"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// ============================================================================
// Test: AccountKey
// ============================================================================

func TestAccountKey_UserPath(t *testing.T) {
	userID := uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")
	key := ledger.Wallet(userID, "PAXG")

	path := key.AccountPath()
	expected := "user:550e8400-e29b-41d4-a716-446655440000:wallet:PAXG"
	if path != expected {
		t.Errorf("got %q, want %q", path, expected)
	}
}

func TestAccountKey_SystemPath(t *testing.T) {
	path := ledger.InsuranceFund("OZT").AccountPath()
	if path != "system:insurance_fund:OZT" {
		t.Errorf("got %q, want %q", path, "system:insurance_fund:OZT")
	}
}

func TestAccountKey_ExternalPath(t *testing.T) {
	key := ledger.Issuance("OZT")
	if key.AccountPath() != "external:issuance:OZT" {
		t.Errorf("got %q, want %q", key.AccountPath(), "external:issuance:OZT")
	}
	if !key.MayGoNegative() {
		t.Error("issuance must be allowed to go negative")
	}
	if ledger.Custody("OZT").MayGoNegative() {
		t.Error("custody must never go negative")
	}
}

// ============================================================================
// Test: BalanceTracker
// ============================================================================

func mustApply(t *testing.T, bt *ledger.BalanceTracker, b *ledger.Batch) {
	t.Helper()
	if err := bt.ApplyBatch(b); err != nil {
		t.Fatalf("apply batch: %v", err)
	}
}

func credit(userID uuid.UUID, asset string, units uint64) *ledger.Batch {
	return ledger.NewBatch("credit", 0).Move(ledger.JournalTypeExternalCredit,
		ledger.ExternalDeposits(asset), ledger.Wallet(userID, asset), math.Units(units))
}

func TestBalanceTracker_InitialBalanceZero(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	if b := bt.WalletBalance(uuid.New(), "PAXG"); !b.IsZero() {
		t.Errorf("initial balance should be 0, got %s", b.Dec())
	}
}

func TestBalanceTracker_ApplyBatch(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	userID := uuid.New()
	mustApply(t, bt, credit(userID, "PAXG", 10))

	if got := bt.WalletBalance(userID, "PAXG"); !got.Eq(math.Units(10)) {
		t.Errorf("wallet = %s, want %s", got.Dec(), math.Units(10).Dec())
	}
	if got := bt.GetBalance(ledger.ExternalDeposits("PAXG")); got.Sign() >= 0 {
		t.Errorf("external deposits should be negative, got %s", got)
	}
}

func TestBalanceTracker_GlobalBalanceZeroSum(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	u1, u2 := uuid.New(), uuid.New()
	mustApply(t, bt, credit(u1, "PAXG", 10))
	mustApply(t, bt, credit(u2, "OZT", 5))
	mustApply(t, bt, ledger.NewBatch("dep", 0).Move(ledger.JournalTypeCollateralDeposit,
		ledger.Wallet(u1, "PAXG"), ledger.Custody("PAXG"), math.Units(4)))

	if err := ledger.NewInvariantValidator(bt).ValidateGlobalBalance(); err != nil {
		t.Errorf("ledger should be zero-sum: %v", err)
	}
}

func TestBalanceTracker_OverdraftRejectedAtomically(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	userID := uuid.New()
	mustApply(t, bt, credit(userID, "PAXG", 10))

	b := ledger.NewBatch("two-legs", 0).
		Move(ledger.JournalTypeCollateralDeposit, ledger.Wallet(userID, "PAXG"), ledger.Custody("PAXG"), math.Units(6)).
		Move(ledger.JournalTypeCollateralDeposit, ledger.Wallet(userID, "PAXG"), ledger.Custody("PAXG"), math.Units(6))

	err := bt.ApplyBatch(b)
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("got %v, want ErrInsufficientBalance", err)
	}
	if got := bt.WalletBalance(userID, "PAXG"); !got.Eq(math.Units(10)) {
		t.Errorf("first leg must not be applied, wallet = %s", got.Dec())
	}
	if got := bt.Available(ledger.Custody("PAXG")); !got.IsZero() {
		t.Errorf("custody should be empty, got %s", got.Dec())
	}
}

// Legs are checked in order: a refund that lands before a debit can fund it.
func TestBalanceTracker_LegOrderMatters(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	bidder := uuid.New()
	mustApply(t, bt, credit(bidder, "OZT", 5))
	mustApply(t, bt, ledger.NewBatch("bid", 0).Move(ledger.JournalTypeBidEscrow,
		ledger.Wallet(bidder, "OZT"), ledger.AuctionEscrow("OZT"), math.Units(5)))

	outbid := ledger.NewBatch("rebid", 0).
		Move(ledger.JournalTypeBidRefund, ledger.AuctionEscrow("OZT"), ledger.Wallet(bidder, "OZT"), math.Units(5)).
		Move(ledger.JournalTypeBidEscrow, ledger.Wallet(bidder, "OZT"), ledger.AuctionEscrow("OZT"), math.Units(5))
	mustApply(t, bt, outbid)

	if got := bt.Available(ledger.AuctionEscrow("OZT")); !got.Eq(math.Units(5)) {
		t.Errorf("escrow = %s, want 5 units", got.Dec())
	}
}

func TestBalanceTracker_SnapshotRestore(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	userID := uuid.New()
	mustApply(t, bt, credit(userID, "PAXG", 3))

	snap := bt.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("snapshot has %d entries, want 2", len(snap))
	}

	restored := ledger.NewBalanceTracker()
	if err := restored.Restore(snap); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if got := restored.WalletBalance(userID, "PAXG"); !got.Eq(math.Units(3)) {
		t.Errorf("restored wallet = %s", got.Dec())
	}
}

// ============================================================================
// Test: Batch validation
// ============================================================================

func TestBatchValidate_EmptyBatch_Fails(t *testing.T) {
	b := ledger.NewBatch("empty", 0)
	if err := b.Validate(); err == nil {
		t.Error("empty batch should fail validation")
	}
}

func TestBatchMove_SkipsZeroAmount(t *testing.T) {
	b := ledger.NewBatch("zero", 0).Move(ledger.JournalTypeFundFee,
		ledger.Wallet(uuid.New(), "OZT"), ledger.InsuranceFund("OZT"), uint256.NewInt(0))
	if !b.Empty() {
		t.Error("zero legs should be skipped")
	}
}

func TestBatchValidate_SelfTransfer_Fails(t *testing.T) {
	key := ledger.Custody("PAXG")
	b := ledger.NewBatch("self", 0).Move(ledger.JournalTypeCollateralDeposit, key, key, math.Units(1))
	if err := b.Validate(); err == nil {
		t.Error("self-transfer should fail validation")
	}
}

func TestBatchValidate_MixedAssets_Fails(t *testing.T) {
	b := ledger.NewBatch("mixed", 0).Move(ledger.JournalTypeCollateralDeposit,
		ledger.Wallet(uuid.New(), "PAXG"), ledger.Custody("XAUT"), math.Units(1))
	if err := b.Validate(); err == nil {
		t.Error("mixed-asset journal should fail validation")
	}
}

func TestBatchStamp(t *testing.T) {
	b := credit(uuid.New(), "PAXG", 1)
	b.Stamp(42)
	if b.Sequence != 42 || b.Journals[0].Sequence != 42 {
		t.Errorf("stamp did not propagate: batch=%d journal=%d", b.Sequence, b.Journals[0].Sequence)
	}
}

// ============================================================================
// Test: Bank
// ============================================================================

func TestBank_HookRunsAfterCommit(t *testing.T) {
	bank := ledger.NewBank(nil)
	userID := uuid.New()

	var seen []ledger.JournalType
	bank.SetHook(func(j ledger.Journal) {
		// The batch is already visible when the hook runs.
		if bank.WalletBalance(userID, "OZT").IsZero() {
			t.Error("hook ran before commit")
		}
		seen = append(seen, j.JournalType)
	})

	if err := bank.Execute(credit(userID, "OZT", 1)); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(seen) != 1 || seen[0] != ledger.JournalTypeExternalCredit {
		t.Errorf("hook saw %v", seen)
	}
}

func TestInvariantValidator_ValidateHolds(t *testing.T) {
	bank := ledger.NewBank(nil)
	userID := uuid.New()
	_ = bank.Execute(credit(userID, "PAXG", 2))
	_ = bank.Execute(ledger.NewBatch("dep", 0).Move(ledger.JournalTypeCollateralDeposit,
		ledger.Wallet(userID, "PAXG"), ledger.Custody("PAXG"), math.Units(2)))

	v := ledger.NewInvariantValidator(bank.Tracker())
	if err := v.ValidateHolds(ledger.Custody("PAXG"), math.Units(2)); err != nil {
		t.Errorf("custody should hold 2 units: %v", err)
	}
	if err := v.ValidateHolds(ledger.Custody("PAXG"), math.Units(3)); err == nil {
		t.Error("mismatch should be reported")
	}
	if err := v.ValidateInternalNonNegative(); err != nil {
		t.Errorf("no internal account should be negative: %v", err)
	}
}
