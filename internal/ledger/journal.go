package ledger

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// JournalType represents the purpose of a journal entry
type JournalType int32

const (
	JournalTypeExternalCredit JournalType = iota
	JournalTypeExternalDebit
	JournalTypeCollateralDeposit
	JournalTypeCollateralWithdraw
	JournalTypeLoanDisburse
	JournalTypeLoanRepay
	JournalTypeCollateralSeize
	JournalTypeBidEscrow
	JournalTypeBidRefund
	JournalTypeAuctionRelease
	JournalTypeAuctionProceeds
	JournalTypeAuctionSurplus
	JournalTypeFundDeposit
	JournalTypeFundFee
	JournalTypeFundWithdraw
	JournalTypeFundClaim
)

var journalTypeNames = [...]string{
	"ExternalCredit", "ExternalDebit", "CollateralDeposit", "CollateralWithdraw",
	"LoanDisburse", "LoanRepay", "CollateralSeize", "BidEscrow", "BidRefund",
	"AuctionRelease", "AuctionProceeds", "AuctionSurplus", "FundDeposit", "FundFee",
	"FundWithdraw", "FundClaim",
}

func (t JournalType) String() string {
	if t >= 0 && int(t) < len(journalTypeNames) {
		return journalTypeNames[t]
	}
	return "Unknown"
}

// Journal represents a single double-entry journal entry
type Journal struct {
	JournalID     uuid.UUID    // Unique identifier
	BatchID       uuid.UUID    // Groups entries applied together
	EventRef      string       // Idempotency key of the originating command
	Sequence      int64        // Global sequence, stamped by the processor
	DebitAccount  AccountKey   // Account receiving debit (balance increases)
	CreditAccount AccountKey   // Account receiving credit (balance decreases)
	Asset         string       // Asset being transferred
	Amount        *uint256.Int // Always positive
	JournalType   JournalType  // Entry type
	Timestamp     int64        // Engine time (unix seconds)
}

// Batch is an ordered set of journal entries applied all-or-nothing.
type Batch struct {
	BatchID   uuid.UUID
	EventRef  string
	Sequence  int64
	Timestamp int64
	Journals  []Journal
}

// Validate ensures the batch is well-formed. Each entry moves one positive
// amount from credit to debit, so debits equal credits per entry.
func (b *Batch) Validate() error {
	if len(b.Journals) == 0 {
		return fmt.Errorf("batch %s is empty", b.BatchID)
	}

	for _, j := range b.Journals {
		if j.Amount == nil || j.Amount.IsZero() {
			return fmt.Errorf("journal %s has non-positive amount", j.JournalID)
		}
		if j.BatchID != b.BatchID {
			return fmt.Errorf("journal %s has mismatched batch_id", j.JournalID)
		}
		if j.DebitAccount == j.CreditAccount {
			return fmt.Errorf("journal %s has same debit and credit account", j.JournalID)
		}
		if j.DebitAccount.Asset != j.Asset || j.CreditAccount.Asset != j.Asset {
			return fmt.Errorf("journal %s mixes assets", j.JournalID)
		}
	}

	return nil
}
