package ledger

import (
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// NewBatch starts an empty batch for the operation identified by eventRef.
func NewBatch(eventRef string, timestamp int64) *Batch {
	return &Batch{
		BatchID:   uuid.New(),
		EventRef:  eventRef,
		Timestamp: timestamp,
	}
}

// Move appends a transfer of amount from → to. Zero amounts are skipped so
// callers can add optional legs unconditionally.
func (b *Batch) Move(journalType JournalType, from, to AccountKey, amount *uint256.Int) *Batch {
	if amount == nil || amount.IsZero() {
		return b
	}
	b.Journals = append(b.Journals, Journal{
		JournalID:     uuid.New(),
		BatchID:       b.BatchID,
		EventRef:      b.EventRef,
		Sequence:      b.Sequence,
		DebitAccount:  to,
		CreditAccount: from,
		Asset:         to.Asset,
		Amount:        amount.Clone(),
		JournalType:   journalType,
		Timestamp:     b.Timestamp,
	})
	return b
}

// Empty reports whether the batch has no legs.
func (b *Batch) Empty() bool { return len(b.Journals) == 0 }

// Stamp sets the global sequence on the batch and its entries.
func (b *Batch) Stamp(sequence int64) {
	b.Sequence = sequence
	for i := range b.Journals {
		b.Journals[i].Sequence = sequence
	}
}
