package core

import (
	"GoldLedger/internal/errs"
	"GoldLedger/internal/event"
	"GoldLedger/internal/ledger"
	"GoldLedger/internal/state"

	"github.com/holiman/uint256"
)

// Transfers is the asset-transfer capability. Execute applies every leg of
// the batch in order or none of them.
type Transfers interface {
	Execute(batch *ledger.Batch) error
	Balance(key ledger.AccountKey) *uint256.Int
}

// tx is one atomic engine operation: component writes are recorded as undo
// steps, transfers run after the writes, and any failure unwinds everything.
type tx struct {
	undos   []state.Undo
	events  []event.Event
	batches []*ledger.Batch
}

func (t *tx) undo(u state.Undo) {
	if u != nil {
		t.undos = append(t.undos, u)
	}
}

func (t *tx) emit(evts ...event.Event) {
	t.events = append(t.events, evts...)
}

// transfer executes batch. An empty batch is a no-op.
func (t *tx) transfer(bank Transfers, op string, batch *ledger.Batch) error {
	if batch.Empty() {
		return nil
	}
	if err := bank.Execute(batch); err != nil {
		return errs.Wrap(errs.KindValidation, op, err)
	}
	t.batches = append(t.batches, batch)
	return nil
}

func (t *tx) rollback() {
	for i := len(t.undos) - 1; i >= 0; i-- {
		t.undos[i]()
	}
	t.undos = nil
}
