package event

import (
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// WalletCredited records funds entering a wallet from outside the ledger.
type WalletCredited struct {
	User    uuid.UUID    `json:"user"`
	Asset   string       `json:"asset"`
	Amount  *uint256.Int `json:"amount"`
	Balance *uint256.Int `json:"balance"`
}

func (w *WalletCredited) EventType() EventType { return EventTypeWalletCredited }
func (w *WalletCredited) Subject() string      { return "wallet:" + w.User.String() }

type WalletDebited struct {
	User    uuid.UUID    `json:"user"`
	Asset   string       `json:"asset"`
	Amount  *uint256.Int `json:"amount"`
	Balance *uint256.Int `json:"balance"`
}

func (w *WalletDebited) EventType() EventType { return EventTypeWalletDebited }
func (w *WalletDebited) Subject() string      { return "wallet:" + w.User.String() }
