package event

import (
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

type CollateralConfigured struct {
	Asset       string       `json:"asset"`
	Enabled     bool         `json:"enabled"`
	HaircutBps  uint64       `json:"haircut_bps"`
	DebtCeiling *uint256.Int `json:"debt_ceiling"`
}

func (c *CollateralConfigured) EventType() EventType { return EventTypeCollateralConfigured }
func (c *CollateralConfigured) Subject() string      { return "asset:" + c.Asset }

// CollateralDeposited carries the balance after the deposit.
type CollateralDeposited struct {
	User    uuid.UUID    `json:"user"`
	Asset   string       `json:"asset"`
	Amount  *uint256.Int `json:"amount"`
	Balance *uint256.Int `json:"balance"`
}

func (c *CollateralDeposited) EventType() EventType { return EventTypeCollateralDeposited }
func (c *CollateralDeposited) Subject() string      { return "user:" + c.User.String() }

type CollateralWithdrawn struct {
	User    uuid.UUID    `json:"user"`
	Asset   string       `json:"asset"`
	Amount  *uint256.Int `json:"amount"`
	Balance *uint256.Int `json:"balance"`
}

func (c *CollateralWithdrawn) EventType() EventType { return EventTypeCollateralWithdrawn }
func (c *CollateralWithdrawn) Subject() string      { return "user:" + c.User.String() }
