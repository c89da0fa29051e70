package event

import (
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// Fund events carry the fund balance after the change.

type FundDeposited struct {
	Asset   string       `json:"asset"`
	From    uuid.UUID    `json:"from"`
	Amount  *uint256.Int `json:"amount"`
	Balance *uint256.Int `json:"balance"`
}

func (f *FundDeposited) EventType() EventType { return EventTypeFundDeposited }
func (f *FundDeposited) Subject() string      { return "fund:" + f.Asset }

type FundWithdrawn struct {
	Asset   string       `json:"asset"`
	To      uuid.UUID    `json:"to"`
	Amount  *uint256.Int `json:"amount"`
	Balance *uint256.Int `json:"balance"`
}

func (f *FundWithdrawn) EventType() EventType { return EventTypeFundWithdrawn }
func (f *FundWithdrawn) Subject() string      { return "fund:" + f.Asset }

type ClaimPaid struct {
	Asset           string       `json:"asset"`
	To              uuid.UUID    `json:"to"` // uuid.Nil for auction shortfalls
	Amount          *uint256.Int `json:"amount"`
	Balance         *uint256.Int `json:"balance"`
	TotalClaimsPaid *uint256.Int `json:"total_claims_paid"`
}

func (c *ClaimPaid) EventType() EventType { return EventTypeClaimPaid }
func (c *ClaimPaid) Subject() string      { return "fund:" + c.Asset }

type FeeCollected struct {
	Asset   string       `json:"asset"`
	From    uuid.UUID    `json:"from"`
	Base    *uint256.Int `json:"base"`
	Fee     *uint256.Int `json:"fee"`
	Balance *uint256.Int `json:"balance"`
}

func (f *FeeCollected) EventType() EventType { return EventTypeFeeCollected }
func (f *FeeCollected) Subject() string      { return "fund:" + f.Asset }
