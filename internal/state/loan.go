package state

import (
	"GoldLedger/internal/math"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// LoanState is derived from a loan's fields.
type LoanState int32

const (
	LoanStateOpen LoanState = iota
	LoanStateRepaid
	LoanStateLiquidated
)

func (s LoanState) String() string {
	switch s {
	case LoanStateOpen:
		return "Open"
	case LoanStateRepaid:
		return "Repaid"
	case LoanStateLiquidated:
		return "Liquidated"
	default:
		return "Unknown"
	}
}

// CanTransitionTo validates state transitions. Repaid and Liquidated are
// terminal.
func (s LoanState) CanTransitionTo(next LoanState) bool {
	validTransitions := map[LoanState][]LoanState{
		LoanStateOpen: {
			LoanStateOpen,
			LoanStateRepaid,
			LoanStateLiquidated,
		},
	}

	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Loan is an ozt-denominated borrowing against a user's collateral.
type Loan struct {
	ID              uint64       `json:"id"`
	Borrower        uuid.UUID    `json:"borrower"`
	Principal       *uint256.Int `json:"principal"`
	InterestAccrued *uint256.Int `json:"interest_accrued"`
	CreatedAt       int64        `json:"created_at"`
	LastAccrualTime int64        `json:"last_accrual_time"`
	Liquidated      bool         `json:"liquidated"`
	LiquidatedAt    int64        `json:"liquidated_at,omitempty"`
}

func (l *Loan) State() LoanState {
	switch {
	case l.Liquidated:
		return LoanStateLiquidated
	case l.Principal.IsZero() && l.InterestAccrued.IsZero():
		return LoanStateRepaid
	default:
		return LoanStateOpen
	}
}

func (l *Loan) clone() *Loan {
	c := *l
	c.Principal = l.Principal.Clone()
	c.InterestAccrued = l.InterestAccrued.Clone()
	return &c
}

// restore copies every field of saved back into l.
func (l *Loan) restore(saved *Loan) {
	*l = *saved.clone()
}

func elapsedSince(from, now int64) uint64 {
	if now <= from {
		return 0
	}
	return uint64(now - from)
}

// interestAt returns the interest accrued as of now without persisting it.
func (l *Loan) interestAt(now int64, ratePerSecond *uint256.Int) (*uint256.Int, error) {
	pending, err := math.Interest(l.Principal, ratePerSecond, elapsedSince(l.LastAccrualTime, now))
	if err != nil {
		return nil, err
	}
	return math.Add(l.InterestAccrued, pending)
}

// debtAt is principal plus interestAt.
func (l *Loan) debtAt(now int64, ratePerSecond *uint256.Int) (*uint256.Int, error) {
	interest, err := l.interestAt(now, ratePerSecond)
	if err != nil {
		return nil, err
	}
	return math.Add(l.Principal, interest)
}

// accrue rolls interest forward to now and persists it. A clock that moved
// backwards accrues nothing and leaves LastAccrualTime alone.
func (l *Loan) accrue(now int64, ratePerSecond *uint256.Int) error {
	interest, err := l.interestAt(now, ratePerSecond)
	if err != nil {
		return err
	}
	l.InterestAccrued = interest
	if now > l.LastAccrualTime {
		l.LastAccrualTime = now
	}
	return nil
}
