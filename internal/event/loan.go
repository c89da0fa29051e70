package event

import (
	"strconv"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

func loanSubject(id uint64) string { return "loan:" + strconv.FormatUint(id, 10) }

type LoanOpened struct {
	LoanID    uint64       `json:"loan_id"`
	Borrower  uuid.UUID    `json:"borrower"`
	Principal *uint256.Int `json:"principal"`
	LTVBps    uint64       `json:"ltv_bps"`
	CreatedAt int64        `json:"created_at"`
}

func (l *LoanOpened) EventType() EventType { return EventTypeLoanOpened }
func (l *LoanOpened) Subject() string      { return loanSubject(l.LoanID) }

// LoanRepaid carries the split of the repayment and what is left owing.
type LoanRepaid struct {
	LoanID             uint64       `json:"loan_id"`
	Borrower           uuid.UUID    `json:"borrower"`
	Amount             *uint256.Int `json:"amount"`
	InterestPaid       *uint256.Int `json:"interest_paid"`
	PrincipalPaid      *uint256.Int `json:"principal_paid"`
	RemainingPrincipal *uint256.Int `json:"remaining_principal"`
	RemainingInterest  *uint256.Int `json:"remaining_interest"`
	Closed             bool         `json:"closed"`
}

func (l *LoanRepaid) EventType() EventType { return EventTypeLoanRepaid }
func (l *LoanRepaid) Subject() string      { return loanSubject(l.LoanID) }
