package query

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Amounts are human decimals (1.5 means 1.5 OZT), rendered as JSON strings.

// LoanResponse is a loan read live from the engine.
type LoanResponse struct {
	LoanID          uint64           `json:"loan_id"`
	Borrower        uuid.UUID        `json:"borrower"`
	State           string           `json:"state"`
	Principal       decimal.Decimal  `json:"principal"`
	InterestAccrued decimal.Decimal  `json:"interest_accrued"`
	Debt            *decimal.Decimal `json:"debt,omitempty"`
	LTVBps          string           `json:"ltv_bps,omitempty"`
	Health          *decimal.Decimal `json:"health,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	AsOfSequence    int64            `json:"as_of_sequence"`
}

// PositionResponse is a borrower's aggregate view.
type PositionResponse struct {
	User            uuid.UUID                  `json:"user"`
	Collateral      map[string]decimal.Decimal `json:"collateral"`
	CollateralValue decimal.Decimal            `json:"collateral_value"`
	Debt            decimal.Decimal            `json:"debt"`
	LTVBps          string                     `json:"ltv_bps"`
	Loans           []uint64                   `json:"loans"`
	AsOfSequence    int64                      `json:"as_of_sequence"`
}

// AuctionResponse is an auction read live from the engine. CurrentPrice and
// MinNextBid are omitted once the auction is terminal.
type AuctionResponse struct {
	AuctionID     uint64           `json:"auction_id"`
	LoanID        uint64           `json:"loan_id"`
	Asset         string           `json:"asset"`
	Lot           decimal.Decimal  `json:"lot"`
	Debt          decimal.Decimal  `json:"debt"`
	StartingPrice decimal.Decimal  `json:"starting_price"`
	StartTime     time.Time        `json:"start_time"`
	Duration      time.Duration    `json:"duration"`
	State         string           `json:"state"`
	HighestBid    decimal.Decimal  `json:"highest_bid"`
	HighestBidder *uuid.UUID       `json:"highest_bidder,omitempty"`
	CurrentPrice  *decimal.Decimal `json:"current_price,omitempty"`
	MinNextBid    *decimal.Decimal `json:"min_next_bid,omitempty"`
	AsOfSequence  int64            `json:"as_of_sequence"`
}

// FundResponse is an insurance fund balance with its coverage figures.
type FundResponse struct {
	Asset              string          `json:"asset"`
	Balance            decimal.Decimal `json:"balance"`
	TotalClaimsPaid    decimal.Decimal `json:"total_claims_paid"`
	TotalFeesCollected decimal.Decimal `json:"total_fees_collected"`
	Claimable          decimal.Decimal `json:"claimable"`
	CoverageSufficient bool            `json:"coverage_sufficient"`
	AsOfSequence       int64           `json:"as_of_sequence"`
}

// PriceResponse is the cached price of a feed. Valid is false when the
// engine would refuse to use it; Reason says why.
type PriceResponse struct {
	Feed         string           `json:"feed"`
	Price        *decimal.Decimal `json:"price,omitempty"`
	UpdatedAt    *time.Time       `json:"updated_at,omitempty"`
	Valid        bool             `json:"valid"`
	Reason       string           `json:"reason,omitempty"`
	AsOfSequence int64            `json:"as_of_sequence"`
}

// LoanSummary is a row of the loans projection.
type LoanSummary struct {
	LoanID       uint64          `json:"loan_id"`
	Borrower     uuid.UUID       `json:"borrower"`
	Principal    decimal.Decimal `json:"principal"`
	InterestPaid decimal.Decimal `json:"interest_paid"`
	State        string          `json:"state"`
	OpenedAt     time.Time       `json:"opened_at"`
	LastSequence int64           `json:"last_sequence"`
}

// AuctionSummary is a row of the auctions projection.
type AuctionSummary struct {
	AuctionID     uint64          `json:"auction_id"`
	LoanID        uint64          `json:"loan_id"`
	Asset         string          `json:"asset"`
	Lot           decimal.Decimal `json:"lot"`
	HighestBid    decimal.Decimal `json:"highest_bid"`
	HighestBidder *uuid.UUID      `json:"highest_bidder,omitempty"`
	State         string          `json:"state"`
	StartedAt     time.Time       `json:"started_at"`
}

// JournalHistoryEntry is one ledger move touching a user account.
type JournalHistoryEntry struct {
	MoveID        uuid.UUID       `json:"move_id"`
	BatchID       uuid.UUID       `json:"batch_id"`
	EventRef      string          `json:"event_ref"`
	Sequence      int64           `json:"sequence"`
	DebitAccount  string          `json:"debit_account"`
	CreditAccount string          `json:"credit_account"`
	Asset         string          `json:"asset"`
	Amount        decimal.Decimal `json:"amount"`
	JournalType   string          `json:"journal_type"`
	Timestamp     time.Time       `json:"timestamp"`
}

// Page bounds a list query. After is an exclusive cursor; zero starts from
// the newest row.
type Page struct {
	Limit int
	After int64
}

const (
	defaultLimit = 50
	maxLimit     = 500
)

func (p Page) limit() int {
	switch {
	case p.Limit <= 0:
		return defaultLimit
	case p.Limit > maxLimit:
		return maxLimit
	}
	return p.Limit
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy       bool    `json:"is_healthy"`
	CheckedThrough  int64   `json:"checked_through"`
	HashChainBreaks []int64 `json:"hash_chain_breaks,omitempty"`
	SequenceGaps    []int64 `json:"sequence_gaps,omitempty"`
	ProjectionLag   int64   `json:"projection_lag"`
	LiveSequence    int64   `json:"live_sequence"`
}
