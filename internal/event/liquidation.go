package event

import (
	"strconv"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

func auctionSubject(id uint64) string { return "auction:" + strconv.FormatUint(id, 10) }

// SeizedLot is one collateral lot handed to the auction engine.
type SeizedLot struct {
	AuctionID      uint64       `json:"auction_id"`
	Asset          string       `json:"asset"`
	Amount         *uint256.Int `json:"amount"`
	AppraisedValue *uint256.Int `json:"appraised_value"`
	DebtShare      *uint256.Int `json:"debt_share"`
}

// LiquidationStarted is emitted once per loan.
type LiquidationStarted struct {
	LoanID     uint64       `json:"loan_id"`
	Borrower   uuid.UUID    `json:"borrower"`
	Liquidator uuid.UUID    `json:"liquidator"`
	Debt       *uint256.Int `json:"debt"`
	LTVBps     string       `json:"ltv_bps"` // "max" when collateral value is zero
	Lots       []SeizedLot  `json:"lots"`
}

func (l *LiquidationStarted) EventType() EventType { return EventTypeLiquidationStarted }
func (l *LiquidationStarted) Subject() string      { return loanSubject(l.LoanID) }

type AuctionStarted struct {
	AuctionID          uint64       `json:"auction_id"`
	LoanID             uint64       `json:"loan_id"`
	Borrower           uuid.UUID    `json:"borrower"`
	Asset              string       `json:"asset"`
	Amount             *uint256.Int `json:"amount"`
	DebtShare          *uint256.Int `json:"debt_share"`
	StartingPrice      *uint256.Int `json:"starting_price"`
	DecayRatePerSecond *uint256.Int `json:"decay_rate_per_second"`
	StartTime          int64        `json:"start_time"`
	Duration           int64        `json:"duration"`
}

func (a *AuctionStarted) EventType() EventType { return EventTypeAuctionStarted }
func (a *AuctionStarted) Subject() string      { return auctionSubject(a.AuctionID) }

// AuctionBid records an accepted bid. RefundedBidder is uuid.Nil for the
// first bid.
type AuctionBid struct {
	AuctionID      uint64       `json:"auction_id"`
	Bidder         uuid.UUID    `json:"bidder"`
	Amount         *uint256.Int `json:"amount"`
	RefundedBidder uuid.UUID    `json:"refunded_bidder"`
	RefundAmount   *uint256.Int `json:"refund_amount"`
}

func (a *AuctionBid) EventType() EventType { return EventTypeAuctionBid }
func (a *AuctionBid) Subject() string      { return auctionSubject(a.AuctionID) }

// AuctionSettled records how the winning bid was distributed. Uncovered is the
// part of the shortfall the insurance fund could not pay.
type AuctionSettled struct {
	AuctionID  uint64       `json:"auction_id"`
	LoanID     uint64       `json:"loan_id"`
	Winner     uuid.UUID    `json:"winner"`
	Asset      string       `json:"asset"`
	Amount     *uint256.Int `json:"amount"`
	Proceeds   *uint256.Int `json:"proceeds"`
	Fee        *uint256.Int `json:"fee"`
	DebtRepaid *uint256.Int `json:"debt_repaid"`
	Surplus    *uint256.Int `json:"surplus"`
	Shortfall  *uint256.Int `json:"shortfall"`
	ClaimPaid  *uint256.Int `json:"claim_paid"`
	Uncovered  *uint256.Int `json:"uncovered"`
}

func (a *AuctionSettled) EventType() EventType { return EventTypeAuctionSettled }
func (a *AuctionSettled) Subject() string      { return auctionSubject(a.AuctionID) }

// AuctionCancelled moves the lot to the insurance fund.
type AuctionCancelled struct {
	AuctionID      uint64       `json:"auction_id"`
	Asset          string       `json:"asset"`
	Amount         *uint256.Int `json:"amount"`
	RefundedBidder uuid.UUID    `json:"refunded_bidder"`
	RefundAmount   *uint256.Int `json:"refund_amount"`
}

func (a *AuctionCancelled) EventType() EventType { return EventTypeAuctionCancelled }
func (a *AuctionCancelled) Subject() string      { return auctionSubject(a.AuctionID) }
