package state

import (
	"sort"

	"GoldLedger/internal/errs"
	"GoldLedger/internal/index"
	"GoldLedger/internal/math"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

const (
	DefaultAuctionDuration    = 86_400
	DefaultMinBidIncrementBps = 100
)

// AuctionState is derived from an auction's fields.
type AuctionState int32

const (
	AuctionStateActiveNoBids AuctionState = iota
	AuctionStateActiveBidded
	AuctionStateSettled
	AuctionStateCancelled
)

func (s AuctionState) String() string {
	switch s {
	case AuctionStateActiveNoBids:
		return "ActiveNoBids"
	case AuctionStateActiveBidded:
		return "ActiveBidded"
	case AuctionStateSettled:
		return "Settled"
	case AuctionStateCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

func (s AuctionState) Active() bool {
	return s == AuctionStateActiveNoBids || s == AuctionStateActiveBidded
}

// CanTransitionTo validates state transitions. Settled and Cancelled are
// terminal and mutually exclusive.
func (s AuctionState) CanTransitionTo(next AuctionState) bool {
	validTransitions := map[AuctionState][]AuctionState{
		AuctionStateActiveNoBids: {
			AuctionStateActiveBidded,
			AuctionStateCancelled,
		},
		AuctionStateActiveBidded: {
			AuctionStateActiveBidded, // outbid
			AuctionStateSettled,
			AuctionStateCancelled,
		},
	}

	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Auction sells one seized collateral lot for ozt.
type Auction struct {
	ID                 uint64       `json:"id"`
	LoanID             uint64       `json:"loan_id"`
	Borrower           uuid.UUID    `json:"borrower"`
	Asset              string       `json:"asset"`
	Amount             *uint256.Int `json:"amount"`
	DebtShare          *uint256.Int `json:"debt_share"`
	StartingPrice      *uint256.Int `json:"starting_price"`
	DecayRatePerSecond *uint256.Int `json:"decay_rate_per_second"`
	StartTime          int64        `json:"start_time"`
	Duration           int64        `json:"duration"`
	HighestBidder      uuid.UUID    `json:"highest_bidder"`
	HighestBid         *uint256.Int `json:"highest_bid"`
	Settled            bool         `json:"settled"`
	Cancelled          bool         `json:"cancelled"`
}

func (a *Auction) State() AuctionState {
	switch {
	case a.Settled:
		return AuctionStateSettled
	case a.Cancelled:
		return AuctionStateCancelled
	case a.HighestBid.IsZero():
		return AuctionStateActiveNoBids
	default:
		return AuctionStateActiveBidded
	}
}

// Expired reports whether the bidding window has closed at now.
func (a *Auction) Expired(now int64) bool {
	return elapsedSince(a.StartTime, now) >= uint64(a.Duration)
}

// PriceAt is the time-decayed asking price. Once bid, the price is the
// highest bid.
func (a *Auction) PriceAt(now int64) (*uint256.Int, error) {
	if !a.HighestBid.IsZero() {
		return a.HighestBid.Clone(), nil
	}
	return math.AuctionPrice(a.StartingPrice, a.DecayRatePerSecond, elapsedSince(a.StartTime, now), uint64(a.Duration))
}

func (a *Auction) clone() *Auction {
	c := *a
	c.Amount = a.Amount.Clone()
	c.DebtShare = a.DebtShare.Clone()
	c.StartingPrice = a.StartingPrice.Clone()
	c.DecayRatePerSecond = a.DecayRatePerSecond.Clone()
	c.HighestBid = a.HighestBid.Clone()
	return &c
}

func (a *Auction) restore(saved *Auction) {
	*a = *saved.clone()
}

// AuctionParams configures new auctions. Running auctions keep the values
// they started with.
type AuctionParams struct {
	Duration           int64
	DecayRatePerSecond *uint256.Int
	MinBidIncrementBps uint64
}

// DefaultAuctionParams decays the starting price to zero over one duration.
func DefaultAuctionParams() AuctionParams {
	return AuctionParams{
		Duration:           DefaultAuctionDuration,
		DecayRatePerSecond: new(uint256.Int).Div(math.Scale, uint256.NewInt(DefaultAuctionDuration)),
		MinBidIncrementBps: DefaultMinBidIncrementBps,
	}
}

func ValidateAuctionParams(p AuctionParams) error {
	if p.Duration <= 0 {
		return errs.Validation("auction params", "duration must be positive")
	}
	if p.DecayRatePerSecond == nil {
		return errs.Validation("auction params", "decay rate is required")
	}
	if p.MinBidIncrementBps > math.BasisPoints {
		return errs.Validation("auction params", "min bid increment %d bps exceeds %d", p.MinBidIncrementBps, math.BasisPoints)
	}
	return nil
}

// AuctionEngine runs Dutch auctions over liquidated collateral.
type AuctionEngine struct {
	params   AuctionParams
	auctions map[uint64]*Auction
	active   *index.Set[uint64]
	nextID   uint64
}

func NewAuctionEngine(params AuctionParams) (*AuctionEngine, error) {
	if err := ValidateAuctionParams(params); err != nil {
		return nil, err
	}
	params.DecayRatePerSecond = params.DecayRatePerSecond.Clone()
	return &AuctionEngine{
		params:   params,
		auctions: make(map[uint64]*Auction),
		active:   index.NewSet[uint64](),
		nextID:   1,
	}, nil
}

func (ae *AuctionEngine) Params() AuctionParams {
	p := ae.params
	p.DecayRatePerSecond = ae.params.DecayRatePerSecond.Clone()
	return p
}

// Start opens one auction per seized lot. The seizure is consumed.
func (ae *AuctionEngine) Start(s *Seizure, now int64) ([]*Auction, Undo, error) {
	const op = "start auction"
	if s == nil || !s.issued {
		return nil, nil, errs.Unauthorized(op, "auctions start only from a liquidation")
	}
	if s.consumed {
		return nil, nil, errs.State(op, "seizure of loan %d already auctioned", s.LoanID)
	}

	firstID := ae.nextID
	started := make([]*Auction, 0, len(s.Lots))
	for _, lot := range s.Lots {
		a := &Auction{
			ID:                 ae.nextID,
			LoanID:             s.LoanID,
			Borrower:           s.Borrower,
			Asset:              lot.Asset,
			Amount:             lot.Amount.Clone(),
			DebtShare:          lot.DebtShare.Clone(),
			StartingPrice:      lot.AppraisedValue.Clone(),
			DecayRatePerSecond: ae.params.DecayRatePerSecond.Clone(),
			StartTime:          now,
			Duration:           ae.params.Duration,
			HighestBid:         math.Zero(),
		}
		ae.nextID++
		ae.auctions[a.ID] = a
		ae.active.Add(a.ID)
		started = append(started, a.clone())
	}
	s.consumed = true

	return started, func() {
		for id := firstID; id < ae.nextID; id++ {
			delete(ae.auctions, id)
			ae.active.Remove(id)
		}
		ae.nextID = firstID
		s.consumed = false
	}, nil
}

func (ae *AuctionEngine) lookup(op string, id uint64) (*Auction, error) {
	a, ok := ae.auctions[id]
	if !ok {
		return nil, errs.Validation(op, "unknown auction %d", id)
	}
	return a, nil
}

// Refund returns a displaced bid.
type Refund struct {
	Bidder uuid.UUID
	Amount *uint256.Int
}

// BidResult is an accepted bid and the bid it displaced, if any.
type BidResult struct {
	Auction *Auction
	Refund  *Refund
}

// MinNextBid is the smallest acceptable bid at now.
func (ae *AuctionEngine) MinNextBid(id uint64, now int64) (*uint256.Int, error) {
	a, err := ae.lookup("min next bid", id)
	if err != nil {
		return nil, err
	}
	return ae.minBid(a, now)
}

func (ae *AuctionEngine) minBid(a *Auction, now int64) (*uint256.Int, error) {
	if a.HighestBid.IsZero() {
		return a.PriceAt(now)
	}
	step, err := math.ApplyBpsUp(a.HighestBid, ae.params.MinBidIncrementBps)
	if err != nil {
		return nil, err
	}
	return math.Add(a.HighestBid, step)
}

// Bid records amount as the highest bid. The caller must refund the displaced
// bid before escrowing the new one.
func (ae *AuctionEngine) Bid(id uint64, bidder uuid.UUID, amount *uint256.Int, now int64) (*BidResult, Undo, error) {
	const op = "bid"
	a, err := ae.lookup(op, id)
	if err != nil {
		return nil, nil, err
	}
	if !a.State().CanTransitionTo(AuctionStateActiveBidded) {
		return nil, nil, errs.State(op, "auction %d is %s", id, a.State())
	}
	if a.Expired(now) {
		return nil, nil, errs.State(op, "auction %d bidding window has closed", id)
	}
	if bidder == uuid.Nil {
		return nil, nil, errs.Validation(op, "bidder is required")
	}
	if amount == nil || amount.IsZero() {
		return nil, nil, errs.Validation(op, "amount must be positive")
	}
	floor, err := ae.minBid(a, now)
	if err != nil {
		return nil, nil, err
	}
	if amount.Lt(floor) {
		return nil, nil, errs.Validation(op, "bid %s is below minimum %s", math.FormatUnits(amount), math.FormatUnits(floor))
	}

	saved := a.clone()
	var refund *Refund
	if !a.HighestBid.IsZero() {
		refund = &Refund{Bidder: a.HighestBidder, Amount: a.HighestBid.Clone()}
	}
	a.HighestBidder = bidder
	a.HighestBid = amount.Clone()

	return &BidResult{Auction: a.clone(), Refund: refund}, func() { a.restore(saved) }, nil
}

// Settle closes an expired auction with at least one bid.
func (ae *AuctionEngine) Settle(id uint64, now int64) (*Auction, Undo, error) {
	const op = "settle auction"
	a, err := ae.lookup(op, id)
	if err != nil {
		return nil, nil, err
	}
	if !a.State().CanTransitionTo(AuctionStateSettled) {
		if a.State() == AuctionStateActiveNoBids {
			return nil, nil, errs.State(op, "auction %d has no bids", id)
		}
		return nil, nil, errs.State(op, "auction %d is %s", id, a.State())
	}
	if !a.Expired(now) {
		return nil, nil, errs.State(op, "auction %d bidding window is still open", id)
	}

	a.Settled = true
	ae.active.Remove(id)
	return a.clone(), func() {
		a.Settled = false
		ae.active.Add(id)
	}, nil
}

// Cancel closes an active auction without a sale. A standing bid comes back
// as a refund.
func (ae *AuctionEngine) Cancel(id uint64) (*Auction, *Refund, Undo, error) {
	const op = "cancel auction"
	a, err := ae.lookup(op, id)
	if err != nil {
		return nil, nil, nil, err
	}
	if !a.State().CanTransitionTo(AuctionStateCancelled) {
		return nil, nil, nil, errs.State(op, "auction %d is %s", id, a.State())
	}

	var refund *Refund
	if !a.HighestBid.IsZero() {
		refund = &Refund{Bidder: a.HighestBidder, Amount: a.HighestBid.Clone()}
	}
	a.Cancelled = true
	ae.active.Remove(id)
	return a.clone(), refund, func() {
		a.Cancelled = false
		ae.active.Add(id)
	}, nil
}

// Auction returns a copy of any auction.
func (ae *AuctionEngine) Auction(id uint64) (*Auction, bool) {
	a, ok := ae.auctions[id]
	if !ok {
		return nil, false
	}
	return a.clone(), true
}

func (ae *AuctionEngine) Status(id uint64) (AuctionState, error) {
	a, err := ae.lookup("auction status", id)
	if err != nil {
		return 0, err
	}
	return a.State(), nil
}

// CurrentPrice is the asking price at now for an active auction.
func (ae *AuctionEngine) CurrentPrice(id uint64, now int64) (*uint256.Int, error) {
	a, err := ae.lookup("current price", id)
	if err != nil {
		return nil, err
	}
	if !a.State().Active() {
		return nil, errs.State("current price", "auction %d is %s", id, a.State())
	}
	return a.PriceAt(now)
}

// Active lists auctions that are neither settled nor cancelled. Callers must
// not rely on the order.
func (ae *AuctionEngine) Active() []uint64 {
	return ae.active.Items()
}

// ByLoan lists the auctions opened for a loan in id order.
func (ae *AuctionEngine) ByLoan(loanID uint64) []uint64 {
	var ids []uint64
	for id, a := range ae.auctions {
		if a.LoanID == loanID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
