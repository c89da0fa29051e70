package event

import (
	"time"

	"github.com/holiman/uint256"
)

// PriceAccepted is emitted when a refresh passes every guard. Feed is an
// asset or the unit-of-account feed name.
type PriceAccepted struct {
	Feed      string       `json:"feed"`
	Price     *uint256.Int `json:"price"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func (p *PriceAccepted) EventType() EventType { return EventTypePriceAccepted }
func (p *PriceAccepted) Subject() string      { return "feed:" + p.Feed }

// PriceRejected records a soft oracle failure. The cached price is unchanged.
type PriceRejected struct {
	Feed   string `json:"feed"`
	Reason string `json:"reason"`
}

func (p *PriceRejected) EventType() EventType { return EventTypePriceRejected }
func (p *PriceRejected) Subject() string      { return "feed:" + p.Feed }

type FeedAdded struct {
	Feed                  string `json:"feed"`
	DeviationThresholdBps uint64 `json:"deviation_threshold_bps"`
	StalenessSeconds      int64  `json:"staleness_seconds"`
	HeartbeatSeconds      int64  `json:"heartbeat_seconds"`
}

func (f *FeedAdded) EventType() EventType { return EventTypeFeedAdded }
func (f *FeedAdded) Subject() string      { return "feed:" + f.Feed }

type FeedRemoved struct {
	Feed string `json:"feed"`
}

func (f *FeedRemoved) EventType() EventType { return EventTypeFeedRemoved }
func (f *FeedRemoved) Subject() string      { return "feed:" + f.Feed }
