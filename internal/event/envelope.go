package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypePriceAccepted
	EventTypePriceRejected
	EventTypeFeedAdded
	EventTypeFeedRemoved
	EventTypeCollateralConfigured
	EventTypeCollateralDeposited
	EventTypeCollateralWithdrawn
	EventTypeLoanOpened
	EventTypeLoanRepaid
	EventTypeLiquidationStarted
	EventTypeAuctionStarted
	EventTypeAuctionBid
	EventTypeAuctionSettled
	EventTypeAuctionCancelled
	EventTypeFundDeposited
	EventTypeFundWithdrawn
	EventTypeClaimPaid
	EventTypeFeeCollected
	EventTypeRiskParamsUpdated
	EventTypeRoleGranted
	EventTypeRoleRevoked
	EventTypePaused
	EventTypeUnpaused
	EventTypeWalletCredited
	EventTypeWalletDebited
)

// EventEnvelope wraps every event in the log
type EventEnvelope struct {
	// Global monotonic sequence assigned by the processor
	Sequence int64

	EnvelopeID uuid.UUID

	// Idempotency key of the command that produced the event
	IdempotencyKey string

	CommandType string

	EventType EventType

	// Entity the event is about, e.g. "loan:7" or "asset:PAXG"
	Subject string

	// Engine clock time of the command (NOT the persistence wall-clock)
	Timestamp time.Time

	// JSON-encoded event
	Payload []byte

	// SHA-256 chain: hash of (prev, sequence, payload)
	StateHash [32]byte
	PrevHash  [32]byte

	// Decoded event; not persisted
	Event Event
}

// Event is the interface all event payloads must implement
type Event interface {
	// EventType returns the discriminator
	EventType() EventType

	// Subject names the entity the event is about
	Subject() string
}

func (et EventType) String() string {
	switch et {
	case EventTypePriceAccepted:
		return "PriceAccepted"
	case EventTypePriceRejected:
		return "PriceRejected"
	case EventTypeFeedAdded:
		return "FeedAdded"
	case EventTypeFeedRemoved:
		return "FeedRemoved"
	case EventTypeCollateralConfigured:
		return "CollateralConfigured"
	case EventTypeCollateralDeposited:
		return "CollateralDeposited"
	case EventTypeCollateralWithdrawn:
		return "CollateralWithdrawn"
	case EventTypeLoanOpened:
		return "LoanOpened"
	case EventTypeLoanRepaid:
		return "LoanRepaid"
	case EventTypeLiquidationStarted:
		return "LiquidationStarted"
	case EventTypeAuctionStarted:
		return "AuctionStarted"
	case EventTypeAuctionBid:
		return "AuctionBid"
	case EventTypeAuctionSettled:
		return "AuctionSettled"
	case EventTypeAuctionCancelled:
		return "AuctionCancelled"
	case EventTypeFundDeposited:
		return "FundDeposited"
	case EventTypeFundWithdrawn:
		return "FundWithdrawn"
	case EventTypeClaimPaid:
		return "ClaimPaid"
	case EventTypeFeeCollected:
		return "FeeCollected"
	case EventTypeRiskParamsUpdated:
		return "RiskParamsUpdated"
	case EventTypeRoleGranted:
		return "RoleGranted"
	case EventTypeRoleRevoked:
		return "RoleRevoked"
	case EventTypePaused:
		return "Paused"
	case EventTypeUnpaused:
		return "Unpaused"
	case EventTypeWalletCredited:
		return "WalletCredited"
	case EventTypeWalletDebited:
		return "WalletDebited"
	default:
		return "Unknown"
	}
}

// ParseEventType is the inverse of EventType.String.
func ParseEventType(s string) EventType {
	for et := EventTypePriceAccepted; et <= EventTypeWalletDebited; et++ {
		if et.String() == s {
			return et
		}
	}
	return EventTypeUnknown
}

// Encode serializes an event payload.
func Encode(evt Event) ([]byte, error) {
	return json.Marshal(evt)
}

// Decode is the inverse of Encode for a known event type.
func Decode(et EventType, payload []byte) (Event, error) {
	evt := newEvent(et)
	if evt == nil {
		return nil, fmt.Errorf("decode event: unknown type %d", et)
	}
	if err := json.Unmarshal(payload, evt); err != nil {
		return nil, fmt.Errorf("decode %s: %w", et, err)
	}
	return evt, nil
}

func newEvent(et EventType) Event {
	switch et {
	case EventTypePriceAccepted:
		return &PriceAccepted{}
	case EventTypePriceRejected:
		return &PriceRejected{}
	case EventTypeFeedAdded:
		return &FeedAdded{}
	case EventTypeFeedRemoved:
		return &FeedRemoved{}
	case EventTypeCollateralConfigured:
		return &CollateralConfigured{}
	case EventTypeCollateralDeposited:
		return &CollateralDeposited{}
	case EventTypeCollateralWithdrawn:
		return &CollateralWithdrawn{}
	case EventTypeLoanOpened:
		return &LoanOpened{}
	case EventTypeLoanRepaid:
		return &LoanRepaid{}
	case EventTypeLiquidationStarted:
		return &LiquidationStarted{}
	case EventTypeAuctionStarted:
		return &AuctionStarted{}
	case EventTypeAuctionBid:
		return &AuctionBid{}
	case EventTypeAuctionSettled:
		return &AuctionSettled{}
	case EventTypeAuctionCancelled:
		return &AuctionCancelled{}
	case EventTypeFundDeposited:
		return &FundDeposited{}
	case EventTypeFundWithdrawn:
		return &FundWithdrawn{}
	case EventTypeClaimPaid:
		return &ClaimPaid{}
	case EventTypeFeeCollected:
		return &FeeCollected{}
	case EventTypeRiskParamsUpdated:
		return &RiskParamsUpdated{}
	case EventTypeRoleGranted:
		return &RoleGranted{}
	case EventTypeRoleRevoked:
		return &RoleRevoked{}
	case EventTypePaused:
		return &Paused{}
	case EventTypeUnpaused:
		return &Unpaused{}
	case EventTypeWalletCredited:
		return &WalletCredited{}
	case EventTypeWalletDebited:
		return &WalletDebited{}
	default:
		return nil
	}
}
