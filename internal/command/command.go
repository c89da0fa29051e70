// Package command defines the operations accepted by the engine. Amounts are
// Scale-d fixed-point integers; the ingestion layer converts wire decimals.
package command

import (
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// Type discriminator for commands
type Type int32

const (
	TypeUnknown Type = iota
	TypeRefreshPrice
	TypeAddFeed
	TypeRemoveFeed
	TypeSetUnitFeed
	TypeSetHeartbeat
	TypeConfigureCollateral
	TypeSetRiskParams
	TypeCreditWallet
	TypeDebitWallet
	TypeDepositCollateral
	TypeWithdrawCollateral
	TypeOpenLoan
	TypeRepayLoan
	TypeLiquidateLoan
	TypePlaceBid
	TypeSettleAuction
	TypeCancelAuction
	TypeFundDeposit
	TypeFundWithdraw
	TypePayClaim
	TypeCollectFee
	TypeGrantRole
	TypeRevokeRole
	TypePause
	TypeUnpause
)

var typeNames = map[Type]string{
	TypeRefreshPrice:        "RefreshPrice",
	TypeAddFeed:             "AddFeed",
	TypeRemoveFeed:          "RemoveFeed",
	TypeSetUnitFeed:         "SetUnitFeed",
	TypeSetHeartbeat:        "SetHeartbeat",
	TypeConfigureCollateral: "ConfigureCollateral",
	TypeSetRiskParams:       "SetRiskParams",
	TypeCreditWallet:        "CreditWallet",
	TypeDebitWallet:         "DebitWallet",
	TypeDepositCollateral:   "DepositCollateral",
	TypeWithdrawCollateral:  "WithdrawCollateral",
	TypeOpenLoan:            "OpenLoan",
	TypeRepayLoan:           "RepayLoan",
	TypeLiquidateLoan:       "LiquidateLoan",
	TypePlaceBid:            "PlaceBid",
	TypeSettleAuction:       "SettleAuction",
	TypeCancelAuction:       "CancelAuction",
	TypeFundDeposit:         "FundDeposit",
	TypeFundWithdraw:        "FundWithdraw",
	TypePayClaim:            "PayClaim",
	TypeCollectFee:          "CollectFee",
	TypeGrantRole:           "GrantRole",
	TypeRevokeRole:          "RevokeRole",
	TypePause:               "Pause",
	TypeUnpause:             "Unpause",
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return "Unknown"
}

// ParseType is the inverse of Type.String.
func ParseType(s string) Type {
	for t, name := range typeNames {
		if name == s {
			return t
		}
	}
	return TypeUnknown
}

// Types lists every known command type in declaration order.
func Types() []Type {
	out := make([]Type, 0, len(typeNames))
	for t := TypeRefreshPrice; t <= TypeUnpause; t++ {
		out = append(out, t)
	}
	return out
}

// Command is the interface all commands implement.
type Command interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// CommandType returns the discriminator
	CommandType() Type

	// Caller is the authenticated identity issuing the command
	Caller() uuid.UUID
}

// Meta is embedded by every command.
type Meta struct {
	ID string    `json:"id"`
	By uuid.UUID `json:"by"`
}

func (m Meta) IdempotencyKey() string { return m.ID }
func (m Meta) Caller() uuid.UUID      { return m.By }

// RefreshPrice refreshes one asset feed, or the unit feed when Asset is
// oracle.UnitFeed.
type RefreshPrice struct {
	Meta
	Asset string
}

type AddFeed struct {
	Meta
	Asset                 string
	DeviationThresholdBps uint64
	StalenessSeconds      int64
}

type RemoveFeed struct {
	Meta
	Asset string
}

type SetUnitFeed struct {
	Meta
	DeviationThresholdBps uint64
	StalenessSeconds      int64
}

type SetHeartbeat struct {
	Meta
	Feed             string
	HeartbeatSeconds int64
}

type ConfigureCollateral struct {
	Meta
	Asset       string
	Enabled     bool
	HaircutBps  uint64
	DebtCeiling *uint256.Int
}

type SetRiskParams struct {
	Meta
	MaxLTVBps               uint64
	LiquidationThresholdBps uint64
	AnnualRateBps           uint64
}

// CreditWallet brings an externally settled amount into a user's wallet.
type CreditWallet struct {
	Meta
	User   uuid.UUID
	Asset  string
	Amount *uint256.Int
}

// DebitWallet sends wallet funds of the caller out of the ledger.
type DebitWallet struct {
	Meta
	Asset  string
	Amount *uint256.Int
}

type DepositCollateral struct {
	Meta
	Asset  string
	Amount *uint256.Int
}

type WithdrawCollateral struct {
	Meta
	Asset  string
	Amount *uint256.Int
}

type OpenLoan struct {
	Meta
	Amount *uint256.Int
}

type RepayLoan struct {
	Meta
	LoanID uint64
	Amount *uint256.Int
}

type LiquidateLoan struct {
	Meta
	LoanID uint64
}

type PlaceBid struct {
	Meta
	AuctionID uint64
	Amount    *uint256.Int
}

type SettleAuction struct {
	Meta
	AuctionID uint64
}

type CancelAuction struct {
	Meta
	AuctionID uint64
}

type FundDeposit struct {
	Meta
	Asset  string
	Amount *uint256.Int
}

type FundWithdraw struct {
	Meta
	Asset  string
	Amount *uint256.Int
	To     uuid.UUID
}

type PayClaim struct {
	Meta
	Asset  string
	Amount *uint256.Int
	To     uuid.UUID
}

// CollectFee charges the caller the protocol fee on Amount.
type CollectFee struct {
	Meta
	Asset  string
	Amount *uint256.Int
}

type GrantRole struct {
	Meta
	Role    string
	Account uuid.UUID
}

type RevokeRole struct {
	Meta
	Role    string
	Account uuid.UUID
}

type Pause struct {
	Meta
}

type Unpause struct {
	Meta
}

func (*RefreshPrice) CommandType() Type        { return TypeRefreshPrice }
func (*AddFeed) CommandType() Type             { return TypeAddFeed }
func (*RemoveFeed) CommandType() Type          { return TypeRemoveFeed }
func (*SetUnitFeed) CommandType() Type         { return TypeSetUnitFeed }
func (*SetHeartbeat) CommandType() Type        { return TypeSetHeartbeat }
func (*ConfigureCollateral) CommandType() Type { return TypeConfigureCollateral }
func (*SetRiskParams) CommandType() Type       { return TypeSetRiskParams }
func (*CreditWallet) CommandType() Type        { return TypeCreditWallet }
func (*DebitWallet) CommandType() Type         { return TypeDebitWallet }
func (*DepositCollateral) CommandType() Type   { return TypeDepositCollateral }
func (*WithdrawCollateral) CommandType() Type  { return TypeWithdrawCollateral }
func (*OpenLoan) CommandType() Type            { return TypeOpenLoan }
func (*RepayLoan) CommandType() Type           { return TypeRepayLoan }
func (*LiquidateLoan) CommandType() Type       { return TypeLiquidateLoan }
func (*PlaceBid) CommandType() Type            { return TypePlaceBid }
func (*SettleAuction) CommandType() Type       { return TypeSettleAuction }
func (*CancelAuction) CommandType() Type       { return TypeCancelAuction }
func (*FundDeposit) CommandType() Type         { return TypeFundDeposit }
func (*FundWithdraw) CommandType() Type        { return TypeFundWithdraw }
func (*PayClaim) CommandType() Type            { return TypePayClaim }
func (*CollectFee) CommandType() Type          { return TypeCollectFee }
func (*GrantRole) CommandType() Type           { return TypeGrantRole }
func (*RevokeRole) CommandType() Type          { return TypeRevokeRole }
func (*Pause) CommandType() Type               { return TypePause }
func (*Unpause) CommandType() Type             { return TypeUnpause }
