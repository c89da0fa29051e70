package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// AccountScope represents the top-level account namespace
type AccountScope uint8

const (
	AccountScopeUser AccountScope = iota
	AccountScopeSystem
	AccountScopeExternal
)

func (s AccountScope) String() string {
	switch s {
	case AccountScopeUser:
		return "user"
	case AccountScopeSystem:
		return "system"
	case AccountScopeExternal:
		return "external"
	default:
		return "unknown"
	}
}

// AccountSubType represents the account purpose
type AccountSubType uint8

const (
	// User sub-types
	SubTypeWallet AccountSubType = iota

	// System sub-types
	SubTypeCustody
	SubTypeAuctionEscrow
	SubTypeInsuranceFund

	// External sub-types. Only external accounts may go negative.
	SubTypeIssuance
	SubTypeExternalDeposits
)

var subTypeNames = map[AccountSubType]string{
	SubTypeWallet:           "wallet",
	SubTypeCustody:          "custody",
	SubTypeAuctionEscrow:    "auction_escrow",
	SubTypeInsuranceFund:    "insurance_fund",
	SubTypeIssuance:         "issuance",
	SubTypeExternalDeposits: "deposits",
}

func (t AccountSubType) String() string {
	if name, ok := subTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// AccountKey is the in-memory key for balance tracking.
type AccountKey struct {
	Scope    AccountScope
	EntityID [16]byte // UUID for users, name bytes for system accounts
	SubType  AccountSubType
	Asset    string
}

// Wallet is a user's spendable balance of asset.
func Wallet(userID uuid.UUID, asset string) AccountKey {
	return AccountKey{
		Scope:    AccountScopeUser,
		EntityID: userID,
		SubType:  SubTypeWallet,
		Asset:    asset,
	}
}

// NewSystemAccountKey creates a key for engine-held accounts.
func NewSystemAccountKey(subType AccountSubType, asset string) AccountKey {
	var entityID [16]byte
	copy(entityID[:], subType.String())
	return AccountKey{
		Scope:    AccountScopeSystem,
		EntityID: entityID,
		SubType:  subType,
		Asset:    asset,
	}
}

// NewExternalAccountKey creates a key for a boundary account.
func NewExternalAccountKey(subType AccountSubType, asset string) AccountKey {
	return AccountKey{
		Scope:   AccountScopeExternal,
		SubType: subType,
		Asset:   asset,
	}
}

// Custody holds deposited collateral.
func Custody(asset string) AccountKey { return NewSystemAccountKey(SubTypeCustody, asset) }

// AuctionEscrow holds seized collateral and standing bids.
func AuctionEscrow(asset string) AccountKey { return NewSystemAccountKey(SubTypeAuctionEscrow, asset) }

// InsuranceFund holds fund reserves.
func InsuranceFund(asset string) AccountKey { return NewSystemAccountKey(SubTypeInsuranceFund, asset) }

// Issuance is where loan principal is minted from and burned back to.
func Issuance(asset string) AccountKey { return NewExternalAccountKey(SubTypeIssuance, asset) }

// ExternalDeposits is the on-ramp counterpart of credited user funds.
func ExternalDeposits(asset string) AccountKey {
	return NewExternalAccountKey(SubTypeExternalDeposits, asset)
}

// AccountPath returns the string representation for storage/logging
func (k AccountKey) AccountPath() string {
	switch k.Scope {
	case AccountScopeUser:
		uid := uuid.UUID(k.EntityID)
		return fmt.Sprintf("user:%s:%s:%s", uid.String(), k.SubType, k.Asset)
	case AccountScopeSystem, AccountScopeExternal:
		return fmt.Sprintf("%s:%s:%s", k.Scope, k.SubType, k.Asset)
	}
	return "unknown"
}

// MayGoNegative reports whether the account is a boundary account.
func (k AccountKey) MayGoNegative() bool {
	return k.Scope == AccountScopeExternal
}
