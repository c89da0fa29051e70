package query

import (
	"context"

	"GoldLedger/internal/core"
	"GoldLedger/internal/math"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BalanceResponse is a user's ledger balances of one asset.
type BalanceResponse struct {
	User   uuid.UUID `json:"user"`
	Asset  string    `json:"asset"`

	// Spendable balance in the user's wallet
	Wallet decimal.Decimal `json:"wallet"`

	// Balance locked as loan collateral
	Collateral decimal.Decimal `json:"collateral"`

	Total        decimal.Decimal `json:"total"`
	AsOfSequence int64           `json:"as_of_sequence"`
}

// GetBalance reads user's wallet and collateral balances of asset from the
// live ledger.
func (qs *QueryService) GetBalance(ctx context.Context, user uuid.UUID, asset string) (*BalanceResponse, error) {
	var resp BalanceResponse
	err := qs.live(ctx, func(e *core.Engine, seq int64) error {
		wallet := math.ToDecimal(e.WalletBalance(user, asset))
		collateral := math.ToDecimal(e.Collateral(user, asset))
		resp = BalanceResponse{
			User:         user,
			Asset:        asset,
			Wallet:       wallet,
			Collateral:   collateral,
			Total:        wallet.Add(collateral),
			AsOfSequence: seq,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}
