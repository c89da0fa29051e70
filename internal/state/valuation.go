package state

import (
	"sort"

	"GoldLedger/internal/errs"
	"GoldLedger/internal/math"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// CollateralValue is the haircut-weighted ozt value of user's collateral.
func (pl *PositionLedger) CollateralValue(user uuid.UUID) (*uint256.Int, error) {
	return pl.valueOf(pl.balances[user])
}

// valueOf sums balance × haircut / 10000 × assetPrice / unitPrice over the
// enabled assets in balances.
func (pl *PositionLedger) valueOf(balances map[string]*uint256.Int) (*uint256.Int, error) {
	assets := make([]string, 0, len(balances))
	for a, b := range balances {
		cfg, ok := pl.collateral[a]
		if !ok || !cfg.Enabled || b.IsZero() {
			continue
		}
		assets = append(assets, a)
	}
	total := math.Zero()
	if len(assets) == 0 {
		return total, nil
	}
	sort.Strings(assets)

	unit, err := pl.unitPrice("collateral value")
	if err != nil {
		return nil, err
	}
	for _, a := range assets {
		weighted, err := math.ApplyBps(balances[a], pl.collateral[a].HaircutBps)
		if err != nil {
			return nil, err
		}
		v, err := pl.convert("collateral value", a, weighted, unit)
		if err != nil {
			return nil, err
		}
		if total, err = math.Add(total, v); err != nil {
			return nil, err
		}
	}
	return total, nil
}

// Appraise is the un-haircut ozt value of amount of asset.
func (pl *PositionLedger) Appraise(asset string, amount *uint256.Int) (*uint256.Int, error) {
	unit, err := pl.unitPrice("appraise")
	if err != nil {
		return nil, err
	}
	return pl.convert("appraise", asset, amount, unit)
}

// unitPrice reads the unit-of-account price. A zero price is a hard fault:
// dividing by it must never read as a zero valuation.
func (pl *PositionLedger) unitPrice(op string) (*uint256.Int, error) {
	q, err := pl.prices.ReadUnit().Quote()
	if err != nil {
		return nil, errs.Wrap(errs.KindOracleInvalid, op, err)
	}
	if q.Price.IsZero() {
		return nil, errs.OracleUnavailable(op, "unit-of-account price is zero")
	}
	return q.Price, nil
}

func (pl *PositionLedger) convert(op, asset string, amount, unit *uint256.Int) (*uint256.Int, error) {
	q, err := pl.prices.Read(asset).Quote()
	if err != nil {
		return nil, errs.Wrap(errs.KindOracleInvalid, op, err)
	}
	return math.MulDiv(amount, q.Price, unit, math.RoundDown)
}
