package state

import (
	"GoldLedger/internal/errs"
	"GoldLedger/internal/math"

	"github.com/holiman/uint256"
)

const (
	DefaultMaxLTVBps               = 8000
	DefaultLiquidationThresholdBps = 8500
)

// RiskParams gate borrowing, withdrawals and liquidation.
type RiskParams struct {
	MaxLTVBps               uint64       `json:"max_ltv_bps"`
	LiquidationThresholdBps uint64       `json:"liquidation_threshold_bps"`
	RatePerSecond           *uint256.Int `json:"rate_per_second"` // Scale-d simple interest per second
}

// DefaultRiskParams uses a 10% simple annual rate.
func DefaultRiskParams() RiskParams {
	rate, _ := math.RatePerSecond(1000)
	return RiskParams{
		MaxLTVBps:               DefaultMaxLTVBps,
		LiquidationThresholdBps: DefaultLiquidationThresholdBps,
		RatePerSecond:           rate,
	}
}

// ValidateRiskParams checks 0 < maxLTV <= liquidationThreshold <= 10000.
func ValidateRiskParams(p RiskParams) error {
	if p.MaxLTVBps == 0 {
		return errs.Validation("risk params", "max_ltv must be > 0")
	}
	if p.LiquidationThresholdBps < p.MaxLTVBps {
		return errs.Validation("risk params", "liquidation_threshold (%d) must be >= max_ltv (%d)",
			p.LiquidationThresholdBps, p.MaxLTVBps)
	}
	if p.LiquidationThresholdBps > math.BasisPoints {
		return errs.Validation("risk params", "liquidation_threshold must be <= %d, got %d",
			math.BasisPoints, p.LiquidationThresholdBps)
	}
	if p.RatePerSecond == nil {
		return errs.Validation("risk params", "rate_per_second is required")
	}
	return nil
}

// CollateralConfig describes one collateral asset.
type CollateralConfig struct {
	Asset         string       `json:"asset"`
	Enabled       bool         `json:"enabled"`
	HaircutBps    uint64       `json:"haircut_bps"`    // fraction of market value counted
	DebtCeiling   *uint256.Int `json:"debt_ceiling"`   // caps TotalDeposits in collateral units; zero means uncapped
	TotalDeposits *uint256.Int `json:"total_deposits"` // aggregate balance across users
}

func (c CollateralConfig) clone() CollateralConfig {
	c.DebtCeiling = c.DebtCeiling.Clone()
	c.TotalDeposits = c.TotalDeposits.Clone()
	return c
}

// ValidateCollateralConfig checks the configurable fields.
func ValidateCollateralConfig(asset string, haircutBps uint64) error {
	if asset == "" {
		return errs.Validation("collateral config", "asset is required")
	}
	if haircutBps > math.BasisPoints {
		return errs.Validation("collateral config", "%s haircut must be <= %d bps, got %d",
			asset, math.BasisPoints, haircutBps)
	}
	return nil
}
