package core

import (
	"time"

	"GoldLedger/internal/access"
	"GoldLedger/internal/event"
	"GoldLedger/internal/math"
	"GoldLedger/internal/state"

	"github.com/google/uuid"
)

// SetRiskParams replaces the risk parameters. Open loans are accrued at the
// previous rate up to now first.
func (e *Engine) SetRiskParams(caller uuid.UUID, maxLTVBps, liquidationThresholdBps, annualRateBps uint64) error {
	const op = "set risk params"
	return e.run(op, []string{adminResource}, func(t *tx, now time.Time) error {
		if err := e.require(access.RoleAdmin, caller, op); err != nil {
			return err
		}
		rate, err := math.RatePerSecond(annualRateBps)
		if err != nil {
			return err
		}
		params := state.RiskParams{
			MaxLTVBps:               maxLTVBps,
			LiquidationThresholdBps: liquidationThresholdBps,
			RatePerSecond:           rate,
		}
		if err := e.positions.SetRiskParams(params, now.Unix()); err != nil {
			return err
		}
		t.emit(&event.RiskParamsUpdated{
			MaxLTVBps:               params.MaxLTVBps,
			LiquidationThresholdBps: params.LiquidationThresholdBps,
			RatePerSecond:           rate,
		})
		e.logger.Info().
			Uint64("max_ltv_bps", maxLTVBps).
			Uint64("liquidation_threshold_bps", liquidationThresholdBps).
			Uint64("annual_rate_bps", annualRateBps).
			Msg("risk params updated")
		return nil
	})
}

func (e *Engine) GrantRole(caller uuid.UUID, role string, account uuid.UUID) error {
	const op = "grant role"
	return e.run(op, []string{adminResource}, func(t *tx, now time.Time) error {
		if err := e.require(access.RoleAdmin, caller, op); err != nil {
			return err
		}
		r, err := access.ParseRole(role)
		if err != nil {
			return err
		}
		if err := e.roles.Grant(r, account); err != nil {
			return err
		}
		t.emit(&event.RoleGranted{Role: r.String(), Account: account, By: caller})
		return nil
	})
}

func (e *Engine) RevokeRole(caller uuid.UUID, role string, account uuid.UUID) error {
	const op = "revoke role"
	return e.run(op, []string{adminResource}, func(t *tx, now time.Time) error {
		if err := e.require(access.RoleAdmin, caller, op); err != nil {
			return err
		}
		r, err := access.ParseRole(role)
		if err != nil {
			return err
		}
		if err := e.roles.Revoke(r, account); err != nil {
			return err
		}
		t.emit(&event.RoleRevoked{Role: r.String(), Account: account, By: caller})
		return nil
	})
}

// Pause halts every mutating operation except Unpause and CancelAuction.
func (e *Engine) Pause(caller uuid.UUID) error {
	const op = "pause"
	return e.exec(op, []string{adminResource}, func(t *tx, now time.Time) error {
		if err := e.require(access.RolePauser, caller, op); err != nil {
			return err
		}
		if err := e.pause.Pause(); err != nil {
			return err
		}
		t.emit(&event.Paused{By: caller})
		e.logger.Warn().Str("by", caller.String()).Msg("engine paused")
		return nil
	})
}

func (e *Engine) Unpause(caller uuid.UUID) error {
	const op = "unpause"
	return e.exec(op, []string{adminResource}, func(t *tx, now time.Time) error {
		if err := e.require(access.RolePauser, caller, op); err != nil {
			return err
		}
		if err := e.pause.Unpause(); err != nil {
			return err
		}
		t.emit(&event.Unpaused{By: caller})
		e.logger.Info().Str("by", caller.String()).Msg("engine unpaused")
		return nil
	})
}

// Paused reports whether mutating operations are halted.
func (e *Engine) Paused() bool { return e.pause.IsPaused() }

// HasRole reports whether account holds role.
func (e *Engine) HasRole(role access.Role, account uuid.UUID) bool {
	return e.roles.HasRole(role, account)
}
