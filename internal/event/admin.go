package event

import (
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// RiskParamsUpdated takes effect immediately. Open loans were accrued at the
// previous rate up to the update.
type RiskParamsUpdated struct {
	MaxLTVBps               uint64       `json:"max_ltv_bps"`
	LiquidationThresholdBps uint64       `json:"liquidation_threshold_bps"`
	RatePerSecond           *uint256.Int `json:"rate_per_second"`
}

func (r *RiskParamsUpdated) EventType() EventType { return EventTypeRiskParamsUpdated }
func (r *RiskParamsUpdated) Subject() string      { return "risk_params" }

type RoleGranted struct {
	Role    string    `json:"role"`
	Account uuid.UUID `json:"account"`
	By      uuid.UUID `json:"by"`
}

func (r *RoleGranted) EventType() EventType { return EventTypeRoleGranted }
func (r *RoleGranted) Subject() string      { return "role:" + r.Role }

type RoleRevoked struct {
	Role    string    `json:"role"`
	Account uuid.UUID `json:"account"`
	By      uuid.UUID `json:"by"`
}

func (r *RoleRevoked) EventType() EventType { return EventTypeRoleRevoked }
func (r *RoleRevoked) Subject() string      { return "role:" + r.Role }

type Paused struct {
	By uuid.UUID `json:"by"`
}

func (p *Paused) EventType() EventType { return EventTypePaused }
func (p *Paused) Subject() string      { return "engine" }

type Unpaused struct {
	By uuid.UUID `json:"by"`
}

func (u *Unpaused) EventType() EventType { return EventTypeUnpaused }
func (u *Unpaused) Subject() string      { return "engine" }
