package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"GoldLedger/internal/access"
	"GoldLedger/internal/command"
	"GoldLedger/internal/config"
	"GoldLedger/internal/core"
	"GoldLedger/internal/ledger"
	"GoldLedger/internal/math"
	"GoldLedger/internal/oracle"
	"GoldLedger/internal/state"
	"GoldLedger/internal/testutil"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const admin = "550e8400-e29b-41d4-a716-446655440000"
const keeper = "660e8400-e29b-41d4-a716-446655440001"

const sample = `
admin: ` + admin + `
risk:
  max_ltv_bps: 7000
  annual_rate_bps: 500
auction:
  duration: 12h
  min_bid_increment_bps: 50
fund:
  fee_rate_bps: 100
unit_feed:
  deviation_threshold_bps: 500
  staleness: 2h
feeds:
  - asset: PAXG
    deviation_threshold_bps: 1000
    staleness: 2h
    heartbeat: 30m
collateral:
  - asset: PAXG
    haircut_bps: 9000
    debt_ceiling: "1000.5"
  - asset: XAUT
    haircut_bps: 8500
    enabled: false
roles:
  - role: Keeper
    account: ` + keeper + `
static_prices:
  unit: "1"
  PAXG: "2000"
`

func TestParse_Sample(t *testing.T) {
	cfg, err := config.Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, uuid.MustParse(admin), cfg.Engine.Admin)
	assert.Equal(t, core.DefaultDebtAsset, cfg.Engine.DebtAsset)
	assert.Equal(t, uint64(7000), cfg.Engine.Risk.MaxLTVBps)
	assert.Equal(t, uint64(state.DefaultLiquidationThresholdBps), cfg.Engine.Risk.LiquidationThresholdBps)
	rate, err := math.RatePerSecond(500)
	require.NoError(t, err)
	assert.True(t, rate.Eq(cfg.Engine.Risk.RatePerSecond))

	assert.Equal(t, int64(43_200), cfg.Engine.Auction.Duration)
	assert.Equal(t, uint64(50), cfg.Engine.Auction.MinBidIncrementBps)
	assert.Equal(t, uint64(100), cfg.Engine.Fund.FeeRateBps)
	assert.Equal(t, uint64(state.DefaultMinCoverageBps), cfg.Engine.Fund.MinCoverageBps)

	require.NotNil(t, cfg.UnitFeed)
	assert.Equal(t, oracle.UnitFeed, cfg.UnitFeed.Asset)
	require.Len(t, cfg.Feeds, 1)
	assert.Equal(t, 30*time.Minute, cfg.Feeds[0].Heartbeat)

	require.Len(t, cfg.Collateral, 2)
	assert.True(t, cfg.Collateral[0].Enabled)
	assert.Equal(t, "1000.5", math.FormatUnits(cfg.Collateral[0].DebtCeiling))
	assert.False(t, cfg.Collateral[1].Enabled)
	assert.Nil(t, cfg.Collateral[1].DebtCeiling)

	require.Len(t, cfg.Roles, 1)
	assert.Equal(t, access.RoleKeeper, cfg.Roles[0].Role)
	assert.Contains(t, cfg.StaticPrices, oracle.UnitFeed)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"bad yaml", "admin: [\n"},
		{"missing admin", "risk: {max_ltv_bps: 7000}"},
		{"ltv above threshold", "admin: " + admin + "\nrisk: {max_ltv_bps: 9000}"},
		{"debt asset as collateral", "admin: " + admin + "\ncollateral: [{asset: OZT, haircut_bps: 9000}]"},
		{"haircut above 100%", "admin: " + admin + "\ncollateral: [{asset: PAXG, haircut_bps: 10001}]"},
		{"duplicate feed", "admin: " + admin + "\nfeeds: [{asset: PAXG, staleness: 1h}, {asset: PAXG, staleness: 1h}]"},
		{"zero staleness", "admin: " + admin + "\nfeeds: [{asset: PAXG}]"},
		{"unknown role", "admin: " + admin + "\nroles: [{role: keeper, account: " + keeper + "}]"},
		{"bad ceiling", "admin: " + admin + "\ncollateral: [{asset: PAXG, haircut_bps: 9000, debt_ceiling: lots}]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Parse([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))
	_, err := config.Load(path)
	require.NoError(t, err)

	_, err = config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestBootstrap_ConfiguresEngine(t *testing.T) {
	cfg, err := config.Parse([]byte(sample))
	require.NoError(t, err)

	clock := testutil.NewManualClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	sources := oracle.NewPushSources()
	cfg.PreloadPrices(sources, clock.Now())
	engine, err := core.NewEngine(cfg.Engine, core.Deps{
		Bank:    ledger.NewBank(nil),
		Clock:   clock,
		Sources: func(feed string) oracle.Source { return sources.Get(feed) },
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)

	require.NoError(t, cfg.ConfigureOracle(engine))
	assert.Equal(t, []string{"PAXG"}, engine.Feeds())
	fc, ok := engine.FeedConfig("PAXG")
	require.True(t, ok)
	assert.Equal(t, 30*time.Minute, fc.Heartbeat)
	assert.Empty(t, engine.Drain().Events, "oracle wiring is not logged")

	cmds := cfg.BootstrapCommands()
	require.Len(t, cmds, 3)
	for _, cmd := range cmds {
		_, err := engine.Apply(t.Context(), cmd)
		require.NoError(t, err, cmd.IdempotencyKey())
	}
	col, ok := engine.CollateralConfig("PAXG")
	require.True(t, ok)
	assert.Equal(t, uint64(9000), col.HaircutBps)
	assert.True(t, engine.HasRole(access.RoleKeeper, uuid.MustParse(keeper)))

	again := cfg.BootstrapCommands()
	for i := range cmds {
		assert.Equal(t, cmds[i].IdempotencyKey(), again[i].IdempotencyKey(), "keys are stable")
	}
	assert.Equal(t, command.TypeConfigureCollateral, cmds[0].CommandType())
}
