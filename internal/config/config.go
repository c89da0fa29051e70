// Package config loads the engine configuration file: risk, auction and fund
// parameters, oracle feeds, collateral assets and initial role grants.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"GoldLedger/internal/access"
	"GoldLedger/internal/command"
	"GoldLedger/internal/core"
	"GoldLedger/internal/math"
	"GoldLedger/internal/oracle"
	"GoldLedger/internal/state"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config is a validated engine configuration.
type Config struct {
	Engine     core.Config
	UnitFeed   *Feed
	Feeds      []Feed
	Collateral []Collateral
	Roles      []RoleGrant

	// StaticPrices preload push sources, for development and tests.
	StaticPrices map[string]*uint256.Int
}

type Feed struct {
	Asset                 string
	DeviationThresholdBps uint64
	Staleness             time.Duration
	Heartbeat             time.Duration // zero keeps the oracle default
}

type Collateral struct {
	Asset       string
	Enabled     bool
	HaircutBps  uint64
	DebtCeiling *uint256.Int // nil means uncapped
}

type RoleGrant struct {
	Role    access.Role
	Account uuid.UUID
}

// file is the YAML shape. Amounts are decimal strings.
type file struct {
	Admin     string `yaml:"admin"`
	DebtAsset string `yaml:"debt_asset"`

	Risk struct {
		MaxLTVBps               *uint64 `yaml:"max_ltv_bps"`
		LiquidationThresholdBps *uint64 `yaml:"liquidation_threshold_bps"`
		AnnualRateBps           *uint64 `yaml:"annual_rate_bps"`
	} `yaml:"risk"`

	Auction struct {
		Duration           time.Duration `yaml:"duration"`
		DecayRatePerSecond string        `yaml:"decay_rate_per_second"`
		MinBidIncrementBps *uint64       `yaml:"min_bid_increment_bps"`
	} `yaml:"auction"`

	Fund struct {
		FeeRateBps     *uint64 `yaml:"fee_rate_bps"`
		MinCoverageBps *uint64 `yaml:"min_coverage_bps"`
	} `yaml:"fund"`

	UnitFeed *feedFile  `yaml:"unit_feed"`
	Feeds    []feedFile `yaml:"feeds"`

	Collateral []struct {
		Asset       string `yaml:"asset"`
		Enabled     *bool  `yaml:"enabled"`
		HaircutBps  uint64 `yaml:"haircut_bps"`
		DebtCeiling string `yaml:"debt_ceiling"`
	} `yaml:"collateral"`

	Roles []struct {
		Role    string `yaml:"role"`
		Account string `yaml:"account"`
	} `yaml:"roles"`

	StaticPrices map[string]string `yaml:"static_prices"`
}

type feedFile struct {
	Asset                 string        `yaml:"asset"`
	DeviationThresholdBps uint64        `yaml:"deviation_threshold_bps"`
	Staleness             time.Duration `yaml:"staleness"`
	Heartbeat             time.Duration `yaml:"heartbeat"`
}

// Load reads and validates the YAML file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// Parse decodes and validates a YAML document. Omitted parameters take the
// engine defaults.
func Parse(data []byte) (*Config, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "decode yaml")
	}

	admin, err := uuid.Parse(f.Admin)
	if err != nil {
		return nil, errors.Wrapf(err, "admin %q", f.Admin)
	}
	cfg := &Config{Engine: core.DefaultConfig(admin), StaticPrices: make(map[string]*uint256.Int)}
	if f.DebtAsset != "" {
		cfg.Engine.DebtAsset = f.DebtAsset
	}

	risk := &cfg.Engine.Risk
	if f.Risk.MaxLTVBps != nil {
		risk.MaxLTVBps = *f.Risk.MaxLTVBps
	}
	if f.Risk.LiquidationThresholdBps != nil {
		risk.LiquidationThresholdBps = *f.Risk.LiquidationThresholdBps
	}
	if f.Risk.AnnualRateBps != nil {
		if risk.RatePerSecond, err = math.RatePerSecond(*f.Risk.AnnualRateBps); err != nil {
			return nil, errors.Wrap(err, "risk.annual_rate_bps")
		}
	}

	auction := &cfg.Engine.Auction
	if f.Auction.Duration != 0 {
		auction.Duration = int64(f.Auction.Duration / time.Second)
		// Decay follows the duration unless set explicitly.
		if auction.Duration > 0 {
			auction.DecayRatePerSecond = new(uint256.Int).Div(math.Scale, uint256.NewInt(uint64(auction.Duration)))
		}
	}
	if f.Auction.DecayRatePerSecond != "" {
		if auction.DecayRatePerSecond, err = amount(f.Auction.DecayRatePerSecond); err != nil {
			return nil, errors.Wrap(err, "auction.decay_rate_per_second")
		}
	}
	if f.Auction.MinBidIncrementBps != nil {
		auction.MinBidIncrementBps = *f.Auction.MinBidIncrementBps
	}

	if f.Fund.FeeRateBps != nil {
		cfg.Engine.Fund.FeeRateBps = *f.Fund.FeeRateBps
	}
	if f.Fund.MinCoverageBps != nil {
		cfg.Engine.Fund.MinCoverageBps = *f.Fund.MinCoverageBps
	}

	if f.UnitFeed != nil {
		u := feedFrom(*f.UnitFeed)
		u.Asset = oracle.UnitFeed
		cfg.UnitFeed = &u
	}
	for _, ff := range f.Feeds {
		cfg.Feeds = append(cfg.Feeds, feedFrom(ff))
	}

	for _, c := range f.Collateral {
		col := Collateral{Asset: c.Asset, Enabled: true, HaircutBps: c.HaircutBps}
		if c.Enabled != nil {
			col.Enabled = *c.Enabled
		}
		if c.DebtCeiling != "" {
			if col.DebtCeiling, err = amount(c.DebtCeiling); err != nil {
				return nil, errors.Wrapf(err, "collateral %s debt_ceiling", c.Asset)
			}
		}
		cfg.Collateral = append(cfg.Collateral, col)
	}

	for _, r := range f.Roles {
		role, err := access.ParseRole(r.Role)
		if err != nil {
			return nil, errors.Wrapf(err, "roles")
		}
		account, err := uuid.Parse(r.Account)
		if err != nil {
			return nil, errors.Wrapf(err, "role %s account %q", r.Role, r.Account)
		}
		cfg.Roles = append(cfg.Roles, RoleGrant{Role: role, Account: account})
	}

	for feed, p := range f.StaticPrices {
		price, err := amount(p)
		if err != nil {
			return nil, errors.Wrapf(err, "static_prices.%s", feed)
		}
		if feed == "unit" {
			feed = oracle.UnitFeed
		}
		cfg.StaticPrices[feed] = price
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func feedFrom(f feedFile) Feed {
	return Feed{
		Asset:                 f.Asset,
		DeviationThresholdBps: f.DeviationThresholdBps,
		Staleness:             f.Staleness,
		Heartbeat:             f.Heartbeat,
	}
}

func amount(s string) (*uint256.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, err
	}
	return math.FromDecimal(d)
}

// Validate checks everything the engine would reject at construction or
// bootstrap, so a bad file fails before anything starts.
func (c *Config) Validate() error {
	if err := state.ValidateRiskParams(c.Engine.Risk); err != nil {
		return errors.Wrap(err, "risk")
	}
	if err := state.ValidateAuctionParams(c.Engine.Auction); err != nil {
		return errors.Wrap(err, "auction")
	}
	if err := state.ValidateFundParams(c.Engine.Fund); err != nil {
		return errors.Wrap(err, "fund")
	}

	feeds := c.Feeds
	if c.UnitFeed != nil {
		feeds = append([]Feed{*c.UnitFeed}, feeds...)
	}
	seen := make(map[string]bool)
	for _, f := range feeds {
		if f.Asset == "" {
			return errors.New("feed asset is required")
		}
		if seen[f.Asset] {
			return errors.Errorf("feed %s configured twice", f.Asset)
		}
		seen[f.Asset] = true
		cfg := oracle.FeedConfig{DeviationThresholdBps: f.DeviationThresholdBps, Staleness: f.Staleness, Heartbeat: f.Heartbeat}
		if cfg.Heartbeat == 0 {
			cfg.Heartbeat = oracle.DefaultHeartbeat
		}
		if err := cfg.Validate(); err != nil {
			return errors.Wrapf(err, "feed %s", f.Asset)
		}
	}

	seen = make(map[string]bool)
	for _, col := range c.Collateral {
		if col.Asset == c.Engine.DebtAsset {
			return errors.Errorf("collateral %s is the debt asset", col.Asset)
		}
		if seen[col.Asset] {
			return errors.Errorf("collateral %s configured twice", col.Asset)
		}
		seen[col.Asset] = true
		if err := state.ValidateCollateralConfig(col.Asset, col.HaircutBps); err != nil {
			return errors.Wrapf(err, "collateral %s", col.Asset)
		}
	}
	return nil
}

// ConfigureOracle installs the configured feeds on e as the admin. It runs on
// every start; a restored snapshot then replaces the feed set with the one it
// recorded. The events it produces are discarded.
func (c *Config) ConfigureOracle(e *core.Engine) error {
	admin := c.Engine.Admin
	defer e.Drain()

	if c.UnitFeed != nil {
		if err := e.SetUnitFeed(admin, c.UnitFeed.DeviationThresholdBps, c.UnitFeed.Staleness); err != nil {
			return errors.Wrap(err, "unit feed")
		}
	}
	for _, f := range c.Feeds {
		if err := e.AddFeed(admin, f.Asset, f.DeviationThresholdBps, f.Staleness); err != nil {
			return errors.Wrapf(err, "feed %s", f.Asset)
		}
	}
	feeds := c.Feeds
	if c.UnitFeed != nil {
		feeds = append([]Feed{*c.UnitFeed}, feeds...)
	}
	for _, f := range feeds {
		if f.Heartbeat == 0 {
			continue
		}
		if err := e.SetHeartbeat(admin, f.Asset, f.Heartbeat); err != nil {
			return errors.Wrapf(err, "feed %s heartbeat", f.Asset)
		}
	}
	return nil
}

// BootstrapCommands returns the admin commands that bring a fresh engine to
// the configured collateral and role set. Keys derive from the content, so
// replaying them on restart is a no-op unless the file changed.
func (c *Config) BootstrapCommands() []command.Command {
	admin := c.Engine.Admin
	var cmds []command.Command
	for _, col := range c.Collateral {
		ceiling := "0"
		if col.DebtCeiling != nil {
			ceiling = col.DebtCeiling.Dec()
		}
		cmds = append(cmds, &command.ConfigureCollateral{
			Meta:        command.Meta{ID: fmt.Sprintf("bootstrap:collateral:%s:%t:%d:%s", col.Asset, col.Enabled, col.HaircutBps, ceiling), By: admin},
			Asset:       col.Asset,
			Enabled:     col.Enabled,
			HaircutBps:  col.HaircutBps,
			DebtCeiling: col.DebtCeiling,
		})
	}
	for _, g := range c.Roles {
		cmds = append(cmds, &command.GrantRole{
			Meta:    command.Meta{ID: fmt.Sprintf("bootstrap:role:%s:%s", g.Role, g.Account), By: admin},
			Role:    g.Role.String(),
			Account: g.Account,
		})
	}
	return cmds
}

// PreloadPrices pushes the static prices into sources.
func (c *Config) PreloadPrices(sources *oracle.PushSources, now time.Time) {
	for feed, p := range c.StaticPrices {
		sources.Get(feed).Push(p, now)
	}
}
