// Package oracle validates and caches per-asset prices and the unit-of-account
// price. Staleness is evaluated only when a feed is refreshed: Read returns the
// last accepted price and does not imply freshness.
package oracle

import (
	"context"
	"time"

	"GoldLedger/internal/errs"
	"GoldLedger/internal/index"
	"GoldLedger/internal/math"

	"github.com/holiman/uint256"
)

const (
	// MaxDeviationBps bounds a feed's deviation threshold.
	MaxDeviationBps = 5000
	// DefaultHeartbeat is seeded by AddFeed and SetUnitFeed.
	DefaultHeartbeat = time.Hour

	// UnitFeed names the unit-of-account feed in snapshots and events.
	UnitFeed = "@unit"
)

// FeedState is the lifecycle of a feed.
type FeedState uint8

const (
	FeedUnconfigured FeedState = iota
	FeedConfigured
)

func (s FeedState) String() string {
	if s == FeedConfigured {
		return "Configured"
	}
	return "Unconfigured"
}

// FeedConfig holds the validation guards of one feed.
type FeedConfig struct {
	DeviationThresholdBps uint64        `json:"deviation_threshold_bps"`
	Staleness             time.Duration `json:"staleness"`
	Heartbeat             time.Duration `json:"heartbeat"`
}

// Validate checks the bounds accepted by AddFeed.
func (c FeedConfig) Validate() error {
	if c.DeviationThresholdBps > MaxDeviationBps {
		return errs.Validation("feed config", "deviation threshold %d bps exceeds %d", c.DeviationThresholdBps, MaxDeviationBps)
	}
	if c.Staleness <= 0 {
		return errs.Validation("feed config", "staleness must be positive")
	}
	if c.Heartbeat < 0 {
		return errs.Validation("feed config", "heartbeat must not be negative")
	}
	return nil
}

type feed struct {
	source Source
	cfg    FeedConfig
	last   *Quote
	// stale is set by a rejected refresh and cleared by an accepted one.
	stale bool
}

func (f *feed) read(name string) Result {
	switch {
	case f.last == nil:
		return invalid(nil, errs.OracleInvalid("read", "%s has no accepted price", name))
	case f.stale:
		return invalid(f.last, errs.OracleInvalid("read", "%s latest refresh was rejected", name))
	default:
		return valid(*f.last)
	}
}

// PriceOracle is not safe for concurrent use; the engine owns it.
type PriceOracle struct {
	feeds     map[string]*feed
	supported *index.Set[string]
	unit      *feed
}

func New() *PriceOracle {
	return &PriceOracle{
		feeds:     make(map[string]*feed),
		supported: index.NewSet[string](),
	}
}

// AddFeed configures asset with the default heartbeat. Re-adding an asset
// overwrites its config and keeps its cached price.
func (o *PriceOracle) AddFeed(asset string, source Source, deviationThresholdBps uint64, staleness time.Duration) error {
	if asset == "" || asset == UnitFeed {
		return errs.Validation("add feed", "invalid asset %q", asset)
	}
	if source == nil {
		return errs.Validation("add feed", "%s: source is required", asset)
	}
	cfg := FeedConfig{DeviationThresholdBps: deviationThresholdBps, Staleness: staleness, Heartbeat: DefaultHeartbeat}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if f, ok := o.feeds[asset]; ok {
		f.source = source
		f.cfg = cfg
		return nil
	}
	o.feeds[asset] = &feed{source: source, cfg: cfg}
	o.supported.Add(asset)
	return nil
}

// RemoveFeed returns asset to Unconfigured and drops its cache.
func (o *PriceOracle) RemoveFeed(asset string) error {
	if _, ok := o.feeds[asset]; !ok {
		return errs.State("remove feed", "%s is not configured", asset)
	}
	delete(o.feeds, asset)
	o.supported.Remove(asset)
	return nil
}

// SetUnitFeed configures the unit-of-account feed.
func (o *PriceOracle) SetUnitFeed(source Source, deviationThresholdBps uint64, staleness time.Duration) error {
	if source == nil {
		return errs.Validation("set unit feed", "source is required")
	}
	cfg := FeedConfig{DeviationThresholdBps: deviationThresholdBps, Staleness: staleness, Heartbeat: DefaultHeartbeat}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if o.unit != nil {
		o.unit.source = source
		o.unit.cfg = cfg
		return nil
	}
	o.unit = &feed{source: source, cfg: cfg}
	return nil
}

// SetHeartbeat overrides the heartbeat of asset, or of the unit feed when
// asset is UnitFeed.
func (o *PriceOracle) SetHeartbeat(asset string, heartbeat time.Duration) error {
	if heartbeat <= 0 {
		return errs.Validation("set heartbeat", "heartbeat must be positive")
	}
	f, err := o.lookup("set heartbeat", asset)
	if err != nil {
		return err
	}
	f.cfg.Heartbeat = heartbeat
	return nil
}

func (o *PriceOracle) lookup(op, asset string) (*feed, error) {
	if asset == UnitFeed {
		if o.unit == nil {
			return nil, errs.State(op, "unit feed is not configured")
		}
		return o.unit, nil
	}
	f, ok := o.feeds[asset]
	if !ok {
		return nil, errs.Validation(op, "%s is not configured", asset)
	}
	return f, nil
}

// State reports whether asset (or UnitFeed) is configured.
func (o *PriceOracle) State(asset string) FeedState {
	if _, err := o.lookup("state", asset); err != nil {
		return FeedUnconfigured
	}
	return FeedConfigured
}

// Config returns the guards of a configured feed.
func (o *PriceOracle) Config(asset string) (FeedConfig, bool) {
	f, err := o.lookup("config", asset)
	if err != nil {
		return FeedConfig{}, false
	}
	return f.cfg, true
}

// Supported lists configured assets. Order is not stable across removals.
func (o *PriceOracle) Supported() []string {
	return o.supported.Items()
}

// Refresh reads the source of asset once and applies the staleness, heartbeat
// and deviation guards in that order. Source faults and rejections come back
// as an invalid Result; the error is reserved for an unconfigured asset.
func (o *PriceOracle) Refresh(ctx context.Context, asset string, now time.Time) (Result, error) {
	f, err := o.lookup("refresh", asset)
	if err != nil {
		return Result{}, err
	}
	return f.refresh(ctx, asset, now), nil
}

// RefreshUnit refreshes the unit-of-account feed.
func (o *PriceOracle) RefreshUnit(ctx context.Context, now time.Time) (Result, error) {
	return o.Refresh(ctx, UnitFeed, now)
}

func (f *feed) refresh(ctx context.Context, name string, now time.Time) Result {
	obs, err := f.source.Latest(ctx)
	if err == nil && obs.Price == nil {
		err = ErrNoObservation
	}
	if err != nil {
		return f.reject(errs.Wrap(errs.KindOracleInvalid, "refresh "+name, err))
	}

	if obs.UpdatedAt.After(now) {
		return f.reject(errs.OracleInvalid("refresh", "%s source time %s is ahead of now", name, obs.UpdatedAt.Format(time.RFC3339)))
	}
	age := now.Sub(obs.UpdatedAt)
	if age > f.cfg.Staleness {
		return f.reject(errs.OracleInvalid("refresh", "%s price is stale (age %s > %s)", name, age, f.cfg.Staleness))
	}
	if f.cfg.Heartbeat > 0 && age > f.cfg.Heartbeat {
		return f.reject(errs.OracleInvalid("refresh", "%s missed heartbeat (age %s > %s)", name, age, f.cfg.Heartbeat))
	}
	if f.last != nil {
		dev, err := math.DeviationBps(f.last.Price, obs.Price)
		if err != nil {
			return f.reject(err)
		}
		if dev.Gt(uint256.NewInt(f.cfg.DeviationThresholdBps)) {
			return f.reject(errs.OracleInvalid("refresh", "%s deviation %s bps exceeds %d", name, deviationString(dev), f.cfg.DeviationThresholdBps))
		}
	}

	f.last = &Quote{Price: obs.Price.Clone(), UpdatedAt: obs.UpdatedAt}
	f.stale = false
	return valid(*f.last)
}

func (f *feed) reject(reason error) Result {
	f.stale = true
	return invalid(f.last, reason)
}

func deviationString(d *uint256.Int) string {
	if math.IsMax(d) {
		return "max"
	}
	return d.Dec()
}

// Read returns the cached price of asset without re-validating freshness.
func (o *PriceOracle) Read(asset string) Result {
	f, err := o.lookup("read", asset)
	if err != nil {
		return invalid(nil, errs.OracleInvalid("read", "%s is not configured", asset))
	}
	return f.read(asset)
}

// ReadUnit returns the cached unit-of-account price.
func (o *PriceOracle) ReadUnit() Result {
	return o.Read(UnitFeed)
}
