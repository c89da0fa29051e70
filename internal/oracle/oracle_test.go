package oracle_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"GoldLedger/internal/errs"
	"GoldLedger/internal/math"
	"GoldLedger/internal/oracle"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newOracle(t *testing.T) (*oracle.PriceOracle, *oracle.PushSource) {
	t.Helper()
	o := oracle.New()
	src := oracle.NewPushSource()
	require.NoError(t, o.AddFeed("PAXG", src, 500, 2*time.Hour))
	return o, src
}

func mustRefresh(t *testing.T, o *oracle.PriceOracle, asset string, now time.Time) oracle.Result {
	t.Helper()
	res, err := o.Refresh(context.Background(), asset, now)
	require.NoError(t, err)
	return res
}

// ============================================================================
// Feed lifecycle
// ============================================================================

func TestAddFeed_Validation(t *testing.T) {
	o := oracle.New()
	src := oracle.NewPushSource()

	require.ErrorIs(t, o.AddFeed("PAXG", src, 5001, time.Hour), errs.ErrValidation)
	require.ErrorIs(t, o.AddFeed("PAXG", src, 500, 0), errs.ErrValidation)
	require.ErrorIs(t, o.AddFeed("", src, 500, time.Hour), errs.ErrValidation)
	require.ErrorIs(t, o.AddFeed("PAXG", nil, 500, time.Hour), errs.ErrValidation)
	assert.Equal(t, oracle.FeedUnconfigured, o.State("PAXG"))

	require.NoError(t, o.AddFeed("PAXG", src, 5000, time.Hour))
	assert.Equal(t, oracle.FeedConfigured, o.State("PAXG"))
	cfg, ok := o.Config("PAXG")
	require.True(t, ok)
	assert.Equal(t, oracle.DefaultHeartbeat, cfg.Heartbeat)
}

func TestAddFeed_DuplicateOverwritesConfigKeepsMembership(t *testing.T) {
	o, src := newOracle(t)
	require.NoError(t, o.AddFeed("PAXG", src, 100, 3*time.Hour))

	assert.Equal(t, []string{"PAXG"}, o.Supported())
	cfg, _ := o.Config("PAXG")
	assert.Equal(t, uint64(100), cfg.DeviationThresholdBps)
	assert.Equal(t, 3*time.Hour, cfg.Staleness)
}

func TestRemoveFeed(t *testing.T) {
	o, _ := newOracle(t)
	require.NoError(t, o.AddFeed("XAUT", oracle.NewPushSource(), 500, time.Hour))

	require.NoError(t, o.RemoveFeed("PAXG"))
	assert.Equal(t, []string{"XAUT"}, o.Supported())
	assert.Equal(t, oracle.FeedUnconfigured, o.State("PAXG"))

	require.ErrorIs(t, o.RemoveFeed("PAXG"), errs.ErrState)
	assert.False(t, o.Read("PAXG").Valid())
}

// ============================================================================
// Refresh guards
// ============================================================================

func TestRefresh_FirstObservationTrusted(t *testing.T) {
	o, src := newOracle(t)
	src.Push(math.Units(2000), t0)

	res := mustRefresh(t, o, "PAXG", t0.Add(time.Minute))
	require.True(t, res.Valid())
	q, err := res.Quote()
	require.NoError(t, err)
	assert.True(t, q.Price.Eq(math.Units(2000)))
	assert.Equal(t, t0, q.UpdatedAt)
}

func TestRefresh_SourceFaultIsSoft(t *testing.T) {
	o, src := newOracle(t)
	src.Fail(errors.New("connection refused"))

	res, err := o.Refresh(context.Background(), "PAXG", t0)
	require.NoError(t, err, "source faults never raise")
	assert.False(t, res.Valid())
	require.ErrorIs(t, res.Err(), errs.ErrOracleInvalid)
}

func TestRefresh_NoObservationYet(t *testing.T) {
	o, _ := newOracle(t)
	res := mustRefresh(t, o, "PAXG", t0)
	assert.False(t, res.Valid())
	assert.ErrorIs(t, res.Err(), oracle.ErrNoObservation)
}

func TestRefresh_UnconfiguredIsValidationError(t *testing.T) {
	o := oracle.New()
	_, err := o.Refresh(context.Background(), "PAXG", t0)
	require.ErrorIs(t, err, errs.ErrValidation)
}

func TestRefresh_StaleRejected(t *testing.T) {
	o, src := newOracle(t)
	src.Push(math.Units(2000), t0)

	res := mustRefresh(t, o, "PAXG", t0.Add(2*time.Hour+time.Second))
	assert.False(t, res.Valid())
	assert.Contains(t, res.Err().Error(), "stale")
}

func TestRefresh_HeartbeatTighterThanStaleness(t *testing.T) {
	o, src := newOracle(t)
	require.NoError(t, o.SetHeartbeat("PAXG", 10*time.Minute))
	src.Push(math.Units(2000), t0)

	res := mustRefresh(t, o, "PAXG", t0.Add(11*time.Minute))
	assert.False(t, res.Valid())
	assert.Contains(t, res.Err().Error(), "heartbeat")

	res = mustRefresh(t, o, "PAXG", t0.Add(9*time.Minute))
	assert.True(t, res.Valid())
}

func TestRefresh_FutureTimestampRejected(t *testing.T) {
	o, src := newOracle(t)
	src.Push(math.Units(2000), t0.Add(time.Minute))
	res := mustRefresh(t, o, "PAXG", t0)
	assert.False(t, res.Valid())
}

func TestRefresh_DeviationRejectedCacheUnchanged(t *testing.T) {
	o, src := newOracle(t)
	src.Push(math.Units(2000), t0)
	require.True(t, mustRefresh(t, o, "PAXG", t0).Valid())

	// +6% against a 5% threshold.
	src.Push(math.Units(2120), t0.Add(time.Minute))
	res := mustRefresh(t, o, "PAXG", t0.Add(time.Minute))
	assert.False(t, res.Valid())
	assert.Contains(t, res.Err().Error(), "deviation")

	cached, ok := res.Cached()
	require.True(t, ok)
	assert.True(t, cached.Price.Eq(math.Units(2000)), "rejected update leaves the cache untouched")
	assert.Equal(t, t0, cached.UpdatedAt)

	read := o.Read("PAXG")
	assert.False(t, read.Valid(), "cached price is stale-flagged after a rejection")
	stale, ok := read.Cached()
	require.True(t, ok)
	assert.True(t, stale.Price.Eq(math.Units(2000)))

	// +5% exactly is accepted and clears the flag.
	src.Push(math.Units(2100), t0.Add(2*time.Minute))
	require.True(t, mustRefresh(t, o, "PAXG", t0.Add(2*time.Minute)).Valid())
	assert.True(t, o.Read("PAXG").Valid())
}

// Read never re-checks freshness: an accepted price stays valid no matter how
// much time passes without a refresh.
func TestRead_DoesNotImplyFreshness(t *testing.T) {
	o, src := newOracle(t)
	src.Push(math.Units(2000), t0)
	require.True(t, mustRefresh(t, o, "PAXG", t0).Valid())

	res := o.Read("PAXG")
	require.True(t, res.Valid())
	q, err := res.Quote()
	require.NoError(t, err)
	assert.Equal(t, t0, q.UpdatedAt)
}

func TestUnitFeed(t *testing.T) {
	o := oracle.New()
	assert.False(t, o.ReadUnit().Valid())
	_, err := o.RefreshUnit(context.Background(), t0)
	require.ErrorIs(t, err, errs.ErrState)

	src := oracle.NewStaticSource(math.Units(2000), t0)
	require.NoError(t, o.SetUnitFeed(src, 500, time.Hour))
	res, err := o.RefreshUnit(context.Background(), t0)
	require.NoError(t, err)
	require.True(t, res.Valid())
	assert.True(t, o.ReadUnit().Valid())
	assert.Empty(t, o.Supported(), "unit feed is not an asset feed")
}

func TestSnapshotRestore(t *testing.T) {
	o, src := newOracle(t)
	src.Push(math.Units(2000), t0)
	mustRefresh(t, o, "PAXG", t0)
	require.NoError(t, o.SetHeartbeat("PAXG", 30*time.Minute))
	require.NoError(t, o.AddFeed("XAUT", oracle.NewPushSource(), 800, time.Hour))
	require.NoError(t, o.SetUnitFeed(oracle.NewStaticSource(math.Units(1), t0), 500, time.Hour))
	mustRefresh(t, o, oracle.UnitFeed, t0)

	snaps := o.Snapshot()
	require.Len(t, snaps, 3)

	// The fresh oracle was configured differently; the snapshot replaces it.
	fresh := oracle.New()
	require.NoError(t, fresh.AddFeed("GONE", oracle.NewPushSource(), 500, time.Hour))
	sources := oracle.NewPushSources()
	require.NoError(t, fresh.Restore(snaps, func(feed string) oracle.Source { return sources.Get(feed) }))

	assert.ElementsMatch(t, []string{"PAXG", "XAUT"}, fresh.Supported())
	assert.Equal(t, oracle.FeedUnconfigured, fresh.State("GONE"))
	cfg, ok := fresh.Config("PAXG")
	require.True(t, ok)
	assert.Equal(t, 30*time.Minute, cfg.Heartbeat)
	cfg, ok = fresh.Config("XAUT")
	require.True(t, ok)
	assert.Equal(t, uint64(800), cfg.DeviationThresholdBps)

	q, err := fresh.Read("PAXG").Quote()
	require.NoError(t, err)
	assert.True(t, q.Price.Eq(math.Units(2000)))
	assert.True(t, fresh.ReadUnit().Valid())
	assert.False(t, fresh.Read("XAUT").Valid(), "no price yet")

	// Restored feeds read from the resolved sources.
	sources.Get("XAUT").Push(math.Units(1990), t0)
	assert.True(t, mustRefresh(t, fresh, "XAUT", t0).Valid())
}

func TestSnapshotRestore_FailureLeavesOracleUnchanged(t *testing.T) {
	o, src := newOracle(t)
	src.Push(math.Units(2000), t0)
	mustRefresh(t, o, "PAXG", t0)
	snaps := o.Snapshot()

	target, _ := newOracle(t)
	err := target.Restore(snaps, func(string) oracle.Source { return nil })
	assert.ErrorIs(t, err, errs.ErrValidation)
	err = target.Restore([]oracle.FeedSnapshot{{Feed: "PAXG"}}, func(string) oracle.Source { return oracle.NewPushSource() })
	assert.ErrorIs(t, err, errs.ErrValidation, "zero staleness")

	assert.Equal(t, []string{"PAXG"}, target.Supported())
	assert.False(t, target.Read("PAXG").Valid(), "target cache untouched")
}
