package core

import (
	"context"
	"time"

	"GoldLedger/internal/access"
	"GoldLedger/internal/errs"
	"GoldLedger/internal/event"
	"GoldLedger/internal/oracle"

	"github.com/google/uuid"
)

// RefreshPrice pulls one observation for asset (or the unit feed when asset
// is oracle.UnitFeed) through the oracle guards. A rejected observation is not
// an error: the Result is invalid and a PriceRejected event is emitted.
func (e *Engine) RefreshPrice(ctx context.Context, caller uuid.UUID, asset string) (oracle.Result, error) {
	const op = "refresh price"
	var res oracle.Result
	err := e.run(op, []string{oracleResource}, func(t *tx, now time.Time) error {
		if err := e.require(access.RoleKeeper, caller, op); err != nil {
			return err
		}
		var err error
		res, err = e.oracle.Refresh(ctx, asset, now)
		if err != nil {
			return err
		}
		outcome := "accepted"
		if q, qerr := res.Quote(); qerr == nil {
			t.emit(&event.PriceAccepted{Feed: asset, Price: q.Price, UpdatedAt: q.UpdatedAt})
		} else {
			outcome = "rejected"
			t.emit(&event.PriceRejected{Feed: asset, Reason: qerr.Error()})
			e.logger.Warn().Str("feed", asset).Err(qerr).Msg("price rejected")
		}
		if e.metrics != nil {
			e.metrics.OracleRefreshes.WithLabelValues(asset, outcome).Inc()
		}
		return nil
	})
	return res, err
}

// RefreshAll refreshes the unit feed and every supported asset and returns
// the per-feed results. Unconfigured feeds are skipped.
func (e *Engine) RefreshAll(ctx context.Context, caller uuid.UUID) (map[string]oracle.Result, error) {
	out := make(map[string]oracle.Result)
	feeds := e.oracle.Supported()
	if _, ok := e.oracle.Config(oracle.UnitFeed); ok {
		feeds = append([]string{oracle.UnitFeed}, feeds...)
	}
	for _, f := range feeds {
		res, err := e.RefreshPrice(ctx, caller, f)
		if err != nil {
			return out, err
		}
		out[f] = res
	}
	return out, nil
}

// AddFeed configures asset with the source the resolver supplies for it.
func (e *Engine) AddFeed(caller uuid.UUID, asset string, deviationThresholdBps uint64, staleness time.Duration) error {
	const op = "add feed"
	return e.run(op, []string{oracleResource}, func(t *tx, now time.Time) error {
		if err := e.require(access.RoleManager, caller, op); err != nil {
			return err
		}
		src, err := e.resolve(op, asset)
		if err != nil {
			return err
		}
		if err := e.oracle.AddFeed(asset, src, deviationThresholdBps, staleness); err != nil {
			return err
		}
		t.emit(feedAdded(e.oracle, asset))
		return nil
	})
}

func (e *Engine) RemoveFeed(caller uuid.UUID, asset string) error {
	const op = "remove feed"
	return e.run(op, []string{oracleResource}, func(t *tx, now time.Time) error {
		if err := e.require(access.RoleManager, caller, op); err != nil {
			return err
		}
		if err := e.oracle.RemoveFeed(asset); err != nil {
			return err
		}
		t.emit(&event.FeedRemoved{Feed: asset})
		return nil
	})
}

func (e *Engine) SetUnitFeed(caller uuid.UUID, deviationThresholdBps uint64, staleness time.Duration) error {
	const op = "set unit feed"
	return e.run(op, []string{oracleResource}, func(t *tx, now time.Time) error {
		if err := e.require(access.RoleManager, caller, op); err != nil {
			return err
		}
		src, err := e.resolve(op, oracle.UnitFeed)
		if err != nil {
			return err
		}
		if err := e.oracle.SetUnitFeed(src, deviationThresholdBps, staleness); err != nil {
			return err
		}
		t.emit(feedAdded(e.oracle, oracle.UnitFeed))
		return nil
	})
}

func (e *Engine) SetHeartbeat(caller uuid.UUID, feed string, heartbeat time.Duration) error {
	const op = "set heartbeat"
	return e.run(op, []string{oracleResource}, func(t *tx, now time.Time) error {
		if err := e.require(access.RoleManager, caller, op); err != nil {
			return err
		}
		if err := e.oracle.SetHeartbeat(feed, heartbeat); err != nil {
			return err
		}
		t.emit(feedAdded(e.oracle, feed))
		return nil
	})
}

func (e *Engine) resolve(op, feed string) (oracle.Source, error) {
	if e.sources == nil {
		return nil, errs.Validation(op, "no price source resolver configured")
	}
	src := e.sources(feed)
	if src == nil {
		return nil, errs.Validation(op, "no price source for %s", feed)
	}
	return src, nil
}

func feedAdded(o *oracle.PriceOracle, feed string) *event.FeedAdded {
	cfg, _ := o.Config(feed)
	return &event.FeedAdded{
		Feed:                  feed,
		DeviationThresholdBps: cfg.DeviationThresholdBps,
		StalenessSeconds:      int64(cfg.Staleness / time.Second),
		HeartbeatSeconds:      int64(cfg.Heartbeat / time.Second),
	}
}
