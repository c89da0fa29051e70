// Package keeper refreshes every configured price feed on a fixed interval.
package keeper

import (
	"context"
	"fmt"
	"time"

	"GoldLedger/internal/command"
	"GoldLedger/internal/core"
	"GoldLedger/internal/oracle"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Pipeline is the part of the processor the keeper drives.
type Pipeline interface {
	Submit(ctx context.Context, cmd command.Command) (*core.CoreOutput, error)
	Query(ctx context.Context, fn func(*core.Engine)) error
}

// Keeper submits a RefreshPrice for the unit feed and each asset feed every
// interval, as identity. identity needs the Keeper role.
type Keeper struct {
	pipeline Pipeline
	identity uuid.UUID
	interval time.Duration
	logger   zerolog.Logger
}

func New(pipeline Pipeline, identity uuid.UUID, interval time.Duration, logger zerolog.Logger) *Keeper {
	return &Keeper{pipeline: pipeline, identity: identity, interval: interval, logger: logger}
}

// Run ticks until ctx is cancelled. A failed tick is logged and retried on
// the next one.
func (k *Keeper) Run(ctx context.Context) error {
	if k.interval <= 0 {
		return fmt.Errorf("keeper interval must be positive, got %s", k.interval)
	}
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	k.logger.Info().Dur("interval", k.interval).Str("identity", k.identity.String()).Msg("keeper started")
	for {
		if err := k.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			k.logger.Warn().Err(err).Msg("keeper tick failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick refreshes every feed once. A rejected observation is not an error;
// the first submit failure is returned after the remaining feeds ran.
func (k *Keeper) Tick(ctx context.Context) error {
	feeds, err := k.feeds(ctx)
	if err != nil {
		return err
	}

	var first error
	for _, feed := range feeds {
		cmd := &command.RefreshPrice{
			Meta:  command.Meta{ID: "keeper:refresh:" + feed + ":" + uuid.NewString(), By: k.identity},
			Asset: feed,
		}
		if _, err := k.pipeline.Submit(ctx, cmd); err != nil {
			k.logger.Warn().Err(err).Str("feed", feed).Msg("refresh failed")
			if first == nil {
				first = errors.Wrapf(err, "refresh %s", feed)
			}
		}
	}
	return first
}

// feeds lists the unit feed, when configured, followed by the asset feeds.
func (k *Keeper) feeds(ctx context.Context) ([]string, error) {
	var feeds []string
	err := k.pipeline.Query(ctx, func(e *core.Engine) {
		if _, ok := e.FeedConfig(oracle.UnitFeed); ok {
			feeds = append(feeds, oracle.UnitFeed)
		}
		feeds = append(feeds, e.Feeds()...)
	})
	if err != nil {
		return nil, errors.Wrap(err, "list feeds")
	}
	return feeds, nil
}
