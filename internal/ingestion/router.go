package ingestion

import (
	"context"
	"fmt"
	"time"

	"GoldLedger/internal/command"
	"GoldLedger/internal/core"
	"GoldLedger/internal/errs"
	"GoldLedger/internal/observability"
	"GoldLedger/internal/oracle"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Submitter runs a command through the processor.
type Submitter interface {
	Submit(ctx context.Context, cmd command.Command) (*core.CoreOutput, error)
}

// RouterConfig configures the Router.
type RouterConfig struct {
	// RefreshAs, when set, submits a RefreshPrice as this keeper after every
	// accepted push so the oracle cache follows the feed.
	RefreshAs uuid.UUID
}

// Router drains raw messages: commands go to the processor, price pushes go
// to the feed sources.
type Router struct {
	input     <-chan RawMessage
	submitter Submitter
	sources   *oracle.PushSources
	sequencer *PriceSequencer
	cfg       RouterConfig
	logger    zerolog.Logger
	metrics   *observability.Metrics
}

func NewRouter(
	input <-chan RawMessage,
	submitter Submitter,
	sources *oracle.PushSources,
	sequencer *PriceSequencer,
	cfg RouterConfig,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *Router {
	return &Router{
		input:     input,
		submitter: submitter,
		sources:   sources,
		sequencer: sequencer,
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
	}
}

func (r *Router) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-r.input:
			if !ok {
				return nil
			}
			r.handle(ctx, msg)
		}
	}
}

func (r *Router) handle(ctx context.Context, msg RawMessage) {
	var err error
	switch msg.Kind {
	case KindCommand:
		err = r.handleCommand(ctx, msg)
	case KindPrice:
		err = r.handlePrice(ctx, msg)
	default:
		err = errs.Validation("route", "unknown message kind %d", msg.Kind)
	}
	if r.metrics != nil {
		r.metrics.IngestToApply.WithLabelValues(msg.Token()).Observe(time.Since(msg.Timestamp).Seconds())
	}

	switch {
	case err == nil:
		ack(msg)
	case Terminal(err):
		// Redelivery cannot change the outcome.
		r.logger.Warn().Err(err).Str("subject", msg.Subject).Msg("message rejected")
		ack(msg)
	default:
		r.logger.Error().Err(err).Str("subject", msg.Subject).Msg("message failed, requesting redelivery")
		if msg.NakFunc != nil {
			msg.NakFunc()
		}
	}
}

func ack(msg RawMessage) {
	if msg.AckFunc != nil {
		msg.AckFunc()
	}
}

// Terminal reports whether err is a classified engine failure, as opposed to
// a transport or context failure worth retrying.
func Terminal(err error) bool {
	return errs.KindOf(err) != errs.KindUnknown
}

func (r *Router) handleCommand(ctx context.Context, msg RawMessage) error {
	cmd, err := ParseCommand(msg.Data, msg.Token())
	if err != nil {
		return err
	}
	out, err := r.submitter.Submit(ctx, cmd)
	if err != nil {
		return err
	}
	if out == nil {
		r.logger.Debug().Str("key", cmd.IdempotencyKey()).Msg("duplicate command")
	}
	return nil
}

func (r *Router) handlePrice(ctx context.Context, msg RawMessage) error {
	upd, err := ParsePriceUpdate(msg.Data, msg.Token())
	if err != nil {
		return err
	}
	if !r.sequencer.Accept(upd.Feed, upd.Sequence) {
		r.logger.Debug().Str("feed", upd.Feed).Int64("sequence", upd.Sequence).Msg("stale price dropped")
		return nil
	}
	r.sources.Get(upd.Feed).Push(upd.Price, upd.UpdatedAt)

	if r.cfg.RefreshAs == uuid.Nil {
		return nil
	}
	_, err = r.submitter.Submit(ctx, &command.RefreshPrice{
		Meta:  command.Meta{ID: fmt.Sprintf("push:%s:%d", upd.Feed, upd.Sequence), By: r.cfg.RefreshAs},
		Asset: upd.Feed,
	})
	if errs.KindOf(err) == errs.KindValidation {
		// Pushed feeds need not be configured in the oracle yet.
		r.logger.Debug().Err(err).Str("feed", upd.Feed).Msg("refresh skipped")
		return nil
	}
	return err
}
