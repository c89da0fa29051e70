package ingestion

import (
	"context"
	"time"

	"GoldLedger/internal/command"
	"GoldLedger/internal/core"
	"GoldLedger/internal/errs"
	"GoldLedger/internal/math"
	"GoldLedger/internal/oracle"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Injector is the manual entry point used by the gRPC and HTTP API. It is for
// operators and keepers, not high-throughput ingestion (use NATS for that).
type Injector struct {
	submitter Submitter
	sources   *oracle.PushSources
	sequencer *PriceSequencer
	now       func() time.Time
}

func NewInjector(submitter Submitter, sources *oracle.PushSources, sequencer *PriceSequencer) *Injector {
	return &Injector{submitter: submitter, sources: sources, sequencer: sequencer, now: time.Now}
}

// InjectCommand parses a JSON command body and submits it. A nil output with
// no error means the command was a duplicate.
func (s *Injector) InjectCommand(ctx context.Context, commandType string, body []byte) (*core.CoreOutput, error) {
	cmd, err := ParseCommand(body, commandType)
	if err != nil {
		return nil, err
	}
	return s.submitter.Submit(ctx, cmd)
}

// InjectPrice pushes an observation for feed and refreshes it as caller.
// Manual pushes take the next sequence after the last one seen on the feed.
func (s *Injector) InjectPrice(ctx context.Context, caller uuid.UUID, feed string, price decimal.Decimal, updatedAt time.Time) (*core.CoreOutput, error) {
	const op = "inject price"
	if feed == "" {
		return nil, errs.Validation(op, "feed is required")
	}
	if !price.IsPositive() {
		return nil, errs.Validation(op, "%s price must be positive", feed)
	}
	p, err := math.FromDecimal(price)
	if err != nil {
		return nil, err
	}
	if updatedAt.IsZero() {
		updatedAt = s.now()
	}

	last, _ := s.sequencer.Last(feed)
	seq := last + 1
	s.sequencer.Reset(feed, seq)
	s.sources.Get(feed).Push(p, updatedAt)

	return s.submitter.Submit(ctx, &command.RefreshPrice{
		Meta:  command.Meta{ID: "manual:" + feed + ":" + uuid.NewString(), By: caller},
		Asset: feed,
	})
}
