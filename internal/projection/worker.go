package projection

import (
	"context"
	"database/sql"
	"sync/atomic"
	"time"

	"GoldLedger/internal/core"
	"GoldLedger/internal/event"
	"GoldLedger/internal/observability"
	"GoldLedger/internal/persistence"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Name is the watermark key for the read-model tables.
const Name = "readmodel"

const (
	catchUpPage   = 500
	retryInterval = time.Second
)

// EventSource reads the persisted event log.
type EventSource interface {
	LoadEventsFrom(ctx context.Context, fromSequence int64, limit int) ([]persistence.EventRow, error)
}

// ProjectionWorker updates projection tables from processed events.
// The projection channel is non-blocking with drop; a worker that fell
// behind catches up from the event log.
type ProjectionWorker struct {
	db        *sql.DB
	inputChan <-chan core.CoreOutput
	source    EventSource
	logger    zerolog.Logger
	metrics   *observability.Metrics
	lastSeq   atomic.Int64
}

func NewProjectionWorker(db *sql.DB, inputChan <-chan core.CoreOutput, source EventSource, logger zerolog.Logger, metrics *observability.Metrics) *ProjectionWorker {
	return &ProjectionWorker{
		db:        db,
		inputChan: inputChan,
		source:    source,
		logger:    logger,
		metrics:   metrics,
	}
}

// LastSequence is the highest sequence folded into the projections.
func (pw *ProjectionWorker) LastSequence() int64 { return pw.lastSeq.Load() }

// Run catches up from the event log, then applies live outputs. Outputs
// past a gap (a dropped output) are skipped until catch-up from the log has
// closed it; while behind, catch-up is retried every retryInterval.
func (pw *ProjectionWorker) Run(ctx context.Context) error {
	if err := pw.CatchUp(ctx); err != nil {
		pw.logger.Warn().Err(err).Msg("initial catch-up failed")
	}

	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()
	behind := false

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			if behind {
				if err := pw.CatchUp(ctx); err != nil {
					pw.logger.Warn().Err(err).Msg("catch-up failed")
				}
			}

		case out, ok := <-pw.inputChan:
			if !ok {
				return nil
			}
			if len(out.Envelopes) == 0 {
				continue
			}

			first := out.Envelopes[0].Sequence
			if first > pw.lastSeq.Load()+1 {
				if err := pw.CatchUp(ctx); err != nil {
					pw.logger.Warn().Err(err).Int64("from", pw.lastSeq.Load()+1).Msg("catch-up failed")
				}
			}
			// The log may not hold the missing events yet.
			if behind = first > pw.lastSeq.Load()+1; behind {
				continue
			}

			if err := pw.ApplyEnvelopes(ctx, out.Envelopes); err != nil {
				behind = true
				pw.logger.Warn().Err(err).Int64("sequence", first).Msg("projection update failed")
			}
		}
	}
}

// ApplyEnvelopes folds envelopes at or below the watermark as no-ops and
// the rest in one transaction together with the new watermark.
func (pw *ProjectionWorker) ApplyEnvelopes(ctx context.Context, envs []*event.EventEnvelope) error {
	start := time.Now()

	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer tx.Rollback()

	watermark, err := readWatermark(ctx, tx)
	if err != nil {
		return err
	}

	last := watermark
	for _, env := range envs {
		if env.Sequence <= watermark {
			continue
		}
		evt := env.Event
		if evt == nil {
			if evt, err = event.Decode(env.EventType, env.Payload); err != nil {
				return errors.Wrapf(err, "decode %d", env.Sequence)
			}
		}
		if err := apply(ctx, tx, env.Sequence, evt); err != nil {
			return err
		}
		last = env.Sequence
	}
	if last == watermark {
		pw.lastSeq.Store(watermark)
		return nil
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (projection, last_sequence, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (projection) DO UPDATE SET last_sequence = $2, updated_at = NOW()
	`, Name, last); err != nil {
		return errors.Wrap(err, "watermark update")
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit")
	}

	pw.lastSeq.Store(last)
	if pw.metrics != nil {
		pw.metrics.ProjectionUpdateDur.WithLabelValues(Name).Observe(time.Since(start).Seconds())
	}
	return nil
}

// CatchUp applies every persisted event above the watermark.
func (pw *ProjectionWorker) CatchUp(ctx context.Context) error {
	watermark, err := readWatermark(ctx, pw.db)
	if err != nil {
		return err
	}
	pw.lastSeq.Store(watermark)

	for {
		rows, err := pw.source.LoadEventsFrom(ctx, pw.lastSeq.Load()+1, catchUpPage)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		envs := make([]*event.EventEnvelope, 0, len(rows))
		for _, r := range rows {
			envs = append(envs, &event.EventEnvelope{
				Sequence:  r.Sequence,
				EventType: event.ParseEventType(r.EventType),
				Payload:   r.Payload,
			})
		}
		if err := pw.ApplyEnvelopes(ctx, envs); err != nil {
			return err
		}
		pw.logger.Info().Int64("through", pw.lastSeq.Load()).Int("events", len(rows)).Msg("projection caught up")

		if len(rows) < catchUpPage {
			return nil
		}
	}
}

// Rebuild truncates the projection tables and replays the whole event log.
func (pw *ProjectionWorker) Rebuild(ctx context.Context) error {
	for _, stmt := range []string{
		`TRUNCATE projections.loans`,
		`TRUNCATE projections.auctions`,
		`TRUNCATE projections.fund`,
		`TRUNCATE projections.prices`,
	} {
		if _, err := pw.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "truncate")
		}
	}
	if _, err := pw.db.ExecContext(ctx, `DELETE FROM projections.watermark WHERE projection = $1`, Name); err != nil {
		return errors.Wrap(err, "reset watermark")
	}
	pw.lastSeq.Store(0)
	return pw.CatchUp(ctx)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func readWatermark(ctx context.Context, q queryRower) (int64, error) {
	var seq int64
	err := q.QueryRowContext(ctx,
		`SELECT last_sequence FROM projections.watermark WHERE projection = $1`, Name,
	).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, errors.Wrap(err, "read watermark")
}
