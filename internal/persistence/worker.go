package persistence

import (
	"context"
	"database/sql"
	"time"

	"GoldLedger/internal/core"
	"GoldLedger/internal/observability"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// PersistenceWorker drains the persist channel and batch-writes to Postgres.
// It runs independently from the processor. The persist channel uses blocking
// sends, so if this worker falls behind the processor stalls and no event is
// lost.
type PersistenceWorker struct {
	db           *sql.DB
	writer       EventLogWriter
	inputChan    <-chan core.CoreOutput
	batchSize    int
	flushTimeout time.Duration
	maxBackoff   time.Duration
	logger       zerolog.Logger
	metrics      *observability.Metrics
}

type pendingBatch struct {
	events   []EventRow
	moves    []MoveRow
	commands []CommandRow
	applied  time.Time
}

func (b *pendingBatch) add(out core.CoreOutput) {
	events, moves, cmd := Rows(out)
	b.events = append(b.events, events...)
	b.moves = append(b.moves, moves...)
	if cmd != nil {
		b.commands = append(b.commands, *cmd)
	}
	if b.applied.IsZero() {
		b.applied = time.Now()
	}
}

func (b *pendingBatch) size() int { return len(b.events) + len(b.commands) }

func (b *pendingBatch) reset() {
	b.events = b.events[:0]
	b.moves = b.moves[:0]
	b.commands = b.commands[:0]
	b.applied = time.Time{}
}

func NewPersistenceWorker(
	db *sql.DB,
	inputChan <-chan core.CoreOutput,
	batchSize int,
	flushTimeout time.Duration,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *PersistenceWorker {
	return &PersistenceWorker{
		db:           db,
		inputChan:    inputChan,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		maxBackoff:   30 * time.Second,
		logger:       logger,
		metrics:      metrics,
	}
}

// Run starts the persistence worker loop. It batches incoming outputs
// and flushes either when the batch is full or the flush timeout expires.
// Blocks until ctx is cancelled.
func (pw *PersistenceWorker) Run(ctx context.Context) error {
	batch := &pendingBatch{}

	timer := time.NewTimer(pw.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			// Graceful shutdown: flush remaining
			if batch.size() > 0 {
				if err := pw.flush(context.Background(), batch); err != nil {
					pw.logger.Error().Err(err).Msg("final flush failed")
				}
			}
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				if batch.size() > 0 {
					if err := pw.flush(context.Background(), batch); err != nil {
						pw.logger.Error().Err(err).Msg("final flush failed")
					}
				}
				return nil
			}

			batch.add(output)
			if pw.metrics != nil {
				pw.metrics.SetChannelMetrics("persist", len(pw.inputChan), cap(pw.inputChan))
			}

			if batch.size() >= pw.batchSize {
				if err := pw.flushWithRetry(ctx, batch); err != nil {
					pw.logger.Error().Err(err).Msg("batch flush failed after retries")
				}
				batch.reset()
				timer.Reset(pw.flushTimeout)
			}

		case <-timer.C:
			if batch.size() > 0 {
				if err := pw.flushWithRetry(ctx, batch); err != nil {
					pw.logger.Error().Err(err).Msg("timeout flush failed after retries")
				}
				batch.reset()
			}
			timer.Reset(pw.flushTimeout)
		}
	}
}

// flushWithRetry retries with exponential backoff until the write succeeds
// or ctx is cancelled. On cancellation it makes one last attempt.
func (pw *PersistenceWorker) flushWithRetry(ctx context.Context, batch *pendingBatch) error {
	backoff := 100 * time.Millisecond

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			pw.logger.Warn().Int("attempt", attempt).Dur("backoff", backoff).Int("events", len(batch.events)).Msg("persistence retry")
			select {
			case <-ctx.Done():
				return pw.flush(context.Background(), batch)
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > pw.maxBackoff {
				backoff = pw.maxBackoff
			}
			if pw.metrics != nil {
				pw.metrics.PersistRetry.Inc()
			}
		}

		err := pw.flush(ctx, batch)
		if err == nil {
			if attempt > 0 {
				pw.logger.Info().Int("retries", attempt).Msg("persistence flush succeeded")
			}
			return nil
		}
		pw.logger.Error().Err(err).Msg("persistence flush failed")
	}
}

func (pw *PersistenceWorker) flush(ctx context.Context, batch *pendingBatch) error {
	start := time.Now()

	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		pw.countError("tx_begin")
		return errors.Wrap(err, "begin")
	}
	defer tx.Rollback()

	if err := pw.writer.WriteEventBatch(ctx, tx, batch.events); err != nil {
		pw.countError("write_events")
		return errors.Wrap(err, "write events")
	}
	if err := pw.writer.WriteMoveBatch(ctx, tx, batch.moves); err != nil {
		pw.countError("write_moves")
		return errors.Wrap(err, "write moves")
	}
	if err := pw.writer.WriteCommandBatch(ctx, tx, batch.commands); err != nil {
		pw.countError("write_commands")
		return errors.Wrap(err, "write commands")
	}
	if err := tx.Commit(); err != nil {
		pw.countError("tx_commit")
		return errors.Wrap(err, "commit")
	}

	if pw.metrics != nil {
		pw.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
		pw.metrics.ApplyToPersist.Observe(time.Since(batch.applied).Seconds())
		pw.metrics.PersistBatchSize.Observe(float64(len(batch.events)))
		pw.metrics.PersistEventsWritten.Add(float64(len(batch.events)))
		pw.metrics.PersistMovesWritten.Add(float64(len(batch.moves)))
		if n := len(batch.events); n > 0 {
			pw.metrics.PersistLastSequence.Set(float64(batch.events[n-1].Sequence))
		}
	}
	return nil
}

func (pw *PersistenceWorker) countError(kind string) {
	if pw.metrics != nil {
		pw.metrics.PersistErrors.WithLabelValues(kind).Inc()
	}
}
