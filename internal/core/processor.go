package core

import (
	"context"
	"fmt"
	"time"

	"GoldLedger/internal/command"
	"GoldLedger/internal/errs"
	"GoldLedger/internal/event"
	"GoldLedger/internal/ledger"
	"GoldLedger/internal/observability"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// CoreOutput is everything one command produced, in sequence order.
type CoreOutput struct {
	CommandType    string
	IdempotencyKey string
	Envelopes      []*event.EventEnvelope
	Moves          []*ledger.Batch

	// Rejected is set when the command failed but nested operations it
	// triggered still produced events. Such a command stays retryable.
	Rejected bool
}

// LastSequence is the sequence of the final envelope, or 0.
func (o CoreOutput) LastSequence() int64 {
	if len(o.Envelopes) == 0 {
		return 0
	}
	return o.Envelopes[len(o.Envelopes)-1].Sequence
}

// ProcessorConfig wires the processor's outputs. Nil channels are skipped.
type ProcessorConfig struct {
	StartSequence int64
	DedupCapacity int
	DBChecker     DBIdempotencyChecker
	// Validator checks ledger-wide invariants after every command with moves.
	Validator *ledger.InvariantValidator

	PersistChan    chan<- CoreOutput // blocking
	ProjectionChan chan<- CoreOutput // non-blocking, drop on full
	PublishChan    chan<- CoreOutput // non-blocking, drop on full

	// SnapshotEvery takes a snapshot after every N sequences; 0 disables.
	SnapshotEvery int64
	OnSnapshot    func(Snapshot)
}

// Processor is the single-threaded command pipeline in front of the engine:
// dedup, apply, envelope, hash chain, fan-out.
type Processor struct {
	engine      *Engine
	sequence    int64 // last assigned
	hasher      *StateHasher
	idempotency *IdempotencyChecker
	validator   *ledger.InvariantValidator

	persistChan    chan<- CoreOutput
	projectionChan chan<- CoreOutput
	publishChan    chan<- CoreOutput

	snapshotEvery int64
	lastSnapshot  int64
	onSnapshot    func(Snapshot)

	submissions chan submission
	queries     chan query

	logger  zerolog.Logger
	metrics *observability.Metrics
}

type submission struct {
	ctx   context.Context
	cmd   command.Command
	reply chan submitReply
}

type submitReply struct {
	out *CoreOutput
	err error
}

type query struct {
	fn   func(*Engine)
	done chan struct{}
}

func NewProcessor(engine *Engine, cfg ProcessorConfig, logger zerolog.Logger, metrics *observability.Metrics) (*Processor, error) {
	if cfg.DedupCapacity <= 0 {
		cfg.DedupCapacity = 1_000_000
	}
	idem, err := NewIdempotencyChecker(cfg.DedupCapacity, cfg.DBChecker, logger, metrics)
	if err != nil {
		return nil, err
	}
	return &Processor{
		engine:         engine,
		sequence:       cfg.StartSequence,
		hasher:         NewStateHasher(),
		idempotency:    idem,
		validator:      cfg.Validator,
		persistChan:    cfg.PersistChan,
		projectionChan: cfg.ProjectionChan,
		publishChan:    cfg.PublishChan,
		snapshotEvery:  cfg.SnapshotEvery,
		lastSnapshot:   cfg.StartSequence,
		onSnapshot:     cfg.OnSnapshot,
		submissions:    make(chan submission),
		queries:        make(chan query),
		logger:         logger,
		metrics:        metrics,
	}, nil
}

// Process runs one command through the pipeline. A duplicate returns a nil
// output and no error. A rejected command returns its error; envelopes are
// still produced for events emitted by nested operations it triggered.
func (p *Processor) Process(ctx context.Context, cmd command.Command) (*CoreOutput, error) {
	start := time.Now()
	commandType := cmd.CommandType().String()
	key := cmd.IdempotencyKey()
	if key == "" {
		return nil, errs.Validation("process", "%s: idempotency key is required", commandType)
	}

	// Step 1: idempotency check (two-tier)
	if p.idempotency.IsDuplicate(commandType, key) {
		p.logger.Debug().Str("command_type", commandType).Str("key", key).Msg("duplicate command dropped")
		return nil, nil
	}

	// Step 2: apply
	res, applyErr := p.engine.Apply(ctx, cmd)

	// Step 3: envelopes and hash chain
	out := &CoreOutput{CommandType: commandType, IdempotencyKey: key, Moves: res.Moves, Rejected: applyErr != nil}
	ts := p.engine.clock.Now()
	for _, evt := range res.Events {
		env, err := p.envelope(evt, commandType, key, ts)
		if err != nil {
			return nil, err
		}
		out.Envelopes = append(out.Envelopes, env)
	}
	if len(out.Envelopes) > 0 {
		first := out.Envelopes[0].Sequence
		for _, b := range out.Moves {
			b.Stamp(first)
		}
	}

	// Step 4: post-checks
	if len(out.Moves) > 0 && p.validator != nil {
		if err := p.validator.ValidateGlobalBalance(); err != nil {
			panic(fmt.Sprintf("FATAL: ledger invariant violated after %s %s: %v", commandType, key, err))
		}
		if err := p.engine.Reconcile(p.validator); err != nil {
			panic(fmt.Sprintf("FATAL: ledger and engine state diverged after %s %s: %v", commandType, key, err))
		}
	}

	// Step 5: emit. Accepted commands are emitted even without events so the
	// command log records their key.
	if len(out.Envelopes) > 0 || applyErr == nil {
		p.emit(out)
	}

	// Step 6: mark processed. Rejected commands stay retryable.
	if applyErr == nil {
		p.idempotency.MarkProcessed(commandType, key)
	}

	if p.metrics != nil {
		p.metrics.CommandDuration.WithLabelValues(commandType).Observe(time.Since(start).Seconds())
		p.metrics.CoreSequence.Set(float64(p.sequence))
	}
	p.maybeSnapshot()

	return out, applyErr
}

func (p *Processor) envelope(evt event.Event, commandType, key string, ts time.Time) (*event.EventEnvelope, error) {
	payload, err := event.Encode(evt)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", evt.EventType(), err)
	}
	p.sequence++
	prev := p.hasher.GetPrevHash()
	hashStart := time.Now()
	hash := p.hasher.ComputeHash(p.sequence, payload)
	if p.metrics != nil {
		p.metrics.CoreStateHashDur.Observe(time.Since(hashStart).Seconds())
	}
	return &event.EventEnvelope{
		Sequence:       p.sequence,
		EnvelopeID:     uuid.New(),
		IdempotencyKey: key,
		CommandType:    commandType,
		EventType:      evt.EventType(),
		Subject:        evt.Subject(),
		Timestamp:      ts,
		Payload:        payload,
		StateHash:      hash,
		PrevHash:       prev,
		Event:          evt,
	}, nil
}

// emit fans out one output. Persistence is a blocking send so nothing is
// lost; projections and the publisher drop on full and catch up from the
// event log.
func (p *Processor) emit(out *CoreOutput) {
	if p.persistChan != nil {
		select {
		case p.persistChan <- *out:
		default:
			if p.metrics != nil {
				p.metrics.PersistBackpressure.Inc()
			}
			p.persistChan <- *out
		}
	}
	if p.projectionChan != nil {
		select {
		case p.projectionChan <- *out:
		default:
			if p.metrics != nil {
				p.metrics.ProjectionDrops.WithLabelValues("all").Inc()
			}
		}
	}
	if p.publishChan != nil {
		select {
		case p.publishChan <- *out:
		default:
			if p.metrics != nil {
				p.metrics.PublishDrops.Inc()
			}
		}
	}
}

func (p *Processor) maybeSnapshot() {
	if p.snapshotEvery <= 0 || p.onSnapshot == nil {
		return
	}
	if p.sequence-p.lastSnapshot < p.snapshotEvery {
		return
	}
	p.lastSnapshot = p.sequence
	p.onSnapshot(p.Snapshot())
}

// Snapshot captures the engine at the current chain tip.
func (p *Processor) Snapshot() Snapshot {
	snap := p.engine.Snapshot()
	snap.Sequence = p.sequence
	snap.StateHash = p.hasher.GetPrevHash()
	return snap
}

// Restore loads snap into the engine and resumes the chain from its tip.
func (p *Processor) Restore(snap Snapshot) error {
	if err := p.engine.Restore(snap); err != nil {
		return err
	}
	p.sequence = snap.Sequence
	p.lastSnapshot = snap.Sequence
	p.hasher = ResumeStateHasher(snap.StateHash)
	return nil
}

// WarmLRU loads recent idempotency keys into the dedup cache.
func (p *Processor) WarmLRU(keys []string) { p.idempotency.WarmFromKeys(keys) }

// GetSequence returns the last assigned sequence.
func (p *Processor) GetSequence() int64 { return p.sequence }

// GetStateHash returns the chain tip.
func (p *Processor) GetStateHash() [32]byte { return p.hasher.GetPrevHash() }

// ============================================================================
// Serialized access
// ============================================================================

// Run owns the engine until ctx is done. Submit and Query are served from
// this goroutine only.
func (p *Processor) Run(ctx context.Context) error {
	p.logger.Info().Int64("sequence", p.sequence).Msg("processor started")
	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Int64("sequence", p.sequence).Msg("processor stopped")
			return ctx.Err()
		case s := <-p.submissions:
			out, err := p.Process(s.ctx, s.cmd)
			s.reply <- submitReply{out: out, err: err}
		case q := <-p.queries:
			q.fn(p.engine)
			close(q.done)
		}
	}
}

// Submit hands cmd to the Run goroutine and waits for its result.
func (p *Processor) Submit(ctx context.Context, cmd command.Command) (*CoreOutput, error) {
	reply := make(chan submitReply, 1)
	select {
	case p.submissions <- submission{ctx: ctx, cmd: cmd, reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-reply:
		return r.out, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Query runs fn against the engine on the Run goroutine. fn must not retain
// the engine.
func (p *Processor) Query(ctx context.Context, fn func(*Engine)) error {
	done := make(chan struct{})
	select {
	case p.queries <- query{fn: fn, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
