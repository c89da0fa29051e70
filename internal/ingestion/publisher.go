package ingestion

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"GoldLedger/internal/core"
	"GoldLedger/internal/event"
	"GoldLedger/internal/observability"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// EventSubjectPrefix is the outbound subject root: goldledger.events.{event_type}.
const EventSubjectPrefix = "goldledger.events."

// Publisher is the subset of jetstream.JetStream the outbound publisher uses.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// OutboundPublisher publishes processed events to NATS for downstream
// consumers. Publishing is best effort: consumers that miss an event read the
// event log.
type OutboundPublisher struct {
	js        Publisher
	inputChan <-chan core.CoreOutput
	logger    zerolog.Logger
	metrics   *observability.Metrics
}

// PublishableEvent is the outbound wire form of one envelope.
type PublishableEvent struct {
	Sequence       int64           `json:"sequence"`
	EventType      string          `json:"event_type"`
	CommandType    string          `json:"command_type"`
	IdempotencyKey string          `json:"idempotency_key"`
	Subject        string          `json:"subject"`
	Payload        json.RawMessage `json:"payload"`
	StateHash      string          `json:"state_hash"`
	Timestamp      time.Time       `json:"timestamp"`
}

// NewPublishableEvent converts an envelope to its wire form.
func NewPublishableEvent(env *event.EventEnvelope) PublishableEvent {
	return PublishableEvent{
		Sequence:       env.Sequence,
		EventType:      env.EventType.String(),
		CommandType:    env.CommandType,
		IdempotencyKey: env.IdempotencyKey,
		Subject:        env.Subject,
		Payload:        json.RawMessage(env.Payload),
		StateHash:      hex.EncodeToString(env.StateHash[:]),
		Timestamp:      env.Timestamp,
	}
}

func NewOutboundPublisher(js Publisher, inputChan <-chan core.CoreOutput, logger zerolog.Logger, metrics *observability.Metrics) *OutboundPublisher {
	return &OutboundPublisher{
		js:        js,
		inputChan: inputChan,
		logger:    logger,
		metrics:   metrics,
	}
}

// Run starts the outbound publisher loop.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case out, ok := <-op.inputChan:
			if !ok {
				return nil
			}
			for _, env := range out.Envelopes {
				if err := op.publish(ctx, env); err != nil {
					// Non-fatal: downstream consumers can query the event log directly
					op.logger.Warn().Err(err).Int64("sequence", env.Sequence).Msg("outbound publish failed")
					if op.metrics != nil {
						op.metrics.PublishDrops.Inc()
					}
				}
			}
		}
	}
}

func (op *OutboundPublisher) publish(ctx context.Context, env *event.EventEnvelope) error {
	data, err := json.Marshal(NewPublishableEvent(env))
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	// The sequence doubles as the JetStream dedup id so republishing after a
	// restart is harmless.
	_, err = op.js.Publish(ctx, EventSubjectPrefix+env.EventType.String(), data,
		jetstream.WithMsgID(fmt.Sprintf("goldledger-%d", env.Sequence)))
	return err
}

// EnsureOutboundStream creates the outbound events stream.
func EnsureOutboundStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       "GOLD_EVENTS",
		Subjects:   []string{EventSubjectPrefix + ">"},
		Storage:    jetstream.FileStorage,
		Retention:  jetstream.LimitsPolicy,
		MaxAge:     72 * time.Hour,
		Duplicates: 10 * time.Minute,
		Replicas:   1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	return nil
}
