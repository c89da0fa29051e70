package ingestion_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"GoldLedger/internal/core"
	"GoldLedger/internal/event"
	"GoldLedger/internal/ingestion"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	subject string
	data    []byte
}

type fakeJetStream struct {
	mu   sync.Mutex
	msgs []published
}

func (f *fakeJetStream) Publish(_ context.Context, subject string, data []byte, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, published{subject: subject, data: data})
	return &jetstream.PubAck{Stream: "GOLD_EVENTS"}, nil
}

func TestOutboundPublisher_PublishesEveryEnvelope(t *testing.T) {
	js := &fakeJetStream{}
	in := make(chan core.CoreOutput, 1)
	ts := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	in <- core.CoreOutput{
		CommandType:    "Pause",
		IdempotencyKey: "k1",
		Envelopes: []*event.EventEnvelope{
			{Sequence: 7, EventType: event.EventTypePaused, CommandType: "Pause", IdempotencyKey: "k1", Subject: "engine", Payload: []byte(`{}`), Timestamp: ts},
			{Sequence: 8, EventType: event.EventTypeFundDeposited, CommandType: "Pause", IdempotencyKey: "k1", Subject: "fund:OZT", Payload: []byte(`{"asset":"OZT"}`), Timestamp: ts},
		},
	}
	close(in)

	require.NoError(t, ingestion.NewOutboundPublisher(js, in, zerolog.Nop(), nil).Run(context.Background()))
	require.Len(t, js.msgs, 2)
	assert.Equal(t, "goldledger.events.Paused", js.msgs[0].subject)
	assert.Equal(t, "goldledger.events.FundDeposited", js.msgs[1].subject)

	var got ingestion.PublishableEvent
	require.NoError(t, json.Unmarshal(js.msgs[1].data, &got))
	assert.Equal(t, int64(8), got.Sequence)
	assert.Equal(t, "FundDeposited", got.EventType)
	assert.Equal(t, "fund:OZT", got.Subject)
	assert.JSONEq(t, `{"asset":"OZT"}`, string(got.Payload))
	assert.Len(t, got.StateHash, 64)
}
