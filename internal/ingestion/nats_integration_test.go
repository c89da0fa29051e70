package ingestion_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"GoldLedger/internal/core"
	"GoldLedger/internal/event"
	"GoldLedger/internal/ingestion"
	"GoldLedger/internal/testutil"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connectJetStream(t *testing.T) jetstream.JetStream {
	t.Helper()
	testutil.RequireIntegration(t)
	nc, js, err := ingestion.ConnectNATS(testutil.TestNATSURL(), zerolog.Nop())
	if err != nil {
		t.Skipf("test nats not available: %v", err)
	}
	t.Cleanup(nc.Close)
	return js
}

func TestNATS_SubscriberDeliversCommands(t *testing.T) {
	js := connectJetStream(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	require.NoError(t, ingestion.EnsureStreams(ctx, js))

	// A fresh durable per run; older messages in the stream are skipped by key.
	consumer := "it-" + uuid.NewString()[:8]
	t.Cleanup(func() { js.DeleteConsumer(context.Background(), "GOLD_COMMANDS", consumer) })

	out := make(chan ingestion.RawMessage, 64)
	sub := ingestion.NewNATSSubscriber(js, out, zerolog.Nop())
	require.NoError(t, sub.Subscribe(ctx, []ingestion.SubjectConfig{{
		Subject:      ingestion.CommandSubjectPrefix + ">",
		Kind:         ingestion.KindCommand,
		ConsumerName: consumer,
		StreamName:   "GOLD_COMMANDS",
	}}))
	defer sub.Stop()

	key := uuid.NewString()
	body := `{"id":"` + key + `","by":"` + uuid.NewString() + `","user":"` + uuid.NewString() + `","asset":"PAXG","amount":"1"}`
	_, err := js.Publish(ctx, ingestion.CommandSubjectPrefix+"CreditWallet", []byte(body))
	require.NoError(t, err)

	for {
		select {
		case msg := <-out:
			msg.AckFunc()
			if !json.Valid(msg.Data) {
				continue
			}
			var meta struct {
				ID string `json:"id"`
			}
			require.NoError(t, json.Unmarshal(msg.Data, &meta))
			if meta.ID != key {
				continue
			}
			assert.Equal(t, ingestion.KindCommand, msg.Kind)
			assert.Equal(t, "CreditWallet", msg.Token())
			cmd, err := ingestion.ParseCommand(msg.Data, msg.Token())
			require.NoError(t, err)
			assert.Equal(t, key, cmd.IdempotencyKey())
			return
		case <-ctx.Done():
			t.Fatal("command not delivered")
		}
	}
}

func TestNATS_OutboundPublisherRoundTrip(t *testing.T) {
	js := connectJetStream(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	require.NoError(t, ingestion.EnsureOutboundStream(ctx, js))

	stream, err := js.Stream(ctx, "GOLD_EVENTS")
	require.NoError(t, err)
	info, err := stream.Info(ctx)
	require.NoError(t, err)

	// A sequence far past anything a dev stack publishes keeps the msg id unique.
	seq := time.Now().UnixNano()
	evt := &event.FundDeposited{Asset: "OZT", Amount: uint256.NewInt(1), Balance: uint256.NewInt(1)}
	payload, err := event.Encode(evt)
	require.NoError(t, err)
	env := &event.EventEnvelope{
		Sequence: seq, EnvelopeID: uuid.New(), EventType: evt.EventType(), Subject: evt.Subject(),
		Timestamp: time.Now().UTC(), Payload: payload, Event: evt,
	}

	in := make(chan core.CoreOutput, 1)
	in <- core.CoreOutput{CommandType: "DepositFund", IdempotencyKey: uuid.NewString(), Envelopes: []*event.EventEnvelope{env}}
	close(in)
	require.NoError(t, ingestion.NewOutboundPublisher(js, in, zerolog.Nop(), nil).Run(ctx))

	cons, err := stream.OrderedConsumer(ctx, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{ingestion.EventSubjectPrefix + evt.EventType().String()},
		DeliverPolicy:  jetstream.DeliverByStartSequencePolicy,
		OptStartSeq:    info.State.LastSeq + 1,
	})
	require.NoError(t, err)
	msg, err := cons.Next(jetstream.FetchMaxWait(5 * time.Second))
	require.NoError(t, err)

	var got ingestion.PublishableEvent
	require.NoError(t, json.Unmarshal(msg.Data(), &got))
	assert.Equal(t, seq, got.Sequence)
	assert.Equal(t, evt.EventType().String(), got.EventType)
}
