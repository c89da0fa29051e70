package ingestion_test

import (
	"context"
	"testing"
	"time"

	"GoldLedger/internal/command"
	"GoldLedger/internal/errs"
	"GoldLedger/internal/ingestion"
	"GoldLedger/internal/math"
	"GoldLedger/internal/oracle"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInjector_PriceAdvancesSequenceAndRefreshes(t *testing.T) {
	sub := &fakeSubmitter{}
	sources := oracle.NewPushSources()
	seq := ingestion.NewPriceSequencer(nil)
	require.True(t, seq.Accept("PAXG", 10))
	inj := ingestion.NewInjector(sub, sources, seq)
	keeper := uuid.New()
	ts := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	out, err := inj.InjectPrice(context.Background(), keeper, "PAXG", decimal.RequireFromString("1999.5"), ts)
	require.NoError(t, err)
	require.NotNil(t, out)

	last, _ := seq.Last("PAXG")
	assert.Equal(t, int64(11), last)
	assert.False(t, seq.Accept("PAXG", 11), "a replayed NATS push behind the manual one is stale")

	obs, err := sources.Get("PAXG").Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1999.5", math.FormatUnits(obs.Price))

	require.Len(t, sub.cmds, 1)
	assert.Equal(t, command.TypeRefreshPrice, sub.cmds[0].CommandType())
	assert.Equal(t, keeper, sub.cmds[0].Caller())

	_, err = inj.InjectPrice(context.Background(), keeper, "PAXG", decimal.Zero, ts)
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestInjector_Command(t *testing.T) {
	sub := &fakeSubmitter{}
	inj := ingestion.NewInjector(sub, oracle.NewPushSources(), ingestion.NewPriceSequencer(nil))

	_, err := inj.InjectCommand(context.Background(), "Unpause", body(t, map[string]interface{}{"id": "u1", "by": caller}))
	require.NoError(t, err)
	require.Len(t, sub.cmds, 1)

	_, err = inj.InjectCommand(context.Background(), "Teleport", body(t, map[string]interface{}{"id": "u2", "by": caller}))
	assert.ErrorIs(t, err, errs.ErrValidation)
	assert.Len(t, sub.cmds, 1)
}
