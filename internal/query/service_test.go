package query_test

import (
	"context"
	"testing"
	"time"

	"GoldLedger/internal/core"
	"GoldLedger/internal/errs"
	"GoldLedger/internal/event"
	"GoldLedger/internal/ledger"
	"GoldLedger/internal/math"
	"GoldLedger/internal/oracle"
	"GoldLedger/internal/persistence"
	"GoldLedger/internal/query"
	"GoldLedger/internal/testutil"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

// direct runs queries inline; tests own the engine goroutine.
type direct struct {
	engine *core.Engine
	seq    int64
}

func (d *direct) Query(_ context.Context, fn func(*core.Engine)) error {
	fn(d.engine)
	return nil
}

func (d *direct) GetSequence() int64 { return d.seq }

func newEngine(t *testing.T) (*core.Engine, uuid.UUID) {
	t.Helper()
	admin := uuid.New()
	sources := oracle.NewPushSources()
	e, err := core.NewEngine(core.DefaultConfig(admin), core.Deps{
		Bank:    ledger.NewBank(nil),
		Clock:   testutil.NewManualClock(t0),
		Sources: func(feed string) oracle.Source { return sources.Get(feed) },
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)

	sources.Get(oracle.UnitFeed).Push(math.Units(2000), t0)
	sources.Get("PAXG").Push(math.Units(2000), t0)
	require.NoError(t, e.SetUnitFeed(admin, 5000, 2*time.Hour))
	require.NoError(t, e.AddFeed(admin, "PAXG", 5000, 2*time.Hour))
	_, err = e.RefreshAll(context.Background(), admin)
	require.NoError(t, err)
	require.NoError(t, e.ConfigureCollateral(admin, "PAXG", true, 9000, nil))
	e.Drain()
	return e, admin
}

func TestLiveReads(t *testing.T) {
	e, admin := newEngine(t)
	borrower := uuid.New()
	require.NoError(t, e.CreditWallet(admin, borrower, "PAXG", math.Units(10)))
	require.NoError(t, e.DepositCollateral(borrower, "PAXG", math.Units(4)))
	loan, err := e.OpenLoan(borrower, math.Units(2))
	require.NoError(t, err)
	e.Drain()

	qs := query.NewQueryService(nil, &direct{engine: e, seq: 42})
	ctx := context.Background()

	l, err := qs.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, "Open", l.State)
	assert.True(t, l.Principal.Equal(decimal.NewFromInt(2)))
	require.NotNil(t, l.Debt)
	assert.NotEmpty(t, l.LTVBps)
	assert.Equal(t, int64(42), l.AsOfSequence)

	pos, err := qs.GetPosition(ctx, borrower)
	require.NoError(t, err)
	assert.True(t, pos.Collateral["PAXG"].Equal(decimal.NewFromInt(4)))
	assert.Equal(t, []uint64{loan.ID}, pos.Loans)

	bal, err := qs.GetBalance(ctx, borrower, "PAXG")
	require.NoError(t, err)
	assert.True(t, bal.Wallet.Equal(decimal.NewFromInt(6)))
	assert.True(t, bal.Total.Equal(decimal.NewFromInt(10)))

	price, err := qs.GetPrice(ctx, "PAXG")
	require.NoError(t, err)
	assert.True(t, price.Valid)
	require.NotNil(t, price.Price)
	assert.True(t, price.Price.Equal(decimal.NewFromInt(2000)))

	fund, err := qs.GetFund(ctx, "OZT")
	require.NoError(t, err)
	assert.True(t, fund.Balance.IsZero())
}

func TestLiveReads_Unknown(t *testing.T) {
	e, _ := newEngine(t)
	qs := query.NewQueryService(nil, &direct{engine: e})
	ctx := context.Background()

	_, err := qs.GetLoan(ctx, 99)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
	_, err = qs.GetAuction(ctx, 99)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
	_, err = qs.GetPrice(ctx, "XAUT")
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))

	ids, err := qs.ActiveAuctions(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func chain(t *testing.T, n int) []core.CoreOutput {
	t.Helper()
	prev := core.GenesisHash()
	var outs []core.CoreOutput
	for i := 1; i <= n; i++ {
		evt := &event.FundDeposited{Asset: "OZT", Amount: uint256.NewInt(1), Balance: uint256.NewInt(uint64(i))}
		payload, err := event.Encode(evt)
		require.NoError(t, err)
		h := core.ChainHash(prev, int64(i), payload)
		outs = append(outs, core.CoreOutput{
			CommandType:    "DepositFund",
			IdempotencyKey: uuid.NewString(),
			Envelopes: []*event.EventEnvelope{{
				Sequence: int64(i), EnvelopeID: uuid.New(), EventType: evt.EventType(), Subject: evt.Subject(),
				Timestamp: t0, Payload: payload, PrevHash: prev, StateHash: h, Event: evt,
			}},
		})
		prev = h
	}
	return outs
}

func TestVerifyIntegrity(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	in := make(chan core.CoreOutput, 3)
	for _, out := range chain(t, 3) {
		in <- out
	}
	close(in)
	require.NoError(t, persistence.NewPersistenceWorker(db, in, 10, time.Millisecond, zerolog.Nop(), nil).Run(ctx))

	qs := query.NewQueryService(db, &direct{seq: 3})
	report, err := qs.VerifyIntegrity(ctx)
	require.NoError(t, err)
	assert.True(t, report.IsHealthy)
	assert.Equal(t, int64(3), report.CheckedThrough)
	assert.Equal(t, int64(3), report.ProjectionLag)

	_, err = db.Exec(`UPDATE event_log.events SET payload = '{"asset":"OZT"}' WHERE sequence = 2`)
	require.NoError(t, err)
	report, err = qs.VerifyIntegrity(ctx)
	require.NoError(t, err)
	assert.False(t, report.IsHealthy)
	assert.Equal(t, []int64{2}, report.HashChainBreaks)
}

func TestJournalHistory(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	user := uuid.New()
	in := make(chan core.CoreOutput, 2)
	for seq := int64(1); seq <= 2; seq++ {
		b := ledger.NewBatch("k", t0.Unix()).
			Move(ledger.JournalTypeExternalCredit, ledger.ExternalDeposits("PAXG"), ledger.Wallet(user, "PAXG"), math.Units(1))
		b.Stamp(seq)
		in <- core.CoreOutput{CommandType: "CreditWallet", IdempotencyKey: uuid.NewString(), Moves: []*ledger.Batch{b}}
	}
	close(in)
	require.NoError(t, persistence.NewPersistenceWorker(db, in, 10, time.Millisecond, zerolog.Nop(), nil).Run(ctx))

	qs := query.NewQueryService(db, &direct{})
	entries, err := qs.GetJournalHistory(ctx, user, query.Page{Limit: 10})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(2), entries[0].Sequence)
	assert.True(t, entries[0].Amount.Equal(decimal.NewFromInt(1)))

	entries, err = qs.GetJournalHistory(ctx, user, query.Page{Limit: 10, After: 2})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(1), entries[0].Sequence)
}
