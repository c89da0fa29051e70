package core_test

import (
	"context"
	"encoding/json"
	"testing"

	"GoldLedger/internal/command"
	"GoldLedger/internal/core"
	"GoldLedger/internal/errs"
	"GoldLedger/internal/event"
	"GoldLedger/internal/ledger"
	"GoldLedger/internal/oracle"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProcessor(t *testing.T, h *harness, persist chan core.CoreOutput) *core.Processor {
	t.Helper()
	p, err := core.NewProcessor(h.engine, core.ProcessorConfig{
		DedupCapacity: 128,
		Validator:     h.validator(),
		PersistChan:   persist,
	}, zerolog.Nop(), nil)
	require.NoError(t, err)
	return p
}

func creditCmd(id string, by, user uuid.UUID, asset string, amount *uint256.Int) *command.CreditWallet {
	return &command.CreditWallet{Meta: command.Meta{ID: id, By: by}, User: user, Asset: asset, Amount: amount}
}

func TestProcessor_DedupAndHashChain(t *testing.T) {
	h := newHarness(t)
	persist := make(chan core.CoreOutput, 16)
	p := newProcessor(t, h, persist)
	ctx := context.Background()
	user := uuid.New()

	out, err := p.Process(ctx, creditCmd("c1", h.admin, user, ozt, units(10)))
	require.NoError(t, err)
	require.Len(t, out.Envelopes, 1)
	env := out.Envelopes[0]
	assert.Equal(t, int64(1), env.Sequence)
	assert.Equal(t, event.EventTypeWalletCredited, env.EventType)
	assert.Equal(t, "wallet:"+user.String(), env.Subject)
	assert.Equal(t, core.GenesisHash(), env.PrevHash)
	assert.Equal(t, core.ChainHash(env.PrevHash, 1, env.Payload), env.StateHash)
	require.Len(t, out.Moves, 1)
	assert.Equal(t, int64(1), out.Moves[0].Sequence)
	assert.Equal(t, "c1", out.Moves[0].EventRef)
	assert.Len(t, persist, 1)

	dup, err := p.Process(ctx, creditCmd("c1", h.admin, user, ozt, units(10)))
	require.NoError(t, err)
	assert.Nil(t, dup)
	assertAmount(t, units(10), h.engine.WalletBalance(user, ozt))

	debit := &command.DebitWallet{Meta: command.Meta{ID: "d1", By: user}, Asset: ozt, Amount: units(11)}
	out, err = p.Process(ctx, debit)
	require.ErrorIs(t, err, errs.ErrValidation)
	assert.Empty(t, out.Envelopes)
	assert.Equal(t, int64(1), p.GetSequence())

	c2, err := p.Process(ctx, creditCmd("c2", h.admin, user, ozt, units(1)))
	require.NoError(t, err)
	assert.Equal(t, env.StateHash, c2.Envelopes[0].PrevHash)
	out, err = p.Process(ctx, debit)
	require.NoError(t, err, "a rejected command can be retried under the same key")
	require.Len(t, out.Envelopes, 1)
	assert.Equal(t, int64(3), out.Envelopes[0].Sequence)
	assert.Equal(t, c2.Envelopes[0].StateHash, out.Envelopes[0].PrevHash)

	_, err = p.Process(ctx, creditCmd("", h.admin, user, ozt, units(1)))
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestProcessor_UnauthorizedCommandIsNotPersisted(t *testing.T) {
	h := newHarness(t)
	persist := make(chan core.CoreOutput, 8)
	p := newProcessor(t, h, persist)
	ctx := context.Background()
	user := uuid.New()

	// No keeper role.
	out, err := p.Process(ctx, creditCmd("k", user, user, paxg, units(1)))
	assert.ErrorIs(t, err, errs.ErrUnauthorized)
	require.NotNil(t, out)
	assert.True(t, out.Rejected)
	assert.Empty(t, persist)

	out, err = p.Process(ctx, creditCmd("k", h.admin, user, paxg, units(1)))
	require.NoError(t, err)
	assert.False(t, out.Rejected)
	assert.Len(t, persist, 1)
}

type fakeDB struct{ seen map[string]bool }

func (f fakeDB) IsDuplicate(commandType, key string) (bool, error) {
	return f.seen[commandType+":"+key], nil
}

func TestProcessor_DBTierDedup(t *testing.T) {
	h := newHarness(t)
	p, err := core.NewProcessor(h.engine, core.ProcessorConfig{
		DBChecker: fakeDB{seen: map[string]bool{"CreditWallet:old": true}},
		Validator: h.validator(),
	}, zerolog.Nop(), nil)
	require.NoError(t, err)

	out, err := p.Process(context.Background(), creditCmd("old", h.admin, uuid.New(), ozt, units(1)))
	require.NoError(t, err)
	assert.Nil(t, out)

	p.WarmLRU([]string{"CreditWallet:warm"})
	out, err = p.Process(context.Background(), creditCmd("warm", h.admin, uuid.New(), ozt, units(1)))
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Equal(t, int64(0), p.GetSequence())
}

func TestProcessor_SnapshotRestoreResumesChain(t *testing.T) {
	admin := uuid.New()
	h := newHarnessFor(t, admin)
	p := newProcessor(t, h, nil)
	ctx := context.Background()

	_, loan := h.borrow(t)
	a := h.liquidate(t, loan.ID)
	h.engine.Drain()
	bidder := uuid.New()
	_, err := p.Process(ctx, creditCmd("fund-bidder", admin, bidder, ozt, units(20)))
	require.NoError(t, err)
	_, err = p.Process(ctx, &command.PlaceBid{Meta: command.Meta{ID: "bid-1", By: bidder}, AuctionID: a.ID, Amount: units(9)})
	require.NoError(t, err)

	raw, err := json.Marshal(p.Snapshot())
	require.NoError(t, err)
	var snap core.Snapshot
	require.NoError(t, json.Unmarshal(raw, &snap))

	h2 := newHarnessFor(t, admin)
	p2 := newProcessor(t, h2, nil)
	require.NoError(t, p2.Restore(snap))
	assert.Equal(t, p.GetSequence(), p2.GetSequence())
	assert.Equal(t, p.GetStateHash(), p2.GetStateHash())

	view, err := h2.engine.Auction(a.ID)
	require.NoError(t, err)
	assert.Equal(t, bidder, view.Auction.HighestBidder)
	assertAmount(t, units(11), h2.engine.WalletBalance(bidder, ozt))
	h2.assertConsistent(t)

	// Both processors produce the same chain from here on.
	next := func() command.Command {
		return &command.PlaceBid{Meta: command.Meta{ID: "bid-2", By: bidder}, AuctionID: a.ID, Amount: units(10)}
	}
	out1, err := p.Process(ctx, next())
	require.NoError(t, err)
	out2, err := p2.Process(ctx, next())
	require.NoError(t, err)
	require.Len(t, out2.Envelopes, len(out1.Envelopes))
	for i := range out1.Envelopes {
		assert.Equal(t, out1.Envelopes[i].StateHash, out2.Envelopes[i].StateHash)
	}
}

func TestProcessor_PeriodicSnapshot(t *testing.T) {
	h := newHarness(t)
	var taken []int64
	p, err := core.NewProcessor(h.engine, core.ProcessorConfig{
		SnapshotEvery: 2,
		OnSnapshot:    func(s core.Snapshot) { taken = append(taken, s.Sequence) },
	}, zerolog.Nop(), nil)
	require.NoError(t, err)

	for i, id := range []string{"a", "b", "c", "d", "e"} {
		_, err := p.Process(context.Background(), creditCmd(id, h.admin, uuid.New(), ozt, units(uint64(i+1))))
		require.NoError(t, err)
	}
	assert.Equal(t, []int64{2, 4}, taken)
}

func TestProcessor_DivergedLedgerPanics(t *testing.T) {
	h := newHarness(t)
	p := newProcessor(t, h, nil)

	stray := ledger.NewBatch("stray", t0.Unix()).
		Move(ledger.JournalTypeExternalCredit, ledger.ExternalDeposits(paxg), ledger.Custody(paxg), units(1))
	require.NoError(t, h.bank.Execute(stray))
	assert.Error(t, h.engine.Reconcile(h.validator()))

	assert.Panics(t, func() {
		_, _ = p.Process(context.Background(), creditCmd("x", h.admin, uuid.New(), ozt, units(1)))
	})
}

func TestProcessor_RunServesSubmitAndQuery(t *testing.T) {
	h := newHarness(t)
	p := newProcessor(t, h, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	user := uuid.New()
	out, err := p.Submit(ctx, creditCmd("s1", h.admin, user, ozt, units(3)))
	require.NoError(t, err)
	assert.Equal(t, int64(1), out.LastSequence())

	var bal *uint256.Int
	var feeds []string
	require.NoError(t, p.Query(ctx, func(e *core.Engine) {
		bal = e.WalletBalance(user, ozt)
		feeds = e.Feeds()
	}))
	assertAmount(t, units(3), bal)
	assert.Contains(t, feeds, paxg)
	assert.NotContains(t, feeds, oracle.UnitFeed)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
