package core

import (
	"context"
	"time"

	"GoldLedger/internal/access"
	"GoldLedger/internal/command"
	"GoldLedger/internal/errs"
	"GoldLedger/internal/event"
	"GoldLedger/internal/ledger"
	"GoldLedger/internal/observability"
	"GoldLedger/internal/oracle"
	"GoldLedger/internal/state"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultDebtAsset is the token loans are issued in and the fund settles in.
const DefaultDebtAsset = "OZT"

// SourceResolver returns the upstream source for a feed name.
type SourceResolver func(feed string) oracle.Source

// Config fixes the parameters the engine starts with.
type Config struct {
	Risk    state.RiskParams
	Auction state.AuctionParams
	Fund    state.FundParams

	// DebtAsset defaults to DefaultDebtAsset.
	DebtAsset string

	// Admin receives every role at construction.
	Admin uuid.UUID
}

// DefaultConfig returns default parameters with admin as the initial holder
// of every role.
func DefaultConfig(admin uuid.UUID) Config {
	return Config{
		Risk:      state.DefaultRiskParams(),
		Auction:   state.DefaultAuctionParams(),
		Fund:      state.DefaultFundParams(),
		DebtAsset: DefaultDebtAsset,
		Admin:     admin,
	}
}

// Engine composes the oracle, position ledger, auction engine and insurance
// fund behind one set of operations. Each operation is atomic: component state
// is written first, transfers run last, and any failure undoes every write.
// The engine is single-threaded; the Processor owns it.
type Engine struct {
	debtAsset string

	oracle    *oracle.PriceOracle
	positions *state.PositionLedger
	auctions  *state.AuctionEngine
	fund      *state.InsuranceFund
	roles     *access.RoleSet
	pause     *access.Switch

	bank    Transfers
	clock   Clock
	sources SourceResolver
	guard   *Guard

	logger  zerolog.Logger
	metrics *observability.Metrics

	// ref is the idempotency key stamped on the moves of the command being
	// applied.
	ref    string
	outbox []event.Event
	moves  []*ledger.Batch
}

// Deps are the capabilities the engine consumes. Metrics may be nil.
type Deps struct {
	Bank    Transfers
	Clock   Clock
	Sources SourceResolver
	Logger  zerolog.Logger
	Metrics *observability.Metrics
}

func NewEngine(cfg Config, deps Deps) (*Engine, error) {
	if deps.Bank == nil {
		return nil, errs.Validation("new engine", "transfers capability is required")
	}
	if cfg.Admin == uuid.Nil {
		return nil, errs.Validation("new engine", "admin is required")
	}
	if cfg.DebtAsset == "" {
		cfg.DebtAsset = DefaultDebtAsset
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}

	o := oracle.New()
	positions, err := state.NewPositionLedger(cfg.Risk, o)
	if err != nil {
		return nil, err
	}
	auctions, err := state.NewAuctionEngine(cfg.Auction)
	if err != nil {
		return nil, err
	}
	fund, err := state.NewInsuranceFund(cfg.Fund)
	if err != nil {
		return nil, err
	}

	roles := access.NewRoleSet()
	for _, r := range []access.Role{access.RoleAdmin, access.RoleManager, access.RoleKeeper, access.RolePauser} {
		if err := roles.Grant(r, cfg.Admin); err != nil {
			return nil, err
		}
	}

	return &Engine{
		debtAsset: cfg.DebtAsset,
		oracle:    o,
		positions: positions,
		auctions:  auctions,
		fund:      fund,
		roles:     roles,
		pause:     &access.Switch{},
		bank:      deps.Bank,
		clock:     deps.Clock,
		sources:   deps.Sources,
		guard:     NewGuard(),
		logger:    deps.Logger,
		metrics:   deps.Metrics,
	}, nil
}

// DebtAsset is the loan and fund settlement token.
func (e *Engine) DebtAsset() string { return e.debtAsset }

// ============================================================================
// Operation plumbing
// ============================================================================

// run executes fn as one atomic operation holding resources. Paused engines
// reject it.
func (e *Engine) run(op string, resources []string, fn func(t *tx, now time.Time) error) error {
	if err := access.Guard(e.pause, op); err != nil {
		return err
	}
	return e.exec(op, resources, fn)
}

// exec is run without the pause check.
func (e *Engine) exec(op string, resources []string, fn func(t *tx, now time.Time) error) error {
	release, err := e.guard.Enter(op, resources...)
	if err != nil {
		return err
	}
	defer release()

	t := &tx{}
	if err := fn(t, e.clock.Now()); err != nil {
		t.rollback()
		e.logger.Debug().Err(err).Str("op", op).Msg("operation rolled back")
		return err
	}
	e.outbox = append(e.outbox, t.events...)
	e.moves = append(e.moves, t.batches...)
	return nil
}

func (e *Engine) batch(now time.Time) *ledger.Batch {
	return ledger.NewBatch(e.ref, now.Unix())
}

func (e *Engine) require(role access.Role, caller uuid.UUID, op string) error {
	return access.Require(e.roles, role, caller, op)
}

// Result is what one applied command produced. Events and moves of nested
// operations triggered through transfer callbacks are included.
type Result struct {
	Events []event.Event
	Moves  []*ledger.Batch
}

func (e *Engine) drain() Result {
	r := Result{Events: e.outbox, Moves: e.moves}
	e.outbox, e.moves = nil, nil
	return r
}

// Drain returns and clears everything emitted since the last drain. Callers
// driving the engine through its methods use it to collect events.
func (e *Engine) Drain() Result { return e.drain() }

// ============================================================================
// Command dispatch
// ============================================================================

// Apply dispatches cmd to its operation. The Result is returned even on
// error: callbacks fired by an earlier successful transfer may have emitted
// events of their own.
func (e *Engine) Apply(ctx context.Context, cmd command.Command) (Result, error) {
	e.ref = cmd.IdempotencyKey()
	defer func() { e.ref = "" }()

	err := e.dispatch(ctx, cmd)
	res := e.drain()
	if e.metrics != nil {
		ct := cmd.CommandType().String()
		if err != nil {
			e.metrics.CommandsRejected.WithLabelValues(ct, errs.KindOf(err).String()).Inc()
		} else {
			e.metrics.CommandsApplied.WithLabelValues(ct).Inc()
		}
		for _, evt := range res.Events {
			e.metrics.EventsEmitted.WithLabelValues(evt.EventType().String()).Inc()
		}
		for _, b := range res.Moves {
			for _, j := range b.Journals {
				e.metrics.MovesGenerated.WithLabelValues(j.JournalType.String()).Inc()
			}
		}
		e.metrics.AuctionsActive.Set(float64(len(e.auctions.Active())))
	}
	return res, err
}

func (e *Engine) dispatch(ctx context.Context, cmd command.Command) error {
	by := cmd.Caller()
	switch c := cmd.(type) {
	case *command.RefreshPrice:
		_, err := e.RefreshPrice(ctx, by, c.Asset)
		return err
	case *command.AddFeed:
		return e.AddFeed(by, c.Asset, c.DeviationThresholdBps, seconds(c.StalenessSeconds))
	case *command.RemoveFeed:
		return e.RemoveFeed(by, c.Asset)
	case *command.SetUnitFeed:
		return e.SetUnitFeed(by, c.DeviationThresholdBps, seconds(c.StalenessSeconds))
	case *command.SetHeartbeat:
		return e.SetHeartbeat(by, c.Feed, seconds(c.HeartbeatSeconds))
	case *command.ConfigureCollateral:
		return e.ConfigureCollateral(by, c.Asset, c.Enabled, c.HaircutBps, c.DebtCeiling)
	case *command.SetRiskParams:
		return e.SetRiskParams(by, c.MaxLTVBps, c.LiquidationThresholdBps, c.AnnualRateBps)
	case *command.CreditWallet:
		return e.CreditWallet(by, c.User, c.Asset, c.Amount)
	case *command.DebitWallet:
		return e.DebitWallet(by, c.Asset, c.Amount)
	case *command.DepositCollateral:
		return e.DepositCollateral(by, c.Asset, c.Amount)
	case *command.WithdrawCollateral:
		return e.WithdrawCollateral(by, c.Asset, c.Amount)
	case *command.OpenLoan:
		_, err := e.OpenLoan(by, c.Amount)
		return err
	case *command.RepayLoan:
		_, err := e.RepayLoan(by, c.LoanID, c.Amount)
		return err
	case *command.LiquidateLoan:
		_, err := e.LiquidateLoan(by, c.LoanID)
		return err
	case *command.PlaceBid:
		return e.PlaceBid(by, c.AuctionID, c.Amount)
	case *command.SettleAuction:
		_, err := e.SettleAuction(by, c.AuctionID)
		return err
	case *command.CancelAuction:
		return e.CancelAuction(by, c.AuctionID)
	case *command.FundDeposit:
		return e.FundDeposit(by, c.Asset, c.Amount)
	case *command.FundWithdraw:
		return e.FundWithdraw(by, c.Asset, c.Amount, c.To)
	case *command.PayClaim:
		return e.PayClaim(by, c.Asset, c.Amount, c.To)
	case *command.CollectFee:
		_, err := e.CollectFee(by, c.Asset, c.Amount)
		return err
	case *command.GrantRole:
		return e.GrantRole(by, c.Role, c.Account)
	case *command.RevokeRole:
		return e.RevokeRole(by, c.Role, c.Account)
	case *command.Pause:
		return e.Pause(by)
	case *command.Unpause:
		return e.Unpause(by)
	default:
		return errs.Validation("apply", "unsupported command %T", cmd)
	}
}

func seconds(s int64) time.Duration { return time.Duration(s) * time.Second }
