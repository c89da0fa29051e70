package ingestion

import (
	"encoding/json"
	"strings"
	"time"

	"GoldLedger/internal/command"
	"GoldLedger/internal/errs"
	"GoldLedger/internal/math"
	"GoldLedger/internal/oracle"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// ParseCommand converts a JSON command body into a typed command.
// Amounts are human decimals ("12.5"), quoted or not.
func ParseCommand(data []byte, commandType string) (command.Command, error) {
	var j commandJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, errs.Wrap(errs.KindValidation, "parse "+commandType, err)
	}
	p := &fieldParser{op: "parse " + commandType}
	meta := command.Meta{ID: j.ID, By: p.uuidField("by", j.By, true)}
	if strings.TrimSpace(meta.ID) == "" {
		p.fail("id is required")
	}

	var cmd command.Command
	switch command.ParseType(commandType) {
	case command.TypeRefreshPrice:
		cmd = &command.RefreshPrice{Meta: meta, Asset: p.str("asset", j.Asset)}
	case command.TypeAddFeed:
		cmd = &command.AddFeed{
			Meta:                  meta,
			Asset:                 p.str("asset", j.Asset),
			DeviationThresholdBps: j.DeviationThresholdBps,
			StalenessSeconds:      p.seconds("staleness_seconds", j.StalenessSeconds),
		}
	case command.TypeRemoveFeed:
		cmd = &command.RemoveFeed{Meta: meta, Asset: p.str("asset", j.Asset)}
	case command.TypeSetUnitFeed:
		cmd = &command.SetUnitFeed{
			Meta:                  meta,
			DeviationThresholdBps: j.DeviationThresholdBps,
			StalenessSeconds:      p.seconds("staleness_seconds", j.StalenessSeconds),
		}
	case command.TypeSetHeartbeat:
		cmd = &command.SetHeartbeat{Meta: meta, Feed: p.str("feed", j.Feed), HeartbeatSeconds: p.seconds("heartbeat_seconds", j.HeartbeatSeconds)}
	case command.TypeConfigureCollateral:
		enabled := true
		if j.Enabled != nil {
			enabled = *j.Enabled
		}
		cmd = &command.ConfigureCollateral{
			Meta:        meta,
			Asset:       p.str("asset", j.Asset),
			Enabled:     enabled,
			HaircutBps:  j.HaircutBps,
			DebtCeiling: p.optionalAmount("debt_ceiling", j.DebtCeiling),
		}
	case command.TypeSetRiskParams:
		cmd = &command.SetRiskParams{
			Meta:                    meta,
			MaxLTVBps:               j.MaxLTVBps,
			LiquidationThresholdBps: j.LiquidationThresholdBps,
			AnnualRateBps:           j.AnnualRateBps,
		}
	case command.TypeCreditWallet:
		cmd = &command.CreditWallet{Meta: meta, User: p.uuidField("user", j.User, true), Asset: p.str("asset", j.Asset), Amount: p.amount("amount", j.Amount)}
	case command.TypeDebitWallet:
		cmd = &command.DebitWallet{Meta: meta, Asset: p.str("asset", j.Asset), Amount: p.amount("amount", j.Amount)}
	case command.TypeDepositCollateral:
		cmd = &command.DepositCollateral{Meta: meta, Asset: p.str("asset", j.Asset), Amount: p.amount("amount", j.Amount)}
	case command.TypeWithdrawCollateral:
		cmd = &command.WithdrawCollateral{Meta: meta, Asset: p.str("asset", j.Asset), Amount: p.amount("amount", j.Amount)}
	case command.TypeOpenLoan:
		cmd = &command.OpenLoan{Meta: meta, Amount: p.amount("amount", j.Amount)}
	case command.TypeRepayLoan:
		cmd = &command.RepayLoan{Meta: meta, LoanID: p.id("loan_id", j.LoanID), Amount: p.amount("amount", j.Amount)}
	case command.TypeLiquidateLoan:
		cmd = &command.LiquidateLoan{Meta: meta, LoanID: p.id("loan_id", j.LoanID)}
	case command.TypePlaceBid:
		cmd = &command.PlaceBid{Meta: meta, AuctionID: p.id("auction_id", j.AuctionID), Amount: p.amount("amount", j.Amount)}
	case command.TypeSettleAuction:
		cmd = &command.SettleAuction{Meta: meta, AuctionID: p.id("auction_id", j.AuctionID)}
	case command.TypeCancelAuction:
		cmd = &command.CancelAuction{Meta: meta, AuctionID: p.id("auction_id", j.AuctionID)}
	case command.TypeFundDeposit:
		cmd = &command.FundDeposit{Meta: meta, Asset: p.str("asset", j.Asset), Amount: p.amount("amount", j.Amount)}
	case command.TypeFundWithdraw:
		cmd = &command.FundWithdraw{Meta: meta, Asset: p.str("asset", j.Asset), Amount: p.amount("amount", j.Amount), To: p.uuidField("to", j.To, true)}
	case command.TypePayClaim:
		cmd = &command.PayClaim{Meta: meta, Asset: p.str("asset", j.Asset), Amount: p.amount("amount", j.Amount), To: p.uuidField("to", j.To, true)}
	case command.TypeCollectFee:
		cmd = &command.CollectFee{Meta: meta, Asset: p.str("asset", j.Asset), Amount: p.amount("amount", j.Amount)}
	case command.TypeGrantRole:
		cmd = &command.GrantRole{Meta: meta, Role: p.str("role", j.Role), Account: p.uuidField("account", j.Account, true)}
	case command.TypeRevokeRole:
		cmd = &command.RevokeRole{Meta: meta, Role: p.str("role", j.Role), Account: p.uuidField("account", j.Account, true)}
	case command.TypePause:
		cmd = &command.Pause{Meta: meta}
	case command.TypeUnpause:
		cmd = &command.Unpause{Meta: meta}
	default:
		return nil, errs.Validation("parse command", "unknown command type %q", commandType)
	}
	if p.err != nil {
		return nil, p.err
	}
	return cmd, nil
}

// --- JSON wire formats ---
// Field names use snake_case to match upstream producers. One shape covers
// every command; each command reads the fields it needs.

type commandJSON struct {
	ID string `json:"id"`
	By string `json:"by"`

	Asset   string           `json:"asset"`
	Feed    string           `json:"feed"`
	Amount  *decimal.Decimal `json:"amount"`
	User    string           `json:"user"`
	To      string           `json:"to"`
	Role    string           `json:"role"`
	Account string           `json:"account"`

	LoanID    *uint64 `json:"loan_id"`
	AuctionID *uint64 `json:"auction_id"`

	DeviationThresholdBps uint64 `json:"deviation_threshold_bps"`
	StalenessSeconds      *int64 `json:"staleness_seconds"`
	HeartbeatSeconds      *int64 `json:"heartbeat_seconds"`

	Enabled     *bool            `json:"enabled"`
	HaircutBps  uint64           `json:"haircut_bps"`
	DebtCeiling *decimal.Decimal `json:"debt_ceiling"`

	MaxLTVBps               uint64 `json:"max_ltv_bps"`
	LiquidationThresholdBps uint64 `json:"liquidation_threshold_bps"`
	AnnualRateBps           uint64 `json:"annual_rate_bps"`
}

// fieldParser keeps the first field error so a command body is read in one
// pass.
type fieldParser struct {
	op  string
	err error
}

func (p *fieldParser) fail(format string, args ...interface{}) {
	if p.err == nil {
		p.err = errs.Validation(p.op, format, args...)
	}
}

func (p *fieldParser) str(name, v string) string {
	if strings.TrimSpace(v) == "" {
		p.fail("%s is required", name)
	}
	return v
}

func (p *fieldParser) uuidField(name, v string, required bool) uuid.UUID {
	if v == "" {
		if required {
			p.fail("%s is required", name)
		}
		return uuid.Nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		p.fail("%s: %v", name, err)
		return uuid.Nil
	}
	return id
}

func (p *fieldParser) amount(name string, d *decimal.Decimal) *uint256.Int {
	if d == nil {
		p.fail("%s is required", name)
		return nil
	}
	v, err := math.FromDecimal(*d)
	if err != nil {
		p.fail("%s: %v", name, err)
		return nil
	}
	return v
}

func (p *fieldParser) optionalAmount(name string, d *decimal.Decimal) *uint256.Int {
	if d == nil {
		return nil
	}
	return p.amount(name, d)
}

func (p *fieldParser) id(name string, v *uint64) uint64 {
	if v == nil {
		p.fail("%s is required", name)
		return 0
	}
	return *v
}

func (p *fieldParser) seconds(name string, v *int64) int64 {
	if v == nil {
		p.fail("%s is required", name)
		return 0
	}
	if *v <= 0 {
		p.fail("%s must be positive", name)
	}
	return *v
}

// PriceUpdate is one upstream observation pushed for a feed.
type PriceUpdate struct {
	Feed      string
	Price     *uint256.Int
	UpdatedAt time.Time
	Sequence  int64
}

type priceUpdateJSON struct {
	Feed        string          `json:"feed"`
	Price       decimal.Decimal `json:"price"`
	TimestampUs int64           `json:"timestamp_us"`
	Sequence    int64           `json:"sequence"`
}

// ParsePriceUpdate parses a pushed observation. The feed may come from the
// subject when the body omits it; "unit" names the unit-of-account feed.
func ParsePriceUpdate(data []byte, subjectFeed string) (PriceUpdate, error) {
	const op = "parse price update"
	var j priceUpdateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return PriceUpdate{}, errs.Wrap(errs.KindValidation, op, err)
	}
	feed := j.Feed
	if feed == "" {
		feed = subjectFeed
	}
	if feed == "" {
		return PriceUpdate{}, errs.Validation(op, "feed is required")
	}
	if feed == "unit" {
		feed = oracle.UnitFeed
	}
	if !j.Price.IsPositive() {
		return PriceUpdate{}, errs.Validation(op, "%s price must be positive", feed)
	}
	price, err := math.FromDecimal(j.Price)
	if err != nil {
		return PriceUpdate{}, err
	}
	if j.TimestampUs <= 0 {
		return PriceUpdate{}, errs.Validation(op, "%s timestamp_us is required", feed)
	}
	return PriceUpdate{
		Feed:      feed,
		Price:     price,
		UpdatedAt: time.UnixMicro(j.TimestampUs).UTC(),
		Sequence:  j.Sequence,
	}, nil
}
