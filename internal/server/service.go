package server

import (
	"context"
	"encoding/json"
	"time"

	"GoldLedger/internal/core"
	"GoldLedger/internal/errs"
	"GoldLedger/internal/ingestion"
	"GoldLedger/internal/query"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "goldledger.v1.Ledger"

// --- Messages ---

// SubmitRequest carries one JSON command. Command uses the same snake_case
// body as the NATS command subjects.
type SubmitRequest struct {
	Type    string          `json:"type"`
	Command json.RawMessage `json:"command"`
}

// SubmitResponse reports the outcome of a command. Duplicate is set when the
// idempotency key was already processed and nothing ran.
type SubmitResponse struct {
	Accepted     bool            `json:"accepted"`
	Duplicate    bool            `json:"duplicate,omitempty"`
	Error        string          `json:"error,omitempty"`
	LastSequence int64           `json:"last_sequence,omitempty"`
	Events       []EventResponse `json:"events,omitempty"`
}

// EventResponse is one envelope produced by a command.
type EventResponse struct {
	Sequence  int64           `json:"sequence"`
	Type      string          `json:"type"`
	Subject   string          `json:"subject"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// PushPriceRequest pushes a manual observation and refreshes the feed.
type PushPriceRequest struct {
	Feed      string          `json:"feed"`
	By        uuid.UUID       `json:"by"`
	Price     decimal.Decimal `json:"price"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type GetLoanRequest struct {
	LoanID uint64 `json:"loan_id"`
}

type GetAuctionRequest struct {
	AuctionID uint64 `json:"auction_id"`
}

type GetFundRequest struct {
	Asset string `json:"asset"`
}

type GetPriceRequest struct {
	Feed string `json:"feed"`
}

// LedgerServer is the ledger API shared by the gRPC service and the HTTP
// routes.
type LedgerServer interface {
	Submit(context.Context, *SubmitRequest) (*SubmitResponse, error)
	PushPrice(context.Context, *PushPriceRequest) (*SubmitResponse, error)
	GetLoan(context.Context, *GetLoanRequest) (*query.LoanResponse, error)
	GetAuction(context.Context, *GetAuctionRequest) (*query.AuctionResponse, error)
	GetFund(context.Context, *GetFundRequest) (*query.FundResponse, error)
	GetPrice(context.Context, *GetPriceRequest) (*query.PriceResponse, error)
}

// --- Implementation ---

type ledgerService struct {
	injector *ingestion.Injector
	queries  *query.QueryService
}

// NewLedgerService serves commands through injector and reads through
// queries.
func NewLedgerService(injector *ingestion.Injector, queries *query.QueryService) LedgerServer {
	return &ledgerService{injector: injector, queries: queries}
}

func (s *ledgerService) Submit(ctx context.Context, req *SubmitRequest) (*SubmitResponse, error) {
	if req.Type == "" {
		return nil, toStatus(errs.Validation("submit", "type is required"))
	}
	out, err := s.injector.InjectCommand(ctx, req.Type, req.Command)
	return submitResponse(out, err)
}

func (s *ledgerService) PushPrice(ctx context.Context, req *PushPriceRequest) (*SubmitResponse, error) {
	out, err := s.injector.InjectPrice(ctx, req.By, req.Feed, req.Price, req.UpdatedAt)
	return submitResponse(out, err)
}

// submitResponse turns a processor result into a response. Engine rejections
// are answered with the error status; events emitted by operations the
// rejected command triggered are still committed but not echoed.
func submitResponse(out *core.CoreOutput, err error) (*SubmitResponse, error) {
	if err != nil {
		return nil, toStatus(err)
	}
	if out == nil {
		return &SubmitResponse{Accepted: true, Duplicate: true}, nil
	}
	resp := &SubmitResponse{Accepted: true, LastSequence: out.LastSequence()}
	for _, env := range out.Envelopes {
		resp.Events = append(resp.Events, EventResponse{
			Sequence:  env.Sequence,
			Type:      env.EventType.String(),
			Subject:   env.Subject,
			Timestamp: env.Timestamp,
			Payload:   env.Payload,
		})
	}
	return resp, nil
}

func (s *ledgerService) GetLoan(ctx context.Context, req *GetLoanRequest) (*query.LoanResponse, error) {
	resp, err := s.queries.GetLoan(ctx, req.LoanID)
	return resp, toStatus(err)
}

func (s *ledgerService) GetAuction(ctx context.Context, req *GetAuctionRequest) (*query.AuctionResponse, error) {
	resp, err := s.queries.GetAuction(ctx, req.AuctionID)
	return resp, toStatus(err)
}

func (s *ledgerService) GetFund(ctx context.Context, req *GetFundRequest) (*query.FundResponse, error) {
	if req.Asset == "" {
		return nil, toStatus(errs.Validation("fund", "asset is required"))
	}
	resp, err := s.queries.GetFund(ctx, req.Asset)
	return resp, toStatus(err)
}

func (s *ledgerService) GetPrice(ctx context.Context, req *GetPriceRequest) (*query.PriceResponse, error) {
	resp, err := s.queries.GetPrice(ctx, req.Feed)
	return resp, toStatus(err)
}

// --- Service descriptor ---

func unaryHandler[Req any, Resp any](method string, call func(LedgerServer, context.Context, *Req) (Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(LedgerServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + method}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(LedgerServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// LedgerServiceDesc describes goldledger.v1.Ledger for grpc.Server. Messages
// travel with the JSON codec.
var LedgerServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LedgerServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("Submit", LedgerServer.Submit),
		unaryHandler("PushPrice", LedgerServer.PushPrice),
		unaryHandler("GetLoan", LedgerServer.GetLoan),
		unaryHandler("GetAuction", LedgerServer.GetAuction),
		unaryHandler("GetFund", LedgerServer.GetFund),
		unaryHandler("GetPrice", LedgerServer.GetPrice),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "goldledger/v1/ledger",
}

// LedgerClient calls goldledger.v1.Ledger over cc.
type LedgerClient struct {
	cc grpc.ClientConnInterface
}

func NewLedgerClient(cc grpc.ClientConnInterface) *LedgerClient {
	return &LedgerClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, req interface{}) (*Resp, error) {
	out := new(Resp)
	err := cc.Invoke(ctx, "/"+ServiceName+"/"+method, req, out, grpc.CallContentSubtype(CodecName))
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LedgerClient) Submit(ctx context.Context, req *SubmitRequest) (*SubmitResponse, error) {
	return invoke[SubmitResponse](ctx, c.cc, "Submit", req)
}

func (c *LedgerClient) PushPrice(ctx context.Context, req *PushPriceRequest) (*SubmitResponse, error) {
	return invoke[SubmitResponse](ctx, c.cc, "PushPrice", req)
}

func (c *LedgerClient) GetLoan(ctx context.Context, req *GetLoanRequest) (*query.LoanResponse, error) {
	return invoke[query.LoanResponse](ctx, c.cc, "GetLoan", req)
}

func (c *LedgerClient) GetAuction(ctx context.Context, req *GetAuctionRequest) (*query.AuctionResponse, error) {
	return invoke[query.AuctionResponse](ctx, c.cc, "GetAuction", req)
}

func (c *LedgerClient) GetFund(ctx context.Context, req *GetFundRequest) (*query.FundResponse, error) {
	return invoke[query.FundResponse](ctx, c.cc, "GetFund", req)
}

func (c *LedgerClient) GetPrice(ctx context.Context, req *GetPriceRequest) (*query.PriceResponse, error) {
	return invoke[query.PriceResponse](ctx, c.cc, "GetPrice", req)
}
