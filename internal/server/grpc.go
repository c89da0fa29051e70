package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"GoldLedger/internal/errs"
	"GoldLedger/internal/observability"
	"GoldLedger/internal/projection"
	"GoldLedger/internal/query"

	"github.com/google/uuid"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

const maxBodyBytes = 1 << 20

// GRPCServer serves the ledger over gRPC and HTTP/JSON.
type GRPCServer struct {
	grpcServer    *grpc.Server
	httpServer    *http.Server
	grpcAddr      string
	httpAddr      string
	healthServer  *health.Server
	healthChecker *observability.HealthChecker
	logger        zerolog.Logger
	deps          *ServerDeps
}

// ServerDeps holds all dependencies needed by the gRPC services.
type ServerDeps struct {
	Ledger        LedgerServer
	QueryService  *query.QueryService
	Projections   *projection.ProjectionWorker
	HealthChecker *observability.HealthChecker
	Metrics       *observability.Metrics
	Logger        zerolog.Logger
}

// NewGRPCServer creates a new gRPC server with all services registered.
func NewGRPCServer(grpcAddr, httpAddr string, deps *ServerDeps) *GRPCServer {
	grpcServer := grpc.NewServer()
	grpcServer.RegisterService(&LedgerServiceDesc, deps.Ledger)

	// Health check
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	// Reflection for grpcurl / grpcui
	reflection.Register(grpcServer)

	return &GRPCServer{
		grpcServer:    grpcServer,
		grpcAddr:      grpcAddr,
		httpAddr:      httpAddr,
		healthServer:  healthServer,
		healthChecker: deps.HealthChecker,
		logger:        deps.Logger,
		deps:          deps,
	}
}

// SetServing flips the gRPC health status once recovery has finished.
func (s *GRPCServer) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.healthServer.SetServingStatus("", st)
	s.healthServer.SetServingStatus(ServiceName, st)
}

// StartGRPC starts the gRPC server (blocking).
func (s *GRPCServer) StartGRPC(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.grpcAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	go func() {
		<-ctx.Done()
		s.logger.Info().Msg("gRPC server shutting down")
		s.grpcServer.GracefulStop()
	}()

	s.logger.Info().Str("addr", s.grpcAddr).Msg("gRPC server listening")
	return s.grpcServer.Serve(lis)
}

// StartHTTPGateway starts the HTTP/JSON surface (blocking).
func (s *GRPCServer) StartHTTPGateway(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.httpAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info().Msg("HTTP gateway shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Str("addr", s.httpAddr).Msg("HTTP gateway listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Handler builds the HTTP routes. They call the same LedgerServer as the
// gRPC service, so both surfaces answer identically.
func (s *GRPCServer) Handler() http.Handler {
	mux := runtime.NewServeMux()
	ledger := s.deps.Ledger
	qs := s.deps.QueryService

	s.route(mux, "POST", "/v1/commands", "submit", func(r *http.Request, _ map[string]string) (interface{}, error) {
		var req SubmitRequest
		if err := decodeBody(r, &req); err != nil {
			return nil, err
		}
		return ledger.Submit(r.Context(), &req)
	})
	s.route(mux, "POST", "/v1/prices/{feed}", "push_price", func(r *http.Request, p map[string]string) (interface{}, error) {
		var req PushPriceRequest
		if err := decodeBody(r, &req); err != nil {
			return nil, err
		}
		req.Feed = p["feed"]
		return ledger.PushPrice(r.Context(), &req)
	})
	s.route(mux, "GET", "/v1/loans/{id}", "get_loan", func(r *http.Request, p map[string]string) (interface{}, error) {
		id, err := parseID("loan id", p["id"])
		if err != nil {
			return nil, err
		}
		return ledger.GetLoan(r.Context(), &GetLoanRequest{LoanID: id})
	})
	s.route(mux, "GET", "/v1/auctions/{id}", "get_auction", func(r *http.Request, p map[string]string) (interface{}, error) {
		id, err := parseID("auction id", p["id"])
		if err != nil {
			return nil, err
		}
		return ledger.GetAuction(r.Context(), &GetAuctionRequest{AuctionID: id})
	})
	s.route(mux, "GET", "/v1/auctions", "list_active_auctions", func(r *http.Request, _ map[string]string) (interface{}, error) {
		ids, err := qs.ActiveAuctions(r.Context())
		return map[string]interface{}{"auction_ids": ids}, toStatus(err)
	})
	s.route(mux, "GET", "/v1/loans/{id}/auctions", "list_loan_auctions", func(r *http.Request, p map[string]string) (interface{}, error) {
		id, err := parseID("loan id", p["id"])
		if err != nil {
			return nil, err
		}
		auctions, err := qs.ListAuctions(r.Context(), id)
		return map[string]interface{}{"auctions": auctions}, toStatus(err)
	})
	s.route(mux, "GET", "/v1/fund/{asset}", "get_fund", func(r *http.Request, p map[string]string) (interface{}, error) {
		return ledger.GetFund(r.Context(), &GetFundRequest{Asset: p["asset"]})
	})
	s.route(mux, "GET", "/v1/prices/{feed}", "get_price", func(r *http.Request, p map[string]string) (interface{}, error) {
		return ledger.GetPrice(r.Context(), &GetPriceRequest{Feed: p["feed"]})
	})
	s.route(mux, "GET", "/v1/users/{user}/position", "get_position", func(r *http.Request, p map[string]string) (interface{}, error) {
		user, err := parseUser(p["user"])
		if err != nil {
			return nil, err
		}
		resp, err := qs.GetPosition(r.Context(), user)
		return resp, toStatus(err)
	})
	s.route(mux, "GET", "/v1/users/{user}/balances/{asset}", "get_balance", func(r *http.Request, p map[string]string) (interface{}, error) {
		user, err := parseUser(p["user"])
		if err != nil {
			return nil, err
		}
		resp, err := qs.GetBalance(r.Context(), user, p["asset"])
		return resp, toStatus(err)
	})
	s.route(mux, "GET", "/v1/users/{user}/loans", "list_loans", func(r *http.Request, p map[string]string) (interface{}, error) {
		user, err := parseUser(p["user"])
		if err != nil {
			return nil, err
		}
		page, err := parsePage(r)
		if err != nil {
			return nil, err
		}
		loans, err := qs.ListLoans(r.Context(), user, page)
		return map[string]interface{}{"loans": loans}, toStatus(err)
	})
	s.route(mux, "GET", "/v1/users/{user}/journal", "list_journal", func(r *http.Request, p map[string]string) (interface{}, error) {
		user, err := parseUser(p["user"])
		if err != nil {
			return nil, err
		}
		page, err := parsePage(r)
		if err != nil {
			return nil, err
		}
		entries, err := qs.GetJournalHistory(r.Context(), user, page)
		return map[string]interface{}{"entries": entries}, toStatus(err)
	})
	s.route(mux, "GET", "/v1/admin/integrity", "verify_integrity", func(r *http.Request, _ map[string]string) (interface{}, error) {
		report, err := qs.VerifyIntegrity(r.Context())
		return report, toStatus(err)
	})
	s.route(mux, "POST", "/v1/admin/projections/rebuild", "rebuild_projections", func(r *http.Request, _ map[string]string) (interface{}, error) {
		if s.deps.Projections == nil {
			return nil, status.Error(codes.Unavailable, "projections are disabled")
		}
		if err := s.deps.Projections.Rebuild(r.Context()); err != nil {
			return nil, status.Errorf(codes.Internal, "rebuild failed: %v", err)
		}
		return map[string]interface{}{"last_sequence": s.deps.Projections.LastSequence()}, nil
	})

	httpMux := http.NewServeMux()
	if s.healthChecker != nil {
		httpMux.HandleFunc("/healthz", s.healthChecker.LivenessHandler)
		httpMux.HandleFunc("/readyz", s.healthChecker.ReadinessHandler)
	} else {
		httpMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
	}
	httpMux.Handle("/", mux)
	return httpMux
}

type routeFunc func(r *http.Request, pathParams map[string]string) (interface{}, error)

func (s *GRPCServer) route(mux *runtime.ServeMux, method, pattern, endpoint string, fn routeFunc) {
	err := mux.HandlePath(method, pattern, func(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
		start := time.Now()
		resp, err := fn(r, pathParams)
		code := status.Code(err)
		if m := s.deps.Metrics; m != nil {
			m.QueryRequests.WithLabelValues(endpoint, code.String()).Inc()
			m.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
			if err != nil {
				m.QueryErrors.WithLabelValues(endpoint, code.String()).Inc()
			}
		}
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	})
	if err != nil {
		// Patterns are constants; a bad one is a programming error.
		panic(fmt.Sprintf("register %s %s: %v", method, pattern, err))
	}
}

// --- Error mapping ---

// GRPCCode maps an engine error kind to a gRPC status code.
func GRPCCode(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	switch errs.KindOf(err) {
	case errs.KindValidation:
		return codes.InvalidArgument
	case errs.KindState, errs.KindCoverage:
		return codes.FailedPrecondition
	case errs.KindOracleInvalid:
		return codes.FailedPrecondition
	case errs.KindOracleUnavailable:
		return codes.Unavailable
	case errs.KindArithmetic, errs.KindDivisionByZero:
		return codes.OutOfRange
	case errs.KindUnauthorized:
		return codes.PermissionDenied
	}
	switch {
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	}
	return codes.Internal
}

// toStatus converts an error to a gRPC status error. Status errors pass
// through unchanged.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(GRPCCode(err), err.Error())
}

type errorBody struct {
	Code    string `json:"code"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, err error) {
	st, _ := status.FromError(toStatus(err))
	body := errorBody{Code: st.Code().String(), Message: st.Message()}
	if k := errs.KindOf(err); k != errs.KindUnknown {
		body.Kind = k.String()
	}
	writeJSON(w, runtime.HTTPStatusFromCode(st.Code()), body)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// --- Helpers ---

func decodeBody(r *http.Request, v interface{}) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "read body: %v", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid JSON body: %v", err)
	}
	return nil
}

func parseID(name, s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, status.Errorf(codes.InvalidArgument, "invalid %s %q", name, s)
	}
	return id, nil
}

func parseUser(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, status.Errorf(codes.InvalidArgument, "invalid user %q", s)
	}
	return id, nil
}

func parsePage(r *http.Request) (query.Page, error) {
	var page query.Page
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return page, status.Errorf(codes.InvalidArgument, "invalid limit %q", v)
		}
		page.Limit = n
	}
	if v := q.Get("after"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return page, status.Errorf(codes.InvalidArgument, "invalid after %q", v)
		}
		page.After = n
	}
	return page, nil
}
