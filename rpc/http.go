package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"yetifarm/config"
	"yetifarm/explorer"
	"yetifarm/native/bank"
	nativecommon "yetifarm/native/common"
	"yetifarm/native/farm"
	"yetifarm/observability/logging"
	"yetifarm/observability/metrics"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
	requestIDHeader = "X-Request-ID"
)

const (
	codeParseError        = -32700
	codeInvalidRequest    = -32600
	codeMethodNotFound    = -32601
	codeInvalidParams     = -32602
	codeUnauthorized      = -32001
	codeServerError       = -32000
	codeInsufficientFunds = -32010
	codeModuleUnavailable = -32011
	codeRateLimited       = -32020
)

type requestIDKey struct{}

// Options wires the server to the farm and its asset ledgers.
type Options struct {
	Engine  *farm.Engine
	Staked  *bank.Ledger
	Reward  *bank.Ledger
	Journal *explorer.Journal
	Pauses  *nativecommon.PauseSet
	// AuthToken guards funding, minting and pausing. An empty token disables
	// those methods.
	AuthToken string
	// AccountAuth and AccountSecret verify the JWT naming the account that
	// stake, withdraw, getReward, exit and approve act for. An empty secret
	// disables those methods.
	AccountAuth   config.AccountAuth
	AccountSecret string
	// DefaultDuration applies when farm_notifyRewardAmount omits a duration.
	DefaultDuration uint64
	RateLimit       config.RateLimit
	Logger          *slog.Logger
	Metrics         *metrics.RPCMetrics
	Gatherer        prometheus.Gatherer
}

// Server exposes the farm over JSON-RPC 2.0. Requests touching the engine
// are serialized so operations reach it one at a time.
type Server struct {
	engine          *farm.Engine
	ledgers         map[string]*bank.Ledger
	journal         *explorer.Journal
	pauses          *nativecommon.PauseSet
	authToken       string
	accounts        *accountAuth
	defaultDuration uint64
	limiter         *rateLimiter
	logger          *slog.Logger
	metrics         *metrics.RPCMetrics
	gatherer        prometheus.Gatherer

	mu sync.Mutex
}

// NewServer builds a server from opts. Engine, Staked and Reward are required.
func NewServer(opts Options) (*Server, error) {
	if opts.Engine == nil {
		return nil, errors.New("rpc: farm engine required")
	}
	if opts.Staked == nil || opts.Reward == nil {
		return nil, errors.New("rpc: staked and reward ledgers required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		engine: opts.Engine,
		ledgers: map[string]*bank.Ledger{
			opts.Staked.Symbol(): opts.Staked,
			opts.Reward.Symbol(): opts.Reward,
		},
		journal:         opts.Journal,
		pauses:          opts.Pauses,
		authToken:       strings.TrimSpace(opts.AuthToken),
		accounts:        newAccountAuth(opts.AccountAuth, opts.AccountSecret, nil),
		defaultDuration: opts.DefaultDuration,
		limiter:         newRateLimiter(opts.RateLimit, opts.Metrics),
		logger:          logger,
		metrics:         opts.Metrics,
		gatherer:        gatherer,
	}, nil
}

// Handler returns the HTTP routes served by the daemon.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.withRequestID)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	rpc := s.limiter.Middleware(http.HandlerFunc(s.handle))
	r.Method(http.MethodPost, "/", rpc)
	r.Method(http.MethodPost, "/rpc", rpc)
	return r
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func statusFor(code int) int {
	switch code {
	case codeUnauthorized:
		return http.StatusUnauthorized
	case codeRateLimited:
		return http.StatusTooManyRequests
	case codeMethodNotFound:
		return http.StatusNotFound
	case codeModuleUnavailable:
		return http.StatusConflict
	case codeServerError:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	w.Header().Set("Content-Type", "application/json")

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, nil, codeInvalidRequest, "request body too large", nil)
			return
		}
		writeError(w, http.StatusBadRequest, nil, codeParseError, "failed to read request body", err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "empty request body", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "failed to parse request", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if strings.TrimSpace(req.Method) == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	result, rpcErr := s.dispatch(r, req)
	code := 0
	if rpcErr != nil {
		code = rpcErr.Code
		writeError(w, statusFor(rpcErr.Code), req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
	} else {
		writeResult(w, req.ID, result)
	}
	elapsed := time.Since(start)
	s.metrics.Observe(req.Method, code, elapsed)

	attrs := []any{
		slog.String("method", req.Method),
		slog.String("request_id", requestID(r.Context())),
		logging.MaskRemote("remote", clientSource(r)),
		slog.Duration("duration", elapsed),
	}
	if rpcErr != nil {
		attrs = append(attrs, slog.Int("code", rpcErr.Code), slog.String("error", rpcErr.Message))
		s.logger.Warn("rpc request failed", attrs...)
		return
	}
	s.logger.Debug("rpc request served", attrs...)
}

func (s *Server) dispatch(r *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	if req.Method != "farm_events" {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	switch req.Method {
	case "farm_stake":
		return s.handleFarmStake(r, req)
	case "farm_withdraw":
		return s.handleFarmWithdraw(r, req)
	case "farm_getReward":
		return s.handleFarmGetReward(r, req)
	case "farm_exit":
		return s.handleFarmExit(r, req)
	case "farm_notifyRewardAmount":
		if authErr := s.requireAuth(r); authErr != nil {
			return nil, authErr
		}
		return s.handleFarmNotify(req)
	case "farm_setPaused":
		if authErr := s.requireAuth(r); authErr != nil {
			return nil, authErr
		}
		return s.handleFarmSetPaused(req)
	case "farm_earned":
		return s.handleFarmEarned(req)
	case "farm_balanceOf":
		return s.handleFarmBalanceOf(req)
	case "farm_rewardPerToken":
		return s.handleFarmRewardPerToken(req)
	case "farm_rewardForDuration":
		return s.handleFarmRewardForDuration(req)
	case "farm_position":
		return s.handleFarmPosition(req)
	case "farm_status":
		return s.handleFarmStatus(req)
	case "farm_events":
		return s.handleFarmEvents(r.Context(), req)
	case "token_balance":
		return s.handleTokenBalance(req)
	case "token_allowance":
		return s.handleTokenAllowance(req)
	case "token_approve":
		return s.handleTokenApprove(r, req)
	case "token_mint":
		if authErr := s.requireAuth(r); authErr != nil {
			return nil, authErr
		}
		return s.handleTokenMint(req)
	default:
		return nil, &RPCError{Code: codeMethodNotFound, Message: "method not found", Data: req.Method}
	}
}

func clientSource(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			if candidate := strings.TrimSpace(parts[0]); candidate != "" {
				return candidate
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
