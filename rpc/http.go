package rpc

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"flashvault/native/flashloan"
)

const jsonRPCVersion = "2.0"

const (
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeUnauthorized   = -32001
	codeRateLimited    = -32002
)

// Server exposes the vault engine over JSON-RPC. Flash borrows themselves are
// in-process only (they need a Go callback); the server carries the deposit,
// redemption, query and administrative surface.
type Server struct {
	engine    *flashloan.Engine
	hub       *EventHub
	log       *slog.Logger
	authToken string
	limiter   *rate.Limiter
}

// NewServer constructs a server around the engine. The owner-gated methods
// additionally require the bearer token from FLASHVAULT_RPC_TOKEN when set.
func NewServer(engine *flashloan.Engine, hub *EventHub, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		engine:    engine,
		hub:       hub,
		log:       log,
		authToken: strings.TrimSpace(os.Getenv("FLASHVAULT_RPC_TOKEN")),
		limiter:   rate.NewLimiter(rate.Limit(50), 100),
	}
}

// Router mounts the RPC endpoint alongside health and metrics handlers.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Post("/", s.handle)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	if s.hub != nil {
		r.Get("/ws", s.hub.handleWS)
	}
	return r
}

// Start serves the router on addr and blocks.
func (s *Server) Start(addr string) error {
	s.log.Info("starting JSON-RPC server", "addr", addr)
	return http.ListenAndServe(addr, s.Router())
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
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
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj})
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result})
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		writeError(w, http.StatusTooManyRequests, nil, codeRateLimited, "request rate limit exceeded", nil)
		return
	}
	var req RPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "invalid request body", err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")

	switch req.Method {
	case "flashloan_deposit":
		s.handleDeposit(w, &req)
	case "flashloan_redeem":
		s.handleRedeem(w, &req)
	case "flashloan_getVault":
		s.handleGetVault(w, &req)
	case "flashloan_getShareBalance":
		s.handleGetShareBalance(w, &req)
	case "flashloan_getCalculatedFee":
		s.handleGetCalculatedFee(w, &req)
	case "flashloan_getFee":
		s.handleGetFee(w, &req)
	case "flashloan_isAllowedToken":
		s.handleIsAllowedToken(w, &req)
	case "flashloan_isCurrentlyFlashLoaning":
		s.handleIsCurrentlyFlashLoaning(w, &req)
	case "flashloan_setAllowedToken":
		s.handleSetAllowedToken(w, r, &req)
	case "flashloan_setFeeRate":
		s.handleSetFeeRate(w, r, &req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
	}
}

// requireAuth enforces the bearer token on owner-gated methods. An empty
// configured token disables the check (local development).
func (s *Server) requireAuth(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	return header == "Bearer "+s.authToken
}
