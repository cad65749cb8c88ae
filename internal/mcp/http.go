// ABOUTME: HTTP transport: JSON-RPC over POST /mcp plus health and status endpoints.
// ABOUTME: Adds permissive CORS, optional X-API-Key auth and Mcp-Session-Id issuance.

package mcp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/uaxd/mcp-gateway/internal/auth"
	"github.com/uaxd/mcp-gateway/internal/jsonwire"
	"github.com/uaxd/mcp-gateway/internal/reliability"
	"github.com/uaxd/mcp-gateway/internal/rpc"
)

// MaxRequestBodySize is the maximum allowed size for request bodies (1MB).
const MaxRequestBodySize = 1 << 20

// ErrDispatcherRequired is returned by NewServer without a dispatcher.
var ErrDispatcherRequired = errors.New("dispatcher is required")

// SessionHeader carries the MCP session id.
const SessionHeader = "Mcp-Session-Id"

const (
	unauthorizedBody = `{"jsonrpc":"2.0","error":{"code":-32001,"message":"Unauthorized: Invalid or missing API key"},"id":null}`
	healthBody       = `{"status":"healthy","service":"uaxd-mcp","version":"1.0.0"}`
)

// StatusSource reports the breaker state of every known service.
type StatusSource interface {
	Snapshot() []reliability.BreakerSnapshot
}

// Config holds configuration for the HTTP server.
type Config struct {
	Dispatcher *rpc.Dispatcher
	Status     StatusSource // optional
	APIKey     string       // empty disables auth
	Logger     *slog.Logger
}

// Server implements the MCP HTTP endpoints.
type Server struct {
	dispatcher *rpc.Dispatcher
	status     StatusSource
	apiKey     string
	logger     *slog.Logger
	started    time.Time
	now        func() time.Time
	requests   atomic.Int64
}

// NewServer creates a new HTTP server with the given configuration.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Dispatcher == nil {
		return nil, ErrDispatcherRequired
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		dispatcher: cfg.Dispatcher,
		status:     cfg.Status,
		apiKey:     cfg.APIKey,
		logger:     logger,
		started:    time.Now(),
		now:        time.Now,
	}, nil
}

// RequestsProcessed returns the number of requests received on /mcp.
func (s *Server) RequestsProcessed() int64 {
	return s.requests.Load()
}

// AuthEnabled reports whether /mcp requires an API key.
func (s *Server) AuthEnabled() bool {
	return s.apiKey != ""
}

// RegisterRoutes registers the MCP endpoints on the given ServeMux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("/mcp", chain(http.HandlerFunc(s.handleMCP),
		auth.APIKeyMiddleware(s.apiKey, s.writeUnauthorized),
		s.postOnly,
	))
	mux.HandleFunc("/mcp/health", s.handleHealth)
	mux.HandleFunc("/mcp/status", s.handleStatus)
}

// Handler returns the full handler chain: recovery, request counting, CORS, routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return chain(mux, s.cors, s.countRequests, s.recoverPanics)
}

// chain applies middlewares so the last one listed runs first.
func chain(h http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	for _, m := range middlewares {
		h = m(h)
	}
	return h
}

type requestIDKey struct{}

func requestID(ctx context.Context) int64 {
	id, _ := ctx.Value(requestIDKey{}).(int64)
	return id
}

// countRequests numbers /mcp requests for log correlation.
func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/mcp" {
			next.ServeHTTP(w, r)
			return
		}
		id := s.requests.Add(1)
		s.logger.Info("mcp request",
			"req", id,
			"method", r.Method,
			"remote", r.RemoteAddr,
		)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Accept, X-API-Key, Mcp-Session-Id")
		h.Set("Access-Control-Expose-Headers", SessionHeader)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.logger.Error("http handler panicked",
					"req", requestID(r.Context()),
					"path", r.URL.Path,
					"panic", rec,
				)
				s.writeStatusError(w, http.StatusInternalServerError, "Internal Server Error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// postOnly rejects other methods before the API key is checked.
func (s *Server) postOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", "POST, OPTIONS")
			s.writeStatusError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleMCP processes one JSON-RPC message sent via POST.
func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	reqID := requestID(r.Context())

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize+1))
	if err != nil {
		s.logger.Warn("failed to read request body", "req", reqID, "error", err)
		s.writeResponse(w, rpc.ParseError())
		return
	}
	if int64(len(body)) > MaxRequestBodySize {
		s.logger.Warn("request body too large", "req", reqID, "size", len(body))
		s.writeResponse(w, rpc.InvalidRequest(nil))
		return
	}
	s.logger.Debug("rpc request", "req", reqID, "raw", string(body))

	req, errResp := rpc.Decode(body)
	if errResp != nil {
		s.writeResponse(w, errResp)
		return
	}

	if sessionID := r.Header.Get(SessionHeader); sessionID != "" {
		w.Header().Set(SessionHeader, sessionID)
	} else if req.Method == "initialize" {
		sessionID = uuid.New().String()
		s.logger.Info("issued MCP session", "req", reqID, "session_id", sessionID)
		w.Header().Set(SessionHeader, sessionID)
	}

	resp := s.dispatcher.DispatchRequest(r.Context(), req)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	s.writeResponse(w, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		s.writeStatusError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, []byte(healthBody))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		s.writeStatusError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
		return
	}

	services := jsonwire.NewObject()
	if s.status != nil {
		for _, snap := range s.status.Snapshot() {
			services.Set(snap.Service, snap)
		}
	}

	status := jsonwire.NewObject().
		Set("service", ServerName).
		Set("version", ServerVersion).
		Set("uptime_seconds", int64(s.now().Sub(s.started)/time.Second)).
		Set("requests_processed", s.requests.Load()).
		Set("services", services)

	out, err := jsonwire.Marshal(status)
	if err != nil {
		s.logger.Error("failed to encode status", "error", err)
		s.writeStatusError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) writeUnauthorized(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("unauthorized: invalid or missing API key", "req", requestID(r.Context()))
	s.writeJSON(w, http.StatusUnauthorized, []byte(unauthorizedBody))
}

func (s *Server) writeStatusError(w http.ResponseWriter, status int, message string) {
	body := jsonwire.MustMarshal(jsonwire.NewObject().Set("error", message))
	s.writeJSON(w, status, body)
}

func (s *Server) writeResponse(w http.ResponseWriter, resp *rpc.Response) {
	out, err := resp.Encode()
	if err != nil {
		s.logger.Error("failed to encode JSON-RPC response", "error", err)
		out, _ = rpc.InternalError(resp.ID, err.Error()).Encode()
	}
	s.logger.Debug("rpc response", "raw", string(out))
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		s.logger.Warn("failed to write response", "error", err)
	}
}
