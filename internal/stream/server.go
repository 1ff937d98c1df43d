// Package stream presents the three client transports over one session
// event queue: synchronous request/response, server-sent events, and a
// bidirectional websocket, plus the session, registry, and admin
// endpoints.
package stream

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/agentcore-dev/agentcore/internal/scheduler"
	"github.com/agentcore-dev/agentcore/pkg/fault"
	"github.com/agentcore-dev/agentcore/pkg/observability"
	"github.com/agentcore-dev/agentcore/pkg/policy"
	"github.com/agentcore-dev/agentcore/pkg/registry"
	"github.com/agentcore-dev/agentcore/pkg/session"
	"github.com/agentcore-dev/agentcore/pkg/telemetry"
	"github.com/agentcore-dev/agentcore/pkg/toolserver"
)

// Server hosts the transport endpoints.
type Server struct {
	store     *session.Store
	registry  *registry.Registry
	scheduler *scheduler.Scheduler
	engine    *policy.Engine
	tools     *toolserver.Server
	checker   *observability.HealthChecker
	logger    telemetry.Logger

	defaultRole string
}

// Options wires the server's collaborators.
type Options struct {
	Store     *session.Store
	Registry  *registry.Registry
	Scheduler *scheduler.Scheduler
	Engine    *policy.Engine
	Tools     *toolserver.Server
	Checker   *observability.HealthChecker
	Logger    telemetry.Logger
	// DefaultRole applies to requests without a role header.
	DefaultRole string
}

// New creates the transport server.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = telemetry.NewStdLogger()
	}
	if opts.DefaultRole == "" {
		opts.DefaultRole = "anonymous"
	}
	if opts.Checker == nil {
		opts.Checker = observability.NewHealthChecker()
	}
	return &Server{
		store:       opts.Store,
		registry:    opts.Registry,
		scheduler:   opts.Scheduler,
		engine:      opts.Engine,
		tools:       opts.Tools,
		checker:     opts.Checker,
		logger:      opts.Logger,
		defaultRole: opts.DefaultRole,
	}
}

// Handler builds the full route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /sessions", s.instrument("/sessions", s.handleCreateSession))
	mux.HandleFunc("GET /sessions/{id}", s.instrument("/sessions/{id}", s.handleGetSession))
	mux.HandleFunc("DELETE /sessions/{id}", s.instrument("/sessions/{id}", s.handleCloseSession))
	mux.HandleFunc("GET /sessions/{id}/messages", s.instrument("/sessions/{id}/messages", s.handleHistory))

	mux.HandleFunc("POST /messages", s.instrument("/messages", s.handleMessages))
	mux.HandleFunc("GET /stream", s.handleStream)
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	mux.HandleFunc("GET /agents", s.instrument("/agents", s.handleListAgents))
	mux.HandleFunc("POST /agents/register", s.instrument("/agents/register", s.handleRegisterAgent))
	mux.HandleFunc("POST /agents/{id}/heartbeat", s.instrument("/agents/{id}/heartbeat", s.handleHeartbeat))
	mux.HandleFunc("DELETE /agents/{id}", s.instrument("/agents/{id}", s.handleDeregisterAgent))

	mux.HandleFunc("GET /patterns", s.instrument("/patterns", s.handlePatterns))
	mux.HandleFunc("GET /override-options", s.instrument("/override-options", s.handleOverrideOptions))
	mux.HandleFunc("POST /policy/reload", s.instrument("/policy/reload", s.handlePolicyReload))

	if s.tools != nil {
		mux.HandleFunc("POST /tools", s.tools.Handler())
	}

	mux.HandleFunc("GET /health", s.checker.Handler())
	mux.HandleFunc("GET /health/live", observability.LivenessHandler())
	mux.HandleFunc("GET /health/ready", s.checker.ReadinessHandler())
	mux.Handle("GET /metrics", observability.MetricsHandler())

	return mux
}

// instrument records transport metrics and stamps a transaction.
func (s *Server) instrument(path string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		txn := s.transaction(r, "")
		r = r.WithContext(telemetry.WithTransaction(r.Context(), txn))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		observability.RecordHTTPRequest(r.Method, path, strconv.Itoa(rec.status), time.Since(start))
	}
}

// transaction builds the per-request transaction from identity headers.
func (s *Server) transaction(r *http.Request, sessionID string) *telemetry.Transaction {
	role := r.Header.Get("X-User-Role")
	if role == "" {
		role = s.defaultRole
	}
	return telemetry.NewTransaction(sessionID, r.Header.Get("X-User-ID"), role)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// writeJSON writes a JSON body with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the structured error envelope.
func writeError(w http.ResponseWriter, err error, txnID string) {
	fe := fault.AsError(err, txnID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus(fe.Kind))
	_ = json.NewEncoder(w).Encode(map[string]any{"error": fe})
}

func httpStatus(kind fault.Kind) int {
	switch kind {
	case fault.KindSessionNotFound:
		return http.StatusNotFound
	case fault.KindSessionClosed, fault.KindSessionExpired:
		return http.StatusGone
	case fault.KindInvalidRequest:
		return http.StatusBadRequest
	case fault.KindUnauthorized:
		return http.StatusUnauthorized
	case fault.KindDenied:
		return http.StatusForbidden
	case fault.KindOverloaded:
		return http.StatusTooManyRequests
	case fault.KindTimedOut, fault.KindToolTimeout:
		return http.StatusGatewayTimeout
	case fault.KindConfigError:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
