package toolserver

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/agentcore-dev/agentcore/pkg/fault"
	"github.com/agentcore-dev/agentcore/pkg/policy"
	"github.com/agentcore-dev/agentcore/pkg/telemetry"
)

// Server hosts tool adapters behind the authenticated call contract.
type Server struct {
	auth    Authenticator
	engine  *policy.Engine
	logger  telemetry.Logger
	metrics Observer

	defaultTimeout time.Duration
	maxInFlight    int
	maxQueued      int

	mu       sync.RWMutex
	adapters map[string]*registeredAdapter

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter
	burstRPS  float64
	burst     int
}

// Observer receives per-call measurements. The prometheus
// implementation lives in pkg/observability; a nil observer is valid.
type Observer interface {
	ToolCall(tool string, status ResultStatus, duration time.Duration)
}

type registeredAdapter struct {
	adapter Adapter
	slots   chan struct{}
	queued  chan struct{}
}

// ServerOptions configures the tool server.
type ServerOptions struct {
	// Authenticator is required.
	Authenticator Authenticator
	// Engine is the policy engine; required.
	Engine *policy.Engine
	// DefaultTimeout bounds calls without a policy budget (default 30s).
	DefaultTimeout time.Duration
	// MaxInFlight bounds concurrent calls per adapter (default 16).
	MaxInFlight int
	// MaxQueued bounds waiting calls per adapter (default 1024);
	// beyond it, calls are rejected with Overloaded.
	MaxQueued int
	// BurstRPS is the per-caller burst limit (default 50/s, burst 100).
	BurstRPS float64
	Burst    int
	// Logger defaults to the standard sink.
	Logger telemetry.Logger
	// Metrics is the optional observer.
	Metrics Observer
}

// NewServer creates a tool server.
func NewServer(opts ServerOptions) *Server {
	if opts.DefaultTimeout == 0 {
		opts.DefaultTimeout = 30 * time.Second
	}
	if opts.MaxInFlight == 0 {
		opts.MaxInFlight = 16
	}
	if opts.MaxQueued == 0 {
		opts.MaxQueued = 1024
	}
	if opts.BurstRPS == 0 {
		opts.BurstRPS = 50
	}
	if opts.Burst == 0 {
		opts.Burst = 100
	}
	if opts.Logger == nil {
		opts.Logger = telemetry.NewStdLogger()
	}
	return &Server{
		auth:           opts.Authenticator,
		engine:         opts.Engine,
		logger:         opts.Logger,
		metrics:        opts.Metrics,
		defaultTimeout: opts.DefaultTimeout,
		maxInFlight:    opts.MaxInFlight,
		maxQueued:      opts.MaxQueued,
		adapters:       make(map[string]*registeredAdapter),
		limiters:       make(map[string]*rate.Limiter),
		burstRPS:       opts.BurstRPS,
		burst:          opts.Burst,
	}
}

// Register adds an adapter. Names must be unique.
func (s *Server) Register(adapter Adapter) error {
	if adapter.Name() == "" {
		return fault.New(fault.KindInvalidRequest, "adapter name cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.adapters[adapter.Name()]; exists {
		return fault.New(fault.KindInvalidRequest, "adapter %s already registered", adapter.Name())
	}
	s.adapters[adapter.Name()] = &registeredAdapter{
		adapter: adapter,
		slots:   make(chan struct{}, s.maxInFlight),
		queued:  make(chan struct{}, s.maxQueued),
	}
	return nil
}

// List returns all registered tools in name order.
func (s *Server) List() []ToolInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ToolInfo, 0, len(s.adapters))
	for _, reg := range s.adapters {
		out = append(out, ToolInfo{
			Name:        reg.adapter.Name(),
			Description: reg.adapter.Description(),
			InputSchema: reg.adapter.Schema(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Call executes one authenticated tool call: authenticate, policy
// check, schema validation, bounded dispatch with timeout.
func (s *Server) Call(ctx context.Context, toolID string, arguments map[string]any, authToken string) Result {
	start := time.Now()
	result := s.call(ctx, toolID, arguments, authToken)
	if s.metrics != nil {
		s.metrics.ToolCall(toolID, result.Status, time.Since(start))
	}
	return result
}

func (s *Server) call(ctx context.Context, toolID string, arguments map[string]any, authToken string) Result {
	principal, err := s.auth.Authenticate(ctx, authToken)
	if err != nil {
		return errorResult(fault.KindUnauthorized, "authentication failed")
	}

	// Tool calls are nested work: derive a child transaction carrying
	// the caller's resolved identity.
	parent := telemetry.TransactionFrom(ctx)
	txn := parent.Child()
	txn.UserID = principal.ID
	txn.Role = principal.Role
	ctx = telemetry.WithTransaction(ctx, txn)

	ctx, span := telemetry.StartSpan(ctx, "toolserver.call",
		attribute.String("tool", toolID))
	defer span.End()

	s.mu.RLock()
	reg, exists := s.adapters[toolID]
	s.mu.RUnlock()
	if !exists {
		return errorResult(fault.KindToolNotFound, "tool not found: "+toolID)
	}

	if !s.callerLimiter(principal.ID).Allow() {
		return Result{Status: ResultDenied, Error: &ErrorInfo{
			Code: string(fault.KindDenied), Message: "burst limit exceeded",
		}}
	}

	decision := s.engine.Evaluate(ctx, policy.ResourceTool, toolID, "call", arguments)
	if !decision.Allowed {
		return Result{Status: ResultDenied, Error: &ErrorInfo{
			Code:    string(fault.KindDenied) + "/" + decision.Subcode,
			Message: decision.Reason,
		}}
	}

	if err := reg.adapter.Schema().Validate(Args(arguments)); err != nil {
		return errorResult(fault.KindInvalidRequest, err.Error())
	}

	// Queue admission: reject outright when the wait queue is full.
	select {
	case reg.queued <- struct{}{}:
		defer func() { <-reg.queued }()
	default:
		return errorResult(fault.KindOverloaded, "tool queue overflow: "+toolID)
	}

	select {
	case reg.slots <- struct{}{}:
		defer func() { <-reg.slots }()
	case <-ctx.Done():
		return errorResult(fault.KindToolTimeout, "cancelled while queued: "+toolID)
	}

	timeout := s.defaultTimeout
	if budget := decision.MaxExecutionTime(); budget > 0 {
		timeout = budget
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	data, err := reg.adapter.Call(callCtx, Args(arguments))
	latency := time.Since(start)

	if err != nil {
		if callCtx.Err() != nil {
			s.logger.Warn(ctx, "tool call timed out", "tool", toolID, "latency", latency)
			return errorResult(fault.KindToolTimeout, "tool execution timed out: "+toolID)
		}
		s.logger.Warn(ctx, "tool call failed", "tool", toolID, "error", err)
		return errorResult(fault.KindToolFailed, err.Error())
	}

	s.logger.Info(ctx, "tool call complete", "tool", toolID, "latency", latency)
	return Result{Status: ResultSuccess, Data: data}
}

// Handler serves the envelope protocol over HTTP POST.
func (s *Server) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeEnvelope(w, Response{Error: &ResponseError{
				Code: string(fault.KindInvalidRequest), Message: "malformed request envelope",
			}})
			return
		}
		writeEnvelope(w, s.Dispatch(r.Context(), req))
	}
}

// Dispatch routes an envelope request to the protocol method.
func (s *Server) Dispatch(ctx context.Context, req Request) Response {
	switch req.Method {
	case MethodToolsList:
		return Response{ID: req.ID, Result: s.List()}

	case MethodToolsCall:
		var params CallParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return Response{ID: req.ID, Error: &ResponseError{
				Code: string(fault.KindInvalidRequest), Message: "malformed tools/call params",
			}}
		}
		return Response{ID: req.ID, Result: s.Call(ctx, params.Name, params.Arguments, params.AuthToken)}

	default:
		return Response{ID: req.ID, Error: &ResponseError{
			Code: string(fault.KindInvalidRequest), Message: "unknown method: " + req.Method,
		}}
	}
}

func (s *Server) callerLimiter(callerID string) *rate.Limiter {
	s.limiterMu.Lock()
	defer s.limiterMu.Unlock()
	limiter, ok := s.limiters[callerID]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(s.burstRPS), s.burst)
		s.limiters[callerID] = limiter
	}
	return limiter
}

func errorResult(kind fault.Kind, message string) Result {
	status := ResultError
	switch kind {
	case fault.KindToolTimeout:
		status = ResultTimeout
	case fault.KindDenied, fault.KindUnauthorized:
		status = ResultDenied
	}
	return Result{Status: status, Error: &ErrorInfo{Code: string(kind), Message: message}}
}

func writeEnvelope(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
