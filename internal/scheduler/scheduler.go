// Package scheduler is the orchestration core: it plans each request,
// enforces policy per agent, executes the chosen pattern, and emits
// progress and results onto the session's event queue.
package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/semaphore"

	"github.com/agentcore-dev/agentcore/internal/scheduler/patterns"
	"github.com/agentcore-dev/agentcore/pkg/a2a"
	"github.com/agentcore-dev/agentcore/pkg/fault"
	"github.com/agentcore-dev/agentcore/pkg/llm"
	"github.com/agentcore-dev/agentcore/pkg/observability"
	"github.com/agentcore-dev/agentcore/pkg/policy"
	"github.com/agentcore-dev/agentcore/pkg/registry"
	"github.com/agentcore-dev/agentcore/pkg/session"
	"github.com/agentcore-dev/agentcore/pkg/telemetry"
)

// Result is the aggregated orchestration outcome.
type Result struct {
	Pattern             llm.Pattern                `json:"pattern"`
	UserOverride        bool                       `json:"user_override"`
	Agents              []string                   `json:"agents"`
	Results             []a2a.Result               `json:"results,omitempty"`
	Iterations          []patterns.IterationResult `json:"iterations,omitempty"`
	IterationsCompleted int                        `json:"iterations_completed,omitempty"`
	Timestamp           time.Time                  `json:"timestamp"`
}

// Scheduler coordinates planning, policy, and pattern execution.
type Scheduler struct {
	registry *registry.Registry
	engine   *policy.Engine
	client   *a2a.Client
	planner  llm.Planner
	store    *session.Store
	logger   telemetry.Logger

	parallelMaxInFlight int
	defaultTimeout      time.Duration
	processSlots        *semaphore.Weighted
	queueOverflow       int64
	pending             atomic.Int64
}

// Options wires the scheduler's collaborators.
type Options struct {
	Registry *registry.Registry
	Engine   *policy.Engine
	Client   *a2a.Client
	Planner  llm.Planner
	Store    *session.Store
	Logger   telemetry.Logger

	// ParallelMaxInFlight bounds per-request fan-out (default 16).
	ParallelMaxInFlight int
	// ProcessMaxInFlight bounds parallel-pattern invocations
	// process-wide (default 256); other patterns do not take a slot.
	ProcessMaxInFlight int
	// QueueOverflow rejects requests beyond this backlog (default 1024).
	QueueOverflow int
	// DefaultTimeout applies when no tighter deadline exists (default 60s).
	DefaultTimeout time.Duration
}

// New creates a scheduler.
func New(opts Options) *Scheduler {
	if opts.ParallelMaxInFlight == 0 {
		opts.ParallelMaxInFlight = 16
	}
	if opts.ProcessMaxInFlight == 0 {
		opts.ProcessMaxInFlight = 256
	}
	if opts.QueueOverflow == 0 {
		opts.QueueOverflow = 1024
	}
	if opts.DefaultTimeout == 0 {
		opts.DefaultTimeout = 60 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = telemetry.NewStdLogger()
	}
	return &Scheduler{
		registry:            opts.Registry,
		engine:              opts.Engine,
		client:              opts.Client,
		planner:             opts.Planner,
		store:               opts.Store,
		logger:              opts.Logger,
		parallelMaxInFlight: opts.ParallelMaxInFlight,
		defaultTimeout:      opts.DefaultTimeout,
		processSlots:        semaphore.NewWeighted(int64(opts.ProcessMaxInFlight)),
		queueOverflow:       int64(opts.QueueOverflow),
	}
}

// Process runs one top-level request through plan, policy, execute,
// and aggregate. Progress and the terminal event land on the session's
// event queue; the aggregated result is also returned for sync callers.
func (s *Scheduler) Process(ctx context.Context, sessionID, query string, reqContext map[string]any) (*Result, error) {
	start := time.Now()

	if s.pending.Add(1) > s.queueOverflow {
		s.pending.Add(-1)
		return nil, fault.New(fault.KindOverloaded, "scheduler backlog full")
	}
	defer s.pending.Add(-1)

	ctx, span := telemetry.StartSpan(ctx, "scheduler.process")
	defer span.End()

	// Session closure aborts this request.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.store.RegisterCancel(sessionID, cancel)

	_ = s.store.SetStatus(ctx, sessionID, session.StatusProcessing)
	defer func() { _ = s.store.SetStatus(ctx, sessionID, session.StatusIdle) }()

	s.emitStatus(ctx, sessionID, "planning", nil)

	plan, userOverride, err := s.plan(ctx, query, reqContext)
	if err != nil {
		s.emitError(ctx, sessionID, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("pattern", string(plan.Pattern)))

	plan, decisions, err := s.filterByPolicy(ctx, plan)
	if err != nil {
		s.emitError(ctx, sessionID, err)
		return nil, err
	}

	s.emitStatus(ctx, sessionID, "dispatching", map[string]any{
		"pattern": string(plan.Pattern),
		"agents":  plan.Agents,
	})

	result := s.execute(ctx, sessionID, plan, query, reqContext, decisions)
	result.UserOverride = userOverride
	result.Timestamp = time.Now().UTC()

	s.finish(ctx, sessionID, query, result)
	observability.RecordOrchestration(string(result.Pattern), overallStatus(result), time.Since(start))
	return result, nil
}

// plan resolves the execution plan from user overrides or the LLM
// planner, validated against the live registry.
func (s *Scheduler) plan(ctx context.Context, query string, reqContext map[string]any) (*llm.Plan, bool, error) {
	if plan := extractOverrides(reqContext); plan != nil {
		validated, err := s.validatePlan(ctx, plan, false)
		if err != nil {
			return nil, true, err
		}
		return validated, true, nil
	}

	snapshot := s.registry.CapabilitySnapshot()
	if len(snapshot) == 0 {
		return nil, false, fault.Denied(fault.SubcodeNoEligibleAgent, "no agents registered")
	}
	plan, err := s.planner.Plan(ctx, query, snapshot)
	if err != nil {
		s.logger.Warn(ctx, "planner failed; falling back to least-loaded simple", "error", err)
		plan = nil
	}
	if plan == nil {
		selected := s.registry.Select(nil, registry.LeastLoaded)
		if len(selected) == 0 {
			return nil, false, fault.Denied(fault.SubcodeNoEligibleAgent, "no eligible agent")
		}
		return &llm.Plan{Pattern: llm.PatternSimple, Agents: []string{selected[0].ID}}, false, nil
	}

	validated, err := s.validatePlan(ctx, plan, true)
	if err != nil {
		return nil, false, err
	}
	return validated, false, nil
}

// validatePlan resolves agent names to ids and checks registry health.
// Auto plans that name some unknown or unreachable agents are narrowed
// to the known ones with their pattern kept; auto plans with no known
// agent fall back to simple with the best single match. User overrides
// fail hard.
func (s *Scheduler) validatePlan(ctx context.Context, plan *llm.Plan, allowFallback bool) (*llm.Plan, error) {
	resolved := make([]string, 0, len(plan.Agents))
	allKnown := true
	for _, agent := range plan.Agents {
		id, ok := s.registry.HasAgent(agent)
		if !ok {
			allKnown = false
			continue
		}
		if _, health, _ := s.registry.Get(id); health == registry.Unreachable {
			allKnown = false
			continue
		}
		resolved = append(resolved, id)
	}

	if allKnown && len(resolved) > 0 {
		out := *plan
		out.Agents = resolved
		return &out, nil
	}
	if !allowFallback {
		return nil, fault.Denied(fault.SubcodeNoEligibleAgent, "override names unknown or unreachable agents")
	}
	if len(resolved) > 0 {
		s.logger.Warn(ctx, "plan referenced unknown agents; narrowing", "kept", resolved)
		out := *plan
		out.Agents = resolved
		return &out, nil
	}

	// Best single match: least-loaded across all agents.
	selected := s.registry.Select(nil, registry.LeastLoaded)
	if len(selected) == 0 {
		return nil, fault.Denied(fault.SubcodeNoEligibleAgent, "no eligible agent")
	}
	return &llm.Plan{Pattern: llm.PatternSimple, Agents: []string{selected[0].ID}}, nil
}

// filterByPolicy evaluates each planned agent. Sequential, loop, and
// simple plans fail on any denial; parallel plans drop denied agents
// and proceed with the survivors.
func (s *Scheduler) filterByPolicy(ctx context.Context, plan *llm.Plan) (*llm.Plan, map[string]policy.Decision, error) {
	decisions := make(map[string]policy.Decision, len(plan.Agents))
	var survivors []string
	for _, agentID := range plan.Agents {
		decision := s.engine.Evaluate(ctx, policy.ResourceAgent, agentID, "invoke", nil)
		observability.RecordPolicyDecision(string(policy.ResourceAgent), decisionLabel(decision))
		decisions[agentID] = decision
		if decision.Allowed {
			survivors = append(survivors, agentID)
			continue
		}
		if plan.Pattern != llm.PatternParallel {
			return nil, nil, decision.Err()
		}
	}
	if len(survivors) == 0 {
		return nil, nil, fault.Denied(fault.SubcodeDefaultDeny, "all planned agents denied by policy")
	}
	out := *plan
	out.Agents = survivors
	return &out, decisions, nil
}

// execute runs the chosen pattern.
func (s *Scheduler) execute(ctx context.Context, sessionID string, plan *llm.Plan, query string, reqContext map[string]any, decisions map[string]policy.Decision) *Result {
	invoke := s.invoker(reqContext, decisions)
	notify := &sessionNotifier{scheduler: s, sessionID: sessionID}

	result := &Result{Pattern: plan.Pattern, Agents: plan.Agents}
	ctx, span := telemetry.StartSpan(ctx, "scheduler.pattern."+string(plan.Pattern))
	defer span.End()

	switch plan.Pattern {
	case llm.PatternSequential:
		result.Results = patterns.Sequential(ctx, invoke, notify, plan.Agents, query, patterns.SequentialConfig{})

	case llm.PatternParallel:
		result.Results = patterns.Parallel(ctx, invoke, notify, plan.Agents, query, patterns.ParallelConfig{
			MaxInFlight:  s.parallelMaxInFlight,
			Timeout:      time.Duration(plan.TimeoutSecs) * time.Second,
			FailFast:     plan.FailFast,
			ProcessSlots: s.processSlots,
		})

	case llm.PatternLoop:
		result.Iterations = patterns.Loop(ctx, invoke, notify, plan.Agents, query, patterns.LoopConfig{
			MaxIterations: plan.MaxIterations,
			Condition:     plan.Condition,
			Logger:        s.logger,
		})
		result.IterationsCompleted = len(result.Iterations)

	default:
		agentID := plan.Agents[0]
		notify.AgentStart(ctx, agentID)
		res := invoke(ctx, agentID, query, nil)
		notify.AgentComplete(ctx, agentID, res)
		result.Results = []a2a.Result{res}
	}
	return result
}

// invoker builds the per-invocation closure: resolve the agent's
// endpoint, derive the effective deadline, and call through the client.
func (s *Scheduler) invoker(reqContext map[string]any, decisions map[string]policy.Decision) patterns.Invoker {
	return func(ctx context.Context, agentID, input string, callContext map[string]any) a2a.Result {
		rec, health, ok := s.registry.Get(agentID)
		if !ok || health == registry.Unreachable {
			return a2a.Result{AgentID: agentID, Status: a2a.StatusFailed, Error: "agent unreachable"}
		}

		// Effective deadline: the tightest of policy budget, caller
		// timeout, and the scheduler default. Pattern and session
		// deadlines arrive on ctx.
		timeout := s.defaultTimeout
		if d, ok := decisions[agentID]; ok {
			if budget := d.MaxExecutionTime(); budget > 0 && budget < timeout {
				timeout = budget
			}
		}
		if userTimeout := contextTimeout(reqContext); userTimeout > 0 && userTimeout < timeout {
			timeout = userTimeout
		}
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		result := s.client.Invoke(callCtx, rec.Endpoint, a2a.Request{
			AgentID: agentID,
			Input:   input,
			Context: callContext,
		})
		observability.RecordAgentInvocation(agentID, string(result.Status))
		return result
	}
}

// finish appends the agent message and pushes the terminal event.
func (s *Scheduler) finish(ctx context.Context, sessionID, query string, result *Result) {
	payload := map[string]any{
		"pattern":       string(result.Pattern),
		"user_override": result.UserOverride,
		"agents":        result.Agents,
		"timestamp":     result.Timestamp.Format(time.RFC3339Nano),
	}
	if result.Iterations != nil {
		payload["iterations"] = result.Iterations
		payload["iterations_completed"] = result.IterationsCompleted
	} else {
		payload["results"] = result.Results
	}

	_ = s.store.AppendMessage(ctx, sessionID, session.Message{
		Role:    session.RoleAgent,
		Content: summarize(result),
		Metadata: map[string]any{
			"pattern":       string(result.Pattern),
			"agents":        result.Agents,
			"user_override": result.UserOverride,
		},
	})
	s.emit(ctx, sessionID, session.EventComplete, payload)
}

func (s *Scheduler) emit(ctx context.Context, sessionID string, eventType session.EventType, payload map[string]any) {
	observability.RecordSessionEvent(string(eventType))
	if err := s.store.EnqueueEvent(ctx, sessionID, session.Event{Type: eventType, Payload: payload}); err != nil {
		s.logger.Warn(ctx, "event enqueue failed", "session_id", sessionID, "type", eventType, "error", err)
	}
}

func (s *Scheduler) emitStatus(ctx context.Context, sessionID, phase string, info map[string]any) {
	payload := map[string]any{"phase": phase}
	for k, v := range info {
		payload[k] = v
	}
	s.emit(ctx, sessionID, session.EventStatus, payload)
}

func (s *Scheduler) emitError(ctx context.Context, sessionID string, err error) {
	fe := fault.AsError(err, telemetry.TransactionID(ctx))
	s.emit(ctx, sessionID, session.EventError, map[string]any{
		"kind":           string(fe.Kind),
		"subcode":        fe.Subcode,
		"message":        fe.Message,
		"transaction_id": fe.TransactionID,
	})
}

// sessionNotifier pushes pattern progress onto the session queue.
type sessionNotifier struct {
	scheduler *Scheduler
	sessionID string
}

func (n *sessionNotifier) AgentStart(ctx context.Context, agentID string) {
	n.scheduler.emitStatus(ctx, n.sessionID, "agent_start", map[string]any{"agent": agentID})
}

func (n *sessionNotifier) AgentComplete(ctx context.Context, agentID string, result a2a.Result) {
	n.scheduler.emitStatus(ctx, n.sessionID, "agent_complete", map[string]any{
		"agent":  agentID,
		"status": string(result.Status),
	})
}

func (n *sessionNotifier) Iteration(ctx context.Context, i int) {
	n.scheduler.emitStatus(ctx, n.sessionID, "iteration", map[string]any{"iteration": i})
}

func decisionLabel(d policy.Decision) string {
	if d.Allowed {
		return "allowed"
	}
	return "denied"
}

func overallStatus(r *Result) string {
	if r.Iterations != nil {
		if len(r.Iterations) == 0 {
			return "failed"
		}
		if patterns.Succeeded(r.Iterations[len(r.Iterations)-1].Results) {
			return "success"
		}
		return "failed"
	}
	if patterns.Succeeded(r.Results) {
		return "success"
	}
	return "failed"
}

func summarize(r *Result) string {
	if r.Iterations != nil {
		return "completed " + string(r.Pattern) + " orchestration"
	}
	for i := len(r.Results) - 1; i >= 0; i-- {
		if r.Results[i].Status == a2a.StatusSuccess {
			if s, ok := r.Results[i].Payload.(string); ok && s != "" {
				return s
			}
			break
		}
	}
	return "completed " + string(r.Pattern) + " orchestration"
}
