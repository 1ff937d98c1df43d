package scheduler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agentcore-dev/agentcore/pkg/a2a"
	"github.com/agentcore-dev/agentcore/pkg/fault"
	"github.com/agentcore-dev/agentcore/pkg/llm"
	"github.com/agentcore-dev/agentcore/pkg/policy"
	"github.com/agentcore-dev/agentcore/pkg/registry"
	"github.com/agentcore-dev/agentcore/pkg/session"
	"github.com/agentcore-dev/agentcore/pkg/telemetry"
)

// agentHandler fakes a specialized agent endpoint.
func agentHandler(fn func(input string) (any, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input string `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		payload, status := fn(req.Input)
		if status == "" {
			status = "success"
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"status": status, "payload": payload})
	}
}

type harness struct {
	scheduler *Scheduler
	store     *session.Store
	registry  *registry.Registry
	engine    *policy.Engine
	planner   *llm.MockPlanner
	sessionID string
}

func permissivePolicy() *policy.Document {
	enabled := true
	return &policy.Document{
		Governance: policy.Governance{
			Enabled:       &enabled,
			DefaultPolicy: "deny",
			Agents: policy.ResourceSection{
				Restrictions: map[string]policy.Restriction{},
			},
			Users: policy.UserSection{
				RoleBasedAccess: map[string]policy.RoleAccess{
					"tester": {Agents: []string{"*"}},
				},
			},
		},
	}
}

func newHarness(t *testing.T, doc *policy.Document) *harness {
	t.Helper()
	logger := telemetry.NewNopLogger()
	store := session.NewStore(session.NewMemoryBackend(), session.Options{Logger: logger})
	t.Cleanup(func() { _ = store.Shutdown() })

	reg := registry.New(registry.Options{HeartbeatTimeout: time.Minute, Logger: logger})
	engine, err := policy.NewEngine(context.Background(), policy.EngineOptions{
		Sources: []policy.Source{policy.StaticSource{Doc: doc, SourceName: "test"}},
		Logger:  logger,
	})
	if err != nil {
		t.Fatal(err)
	}
	planner := &llm.MockPlanner{}
	sched := New(Options{
		Registry: reg,
		Engine:   engine,
		Client: a2a.NewClient(a2a.ClientOptions{
			MaxRetries: 1, BackoffBase: time.Millisecond, Logger: logger,
		}),
		Planner: planner,
		Store:   store,
		Logger:  logger,
	})

	sess, err := store.Create(context.Background(), "u1", nil)
	if err != nil {
		t.Fatal(err)
	}
	return &harness{scheduler: sched, store: store, registry: reg, engine: engine, planner: planner, sessionID: sess.ID}
}

func (h *harness) addAgent(t *testing.T, id string, caps []string, handler http.HandlerFunc) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	err := h.registry.Register(context.Background(), registry.Record{
		ID: id, Name: id + "-name", Capabilities: caps, Endpoint: server.URL, MaxCapacity: 10,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func (h *harness) ctx() context.Context {
	txn := telemetry.NewTransaction(h.sessionID, "u1", "tester")
	return telemetry.WithTransaction(context.Background(), txn)
}

func (h *harness) drainEvents(t *testing.T) []session.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	events, _, err := h.store.DequeueEvents(ctx, h.sessionID, 0)
	if err != nil {
		t.Fatalf("drain events: %v", err)
	}
	return events
}

func phases(events []session.Event) []string {
	var out []string
	for _, ev := range events {
		switch ev.Type {
		case session.EventStatus:
			phase, _ := ev.Payload["phase"].(string)
			out = append(out, phase)
		default:
			out = append(out, string(ev.Type))
		}
	}
	return out
}

func TestSimpleAutoSelect(t *testing.T) {
	h := newHarness(t, permissivePolicy())
	h.addAgent(t, "A1", []string{"search"}, agentHandler(func(input string) (any, string) {
		return "found users", ""
	}))

	result, err := h.scheduler.Process(h.ctx(), h.sessionID, "search for users older than 30", nil)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if result.Pattern != llm.PatternSimple || result.UserOverride {
		t.Errorf("result = %+v", result)
	}
	if len(result.Results) != 1 || result.Results[0].Status != a2a.StatusSuccess {
		t.Fatalf("results = %+v", result.Results)
	}

	got := phases(h.drainEvents(t))
	want := []string{"planning", "dispatching", "agent_start", "agent_complete", "complete"}
	if len(got) != len(want) {
		t.Fatalf("phases = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("phase[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestSequentialUserOverride(t *testing.T) {
	h := newHarness(t, permissivePolicy())
	var order []string
	var mu = make(chan struct{}, 1)
	record := func(id string) http.HandlerFunc {
		return agentHandler(func(input string) (any, string) {
			mu <- struct{}{}
			order = append(order, id)
			<-mu
			return "out:" + id, ""
		})
	}
	h.addAgent(t, "A1", []string{"search"}, record("A1"))
	h.addAgent(t, "A2", []string{"report"}, record("A2"))

	result, err := h.scheduler.Process(h.ctx(), h.sessionID, "run the chain", map[string]any{
		"orchestration_pattern": "sequential",
		"agent_sequence":        []any{"A1", "A2"},
	})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if !result.UserOverride || result.Pattern != llm.PatternSequential {
		t.Errorf("result = %+v", result)
	}
	if len(result.Results) != 2 {
		t.Fatalf("results = %+v", result.Results)
	}
	if order[0] != "A1" || order[1] != "A2" {
		t.Errorf("invocation order = %v", order)
	}

	got := phases(h.drainEvents(t))
	want := []string{"planning", "dispatching", "agent_start", "agent_complete", "agent_start", "agent_complete", "complete"}
	for i := range want {
		if i >= len(got) || got[i] != want[i] {
			t.Fatalf("phases = %v, want %v", got, want)
		}
	}
}

func TestParallelFailFast(t *testing.T) {
	h := newHarness(t, permissivePolicy())
	h.addAgent(t, "A1", []string{"x"}, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(5 * time.Second):
			_ = json.NewEncoder(w).Encode(map[string]any{"status": "success"})
		case <-r.Context().Done():
		}
	})
	h.addAgent(t, "A2", []string{"x"}, agentHandler(func(string) (any, string) {
		return nil, "failed"
	}))
	h.addAgent(t, "A3", []string{"x"}, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(5 * time.Second):
			_ = json.NewEncoder(w).Encode(map[string]any{"status": "success"})
		case <-r.Context().Done():
		}
	})

	start := time.Now()
	result, err := h.scheduler.Process(h.ctx(), h.sessionID, "fan out", map[string]any{
		"orchestration_pattern": "parallel",
		"agents":                []any{"A1", "A2", "A3"},
		"parallel_config":       map[string]any{"timeout": 30, "fail_fast": true},
	})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("fail-fast took %v", elapsed)
	}
	if len(result.Results) != 3 {
		t.Fatalf("results = %+v", result.Results)
	}
	if result.Results[1].Status == a2a.StatusSuccess {
		t.Errorf("A2 should have failed: %+v", result.Results[1])
	}
	for _, idx := range []int{0, 2} {
		r := result.Results[idx]
		if r.Status == a2a.StatusSuccess {
			t.Errorf("peer %s completed despite cancellation: %+v", r.AgentID, r)
		}
	}
}

func TestLoopWithCondition(t *testing.T) {
	h := newHarness(t, permissivePolicy())
	accuracies := []float64{0.7, 0.85, 0.92, 0.99}
	var call atomic.Int32
	h.addAgent(t, "A1", []string{"refine"}, func(w http.ResponseWriter, r *http.Request) {
		n := call.Add(1) - 1
		if int(n) >= len(accuracies) {
			n = int32(len(accuracies) - 1)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":  "success",
			"payload": map[string]any{"accuracy": accuracies[n]},
		})
	})

	result, err := h.scheduler.Process(h.ctx(), h.sessionID, "refine until accurate", map[string]any{
		"orchestration_pattern": "loop",
		"agents":                []any{"A1"},
		"loop_config":           map[string]any{"max_iterations": 5, "condition": "accuracy > 0.9"},
	})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if result.IterationsCompleted != 3 {
		t.Errorf("iterations_completed = %d, want 3", result.IterationsCompleted)
	}
	if call.Load() != 3 {
		t.Errorf("agent invoked %d times, want 3", call.Load())
	}
}

func TestPolicyDenialNoInvocation(t *testing.T) {
	doc := permissivePolicy()
	doc.Governance.Users.RoleBasedAccess["tester"] = policy.RoleAccess{Agents: []string{"A_allowed"}}
	h := newHarness(t, doc)

	var invoked atomic.Bool
	h.addAgent(t, "A_restricted", []string{"search"}, func(w http.ResponseWriter, r *http.Request) {
		invoked.Store(true)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "success"})
	})

	ctx := h.ctx()
	txnID := telemetry.TransactionID(ctx)
	_, err := h.scheduler.Process(ctx, h.sessionID, "use the restricted agent", map[string]any{
		"agents": []any{"A_restricted"},
	})
	if !fault.Is(err, fault.KindDenied) || fault.SubcodeOf(err) != fault.SubcodeDefaultDeny {
		t.Fatalf("err = %v, want Denied/DefaultDeny", err)
	}
	if invoked.Load() {
		t.Fatal("denied agent must never be invoked")
	}

	// A terminal error event was pushed.
	events := h.drainEvents(t)
	last := events[len(events)-1]
	if last.Type != session.EventError || last.Payload["kind"] != "Denied" {
		t.Errorf("terminal event = %+v", last)
	}
	// And an audit entry exists with the same transaction id.
	entries := h.engine.Trail().ByTransaction(txnID)
	if len(entries) == 0 {
		t.Error("expected audit entry for the denial")
	}
}

func TestRateLimitAcrossRequests(t *testing.T) {
	doc := permissivePolicy()
	doc.Governance.Agents.Restrictions["A1"] = policy.Restriction{RateLimitPerHour: 2}
	h := newHarness(t, doc)
	h.addAgent(t, "A1", []string{"search"}, agentHandler(func(string) (any, string) { return "ok", "" }))

	for i := 0; i < 2; i++ {
		if _, err := h.scheduler.Process(h.ctx(), h.sessionID, "search", map[string]any{"agents": []any{"A1"}}); err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
	}
	_, err := h.scheduler.Process(h.ctx(), h.sessionID, "search", map[string]any{"agents": []any{"A1"}})
	if !fault.Is(err, fault.KindDenied) || fault.SubcodeOf(err) != fault.SubcodeRateLimited {
		t.Fatalf("third request err = %v, want Denied/RateLimited", err)
	}
}

func TestNoEligibleAgent(t *testing.T) {
	h := newHarness(t, permissivePolicy())
	_, err := h.scheduler.Process(h.ctx(), h.sessionID, "anything", nil)
	if !fault.Is(err, fault.KindDenied) || fault.SubcodeOf(err) != fault.SubcodeNoEligibleAgent {
		t.Fatalf("err = %v, want Denied/NoEligibleAgent", err)
	}
}

func TestUnknownOverrideAgentFails(t *testing.T) {
	h := newHarness(t, permissivePolicy())
	h.addAgent(t, "A1", []string{"search"}, agentHandler(func(string) (any, string) { return "ok", "" }))

	_, err := h.scheduler.Process(h.ctx(), h.sessionID, "q", map[string]any{"agents": []any{"ghost"}})
	if !fault.Is(err, fault.KindDenied) {
		t.Fatalf("err = %v, want Denied for unknown override agent", err)
	}
}

func TestAutoPlanFallbackToSimple(t *testing.T) {
	h := newHarness(t, permissivePolicy())
	h.addAgent(t, "A1", []string{"search"}, agentHandler(func(string) (any, string) { return "ok", "" }))
	// Planner proposes an unknown agent; the scheduler falls back to
	// the best single match.
	h.planner.Fixed = &llm.Plan{Pattern: llm.PatternSequential, Agents: []string{"phantom"}}

	result, err := h.scheduler.Process(h.ctx(), h.sessionID, "q", nil)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if result.Pattern != llm.PatternSimple || result.Agents[0] != "A1" {
		t.Errorf("result = %+v", result)
	}
}

func TestSessionMessageAppended(t *testing.T) {
	h := newHarness(t, permissivePolicy())
	h.addAgent(t, "A1", []string{"search"}, agentHandler(func(string) (any, string) { return "the answer", "" }))

	if _, err := h.scheduler.Process(h.ctx(), h.sessionID, "q", nil); err != nil {
		t.Fatal(err)
	}
	history, err := h.store.History(context.Background(), h.sessionID)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 || history[0].Role != session.RoleAgent {
		t.Fatalf("history = %+v", history)
	}
	if history[0].Content != "the answer" {
		t.Errorf("content = %q", history[0].Content)
	}
}
