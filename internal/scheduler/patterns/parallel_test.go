package patterns

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agentcore-dev/agentcore/pkg/a2a"
	"github.com/agentcore-dev/agentcore/pkg/fault"
)

func TestParallelAllSucceed(t *testing.T) {
	invoke := func(ctx context.Context, agentID, input string, _ map[string]any) a2a.Result {
		return a2a.Result{AgentID: agentID, Status: a2a.StatusSuccess, Payload: agentID}
	}
	results := Parallel(context.Background(), invoke, NopNotifier{}, []string{"a1", "a2", "a3"}, "in", ParallelConfig{})

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	// Result positions match plan order.
	for i, want := range []string{"a1", "a2", "a3"} {
		if results[i].AgentID != want {
			t.Errorf("results[%d] = %s, want %s", i, results[i].AgentID, want)
		}
	}
}

func TestParallelBoundsInFlight(t *testing.T) {
	var current, max atomic.Int32
	invoke := func(ctx context.Context, agentID, input string, _ map[string]any) a2a.Result {
		c := current.Add(1)
		for {
			m := max.Load()
			if c <= m || max.CompareAndSwap(m, c) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		current.Add(-1)
		return a2a.Result{AgentID: agentID, Status: a2a.StatusSuccess}
	}

	Parallel(context.Background(), invoke, NopNotifier{}, []string{"a", "b", "c", "d", "e"}, "in",
		ParallelConfig{MaxInFlight: 2})

	if max.Load() > 2 {
		t.Errorf("max in-flight = %d, want <= 2", max.Load())
	}
}

func TestParallelFailFastCancelsPeers(t *testing.T) {
	invoke := func(ctx context.Context, agentID, input string, _ map[string]any) a2a.Result {
		if agentID == "a2" {
			time.Sleep(10 * time.Millisecond)
			return a2a.Result{AgentID: agentID, Status: a2a.StatusFailed, Error: "boom"}
		}
		select {
		case <-time.After(2 * time.Second):
			return a2a.Result{AgentID: agentID, Status: a2a.StatusSuccess}
		case <-ctx.Done():
			return a2a.Result{AgentID: agentID, Status: a2a.StatusFailed, Error: "cancelled", Subcode: fault.SubcodeCancelled}
		}
	}

	start := time.Now()
	results := Parallel(context.Background(), invoke, NopNotifier{}, []string{"a1", "a2", "a3"}, "in",
		ParallelConfig{FailFast: true, Timeout: 30 * time.Second})

	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("fail-fast took %v; peers were not cancelled", elapsed)
	}
	if results[1].Status != a2a.StatusFailed || results[1].Error != "boom" {
		t.Errorf("a2 = %+v", results[1])
	}
	for _, idx := range []int{0, 2} {
		if results[idx].Subcode != fault.SubcodeCancelled {
			t.Errorf("peer %s = %+v, want cancelled", results[idx].AgentID, results[idx])
		}
	}
}

func TestParallelNoFailFastAwaitsAll(t *testing.T) {
	invoke := func(ctx context.Context, agentID, input string, _ map[string]any) a2a.Result {
		if agentID == "a1" {
			return a2a.Result{AgentID: agentID, Status: a2a.StatusFailed, Error: "boom"}
		}
		time.Sleep(20 * time.Millisecond)
		return a2a.Result{AgentID: agentID, Status: a2a.StatusSuccess}
	}
	results := Parallel(context.Background(), invoke, NopNotifier{}, []string{"a1", "a2"}, "in",
		ParallelConfig{FailFast: false})

	if results[0].Status != a2a.StatusFailed {
		t.Errorf("a1 = %+v", results[0])
	}
	if results[1].Status != a2a.StatusSuccess {
		t.Errorf("a2 should complete despite a1 failure: %+v", results[1])
	}
}

func TestParallelTimeout(t *testing.T) {
	invoke := func(ctx context.Context, agentID, input string, _ map[string]any) a2a.Result {
		select {
		case <-time.After(2 * time.Second):
			return a2a.Result{AgentID: agentID, Status: a2a.StatusSuccess}
		case <-ctx.Done():
			return a2a.Result{AgentID: agentID, Status: a2a.StatusTimedOut, Error: "deadline"}
		}
	}
	start := time.Now()
	results := Parallel(context.Background(), invoke, NopNotifier{}, []string{"a1"}, "in",
		ParallelConfig{Timeout: 50 * time.Millisecond})

	if time.Since(start) > time.Second {
		t.Fatal("timeout not enforced")
	}
	if results[0].Status != a2a.StatusTimedOut {
		t.Errorf("result = %+v", results[0])
	}
}
