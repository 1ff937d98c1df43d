package scheduler

import (
	"testing"
	"time"

	"github.com/agentcore-dev/agentcore/pkg/llm"
)

func TestExtractOverrides(t *testing.T) {
	tests := []struct {
		name string
		ctx  map[string]any
		want *llm.Plan
	}{
		{"nil context", nil, nil},
		{"no directives", map[string]any{"foo": "bar"}, nil},
		{
			"pattern and agents",
			map[string]any{"orchestration_pattern": "parallel", "agents": []any{"a1", "a2"}},
			&llm.Plan{Pattern: llm.PatternParallel, Agents: []string{"a1", "a2"}},
		},
		{
			"agent_sequence implies sequential",
			map[string]any{"agent_sequence": []any{"a1", "a2"}},
			&llm.Plan{Pattern: llm.PatternSequential, Agents: []string{"a1", "a2"}},
		},
		{
			"single agent implies simple",
			map[string]any{"agents": []any{"a1"}},
			&llm.Plan{Pattern: llm.PatternSimple, Agents: []string{"a1"}},
		},
		{
			"invalid pattern ignored",
			map[string]any{"orchestration_pattern": "spiral"},
			nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractOverrides(tt.ctx)
			if tt.want == nil {
				if got != nil {
					t.Fatalf("got %+v, want nil", got)
				}
				return
			}
			if got == nil {
				t.Fatal("got nil")
			}
			if got.Pattern != tt.want.Pattern || len(got.Agents) != len(tt.want.Agents) {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestExtractOverridesParallelConfig(t *testing.T) {
	plan := extractOverrides(map[string]any{
		"orchestration_pattern": "parallel",
		"agents":                []any{"a1", "a2"},
		"parallel_config":       map[string]any{"timeout": float64(30), "fail_fast": true},
	})
	if plan == nil || plan.TimeoutSecs != 30 || !plan.FailFast {
		t.Errorf("plan = %+v", plan)
	}
}

func TestExtractOverridesLoopConfig(t *testing.T) {
	plan := extractOverrides(map[string]any{
		"orchestration_pattern": "loop",
		"agents":                []any{"a1"},
		"loop_config":           map[string]any{"max_iterations": float64(5), "condition": "accuracy > 0.9"},
	})
	if plan == nil || plan.MaxIterations != 5 || plan.Condition != "accuracy > 0.9" {
		t.Errorf("plan = %+v", plan)
	}
}

func TestContextTimeout(t *testing.T) {
	if d := contextTimeout(map[string]any{"timeout_seconds": float64(10)}); d != 10*time.Second {
		t.Errorf("timeout = %v", d)
	}
	if d := contextTimeout(nil); d != 0 {
		t.Errorf("timeout = %v, want 0", d)
	}
}
