package llm

import (
	"context"
	"strings"
	"testing"
)

func TestParsePlan(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Pattern
		wantErr bool
	}{
		{"plain json", `{"pattern":"simple","agents":["a1"]}`, PatternSimple, false},
		{"fenced", "```json\n{\"pattern\":\"parallel\",\"agents\":[\"a1\",\"a2\"]}\n```", PatternParallel, false},
		{"prose wrapped", `Here is the plan: {"pattern":"sequential","agents":["a1"]} as requested.`, PatternSequential, false},
		{"defaults to simple", `{"agents":["a1"]}`, PatternSimple, false},
		{"no json", `no plan here`, "", true},
		{"bad pattern", `{"pattern":"spiral","agents":["a1"]}`, "", true},
		{"no agents", `{"pattern":"simple","agents":[]}`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := ParsePlan(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePlan() error = %v", err)
			}
			if plan.Pattern != tt.want {
				t.Errorf("pattern = %v, want %v", plan.Pattern, tt.want)
			}
		})
	}
}

func TestPlanPromptListsCapabilities(t *testing.T) {
	prompt := PlanPrompt("find users", map[string][]string{
		"search": {"data-agent"},
		"report": {"report-agent"},
	})
	if !strings.Contains(prompt, "search: data-agent") || !strings.Contains(prompt, "report: report-agent") {
		t.Errorf("prompt missing capabilities:\n%s", prompt)
	}
	if !strings.Contains(prompt, "find users") {
		t.Error("prompt missing the query")
	}
}

func TestMockPlannerPatternCues(t *testing.T) {
	caps := map[string][]string{"search": {"a1"}, "report": {"a2"}}
	planner := &MockPlanner{}
	ctx := context.Background()

	tests := []struct {
		query string
		want  Pattern
	}{
		{"find users older than 30", PatternSimple},
		{"get the search data, then report on it", PatternSequential},
		{"query all sources simultaneously", PatternParallel},
		{"keep refining until accuracy is good", PatternLoop},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			plan, err := planner.Plan(ctx, tt.query, caps)
			if err != nil {
				t.Fatalf("Plan() error = %v", err)
			}
			if plan.Pattern != tt.want {
				t.Errorf("pattern = %v, want %v", plan.Pattern, tt.want)
			}
			if len(plan.Agents) == 0 {
				t.Error("plan must name agents")
			}
		})
	}
}

func TestMockPlannerFixed(t *testing.T) {
	fixed := &Plan{Pattern: PatternParallel, Agents: []string{"x", "y"}, FailFast: true}
	planner := &MockPlanner{Fixed: fixed}
	plan, err := planner.Plan(context.Background(), "anything", nil)
	if err != nil {
		t.Fatal(err)
	}
	if plan.Pattern != PatternParallel || len(plan.Agents) != 2 || !plan.FailFast {
		t.Errorf("plan = %+v", plan)
	}
}

func TestMockPlannerEmptyRegistry(t *testing.T) {
	if _, err := (&MockPlanner{}).Plan(context.Background(), "q", nil); err == nil {
		t.Fatal("expected error for empty capability snapshot")
	}
}

func TestNewPlannerFactory(t *testing.T) {
	p, err := NewPlanner(context.Background(), "mock", "", "")
	if err != nil || p.Name() != "mock" {
		t.Errorf("mock planner: %v %v", p, err)
	}
	if _, err := NewPlanner(context.Background(), "quantum", "", ""); err == nil {
		t.Error("unknown provider should fail")
	}
	if _, err := NewPlanner(context.Background(), "openai", "", ""); err == nil {
		t.Error("openai without key should fail")
	}
}
