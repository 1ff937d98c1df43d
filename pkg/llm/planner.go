// Package llm abstracts the LLM client the scheduler uses for agent
// selection and orchestration planning. Providers shape a constrained
// JSON plan; the scheduler validates it against the live registry.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Pattern is the orchestration shape.
type Pattern string

const (
	PatternSimple     Pattern = "simple"
	PatternSequential Pattern = "sequential"
	PatternParallel   Pattern = "parallel"
	PatternLoop       Pattern = "loop"
)

// ValidPattern reports whether p is a known pattern.
func ValidPattern(p Pattern) bool {
	switch p {
	case PatternSimple, PatternSequential, PatternParallel, PatternLoop:
		return true
	}
	return false
}

// Plan is the planner's output: which agents, in which arrangement.
type Plan struct {
	Pattern       Pattern  `json:"pattern"`
	Agents        []string `json:"agents"`
	Reasoning     string   `json:"reasoning,omitempty"`
	MaxIterations int      `json:"max_iterations,omitempty"`
	Condition     string   `json:"condition,omitempty"`
	TimeoutSecs   int      `json:"timeout,omitempty"`
	FailFast      bool     `json:"fail_fast,omitempty"`
}

// Planner produces a plan for a query given the registry's current
// capability snapshot (capability name -> agent names).
type Planner interface {
	Plan(ctx context.Context, query string, capabilities map[string][]string) (*Plan, error)
	Name() string
}

// PlanPrompt builds the selection prompt shared by all providers.
func PlanPrompt(query string, capabilities map[string][]string) string {
	var caps []string
	for name, agents := range capabilities {
		caps = append(caps, fmt.Sprintf("- %s: %s", name, strings.Join(agents, ", ")))
	}
	sort.Strings(caps)

	return fmt.Sprintf(`Analyze the request and plan its execution across specialized agents.

Request: %s

Available capabilities and the agents providing them:
%s

Patterns:
- simple: one agent handles the whole request
- sequential: agents run in order, each consuming the previous output
- parallel: agents run concurrently on the same input
- loop: agents repeat until a condition is met

Respond with ONLY a JSON object:
{"pattern": "<simple|sequential|parallel|loop>", "agents": ["<agent>", ...], "reasoning": "<why>"}`,
		query, strings.Join(caps, "\n"))
}

// ParsePlan extracts and validates a plan from model output. Providers
// may wrap JSON in code fences or prose; the first JSON object wins.
func ParsePlan(raw string) (*Plan, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in planner output")
	}
	var plan Plan
	if err := json.NewDecoder(strings.NewReader(raw[start:])).Decode(&plan); err != nil {
		return nil, fmt.Errorf("malformed plan: %w", err)
	}
	if plan.Pattern == "" {
		plan.Pattern = PatternSimple
	}
	if !ValidPattern(plan.Pattern) {
		return nil, fmt.Errorf("unknown pattern %q", plan.Pattern)
	}
	if len(plan.Agents) == 0 {
		return nil, fmt.Errorf("plan names no agents")
	}
	return &plan, nil
}
