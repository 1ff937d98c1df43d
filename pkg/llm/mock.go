package llm

import (
	"context"
	"sort"
	"strings"
)

// MockPlanner is a deterministic keyword-driven planner for tests and
// offline development. It picks the pattern from simple cues in the
// query and assigns every known agent whose capability name appears in
// the query, falling back to the agents of the alphabetically first
// capability. Simple plans keep only the first agent.
type MockPlanner struct {
	// Fixed, when set, is returned verbatim for every query.
	Fixed *Plan
}

func (m *MockPlanner) Name() string { return "mock" }

func (m *MockPlanner) Plan(ctx context.Context, query string, capabilities map[string][]string) (*Plan, error) {
	if m.Fixed != nil {
		cp := *m.Fixed
		return &cp, nil
	}

	lower := strings.ToLower(query)
	pattern := PatternSimple
	switch {
	case strings.Contains(lower, "then") || strings.Contains(lower, "after that"):
		pattern = PatternSequential
	case strings.Contains(lower, "simultaneously") || strings.Contains(lower, "in parallel") || strings.Contains(lower, "all sources"):
		pattern = PatternParallel
	case strings.Contains(lower, "until") || strings.Contains(lower, "keep refining"):
		pattern = PatternLoop
	}

	seen := make(map[string]bool)
	var agents []string
	var capNames []string
	for name := range capabilities {
		capNames = append(capNames, name)
	}
	sort.Strings(capNames)
	for _, capName := range capNames {
		if strings.Contains(lower, strings.ToLower(capName)) {
			for _, agent := range capabilities[capName] {
				if !seen[agent] {
					seen[agent] = true
					agents = append(agents, agent)
				}
			}
		}
	}
	if len(agents) == 0 {
		for _, capName := range capNames {
			for _, agent := range capabilities[capName] {
				if !seen[agent] {
					seen[agent] = true
					agents = append(agents, agent)
				}
			}
			if len(agents) > 0 {
				break
			}
		}
	}
	if len(agents) == 0 {
		return nil, ErrNoAgentsKnown
	}
	if pattern == PatternSimple && len(agents) > 1 {
		agents = agents[:1]
	}

	plan := &Plan{Pattern: pattern, Agents: agents, Reasoning: "keyword match"}
	if pattern == PatternLoop {
		plan.MaxIterations = 5
	}
	return plan, nil
}
