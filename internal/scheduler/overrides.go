package scheduler

import (
	"time"

	"github.com/agentcore-dev/agentcore/pkg/llm"
)

// extractOverrides pulls user-supplied orchestration directives from
// the request context. Returns nil when the caller left planning to
// the scheduler.
func extractOverrides(reqContext map[string]any) *llm.Plan {
	if len(reqContext) == 0 {
		return nil
	}

	var plan llm.Plan
	found := false

	if raw, ok := reqContext["orchestration_pattern"].(string); ok {
		if p := llm.Pattern(raw); llm.ValidPattern(p) {
			plan.Pattern = p
			found = true
		}
	}
	if agents := stringSlice(reqContext["agents"]); len(agents) > 0 {
		plan.Agents = agents
		found = true
	}
	if sequence := stringSlice(reqContext["agent_sequence"]); len(sequence) > 0 {
		plan.Agents = sequence
		if plan.Pattern == "" {
			plan.Pattern = llm.PatternSequential
		}
		found = true
	}
	if !found {
		return nil
	}

	if plan.Pattern == "" {
		if len(plan.Agents) > 1 {
			plan.Pattern = llm.PatternSequential
		} else {
			plan.Pattern = llm.PatternSimple
		}
	}

	if cfg, ok := reqContext["parallel_config"].(map[string]any); ok {
		plan.TimeoutSecs = intValue(cfg["timeout"])
		if ff, ok := cfg["fail_fast"].(bool); ok {
			plan.FailFast = ff
		}
	}
	if cfg, ok := reqContext["loop_config"].(map[string]any); ok {
		plan.MaxIterations = intValue(cfg["max_iterations"])
		if cond, ok := cfg["condition"].(string); ok {
			plan.Condition = cond
		}
	}
	return &plan
}

// contextTimeout reads the caller's per-invocation timeout.
func contextTimeout(reqContext map[string]any) time.Duration {
	if reqContext == nil {
		return 0
	}
	if secs := intValue(reqContext["timeout_seconds"]); secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func stringSlice(raw any) []string {
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func intValue(raw any) int {
	switch v := raw.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
