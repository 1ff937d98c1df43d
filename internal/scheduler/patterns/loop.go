package patterns

import (
	"context"

	"github.com/agentcore-dev/agentcore/pkg/a2a"
	"github.com/agentcore-dev/agentcore/pkg/telemetry"
)

// LoopConfig configures iterative execution.
type LoopConfig struct {
	// MaxIterations bounds the loop (default 10).
	MaxIterations int
	// Condition is the termination test over the last iteration's
	// aggregated result; empty means run to the iteration budget.
	Condition string
	// Sequential configures the inner chain run each iteration.
	Sequential SequentialConfig
	// Logger records condition warnings.
	Logger telemetry.Logger
}

// IterationResult is one loop pass.
type IterationResult struct {
	Iteration int          `json:"iteration"`
	Results   []a2a.Result `json:"results"`
}

// Loop repeats the inner sequential chain up to MaxIterations,
// evaluating the condition against the final iteration's aggregated
// result after each pass. An unevaluable condition (missing field,
// bad value) is treated as not-met and a warning is recorded.
func Loop(ctx context.Context, invoke Invoker, notify Notifier, agents []string, input string, cfg LoopConfig) []IterationResult {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 10
	}
	if cfg.Logger == nil {
		cfg.Logger = telemetry.NewStdLogger()
	}

	var condition *Condition
	if cfg.Condition != "" {
		parsed, err := ParseCondition(cfg.Condition)
		if err != nil {
			cfg.Logger.Warn(ctx, "loop condition unparseable; running to iteration budget",
				"condition", cfg.Condition, "error", err)
		} else {
			condition = parsed
		}
	}

	var iterations []IterationResult
	for i := 1; i <= cfg.MaxIterations; i++ {
		select {
		case <-ctx.Done():
			return iterations
		default:
		}

		notify.Iteration(ctx, i)
		results := Sequential(ctx, invoke, notify, agents, input, cfg.Sequential)
		iterations = append(iterations, IterationResult{Iteration: i, Results: results})

		if !Succeeded(results) {
			return iterations
		}
		if condition == nil {
			continue
		}
		met, ok := condition.Evaluate(aggregate(results))
		if !ok {
			cfg.Logger.Warn(ctx, "loop condition not evaluable on iteration result",
				"condition", cfg.Condition, "iteration", i)
		}
		if met {
			return iterations
		}
	}
	return iterations
}

// aggregate flattens the final iteration's payloads into one map for
// condition evaluation. Later steps override earlier keys; the last
// payload is also exposed whole under "result".
func aggregate(results []a2a.Result) map[string]any {
	agg := make(map[string]any)
	for _, r := range results {
		if payload, ok := r.Payload.(map[string]any); ok {
			for k, v := range payload {
				agg[k] = v
			}
		}
	}
	if len(results) > 0 {
		agg["result"] = results[len(results)-1].Payload
		agg["status"] = string(results[len(results)-1].Status)
	}
	return agg
}
