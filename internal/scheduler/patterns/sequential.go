package patterns

import (
	"context"

	"github.com/agentcore-dev/agentcore/pkg/a2a"
	"github.com/agentcore-dev/agentcore/pkg/fault"
)

// SequentialConfig configures in-order execution.
type SequentialConfig struct {
	// Optional marks steps whose failure does not halt the chain.
	Optional map[string]bool
}

// Sequential invokes agents in order. The output of step i is appended
// to step i+1's call context as previous_results. Execution halts on
// the first non-success unless the step is marked optional.
func Sequential(ctx context.Context, invoke Invoker, notify Notifier, agents []string, input string, cfg SequentialConfig) []a2a.Result {
	results := make([]a2a.Result, 0, len(agents))
	var previous []any

	for _, agentID := range agents {
		select {
		case <-ctx.Done():
			results = append(results, cancelledResult(agentID))
			return results
		default:
		}

		callContext := map[string]any{}
		if len(previous) > 0 {
			callContext["previous_results"] = previous
		}

		notify.AgentStart(ctx, agentID)
		result := invoke(ctx, agentID, input, callContext)
		notify.AgentComplete(ctx, agentID, result)
		results = append(results, result)

		if result.Status != a2a.StatusSuccess {
			if cfg.Optional[agentID] {
				continue
			}
			return results
		}
		previous = append(previous, map[string]any{
			"agent":   agentID,
			"payload": result.Payload,
		})
	}
	return results
}

func cancelledResult(agentID string) a2a.Result {
	return a2a.Result{
		AgentID: agentID,
		Status:  a2a.StatusFailed,
		Error:   "cancelled",
		Subcode: fault.SubcodeCancelled,
	}
}
