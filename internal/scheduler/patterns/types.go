// Package patterns implements the orchestration shapes the scheduler
// executes: sequential, parallel, and loop. Simple is a single
// invocation handled by the scheduler directly.
package patterns

import (
	"context"

	"github.com/agentcore-dev/agentcore/pkg/a2a"
)

// Invoker executes one agent invocation. callContext carries cross-step
// state such as previous_results; implementations own deadline setup
// for the individual call.
type Invoker func(ctx context.Context, agentID, input string, callContext map[string]any) a2a.Result

// Notifier receives pattern progress callbacks, used to push status
// events to the session queue. Any method may be a no-op.
type Notifier interface {
	AgentStart(ctx context.Context, agentID string)
	AgentComplete(ctx context.Context, agentID string, result a2a.Result)
	Iteration(ctx context.Context, n int)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) AgentStart(context.Context, string)                {}
func (NopNotifier) AgentComplete(context.Context, string, a2a.Result) {}
func (NopNotifier) Iteration(context.Context, int)                    {}

// Succeeded reports whether every result is a success.
func Succeeded(results []a2a.Result) bool {
	for _, r := range results {
		if r.Status != a2a.StatusSuccess {
			return false
		}
	}
	return len(results) > 0
}
