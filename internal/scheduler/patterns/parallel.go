package patterns

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/agentcore-dev/agentcore/pkg/a2a"
)

// ParallelConfig configures concurrent execution.
type ParallelConfig struct {
	// MaxInFlight bounds concurrent invocations for this request
	// (default 16).
	MaxInFlight int
	// Timeout is the wall-clock deadline for the whole fan-out.
	Timeout time.Duration
	// FailFast cancels peers on the first non-success.
	FailFast bool
	// ProcessSlots is the optional process-wide semaphore shared
	// across requests.
	ProcessSlots *semaphore.Weighted
}

// Parallel fans the input out to all agents concurrently. The result
// slice matches the plan's agent order regardless of completion order.
// With FailFast, the first non-success cancels the remaining peers,
// which report failed/cancelled.
func Parallel(ctx context.Context, invoke Invoker, notify Notifier, agents []string, input string, cfg ParallelConfig) []a2a.Result {
	if len(agents) == 0 {
		return nil
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 16
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if cfg.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	results := make([]a2a.Result, len(agents))
	requestSlots := make(chan struct{}, cfg.MaxInFlight)
	var wg sync.WaitGroup

	for i, agentID := range agents {
		wg.Add(1)
		go func(idx int, id string) {
			defer wg.Done()

			select {
			case requestSlots <- struct{}{}:
				defer func() { <-requestSlots }()
			case <-runCtx.Done():
				results[idx] = cancelledResult(id)
				return
			}
			if cfg.ProcessSlots != nil {
				if err := cfg.ProcessSlots.Acquire(runCtx, 1); err != nil {
					results[idx] = cancelledResult(id)
					return
				}
				defer cfg.ProcessSlots.Release(1)
			}

			notify.AgentStart(runCtx, id)
			result := invoke(runCtx, id, input, nil)
			notify.AgentComplete(runCtx, id, result)
			results[idx] = result

			if cfg.FailFast && result.Status != a2a.StatusSuccess {
				cancel()
			}
		}(i, agentID)
	}
	wg.Wait()
	return results
}
