package a2a

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/agentcore-dev/agentcore/pkg/fault"
	"github.com/agentcore-dev/agentcore/pkg/telemetry"
)

// Client invokes specialized agents over HTTP JSON.
type Client struct {
	httpClient *http.Client
	logger     telemetry.Logger

	maxRetries  int
	backoffBase time.Duration
	backoffCap  time.Duration
}

// ClientOptions configures retry behavior.
type ClientOptions struct {
	// MaxRetries is the attempt budget for transient failures (default 3).
	MaxRetries int
	// BackoffBase is the exponential base delay (default 250ms).
	BackoffBase time.Duration
	// BackoffCap bounds the delay (default 4s).
	BackoffCap time.Duration
	// HTTPClient defaults to a client without its own timeout; the
	// per-invocation deadline governs.
	HTTPClient *http.Client
	// Logger defaults to the standard sink.
	Logger telemetry.Logger
}

// NewClient creates an agent client.
func NewClient(opts ClientOptions) *Client {
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.BackoffBase == 0 {
		opts.BackoffBase = 250 * time.Millisecond
	}
	if opts.BackoffCap == 0 {
		opts.BackoffCap = 4 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = telemetry.NewStdLogger()
	}
	return &Client{
		httpClient:  opts.HTTPClient,
		logger:      opts.Logger,
		maxRetries:  opts.MaxRetries,
		backoffBase: opts.BackoffBase,
		backoffCap:  opts.BackoffCap,
	}
}

// Invoke calls the agent at endpoint, honoring the context deadline.
// Transient failures (network errors, 5xx, 429) are retried with
// exponential backoff and full jitter; everything else returns
// immediately. Cancellation aborts the current attempt.
func (c *Client) Invoke(ctx context.Context, endpoint string, req Request) Result {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "a2a.invoke",
		attribute.String("agent_id", req.AgentID))
	defer span.End()

	txn := telemetry.TransactionFrom(ctx)
	body, err := json.Marshal(wireRequest{
		TransactionID: txn.ID,
		SessionID:     txn.SessionID,
		Input:         req.Input,
		Parameters:    req.Parameters,
		Context:       req.Context,
	})
	if err != nil {
		return Result{AgentID: req.AgentID, Status: StatusFailed, Error: err.Error(), Latency: time.Since(start)}
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, attempt); err != nil {
				return c.cancelled(req.AgentID, start)
			}
		}

		result, retriable, err := c.attempt(ctx, endpoint, req.AgentID, body, txn)
		if err == nil {
			result.Latency = time.Since(start)
			return result
		}
		lastErr = err
		if ctx.Err() != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return Result{AgentID: req.AgentID, Status: StatusTimedOut, Error: "deadline exhausted", Latency: time.Since(start)}
			}
			return c.cancelled(req.AgentID, start)
		}
		if !retriable {
			break
		}
		c.logger.Warn(ctx, "agent invocation retrying",
			"agent_id", req.AgentID, "attempt", attempt+1, "error", err)
	}

	return Result{
		AgentID: req.AgentID,
		Status:  StatusFailed,
		Error:   fmt.Sprintf("invocation failed after retries: %v", lastErr),
		Latency: time.Since(start),
	}
}

func (c *Client) attempt(ctx context.Context, endpoint, agentID string, body []byte, txn *telemetry.Transaction) (Result, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/invoke", bytes.NewReader(body))
	if err != nil {
		return Result{}, false, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Transaction-ID", txn.ID)
	if txn.SessionID != "" {
		httpReq.Header.Set("X-Session-ID", txn.SessionID)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Network-level failures are transient.
		return Result{}, true, fault.Wrap(fault.KindAgentUnreachable, err, "agent %s unreachable", agentID)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		_, _ = io.Copy(io.Discard, resp.Body)
		return Result{}, true, fault.New(fault.KindAgentFailed, "agent %s returned %d", agentID, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return Result{}, false, fault.New(fault.KindAgentFailed, "agent %s rejected request: %d", agentID, resp.StatusCode)
	}

	var wire wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return Result{}, false, fault.Wrap(fault.KindAgentFailed, err, "agent %s returned malformed response", agentID)
	}

	result := Result{AgentID: agentID, Payload: wire.Payload, Error: wire.Error}
	switch wire.Status {
	case "success", "":
		result.Status = StatusSuccess
	case "failed":
		result.Status = StatusFailed
	default:
		result.Status = Status(wire.Status)
	}
	return result, false, nil
}

// sleep applies exponential backoff with full jitter, respecting
// cancellation.
func (c *Client) sleep(ctx context.Context, attempt int) error {
	backoff := c.backoffBase << (attempt - 1)
	if backoff > c.backoffCap {
		backoff = c.backoffCap
	}
	jittered := time.Duration(rand.Int63n(int64(backoff) + 1)) // #nosec G404 - jitter, not crypto
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(jittered):
		return nil
	}
}

func (c *Client) cancelled(agentID string, start time.Time) Result {
	return Result{
		AgentID: agentID,
		Status:  StatusFailed,
		Error:   "cancelled",
		Subcode: fault.SubcodeCancelled,
		Latency: time.Since(start),
	}
}
