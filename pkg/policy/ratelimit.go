package policy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Scope identifies the rate counter family.
type Scope string

const (
	ScopeGlobal   Scope = "global"
	ScopeUser     Scope = "user"
	ScopeResource Scope = "resource"
)

// counterKey is one (scope, subject, window) bucket.
type counterKey struct {
	scope       Scope
	subject     string
	windowStart int64
}

// RateCounters provides atomic fixed-window check-and-increment. Counts
// are monotonic within a window and reset at the window boundary.
type RateCounters interface {
	// CheckAndIncrement atomically checks every check against its
	// limit and, only if all pass, commits the increments. Returns the
	// first exceeded check, or nil.
	CheckAndIncrement(ctx context.Context, checks []RateCheck) (*RateCheck, error)
}

// RateCheck is one counter probe. Limit 0 means unlimited.
type RateCheck struct {
	Scope   Scope
	Subject string
	Limit   int
}

// MemoryRateCounters is the in-process implementation.
type MemoryRateCounters struct {
	window time.Duration
	mu     sync.Mutex
	counts map[counterKey]int
	now    func() time.Time
}

// NewMemoryRateCounters creates counters with the given window
// (default one hour).
func NewMemoryRateCounters(window time.Duration) *MemoryRateCounters {
	if window == 0 {
		window = time.Hour
	}
	return &MemoryRateCounters{
		window: window,
		counts: make(map[counterKey]int),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (c *MemoryRateCounters) CheckAndIncrement(ctx context.Context, checks []RateCheck) (*RateCheck, error) {
	now := c.now()
	windowStart := now.Truncate(c.window).Unix()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Check every counter first so a deny commits nothing.
	for i, check := range checks {
		if check.Limit <= 0 {
			continue
		}
		key := counterKey{check.Scope, check.Subject, windowStart}
		if c.counts[key]+1 > check.Limit {
			exceeded := checks[i]
			return &exceeded, nil
		}
	}
	for _, check := range checks {
		if check.Limit <= 0 {
			continue
		}
		key := counterKey{check.Scope, check.Subject, windowStart}
		c.counts[key]++
	}

	// Opportunistic cleanup of expired windows.
	if len(c.counts) > 4096 {
		for key := range c.counts {
			if key.windowStart < windowStart {
				delete(c.counts, key)
			}
		}
	}
	return nil, nil
}

// RedisRateCounters stores windows in Redis under
// rate:{scope}:{subject}:{window_start} with TTL twice the window, so
// multiple instances share one budget.
type RedisRateCounters struct {
	client *redis.Client
	window time.Duration
	now    func() time.Time
}

// NewRedisRateCounters creates shared counters over an existing client.
func NewRedisRateCounters(client *redis.Client, window time.Duration) *RedisRateCounters {
	if window == 0 {
		window = time.Hour
	}
	return &RedisRateCounters{
		client: client,
		window: window,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (c *RedisRateCounters) key(check RateCheck, windowStart int64) string {
	return fmt.Sprintf("rate:%s:%s:%d", check.Scope, check.Subject, windowStart)
}

func (c *RedisRateCounters) CheckAndIncrement(ctx context.Context, checks []RateCheck) (*RateCheck, error) {
	windowStart := c.now().Truncate(c.window).Unix()

	// Increment everything in one pipeline, then roll back if any
	// counter went over its limit. Increments are monotonic within the
	// window; the rollback keeps a denied probe from consuming budget.
	pipe := c.client.Pipeline()
	incrs := make([]*redis.IntCmd, len(checks))
	for i, check := range checks {
		if check.Limit <= 0 {
			continue
		}
		key := c.key(check, windowStart)
		incrs[i] = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, 2*c.window)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("rate counter increment: %w", err)
	}

	var exceeded *RateCheck
	for i, check := range checks {
		if incrs[i] == nil {
			continue
		}
		if incrs[i].Val() > int64(check.Limit) && exceeded == nil {
			cp := checks[i]
			exceeded = &cp
		}
	}
	if exceeded != nil {
		rollback := c.client.Pipeline()
		for i, check := range checks {
			if incrs[i] != nil {
				rollback.Decr(ctx, c.key(check, windowStart))
			}
		}
		if _, err := rollback.Exec(ctx); err != nil {
			return exceeded, fmt.Errorf("rate counter rollback: %w", err)
		}
	}
	return exceeded, nil
}
