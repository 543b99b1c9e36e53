package provider

import (
	"context"
	"fmt"
	"time"
)

// RetryConfig bounds every outbound collaborator call: per-attempt deadline,
// attempt budget and exponential backoff between attempts.
type RetryConfig struct {
	Attempts    int
	PerCallTime time.Duration
	BaseBackoff time.Duration
}

// DefaultRetry is used when config supplies nothing.
var DefaultRetry = RetryConfig{
	Attempts:    3,
	PerCallTime: 5 * time.Second,
	BaseBackoff: 200 * time.Millisecond,
}

func (c RetryConfig) normalized() RetryConfig {
	if c.Attempts <= 0 {
		c.Attempts = DefaultRetry.Attempts
	}
	if c.PerCallTime <= 0 {
		c.PerCallTime = DefaultRetry.PerCallTime
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = DefaultRetry.BaseBackoff
	}
	return c
}

// Do runs fn with a per-attempt deadline, retrying retryable failures with
// exponential backoff until the budget is exhausted. Terminal errors and
// caller-context cancellation stop immediately.
func Do(ctx context.Context, cfg RetryConfig, op string, fn func(ctx context.Context) error) error {
	cfg = cfg.normalized()
	var last error
	backoff := cfg.BaseBackoff
	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, cfg.PerCallTime)
		err := fn(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		last = err
		if !IsRetryable(err) {
			return err
		}
		if attempt == cfg.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return fmt.Errorf("%s: retry budget exhausted after %d attempts: %w", op, cfg.Attempts, last)
}
