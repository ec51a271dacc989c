package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"
)

// RetryConfig bounds Retry. Zero fields take the defaults: 3 attempts,
// 100ms first delay and 10s cap. The delay doubles per attempt, and half of
// it is randomised so that replicas restarting together spread out.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// Retryable reports whether a failure is worth another attempt. Nil
	// retries every error.
	Retryable func(error) bool
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 10 * time.Second
	}
	return c
}

// backoff returns the wait after the given failed attempt (1-based).
func (c RetryConfig) backoff(attempt int) time.Duration {
	d := c.InitialDelay << min(attempt-1, 30)
	if d <= 0 || d > c.MaxDelay {
		d = c.MaxDelay
	}
	half := d / 2
	return half + rand.N(half+1)
}

// Retry calls fn until it succeeds, fails with an error Retryable rejects,
// runs out of attempts or ctx ends. The last error is wrapped in the result.
func Retry(ctx context.Context, name string, cfg RetryConfig, fn func(ctx context.Context) error) error {
	cfg = cfg.withDefaults()
	logger := slog.Default().With("component", "retry", "operation", name)

	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(ctx); err == nil {
			if attempt > 1 {
				logger.Info("succeeded after retry", "attempt", attempt)
			}
			return nil
		}
		if cfg.Retryable != nil && !cfg.Retryable(err) {
			return err
		}
		if attempt == cfg.MaxAttempts {
			return fmt.Errorf("%s: gave up after %d attempts: %w", name, attempt, err)
		}

		wait := cfg.backoff(attempt)
		logger.Warn("attempt failed", "attempt", attempt, "max_attempts", cfg.MaxAttempts, "next_delay", wait, "error", err)
		if serr := sleep(ctx, wait); serr != nil {
			return fmt.Errorf("%s: retry aborted: %w", name, serr)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
