package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type RetryConfig struct {
	MaxAttempts    int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	Multiplier     float64
	JitterFraction float64
}

func defaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialDelay:   100 * time.Millisecond,
		MaxDelay:       10 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
	}
}

// Permanent marks err as not worth retrying; Retry and ConstantRetry stop at
// once and return it.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Retry calls fn until it succeeds, returns a Permanent error, ctx is done or
// MaxAttempts is reached, sleeping with exponential backoff and jitter in
// between.
func Retry(ctx context.Context, name string, cfg RetryConfig, fn func() error) error {
	defaults := defaultRetryConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = defaults.InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaults.MaxDelay
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = defaults.Multiplier
	}
	if cfg.JitterFraction <= 0 {
		cfg.JitterFraction = defaults.JitterFraction
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = cfg.InitialDelay
	eb.MaxInterval = cfg.MaxDelay
	eb.Multiplier = cfg.Multiplier
	eb.RandomizationFactor = cfg.JitterFraction
	eb.MaxElapsedTime = 0

	return run(ctx, name, cfg.MaxAttempts, eb, fn)
}

// ConstantRetry calls fn up to attempts times with a fixed pause between
// failures.
func ConstantRetry(ctx context.Context, name string, attempts int, pause time.Duration, fn func() error) error {
	if attempts <= 0 {
		attempts = 1
	}
	return run(ctx, name, attempts, backoff.NewConstantBackOff(pause), fn)
}

func run(ctx context.Context, name string, attempts int, b backoff.BackOff, fn func() error) error {
	logger := slog.Default().With("component", "retry", "operation", name)
	attempt := 0
	op := func() error {
		attempt++
		return fn()
	}
	notify := func(err error, next time.Duration) {
		logger.Warn("operation failed, retrying",
			"attempt", attempt, "max_attempts", attempts, "error", err, "next_delay", next)
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
	err := backoff.RetryNotify(op, policy, notify)
	if err == nil {
		if attempt > 1 {
			logger.Info("succeeded after retry", "attempt", attempt)
		}
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("retry aborted: %w", err)
	}
	return fmt.Errorf("%s failed after %d attempts: %w", name, attempt, err)
}
