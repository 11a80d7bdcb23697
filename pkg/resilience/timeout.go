package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is returned by WithTimeout when fn outlived its budget.
var ErrTimeout = errors.New("operation timed out")

// WithTimeout runs fn under a context that expires after timeout. fn keeps
// running in the background if it ignores its context; its result is then
// discarded. A non-positive timeout calls fn directly.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(tctx) }()

	select {
	case err := <-done:
		return err
	case <-tctx.Done():
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return fmt.Errorf("%s: %w after %v", name, ErrTimeout, timeout)
	}
}
