package reservation

import (
	"context"
	"time"
)

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryWithBackoff runs op once plus once per backoff step while retryable
// accepts the error. It returns the last error.
func retryWithBackoff(ctx context.Context, backoff []time.Duration, sleep Sleeper, retryable func(error) bool, op func(context.Context) error) (int, error) {
	if sleep == nil {
		sleep = sleepContext
	}
	attempts := 0
	var lastErr error
	for i := 0; i <= len(backoff); i++ {
		attempts++
		lastErr = op(ctx)
		if lastErr == nil {
			return attempts, nil
		}
		if retryable != nil && !retryable(lastErr) {
			return attempts, lastErr
		}
		if i == len(backoff) {
			break
		}
		if err := sleep(ctx, backoff[i]); err != nil {
			return attempts, lastErr
		}
	}
	return attempts, lastErr
}
