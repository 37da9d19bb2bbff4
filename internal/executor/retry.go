package executor

import (
	"context"
	"time"
)

// backoffDelay doubles from base per attempt. A provider Retry-After hint
// wins when it is longer. Both are capped at max.
func backoffDelay(attempt int, base, max, retryAfter time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt && delay < max; i++ {
		delay *= 2
	}
	if retryAfter > delay {
		delay = retryAfter
	}
	if max > 0 && delay > max {
		delay = max
	}
	return delay
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
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
