package pipeline

import (
	"context"
	"time"
)

// RetryPolicy bounds the attempts to open a media player. The delay
// before attempt n+1 is BaseBackoff doubled n-1 times, capped at
// MaxBackoff.
type RetryPolicy struct {
	Attempts    int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DefaultRetryPolicy tries three times, waiting 500ms and then 1s.
var DefaultRetryPolicy = RetryPolicy{
	Attempts:    3,
	BaseBackoff: 500 * time.Millisecond,
	MaxBackoff:  2 * time.Second,
}

func (p RetryPolicy) attempts() int {
	if p.Attempts < 1 {
		return 1
	}

	return p.Attempts
}

func backoffForAttempt(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	backoff := base
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if max > 0 && backoff >= max {
			return max
		}
	}
	if max > 0 && backoff > max {
		return max
	}
	return backoff
}

func waitForBackoff(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
