package app

import (
	"context"
	"time"

	"github.com/bsturgis0/zoti/internal/util"
)

// retryWithBackoff runs fn up to maxAttempts times, doubling the delay after
// each failure. The last error is returned when attempts are exhausted.
func retryWithBackoff(ctx context.Context, maxAttempts int, initialDelay time.Duration, fn func() (string, error)) (string, error) {
	delay := initialDelay
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		out, err := fn()
		if err == nil {
			return out, nil
		}
		lastErr = err
		if attempt < maxAttempts {
			util.LoggerFromContext(ctx).Warn("generation failed, retrying",
				"attempt", attempt,
				"max_attempts", maxAttempts,
				"delay", delay.String(),
				"err", err,
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
			delay *= 2
		}
	}
	return "", lastErr
}
