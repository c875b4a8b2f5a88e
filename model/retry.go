package model

import (
	"context"
	"math/rand/v2"
	"time"
)

// Rate-limit retry tuning shared by every provider adapter: up to 5 total
// attempts, exponential backoff starting at 500ms and capped at 8s, with up
// to 50% jitter added on top of each delay to keep concurrent callers from
// retrying in lockstep against the same provider.
const (
	maxRateLimitAttempts = 5
	initialBackoff       = 500 * time.Millisecond
	maxBackoff           = 8 * time.Second
)

// RetryOnRateLimit runs attempt, retrying with exponential backoff and
// jitter while isRateLimited reports the returned error as a rate-limit or
// transient provider failure. Any other error, or exhausting
// maxRateLimitAttempts, returns the last error unwrapped so the caller
// decides how to present it (e.g. wrapping in model.ErrRateLimited).
func RetryOnRateLimit(ctx context.Context, isRateLimited func(error) bool, attempt func() (*Response, error)) (*Response, error) {
	delay := initialBackoff
	var lastErr error
	for i := 0; i < maxRateLimitAttempts; i++ {
		resp, err := attempt()
		if err == nil {
			return resp, nil
		}
		if !isRateLimited(err) {
			return nil, err
		}
		lastErr = err
		if i == maxRateLimitAttempts-1 {
			break
		}
		jittered := delay + rand.N(delay/2+1)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(jittered):
		}
		delay *= 2
		if delay > maxBackoff {
			delay = maxBackoff
		}
	}
	return nil, lastErr
}
