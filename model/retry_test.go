package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRetryOnRateLimitReturnsImmediatelyOnSuccess(t *testing.T) {
	calls := 0
	resp, err := RetryOnRateLimit(context.Background(), func(error) bool { return true }, func() (*Response, error) {
		calls++
		return &Response{Text: "ok"}, nil
	})
	require.NoError(t, err)
	require.Equal(t, "ok", resp.Text)
	require.Equal(t, 1, calls)
}

func TestRetryOnRateLimitDoesNotRetryNonRateLimitErrors(t *testing.T) {
	wantErr := errors.New("bad request")
	calls := 0
	_, err := RetryOnRateLimit(context.Background(), func(error) bool { return false }, func() (*Response, error) {
		calls++
		return nil, wantErr
	})
	require.ErrorIs(t, err, wantErr)
	require.Equal(t, 1, calls)
}

func TestRetryOnRateLimitRetriesThenSucceeds(t *testing.T) {
	calls := 0
	resp, err := RetryOnRateLimit(context.Background(), func(error) bool { return true }, func() (*Response, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("429 rate limited")
		}
		return &Response{Text: "recovered"}, nil
	})
	require.NoError(t, err)
	require.Equal(t, "recovered", resp.Text)
	require.Equal(t, 3, calls)
}

func TestRetryOnRateLimitExhaustsAttempts(t *testing.T) {
	calls := 0
	wantErr := errors.New("429 rate limited")
	_, err := RetryOnRateLimit(context.Background(), func(error) bool { return true }, func() (*Response, error) {
		calls++
		return nil, wantErr
	})
	require.ErrorIs(t, err, wantErr)
	require.Equal(t, maxRateLimitAttempts, calls)
}

func TestRetryOnRateLimitStopsOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := RetryOnRateLimit(ctx, func(error) bool { return true }, func() (*Response, error) {
		calls++
		cancel()
		return nil, errors.New("429 rate limited")
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
}
