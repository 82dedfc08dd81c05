package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts: attempts,
		BackoffMin:  time.Millisecond,
		BackoffMax:  2 * time.Millisecond,
	}
}

func TestDo_SucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(3), func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesTransientUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(4), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(eris.New("flaky"), 503)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(4), func(ctx context.Context) error {
		calls++
		return NewTransientError(eris.New("always down"), 502)
	})
	require.Error(t, err)
	assert.Equal(t, 4, calls)
}

func TestDo_NonTransientFailsImmediately(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(4), func(ctx context.Context) error {
		calls++
		return eris.New("bad request")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancellationStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, RetryConfig{MaxAttempts: 10, BackoffMin: 50 * time.Millisecond, BackoffMax: 50 * time.Millisecond}, func(ctx context.Context) error {
		calls++
		cancel()
		return NewTransientError(eris.New("flaky"), 500)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoVal_ReturnsValue(t *testing.T) {
	calls := 0
	got, err := DoVal(context.Background(), fastConfig(3), func(ctx context.Context) (int, error) {
		calls++
		if calls < 2 {
			return 0, NewTransientError(eris.New("flaky"), 429)
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestDoVal_BoundedDuration(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, BackoffMin: 5 * time.Millisecond, BackoffMax: 10 * time.Millisecond}
	start := time.Now()
	_, err := DoVal(context.Background(), cfg, func(ctx context.Context) (int, error) {
		return 0, NewTransientError(eris.New("down"), 500)
	})
	elapsed := time.Since(start)
	require.Error(t, err)
	// Two sleeps of at most BackoffMax each, plus scheduling slack.
	assert.Less(t, elapsed, 500*time.Millisecond)
	assert.GreaterOrEqual(t, elapsed, 10*time.Millisecond)
}

func TestComputeBackoff_WithinWindow(t *testing.T) {
	cfg := applyDefaults(RetryConfig{BackoffMin: 300 * time.Millisecond, BackoffMax: 1200 * time.Millisecond})
	for i := 0; i < 100; i++ {
		d := computeBackoff(cfg)
		assert.GreaterOrEqual(t, d, 300*time.Millisecond)
		assert.LessOrEqual(t, d, 1200*time.Millisecond)
	}
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(eris.New("validation failed")))
	assert.True(t, IsTransient(NewTransientError(eris.New("rate limited"), 429)))
	assert.True(t, IsTransient(eris.Wrap(NewTransientError(eris.New("inner"), 503), "outer")))
	assert.True(t, IsTransient(eris.New("dial tcp: i/o timeout")))
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), "status %d", code)
	}
	for _, code := range []int{200, 301, 400, 401, 404} {
		assert.False(t, IsTransientHTTPStatus(code), "status %d", code)
	}
}
