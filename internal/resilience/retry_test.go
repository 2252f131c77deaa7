package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_SucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), DefaultRetryConfig(), func(ctx context.Context) error {
		calls++
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesThenSucceeds(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, JitterFraction: 0}
	calls := 0
	err := Do(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return eris.New("transient")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond, JitterFraction: 0}
	calls := 0
	err := Do(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		return eris.New("always fails")
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestDo_ShouldRetryStopsEarly(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:    5,
		InitialBackoff: time.Millisecond,
		JitterFraction: 0,
		ShouldRetry:    func(err error) bool { return false },
	}
	calls := 0
	err := Do(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		return eris.New("permanent")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxAttempts: 10, InitialBackoff: 50 * time.Millisecond, JitterFraction: 0}
	calls := 0
	err := Do(ctx, cfg, func(ctx context.Context) error {
		calls++
		cancel()
		return eris.New("fails")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoVal_ReturnsValue(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, JitterFraction: 0}
	calls := 0
	got, err := DoVal(context.Background(), cfg, func(ctx context.Context) (int, error) {
		calls++
		if calls < 2 {
			return 0, eris.New("transient")
		}
		return 42, nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestComputeBackoff_Caps(t *testing.T) {
	cfg := applyDefaults(RetryConfig{
		InitialBackoff: time.Second,
		MaxBackoff:     2 * time.Second,
		Multiplier:     10,
		JitterFraction: 0,
	})
	assert.Equal(t, 2*time.Second, computeBackoff(5, cfg))
}
