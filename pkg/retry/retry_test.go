package retry

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semcache/errors"
	"github.com/c360/semcache/pkg/cache"
)

func fastConfig(attempts int) Config {
	return Config{
		MaxAttempts:  attempts,
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     20 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestRetry_Success(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastConfig(3), func() error {
		attempts++
		if attempts < 3 {
			return stderrors.New("connection reset")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_AllAttemptsFail(t *testing.T) {
	boom := stderrors.New("persistent error")
	attempts := 0
	err := Do(context.Background(), fastConfig(3), func() error {
		attempts++
		return boom
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "3 attempts")
	assert.ErrorIs(t, err, boom)
	assert.True(t, errors.IsTransient(err))
	assert.Equal(t, 3, attempts)
}

func TestRetry_StopsOnErrorsNotWorthRetrying(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"non-retryable", NonRetryable(stderrors.New("gone"))},
		{"invalid", errors.WrapInvalid(errors.ErrInvalidArgument, "store", "Load", "parse id")},
		{"fatal", errors.WrapFatal(stderrors.New("disk"), "store", "Load", "open")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			err := Do(context.Background(), fastConfig(5), func() error {
				attempts++
				return tt.err
			})
			assert.Equal(t, tt.err, err)
			assert.Equal(t, 1, attempts)
		})
	}
}

func TestRetry_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{MaxAttempts: 5, InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second}

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	attempts := 0
	err := Do(ctx, cfg, func() error {
		attempts++
		return stderrors.New("error")
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "retry cancelled")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, attempts, 5)
}

func TestRetry_BackoffIsCapped(t *testing.T) {
	cfg := Config{
		MaxAttempts:  4,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     25 * time.Millisecond,
		Multiplier:   10.0,
	}

	start := time.Now()
	_ = Do(context.Background(), cfg, func() error { return stderrors.New("error") })
	elapsed := time.Since(start)

	// 10ms + 25ms + 25ms
	assert.GreaterOrEqual(t, elapsed, 60*time.Millisecond)
	assert.Less(t, elapsed, 500*time.Millisecond)
}

func TestRetry_InvalidConfig(t *testing.T) {
	tests := []Config{
		{InitialDelay: -1},
		{MaxDelay: -1},
		{Multiplier: -2},
		{InitialDelay: time.Second, MaxDelay: time.Millisecond},
	}
	for _, cfg := range tests {
		called := false
		err := Do(context.Background(), cfg, func() error { called = true; return nil })
		assert.True(t, errors.IsInvalidArgument(err), "%+v", cfg)
		assert.False(t, called)
	}
}

func TestRetry_ZeroAttemptsRunsOnce(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), Config{}, func() error {
		attempts++
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetry_Presets(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.InitialDelay)
	assert.True(t, cfg.AddJitter)

	quick := Quick()
	assert.Equal(t, 10, quick.MaxAttempts)
	assert.Equal(t, time.Second, quick.MaxDelay)
}

func TestFactory_RetriesBeforeCacheSeesError(t *testing.T) {
	c, err := cache.New[string, string]()
	require.NoError(t, err)
	t.Cleanup(func() { c.Dispose() })
	ctx := context.Background()

	var attempts atomic.Int32
	v, err := c.Get(ctx, "doc", Factory(ctx, fastConfig(3), func() (string, error) {
		if attempts.Add(1) < 3 {
			return "", stderrors.New("temporarily unavailable")
		}
		return "loaded", nil
	}))
	require.NoError(t, err)
	assert.Equal(t, "loaded", v)
	assert.Equal(t, int64(0), c.Stats().FactoryErrors())
}

func TestAsyncFactory(t *testing.T) {
	c, err := cache.New[string, int]()
	require.NoError(t, err)
	t.Cleanup(func() { c.Dispose() })
	ctx := context.Background()

	var attempts atomic.Int32
	f, err := c.GetAsync("n", AsyncFactory(ctx, fastConfig(2), func(context.Context) (int, error) {
		if attempts.Add(1) == 1 {
			return 0, stderrors.New("busy")
		}
		return 42, nil
	}))
	require.NoError(t, err)

	v, err := f.Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, int32(2), attempts.Load())

	f, err = c.GetAsync("exhausted", AsyncFactory(ctx, fastConfig(2), func(context.Context) (int, error) {
		return 0, stderrors.New("busy")
	}))
	require.NoError(t, err)
	_, err = f.Await(ctx)
	assert.True(t, errors.IsFactoryError(err))
}

func BenchmarkRetry_Success(b *testing.B) {
	ctx := context.Background()
	cfg := Config{MaxAttempts: 1}
	for i := 0; i < b.N; i++ {
		_ = Do(ctx, cfg, func() error { return nil })
	}
}
