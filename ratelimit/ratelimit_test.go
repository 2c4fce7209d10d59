package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amalgam8/vigil/pkg/fault"
)

func TestLimiterValidatesConfig(t *testing.T) {
	_, err := New(Config{Policy: "sliding_log"})
	require.Error(t, err)
	assert.True(t, fault.IsValidation(err))

	_, err = New(Config{LimitForPeriod: -1})
	assert.Error(t, err)
}

func TestLimiterAdmitsLimitPerWindow(t *testing.T) {
	l, err := New(Config{
		LimitForPeriod:     5,
		LimitRefreshPeriod: 100 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Acquire(ctx), "call %d should be admitted", i+1)
	}

	rejected := l.Acquire(ctx)
	require.Error(t, rejected)
	assert.True(t, fault.IsKind(rejected, fault.RateLimitExceeded))

	// A fresh window restores the full budget.
	time.Sleep(120 * time.Millisecond)
	assert.NoError(t, l.Acquire(ctx))
}

func TestLimiterWaitsForRefill(t *testing.T) {
	l, err := New(Config{
		LimitForPeriod:     1,
		LimitRefreshPeriod: 60 * time.Millisecond,
		TimeoutDuration:    300 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, l.Acquire(ctx))

	begin := time.Now()
	require.NoError(t, l.Acquire(ctx))
	elapsed := time.Since(begin)
	assert.GreaterOrEqual(t, elapsed, 30*time.Millisecond)
	assert.Less(t, elapsed, 300*time.Millisecond)
}

func TestLimiterRejectsWhenRefillBeyondTimeout(t *testing.T) {
	l, err := New(Config{
		LimitForPeriod:     1,
		LimitRefreshPeriod: 500 * time.Millisecond,
		TimeoutDuration:    50 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, l.Acquire(ctx))

	// The next refill is beyond the timeout; no point waiting it out.
	begin := time.Now()
	rejected := l.Acquire(ctx)
	require.Error(t, rejected)
	assert.True(t, fault.IsKind(rejected, fault.RateLimitExceeded))
	assert.Less(t, time.Since(begin), 100*time.Millisecond)
}

func TestLimiterWaitAbandonedOnCancellation(t *testing.T) {
	l, err := New(Config{
		LimitForPeriod:     1,
		LimitRefreshPeriod: 300 * time.Millisecond,
		TimeoutDuration:    time.Second,
	})
	require.NoError(t, err)

	require.NoError(t, l.Acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	rejected := l.Acquire(ctx)
	require.Error(t, rejected)
	assert.True(t, fault.IsKind(rejected, fault.RateLimitExceeded))
	assert.True(t, errors.Is(rejected, context.Canceled))
}

func TestTokenBucketRefillsGradually(t *testing.T) {
	l, err := New(Config{
		Policy:             TokenBucket,
		LimitForPeriod:     2,
		LimitRefreshPeriod: 100 * time.Millisecond,
	})
	require.NoError(t, err)

	assert.True(t, l.TryAcquire())
	assert.True(t, l.TryAcquire())
	assert.False(t, l.TryAcquire())

	// Half a period replenishes one of the two permits.
	time.Sleep(60 * time.Millisecond)
	assert.True(t, l.TryAcquire())
	assert.False(t, l.TryAcquire())
}

func TestIdleAccumulatesAtMostOnePeriod(t *testing.T) {
	for _, policy := range []Policy{FixedWindow, TokenBucket} {
		t.Run(string(policy), func(t *testing.T) {
			l, err := New(Config{
				Policy:             policy,
				LimitForPeriod:     4,
				LimitRefreshPeriod: 50 * time.Millisecond,
			})
			require.NoError(t, err)

			for i := 0; i < 4; i++ {
				require.True(t, l.TryAcquire())
			}
			require.False(t, l.TryAcquire())

			// Several idle periods later the budget is one period's worth,
			// not their sum.
			time.Sleep(220 * time.Millisecond)
			for i := 0; i < 4; i++ {
				assert.True(t, l.TryAcquire(), "permit %d", i+1)
			}
			assert.False(t, l.TryAcquire())
		})
	}
}

func TestLimiterExecuteRunsAfterAcquire(t *testing.T) {
	l, err := New(Config{LimitForPeriod: 1, LimitRefreshPeriod: time.Minute})
	require.NoError(t, err)

	ran := false
	require.NoError(t, l.Execute(context.Background(), func(ctx context.Context) error {
		ran = true
		return nil
	}))
	assert.True(t, ran)

	rejected := l.Execute(context.Background(), func(ctx context.Context) error {
		t.Fatal("operation must not run without a permit")
		return nil
	})
	assert.Error(t, rejected)
}

func TestRemainingReflectsBudget(t *testing.T) {
	l, err := New(Config{LimitForPeriod: 3, LimitRefreshPeriod: time.Minute})
	require.NoError(t, err)

	assert.Equal(t, 3, l.Remaining())
	require.True(t, l.TryAcquire())
	assert.Equal(t, 2, l.Remaining())
}
