package fetch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_PreservesOrder(t *testing.T) {
	reqs := []int{5, 1, 4, 2, 3}

	out := Run(context.Background(), reqs, func(_ context.Context, n int) (int, error) {
		// Larger inputs finish later.
		time.Sleep(time.Duration(n) * 5 * time.Millisecond)
		return n * 10, nil
	}, Options{Concurrency: 5})

	require.Len(t, out, len(reqs))
	for i, n := range reqs {
		assert.NoError(t, out[i].Err)
		assert.Equal(t, n*10, out[i].Value)
	}
}

func TestRun_FailureIsolation(t *testing.T) {
	reqs := []string{"a", "fail", "b", "fail", "c"}

	out := Run(context.Background(), reqs, func(_ context.Context, s string) (string, error) {
		if s == "fail" {
			return "", errors.New("boom")
		}
		return s + "!", nil
	}, Options{Concurrency: 2})

	require.Len(t, out, 5)
	assert.Equal(t, "a!", out[0].Value)
	assert.Error(t, out[1].Err)
	assert.Equal(t, "", out[1].Value)
	assert.Equal(t, "b!", out[2].Value)
	assert.Error(t, out[3].Err)
	assert.Equal(t, "c!", out[4].Value)

	assert.Equal(t, []string{"a!", "b!", "c!"}, Values(out))
	assert.Equal(t, 2, Failed(out))
	assert.Equal(t, "3 ok, 2 failed", Summary(out))
}

func TestRun_TimeoutDoesNotCancelSiblings(t *testing.T) {
	reqs := []time.Duration{0, time.Second, 0, time.Second, 0}

	start := time.Now()
	out := Run(context.Background(), reqs, func(ctx context.Context, d time.Duration) (bool, error) {
		select {
		case <-time.After(d):
			return true, nil
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}, Options{Concurrency: 5, Timeout: 50 * time.Millisecond})

	assert.Less(t, time.Since(start), 900*time.Millisecond)
	require.Len(t, out, 5)
	assert.True(t, out[0].OK())
	assert.True(t, out[2].OK())
	assert.True(t, out[4].OK())
	assert.False(t, out[1].OK())
	assert.False(t, out[3].OK())
	assert.ErrorIs(t, out[1].Err, context.DeadlineExceeded)
	assert.Contains(t, out[1].Err.Error(), "timed out")
}

func TestRun_ConcurrencyBound(t *testing.T) {
	var inFlight, peak atomic.Int32
	reqs := make([]int, 20)

	Run(context.Background(), reqs, func(_ context.Context, _ int) (int, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return 0, nil
	}, Options{Concurrency: 3})

	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Positive(t, peak.Load())
}

func TestRun_ZeroConcurrencyRunsSerially(t *testing.T) {
	var inFlight, peak atomic.Int32

	out := Run(context.Background(), []int{1, 2, 3}, func(_ context.Context, n int) (int, error) {
		if v := inFlight.Add(1); v > peak.Load() {
			peak.Store(v)
		}
		defer inFlight.Add(-1)
		return n, nil
	}, Options{})

	assert.Equal(t, []int{1, 2, 3}, Values(out))
	assert.Equal(t, int32(1), peak.Load())
}

func TestRun_PanicBecomesError(t *testing.T) {
	out := Run(context.Background(), []int{1, 2}, func(_ context.Context, n int) (int, error) {
		if n == 2 {
			panic("bad page")
		}
		return n, nil
	}, Options{Concurrency: 2})

	assert.True(t, out[0].OK())
	require.Error(t, out[1].Err)
	assert.Contains(t, out[1].Err.Error(), "panicked")
}

func TestRun_Empty(t *testing.T) {
	called := false
	out := Run(context.Background(), nil, func(_ context.Context, _ int) (int, error) {
		called = true
		return 0, nil
	}, Options{Concurrency: 4})

	assert.Empty(t, out)
	assert.False(t, called)
}

func TestRun_CanceledParent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	out := Run(ctx, []int{1, 2, 3}, func(_ context.Context, n int) (int, error) {
		calls.Add(1)
		return n, nil
	}, Options{Concurrency: 2})

	assert.Equal(t, 3, Failed(out))
	assert.Zero(t, calls.Load())
}
