package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBackend = errors.New("redis down")

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	var (
		mu          sync.Mutex
		transitions []State
	)
	cb := NewCircuitBreaker("cache", CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     20 * time.Millisecond,
		OnStateChange: func(_ string, to State) {
			mu.Lock()
			transitions = append(transitions, to)
			mu.Unlock()
		},
	})

	fail := func() error { return errBackend }
	assert.ErrorIs(t, cb.Execute(fail), errBackend)
	assert.ErrorIs(t, cb.Execute(fail), errBackend)
	assert.Equal(t, StateOpen, cb.GetState())

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.GetState())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{StateClosed, StateOpen, StateHalfOpen, StateClosed}, transitions)
}

func TestCircuitBreakerHalfOpenAllowsOneProbe(t *testing.T) {
	cb := NewCircuitBreaker("db", CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Millisecond})
	_ = cb.Execute(func() error { return errBackend })
	time.Sleep(20 * time.Millisecond)

	probeStarted := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error)
	go func() {
		done <- cb.Execute(func() error {
			close(probeStarted)
			<-release
			return nil
		})
	}()
	<-probeStarted
	assert.ErrorIs(t, cb.Execute(func() error { return nil }), ErrCircuitOpen)
	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestRetry(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), "connect", RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond}, func() error {
		attempts++
		if attempts < 3 {
			return errBackend
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)

	err = Retry(context.Background(), "connect", RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond}, func() error {
		return errBackend
	})
	assert.ErrorIs(t, err, errBackend)
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, "connect", RetryConfig{MaxAttempts: 5, InitialDelay: time.Second}, func() error {
		return errBackend
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryPermanent(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), "schema", RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond}, func() error {
		attempts++
		return Permanent(errBackend)
	})
	assert.ErrorIs(t, err, errBackend)
	assert.Equal(t, 1, attempts)
	assert.NoError(t, Permanent(nil))
}

func TestCircuitBreakerIgnoresCancellation(t *testing.T) {
	cb := NewCircuitBreaker("cache", CircuitBreakerConfig{FailureThreshold: 1})
	err := cb.Execute(func() error { return context.Canceled })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.GetState())
	assert.Zero(t, cb.Snapshot().ConsecutiveFailures)
}

func TestCircuitBreakerCustomFailurePredicate(t *testing.T) {
	errNotFound := errors.New("not found")
	cb := NewCircuitBreaker("db", CircuitBreakerConfig{
		FailureThreshold: 1,
		IsFailure:        func(err error) bool { return err != nil && !errors.Is(err, errNotFound) },
	})
	assert.ErrorIs(t, cb.Execute(func() error { return errNotFound }), errNotFound)
	assert.Equal(t, StateClosed, cb.GetState())
	_ = cb.Execute(func() error { return errBackend })
	assert.Equal(t, StateOpen, cb.GetState())
}

func TestCircuitBreakerSnapshotAndClock(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	cb := NewCircuitBreaker("db", CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Minute})
	cb.now = func() time.Time { return now }

	_ = cb.Execute(func() error { return errBackend })
	snap := cb.Snapshot()
	assert.Equal(t, StateClosed, snap.State)
	assert.Equal(t, 1, snap.ConsecutiveFailures)

	_ = cb.Execute(func() error { return errBackend })
	snap = cb.Snapshot()
	assert.Equal(t, StateOpen, snap.State)
	assert.Equal(t, now, snap.OpenedAt)

	now = now.Add(30 * time.Second)
	assert.ErrorIs(t, cb.Execute(func() error { return nil }), ErrCircuitOpen)

	now = now.Add(31 * time.Second)
	_ = cb.Execute(func() error { return errBackend })
	assert.Equal(t, StateOpen, cb.GetState())
	assert.Equal(t, now, cb.Snapshot().OpenedAt)

	cb.Reset()
	snap = cb.Snapshot()
	assert.Equal(t, StateClosed, snap.State)
	assert.Zero(t, snap.ConsecutiveFailures)
	assert.True(t, snap.OpenedAt.IsZero())
}

func TestRetryDelayGrowsAndCaps(t *testing.T) {
	cfg := RetryConfig{InitialDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond, Multiplier: 2, JitterFraction: 0.01}
	assert.InDelta(t, float64(10*time.Millisecond), float64(cfg.Delay(1)), float64(time.Millisecond))
	assert.InDelta(t, float64(20*time.Millisecond), float64(cfg.Delay(2)), float64(time.Millisecond))
	assert.InDelta(t, float64(40*time.Millisecond), float64(cfg.Delay(3)), float64(time.Millisecond))
	for attempt := 4; attempt < 80; attempt++ {
		assert.LessOrEqual(t, cfg.Delay(attempt), 50*time.Millisecond)
	}
}

func TestRetryValue(t *testing.T) {
	calls := 0
	v, err := RetryValue(context.Background(), "lookup", RetryConfig{InitialDelay: time.Millisecond}, func() (int, error) {
		calls++
		if calls == 1 {
			return 0, errBackend
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 2, calls)
}
