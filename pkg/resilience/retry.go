package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"
)

// RetryConfig shapes the backoff between attempts. Zero fields take the
// defaults: 3 attempts, 100ms doubling up to 10s, with ±10% jitter.
type RetryConfig struct {
	MaxAttempts    int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	Multiplier     float64
	JitterFraction float64
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 10 * time.Second
	}
	if c.MaxDelay < c.InitialDelay {
		c.MaxDelay = c.InitialDelay
	}
	if c.Multiplier < 1 {
		c.Multiplier = 2
	}
	if c.JitterFraction <= 0 || c.JitterFraction > 1 {
		c.JitterFraction = 0.1
	}
	return c
}

// Delay is the pause after the given failed attempt, counting from 1.
func (c RetryConfig) Delay(attempt int) time.Duration {
	c = c.withDefaults()
	d := float64(c.InitialDelay)
	for i := 1; i < attempt && d < float64(c.MaxDelay); i++ {
		d *= c.Multiplier
	}
	d = min(d, float64(c.MaxDelay))
	d += d * c.JitterFraction * (2*rand.Float64() - 1)
	return time.Duration(min(d, float64(c.MaxDelay)))
}

type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying; Retry returns it at once.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// Retry calls fn until it succeeds, returns a Permanent error, attempts run
// out or ctx is done. The last error from fn stays in the returned chain.
func Retry(ctx context.Context, name string, cfg RetryConfig, fn func() error) error {
	_, err := RetryValue(ctx, name, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// RetryValue is Retry for functions that produce a result.
func RetryValue[T any](ctx context.Context, name string, cfg RetryConfig, fn func() (T, error)) (T, error) {
	cfg = cfg.withDefaults()
	log := slog.Default().With("component", "retry", "operation", name)
	var zero T
	for attempt := 1; ; attempt++ {
		v, err := fn()
		if err == nil {
			if attempt > 1 {
				log.Info("recovered", "attempt", attempt)
			}
			return v, nil
		}
		var perm permanentError
		if errors.As(err, &perm) {
			return zero, fmt.Errorf("%s: %w", name, perm.err)
		}
		if attempt >= cfg.MaxAttempts {
			return zero, fmt.Errorf("%s: gave up after %d attempts: %w", name, attempt, err)
		}
		delay := cfg.Delay(attempt)
		log.Warn("attempt failed", "attempt", attempt, "max_attempts", cfg.MaxAttempts, "next_delay", delay, "error", err)
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return zero, fmt.Errorf("%s: aborted after %d attempts: %w (last error: %v)", name, attempt, ctx.Err(), err)
		}
	}
}
