// Package resilience guards calls to the service's backing stores. A
// CircuitBreaker stops calling Redis or PostgreSQL once they keep failing,
// and Retry re-runs startup connections and Kafka handlers with backoff.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

type CircuitBreakerConfig struct {
	// FailureThreshold consecutive failures open the circuit.
	FailureThreshold int
	// ResetTimeout is how long the circuit stays open before probing.
	ResetTimeout time.Duration
	// HalfOpenMaxRequests probes may be in flight while half-open.
	HalfOpenMaxRequests int
	// IsFailure decides which errors count against the backend. By default
	// every error does except context cancellation.
	IsFailure func(error) bool
	// OnStateChange is called after every transition, and once with the
	// initial state, while the breaker's lock is held. It must not call
	// back into the breaker.
	OnStateChange func(name string, to State)
}

func countsAsFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

// Snapshot is a point-in-time view of a breaker.
type Snapshot struct {
	Name                string
	State               State
	ConsecutiveFailures int
	OpenedAt            time.Time
}

type CircuitBreaker struct {
	name   string
	cfg    CircuitBreakerConfig
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probes   int
}

func NewCircuitBreaker(name string, cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMaxRequests <= 0 {
		cfg.HalfOpenMaxRequests = 1
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = countsAsFailure
	}
	cb := &CircuitBreaker{
		name:   name,
		cfg:    cfg,
		logger: slog.Default().With("component", "circuit-breaker", "name", name),
		now:    time.Now,
	}
	if cfg.OnStateChange != nil {
		cfg.OnStateChange(name, StateClosed)
	}
	return cb
}

// Execute runs fn unless the circuit is open, then records the outcome.
// fn's error is returned unchanged.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn()
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) Snapshot() Snapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Snapshot{
		Name:                cb.name,
		State:               cb.state,
		ConsecutiveFailures: cb.failures,
		OpenedAt:            cb.openedAt,
	}
}

// Reset closes the circuit regardless of its state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.moveTo(StateClosed)
	cb.logger.Info("circuit reset")
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case StateOpen:
		wait := cb.cfg.ResetTimeout - cb.now().Sub(cb.openedAt)
		if wait > 0 {
			return fmt.Errorf("%w: %s (retry in %v)", ErrCircuitOpen, cb.name, wait.Round(time.Millisecond))
		}
		cb.moveTo(StateHalfOpen)
		cb.logger.Info("circuit half-open, probing")
	case StateHalfOpen:
		if cb.probes >= cb.cfg.HalfOpenMaxRequests {
			return fmt.Errorf("%w: %s (probe in flight)", ErrCircuitOpen, cb.name)
		}
	}
	if cb.state == StateHalfOpen {
		cb.probes++
	}
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if !cb.cfg.IsFailure(err) {
		if cb.state == StateHalfOpen {
			cb.moveTo(StateClosed)
			cb.logger.Info("circuit closed, backend recovered")
		}
		cb.failures = 0
		return
	}
	cb.failures++
	switch {
	case cb.state == StateHalfOpen:
		cb.moveTo(StateOpen)
		cb.logger.Warn("probe failed, circuit re-opened", "error", err)
	case cb.state == StateClosed && cb.failures >= cb.cfg.FailureThreshold:
		failures := cb.failures
		cb.moveTo(StateOpen)
		cb.logger.Warn("circuit opened", "consecutive_failures", failures, "error", err)
	}
}

// moveTo switches state and clears the per-state counters. Callers hold mu.
func (cb *CircuitBreaker) moveTo(to State) {
	cb.state = to
	cb.probes = 0
	switch to {
	case StateOpen:
		cb.openedAt = cb.now()
	case StateClosed:
		cb.failures = 0
		cb.openedAt = time.Time{}
	}
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.name, to)
	}
}
