// Package health runs dependency probes for the liveness and readiness
// endpoints. Each registered Check runs concurrently under its own
// deadline; the report carries the worst status seen.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/samuelharden/xapian/pkg/resilience"
)

type Status string

const (
	StatusUp       Status = "up"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

func (s Status) severity() int {
	switch s {
	case StatusUp:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

type Check func(ctx context.Context) ComponentHealth

type ComponentHealth struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

type Report struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  string                     `json:"timestamp"`
}

const defaultCheckTimeout = 2 * time.Second

type Checker struct {
	mu      sync.RWMutex
	checks  map[string]Check
	timeout time.Duration
	logger  *slog.Logger
}

type Option func(*Checker)

// WithCheckTimeout bounds each individual probe.
func WithCheckTimeout(d time.Duration) Option {
	return func(c *Checker) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func NewChecker(opts ...Option) *Checker {
	c := &Checker{
		checks:  make(map[string]Check),
		timeout: defaultCheckTimeout,
		logger:  slog.Default().With("component", "health"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register adds or replaces the check called name.
func (c *Checker) Register(name string, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// Run probes every component. A check that panics reports down.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	checks := make(map[string]Check, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	results := make(map[string]ComponentHealth, len(checks))
	var mu sync.Mutex
	var g errgroup.Group
	for name, check := range checks {
		g.Go(func() error {
			result := c.probe(ctx, check)
			mu.Lock()
			results[name] = result
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	report := Report{
		Status:     StatusUp,
		Components: results,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
	for _, comp := range results {
		if comp.Status.severity() > report.Status.severity() {
			report.Status = comp.Status
		}
	}
	return report
}

func (c *Checker) probe(ctx context.Context, check Check) (result ComponentHealth) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result = ComponentHealth{Status: StatusDown, Message: fmt.Sprintf("check panicked: %v", r)}
		}
		result.Latency = time.Since(start).Round(time.Millisecond).String()
	}()
	return check(ctx)
}

// PingCheck adapts a ping function into a Check. A failing critical
// dependency reports down and fails readiness; a failing optional one
// reports degraded. A nil ping means the dependency is not configured.
func PingCheck(ping func(ctx context.Context) error, critical bool) Check {
	failed := StatusDegraded
	if critical {
		failed = StatusDown
	}
	return func(ctx context.Context) ComponentHealth {
		if ping == nil {
			return ComponentHealth{Status: failed, Message: "not configured"}
		}
		if err := ping(ctx); err != nil {
			return ComponentHealth{Status: failed, Message: err.Error()}
		}
		return ComponentHealth{Status: StatusUp}
	}
}

// BreakerCheck reports degraded while cb is not closed, without touching
// the backend it guards.
func BreakerCheck(cb *resilience.CircuitBreaker) Check {
	return func(context.Context) ComponentHealth {
		snap := cb.Snapshot()
		if snap.State == resilience.StateClosed {
			return ComponentHealth{Status: StatusUp}
		}
		msg := fmt.Sprintf("circuit %s", snap.State)
		if !snap.OpenedAt.IsZero() {
			msg += " since " + snap.OpenedAt.UTC().Format(time.RFC3339)
		}
		return ComponentHealth{Status: StatusDegraded, Message: msg}
	}
}

func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	}
}

// ReadyHandler fails only when a component is down, so a service running
// without its cache still takes traffic.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := c.Run(r.Context())
		status := http.StatusOK
		if report.Status == StatusDown {
			status = http.StatusServiceUnavailable
			c.logger.Warn("readiness failed", "components", report.Components)
		}
		writeJSON(w, status, report)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
