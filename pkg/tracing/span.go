// Package tracing records sampled request traces as trees of timed spans
// carried in a context.Context. A finished trace is written through slog,
// one record per span, parents before children.
//
// A nil *Span is valid and records nothing, so code below a request that was
// not sampled can open child spans unconditionally.
package tracing

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"
)

type spanKey struct{}

type Span struct {
	name    string
	traceID string
	depth   int
	start   time.Time

	mu       sync.Mutex
	elapsed  time.Duration
	ended    bool
	attrs    []slog.Attr
	children []*Span
}

// Sampler decides which requests are traced.
type Sampler struct {
	enabled bool
	rate    float64
}

func NewSampler(enabled bool, rate float64) Sampler {
	return Sampler{enabled: enabled, rate: rate}
}

// Start opens a root span when the request is sampled. Otherwise ctx is
// returned unchanged with a nil span.
func (s Sampler) Start(ctx context.Context, name, traceID string) (context.Context, *Span) {
	if !s.enabled || s.rate <= 0 || (s.rate < 1 && rand.Float64() >= s.rate) {
		return ctx, nil
	}
	return Start(ctx, name, traceID)
}

// Start opens a root span unconditionally.
func Start(ctx context.Context, name, traceID string) (context.Context, *Span) {
	span := &Span{name: name, traceID: traceID, start: time.Now()}
	return context.WithValue(ctx, spanKey{}, span), span
}

// StartChild opens a span under the one in ctx. Without a span in ctx it
// returns ctx and a nil span.
func StartChild(ctx context.Context, name string) (context.Context, *Span) {
	parent := FromContext(ctx)
	if parent == nil {
		return ctx, nil
	}
	child := &Span{
		name:    name,
		traceID: parent.traceID,
		depth:   parent.depth + 1,
		start:   time.Now(),
	}
	parent.mu.Lock()
	parent.children = append(parent.children, child)
	parent.mu.Unlock()
	return context.WithValue(ctx, spanKey{}, child), child
}

func FromContext(ctx context.Context) *Span {
	span, _ := ctx.Value(spanKey{}).(*Span)
	return span
}

// End fixes the span's duration. Later calls are ignored.
func (s *Span) End() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ended {
		s.elapsed = time.Since(s.start)
		s.ended = true
	}
}

func (s *Span) SetAttr(key string, value any) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.attrs = append(s.attrs, slog.Any(key, value))
	s.mu.Unlock()
}

func (s *Span) Name() string {
	if s == nil {
		return ""
	}
	return s.name
}

// Duration is zero until End is called.
func (s *Span) Duration() time.Duration {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsed
}

// Attr returns the last value set for key.
func (s *Span) Attr(key string) (slog.Value, bool) {
	if s == nil {
		return slog.Value{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.attrs) - 1; i >= 0; i-- {
		if s.attrs[i].Key == key {
			return s.attrs[i].Value, true
		}
	}
	return slog.Value{}, false
}

func (s *Span) Children() []*Span {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Span(nil), s.children...)
}

// Emit logs the span and its descendants to log.
func (s *Span) Emit(ctx context.Context, log *slog.Logger) {
	if s == nil {
		return
	}
	s.mu.Lock()
	record := []slog.Attr{
		slog.String("trace_id", s.traceID),
		slog.String("span", s.name),
		slog.Int("depth", s.depth),
		slog.Float64("duration_ms", float64(s.elapsed.Microseconds())/1000),
	}
	if len(s.attrs) > 0 {
		record = append(record, slog.Attr{Key: "attrs", Value: slog.GroupValue(s.attrs...)})
	}
	children := append([]*Span(nil), s.children...)
	s.mu.Unlock()

	log.LogAttrs(ctx, slog.LevelInfo, "span", record...)
	for _, child := range children {
		child.Emit(ctx, log)
	}
}
