// Package logger configures the process-wide slog logger and carries
// request-scoped loggers through a context.Context.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type contextKey struct{}

// Setup installs the default logger, writing to stdout.
func Setup(level string, format string) {
	slog.SetDefault(New(os.Stdout, level, format))
}

// New builds a logger writing "json" or text records to w. An unknown level
// falls back to info. Debug records carry their source position.
func New(w io.Writer, level string, format string) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl <= slog.LevelDebug,
	}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ParseLevel accepts slog level names in any case, including offsets such
// as "warn+2".
func ParseLevel(level string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// With returns a context whose logger carries args in addition to those
// already attached.
func With(ctx context.Context, args ...any) context.Context {
	return context.WithValue(ctx, contextKey{}, FromContext(ctx).With(args...))
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return With(ctx, "request_id", requestID)
}

// FromContext returns the logger attached to ctx, or the default logger.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(contextKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

func WithComponent(component string, args ...any) *slog.Logger {
	return slog.Default().With(append([]any{"component", component}, args...)...)
}
