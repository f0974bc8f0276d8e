// Package httpserver runs an http.Server for the lifetime of a context and
// drains it gracefully when the context ends.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/samuelharden/xapian/pkg/config"
)

const defaultShutdownTimeout = 10 * time.Second

type Server struct {
	name            string
	srv             *http.Server
	shutdownTimeout time.Duration
	logger          *slog.Logger
}

// New builds a server on cfg.Port. The write timeout gets a second of slack
// over cfg.WriteTimeout so the request timeout middleware answers first.
func New(name string, cfg config.ServerConfig, h http.Handler) *Server {
	s := &Server{
		name: name,
		srv: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           h,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadTimeout,
		},
		shutdownTimeout: cfg.ShutdownTimeout,
		logger:          slog.Default().With("component", "http", "server", name),
	}
	if cfg.WriteTimeout > 0 {
		s.srv.WriteTimeout = cfg.WriteTimeout + time.Second
	}
	if s.shutdownTimeout <= 0 {
		s.shutdownTimeout = defaultShutdownTimeout
	}
	return s
}

func (s *Server) Addr() string { return s.srv.Addr }

// Run listens on the configured address until ctx ends.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("%s: listen %s: %w", s.name, s.srv.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts on ln until ctx ends, then stops accepting and waits up to
// the shutdown timeout for in-flight requests. It returns nil on a clean
// shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errc := make(chan error, 1)
	go func() { errc <- s.srv.Serve(ln) }()
	s.logger.Info("listening", "addr", ln.Addr().String())

	select {
	case err := <-errc:
		return fmt.Errorf("%s: serve: %w", s.name, err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down", "timeout", s.shutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%s: shutdown: %w", s.name, err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s: serve: %w", s.name, err)
	}
	s.logger.Info("stopped")
	return nil
}
