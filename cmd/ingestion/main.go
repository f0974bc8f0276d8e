// Command ingestion accepts documents over HTTP, records them in PostgreSQL
// and queues them on Kafka for the indexer.
//
// Usage:
//
//	go run ./cmd/ingestion [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/samuelharden/xapian/internal/ingestion/handler"
	"github.com/samuelharden/xapian/internal/ingestion/publisher"
	"github.com/samuelharden/xapian/pkg/config"
	"github.com/samuelharden/xapian/pkg/health"
	"github.com/samuelharden/xapian/pkg/httpserver"
	"github.com/samuelharden/xapian/pkg/kafka"
	"github.com/samuelharden/xapian/pkg/logger"
	"github.com/samuelharden/xapian/pkg/metrics"
	"github.com/samuelharden/xapian/pkg/middleware"
	"github.com/samuelharden/xapian/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg); err != nil {
		slog.Error("ingestion service failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	log := logger.WithComponent("ingestion")
	m := metrics.New()

	db, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()
	store := publisher.NewPGStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("prepare documents table: %w", err)
	}

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest)
	defer producer.Close()

	checker := health.NewChecker()
	checker.Register("postgres", health.PingCheck(store.Ping, true))

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Metrics(m))
	r.Use(middleware.RateLimit(middleware.NewLimiter(cfg.Server.RateLimit), m))
	r.Use(middleware.Timeout(cfg.Server.WriteTimeout))
	handler.New(publisher.New(store, producer, cfg.Indexer.NumShards)).Routes(r)
	r.Get("/health/live", checker.LiveHandler())
	r.Get("/health/ready", checker.ReadyHandler())

	log.Info("starting", "port", cfg.Server.Port, "topic", cfg.Kafka.Topics.DocumentIngest, "shards", cfg.Indexer.NumShards)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return metrics.Serve(gctx, cfg.Metrics, nil) })
	g.Go(func() error { return httpserver.New("ingestion", cfg.Server, r).Run(gctx) })
	return g.Wait()
}
