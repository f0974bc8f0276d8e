// Command analytics aggregates search, expansion, suggestion and indexing
// events from Kafka, persists periodic snapshots to PostgreSQL and serves
// them at /api/v1/analytics.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml]
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

	"github.com/samuelharden/xapian/internal/analytics"
	"github.com/samuelharden/xapian/internal/analytics/aggregator"
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
		slog.Error("analytics service failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	log := logger.WithComponent("analytics-service")
	m := metrics.New()

	kafkaCfg := cfg.Kafka
	kafkaCfg.ConsumerGroup += "-analytics"
	agg := analytics.NewAggregator(nil)
	agg.SetConsumer(kafka.NewConsumer(kafkaCfg, cfg.Kafka.Topics.AnalyticsEvents, analytics.HandleEvent(agg)))

	checker := health.NewChecker()
	var snapshots analytics.SnapshotLoader
	var pgPing func(context.Context) error
	if pg, err := postgres.New(ctx, cfg.Postgres); err != nil {
		log.Warn("postgres unavailable, snapshots disabled", "error", err)
	} else {
		defer pg.Close()
		store := aggregator.NewStore(pg, cfg.Analytics.SnapshotRetention)
		if err := store.EnsureSchema(ctx); err != nil {
			log.Warn("snapshot schema unavailable, snapshots disabled", "error", err)
		} else {
			store.StartPeriodicSave(ctx, agg, cfg.Analytics.SnapshotInterval)
			snapshots = store
			pgPing = pg.Ping
		}
	}
	checker.Register("postgres", health.PingCheck(pgPing, false))

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.CORS(middleware.DefaultCORSConfig()), middleware.Metrics(m))
	r.Use(middleware.Timeout(cfg.Server.WriteTimeout))
	analytics.NewHandler(agg, snapshots).Routes(r)
	r.Get("/health/live", checker.LiveHandler())
	r.Get("/health/ready", checker.ReadyHandler())

	log.Info("starting", "port", cfg.Server.Port, "topic", cfg.Kafka.Topics.AnalyticsEvents, "group", kafkaCfg.ConsumerGroup)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return metrics.Serve(gctx, cfg.Metrics, nil) })
	g.Go(func() error { return httpserver.New("analytics", cfg.Server, r).Run(gctx) })
	g.Go(func() error { return agg.Start(gctx) })
	return g.Wait()
}
