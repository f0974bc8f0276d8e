// Command searcher serves boolean search, bigram query expansion, relevance
// feedback, phrase checks and next-word suggestions over the sharded index.
//
// Usage:
//
//	go run ./cmd/searcher [-config configs/development.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/samuelharden/xapian/internal/analytics"
	"github.com/samuelharden/xapian/internal/indexer/shard"
	"github.com/samuelharden/xapian/internal/searcher/cache"
	"github.com/samuelharden/xapian/internal/searcher/executor"
	"github.com/samuelharden/xapian/internal/searcher/expand"
	"github.com/samuelharden/xapian/internal/searcher/feedback"
	"github.com/samuelharden/xapian/internal/searcher/handler"
	"github.com/samuelharden/xapian/internal/searcher/phrase"
	"github.com/samuelharden/xapian/pkg/config"
	"github.com/samuelharden/xapian/pkg/health"
	"github.com/samuelharden/xapian/pkg/httpserver"
	"github.com/samuelharden/xapian/pkg/kafka"
	"github.com/samuelharden/xapian/pkg/logger"
	"github.com/samuelharden/xapian/pkg/metrics"
	"github.com/samuelharden/xapian/pkg/middleware"
	"github.com/samuelharden/xapian/pkg/postgres"
	pkgredis "github.com/samuelharden/xapian/pkg/redis"
	"github.com/samuelharden/xapian/pkg/resilience"
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
		slog.Error("search service failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	log := logger.WithComponent("searcher")
	m := metrics.New()

	router, err := shard.NewRouter(cfg.Indexer, cfg.Indexer.NumShards)
	if err != nil {
		return fmt.Errorf("open shards: %w", err)
	}
	defer router.Close()
	engines := router.GetAllEngines()
	for _, engine := range engines {
		engine.StartReloadLoop(ctx, cfg.Indexer.ReloadInterval)
	}
	m.ActiveShards.Set(float64(router.NumShards()))

	deps := handler.Deps{
		Executor: executor.NewSharded(engines, executor.WithLimits(cfg.Search)),
		Expander: expand.New(router.BigramSource()),
		Phrases:  phrase.New(router.BigramSource()),
		Metrics:  m,
		Search:   cfg.Search,
		Expand:   cfg.Expand,
		Tracing:  cfg.Tracing,
	}

	checker := health.NewChecker()
	checker.Register("shards", health.PingCheck(func(context.Context) error {
		if router.NumShards() == 0 {
			return errors.New("no shards")
		}
		return nil
	}, true))

	closeCache := wireCache(ctx, cfg, m, checker, &deps)
	defer closeCache()
	closeFeedback := wireFeedback(ctx, cfg, checker, &deps)
	defer closeFeedback()

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
	defer producer.Close()
	events := analytics.NewCollector(producer, cfg.Analytics.BufferSize)
	events.Start(ctx)
	defer func() {
		events.Close()
		log.Info("event collector closed", "events_dropped", events.Dropped())
	}()
	deps.Events = events

	// A single-node deployment serves /api/v1/analytics from the searcher's
	// own event stream, without the analytics service.
	aggCfg := cfg.Kafka
	aggCfg.ConsumerGroup += "-searcher-analytics"
	agg := analytics.NewAggregator(nil)
	agg.SetConsumer(kafka.NewConsumer(aggCfg, cfg.Kafka.Topics.AnalyticsEvents, analytics.HandleEvent(agg)))

	limiter := middleware.NewLimiter(cfg.Server.RateLimit)
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.CORS(middleware.DefaultCORSConfig()), middleware.Metrics(m))
	r.Use(middleware.RateLimit(limiter, m))
	r.Use(middleware.Timeout(cfg.Server.WriteTimeout))
	handler.New(deps).Routes(r)
	analytics.NewHandler(agg, nil).Routes(r)
	r.Get("/health/live", checker.LiveHandler())
	r.Get("/health/ready", checker.ReadyHandler())

	log.Info("starting", "port", cfg.Server.Port, "shards", router.NumShards(), "data_dir", cfg.Indexer.DataDir)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return metrics.Serve(gctx, cfg.Metrics, nil) })
	g.Go(func() error { return httpserver.New("search", cfg.Server, r).Run(gctx) })
	g.Go(func() error {
		if err := agg.Start(gctx); err != nil {
			log.Error("analytics aggregator stopped", "error", err)
		}
		return nil
	})
	g.Go(func() error {
		sweepLimiter(gctx, limiter)
		return nil
	})
	return g.Wait()
}

// wireCache connects the response cache behind a circuit breaker. Without
// Redis the service runs uncached and reports degraded.
func wireCache(ctx context.Context, cfg *config.Config, m *metrics.Metrics, checker *health.Checker, deps *handler.Deps) func() {
	client, err := pkgredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, caching disabled", "error", err)
		checker.Register("redis", health.PingCheck(nil, false))
		return func() {}
	}
	breaker := resilience.NewCircuitBreaker("redis-cache", resilience.CircuitBreakerConfig{
		OnStateChange: func(name string, to resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		},
	})
	checker.Register("redis", health.PingCheck(client.Ping, false))
	checker.Register("redis-breaker", health.BreakerCheck(breaker))
	deps.Cache = cache.New(client, cfg.Redis, breaker)
	deps.Cache.SetTTL(cache.NamespaceExpand, cfg.Expand.CacheTTL)
	slog.Info("response cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
	return func() { _ = client.Close() }
}

// wireFeedback enables relevance feedback when PostgreSQL is reachable.
func wireFeedback(ctx context.Context, cfg *config.Config, checker *health.Checker, deps *handler.Deps) func() {
	pg, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		slog.Warn("postgres unavailable, relevance feedback disabled", "error", err)
		checker.Register("postgres", health.PingCheck(nil, false))
		return func() {}
	}
	store := feedback.NewStore(pg.DB)
	if err := store.EnsureSchema(ctx); err != nil {
		slog.Warn("feedback schema unavailable, relevance feedback disabled", "error", err)
		checker.Register("postgres", health.PingCheck(nil, false))
		return func() { pg.Close() }
	}
	deps.Feedback = store
	checker.Register("postgres", health.PingCheck(pg.Ping, false))
	return func() { pg.Close() }
}

func sweepLimiter(ctx context.Context, l *middleware.Limiter) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.Sweep(); n > 0 {
				slog.Debug("rate limiter swept idle clients", "removed", n)
			}
		}
	}
}
