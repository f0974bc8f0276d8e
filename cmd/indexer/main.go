// Command indexer consumes ingest events from Kafka and indexes each
// document's terms and bigrams into its shard, flushing shards to
// compressed segments on an interval.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/samuelharden/xapian/internal/analytics/collector"
	"github.com/samuelharden/xapian/internal/indexer/consumer"
	"github.com/samuelharden/xapian/internal/indexer/shard"
	"github.com/samuelharden/xapian/pkg/config"
	"github.com/samuelharden/xapian/pkg/kafka"
	"github.com/samuelharden/xapian/pkg/logger"
	"github.com/samuelharden/xapian/pkg/metrics"
	"github.com/samuelharden/xapian/pkg/postgres"
)

const lagInterval = 15 * time.Second

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
		slog.Error("indexer service failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	log := logger.WithComponent("indexer-service")
	m := metrics.New()

	router, err := shard.NewRouter(cfg.Indexer, cfg.Indexer.NumShards)
	if err != nil {
		return fmt.Errorf("open shards: %w", err)
	}
	defer func() {
		if err := router.Close(); err != nil {
			log.Error("close shards", "error", err)
		}
	}()
	m.ActiveShards.Set(float64(router.NumShards()))
	for _, engine := range router.GetAllEngines() {
		engine.ObserveFlushes(func(err error) {
			status := "ok"
			if err != nil {
				status = "error"
			}
			m.IndexFlushesTotal.WithLabelValues(status).Inc()
		})
		engine.StartFlushLoop(ctx)
	}

	deps := consumer.Deps{Metrics: m}
	if pg, err := postgres.New(ctx, cfg.Postgres); err != nil {
		log.Warn("postgres unavailable, document status tracking disabled", "error", err)
	} else {
		defer pg.Close()
		deps.Status = consumer.SQLStatus{DB: pg.DB}
	}

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
	defer producer.Close()
	events := collector.NewBatchCollector(producer, cfg.Analytics.BatchSize, cfg.Analytics.FlushInterval)
	events.Start(ctx)
	defer func() {
		events.Close()
		log.Info("event collector closed", "events_dropped", events.Dropped())
	}()
	deps.Events = events

	ic := consumer.New(kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest, consumer.HandleMessageSharded(router, deps)))
	ic.WatchLag(ctx, m, lagInterval)

	log.Info("starting",
		"shards", router.NumShards(),
		"topic", cfg.Kafka.Topics.DocumentIngest,
		"group", cfg.Kafka.ConsumerGroup,
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return metrics.Serve(gctx, cfg.Metrics, nil) })
	g.Go(func() error { return ic.Start(gctx) })
	err = g.Wait()

	if ferr := router.FlushAll(); ferr != nil {
		log.Error("final flush failed", "error", ferr)
	}
	return err
}
