// Package aggregator persists periodic snapshots of the analytics
// aggregator to PostgreSQL so that dashboards survive restarts.
package aggregator

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/samuelharden/xapian/internal/analytics"
	"github.com/samuelharden/xapian/pkg/postgres"
)

const (
	createSnapshots = `
CREATE TABLE IF NOT EXISTS analytics_snapshots (
    id          BIGSERIAL PRIMARY KEY,
    data        JSONB NOT NULL,
    captured_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS analytics_snapshots_captured_at ON analytics_snapshots (captured_at DESC);`

	insertSnapshot = `INSERT INTO analytics_snapshots (data, captured_at) VALUES ($1, $2)`
	pruneSnapshots = `DELETE FROM analytics_snapshots WHERE captured_at < $1`
	latestSnapshot = `SELECT data FROM analytics_snapshots ORDER BY captured_at DESC LIMIT 1`

	defaultRetention = 7 * 24 * time.Hour
	finalSaveTimeout = 5 * time.Second
)

// Store keeps a rolling window of stats snapshots. Each save prunes what
// has aged past the retention window in the same transaction.
type Store struct {
	db        *postgres.Client
	retention time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

func NewStore(db *postgres.Client, retention time.Duration) *Store {
	if retention <= 0 {
		retention = defaultRetention
	}
	return &Store{
		db:        db,
		retention: retention,
		now:       time.Now,
		logger:    slog.Default().With("component", "analytics-store"),
	}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.DB.ExecContext(ctx, createSnapshots); err != nil {
		return fmt.Errorf("create analytics_snapshots: %w", err)
	}
	return nil
}

func (s *Store) SaveSnapshot(ctx context.Context, stats analytics.AggregatedStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	at := s.now().UTC()
	var pruned int64
	err = s.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, insertSnapshot, data, at); err != nil {
			return fmt.Errorf("insert snapshot: %w", err)
		}
		res, err := tx.ExecContext(ctx, pruneSnapshots, at.Add(-s.retention))
		if err != nil {
			return fmt.Errorf("prune snapshots: %w", err)
		}
		pruned, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Debug("snapshot saved",
		"searches", stats.TotalSearches,
		"expansions", stats.TotalExpansions,
		"docs_indexed", stats.TotalDocIndexed,
		"pruned", pruned,
	)
	return nil
}

// LatestSnapshot loads the most recent snapshot, or nil when there is none.
func (s *Store) LatestSnapshot(ctx context.Context) (*analytics.AggregatedStats, error) {
	var data []byte
	switch err := s.db.DB.QueryRowContext(ctx, latestSnapshot).Scan(&data); {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("load latest snapshot: %w", err)
	}
	var stats analytics.AggregatedStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &stats, nil
}

// StartPeriodicSave snapshots agg every interval in the background. When
// ctx ends it saves once more under a short deadline of its own.
func (s *Store) StartPeriodicSave(ctx context.Context, agg *analytics.Aggregator, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	s.logger.Info("periodic snapshots enabled", "interval", interval, "retention", s.retention)
	go s.run(ctx, agg.Stats, interval)
}

func (s *Store) run(ctx context.Context, stats func() analytics.AggregatedStats, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.SaveSnapshot(ctx, stats()); err != nil {
				s.logger.Error("periodic snapshot failed", "error", err)
			}
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalSaveTimeout)
			defer cancel()
			if err := s.SaveSnapshot(final, stats()); err != nil {
				s.logger.Error("final snapshot failed", "error", err)
			}
			return
		}
	}
}
