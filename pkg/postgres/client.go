// Package postgres opens the shared lib/pq connection pool.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/samuelharden/xapian/pkg/config"
	"github.com/samuelharden/xapian/pkg/resilience"
)

// authFailureClass is the SQLSTATE class of invalid authorization; retrying
// a bad password only delays the failure.
const authFailureClass = "28"

type Client struct {
	DB            *sql.DB
	ServerVersion string
}

// New opens the pool and retries the first round trip with backoff. A
// rejected login is not retried.
func New(ctx context.Context, cfg config.PostgresConfig) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	version, err := resilience.RetryValue(ctx, "postgres-connect", resilience.RetryConfig{MaxAttempts: 3}, func() (string, error) {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		var v string
		err := db.QueryRowContext(pingCtx, "SHOW server_version").Scan(&v)
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Class() == authFailureClass {
			return "", resilience.Permanent(err)
		}
		return v, err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	slog.Info("postgres connected", "host", cfg.Host, "database", cfg.Database, "server_version", version)
	return &Client{DB: db, ServerVersion: version}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

func (c *Client) Close() error {
	return c.DB.Close()
}

// InTx runs fn in a transaction, committing on success and rolling back
// when fn fails.
func (c *Client) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rolling back transaction after error %v: %w", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}
