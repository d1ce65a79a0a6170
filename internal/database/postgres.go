// Package database provides the PostgreSQL connection factory used by the
// validation audit store.
package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rafaeljc/eapproval/internal/config"
	"github.com/rafaeljc/eapproval/internal/logger"
)

// NewPostgresPool initializes a PostgreSQL connection pool from cfg.
// It retries the initial ping with exponential backoff and returns the pool
// directly, leaving its lifecycle to the caller.
func NewPostgresPool(ctx context.Context, cfg *config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config cannot be nil")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	// MaxConns prevents the app from starving the DB (connection exhaustion).
	// MinConns keeps some connections warm to reduce latency for new requests.
	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.MinConns = int32(cfg.MinConns)
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	maxRetries := max(cfg.PingMaxRetries, 1)
	backoff := cfg.PingBackoff
	log := logger.FromContext(ctx)

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout(cfg.ConnectTimeout))
		pingErr := pool.Ping(pingCtx)
		cancel()

		if pingErr == nil {
			log.Info("postgres ping successful", slog.Int("attempt", attempt))
			return pool, nil
		}

		log.Warn("postgres ping failed", slog.Int("attempt", attempt), slog.Any("error", pingErr))
		lastErr = pingErr
		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				pool.Close()
				return nil, fmt.Errorf("postgres connection aborted: %w", ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}

	pool.Close()
	return nil, fmt.Errorf("failed to connect to postgres after %d retries: %w", maxRetries, lastErr)
}

func pingTimeout(connect time.Duration) time.Duration {
	if connect <= 0 {
		return 5 * time.Second
	}
	return connect
}
