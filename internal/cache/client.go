package cache

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rafaeljc/eapproval/internal/config"
	"github.com/rafaeljc/eapproval/internal/logger"
)

// NewRedisClient initializes the Redis client used for reload broadcasting.
// It handles connection pooling, TLS, and initial connectivity checks with retries.
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}

	opts, err := clientOptions(cfg)
	if err != nil {
		return nil, err
	}

	// Configure TLS if enabled
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	client := redis.NewClient(opts)

	// Retry ping with exponential backoff
	maxRetries := max(cfg.PingMaxRetries, 1)
	backoff := cfg.PingBackoff
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	var lastErr error
	log := logger.FromContext(ctx)

	for attempt := 1; attempt <= maxRetries; attempt++ {
		log.Info("redis ping attempt", slog.Int("attempt", attempt), slog.Int("max_retries", maxRetries))

		initCtx, cancel := context.WithTimeout(ctx, timeout)
		pingErr := client.Ping(initCtx).Err()
		cancel()

		if pingErr == nil {
			log.Info("redis ping successful", slog.Int("attempt", attempt))
			return client, nil
		}

		log.Warn("redis ping failed", slog.Int("attempt", attempt), slog.Any("error", pingErr))
		lastErr = pingErr
		if attempt < maxRetries {
			log.Info("redis waiting before next attempt", slog.Duration("backoff", backoff))
			select {
			case <-ctx.Done():
				_ = client.Close()
				return nil, fmt.Errorf("redis connection aborted: %w", ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}

	_ = client.Close()
	return nil, fmt.Errorf("failed to connect to redis after %d retries: %w", maxRetries, lastErr)
}

// clientOptions maps cfg onto go-redis options. A URL takes precedence over
// the individual host fields.
func clientOptions(cfg *config.RedisConfig) (*redis.Options, error) {
	opts := &redis.Options{
		Addr:     cfg.Address(),
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis URL: %w", err)
		}
		opts = parsed
	}

	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.PoolTimeout = cfg.PoolTimeout
	opts.MaxRetries = cfg.MaxRetries
	opts.MinRetryBackoff = cfg.MinRetryBackoff
	opts.MaxRetryBackoff = cfg.MaxRetryBackoff

	return opts, nil
}
