package testsupport

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/rafaeljc/eapproval/internal/cache"
	"github.com/rafaeljc/eapproval/internal/config"
)

// RedisContainer holds references to the ephemeral Redis instance.
type RedisContainer struct {
	Container testcontainers.Container
	// Client is built through the application factory (cache.NewRedisClient).
	Client *goredis.Client
	// Config is the configuration the client was built from.
	Config *config.RedisConfig
}

// Terminate cleans up the container and closes the client.
func (c *RedisContainer) Terminate(ctx context.Context) error {
	_ = c.Client.Close()
	return c.Container.Terminate(ctx)
}

// StartRedisContainer spins up a Redis 7-alpine container.
func StartRedisContainer(ctx context.Context) (*RedisContainer, error) {
	redisContainer, err := redis.Run(ctx, "redis:7-alpine")
	if err != nil {
		return nil, fmt.Errorf("failed to start redis container: %w", err)
	}

	endpoint, err := redisContainer.PortEndpoint(ctx, "6379/tcp", "")
	if err != nil {
		return nil, fmt.Errorf("failed to get redis endpoint: %w", err)
	}

	// Parse host:port from endpoint (e.g., "localhost:54321")
	host, port, _ := strings.Cut(endpoint, ":")

	testCfg := &config.RedisConfig{
		Host:           host,
		Port:           port,
		PoolSize:       5,
		DialTimeout:    5 * time.Second,
		PingMaxRetries: 5,
		PingBackoff:    2 * time.Second,
		ReloadChannel:  "eapproval:rules:reloaded",
	}
	client, err := cache.NewRedisClient(ctx, testCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}

	return &RedisContainer{
		Container: redisContainer,
		Client:    client,
		Config:    testCfg,
	}, nil
}
