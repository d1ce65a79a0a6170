package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// HealthChecker implements the observability.Checker interface for the
// Redis connection behind the reload bus.
type HealthChecker struct {
	client *redis.Client
}

// NewHealthChecker creates a new health checker for the given Redis client.
func NewHealthChecker(client *redis.Client) *HealthChecker {
	return &HealthChecker{client: client}
}

// Name returns the component name.
func (h *HealthChecker) Name() string {
	return "redis"
}

// Check pings Redis with a one second deadline.
func (h *HealthChecker) Check(ctx context.Context) error {
	if h.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	return h.client.Ping(ctx).Err()
}
