package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// HealthChecker implements the observability.Checker interface for PostgreSQL.
type HealthChecker struct {
	pool *pgxpool.Pool
}

// NewHealthChecker creates a new health checker for the given database connection.
func NewHealthChecker(pool *pgxpool.Pool) *HealthChecker {
	return &HealthChecker{pool: pool}
}

// Name returns the component name.
func (h *HealthChecker) Name() string {
	return "postgres"
}

// Check pings the pool with a short deadline so a hung database cannot
// stall the readiness probe.
func (h *HealthChecker) Check(ctx context.Context) error {
	if h.pool == nil {
		return fmt.Errorf("database connection is nil")
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return h.pool.Ping(ctx)
}
