package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rafaeljc/eapproval/internal/observability"
)

// RunPoolMonitor samples pool statistics every interval until ctx is done.
// pgx exposes cumulative counters, so only the delta since the previous
// sample is added to the Prometheus counters.
func RunPoolMonitor(ctx context.Context, pool *pgxpool.Pool, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var (
		lastAcquires int64
		lastWaits    int64
		lastDuration time.Duration
	)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stat := pool.Stat()

			observability.DBPoolConnections.WithLabelValues("total").Set(float64(stat.TotalConns()))
			observability.DBPoolConnections.WithLabelValues("idle").Set(float64(stat.IdleConns()))
			observability.DBPoolConnections.WithLabelValues("in_use").Set(float64(stat.AcquiredConns()))
			observability.DBPoolConnections.WithLabelValues("max").Set(float64(stat.MaxConns()))

			if d := stat.AcquireCount() - lastAcquires; d > 0 {
				observability.DBPoolAcquireCount.Add(float64(d))
			}
			if d := stat.EmptyAcquireCount() - lastWaits; d > 0 {
				observability.DBPoolWaitCount.Add(float64(d))
			}
			if d := stat.AcquireDuration() - lastDuration; d > 0 {
				observability.DBPoolAcquireDuration.Add(d.Seconds())
			}

			lastAcquires = stat.AcquireCount()
			lastWaits = stat.EmptyAcquireCount()
			lastDuration = stat.AcquireDuration()
		}
	}
}
