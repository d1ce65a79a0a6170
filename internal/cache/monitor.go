package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rafaeljc/eapproval/internal/observability"
)

// RunPoolMonitor samples the go-redis pool every interval until ctx is done.
// Hits, misses and timeouts are cumulative in PoolStats, so only deltas are
// added to the counters.
func RunPoolMonitor(ctx context.Context, client *redis.Client, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastHits, lastMisses, lastTimeouts uint32

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := client.PoolStats()

			observability.RedisPoolConnections.WithLabelValues("total").Set(float64(stats.TotalConns))
			observability.RedisPoolConnections.WithLabelValues("idle").Set(float64(stats.IdleConns))
			observability.RedisPoolConnections.WithLabelValues("stale").Set(float64(stats.StaleConns))

			if stats.Hits > lastHits {
				observability.RedisPoolHits.Add(float64(stats.Hits - lastHits))
			}
			if stats.Misses > lastMisses {
				observability.RedisPoolMisses.Add(float64(stats.Misses - lastMisses))
			}
			if stats.Timeouts > lastTimeouts {
				observability.RedisPoolTimeouts.Add(float64(stats.Timeouts - lastTimeouts))
			}

			lastHits, lastMisses, lastTimeouts = stats.Hits, stats.Misses, stats.Timeouts
		}
	}
}
