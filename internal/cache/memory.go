package cache

import (
	"context"
	"time"

	"github.com/maypok86/otter"

	"github.com/rafaeljc/eapproval/internal/observability"
	"github.com/rafaeljc/eapproval/internal/ruleengine"
)

// ResultCache is the L1 cache of validation responses, backed by otter (S3-FIFO).
// Keys embed the ruleset digest, so a stale entry can never be served for a
// newer ruleset; Purge only releases memory early.
type ResultCache struct {
	store otter.Cache[string, ruleengine.ValidationResponse]
}

// NewResultCache initializes the in-memory cache.
// capacity: max number of entries (hard cap to prevent OOM).
// ttl: lifetime of an entry.
func NewResultCache(capacity int, ttl time.Duration) (*ResultCache, error) {
	cache, err := otter.MustBuilder[string, ruleengine.ValidationResponse](capacity).
		CollectStats().
		WithTTL(ttl).
		Build()
	if err != nil {
		return nil, err
	}

	return &ResultCache{store: cache}, nil
}

// Get returns a copy of the cached response for key.
func (c *ResultCache) Get(key string) (ruleengine.ValidationResponse, bool) {
	resp, ok := c.store.Get(key)
	if !ok {
		observability.CacheMisses.Inc()
		return ruleengine.ValidationResponse{}, false
	}
	observability.CacheHits.Inc()
	return resp, true
}

// Set stores resp under key. Responses are never mutated after evaluation,
// so the issue slice is shared with the caller.
func (c *ResultCache) Set(key string, resp ruleengine.ValidationResponse) {
	c.store.Set(key, resp)
}

// Purge drops every entry. It runs after each ruleset swap.
func (c *ResultCache) Purge() {
	c.store.Clear()
	observability.CachePurges.Inc()
	observability.CacheUsage.Set(0)
}

// Len returns the current number of entries.
func (c *ResultCache) Len() int {
	return c.store.Size()
}

// RunMetricsCollector publishes size and eviction metrics every interval
// until ctx is cancelled.
func (c *ResultCache) RunMetricsCollector(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastEvicted int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			observability.CacheUsage.Set(float64(c.store.Size()))

			evicted := c.store.Stats().EvictedCount()
			if delta := evicted - lastEvicted; delta > 0 {
				observability.CacheEvictions.Add(float64(delta))
			}
			lastEvicted = evicted
		}
	}
}

// Close shuts down the cache and its background cleanup goroutines.
func (c *ResultCache) Close() {
	c.store.Close()
}
