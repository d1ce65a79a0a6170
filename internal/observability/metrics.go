package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// NOTE: All metrics are registered globally on the default registry, so
// the offline CLI commands also register them (with zero values). They are
// only exposed by "serve".

// namespace defines the global prefix for all metrics (e.g., eapproval_...).
const namespace = "eapproval"

// lowLatencyBuckets covers in-memory validation, which runs well below the
// 5ms first bucket of prometheus.DefBuckets. Range: 100µs to 500ms.
var lowLatencyBuckets = []float64{.0001, .00025, .0005, .001, .002, .005, .010, .025, .050, .100, .500}

var (
	// -------------------------------------------------------------------------
	// REST API (HTTP)
	// -------------------------------------------------------------------------

	// HTTPReqDuration measures the latency of HTTP requests by route pattern.
	// Metric: eapproval_http_handling_seconds
	HTTPReqDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "handling_seconds",
		Help:      "Time taken to handle HTTP requests",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	// HTTPReqTotal counts HTTP requests by route pattern and status code.
	// Metric: eapproval_http_requests_total
	HTTPReqTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests",
	}, []string{"method", "route", "code"})

	// -------------------------------------------------------------------------
	// gRPC API
	// -------------------------------------------------------------------------

	// GrpcDuration measures the latency of gRPC requests.
	// Metric: eapproval_grpc_handling_seconds
	GrpcDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "grpc",
		Name:      "handling_seconds",
		Help:      "Time taken to handle gRPC requests",
		Buckets:   lowLatencyBuckets,
	}, []string{"method", "code"})

	// GrpcTotal counts gRPC requests by method and status code.
	// Metric: eapproval_grpc_requests_total
	GrpcTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "grpc",
		Name:      "requests_total",
		Help:      "Total gRPC requests",
	}, []string{"method", "code"})

	// -------------------------------------------------------------------------
	// VALIDATION
	// -------------------------------------------------------------------------

	// ValidationDuration measures rule evaluation time (cache misses only).
	ValidationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "validation",
		Name:      "evaluation_seconds",
		Help:      "Time taken to evaluate a document against the ruleset",
		Buckets:   lowLatencyBuckets,
	})

	// ValidationsTotal counts validated documents by outcome and doc type.
	ValidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "validation",
		Name:      "documents_total",
		Help:      "Total validated documents",
	}, []string{"doc_type", "result"}) // result: passed, failed

	// RuleFailuresTotal counts failing issues per rule category.
	// The category is the identifier prefix (e.g. "attachment") to bound cardinality.
	RuleFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "validation",
		Name:      "rule_failures_total",
		Help:      "Total failing issues by rule category",
	}, []string{"category"})

	// AuditWriteErrors counts validation records that could not be stored.
	AuditWriteErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "validation",
		Name:      "audit_write_errors_total",
		Help:      "Total validation records that failed to persist",
	})

	// --- Result Cache L1 Metrics (Otter) ---

	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "validation",
		Name:      "l1_cache_hits_total",
		Help:      "Total L1 result cache hits (in-memory)",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "validation",
		Name:      "l1_cache_misses_total",
		Help:      "Total L1 result cache misses",
	})

	// CacheUsage reports item count; S3-FIFO (Otter) tracks entries, not bytes.
	CacheUsage = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "validation",
		Name:      "l1_cache_items_count",
		Help:      "Current number of items in the L1 result cache",
	})

	CacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "validation",
		Name:      "l1_cache_evictions_total",
		Help:      "Total L1 result cache evictions due to capacity",
	})

	// CachePurges counts full cache clears triggered by ruleset reloads.
	CachePurges = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "validation",
		Name:      "l1_cache_purges_total",
		Help:      "Total L1 result cache purges caused by ruleset reloads",
	})

	// -------------------------------------------------------------------------
	// DATABASE CONNECTION POOL (audit storage)
	// -------------------------------------------------------------------------

	// DBPoolConnections reports pgx pool connections by state (total, idle, in_use, max).
	DBPoolConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "database",
		Name:      "pool_connections",
		Help:      "PostgreSQL pool connections by state",
	}, []string{"state"})

	DBPoolAcquireCount = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "database",
		Name:      "pool_acquire_count_total",
		Help:      "Total successful connection acquisitions",
	})

	DBPoolAcquireDuration = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "database",
		Name:      "pool_acquire_duration_seconds_total",
		Help:      "Cumulative time spent acquiring connections",
	})

	DBPoolWaitCount = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "database",
		Name:      "pool_wait_count_total",
		Help:      "Total acquisitions that had to wait for a free connection",
	})

	// -------------------------------------------------------------------------
	// REDIS CONNECTION POOL
	// -------------------------------------------------------------------------

	// RedisPoolConnections reports pool connections by state (total, idle, stale).
	RedisPoolConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "redis",
		Name:      "pool_connections",
		Help:      "Redis pool connections by state",
	}, []string{"state"})

	RedisPoolHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "redis",
		Name:      "pool_hits_total",
		Help:      "Times a free connection was found in the pool",
	})

	RedisPoolMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "redis",
		Name:      "pool_misses_total",
		Help:      "Times a new connection had to be dialed",
	})

	RedisPoolTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "redis",
		Name:      "pool_timeouts_total",
		Help:      "Times a wait for a pooled connection timed out",
	})

	// -------------------------------------------------------------------------
	// RULESET
	// -------------------------------------------------------------------------

	// RulesetReloadsTotal counts reload attempts.
	// Metric: eapproval_ruleset_reloads_total
	RulesetReloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ruleset",
		Name:      "reloads_total",
		Help:      "Total ruleset reload attempts",
	}, []string{"trigger", "status"}) // trigger: startup, api, watch, broadcast, cli; status: success, fail, unchanged

	// RulesetInfo is 1 for the active ruleset version and digest.
	RulesetInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ruleset",
		Name:      "info",
		Help:      "Active ruleset (value is always 1)",
	}, []string{"version", "digest"})

	// RulesetRules reports the number of compiled rules by kind.
	RulesetRules = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ruleset",
		Name:      "rules_count",
		Help:      "Number of rules in the active ruleset",
	}, []string{"kind"}) // approval, attachment, risk

	// RulesetBroadcasts counts reload events published to or received from peers.
	RulesetBroadcasts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ruleset",
		Name:      "broadcasts_total",
		Help:      "Total reload events exchanged through Redis Pub/Sub",
	}, []string{"direction", "status"}) // direction: published, received; status: success, error, invalid, self
)
