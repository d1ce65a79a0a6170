// Package approval wires the rule engine to the rest of the service: the
// active ruleset, the result cache, the audit history and the reload
// broadcast. Both the REST and the gRPC front ends call into it.
package approval

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/rafaeljc/eapproval/internal/logger"
	"github.com/rafaeljc/eapproval/internal/observability"
	"github.com/rafaeljc/eapproval/internal/ruleengine"
	"github.com/rafaeljc/eapproval/internal/rulestore"
	"github.com/rafaeljc/eapproval/internal/store"
	"github.com/rafaeljc/eapproval/internal/validation"
)

// ErrAuditDisabled is returned by history queries when no audit storage is configured.
var ErrAuditDisabled = errors.New("validation history is not configured")

const defaultAuditTimeout = 2 * time.Second

// ResultCache is the subset of cache.ResultCache the service needs.
type ResultCache interface {
	Get(key string) (ruleengine.ValidationResponse, bool)
	Set(key string, resp ruleengine.ValidationResponse)
	Purge()
}

// KeyFunc derives the cache key of payload under the ruleset digest.
type KeyFunc func(digest string, payload ruleengine.DocumentPayload) (string, error)

// Broadcaster announces a local reload to peer instances.
type Broadcaster interface {
	Publish(ctx context.Context, version, digest string) error
}

// Options carries the optional collaborators. Nil fields disable the feature.
type Options struct {
	Cache        ResultCache
	CacheKey     KeyFunc
	Audit        store.ValidationRepository
	AuditTimeout time.Duration
	Broadcaster  Broadcaster
}

// Service validates documents against the active ruleset.
type Service struct {
	rules  *rulestore.Store
	engine *ruleengine.Engine
	logger *slog.Logger

	cache        ResultCache
	cacheKey     KeyFunc
	audit        store.ValidationRepository
	auditTimeout time.Duration
	broadcaster  Broadcaster
}

// NewService creates the service. When a cache is given it is purged after
// every ruleset swap.
func NewService(rules *rulestore.Store, engine *ruleengine.Engine, log *slog.Logger, opts Options) *Service {
	validation.AssertNotNil(rules, "rule store")
	validation.AssertNotNil(engine, "rule engine")
	if log == nil {
		log = slog.Default()
	}

	s := &Service{
		rules:        rules,
		engine:       engine,
		logger:       log,
		cache:        opts.Cache,
		cacheKey:     opts.CacheKey,
		audit:        opts.Audit,
		auditTimeout: opts.AuditTimeout,
		broadcaster:  opts.Broadcaster,
	}
	if s.auditTimeout <= 0 {
		s.auditTimeout = defaultAuditTimeout
	}
	if s.cache != nil && s.cacheKey == nil {
		panic("critical error: cache key function cannot be nil when a cache is configured")
	}

	if s.cache != nil {
		rules.OnSwap(func(previous, _ *ruleengine.Ruleset) {
			if previous != nil {
				s.cache.Purge()
			}
		})
	}

	return s
}

// AuditEnabled reports whether validations are recorded.
func (s *Service) AuditEnabled() bool {
	return s.audit != nil
}

// Validate evaluates payload against the active ruleset.
// A failing document is not an error, and neither is an empty or unknown
// doc_type: both are reported as issues. The only error is
// rulestore.ErrNoRuleset.
func (s *Service) Validate(ctx context.Context, payload ruleengine.DocumentPayload) (ruleengine.ValidationResponse, error) {
	rs, err := s.rules.Snapshot()
	if err != nil {
		return ruleengine.ValidationResponse{}, err
	}

	resp, cached := s.evaluate(ctx, rs, payload)

	result := "failed"
	if resp.Passed {
		result = "passed"
	}
	observability.ValidationsTotal.WithLabelValues(metricDocType(rs, payload.DocType), result).Inc()
	for _, rule := range resp.FailedRules() {
		observability.RuleFailuresTotal.WithLabelValues(ruleCategory(rule)).Inc()
	}

	logger.FromContext(ctx).Info("document validated",
		slog.String("doc_no", payload.DocNo),
		slog.String("doc_type", payload.DocType),
		slog.Bool("passed", resp.Passed),
		slog.String("rules_version", resp.RulesVersion),
		slog.Bool("cached", cached),
	)

	s.record(ctx, rs, payload, resp)
	return resp, nil
}

// evaluate serves from the cache when possible. It reports whether the
// response came from the cache.
func (s *Service) evaluate(ctx context.Context, rs *ruleengine.Ruleset, payload ruleengine.DocumentPayload) (ruleengine.ValidationResponse, bool) {
	var key string
	if s.cache != nil {
		k, err := s.cacheKey(rs.Digest, payload)
		if err != nil {
			logger.FromContext(ctx).Warn("skipping result cache", slog.String("error", err.Error()))
		} else {
			key = k
			if resp, ok := s.cache.Get(key); ok {
				return resp, true
			}
		}
	}

	start := time.Now()
	resp := s.engine.Validate(rs, payload)
	observability.ValidationDuration.Observe(time.Since(start).Seconds())

	if key != "" {
		s.cache.Set(key, resp)
	}
	return resp, false
}

// record writes the audit entry. Failures are logged and counted, never
// returned: the validation result is already decided.
func (s *Service) record(ctx context.Context, rs *ruleengine.Ruleset, payload ruleengine.DocumentPayload, resp ruleengine.ValidationResponse) {
	if s.audit == nil {
		return
	}

	// The caller may cancel as soon as the response is written.
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.auditTimeout)
	defer cancel()

	rec := store.NewValidationRecord(logger.RequestIDFromContext(ctx), rs.Digest, payload, resp)
	if err := s.audit.RecordValidation(auditCtx, rec); err != nil {
		observability.AuditWriteErrors.Inc()
		logger.FromContext(ctx).Error("failed to record validation",
			slog.String("doc_no", payload.DocNo),
			slog.String("error", err.Error()),
		)
	}
}

// Metadata describes the active ruleset.
func (s *Service) Metadata() (ruleengine.Metadata, error) {
	rs, err := s.rules.Snapshot()
	if err != nil {
		return ruleengine.Metadata{}, err
	}
	return rs.Metadata(), nil
}

// Options returns the UI option lists of the active ruleset.
func (s *Service) Options() (ruleengine.Options, error) {
	rs, err := s.rules.Snapshot()
	if err != nil {
		return ruleengine.Options{}, err
	}
	return rs.Options(), nil
}

// Reload re-reads the ruleset and, on success, tells peer instances.
// Load errors are returned unchanged so callers can map them with errors.Is.
func (s *Service) Reload(ctx context.Context, trigger rulestore.Trigger) (string, error) {
	version, err := s.rules.Reload(ctx, trigger)
	if err != nil {
		return "", err
	}

	if s.broadcaster != nil {
		rs := s.rules.Current()
		if err := s.broadcaster.Publish(ctx, rs.Version, rs.Digest); err != nil {
			// Peers still converge through their own watcher.
			logger.FromContext(ctx).Warn("failed to broadcast ruleset reload",
				slog.String("version", version),
				slog.String("error", err.Error()),
			)
		}
	}

	return version, nil
}

// History lists audit records, newest first.
func (s *Service) History(ctx context.Context, filter store.ListFilter, limit, offset int) ([]*store.ValidationRecord, int64, error) {
	if s.audit == nil {
		return nil, 0, ErrAuditDisabled
	}
	return s.audit.ListValidations(ctx, filter, limit, offset)
}

// Record returns one audit record.
func (s *Service) Record(ctx context.Context, id int64) (*store.ValidationRecord, error) {
	if s.audit == nil {
		return nil, ErrAuditDisabled
	}
	return s.audit.GetValidation(ctx, id)
}

// ruleCategory maps a rule identifier to its metric label: the part before
// the first "::" (e.g. "attachment::EXR::quote" -> "attachment").
func ruleCategory(rule string) string {
	category, _, _ := strings.Cut(rule, "::")
	return category
}

// metricDocType bounds label cardinality: unknown doc types share one label.
func metricDocType(rs *ruleengine.Ruleset, docType string) string {
	if rs.KnowsDocType(docType) {
		return docType
	}
	return "unknown"
}
