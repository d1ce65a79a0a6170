package rulestore

import "context"

// HealthChecker reports the store as down until a ruleset is active.
// It satisfies observability.Checker.
type HealthChecker struct {
	store *Store
}

// NewHealthChecker creates a readiness checker for store.
func NewHealthChecker(store *Store) *HealthChecker {
	return &HealthChecker{store: store}
}

// Name returns the component name.
func (h *HealthChecker) Name() string {
	return "ruleset"
}

// Check fails with ErrNoRuleset before the first successful load.
func (h *HealthChecker) Check(_ context.Context) error {
	_, err := h.store.Snapshot()
	return err
}
