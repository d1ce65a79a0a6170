// Package rulestore owns the active compiled ruleset.
//
// Readers take a snapshot with Current and keep using it for the whole
// validation; reloads compile a fresh Ruleset and publish it with a single
// atomic pointer swap. A failed reload leaves the previous ruleset active.
package rulestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/rafaeljc/eapproval/internal/observability"
	"github.com/rafaeljc/eapproval/internal/ruleengine"
)

// ErrNoRuleset is returned when no ruleset has been loaded yet.
var ErrNoRuleset = errors.New("no ruleset loaded")

// Trigger names what caused a reload. It labels metrics and logs.
type Trigger string

const (
	TriggerStartup   Trigger = "startup"
	TriggerAPI       Trigger = "api"
	TriggerWatch     Trigger = "watch"
	TriggerBroadcast Trigger = "broadcast"
	TriggerCLI       Trigger = "cli"
)

// SwapFunc observes a ruleset swap. previous is nil on the first load.
type SwapFunc func(previous, current *ruleengine.Ruleset)

// Store holds the active ruleset.
type Store struct {
	source Source
	logger *slog.Logger

	current atomic.Pointer[ruleengine.Ruleset]

	// reloadMu serializes reloads so an older read never overwrites a newer one.
	reloadMu sync.Mutex

	hooksMu sync.RWMutex
	hooks   []SwapFunc
}

// New creates a Store reading from source. Nothing is loaded until Reload.
func New(source Source, logger *slog.Logger) *Store {
	if source == nil {
		panic("rulestore: source cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{source: source, logger: logger}
}

// SourceName returns the name of the underlying source.
func (s *Store) SourceName() string {
	return s.source.Name()
}

// OnSwap registers fn to run after every successful swap, in registration order.
func (s *Store) OnSwap(fn SwapFunc) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// Current returns the active ruleset, or nil before the first successful load.
func (s *Store) Current() *ruleengine.Ruleset {
	return s.current.Load()
}

// Snapshot returns the active ruleset or ErrNoRuleset.
func (s *Store) Snapshot() (*ruleengine.Ruleset, error) {
	rs := s.current.Load()
	if rs == nil {
		return nil, ErrNoRuleset
	}
	return rs, nil
}

// Load reads and compiles the ruleset without installing it.
// It honours ctx cancellation; compile errors are the typed ruleengine errors.
func (s *Store) Load(ctx context.Context) (*ruleengine.Ruleset, error) {
	raw, err := s.source.Read(ctx)
	if err != nil {
		return nil, err
	}
	return compile(ctx, raw)
}

// Reload loads the ruleset and makes it active. It returns the new version.
// On failure the previous ruleset stays active.
func (s *Store) Reload(ctx context.Context, trigger Trigger) (string, error) {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	rs, err := s.Load(ctx)
	if err != nil {
		observability.RulesetReloadsTotal.WithLabelValues(string(trigger), "fail").Inc()
		s.logger.Error("ruleset reload failed",
			slog.String("source", s.source.Name()),
			slog.String("trigger", string(trigger)),
			slog.String("error", err.Error()),
		)
		return "", err
	}

	s.install(rs, trigger)
	return rs.Version, nil
}

// ReloadIfChanged reloads only when the source bytes differ from the active
// ruleset. It reports whether a new ruleset was installed.
func (s *Store) ReloadIfChanged(ctx context.Context, trigger Trigger) (bool, error) {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	raw, err := s.source.Read(ctx)
	if err != nil {
		observability.RulesetReloadsTotal.WithLabelValues(string(trigger), "fail").Inc()
		return false, err
	}

	if active := s.current.Load(); active != nil && active.Digest == digest(raw) {
		observability.RulesetReloadsTotal.WithLabelValues(string(trigger), "unchanged").Inc()
		return false, nil
	}

	rs, err := compile(ctx, raw)
	if err != nil {
		observability.RulesetReloadsTotal.WithLabelValues(string(trigger), "fail").Inc()
		return false, err
	}

	s.install(rs, trigger)
	return true, nil
}

func (s *Store) install(rs *ruleengine.Ruleset, trigger Trigger) {
	previous := s.current.Swap(rs)

	observability.RulesetReloadsTotal.WithLabelValues(string(trigger), "success").Inc()
	observability.RulesetInfo.Reset()
	observability.RulesetInfo.WithLabelValues(rs.Version, rs.Digest).Set(1)
	observability.RulesetRules.WithLabelValues("approval").Set(float64(len(rs.ApprovalRules)))
	observability.RulesetRules.WithLabelValues("attachment").Set(float64(len(rs.AttachmentRequirements)))
	observability.RulesetRules.WithLabelValues("risk").Set(float64(len(rs.RiskRules)))

	s.logger.Info("ruleset activated",
		slog.String("source", s.source.Name()),
		slog.String("trigger", string(trigger)),
		slog.String("version", rs.Version),
		slog.String("digest", rs.Digest),
		slog.Int("approval_rules", len(rs.ApprovalRules)),
	)

	s.hooksMu.RLock()
	hooks := append([]SwapFunc(nil), s.hooks...)
	s.hooksMu.RUnlock()

	for _, hook := range hooks {
		hook(previous, rs)
	}
}

// compile runs ruleengine.Compile but gives up when ctx is done first.
// The abandoned compile finishes in the background and is discarded.
func compile(ctx context.Context, raw []byte) (*ruleengine.Ruleset, error) {
	type result struct {
		rs  *ruleengine.Ruleset
		err error
	}

	done := make(chan result, 1)
	go func() {
		rs, err := ruleengine.Compile(raw)
		done <- result{rs: rs, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("ruleset compile aborted: %w", ctx.Err())
	case r := <-done:
		return r.rs, r.err
	}
}

func digest(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
