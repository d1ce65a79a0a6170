// Package syncer keeps the active ruleset of this instance in step with its
// source. A watcher polls the ruleset file and reloads it when its digest
// changes; a listener reloads as soon as a peer instance announces a reload
// over the Redis reload bus.
package syncer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rafaeljc/eapproval/internal/cache"
	"github.com/rafaeljc/eapproval/internal/ruleengine"
	"github.com/rafaeljc/eapproval/internal/rulestore"
)

const (
	defaultWatchInterval  = 10 * time.Second
	defaultResubscribeGap = 5 * time.Second
)

// Config holds the configuration for the Syncer service.
type Config struct {
	// WatchEnabled turns the file watcher on.
	WatchEnabled bool

	// WatchInterval is the duration between digest checks (polling).
	WatchInterval time.Duration

	// ResubscribeDelay is the pause before re-subscribing after the bus
	// connection is lost.
	ResubscribeDelay time.Duration
}

// Rules is the part of rulestore.Store the syncer drives.
type Rules interface {
	Current() *ruleengine.Ruleset
	ReloadIfChanged(ctx context.Context, trigger rulestore.Trigger) (bool, error)
}

// Subscriber delivers reload events published by peer instances.
type Subscriber interface {
	Subscribe(ctx context.Context, ready chan<- struct{}, handler cache.ReloadHandler) error
}

// Service orchestrates the watcher and the broadcast listener.
type Service struct {
	logger *slog.Logger
	config Config
	rules  Rules
	bus    Subscriber

	subscribed chan struct{}
	readyOnce  sync.Once
}

// New creates a new Syncer service. bus may be nil when Redis is not
// configured; the watcher then is the only way reloads propagate.
func New(logger *slog.Logger, cfg Config, rules Rules, bus Subscriber) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if rules == nil {
		panic("syncer: rule store cannot be nil")
	}

	if cfg.WatchInterval <= 0 {
		cfg.WatchInterval = defaultWatchInterval
	}
	if cfg.ResubscribeDelay <= 0 {
		cfg.ResubscribeDelay = defaultResubscribeGap
	}

	return &Service{
		logger:     logger,
		config:     cfg,
		rules:      rules,
		bus:        bus,
		subscribed: make(chan struct{}),
	}
}

// Subscribed is closed once the first bus subscription is confirmed.
func (s *Service) Subscribed() <-chan struct{} {
	return s.subscribed
}

// Run starts the workers. It blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	if s.bus != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.listen(ctx)
		}()
	}

	if s.config.WatchEnabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.watch(ctx)
		}()
	}

	<-ctx.Done()
	wg.Wait()
	s.logger.Info("syncer service stopped")
	return nil
}

// watch polls the ruleset source until ctx is cancelled.
func (s *Service) watch(ctx context.Context) {
	s.logger.Info("starting ruleset watcher", slog.String("interval", s.config.WatchInterval.String()))

	ticker := time.NewTicker(s.config.WatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Errors are already logged and counted by the store; the
			// previous ruleset stays active and the next tick retries.
			if _, err := s.rules.ReloadIfChanged(ctx, rulestore.TriggerWatch); err != nil && ctx.Err() == nil {
				s.logger.Warn("ruleset watch cycle failed", slog.String("error", err.Error()))
			}
		}
	}
}

// listen keeps a bus subscription open until ctx is cancelled.
func (s *Service) listen(ctx context.Context) {
	for {
		attempt := make(chan struct{})
		done := make(chan struct{})
		go func() {
			select {
			case <-attempt:
				s.markSubscribed()
			case <-done:
			}
		}()

		err := s.bus.Subscribe(ctx, attempt, s.onReloadEvent)
		close(done)
		select {
		case <-attempt:
			s.markSubscribed()
		default:
		}

		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.logger.Error("reload bus subscription failed", slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.config.ResubscribeDelay):
		}
	}
}

func (s *Service) markSubscribed() {
	s.readyOnce.Do(func() { close(s.subscribed) })
}

// onReloadEvent reloads the ruleset a peer announced, unless it is
// already active here.
func (s *Service) onReloadEvent(ctx context.Context, event cache.ReloadEvent) {
	log := s.logger.With(
		slog.String("origin", event.Origin),
		slog.String("version", event.Version),
	)

	if active := s.rules.Current(); active != nil && active.Digest == event.Digest {
		log.Debug("peer reload already applied")
		return
	}

	if _, err := s.rules.ReloadIfChanged(ctx, rulestore.TriggerBroadcast); err != nil {
		log.Error("failed to apply peer reload", slog.String("error", err.Error()))
		return
	}

	if active := s.rules.Current(); active == nil || active.Digest != event.Digest {
		// The peer read a different file than this instance sees.
		log.Warn("ruleset differs from peer after reload", slog.String("peer_digest", event.Digest))
	}
}
