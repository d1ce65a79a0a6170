// Package cache holds the caching and fan-out infrastructure of the service:
// the in-memory result cache (L1) and the Redis connection that carries
// ruleset reload events between instances.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rafaeljc/eapproval/internal/observability"
	"github.com/rafaeljc/eapproval/internal/validation"
)

// ReloadEvent announces that an instance activated a new ruleset.
type ReloadEvent struct {
	Version     string    `json:"version"`
	Digest      string    `json:"digest"`
	Origin      string    `json:"origin"`
	PublishedAt time.Time `json:"published_at"`
}

// ReloadHandler reacts to a reload event from another instance.
type ReloadHandler func(ctx context.Context, event ReloadEvent)

// ReloadBus publishes and receives reload events over Redis Pub/Sub.
// Events published by this instance are ignored on receipt.
type ReloadBus struct {
	client  *redis.Client
	channel string
	origin  string
	logger  *slog.Logger
}

// NewReloadBus creates a bus on channel. origin identifies this instance.
func NewReloadBus(client *redis.Client, channel, origin string, logger *slog.Logger) *ReloadBus {
	validation.AssertNotNil(client, "redis client")
	validation.AssertNotEmpty(channel, "reload channel")
	validation.AssertNotEmpty(origin, "bus origin")
	if logger == nil {
		logger = slog.Default()
	}
	return &ReloadBus{
		client:  client,
		channel: channel,
		origin:  origin,
		logger:  logger,
	}
}

// Origin returns the identifier stamped on published events.
func (b *ReloadBus) Origin() string {
	return b.origin
}

// Publish broadcasts that this instance activated version/digest.
func (b *ReloadBus) Publish(ctx context.Context, version, digest string) error {
	payload, err := json.Marshal(ReloadEvent{
		Version:     version,
		Digest:      digest,
		Origin:      b.origin,
		PublishedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode reload event: %w", err)
	}

	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		observability.RulesetBroadcasts.WithLabelValues("published", "error").Inc()
		return fmt.Errorf("failed to publish reload event: %w", err)
	}

	observability.RulesetBroadcasts.WithLabelValues("published", "success").Inc()
	return nil
}

// Subscribe listens for reload events and calls handler for each one sent by
// another instance. It blocks until ctx is cancelled or the subscription
// channel closes. The subscription is confirmed before Subscribe starts
// waiting, so events published after ready is closed are never missed.
func (b *ReloadBus) Subscribe(ctx context.Context, ready chan<- struct{}, handler ReloadHandler) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}
	if ready != nil {
		close(ready)
	}

	b.logger.Info("listening for ruleset reload events", slog.String("channel", b.channel))

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}

			var event ReloadEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				observability.RulesetBroadcasts.WithLabelValues("received", "invalid").Inc()
				b.logger.Warn("discarding malformed reload event", slog.String("error", err.Error()))
				continue
			}
			if event.Origin == b.origin {
				observability.RulesetBroadcasts.WithLabelValues("received", "self").Inc()
				continue
			}

			observability.RulesetBroadcasts.WithLabelValues("received", "success").Inc()
			handler(ctx, event)
		}
	}
}
