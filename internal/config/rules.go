package config

import (
	"fmt"
	"time"
)

// RulesConfig locates the ruleset and controls how it is kept fresh.
type RulesConfig struct {
	File        string        `envconfig:"FILE" default:"rules/rules.json"`
	LoadTimeout time.Duration `envconfig:"LOAD_TIMEOUT" default:"5s" validate:"gt=0"`

	// WatchEnabled polls the ruleset digest and reloads on change.
	WatchEnabled  bool          `envconfig:"WATCH_ENABLED" default:"true"`
	WatchInterval time.Duration `envconfig:"WATCH_INTERVAL" default:"10s"`
}

// Validate checks RulesConfig fields for correctness.
func (c *RulesConfig) Validate() error {
	if err := validateNoWhitespace(c.File, "rules file"); err != nil {
		return err
	}
	if c.WatchEnabled && c.WatchInterval < time.Second {
		return fmt.Errorf("rules watch interval must be at least 1s, got %s", c.WatchInterval)
	}
	return nil
}

// CacheConfig sizes the in-process validation result cache.
type CacheConfig struct {
	Enabled  bool          `envconfig:"ENABLED" default:"true"`
	Capacity int           `envconfig:"CAPACITY" default:"10000" validate:"min=1"`
	TTL      time.Duration `envconfig:"TTL" default:"5m" validate:"gt=0"`
}
