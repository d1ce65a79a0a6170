// Package logger provides the configured structured logger for the e-approval service.
// It wraps "log/slog" so every component (REST API, gRPC API, rules watcher, CLI)
// shares one format and level policy.
package logger

import (
	"io"
	"log/slog"
	"os"

	"github.com/rafaeljc/eapproval/internal/config"
)

// New creates a logger writing to os.Stdout.
func New(cfg *config.AppConfig) *slog.Logger {
	return NewWithWriter(cfg, os.Stdout)
}

// NewWithWriter creates a logger writing to w. The handler is chosen by
// cfg.LogFormat (text or json, json when unknown) and every record carries the
// service, version and env attributes.
func NewWithWriter(cfg *config.AppConfig, w io.Writer) *slog.Logger {
	if cfg == nil {
		panic("logger: config cannot be nil")
	}

	opts := &slog.HandlerOptions{
		Level: ParseLevel(cfg.LogLevel),
		// file:line is useful locally, too noisy in production
		AddSource: cfg.Environment != config.EnvironmentProduction,
	}

	var handler slog.Handler
	switch cfg.LogFormat {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler).With(
		slog.String("service", cfg.Name),
		slog.String("version", cfg.Version),
		slog.String("env", cfg.Environment),
	)
}

// ParseLevel converts a string to slog.Level, case-insensitively. Defaults to INFO.
func ParseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
