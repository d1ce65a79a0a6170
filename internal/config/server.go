package config

import (
	"encoding/hex"
	"fmt"
	"time"
)

// ServerConfig configures the REST API server.
type ServerConfig struct {
	Port              string        `envconfig:"PORT" default:"8080"`
	Host              string        `envconfig:"HOST" default:"0.0.0.0"`
	ReadTimeout       time.Duration `envconfig:"READ_TIMEOUT" default:"10s"`
	WriteTimeout      time.Duration `envconfig:"WRITE_TIMEOUT" default:"10s"`
	ReadHeaderTimeout time.Duration `envconfig:"READ_HEADER_TIMEOUT" default:"5s"`
	IdleTimeout       time.Duration `envconfig:"IDLE_TIMEOUT" default:"60s"`
	MaxHeaderBytes    int           `envconfig:"MAX_HEADER_BYTES" default:"524288" validate:"min=1"` // 512KB

	// MaxBodyBytes caps the size of a submitted document.
	MaxBodyBytes int64 `envconfig:"MAX_BODY_BYTES" default:"1048576" validate:"min=1"` // 1MB

	// APIKeyHash protects the reload endpoint. Empty disables the check
	// outside production.
	APIKeyHash string `envconfig:"API_KEY_HASH"`
	TLSEnabled bool   `envconfig:"TLS_ENABLED" default:"false"`
	TLSCert    string `envconfig:"TLS_CERT_FILE"`
	TLSKey     string `envconfig:"TLS_KEY_FILE"`
}

// Address returns the listen address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// Validate performs validation on the ServerConfig.
func (c *ServerConfig) Validate(environment string) error {
	if err := validatePort(c.Port, "http server"); err != nil {
		return err
	}

	if err := validateHost(c.Host, "http server"); err != nil {
		return err
	}

	if c.APIKeyHash != "" {
		if err := validateSHA256Hash(c.APIKeyHash); err != nil {
			return fmt.Errorf("invalid API key hash: %w", err)
		}
	}

	if environment == EnvironmentProduction {
		if c.APIKeyHash == "" {
			return fmt.Errorf("API key hash is required in production environment")
		}
		if !c.TLSEnabled {
			return fmt.Errorf("TLS must be enabled in production environment")
		}
	}

	if c.TLSEnabled && (c.TLSCert == "" || c.TLSKey == "") {
		return fmt.Errorf("TLS enabled but cert or key file not specified")
	}

	return nil
}

// validateSHA256Hash checks if the hash is a valid SHA-256 hex string (64 hex characters)
func validateSHA256Hash(hash string) error {
	if len(hash) != 64 {
		return fmt.Errorf("SHA-256 hash must be 64 characters, got %d", len(hash))
	}
	if _, err := hex.DecodeString(hash); err != nil {
		return fmt.Errorf("hash must be valid hexadecimal: %w", err)
	}
	return nil
}
