package config

import (
	"maps"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// minimalRequiredConfig provides a complete database and Redis config so the
// storage validation paths are exercised.
func minimalRequiredConfig() map[string]string {
	return map[string]string{
		"EAPPROVAL_DB_HOST":        "localhost",
		"EAPPROVAL_DB_PORT":        "5432",
		"EAPPROVAL_DB_NAME":        "eapproval_test",
		"EAPPROVAL_DB_USER":        "test_user",
		"EAPPROVAL_DB_PASSWORD":    "test_pass",
		"EAPPROVAL_REDIS_HOST":     "localhost",
		"EAPPROVAL_REDIS_PORT":     "6379",
		"EAPPROVAL_REDIS_PASSWORD": "redis_password_123",
	}
}

// unsetStorageConfig blanks the storage variables explicitly. envconfig falls
// back to unprefixed names such as USER and HOST when a variable is absent.
func unsetStorageConfig() map[string]string {
	return map[string]string{
		"EAPPROVAL_DB_URL":     "",
		"EAPPROVAL_DB_HOST":    "",
		"EAPPROVAL_DB_PORT":    "",
		"EAPPROVAL_DB_NAME":    "",
		"EAPPROVAL_DB_USER":    "",
		"EAPPROVAL_REDIS_URL":  "",
		"EAPPROVAL_REDIS_HOST": "",
		"EAPPROVAL_REDIS_PORT": "",
	}
}

// mergeEnvVars merges additional env vars with minimal required config
func mergeEnvVars(additional map[string]string) map[string]string {
	result := minimalRequiredConfig()
	maps.Copy(result, additional)
	return result
}

// validProductionConfig returns a complete valid production configuration
// with all required database, Redis, and server settings for production tests
func validProductionConfig() map[string]string {
	return map[string]string{
		// App
		"EAPPROVAL_APP_ENV": "production",

		// Database
		"EAPPROVAL_DB_HOST":     "prod-db.example.com",
		"EAPPROVAL_DB_PORT":     "5432",
		"EAPPROVAL_DB_NAME":     "eapproval_prod",
		"EAPPROVAL_DB_USER":     "prod_user",
		"EAPPROVAL_DB_PASSWORD": "SuperSecure123!",
		"EAPPROVAL_DB_SSL_MODE": "require",

		// Redis
		"EAPPROVAL_REDIS_HOST":        "prod-redis.example.com",
		"EAPPROVAL_REDIS_PORT":        "6379",
		"EAPPROVAL_REDIS_PASSWORD":    "RedisSecure123!",
		"EAPPROVAL_REDIS_TLS_ENABLED": "true",

		// HTTP server
		"EAPPROVAL_SERVER_API_KEY_HASH":  "5dec7e1c36e8ec7f526cfa8ff6dc788daad76f6dd34467662eb47990dca6b55d",
		"EAPPROVAL_SERVER_TLS_ENABLED":   "true",
		"EAPPROVAL_SERVER_TLS_CERT_FILE": "/certs/control-cert.pem",
		"EAPPROVAL_SERVER_TLS_KEY_FILE":  "/certs/control-key.pem",
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		want    func(t *testing.T, cfg *Config)
		wantErr bool
	}{
		{
			name:    "Should use defaults when no env vars are set",
			envVars: minimalRequiredConfig(),
			want: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "eapproval", cfg.App.Name)
				assert.Equal(t, "dev", cfg.App.Version)
				assert.Equal(t, "development", cfg.App.Environment)
				assert.Equal(t, "info", cfg.App.LogLevel)
				assert.Equal(t, "text", cfg.App.LogFormat)
				assert.Equal(t, 30*time.Second, cfg.App.ShutdownTimeout)
				assert.Equal(t, "8080", cfg.Server.Port)
				assert.Equal(t, "50051", cfg.GRPC.Port)
				assert.Equal(t, "rules/rules.json", cfg.Rules.File)
				assert.Equal(t, 5*time.Second, cfg.Rules.LoadTimeout)
				assert.True(t, cfg.Rules.WatchEnabled)
				assert.Equal(t, 10000, cfg.Cache.Capacity)
				assert.True(t, cfg.Database.IsConfigured())
				assert.True(t, cfg.Redis.IsConfigured())
			},
			wantErr: false,
		},
		{
			name: "Should load all custom environment variables correctly",
			envVars: mergeEnvVars(map[string]string{
				"EAPPROVAL_APP_NAME":             "test-app",
				"EAPPROVAL_APP_VERSION":          "1.0.0",
				"EAPPROVAL_APP_ENV":              "staging",
				"EAPPROVAL_APP_LOG_LEVEL":        "debug",
				"EAPPROVAL_APP_LOG_FORMAT":       "json",
				"EAPPROVAL_APP_SHUTDOWN_TIMEOUT": "60s",
				"EAPPROVAL_SERVER_PORT":  "9090",
				"EAPPROVAL_GRPC_PORT":     "50052",
			}),
			want: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "test-app", cfg.App.Name)
				assert.Equal(t, "1.0.0", cfg.App.Version)
				assert.Equal(t, "staging", cfg.App.Environment)
				assert.Equal(t, "debug", cfg.App.LogLevel)
				assert.Equal(t, "json", cfg.App.LogFormat)
				assert.Equal(t, 60*time.Second, cfg.App.ShutdownTimeout)
				assert.Equal(t, "9090", cfg.Server.Port)
				assert.Equal(t, "50052", cfg.GRPC.Port)
			},
			wantErr: false,
		},
		{
			name: "Should fail validation on invalid environment value",
			envVars: mergeEnvVars(map[string]string{
				"EAPPROVAL_APP_ENV": "invalid",
			}),
			wantErr: true,
		},
		{
			name: "Should fail validation on invalid log level",
			envVars: mergeEnvVars(map[string]string{
				"EAPPROVAL_APP_LOG_LEVEL": "trace",
			}),
			wantErr: true,
		},
		{
			name: "Should fail validation on invalid log format",
			envVars: mergeEnvVars(map[string]string{
				"EAPPROVAL_APP_LOG_FORMAT": "xml",
			}),
			wantErr: true,
		},
		{
			name: "Should pass validation in staging environment",
			envVars: mergeEnvVars(map[string]string{
				"EAPPROVAL_APP_ENV": "staging",
			}),
			want: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "staging", cfg.App.Environment)
			},
			wantErr: false,
		},
		{
			name: "Should allow missing passwords in non-production environments",
			envVars: mergeEnvVars(map[string]string{
				"EAPPROVAL_APP_ENV":        "development",
				"EAPPROVAL_DB_PASSWORD":    "", // Empty password OK in development
				"EAPPROVAL_REDIS_PASSWORD": "", // Empty password OK in development
			}),
			want: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "development", cfg.App.Environment)
				assert.Equal(t, "", cfg.Database.Password)
				assert.Equal(t, "", cfg.Redis.Password)
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Setup: Set environment variables for this test
			// t.Setenv automatically prevents parallel execution and cleans up after the test
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			// Execute
			cfg, err := Load()

			// Assert
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			if tt.want != nil {
				tt.want(t, cfg)
			}
		})
	}
}

func TestLoad_OptionalStorage(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		want    func(t *testing.T, cfg *Config)
		wantErr bool
	}{
		{
			name:    "Should load without database and Redis",
			envVars: unsetStorageConfig(),
			want: func(t *testing.T, cfg *Config) {
				assert.False(t, cfg.Database.IsConfigured())
				assert.False(t, cfg.Redis.IsConfigured())
			},
		},
		{
			name: "Should fail on partially configured database",
			envVars: map[string]string{
				"EAPPROVAL_DB_HOST": "localhost",
			},
			wantErr: true,
		},
		{
			name: "Should fail on partially configured Redis",
			envVars: map[string]string{
				"EAPPROVAL_REDIS_HOST": "localhost",
				"EAPPROVAL_REDIS_PORT": "",
			},
			wantErr: true,
		},
		{
			name: "Should enable Redis alone",
			envVars: func() map[string]string {
				env := unsetStorageConfig()
				env["EAPPROVAL_REDIS_HOST"] = "localhost"
				env["EAPPROVAL_REDIS_PORT"] = "6379"
				return env
			}(),
			want: func(t *testing.T, cfg *Config) {
				assert.False(t, cfg.Database.IsConfigured())
				assert.True(t, cfg.Redis.IsConfigured())
				assert.Equal(t, "eapproval:rules:reloaded", cfg.Redis.ReloadChannel)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			cfg, err := Load()

			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.want != nil {
				tt.want(t, cfg)
			}
		})
	}
}
