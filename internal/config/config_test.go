package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigMethods(t *testing.T) {
	t.Run("Addr returns formatted port", func(t *testing.T) {
		cfg := &Config{Port: 3000}
		assert.Equal(t, ":3000", cfg.Addr())
	})

	t.Run("AssistantTimeout converts seconds to duration", func(t *testing.T) {
		cfg := &Config{AssistantTimeoutSeconds: 45}
		assert.Equal(t, 45*time.Second, cfg.AssistantTimeout())
	})

	t.Run("HasWebhook requires a non-blank URL", func(t *testing.T) {
		assert.False(t, (&Config{}).HasWebhook())
		assert.False(t, (&Config{WebhookURL: "   "}).HasWebhook())
		assert.True(t, (&Config{WebhookURL: "https://example.com/hook"}).HasWebhook())
	})

	t.Run("HasSMTP requires host and credentials", func(t *testing.T) {
		assert.False(t, (&Config{SMTPHost: "smtp.example.com"}).HasSMTP())
		assert.True(t, (&Config{
			SMTPHost: "smtp.example.com",
			SMTPUser: "bot",
			SMTPPass: "secret",
		}).HasSMTP())
	})
}

func TestValidate(t *testing.T) {
	t.Run("passes with minimal development config", func(t *testing.T) {
		cfg := &Config{RedisURL: "redis://localhost:6379"}
		assert.NoError(t, cfg.Validate(false))
	})

	t.Run("requires assistant id in production", func(t *testing.T) {
		cfg := &Config{RedisURL: "rediss://localhost:6379"}
		err := cfg.Validate(true)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ASSISTANT_ID")
	})

	t.Run("passes in production with assistant id", func(t *testing.T) {
		cfg := &Config{
			RedisURL:    "rediss://localhost:6379",
			AssistantID: "asst_123",
		}
		assert.NoError(t, cfg.Validate(true))
	})
}

func TestLoad(t *testing.T) {
	keys := []string{
		"PORT", "DATABASE_URL", "REDIS_URL", "LOG_LEVEL",
		"ASSISTANT_API_KEY", "ASSISTANT_ID", "OWNER_EMAIL",
		"MAX_CONNECTIONS", "MAX_CONNECTIONS_PER_IP",
	}
	originalEnv := map[string]string{}
	for _, k := range keys {
		originalEnv[k] = os.Getenv(k)
	}
	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	t.Run("loads config with defaults", func(t *testing.T) {
		os.Setenv("DATABASE_URL", "postgres://localhost/chat")
		os.Setenv("REDIS_URL", "redis://localhost:6379")
		os.Unsetenv("PORT")
		os.Unsetenv("MAX_CONNECTIONS")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 8080, cfg.Port)
		assert.Equal(t, "info", cfg.LogLevel)
		assert.Equal(t, 200, cfg.MaxConnections)
		assert.Equal(t, 20, cfg.MaxConnectionsPerIP)
		assert.Equal(t, 45, cfg.AssistantTimeoutSeconds)
	})

	t.Run("fails without required database url", func(t *testing.T) {
		os.Unsetenv("DATABASE_URL")
		os.Setenv("REDIS_URL", "redis://localhost:6379")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("reads overrides from environment", func(t *testing.T) {
		os.Setenv("DATABASE_URL", "postgres://localhost/chat")
		os.Setenv("REDIS_URL", "redis://localhost:6379")
		os.Setenv("PORT", "9000")
		os.Setenv("MAX_CONNECTIONS", "50")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 9000, cfg.Port)
		assert.Equal(t, 50, cfg.MaxConnections)
	})
}
