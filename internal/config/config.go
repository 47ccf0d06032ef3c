package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port        int    `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL,required"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// Upstream assistant API
	AssistantAPIKey  string `env:"ASSISTANT_API_KEY"`
	AssistantID      string `env:"ASSISTANT_ID"`
	AssistantBaseURL string `env:"ASSISTANT_BASE_URL" envDefault:"https://api.openai.com/v1"`
	AssistantName    string `env:"ASSISTANT_NAME" envDefault:"Sofia"`
	CompanyName      string `env:"COMPANY_NAME" envDefault:"our company"`

	// Transcript delivery
	OwnerEmail string `env:"OWNER_EMAIL"`
	EmailFrom  string `env:"EMAIL_FROM" envDefault:"chatbot@localhost"`
	WebhookURL string `env:"TRANSCRIPT_WEBHOOK_URL"`
	SMTPHost   string `env:"SMTP_HOST"`
	SMTPPort   int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser   string `env:"SMTP_USER"`
	SMTPPass   string `env:"SMTP_PASSWORD"`

	// Connection admission
	MaxConnections      int    `env:"MAX_CONNECTIONS" envDefault:"200"`
	MaxConnectionsPerIP int    `env:"MAX_CONNECTIONS_PER_IP" envDefault:"20"`
	AllowedOrigin       string `env:"SOCKET_CORS_ORIGIN" envDefault:"*"`

	AssistantTimeoutSeconds int `env:"ASSISTANT_TIMEOUT_SECONDS" envDefault:"45"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) AssistantTimeout() time.Duration {
	return time.Duration(c.AssistantTimeoutSeconds) * time.Second
}

// HasWebhook reports whether the webhook delivery provider is configured.
func (c *Config) HasWebhook() bool {
	return strings.TrimSpace(c.WebhookURL) != ""
}

// HasSMTP reports whether the SMTP delivery provider is configured.
func (c *Config) HasSMTP() bool {
	return c.SMTPHost != "" && c.SMTPUser != "" && c.SMTPPass != ""
}

func (c *Config) Validate(isProduction bool) error {
	if c.OwnerEmail == "" {
		log.Warn().Msg("OWNER_EMAIL is empty: transcripts have no recipient and delivery will be skipped")
	}
	if !c.HasWebhook() && !c.HasSMTP() {
		log.Warn().Msg("no delivery provider configured: set TRANSCRIPT_WEBHOOK_URL or SMTP_* variables")
	}
	if c.AssistantAPIKey == "" {
		log.Warn().Msg("ASSISTANT_API_KEY is empty: assistant replies will fail")
	}

	if isProduction {
		if c.AssistantID == "" {
			return fmt.Errorf("ASSISTANT_ID is required in production")
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
		if c.AllowedOrigin == "*" {
			log.Warn().Msg("SOCKET_CORS_ORIGIN is * in production: any site can embed the widget")
		}
	}

	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
