package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Background job intervals
const CleanupJobInterval = 5 * time.Minute

// Sessions with no activity for this long are swept from memory and storage.
const StaleSessionAge = time.Hour

// Assistant run polling
const (
	AssistantPollFastDelay = 500 * time.Millisecond
	AssistantPollSlowDelay = time.Second
	AssistantPollFastCount = 5
	AssistantMaxPolls      = 30
	AssistantMaxRetries    = 2
)

// Transcript delivery
const (
	DeliveryWebhookTimeout = 15 * time.Second
	ProcessedWindowTTL     = time.Hour
	DispatchTimeout        = 30 * time.Second
)

// Websocket transport
const (
	WSWriteWait      = 10 * time.Second
	WSPongWait       = 60 * time.Second
	WSPingInterval   = 25 * time.Second
	WSMaxMessageSize = 1 << 20 // 1MB
	WSSendBuffer     = 32
)

// Per-IP websocket connection attempts per minute
const ConnectRateLimitPerMin = 30
