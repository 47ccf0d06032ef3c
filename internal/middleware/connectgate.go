package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/greeterhq/chat-server-go/internal/config"
	"github.com/greeterhq/chat-server-go/internal/httputil"
	redisutil "github.com/greeterhq/chat-server-go/internal/redis"
)

const connectWindow = 60 * time.Second

// Sliding-window counter. Returns {allowed, remaining, resetAt}.
var connectGateScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

local windowStart = now - window

redis.call('ZREMRANGEBYSCORE', key, '-inf', windowStart)

local count = redis.call('ZCARD', key)

if count >= limit then
    local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
    local resetAt = 0
    if #oldest >= 2 then
        resetAt = tonumber(oldest[2]) + window
    else
        resetAt = now + window
    end
    return {0, 0, resetAt}
end

redis.call('ZADD', key, now, now .. '-' .. math.random())
redis.call('EXPIRE', key, window + 10)

local remaining = limit - count - 1
local resetAt = now + window

return {1, remaining, resetAt}
`)

// ConnectGate rate limits websocket connection attempts per client IP.
// Redis outages fail open so the widget keeps working.
type ConnectGate struct {
	client *redis.Client
	limit  int
}

func NewConnectGate(client *redis.Client, limit int) *ConnectGate {
	if limit <= 0 {
		limit = config.ConnectRateLimitPerMin
	}
	return &ConnectGate{client: client, limit: limit}
}

func (g *ConnectGate) allow(ctx context.Context, ip string) (bool, int64) {
	now := time.Now().Unix()
	key := redisutil.ConnectKey(ip)

	result, err := connectGateScript.Run(ctx, g.client, []string{key}, now, int64(connectWindow.Seconds()), g.limit).Int64Slice()
	if err != nil {
		log.Warn().Err(err).Str("ip", ip).Msg("connect gate check failed, allowing")
		return true, now + int64(connectWindow.Seconds())
	}
	if len(result) != 3 {
		log.Warn().Str("ip", ip).Msg("unexpected connect gate result")
		return true, now + int64(connectWindow.Seconds())
	}

	return result[0] == 1, result[2]
}

func (g *ConnectGate) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := httputil.ClientIP(r)

		allowed, resetAt := g.allow(r.Context(), ip)
		if !allowed {
			secondsLeft := resetAt - time.Now().Unix() + 1
			w.Header().Set("Retry-After", fmt.Sprintf("%d", secondsLeft))
			log.Warn().Str("ip", ip).Msg("connection rate limit exceeded")
			writeJSON(w, http.StatusTooManyRequests, map[string]string{
				"error": "Too many connection attempts. Please try again later.",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}
