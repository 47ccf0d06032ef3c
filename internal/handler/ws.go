package handler

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/greeterhq/chat-server-go/internal/config"
	"github.com/greeterhq/chat-server-go/internal/errors"
	"github.com/greeterhq/chat-server-go/internal/httputil"
	"github.com/greeterhq/chat-server-go/internal/repository"
	"github.com/greeterhq/chat-server-go/internal/session"
	"github.com/greeterhq/chat-server-go/internal/util"
	"github.com/greeterhq/chat-server-go/internal/ws"
)

// Monitoring agents and crawlers get refused before the upgrade; they
// inflate the connection count and never chat.
var botUserAgents = []string{
	"bot", "crawler", "spider", "crawling", "scraper",
	"cron-job.org", "applebot", "monitoring", "health",
	"uptime", "pingdom", "status", "check",
}

type WSHandler struct {
	hub      *ws.Hub
	conns    repository.ConnectionRepository
	cfg      *config.Config
	upgrader websocket.Upgrader
}

func NewWSHandler(hub *ws.Hub, conns repository.ConnectionRepository, cfg *config.Config) *WSHandler {
	return &WSHandler{
		hub:   hub,
		conns: conns,
		cfg:   cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if cfg.AllowedOrigin == "*" {
					return true
				}
				return r.Header.Get("Origin") == cfg.AllowedOrigin
			},
		},
	}
}

// GET /ws?sessionId=...
func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	userAgent := r.Header.Get("User-Agent")
	if isBotAgent(userAgent) {
		log.Info().Str("user_agent", userAgent).Msg("bot connection refused")
		httputil.WriteError(w, errors.ValidationError("automated clients are not allowed"))
		return
	}

	ip := httputil.ClientIP(r)

	if connections, _ := h.hub.Counts(); connections >= h.cfg.MaxConnections {
		log.Warn().Int("connections", connections).Msg("global connection cap reached")
		httputil.WriteError(w, errors.TooManyConnections())
		return
	}

	if count, err := h.conns.CountByIP(r.Context(), ip); err != nil {
		log.Warn().Err(err).Str("ip", ip).Msg("per-ip connection count failed")
	} else if count >= h.cfg.MaxConnectionsPerIP {
		log.Warn().Str("ip", ip).Int("count", count).Msg("per-ip connection cap reached")
		httputil.WriteError(w, errors.TooManyConnections())
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	resumeID := r.URL.Query().Get("sessionId")
	if resumeID != "" && !util.IsValidUUID(resumeID) {
		log.Info().Str("session_id", resumeID).Msg("malformed resume token ignored")
		resumeID = ""
	}

	h.hub.HandleConnection(conn, resumeID, session.ClientInfo{
		UserIP:    ip,
		UserAgent: userAgent,
		Referrer:  r.Header.Get("Referer"),
	})
}

func isBotAgent(userAgent string) bool {
	if userAgent == "" {
		return false
	}
	lower := strings.ToLower(userAgent)
	for _, pattern := range botUserAgents {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}
