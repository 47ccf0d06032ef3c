package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/greeterhq/chat-server-go/internal/config"
)

// ConnectionCounter reports live websocket connection totals. Satisfied
// by ws.Hub.
type ConnectionCounter interface {
	Counts() (connections int, sessions int)
}

// Pinger reports store connectivity. Satisfied by database.DB.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	db      Pinger
	counter ConnectionCounter
	started time.Time
}

func NewHealthHandler(db Pinger, counter ConnectionCounter) *HealthHandler {
	return &HealthHandler{
		db:      db,
		counter: counter,
		started: time.Now(),
	}
}

// GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), config.DBPingTimeout)
	defer cancel()

	dbStatus := "connected"
	status := "ok"
	code := http.StatusOK
	if err := h.db.Ping(ctx); err != nil {
		dbStatus = "disconnected"
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	connections, sessions := h.counter.Counts()

	writeJSON(w, code, map[string]any{
		"status":      status,
		"timestamp":   time.Now().UnixMilli(),
		"database":    dbStatus,
		"connections": connections,
		"sessions":    sessions,
		"uptime":      time.Since(h.started).Round(time.Second).String(),
	})
}
