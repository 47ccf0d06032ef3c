package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/greeterhq/chat-server-go/internal/errors"
	"github.com/greeterhq/chat-server-go/internal/httputil"
	"github.com/greeterhq/chat-server-go/internal/repository"
	"github.com/greeterhq/chat-server-go/internal/transcript"
	"github.com/greeterhq/chat-server-go/internal/util"
)

// SessionHandler exposes the read-only session API used by the widget
// host page and by operators.
type SessionHandler struct {
	sessions repository.SessionRepository
	messages repository.MessageRepository
	builder  *transcript.Builder
}

func NewSessionHandler(sessions repository.SessionRepository, messages repository.MessageRepository, builder *transcript.Builder) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		messages: messages,
		builder:  builder,
	}
}

func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/{sessionID}", h.GetSession)
	r.Get("/{sessionID}/transcript", h.GetTranscript)
	r.Get("/{sessionID}/transcript/download", h.DownloadTranscript)

	return r
}

// GET /api/session/{sessionID}
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := chi.URLParam(r, "sessionID")
	if !util.IsValidUUID(sessionID) {
		httputil.WriteError(w, errors.InvalidInput("sessionID", "must be a UUID"))
		return
	}

	sess, err := h.sessions.FindByID(ctx, sessionID)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("session lookup failed")
		httputil.WriteError(w, errors.Database(err))
		return
	}
	if sess == nil {
		httputil.WriteError(w, errors.NotFound("session"))
		return
	}

	msgs, err := h.messages.FindBySessionID(ctx, sessionID)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("message lookup failed")
		httputil.WriteError(w, errors.Database(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session":  sess,
		"messages": msgs,
	})
}

// GET /api/session/{sessionID}/transcript
func (h *SessionHandler) GetTranscript(w http.ResponseWriter, r *http.Request) {
	rendered, sessionID, ok := h.render(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId": sessionID,
		"subject":   rendered.Subject,
		"text":      rendered.Text,
		"html":      rendered.HTML,
	})
}

// GET /api/session/{sessionID}/transcript/download
func (h *SessionHandler) DownloadTranscript(w http.ResponseWriter, r *http.Request) {
	rendered, sessionID, ok := h.render(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "transcript-"+sessionID+".txt"))
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(rendered.Text))
}

func (h *SessionHandler) render(w http.ResponseWriter, r *http.Request) (*transcript.Rendered, string, bool) {
	ctx := r.Context()
	sessionID := chi.URLParam(r, "sessionID")
	if !util.IsValidUUID(sessionID) {
		httputil.WriteError(w, errors.InvalidInput("sessionID", "must be a UUID"))
		return nil, "", false
	}

	sess, err := h.sessions.FindByID(ctx, sessionID)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("session lookup failed")
		httputil.WriteError(w, errors.Database(err))
		return nil, "", false
	}
	if sess == nil {
		httputil.WriteError(w, errors.NotFound("session"))
		return nil, "", false
	}

	msgs, err := h.messages.FindBySessionID(ctx, sessionID)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("message lookup failed")
		httputil.WriteError(w, errors.Database(err))
		return nil, "", false
	}

	return h.builder.Build(sessionID, msgs, time.Now()), sessionID, true
}
