package ws

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/greeterhq/chat-server-go/internal/assistant"
	"github.com/greeterhq/chat-server-go/internal/config"
	"github.com/greeterhq/chat-server-go/internal/connmux"
	"github.com/greeterhq/chat-server-go/internal/delivery"
	"github.com/greeterhq/chat-server-go/internal/errors"
	"github.com/greeterhq/chat-server-go/internal/model"
	"github.com/greeterhq/chat-server-go/internal/repository"
	"github.com/greeterhq/chat-server-go/internal/session"
	"github.com/greeterhq/chat-server-go/internal/transcript"
)

// User-facing fallback texts when the assistant round-trip fails.
const (
	replyHighDemand   = "I'm currently experiencing high demand. Please try again in a few minutes."
	replyDelays       = "I'm experiencing delays. Please try again in a moment."
	replyServiceIssue = "I'm having trouble with my AI service. Please try again in a moment."
	replyConnectIssue = "I'm having trouble connecting to my AI service. Please try again."
)

// Conversations is the slice of the session registry the hub drives.
type Conversations interface {
	Resolve(ctx context.Context, sessionID string) (*session.State, bool)
	BindClient(sessionID string, info session.ClientInfo)
	RecordUserMessage(ctx context.Context, sessionID, content string) *model.Message
	RecordAssistantMessage(ctx context.Context, sessionID, content string) *model.Message
	EnsureUpstreamHandle(ctx context.Context, sessionID string) (string, error)
	MarkInactive(ctx context.Context, sessionID string)
	Purge(ctx context.Context, sessionID string)
}

// Dispatcher receives session-end signals.
type Dispatcher interface {
	HandleDisconnect(sessionID string, remaining int)
	Dispatch(ctx context.Context, sessionID string)
}

// EmailSender delivers an on-demand transcript copy to the visitor.
type EmailSender interface {
	Send(ctx context.Context, msg *delivery.Message) error
}

// Hub owns all live widget connections and routes their events through
// the conversation registry, the assistant bridge and the dispatcher.
type Hub struct {
	registry   Conversations
	mux        *connmux.Multiplexer
	dispatcher Dispatcher
	bridge     assistant.Bridge
	sender     EmailSender
	builder    *transcript.Builder
	conns      repository.ConnectionRepository
	cfg        *config.Config

	mu      sync.Mutex
	clients map[string]*Client
}

func NewHub(registry Conversations, mux *connmux.Multiplexer, dispatcher Dispatcher, bridge assistant.Bridge, sender EmailSender, builder *transcript.Builder, conns repository.ConnectionRepository, cfg *config.Config) *Hub {
	return &Hub{
		registry:   registry,
		mux:        mux,
		dispatcher: dispatcher,
		bridge:     bridge,
		sender:     sender,
		builder:    builder,
		conns:      conns,
		cfg:        cfg,
		clients:    map[string]*Client{},
	}
}

// Counts reports live connections and distinct sessions for health
// reporting.
func (h *Hub) Counts() (connections int, sessions int) {
	return h.mux.Counts()
}

// HandleConnection runs one widget connection to completion. A non-empty
// requestedSessionID resumes that conversation; otherwise a new session
// id is minted. Blocks until the connection closes.
func (h *Hub) HandleConnection(conn *websocket.Conn, requestedSessionID string, info session.ClientInfo) {
	resume := requestedSessionID != ""
	sessionID := requestedSessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	client := newClient(uuid.NewString(), sessionID, h, conn)

	h.mu.Lock()
	h.clients[client.id] = client
	h.mu.Unlock()
	h.mux.Attach(sessionID, client.id)

	go client.writePump()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	state, isNew := h.registry.Resolve(ctx, sessionID)
	h.registry.BindClient(sessionID, info)
	cancel()

	if _, err := h.conns.Create(context.Background(), model.CreateConnectionParams{
		ConnectionID: client.id,
		SessionID:    sessionID,
		UserIP:       info.UserIP,
		UserAgent:    info.UserAgent,
	}); err != nil {
		log.Warn().Err(err).Str("conn_id", client.id).Msg("connection persist failed")
	}

	log.Info().
		Str("conn_id", client.id).
		Str("session_id", sessionID).
		Bool("resumed", resume && !isNew).
		Msg("widget connected")

	switch {
	case resume && !isNew:
		client.sendEvent(h.restoredEvent(sessionID, state))
	case isNew:
		h.greet(context.Background(), client, sessionID)
	}

	client.readPump()
}

func (h *Hub) greet(ctx context.Context, c *Client, sessionID string) {
	text := fmt.Sprintf("Hello! I'm %s, your AI assistant at  %s. How can I assist you today?",
		h.cfg.AssistantName, h.cfg.CompanyName)
	msg := h.registry.RecordAssistantMessage(ctx, sessionID, text)
	c.sendEvent(newMessageEvent(msg.Content, true, msg.CreatedAt))
}

func (h *Hub) restoredEvent(sessionID string, state *session.State) sessionRestoredEvent {
	return sessionRestoredEvent{
		Type:      eventSessionRestored,
		SessionID: sessionID,
		Messages:  state.Messages,
		SessionData: sessionSummary{
			SessionID:      sessionID,
			ContactEmail:   state.ContactEmail,
			MessageCount:   len(state.Messages),
			CreatedAt:      state.CreatedAt,
			LastActivityAt: state.LastActivityAt,
		},
	}
}

// unregister tears a connection down exactly once and signals the
// dispatcher with the session's remaining connection count.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.id)
	h.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
	}
	sessionID, remaining := h.mux.Detach(c.id)

	if err := h.conns.Delete(context.Background(), c.id); err != nil {
		log.Warn().Err(err).Str("conn_id", c.id).Msg("connection row delete failed")
	}

	log.Info().
		Str("conn_id", c.id).
		Str("session_id", sessionID).
		Int("remaining", remaining).
		Msg("widget disconnected")

	if sessionID != "" && remaining == 0 {
		h.registry.MarkInactive(context.Background(), sessionID)
	}

	h.dispatcher.HandleDisconnect(sessionID, remaining)
}

// broadcast fans an event out to every connection attached to the
// session.
func (h *Hub) broadcast(sessionID string, event any) {
	for _, connID := range h.mux.Connections(sessionID) {
		h.mu.Lock()
		client, ok := h.clients[connID]
		h.mu.Unlock()
		if ok {
			client.sendEvent(event)
		}
	}
}

func (h *Hub) handleEvent(c *Client, event inboundEvent) {
	switch event.Type {
	case eventMessage:
		h.handleMessage(c, event.Content)
	case eventRestoreSession:
		h.handleRestore(c, event.SessionID)
	case eventClearChat:
		h.handleClearChat(c)
	case eventSendEmail:
		h.handleSendEmail(c, event.Email)
	case eventEndSession:
		h.handleEndSession(c)
	default:
		log.Warn().Str("conn_id", c.id).Str("type", event.Type).Msg("unknown event type")
		c.sendEvent(sessionErrorEvent{Type: eventSessionError, Error: "unknown event type"})
	}
}

// handleMessage records the user's text verbatim, relays it to the
// assistant and broadcasts the reply to every tab of the session. The
// whole round-trip is bounded by the configured assistant timeout.
func (h *Hub) handleMessage(c *Client, content string) {
	if strings.TrimSpace(content) == "" {
		c.sendEvent(sessionErrorEvent{Type: eventSessionError, Error: "empty message"})
		return
	}

	sessionID := c.sessionID
	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.AssistantTimeout())
	defer cancel()

	h.registry.RecordUserMessage(ctx, sessionID, content)
	h.broadcast(sessionID, newTypingEvent(true))

	reply, err := h.ask(ctx, sessionID, content)
	h.broadcast(sessionID, newTypingEvent(false))

	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("assistant round-trip failed")
		h.broadcast(sessionID, newMessageEvent(fallbackReply(err), true, time.Now()))
		return
	}

	msg := h.registry.RecordAssistantMessage(ctx, sessionID, reply)
	h.broadcast(sessionID, newMessageEvent(msg.Content, true, msg.CreatedAt))
}

func (h *Hub) ask(ctx context.Context, sessionID, content string) (string, error) {
	threadID, err := h.registry.EnsureUpstreamHandle(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return h.bridge.Ask(ctx, threadID, content)
}

func fallbackReply(err error) string {
	switch errors.GetCode(err) {
	case errors.ErrCodeUpstreamRateLimited:
		return replyHighDemand
	case errors.ErrCodeUpstreamTimeout:
		return replyDelays
	case errors.ErrCodeUpstreamServer, errors.ErrCodeUpstreamAuth:
		return replyServiceIssue
	default:
		return replyConnectIssue
	}
}

// handleRestore re-points the connection at an existing conversation.
// Unknown session ids yield sessionNotFound; the connection keeps its
// current session in that case.
func (h *Hub) handleRestore(c *Client, requestedID string) {
	if requestedID == "" {
		c.sendEvent(sessionNotFoundEvent{Type: eventSessionNotFound})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	defer cancel()

	state, isNew := h.registry.Resolve(ctx, requestedID)
	if isNew {
		h.registry.Purge(ctx, requestedID)
		c.sendEvent(sessionNotFoundEvent{Type: eventSessionNotFound})
		return
	}

	h.mux.Attach(requestedID, c.id)
	c.sessionID = requestedID
	c.sendEvent(h.restoredEvent(requestedID, state))
	log.Info().Str("conn_id", c.id).Str("session_id", requestedID).Msg("session restored")
}

// handleClearChat discards the conversation and starts the widget over
// with a fresh greeting.
func (h *Hub) handleClearChat(c *Client) {
	sessionID := c.sessionID
	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	defer cancel()

	h.registry.Purge(ctx, sessionID)
	h.broadcast(sessionID, chatClearedEvent{Type: eventChatCleared, SessionID: sessionID})
	log.Info().Str("session_id", sessionID).Msg("chat cleared")
}

// handleSendEmail mails the visitor their own transcript copy on
// request.
func (h *Hub) handleSendEmail(c *Client, email string) {
	if !transcript.IsValidEmail(email) {
		c.sendEvent(emailSentEvent{Type: eventEmailSent, Success: false, Email: email, Message: "Invalid email address."})
		return
	}

	sessionID := c.sessionID
	ctx, cancel := context.WithTimeout(context.Background(), config.DispatchTimeout)
	defer cancel()

	state, _ := h.registry.Resolve(ctx, sessionID)
	if len(state.Messages) == 0 {
		c.sendEvent(emailSentEvent{Type: eventEmailSent, Success: false, Email: email, Message: "No messages found to send."})
		return
	}

	rendered := h.builder.Build(sessionID, state.Messages, time.Now())
	err := h.sender.Send(ctx, &delivery.Message{
		To:             email,
		From:           h.cfg.EmailFrom,
		Subject:        rendered.Subject,
		Text:           rendered.Text,
		HTML:           rendered.HTML,
		SessionID:      sessionID,
		ContactEmail:   state.ContactEmail,
		MessageCount:   len(state.Messages),
		SessionStarted: state.CreatedAt.UTC().Format(time.RFC3339),
		SessionEnded:   time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("transcript copy failed")
		c.sendEvent(emailSentEvent{Type: eventEmailSent, Success: false, Email: email, Message: "Failed to send email. Please try again."})
		return
	}

	c.sendEvent(emailSentEvent{Type: eventEmailSent, Success: true, Email: email, Message: "Email sent successfully!"})
}

// handleEndSession dispatches the transcript immediately instead of
// waiting for the disconnect trigger.
func (h *Hub) handleEndSession(c *Client) {
	sessionID := c.sessionID
	log.Info().Str("session_id", sessionID).Msg("session ended by widget")

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error().Interface("panic", rec).Str("session_id", sessionID).Msg("end-session dispatch panicked")
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), config.DispatchTimeout)
		defer cancel()
		h.dispatcher.Dispatch(ctx, sessionID)
	}()
}
