package ws

import (
	"time"

	"github.com/greeterhq/chat-server-go/internal/model"
)

// Inbound event types accepted from the widget.
const (
	eventMessage        = "message"
	eventRestoreSession = "restoreSession"
	eventClearChat      = "clearChat"
	eventSendEmail      = "sendEmail"
	eventEndSession     = "endSession"
)

// Outbound event types sent to the widget.
const (
	eventTyping          = "typing"
	eventSessionRestored = "sessionRestored"
	eventSessionNotFound = "sessionNotFound"
	eventSessionError    = "sessionError"
	eventEmailSent       = "emailSent"
	eventChatCleared     = "chatCleared"
)

// inboundEvent is the envelope for every frame the widget sends. Fields
// are populated per event type.
type inboundEvent struct {
	Type      string `json:"type"`
	Content   string `json:"content,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Email     string `json:"email,omitempty"`
}

type messageEvent struct {
	Type      string    `json:"type"`
	Content   string    `json:"content"`
	IsBot     bool      `json:"isBot"`
	Timestamp time.Time `json:"timestamp"`
}

func newMessageEvent(content string, isBot bool, ts time.Time) messageEvent {
	return messageEvent{Type: eventMessage, Content: content, IsBot: isBot, Timestamp: ts}
}

type typingEvent struct {
	Type     string `json:"type"`
	IsTyping bool   `json:"isTyping"`
}

func newTypingEvent(isTyping bool) typingEvent {
	return typingEvent{Type: eventTyping, IsTyping: isTyping}
}

type sessionSummary struct {
	SessionID      string    `json:"sessionId"`
	ContactEmail   string    `json:"contactEmail,omitempty"`
	MessageCount   int       `json:"messageCount"`
	CreatedAt      time.Time `json:"createdAt"`
	LastActivityAt time.Time `json:"lastActivity"`
}

type sessionRestoredEvent struct {
	Type        string          `json:"type"`
	SessionID   string          `json:"sessionId"`
	Messages    []model.Message `json:"messages"`
	SessionData sessionSummary  `json:"sessionData"`
}

type sessionNotFoundEvent struct {
	Type      string  `json:"type"`
	SessionID *string `json:"sessionId"`
}

type sessionErrorEvent struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

type emailSentEvent struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

type chatClearedEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}
