package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"

	"github.com/greeterhq/chat-server-go/internal/config"
	"github.com/greeterhq/chat-server-go/internal/delivery"
	"github.com/greeterhq/chat-server-go/internal/session"
	"github.com/greeterhq/chat-server-go/internal/transcript"
)

// ConversationStore is the slice of the session registry the dispatcher
// needs.
type ConversationStore interface {
	Resolve(ctx context.Context, sessionID string) (*session.State, bool)
	MarkProcessed(ctx context.Context, sessionID string)
	Purge(ctx context.Context, sessionID string)
}

// Sender delivers a rendered transcript. Satisfied by delivery.Service.
type Sender interface {
	Send(ctx context.Context, msg *delivery.Message) error
}

// Dispatcher turns session-end events into transcript deliveries. One
// dispatch runs per session at a time; a bounded recently-processed
// window suppresses re-sends when events race against purging.
type Dispatcher struct {
	store   ConversationStore
	sender  Sender
	builder *transcript.Builder
	trigger Trigger

	ownerEmail string
	fromEmail  string

	window *cache.Cache

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewDispatcher(store ConversationStore, sender Sender, builder *transcript.Builder, trigger Trigger, ownerEmail, fromEmail string) *Dispatcher {
	return &Dispatcher{
		store:      store,
		sender:     sender,
		builder:    builder,
		trigger:    trigger,
		ownerEmail: ownerEmail,
		fromEmail:  fromEmail,
		window:     cache.New(config.ProcessedWindowTTL, config.ProcessedWindowTTL),
		inflight:   map[string]struct{}{},
	}
}

// HandleDisconnect is called after every connection detach. When the
// trigger fires, dispatch runs in the background with its own error
// boundary so a panic never reaches the transport.
func (d *Dispatcher) HandleDisconnect(sessionID string, remaining int) {
	if sessionID == "" || !d.trigger.ShouldDispatch(sessionID, remaining) {
		return
	}

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error().Interface("panic", rec).Str("session_id", sessionID).Msg("transcript dispatch panicked")
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), config.DispatchTimeout)
		defer cancel()
		d.Dispatch(ctx, sessionID)
	}()
}

// Dispatch delivers the session's transcript if it is eligible, then
// purges the session regardless of outcome. Concurrent dispatches of
// the same session collapse into one.
func (d *Dispatcher) Dispatch(ctx context.Context, sessionID string) {
	d.mu.Lock()
	if _, busy := d.inflight[sessionID]; busy {
		d.mu.Unlock()
		return
	}
	d.inflight[sessionID] = struct{}{}
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		delete(d.inflight, sessionID)
		d.mu.Unlock()
	}()

	// Purge on its own deadline: a slow delivery must not consume the
	// budget the row deletes need.
	defer func() {
		purgeCtx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
		defer cancel()
		d.store.Purge(purgeCtx, sessionID)
	}()

	state, _ := d.store.Resolve(ctx, sessionID)
	if skip, reason := d.ineligible(state); skip {
		log.Info().Str("session_id", sessionID).Str("reason", reason).Msg("transcript skipped")
		return
	}

	rendered := d.builder.Build(sessionID, state.Messages, time.Now())
	msg := &delivery.Message{
		To:             d.ownerEmail,
		From:           d.fromEmail,
		Subject:        rendered.Subject,
		Text:           rendered.Text,
		HTML:           rendered.HTML,
		SessionID:      sessionID,
		ContactEmail:   state.ContactEmail,
		MessageCount:   len(state.Messages),
		SessionStarted: state.CreatedAt.UTC().Format(time.RFC3339),
		SessionEnded:   time.Now().UTC().Format(time.RFC3339),
	}

	if err := d.sender.Send(ctx, msg); err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("transcript delivery failed")
		return
	}

	d.window.Set(sessionID, true, cache.DefaultExpiration)
	d.store.MarkProcessed(ctx, sessionID)
}

func (d *Dispatcher) ineligible(state *session.State) (bool, string) {
	if _, recent := d.window.Get(state.SessionID); recent {
		return true, "recently processed"
	}
	if state.Processed {
		return true, "already processed"
	}
	if len(state.Messages) < 2 {
		return true, "too few messages"
	}
	if !state.HasUserMessage() {
		return true, "no user messages"
	}
	return false, ""
}
