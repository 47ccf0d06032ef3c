package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/greeterhq/chat-server-go/internal/model"
	"github.com/greeterhq/chat-server-go/internal/repository"
	"github.com/greeterhq/chat-server-go/internal/transcript"
)

// ThreadCreator provisions a conversation handle with the upstream
// assistant. Satisfied by assistant.Client.
type ThreadCreator interface {
	CreateThread(ctx context.Context) (string, error)
}

// State is a point-in-time snapshot of one conversation. Message slices
// are copies; mutating a snapshot never affects the registry.
type State struct {
	SessionID      string
	ThreadID       string
	ContactEmail   string
	UserIP         string
	UserAgent      string
	Referrer       string
	Processed      bool
	Messages       []model.Message
	CreatedAt      time.Time
	LastActivityAt time.Time
}

func (s *State) MessageCount() int {
	return len(s.Messages)
}

func (s *State) HasUserMessage() bool {
	for _, m := range s.Messages {
		if !m.IsBot {
			return true
		}
	}
	return false
}

// ClientInfo is transport metadata captured when a browser connects.
type ClientInfo struct {
	UserIP    string
	UserAgent string
	Referrer  string
}

type entry struct {
	mu       sync.Mutex
	state    State
	stored   bool
	resolved bool
}

// Registry is the source of truth for conversation state. Memory is
// authoritative for live sessions; the store is written through on every
// mutation and consulted on a memory miss so sessions survive restarts.
// Store failures degrade the registry to memory-only operation.
type Registry struct {
	sessions repository.SessionRepository
	messages repository.MessageRepository
	threads  ThreadCreator

	mu      sync.Mutex
	entries map[string]*entry
}

func NewRegistry(sessions repository.SessionRepository, messages repository.MessageRepository, threads ThreadCreator) *Registry {
	return &Registry{
		sessions: sessions,
		messages: messages,
		threads:  threads,
		entries:  map[string]*entry{},
	}
}

// lockEntry returns the session's entry with its lock held. The registry
// map lock is only held long enough to find or insert the entry, so
// unrelated sessions never contend.
func (r *Registry) lockEntry(sessionID string) *entry {
	r.mu.Lock()
	e, ok := r.entries[sessionID]
	if !ok {
		e = &entry{state: State{SessionID: sessionID, CreatedAt: time.Now(), LastActivityAt: time.Now()}}
		r.entries[sessionID] = e
	}
	r.mu.Unlock()

	e.mu.Lock()
	return e
}

// Resolve returns a snapshot of the session, recovering it from the
// store when memory has no record, or synthesizing an empty one when
// neither does. Exactly one caller observes isNew for a synthesized
// session, however many resolve it concurrently. Resolve never fails.
func (r *Registry) Resolve(ctx context.Context, sessionID string) (*State, bool) {
	r.mu.Lock()
	e, ok := r.entries[sessionID]
	r.mu.Unlock()

	if ok {
		e.mu.Lock()
		defer e.mu.Unlock()
		snap := snapshot(&e.state)
		return snap, false
	}

	e = r.lockEntry(sessionID)
	defer e.mu.Unlock()

	if e.stored || e.resolved || len(e.state.Messages) > 0 {
		return snapshot(&e.state), false
	}

	// Latched before hydration so concurrent resolvers of the same new
	// id queue behind this one and observe an existing session.
	e.resolved = true

	if r.hydrate(ctx, e) {
		return snapshot(&e.state), false
	}

	return snapshot(&e.state), true
}

// hydrate loads a session and its messages from the store into the
// entry. Returns false when the store has no row or the read failed.
func (r *Registry) hydrate(ctx context.Context, e *entry) bool {
	sess, err := r.sessions.FindByID(ctx, e.state.SessionID)
	if err != nil {
		log.Warn().Err(err).Str("session_id", e.state.SessionID).Msg("session lookup failed, memory-only")
		return false
	}
	if sess == nil {
		return false
	}

	e.state.CreatedAt = sess.CreatedAt
	e.state.LastActivityAt = sess.LastActivityAt
	e.state.Processed = sess.Processed
	e.state.UserIP = sess.UserIP
	e.state.UserAgent = sess.UserAgent
	if sess.ThreadID != nil {
		e.state.ThreadID = *sess.ThreadID
	}
	if sess.ContactEmail != nil {
		e.state.ContactEmail = *sess.ContactEmail
	}
	if sess.Referrer != nil {
		e.state.Referrer = *sess.Referrer
	}

	msgs, err := r.messages.FindBySessionID(ctx, e.state.SessionID)
	if err != nil {
		log.Warn().Err(err).Str("session_id", e.state.SessionID).Msg("message history load failed")
	} else {
		e.state.Messages = msgs
	}

	e.stored = true
	return true
}

// BindClient records transport metadata for the session. Existing values
// are kept so the first connection wins.
func (r *Registry) BindClient(sessionID string, info ClientInfo) {
	e := r.lockEntry(sessionID)
	defer e.mu.Unlock()

	if e.state.UserIP == "" {
		e.state.UserIP = info.UserIP
	}
	if e.state.UserAgent == "" {
		e.state.UserAgent = info.UserAgent
	}
	if e.state.Referrer == "" {
		e.state.Referrer = info.Referrer
	}
}

// RecordUserMessage appends a user message verbatim and persists it.
// The first valid e-mail address seen in any user message becomes the
// session's contact address and is never overwritten.
func (r *Registry) RecordUserMessage(ctx context.Context, sessionID, content string) *model.Message {
	return r.record(ctx, sessionID, content, false)
}

// RecordAssistantMessage appends an assistant reply and persists it.
func (r *Registry) RecordAssistantMessage(ctx context.Context, sessionID, content string) *model.Message {
	return r.record(ctx, sessionID, content, true)
}

func (r *Registry) record(ctx context.Context, sessionID, content string, isBot bool) *model.Message {
	e := r.lockEntry(sessionID)
	defer e.mu.Unlock()

	msg := model.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Content:   content,
		IsBot:     isBot,
		CreatedAt: time.Now(),
	}
	e.state.Messages = append(e.state.Messages, msg)
	e.state.LastActivityAt = msg.CreatedAt

	if !isBot && e.state.ContactEmail == "" {
		if email := transcript.ExtractEmail(content); email != "" {
			e.state.ContactEmail = email
			if e.stored {
				if err := r.sessions.SetContactEmail(ctx, sessionID, email); err != nil {
					log.Warn().Err(err).Str("session_id", sessionID).Msg("contact email persist failed")
				}
			}
		}
	}

	r.persistMessage(ctx, e, msg)
	return &msg
}

// persistMessage writes through to the store, creating the session row
// on first use. Failures leave the registry memory-only for this write.
func (r *Registry) persistMessage(ctx context.Context, e *entry, msg model.Message) {
	if !e.stored {
		_, err := r.sessions.Create(ctx, model.CreateSessionParams{
			SessionID: e.state.SessionID,
			UserIP:    e.state.UserIP,
			UserAgent: e.state.UserAgent,
			Referrer:  optional(e.state.Referrer),
		})
		if err != nil {
			log.Warn().Err(err).Str("session_id", e.state.SessionID).Msg("session persist failed, memory-only")
			return
		}
		e.stored = true
		if e.state.ContactEmail != "" {
			if err := r.sessions.SetContactEmail(ctx, e.state.SessionID, e.state.ContactEmail); err != nil {
				log.Warn().Err(err).Str("session_id", e.state.SessionID).Msg("contact email persist failed")
			}
		}
	}

	if _, err := r.messages.Create(ctx, model.CreateMessageParams{
		ID:        msg.ID,
		SessionID: msg.SessionID,
		Content:   msg.Content,
		IsBot:     msg.IsBot,
	}); err != nil {
		log.Warn().Err(err).Str("session_id", msg.SessionID).Msg("message persist failed")
		return
	}

	if err := r.sessions.Touch(ctx, e.state.SessionID, len(e.state.Messages)); err != nil {
		log.Warn().Err(err).Str("session_id", e.state.SessionID).Msg("session touch failed")
	}
}

// EnsureUpstreamHandle returns the session's assistant thread id,
// creating it exactly once per session lifetime. Concurrent callers for
// the same session share one creation.
func (r *Registry) EnsureUpstreamHandle(ctx context.Context, sessionID string) (string, error) {
	e := r.lockEntry(sessionID)
	defer e.mu.Unlock()

	if e.state.ThreadID != "" {
		return e.state.ThreadID, nil
	}

	threadID, err := r.threads.CreateThread(ctx)
	if err != nil {
		return "", err
	}
	e.state.ThreadID = threadID

	if e.stored {
		if err := r.sessions.SetThreadID(ctx, sessionID, threadID); err != nil {
			log.Warn().Err(err).Str("session_id", sessionID).Msg("thread id persist failed")
		}
	}
	return threadID, nil
}

// MarkProcessed flags the session as having had its transcript
// delivered. Sticky: once set it never clears.
func (r *Registry) MarkProcessed(ctx context.Context, sessionID string) {
	e := r.lockEntry(sessionID)
	defer e.mu.Unlock()

	if e.state.Processed {
		return
	}
	e.state.Processed = true

	if e.stored {
		if err := r.sessions.MarkProcessed(ctx, sessionID); err != nil {
			log.Warn().Err(err).Str("session_id", sessionID).Msg("processed flag persist failed")
		}
	}
}

// MarkInactive flags the stored row as having no live connections, so
// the database cleanup pass can reclaim it if it outlives a failed
// purge. Memory-only sessions have nothing to flag.
func (r *Registry) MarkInactive(ctx context.Context, sessionID string) {
	e := r.lockEntry(sessionID)
	defer e.mu.Unlock()

	if !e.stored {
		return
	}
	if err := r.sessions.MarkInactive(ctx, sessionID); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("inactive flag persist failed")
	}
}

// Purge removes the session from memory and deletes its rows. A later
// Resolve of the same id yields a fresh empty session.
func (r *Registry) Purge(ctx context.Context, sessionID string) {
	r.mu.Lock()
	e, ok := r.entries[sessionID]
	if ok {
		delete(r.entries, sessionID)
	}
	r.mu.Unlock()

	stored := true
	if ok {
		e.mu.Lock()
		stored = e.stored
		e.mu.Unlock()
	}

	if !stored {
		return
	}

	if _, err := r.messages.DeleteBySessionID(ctx, sessionID); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("message purge failed")
	}
	if err := r.sessions.Delete(ctx, sessionID); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("session purge failed")
	}
	log.Info().Str("session_id", sessionID).Msg("session purged")
}

// SweepIdle drops in-memory sessions idle longer than maxAge. Returns
// the number removed. Store rows are left to the database cleanup pass.
func (r *Registry) SweepIdle(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	r.mu.Lock()
	var idle []string
	for id, e := range r.entries {
		e.mu.Lock()
		if e.state.LastActivityAt.Before(cutoff) {
			idle = append(idle, id)
		}
		e.mu.Unlock()
	}
	for _, id := range idle {
		delete(r.entries, id)
	}
	r.mu.Unlock()

	return len(idle)
}

// Len reports the number of sessions currently held in memory.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func snapshot(s *State) *State {
	snap := *s
	snap.Messages = make([]model.Message, len(s.Messages))
	copy(snap.Messages, s.Messages)
	return &snap
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
