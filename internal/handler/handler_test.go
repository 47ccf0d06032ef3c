package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/greeterhq/chat-server-go/internal/model"
	"github.com/greeterhq/chat-server-go/internal/repository"
	"github.com/greeterhq/chat-server-go/internal/transcript"
)

type mockSessionRepo struct {
	mock.Mock
}

func (m *mockSessionRepo) FindByID(ctx context.Context, sessionID string) (*model.Session, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}

func (m *mockSessionRepo) Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}

func (m *mockSessionRepo) Touch(ctx context.Context, sessionID string, messageCount int) error {
	return m.Called(ctx, sessionID, messageCount).Error(0)
}

func (m *mockSessionRepo) SetThreadID(ctx context.Context, sessionID string, threadID string) error {
	return m.Called(ctx, sessionID, threadID).Error(0)
}

func (m *mockSessionRepo) SetContactEmail(ctx context.Context, sessionID string, email string) error {
	return m.Called(ctx, sessionID, email).Error(0)
}

func (m *mockSessionRepo) MarkProcessed(ctx context.Context, sessionID string) error {
	return m.Called(ctx, sessionID).Error(0)
}

func (m *mockSessionRepo) MarkInactive(ctx context.Context, sessionID string) error {
	return m.Called(ctx, sessionID).Error(0)
}

func (m *mockSessionRepo) Delete(ctx context.Context, sessionID string) error {
	return m.Called(ctx, sessionID).Error(0)
}

func (m *mockSessionRepo) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockSessionRepo) WithTx(tx *sqlx.Tx) repository.SessionRepository { return m }

type mockMessageRepo struct {
	mock.Mock
}

func (m *mockMessageRepo) FindBySessionID(ctx context.Context, sessionID string) ([]model.Message, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Message), args.Error(1)
}

func (m *mockMessageRepo) Create(ctx context.Context, params model.CreateMessageParams) (*model.Message, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Message), args.Error(1)
}

func (m *mockMessageRepo) DeleteBySessionID(ctx context.Context, sessionID string) (int64, error) {
	args := m.Called(ctx, sessionID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockMessageRepo) WithTx(tx *sqlx.Tx) repository.MessageRepository { return m }

const sessID = "0b9fb1f2-3f44-4e74-9f6a-2cf1a9f0d6b1"

type stubPinger struct{ err error }

func (s stubPinger) Ping(ctx context.Context) error { return s.err }

type stubCounter struct{ conns, sessions int }

func (s stubCounter) Counts() (int, int) { return s.conns, s.sessions }

func newSessionRouter(sessions *mockSessionRepo, messages *mockMessageRepo) chi.Router {
	h := NewSessionHandler(sessions, messages, transcript.NewBuilder("Sofia", "Acme"))
	r := chi.NewRouter()
	r.Mount("/api/session", h.Routes())
	return r
}

func TestHealthHandler(t *testing.T) {
	t.Run("reports ok when the store responds", func(t *testing.T) {
		h := NewHealthHandler(stubPinger{}, stubCounter{conns: 3, sessions: 2})
		rec := httptest.NewRecorder()

		h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "ok", body["status"])
		assert.Equal(t, "connected", body["database"])
		assert.Equal(t, float64(3), body["connections"])
	})

	t.Run("degrades when the store is unreachable", func(t *testing.T) {
		h := NewHealthHandler(stubPinger{err: assert.AnError}, stubCounter{})
		rec := httptest.NewRecorder()

		h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "degraded", body["status"])
		assert.Equal(t, "disconnected", body["database"])
	})
}

func TestSessionHandler_GetSession(t *testing.T) {
	t.Run("returns session with ordered messages", func(t *testing.T) {
		sessions := new(mockSessionRepo)
		messages := new(mockMessageRepo)
		sessions.On("FindByID", mock.Anything, sessID).Return(&model.Session{SessionID: sessID, MessageCount: 2}, nil)
		messages.On("FindBySessionID", mock.Anything, sessID).Return([]model.Message{
			{SessionID: sessID, Content: "hi"},
			{SessionID: sessID, Content: "hello", IsBot: true},
		}, nil)

		rec := httptest.NewRecorder()
		newSessionRouter(sessions, messages).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/session/"+sessID, nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, sessID, body["session"].(map[string]any)["sessionId"])
		assert.Len(t, body["messages"], 2)
	})

	t.Run("returns 404 for an unknown session", func(t *testing.T) {
		missing := "59a1c3d8-64a3-4b5e-8d0f-72e2c8f1a0ee"
		sessions := new(mockSessionRepo)
		messages := new(mockMessageRepo)
		sessions.On("FindByID", mock.Anything, missing).Return(nil, nil)

		rec := httptest.NewRecorder()
		newSessionRouter(sessions, messages).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/session/"+missing, nil))

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("rejects a malformed session id", func(t *testing.T) {
		sessions := new(mockSessionRepo)
		messages := new(mockMessageRepo)

		rec := httptest.NewRecorder()
		newSessionRouter(sessions, messages).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/session/not-a-uuid", nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		sessions.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
	})
}

func TestSessionHandler_Transcript(t *testing.T) {
	sessions := new(mockSessionRepo)
	messages := new(mockMessageRepo)
	sessions.On("FindByID", mock.Anything, sessID).Return(&model.Session{SessionID: sessID}, nil)
	messages.On("FindBySessionID", mock.Anything, sessID).Return([]model.Message{
		{SessionID: sessID, Content: "hi there"},
		{SessionID: sessID, Content: "welcome", IsBot: true},
	}, nil)
	router := newSessionRouter(sessions, messages)

	t.Run("returns transcript JSON", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/session/"+sessID+"/transcript", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "Acme - Chat Transcript", body["subject"])
		assert.Contains(t, body["text"], "You: hi there")
		assert.Contains(t, body["text"], "Sofia: welcome")
	})

	t.Run("serves a text attachment for download", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/session/"+sessID+"/transcript/download", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Header().Get("Content-Disposition"), "transcript-"+sessID+".txt")
		assert.Contains(t, rec.Body.String(), "You: hi there")
	})
}

func TestIsBotAgent(t *testing.T) {
	tests := []struct {
		name      string
		userAgent string
		want      bool
	}{
		{"browser", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7)", false},
		{"crawler", "Googlebot/2.1 (+http://www.google.com/bot.html)", true},
		{"uptime monitor", "UptimeRobot/2.0", true},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isBotAgent(tt.userAgent))
		})
	}
}
