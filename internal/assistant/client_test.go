package assistant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/greeterhq/chat-server-go/internal/errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "test-key", "asst_test", 5*time.Second,
		WithPollDelays(time.Millisecond, time.Millisecond))
}

func TestCreateThread(t *testing.T) {
	t.Run("returns thread id", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/threads", r.URL.Path)
			assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
			json.NewEncoder(w).Encode(map[string]string{"id": "thread_1"})
		})

		threadID, err := client.CreateThread(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "thread_1", threadID)
	})

	t.Run("classifies auth failure", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})

		_, err := client.CreateThread(context.Background())
		assert.Equal(t, apperrors.ErrCodeUpstreamAuth, apperrors.GetCode(err))
	})

	t.Run("classifies rate limit", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})

		_, err := client.CreateThread(context.Background())
		assert.Equal(t, apperrors.ErrCodeUpstreamRateLimited, apperrors.GetCode(err))
	})
}

func TestAsk(t *testing.T) {
	t.Run("appends message, runs and returns reply", func(t *testing.T) {
		var polls int32
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			switch {
			case r.Method == http.MethodPost && r.URL.Path == "/threads/thread_1/messages":
				var body map[string]any
				json.NewDecoder(r.Body).Decode(&body)
				assert.Equal(t, "user", body["role"])
				assert.Equal(t, "hello", body["content"])
				w.Write([]byte(`{"id":"msg_1"}`))

			case r.Method == http.MethodPost && r.URL.Path == "/threads/thread_1/runs":
				json.NewEncoder(w).Encode(map[string]string{"id": "run_1", "status": "queued"})

			case r.Method == http.MethodGet && r.URL.Path == "/threads/thread_1/runs/run_1":
				status := "in_progress"
				if atomic.AddInt32(&polls, 1) >= 2 {
					status = "completed"
				}
				json.NewEncoder(w).Encode(map[string]string{"id": "run_1", "status": status})

			case r.Method == http.MethodGet && r.URL.Path == "/threads/thread_1/messages":
				w.Write([]byte(`{"data":[{"role":"assistant","content":[{"type":"text","text":{"value":"hi there"}}]}]}`))

			default:
				t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
				w.WriteHeader(http.StatusNotFound)
			}
		})

		reply, err := client.Ask(context.Background(), "thread_1", "hello")
		require.NoError(t, err)
		assert.Equal(t, "hi there", reply)
	})

	t.Run("retries run creation on server error", func(t *testing.T) {
		var runAttempts int32
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			switch {
			case r.URL.Path == "/threads/thread_1/messages" && r.Method == http.MethodPost:
				w.Write([]byte(`{"id":"msg_1"}`))
			case r.URL.Path == "/threads/thread_1/runs" && r.Method == http.MethodPost:
				if atomic.AddInt32(&runAttempts, 1) == 1 {
					w.WriteHeader(http.StatusInternalServerError)
					return
				}
				json.NewEncoder(w).Encode(map[string]string{"id": "run_1", "status": "queued"})
			case r.URL.Path == "/threads/thread_1/runs/run_1":
				json.NewEncoder(w).Encode(map[string]string{"id": "run_1", "status": "completed"})
			case r.URL.Path == "/threads/thread_1/messages" && r.Method == http.MethodGet:
				w.Write([]byte(`{"data":[{"role":"assistant","content":[{"type":"text","text":{"value":"ok"}}]}]}`))
			}
		})

		reply, err := client.Ask(context.Background(), "thread_1", "hello")
		require.NoError(t, err)
		assert.Equal(t, "ok", reply)
		assert.Equal(t, int32(2), atomic.LoadInt32(&runAttempts))
	})

	t.Run("does not retry auth failures", func(t *testing.T) {
		var runAttempts int32
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			switch {
			case r.URL.Path == "/threads/thread_1/messages":
				w.Write([]byte(`{"id":"msg_1"}`))
			case r.URL.Path == "/threads/thread_1/runs":
				atomic.AddInt32(&runAttempts, 1)
				w.WriteHeader(http.StatusUnauthorized)
			}
		})

		_, err := client.Ask(context.Background(), "thread_1", "hello")
		assert.Equal(t, apperrors.ErrCodeUpstreamAuth, apperrors.GetCode(err))
		assert.Equal(t, int32(1), atomic.LoadInt32(&runAttempts))
	})

	t.Run("classifies failed run by last error code", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			switch {
			case r.URL.Path == "/threads/thread_1/messages":
				w.Write([]byte(`{"id":"msg_1"}`))
			case r.URL.Path == "/threads/thread_1/runs" && r.Method == http.MethodPost:
				json.NewEncoder(w).Encode(map[string]string{"id": "run_1", "status": "queued"})
			case r.URL.Path == "/threads/thread_1/runs/run_1":
				w.Write([]byte(`{"id":"run_1","status":"failed","last_error":{"code":"rate_limit_exceeded","message":"quota"}}`))
			}
		})

		_, err := client.Ask(context.Background(), "thread_1", "hello")
		assert.Equal(t, apperrors.ErrCodeUpstreamRateLimited, apperrors.GetCode(err))
	})

	t.Run("times out when run never completes", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			switch {
			case r.URL.Path == "/threads/thread_1/messages":
				w.Write([]byte(`{"id":"msg_1"}`))
			case r.URL.Path == "/threads/thread_1/runs" && r.Method == http.MethodPost:
				json.NewEncoder(w).Encode(map[string]string{"id": "run_1", "status": "queued"})
			case r.URL.Path == "/threads/thread_1/runs/run_1":
				json.NewEncoder(w).Encode(map[string]string{"id": "run_1", "status": "in_progress"})
			}
		})

		_, err := client.Ask(context.Background(), "thread_1", "hello")
		assert.Equal(t, apperrors.ErrCodeUpstreamTimeout, apperrors.GetCode(err))
	})
}
