package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestConnectGate_FailsOpenWithoutRedis(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	gate := NewConnectGate(client, 1)

	var called bool
	h := gate.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.RemoteAddr = "[2001:db8::1]:443"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
}
