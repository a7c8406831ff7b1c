package internal

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(limit int, window time.Duration) (*RateLimiter, *time.Time) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(limit, window)
	rl.now = func() time.Time { return now }
	return rl, &now
}

func TestRateLimiter_Allow(t *testing.T) {
	rl, now := newTestLimiter(2, time.Minute)

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"), "keys are limited independently")

	*now = now.Add(time.Minute + time.Second)
	assert.True(t, rl.Allow("a"), "window resets")
}

func TestRateLimiter_RefillsGradually(t *testing.T) {
	rl, now := newTestLimiter(4, time.Minute)

	for i := 0; i < 4; i++ {
		require.True(t, rl.Allow("a"))
	}
	assert.False(t, rl.Allow("a"))

	*now = now.Add(15 * time.Second)
	assert.True(t, rl.Allow("a"), "one token per quarter minute")
	assert.False(t, rl.Allow("a"))
}

func TestRateLimiter_CleanupPreventsMemoryLeak(t *testing.T) {
	rl, now := newTestLimiter(10, time.Minute)

	for i := 0; i < 150; i++ {
		rl.Allow(fmt.Sprintf("192.168.1.%d", i))
	}
	require.Equal(t, 150, rl.Len())

	*now = now.Add(2 * time.Minute)
	for i := 0; i < 100; i++ {
		rl.Allow("10.0.0.1")
	}
	assert.LessOrEqual(t, rl.Len(), 1)
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl, _ := newTestLimiter(1, time.Minute)
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhook", http.NoBody)
		req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, send().Code)
	w := send()
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
}

func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.RemoteAddr = "192.0.2.1:1234"
	assert.Equal(t, "192.0.2.1:1234", GetClientIP(req))

	req.Header.Set("X-Forwarded-For", " 203.0.113.7 ,10.0.0.1")
	assert.Equal(t, "203.0.113.7", GetClientIP(req))
}

func TestReadBodyStrict(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":1}`))
		body, err := ReadBodyStrict(httptest.NewRecorder(), req, 1024)
		require.NoError(t, err)
		assert.Equal(t, `{"a":1}`, string(body))
	})

	t.Run("empty", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", http.NoBody)
		_, err := ReadBodyStrict(httptest.NewRecorder(), req, 1024)
		assert.ErrorIs(t, err, ErrEmptyBody)
	})

	t.Run("too large", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 100)))
		_, err := ReadBodyStrict(httptest.NewRecorder(), req, 10)
		assert.ErrorIs(t, err, ErrPayloadTooLarge)
	})
}
