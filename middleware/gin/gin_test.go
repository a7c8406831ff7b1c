package gin

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gongin "github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/goentitle/pkg/premium"
	"github.com/mihaimyh/goentitle/storage/memory"
)

type failingSource struct{}

func (failingSource) Status(context.Context, string) (*premium.Status, error) {
	return nil, errors.New("connection refused")
}

func setupTestManager(t *testing.T) *premium.Manager {
	t.Helper()
	manager, err := premium.NewManager(memory.New(), premium.Config{})
	require.NoError(t, err)

	_, err = manager.Grant(context.Background(), premium.GrantRequest{
		UserID:    "premium",
		ProductID: "premium_lifetime",
		Source:    premium.SourceAdmin,
		EventTime: time.Now(),
	})
	require.NoError(t, err)
	return manager
}

func setupRouter(cfg Config) *gongin.Engine {
	gongin.SetMode(gongin.TestMode)
	r := gongin.New()
	r.Use(Middleware(cfg))
	r.GET("/premium", func(c *gongin.Context) {
		status, ok := StatusFrom(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gongin.H{"product": status.ProductID})
	})
	return r
}

func get(r http.Handler, userID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/premium", nil)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware(t *testing.T) {
	manager := setupTestManager(t)

	tests := []struct {
		name   string
		source premium.StatusReader
		userID string
		want   int
		body   string
	}{
		{"premium user", manager, "premium", http.StatusOK, "premium_lifetime"},
		{"no user", manager, "", http.StatusUnauthorized, "Unauthorized"},
		{"free user", manager, "free", http.StatusPaymentRequired, "Premium required"},
		{"status error fails closed", failingSource{}, "premium", http.StatusServiceUnavailable, "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := setupRouter(Config{Source: tt.source, GetUserID: FromHeader("X-User-ID")})
			rec := get(r, tt.userID)
			assert.Equal(t, tt.want, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.body)
		})
	}
}

func TestMiddleware_CustomHandlers(t *testing.T) {
	manager := setupTestManager(t)
	r := setupRouter(Config{
		Source:    manager,
		GetUserID: FromHeader("X-User-ID"),
		OnNotPremium: func(c *gongin.Context, status *premium.Status) {
			c.JSON(http.StatusForbidden, gongin.H{"upgrade": status.UserID})
		},
		OnUnauthorized: func(c *gongin.Context) {
			c.String(http.StatusTeapot, "login")
		},
	})

	rec := get(r, "free")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), `"upgrade":"free"`)

	rec = get(r, "")
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestExtractors(t *testing.T) {
	gongin.SetMode(gongin.TestMode)
	manager := setupTestManager(t)

	r := gongin.New()
	r.GET("/users/:id", Middleware(Config{Source: manager, GetUserID: FromParam("id")}), func(c *gongin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/query", Middleware(Config{Source: manager, GetUserID: FromQuery("user")}), func(c *gongin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/ctx", func(c *gongin.Context) {
		c.Set("UserID", "premium")
	}, Middleware(Config{Source: manager, GetUserID: FromContext("UserID")}), func(c *gongin.Context) {
		c.Status(http.StatusOK)
	})

	for _, path := range []string{"/users/premium", "/query?user=premium", "/ctx"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestMiddleware_PanicsOnMissingConfig(t *testing.T) {
	assert.Panics(t, func() { Middleware(Config{GetUserID: FromHeader("X-User-ID")}) })
	assert.Panics(t, func() { Middleware(Config{Source: failingSource{}}) })
}
