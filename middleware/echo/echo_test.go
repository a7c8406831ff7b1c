package echo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mihaimyh/goentitle/pkg/premium"
	"github.com/mihaimyh/goentitle/storage/memory"
)

type failingSource struct{}

func (failingSource) Status(context.Context, string) (*premium.Status, error) {
	return nil, errors.New("connection refused")
}

// Test helper to create a test manager with one premium user
func setupTestManager(t *testing.T) *premium.Manager {
	t.Helper()

	manager, err := premium.NewManager(memory.New(), premium.Config{})
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	_, err = manager.Grant(context.Background(), premium.GrantRequest{
		UserID:    "premium",
		ProductID: "premium_yearly",
		Source:    premium.SourceAdmin,
		EventTime: time.Now(),
	})
	if err != nil {
		t.Fatalf("Failed to grant premium: %v", err)
	}
	return manager
}

func setupEcho(cfg Config) *echo.Echo {
	e := echo.New()
	e.Use(Middleware(cfg))
	e.GET("/premium", func(c echo.Context) error {
		status, ok := StatusFrom(c)
		if !ok {
			return c.NoContent(http.StatusInternalServerError)
		}
		return c.String(http.StatusOK, status.ProductID)
	})
	return e
}

func get(e *echo.Echo, userID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/premium", nil)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
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
		{"premium user", manager, "premium", http.StatusOK, "premium_yearly"},
		{"no user", manager, "", http.StatusUnauthorized, "Unauthorized"},
		{"free user", manager, "free", http.StatusPaymentRequired, "Premium required"},
		{"status error fails closed", failingSource{}, "premium", http.StatusServiceUnavailable, "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := setupEcho(Config{Source: tt.source, GetUserID: FromHeader("X-User-ID")})
			rec := get(e, tt.userID)
			if rec.Code != tt.want {
				t.Fatalf("Expected status %d, got %d", tt.want, rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.body) {
				t.Errorf("Expected body to contain %q, got %q", tt.body, rec.Body.String())
			}
		})
	}
}

func TestMiddleware_CustomHandlers(t *testing.T) {
	manager := setupTestManager(t)
	var gotErr error

	cfg := Config{
		Source:    manager,
		GetUserID: FromHeader("X-User-ID"),
		OnNotPremium: func(c echo.Context, status *premium.Status) error {
			return c.String(http.StatusForbidden, "upgrade "+status.UserID)
		},
		OnError: func(c echo.Context, err error) error {
			gotErr = err
			return c.NoContent(http.StatusBadGateway)
		},
	}

	rec := get(setupEcho(cfg), "free")
	if rec.Code != http.StatusForbidden || rec.Body.String() != "upgrade free" {
		t.Errorf("Expected custom not-premium response, got %d %q", rec.Code, rec.Body.String())
	}

	cfg.Source = failingSource{}
	rec = get(setupEcho(cfg), "free")
	if rec.Code != http.StatusBadGateway {
		t.Errorf("Expected custom error 502, got %d", rec.Code)
	}
	if gotErr == nil {
		t.Error("Expected OnError to receive the lookup error")
	}
}

func TestExtractors(t *testing.T) {
	manager := setupTestManager(t)
	ok := func(c echo.Context) error { return c.NoContent(http.StatusOK) }

	e := echo.New()
	e.GET("/users/:id", ok, Middleware(Config{Source: manager, GetUserID: FromParam("id")}))
	e.GET("/query", ok, Middleware(Config{Source: manager, GetUserID: FromQuery("user")}))
	e.GET("/ctx", ok, func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set("UserID", "premium")
			return next(c)
		}
	}, Middleware(Config{Source: manager, GetUserID: FromContext("UserID")}))

	for _, path := range []string{"/users/premium", "/query?user=premium", "/ctx"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected status 200, got %d", path, rec.Code)
		}
	}
}

func TestMiddleware_PanicsOnMissingConfig(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected panic for missing GetUserID")
		}
	}()
	Middleware(Config{Source: failingSource{}})
}
