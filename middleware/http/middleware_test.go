package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mihaimyh/goentitle/pkg/premium"
	"github.com/mihaimyh/goentitle/storage/memory"
)

var testNow = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

type failingSource struct{}

func (failingSource) Status(context.Context, string) (*premium.Status, error) {
	return nil, errors.New("connection refused")
}

// Test helper to create a test manager
func setupTestManager(t *testing.T) *premium.Manager {
	t.Helper()

	manager, err := premium.NewManager(memory.New(), premium.Config{
		Now: func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	return manager
}

// Test helper to grant premium
func setupPremium(t *testing.T, manager *premium.Manager, userID, productID string) {
	t.Helper()

	_, err := manager.Grant(context.Background(), premium.GrantRequest{
		UserID:    userID,
		ProductID: productID,
		Source:    premium.SourceAdmin,
		EventTime: testNow,
	})
	if err != nil {
		t.Fatalf("Failed to grant premium: %v", err)
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status, ok := StatusFromContext(r.Context())
		if !ok {
			http.Error(w, "no status", http.StatusInternalServerError)
			return
		}
		w.Header().Set("X-Product", status.ProductID)
		w.Header().Set("X-User", r.Context().Value(UserIDKey).(string))
		w.WriteHeader(http.StatusOK)
	})
}

func serve(h http.Handler, userID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/premium", nil)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_Premium(t *testing.T) {
	manager := setupTestManager(t)
	setupPremium(t, manager, "user1", "premium_lifetime")

	handler := Middleware(Config{
		Source:    manager,
		GetUserID: FromHeader("X-User-ID"),
	})(okHandler())

	rec := serve(handler, "user1")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("X-Product"); got != "premium_lifetime" {
		t.Errorf("Expected product premium_lifetime in context, got %q", got)
	}
	if got := rec.Header().Get("X-User"); got != "user1" {
		t.Errorf("Expected user1 in context, got %q", got)
	}
}

func TestMiddleware_DefaultResponses(t *testing.T) {
	manager := setupTestManager(t)
	setupPremium(t, manager, "premium", "premium_monthly")

	tests := []struct {
		name   string
		source premium.StatusReader
		userID string
		want   int
	}{
		{"no user", manager, "", http.StatusUnauthorized},
		{"free user", manager, "free", http.StatusPaymentRequired},
		{"status error fails closed", failingSource{}, "premium", http.StatusServiceUnavailable},
		{"premium user", manager, "premium", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := Middleware(Config{
				Source:    tt.source,
				GetUserID: FromHeader("X-User-ID"),
			})(okHandler())

			rec := serve(handler, tt.userID)
			if rec.Code != tt.want {
				t.Fatalf("Expected status %d, got %d", tt.want, rec.Code)
			}
			if tt.want == http.StatusOK {
				return
			}

			var body map[string]interface{}
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("Failed to decode body: %v", err)
			}
			if body["success"] != false || body["error"] == "" {
				t.Errorf("Unexpected error body: %v", body)
			}
		})
	}
}

func TestMiddleware_ExpiredGrant(t *testing.T) {
	now := testNow
	manager, err := premium.NewManager(memory.New(), premium.Config{
		CacheTTL: -1,
		Now:      func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	setupPremium(t, manager, "user1", "premium_monthly")

	handler := Middleware(Config{Source: manager, GetUserID: FromHeader("X-User-ID")})(okHandler())
	if rec := serve(handler, "user1"); rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200 before expiry, got %d", rec.Code)
	}

	now = testNow.Add(31 * 24 * time.Hour)
	if rec := serve(handler, "user1"); rec.Code != http.StatusPaymentRequired {
		t.Fatalf("Expected status 402 after expiry, got %d", rec.Code)
	}
}

func TestMiddleware_CustomHandlers(t *testing.T) {
	manager := setupTestManager(t)

	var notPremium *premium.Status
	var gotErr error
	config := Config{
		Source:    manager,
		GetUserID: FromHeader("X-User-ID"),
		OnUnauthorized: func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		},
		OnNotPremium: func(w http.ResponseWriter, _ *http.Request, status *premium.Status) {
			notPremium = status
			w.WriteHeader(http.StatusTeapot)
		},
		OnError: func(w http.ResponseWriter, _ *http.Request, err error) {
			gotErr = err
			w.WriteHeader(http.StatusBadGateway)
		},
	}

	if rec := serve(Middleware(config)(okHandler()), ""); rec.Code != http.StatusForbidden {
		t.Errorf("Expected custom unauthorized 403, got %d", rec.Code)
	}

	if rec := serve(Middleware(config)(okHandler()), "free"); rec.Code != http.StatusTeapot {
		t.Errorf("Expected custom not-premium 418, got %d", rec.Code)
	}
	if notPremium == nil || notPremium.UserID != "free" {
		t.Errorf("Expected OnNotPremium to receive the free status, got %+v", notPremium)
	}

	config.Source = failingSource{}
	if rec := serve(Middleware(config)(okHandler()), "free"); rec.Code != http.StatusBadGateway {
		t.Errorf("Expected custom error 502, got %d", rec.Code)
	}
	if gotErr == nil {
		t.Error("Expected OnError to receive the lookup error")
	}
}

func TestHandlerFunc(t *testing.T) {
	manager := setupTestManager(t)
	setupPremium(t, manager, "user1", "premium_yearly")

	wrap := HandlerFunc(Config{Source: manager, GetUserID: FromContext(UserIDKey)})
	handler := wrap(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithUserID(req.Context(), "user1"))
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", rec.Code)
	}
}

func TestMiddleware_PanicsOnMissingConfig(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected panic for missing Source")
		}
	}()
	Middleware(Config{GetUserID: FromHeader("X-User-ID")})
}
