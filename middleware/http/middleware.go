// Package http provides HTTP middleware that gates handlers behind premium
package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/mihaimyh/goentitle/pkg/premium"
)

// UserIDExtractor extracts the user ID from an HTTP request
// Return empty string if user is not authenticated
type UserIDExtractor func(r *http.Request) string

// Config holds middleware configuration
type Config struct {
	// Source answers premium status, usually a *premium.Manager (required)
	Source premium.StatusReader

	// GetUserID extracts user ID from request (required)
	GetUserID UserIDExtractor

	// OnNotPremium is called when the user is not premium
	// If nil, returns 402 Payment Required
	OnNotPremium func(w http.ResponseWriter, r *http.Request, status *premium.Status)

	// OnUnauthorized is called when user is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(w http.ResponseWriter, r *http.Request)

	// OnError is called when the status lookup fails. The request is never
	// let through on error.
	// If nil, returns 503 Service Unavailable
	OnError func(w http.ResponseWriter, r *http.Request, err error)
}

// Middleware creates an HTTP middleware that only lets premium users through.
// The status is available to the next handler via StatusFromContext.
func Middleware(config Config) func(http.Handler) http.Handler {
	if config.Source == nil {
		panic("goentitle/http: Config.Source is required")
	}
	if config.GetUserID == nil {
		panic("goentitle/http: Config.GetUserID is required")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := config.GetUserID(r)
			if userID == "" {
				if config.OnUnauthorized != nil {
					config.OnUnauthorized(w, r)
				} else {
					writeError(w, http.StatusUnauthorized, "Unauthorized")
				}
				return
			}

			ctx := r.Context()
			status, err := config.Source.Status(ctx, userID)
			if err != nil {
				if config.OnError != nil {
					config.OnError(w, r, err)
				} else {
					writeError(w, http.StatusServiceUnavailable, "Premium status unavailable")
				}
				return
			}

			if !status.IsPremium {
				if config.OnNotPremium != nil {
					config.OnNotPremium(w, r, status)
				} else {
					writeError(w, http.StatusPaymentRequired, "Premium required")
				}
				return
			}

			ctx = context.WithValue(ctx, statusKey, status)
			next.ServeHTTP(w, r.WithContext(WithUserID(ctx, userID)))
		})
	}
}

// HandlerFunc creates an HTTP middleware that gates on premium (HandlerFunc version)
func HandlerFunc(config Config) func(http.HandlerFunc) http.HandlerFunc {
	middleware := Middleware(config)
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			middleware(next).ServeHTTP(w, r)
		}
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{ //nolint:errcheck // response already committed
		"success": false,
		"error":   msg,
	})
}

// ContextKey is a type for context keys
type ContextKey string

const (
	// UserIDKey is the context key for user ID
	UserIDKey ContextKey = "entitle:userID"

	statusKey ContextKey = "entitle:status"
)

// StatusFromContext returns the premium status stored by Middleware
func StatusFromContext(ctx context.Context) (*premium.Status, bool) {
	status, ok := ctx.Value(statusKey).(*premium.Status)
	return status, ok
}

// FromContext returns an UserIDExtractor that gets user ID from request context
func FromContext(key ContextKey) UserIDExtractor {
	return func(r *http.Request) string {
		if userID, ok := r.Context().Value(key).(string); ok {
			return userID
		}
		return ""
	}
}

// FromHeader returns an UserIDExtractor that gets user ID from a header
func FromHeader(headerName string) UserIDExtractor {
	return func(r *http.Request) string {
		return r.Header.Get(headerName)
	}
}

// WithUserID adds user ID to request context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}
