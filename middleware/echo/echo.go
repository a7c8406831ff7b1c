// Package echo provides Echo middleware that gates routes behind premium
package echo

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mihaimyh/goentitle/pkg/premium"
)

// StatusKey is the Echo context key the premium status is stored under
const StatusKey = "entitle.status"

// UserIDExtractor extracts the user ID from an Echo context
// Return empty string if user is not authenticated
type UserIDExtractor func(c echo.Context) string

// Config holds middleware configuration
type Config struct {
	// Source answers premium status, usually a *premium.Manager (required)
	Source premium.StatusReader

	// GetUserID extracts user ID from context (required)
	GetUserID UserIDExtractor

	// OnNotPremium is called when the user is not premium
	// If nil, returns 402 Payment Required
	OnNotPremium func(c echo.Context, status *premium.Status) error

	// OnUnauthorized is called when user is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(c echo.Context) error

	// OnError is called when the status lookup fails
	// If nil, returns 503 Service Unavailable
	OnError func(c echo.Context, err error) error
}

// Middleware creates an Echo middleware that only lets premium users through
func Middleware(cfg Config) echo.MiddlewareFunc {
	// Validate required configuration at startup (fail fast)
	if cfg.Source == nil {
		panic("goentitle/echo: Config.Source is required")
	}
	if cfg.GetUserID == nil {
		panic("goentitle/echo: Config.GetUserID is required")
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID := cfg.GetUserID(c)
			if userID == "" {
				if cfg.OnUnauthorized != nil {
					return cfg.OnUnauthorized(c)
				}
				return defaultUnauthorized(c)
			}

			status, err := cfg.Source.Status(c.Request().Context(), userID)
			if err != nil {
				if cfg.OnError != nil {
					return cfg.OnError(c, err)
				}
				return defaultError(c)
			}

			if !status.IsPremium {
				if cfg.OnNotPremium != nil {
					return cfg.OnNotPremium(c, status)
				}
				return defaultNotPremium(c)
			}

			c.Set(StatusKey, status)
			return next(c)
		}
	}
}

// StatusFrom returns the premium status stored by Middleware
func StatusFrom(c echo.Context) (*premium.Status, bool) {
	status, ok := c.Get(StatusKey).(*premium.Status)
	return status, ok
}

// Default error handlers

func defaultUnauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, map[string]interface{}{"success": false, "error": "Unauthorized"})
}

func defaultNotPremium(c echo.Context) error {
	return c.JSON(http.StatusPaymentRequired, map[string]interface{}{"success": false, "error": "Premium required"})
}

func defaultError(c echo.Context) error {
	return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
		"success": false,
		"error":   "Premium status unavailable",
	})
}

// Convenience extractors for User ID

// FromContext returns a UserIDExtractor that gets user ID from Echo context values
// set by an earlier auth middleware via c.Set("UserID", "...").
func FromContext(key string) UserIDExtractor {
	return func(c echo.Context) string {
		if val := c.Get(key); val != nil {
			if str, ok := val.(string); ok {
				return str
			}
		}
		return ""
	}
}

// FromHeader returns a UserIDExtractor that gets user ID from a header
func FromHeader(headerName string) UserIDExtractor {
	return func(c echo.Context) string {
		return c.Request().Header.Get(headerName)
	}
}

// FromParam returns a UserIDExtractor that gets user ID from a route parameter
func FromParam(paramName string) UserIDExtractor {
	return func(c echo.Context) string {
		return c.Param(paramName)
	}
}

// FromQuery returns a UserIDExtractor that gets user ID from a query parameter
func FromQuery(queryName string) UserIDExtractor {
	return func(c echo.Context) string {
		return c.QueryParam(queryName)
	}
}
