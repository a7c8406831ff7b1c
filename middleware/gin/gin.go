// Package gin provides Gin middleware that gates routes behind premium
package gin

import (
	"net/http"

	gongin "github.com/gin-gonic/gin"

	"github.com/mihaimyh/goentitle/pkg/premium"
)

// StatusKey is the Gin context key the premium status is stored under
const StatusKey = "entitle.status"

// UserIDExtractor extracts the user ID from a Gin context
// Return empty string if user is not authenticated
type UserIDExtractor func(c *gongin.Context) string

// Config holds middleware configuration
type Config struct {
	// Source answers premium status, usually a *premium.Manager (required)
	Source premium.StatusReader

	// GetUserID extracts user ID from context (required)
	GetUserID UserIDExtractor

	// OnNotPremium is called when the user is not premium
	// If nil, returns 402 Payment Required
	OnNotPremium func(c *gongin.Context, status *premium.Status)

	// OnUnauthorized is called when user is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(c *gongin.Context)

	// OnError is called when the status lookup fails
	// If nil, returns 503 Service Unavailable
	OnError func(c *gongin.Context, err error)
}

// Middleware creates a Gin middleware that only lets premium users through
func Middleware(cfg Config) gongin.HandlerFunc {
	// Validate required configuration at startup (fail fast)
	if cfg.Source == nil {
		panic("goentitle/gin: Config.Source is required")
	}
	if cfg.GetUserID == nil {
		panic("goentitle/gin: Config.GetUserID is required")
	}

	return func(c *gongin.Context) {
		userID := cfg.GetUserID(c)
		if userID == "" {
			if cfg.OnUnauthorized != nil {
				cfg.OnUnauthorized(c)
			} else {
				defaultUnauthorized(c)
			}
			c.Abort()
			return
		}

		status, err := cfg.Source.Status(c.Request.Context(), userID)
		if err != nil {
			if cfg.OnError != nil {
				cfg.OnError(c, err)
			} else {
				defaultError(c)
			}
			c.Abort()
			return
		}

		if !status.IsPremium {
			if cfg.OnNotPremium != nil {
				cfg.OnNotPremium(c, status)
			} else {
				defaultNotPremium(c)
			}
			c.Abort()
			return
		}

		c.Set(StatusKey, status)
		c.Next()
	}
}

// StatusFrom returns the premium status stored by Middleware
func StatusFrom(c *gongin.Context) (*premium.Status, bool) {
	val, exists := c.Get(StatusKey)
	if !exists {
		return nil, false
	}
	status, ok := val.(*premium.Status)
	return status, ok
}

// Default error handlers

func defaultUnauthorized(c *gongin.Context) {
	c.JSON(http.StatusUnauthorized, gongin.H{"success": false, "error": "Unauthorized"})
}

func defaultNotPremium(c *gongin.Context) {
	c.JSON(http.StatusPaymentRequired, gongin.H{"success": false, "error": "Premium required"})
}

func defaultError(c *gongin.Context) {
	c.JSON(http.StatusServiceUnavailable, gongin.H{"success": false, "error": "Premium status unavailable"})
}

// Convenience extractors for User ID

// FromContext returns a UserIDExtractor that gets user ID from Gin context values
// This is the recommended approach for integrating with auth middleware that sets
// user information via c.Set("UserID", "...") or similar.
//
// Example:
//
//	// In your auth middleware:
//	c.Set("UserID", userID)
//
//	// In premium middleware config:
//	GetUserID: gin.FromContext("UserID")
func FromContext(key string) UserIDExtractor {
	return func(c *gongin.Context) string {
		if val, exists := c.Get(key); exists {
			if str, ok := val.(string); ok {
				return str
			}
		}
		return ""
	}
}

// FromHeader returns a UserIDExtractor that gets user ID from a header
func FromHeader(headerName string) UserIDExtractor {
	return func(c *gongin.Context) string {
		return c.GetHeader(headerName)
	}
}

// FromParam returns a UserIDExtractor that gets user ID from a route parameter
func FromParam(paramName string) UserIDExtractor {
	return func(c *gongin.Context) string {
		return c.Param(paramName)
	}
}

// FromQuery returns a UserIDExtractor that gets user ID from a query parameter
func FromQuery(queryName string) UserIDExtractor {
	return func(c *gongin.Context) string {
		return c.Query(queryName)
	}
}
