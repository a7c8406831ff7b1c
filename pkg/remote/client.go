// Package remote is the HTTP client for the payments collaborator.
// It implements entitle.Verifier and entitle.StatusChecker and backs the
// server payment adapter.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/mihaimyh/goentitle/pkg/entitle"
)

// SessionHeader carries the session identifier
const SessionHeader = "X-Session-ID"

const maxResponseBytes = 1 << 20

// Config configures the remote client
type Config struct {
	// BaseURL is the collaborator root, e.g. "https://api.example.com/api" (required)
	BaseURL string

	// HTTPClient is optional. Default: client with 15s timeout
	HTTPClient *http.Client

	// SessionID is sent as X-Session-ID when non-empty
	SessionID string

	// BreakerFailures is the number of consecutive failures that open the circuit.
	// Default: 5
	BreakerFailures uint32

	// BreakerTimeout is how long the circuit stays open. Default: 30s
	BreakerTimeout time.Duration

	// Logger is optional. Default: NoopLogger
	Logger entitle.Logger
}

// Client talks to the /payments endpoints
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
	logger  entitle.Logger

	mu        sync.RWMutex
	sessionID string
}

// New creates a remote client
func New(config Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(config.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("%w: base URL is required", entitle.ErrInvalidConfig)
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if config.BreakerFailures == 0 {
		config.BreakerFailures = 5
	}
	if config.BreakerTimeout <= 0 {
		config.BreakerTimeout = 30 * time.Second
	}
	if config.Logger == nil {
		config.Logger = &entitle.NoopLogger{}
	}

	c := &Client{
		baseURL:   base,
		http:      config.HTTPClient,
		logger:    config.Logger,
		sessionID: config.SessionID,
	}
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "payments",
		MaxRequests: 1,
		Timeout:     config.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.BreakerFailures
		},
		// only outages count against the circuit; 4xx answers are the server working
		IsSuccessful: func(err error) bool {
			var se *StatusError
			if errors.As(err, &se) {
				return !se.Temporary()
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("remote circuit breaker state changed",
				entitle.F("name", name), entitle.F("from", from.String()), entitle.F("to", to.String()))
		},
	})
	return c, nil
}

// SetSessionID changes the session identifier sent with every request.
// An empty id stops sending the header.
func (c *Client) SetSessionID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = id
}

// SessionID returns the current session identifier
func (c *Client) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

type envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Products fetches the remote catalog
func (c *Client) Products(ctx context.Context) ([]entitle.Product, error) {
	var resp struct {
		envelope
		Products []entitle.Product `json:"products"`
	}
	if err := c.do(ctx, http.MethodGet, "/payments/products", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch products: %w", err)
	}
	return resp.Products, nil
}

// CreatePaymentIntent asks the back-end for a card payment handle
func (c *Client) CreatePaymentIntent(ctx context.Context, productID string) (entitle.PaymentIntent, error) {
	var resp struct {
		envelope
		entitle.PaymentIntent
	}
	body := map[string]string{"productId": productID}
	if err := c.do(ctx, http.MethodPost, "/payments/create-intent", body, &resp); err != nil {
		return entitle.PaymentIntent{}, fmt.Errorf("failed to create payment intent: %w", err)
	}
	if resp.IntentID == "" && resp.ClientSecret == "" {
		return entitle.PaymentIntent{}, fmt.Errorf("%w: payment intent without id", ErrUnexpectedResponse)
	}
	return resp.PaymentIntent, nil
}

// Verify confirms a store purchase. Implements entitle.Verifier.
func (c *Client) Verify(ctx context.Context, req entitle.VerifyRequest) (bool, error) {
	var resp struct {
		envelope
		Verified bool `json:"verified"`
	}
	if err := c.do(ctx, http.MethodPost, "/payments/verify-purchase", req, &resp); err != nil {
		return false, fmt.Errorf("failed to verify purchase: %w", err)
	}
	return resp.Verified, nil
}

// SubscriptionStatus returns the card subscription state
func (c *Client) SubscriptionStatus(ctx context.Context) (entitle.SubscriptionStatus, error) {
	var resp struct {
		envelope
		Data entitle.SubscriptionStatus `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/payments/subscription-status", nil, &resp); err != nil {
		return entitle.SubscriptionStatus{}, fmt.Errorf("failed to fetch subscription status: %w", err)
	}
	return resp.Data, nil
}

// PremiumStatus is the authoritative entitlement. Implements entitle.StatusChecker.
func (c *Client) PremiumStatus(ctx context.Context) (bool, error) {
	var resp struct {
		envelope
		Data struct {
			IsPremium bool `json:"isPremium"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/payments/premium-status", nil, &resp); err != nil {
		return false, fmt.Errorf("failed to fetch premium status: %w", err)
	}
	return resp.Data.IsPremium, nil
}

// do sends one request through the circuit breaker and decodes the envelope into out
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.roundTrip(ctx, method, path, payload)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", entitle.ErrNetwork, ErrCircuitOpen)
	}
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}
	var env envelope
	_ = json.Unmarshal(body, &env) //nolint:errcheck // decoded above
	if !env.Success {
		msg := env.Error
		if msg == "" {
			msg = "request unsuccessful"
		}
		return fmt.Errorf("%w: %s", ErrUnexpectedResponse, msg)
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if id := c.SessionID(); id != "" {
		req.Header.Set(SessionHeader, id)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", entitle.ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", entitle.ErrNetwork, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var env envelope
		_ = json.Unmarshal(body, &env) //nolint:errcheck // best-effort error message
		c.logger.Debug("remote request failed",
			entitle.F("method", method), entitle.F("path", path), entitle.F("status", resp.StatusCode))
		return nil, &StatusError{Code: resp.StatusCode, Message: env.Error}
	}
	return body, nil
}
