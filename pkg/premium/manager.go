// Package premium is the server-side ledger of premium entitlements and
// verified store purchases.
package premium

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mihaimyh/goentitle/pkg/entitle"
)

// Config configures a Manager
type Config struct {
	// ExpiryRules decide how long a product grants premium.
	// Default: DefaultExpiryRules()
	ExpiryRules []ExpiryRule

	// CacheTTL is how long statuses are cached. Default: 30s. Negative disables caching.
	CacheTTL time.Duration

	// Cache is optional. Default: LRUCache with 1000 entries (NoopCache when caching is disabled)
	Cache Cache

	// OnChange is called after a user's premium flag changes
	OnChange func(ctx context.Context, previous, current *Status)

	// TimeSource overrides Now with the storage clock when set. Errors fall back to Now.
	TimeSource TimeSource

	// Now is the clock. Default: time.Now
	Now func() time.Time

	// Logger is optional. Default: NoopLogger
	Logger entitle.Logger

	// Metrics is optional. Default: NoopMetrics
	Metrics Metrics
}

// Manager grants, revokes and answers premium status
type Manager struct {
	storage Storage
	rules   []ExpiryRule
	ttl     time.Duration
	cache   Cache
	change  func(ctx context.Context, previous, current *Status)
	clock   TimeSource
	now     func() time.Time
	logger  entitle.Logger
	metrics Metrics
}

// NewManager creates a premium manager on top of storage
func NewManager(storage Storage, config Config) (*Manager, error) {
	if storage == nil {
		return nil, ErrStorageUnavailable
	}

	if len(config.ExpiryRules) == 0 {
		config.ExpiryRules = DefaultExpiryRules()
	}
	if config.CacheTTL == 0 {
		config.CacheTTL = 30 * time.Second
	}
	if config.Cache == nil {
		if config.CacheTTL > 0 {
			config.Cache = NewLRUCache(1000)
		} else {
			config.Cache = &NoopCache{}
		}
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.Logger == nil {
		config.Logger = &entitle.NoopLogger{}
	}
	if config.Metrics == nil {
		config.Metrics = &NoopMetrics{}
	}

	return &Manager{
		storage: storage,
		rules:   config.ExpiryRules,
		ttl:     config.CacheTTL,
		cache:   config.Cache,
		change:  config.OnChange,
		clock:   config.TimeSource,
		now:     config.Now,
		logger:  config.Logger,
		metrics: config.Metrics,
	}, nil
}

// Status returns the user's current premium status. Unknown users are free.
// An expired grant is downgraded in storage on read.
func (m *Manager) Status(ctx context.Context, userID string) (*Status, error) {
	start := time.Now()
	status, err := m.status(ctx, userID)
	isPremium := err == nil && status.IsPremium
	m.metrics.RecordStatusLookup(isPremium, time.Since(start), err)
	return status, err
}

func (m *Manager) status(ctx context.Context, userID string) (*Status, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidUser
	}

	if cached, ok := m.cache.Get(userID); ok {
		m.metrics.RecordCacheHit()
		if cached.Active(m.current(ctx)) || !cached.IsPremium {
			return cached, nil
		}
	} else {
		m.metrics.RecordCacheMiss()
	}

	stored, err := m.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	if stored.IsPremium && !stored.Active(m.current(ctx)) {
		expired := stored.clone()
		expired.IsPremium = false
		if err := m.save(ctx, expired); err != nil {
			// still report free; the next read retries the downgrade
			m.logger.Warn("failed to persist premium expiry",
				entitle.F("user_id", userID), entitle.F("error", err.Error()))
		} else {
			m.logger.Info("premium expired",
				entitle.F("user_id", userID), entitle.F("product_id", stored.ProductID))
			m.notify(ctx, stored, expired)
		}
		stored = expired
	}

	m.cache.Set(stored, m.ttl)
	return stored.clone(), nil
}

// load returns the stored status, or a free status for unknown users
func (m *Manager) load(ctx context.Context, userID string) (*Status, error) {
	start := time.Now()
	stored, err := m.storage.GetStatus(ctx, userID)
	if errors.Is(err, ErrStatusNotFound) {
		err = nil
		stored = &Status{UserID: userID}
	}
	m.metrics.RecordStorageOperation("get_status", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to get premium status: %w", err)
	}
	return stored, nil
}

func (m *Manager) save(ctx context.Context, status *Status) error {
	start := time.Now()
	err := m.storage.SetStatus(ctx, status)
	m.metrics.RecordStorageOperation("set_status", time.Since(start), err)
	m.cache.Invalidate(status.UserID)
	if err != nil {
		return fmt.Errorf("failed to set premium status: %w", err)
	}
	return nil
}

// Grant unlocks premium for req.ProductID. Returns false when the event is
// older than the stored status and was ignored.
func (m *Manager) Grant(ctx context.Context, req GrantRequest) (bool, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return false, ErrInvalidUser
	}
	if req.EventTime.IsZero() {
		req.EventTime = m.current(ctx)
	}

	expires := req.ExpiresAt
	if expires == nil {
		var ok bool
		expires, ok = expiryFor(m.rules, req.ProductID, req.EventTime)
		if !ok {
			return false, fmt.Errorf("%w: %q", ErrUnknownProduct, req.ProductID)
		}
	}

	previous, err := m.load(ctx, req.UserID)
	if err != nil {
		return false, err
	}
	if previous.UpdatedAt.After(req.EventTime) {
		m.logger.Debug("ignoring out-of-order grant",
			entitle.F("user_id", req.UserID), entitle.F("product_id", req.ProductID),
			entitle.F("source", string(req.Source)))
		m.metrics.RecordGrant(req.Source, req.ProductID, false)
		return false, nil
	}

	current := &Status{
		UserID:    req.UserID,
		IsPremium: true,
		ProductID: req.ProductID,
		ExpiresAt: expires,
		Source:    req.Source,
		UpdatedAt: req.EventTime,
	}
	if err := m.save(ctx, current); err != nil {
		return false, err
	}

	m.metrics.RecordGrant(req.Source, req.ProductID, true)
	m.logger.Info("premium granted",
		entitle.F("user_id", req.UserID), entitle.F("product_id", req.ProductID),
		entitle.F("source", string(req.Source)))
	m.notify(ctx, previous, current)
	return true, nil
}

// Revoke removes premium. Returns false when the event is older than the
// stored status or the user was not premium. A newer revoke is stored even for
// free users.
func (m *Manager) Revoke(ctx context.Context, req RevokeRequest) (bool, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return false, ErrInvalidUser
	}
	if req.EventTime.IsZero() {
		req.EventTime = m.current(ctx)
	}

	previous, err := m.load(ctx, req.UserID)
	if err != nil {
		return false, err
	}
	if previous.UpdatedAt.After(req.EventTime) {
		m.metrics.RecordRevoke(req.Source, false)
		return false, nil
	}

	current := &Status{
		UserID:    req.UserID,
		Source:    req.Source,
		UpdatedAt: req.EventTime,
	}
	if err := m.save(ctx, current); err != nil {
		return false, err
	}
	if !previous.IsPremium {
		// recorded so an older grant delivered later stays ignored
		m.metrics.RecordRevoke(req.Source, false)
		return false, nil
	}

	m.metrics.RecordRevoke(req.Source, true)
	m.logger.Info("premium revoked",
		entitle.F("user_id", req.UserID), entitle.F("source", string(req.Source)))
	m.notify(ctx, previous, current)
	return true, nil
}

// RecordVerifiedPurchase stores a verified store transaction and grants premium.
// Replaying the same transaction returns false and only re-applies the original
// grant; a transaction recorded for another user fails with ErrPurchaseOwnership.
func (m *Manager) RecordVerifiedPurchase(ctx context.Context, purchase Purchase, source Source) (bool, error) {
	if strings.TrimSpace(purchase.UserID) == "" {
		return false, ErrInvalidUser
	}
	if purchase.TransactionID == "" {
		return false, errors.New("transaction id is required")
	}
	if _, ok := expiryFor(m.rules, purchase.ProductID, m.now()); !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownProduct, purchase.ProductID)
	}
	if purchase.CreatedAt.IsZero() {
		purchase.CreatedAt = m.current(ctx)
	}

	start := time.Now()
	err := m.storage.RecordPurchase(ctx, &purchase)
	m.metrics.RecordStorageOperation("record_purchase", time.Since(start), err)

	if errors.Is(err, ErrPurchaseExists) {
		existing, getErr := m.storage.GetPurchase(ctx, purchase.TransactionID)
		if getErr != nil {
			return false, fmt.Errorf("failed to get purchase: %w", getErr)
		}
		if existing != nil && existing.UserID != purchase.UserID {
			m.logger.Warn("rejecting purchase replay from another user",
				entitle.F("transaction_id", purchase.TransactionID), entitle.F("user_id", purchase.UserID))
			return false, ErrPurchaseOwnership
		}
		if existing != nil {
			// repairs a grant lost after the purchase was recorded, unless it has run out
			expires, _ := expiryFor(m.rules, existing.ProductID, existing.CreatedAt)
			if expires != nil && !expires.After(m.current(ctx)) {
				return false, nil
			}
			if _, err := m.Grant(ctx, GrantRequest{
				UserID:    existing.UserID,
				ProductID: existing.ProductID,
				Source:    source,
				EventTime: existing.CreatedAt,
			}); err != nil {
				return false, err
			}
		}
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to record purchase: %w", err)
	}

	return m.Grant(ctx, GrantRequest{
		UserID:    purchase.UserID,
		ProductID: purchase.ProductID,
		Source:    source,
		EventTime: purchase.CreatedAt,
	})
}

// current returns the storage clock when configured, else the local clock
func (m *Manager) current(ctx context.Context) time.Time {
	if m.clock != nil {
		t, err := m.clock.Now(ctx)
		if err == nil {
			return t
		}
		m.logger.Debug("time source unavailable, using local clock", entitle.F("error", err.Error()))
	}
	return m.now()
}

func (m *Manager) notify(ctx context.Context, previous, current *Status) {
	if m.change == nil || previous.IsPremium == current.IsPremium {
		return
	}
	m.change(ctx, previous.clone(), current.clone())
}

// CacheStats returns status cache statistics
func (m *Manager) CacheStats() CacheStats {
	return m.cache.Stats()
}
