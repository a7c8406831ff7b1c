// Package redis provides a Redis implementation of premium.Storage.
// Statuses are JSON values; purchases are written with SETNX so a transaction
// id can only be recorded once across all instances.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mihaimyh/goentitle/pkg/premium"
)

// Storage implements premium.Storage using Redis
type Storage struct {
	client redis.UniversalClient
	config Config
}

var _ premium.Storage = (*Storage)(nil)

// Config holds Redis storage configuration
type Config struct {
	// KeyPrefix is prepended to all Redis keys (default: "goentitle:")
	KeyPrefix string

	// StatusTTL is the TTL for status keys (0 = no expiration)
	StatusTTL time.Duration

	// PurchaseTTL is the TTL for purchase records (0 = no expiration)
	PurchaseTTL time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		KeyPrefix: "goentitle:",
	}
}

// New creates a new Redis storage adapter.
// The client can be *redis.Client, *redis.ClusterClient, or *redis.Ring
func New(client redis.UniversalClient, config Config) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "goentitle:"
	}
	return &Storage{client: client, config: config}, nil
}

func (s *Storage) statusKey(userID string) string {
	return s.config.KeyPrefix + "status:" + userID
}

func (s *Storage) purchaseKey(transactionID string) string {
	return s.config.KeyPrefix + "purchase:" + transactionID
}

// GetStatus implements premium.Storage
func (s *Storage) GetStatus(ctx context.Context, userID string) (*premium.Status, error) {
	data, err := s.client.Get(ctx, s.statusKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, premium.ErrStatusNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}

	var status premium.Status
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status: %w", err)
	}
	return &status, nil
}

// SetStatus implements premium.Storage
func (s *Storage) SetStatus(ctx context.Context, status *premium.Status) error {
	if status == nil || status.UserID == "" {
		return fmt.Errorf("invalid status")
	}

	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	if err := s.client.Set(ctx, s.statusKey(status.UserID), data, s.config.StatusTTL).Err(); err != nil {
		return fmt.Errorf("failed to set status: %w", err)
	}
	return nil
}

// RecordPurchase implements premium.Storage
func (s *Storage) RecordPurchase(ctx context.Context, purchase *premium.Purchase) error {
	if purchase == nil || purchase.TransactionID == "" {
		return fmt.Errorf("invalid purchase")
	}

	data, err := json.Marshal(purchase)
	if err != nil {
		return fmt.Errorf("failed to marshal purchase: %w", err)
	}
	ok, err := s.client.SetNX(ctx, s.purchaseKey(purchase.TransactionID), data, s.config.PurchaseTTL).Result()
	if err != nil {
		return fmt.Errorf("failed to record purchase: %w", err)
	}
	if !ok {
		return premium.ErrPurchaseExists
	}
	return nil
}

// GetPurchase implements premium.Storage
func (s *Storage) GetPurchase(ctx context.Context, transactionID string) (*premium.Purchase, error) {
	data, err := s.client.Get(ctx, s.purchaseKey(transactionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get purchase: %w", err)
	}

	var purchase premium.Purchase
	if err := json.Unmarshal(data, &purchase); err != nil {
		return nil, fmt.Errorf("failed to unmarshal purchase: %w", err)
	}
	return &purchase, nil
}

// Now returns the Redis server time so expiry decisions agree across instances
func (s *Storage) Now(ctx context.Context) (time.Time, error) {
	t, err := s.client.Time(ctx).Result()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get redis time: %w", err)
	}
	return t.UTC(), nil
}
