// Package memory provides an in-memory implementation of premium.Storage.
// It is intended for testing and development.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/mihaimyh/goentitle/pkg/premium"
)

// Storage implements premium.Storage using in-memory maps
type Storage struct {
	mu        sync.RWMutex
	statuses  map[string]premium.Status
	purchases map[string]premium.Purchase
}

var _ premium.Storage = (*Storage)(nil)

// New creates a new in-memory storage adapter
func New() *Storage {
	return &Storage{
		statuses:  make(map[string]premium.Status),
		purchases: make(map[string]premium.Purchase),
	}
}

// GetStatus implements premium.Storage
func (s *Storage) GetStatus(ctx context.Context, userID string) (*premium.Status, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status, ok := s.statuses[userID]
	if !ok {
		return nil, premium.ErrStatusNotFound
	}
	return copyStatus(status), nil
}

// SetStatus implements premium.Storage
func (s *Storage) SetStatus(ctx context.Context, status *premium.Status) error {
	if status == nil || status.UserID == "" {
		return fmt.Errorf("invalid status")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[status.UserID] = *copyStatus(*status)
	return nil
}

// RecordPurchase implements premium.Storage
func (s *Storage) RecordPurchase(ctx context.Context, purchase *premium.Purchase) error {
	if purchase == nil || purchase.TransactionID == "" {
		return fmt.Errorf("invalid purchase")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.purchases[purchase.TransactionID]; exists {
		return premium.ErrPurchaseExists
	}
	s.purchases[purchase.TransactionID] = *purchase
	return nil
}

// GetPurchase implements premium.Storage
func (s *Storage) GetPurchase(ctx context.Context, transactionID string) (*premium.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	purchase, ok := s.purchases[transactionID]
	if !ok {
		return nil, nil
	}
	return &purchase, nil
}

func copyStatus(status premium.Status) *premium.Status {
	if status.ExpiresAt != nil {
		t := *status.ExpiresAt
		status.ExpiresAt = &t
	}
	return &status
}
