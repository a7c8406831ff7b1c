// Package firestore provides a Firestore implementation of premium.Storage.
// Purchases are written with Create, so a second write of the same transaction
// id fails with AlreadyExists.
package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mihaimyh/goentitle/pkg/premium"
)

// Storage implements premium.Storage using Google Cloud Firestore
type Storage struct {
	client              *firestore.Client
	statusCollection    string
	purchasesCollection string
}

var _ premium.Storage = (*Storage)(nil)

// Config holds Firestore storage configuration
type Config struct {
	// StatusCollection holds one document per user.
	// Default: "premium_status"
	StatusCollection string

	// PurchasesCollection holds one document per transaction id.
	// Default: "premium_purchases"
	PurchasesCollection string
}

// New creates a new Firestore storage adapter
func New(client *firestore.Client, config Config) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client is required")
	}
	if config.StatusCollection == "" {
		config.StatusCollection = "premium_status"
	}
	if config.PurchasesCollection == "" {
		config.PurchasesCollection = "premium_purchases"
	}

	return &Storage{
		client:              client,
		statusCollection:    config.StatusCollection,
		purchasesCollection: config.PurchasesCollection,
	}, nil
}

// GetStatus implements premium.Storage
func (s *Storage) GetStatus(ctx context.Context, userID string) (*premium.Status, error) {
	snap, err := s.client.Collection(s.statusCollection).Doc(userID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, premium.ErrStatusNotFound
		}
		return nil, fmt.Errorf("failed to get status: %w", err)
	}
	if !snap.Exists() {
		return nil, premium.ErrStatusNotFound
	}

	data := snap.Data()
	st := &premium.Status{
		UserID:    userID,
		IsPremium: getBool(data, "isPremium"),
		ProductID: getString(data, "productId"),
		Source:    premium.Source(getString(data, "source")),
		UpdatedAt: getTime(data, "updatedAt"),
	}
	if expiresAt, ok := data["expiresAt"].(time.Time); ok && !expiresAt.IsZero() {
		st.ExpiresAt = &expiresAt
	}
	return st, nil
}

// SetStatus implements premium.Storage
func (s *Storage) SetStatus(ctx context.Context, st *premium.Status) error {
	if st == nil || st.UserID == "" {
		return fmt.Errorf("invalid status")
	}

	data := map[string]interface{}{
		"isPremium": st.IsPremium,
		"productId": st.ProductID,
		"source":    string(st.Source),
		"updatedAt": st.UpdatedAt,
		"expiresAt": nil,
	}
	if st.ExpiresAt != nil {
		data["expiresAt"] = *st.ExpiresAt
	}

	if _, err := s.client.Collection(s.statusCollection).Doc(st.UserID).Set(ctx, data); err != nil {
		return fmt.Errorf("failed to set status: %w", err)
	}
	return nil
}

// RecordPurchase implements premium.Storage
func (s *Storage) RecordPurchase(ctx context.Context, purchase *premium.Purchase) error {
	if purchase == nil || purchase.TransactionID == "" {
		return fmt.Errorf("invalid purchase")
	}

	_, err := s.client.Collection(s.purchasesCollection).Doc(purchase.TransactionID).Create(ctx, map[string]interface{}{
		"userId":    purchase.UserID,
		"productId": purchase.ProductID,
		"platform":  purchase.Platform,
		"receipt":   purchase.Receipt,
		"createdAt": purchase.CreatedAt,
	})
	if status.Code(err) == codes.AlreadyExists {
		return premium.ErrPurchaseExists
	}
	if err != nil {
		return fmt.Errorf("failed to record purchase: %w", err)
	}
	return nil
}

// GetPurchase implements premium.Storage
func (s *Storage) GetPurchase(ctx context.Context, transactionID string) (*premium.Purchase, error) {
	snap, err := s.client.Collection(s.purchasesCollection).Doc(transactionID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get purchase: %w", err)
	}
	if !snap.Exists() {
		return nil, nil
	}

	data := snap.Data()
	return &premium.Purchase{
		TransactionID: transactionID,
		UserID:        getString(data, "userId"),
		ProductID:     getString(data, "productId"),
		Platform:      getString(data, "platform"),
		Receipt:       getString(data, "receipt"),
		CreatedAt:     getTime(data, "createdAt"),
	}, nil
}

func getString(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

func getBool(data map[string]interface{}, key string) bool {
	v, _ := data[key].(bool)
	return v
}

func getTime(data map[string]interface{}, key string) time.Time {
	if v, ok := data[key].(time.Time); ok {
		return v
	}
	return time.Time{}
}
