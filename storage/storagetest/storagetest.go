// Package storagetest runs the same behavioral checks against every premium.Storage backend.
package storagetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/goentitle/pkg/premium"
)

// Run exercises storage. newStorage must return an empty backend.
func Run(t *testing.T, newStorage func(t *testing.T) premium.Storage) {
	t.Run("status not found", func(t *testing.T) {
		s := newStorage(t)
		_, err := s.GetStatus(context.Background(), "nobody")
		assert.True(t, errors.Is(err, premium.ErrStatusNotFound), "got %v", err)
	})

	t.Run("status round trip", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()
		expires := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
		status := &premium.Status{
			UserID:    "user1",
			IsPremium: true,
			ProductID: "PREMIUM_MONTHLY",
			ExpiresAt: &expires,
			Source:    premium.SourceStripe,
			UpdatedAt: time.Date(2029, 12, 3, 3, 4, 5, 0, time.UTC),
		}
		require.NoError(t, s.SetStatus(ctx, status))

		got, err := s.GetStatus(ctx, "user1")
		require.NoError(t, err)
		assert.True(t, got.IsPremium)
		assert.Equal(t, "PREMIUM_MONTHLY", got.ProductID)
		assert.Equal(t, premium.SourceStripe, got.Source)
		require.NotNil(t, got.ExpiresAt)
		assert.True(t, expires.Equal(*got.ExpiresAt))
		assert.True(t, status.UpdatedAt.Equal(got.UpdatedAt))

		// overwrite with a lifetime grant
		status.ExpiresAt = nil
		status.ProductID = "PREMIUM_LIFETIME"
		require.NoError(t, s.SetStatus(ctx, status))
		got, err = s.GetStatus(ctx, "user1")
		require.NoError(t, err)
		assert.Nil(t, got.ExpiresAt)
		assert.Equal(t, "PREMIUM_LIFETIME", got.ProductID)
	})

	t.Run("invalid status", func(t *testing.T) {
		s := newStorage(t)
		assert.Error(t, s.SetStatus(context.Background(), &premium.Status{}))
	})

	t.Run("purchase idempotency", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()

		missing, err := s.GetPurchase(ctx, "txn-1")
		require.NoError(t, err)
		assert.Nil(t, missing)

		p := &premium.Purchase{
			TransactionID: "txn-1",
			UserID:        "user1",
			ProductID:     "PREMIUM_LIFETIME",
			Platform:      "ios",
			Receipt:       "receipt",
			CreatedAt:     time.Date(2029, 1, 1, 0, 0, 0, 0, time.UTC),
		}
		require.NoError(t, s.RecordPurchase(ctx, p))

		replay := *p
		replay.UserID = "user2"
		assert.True(t, errors.Is(s.RecordPurchase(ctx, &replay), premium.ErrPurchaseExists))

		got, err := s.GetPurchase(ctx, "txn-1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "user1", got.UserID)
		assert.Equal(t, "PREMIUM_LIFETIME", got.ProductID)
		assert.True(t, p.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("concurrent purchase records", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()

		var wg sync.WaitGroup
		var mu sync.Mutex
		recorded := 0
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := s.RecordPurchase(ctx, &premium.Purchase{
					TransactionID: "txn-race", UserID: "user1", ProductID: "PREMIUM_MONTHLY",
					CreatedAt: time.Now().UTC(),
				})
				if err == nil {
					mu.Lock()
					recorded++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, recorded)
	})

	t.Run("with manager", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()
		m, err := premium.NewManager(s, premium.Config{CacheTTL: -1})
		require.NoError(t, err)

		granted, err := m.RecordVerifiedPurchase(ctx, premium.Purchase{
			TransactionID: "txn-m", UserID: "user1", ProductID: "PREMIUM_YEARLY",
		}, premium.SourceAppStore)
		require.NoError(t, err)
		assert.True(t, granted)

		status, err := m.Status(ctx, "user1")
		require.NoError(t, err)
		assert.True(t, status.IsPremium)
	})
}
