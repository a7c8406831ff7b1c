package main

import (
	"context"
	"fmt"

	gcfirestore "cloud.google.com/go/firestore"
	goredis "github.com/redis/go-redis/v9"

	"github.com/mihaimyh/goentitle/internal/config"
	"github.com/mihaimyh/goentitle/pkg/entitle"
	"github.com/mihaimyh/goentitle/pkg/premium"
	"github.com/mihaimyh/goentitle/storage/firestore"
	"github.com/mihaimyh/goentitle/storage/memory"
	"github.com/mihaimyh/goentitle/storage/postgres"
	redisstore "github.com/mihaimyh/goentitle/storage/redis"
	"github.com/mihaimyh/goentitle/storage/tiered"
)

// openStorage opens the ledger backend named by cfg.Storage. The returned
// func releases its connections.
func openStorage(ctx context.Context, cfg *config.Config, logger entitle.Logger) (premium.Storage, func(), error) {
	if cfg.Storage != config.StorageTiered {
		return openBackend(ctx, cfg, cfg.Storage)
	}

	hot, closeHot, err := openBackend(ctx, cfg, cfg.TieredHot)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open hot tier: %w", err)
	}
	cold, closeCold, err := openBackend(ctx, cfg, cfg.TieredCold)
	if err != nil {
		closeHot()
		return nil, nil, fmt.Errorf("failed to open cold tier: %w", err)
	}

	store, err := tiered.New(tiered.Config{
		Hot:         hot,
		Cold:        cold,
		AsyncMirror: true,
		AsyncErrorHandler: func(err error) {
			logger.Warn("purchase mirror failed", entitle.F("error", err))
		},
	})
	if err != nil {
		closeCold()
		closeHot()
		return nil, nil, err
	}
	return store, func() {
		_ = store.Close()
		closeCold()
		closeHot()
	}, nil
}

func openBackend(ctx context.Context, cfg *config.Config, name string) (premium.Storage, func(), error) {
	switch name {
	case config.StorageMemory:
		return memory.New(), func() {}, nil

	case config.StorageRedis:
		opts, err := goredis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		client := goredis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		store, err := redisstore.New(client, redisstore.DefaultConfig())
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return store, func() { _ = client.Close() }, nil

	case config.StoragePostgres:
		pgConfig := postgres.DefaultConfig()
		pgConfig.ConnectionString = cfg.PostgresDSN
		store, err := postgres.New(ctx, pgConfig)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil

	case config.StorageFirestore:
		client, err := gcfirestore.NewClient(ctx, cfg.FirestoreProject)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create firestore client: %w", err)
		}
		store, err := firestore.New(client, firestore.Config{})
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return store, func() { _ = client.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", name)
	}
}
