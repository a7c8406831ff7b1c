// Package postgres provides a PostgreSQL implementation of premium.Storage.
// Purchase idempotency relies on the transaction_id primary key.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mihaimyh/goentitle/pkg/premium"
)

// Schema creates the ledger tables
const Schema = `
CREATE TABLE IF NOT EXISTS premium_status (
	user_id     TEXT PRIMARY KEY,
	is_premium  BOOLEAN NOT NULL DEFAULT FALSE,
	product_id  TEXT NOT NULL DEFAULT '',
	expires_at  TIMESTAMPTZ,
	source      TEXT NOT NULL DEFAULT '',
	updated_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS premium_status_expires_at_idx
	ON premium_status (expires_at) WHERE is_premium;

CREATE TABLE IF NOT EXISTS premium_purchases (
	transaction_id TEXT PRIMARY KEY,
	user_id        TEXT NOT NULL,
	product_id     TEXT NOT NULL,
	platform       TEXT NOT NULL DEFAULT '',
	receipt        TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS premium_purchases_user_id_idx ON premium_purchases (user_id);
`

// Storage implements premium.Storage using PostgreSQL
type Storage struct {
	pool   *pgxpool.Pool
	config Config

	// stopSweep cancels the background expiry sweep
	stopSweep func()
}

var _ premium.Storage = (*Storage)(nil)

// Config holds PostgreSQL storage configuration
type Config struct {
	// ConnectionString is the PostgreSQL connection string
	ConnectionString string

	// Pool configuration
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration

	// Migrate creates the schema on startup
	Migrate bool

	// Expiry sweep configuration
	SweepEnabled  bool
	SweepInterval time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
		Migrate:         true,
		SweepEnabled:    true,
		SweepInterval:   time.Hour,
	}
}

// New creates a new PostgreSQL storage adapter
func New(ctx context.Context, config Config) (*Storage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Storage{pool: pool, config: config}
	if config.Migrate {
		if err := s.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}

	sweepCtx, cancel := context.WithCancel(context.Background())
	s.stopSweep = cancel
	if config.SweepEnabled && config.SweepInterval > 0 {
		go s.startSweep(sweepCtx)
	}
	return s, nil
}

// Migrate creates the ledger tables if they do not exist
func (s *Storage) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Close closes the connection pool and stops the expiry sweep
func (s *Storage) Close() {
	if s.stopSweep != nil {
		s.stopSweep()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}

// GetStatus implements premium.Storage
func (s *Storage) GetStatus(ctx context.Context, userID string) (*premium.Status, error) {
	var status premium.Status
	var source string

	err := s.pool.QueryRow(ctx,
		`SELECT user_id, is_premium, product_id, expires_at, source, updated_at
			FROM premium_status WHERE user_id = $1`,
		userID).Scan(
		&status.UserID,
		&status.IsPremium,
		&status.ProductID,
		&status.ExpiresAt,
		&source,
		&status.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, premium.ErrStatusNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}

	status.Source = premium.Source(source)
	status.UpdatedAt = status.UpdatedAt.UTC()
	if status.ExpiresAt != nil {
		t := status.ExpiresAt.UTC()
		status.ExpiresAt = &t
	}
	return &status, nil
}

// SetStatus implements premium.Storage
func (s *Storage) SetStatus(ctx context.Context, status *premium.Status) error {
	if status == nil || status.UserID == "" {
		return fmt.Errorf("invalid status")
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO premium_status (user_id, is_premium, product_id, expires_at, source, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (user_id) DO UPDATE SET
				is_premium = EXCLUDED.is_premium,
				product_id = EXCLUDED.product_id,
				expires_at = EXCLUDED.expires_at,
				source = EXCLUDED.source,
				updated_at = EXCLUDED.updated_at`,
		status.UserID, status.IsPremium, status.ProductID, status.ExpiresAt,
		string(status.Source), status.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to set status: %w", err)
	}
	return nil
}

// RecordPurchase implements premium.Storage
func (s *Storage) RecordPurchase(ctx context.Context, purchase *premium.Purchase) error {
	if purchase == nil || purchase.TransactionID == "" {
		return fmt.Errorf("invalid purchase")
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO premium_purchases (transaction_id, user_id, product_id, platform, receipt, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (transaction_id) DO NOTHING`,
		purchase.TransactionID, purchase.UserID, purchase.ProductID,
		purchase.Platform, purchase.Receipt, purchase.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record purchase: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return premium.ErrPurchaseExists
	}
	return nil
}

// GetPurchase implements premium.Storage
func (s *Storage) GetPurchase(ctx context.Context, transactionID string) (*premium.Purchase, error) {
	var p premium.Purchase
	err := s.pool.QueryRow(ctx,
		`SELECT transaction_id, user_id, product_id, platform, receipt, created_at
			FROM premium_purchases WHERE transaction_id = $1`,
		transactionID).Scan(&p.TransactionID, &p.UserID, &p.ProductID, &p.Platform, &p.Receipt, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get purchase: %w", err)
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

// Now returns the database clock
func (s *Storage) Now(ctx context.Context) (time.Time, error) {
	var now time.Time
	if err := s.pool.QueryRow(ctx, `SELECT NOW()`).Scan(&now); err != nil {
		return time.Time{}, fmt.Errorf("failed to get database time: %w", err)
	}
	return now.UTC(), nil
}

// SweepExpired clears the premium flag on grants past their expiry.
// Returns the number of downgraded users.
func (s *Storage) SweepExpired(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE premium_status SET is_premium = FALSE
			WHERE is_premium AND expires_at IS NOT NULL AND expires_at < NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired grants: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Storage) startSweep(ctx context.Context) {
	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// a failed sweep is retried on the next tick; reads expire lazily meanwhile
			_, _ = s.SweepExpired(ctx) //nolint:errcheck
		}
	}
}
