// Package tiered provides a Hot/Cold premium.Storage that pairs a fast cache
// store (Hot) with a durable store (Cold).
package tiered

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mihaimyh/goentitle/pkg/premium"
)

// Config configures the tiered storage behavior
type Config struct {
	// Hot is the L1 storage (e.g., Redis, Memory)
	Hot premium.Storage

	// Cold is the L2 storage (e.g., Postgres, Firestore) and the source of truth
	Cold premium.Storage

	// AsyncMirror copies recorded purchases into Hot in the background.
	// If false, the copy is synchronous.
	AsyncMirror bool

	// SyncBufferSize is the size of the buffered channel for async operations.
	// Default: 1000
	SyncBufferSize int

	// AsyncErrorHandler is called when an async operation fails
	AsyncErrorHandler func(error)
}

// Storage implements a Hot/Cold tiered storage:
//   - Read-Through: statuses and purchases (Hot, then Cold, then fill Hot)
//   - Write-Through: statuses (Cold, then Hot)
//   - Cold-Authoritative: purchase idempotency (Cold decides, Hot mirrors)
type Storage struct {
	hot  premium.Storage
	cold premium.Storage
	conf Config

	syncQueue chan func() error
	shutdown  chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

var _ premium.Storage = (*Storage)(nil)

// New creates a new tiered storage adapter.
func New(config Config) (*Storage, error) {
	if config.Hot == nil || config.Cold == nil {
		return nil, errors.New("tiered storage: both hot and cold storage are required")
	}
	if config.SyncBufferSize <= 0 {
		config.SyncBufferSize = 1000
	}

	s := &Storage{
		hot:       config.Hot,
		cold:      config.Cold,
		conf:      config,
		syncQueue: make(chan func() error, config.SyncBufferSize),
		shutdown:  make(chan struct{}),
	}
	if config.AsyncMirror {
		s.startWorker()
	}
	return s, nil
}

// Close drains pending mirror jobs and stops the worker
func (s *Storage) Close() error {
	s.closeOnce.Do(func() {
		close(s.shutdown)
		s.wg.Wait()
	})
	return nil
}

// startWorker runs the background mirror loop sequentially to keep ordering
func (s *Storage) startWorker() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case job := <-s.syncQueue:
				s.run(job)
			case <-s.shutdown:
				for {
					select {
					case job := <-s.syncQueue:
						s.run(job)
					default:
						return
					}
				}
			}
		}
	}()
}

func (s *Storage) run(job func() error) {
	if err := job(); err != nil && s.conf.AsyncErrorHandler != nil {
		s.conf.AsyncErrorHandler(fmt.Errorf("tiered sync failed: %w", err))
	}
}

// enqueue runs job in the background, or inline when the queue is full or async is off
func (s *Storage) enqueue(job func() error) {
	if s.conf.AsyncMirror {
		select {
		case s.syncQueue <- job:
			return
		default:
		}
	}
	s.run(job)
}

// GetStatus implements premium.Storage with read-through strategy.
func (s *Storage) GetStatus(ctx context.Context, userID string) (*premium.Status, error) {
	st, err := s.hot.GetStatus(ctx, userID)
	if err == nil {
		return st, nil
	}

	st, err = s.cold.GetStatus(ctx, userID)
	if err != nil {
		return nil, err
	}
	_ = s.hot.SetStatus(ctx, st) //nolint:errcheck // cache fill
	return st, nil
}

// SetStatus implements premium.Storage with write-through strategy.
func (s *Storage) SetStatus(ctx context.Context, st *premium.Status) error {
	if err := s.cold.SetStatus(ctx, st); err != nil {
		return err
	}
	if err := s.hot.SetStatus(ctx, st); err != nil && s.conf.AsyncErrorHandler != nil {
		s.conf.AsyncErrorHandler(fmt.Errorf("tiered hot status write failed: %w", err))
	}
	return nil
}

// RecordPurchase implements premium.Storage. Cold decides idempotency.
func (s *Storage) RecordPurchase(ctx context.Context, purchase *premium.Purchase) error {
	if err := s.cold.RecordPurchase(ctx, purchase); err != nil {
		return err
	}

	mirror := *purchase
	s.enqueue(func() error {
		err := s.hot.RecordPurchase(context.WithoutCancel(ctx), &mirror)
		if errors.Is(err, premium.ErrPurchaseExists) {
			return nil
		}
		return err
	})
	return nil
}

// GetPurchase implements premium.Storage with read-through strategy.
func (s *Storage) GetPurchase(ctx context.Context, transactionID string) (*premium.Purchase, error) {
	p, err := s.hot.GetPurchase(ctx, transactionID)
	if err == nil && p != nil {
		return p, nil
	}
	return s.cold.GetPurchase(ctx, transactionID)
}

// Now uses the Hot store clock, then the Cold one, then local time.
func (s *Storage) Now(ctx context.Context) (time.Time, error) {
	if ts, ok := s.hot.(premium.TimeSource); ok {
		return ts.Now(ctx)
	}
	if ts, ok := s.cold.(premium.TimeSource); ok {
		return ts.Now(ctx)
	}
	return time.Now().UTC(), nil
}
