package entitle

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// EngineConfig wires an Engine together
type EngineConfig struct {
	// Orchestrator is the purchase surface (required)
	Orchestrator *Orchestrator

	// State is the entitlement state (required)
	State *State

	// RevalidateInterval is the background re-check period. Default: 5 minutes
	RevalidateInterval time.Duration

	// Logger is optional. Default: NoopLogger
	Logger Logger
}

// Engine owns the Orchestrator and the entitlement State for one session and is
// the surface UI code talks to. It is constructed explicitly and passed to
// whoever needs it.
type Engine struct {
	orch     *Orchestrator
	state    *State
	interval time.Duration
	logger   Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
	ready   chan struct{}
	usable  bool
}

// NewEngine creates an engine. Call Start to mount it and Close to tear it down.
func NewEngine(config EngineConfig) (*Engine, error) {
	if config.Orchestrator == nil {
		return nil, fmt.Errorf("%w: orchestrator is required", ErrInvalidConfig)
	}
	if config.State == nil {
		return nil, fmt.Errorf("%w: state is required", ErrInvalidConfig)
	}
	if config.RevalidateInterval <= 0 {
		config.RevalidateInterval = DefaultRevalidateInterval
	}
	if config.Logger == nil {
		config.Logger = &NoopLogger{}
	}

	return &Engine{
		orch:     config.Orchestrator,
		state:    config.State,
		interval: config.RevalidateInterval,
		logger:   config.Logger,
	}, nil
}

// Start initializes the payment adapter, performs the first status check and
// launches background re-validation. Returns whether payments are usable.
// Starting a started engine reports the result of the first Start.
func (e *Engine) Start(ctx context.Context) bool {
	e.mu.Lock()
	if e.started {
		ready := e.ready
		e.mu.Unlock()
		select {
		case <-ready:
		case <-ctx.Done():
			return false
		}
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.usable
	}
	e.started = true
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	ready := make(chan struct{})
	e.cancel = cancel
	e.done = done
	e.ready = ready
	e.mu.Unlock()

	usable := e.orch.Initialize(ctx)
	if !usable {
		e.logger.Warn("payments unavailable this session",
			F("adapter", e.orch.Adapter().Name()))
	}
	e.mu.Lock()
	e.usable = usable
	e.mu.Unlock()
	close(ready)
	e.state.Check(ctx)

	go func() {
		defer close(done)
		e.state.Run(loopCtx, e.interval)
	}()
	return usable
}

// Close stops background re-validation and releases the payment connection.
func (e *Engine) Close(ctx context.Context) {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.cancel, e.done = nil, nil
	e.started = false
	e.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	e.orch.Disconnect(ctx)
}

// Products returns the catalog for the current platform
func (e *Engine) Products(ctx context.Context) []Product {
	return e.orch.Products(ctx)
}

// Purchase buys a product and refreshes the entitlement after a success.
func (e *Engine) Purchase(ctx context.Context, productID string) PurchaseResult {
	result := e.orch.Purchase(ctx, productID)
	if result.Success {
		e.state.Refresh(ctx)
	}
	return result
}

// Restore reconciles previous purchases and refreshes the entitlement when
// anything was restored.
func (e *Engine) Restore(ctx context.Context) []PurchaseResult {
	results := e.orch.Restore(ctx)
	for _, r := range results {
		if r.Success {
			e.state.Refresh(ctx)
			break
		}
	}
	return results
}

// Refresh re-checks premium status now
func (e *Engine) Refresh(ctx context.Context) Snapshot {
	return e.state.Refresh(ctx)
}

// Snapshot returns the current entitlement
func (e *Engine) Snapshot() Snapshot {
	return e.state.Snapshot()
}

// IsPremium reports whether premium features are unlocked
func (e *Engine) IsPremium() bool {
	return e.state.IsPremium()
}

// IsLoading reports whether a status load is outstanding
func (e *Engine) IsLoading() bool {
	return e.state.IsLoading()
}

// Tier returns the current tier
func (e *Engine) Tier() Tier {
	return e.state.Tier()
}

// Subscribe delivers entitlement changes. Call cancel to stop.
func (e *Engine) Subscribe() (<-chan Snapshot, func()) {
	return e.state.Subscribe()
}
