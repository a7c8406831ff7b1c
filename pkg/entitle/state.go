package entitle

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultRevalidateInterval is how often the premium status is re-checked in the background
const DefaultRevalidateInterval = 5 * time.Minute

// StateConfig configures the entitlement State
type StateConfig struct {
	// Checker answers premium-status (required)
	Checker StatusChecker

	// Logger is optional. Default: NoopLogger
	Logger Logger

	// Metrics is optional. Default: NoopMetrics
	Metrics Metrics

	// Now is the clock used for CheckedAt. Default: time.Now
	Now func() time.Time
}

// State holds the premium entitlement for the session.
//
// Every check takes a sequence number when it is issued; a response is applied
// only when it is newer than the last applied one, so a slow periodic check
// cannot overwrite a fresher refresh. Errors apply as free (fail-closed).
type State struct {
	checker StatusChecker
	logger  Logger
	metrics Metrics
	now     func() time.Time

	mu           sync.RWMutex
	snap         Snapshot
	issued       uint64
	applied      uint64
	loadingUntil uint64
	subscribers  map[int]chan Snapshot
	nextSubID    int
}

// NewState creates a State in the Unknown/Loading state
func NewState(config StateConfig) (*State, error) {
	if config.Checker == nil {
		return nil, errors.New("status checker is required")
	}
	if config.Logger == nil {
		config.Logger = &NoopLogger{}
	}
	if config.Metrics == nil {
		config.Metrics = &NoopMetrics{}
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &State{
		checker: config.Checker,
		logger:  config.Logger,
		metrics: config.Metrics,
		now:     config.Now,
		snap: Snapshot{
			Tier:      TierUnknown,
			IsLoading: true,
		},
		// the first response of any kind ends the initial load
		loadingUntil: 1,
		subscribers:  make(map[int]chan Snapshot),
	}, nil
}

// Snapshot returns a copy of the current state
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// IsPremium reports the last applied premium flag
func (s *State) IsPremium() bool {
	return s.Snapshot().IsPremium
}

// IsLoading reports whether a load is outstanding
func (s *State) IsLoading() bool {
	return s.Snapshot().IsLoading
}

// Tier returns the last applied tier (TierUnknown before the first response)
func (s *State) Tier() Tier {
	return s.Snapshot().Tier
}

// Check queries premium-status and applies the answer.
func (s *State) Check(ctx context.Context) Snapshot {
	s.mu.Lock()
	seq := s.begin()
	s.mu.Unlock()
	return s.run(ctx, seq)
}

// Refresh marks the state as loading, keeping the known tier, then checks.
func (s *State) Refresh(ctx context.Context) Snapshot {
	s.mu.Lock()
	seq := s.begin()
	s.loadingUntil = seq
	if !s.snap.IsLoading {
		s.snap.IsLoading = true
		s.publish(s.snap)
	}
	s.mu.Unlock()

	return s.run(ctx, seq)
}

// Run re-checks on a fixed interval until ctx is done.
func (s *State) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultRevalidateInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Check(ctx)
		}
	}
}

// begin must be called with mu held
func (s *State) begin() uint64 {
	s.issued++
	return s.issued
}

func (s *State) run(ctx context.Context, seq uint64) Snapshot {
	start := time.Now()
	isPremium, err := s.checker.PremiumStatus(ctx)
	if err != nil {
		s.logger.Warn("premium status check failed, treating as free",
			F("error", err.Error()), F("seq", seq))
		isPremium = false
	}

	s.mu.Lock()
	if seq <= s.applied {
		snap := s.snap
		s.mu.Unlock()
		s.logger.Debug("discarding stale premium status",
			F("seq", seq), F("tier", string(snap.Tier)))
		s.metrics.RecordStatusCheck(isPremium, err, true, time.Since(start))
		return snap
	}

	prev := s.snap
	s.applied = seq
	s.snap = Snapshot{
		IsPremium: isPremium,
		Tier:      TierFor(isPremium),
		IsLoading: s.applied < s.loadingUntil,
		CheckedAt: s.now(),
	}
	snap := s.snap
	changed := prev.IsPremium != snap.IsPremium || prev.Tier != snap.Tier || prev.IsLoading != snap.IsLoading
	if changed {
		// delivered in apply order
		s.publish(snap)
	}
	s.mu.Unlock()

	s.metrics.RecordStatusCheck(isPremium, err, false, time.Since(start))
	if prev.IsPremium != snap.IsPremium {
		s.logger.Info("premium status changed",
			F("is_premium", snap.IsPremium), F("tier", string(snap.Tier)))
	}
	return snap
}

// Subscribe returns a channel receiving snapshots whenever the state changes.
// Slow readers only see the latest snapshot. Call cancel to unsubscribe.
func (s *State) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, id)
			s.mu.Unlock()
			close(ch)
		})
	}
}

// publish must be called with mu held
func (s *State) publish(snap Snapshot) {
	for _, ch := range s.subscribers {
		// drop the stale value so the reader always gets the newest one
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}
