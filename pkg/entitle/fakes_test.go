package entitle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

type fakeAdapter struct {
	name          string
	platform      Platform
	verify        bool
	connectErr    error
	products      []Product
	history       []PurchaseResult
	historyErr    error
	result        PurchaseResult
	purchaseGate  chan struct{}
	purchaseCalls atomic.Int32
	connectCalls  atomic.Int32
	disconnects   atomic.Int32
}

func (f *fakeAdapter) Name() string {
	if f.name == "" {
		return "fake"
	}
	return f.name
}

func (f *fakeAdapter) Platform() Platform {
	if f.platform == "" {
		return PlatformIOS
	}
	return f.platform
}

func (f *fakeAdapter) Connect(ctx context.Context) error {
	f.connectCalls.Add(1)
	return f.connectErr
}

func (f *fakeAdapter) ListProducts(ctx context.Context, ids []string) []Product {
	return f.products
}

func (f *fakeAdapter) Purchase(ctx context.Context, productID string) PurchaseResult {
	f.purchaseCalls.Add(1)
	if f.purchaseGate != nil {
		select {
		case <-f.purchaseGate:
		case <-ctx.Done():
			return Failed(FailureCancelled, MsgPurchaseCancelled)
		}
	}
	r := f.result
	if r.Success && r.ProductID == "" {
		r.ProductID = productID
	}
	return r
}

func (f *fakeAdapter) History(ctx context.Context) ([]PurchaseResult, error) {
	return f.history, f.historyErr
}

func (f *fakeAdapter) NeedsVerification() bool { return f.verify }

func (f *fakeAdapter) Disconnect(ctx context.Context) error {
	f.disconnects.Add(1)
	return nil
}

type fakeVerifier struct {
	mu    sync.Mutex
	calls []VerifyRequest
	// reject lists transaction ids that fail verification
	reject map[string]bool
	err    error
	all    *bool
}

func (f *fakeVerifier) Verify(ctx context.Context, req VerifyRequest) (bool, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	if f.all != nil {
		return *f.all, nil
	}
	return !f.reject[req.TransactionID], nil
}

func (f *fakeVerifier) Calls() []VerifyRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]VerifyRequest(nil), f.calls...)
}

func boolPtr(b bool) *bool { return &b }

// scriptedChecker answers premium-status from a queue of responses; the last
// response repeats once the queue is drained.
type scriptedChecker struct {
	mu        sync.Mutex
	responses []checkResponse
	calls     int
}

type checkResponse struct {
	premium bool
	err     error
	// gate blocks the response until closed
	gate chan struct{}
}

func (s *scriptedChecker) PremiumStatus(ctx context.Context) (bool, error) {
	s.mu.Lock()
	var r checkResponse
	if len(s.responses) > 0 {
		r = s.responses[0]
		if len(s.responses) > 1 {
			s.responses = s.responses[1:]
		}
	}
	s.calls++
	s.mu.Unlock()

	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	return r.premium, r.err
}

func (s *scriptedChecker) Set(responses ...checkResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = responses
}

func (s *scriptedChecker) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

var errBoom = errors.New("boom")
