package entitle

import "sync"

// Completion is a single-slot handle for one pending purchase.
// It is resolved exactly once; later resolutions are ignored.
type Completion struct {
	productID string
	once      sync.Once
	done      chan PurchaseResult
}

func newCompletion(productID string) *Completion {
	return &Completion{productID: productID, done: make(chan PurchaseResult, 1)}
}

// ProductID returns the product the handle waits for
func (c *Completion) ProductID() string {
	return c.productID
}

// Resolve delivers the result. Returns false if the handle was already resolved.
func (c *Completion) Resolve(result PurchaseResult) bool {
	resolved := false
	c.once.Do(func() {
		c.done <- result
		resolved = true
	})
	return resolved
}

// Done returns the channel the result is delivered on
func (c *Completion) Done() <-chan PurchaseResult {
	return c.done
}

// PendingPurchases holds at most one completion handle per product identifier.
type PendingPurchases struct {
	mu      sync.Mutex
	handles map[string]*Completion
}

// NewPendingPurchases creates an empty registry
func NewPendingPurchases() *PendingPurchases {
	return &PendingPurchases{handles: make(map[string]*Completion)}
}

// Acquire registers a handle for productID.
// Returns false if a purchase for that product is already pending.
func (p *PendingPurchases) Acquire(productID string) (*Completion, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.handles[productID]; exists {
		return nil, false
	}
	c := newCompletion(productID)
	p.handles[productID] = c
	return c, true
}

// Take removes and returns the handle for productID, or nil if none is pending.
func (p *PendingPurchases) Take(productID string) *Completion {
	p.mu.Lock()
	defer p.mu.Unlock()

	c, ok := p.handles[productID]
	if !ok {
		return nil
	}
	delete(p.handles, productID)
	return c
}

// TakeOnly removes and returns the handle if exactly one is pending.
// Used when a platform update does not say which product it belongs to.
func (p *PendingPurchases) TakeOnly() *Completion {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.handles) != 1 {
		return nil
	}
	for id, c := range p.handles {
		delete(p.handles, id)
		return c
	}
	return nil
}

// TakeAll removes and returns every pending handle
func (p *PendingPurchases) TakeAll() []*Completion {
	p.mu.Lock()
	defer p.mu.Unlock()

	handles := make([]*Completion, 0, len(p.handles))
	for id, c := range p.handles {
		handles = append(handles, c)
		delete(p.handles, id)
	}
	return handles
}

// Release removes the handle only if it is still the registered one.
func (p *PendingPurchases) Release(c *Completion) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cur, ok := p.handles[c.productID]; ok && cur == c {
		delete(p.handles, c.productID)
	}
}

// Len returns the number of pending handles
func (p *PendingPurchases) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handles)
}
