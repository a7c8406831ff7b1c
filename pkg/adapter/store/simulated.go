package store

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mihaimyh/goentitle/pkg/entitle"
)

// Outcome scripts how the simulated store answers a purchase
type Outcome struct {
	Code ResponseCode
	Err  error

	// OmitProductID leaves PurchaseUpdate.ProductID empty
	OmitProductID bool
}

// Simulated is an in-process Billing used for development, the CLI and tests.
// Updates are delivered asynchronously after Delay.
type Simulated struct {
	// Delay before an update is delivered. Default: 0
	Delay time.Duration

	mu         sync.Mutex
	catalog    []NativeProduct
	outcomes   map[string]Outcome
	history    []NativePurchase
	listener   func(PurchaseUpdate)
	listenerID int
	connected  bool
	connectErr error
	catalogErr error
	launches   int
	listeners  int
	hold       chan struct{}
}

var _ Billing = (*Simulated)(nil)

// NewSimulated creates a simulated store selling the default premium catalog
func NewSimulated() *Simulated {
	s := &Simulated{outcomes: make(map[string]Outcome)}
	for _, p := range entitle.FallbackCatalog() {
		s.catalog = append(s.catalog, NativeProduct{
			ProductID:    p.ProductID,
			Title:        p.Title,
			Description:  p.Description,
			Price:        p.Price,
			CurrencyCode: p.CurrencyCode,
			Type:         string(p.Kind),
		})
	}
	return s
}

// SetOutcome scripts the answer for productID. Unscripted products succeed.
func (s *Simulated) SetOutcome(productID string, outcome Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes[productID] = outcome
}

// SetConnectError makes Connect fail
func (s *Simulated) SetConnectError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectErr = err
}

// SetCatalogError makes Products fail
func (s *Simulated) SetCatalogError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalogErr = err
}

// AddHistory seeds the purchase history
func (s *Simulated) AddHistory(purchases ...NativePurchase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, purchases...)
}

// Hold keeps updates from being delivered until the returned function is called
func (s *Simulated) Hold() (release func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan struct{})
	s.hold = ch
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.hold == ch {
				s.hold = nil
			}
			s.mu.Unlock()
			close(ch)
		})
	}
}

// Launches returns how many purchase sheets were opened
func (s *Simulated) Launches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.launches
}

// ListenerInstalls returns how many times a purchase listener was installed
func (s *Simulated) ListenerInstalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listeners
}

// HasListener reports whether a purchase listener is installed
func (s *Simulated) HasListener() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listener != nil
}

func (s *Simulated) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connectErr != nil {
		return s.connectErr
	}
	s.connected = true
	return nil
}

func (s *Simulated) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	return nil
}

func (s *Simulated) Products(ctx context.Context, productIDs []string) ([]NativeProduct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil, ErrBillingUnavailable
	}
	if s.catalogErr != nil {
		return nil, s.catalogErr
	}

	want := make(map[string]bool, len(productIDs))
	for _, id := range productIDs {
		want[id] = true
	}
	var out []NativeProduct
	for _, p := range s.catalog {
		if want[p.ProductID] {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Simulated) PurchaseItem(ctx context.Context, productID string) error {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return ErrBillingUnavailable
	}
	s.launches++
	outcome := s.outcomes[productID]
	hold := s.hold
	s.mu.Unlock()

	update := PurchaseUpdate{ProductID: productID, Code: outcome.Code, Err: outcome.Err}
	if outcome.Code == ResponseOK {
		txn := uuid.NewString()
		purchase := NativePurchase{
			ProductID:     productID,
			TransactionID: txn,
			Receipt:       base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("%s:%s", productID, txn))),
			PurchasedAt:   time.Now(),
		}
		update.Purchases = []NativePurchase{purchase}
	}
	if outcome.OmitProductID {
		update.ProductID = ""
	}

	go s.deliver(update, hold)
	return nil
}

func (s *Simulated) deliver(update PurchaseUpdate, hold chan struct{}) {
	if hold != nil {
		<-hold
	}
	if s.Delay > 0 {
		time.Sleep(s.Delay)
	}

	s.mu.Lock()
	listener := s.listener
	if update.Code == ResponseOK {
		s.history = append(s.history, update.Purchases...)
	}
	s.mu.Unlock()

	if listener != nil {
		listener(update)
	}
}

func (s *Simulated) SetPurchaseListener(fn func(PurchaseUpdate)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listenerID++
	id := s.listenerID
	s.listener = fn
	s.listeners++

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.listenerID == id {
			s.listener = nil
		}
	}
}

func (s *Simulated) History(ctx context.Context) ([]NativePurchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil, ErrBillingUnavailable
	}
	return append([]NativePurchase(nil), s.history...), nil
}
