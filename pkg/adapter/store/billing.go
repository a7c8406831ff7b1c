package store

import (
	"context"
	"errors"
	"time"
)

// ResponseCode is the result code the native billing layer attaches to an update
type ResponseCode int

const (
	ResponseOK ResponseCode = iota
	ResponseUserCanceled
	ResponseError
	ResponseDeferred
)

func (c ResponseCode) String() string {
	switch c {
	case ResponseOK:
		return "ok"
	case ResponseUserCanceled:
		return "user_canceled"
	case ResponseDeferred:
		return "deferred"
	default:
		return "error"
	}
}

// NativeProduct is a catalog entry as reported by the store
type NativeProduct struct {
	ProductID    string
	Title        string
	Description  string
	Price        string
	CurrencyCode string
	Type         string
}

// NativePurchase is a purchase as reported by the store
type NativePurchase struct {
	ProductID     string
	TransactionID string
	Receipt       string
	PurchasedAt   time.Time
}

// PurchaseUpdate is delivered asynchronously after a purchase sheet closes.
// ProductID may be empty on platforms that only report purchases.
type PurchaseUpdate struct {
	ProductID string
	Code      ResponseCode
	Purchases []NativePurchase
	Err       error
}

// ErrBillingUnavailable is returned when the device cannot make payments
var ErrBillingUnavailable = errors.New("billing unavailable")

// Billing is the native in-app purchase layer. Purchase results never come back
// from PurchaseItem; they arrive on the listener.
type Billing interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Products(ctx context.Context, productIDs []string) ([]NativeProduct, error)

	// PurchaseItem opens the purchase sheet. A nil error only means the sheet was shown.
	PurchaseItem(ctx context.Context, productID string) error

	// SetPurchaseListener installs the update callback, replacing any previous one.
	// The returned function removes it.
	SetPurchaseListener(fn func(PurchaseUpdate)) (remove func())

	// History returns purchases previously made by the signed-in account
	History(ctx context.Context) ([]NativePurchase, error)
}
