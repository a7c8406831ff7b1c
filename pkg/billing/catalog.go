package billing

import (
	"context"

	"github.com/mihaimyh/goentitle/pkg/entitle"
)

// StaticCatalog serves a fixed product list
type StaticCatalog []entitle.Product

// Products implements Catalog
func (c StaticCatalog) Products(context.Context) ([]entitle.Product, error) {
	return append([]entitle.Product(nil), c...), nil
}

// FallbackCatalog serves Fallback whenever Primary fails or returns nothing.
// A nil Primary always serves the fallback.
type FallbackCatalog struct {
	Primary  Catalog
	Fallback []entitle.Product
	Logger   entitle.Logger
}

// Products implements Catalog. It never returns an error.
func (c *FallbackCatalog) Products(ctx context.Context) ([]entitle.Product, error) {
	if c.Primary == nil {
		return StaticCatalog(c.Fallback).Products(ctx)
	}
	products, err := c.Primary.Products(ctx)
	if err == nil && len(products) > 0 {
		return products, nil
	}
	if c.Logger != nil {
		reason := "provider catalog is empty"
		if err != nil {
			reason = err.Error()
		}
		c.Logger.Warn("serving fallback catalog", entitle.F("reason", reason))
	}
	return StaticCatalog(c.Fallback).Products(ctx)
}
