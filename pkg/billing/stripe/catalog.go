package stripe

import (
	"context"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/goentitle/pkg/billing"
	"github.com/mihaimyh/goentitle/pkg/entitle"
)

// Products lists active Stripe products whose name contains the configured
// filter, priced with their first active price.
func (p *Provider) Products(ctx context.Context) ([]entitle.Product, error) {
	var products []*stripe.Product
	var prices []*stripe.Price

	err := p.call("/v1/products", func() (err error) {
		products, err = p.api.ListProducts(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list products: %w", billing.ErrProviderAPIError, err)
	}
	err = p.call("/v1/prices", func() (err error) {
		prices, err = p.api.ListPrices(ctx, "")
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list prices: %w", billing.ErrProviderAPIError, err)
	}

	byProduct := make(map[string]*stripe.Price, len(prices))
	for _, price := range prices {
		if price.Product == nil {
			continue
		}
		if _, seen := byProduct[price.Product.ID]; !seen {
			byProduct[price.Product.ID] = price
		}
	}

	catalog := make([]entitle.Product, 0, len(products))
	for _, product := range products {
		if !strings.Contains(product.Name, p.filter) {
			continue
		}
		catalog = append(catalog, toProduct(product, byProduct[product.ID]))
	}
	return catalog, nil
}

func toProduct(product *stripe.Product, price *stripe.Price) entitle.Product {
	out := entitle.Product{
		ProductID:    product.ID,
		Title:        product.Name,
		Description:  product.Description,
		Price:        FormatPrice(0),
		CurrencyCode: "USD",
		Kind:         entitle.KindNonConsumable,
	}
	if out.Title == "" {
		out.Title = "Premium"
	}
	if out.Description == "" {
		out.Description = "Premium features"
	}
	if price == nil {
		return out
	}
	out.Price = FormatPrice(price.UnitAmount)
	if price.Currency != "" {
		out.CurrencyCode = strings.ToUpper(string(price.Currency))
	}
	if price.Type == stripe.PriceTypeRecurring {
		out.Kind = entitle.KindSubscription
	}
	return out
}

// FormatPrice renders an amount in minor units as a display price (499 -> "$4.99")
func FormatPrice(unitAmount int64) string {
	return fmt.Sprintf("$%d.%02d", unitAmount/100, unitAmount%100)
}
