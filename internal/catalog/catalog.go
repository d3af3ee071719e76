// Package catalog caches the product list and prices carts against it.
package catalog

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"cart-sync/internal/gateway"
	"cart-sync/internal/model"
)

// Options configures pricing.
type Options struct {
	// Currency is the display prefix, e.g. "Rs. ".
	Currency string

	// DeliveryFee is added to non-empty carts, in major units.
	DeliveryFee float64
}

// Catalog holds the last successfully fetched product list.
type Catalog struct {
	gateway     gateway.Gateway
	logger      *slog.Logger
	currency    string
	deliveryFee int64 // cents

	mu       sync.RWMutex
	products []model.Product
	byID     map[string]model.Product
}

// New creates an empty Catalog. Call Refresh to load products.
func New(gw gateway.Gateway, logger *slog.Logger, opts Options) *Catalog {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Catalog{
		gateway:     gw,
		logger:      logger,
		currency:    opts.Currency,
		deliveryFee: model.ToCents(opts.DeliveryFee),
		byID:        make(map[string]model.Product),
	}
}

// Refresh reloads the product list. On failure the previous list is kept
// and the error is returned for the caller to log or surface.
func (c *Catalog) Refresh(ctx context.Context) error {
	products, err := c.gateway.FetchProducts(ctx)
	if err != nil {
		c.logger.Warn("refreshing products failed, keeping previous list",
			slog.String("error", err.Error()))
		return err
	}

	byID := make(map[string]model.Product, len(products))
	for _, p := range products {
		if p.ID == "" {
			continue
		}
		byID[p.ID] = p
	}

	c.mu.Lock()
	c.products = products
	c.byID = byID
	c.mu.Unlock()

	c.logger.Info("products loaded", slog.Int("count", len(products)))
	return nil
}

// Products returns a copy of the product list.
func (c *Catalog) Products() []model.Product {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.products)
}

// Find returns the product with the given ID.
func (c *Catalog) Find(id string) (model.Product, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.byID[id]
	return p, ok
}

// ValidSize reports whether size is offered for productID. Unknown products
// and products without a size list accept any size.
func (c *Catalog) ValidSize(productID, size string) bool {
	p, ok := c.Find(productID)
	if !ok {
		return true
	}
	if len(p.Sizes) == 0 {
		return true
	}
	return slices.Contains(p.Sizes, size)
}

// Amount returns the cart subtotal in cents. Lines for products missing
// from the catalog are skipped.
func (c *Catalog) Amount(cart model.Cart) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var total int64
	for productID, sizes := range cart {
		p, ok := c.byID[productID]
		if !ok {
			continue
		}
		price := model.ToCents(p.Price)
		for _, qty := range sizes {
			if qty > 0 {
				total += price * int64(qty)
			}
		}
	}
	return total
}

// Total returns the amount plus the delivery fee, or zero for an empty
// amount.
func (c *Catalog) Total(cart model.Cart) int64 {
	amount := c.Amount(cart)
	if amount == 0 {
		return 0
	}
	return amount + c.deliveryFee
}

// DeliveryFee returns the configured fee in cents.
func (c *Catalog) DeliveryFee() int64 {
	return c.deliveryFee
}

// Format renders cents with the configured currency prefix.
func (c *Catalog) Format(cents int64) string {
	return model.FormatCents(c.currency, cents)
}
