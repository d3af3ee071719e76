package gateway

import (
	"context"

	"cart-sync/internal/model"
)

// Mock implements Gateway for testing.
// Each method can be configured via function fields.
type Mock struct {
	FetchCartFunc     func(ctx context.Context, subjectID, token string) (model.Cart, error)
	AddLineFunc       func(ctx context.Context, subjectID, token, productID, size string, quantity int) error
	RemoveLineFunc    func(ctx context.Context, subjectID, token, productID, size string) error
	FetchProductsFunc func(ctx context.Context) ([]model.Product, error)
}

// FetchCart calls the configured FetchCartFunc or returns an empty cart.
func (m *Mock) FetchCart(ctx context.Context, subjectID, token string) (model.Cart, error) {
	if m.FetchCartFunc != nil {
		return m.FetchCartFunc(ctx, subjectID, token)
	}
	return model.Cart{}, nil
}

// AddLine calls the configured AddLineFunc or succeeds.
func (m *Mock) AddLine(ctx context.Context, subjectID, token, productID, size string, quantity int) error {
	if m.AddLineFunc != nil {
		return m.AddLineFunc(ctx, subjectID, token, productID, size, quantity)
	}
	return nil
}

// RemoveLine calls the configured RemoveLineFunc or succeeds.
func (m *Mock) RemoveLine(ctx context.Context, subjectID, token, productID, size string) error {
	if m.RemoveLineFunc != nil {
		return m.RemoveLineFunc(ctx, subjectID, token, productID, size)
	}
	return nil
}

// FetchProducts calls the configured FetchProductsFunc or returns no products.
func (m *Mock) FetchProducts(ctx context.Context) ([]model.Product, error) {
	if m.FetchProductsFunc != nil {
		return m.FetchProductsFunc(ctx)
	}
	return nil, nil
}

// Verify Mock implements Gateway interface at compile time.
var _ Gateway = (*Mock)(nil)
