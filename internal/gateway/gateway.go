// Package gateway talks to the remote cart service: the per-user cart
// endpoints and the public product catalog.
package gateway

import (
	"context"

	"cart-sync/internal/model"
)

// Gateway defines the remote cart operations the session engine depends on.
// Implementations return *model.APIError values; a rejected credential is
// reported as model.ErrUnauthorized so callers can tell it apart from other
// failures with errors.Is.
type Gateway interface {
	// FetchCart returns the server's cart for subjectID.
	FetchCart(ctx context.Context, subjectID, token string) (model.Cart, error)

	// AddLine increases the server quantity of (productID, size) by quantity.
	AddLine(ctx context.Context, subjectID, token, productID, size string, quantity int) error

	// RemoveLine decreases the server quantity of (productID, size) by one.
	RemoveLine(ctx context.Context, subjectID, token, productID, size string) error

	// FetchProducts returns the public product list. No credential needed.
	FetchProducts(ctx context.Context) ([]model.Product, error)
}
