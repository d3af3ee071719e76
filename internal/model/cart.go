// Package model defines the cart data types and the error taxonomy shared by
// the storage, gateway and session packages.
package model

import "encoding/json"

// Cart maps product ID → size label → quantity.
// Invariant: every stored quantity is >= 1 and no product maps to an empty
// size set. Helpers in internal/reconcile maintain this on every mutation.
type Cart map[string]map[string]int

// CartLine is the wire form of a single (product, size) entry as exchanged
// with the remote cart endpoints.
type CartLine struct {
	ProductID string `json:"productId"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
}

// Quantity returns the quantity stored for (productID, size), or 0.
func (c Cart) Quantity(productID, size string) int {
	sizes, ok := c[productID]
	if !ok {
		return 0
	}
	return sizes[size]
}

// IsEmpty reports whether the cart holds no lines.
func (c Cart) IsEmpty() bool {
	return len(c) == 0
}

// Clone returns a deep copy. A nil cart clones to an empty, non-nil cart.
func (c Cart) Clone() Cart {
	out := make(Cart, len(c))
	for productID, sizes := range c {
		copied := make(map[string]int, len(sizes))
		for size, qty := range sizes {
			copied[size] = qty
		}
		out[productID] = copied
	}
	return out
}

// Product is the catalog entry consumed from GET /products.
// Only the fields the cart needs are decoded.
type Product struct {
	ID    string   `json:"_id"`
	Name  string   `json:"name"`
	Price float64  `json:"price"` // Major currency units
	Image string   `json:"image,omitempty"`
	Sizes SizeList `json:"sizes,omitempty"`
}

// SizeList is the size labels a product is offered in. The backend sends
// either a JSON array or a string holding a JSON-encoded array.
type SizeList []string

// UnmarshalJSON accepts both shapes. Anything else decodes to an empty list
// so one malformed product does not fail the whole catalog.
func (l *SizeList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*l = list
		return nil
	}

	var encoded string
	if err := json.Unmarshal(data, &encoded); err != nil {
		*l = nil
		return nil
	}
	if err := json.Unmarshal([]byte(encoded), &list); err != nil {
		*l = nil
		return nil
	}
	*l = list
	return nil
}
