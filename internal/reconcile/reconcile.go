// Package reconcile provides the pure cart algebra used by the session engine:
// merging a locally persisted cart with the server's cart, computing the
// deltas that bring the server up to the merge outcome, and applying single
// add/remove mutations while keeping the "no zero entries" invariant.
//
// Nothing in this package mutates its inputs; every function returns a fresh
// model.Cart.
package reconcile

import (
	"sort"

	"cart-sync/internal/model"
)

// Merge combines a local and a server cart.
//
// Policy: for every (product, size) present on either side the merged
// quantity is the maximum of the two, never the sum. A line present on only
// one side is carried through unchanged. Max is symmetric and idempotent, so
// Merge(a, b) == Merge(b, a) and Merge(a, a) == a.
func Merge(local, server model.Cart) model.Cart {
	merged := server.Clone()

	for productID, sizes := range local {
		for size, qty := range sizes {
			if qty < 1 {
				continue
			}
			if merged[productID] == nil {
				merged[productID] = make(map[string]int)
			}
			if qty > merged[productID][size] {
				merged[productID][size] = qty
			}
		}
	}

	return normalize(merged)
}

// PushDeltas returns the lines the server is missing after a merge: every
// local line the server lacks or holds at a lower quantity, with Quantity set
// to the difference. Lines are sorted for deterministic logging and tests.
func PushDeltas(local, server model.Cart) []model.CartLine {
	var deltas []model.CartLine

	for productID, sizes := range local {
		for size, localQty := range sizes {
			serverQty := server.Quantity(productID, size)
			if localQty > serverQty {
				deltas = append(deltas, model.CartLine{
					ProductID: productID,
					Size:      size,
					Quantity:  localQty - serverQty,
				})
			}
		}
	}

	sortLines(deltas)
	return deltas
}

// Count sums every quantity in the cart.
func Count(cart model.Cart) int {
	total := 0
	for _, sizes := range cart {
		for _, qty := range sizes {
			total += qty
		}
	}
	return total
}

// AddLine increments (productID, size) by quantity, creating the line if it
// does not exist. A non-positive quantity returns an unchanged copy.
func AddLine(cart model.Cart, productID, size string, quantity int) model.Cart {
	out := cart.Clone()
	if quantity < 1 {
		return out
	}
	if out[productID] == nil {
		out[productID] = make(map[string]int)
	}
	out[productID][size] += quantity
	return out
}

// RemoveUnit decrements (productID, size) by one. A line reaching zero is
// deleted, and a product left without sizes is deleted too. The bool reports
// whether the line existed.
func RemoveUnit(cart model.Cart, productID, size string) (model.Cart, bool) {
	out := cart.Clone()

	qty := out.Quantity(productID, size)
	if qty < 1 {
		return out, false
	}

	if qty > 1 {
		out[productID][size] = qty - 1
	} else {
		delete(out[productID], size)
	}
	if len(out[productID]) == 0 {
		delete(out, productID)
	}
	return out, true
}

// Lines flattens a cart into wire lines sorted by product then size.
func Lines(cart model.Cart) []model.CartLine {
	lines := make([]model.CartLine, 0, len(cart))
	for productID, sizes := range cart {
		for size, qty := range sizes {
			lines = append(lines, model.CartLine{ProductID: productID, Size: size, Quantity: qty})
		}
	}
	sortLines(lines)
	return lines
}

// FromLines folds wire lines into a cart. Lines with an empty product or size,
// or a quantity below one, are skipped. Duplicate lines keep the last
// quantity, as the backend sends at most one line per (product, size).
func FromLines(lines []model.CartLine) model.Cart {
	cart := make(model.Cart)
	for _, line := range lines {
		if line.ProductID == "" || line.Size == "" || line.Quantity < 1 {
			continue
		}
		if cart[line.ProductID] == nil {
			cart[line.ProductID] = make(map[string]int)
		}
		cart[line.ProductID][line.Size] = line.Quantity
	}
	return cart
}

// Normalize returns a copy of cart with invalid entries removed: empty keys,
// quantities below one, and products left without sizes.
func Normalize(cart model.Cart) model.Cart {
	return normalize(cart.Clone())
}

// Equal reports whether two carts hold the same lines. Nil and empty carts
// are equal.
func Equal(a, b model.Cart) bool {
	if Count(a) != Count(b) {
		return false
	}
	for productID, sizes := range a {
		for size, qty := range sizes {
			if b.Quantity(productID, size) != qty {
				return false
			}
		}
	}
	for productID, sizes := range b {
		for size, qty := range sizes {
			if a.Quantity(productID, size) != qty {
				return false
			}
		}
	}
	return true
}

// normalize strips invalid entries in place.
func normalize(cart model.Cart) model.Cart {
	for productID, sizes := range cart {
		if productID == "" {
			delete(cart, productID)
			continue
		}
		for size, qty := range sizes {
			if size == "" || qty < 1 {
				delete(sizes, size)
			}
		}
		if len(sizes) == 0 {
			delete(cart, productID)
		}
	}
	return cart
}

func sortLines(lines []model.CartLine) {
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].ProductID != lines[j].ProductID {
			return lines[i].ProductID < lines[j].ProductID
		}
		return lines[i].Size < lines[j].Size
	})
}
