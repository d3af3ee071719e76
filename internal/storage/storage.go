// Package storage provides durable client-side key/value storage for the cart
// session: the credential under KeyToken and the serialized cart under
// KeyCartItems.
//
// Storage may be shared by several engine instances (one per "tab" or
// process). A Watcher reports writes made by other instances so the session
// can reload instead of assuming exclusive ownership.
package storage

import "context"

// Well-known keys.
const (
	KeyToken     = "token"
	KeyCartItems = "cartItems"
)

// Storage is a minimal string key/value store.
type Storage interface {
	// Get returns the value and whether the key exists.
	Get(key string) (string, bool, error)

	// Set overwrites the value for key.
	Set(key, value string) error

	// Remove deletes key. Removing a missing key is not an error.
	Remove(key string) error
}

// Change describes a write made by another instance.
type Change struct {
	Key     string
	Removed bool
}

// Watcher subscribes to changes made outside this instance.
type Watcher interface {
	// Watch calls fn for every external change until ctx is canceled or the
	// returned stop function is called. fn is called from a single goroutine.
	Watch(ctx context.Context, fn func(Change)) (stop func(), err error)
}
