// Package localcart persists the cart mapping in durable client storage.
// It has no knowledge of the network; failures degrade to an empty cart.
package localcart

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"cart-sync/internal/model"
	"cart-sync/internal/reconcile"
	"cart-sync/internal/storage"
)

// Store reads and writes the cart under storage.KeyCartItems.
type Store struct {
	storage storage.Storage
	logger  *slog.Logger
}

// New creates a Store over the given storage.
func New(s storage.Storage, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{storage: s, logger: logger}
}

// Load returns the persisted cart, or an empty cart when the key is absent,
// unreadable or malformed. Corruption is logged, never returned.
func (s *Store) Load() model.Cart {
	cart, err := s.load()
	if err != nil {
		s.logger.Warn("discarding stored cart",
			slog.String("key", storage.KeyCartItems),
			slog.String("error", err.Error()))
		return model.Cart{}
	}
	return cart
}

func (s *Store) load() (model.Cart, error) {
	raw, ok, err := s.storage.Get(storage.KeyCartItems)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStorageCorrupt, err)
	}
	if !ok || raw == "" {
		return model.Cart{}, nil
	}

	var cart model.Cart
	if err := json.Unmarshal([]byte(raw), &cart); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStorageCorrupt, err)
	}
	// "null" decodes without error into a nil map
	if cart == nil {
		return nil, fmt.Errorf("%w: cart is not an object", model.ErrStorageCorrupt)
	}

	return reconcile.Normalize(cart), nil
}

// Save overwrites the persisted cart unconditionally. Write failures are
// logged and swallowed.
func (s *Store) Save(cart model.Cart) {
	if cart == nil {
		cart = model.Cart{}
	}
	data, err := json.Marshal(cart)
	if err != nil {
		s.logger.Error("encoding cart", slog.String("error", err.Error()))
		return
	}
	if err := s.storage.Set(storage.KeyCartItems, string(data)); err != nil {
		s.logger.Error("saving cart", slog.String("error", err.Error()))
	}
}

// Clear removes the persisted cart.
func (s *Store) Clear() {
	if err := s.storage.Remove(storage.KeyCartItems); err != nil {
		s.logger.Error("clearing cart", slog.String("error", err.Error()))
	}
}
