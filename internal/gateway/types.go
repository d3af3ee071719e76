package gateway

import (
	"encoding/json"

	"cart-sync/internal/model"
)

// envelope is the response wrapper used by every backend endpoint.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

// userData is the subset of GET /users/usersdata/{id} the cart needs.
type userData struct {
	Cart []model.CartLine `json:"cart"`
}

type addLineRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	Size      string `json:"size"`
}

type removeLineRequest struct {
	ProductID string `json:"productId"`
	Size      string `json:"size"`
}
