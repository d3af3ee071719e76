package handler

import (
	"log/slog"
	"net/http"

	"cart-sync/internal/model"
	"cart-sync/internal/session"
)

// cartResponse is the presentation view of the session cart.
// Amounts are in cents; the text fields carry the currency prefix.
type cartResponse struct {
	Cart       model.Cart `json:"cart"`
	Count      int        `json:"count"`
	Loading    bool       `json:"loading"`
	State      string     `json:"state"`
	Amount     int64      `json:"amount"`
	Total      int64      `json:"total"`
	AmountText string     `json:"amountText,omitempty"`
	TotalText  string     `json:"totalText,omitempty"`
}

// lineRequest is the body of the cart line endpoints.
type lineRequest struct {
	ProductID string `json:"productId"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity,omitempty"`
}

type loginRequest struct {
	Token string `json:"token"`
}

type noticesResponse struct {
	Notices []session.Notice `json:"notices"`
}

// maxNoticesPerRequest bounds one /notices drain.
const maxNoticesPerRequest = 100

// cartView builds the response body from a consistent session snapshot.
func (h *Handler) cartView() cartResponse {
	snap := h.session.Snapshot()
	resp := cartResponse{
		Cart:    snap.Cart,
		Count:   snap.Count,
		Loading: snap.Loading,
		State:   snap.State.String(),
	}
	if h.catalog != nil {
		resp.Amount = h.catalog.Amount(snap.Cart)
		resp.Total = h.catalog.Total(snap.Cart)
		resp.AmountText = h.catalog.Format(resp.Amount)
		resp.TotalText = h.catalog.Format(resp.Total)
	}
	return resp
}

// checkSize rejects sizes the catalog knows the product does not offer.
func (h *Handler) checkSize(productID, size string) error {
	if h.catalog == nil || size == "" {
		return nil
	}
	if !h.catalog.ValidSize(productID, size) {
		return model.NewValidationError("size", "not offered for this product")
	}
	return nil
}

// handleGetCart returns the cart with count, loading flag and totals.
// GET /cart
func (h *Handler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.cartView())
}

// handleAddItem adds quantity units of a line. Quantity defaults to 1.
// POST /cart/items
func (h *Handler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req lineRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	if err := h.checkSize(req.ProductID, req.Size); err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "adding to cart",
		slog.String("product_id", req.ProductID),
		slog.String("size", req.Size),
		slog.Int("quantity", req.Quantity),
	)

	if err := h.session.AddToCart(ctx, req.ProductID, req.Size, req.Quantity); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, h.cartView())
}

// handleRemoveItem removes one unit of a line.
// POST /cart/items/remove
func (h *Handler) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req lineRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "removing from cart",
		slog.String("product_id", req.ProductID),
		slog.String("size", req.Size),
	)

	if err := h.session.RemoveFromCart(ctx, req.ProductID, req.Size); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, h.cartView())
}

// handleUpdateItem sets a line to an absolute quantity.
// PUT /cart/items
func (h *Handler) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req lineRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.checkSize(req.ProductID, req.Size); err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "updating cart line",
		slog.String("product_id", req.ProductID),
		slog.String("size", req.Size),
		slog.Int("quantity", req.Quantity),
	)

	if err := h.session.UpdateQuantity(ctx, req.ProductID, req.Size, req.Quantity); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, h.cartView())
}

// handleReload reruns the load and merge sequence.
// POST /cart/reload
func (h *Handler) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Reload(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.cartView())
}

// handleLogin stores a credential and merges the local cart into the
// user's server cart.
// POST /session/login
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.Token == "" {
		h.writeError(w, model.NewValidationError("token", "must not be empty"))
		return
	}

	if err := h.session.Login(ctx, req.Token); err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "session login", slog.String("subject", h.session.SubjectID()))
	h.writeJSON(w, http.StatusOK, h.cartView())
}

// handleLogout purges the credential and clears the cart.
// POST /session/logout
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Logout(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.cartView())
}

// handleProducts returns the cached product list.
// GET /products
func (h *Handler) handleProducts(w http.ResponseWriter, r *http.Request) {
	products := []model.Product{}
	if h.catalog != nil {
		if p := h.catalog.Products(); p != nil {
			products = p
		}
	}
	h.writeJSON(w, http.StatusOK, products)
}

// handleNotices drains pending notices without waiting for new ones.
// GET /notices
func (h *Handler) handleNotices(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, noticesResponse{Notices: h.drainNotices()})
}

func (h *Handler) drainNotices() []session.Notice {
	notices := []session.Notice{}
	ch := h.session.Notices()
	for len(notices) < maxNoticesPerRequest {
		select {
		case n, ok := <-ch:
			if !ok {
				return notices
			}
			notices = append(notices, n)
		default:
			return notices
		}
	}
	return notices
}
