// Package handler provides the HTTP and MCP surface over the cart session.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"cart-sync/internal/catalog"
	"cart-sync/internal/model"
	"cart-sync/internal/session"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	session *session.Session
	catalog *catalog.Catalog
	logger  *slog.Logger
}

// New creates a new Handler. The catalog may be nil, in which case cart
// responses carry no amounts and /products returns an empty list.
func New(s *session.Session, c *catalog.Catalog, logger *slog.Logger) *Handler {
	return &Handler{
		session: s,
		catalog: c,
		logger:  logger,
	}
}

// RegisterRoutes registers all HTTP routes with the given ServeMux.
// Uses Go 1.22+ method routing patterns.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Cart
	mux.HandleFunc("GET /cart", h.handleGetCart)
	mux.HandleFunc("POST /cart/items", h.handleAddItem)
	mux.HandleFunc("POST /cart/items/remove", h.handleRemoveItem)
	mux.HandleFunc("PUT /cart/items", h.handleUpdateItem)
	mux.HandleFunc("POST /cart/reload", h.handleReload)

	// Session
	mux.HandleFunc("POST /session/login", h.handleLogin)
	mux.HandleFunc("POST /session/logout", h.handleLogout)

	mux.HandleFunc("GET /products", h.handleProducts)
	mux.HandleFunc("GET /notices", h.handleNotices)

	// MCP transport - JSON-RPC endpoint using official MCP SDK
	mux.Handle("/mcp", h.NewMCPHandler())

	// Health check
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /healthz", h.handleHealth)
}

// handleHealth returns a simple health check response.
// GET /health, GET /healthz
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{
		Status: "ok",
		State:  h.session.State().String(),
	})
}

type healthResponse struct {
	Status string `json:"status"`
	State  string `json:"state"`
}

// === Response Helpers ===

// writeJSON sends a JSON response with the given status code.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError sends an error response, extracting status/code from APIError if present.
// Uses errors.As() to unwrap error chains (e.g., fmt.Errorf wrapping).
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	apiErr := h.toAPIError(err)
	h.writeJSON(w, apiErr.StatusCode, errorResponse{
		Error: errorBody{
			Code:    apiErr.Code,
			Message: apiErr.Message,
		},
	})
}

// toAPIError finds the APIError in err's chain. A closed session maps to
// 503; anything else is logged and hidden behind INTERNAL_ERROR.
func (h *Handler) toAPIError(err error) *model.APIError {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	if errors.Is(err, session.ErrClosed) {
		return &model.APIError{
			Code:       "SESSION_CLOSED",
			Message:    "the cart session is shutting down",
			StatusCode: http.StatusServiceUnavailable,
			Err:        err,
		}
	}

	h.logger.Error("internal error", slog.String("error", err.Error()))
	return &model.APIError{
		Code:       "INTERNAL_ERROR",
		Message:    "an internal error occurred",
		StatusCode: http.StatusInternalServerError,
	}
}

// errorResponse is the JSON structure for error responses.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MaxRequestBodySize limits JSON request bodies to 1MB to prevent DoS.
const MaxRequestBodySize = 1 << 20 // 1MB

// decodeJSON reads JSON from request body into v.
// Limits body size to MaxRequestBodySize to prevent memory exhaustion.
// Returns an APIError if decoding fails.
func decodeJSON(r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(nil, r.Body, MaxRequestBodySize)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		// Don't expose internal error details to client
		return model.NewValidationError("body", "invalid JSON")
	}
	return nil
}
