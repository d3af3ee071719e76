// MCP transport for the cart session using the official MCP Go SDK.
// Exposes cart operations as MCP tools alongside the REST routes.
package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"cart-sync/internal/model"
	"cart-sync/internal/reconcile"
	"cart-sync/internal/session"
)

// === MCP Tool Input/Output Types ===

// GetCartInput is the input schema for get_cart. It takes no arguments.
type GetCartInput struct{}

// AddToCartInput is the input schema for add_to_cart.
type AddToCartInput struct {
	ProductID string `json:"productId" jsonschema:"product ID"`
	Size      string `json:"size" jsonschema:"product size"`
	Quantity  int    `json:"quantity,omitempty" jsonschema:"units to add, default 1"`
}

// RemoveFromCartInput is the input schema for remove_from_cart.
type RemoveFromCartInput struct {
	ProductID string `json:"productId" jsonschema:"product ID"`
	Size      string `json:"size" jsonschema:"product size"`
}

// ReloadCartInput is the input schema for reload_cart. It takes no arguments.
type ReloadCartInput struct{}

// CartOutput is the structured result of every cart tool.
type CartOutput struct {
	Cart    []model.CartLine `json:"cart"`
	Count   int              `json:"count"`
	Loading bool             `json:"loading"`
	Amount  int64            `json:"amount"`
	Total   int64            `json:"total"`
}

// NewMCPServer creates an MCP server with cart tools registered.
// The server exposes the same operations as the REST API but via MCP protocol.
func (h *Handler) NewMCPServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "cart-sync",
			Version: "1.0.0",
		},
		&mcp.ServerOptions{
			Instructions: "Cart sync - shopping cart operations for the current session. " +
				"Quantities are per product and size; the server cart is updated in the background.",
		},
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_cart",
		Description: "Get the current cart lines, item count and totals in cents.",
	}, h.mcpGetCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_to_cart",
		Description: "Add units of a product size to the cart. Requires a logged-in session.",
	}, h.mcpAddToCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "remove_from_cart",
		Description: "Remove one unit of a product size from the cart.",
	}, h.mcpRemoveFromCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "reload_cart",
		Description: "Reload the cart, merging the local cart with the server cart.",
	}, h.mcpReloadCart)

	return server
}

// NewMCPHandler returns an HTTP handler for the MCP endpoint.
// Mount this at /mcp on your mux.
func (h *Handler) NewMCPHandler() http.Handler {
	server := h.NewMCPServer()
	return mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server { return server },
		nil,
	)
}

// === Tool Handlers ===

func (h *Handler) mcpGetCart(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input GetCartInput,
) (*mcp.CallToolResult, CartOutput, error) {
	return nil, h.cartOutput(), nil
}

func (h *Handler) mcpAddToCart(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input AddToCartInput,
) (*mcp.CallToolResult, CartOutput, error) {
	if input.Quantity == 0 {
		input.Quantity = 1
	}
	if err := h.checkSize(input.ProductID, input.Size); err != nil {
		return nil, CartOutput{}, h.mcpError(err)
	}

	if err := h.session.AddToCart(ctx, input.ProductID, input.Size, input.Quantity); err != nil {
		return nil, CartOutput{}, h.mcpError(err)
	}
	return nil, h.cartOutput(), nil
}

func (h *Handler) mcpRemoveFromCart(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input RemoveFromCartInput,
) (*mcp.CallToolResult, CartOutput, error) {
	if err := h.session.RemoveFromCart(ctx, input.ProductID, input.Size); err != nil {
		return nil, CartOutput{}, h.mcpError(err)
	}
	return nil, h.cartOutput(), nil
}

func (h *Handler) mcpReloadCart(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ReloadCartInput,
) (*mcp.CallToolResult, CartOutput, error) {
	if err := h.session.Reload(ctx); err != nil {
		return nil, CartOutput{}, h.mcpError(err)
	}
	return nil, h.cartOutput(), nil
}

// cartOutput flattens the cart view into sorted lines.
func (h *Handler) cartOutput() CartOutput {
	view := h.cartView()
	return CartOutput{
		Cart:    reconcile.Lines(view.Cart),
		Count:   view.Count,
		Loading: view.Loading,
		Amount:  view.Amount,
		Total:   view.Total,
	}
}

// mcpError converts session errors to MCP-friendly errors.
func (h *Handler) mcpError(err error) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
	}
	if errors.Is(err, session.ErrClosed) {
		return fmt.Errorf("SESSION_CLOSED: %v", err)
	}
	// Don't leak internal error details
	h.logger.Error("mcp internal error", "error", err.Error())
	return fmt.Errorf("internal error")
}
