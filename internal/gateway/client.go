package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dunglas/httpsfv"

	"cart-sync/internal/model"
	"cart-sync/internal/reconcile"
	"cart-sync/internal/transport"
)

// =============================================================================
// STOREFRONT BACKEND CLIENT
// =============================================================================
//
// The backend wraps every JSON response in an envelope:
//
//   {"success": true,  "data": ...}
//   {"success": false, "message": "..."}
//
// A false success flag is a failure even when the HTTP status is 200.
// Cart endpoints are per user and authenticated with a Bearer token; the
// product list is public.
// =============================================================================

const (
	pathUserData   = "/users/usersdata/"
	pathCartAdd    = "/users/cart/"
	pathCartRemove = "/users/del_cart/"
	pathProducts   = "/products/"

	serviceName = "cart backend"
	userAgent   = "cart-sync/1.0"

	// clientInfoHeader identifies this client as an RFC 8941 dictionary.
	clientInfoHeader = "Client-Info"
)

// ClientOptions configures optional Client behavior.
type ClientOptions struct {
	// Timeout for each request. Default: 30s.
	Timeout time.Duration

	// TLSFingerprint presents a Chrome TLS fingerprint on https requests.
	TLSFingerprint bool

	// AppName and Version are reported in the Client-Info header.
	AppName string
	Version string

	// HTTPClient overrides the client built from the options above.
	HTTPClient *http.Client
}

// Client is the storefront backend HTTP client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	clientInfo string
}

// NewClient creates a client for the backend rooted at baseURL.
func NewClient(baseURL string, opts ClientOptions) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid backend URL %q", baseURL)
	}

	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.AppName == "" {
		opts.AppName = "cart-sync"
	}

	clientInfo, err := buildClientInfo(opts.AppName, opts.Version)
	if err != nil {
		return nil, fmt.Errorf("building %s header: %w", clientInfoHeader, err)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: opts.Timeout,
			Transport: transport.New(transport.Options{
				Timeout:     opts.Timeout,
				Fingerprint: opts.TLSFingerprint,
			}),
		}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		clientInfo: clientInfo,
	}, nil
}

// buildClientInfo serializes app="...", version="..." as a structured field.
func buildClientInfo(app, version string) (string, error) {
	dict := httpsfv.NewDictionary()
	dict.Add("app", httpsfv.NewItem(app))
	if version != "" {
		dict.Add("version", httpsfv.NewItem(version))
	}
	return httpsfv.Marshal(dict)
}

// === Cart Operations ===

// FetchCart retrieves the user's server-side cart.
// GET /users/usersdata/{id}
func (c *Client) FetchCart(ctx context.Context, subjectID, token string) (model.Cart, error) {
	req, err := c.newRequest(ctx, http.MethodGet, pathUserData+url.PathEscape(subjectID), nil, token)
	if err != nil {
		return nil, fmt.Errorf("creating cart request: %w", err)
	}

	var data userData
	if err := c.do(req, &data); err != nil {
		return nil, err
	}

	return reconcile.FromLines(data.Cart), nil
}

// AddLine adds quantity units of (productID, size) to the server cart.
// POST /users/cart/{id}
func (c *Client) AddLine(ctx context.Context, subjectID, token, productID, size string, quantity int) error {
	body := &addLineRequest{
		ProductID: productID,
		Quantity:  quantity,
		Size:      size,
	}

	req, err := c.newRequest(ctx, http.MethodPost, pathCartAdd+url.PathEscape(subjectID), body, token)
	if err != nil {
		return fmt.Errorf("creating add line request: %w", err)
	}

	return c.do(req, nil)
}

// RemoveLine removes one unit of (productID, size) from the server cart.
// POST /users/del_cart/{id}
func (c *Client) RemoveLine(ctx context.Context, subjectID, token, productID, size string) error {
	body := &removeLineRequest{
		ProductID: productID,
		Size:      size,
	}

	req, err := c.newRequest(ctx, http.MethodPost, pathCartRemove+url.PathEscape(subjectID), body, token)
	if err != nil {
		return fmt.Errorf("creating remove line request: %w", err)
	}

	return c.do(req, nil)
}

// === Catalog ===

// FetchProducts retrieves the product list.
// GET /products/
func (c *Client) FetchProducts(ctx context.Context) ([]model.Product, error) {
	req, err := c.newRequest(ctx, http.MethodGet, pathProducts, nil, "")
	if err != nil {
		return nil, fmt.Errorf("creating products request: %w", err)
	}

	var products []model.Product
	if err := c.do(req, &products); err != nil {
		return nil, err
	}

	return products, nil
}

// === HTTP Helpers ===

// newRequest creates a JSON request. token is sent as a Bearer credential
// when non-empty.
func (c *Client) newRequest(ctx context.Context, method, path string, body any, token string) (*http.Request, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(clientInfoHeader, c.clientInfo)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req, nil
}

// do executes the request, unwraps the envelope and decodes data into result.
func (c *Client) do(req *http.Request, result any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.NewUpstreamError(serviceName, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.NewUpstreamError(serviceName, fmt.Errorf("reading response: %w", err))
	}

	if resp.StatusCode >= 400 {
		return parseError(resp.StatusCode, body)
	}

	var env envelope
	if len(body) > 0 {
		if err := json.Unmarshal(body, &env); err != nil {
			return model.NewUpstreamError(serviceName, fmt.Errorf("parsing response: %w", err))
		}
	}
	if !env.Success {
		msg := env.Message
		if msg == "" {
			msg = "request unsuccessful"
		}
		return model.NewUpstreamError(serviceName, errors.New(msg))
	}

	if result != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, result); err != nil {
			return model.NewUpstreamError(serviceName, fmt.Errorf("parsing response data: %w", err))
		}
	}

	return nil
}

// parseError converts backend error responses to model.APIError.
func parseError(statusCode int, body []byte) error {
	var env envelope
	json.Unmarshal(body, &env) // Best effort parse

	switch statusCode {
	case http.StatusUnauthorized:
		return model.NewUnauthorizedError("session rejected by the cart backend")
	case http.StatusForbidden:
		return model.NewUnauthorizedError("cart backend access denied")
	case http.StatusNotFound:
		return model.NewNotFoundError("resource")
	case http.StatusTooManyRequests:
		return model.NewRateLimitError(serviceName)
	case http.StatusBadRequest:
		msg := env.Message
		if msg == "" {
			msg = "invalid request"
		}
		return model.NewValidationError("request", msg)
	default:
		return model.NewUpstreamError(serviceName,
			fmt.Errorf("status %d: %s", statusCode, env.Message))
	}
}

// Verify Client implements Gateway at compile time.
var _ Gateway = (*Client)(nil)
