package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cart-sync/internal/model"
)

// jsonrpcRequest is a JSON-RPC 2.0 request structure for testing.
type jsonrpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// jsonrpcResponse is a JSON-RPC 2.0 response structure for testing.
type jsonrpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonrpcError   `json:"error,omitempty"`
}

type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// toolCallParams represents the params for tools/call method.
type toolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// callToolResult is the expected result structure from a tool call.
type callToolResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	} `json:"content"`
	StructuredContent json.RawMessage `json:"structuredContent,omitempty"`
	IsError           bool            `json:"isError,omitempty"`
}

func TestMCPServerCreation(t *testing.T) {
	h := New(nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	if h.NewMCPServer() == nil {
		t.Fatal("NewMCPServer returned nil")
	}
	if h.NewMCPHandler() == nil {
		t.Fatal("NewMCPHandler returned nil")
	}
}

func TestMCPInitialize(t *testing.T) {
	env := newTestEnv(t, model.Cart{})

	req := jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "initialize",
		Params: map[string]interface{}{
			"protocolVersion": "2025-06-18",
			"clientInfo": map[string]string{
				"name":    "test-client",
				"version": "1.0.0",
			},
			"capabilities": map[string]interface{}{},
		},
	}

	resp := postMCP(t, env.mux, "", req)
	if resp.Error != nil {
		t.Errorf("Unexpected error: %+v", resp.Error)
	}
	if resp.Result == nil {
		t.Error("Expected result in response")
	}
}

func TestMCPToolsList(t *testing.T) {
	env := newTestEnv(t, model.Cart{})
	sessionID := initMCPSession(t, env.mux)

	resp := postMCP(t, env.mux, sessionID, jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      2,
		Method:  "tools/list",
	})
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %+v", resp.Error)
	}

	var toolsResult struct {
		Tools []struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(resp.Result, &toolsResult); err != nil {
		t.Fatalf("Failed to parse tools result: %v", err)
	}

	expectedTools := map[string]bool{
		"get_cart":         false,
		"add_to_cart":      false,
		"remove_from_cart": false,
		"reload_cart":      false,
	}
	for _, tool := range toolsResult.Tools {
		if _, ok := expectedTools[tool.Name]; ok {
			expectedTools[tool.Name] = true
		}
	}
	for name, found := range expectedTools {
		if !found {
			t.Errorf("Expected tool %q not found in tools list", name)
		}
	}
}

func TestMCPGetCart(t *testing.T) {
	env := newTestEnv(t, model.Cart{"A": {"M": 2}, "B": {"S": 1}})
	env.login(t)
	sessionID := initMCPSession(t, env.mux)

	result := callTool(t, env.mux, sessionID, "get_cart", map[string]interface{}{})
	if result.IsError {
		t.Fatalf("Expected success, got error: %+v", result.Content)
	}

	out := decodeCartOutput(t, result)
	if out.Count != 3 {
		t.Errorf("Count = %d, want 3", out.Count)
	}
	if len(out.Cart) != 2 || out.Cart[0].ProductID != "A" || out.Cart[1].ProductID != "B" {
		t.Errorf("Cart lines = %+v, want sorted A then B", out.Cart)
	}
	if out.Amount != 2250 {
		t.Errorf("Amount = %d, want 2250", out.Amount)
	}
}

func TestMCPAddToCart(t *testing.T) {
	env := newTestEnv(t, model.Cart{})
	env.login(t)
	sessionID := initMCPSession(t, env.mux)

	result := callTool(t, env.mux, sessionID, "add_to_cart", map[string]interface{}{
		"productId": "A",
		"size":      "S",
		"quantity":  2,
	})
	if result.IsError {
		t.Fatalf("Expected success, got error: %+v", result.Content)
	}
	if out := decodeCartOutput(t, result); out.Count != 2 {
		t.Errorf("Count = %d, want 2", out.Count)
	}

	adds := env.addCalls()
	if len(adds) != 1 || adds[0] != (model.CartLine{ProductID: "A", Size: "S", Quantity: 2}) {
		t.Errorf("AddLine calls = %+v", adds)
	}
}

func TestMCPToolErrors(t *testing.T) {
	tests := []struct {
		name     string
		login    bool
		tool     string
		args     map[string]interface{}
		wantText string
	}{
		{
			name:     "add without login",
			tool:     "add_to_cart",
			args:     map[string]interface{}{"productId": "A", "size": "M"},
			wantText: "LOGIN_REQUIRED",
		},
		{
			name:     "add size not offered",
			login:    true,
			tool:     "add_to_cart",
			args:     map[string]interface{}{"productId": "A", "size": "XXL"},
			wantText: "INVALID_INPUT",
		},
		{
			name:     "remove with empty size",
			login:    true,
			tool:     "remove_from_cart",
			args:     map[string]interface{}{"productId": "A", "size": ""},
			wantText: "INVALID_INPUT",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, model.Cart{})
			if tc.login {
				env.login(t)
			}
			sessionID := initMCPSession(t, env.mux)

			result := callTool(t, env.mux, sessionID, tc.tool, tc.args)
			if !result.IsError {
				t.Fatal("Expected tool error")
			}
			if len(result.Content) == 0 || !strings.Contains(result.Content[0].Text, tc.wantText) {
				t.Errorf("Content = %+v, want containing %q", result.Content, tc.wantText)
			}
		})
	}
}

func TestMCPRemoveAndReload(t *testing.T) {
	env := newTestEnv(t, model.Cart{"A": {"M": 2}})
	env.login(t)
	sessionID := initMCPSession(t, env.mux)

	result := callTool(t, env.mux, sessionID, "remove_from_cart", map[string]interface{}{
		"productId": "A",
		"size":      "M",
	})
	if result.IsError {
		t.Fatalf("remove failed: %+v", result.Content)
	}
	if out := decodeCartOutput(t, result); out.Count != 1 {
		t.Errorf("Count after remove = %d, want 1", out.Count)
	}
	env.session.Flush()

	// The fake server still reports 2; reload merges by maximum.
	result = callTool(t, env.mux, sessionID, "reload_cart", map[string]interface{}{})
	if result.IsError {
		t.Fatalf("reload failed: %+v", result.Content)
	}
	if out := decodeCartOutput(t, result); out.Count != 2 {
		t.Errorf("Count after reload = %d, want 2", out.Count)
	}
}

// postMCP sends one JSON-RPC message to /mcp and decodes the reply.
func postMCP(t *testing.T, mux *http.ServeMux, sessionID string, req jsonrpcRequest) jsonrpcResponse {
	t.Helper()

	body, _ := json.Marshal(req)
	httpReq := httptest.NewRequest("POST", "/mcp", bytes.NewReader(body))
	setMCPHeaders(httpReq, sessionID)
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, httpReq)

	// MCP returns 200 OK even for tool errors, error is in the result
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d\nBody: %s", w.Code, http.StatusOK, w.Body.String())
	}

	jsonData, err := parseSSEResponse(w.Body.String())
	if err != nil {
		t.Fatalf("Failed to parse SSE response: %v", err)
	}

	var resp jsonrpcResponse
	if err := json.Unmarshal(jsonData, &resp); err != nil {
		t.Fatalf("Failed to decode response: %v\nBody: %s", err, string(jsonData))
	}
	return resp
}

// callTool invokes a tool and returns its result.
func callTool(t *testing.T, mux *http.ServeMux, sessionID, name string, args map[string]interface{}) callToolResult {
	t.Helper()

	rawArgs, _ := json.Marshal(args)
	resp := postMCP(t, mux, sessionID, jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      2,
		Method:  "tools/call",
		Params: toolCallParams{
			Name:      name,
			Arguments: rawArgs,
		},
	})
	if resp.Error != nil {
		t.Fatalf("Unexpected JSON-RPC error: %+v", resp.Error)
	}

	var result callToolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("Failed to parse result: %v", err)
	}
	return result
}

func decodeCartOutput(t *testing.T, result callToolResult) CartOutput {
	t.Helper()

	data := []byte(result.StructuredContent)
	if len(data) == 0 && len(result.Content) > 0 {
		data = []byte(result.Content[0].Text)
	}
	var out CartOutput
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Failed to parse cart output: %v\nData: %s", err, data)
	}
	return out
}

// setMCPHeaders sets the required headers for MCP Streamable HTTP requests.
func setMCPHeaders(req *http.Request, sessionID string) {
	req.Header.Set("Content-Type", "application/json")
	// MCP Streamable HTTP requires Accept header with both json and event-stream
	req.Header.Set("Accept", "application/json, text/event-stream")
	if sessionID != "" {
		req.Header.Set("Mcp-Session-Id", sessionID)
	}
}

// parseSSEResponse extracts JSON data from SSE formatted response.
// SSE format: "event: message\ndata: {json}\n\n"
func parseSSEResponse(body string) ([]byte, error) {
	lines := strings.Split(body, "\n")
	for _, line := range lines {
		if strings.HasPrefix(line, "data: ") {
			return []byte(strings.TrimPrefix(line, "data: ")), nil
		}
	}
	// If no SSE format found, assume plain JSON
	return []byte(body), nil
}

// initMCPSession initializes an MCP session and returns the session ID.
func initMCPSession(t *testing.T, mux *http.ServeMux) string {
	t.Helper()

	initReq := jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "initialize",
		Params: map[string]interface{}{
			"protocolVersion": "2025-06-18",
			"clientInfo":      map[string]string{"name": "test", "version": "1.0"},
			"capabilities":    map[string]interface{}{},
		},
	}

	body, _ := json.Marshal(initReq)
	httpReq := httptest.NewRequest("POST", "/mcp", bytes.NewReader(body))
	setMCPHeaders(httpReq, "")
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, httpReq)

	if w.Code != http.StatusOK {
		t.Fatalf("Failed to initialize MCP session: %s", w.Body.String())
	}

	return w.Header().Get("Mcp-Session-Id")
}
