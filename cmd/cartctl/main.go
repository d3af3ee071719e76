// cartctl is a CLI tool for driving the storefront cart API.
// Each command performs a single operation, making it composable for scripts.
//
// Commands:
//
//	cartctl get -server URL
//	cartctl add -server URL -product ID -size S [-qty N]
//	cartctl remove -server URL -product ID -size S
//	cartctl set -server URL -product ID -size S -qty N
//	cartctl reload -server URL
//	cartctl login -server URL -token JWT
//	cartctl logout -server URL
//	cartctl products -server URL
//	cartctl notices -server URL
//
// Examples:
//
//	cartctl login -server http://localhost:8080 -token "$TOKEN"
//	cartctl add -server http://localhost:8080 -product 64f0c2 -size M -qty 2
//	COUNT=$(cartctl get -server http://localhost:8080 -q)
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"
)

var client = &http.Client{Timeout: 30 * time.Second}

// Global flags (apply to all commands)
var (
	serverURL string
	quiet     bool
	noColor   bool
	verbose   bool
)

// ANSI color codes
var (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

func init() {
	if os.Getenv("NO_COLOR") != "" {
		disableColors()
	}
}

func disableColors() {
	colorReset, colorRed, colorGreen, colorYellow = "", "", "", ""
	colorCyan, colorGray, colorBold = "", "", ""
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "get":
		runGet(args)
	case "add":
		runAdd(args)
	case "remove":
		runRemove(args)
	case "set":
		runSet(args)
	case "reload":
		runReload(args)
	case "login":
		runLogin(args)
	case "logout":
		runLogout(args)
	case "products":
		runProducts(args)
	case "notices":
		runNotices(args)
	case "-h", "-help", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `cartctl - storefront cart tool

Usage:
  cartctl <command> [options]

Commands:
  get       Show the cart, item count and total
  add       Add units of a product size
  remove    Remove one unit of a product size
  set       Set a product size to an exact quantity
  reload    Merge the local cart with the server cart
  login     Store a session token and merge carts
  logout    Drop the session token and clear the cart
  products  List the product catalog
  notices   Show pending notifications

Examples:
  # Login and add two units
  cartctl login -server http://localhost:8080 -token "$TOKEN"
  cartctl add -server http://localhost:8080 -product 64f0c2 -size M -qty 2

  # Item count only
  cartctl get -server http://localhost:8080 -q

Run 'cartctl <command> -h' for command-specific options.
`)
}

// newFlagSet registers the flags shared by every command.
func newFlagSet(name, usage string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.StringVar(&serverURL, "server", "http://localhost:8080", "Storefront base URL")
	fs.BoolVar(&quiet, "q", false, "Quiet mode - only output the essential value")
	fs.BoolVar(&noColor, "no-color", false, "Disable colored output")
	fs.BoolVar(&verbose, "v", false, "Verbose - show full request/response")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: cartctl %s %s\n\nOptions:\n", name, usage)
		fs.PrintDefaults()
	}
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) {
	fs.Parse(args)
	if noColor {
		disableColors()
	}
	serverURL = strings.TrimSuffix(serverURL, "/")
}

// lineFlags registers -product, -size and -qty.
type lineFlags struct {
	product string
	size    string
	qty     int
}

func (l *lineFlags) register(fs *flag.FlagSet, defaultQty int) {
	fs.StringVar(&l.product, "product", "", "Product ID (required)")
	fs.StringVar(&l.size, "size", "", "Product size (required)")
	fs.IntVar(&l.qty, "qty", defaultQty, "Quantity")
}

func (l *lineFlags) body() map[string]interface{} {
	return map[string]interface{}{
		"productId": l.product,
		"size":      l.size,
		"quantity":  l.qty,
	}
}

// =============================================================================
// CART COMMANDS
// =============================================================================

func runGet(args []string) {
	fs := newFlagSet("get", "[options]")
	parseFlags(fs, args)

	resp, err := doRequest("GET", "/cart", nil)
	if err != nil {
		fatal("Failed to get cart: %v", err)
	}
	printCart(resp)
}

func runAdd(args []string) {
	fs := newFlagSet("add", "-product ID -size S [options]")
	var line lineFlags
	line.register(fs, 1)
	parseFlags(fs, args)

	if line.product == "" || line.size == "" {
		fs.Usage()
		os.Exit(1)
	}

	resp, err := doRequest("POST", "/cart/items", line.body())
	if err != nil {
		fatal("Failed to add to cart: %v", err)
	}
	printSuccess("Added %d × %s (%s)", line.qty, line.product, line.size)
	printCart(resp)
}

func runRemove(args []string) {
	fs := newFlagSet("remove", "-product ID -size S [options]")
	var line lineFlags
	fs.StringVar(&line.product, "product", "", "Product ID (required)")
	fs.StringVar(&line.size, "size", "", "Product size (required)")
	parseFlags(fs, args)

	if line.product == "" || line.size == "" {
		fs.Usage()
		os.Exit(1)
	}

	resp, err := doRequest("POST", "/cart/items/remove", map[string]interface{}{
		"productId": line.product,
		"size":      line.size,
	})
	if err != nil {
		fatal("Failed to remove from cart: %v", err)
	}
	printSuccess("Removed one %s (%s)", line.product, line.size)
	printCart(resp)
}

func runSet(args []string) {
	fs := newFlagSet("set", "-product ID -size S -qty N [options]")
	var line lineFlags
	line.register(fs, 0)
	parseFlags(fs, args)

	if line.product == "" || line.size == "" || line.qty < 1 {
		fs.Usage()
		os.Exit(1)
	}

	resp, err := doRequest("PUT", "/cart/items", line.body())
	if err != nil {
		fatal("Failed to update cart: %v", err)
	}
	printSuccess("Set %s (%s) to %d", line.product, line.size, line.qty)
	printCart(resp)
}

func runReload(args []string) {
	fs := newFlagSet("reload", "[options]")
	parseFlags(fs, args)

	resp, err := doRequest("POST", "/cart/reload", nil)
	if err != nil {
		fatal("Failed to reload cart: %v", err)
	}
	printSuccess("Cart reloaded")
	printCart(resp)
}

// =============================================================================
// SESSION COMMANDS
// =============================================================================

func runLogin(args []string) {
	fs := newFlagSet("login", "-token JWT [options]")
	var tok string
	fs.StringVar(&tok, "token", os.Getenv("CART_TOKEN"), "Session token (default $CART_TOKEN)")
	parseFlags(fs, args)

	if tok == "" {
		fs.Usage()
		os.Exit(1)
	}

	resp, err := doRequest("POST", "/session/login", map[string]interface{}{"token": tok})
	if err != nil {
		fatal("Login failed: %v", err)
	}
	printSuccess("Logged in")
	printCart(resp)
}

func runLogout(args []string) {
	fs := newFlagSet("logout", "[options]")
	parseFlags(fs, args)

	if _, err := doRequest("POST", "/session/logout", nil); err != nil {
		fatal("Logout failed: %v", err)
	}
	printSuccess("Logged out")
}

// =============================================================================
// CATALOG AND NOTICES
// =============================================================================

func runProducts(args []string) {
	fs := newFlagSet("products", "[options]")
	parseFlags(fs, args)

	data, err := doRaw("GET", "/products", nil)
	if err != nil {
		fatal("Failed to list products: %v", err)
	}

	var products []struct {
		ID    string   `json:"_id"`
		Name  string   `json:"name"`
		Price float64  `json:"price"`
		Sizes []string `json:"sizes"`
	}
	if err := json.Unmarshal(data, &products); err != nil {
		fatal("Parsing products: %v", err)
	}

	for _, p := range products {
		if quiet {
			fmt.Println(p.ID)
			continue
		}
		fmt.Printf("  %s%s%s  %s  %s%.2f%s  %s%s%s\n",
			colorCyan, p.ID, colorReset, p.Name, colorGreen, p.Price, colorReset, colorGray, strings.Join(p.Sizes, ","), colorReset)
	}
}

func runNotices(args []string) {
	fs := newFlagSet("notices", "[options]")
	parseFlags(fs, args)

	resp, err := doRequest("GET", "/notices", nil)
	if err != nil {
		fatal("Failed to get notices: %v", err)
	}

	notices, _ := resp["notices"].([]interface{})
	if len(notices) == 0 {
		printInfo("No pending notices")
		return
	}
	for _, n := range notices {
		m, ok := n.(map[string]interface{})
		if !ok {
			continue
		}
		kind, _ := m["kind"].(string)
		msg, _ := m["message"].(string)
		switch kind {
		case "synced":
			printSuccess("%s", msg)
		case "sync_failed", "session_expired":
			printError("%s", msg)
		default:
			printWarning("%s", msg)
		}
	}
}

// =============================================================================
// HTTP
// =============================================================================

func doRequest(method, path string, body interface{}) (map[string]interface{}, error) {
	data, err := doRaw(method, path, body)
	if err != nil {
		return nil, err
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	return result, nil
}

func doRaw(method, path string, body interface{}) ([]byte, error) {
	var reqBody io.Reader
	var reqJSON []byte

	if body != nil {
		var err error
		reqJSON, err = json.MarshalIndent(body, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		reqBody = bytes.NewReader(reqJSON)
	}

	req, err := http.NewRequest(method, serverURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if verbose {
		printRequest(method, path, reqJSON)
	}

	start := time.Now()
	resp, err := client.Do(req)
	duration := time.Since(start)

	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if verbose {
		printResponse(resp.StatusCode, respBody, duration)
	}

	if resp.StatusCode >= 400 {
		return nil, apiError(resp.StatusCode, respBody)
	}
	return respBody, nil
}

// apiError renders the server's {"error":{"code","message"}} body.
func apiError(status int, body []byte) error {
	var e struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.Error.Code != "" {
		return fmt.Errorf("%s: %s", e.Error.Code, e.Error.Message)
	}
	return fmt.Errorf("HTTP %d: %s", status, string(body))
}

// =============================================================================
// OUTPUT HELPERS
// =============================================================================

func printCart(resp map[string]interface{}) {
	count, _ := resp["count"].(float64)
	if quiet {
		fmt.Println(int(count))
		return
	}

	if loading, _ := resp["loading"].(bool); loading {
		printInfo("Cart is still loading")
	}

	cart, _ := resp["cart"].(map[string]interface{})
	products := make([]string, 0, len(cart))
	for id := range cart {
		products = append(products, id)
	}
	sort.Strings(products)

	for _, id := range products {
		sizes, _ := cart[id].(map[string]interface{})
		names := make([]string, 0, len(sizes))
		for s := range sizes {
			names = append(names, s)
		}
		sort.Strings(names)
		for _, s := range names {
			qty, _ := sizes[s].(float64)
			fmt.Printf("  %s%s%s (%s) × %d\n", colorCyan, id, colorReset, s, int(qty))
		}
	}

	fmt.Printf("  %sItems:%s %d\n", colorBold, colorReset, int(count))
	if total, ok := resp["totalText"].(string); ok && total != "" {
		fmt.Printf("  %sTotal:%s %s%s%s\n", colorBold, colorReset, colorGreen, total, colorReset)
	}
}

func printRequest(method, path string, body []byte) {
	fmt.Printf("\n%s▶ REQUEST%s %s%s %s%s\n", colorYellow, colorReset, colorBold, method, path, colorReset)
	if body != nil {
		printJSON(body, "  ")
	}
}

func printResponse(status int, body []byte, duration time.Duration) {
	statusColor := colorGreen
	if status >= 400 {
		statusColor = colorRed
	}
	fmt.Printf("\n%s◀ RESPONSE%s %s%d%s (%v)\n", colorCyan, colorReset, statusColor, status, colorReset, duration)
	printJSON(body, "  ")
}

func printJSON(data []byte, prefix string) {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, prefix, "  "); err != nil {
		fmt.Printf("%s%s\n", prefix, string(data))
		return
	}
	fmt.Println(pretty.String())
}

func printSuccess(format string, args ...interface{}) {
	if !quiet {
		fmt.Printf("%s✓ %s%s\n", colorGreen, fmt.Sprintf(format, args...), colorReset)
	}
}

func printError(format string, args ...interface{}) {
	fmt.Printf("%s✗ %s%s\n", colorRed, fmt.Sprintf(format, args...), colorReset)
}

func printWarning(format string, args ...interface{}) {
	fmt.Printf("%s⚠ %s%s\n", colorYellow, fmt.Sprintf(format, args...), colorReset)
}

func printInfo(format string, args ...interface{}) {
	if !quiet {
		fmt.Printf("%s→ %s%s\n", colorGray, fmt.Sprintf(format, args...), colorReset)
	}
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s✗ %s%s\n", colorRed, fmt.Sprintf(format, args...), colorReset)
	os.Exit(1)
}
