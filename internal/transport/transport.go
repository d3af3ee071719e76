// Package transport provides the HTTP round tripper used by the cart gateway.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
)

// =============================================================================
// TLS FINGERPRINT TRANSPORT
// =============================================================================
//
// Go's standard TLS client has a distinctive fingerprint that some CDNs in
// front of storefront backends rate limit aggressively.
//
// For https backends this transport uses uTLS to present a Chrome-like TLS
// fingerprint with full HTTP/2 support:
//
//   1. Use uTLS with HelloChrome_Auto for Chrome's TLS fingerprint
//   2. Let ALPN negotiate naturally (h2, http/1.1)
//   3. Use Go's http2.Transport for HTTP/2 framing when negotiated
//
// Plain http backends (local development, tests) skip TLS entirely and go
// through a standard http.Transport.
// =============================================================================

// Options configures the round tripper returned by New.
type Options struct {
	// Timeout bounds dialing and the TLS handshake.
	Timeout time.Duration

	// Fingerprint enables the Chrome TLS fingerprint for https requests.
	// When false, https requests use the standard library TLS stack.
	Fingerprint bool
}

// New creates an http.RoundTripper for the gateway. Requests are routed by
// URL scheme: http always uses a plain transport, https uses the Chrome
// fingerprint when enabled.
func New(opts Options) http.RoundTripper {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	plain := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: opts.Timeout}).DialContext,
		TLSHandshakeTimeout: opts.Timeout,
		ForceAttemptHTTP2:   true,
		MaxIdleConnsPerHost: 8,
	}

	var secure http.RoundTripper = plain
	if opts.Fingerprint {
		secure = NewChromeTransport(opts.Timeout)
	}

	return &schemeTransport{plain: plain, secure: secure}
}

// schemeTransport dispatches on the request URL scheme.
type schemeTransport struct {
	plain  http.RoundTripper
	secure http.RoundTripper
}

// RoundTrip implements http.RoundTripper.
func (t *schemeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL != nil && req.URL.Scheme == "https" {
		return t.secure.RoundTrip(req)
	}
	return t.plain.RoundTrip(req)
}

// NewChromeTransport creates an http.RoundTripper that presents Chrome's TLS
// fingerprint to upstream servers. Supports both HTTP/2 and HTTP/1.1 based on
// ALPN negotiation.
func NewChromeTransport(timeout time.Duration) http.RoundTripper {
	dialer := &net.Dialer{Timeout: timeout}

	h2Transport := &http2.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			return dialChromeTLS(ctx, dialer, network, addr)
		},
	}

	h1Transport := &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialChromeTLS(ctx, dialer, network, addr)
		},
		ForceAttemptHTTP2: false,
	}

	return &chromeTransport{
		h2: h2Transport,
		h1: h1Transport,
	}
}

// chromeTransport wraps HTTP/2 and HTTP/1.1 transports with Chrome TLS fingerprint.
type chromeTransport struct {
	h2 *http2.Transport
	h1 *http.Transport
}

// RoundTrip implements http.RoundTripper.
// Tries HTTP/2 first, falls back to HTTP/1.1 if the server doesn't speak h2.
// Only requests without a body (or with a replayable one) are retried.
func (t *chromeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.h2.RoundTrip(req)
	if err == nil {
		return resp, nil
	}

	if req.Body != nil && req.Body != http.NoBody {
		if req.GetBody == nil {
			return nil, err
		}
		body, bodyErr := req.GetBody()
		if bodyErr != nil {
			return nil, err
		}
		req = req.Clone(req.Context())
		req.Body = body
	}
	return t.h1.RoundTrip(req)
}

// dialChromeTLS establishes a TLS connection with Chrome's fingerprint.
func dialChromeTLS(ctx context.Context, dialer *net.Dialer, network, addr string) (net.Conn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	tlsConn := utls.UClient(conn, &utls.Config{ServerName: host}, utls.HelloChrome_Auto)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("tls handshake: %w", err)
	}

	return tlsConn, nil
}
