// Package transport provides the outbound HTTP round-trippers used for
// storefront calls: a bounded single-retry wrapper and an optional
// Chrome-fingerprinted TLS transport.
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
)

// Options controls how New builds the storefront HTTP client.
type Options struct {
	Timeout   time.Duration // Per-request timeout, including the retry
	Retries   int           // Immediate retries on connection failure or 5xx (0 or 1)
	ChromeTLS bool          // Present a Chrome TLS fingerprint
}

// New returns an http.Client for storefront calls.
func New(opts Options) *http.Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}

	var base http.RoundTripper = http.DefaultTransport
	if opts.ChromeTLS {
		base = NewChromeTransport(opts.Timeout)
	}

	return &http.Client{
		Timeout:   opts.Timeout,
		Transport: NewRetryTransport(base, opts.Retries),
	}
}

// =============================================================================
// RETRY TRANSPORT
// =============================================================================
//
// Storefront calls get at most one immediate retry, and only when the failure
// is at the connection level or the server answered 5xx. A 4xx is an
// application answer (bad token, invalid variant) and is returned as-is.
// =============================================================================

// NewRetryTransport wraps base so failed requests are retried up to retries
// times. Requests with a body must be replayable via GetBody.
func NewRetryTransport(base http.RoundTripper, retries int) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	if retries < 0 {
		retries = 0
	}
	return &retryTransport{base: base, retries: retries}
}

type retryTransport struct {
	base    http.RoundTripper
	retries int
}

// RoundTrip implements http.RoundTripper.
func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)

	for attempt := 0; attempt < t.retries && shouldRetry(req, resp, err); attempt++ {
		next, rerr := rewind(req)
		if rerr != nil {
			break
		}
		if resp != nil {
			resp.Body.Close()
		}
		resp, err = t.base.RoundTrip(next)
	}

	return resp, err
}

func shouldRetry(req *http.Request, resp *http.Response, err error) bool {
	if req.Context().Err() != nil {
		return false
	}
	if err != nil {
		return isConnectionError(err)
	}
	return resp.StatusCode >= 500
}

// isConnectionError reports whether err happened below HTTP: dial, reset,
// timeout, unexpected EOF.
func isConnectionError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// rewind returns a clone of req with a fresh body.
func rewind(req *http.Request) (*http.Request, error) {
	next := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return next, nil
	}
	if req.GetBody == nil {
		return nil, fmt.Errorf("request body not replayable")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	next.Body = body
	return next, nil
}

// =============================================================================
// TLS FINGERPRINT TRANSPORT
// =============================================================================
//
// Some storefronts sit behind bot protection that rate limits Go's default
// TLS fingerprint. This transport dials with uTLS presenting Chrome's
// ClientHello and speaks HTTP/2 when ALPN negotiates it.
// =============================================================================

// NewChromeTransport creates an http.RoundTripper that presents Chrome's TLS
// fingerprint to upstream servers.
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

type chromeTransport struct {
	h2 *http2.Transport
	h1 *http.Transport
}

// RoundTrip tries HTTP/2 first and falls back to HTTP/1.1.
func (t *chromeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.h2.RoundTrip(req)
	if err == nil {
		return resp, nil
	}

	next, rerr := rewind(req)
	if rerr != nil {
		return nil, err
	}
	return t.h1.RoundTrip(next)
}

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
	if err := tlsConn.Handshake(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("tls handshake: %w", err)
	}

	return tlsConn, nil
}
