package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

// DefaultUserAgent is sent with every outbound request.
const DefaultUserAgent = "linkforensics/1.0"

// maxResponseSize bounds how much of a provider response is read.
const maxResponseSize = 1 << 20

// ClientOption configures the outbound HTTP client.
type ClientOption func(*clientConfig)

type clientConfig struct {
	proxyAddress string
	timeout      time.Duration
	userAgent    string
	headers      map[string]string
}

// WithProxy routes every request through the SOCKS5 proxy at address
// ("host:port").
func WithProxy(address string) ClientOption {
	return func(c *clientConfig) {
		c.proxyAddress = address
	}
}

// WithClientTimeout sets the overall request timeout of the client.
// Chains additionally bound each attempt with their own timeout.
func WithClientTimeout(d time.Duration) ClientOption {
	return func(c *clientConfig) {
		c.timeout = d
	}
}

// WithUserAgent overrides DefaultUserAgent.
func WithUserAgent(ua string) ClientOption {
	return func(c *clientConfig) {
		c.userAgent = ua
	}
}

// WithHeaders adds headers to every request.
func WithHeaders(headers map[string]string) ClientOption {
	return func(c *clientConfig) {
		c.headers = headers
	}
}

// NewHTTPClient creates the client used for provider requests.
//
// Without a proxy the client dials directly. With a proxy the address is
// validated up front but not contacted; connection failures surface per
// request and are handled by the chain like any other provider error.
func NewHTTPClient(opts ...ClientOption) (*http.Client, error) {
	cfg := &clientConfig{
		timeout:   30 * time.Second,
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	transport := &http.Transport{
		Proxy:               nil,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     30 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	if cfg.proxyAddress != "" {
		if !isValidProxyAddress(cfg.proxyAddress) {
			return nil, ErrInvalidProxyAddress
		}
		// Proxy auth is not supported; SOCKS5 proxies used for lookups run locally.
		dialer, err := proxy.SOCKS5("tcp", cfg.proxyAddress, nil, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
		transport.DialContext = dialContext(dialer)
	} else {
		transport.DialContext = (&net.Dialer{Timeout: 10 * time.Second}).DialContext
	}

	return &http.Client{
		Transport: &headerInjectingTransport{
			base:      transport,
			userAgent: cfg.userAgent,
			headers:   cfg.headers,
		},
		Timeout: cfg.timeout,
	}, nil
}

// dialContext adapts a proxy.Dialer, preferring its context-aware variant.
func dialContext(d proxy.Dialer) func(context.Context, string, string) (net.Conn, error) {
	if cd, ok := d.(proxy.ContextDialer); ok {
		return cd.DialContext
	}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		type dialResult struct {
			conn net.Conn
			err  error
		}
		resultCh := make(chan dialResult, 1)
		go func() {
			conn, err := d.Dial(network, addr)
			resultCh <- dialResult{conn, err}
		}()
		select {
		case r := <-resultCh:
			return r.conn, r.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// isValidProxyAddress checks that address is "host:port" with a port in 1..65535.
func isValidProxyAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	return err == nil && n >= 1 && n <= 65535
}

// headerInjectingTransport sets the User-Agent and fixed headers on every request.
type headerInjectingTransport struct {
	base      http.RoundTripper
	userAgent string
	headers   map[string]string
}

// RoundTrip implements http.RoundTripper.
func (t *headerInjectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	if t.userAgent != "" && clone.Header.Get("User-Agent") == "" {
		clone.Header.Set("User-Agent", t.userAgent)
	}
	for key, value := range t.headers {
		clone.Header.Set(key, value)
	}
	return t.base.RoundTrip(clone)
}

// GetJSON performs a GET request and decodes the JSON body into out.
func GetJSON(ctx context.Context, client *http.Client, rawURL string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	return doJSON(client, req, headers, out)
}

// PostJSON encodes body as JSON, POSTs it and decodes the JSON answer into out.
func PostJSON(ctx context.Context, client *http.Client, rawURL string, headers map[string]string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return doJSON(client, req, headers, out)
}

func doJSON(client *http.Client, req *http.Request, headers map[string]string, out any) error {
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", req.URL.Host, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read response from %s: %w", req.URL.Host, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s returned %d", ErrUnexpectedStatus, req.URL.Host, resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", req.URL.Host, err)
	}
	return nil
}

// ExpandURL substitutes {name} placeholders in tmpl with path-escaped values.
func ExpandURL(tmpl string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", url.PathEscape(v))
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// HasPlaceholder reports whether tmpl contains {name}.
func HasPlaceholder(tmpl, name string) bool {
	return strings.Contains(tmpl, "{"+name+"}")
}

// AuthHeaders returns headers plus an Authorization header for HTTP basic
// auth when username is set. headers is not modified.
func AuthHeaders(headers map[string]string, username, password string) map[string]string {
	if username == "" {
		return headers
	}
	out := make(map[string]string, len(headers)+1)
	for k, v := range headers {
		out[k] = v
	}
	out["Authorization"] = "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
	return out
}
