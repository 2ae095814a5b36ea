// Package provider implements the ordered-fallback strategy shared by every
// external lookup in the module: public IP identity, IP enrichment, WiFi
// positioning, cell tower location and IP geolocation.
//
// A Chain holds an ordered list of providers. Lookup tries them in order and
// returns the first acceptable answer. Each attempt is bounded by a timeout,
// optionally throttled by a shared rate limiter and optionally answered from a
// cache. When every eligible provider fails, the error wraps
// ErrAllProvidersExhausted joined with each provider's own error.
//
// The package also provides Bounded, which runs a single probe with a
// deadline and discards late results, and the HTTP client used for outbound
// requests (optionally through a SOCKS5 proxy).
package provider
