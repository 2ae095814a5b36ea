package provider

import "errors"

// Provider errors.
// Probes convert all of these into "no value"; none of them fails a capture.
var (
	// ErrProbeTimeout is returned by Bounded when the deadline passed before the
	// probe answered. The late answer, if any, is discarded.
	ErrProbeTimeout = errors.New("probe timed out")

	// ErrAllProvidersExhausted is returned when every eligible provider in a
	// chain failed. It is joined with the individual provider errors.
	ErrAllProvidersExhausted = errors.New("all providers exhausted")

	// ErrNoEligibleProvider is joined into the exhaustion error when no
	// provider in the chain accepted the request.
	ErrNoEligibleProvider = errors.New("no eligible provider")

	// ErrEmptyResponse is returned when a provider answered without the data
	// the chain needs (for example a lookup with no IP address).
	ErrEmptyResponse = errors.New("provider returned an empty response")

	// ErrUnexpectedStatus is returned when a provider answered with a non-2xx
	// HTTP status.
	ErrUnexpectedStatus = errors.New("unexpected HTTP status")

	// ErrProbePanic is returned by Bounded when the probe panicked.
	ErrProbePanic = errors.New("probe panicked")

	// ErrInvalidProxyAddress is returned when the SOCKS5 proxy address is not
	// in "host:port" format.
	ErrInvalidProxyAddress = errors.New("invalid proxy address format: expected host:port")
)
