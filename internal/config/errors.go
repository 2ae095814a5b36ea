package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() and File.Validate() and
// let callers use errors.Is() while still printing a readable message.
var (
	// ErrInvalidTimeout is returned when a probe, branch or store timeout is not positive.
	// A zero timeout would abandon every lookup immediately.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidCheckpointInterval is returned when the session checkpoint
	// interval is not positive.
	ErrInvalidCheckpointInterval = errors.New("invalid checkpoint interval: must be positive")

	// ErrInvalidSessionIdleTimeout is returned when the idle timeout after which
	// a session tracker is closed is not positive.
	ErrInvalidSessionIdleTimeout = errors.New("invalid session idle timeout: must be positive")

	// ErrInvalidRateLimit is returned when the provider rate limit is negative,
	// or positive with a non-positive burst.
	ErrInvalidRateLimit = errors.New("invalid provider rate limit: rate must be non-negative and burst positive")

	// ErrInvalidCacheTTL is returned when the cache TTL is negative.
	ErrInvalidCacheTTL = errors.New("invalid cache ttl: must be non-negative")

	// ErrInvalidDBDriver is returned for an unknown persistence backend.
	ErrInvalidDBDriver = errors.New("invalid database driver: must be sqlite, postgres or none")

	// ErrMissingDBDir is returned when the sqlite driver has no directory.
	ErrMissingDBDir = errors.New("missing database directory for sqlite driver")

	// ErrMissingPostgresDSN is returned when the postgres driver has no DSN.
	ErrMissingPostgresDSN = errors.New("missing DSN for postgres driver: use --postgres-dsn")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified. Only one output format can be used at a time.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrInvalidDataFile is returned when the data file fails validation.
	// It wraps the individual field errors.
	ErrInvalidDataFile = errors.New("invalid configuration file")
)
