package database

import "errors"

// ErrPersistenceUnavailable is returned when no store is configured or the
// store cannot be reached. Callers log it and continue.
var ErrPersistenceUnavailable = errors.New("persistence unavailable")

// ErrInvalidRecord is returned when a record lacks its access id.
var ErrInvalidRecord = errors.New("invalid record: missing access id")
