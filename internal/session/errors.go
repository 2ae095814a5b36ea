package session

import "errors"

var (
	// ErrRecordNotFound is returned when the tracked record does not exist
	// in the store.
	ErrRecordNotFound = errors.New("record not found")

	// ErrInvalidVisibility is returned for an unknown visibility state.
	ErrInvalidVisibility = errors.New("invalid visibility state: must be visible, hidden or prerender")
)
