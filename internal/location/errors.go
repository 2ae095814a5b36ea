package location

import "errors"

// Strategy errors. The Triangulator converts all of them into "no result".
var (
	// ErrNotConfigured is returned by a strategy whose provider chain is missing.
	ErrNotConfigured = errors.New("location strategy not configured")

	// ErrInsufficientAccessPoints is returned when fewer than MinAccessPoints
	// usable access points were seen.
	ErrInsufficientAccessPoints = errors.New("not enough WiFi access points")

	// ErrNoKnownBeacon is returned when no usable beacon has a known position.
	ErrNoKnownBeacon = errors.New("no beacon with a known position")

	// ErrNoCellTower is returned when the cell scan found no tower.
	ErrNoCellTower = errors.New("no cell tower visible")

	// ErrInvalidCoordinates is returned for positions outside the valid
	// range, and for the 0,0 position some services return instead of an error.
	ErrInvalidCoordinates = errors.New("invalid coordinates")
)
