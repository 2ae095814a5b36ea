package capability

import "errors"

// Capability errors.
// Probes convert both of them into "no value" rather than failing a capture.
var (
	// ErrUnsupported is returned when the facility does not exist on the device
	// or in the collected snapshot.
	ErrUnsupported = errors.New("capability not supported")

	// ErrDenied is returned when the facility exists but the user or platform
	// refused access (for example a declined location prompt).
	ErrDenied = errors.New("capability permission denied")
)
