package capability

import (
	"context"
	"time"

	"github.com/nao1215/linkforensics/internal/model"
)

// PositionOptions controls a geolocation request.
type PositionOptions struct {
	// HighAccuracy requests satellite positioning when available.
	HighAccuracy bool

	// MaximumAge is the oldest cached fix that is acceptable.
	MaximumAge time.Duration
}

// Position is a geolocation fix.
type Position struct {
	Latitude  float64
	Longitude float64

	// Accuracy is the 1-sigma radius in meters.
	Accuracy float64

	Altitude *float64
	Heading  *float64
	Speed    *float64

	Timestamp time.Time
}

// Geolocator returns the device position.
type Geolocator interface {
	CurrentPosition(ctx context.Context, opts PositionOptions) (Position, error)
}

// ICEGatherer returns the raw candidate lines produced by peer-connection
// negotiation. Each line contains at least one address token.
type ICEGatherer interface {
	GatherCandidates(ctx context.Context) ([]string, error)
}

// AccessPoint is one WiFi network seen during a scan.
type AccessPoint struct {
	BSSID string
	SSID  string

	// Signal is the received signal strength in dBm.
	Signal float64

	// Frequency is the center frequency in MHz.
	Frequency int

	// Channel may be zero when the scanner did not report it.
	Channel int
}

// WiFiScanner lists nearby WiFi access points.
type WiFiScanner interface {
	ScanWiFi(ctx context.Context) ([]AccessPoint, error)
}

// Beacon is one Bluetooth Low Energy advertisement.
type Beacon struct {
	ID   string
	Name string

	// RSSI is the received signal strength in dBm.
	RSSI float64

	// TxPower is the calibrated power at one meter in dBm. Zero means unknown.
	TxPower float64

	// Latitude and Longitude are set when the beacon advertises its position.
	Latitude  *float64
	Longitude *float64
}

// BeaconScanner lists nearby Bluetooth beacons.
type BeaconScanner interface {
	ScanBeacons(ctx context.Context) ([]Beacon, error)
}

// CellTower is a cellular base station visible to the device.
type CellTower struct {
	Radio  string
	MCC    int
	MNC    int
	LAC    int
	CellID int

	// Strength is the signal quality reported by the modem (higher is better).
	Strength float64

	// Latitude and Longitude are set when the tower position is known locally.
	Latitude  *float64
	Longitude *float64
}

// CellScanner lists visible cell towers.
type CellScanner interface {
	ScanCells(ctx context.Context) ([]CellTower, error)
}

// Connection is network connection metadata.
type Connection struct {
	Type          string
	EffectiveType string

	// RTTMillis is the estimated round-trip time in milliseconds.
	RTTMillis float64

	// DownlinkMbps is the estimated bandwidth in megabits per second.
	DownlinkMbps float64
}

// ConnectionInfo reports connection metadata.
type ConnectionInfo interface {
	Connection(ctx context.Context) (Connection, error)
}

// Renderer produces the bytes of a rendered test image.
// Identical rendering stacks produce identical bytes.
type Renderer interface {
	Render(ctx context.Context) ([]byte, error)
}

// Environment is the set of declarative device attributes.
type Environment struct {
	Screen              model.Screen
	Timezone            string
	Language            string
	Languages           []string
	Platform            string
	HardwareConcurrency int
	DeviceMemory        *float64
	CookieEnabled       bool
	DoNotTrack          bool
	UserAgent           string
	Referrer            string
}

// EnvironmentReader reports device attributes. It never touches the network.
type EnvironmentReader interface {
	Environment(ctx context.Context) (Environment, error)
}
