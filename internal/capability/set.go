package capability

import (
	"context"
	"strings"
)

// Unsupported implements every capability interface and always fails with
// ErrUnsupported.
type Unsupported struct{}

var (
	_ Geolocator        = Unsupported{}
	_ ICEGatherer       = Unsupported{}
	_ WiFiScanner       = Unsupported{}
	_ BeaconScanner     = Unsupported{}
	_ CellScanner       = Unsupported{}
	_ ConnectionInfo    = Unsupported{}
	_ Renderer          = Unsupported{}
	_ EnvironmentReader = Unsupported{}
)

// CurrentPosition implements Geolocator.
func (Unsupported) CurrentPosition(context.Context, PositionOptions) (Position, error) {
	return Position{}, ErrUnsupported
}

// GatherCandidates implements ICEGatherer.
func (Unsupported) GatherCandidates(context.Context) ([]string, error) {
	return nil, ErrUnsupported
}

// ScanWiFi implements WiFiScanner.
func (Unsupported) ScanWiFi(context.Context) ([]AccessPoint, error) {
	return nil, ErrUnsupported
}

// ScanBeacons implements BeaconScanner.
func (Unsupported) ScanBeacons(context.Context) ([]Beacon, error) {
	return nil, ErrUnsupported
}

// ScanCells implements CellScanner.
func (Unsupported) ScanCells(context.Context) ([]CellTower, error) {
	return nil, ErrUnsupported
}

// Connection implements ConnectionInfo.
func (Unsupported) Connection(context.Context) (Connection, error) {
	return Connection{}, ErrUnsupported
}

// Render implements Renderer.
func (Unsupported) Render(context.Context) ([]byte, error) {
	return nil, ErrUnsupported
}

// Environment implements EnvironmentReader.
func (Unsupported) Environment(context.Context) (Environment, error) {
	return Environment{}, ErrUnsupported
}

// Set is the collection of capabilities available to one capture.
// Nil members are treated as Unsupported after Normalize.
type Set struct {
	Geolocator  Geolocator
	ICE         ICEGatherer
	WiFi        WiFiScanner
	Beacons     BeaconScanner
	Cells       CellScanner
	Connection  ConnectionInfo
	Renderer    Renderer
	Environment EnvironmentReader
}

// None returns a Set in which every capability is Unsupported.
func None() Set {
	return Set{}.Normalize()
}

// Normalize returns a copy of s with every nil member replaced by Unsupported.
func (s Set) Normalize() Set {
	if s.Geolocator == nil {
		s.Geolocator = Unsupported{}
	}
	if s.ICE == nil {
		s.ICE = Unsupported{}
	}
	if s.WiFi == nil {
		s.WiFi = Unsupported{}
	}
	if s.Beacons == nil {
		s.Beacons = Unsupported{}
	}
	if s.Cells == nil {
		s.Cells = Unsupported{}
	}
	if s.Connection == nil {
		s.Connection = Unsupported{}
	}
	if s.Renderer == nil {
		s.Renderer = Unsupported{}
	}
	if s.Environment == nil {
		s.Environment = Unsupported{}
	}
	return s
}

// Support reports which capabilities are available.
type Support struct {
	Geolocation bool `json:"geolocation"`
	ICE         bool `json:"ice"`
	WiFi        bool `json:"wifi"`
	Bluetooth   bool `json:"bluetooth"`
	Cell        bool `json:"cell"`
	Connection  bool `json:"connection"`
	Render      bool `json:"render"`
	Environment bool `json:"environment"`
}

// Supported reports availability of each member. It is computed once from
// the concrete types and never calls the capabilities.
func (s Set) Supported() Support {
	return Support{
		Geolocation: available(s.Geolocator),
		ICE:         available(s.ICE),
		WiFi:        available(s.WiFi),
		Bluetooth:   available(s.Beacons),
		Cell:        available(s.Cells),
		Connection:  available(s.Connection),
		Render:      available(s.Renderer),
		Environment: available(s.Environment),
	}
}

// String lists the available capabilities, for logging.
func (s Support) String() string {
	var names []string
	add := func(ok bool, name string) {
		if ok {
			names = append(names, name)
		}
	}
	add(s.Geolocation, "geolocation")
	add(s.ICE, "ice")
	add(s.WiFi, "wifi")
	add(s.Bluetooth, "bluetooth")
	add(s.Cell, "cell")
	add(s.Connection, "connection")
	add(s.Render, "render")
	add(s.Environment, "environment")
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ",")
}

func available(v any) bool {
	if v == nil {
		return false
	}
	switch v.(type) {
	case Unsupported, *Unsupported:
		return false
	}
	return true
}
