package model

import "fmt"

// Method identifies a location-acquisition technique.
type Method string

const (
	// MethodGPS uses the device location service in high-accuracy mode.
	MethodGPS Method = "gps"

	// MethodWiFi resolves nearby access points through WiFi positioning services.
	MethodWiFi Method = "wifi"

	// MethodBluetooth estimates distance to known BLE beacons from RSSI.
	MethodBluetooth Method = "bluetooth"

	// MethodCell derives a coarse position from cellular connection metadata.
	MethodCell Method = "cell"

	// MethodIP geolocates the public IP address.
	MethodIP Method = "ip"
)

// AllMethods lists every method in canonical order.
// The order is used to break accuracy ties and to sort source lists.
var AllMethods = []Method{MethodGPS, MethodWiFi, MethodBluetooth, MethodCell, MethodIP}

// Rank returns the canonical position of m, or len(AllMethods) when m is unknown.
func (m Method) Rank() int {
	for i, candidate := range AllMethods {
		if candidate == m {
			return i
		}
	}
	return len(AllMethods)
}

// Valid reports whether m is one of the known methods.
func (m Method) Valid() bool {
	return m.Rank() < len(AllMethods)
}

// ParseMethod converts a string into a Method.
func ParseMethod(s string) (Method, error) {
	m := Method(s)
	if !m.Valid() {
		return "", fmt.Errorf("unknown location method %q", s)
	}
	return m, nil
}

// Reading is the result of a single location strategy.
// It is kept per method in BestLocation.Readings for later review.
type Reading struct {
	// Method is the strategy that produced the reading.
	Method Method `json:"method"`

	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	AccuracyMeters float64 `json:"accuracyMeters"`

	// Altitude, Heading and Speed are reported by GPS fixes only.
	Altitude *float64 `json:"altitude,omitempty"`
	Heading  *float64 `json:"heading,omitempty"`
	Speed    *float64 `json:"speed,omitempty"`

	// Count is the number of access points or beacons that took part.
	Count int `json:"count,omitempty"`

	// Strength is the signal strength of the strongest cell tower.
	Strength float64 `json:"strength,omitempty"`

	// ISP is the network operator reported by IP geolocation.
	ISP string `json:"isp,omitempty"`

	// Provider is the external service that resolved the reading, if any.
	Provider string `json:"provider,omitempty"`
}

// BestLocation is the most accurate position obtained during a capture.
type BestLocation struct {
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	AccuracyMeters float64 `json:"accuracyMeters"`

	// Method is the strategy that supplied the coordinate.
	Method Method `json:"method"`

	// Confidence is 25 points per corroborating source, capped at 100.
	Confidence int `json:"confidence"`

	// Sources lists every strategy that returned a result, in canonical order.
	Sources []Method `json:"sources"`

	// Readings holds each successful strategy's own result.
	Readings map[Method]Reading `json:"triangulationData,omitempty"`
}

// HasSource reports whether m contributed to the location.
func (b *BestLocation) HasSource(m Method) bool {
	if b == nil {
		return false
	}
	for _, s := range b.Sources {
		if s == m {
			return true
		}
	}
	return false
}

// Hybrid reports whether at least two independent strategies answered.
func (b *BestLocation) Hybrid() bool {
	return b != nil && len(b.Sources) >= 2
}

// LocationConfidence returns min(100, 25*sources).
func LocationConfidence(sources int) int {
	c := 25 * sources
	if c > 100 {
		return 100
	}
	if c < 0 {
		return 0
	}
	return c
}
