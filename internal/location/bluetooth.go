package location

import (
	"math"

	"github.com/nao1215/linkforensics/internal/capability"
	"github.com/nao1215/linkforensics/internal/config"
)

// Bluetooth distance estimation.
const (
	// MinBeaconRSSI is the weakest beacon signal in dBm that is still used.
	MinBeaconRSSI = -90

	// DefaultTxPower is the usual calibrated power of a beacon at one meter.
	DefaultTxPower = -59

	// PathLossExponent is the free-space path loss exponent.
	PathLossExponent = 2

	// MinBeaconDistance and MaxBeaconDistance clamp the estimate in meters.
	MinBeaconDistance = 1
	MaxBeaconDistance = 100
)

// BeaconDistance estimates the distance in meters to a beacon from its
// calibrated power and the received signal: 10^((tx-rssi)/(10*n)),
// clamped to [MinBeaconDistance, MaxBeaconDistance].
func BeaconDistance(txPower, rssi float64) float64 {
	if txPower == 0 {
		txPower = DefaultTxPower
	}
	d := math.Pow(10, (txPower-rssi)/(10*PathLossExponent))
	return math.Min(MaxBeaconDistance, math.Max(MinBeaconDistance, d))
}

// beaconFix is the position and accuracy derived from a scan.
type beaconFix struct {
	latitude, longitude float64
	distance            float64
	usable              int
}

// locateBeacons picks the strongest usable beacon with a known position.
// A position comes from the advertisement itself or, failing that, from the
// registry of installed beacons.
func locateBeacons(beacons []capability.Beacon, registry *config.File) (beaconFix, error) {
	var (
		best  beaconFix
		found bool
		bestR = math.Inf(-1)
	)
	usable := 0
	for _, b := range beacons {
		if b.RSSI <= MinBeaconRSSI {
			continue
		}
		usable++

		tx := b.TxPower
		var lat, lng float64
		switch {
		case b.Latitude != nil && b.Longitude != nil:
			lat, lng = *b.Latitude, *b.Longitude
		case registry != nil:
			known, ok := registry.Beacon(b.ID)
			if !ok {
				continue
			}
			lat, lng = known.Latitude, known.Longitude
			if known.TxPower != 0 {
				tx = known.TxPower
			}
		default:
			continue
		}
		if validateCoordinates(lat, lng) != nil {
			continue
		}
		if b.RSSI > bestR {
			bestR = b.RSSI
			best = beaconFix{latitude: lat, longitude: lng, distance: BeaconDistance(tx, b.RSSI)}
			found = true
		}
	}
	if !found {
		return beaconFix{}, ErrNoKnownBeacon
	}
	best.usable = usable
	return best, nil
}
