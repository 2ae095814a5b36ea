package location

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nao1215/linkforensics/internal/provider"
)

// Fix is a position answered by an external service.
type Fix struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`

	// Accuracy is the radius in meters. Zero means the service did not say.
	Accuracy float64 `json:"accuracy,omitempty"`

	// ISP is reported by IP geolocation services.
	ISP string `json:"isp,omitempty"`
}

// Validate checks that the coordinates are usable.
func (f Fix) Validate() error {
	return validateCoordinates(f.Latitude, f.Longitude)
}

func validFix(f Fix) bool {
	return f.Validate() == nil
}

func validateCoordinates(lat, lng float64) error {
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return fmt.Errorf("%w: %f,%f", ErrInvalidCoordinates, lat, lng)
	}
	if lat == 0 && lng == 0 {
		return fmt.Errorf("%w: 0,0", ErrInvalidCoordinates)
	}
	return nil
}

// decodeFix reads a position from a provider answer. It accepts flat
// lat/lon fields, a nested location object and the "lat,lng" string form.
func decodeFix(doc provider.Document) (Fix, bool) {
	lat, okLat := doc.Float("latitude", "lat", "location.lat", "location.latitude", "trilat")
	lng, okLng := doc.Float("longitude", "lng", "lon", "location.lng", "location.lon", "location.longitude", "trilong")
	if !okLat || !okLng {
		var ok bool
		lat, lng, ok = parseLoc(doc.String("loc"))
		if !ok {
			return Fix{}, false
		}
	}
	f := Fix{Latitude: lat, Longitude: lng}
	if acc, ok := doc.Float("accuracy", "range"); ok && acc > 0 {
		f.Accuracy = acc
	}
	f.ISP = doc.String("isp", "org", "connection.isp")
	return f, true
}

// parseLoc parses "40.4168,-3.7038".
func parseLoc(s string) (float64, float64, bool) {
	latStr, lngStr, ok := strings.Cut(s, ",")
	if !ok {
		return 0, 0, false
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return 0, 0, false
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(lngStr), 64)
	if err != nil {
		return 0, 0, false
	}
	return lat, lng, true
}
