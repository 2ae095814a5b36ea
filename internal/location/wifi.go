package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"slices"
	"strings"

	"github.com/nao1215/linkforensics/internal/capability"
	"github.com/nao1215/linkforensics/internal/config"
	"github.com/nao1215/linkforensics/internal/provider"
)

// WiFi scan filtering.
const (
	// MinWiFiSignal is the weakest signal in dBm that is still used.
	MinWiFiSignal = -90

	// MaxAccessPoints is the number of strongest access points sent to a service.
	MaxAccessPoints = 10

	// MinAccessPoints is the number of usable access points required.
	MinAccessPoints = 2

	// DefaultWiFiChannel is assumed when the frequency is outside known bands.
	DefaultWiFiChannel = 6
)

// Per-BSSID services are queried with only the strongest access points.
const (
	openWiFiMapLookups = 3
	wigleLookups       = 2
)

// WiFiRequest is the input of the WiFi positioning chain.
type WiFiRequest struct {
	// AccessPoints are prepared with PrepareAccessPoints: usable, strongest
	// first, normalized.
	AccessPoints []capability.AccessPoint
}

// PrepareAccessPoints keeps access points stronger than MinWiFiSignal,
// orders them strongest first, keeps at most MaxAccessPoints, normalizes
// each BSSID and fills a missing channel from the frequency.
// The input is not modified.
func PrepareAccessPoints(aps []capability.AccessPoint) []capability.AccessPoint {
	out := make([]capability.AccessPoint, 0, len(aps))
	for _, ap := range aps {
		if ap.Signal <= MinWiFiSignal {
			continue
		}
		ap.BSSID = NormalizeBSSID(ap.BSSID)
		if ap.BSSID == "" {
			continue
		}
		if ap.Channel == 0 {
			ap.Channel = FrequencyToChannel(ap.Frequency)
		}
		out = append(out, ap)
	}
	slices.SortStableFunc(out, func(a, b capability.AccessPoint) int {
		switch {
		case a.Signal > b.Signal:
			return -1
		case a.Signal < b.Signal:
			return 1
		default:
			return 0
		}
	})
	if len(out) > MaxAccessPoints {
		out = out[:MaxAccessPoints]
	}
	return out
}

// NormalizeBSSID removes separators and upper-cases a MAC address:
// "aa:bb:cc:00:11:22" becomes "AABBCC001122".
func NormalizeBSSID(bssid string) string {
	r := strings.NewReplacer(":", "", "-", "", ".", "")
	return strings.ToUpper(strings.TrimSpace(r.Replace(bssid)))
}

// FrequencyToChannel derives the WiFi channel from a center frequency in MHz.
func FrequencyToChannel(freq int) int {
	switch {
	case freq >= 2412 && freq <= 2472:
		return int(math.Round(float64(freq-2412)/5)) + 1
	case freq >= 5170 && freq <= 5825:
		return int(math.Round(float64(freq-5170)/5)) + 34
	default:
		return DefaultWiFiChannel
	}
}

// WiFiCacheKey identifies a scan by its access points.
func WiFiCacheKey(req WiFiRequest) string {
	ids := make([]string, 0, len(req.AccessPoints))
	for _, ap := range req.AccessPoints {
		ids = append(ids, ap.BSSID)
	}
	slices.Sort(ids)
	return strings.Join(ids, ",")
}

// NewWiFiChain builds the WiFi positioning chain over the enabled providers.
// Providers without a kind are treated as geolocate endpoints.
func NewWiFiChain(client *http.Client, cfgs []config.ProviderConfig, opts ...provider.ChainOption) *provider.Chain[WiFiRequest, Fix] {
	enabled := config.Enabled(cfgs)
	providers := make([]provider.Provider[WiFiRequest, Fix], 0, len(enabled))
	for _, pc := range enabled {
		var lookup func(context.Context, WiFiRequest) (Fix, error)
		switch pc.Kind {
		case config.KindOpenWiFiMap:
			lookup = perBSSIDLookup(client, pc, openWiFiMapLookups, strings.ToUpper, decodeDocumentFix)
		case config.KindWiGLE:
			lookup = perBSSIDLookup(client, pc, wigleLookups, strings.ToLower, decodeWiGLEFix)
		default:
			lookup = geolocateLookup(client, pc)
		}
		providers = append(providers, provider.Provider[WiFiRequest, Fix]{
			Name: pc.Name,
			Eligible: func(req WiFiRequest) bool {
				return len(req.AccessPoints) >= MinAccessPoints
			},
			Lookup: withDefaultAccuracy(lookup, pc.Accuracy),
		})
	}
	return provider.NewChain("wifi", providers, opts...).Accept(validFix)
}

type geolocateAccessPoint struct {
	MACAddress     string  `json:"macAddress"`
	SignalStrength float64 `json:"signalStrength"`
	Channel        int     `json:"channel,omitempty"`
	Frequency      int     `json:"frequency,omitempty"`
}

type geolocateRequest struct {
	ConsiderIP       bool                   `json:"considerIp"`
	WiFiAccessPoints []geolocateAccessPoint `json:"wifiAccessPoints"`
}

// geolocateLookup posts the scan to a Google/Mozilla-style endpoint.
func geolocateLookup(client *http.Client, pc config.ProviderConfig) func(context.Context, WiFiRequest) (Fix, error) {
	headers := provider.AuthHeaders(pc.Headers, pc.Username, pc.Password)
	return func(ctx context.Context, req WiFiRequest) (Fix, error) {
		body := geolocateRequest{WiFiAccessPoints: make([]geolocateAccessPoint, 0, len(req.AccessPoints))}
		for _, ap := range req.AccessPoints {
			body.WiFiAccessPoints = append(body.WiFiAccessPoints, geolocateAccessPoint{
				MACAddress:     ap.BSSID,
				SignalStrength: ap.Signal,
				Channel:        ap.Channel,
				Frequency:      ap.Frequency,
			})
		}
		u := provider.ExpandURL(pc.URL, map[string]string{"key": pc.Key})
		var doc provider.Document
		if err := provider.PostJSON(ctx, client, u, headers, body, &doc); err != nil {
			return Fix{}, err
		}
		f, ok := decodeFix(doc)
		if !ok {
			return Fix{}, provider.ErrEmptyResponse
		}
		return f, nil
	}
}

// perBSSIDLookup resolves the strongest access points one at a time and
// returns the first known one.
func perBSSIDLookup(
	client *http.Client,
	pc config.ProviderConfig,
	limit int,
	format func(string) string,
	decode func(json.RawMessage) (Fix, bool),
) func(context.Context, WiFiRequest) (Fix, error) {
	headers := provider.AuthHeaders(pc.Headers, pc.Username, pc.Password)
	return func(ctx context.Context, req WiFiRequest) (Fix, error) {
		var errs []error
		for i, ap := range req.AccessPoints {
			if i == limit {
				break
			}
			u := provider.ExpandURL(pc.URL, map[string]string{"bssid": format(ap.BSSID), "key": pc.Key})
			var raw json.RawMessage
			if err := provider.GetJSON(ctx, client, u, headers, &raw); err != nil {
				errs = append(errs, err)
				if ctx.Err() != nil {
					break
				}
				continue
			}
			if f, ok := decode(raw); ok {
				return f, nil
			}
		}
		if len(errs) > 0 {
			return Fix{}, errors.Join(errs...)
		}
		return Fix{}, provider.ErrEmptyResponse
	}
}

func decodeDocumentFix(raw json.RawMessage) (Fix, bool) {
	var doc provider.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Fix{}, false
	}
	return decodeFix(doc)
}

type wigleResponse struct {
	Results []struct {
		Trilat  float64 `json:"trilat"`
		Trilong float64 `json:"trilong"`
	} `json:"results"`
}

func decodeWiGLEFix(raw json.RawMessage) (Fix, bool) {
	var resp wigleResponse
	if err := json.Unmarshal(raw, &resp); err != nil || len(resp.Results) == 0 {
		return Fix{}, false
	}
	return Fix{Latitude: resp.Results[0].Trilat, Longitude: resp.Results[0].Trilong}, true
}

// withDefaultAccuracy fills a missing accuracy with the provider's radius.
func withDefaultAccuracy[Req any](lookup func(context.Context, Req) (Fix, error), accuracy float64) func(context.Context, Req) (Fix, error) {
	return func(ctx context.Context, req Req) (Fix, error) {
		f, err := lookup(ctx, req)
		if err != nil {
			return Fix{}, err
		}
		if f.Accuracy <= 0 {
			f.Accuracy = accuracy
		}
		if f.Accuracy <= 0 {
			return Fix{}, fmt.Errorf("%w: no accuracy", provider.ErrEmptyResponse)
		}
		return f, nil
	}
}
