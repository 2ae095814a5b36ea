package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/go-playground/validator/v10"
)

// Provider kinds for WiFi positioning and cell location.
const (
	// KindGeolocate is a Google/Mozilla-style POST geolocate endpoint.
	KindGeolocate = "geolocate"

	// KindOpenWiFiMap resolves one BSSID per GET request.
	KindOpenWiFiMap = "openwifimap"

	// KindWiGLE searches one BSSID per request with basic auth.
	KindWiGLE = "wigle"

	// KindOpenCelliD resolves one cell tower per GET request.
	KindOpenCelliD = "opencellid"
)

// ProviderConfig describes one external lookup service.
//
// URL may contain placeholders that are substituted per request:
// {ip}, {key}, {bssid}, {mcc}, {mnc}, {lac}, {cellid}. For identity
// providers a URL without {ip} is a self lookup (it reports the caller's own
// address) and a URL with {ip} looks up a given client address.
type ProviderConfig struct {
	// Name identifies the provider in logs, metrics and records.
	Name string `yaml:"name" validate:"required"`

	// Kind selects the request shape for WiFi and cell providers.
	Kind string `yaml:"kind,omitempty" validate:"omitempty,oneof=geolocate openwifimap wigle opencellid"`

	// URL is the endpoint template.
	URL string `yaml:"url" validate:"required,url"`

	// Key is the API key substituted for {key}.
	Key string `yaml:"key,omitempty"`

	// Username and Password are sent as HTTP basic auth when set.
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`

	// Headers are added to every request to this provider.
	Headers map[string]string `yaml:"headers,omitempty"`

	// Accuracy is the radius in meters assumed for this provider's answers
	// when the answer does not carry one.
	Accuracy float64 `yaml:"accuracy,omitempty" validate:"gte=0"`

	// Disabled removes the provider from its chain without deleting it.
	Disabled bool `yaml:"disabled,omitempty"`
}

// Providers groups the provider chains.
type Providers struct {
	// Identity resolves the public IP and its ISP, ASN and country.
	Identity []ProviderConfig `yaml:"identity" validate:"dive"`

	// Enrichment fills ASN, country and proxy flags for a known IP.
	Enrichment []ProviderConfig `yaml:"enrichment" validate:"dive"`

	// WiFi resolves access point scans to a position.
	WiFi []ProviderConfig `yaml:"wifi" validate:"dive"`

	// Cell resolves a cell tower to a position.
	Cell []ProviderConfig `yaml:"cell" validate:"dive"`

	// IPGeolocation resolves an IP to an approximate position.
	IPGeolocation []ProviderConfig `yaml:"ipGeolocation" validate:"dive"`
}

// VPNNetwork is an autonomous system commonly used by VPN, proxy or hosting services.
type VPNNetwork struct {
	ASN      string `yaml:"asn" validate:"required,startswith=AS"`
	Provider string `yaml:"provider" validate:"required"`
}

// KnownBeacon is a Bluetooth beacon installed at a known position.
type KnownBeacon struct {
	ID        string  `yaml:"id" validate:"required"`
	Name      string  `yaml:"name,omitempty"`
	Latitude  float64 `yaml:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `yaml:"longitude" validate:"gte=-180,lte=180"`

	// TxPower is the calibrated power at one meter; zero means use the scan value.
	TxPower float64 `yaml:"txPower,omitempty"`
}

// File represents the structure of the .linkforensics data file.
// Sections left out of the file fall back to the built-in defaults.
type File struct {
	Providers Providers `yaml:"providers"`

	// VPNNetworks lists autonomous systems treated as VPN or hosting networks.
	VPNNetworks []VPNNetwork `yaml:"vpnNetworks" validate:"dive"`

	// Timezones maps ISO 3166 country codes to the IANA zones expected for
	// users in that country. Countries not listed are never flagged.
	Timezones map[string][]string `yaml:"timezones" validate:"dive,keys,len=2,endkeys,min=1"`

	// Beacons is the registry of beacons with known positions.
	Beacons []KnownBeacon `yaml:"beacons" validate:"dive"`
}

var fileValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the data file with its struct tags.
func (f *File) Validate() error {
	if err := fileValidator.Struct(f); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidDataFile, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %w", ErrInvalidDataFile, err)
	}
	return nil
}

// fillDefaults replaces absent sections with the built-in defaults.
func (f *File) fillDefaults() {
	def := DefaultFile()
	if f.Providers.Identity == nil {
		f.Providers.Identity = def.Providers.Identity
	}
	if f.Providers.Enrichment == nil {
		f.Providers.Enrichment = def.Providers.Enrichment
	}
	if f.Providers.WiFi == nil {
		f.Providers.WiFi = def.Providers.WiFi
	}
	if f.Providers.Cell == nil {
		f.Providers.Cell = def.Providers.Cell
	}
	if f.Providers.IPGeolocation == nil {
		f.Providers.IPGeolocation = def.Providers.IPGeolocation
	}
	if f.VPNNetworks == nil {
		f.VPNNetworks = def.VPNNetworks
	}
	if f.Timezones == nil {
		f.Timezones = def.Timezones
	}
}

// Enabled returns the providers that are not disabled, in order.
func Enabled(providers []ProviderConfig) []ProviderConfig {
	out := make([]ProviderConfig, 0, len(providers))
	for _, p := range providers {
		if !p.Disabled {
			out = append(out, p)
		}
	}
	return out
}

// VPNProvider returns the provider name for asn, or "" when it is not listed.
// Matching ignores case and accepts "9009" as well as "AS9009".
func (f *File) VPNProvider(asn string) string {
	asn = normalizeASN(asn)
	if asn == "" {
		return ""
	}
	for _, n := range f.VPNNetworks {
		if normalizeASN(n.ASN) == asn {
			return n.Provider
		}
	}
	return ""
}

// ExpectedTimezones returns the zones expected for a country, or nil when the
// country is not in the table.
func (f *File) ExpectedTimezones(country string) []string {
	return f.Timezones[strings.ToUpper(country)]
}

// TimezoneMismatch reports whether tz is unexpected for country.
// It is false when the country is not in the table or tz is empty.
func (f *File) TimezoneMismatch(country, tz string) bool {
	expected := f.ExpectedTimezones(country)
	if len(expected) == 0 || tz == "" {
		return false
	}
	return !slices.Contains(expected, tz)
}

// Beacon returns the registered beacon with id, matched case-insensitively.
func (f *File) Beacon(id string) (KnownBeacon, bool) {
	for _, b := range f.Beacons {
		if strings.EqualFold(b.ID, id) {
			return b, true
		}
	}
	return KnownBeacon{}, false
}

func normalizeASN(asn string) string {
	asn = strings.ToUpper(strings.TrimSpace(asn))
	if i := strings.IndexByte(asn, ' '); i >= 0 {
		asn = asn[:i]
	}
	if asn == "" {
		return ""
	}
	if !strings.HasPrefix(asn, "AS") {
		asn = "AS" + asn
	}
	return asn
}

// DefaultFile returns the built-in provider lists and lookup tables.
func DefaultFile() *File {
	return &File{
		Providers: Providers{
			Identity: []ProviderConfig{
				{Name: "ipify", URL: "https://api.ipify.org?format=json"},
				{Name: "ipapi", URL: "https://ipapi.co/json/"},
				{Name: "ipsb", URL: "https://api.ip.sb/geoip"},
				{Name: "ipinfo", URL: "https://ipinfo.io/json"},
				{Name: "ipapi-client", URL: "https://ipapi.co/{ip}/json/"},
				{Name: "ipinfo-client", URL: "https://ipinfo.io/{ip}/json"},
			},
			Enrichment: []ProviderConfig{
				{Name: "ipapi", URL: "https://ipapi.co/{ip}/json/"},
				{Name: "ipsb", URL: "https://api.ip.sb/geoip/{ip}"},
			},
			WiFi: []ProviderConfig{
				{Name: "google", Kind: KindGeolocate, URL: "https://www.googleapis.com/geolocation/v1/geolocate?key={key}", Accuracy: 150, Disabled: true},
				{Name: "mozilla", Kind: KindGeolocate, URL: "https://location.services.mozilla.com/v1/geolocate?key={key}", Key: "test", Accuracy: 200},
				{Name: "openwifimap", Kind: KindOpenWiFiMap, URL: "https://openwifimap.net/api/v1/bssid/{bssid}", Accuracy: 250},
				{Name: "wigle", Kind: KindWiGLE, URL: "https://api.wigle.net/api/v2/network/search?netid={bssid}", Accuracy: 300, Disabled: true},
			},
			Cell: []ProviderConfig{
				{Name: "opencellid", Kind: KindOpenCelliD, URL: "https://opencellid.org/cell/get?key={key}&mcc={mcc}&mnc={mnc}&lac={lac}&cellid={cellid}&format=json", Disabled: true},
			},
			IPGeolocation: []ProviderConfig{
				{Name: "ipapi", URL: "https://ipapi.co/{ip}/json/", Accuracy: 5000},
				{Name: "ipinfo", URL: "https://ipinfo.io/{ip}/json", Accuracy: 3000},
				{Name: "myip", URL: "https://api.my-ip.io/v2/ip.json", Accuracy: 10000},
			},
		},
		VPNNetworks: []VPNNetwork{
			{ASN: "AS9009", Provider: "M247 Ltd (Common VPN)"},
			{ASN: "AS13335", Provider: "Cloudflare"},
			{ASN: "AS16509", Provider: "Amazon AWS"},
			{ASN: "AS15169", Provider: "Google"},
			{ASN: "AS8075", Provider: "Microsoft Azure"},
		},
		Timezones: map[string][]string{
			"US": {"America/New_York", "America/Chicago", "America/Denver", "America/Phoenix", "America/Los_Angeles", "America/Anchorage", "Pacific/Honolulu"},
			"VE": {"America/Caracas"},
			"ES": {"Europe/Madrid", "Atlantic/Canary"},
			"MX": {"America/Mexico_City", "America/Cancun", "America/Monterrey", "America/Tijuana"},
			"AR": {"America/Argentina/Buenos_Aires"},
			"CO": {"America/Bogota"},
			"PE": {"America/Lima"},
			"CL": {"America/Santiago"},
			"BR": {"America/Sao_Paulo", "America/Manaus", "America/Fortaleza"},
			"CA": {"America/Toronto", "America/Vancouver", "America/Edmonton", "America/Winnipeg"},
			"GB": {"Europe/London"},
			"FR": {"Europe/Paris"},
			"DE": {"Europe/Berlin"},
			"IT": {"Europe/Rome"},
			"RU": {"Europe/Moscow", "Asia/Vladivostok"},
			"CN": {"Asia/Shanghai", "Asia/Urumqi"},
			"JP": {"Asia/Tokyo"},
			"AU": {"Australia/Sydney", "Australia/Melbourne", "Australia/Perth"},
			"IN": {"Asia/Kolkata"},
		},
	}
}

// Live holds the data file currently in effect. It is safe for concurrent
// use; Watch callbacks Store a new File while captures Load it.
//
// Only the lookup tables (VPN networks, timezones, beacons) are read through
// Live. Provider chains are built once at startup.
type Live struct {
	p atomic.Pointer[File]
}

// NewLive creates a holder for f. A nil f holds DefaultFile().
func NewLive(f *File) *Live {
	l := &Live{}
	l.Store(f)
	return l
}

// Load returns the current data file.
func (l *Live) Load() *File {
	return l.p.Load()
}

// Store replaces the current data file. A nil f stores DefaultFile().
func (l *Live) Store(f *File) {
	if f == nil {
		f = DefaultFile()
	}
	l.p.Store(f)
}
