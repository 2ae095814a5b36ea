// Package snapshot decodes the capability snapshot collected by a client-side
// agent and replays it as a capability.Set.
//
// A snapshot is a JSON document. It is validated against an embedded JSON
// schema before it is decoded, so malformed documents are rejected at the
// boundary instead of surfacing as odd values deep inside a capture.
//
// A section that is absent from the document means the facility was not
// available on the client and is reported as capability.Unsupported. A
// present but empty list means the facility worked and saw nothing.
package snapshot

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/nao1215/linkforensics/internal/capability"
	"github.com/nao1215/linkforensics/internal/model"
)

// schemaURL is the resource name under which the embedded schema is compiled.
const schemaURL = "snapshot.schema.json"

// maxSnapshotSize bounds the size of a snapshot document.
const maxSnapshotSize = 4 << 20

//go:embed schema.json
var schemaJSON []byte

// ErrInvalidSnapshot is returned when a document is not valid JSON or does
// not satisfy the snapshot schema.
var ErrInvalidSnapshot = errors.New("invalid capability snapshot")

var (
	compileOnce    sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

// schema compiles the embedded schema once.
func schema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
			compileErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		compiledSchema, compileErr = compiler.Compile(schemaURL)
	})
	return compiledSchema, compileErr
}

// GeolocationError is the failure reported by the client for a location request.
type GeolocationError string

// Geolocation failures.
const (
	GeolocationDenied      GeolocationError = "denied"
	GeolocationUnavailable GeolocationError = "unavailable"
	GeolocationTimeout     GeolocationError = "timeout"
)

// Geolocation is the client's location reading or its failure.
type Geolocation struct {
	Latitude  float64          `json:"latitude"`
	Longitude float64          `json:"longitude"`
	Accuracy  float64          `json:"accuracy"`
	Altitude  *float64         `json:"altitude,omitempty"`
	Heading   *float64         `json:"heading,omitempty"`
	Speed     *float64         `json:"speed,omitempty"`
	Timestamp *time.Time       `json:"timestamp,omitempty"`
	Error     GeolocationError `json:"error,omitempty"`
}

// AccessPoint is a WiFi scan entry.
type AccessPoint struct {
	BSSID     string  `json:"bssid"`
	SSID      string  `json:"ssid,omitempty"`
	Signal    float64 `json:"signal"`
	Frequency int     `json:"frequency,omitempty"`
	Channel   int     `json:"channel,omitempty"`
}

// Beacon is a Bluetooth scan entry.
type Beacon struct {
	ID        string   `json:"id"`
	Name      string   `json:"name,omitempty"`
	RSSI      float64  `json:"rssi"`
	TxPower   float64  `json:"txPower,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// Cell is a cell tower entry.
type Cell struct {
	Radio     string   `json:"radio,omitempty"`
	MCC       int      `json:"mcc,omitempty"`
	MNC       int      `json:"mnc,omitempty"`
	LAC       int      `json:"lac,omitempty"`
	CellID    int      `json:"cellId,omitempty"`
	Strength  float64  `json:"strength"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// Connection is connection metadata.
type Connection struct {
	Type          string  `json:"type,omitempty"`
	EffectiveType string  `json:"effectiveType,omitempty"`
	RTT           float64 `json:"rtt,omitempty"`
	Downlink      float64 `json:"downlink,omitempty"`
}

// Environment is the declarative device attributes.
type Environment struct {
	Screen              model.Screen `json:"screen"`
	Timezone            string       `json:"timezone,omitempty"`
	Language            string       `json:"language,omitempty"`
	Languages           []string     `json:"languages,omitempty"`
	Platform            string       `json:"platform,omitempty"`
	HardwareConcurrency int          `json:"hardwareConcurrency,omitempty"`
	DeviceMemory        *float64     `json:"deviceMemory,omitempty"`
	CookieEnabled       bool         `json:"cookieEnabled"`
	DoNotTrack          bool         `json:"doNotTrack"`
	UserAgent           string       `json:"userAgent,omitempty"`
	Referrer            string       `json:"referrer,omitempty"`
}

// Snapshot is the decoded client document.
type Snapshot struct {
	Version       int           `json:"version"`
	CollectedAt   *time.Time    `json:"collectedAt,omitempty"`
	Geolocation   *Geolocation  `json:"geolocation,omitempty"`
	ICECandidates []string      `json:"iceCandidates,omitempty"`
	WiFi          []AccessPoint `json:"wifi,omitempty"`
	Bluetooth     []Beacon      `json:"bluetooth,omitempty"`
	Cells         []Cell        `json:"cells,omitempty"`
	Connection    *Connection   `json:"connection,omitempty"`
	Canvas        string        `json:"canvas,omitempty"`
	Environment   *Environment  `json:"environment,omitempty"`
}

// Decode validates data against the schema and decodes it.
func Decode(data []byte) (*Snapshot, error) {
	sch, err := schema()
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var instance any
	if err := dec.Decode(&instance); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
	}
	if err := sch.Validate(instance); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
	}
	return &snap, nil
}

// Read reads and decodes a snapshot from r.
func Read(r io.Reader) (*Snapshot, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxSnapshotSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	if len(data) > maxSnapshotSize {
		return nil, fmt.Errorf("%w: larger than %d bytes", ErrInvalidSnapshot, maxSnapshotSize)
	}
	return Decode(data)
}

// Load reads a snapshot from a file. The path "-" reads standard input.
func Load(path string) (*Snapshot, error) {
	if path == "-" {
		return Read(os.Stdin)
	}
	f, err := os.Open(path) //nolint:gosec // path is supplied by the operator
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Capabilities returns a capability.Set replaying the snapshot.
func (s *Snapshot) Capabilities() capability.Set {
	var set capability.Set
	if s.Geolocation != nil {
		set.Geolocator = geolocator{s.Geolocation}
	}
	if s.ICECandidates != nil {
		set.ICE = iceGatherer(s.ICECandidates)
	}
	if s.WiFi != nil {
		set.WiFi = wifiScanner(s.WiFi)
	}
	if s.Bluetooth != nil {
		set.Beacons = beaconScanner(s.Bluetooth)
	}
	if s.Cells != nil {
		set.Cells = cellScanner(s.Cells)
	}
	if s.Connection != nil {
		set.Connection = connectionInfo{s.Connection}
	}
	if s.Canvas != "" {
		set.Renderer = canvasRenderer(s.Canvas)
	}
	if s.Environment != nil {
		set.Environment = environmentReader{s.Environment}
	}
	return set.Normalize()
}

type geolocator struct{ g *Geolocation }

func (g geolocator) CurrentPosition(ctx context.Context, _ capability.PositionOptions) (capability.Position, error) {
	if err := ctx.Err(); err != nil {
		return capability.Position{}, err
	}
	switch g.g.Error {
	case "":
	case GeolocationDenied:
		return capability.Position{}, capability.ErrDenied
	case GeolocationTimeout:
		return capability.Position{}, context.DeadlineExceeded
	default:
		return capability.Position{}, capability.ErrUnsupported
	}
	pos := capability.Position{
		Latitude:  g.g.Latitude,
		Longitude: g.g.Longitude,
		Accuracy:  g.g.Accuracy,
		Altitude:  g.g.Altitude,
		Heading:   g.g.Heading,
		Speed:     g.g.Speed,
	}
	if g.g.Timestamp != nil {
		pos.Timestamp = *g.g.Timestamp
	}
	return pos, nil
}

type iceGatherer []string

func (c iceGatherer) GatherCandidates(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]string(nil), c...), nil
}

type wifiScanner []AccessPoint

func (w wifiScanner) ScanWiFi(ctx context.Context) ([]capability.AccessPoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]capability.AccessPoint, 0, len(w))
	for _, ap := range w {
		out = append(out, capability.AccessPoint{
			BSSID:     ap.BSSID,
			SSID:      ap.SSID,
			Signal:    ap.Signal,
			Frequency: ap.Frequency,
			Channel:   ap.Channel,
		})
	}
	return out, nil
}

type beaconScanner []Beacon

func (b beaconScanner) ScanBeacons(ctx context.Context) ([]capability.Beacon, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]capability.Beacon, 0, len(b))
	for _, beacon := range b {
		out = append(out, capability.Beacon{
			ID:        beacon.ID,
			Name:      beacon.Name,
			RSSI:      beacon.RSSI,
			TxPower:   beacon.TxPower,
			Latitude:  beacon.Latitude,
			Longitude: beacon.Longitude,
		})
	}
	return out, nil
}

type cellScanner []Cell

func (c cellScanner) ScanCells(ctx context.Context) ([]capability.CellTower, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]capability.CellTower, 0, len(c))
	for _, cell := range c {
		out = append(out, capability.CellTower{
			Radio:     cell.Radio,
			MCC:       cell.MCC,
			MNC:       cell.MNC,
			LAC:       cell.LAC,
			CellID:    cell.CellID,
			Strength:  cell.Strength,
			Latitude:  cell.Latitude,
			Longitude: cell.Longitude,
		})
	}
	return out, nil
}

type connectionInfo struct{ c *Connection }

func (c connectionInfo) Connection(ctx context.Context) (capability.Connection, error) {
	if err := ctx.Err(); err != nil {
		return capability.Connection{}, err
	}
	return capability.Connection{
		Type:          c.c.Type,
		EffectiveType: c.c.EffectiveType,
		RTTMillis:     c.c.RTT,
		DownlinkMbps:  c.c.Downlink,
	}, nil
}

// canvasRenderer replays a rendered canvas given as a data URL or raw base64.
type canvasRenderer string

func (c canvasRenderer) Render(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	payload := string(c)
	if strings.HasPrefix(payload, "data:") {
		i := strings.Index(payload, ",")
		if i < 0 {
			return nil, errors.New("malformed canvas data URL")
		}
		if !strings.HasSuffix(payload[:i], ";base64") {
			return []byte(payload[i+1:]), nil
		}
		payload = payload[i+1:]
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode canvas: %w", err)
	}
	return data, nil
}

type environmentReader struct{ e *Environment }

func (e environmentReader) Environment(ctx context.Context) (capability.Environment, error) {
	if err := ctx.Err(); err != nil {
		return capability.Environment{}, err
	}
	return capability.Environment{
		Screen:              e.e.Screen,
		Timezone:            e.e.Timezone,
		Language:            e.e.Language,
		Languages:           append([]string(nil), e.e.Languages...),
		Platform:            e.e.Platform,
		HardwareConcurrency: e.e.HardwareConcurrency,
		DeviceMemory:        e.e.DeviceMemory,
		CookieEnabled:       e.e.CookieEnabled,
		DoNotTrack:          e.e.DoNotTrack,
		UserAgent:           e.e.UserAgent,
		Referrer:            e.e.Referrer,
	}, nil
}
