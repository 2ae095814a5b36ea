package location

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/linkforensics/internal/capability"
	"github.com/nao1215/linkforensics/internal/config"
	"github.com/nao1215/linkforensics/internal/metrics"
	"github.com/nao1215/linkforensics/internal/model"
	"github.com/nao1215/linkforensics/internal/provider"
)

// Timeouts bounds each strategy.
type Timeouts struct {
	GPS       time.Duration
	WiFi      time.Duration
	Bluetooth time.Duration
	Cell      time.Duration

	// IP bounds each IP geolocation provider; the strategy as a whole may
	// take IP times the number of providers.
	IP time.Duration
}

// DefaultTimeouts returns the configured defaults.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		GPS:       config.DefaultGPSTimeout,
		WiFi:      config.DefaultWiFiTimeout,
		Bluetooth: config.DefaultBluetoothTimeout,
		Cell:      config.DefaultCellTimeout,
		IP:        config.DefaultProviderTimeout,
	}
}

// Option configures a Triangulator.
type Option func(*Triangulator)

// WithTimeouts overrides DefaultTimeouts.
func WithTimeouts(t Timeouts) Option {
	return func(tr *Triangulator) {
		tr.timeouts = t
	}
}

// WithGPSMaximumAge sets the oldest cached fix the GPS strategy accepts.
func WithGPSMaximumAge(d time.Duration) Option {
	return func(tr *Triangulator) {
		tr.gpsMaximumAge = d
	}
}

// WithWiFiChain sets the WiFi positioning chain.
func WithWiFiChain(c *provider.Chain[WiFiRequest, Fix]) Option {
	return func(tr *Triangulator) {
		tr.wifi = c
	}
}

// WithCellChain sets the cell locator chain.
func WithCellChain(c *provider.Chain[CellRequest, Fix]) Option {
	return func(tr *Triangulator) {
		tr.cell = c
	}
}

// WithIPChain sets the IP geolocation chain.
func WithIPChain(c *provider.Chain[IPRequest, Fix]) Option {
	return func(tr *Triangulator) {
		tr.ip = c
	}
}

// WithBeaconRegistry sets the source of known beacon positions.
func WithBeaconRegistry(live *config.Live) Option {
	return func(tr *Triangulator) {
		tr.tables = live
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(tr *Triangulator) {
		tr.logger = logger
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(tr *Triangulator) {
		tr.metrics = m
	}
}

// Triangulator runs the location strategies. It is safe for concurrent use.
type Triangulator struct {
	timeouts      Timeouts
	gpsMaximumAge time.Duration

	wifi *provider.Chain[WiFiRequest, Fix]
	cell *provider.Chain[CellRequest, Fix]
	ip   *provider.Chain[IPRequest, Fix]

	tables  *config.Live
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewTriangulator creates a Triangulator. Strategies whose chain is not
// set still run when they can answer locally (gps, bluetooth, a cell tower
// that reports its own position).
func NewTriangulator(opts ...Option) *Triangulator {
	tr := &Triangulator{
		timeouts:      DefaultTimeouts(),
		gpsMaximumAge: config.DefaultGPSMaximumAge,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(tr)
	}
	if tr.tables == nil {
		tr.tables = config.NewLive(nil)
	}
	return tr
}

type strategy struct {
	method  model.Method
	timeout time.Duration
	run     func(ctx context.Context, caps capability.Set, ip string) (model.Reading, error)
}

func (tr *Triangulator) strategies() []strategy {
	ipTimeout := tr.timeouts.IP
	if tr.ip != nil && tr.ip.Len() > 1 {
		ipTimeout *= time.Duration(tr.ip.Len())
	}
	return []strategy{
		{model.MethodGPS, tr.timeouts.GPS, tr.gps},
		{model.MethodWiFi, tr.timeouts.WiFi, tr.wifiLocation},
		{model.MethodBluetooth, tr.timeouts.Bluetooth, tr.bluetooth},
		{model.MethodCell, tr.timeouts.Cell, tr.cellLocation},
		{model.MethodIP, ipTimeout, tr.ipLocation},
	}
}

// Triangulate runs every strategy concurrently and reduces the answers to
// the most accurate one. ip is the client address to geolocate; empty means
// the caller's own address. It returns nil when no strategy answered.
//
// Triangulate returns when every strategy has answered, failed or timed
// out, so it takes at most the longest strategy timeout.
func (tr *Triangulator) Triangulate(ctx context.Context, caps capability.Set, ip string) *model.BestLocation {
	caps = caps.Normalize()
	strategies := tr.strategies()
	results := make(chan model.Reading, len(strategies))

	var g errgroup.Group
	for _, s := range strategies {
		g.Go(func() error {
			rd, err := provider.Bounded(ctx, s.timeout, func(ctx context.Context) (model.Reading, error) {
				return s.run(ctx, caps, ip)
			})
			if err != nil {
				tr.observe(s.method, err)
				return nil
			}
			rd.Method = s.method
			tr.metrics.ObserveStrategy(string(s.method), metrics.OutcomeSuccess)
			results <- rd
			return nil
		})
	}
	go func() {
		_ = g.Wait() //nolint:errcheck // strategies never return errors
		close(results)
	}()

	reducer := NewReducer()
	for rd := range results {
		tr.logger.Debug("location strategy answered",
			"method", rd.Method, "accuracy", rd.AccuracyMeters, "provider", rd.Provider)
		reducer.Add(rd)
	}
	best := reducer.Result()
	if best != nil {
		tr.logger.Debug("location resolved",
			"method", best.Method, "accuracy", best.AccuracyMeters, "sources", len(best.Sources))
	}
	return best
}

func (tr *Triangulator) observe(method model.Method, err error) {
	outcome := metrics.OutcomeError
	switch {
	case errors.Is(err, capability.ErrUnsupported), errors.Is(err, capability.ErrDenied),
		errors.Is(err, ErrNotConfigured):
		outcome = metrics.OutcomeUnsupported
	case errors.Is(err, provider.ErrProbeTimeout):
		outcome = metrics.OutcomeTimeout
	}
	tr.metrics.ObserveStrategy(string(method), outcome)
	tr.logger.Debug("location strategy failed", "method", method, "outcome", outcome, "error", err)
}

func (tr *Triangulator) gps(ctx context.Context, caps capability.Set, _ string) (model.Reading, error) {
	pos, err := caps.Geolocator.CurrentPosition(ctx, capability.PositionOptions{
		HighAccuracy: true,
		MaximumAge:   tr.gpsMaximumAge,
	})
	if err != nil {
		return model.Reading{}, err
	}
	if err := validateCoordinates(pos.Latitude, pos.Longitude); err != nil {
		return model.Reading{}, err
	}
	if pos.Accuracy <= 0 {
		return model.Reading{}, fmt.Errorf("%w: fix without accuracy", ErrInvalidCoordinates)
	}
	return model.Reading{
		Latitude:       pos.Latitude,
		Longitude:      pos.Longitude,
		AccuracyMeters: pos.Accuracy,
		Altitude:       pos.Altitude,
		Heading:        pos.Heading,
		Speed:          pos.Speed,
	}, nil
}

func (tr *Triangulator) wifiLocation(ctx context.Context, caps capability.Set, _ string) (model.Reading, error) {
	aps, err := caps.WiFi.ScanWiFi(ctx)
	if err != nil {
		return model.Reading{}, err
	}
	aps = PrepareAccessPoints(aps)
	if len(aps) < MinAccessPoints {
		return model.Reading{}, ErrInsufficientAccessPoints
	}
	if tr.wifi == nil {
		return model.Reading{}, ErrNotConfigured
	}
	r, err := tr.wifi.Lookup(ctx, WiFiRequest{AccessPoints: aps})
	if err != nil {
		return model.Reading{}, err
	}
	return model.Reading{
		Latitude:       r.Value.Latitude,
		Longitude:      r.Value.Longitude,
		AccuracyMeters: r.Value.Accuracy,
		Count:          len(aps),
		Provider:       r.Provider,
	}, nil
}

func (tr *Triangulator) bluetooth(ctx context.Context, caps capability.Set, _ string) (model.Reading, error) {
	beacons, err := caps.Beacons.ScanBeacons(ctx)
	if err != nil {
		return model.Reading{}, err
	}
	fix, err := locateBeacons(beacons, tr.tables.Load())
	if err != nil {
		return model.Reading{}, err
	}
	return model.Reading{
		Latitude:       fix.latitude,
		Longitude:      fix.longitude,
		AccuracyMeters: fix.distance,
		Count:          fix.usable,
	}, nil
}

func (tr *Triangulator) cellLocation(ctx context.Context, caps capability.Set, _ string) (model.Reading, error) {
	towers, err := caps.Cells.ScanCells(ctx)
	if err != nil {
		return model.Reading{}, err
	}
	tower, err := strongestTower(towers)
	if err != nil {
		return model.Reading{}, err
	}
	rd := model.Reading{
		AccuracyMeters: CellAccuracy(tower.Strength),
		Strength:       tower.Strength,
	}
	if tower.Latitude != nil && tower.Longitude != nil {
		rd.Latitude, rd.Longitude = *tower.Latitude, *tower.Longitude
		if err := validateCoordinates(rd.Latitude, rd.Longitude); err != nil {
			return model.Reading{}, err
		}
		return rd, nil
	}
	if tr.cell == nil {
		return model.Reading{}, ErrNotConfigured
	}
	r, err := tr.cell.Lookup(ctx, CellRequest{Tower: tower})
	if err != nil {
		return model.Reading{}, err
	}
	rd.Latitude, rd.Longitude = r.Value.Latitude, r.Value.Longitude
	rd.Provider = r.Provider
	return rd, nil
}

func (tr *Triangulator) ipLocation(ctx context.Context, _ capability.Set, ip string) (model.Reading, error) {
	if tr.ip == nil {
		return model.Reading{}, ErrNotConfigured
	}
	if ip == model.PublicIPUnknown {
		ip = ""
	}
	r, err := tr.ip.Lookup(ctx, IPRequest{IP: ip})
	if err != nil {
		return model.Reading{}, err
	}
	return model.Reading{
		Latitude:       r.Value.Latitude,
		Longitude:      r.Value.Longitude,
		AccuracyMeters: r.Value.Accuracy,
		ISP:            r.Value.ISP,
		Provider:       r.Provider,
	}, nil
}
