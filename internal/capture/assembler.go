package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/linkforensics/internal/capability"
	"github.com/nao1215/linkforensics/internal/config"
	"github.com/nao1215/linkforensics/internal/database"
	"github.com/nao1215/linkforensics/internal/fingerprint"
	"github.com/nao1215/linkforensics/internal/metrics"
	"github.com/nao1215/linkforensics/internal/model"
	"github.com/nao1215/linkforensics/internal/network"
	"github.com/nao1215/linkforensics/internal/provider"
	"github.com/nao1215/linkforensics/internal/trust"
)

// Identifier resolves network identity. *network.Probe implements it.
type Identifier interface {
	Identify(ctx context.Context, caps capability.Set, hint string) network.Result
}

// Fingerprinter builds device fingerprints. *fingerprint.Fingerprinter implements it.
type Fingerprinter interface {
	Fingerprint(ctx context.Context, caps capability.Set) model.DeviceFingerprint
}

// Locator triangulates positions. *location.Triangulator implements it.
type Locator interface {
	Triangulate(ctx context.Context, caps capability.Set, ip string) *model.BestLocation
}

// Store is the part of database.Store the assembler writes to.
type Store interface {
	Upsert(ctx context.Context, rec *model.ForensicRecord) (string, error)
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithStore sets where records are persisted. Without a store records are
// only returned.
func WithStore(s Store) Option {
	return func(a *Assembler) {
		a.store = s
	}
}

// WithBranchTimeout bounds each of the network, fingerprint and location branches.
func WithBranchTimeout(d time.Duration) Option {
	return func(a *Assembler) {
		a.branchTimeout = d
	}
}

// WithStoreTimeout bounds the background store hand-off.
func WithStoreTimeout(d time.Duration) Option {
	return func(a *Assembler) {
		a.storeTimeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Assembler) {
		a.logger = logger
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Assembler) {
		a.metrics = m
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Assembler) {
		a.now = now
	}
}

// Assembler produces forensic records. It is safe for concurrent use.
type Assembler struct {
	probe         Identifier
	fingerprinter Fingerprinter
	locator       Locator

	store         Store
	branchTimeout time.Duration
	storeTimeout  time.Duration
	logger        *slog.Logger
	metrics       *metrics.Metrics
	now           func() time.Time

	pending sync.WaitGroup
}

// NewAssembler creates an Assembler over the three sources.
func NewAssembler(probe Identifier, fp Fingerprinter, loc Locator, opts ...Option) *Assembler {
	a := &Assembler{
		probe:         probe,
		fingerprinter: fp,
		locator:       loc,
		branchTimeout: config.DefaultBranchTimeout,
		storeTimeout:  config.DefaultStoreTimeout,
		logger:        slog.Default(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// request holds the per-capture inputs.
type request struct {
	caps           capability.Set
	clientIP       string
	forwardedFor   []string
	referrer       string
	userAgent      string
	accessID       string
	pageVisibility string
}

// CaptureOption sets a per-capture input.
type CaptureOption func(*request)

// WithCapabilities sets the capabilities of the accessing device.
// Without it every capability is unsupported.
func WithCapabilities(caps capability.Set) CaptureOption {
	return func(r *request) {
		r.caps = caps
	}
}

// WithClientIP sets the address a server observed for the request.
// It is used as the public IP when no lookup provider answers, and it is the
// address geolocated by the IP strategy.
func WithClientIP(ip string) CaptureOption {
	return func(r *request) {
		r.clientIP = ip
	}
}

// WithForwardedFor records the forwarding chain reported by intermediaries.
func WithForwardedFor(chain []string) CaptureOption {
	return func(r *request) {
		r.forwardedFor = append([]string(nil), chain...)
	}
}

// WithReferrer sets the session referrer.
func WithReferrer(referrer string) CaptureOption {
	return func(r *request) {
		r.referrer = referrer
	}
}

// WithUserAgent sets the user agent when the device did not report one.
func WithUserAgent(ua string) CaptureOption {
	return func(r *request) {
		r.userAgent = ua
	}
}

// WithAccessID reuses an access id, so a retried capture updates the same
// record instead of creating another one.
func WithAccessID(id string) CaptureOption {
	return func(r *request) {
		r.accessID = id
	}
}

// WithPageVisibility sets the visibility state at capture time.
func WithPageVisibility(state string) CaptureOption {
	return func(r *request) {
		r.pageVisibility = state
	}
}

// Capture assembles the record for one access. It never fails and never
// waits for the store; it returns after the slowest branch settled or timed
// out. The returned record is owned by the caller.
func (a *Assembler) Capture(ctx context.Context, linkID, resourceAuditID string, opts ...CaptureOption) *model.ForensicRecord {
	start := a.now()
	req := request{}
	for _, opt := range opts {
		opt(&req)
	}
	caps := req.caps.Normalize()
	accessID := req.accessID
	if accessID == "" {
		accessID = model.NewAccessID(start)
	}
	logger := a.logger.With("access_id", accessID)

	var (
		netResult network.Result
		device    model.DeviceFingerprint
		best      *model.BestLocation
	)

	// Branches convert their own failures, so the group never cancels.
	var g errgroup.Group
	g.Go(func() error {
		r, err := provider.Bounded(ctx, a.branchTimeout, func(ctx context.Context) (network.Result, error) {
			return a.probe.Identify(ctx, caps, req.clientIP), nil
		})
		if err != nil {
			logger.Warn("network branch failed", "error", err)
			r = unresolved(req.clientIP)
		}
		netResult = r
		return nil
	})
	g.Go(func() error {
		fp, err := provider.Bounded(ctx, a.branchTimeout, func(ctx context.Context) (model.DeviceFingerprint, error) {
			return a.fingerprinter.Fingerprint(ctx, caps), nil
		})
		if err != nil {
			logger.Warn("fingerprint branch failed", "error", err)
			fp = model.DeviceFingerprint{CanvasHash: model.CanvasUnavailable, Languages: []string{}}
		}
		device = fp
		return nil
	})
	g.Go(func() error {
		loc, err := provider.Bounded(ctx, a.branchTimeout, func(ctx context.Context) (*model.BestLocation, error) {
			return a.locator.Triangulate(ctx, caps, req.clientIP), nil
		})
		if err != nil {
			logger.Warn("location branch failed", "error", err)
			loc = nil
		}
		best = loc
		return nil
	})
	_ = g.Wait() //nolint:errcheck // branches never return errors

	rec := a.assemble(accessID, linkID, resourceAuditID, start, req, netResult, device, best)

	a.metrics.ObserveCapture(!netResult.Unresolved, rec.TrustScore, a.now().Sub(start))
	logger.Info("access captured",
		"link_id", linkID,
		"public_ip", rec.NetworkIdentity.PublicIP,
		"trust_score", rec.TrustScore,
		"flags", len(rec.ComplianceFlags))

	a.persist(ctx, rec.Clone(), logger)
	return rec
}

func unresolved(clientIP string) network.Result {
	ip := clientIP
	if ip == "" {
		ip = model.PublicIPUnknown
	}
	return network.Result{
		Identity:   model.NetworkIdentity{PublicIP: ip},
		Unresolved: clientIP == "",
	}
}

func (a *Assembler) assemble(
	accessID, linkID, auditID string,
	start time.Time,
	req request,
	net network.Result,
	device model.DeviceFingerprint,
	best *model.BestLocation,
) *model.ForensicRecord {
	if device.UserAgent == "" && req.userAgent != "" {
		device.UserAgent = req.userAgent
		device.Digest = fingerprint.Digest(device)
	}
	if device.Languages == nil {
		device.Languages = []string{}
	}

	identity := net.Identity
	if len(req.forwardedFor) > 0 {
		identity.ProxyIPs = req.forwardedFor
	}

	signals := model.Signals{
		VPNDetected:      net.ASNMatch,
		TimezoneMismatch: net.TimezoneMismatch,
		WebRTCLeak:       net.WebRTCLeak,
		TCPSuspicious:    net.TCPSuspicious,
	}
	if best != nil {
		signals.WiFiLocation = best.HasSource(model.MethodWiFi)
		signals.HybridLocation = best.Hybrid()
		signals.Confidence = best.Confidence
	}

	rec := &model.ForensicRecord{
		AccessID:          accessID,
		LinkID:            linkID,
		ResourceAuditID:   auditID,
		NetworkIdentity:   identity,
		DeviceFingerprint: device,
		BestLocation:      best,
		TrustScore:        trust.Score(signals),
		Signals:           signals,
		Session: model.Session{
			Start:          start,
			Referrer:       req.referrer,
			PageVisibility: req.pageVisibility,
		},
		FocusEvents: []model.FocusEvent{},
		CreatedAt:   start,
	}

	if net.Unresolved {
		rec.AddFlag(model.FlagPublicIPUnresolved, "")
	}
	if net.WebRTCLeak {
		rec.AddFlag(model.FlagWebRTCLeak, identity.LeakedPublicIP)
	}
	if net.ASNMatch {
		rec.AddFlag(model.FlagVPNDetected, vpnEvidence(identity))
	}
	if net.TimezoneMismatch {
		rec.AddFlag(model.FlagTimezoneMismatch, fmt.Sprintf("%s in %s", device.Timezone, identity.Country))
	}
	if net.TCPSuspicious {
		rec.AddFlag(model.FlagTCPSuspicious, identity.EffectiveType)
	}
	if best == nil {
		rec.AddFlag(model.FlagLocationUnavailable, "")
	}
	return rec
}

func vpnEvidence(id model.NetworkIdentity) string {
	switch {
	case id.VPNProvider != "" && id.ASN != "":
		return id.VPNProvider + " (" + id.ASN + ")"
	case id.VPNProvider != "":
		return id.VPNProvider
	default:
		return id.ASN
	}
}

// persist hands rec to the store in the background on a context detached
// from the caller, so a finished request does not abort the write.
func (a *Assembler) persist(ctx context.Context, rec *model.ForensicRecord, logger *slog.Logger) {
	if a.store == nil {
		return
	}
	a.pending.Add(1)
	go func() {
		defer a.pending.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.storeTimeout)
		defer cancel()

		if _, err := a.store.Upsert(ctx, rec); err != nil {
			if errors.Is(err, database.ErrPersistenceUnavailable) {
				logger.Debug("record not persisted", "error", err)
				return
			}
			logger.Error("failed to persist record", "error", err)
			return
		}
		logger.Debug("record persisted")
	}()
}

// Wait blocks until every background store hand-off has finished.
func (a *Assembler) Wait() {
	a.pending.Wait()
}
