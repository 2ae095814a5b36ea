package network

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/linkforensics/internal/capability"
	"github.com/nao1215/linkforensics/internal/config"
	"github.com/nao1215/linkforensics/internal/model"
	"github.com/nao1215/linkforensics/internal/provider"
)

// Connection timing thresholds. A tunnel adds latency without reducing the
// throughput of the underlying link.
const (
	SuspiciousRTTMillis    = 100
	SuspiciousDownlinkMbps = 10
)

// Result is the outcome of Identify.
type Result struct {
	Identity model.NetworkIdentity

	// IdentityProvider names the provider that reported the public IP.
	IdentityProvider string

	// ASNMatch is true when the ASN is a known VPN or hosting network, or
	// the provider flagged the address as a proxy.
	ASNMatch bool

	// TimezoneMismatch is true when the device timezone is not expected for
	// the country of the public IP.
	TimezoneMismatch bool

	// WebRTCLeak is true when ICE disclosed a public address that differs
	// from the public IP.
	WebRTCLeak bool

	// TCPSuspicious is true when connection timing looks tunnelled.
	TCPSuspicious bool

	// Unresolved is true when every identity provider failed.
	Unresolved bool
}

// Option configures a Probe.
type Option func(*Probe)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Probe) {
		p.logger = logger
	}
}

// WithTables sets the source of the VPN network list and the timezone table.
// Tables are read on every Identify call so reloads take effect immediately.
func WithTables(live *config.Live) Option {
	return func(p *Probe) {
		p.tables = live
	}
}

// WithEnrichment sets the chain consulted when the identity lacks an ASN or
// a country.
func WithEnrichment(chain *provider.Chain[LookupRequest, IPInfo]) Option {
	return func(p *Probe) {
		p.enrichment = chain
	}
}

// WithLocalTimeout bounds ICE gathering and connection metadata reads.
func WithLocalTimeout(d time.Duration) Option {
	return func(p *Probe) {
		p.localTimeout = d
	}
}

// Probe resolves network identity. It is safe for concurrent use.
type Probe struct {
	identity     *provider.Chain[LookupRequest, IPInfo]
	enrichment   *provider.Chain[LookupRequest, IPInfo]
	tables       *config.Live
	localTimeout time.Duration
	logger       *slog.Logger
}

// NewProbe creates a Probe that resolves the public IP through identity.
func NewProbe(identity *provider.Chain[LookupRequest, IPInfo], opts ...Option) *Probe {
	p := &Probe{
		identity:     identity,
		localTimeout: config.DefaultICETimeout,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.tables == nil {
		p.tables = config.NewLive(nil)
	}
	return p
}

// Identify resolves the network identity of the current access.
//
// hint is the client address observed by a server, or empty for a local
// capture. Identify never fails: every source that does not answer leaves
// its fields empty, and an unresolvable public IP is recorded as
// model.PublicIPUnknown with Result.Unresolved set.
func (p *Probe) Identify(ctx context.Context, caps capability.Set, hint string) Result {
	caps = caps.Normalize()

	var (
		info     IPInfo
		infoFrom string
		infoErr  error
		local    string
		publics  []string
		conn     capability.Connection
		deviceTZ string
	)

	// Each branch converts its own failure to "no value", so the group
	// never cancels a sibling.
	var g errgroup.Group
	g.Go(func() error {
		info, infoFrom, infoErr = p.resolve(ctx, hint)
		return nil
	})
	g.Go(func() error {
		lines, err := provider.Bounded(ctx, p.localTimeout, caps.ICE.GatherCandidates)
		if err != nil {
			p.logDegraded("ice gathering", err)
			return nil
		}
		local, _ = ClassifyCandidates(lines)
		publics = PublicCandidates(lines)
		return nil
	})
	g.Go(func() error {
		c, err := provider.Bounded(ctx, p.localTimeout, caps.Connection.Connection)
		if err != nil {
			p.logDegraded("connection metadata", err)
			return nil
		}
		conn = c
		return nil
	})
	g.Go(func() error {
		env, err := provider.Bounded(ctx, p.localTimeout, caps.Environment.Environment)
		if err != nil {
			p.logDegraded("environment", err)
			return nil
		}
		deviceTZ = env.Timezone
		return nil
	})
	_ = g.Wait() //nolint:errcheck // branches never return errors

	var res Result
	id := &res.Identity
	id.LocalIP = local
	id.ConnectionType = conn.Type
	id.EffectiveType = conn.EffectiveType
	res.TCPSuspicious = conn.RTTMillis > SuspiciousRTTMillis && conn.DownlinkMbps > SuspiciousDownlinkMbps

	if infoErr != nil {
		p.logger.Warn("public IP unresolved", "hint", hint != "", "error", infoErr)
		id.PublicIP = model.PublicIPUnknown
		res.Unresolved = true
	} else {
		id.PublicIP = info.IP
		id.ISP = info.ISP
		id.ASN = info.ASN
		id.Country = info.Country
		id.IPTimezone = info.Timezone
		res.IdentityProvider = infoFrom
	}

	// A leak is judged against the resolved address. With no resolved
	// address any disclosed public address is new information.
	leaked := SelectLeak(publics, id.PublicIP)
	if leaked == "" && len(publics) > 0 {
		p.logger.Debug("ice disclosed only addresses of another family", "candidates", len(publics))
	}
	id.LeakedPublicIP = leaked
	res.WebRTCLeak = leaked != "" && leaked != id.PublicIP

	tables := p.tables.Load()
	if vpn := tables.VPNProvider(id.ASN); vpn != "" {
		res.ASNMatch = true
		id.VPNProvider = vpn
	} else if info.Proxy && !res.Unresolved {
		res.ASNMatch = true
		id.VPNProvider = id.ISP
	}
	res.TimezoneMismatch = tables.TimezoneMismatch(id.Country, deviceTZ)
	id.VPNDetected = res.ASNMatch || res.TimezoneMismatch

	p.logger.Debug("network identity resolved",
		"public_ip", id.PublicIP,
		"provider", res.IdentityProvider,
		"asn", id.ASN,
		"country", id.Country,
		"local_ip", id.LocalIP,
		"leaked_ip", id.LeakedPublicIP,
		"vpn", res.ASNMatch,
		"timezone_mismatch", res.TimezoneMismatch,
		"tcp_suspicious", res.TCPSuspicious,
	)
	return res
}

// resolve runs the identity chain and, when the answer lacks an ASN or a
// country, the enrichment chain.
func (p *Probe) resolve(ctx context.Context, hint string) (IPInfo, string, error) {
	if p.identity == nil {
		return IPInfo{}, "", provider.ErrNoEligibleProvider
	}
	r, err := p.identity.Lookup(ctx, LookupRequest{ClientIP: hint})
	if err != nil {
		return IPInfo{}, "", err
	}
	info := r.Value
	if p.enrichment != nil && (info.ASN == "" || info.Country == "") {
		extra, err := p.enrichment.Lookup(ctx, LookupRequest{ClientIP: info.IP})
		if err != nil {
			p.logger.Debug("enrichment failed", "error", err)
		} else {
			info = info.merge(extra.Value)
		}
	}
	return info, r.Provider, nil
}

func (p *Probe) logDegraded(source string, err error) {
	if errors.Is(err, capability.ErrUnsupported) {
		p.logger.Debug(source+" unsupported")
		return
	}
	p.logger.Debug(source+" failed", "error", err)
}
