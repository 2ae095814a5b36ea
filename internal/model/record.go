package model

import (
	"slices"
	"time"
)

// PublicIPUnknown is recorded as the public IP when every lookup provider failed.
const PublicIPUnknown = "unknown"

// CanvasUnavailable is recorded as the canvas hash when rendering is not possible.
const CanvasUnavailable = "unavailable"

// NetworkIdentity describes where the access came from on the network.
type NetworkIdentity struct {
	// PublicIP is the address seen by external lookup services, or PublicIPUnknown.
	PublicIP string `json:"publicIP"`

	// LocalIP is a private-range address disclosed by ICE gathering.
	LocalIP string `json:"localIP,omitempty"`

	// LeakedPublicIP is a public address disclosed by ICE gathering.
	LeakedPublicIP string `json:"leakedPublicIP,omitempty"`

	// VPNDetected is true when either the ASN heuristic or the timezone
	// heuristic fired. Both produce false positives.
	VPNDetected bool   `json:"vpnDetected"`
	VPNProvider string `json:"vpnProvider,omitempty"`

	ISP     string `json:"isp,omitempty"`
	ASN     string `json:"asn,omitempty"`
	Country string `json:"country,omitempty"`

	// IPTimezone is the timezone the lookup provider associates with the IP.
	IPTimezone string `json:"ipTimezone,omitempty"`

	// ProxyIPs is the forwarding chain reported by intermediaries.
	ProxyIPs []string `json:"proxyIPs,omitempty"`

	// ConnectionType and EffectiveType come from connection metadata.
	ConnectionType string `json:"connectionType,omitempty"`
	EffectiveType  string `json:"effectiveType,omitempty"`
}

// Screen is the display geometry reported by the device.
type Screen struct {
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	ColorDepth int     `json:"colorDepth"`
	PixelRatio float64 `json:"pixelRatio"`
}

// DeviceFingerprint is the set of declarative and rendered device attributes.
type DeviceFingerprint struct {
	// CanvasHash identifies the rendering stack (GPU, driver, OS, fonts).
	// It is CanvasUnavailable when rendering failed.
	CanvasHash string `json:"canvasHash"`

	Screen              Screen   `json:"screen"`
	Timezone            string   `json:"timezone"`
	Language            string   `json:"language,omitempty"`
	Languages           []string `json:"languages"`
	Platform            string   `json:"platform"`
	HardwareConcurrency int      `json:"hardwareConcurrency"`
	DeviceMemory        *float64 `json:"deviceMemory,omitempty"`
	CookieEnabled       bool     `json:"cookieEnabled"`
	DoNotTrack          bool     `json:"doNotTrack"`
	UserAgent           string   `json:"userAgent,omitempty"`

	// Digest is a hash over the canonical attribute tuple.
	Digest string `json:"digest,omitempty"`
}

// Signals are the derived risk and corroboration flags fed to the trust scorer.
type Signals struct {
	// VPNDetected is the ASN/provider heuristic only. The timezone heuristic
	// is tracked separately so that it is not penalized twice.
	VPNDetected      bool `json:"vpnDetected"`
	TimezoneMismatch bool `json:"timezoneMismatch"`
	WebRTCLeak       bool `json:"webrtcLeak"`
	TCPSuspicious    bool `json:"tcpSuspicious"`
	WiFiLocation     bool `json:"wifiLocation"`
	HybridLocation   bool `json:"hybridLocation"`
	Confidence       int  `json:"confidence"`
}

// Session holds access-flow metadata for a record.
type Session struct {
	Start          time.Time  `json:"start"`
	End            *time.Time `json:"end,omitempty"`
	Referrer       string     `json:"referrer"`
	Downloaded     bool       `json:"downloaded"`
	DownloadTime   *time.Time `json:"downloadTime,omitempty"`
	PageVisibility string     `json:"pageVisibility,omitempty"`
}

// FocusKind is the type of a focus event.
type FocusKind string

const (
	// FocusGained is recorded when the page gains focus or becomes visible.
	FocusGained FocusKind = "focus"

	// FocusLost is recorded when the page loses focus or becomes hidden.
	FocusLost FocusKind = "blur"
)

// Valid reports whether k is focus or blur.
func (k FocusKind) Valid() bool {
	return k == FocusGained || k == FocusLost
}

// FocusEvent is one focus transition.
type FocusEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      FocusKind `json:"kind"`
}

// ForensicRecord is one captured access to a shared resource.
// Exactly one logical record exists per AccessID.
type ForensicRecord struct {
	AccessID        string `json:"accessId"`
	LinkID          string `json:"linkId"`
	ResourceAuditID string `json:"resourceAuditId"`

	NetworkIdentity   NetworkIdentity   `json:"networkIdentity"`
	DeviceFingerprint DeviceFingerprint `json:"deviceFingerprint"`

	// BestLocation is nil when no location strategy answered.
	BestLocation *BestLocation `json:"bestLocation,omitempty"`

	// TrustScore is always within [0, 100].
	TrustScore int     `json:"trustScore"`
	Signals    Signals `json:"signals"`

	Session     Session      `json:"session"`
	FocusEvents []FocusEvent `json:"focusEvents"`

	ComplianceFlags []ComplianceFlag `json:"complianceFlags,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// HasFlag reports whether the record carries the given compliance flag.
func (r *ForensicRecord) HasFlag(code string) bool {
	for _, f := range r.ComplianceFlags {
		if f.Code == code {
			return true
		}
	}
	return false
}

// AddFlag attaches a compliance flag unless one with the same code exists.
func (r *ForensicRecord) AddFlag(code, value string) {
	if r.HasFlag(code) {
		return
	}
	r.ComplianceFlags = append(r.ComplianceFlags, NewComplianceFlag(code, value))
}

// Clone returns a deep copy of the record.
func (r *ForensicRecord) Clone() *ForensicRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.NetworkIdentity.ProxyIPs = slices.Clone(r.NetworkIdentity.ProxyIPs)
	c.DeviceFingerprint.Languages = slices.Clone(r.DeviceFingerprint.Languages)
	if r.DeviceFingerprint.DeviceMemory != nil {
		v := *r.DeviceFingerprint.DeviceMemory
		c.DeviceFingerprint.DeviceMemory = &v
	}
	if r.BestLocation != nil {
		loc := *r.BestLocation
		loc.Sources = slices.Clone(r.BestLocation.Sources)
		if r.BestLocation.Readings != nil {
			loc.Readings = make(map[Method]Reading, len(r.BestLocation.Readings))
			for k, v := range r.BestLocation.Readings {
				loc.Readings[k] = v
			}
		}
		c.BestLocation = &loc
	}
	c.Session.End = cloneTime(r.Session.End)
	c.Session.DownloadTime = cloneTime(r.Session.DownloadTime)
	c.FocusEvents = slices.Clone(r.FocusEvents)
	c.ComplianceFlags = slices.Clone(r.ComplianceFlags)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// RecordUpdate is a partial update. Nil fields are left untouched.
type RecordUpdate struct {
	Downloaded     *bool      `json:"downloaded,omitempty"`
	DownloadTime   *time.Time `json:"downloadTime,omitempty"`
	SessionEnd     *time.Time `json:"sessionEnd,omitempty"`
	PageVisibility *string    `json:"pageVisibility,omitempty"`

	// AppendFocusEvents are appended, in order, after the stored events.
	// A timestamp earlier than the event before it is raised to that event's
	// timestamp, so the stored sequence never goes backwards.
	AppendFocusEvents []FocusEvent `json:"appendFocusEvents,omitempty"`
}

// IsEmpty reports whether the update changes nothing.
func (u RecordUpdate) IsEmpty() bool {
	return u.Downloaded == nil &&
		u.DownloadTime == nil &&
		u.SessionEnd == nil &&
		u.PageVisibility == nil &&
		len(u.AppendFocusEvents) == 0
}

// Apply writes the non-nil fields of u onto the record.
func (r *ForensicRecord) Apply(u RecordUpdate) {
	if u.Downloaded != nil {
		r.Session.Downloaded = *u.Downloaded
	}
	if u.DownloadTime != nil {
		r.Session.DownloadTime = cloneTime(u.DownloadTime)
	}
	if u.SessionEnd != nil {
		r.Session.End = cloneTime(u.SessionEnd)
	}
	if u.PageVisibility != nil {
		r.Session.PageVisibility = *u.PageVisibility
	}
	if len(u.AppendFocusEvents) > 0 {
		var last time.Time
		if n := len(r.FocusEvents); n > 0 {
			last = r.FocusEvents[n-1].Timestamp
		}
		for _, ev := range u.AppendFocusEvents {
			if ev.Timestamp.Before(last) {
				ev.Timestamp = last
			}
			last = ev.Timestamp
			r.FocusEvents = append(r.FocusEvents, ev)
		}
	}
}

// DownloadUpdate builds the update sent when a download completes.
func DownloadUpdate(at time.Time) RecordUpdate {
	downloaded := true
	downloadTime := at
	sessionEnd := at
	return RecordUpdate{
		Downloaded:   &downloaded,
		DownloadTime: &downloadTime,
		SessionEnd:   &sessionEnd,
	}
}
