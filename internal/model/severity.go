package model

import (
	"fmt"
	"strings"
)

// Severity represents how much a compliance flag matters to audit review.
//
// We use iota-based constants for cheap comparisons and sorting; the textual
// form is used on the wire and in the database.
type Severity int

const (
	// SeverityInfo marks notes with no bearing on identity confidence.
	// Example: no location source answered.
	SeverityInfo Severity = iota

	// SeverityLow marks weak indicators that are frequently benign.
	SeverityLow

	// SeverityMedium marks indicators that reduce confidence in the captured identity.
	// Examples: timezone/country mismatch, VPN-typical connection timing.
	SeverityMedium

	// SeverityHigh marks strong indicators that the visible identity is masked.
	// Examples: known VPN or hosting ASN, WebRTC leak of a different public IP.
	SeverityHigh

	// SeverityCritical marks records whose identification failed outright.
	// Example: every public IP provider was exhausted.
	SeverityCritical
)

// String returns a human-readable representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText encodes the severity as its upper-case name.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a severity name. Matching is case-insensitive.
func (s *Severity) UnmarshalText(text []byte) error {
	switch strings.ToUpper(string(text)) {
	case "INFO":
		*s = SeverityInfo
	case "LOW":
		*s = SeverityLow
	case "MEDIUM":
		*s = SeverityMedium
	case "HIGH":
		*s = SeverityHigh
	case "CRITICAL":
		*s = SeverityCritical
	default:
		return fmt.Errorf("unknown severity %q", string(text))
	}
	return nil
}

// Compliance flag codes attached to records.
const (
	// FlagPublicIPUnresolved is raised when every public IP provider failed.
	// The record carries PublicIPUnknown instead of an address.
	FlagPublicIPUnresolved = "public_ip_unresolved"

	// FlagWebRTCLeak is raised when ICE gathering exposed a public address
	// that differs from the one reported by the lookup providers.
	FlagWebRTCLeak = "webrtc_leak"

	// FlagVPNDetected is raised when the ASN or provider flags point to a
	// VPN, proxy or hosting network.
	FlagVPNDetected = "vpn_detected"

	// FlagTimezoneMismatch is raised when the browser timezone is not one of
	// the zones expected for the IP's country.
	FlagTimezoneMismatch = "timezone_mismatch"

	// FlagTCPSuspicious is raised when connection timing looks VPN-typical.
	FlagTCPSuspicious = "tcp_suspicious"

	// FlagLocationUnavailable is raised when no location strategy answered.
	FlagLocationUnavailable = "location_unavailable"
)

// FlagInfo contains metadata about a compliance flag code including
// severity, impact description and review recommendation.
type FlagInfo struct {
	Severity       Severity
	Title          string
	Impact         string
	Recommendation string
}

// flagInfoMapping is the single source of truth for how each flag is ranked.
var flagInfoMapping = map[string]FlagInfo{
	FlagPublicIPUnresolved: {
		Severity:       SeverityCritical,
		Title:          "Public IP Unresolved",
		Impact:         "No lookup provider returned the visitor's public IP. The record cannot be tied to a network origin.",
		Recommendation: "Check provider reachability and cross-reference server access logs for this access time.",
	},
	FlagWebRTCLeak: {
		Severity:       SeverityHigh,
		Title:          "WebRTC Address Leak",
		Impact:         "Peer-connection negotiation disclosed a public address different from the one seen by HTTP services. The visible IP is likely a VPN or proxy exit.",
		Recommendation: "Treat the leaked address as the candidate origin and corroborate it with other records.",
	},
	FlagVPNDetected: {
		Severity:       SeverityHigh,
		Title:          "VPN or Hosting Network",
		Impact:         "The public IP belongs to a network commonly used by VPN, proxy or cloud hosting services.",
		Recommendation: "Do not rely on the public IP for attribution. Prefer device fingerprint and location evidence.",
	},
	FlagTimezoneMismatch: {
		Severity:       SeverityMedium,
		Title:          "Timezone Mismatch",
		Impact:         "The browser timezone is not expected for the country of the public IP.",
		Recommendation: "Consider that the visitor may be tunnelling traffic through another country.",
	},
	FlagTCPSuspicious: {
		Severity:       SeverityMedium,
		Title:          "VPN-Typical Connection Timing",
		Impact:         "High round-trip time combined with high throughput is typical of tunnelled connections.",
		Recommendation: "Weigh this together with the network flags; on its own it is a weak signal.",
	},
	FlagLocationUnavailable: {
		Severity:       SeverityInfo,
		Title:          "No Location",
		Impact:         "None of the location strategies returned a position.",
		Recommendation: "No action needed. Absence of a location does not lower the trust score.",
	},
}

// GetSeverity returns the severity level for a flag code.
// Returns SeverityInfo if the code is not in the mapping.
func GetSeverity(code string) Severity {
	if info, ok := flagInfoMapping[code]; ok {
		return info.Severity
	}
	return SeverityInfo
}

// GetFlagInfo returns the full information for a flag code.
// Returns a default FlagInfo with SeverityInfo if the code is not in the mapping.
func GetFlagInfo(code string) FlagInfo {
	if info, ok := flagInfoMapping[code]; ok {
		return info
	}
	return FlagInfo{
		Severity:       SeverityInfo,
		Title:          code,
		Impact:         "Unknown flag. Review manually.",
		Recommendation: "Investigate the record and assess its reliability.",
	}
}

// ComplianceFlag is a severity-ranked note attached to a record so that
// downstream legal or audit review can see why identification is weak.
type ComplianceFlag struct {
	// Code identifies the flag (see the Flag* constants).
	Code string `json:"code"`

	// Severity is the flag's rank.
	Severity Severity `json:"severity"`

	// Message is a short human-readable explanation.
	Message string `json:"message"`

	// Value is the specific evidence (address, timezone, provider), if any.
	Value string `json:"value,omitempty"`
}

// NewComplianceFlag builds a flag for code using the central mapping.
func NewComplianceFlag(code, value string) ComplianceFlag {
	info := GetFlagInfo(code)
	return ComplianceFlag{
		Code:     code,
		Severity: info.Severity,
		Message:  info.Title,
		Value:    value,
	}
}
