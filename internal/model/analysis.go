package model

import (
	"math"
	"regexp"
	"strings"
	"time"
)

// earthRadiusKm is the mean Earth radius used by Distance.
const earthRadiusKm = 6371.0

// minHumanSession is the shortest session considered plausible for a person.
const minHumanSession = 2 * time.Second

var (
	botPattern     = regexp.MustCompile(`(?i)bot|crawler|spider|crawling`)
	mobilePattern  = regexp.MustCompile(`(?i)mobile|android|iphone|ipad`)
	browserPattern = regexp.MustCompile(`(?i)(edge|opera|firefox|chrome|safari)`)
	osPattern      = regexp.MustCompile(`(?i)(windows|mac|linux|android|ios)`)
)

// UserAgentInfo is the coarse classification of a User-Agent string.
type UserAgentInfo struct {
	IsBot    bool   `json:"isBot"`
	IsMobile bool   `json:"isMobile"`
	Browser  string `json:"browser"`
	OS       string `json:"os"`
}

// ParseUserAgent classifies a User-Agent string.
// Unknown browsers and operating systems are reported as "unknown".
func ParseUserAgent(ua string) UserAgentInfo {
	info := UserAgentInfo{
		IsBot:    botPattern.MatchString(ua),
		IsMobile: mobilePattern.MatchString(ua),
		Browser:  "unknown",
		OS:       "unknown",
	}
	if m := browserPattern.FindString(ua); m != "" {
		info.Browser = strings.ToLower(m)
	}
	// Android user agents also contain "Linux"; prefer the more specific match.
	if strings.Contains(strings.ToLower(ua), "android") {
		info.OS = "android"
	} else if m := osPattern.FindString(ua); m != "" {
		info.OS = strings.ToLower(m)
	}
	return info
}

// Distance returns the great-circle distance in kilometres between two
// coordinates using the haversine formula.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

// Suspicious activity warnings returned by DetectSuspiciousActivity.
const (
	WarningBot          = "possible bot user agent"
	WarningProxyChain   = "request passed through proxies"
	WarningShortSession = "extremely short session"
)

// DetectSuspiciousActivity returns warnings about patterns that suggest
// automated or disguised access. now is used for sessions that have not ended.
func DetectSuspiciousActivity(r *ForensicRecord, now time.Time) []string {
	var warnings []string

	if ParseUserAgent(r.DeviceFingerprint.UserAgent).IsBot {
		warnings = append(warnings, WarningBot)
	}
	if len(r.NetworkIdentity.ProxyIPs) > 0 {
		warnings = append(warnings, WarningProxyChain)
	}

	end := now
	if r.Session.End != nil {
		end = *r.Session.End
	}
	if !r.Session.Start.IsZero() && end.Sub(r.Session.Start) < minHumanSession {
		warnings = append(warnings, WarningShortSession)
	}

	return warnings
}
