package model

import (
	"math"
	"slices"
	"testing"
	"time"
)

// TestParseUserAgent tests user agent classification.
func TestParseUserAgent(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		ua       string
		expected UserAgentInfo
	}{
		{
			name:     "desktop chrome on windows",
			ua:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
			expected: UserAgentInfo{Browser: "chrome", OS: "windows"},
		},
		{
			name:     "firefox on linux",
			ua:       "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
			expected: UserAgentInfo{Browser: "firefox", OS: "linux"},
		},
		{
			name:     "chrome on android",
			ua:       "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Mobile Safari/537.36",
			expected: UserAgentInfo{IsMobile: true, Browser: "chrome", OS: "android"},
		},
		{
			name:     "crawler",
			ua:       "Googlebot/2.1 (+http://www.google.com/bot.html)",
			expected: UserAgentInfo{IsBot: true, Browser: "unknown", OS: "unknown"},
		},
		{
			name:     "empty",
			ua:       "",
			expected: UserAgentInfo{Browser: "unknown", OS: "unknown"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := ParseUserAgent(tc.ua)
			if got != tc.expected {
				t.Errorf("ParseUserAgent() = %+v, expected %+v", got, tc.expected)
			}
		})
	}
}

// TestDistance tests the haversine distance.
func TestDistance(t *testing.T) {
	t.Parallel()

	if d := Distance(10, 20, 10, 20); d != 0 {
		t.Errorf("expected zero distance, got %f", d)
	}

	// Madrid to Paris is roughly 1053 km.
	d := Distance(40.4168, -3.7038, 48.8566, 2.3522)
	if math.Abs(d-1053) > 10 {
		t.Errorf("unexpected Madrid-Paris distance %f", d)
	}
}

// TestDetectSuspiciousActivity tests the warning heuristics.
func TestDetectSuspiciousActivity(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("clean record has no warnings", func(t *testing.T) {
		t.Parallel()

		r := &ForensicRecord{Session: Session{Start: start}}
		if w := DetectSuspiciousActivity(r, start.Add(time.Minute)); len(w) != 0 {
			t.Errorf("expected no warnings, got %v", w)
		}
	})

	t.Run("all heuristics fire", func(t *testing.T) {
		t.Parallel()

		end := start.Add(500 * time.Millisecond)
		r := &ForensicRecord{
			NetworkIdentity:   NetworkIdentity{ProxyIPs: []string{"10.0.0.1"}},
			DeviceFingerprint: DeviceFingerprint{UserAgent: "curl-crawler/1.0"},
			Session:           Session{Start: start, End: &end},
		}
		w := DetectSuspiciousActivity(r, start.Add(time.Hour))
		for _, want := range []string{WarningBot, WarningProxyChain, WarningShortSession} {
			if !slices.Contains(w, want) {
				t.Errorf("expected warning %q in %v", want, w)
			}
		}
	})
}

// TestNewSummary tests that a summary counts flags by severity.
func TestNewSummary(t *testing.T) {
	t.Parallel()

	r := sampleRecord()
	r.TrustScore = 45
	r.AddFlag(FlagVPNDetected, "AS9009")
	r.AddFlag(FlagWebRTCLeak, "203.0.113.9")
	r.AddFlag(FlagTimezoneMismatch, "Asia/Tokyo")

	s := NewSummary(r, r.Session.Start.Add(time.Hour))

	if s.TotalFindings() != 3 || !s.HasFindings() {
		t.Errorf("expected 3 findings, got %d", s.TotalFindings())
	}
	if s.HighCount != 2 || s.MediumCount != 1 || s.CriticalCount != 0 {
		t.Errorf("unexpected counts: high=%d medium=%d critical=%d", s.HighCount, s.MediumCount, s.CriticalCount)
	}
	if got := s.GetFindingsBySeverity(SeverityHigh); len(got) != 2 {
		t.Errorf("expected 2 high findings, got %d", len(got))
	}
	if s.Location == "" {
		t.Error("expected location description")
	}
	if s.TrustScore != 45 || s.PublicIP != "198.51.100.7" {
		t.Errorf("unexpected summary header %+v", s)
	}
}
