package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/linkforensics/internal/model"
)

// createTestRecord creates a record with sample data for testing.
func createTestRecord() *model.ForensicRecord {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(3 * time.Minute)
	r := &model.ForensicRecord{
		AccessID:        "access-1772359200000-k3x9qa",
		LinkID:          "link-contract-7",
		ResourceAuditID: "audit-42",
		NetworkIdentity: model.NetworkIdentity{
			PublicIP:       "185.159.157.10",
			LeakedPublicIP: "190.202.3.4",
			VPNDetected:    true,
			VPNProvider:    "ProtonVPN (AS9009)",
			ISP:            "M247 Ltd",
			ASN:            "AS9009",
			Country:        "GB",
			ProxyIPs:       []string{"10.1.2.3"},
		},
		DeviceFingerprint: model.DeviceFingerprint{
			CanvasHash: "9f2c41d0",
			Timezone:   "America/Caracas",
			UserAgent:  "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/124.0",
			Digest:     "4b1d7f3a9c0e",
		},
		BestLocation: &model.BestLocation{
			Latitude: 10.48, Longitude: -66.90, AccuracyMeters: 30,
			Method:     model.MethodWiFi,
			Sources:    []model.Method{model.MethodWiFi, model.MethodIP},
			Confidence: 75,
			Readings: map[model.Method]model.Reading{
				model.MethodWiFi: {Method: model.MethodWiFi, Latitude: 10.48, Longitude: -66.90, AccuracyMeters: 30, Provider: "geolocate"},
				model.MethodIP:   {Method: model.MethodIP, Latitude: 51.5, Longitude: -0.12, AccuracyMeters: 5000},
			},
		},
		TrustScore: 31,
		Session:    model.Session{Start: start, End: &end, Referrer: "https://mail.example.com/"},
		CreatedAt:  start,
	}
	r.AddFlag(model.FlagWebRTCLeak, "190.202.3.4")
	r.AddFlag(model.FlagVPNDetected, "ProtonVPN (AS9009)")
	r.AddFlag(model.FlagTimezoneMismatch, "America/Caracas in GB")
	return r
}

func createTestHistory() *model.History {
	last := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	other := createTestRecord()
	other.AccessID = "access-1772355600000-aaaaaa"
	other.BestLocation = nil
	other.Session.Downloaded = true
	return &model.History{
		Scope:   model.ScopeAudit,
		ID:      "audit-42",
		Records: []*model.ForensicRecord{createTestRecord(), other},
		Stats:   &model.Stats{AuditID: "audit-42", TotalAccesses: 2, UniqueIPs: 1, Downloads: 1, LastAccess: &last},
	}
}

func createTestComparison() *model.Comparison {
	d := 505.2
	return &model.Comparison{
		A: "access-a", B: "access-b",
		SameCanvas: true, SamePublicIP: false,
		DistanceKm: &d,
		Interval:   26 * time.Hour,
	}
}

// TestSimpleWriter tests the human-readable report writer.
func TestSimpleWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes record sections", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).Write(createTestRecord()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		for _, want := range []string{
			"FORENSIC ACCESS REPORT",
			"access-1772359200000-k3x9qa",
			"Trust Score: 31/100",
			"Leaked IP:   190.202.3.4",
			"[>] via 10.1.2.3",
			"chrome/windows",
			"via wifi",
			"[!!] HIGH WebRTC Address Leak",
			"[!] MEDIUM Timezone Mismatch",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
		if strings.Contains(output, "[wifi]") {
			t.Error("readings are verbose only")
		}
	})

	t.Run("verbose mode includes readings and impacts", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf, WithVerbose(true)).Write(createTestRecord()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if !strings.Contains(output, "[wifi] 10.48000, -66.90000 +-30m geolocate") {
			t.Error("expected wifi reading in verbose output")
		}
		if !strings.Contains(output, "Impact:") {
			t.Error("expected impacts in verbose output")
		}
	})

	t.Run("record without location", func(t *testing.T) {
		t.Parallel()

		r := createTestRecord()
		r.BestLocation = nil
		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).Write(r); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "No location") {
			t.Error("expected no location note")
		}
	})

	t.Run("writes history", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).WriteHistory(createTestHistory()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		for _, want := range []string{"AUDIT audit-42", "Accesses:    2", "Unique IPs:  1", "access-1772355600000-aaaaaa", "downloaded"} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
	})

	t.Run("writes empty history", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		h := &model.History{Scope: model.ScopeLink, ID: "link-1"}
		if _, err := NewSimpleWriter(&buf).WriteHistory(h); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "No records") || strings.Contains(buf.String(), "STATISTICS") {
			t.Errorf("unexpected output:\n%s", buf.String())
		}
	})

	t.Run("writes comparison", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).WriteComparison(createTestComparison()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		for _, want := range []string{"Same device:     yes", "Same public IP:  no", "505.2 km", "26h0m0s"} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
	})
}

// TestJSONWriter tests the JSON report writer.
func TestJSONWriter(t *testing.T) {
	t.Parallel()

	t.Run("outputs the stored record", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf).Write(createTestRecord()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var got model.ForensicRecord
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("output is not valid JSON: %v", err)
		}
		if got.AccessID != "access-1772359200000-k3x9qa" || got.TrustScore != 31 {
			t.Errorf("unexpected record %+v", got)
		}
		if strings.Count(buf.String(), "\n") != 1 {
			t.Error("expected compact output by default")
		}
	})

	t.Run("pretty print with indent", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf, WithPrettyPrint()).WriteHistory(createTestHistory()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "\n  \"scope\": \"audit\"") {
			t.Errorf("expected indented output, got:\n%s", buf.String())
		}
	})

	t.Run("uses custom prefix and indent", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf, WithIndent(">", "\t")).WriteComparison(createTestComparison()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), ">\t\"sameDevice\": true") {
			t.Errorf("expected prefixed output, got:\n%s", buf.String())
		}
	})
}

// TestFullJSONWriter tests the wrapped JSON report.
func TestFullJSONWriter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if _, err := NewFullJSONWriter(&buf, "1.2.3").Write(createTestRecord()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got JSONReport
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if got.Version != "1.2.3" {
		t.Errorf("Version = %q, want 1.2.3", got.Version)
	}
	if got.Record == nil || got.Summary == nil {
		t.Fatal("expected record and summary")
	}
	if got.Summary.HighCount != 2 || got.Summary.MediumCount != 1 {
		t.Errorf("unexpected summary counts %+v", got.Summary)
	}
	if len(got.Summary.Warnings) != 1 || got.Summary.Warnings[0] != model.WarningProxyChain {
		t.Errorf("unexpected warnings %v", got.Summary.Warnings)
	}
}

// TestMarkdownWriter tests the Markdown report writer.
func TestMarkdownWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes record", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(createTestRecord()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		for _, want := range []string{
			"# Forensic Access Report",
			"## Network Identity",
			"ProtonVPN (AS9009)",
			"[!WARNING]",
			"### 🟠 High",
			"geolocate",
			"Recommendation",
			"<details>",
			"https://github.com/nao1215/linkforensics",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
	})

	t.Run("includes caution alert for unresolved identity", func(t *testing.T) {
		t.Parallel()

		r := createTestRecord()
		r.AddFlag(model.FlagPublicIPUnresolved, "")
		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(r); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "[!CAUTION]") {
			t.Error("expected CAUTION alert for critical findings")
		}
	})

	t.Run("record without findings", func(t *testing.T) {
		t.Parallel()

		r := createTestRecord()
		r.ComplianceFlags = nil
		r.BestLocation = nil
		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(r); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		output := buf.String()
		if !strings.Contains(output, "[!TIP]") || !strings.Contains(output, "No compliance flags.") {
			t.Error("expected tip for a record without findings")
		}
		if !strings.Contains(output, "No location strategy answered.") {
			t.Error("expected no location note")
		}
	})

	t.Run("writes history with pie chart", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).WriteHistory(createTestHistory()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		output := buf.String()
		for _, want := range []string{"# Access History", "## Statistics", "Unique IPs", "pie", "wifi"} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
	})

	t.Run("writes comparison", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).WriteComparison(createTestComparison()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		output := buf.String()
		if !strings.Contains(output, "505.2 km") || !strings.Contains(output, "[!IMPORTANT]") {
			t.Errorf("unexpected output:\n%s", output)
		}
	})
}

// TestMultiWriter tests writing to several writers.
func TestMultiWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes to all writers", func(t *testing.T) {
		t.Parallel()

		var text, js bytes.Buffer
		mw := NewMultiWriter(NewSimpleWriter(&text), NewJSONWriter(&js))

		n, err := mw.Write(createTestRecord())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != text.Len()+js.Len() {
			t.Errorf("total bytes = %d, want %d", n, text.Len()+js.Len())
		}
		if text.Len() == 0 || js.Len() == 0 {
			t.Error("expected both writers to receive output")
		}

		if _, err := mw.WriteHistory(createTestHistory()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := mw.WriteComparison(createTestComparison()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("handles empty writers list", func(t *testing.T) {
		t.Parallel()

		n, err := NewMultiWriter().Write(createTestRecord())
		if err != nil || n != 0 {
			t.Errorf("expected (0, nil), got (%d, %v)", n, err)
		}
	})
}

// TestTruncateString tests the string truncation helper.
func TestTruncateString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is a longer string", 10, "this is..."},
		{"abc", 3, "abc"},
		{"abcd", 3, "abc"},
		{"ab", 5, "ab"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			result := truncateString(tt.input, tt.maxLen)
			if result != tt.expected {
				t.Errorf("truncateString(%q, %d) = %q, want %q",
					tt.input, tt.maxLen, result, tt.expected)
			}
		})
	}
}
