package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/linkforensics/internal/model"
)

// SimpleWriter outputs human-readable text reports for terminal display.
// It uses plain ASCII formatting so the output pipes cleanly to files.
type SimpleWriter struct {
	baseWriter

	// verbose adds finding impacts and every location reading.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the record in human-readable format.
func (w *SimpleWriter) Write(record *model.ForensicRecord) (int, error) {
	var sb strings.Builder
	summary := w.summary(record)

	writeBanner(&sb, "FORENSIC ACCESS REPORT")
	fmt.Fprintf(&sb, "Access ID:   %s\n", record.AccessID)
	fmt.Fprintf(&sb, "Link ID:     %s\n", record.LinkID)
	fmt.Fprintf(&sb, "Audit ID:    %s\n", record.ResourceAuditID)
	fmt.Fprintf(&sb, "Captured:    %s\n", formatTime(&record.CreatedAt))
	fmt.Fprintf(&sb, "Trust Score: %d/100\n\n", record.TrustScore)

	w.writeNetwork(&sb, record)
	w.writeDevice(&sb, record)
	w.writeLocation(&sb, record)
	w.writeSession(&sb, record)
	w.writeFindings(&sb, summary)
	writeFooter(&sb)

	return w.output.Write([]byte(sb.String()))
}

func (w *SimpleWriter) writeNetwork(sb *strings.Builder, r *model.ForensicRecord) {
	n := r.NetworkIdentity
	writeSection(sb, "NETWORK")
	fmt.Fprintf(sb, "  Public IP:   %s\n", n.PublicIP)
	if n.LocalIP != "" {
		fmt.Fprintf(sb, "  Local IP:    %s\n", n.LocalIP)
	}
	if n.LeakedPublicIP != "" {
		fmt.Fprintf(sb, "  Leaked IP:   %s\n", n.LeakedPublicIP)
	}
	fmt.Fprintf(sb, "  ISP / ASN:   %s / %s\n", orDash(n.ISP), orDash(n.ASN))
	fmt.Fprintf(sb, "  Country:     %s\n", orDash(n.Country))
	if n.VPNDetected {
		fmt.Fprintf(sb, "  VPN:         yes %s\n", n.VPNProvider)
	}
	for _, ip := range n.ProxyIPs {
		fmt.Fprintf(sb, "  [>] via %s\n", ip)
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeDevice(sb *strings.Builder, r *model.ForensicRecord) {
	f := r.DeviceFingerprint
	ua := model.ParseUserAgent(f.UserAgent)
	writeSection(sb, "DEVICE")
	fmt.Fprintf(sb, "  Canvas:      %s\n", f.CanvasHash)
	fmt.Fprintf(sb, "  Screen:      %dx%d\n", f.Screen.Width, f.Screen.Height)
	fmt.Fprintf(sb, "  Timezone:    %s\n", orDash(f.Timezone))
	fmt.Fprintf(sb, "  Browser/OS:  %s/%s\n", ua.Browser, ua.OS)
	if w.verbose {
		fmt.Fprintf(sb, "  Digest:      %s\n", orDash(f.Digest))
		fmt.Fprintf(sb, "  User-Agent:  %s\n", orDash(f.UserAgent))
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeLocation(sb *strings.Builder, r *model.ForensicRecord) {
	writeSection(sb, "LOCATION")
	loc := r.BestLocation
	if loc == nil {
		sb.WriteString("  No location\n\n")
		return
	}
	fmt.Fprintf(sb, "  %s\n", model.DescribeLocation(loc))
	if w.verbose {
		for _, m := range loc.Sources {
			if rd, ok := loc.Readings[m]; ok {
				fmt.Fprintf(sb, "  [%s] %.5f, %.5f +-%.0fm %s\n", m, rd.Latitude, rd.Longitude, rd.AccuracyMeters, rd.Provider)
			}
		}
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeSession(sb *strings.Builder, r *model.ForensicRecord) {
	s := r.Session
	writeSection(sb, "SESSION")
	fmt.Fprintf(sb, "  Start:       %s\n", formatTime(&s.Start))
	fmt.Fprintf(sb, "  End:         %s\n", formatTime(s.End))
	fmt.Fprintf(sb, "  Referrer:    %s\n", orDash(s.Referrer))
	fmt.Fprintf(sb, "  Downloaded:  %s\n", yesNo(s.Downloaded))
	fmt.Fprintf(sb, "  Focus:       %d events\n\n", len(r.FocusEvents))
}

func (w *SimpleWriter) writeFindings(sb *strings.Builder, s *model.Summary) {
	if !s.HasFindings() && len(s.Warnings) == 0 {
		return
	}
	writeSection(sb, "FINDINGS")
	for _, f := range s.Findings {
		fmt.Fprintf(sb, "[%s] %s %s\n", severityIndicator(f.Severity), f.Severity, f.Title)
		if f.Value != "" {
			fmt.Fprintf(sb, "    Value: %s\n", f.Value)
		}
		if w.verbose && f.Impact != "" {
			fmt.Fprintf(sb, "    Impact: %s\n", f.Impact)
		}
	}
	for _, warning := range s.Warnings {
		fmt.Fprintf(sb, "[?] %s\n", warning)
	}
	sb.WriteString("\n")
}

// WriteHistory outputs the history in human-readable format.
func (w *SimpleWriter) WriteHistory(h *model.History) (int, error) {
	var sb strings.Builder

	writeBanner(&sb, "ACCESS HISTORY")
	fmt.Fprintf(&sb, "%s %s\n\n", strings.ToUpper(h.Scope), h.ID)

	if st := h.Stats; st != nil {
		writeSection(&sb, "STATISTICS")
		fmt.Fprintf(&sb, "  Accesses:    %d\n", st.TotalAccesses)
		fmt.Fprintf(&sb, "  Unique IPs:  %d\n", st.UniqueIPs)
		fmt.Fprintf(&sb, "  Downloads:   %d\n", st.Downloads)
		fmt.Fprintf(&sb, "  Last Access: %s\n\n", formatTime(st.LastAccess))
	}

	writeSection(&sb, "RECORDS")
	if len(h.Records) == 0 {
		sb.WriteString("  No records\n")
	}
	for _, r := range h.Records {
		dl := ""
		if r.Session.Downloaded {
			dl = " downloaded"
		}
		fmt.Fprintf(&sb, "  %s  %s  %-15s trust=%3d%s\n",
			formatTime(&r.CreatedAt), r.AccessID, r.NetworkIdentity.PublicIP, r.TrustScore, dl)
	}
	sb.WriteString("\n")
	writeFooter(&sb)

	return w.output.Write([]byte(sb.String()))
}

// WriteComparison outputs the comparison in human-readable format.
func (w *SimpleWriter) WriteComparison(c *model.Comparison) (int, error) {
	var sb strings.Builder

	writeBanner(&sb, "ACCESS COMPARISON")
	fmt.Fprintf(&sb, "A: %s\nB: %s\n\n", c.A, c.B)
	fmt.Fprintf(&sb, "  Same device:     %s\n", yesNo(c.SameDevice()))
	fmt.Fprintf(&sb, "    canvas hash:   %s\n", yesNo(c.SameCanvas))
	fmt.Fprintf(&sb, "    digest:        %s\n", yesNo(c.SameDigest))
	fmt.Fprintf(&sb, "  Same public IP:  %s\n", yesNo(c.SamePublicIP))
	fmt.Fprintf(&sb, "  Same ISP:        %s\n", yesNo(c.SameISP))
	if c.DistanceKm != nil {
		fmt.Fprintf(&sb, "  Distance:        %.1f km\n", *c.DistanceKm)
	} else {
		sb.WriteString("  Distance:        -\n")
	}
	fmt.Fprintf(&sb, "  Interval:        %s\n\n", c.Interval)
	writeFooter(&sb)

	return w.output.Write([]byte(sb.String()))
}

// severityIndicator returns a visual indicator for the severity level.
func severityIndicator(severity model.Severity) string {
	switch severity {
	case model.SeverityCritical:
		return "!!!"
	case model.SeverityHigh:
		return "!!"
	case model.SeverityMedium:
		return "!"
	case model.SeverityLow:
		return "-"
	case model.SeverityInfo:
		return "i"
	default:
		return "?"
	}
}

func writeBanner(sb *strings.Builder, title string) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	pad := (70 - len(title)) / 2
	sb.WriteString(strings.Repeat(" ", pad) + title + "\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")
}

func writeSection(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString(title + "\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
}

func writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("Report generated by linkforensics\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}
