package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/nao1215/linkforensics/internal/model"
	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
)

// MarkdownWriter outputs reports in Markdown format.
// This format is designed for case files and tickets: tables, GitHub
// alerts for the most severe finding and a mermaid chart of location
// sources in history reports.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the record in Markdown format.
func (w *MarkdownWriter) Write(record *model.ForensicRecord) (int, error) {
	md := markdown.NewMarkdown(w.output)
	summary := w.summary(record)

	w.writeHeader(md, summary)
	w.writeNetwork(md, record)
	w.writeDevice(md, record)
	w.writeLocation(md, record)
	w.writeSession(md, record)
	w.writeFindings(md, summary)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the report header with record identification.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, s *model.Summary) {
	md.H1("Forensic Access Report")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Access ID", "`" + s.AccessID + "`"},
			{"Link ID", "`" + s.LinkID + "`"},
			{"Resource Audit ID", "`" + s.ResourceAuditID + "`"},
			{"Captured", formatTime(&s.CapturedAt)},
			{"Trust Score", strconv.Itoa(s.TrustScore) + " / 100"},
		},
	})
	md.PlainText("")
	w.writeAlert(md, s)
}

// writeAlert writes an alert for the most severe finding.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, s *model.Summary) {
	switch {
	case s.CriticalCount > 0:
		md.Cautionf("Identification failed. %d critical finding(s); the record cannot be tied to a network origin.", s.CriticalCount)
	case s.HighCount > 0:
		md.Warningf("The visible identity is likely masked. %d high severity finding(s).", s.HighCount)
	case s.MediumCount > 0:
		md.Importantf("%d finding(s) reduce confidence in the captured identity.", s.MediumCount)
	case s.TotalFindings() > 0:
		md.Note("Only informational findings.")
	default:
		md.Tip("No finding weakens this identification.")
	}
	md.PlainText("")
}

// writeNetwork writes the network identity section.
func (w *MarkdownWriter) writeNetwork(md *markdown.Markdown, r *model.ForensicRecord) {
	n := r.NetworkIdentity
	md.H2("Network Identity")
	md.PlainText("")

	vpn := yesNo(n.VPNDetected)
	if n.VPNProvider != "" {
		vpn += " (" + n.VPNProvider + ")"
	}
	rows := [][]string{
		{"Public IP", "`" + n.PublicIP + "`"},
		{"Local IP", orDash(n.LocalIP)},
		{"Leaked Public IP", orDash(n.LeakedPublicIP)},
		{"ISP", orDash(n.ISP)},
		{"ASN", orDash(n.ASN)},
		{"Country", orDash(n.Country)},
		{"IP Timezone", orDash(n.IPTimezone)},
		{"VPN", vpn},
		{"Connection", orDash(n.ConnectionType) + " / " + orDash(n.EffectiveType)},
	}
	md.Table(markdown.TableSet{Header: []string{"Field", "Value"}, Rows: rows})
	md.PlainText("")

	if len(n.ProxyIPs) > 0 {
		md.PlainText("Forwarded through:")
		md.PlainText("")
		md.BulletList(n.ProxyIPs...)
		md.PlainText("")
	}
}

// writeDevice writes the device fingerprint section.
func (w *MarkdownWriter) writeDevice(md *markdown.Markdown, r *model.ForensicRecord) {
	f := r.DeviceFingerprint
	ua := model.ParseUserAgent(f.UserAgent)

	md.H2("Device Fingerprint")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Field", "Value"},
		Rows: [][]string{
			{"Canvas Hash", "`" + f.CanvasHash + "`"},
			{"Digest", "`" + truncateString(orDash(f.Digest), 24) + "`"},
			{"Screen", fmt.Sprintf("%dx%d, %d bit, ratio %.2g", f.Screen.Width, f.Screen.Height, f.Screen.ColorDepth, f.Screen.PixelRatio)},
			{"Timezone", orDash(f.Timezone)},
			{"Platform", orDash(f.Platform)},
			{"Browser / OS", ua.Browser + " / " + ua.OS},
			{"CPU Threads", strconv.Itoa(f.HardwareConcurrency)},
		},
	})
	md.PlainText("")
	if f.UserAgent != "" {
		md.Details("User-Agent", f.UserAgent)
		md.PlainText("")
	}
}

// writeLocation writes the best location with every reading that took part.
func (w *MarkdownWriter) writeLocation(md *markdown.Markdown, r *model.ForensicRecord) {
	md.H2("Location")
	md.PlainText("")

	loc := r.BestLocation
	if loc == nil {
		md.PlainText("No location strategy answered.")
		md.PlainText("")
		return
	}

	md.PlainText(model.DescribeLocation(loc))
	md.PlainText("")

	rows := make([][]string, 0, len(loc.Sources))
	for _, m := range loc.Sources {
		rd, ok := loc.Readings[m]
		if !ok {
			continue
		}
		rows = append(rows, []string{
			string(m),
			fmt.Sprintf("%.5f, %.5f", rd.Latitude, rd.Longitude),
			fmt.Sprintf("%.0f m", rd.AccuracyMeters),
			orDash(rd.Provider),
		})
	}
	if len(rows) > 0 {
		md.Table(markdown.TableSet{
			Header: []string{"Method", "Position", "Accuracy", "Provider"},
			Rows:   rows,
		})
		md.PlainText("")
	}
}

// writeSession writes the session section.
func (w *MarkdownWriter) writeSession(md *markdown.Markdown, r *model.ForensicRecord) {
	s := r.Session
	md.H2("Session")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Field", "Value"},
		Rows: [][]string{
			{"Start", formatTime(&s.Start)},
			{"End", formatTime(s.End)},
			{"Referrer", orDash(s.Referrer)},
			{"Downloaded", yesNo(s.Downloaded)},
			{"Download Time", formatTime(s.DownloadTime)},
			{"Visibility", orDash(s.PageVisibility)},
			{"Focus Events", strconv.Itoa(len(r.FocusEvents))},
		},
	})
	md.PlainText("")
}

// writeFindings writes findings grouped by severity, then warnings.
func (w *MarkdownWriter) writeFindings(md *markdown.Markdown, s *model.Summary) {
	md.H2("Findings")
	md.PlainText("")

	if !s.HasFindings() {
		md.PlainText("No compliance flags.")
		md.PlainText("")
	}

	severities := []struct {
		level  model.Severity
		header string
	}{
		{model.SeverityCritical, "### 🔴 Critical"},
		{model.SeverityHigh, "### 🟠 High"},
		{model.SeverityMedium, "### 🟡 Medium"},
		{model.SeverityLow, "### 🔵 Low"},
		{model.SeverityInfo, "### ⚪ Info"},
	}
	for _, sev := range severities {
		findings := s.GetFindingsBySeverity(sev.level)
		if len(findings) == 0 {
			continue
		}
		md.PlainText(sev.header)
		md.PlainText("")

		rows := make([][]string, len(findings))
		for i, f := range findings {
			rows[i] = []string{f.Title, truncateString(orDash(f.Value), 50), truncateString(orDash(f.Recommendation), 80)}
		}
		md.Table(markdown.TableSet{Header: []string{"Title", "Value", "Recommendation"}, Rows: rows})
		md.PlainText("")
		for _, f := range findings {
			if f.Impact != "" {
				md.Details(f.Title, f.Impact)
			}
		}
		md.PlainText("")
	}

	if len(s.Warnings) > 0 {
		md.PlainText("### Suspicious Activity")
		md.PlainText("")
		md.BulletList(s.Warnings...)
		md.PlainText("")
	}
}

// WriteHistory outputs the history in Markdown format.
func (w *MarkdownWriter) WriteHistory(h *model.History) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Access History")
	md.PlainText("")
	md.PlainTextf("%s `%s`", h.Scope, h.ID)
	md.PlainText("")

	if h.Stats != nil {
		md.H2("Statistics")
		md.PlainText("")
		md.Table(markdown.TableSet{
			Header: []string{"Metric", "Value"},
			Rows: [][]string{
				{"Total Accesses", strconv.Itoa(h.Stats.TotalAccesses)},
				{"Unique IPs", strconv.Itoa(h.Stats.UniqueIPs)},
				{"Downloads", strconv.Itoa(h.Stats.Downloads)},
				{"Last Access", formatTime(h.Stats.LastAccess)},
			},
		})
		md.PlainText("")
	}

	md.H2("Records")
	md.PlainText("")
	if len(h.Records) == 0 {
		md.PlainText("No records.")
		md.PlainText("")
	} else {
		rows := make([][]string, len(h.Records))
		for i, r := range h.Records {
			method := "-"
			if r.BestLocation != nil {
				method = string(r.BestLocation.Method)
			}
			rows[i] = []string{
				"`" + r.AccessID + "`",
				formatTime(&r.CreatedAt),
				r.NetworkIdentity.PublicIP,
				strconv.Itoa(r.TrustScore),
				method,
				yesNo(r.Session.Downloaded),
			}
		}
		md.Table(markdown.TableSet{
			Header: []string{"Access ID", "Captured", "Public IP", "Trust", "Location", "Downloaded"},
			Rows:   rows,
		})
		md.PlainText("")
		w.writeMethodChart(md, h.Records)
	}

	w.writeFooter(md)
	return len(md.String()), md.Build()
}

// writeMethodChart writes a mermaid pie chart of the location methods that
// won across the records.
func (w *MarkdownWriter) writeMethodChart(md *markdown.Markdown, records []*model.ForensicRecord) {
	counts := make(map[model.Method]uint64)
	var unlocated uint64
	for _, r := range records {
		if r.BestLocation == nil {
			unlocated++
			continue
		}
		counts[r.BestLocation.Method]++
	}

	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Location Method"),
		piechart.WithShowData(true),
	)
	for _, m := range model.AllMethods {
		if counts[m] > 0 {
			chart.LabelAndIntValue(string(m), counts[m])
		}
	}
	if unlocated > 0 {
		chart.LabelAndIntValue("none", unlocated)
	}

	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// WriteComparison outputs the comparison in Markdown format.
func (w *MarkdownWriter) WriteComparison(c *model.Comparison) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Access Comparison")
	md.PlainText("")
	md.PlainTextf("`%s` and `%s`", c.A, c.B)
	md.PlainText("")

	distance := "-"
	if c.DistanceKm != nil {
		distance = fmt.Sprintf("%.1f km", *c.DistanceKm)
	}
	md.Table(markdown.TableSet{
		Header: []string{"Check", "Result"},
		Rows: [][]string{
			{"Same Canvas Hash", yesNo(c.SameCanvas)},
			{"Same Fingerprint Digest", yesNo(c.SameDigest)},
			{"Same Public IP", yesNo(c.SamePublicIP)},
			{"Same ISP", yesNo(c.SameISP)},
			{"Distance", distance},
			{"Interval", c.Interval.String()},
		},
	})
	md.PlainText("")

	if c.SameDevice() {
		md.Importantf("Both accesses were made from the same device.")
	} else {
		md.Note("The fingerprints differ.")
	}
	md.PlainText("")

	w.writeFooter(md)
	return len(md.String()), md.Build()
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [linkforensics](https://github.com/nao1215/linkforensics)*")
}
