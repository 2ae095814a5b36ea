package model

import (
	"fmt"
	"time"
)

// Summary is a condensed, human-readable view of a ForensicRecord.
//
// It is kept separate from ForensicRecord so that presentation concerns
// (counts, titles, recommendations) never leak into the stored data.
type Summary struct {
	AccessID        string    `json:"accessId"`
	LinkID          string    `json:"linkId"`
	ResourceAuditID string    `json:"resourceAuditId"`
	CapturedAt      time.Time `json:"capturedAt"`

	PublicIP   string `json:"publicIP"`
	TrustScore int    `json:"trustScore"`

	// Location is a one-line description of the best location, or empty.
	Location string `json:"location,omitempty"`

	CriticalCount int `json:"criticalCount"`
	HighCount     int `json:"highCount"`
	MediumCount   int `json:"mediumCount"`
	LowCount      int `json:"lowCount"`
	InfoCount     int `json:"infoCount"`

	// Findings expands each compliance flag with impact and recommendation.
	Findings []Finding `json:"findings,omitempty"`

	// Warnings are suspicious-activity notes.
	Warnings []string `json:"warnings,omitempty"`
}

// Finding is a compliance flag expanded for presentation.
type Finding struct {
	Code           string   `json:"code"`
	Severity       Severity `json:"severity"`
	Title          string   `json:"title"`
	Impact         string   `json:"impact,omitempty"`
	Recommendation string   `json:"recommendation,omitempty"`
	Value          string   `json:"value,omitempty"`
}

// NewSummary builds a Summary from a record. now is used to evaluate
// sessions that have not ended yet.
func NewSummary(r *ForensicRecord, now time.Time) *Summary {
	s := &Summary{
		AccessID:        r.AccessID,
		LinkID:          r.LinkID,
		ResourceAuditID: r.ResourceAuditID,
		CapturedAt:      r.CreatedAt,
		PublicIP:        r.NetworkIdentity.PublicIP,
		TrustScore:      r.TrustScore,
		Location:        DescribeLocation(r.BestLocation),
		Warnings:        DetectSuspiciousActivity(r, now),
	}

	for _, f := range r.ComplianceFlags {
		info := GetFlagInfo(f.Code)
		s.Findings = append(s.Findings, Finding{
			Code:           f.Code,
			Severity:       f.Severity,
			Title:          info.Title,
			Impact:         info.Impact,
			Recommendation: info.Recommendation,
			Value:          f.Value,
		})
	}
	s.countBySeverity()

	return s
}

// DescribeLocation renders a location as "method ±accuracy (confidence%)".
func DescribeLocation(loc *BestLocation) string {
	if loc == nil {
		return ""
	}
	return fmt.Sprintf("%.5f, %.5f via %s ±%.0fm (confidence %d%%)",
		loc.Latitude, loc.Longitude, loc.Method, loc.AccuracyMeters, loc.Confidence)
}

// countBySeverity counts findings by severity level.
func (s *Summary) countBySeverity() {
	for _, f := range s.Findings {
		switch f.Severity {
		case SeverityCritical:
			s.CriticalCount++
		case SeverityHigh:
			s.HighCount++
		case SeverityMedium:
			s.MediumCount++
		case SeverityLow:
			s.LowCount++
		case SeverityInfo:
			s.InfoCount++
		}
	}
}

// TotalFindings returns the total number of findings.
func (s *Summary) TotalFindings() int {
	return len(s.Findings)
}

// HasFindings returns true if there are any findings.
func (s *Summary) HasFindings() bool {
	return len(s.Findings) > 0
}

// GetFindingsBySeverity returns findings filtered by severity.
func (s *Summary) GetFindingsBySeverity(severity Severity) []Finding {
	var result []Finding
	for _, f := range s.Findings {
		if f.Severity == severity {
			result = append(result, f)
		}
	}
	return result
}
