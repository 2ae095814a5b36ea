package model

import "time"

// Stats summarizes the accesses to one resource.
type Stats struct {
	AuditID       string     `json:"auditId"`
	TotalAccesses int        `json:"totalAccesses"`
	UniqueIPs     int        `json:"uniqueIPs"`
	Downloads     int        `json:"downloads"`
	LastAccess    *time.Time `json:"lastAccess,omitempty"`
}

// History scopes.
const (
	ScopeAudit = "audit"
	ScopeLink  = "link"
)

// History is the list of records of a resource or a link, newest first.
type History struct {
	Scope   string            `json:"scope"`
	ID      string            `json:"id"`
	Records []*ForensicRecord `json:"records"`

	// Stats is set for audit histories only.
	Stats *Stats `json:"stats,omitempty"`
}
