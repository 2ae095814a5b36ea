// Package model defines the core data structures used throughout linkforensics.
//
// This package contains the following main types:
//   - ForensicRecord: One captured access to a shared resource
//   - NetworkIdentity, DeviceFingerprint, BestLocation: the signal groups of a record
//   - RecordUpdate: A partial update applied by session tracking
//   - ComplianceFlag: A severity-ranked note attached to a record for audit review
//   - Summary: A condensed, human-readable view of a record
//
// Models are kept in their own package so that the probes, the store, the
// reports and the HTTP server can share them without import cycles.
// Every type serializes to JSON with the field names used by the capture API.
package model
