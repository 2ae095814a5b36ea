package model

import "time"

// Comparison relates two records, usually to decide whether two accesses
// came from the same person.
type Comparison struct {
	A string `json:"accessIdA"`
	B string `json:"accessIdB"`

	// SameCanvas compares rendered canvas hashes. Unavailable hashes never match.
	SameCanvas bool `json:"sameCanvas"`

	// SameDigest compares the full attribute digest.
	SameDigest bool `json:"sameDigest"`

	// SamePublicIP compares resolved public IPs. Unknown IPs never match.
	SamePublicIP bool `json:"samePublicIP"`

	// SameISP is set when both ISPs are known and equal.
	SameISP bool `json:"sameISP"`

	// DistanceKm is the distance between best locations, nil unless both
	// records were located.
	DistanceKm *float64 `json:"distanceKm,omitempty"`

	// Interval is the absolute time between the two accesses.
	Interval time.Duration `json:"interval"`
}

// SameDevice reports whether the fingerprints point to one device.
func (c *Comparison) SameDevice() bool {
	return c.SameCanvas || c.SameDigest
}

// Compare relates a and b.
func Compare(a, b *ForensicRecord) *Comparison {
	c := &Comparison{A: a.AccessID, B: b.AccessID}

	ca, cb := a.DeviceFingerprint.CanvasHash, b.DeviceFingerprint.CanvasHash
	c.SameCanvas = ca != "" && ca != CanvasUnavailable && ca == cb

	da, db := a.DeviceFingerprint.Digest, b.DeviceFingerprint.Digest
	c.SameDigest = da != "" && da == db

	ipa, ipb := a.NetworkIdentity.PublicIP, b.NetworkIdentity.PublicIP
	c.SamePublicIP = ipa != "" && ipa != PublicIPUnknown && ipa == ipb

	ia, ib := a.NetworkIdentity.ISP, b.NetworkIdentity.ISP
	c.SameISP = ia != "" && ia == ib

	if la, lb := a.BestLocation, b.BestLocation; la != nil && lb != nil {
		d := Distance(la.Latitude, la.Longitude, lb.Latitude, lb.Longitude)
		c.DistanceKm = &d
	}

	c.Interval = b.CreatedAt.Sub(a.CreatedAt)
	if c.Interval < 0 {
		c.Interval = -c.Interval
	}
	return c
}
