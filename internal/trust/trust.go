// Package trust reduces the risk and corroboration signals of a capture to a
// single 0-100 score.
//
// The model is additive: it starts at Baseline, subtracts a fixed penalty
// for every risk signal that fired, adds a bonus for every corroborating
// location signal and clamps the sum. A missing signal never lowers the
// score; only signals that actually fired count.
package trust

import "github.com/nao1215/linkforensics/internal/model"

// Score bounds and adjustments.
const (
	Baseline = 100
	Min      = 0
	Max      = 100

	VPNPenalty              = -30
	TimezoneMismatchPenalty = -20
	WebRTCLeakPenalty       = -25
	TCPSuspiciousPenalty    = -15
	WiFiLocationBonus       = 10
	HybridLocationBonus     = 15

	// ConfidenceDivisor turns location confidence (0-100) into at most +25.
	ConfidenceDivisor = 4
)

// Flags are the inputs of the scorer.
type Flags = model.Signals

// Adjustment is one term of the score.
type Adjustment struct {
	Reason string `json:"reason"`
	Points int    `json:"points"`
}

// Breakdown returns the terms that apply to f, penalties first.
// Terms worth zero points are omitted.
func Breakdown(f Flags) []Adjustment {
	var adj []Adjustment
	add := func(on bool, reason string, points int) {
		if on && points != 0 {
			adj = append(adj, Adjustment{Reason: reason, Points: points})
		}
	}
	add(f.VPNDetected, "vpn or proxy network", VPNPenalty)
	add(f.TimezoneMismatch, "timezone does not match ip country", TimezoneMismatchPenalty)
	add(f.WebRTCLeak, "webrtc leaked a different public ip", WebRTCLeakPenalty)
	add(f.TCPSuspicious, "connection timing looks tunneled", TCPSuspiciousPenalty)
	add(f.WiFiLocation, "wifi location obtained", WiFiLocationBonus)
	add(f.HybridLocation, "location corroborated by several sources", HybridLocationBonus)
	add(true, "location confidence", confidenceBonus(f.Confidence))
	return adj
}

// Score computes the clamped trust score. It is a pure function.
func Score(f Flags) int {
	score := Baseline
	for _, a := range Breakdown(f) {
		score += a.Points
	}
	return clamp(score)
}

func confidenceBonus(confidence int) int {
	if confidence <= 0 {
		return 0
	}
	return min(confidence, 100) / ConfidenceDivisor
}

func clamp(v int) int {
	return max(Min, min(Max, v))
}
