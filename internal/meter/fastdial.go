// Package meter turns dial positions into meter readings: the decade dials
// compose the register reading and the fast dial drives a running total and
// flow rate.
package meter

// Revolution is the fast dial's travel per turn, in cubic feet.
const Revolution = 2.0

// RunningPosition maps a fast dial position in [0,10] onto its travel in
// cubic feet. The fast dial turns against the scale it is read on, so 0
// maps to Revolution and 10 maps to 0.
func RunningPosition(pos float64) float64 {
	switch {
	case pos <= 0:
		return Revolution
	case pos >= 10:
		return 0
	}
	return Revolution - pos*Revolution/10
}

// Unwrap adds one revolution to candidate when it sits at least half a
// revolution below last: the dial is assumed to have completed a turn rather
// than run backwards. Usage never drops more than one revolution between
// samples.
func Unwrap(candidate, last float64) float64 {
	if candidate+Revolution/2 <= last {
		return candidate + Revolution
	}
	return candidate
}
