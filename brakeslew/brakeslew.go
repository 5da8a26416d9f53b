// Package brakeslew shapes the deceleration request sent while braking.
//
// The filter tracks its target with a damped step: each call covers half of
// the remaining gap, but never more than ChangeLimit and never past the
// target. Release (a target above the current value) is ignored while the
// gap is within Deadband so that noise on the request does not make the
// brakes chatter.
package brakeslew

// Params configures the filter.
type Params struct {
	ChangeLimit float64 // m/s^2 per step
	Deadband    float64 // m/s^2
}

// Step returns the next filtered deceleration. A nil last means the filter
// was just entered and has no history; the first value is then half of the
// target, and never positive.
func Step(target float64, last *float64, p Params) float64 {
	if last == nil {
		return min(0, target/2)
	}

	current := *last

	switch {
	case target < current:
		step := min(p.ChangeLimit, (current-target)/2)
		return max(current-step, target)
	case target-current > p.Deadband:
		step := min(p.ChangeLimit, (target-current)/2)
		return min(current+step, target)
	default:
		return current
	}
}
