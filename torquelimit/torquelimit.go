// Package torquelimit bounds the steering torque sent to the steering
// actuator.
package torquelimit

// Params describes how fast and how far the commanded torque may move.
type Params struct {
	// DeltaUp is the largest per-step change that increases the torque
	// magnitude.
	DeltaUp int32

	// DeltaDown is the largest per-step change that decreases the torque
	// magnitude.
	DeltaDown int32

	// MaxValue bounds the magnitude of the torque.
	MaxValue int32

	// OverrideAllowance is how far the command may run ahead of the torque
	// the actuator reports. When the driver opposes the command, the
	// measured torque pulls the allowed window toward zero.
	OverrideAllowance int32
}

// MaxDelta returns the largest change Limit can make in one step.
func (p Params) MaxDelta() int32 {
	if p.DeltaUp > p.DeltaDown {
		return p.DeltaUp
	}

	return p.DeltaDown
}

// Limit returns the torque to apply given the requested torque, the torque
// applied at the previous step and the torque measured at the actuator.
//
// The result never differs from previous by more than p.MaxDelta() and never
// exceeds p.MaxValue in magnitude.
func Limit(requested, previous, measured int32, p Params) int32 {
	upper := min(max(measured+p.OverrideAllowance, p.OverrideAllowance), p.MaxValue)
	lower := max(min(measured-p.OverrideAllowance, -p.OverrideAllowance), -p.MaxValue)
	torque := clip(requested, lower, upper)

	if previous > 0 {
		torque = clip(torque,
			max(previous-p.DeltaDown, -p.DeltaUp),
			previous+p.DeltaUp)
	} else {
		torque = clip(torque,
			previous-p.DeltaUp,
			min(previous+p.DeltaDown, p.DeltaUp))
	}

	return clip(torque, -p.MaxValue, p.MaxValue)
}

func clip(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}

	if v > hi {
		return hi
	}

	return v
}
