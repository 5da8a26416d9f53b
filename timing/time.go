// Package timing provides a simulated clock for driving the control loop
// without real time.
//
// A SerialEngine pops events in cycle order and hands them to their
// handlers. A TickingComponent re-schedules itself at a fixed interval for
// as long as its Ticker reports progress.
package timing

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// VTimeInCycle is a point on the simulated timeline, in engine cycles.
type VTimeInCycle uint64

// Freq is a frequency in Hz.
type Freq float64

// Frequency units.
const (
	Hz  Freq = 1
	KHz Freq = 1e3
	MHz Freq = 1e6
)

var (
	// ErrZeroFrequency is returned when a frequency of zero is used.
	ErrZeroFrequency = errors.New("timing: frequency cannot be zero")

	// ErrNotAligned is returned when one frequency is not an integer
	// multiple of another.
	ErrNotAligned = errors.New("timing: frequencies are not aligned")
)

// Period returns the time between two consecutive ticks.
func (f Freq) Period() time.Duration {
	if f <= 0 {
		panic("timing: frequency must be positive")
	}

	return time.Duration(float64(time.Second) / float64(f))
}

// CyclesPerTick returns how many cycles of f elapse in one tick of slower.
func (f Freq) CyclesPerTick(slower Freq) (VTimeInCycle, error) {
	if f == 0 || slower == 0 {
		return 0, ErrZeroFrequency
	}

	ratio := float64(f) / float64(slower)
	rounded := math.Round(ratio)

	if rounded < 1 || math.Abs(ratio-rounded) > 1e-9*ratio {
		return 0, fmt.Errorf("%w: %g Hz is not a multiple of %g Hz",
			ErrNotAligned, float64(f), float64(slower))
	}

	return VTimeInCycle(rounded), nil
}

// Duration converts a number of cycles of f into wall-clock time.
func (f Freq) Duration(cycles VTimeInCycle) time.Duration {
	return time.Duration(cycles) * f.Period()
}
