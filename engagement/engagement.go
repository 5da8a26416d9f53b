// Package engagement decides when lateral control is permitted.
//
// The machine drives a control bit that is sent to the steering actuator
// with every steering command. The bit follows the vehicle speed with
// hysteresis and is forced off by faults, by any gear other than drive, and
// for a cool-down period after every time it falls. Torque may flow only
// when the bit has been on for two consecutive ticks and the driver has
// engaged the assist.
package engagement

import "github.com/sarchlab/actuation/vehicle"

// State is the externally visible engagement state.
type State int

// Engagement states.
const (
	// Disabled is the quiescent state.
	Disabled State = iota

	// Enabling means the control bit is on but has not yet been confirmed
	// by the previous tick.
	Enabling

	// Enabled means torque may flow.
	Enabled

	// FaultCooldown means the bit fell recently and may not rise again
	// until the cool-down elapses.
	FaultCooldown
)

func (s State) String() string {
	switch s {
	case Disabled:
		return "disabled"
	case Enabling:
		return "enabling"
	case Enabled:
		return "enabled"
	case FaultCooldown:
		return "fault_cooldown"
	default:
		return "unknown"
	}
}

// Params are the calibration values of the machine.
type Params struct {
	// EnableSpeed is the speed at or above which the control bit rises.
	EnableSpeed float64

	// DisableSpeed is the speed below which the control bit falls. Between
	// DisableSpeed and EnableSpeed the bit keeps its previous value.
	DisableSpeed float64

	// CooldownTicks is the number of ticks after a falling edge during
	// which the bit may not rise.
	CooldownTicks uint64
}

// Inputs are sampled once per tick.
type Inputs struct {
	Tick           uint64
	Speed          float64
	Gear           vehicle.Gear
	FaultTemporary bool
	FaultPermanent bool
	Requested      bool
}

// History is the state the machine carries from one tick to the next.
//
// The zero value describes a fresh session: the bit is off and the last
// falling edge is at tick 0, so lateral control is not available until the
// cool-down has elapsed once.
type History struct {
	Current  bool
	Previous bool

	LastDisableTick uint64
}

// Decision is the outcome of one tick.
type Decision struct {
	ControlBit  bool
	Active      bool
	State       State
	FallingEdge bool
}

// Step advances the machine by one tick.
func Step(in Inputs, h History, p Params) (Decision, History) {
	bit := h.Current

	switch {
	case in.Speed >= p.EnableSpeed:
		bit = true
	case in.Speed < p.DisableSpeed:
		bit = false
	}

	faulted := in.FaultTemporary || in.FaultPermanent
	coolingDown := in.Tick-h.LastDisableTick < p.CooldownTicks
	if faulted || coolingDown || in.Gear != vehicle.GearDrive {
		bit = false
	}

	next := History{
		Current:         bit,
		Previous:        h.Current,
		LastDisableTick: h.LastDisableTick,
	}

	d := Decision{ControlBit: bit}

	if !bit && h.Current {
		d.FallingEdge = true
		next.LastDisableTick = in.Tick
	}

	d.Active = in.Requested && bit && h.Current
	d.State = stateOf(d, in, next, p)

	return d, next
}

func stateOf(d Decision, in Inputs, h History, p Params) State {
	switch {
	case d.Active:
		return Enabled
	case d.ControlBit && in.Requested:
		return Enabling
	case in.Tick-h.LastDisableTick < p.CooldownTicks:
		return FaultCooldown
	default:
		return Disabled
	}
}
