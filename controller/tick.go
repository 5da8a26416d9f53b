// Package controller runs one fixed-period tick of the actuation loop.
//
// Each tick advances the engagement machine, rate-limits the steering
// torque, turns button requests into presses, shapes the longitudinal
// output, and emits the periodic housekeeping messages that are due. Every
// stream runs on its own cadence, counted in ticks.
package controller

import (
	"math"

	"github.com/sarchlab/actuation/brakeslew"
	"github.com/sarchlab/actuation/buttons"
	"github.com/sarchlab/actuation/calibration"
	"github.com/sarchlab/actuation/engagement"
	"github.com/sarchlab/actuation/longitudinal"
	"github.com/sarchlab/actuation/torquelimit"
	"github.com/sarchlab/actuation/vehicle"
)

// LoopState is everything the loop remembers between ticks. It lives for
// one vehicle session and is only mutated by Tick.
type LoopState struct {
	TickIndex        uint64
	LastAppliedSteer int32

	// Lateral holds the control bit history and the tick of the last
	// falling edge.
	Lateral engagement.History

	// LastBrake is the filtered deceleration, or nil outside braking mode.
	LastBrake *float64

	LastButtonSampleID int
	HudCount           uint64
}

// NewLoopState returns the state of a fresh session.
func NewLoopState() *LoopState {
	return &LoopState{LastButtonSampleID: -1}
}

// Clone returns a deep copy of the state.
func (s *LoopState) Clone() LoopState {
	c := *s
	if s.LastBrake != nil {
		v := *s.LastBrake
		c.LastBrake = &v
	}

	return c
}

// Result is the outcome of one tick.
type Result struct {
	Frame    uint64
	Commands []vehicle.ActuatorCommand

	// AppliedSteer is the steering torque most recently applied, for
	// read-back.
	AppliedSteer int32

	ControlBit  bool
	Active      bool
	State       engagement.State
	FallingEdge bool
}

// Tick runs one control period and returns the commands due in it.
func Tick(
	p calibration.Params,
	req vehicle.ControlRequest,
	snap vehicle.VehicleSnapshot,
	st *LoopState,
) Result {
	st.TickIndex++
	frame := st.TickIndex

	decision, lateral := engagement.Step(engagement.Inputs{
		Tick:           frame,
		Speed:          snap.Speed,
		Gear:           snap.Gear,
		FaultTemporary: snap.SteerFaultTemporary,
		FaultPermanent: snap.SteerFaultPermanent,
		Requested:      req.Enabled,
	}, st.Lateral, p.Engagement)
	st.Lateral = lateral

	cmds := make([]vehicle.ActuatorCommand, 0, 4)

	if due(frame, p.Cadence.Steer) {
		cmds = append(cmds, steer(p, req, snap, st, decision, frame))
	}

	press := buttons.Detect(snap.ButtonCounter, &st.LastButtonSampleID,
		req.Cancel, req.Resume)
	if press != nil {
		cmds = append(cmds, vehicle.CruiseButton{
			OnBus:   p.Buses.Button,
			Action:  press.Action,
			Counter: press.Counter,
		})
	}

	if p.Longitudinal && due(frame, p.Cadence.Longitudinal) {
		cmds = append(cmds, longitudinalCommand(p, req, snap, st, frame))
	}

	cmds = appendHousekeeping(cmds, p, st, decision, frame)

	return Result{
		Frame:        frame,
		Commands:     cmds,
		AppliedSteer: st.LastAppliedSteer,
		ControlBit:   decision.ControlBit,
		Active:       decision.Active,
		State:        decision.State,
		FallingEdge:  decision.FallingEdge,
	}
}

func due(frame, every uint64) bool {
	return every != 0 && frame%every == 0
}

// steer always goes through the limiter. An inactive loop requests zero
// torque, so the applied torque ramps down instead of dropping.
func steer(
	p calibration.Params,
	req vehicle.ControlRequest,
	snap vehicle.VehicleSnapshot,
	st *LoopState,
	decision engagement.Decision,
	frame uint64,
) vehicle.SteeringTorque {
	requested := int32(0)
	if decision.Active {
		fraction := math.Max(-1, math.Min(1, req.SteerFraction))
		requested = int32(math.Round(fraction * float64(p.Steer.MaxValue)))
	}

	applied := torquelimit.Limit(requested, st.LastAppliedSteer,
		snap.SteerTorqueMeasured, p.Steer)
	st.LastAppliedSteer = applied

	return vehicle.SteeringTorque{
		OnBus:      p.Buses.Lateral,
		Torque:     applied,
		ControlBit: decision.ControlBit,
		Counter:    frame / p.Cadence.Steer,
	}
}

func longitudinalCommand(
	p calibration.Params,
	req vehicle.ControlRequest,
	snap vehicle.VehicleSnapshot,
	st *LoopState,
	frame uint64,
) vehicle.LongitudinalTorque {
	cmd := vehicle.LongitudinalTorque{
		OnBus:   p.Buses.Longitudinal,
		Counter: frame / p.Cadence.Longitudinal,
	}

	switch longitudinal.Mode(req, snap, p.Long) {
	case vehicle.LongBrake:
		decel := brakeslew.Step(req.Accel, st.LastBrake, p.Brake)
		st.LastBrake = &decel

		cmd.Mode = vehicle.LongBrake
		cmd.Decel = decel
	case vehicle.LongAccel:
		st.LastBrake = nil

		cmd.Mode = vehicle.LongAccel
		cmd.Torque = longitudinal.EngineTorque(req, snap, p.Long)
	default:
		st.LastBrake = nil
	}

	return cmd
}

func appendHousekeeping(
	cmds []vehicle.ActuatorCommand,
	p calibration.Params,
	st *LoopState,
	decision engagement.Decision,
	frame uint64,
) []vehicle.ActuatorCommand {
	if due(frame, p.Cadence.Hud) {
		cmds = append(cmds, vehicle.HudStatus{
			OnBus:  p.Buses.Hud,
			Active: decision.Active,
			Count:  st.HudCount,
		})
		st.HudCount++
	}

	if due(frame, p.Cadence.KeepAlive) {
		cmds = append(cmds, vehicle.KeepAlive{
			OnBus:   p.Buses.Hud,
			Counter: frame / p.Cadence.KeepAlive,
		})
	}

	if due(frame, p.Cadence.Secondary) {
		cmds = append(cmds, vehicle.HudStatus{
			OnBus:     p.Buses.Hud,
			Active:    decision.Active,
			Secondary: true,
			Count:     frame / p.Cadence.Secondary,
		})
	}

	return cmds
}
