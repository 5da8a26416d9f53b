// Package canpack turns actuator commands into CAN frames.
//
// A Packer implements vehicle.Serializer on top of a Layout, a small table of
// message definitions in the style of a DBC file. Frames that need one carry
// a 4-bit rolling counter and a checksum in their last byte.
package canpack

import (
	"errors"
	"fmt"

	"github.com/sarchlab/actuation/vehicle"
)

// ErrUnsupported is returned for a command the layout cannot encode.
var ErrUnsupported = errors.New("canpack: unsupported command")

// Packer serializes actuator commands with a Layout.
type Packer struct {
	layout Layout
}

// NewPacker creates a Packer.
func NewPacker(l Layout) *Packer {
	return &Packer{layout: l}
}

// Layout returns the layout used by the packer.
func (p *Packer) Layout() Layout {
	return p.layout
}

// Serialize encodes one command into the frames that carry it.
func (p *Packer) Serialize(cmd vehicle.ActuatorCommand) ([]vehicle.Frame, error) {
	var (
		msg    Message
		values map[string]float64
	)

	switch c := cmd.(type) {
	case vehicle.SteeringTorque:
		msg = p.layout.Steering
		values = map[string]float64{
			SigSteerTorque: float64(c.Torque),
			SigControlBit:  flag(c.ControlBit),
			SigCounter:     float64(c.Counter % 16),
		}
	case vehicle.CruiseButton:
		msg = p.layout.Buttons
		values = map[string]float64{
			SigCancel:  flag(c.Action == vehicle.ButtonCancel),
			SigResume:  flag(c.Action == vehicle.ButtonResume),
			SigCounter: float64(c.Counter % 16),
		}
	case vehicle.LongitudinalTorque:
		msg = p.layout.Longitudinal
		values = map[string]float64{
			SigAccMode:      float64(c.Mode),
			SigAccDecel:     c.Decel,
			SigEngineTorque: c.Torque,
			SigCounter:      float64(c.Counter % 16),
		}
	case vehicle.HudStatus:
		msg = p.layout.Hud
		if c.Secondary {
			msg = p.layout.Secondary
		}
		values = map[string]float64{
			SigLkasActive: flag(c.Active),
			SigHudCount:   float64(c.Count % 16),
		}
	case vehicle.KeepAlive:
		msg = p.layout.KeepAlive
		values = map[string]float64{
			SigCounter: float64(c.Counter % 16),
		}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupported, cmd)
	}

	data, err := msg.Pack(values)
	if err != nil {
		return nil, err
	}

	return []vehicle.Frame{{Bus: cmd.Bus(), Address: msg.Address, Data: data}}, nil
}

// SteeringReadback is the content of a steering frame.
type SteeringReadback struct {
	Torque     int32
	ControlBit bool
	Counter    uint8
}

// DecodeSteering decodes a frame sent on the steering address.
func (p *Packer) DecodeSteering(f vehicle.Frame) (SteeringReadback, error) {
	if f.Address != p.layout.Steering.Address {
		return SteeringReadback{}, fmt.Errorf(
			"canpack: frame 0x%x is not a steering frame", f.Address)
	}

	values, err := p.layout.Steering.Unpack(f.Data)
	if err != nil {
		return SteeringReadback{}, err
	}

	return SteeringReadback{
		Torque:     int32(values[SigSteerTorque]),
		ControlBit: values[SigControlBit] != 0,
		Counter:    uint8(values[SigCounter]),
	}, nil
}

func flag(b bool) float64 {
	if b {
		return 1
	}

	return 0
}

var _ vehicle.Serializer = (*Packer)(nil)
