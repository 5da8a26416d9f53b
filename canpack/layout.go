package canpack

import "github.com/sarchlab/actuation/calibration"

// Signal names.
const (
	SigSteerTorque  = "STEERING_TORQUE"
	SigControlBit   = "LKAS_CONTROL_BIT"
	SigCounter      = "COUNTER"
	SigCancel       = "ACC_CANCEL"
	SigResume       = "ACC_RESUME"
	SigAccMode      = "ACC_MODE"
	SigAccDecel     = "ACC_DECEL"
	SigEngineTorque = "ENGINE_TORQUE"
	SigLkasActive   = "LKAS_ACTIVE"
	SigHudCount     = "HUD_COUNT"
)

// Layout is the set of messages a family understands.
type Layout struct {
	Name string

	Steering     Message
	Buttons      Message
	Longitudinal Message
	Hud          Message
	Secondary    Message
	KeepAlive    Message
}

// Messages returns every message of the layout.
func (l Layout) Messages() []Message {
	return []Message{
		l.Steering, l.Buttons, l.Longitudinal, l.Hud, l.Secondary, l.KeepAlive,
	}
}

// ByAddress returns the message sent on the given address.
func (l Layout) ByAddress(address uint32) (Message, bool) {
	for _, m := range l.Messages() {
		if m.Address == address {
			return m, true
		}
	}

	return Message{}, false
}

func steeringMessage(address uint32, size int) Message {
	return Message{
		Name:     "LKAS_COMMAND",
		Address:  address,
		Size:     size,
		Checksum: true,
		Signals: []Signal{
			{Name: SigSteerTorque, StartBit: 0, BitLength: 11, Offset: -1024},
			{Name: SigControlBit, StartBit: 12, BitLength: 1},
			{Name: SigCounter, StartBit: 8*size - 12, BitLength: 4},
		},
	}
}

func buttonMessage(address uint32) Message {
	return Message{
		Name:     "CRUISE_BUTTONS",
		Address:  address,
		Size:     3,
		Checksum: true,
		Signals: []Signal{
			{Name: SigCancel, StartBit: 0, BitLength: 1},
			{Name: SigResume, StartBit: 4, BitLength: 1},
			{Name: SigCounter, StartBit: 12, BitLength: 4},
		},
	}
}

func accMessage(address uint32) Message {
	return Message{
		Name:     "DAS_3",
		Address:  address,
		Size:     8,
		Checksum: true,
		Signals: []Signal{
			{Name: SigAccMode, StartBit: 0, BitLength: 2},
			{Name: SigAccDecel, StartBit: 8, BitLength: 12, Factor: 0.004, Offset: -16},
			{Name: SigEngineTorque, StartBit: 20, BitLength: 13, Factor: 0.25, Offset: -500},
			{Name: SigCounter, StartBit: 48, BitLength: 4},
		},
	}
}

func hudMessage(name string, address uint32) Message {
	return Message{
		Name:    name,
		Address: address,
		Size:    8,
		Signals: []Signal{
			{Name: SigLkasActive, StartBit: 0, BitLength: 1},
			{Name: SigHudCount, StartBit: 8, BitLength: 4},
		},
	}
}

func heartbeatMessage() Message {
	return Message{
		Name:    "LKAS_HEARTBIT",
		Address: 0x2d9,
		Size:    5,
		Signals: []Signal{
			{Name: SigCounter, StartBit: 0, BitLength: 4},
		},
	}
}

// ChryslerLayout is used by the Pacifica and Cherokee families.
var ChryslerLayout = Layout{
	Name:         "chrysler",
	Steering:     steeringMessage(0x292, 6),
	Buttons:      buttonMessage(0x23b),
	Longitudinal: accMessage(0x1f4),
	Hud:          hudMessage("LKAS_HUD", 0x2a6),
	Secondary:    hudMessage("DAS_6", 0x2a8),
	KeepAlive:    heartbeatMessage(),
}

// RamLayout is used by the RAM families.
var RamLayout = Layout{
	Name:         "ram",
	Steering:     steeringMessage(0xa6, 8),
	Buttons:      buttonMessage(0xb1),
	Longitudinal: accMessage(0x99),
	Hud:          hudMessage("DAS_6", 0xfa),
	Secondary:    hudMessage("DAS_7", 0xfb),
	KeepAlive:    heartbeatMessage(),
}

// LayoutFor returns the layout of a family.
func LayoutFor(f calibration.Family) Layout {
	switch f {
	case calibration.Ram1500, calibration.RamHD:
		return RamLayout
	default:
		return ChryslerLayout
	}
}
