package vehicle

// Bus identifies the bus a command is sent on.
type Bus uint8

// Buses used by the supported vehicles.
const (
	BusPowertrain Bus = 0
	BusCamera     Bus = 2
)

// CommandKind is the tag of an ActuatorCommand.
type CommandKind int

// Command kinds.
const (
	KindSteeringTorque CommandKind = iota
	KindCruiseButton
	KindLongitudinalTorque
	KindHudStatus
	KindKeepAlive
)

var kindNames = [...]string{
	KindSteeringTorque:     "steering_torque",
	KindCruiseButton:       "cruise_button",
	KindLongitudinalTorque: "longitudinal_torque",
	KindHudStatus:          "hud_status",
	KindKeepAlive:          "keep_alive",
}

func (k CommandKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}

	return kindNames[k]
}

// ActuatorCommand is a logical command produced by one tick. The set of
// implementations is closed; the unexported method keeps it that way.
type ActuatorCommand interface {
	Kind() CommandKind
	Bus() Bus

	isActuatorCommand()
}

// SteeringTorque carries the lateral torque request and the control bit.
type SteeringTorque struct {
	OnBus      Bus
	Torque     int32
	ControlBit bool
	Counter    uint64
}

// Kind returns KindSteeringTorque.
func (SteeringTorque) Kind() CommandKind { return KindSteeringTorque }

// Bus returns the bus the command is sent on.
func (c SteeringTorque) Bus() Bus { return c.OnBus }

func (SteeringTorque) isActuatorCommand() {}

// ButtonAction is the cruise button a CruiseButton command presses.
type ButtonAction int

// Button actions.
const (
	ButtonCancel ButtonAction = iota + 1
	ButtonResume
)

func (a ButtonAction) String() string {
	switch a {
	case ButtonCancel:
		return "cancel"
	case ButtonResume:
		return "resume"
	default:
		return "none"
	}
}

// CruiseButton emulates a cruise control button press.
type CruiseButton struct {
	OnBus   Bus
	Action  ButtonAction
	Counter int
}

// Kind returns KindCruiseButton.
func (CruiseButton) Kind() CommandKind { return KindCruiseButton }

// Bus returns the bus the command is sent on.
func (c CruiseButton) Bus() Bus { return c.OnBus }

func (CruiseButton) isActuatorCommand() {}

// LongitudinalMode selects which longitudinal output is active.
type LongitudinalMode int

// Longitudinal modes.
const (
	LongNeutral LongitudinalMode = iota
	LongBrake
	LongAccel
)

func (m LongitudinalMode) String() string {
	switch m {
	case LongBrake:
		return "brake"
	case LongAccel:
		return "accel"
	default:
		return "neutral"
	}
}

// LongitudinalTorque carries either a deceleration request or an engine
// torque request. In neutral mode both values are zero.
type LongitudinalTorque struct {
	OnBus   Bus
	Mode    LongitudinalMode
	Decel   float64 // m/s^2, <= 0
	Torque  float64 // Nm
	Counter uint64
}

// Kind returns KindLongitudinalTorque.
func (LongitudinalTorque) Kind() CommandKind { return KindLongitudinalTorque }

// Bus returns the bus the command is sent on.
func (c LongitudinalTorque) Bus() Bus { return c.OnBus }

func (LongitudinalTorque) isActuatorCommand() {}

// HudStatus drives the lane-keeping display. Secondary marks the slower
// status page.
type HudStatus struct {
	OnBus     Bus
	Active    bool
	Secondary bool
	Count     uint64
}

// Kind returns KindHudStatus.
func (HudStatus) Kind() CommandKind { return KindHudStatus }

// Bus returns the bus the command is sent on.
func (c HudStatus) Bus() Bus { return c.OnBus }

func (HudStatus) isActuatorCommand() {}

// KeepAlive keeps the actuator modules from timing out.
type KeepAlive struct {
	OnBus   Bus
	Counter uint64
}

// Kind returns KindKeepAlive.
func (KeepAlive) Kind() CommandKind { return KindKeepAlive }

// Bus returns the bus the command is sent on.
func (c KeepAlive) Bus() Bus { return c.OnBus }

func (KeepAlive) isActuatorCommand() {}
