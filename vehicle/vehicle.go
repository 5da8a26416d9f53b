// Package vehicle defines the data that flows into and out of the actuation
// core: the per-tick planner request, the bus-derived vehicle snapshot, and
// the actuator commands produced in response.
package vehicle

import "fmt"

// Gear is the position of the gear shifter.
type Gear int

// Gear positions.
const (
	GearPark Gear = iota
	GearReverse
	GearNeutral
	GearDrive
	GearLow
)

var gearNames = map[Gear]string{
	GearPark:    "park",
	GearReverse: "reverse",
	GearNeutral: "neutral",
	GearDrive:   "drive",
	GearLow:     "low",
}

func (g Gear) String() string {
	if name, ok := gearNames[g]; ok {
		return name
	}

	return fmt.Sprintf("gear(%d)", int(g))
}

// ParseGear converts a gear name into a Gear.
func ParseGear(name string) (Gear, error) {
	for g, n := range gearNames {
		if n == name {
			return g, nil
		}
	}

	return GearPark, fmt.Errorf("vehicle: unknown gear %q", name)
}

// ControlRequest is what the planner wants this tick. It is produced once per
// tick and never modified by the core.
type ControlRequest struct {
	// SteerFraction is the requested steering torque as a fraction of the
	// maximum torque, in [-1, 1].
	SteerFraction float64

	// Accel is the requested longitudinal acceleration in m/s^2.
	Accel float64

	Cancel bool
	Resume bool

	// Enabled is true when the driver has engaged the assist.
	Enabled bool

	// LongActive is true when the planner allows longitudinal control.
	LongActive bool
}

// VehicleSnapshot is the validated vehicle state for one tick.
type VehicleSnapshot struct {
	Speed float64 // m/s
	Gear  Gear

	SteerFaultTemporary bool
	SteerFaultPermanent bool

	// SteerTorqueMeasured is the torque reported by the steering actuator,
	// in the same units as the commanded torque.
	SteerTorqueMeasured int32

	// ButtonCounter identifies the latest cruise button sample seen on the
	// bus. It advances when the button message is resampled.
	ButtonCounter int

	EngineTorque float64 // Nm
	EngineRPM    float64

	GasPressed     bool
	CruiseEnabled  bool
	CruiseSetSpeed float64 // m/s
}

// SnapshotReader supplies the current vehicle state. The second return value
// is false when no fresh state is available for this period.
type SnapshotReader interface {
	ReadSnapshot() (VehicleSnapshot, bool)
}

// RequestSource supplies the planner request for the current period.
type RequestSource interface {
	NextRequest() ControlRequest
}

// Serializer encodes a command into the frames that carry it on the bus.
type Serializer interface {
	Serialize(cmd ActuatorCommand) ([]Frame, error)
}

// Frame is one encoded message ready to be put on a bus.
type Frame struct {
	Bus     Bus
	Address uint32
	Data    []byte
}
