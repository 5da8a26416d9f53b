// Package longitudinal selects between braking and driving and computes the
// engine torque needed to follow an acceleration request.
package longitudinal

import (
	"math"

	"github.com/sarchlab/actuation/vehicle"
)

// epsilon keeps divisions finite when the engine speed or the drivetrain
// efficiency read zero.
const epsilon = 1e-3

// Params are the longitudinal calibration values of a vehicle family.
type Params struct {
	// Mass of the loaded vehicle in kg.
	Mass float64

	// DrivetrainEfficiency is the share of engine power that reaches the
	// wheels.
	DrivetrainEfficiency float64

	// TorqueMin and TorqueMax bound the engine torque request, in Nm.
	TorqueMin float64
	TorqueMax float64

	// Horizon is the time in seconds over which the requested acceleration
	// is projected when computing the desired velocity.
	Horizon float64

	// ThresholdBP and ThresholdV map speed (m/s) to the acceleration
	// (m/s^2) below which the brakes are used instead of the engine.
	ThresholdBP []float64
	ThresholdV  []float64
}

// Mode returns the mode to use for the request and snapshot. Override
// conditions (driver on the accelerator, longitudinal control unavailable,
// cruise off) force neutral.
func Mode(
	req vehicle.ControlRequest,
	snap vehicle.VehicleSnapshot,
	p Params,
) vehicle.LongitudinalMode {
	if snap.GasPressed || !req.LongActive || !snap.CruiseEnabled {
		return vehicle.LongNeutral
	}

	if req.Accel < BrakeThreshold(snap.Speed, p) {
		return vehicle.LongBrake
	}

	return vehicle.LongAccel
}

// BrakeThreshold returns the acceleration below which braking is used at the
// given speed.
func BrakeThreshold(speed float64, p Params) float64 {
	return interp(speed, p.ThresholdBP, p.ThresholdV)
}

// DesiredVelocity is the lesser of the cruise set speed and the velocity
// reached by holding the requested acceleration over the horizon.
func DesiredVelocity(speed, accel, cruiseSetSpeed, horizon float64) float64 {
	projected := max(speed+accel*horizon, 0)
	return min(cruiseSetSpeed, projected)
}

// EngineTorque returns the engine torque that changes the kinetic energy of
// the vehicle from its current velocity to the desired velocity within the
// horizon, clamped to the torque bounds.
func EngineTorque(
	req vehicle.ControlRequest,
	snap vehicle.VehicleSnapshot,
	p Params,
) float64 {
	desired := DesiredVelocity(snap.Speed, req.Accel, snap.CruiseSetSpeed, p.Horizon)

	deltaEnergy := 0.5 * p.Mass * (desired*desired - snap.Speed*snap.Speed)
	power := deltaEnergy / math.Max(p.Horizon, epsilon)

	angularSpeed := snap.EngineRPM * 2 * math.Pi / 60
	torqueDelta := power / (p.DrivetrainEfficiency*angularSpeed + epsilon)

	target := math.Max(0, snap.EngineTorque) + torqueDelta

	return math.Min(math.Max(target, p.TorqueMin), p.TorqueMax)
}

func interp(x float64, xp, fp []float64) float64 {
	n := min(len(xp), len(fp))
	if n == 0 {
		return 0
	}

	if x <= xp[0] {
		return fp[0]
	}

	for i := 1; i < n; i++ {
		if x <= xp[i] {
			ratio := (x - xp[i-1]) / (xp[i] - xp[i-1])
			return fp[i-1] + ratio*(fp[i]-fp[i-1])
		}
	}

	return fp[n-1]
}
