// Package scenario replays scripted drives against the control loop.
//
// A scenario file is YAML. It names a vehicle family and lists segments;
// each segment lasts a number of ticks and overrides some of the snapshot
// and request fields of the segment before it.
package scenario

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sarchlab/actuation/calibration"
	"github.com/sarchlab/actuation/vehicle"
)

// ErrInvalid is returned for a scenario that cannot be played.
var ErrInvalid = errors.New("scenario: invalid scenario")

// Scenario is a scripted drive.
type Scenario struct {
	Name   string             `yaml:"name"`
	Family calibration.Family `yaml:"family"`

	// EPSFollows makes the measured steering torque track the torque the
	// loop sends, as a real actuator would.
	EPSFollows bool `yaml:"eps_follows"`

	Segments []Segment `yaml:"segments"`
}

// Segment is a stretch of ticks with the same inputs.
type Segment struct {
	Ticks int `yaml:"ticks"`

	// Stale segments deliver no fresh snapshot.
	Stale bool `yaml:"stale"`

	// SpeedTo ramps the speed linearly to this value over the segment.
	SpeedTo *float64 `yaml:"speed_to"`

	// ButtonEvery advances the button counter every n ticks.
	ButtonEvery int `yaml:"button_every"`

	Snapshot Snapshot `yaml:"snapshot"`
	Request  Request  `yaml:"request"`
}

// Snapshot holds the snapshot fields a segment sets. Unset fields keep the
// value of the previous segment.
type Snapshot struct {
	Speed               *float64 `yaml:"speed"`
	Gear                *string  `yaml:"gear"`
	SteerFaultTemporary *bool    `yaml:"steer_fault_temporary"`
	SteerFaultPermanent *bool    `yaml:"steer_fault_permanent"`
	SteerTorqueMeasured *int32   `yaml:"steer_torque_measured"`
	EngineTorque        *float64 `yaml:"engine_torque"`
	EngineRPM           *float64 `yaml:"engine_rpm"`
	GasPressed          *bool    `yaml:"gas_pressed"`
	CruiseEnabled       *bool    `yaml:"cruise_enabled"`
	CruiseSetSpeed      *float64 `yaml:"cruise_set_speed"`
}

// Request holds the request fields a segment sets.
type Request struct {
	SteerFraction *float64 `yaml:"steer_fraction"`
	Accel         *float64 `yaml:"accel"`
	Cancel        *bool    `yaml:"cancel"`
	Resume        *bool    `yaml:"resume"`
	Enabled       *bool    `yaml:"enabled"`
	LongActive    *bool    `yaml:"long_active"`
}

// Step is the input of one tick.
type Step struct {
	Snapshot vehicle.VehicleSnapshot
	Request  vehicle.ControlRequest
	Stale    bool
}

// Parse decodes and validates a scenario.
func Parse(data []byte) (*Scenario, error) {
	sc := &Scenario{}
	if err := yaml.Unmarshal(data, sc); err != nil {
		return nil, fmt.Errorf("scenario: %w", err)
	}

	if err := sc.Validate(); err != nil {
		return nil, err
	}

	return sc, nil
}

// Load reads a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scenario: %w", err)
	}

	sc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return sc, nil
}

// Validate checks that the scenario can be played.
func (sc *Scenario) Validate() error {
	if _, err := calibration.Lookup(sc.Family); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	if len(sc.Segments) == 0 {
		return fmt.Errorf("%w: no segments", ErrInvalid)
	}

	for i, seg := range sc.Segments {
		if seg.Ticks <= 0 {
			return fmt.Errorf("%w: segment %d has %d ticks", ErrInvalid, i, seg.Ticks)
		}

		if seg.ButtonEvery < 0 {
			return fmt.Errorf("%w: segment %d has a negative button_every",
				ErrInvalid, i)
		}

		if seg.Snapshot.Gear != nil {
			if _, err := vehicle.ParseGear(*seg.Snapshot.Gear); err != nil {
				return fmt.Errorf("%w: segment %d: %w", ErrInvalid, i, err)
			}
		}
	}

	return nil
}

// Len returns the number of ticks in the scenario.
func (sc *Scenario) Len() int {
	n := 0
	for _, seg := range sc.Segments {
		n += seg.Ticks
	}

	return n
}

// Expand turns the segments into one Step per tick.
func (sc *Scenario) Expand() []Step {
	steps := make([]Step, 0, sc.Len())

	snap := vehicle.VehicleSnapshot{Gear: vehicle.GearDrive}
	req := vehicle.ControlRequest{}

	for _, seg := range sc.Segments {
		seg.Snapshot.apply(&snap)
		seg.Request.apply(&req)

		start := snap.Speed
		for k := 1; k <= seg.Ticks; k++ {
			if seg.SpeedTo != nil {
				snap.Speed = start + (*seg.SpeedTo-start)*float64(k)/float64(seg.Ticks)
			}

			if seg.ButtonEvery > 0 && k%seg.ButtonEvery == 0 {
				snap.ButtonCounter = (snap.ButtonCounter + 1) % 16
			}

			steps = append(steps, Step{Snapshot: snap, Request: req, Stale: seg.Stale})
		}
	}

	return steps
}

func (s Snapshot) apply(snap *vehicle.VehicleSnapshot) {
	set(&snap.Speed, s.Speed)
	set(&snap.SteerFaultTemporary, s.SteerFaultTemporary)
	set(&snap.SteerFaultPermanent, s.SteerFaultPermanent)
	set(&snap.SteerTorqueMeasured, s.SteerTorqueMeasured)
	set(&snap.EngineTorque, s.EngineTorque)
	set(&snap.EngineRPM, s.EngineRPM)
	set(&snap.GasPressed, s.GasPressed)
	set(&snap.CruiseEnabled, s.CruiseEnabled)
	set(&snap.CruiseSetSpeed, s.CruiseSetSpeed)

	if s.Gear != nil {
		// Validated on load.
		snap.Gear, _ = vehicle.ParseGear(*s.Gear)
	}
}

func (r Request) apply(req *vehicle.ControlRequest) {
	set(&req.SteerFraction, r.SteerFraction)
	set(&req.Accel, r.Accel)
	set(&req.Cancel, r.Cancel)
	set(&req.Resume, r.Resume)
	set(&req.Enabled, r.Enabled)
	set(&req.LongActive, r.LongActive)
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
