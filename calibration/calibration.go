// Package calibration resolves a vehicle family into the parameters the
// actuation core runs on. The lookup happens once per session; the core
// never branches on the family afterwards.
package calibration

import (
	"errors"
	"fmt"
	"sort"

	"github.com/sarchlab/actuation/brakeslew"
	"github.com/sarchlab/actuation/engagement"
	"github.com/sarchlab/actuation/longitudinal"
	"github.com/sarchlab/actuation/torquelimit"
	"github.com/sarchlab/actuation/vehicle"
)

// ErrUnknownFamily is returned when a family has no calibration.
var ErrUnknownFamily = errors.New("calibration: unknown vehicle family")

// Family names a group of vehicles that share calibration.
type Family string

// Supported families.
const (
	Pacifica2017Hybrid Family = "pacifica_2017_hybrid"
	Pacifica2018       Family = "pacifica_2018"
	Pacifica2018Hybrid Family = "pacifica_2018_hybrid"
	Pacifica2019Hybrid Family = "pacifica_2019_hybrid"
	Pacifica2020       Family = "pacifica_2020"
	JeepCherokee       Family = "jeep_cherokee"
	JeepCherokee2019   Family = "jeep_cherokee_2019"
	Ram1500            Family = "ram_1500"
	RamHD              Family = "ram_hd"
)

// Cadence holds the tick intervals of the message streams.
type Cadence struct {
	Steer        uint64
	Longitudinal uint64
	Hud          uint64
	KeepAlive    uint64
	Secondary    uint64
}

// Buses holds the bus each message stream is sent on.
type Buses struct {
	Lateral      vehicle.Bus
	Button       vehicle.Bus
	Longitudinal vehicle.Bus
	Hud          vehicle.Bus
}

// Params is the full calibration of a vehicle family.
type Params struct {
	Family Family

	Steer      torquelimit.Params
	Engagement engagement.Params

	// Longitudinal is true when the family accepts longitudinal commands.
	Longitudinal bool
	Long         longitudinal.Params
	Brake        brakeslew.Params

	Cadence Cadence
	Buses   Buses
}

const stdCargoKg = 136.0

var defaultCadence = Cadence{
	Steer:        2,
	Longitudinal: 2,
	Hud:          25,
	KeepAlive:    50,
	Secondary:    100,
}

var defaultEngagement = engagement.Params{
	EnableSpeed:   3.8,
	DisableSpeed:  0,
	CooldownTicks: 200,
}

// higherMinSteerSpeed is used by the families whose steering firmware
// refuses torque at low speed. The bit drops 3 m/s below the enable speed.
var higherMinSteerSpeed = engagement.Params{
	EnableSpeed:   17.5,
	DisableSpeed:  14.5,
	CooldownTicks: 200,
}

var chryslerSteer = torquelimit.Params{
	DeltaUp:           3,
	DeltaDown:         3,
	MaxValue:          261,
	OverrideAllowance: 80,
}

var ramLong = longitudinal.Params{
	DrivetrainEfficiency: 0.85,
	TorqueMin:            -50,
	TorqueMax:            450,
	Horizon:              0.02,
	ThresholdBP:          []float64{0, 9},
	ThresholdV:           []float64{0, -0.15},
}

var ramBrake = brakeslew.Params{
	ChangeLimit: 0.1,
	Deadband:    0.05,
}

var table = map[Family]func() Params{
	Pacifica2017Hybrid: func() Params { return pacifica(Pacifica2017Hybrid, defaultEngagement) },
	Pacifica2018:       func() Params { return pacifica(Pacifica2018, defaultEngagement) },
	Pacifica2018Hybrid: func() Params { return pacifica(Pacifica2018Hybrid, defaultEngagement) },
	Pacifica2019Hybrid: func() Params { return pacifica(Pacifica2019Hybrid, higherMinSteerSpeed) },
	Pacifica2020:       func() Params { return pacifica(Pacifica2020, higherMinSteerSpeed) },
	JeepCherokee:       func() Params { return cherokee(JeepCherokee, defaultEngagement) },
	JeepCherokee2019:   func() Params { return cherokee(JeepCherokee2019, higherMinSteerSpeed) },
	Ram1500:            ram1500,
	RamHD:              ramHD,
}

func base(f Family, e engagement.Params, mass float64) Params {
	long := ramLong
	long.Mass = mass + stdCargoKg
	long.ThresholdBP = append([]float64(nil), ramLong.ThresholdBP...)
	long.ThresholdV = append([]float64(nil), ramLong.ThresholdV...)

	return Params{
		Family:     f,
		Steer:      chryslerSteer,
		Engagement: e,
		Long:       long,
		Brake:      ramBrake,
		Cadence:    defaultCadence,
		Buses: Buses{
			Lateral:      vehicle.BusPowertrain,
			Button:       vehicle.BusPowertrain,
			Longitudinal: vehicle.BusPowertrain,
			Hud:          vehicle.BusPowertrain,
		},
	}
}

func pacifica(f Family, e engagement.Params) Params {
	return base(f, e, 2242)
}

func cherokee(f Family, e engagement.Params) Params {
	return base(f, e, 1778)
}

func ram1500() Params {
	p := base(Ram1500, engagement.Params{
		EnableSpeed:   0.5,
		DisableSpeed:  0,
		CooldownTicks: 200,
	}, 2493)

	p.Steer.DeltaUp = 6
	p.Steer.DeltaDown = 6
	p.Longitudinal = true
	p.Buses.Button = vehicle.BusCamera

	return p
}

func ramHD() Params {
	p := base(RamHD, engagement.Params{
		EnableSpeed:   16,
		DisableSpeed:  15.5,
		CooldownTicks: 200,
	}, 3405)

	p.Steer.DeltaUp = 14
	p.Steer.DeltaDown = 14
	p.Steer.MaxValue = 361
	p.Long.TorqueMax = 800
	p.Longitudinal = true
	p.Buses.Button = vehicle.BusCamera

	return p
}

// Lookup returns the calibration of a family. The returned value is a copy
// that the caller may modify.
func Lookup(f Family) (Params, error) {
	build, ok := table[f]
	if !ok {
		return Params{}, fmt.Errorf("%w: %q", ErrUnknownFamily, string(f))
	}

	return build(), nil
}

// Families lists the supported families in name order.
func Families() []Family {
	families := make([]Family, 0, len(table))
	for f := range table {
		families = append(families, f)
	}

	sort.Slice(families, func(i, j int) bool {
		return families[i] < families[j]
	})

	return families
}
