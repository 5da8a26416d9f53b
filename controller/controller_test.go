package controller_test

import (
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/actuation/calibration"
	"github.com/sarchlab/actuation/controller"
	"github.com/sarchlab/actuation/engagement"
	"github.com/sarchlab/actuation/hooking"
	"github.com/sarchlab/actuation/vehicle"
)

type positionCounter struct {
	counts map[string]int
	items  []any
}

func (h *positionCounter) Func(ctx hooking.HookCtx) {
	h.counts[ctx.Pos.Name]++
	if ctx.Pos == controller.HookPosEngagement {
		h.items = append(h.items, ctx.Item)
	}
}

type reentrantHook struct {
	c *controller.Controller
}

func (h *reentrantHook) Func(ctx hooking.HookCtx) {
	if ctx.Pos == controller.HookPosTickStart {
		h.c.Tick(vehicle.ControlRequest{}, vehicle.VehicleSnapshot{})
	}
}

func steeringOf(res controller.Result) (vehicle.SteeringTorque, bool) {
	for _, cmd := range res.Commands {
		if s, ok := cmd.(vehicle.SteeringTorque); ok {
			return s, true
		}
	}

	return vehicle.SteeringTorque{}, false
}

func commandsOfKind(res controller.Result, kind vehicle.CommandKind) []vehicle.ActuatorCommand {
	var out []vehicle.ActuatorCommand
	for _, cmd := range res.Commands {
		if cmd.Kind() == kind {
			out = append(out, cmd)
		}
	}

	return out
}

var _ = Describe("Controller", func() {
	var (
		params calibration.Params
		ctrl   *controller.Controller
		req    vehicle.ControlRequest
		snap   vehicle.VehicleSnapshot
	)

	// tick runs one period and lets the measured torque follow the applied
	// torque, as a real steering actuator would.
	tick := func() controller.Result {
		res := ctrl.Tick(req, snap)
		snap.SteerTorqueMeasured = res.AppliedSteer
		return res
	}

	tickN := func(n int) []controller.Result {
		results := make([]controller.Result, 0, n)
		for i := 0; i < n; i++ {
			results = append(results, tick())
		}
		return results
	}

	engage := func() {
		snap.Speed = 25
		req.Enabled = true
		for !ctrl.Tick(req, snap).Active {
		}
	}

	BeforeEach(func() {
		var err error
		params, err = calibration.Lookup(calibration.Pacifica2020)
		Expect(err).NotTo(HaveOccurred())

		ctrl = controller.MakeBuilder(params).Build("LKAS")
		req = vehicle.ControlRequest{}
		snap = vehicle.VehicleSnapshot{Gear: vehicle.GearDrive, ButtonCounter: 0}
	})

	It("should advance the tick index once per tick", func() {
		tickN(3)
		Expect(ctrl.State().TickIndex).To(Equal(uint64(3)))
	})

	It("should emit each stream on its own cadence", func() {
		results := tickN(200)

		counts := map[string]int{}
		hudCounts := []uint64{}
		for _, res := range results {
			for _, cmd := range res.Commands {
				switch c := cmd.(type) {
				case vehicle.SteeringTorque:
					counts["steer"]++
					Expect(c.Counter).To(Equal(res.Frame / 2))
				case vehicle.HudStatus:
					if c.Secondary {
						counts["secondary"]++
						Expect(res.Frame % 100).To(BeZero())
					} else {
						counts["hud"]++
						hudCounts = append(hudCounts, c.Count)
						Expect(res.Frame % 25).To(BeZero())
					}
				case vehicle.KeepAlive:
					counts["keepalive"]++
					Expect(res.Frame % 50).To(BeZero())
				case vehicle.LongitudinalTorque:
					counts["long"]++
				}
			}
		}

		Expect(counts).To(Equal(map[string]int{
			"steer":     100,
			"hud":       8,
			"keepalive": 4,
			"secondary": 2,
		}))
		Expect(hudCounts).To(Equal([]uint64{0, 1, 2, 3, 4, 5, 6, 7}))
	})

	It("should confirm lateral control one tick after the bit rises (scenario A)", func() {
		req.Enabled = true
		req.SteerFraction = 0.5
		tickN(int(params.Engagement.CooldownTicks))

		var bitTick uint64
		var steering []int32
		activeAt := map[uint64]bool{}

		for i := 0; i < 400; i++ {
			snap.Speed += 0.25
			res := tick()
			activeAt[res.Frame] = res.Active

			if res.ControlBit && bitTick == 0 {
				bitTick = res.Frame
				Expect(res.Active).To(BeFalse())
				Expect(res.State).To(Equal(engagement.Enabling))
			}

			if s, ok := steeringOf(res); ok && bitTick != 0 {
				steering = append(steering, s.Torque)
			}
		}

		Expect(bitTick).NotTo(BeZero())
		Expect(activeAt[bitTick+1]).To(BeTrue())

		Expect(steering[0]).To(BeNumerically("<=", params.Steer.DeltaUp))
		for i := 1; i < len(steering); i++ {
			Expect(steering[i] - steering[i-1]).To(BeNumerically(">=", 0))
			Expect(steering[i] - steering[i-1]).To(
				BeNumerically("<=", params.Steer.DeltaUp))
		}
		Expect(steering[len(steering)-1]).To(Equal(int32(131)))
	})

	It("should drop on a fault, ramp down and refuse re-entry (scenario B)", func() {
		engage()
		req.SteerFraction = 60.0 / 261.0
		tickN(100)
		Expect(ctrl.State().LastAppliedSteer).To(Equal(int32(60)))

		snap.SteerFaultTemporary = true
		res := tick()
		faultTick := res.Frame
		Expect(res.Active).To(BeFalse())
		Expect(res.FallingEdge).To(BeTrue())
		snap.SteerFaultTemporary = false

		previous := int32(60)
		if s, ok := steeringOf(res); ok {
			Expect(s.Torque).To(Equal(int32(57)))
			previous = s.Torque
		}

		for res.Frame < faultTick+params.Engagement.CooldownTicks-1 {
			res = tick()
			Expect(res.Active).To(BeFalse())

			if s, ok := steeringOf(res); ok {
				Expect(previous - s.Torque).To(BeNumerically("<=", params.Steer.DeltaDown))
				Expect(s.Torque).To(BeNumerically("<=", previous))
				Expect(s.Torque).To(BeNumerically(">=", 0))
				previous = s.Torque
			}
		}
		Expect(previous).To(BeZero())

		tickN(2)
		Expect(ctrl.Tick(req, snap).Active).To(BeTrue())
	})

	It("should decay rather than zero the torque when control drops (P3)", func() {
		engage()
		req.SteerFraction = 1
		tickN(120)
		applied := ctrl.State().LastAppliedSteer
		Expect(applied).To(BeNumerically(">", 100))

		req.Enabled = false
		for {
			res := tick()
			if s, ok := steeringOf(res); ok {
				Expect(s.Torque).To(Equal(applied - params.Steer.DeltaDown))
				break
			}
		}
	})

	It("should bound every steering step under random input (P1)", func() {
		r := rand.New(rand.NewSource(11))
		previous := int32(0)

		for i := 0; i < 5000; i++ {
			req.Enabled = r.Intn(10) > 0
			req.SteerFraction = r.Float64()*2.4 - 1.2
			snap.Speed = r.Float64() * 30
			snap.SteerFaultTemporary = r.Intn(400) == 0
			snap.SteerTorqueMeasured = int32(r.Intn(500) - 250)

			res := ctrl.Tick(req, snap)
			if s, ok := steeringOf(res); ok {
				delta := s.Torque - previous
				if delta < 0 {
					delta = -delta
				}
				Expect(delta).To(BeNumerically("<=", params.Steer.MaxDelta()))
				Expect(s.Torque).To(BeNumerically("<=", params.Steer.MaxValue))
				Expect(s.Torque).To(BeNumerically(">=", -params.Steer.MaxValue))
				previous = s.Torque
			}
		}
	})

	It("should press cancel once per button sample (scenario D)", func() {
		snap.ButtonCounter = 4
		req.Cancel = true

		first := tick()
		second := tick()

		presses := append(
			commandsOfKind(first, vehicle.KindCruiseButton),
			commandsOfKind(second, vehicle.KindCruiseButton)...)
		Expect(presses).To(HaveLen(1))
		Expect(presses[0]).To(Equal(vehicle.CruiseButton{
			OnBus:   params.Buses.Button,
			Action:  vehicle.ButtonCancel,
			Counter: 5,
		}))

		snap.ButtonCounter = 5
		Expect(commandsOfKind(tick(), vehicle.KindCruiseButton)).To(HaveLen(1))
	})

	It("should prefer cancel over resume", func() {
		snap.ButtonCounter = 1
		req.Cancel = true
		req.Resume = true

		presses := commandsOfKind(tick(), vehicle.KindCruiseButton)
		Expect(presses).To(HaveLen(1))
		Expect(presses[0].(vehicle.CruiseButton).Action).To(Equal(vehicle.ButtonCancel))
	})

	It("should not send longitudinal commands without authority", func() {
		req.LongActive = true
		req.Accel = -2
		snap.CruiseEnabled = true

		for _, res := range tickN(50) {
			Expect(commandsOfKind(res, vehicle.KindLongitudinalTorque)).To(BeEmpty())
		}
	})

	Context("with longitudinal authority", func() {
		BeforeEach(func() {
			var err error
			params, err = calibration.Lookup(calibration.Ram1500)
			Expect(err).NotTo(HaveOccurred())

			ctrl = controller.MakeBuilder(params).Build("LKAS")
			req = vehicle.ControlRequest{Enabled: true, LongActive: true}
			snap = vehicle.VehicleSnapshot{
				Gear:           vehicle.GearDrive,
				Speed:          5,
				CruiseEnabled:  true,
				CruiseSetSpeed: 20,
				EngineRPM:      1500,
				EngineTorque:   80,
			}
		})

		longOf := func(res controller.Result) (vehicle.LongitudinalTorque, bool) {
			cmds := commandsOfKind(res, vehicle.KindLongitudinalTorque)
			if len(cmds) == 0 {
				return vehicle.LongitudinalTorque{}, false
			}
			return cmds[0].(vehicle.LongitudinalTorque), true
		}

		It("should shape braking from half the target (scenario C)", func() {
			req.Accel = -3.0

			var decels []float64
			for _, res := range tickN(40) {
				if l, ok := longOf(res); ok {
					Expect(l.Mode).To(Equal(vehicle.LongBrake))
					decels = append(decels, l.Decel)
				}
			}

			Expect(decels).To(HaveLen(20))
			Expect(decels[0]).To(BeNumerically("~", -1.5, 1e-12))
			for i := 1; i < len(decels); i++ {
				step := decels[i-1] - decels[i]
				Expect(step).To(BeNumerically(">=", 0))
				Expect(step).To(BeNumerically("<=", params.Brake.ChangeLimit+1e-12))
				Expect(decels[i]).To(BeNumerically(">=", -3.0))
			}
			Expect(ctrl.State().LastBrake).NotTo(BeNil())
		})

		It("should reset the brake filter when braking ends", func() {
			req.Accel = -3.0
			tickN(10)
			Expect(ctrl.State().LastBrake).NotTo(BeNil())

			req.Accel = 0.5
			tickN(2)
			Expect(ctrl.State().LastBrake).To(BeNil())

			req.Accel = -3.0
			var first vehicle.LongitudinalTorque
			for {
				if l, ok := longOf(tick()); ok {
					first = l
					break
				}
			}
			Expect(first.Decel).To(BeNumerically("~", -1.5, 1e-12))
		})

		It("should request bounded engine torque when accelerating", func() {
			req.Accel = 1.0

			for _, res := range tickN(10) {
				if l, ok := longOf(res); ok {
					Expect(l.Mode).To(Equal(vehicle.LongAccel))
					Expect(l.Torque).To(BeNumerically(">", snap.EngineTorque))
					Expect(l.Torque).To(BeNumerically("<=", params.Long.TorqueMax))
				}
			}
		})

		It("should go neutral when the driver presses the gas", func() {
			req.Accel = -3.0
			tickN(4)

			snap.GasPressed = true
			for _, res := range tickN(4) {
				if l, ok := longOf(res); ok {
					Expect(l.Mode).To(Equal(vehicle.LongNeutral))
					Expect(l.Decel).To(BeZero())
					Expect(l.Torque).To(BeZero())
				}
			}
			Expect(ctrl.State().LastBrake).To(BeNil())
		})

		It("should go neutral when cruise is off", func() {
			snap.CruiseEnabled = false
			req.Accel = 1

			res := tickN(2)[1]
			l, ok := longOf(res)
			Expect(ok).To(BeTrue())
			Expect(l.Mode).To(Equal(vehicle.LongNeutral))
		})
	})

	It("should raise hooks around every tick", func() {
		counter := &positionCounter{counts: map[string]int{}}
		ctrl.AcceptHook(counter)

		engage()
		commands := 0
		for _, res := range tickN(10) {
			commands += len(res.Commands)
		}

		ticks := int(ctrl.State().TickIndex)
		Expect(counter.counts["TickStart"]).To(Equal(ticks))
		Expect(counter.counts["TickEnd"]).To(Equal(ticks))
		Expect(counter.counts["Command"]).To(BeNumerically(">=", commands))
		Expect(counter.items).NotTo(BeEmpty())

		last := counter.items[len(counter.items)-1].(controller.EngagementChange)
		Expect(last.To).To(Equal(engagement.Enabled))
		Expect(ctrl.Engagement()).To(Equal(engagement.Enabled))
	})

	It("should refuse reentrant ticks", func() {
		ctrl.AcceptHook(&reentrantHook{c: ctrl})

		Expect(func() { ctrl.Tick(req, snap) }).To(Panic())
	})

	It("should continue from a given state", func() {
		tickN(5)
		st := ctrl.State()

		resumed := controller.MakeBuilder(params).WithState(st).Build("LKAS")
		res := resumed.Tick(req, snap)

		Expect(res.Frame).To(Equal(uint64(6)))
	})
})
