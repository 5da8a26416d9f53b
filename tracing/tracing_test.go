package tracing

import (
	"context"
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/mock/gomock"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/actuation/calibration"
	"github.com/sarchlab/actuation/controller"
	"github.com/sarchlab/actuation/datarecording"
	"github.com/sarchlab/actuation/engagement"
	"github.com/sarchlab/actuation/hooking"
	"github.com/sarchlab/actuation/session"
	"github.com/sarchlab/actuation/vehicle"
)

type namedDomain struct {
	*hooking.HookableBase
	name string
}

func (d namedDomain) Name() string { return d.name }

var _ = Describe("Tracers", func() {
	var (
		ctrl *controller.Controller
		req  vehicle.ControlRequest
		snap vehicle.VehicleSnapshot
	)

	run := func(n int) {
		for i := 0; i < n; i++ {
			ctrl.Tick(req, snap)
		}
	}

	BeforeEach(func() {
		params, err := calibration.Lookup(calibration.Pacifica2018)
		Expect(err).NotTo(HaveOccurred())

		ctrl = controller.MakeBuilder(params).Build("LKAS")
		req = vehicle.ControlRequest{Enabled: true}
		snap = vehicle.VehicleSnapshot{Gear: vehicle.GearDrive, Speed: 10}
	})

	Describe("CommandCountTracer", func() {
		It("should count commands per kind", func() {
			t := NewCommandCountTracer()
			ctrl.AcceptHook(t)

			run(100)

			Expect(t.Ticks()).To(Equal(uint64(100)))
			Expect(t.Kinds()).To(Equal([]vehicle.CommandKind{
				vehicle.KindSteeringTorque,
				vehicle.KindHudStatus,
				vehicle.KindKeepAlive,
			}))
			Expect(t.Count(vehicle.KindSteeringTorque)).To(Equal(uint64(50)))
			Expect(t.Count(vehicle.KindHudStatus)).To(Equal(uint64(5)))
			Expect(t.Count(vehicle.KindKeepAlive)).To(Equal(uint64(2)))
			Expect(t.Count(vehicle.KindCruiseButton)).To(BeZero())
			Expect(t.LastFrame(vehicle.KindKeepAlive)).To(Equal(uint64(100)))
		})
	})

	Describe("EngagementLog", func() {
		It("should record transitions and count disables", func() {
			l := NewEngagementLog(nil)
			ctrl.AcceptHook(l)

			run(250)
			snap.SteerFaultTemporary = true
			run(1)

			trs := l.Transitions()
			Expect(trs).To(HaveLen(4))
			Expect(trs[0].To).To(Equal(engagement.FaultCooldown))
			Expect(trs[1].To).To(Equal(engagement.Enabling))
			Expect(trs[2].To).To(Equal(engagement.Enabled))
			Expect(trs[2].Tick).To(Equal(trs[1].Tick + 1))
			Expect(trs[3].From).To(Equal(engagement.Enabled))
			Expect(trs[3].FallingEdge).To(BeTrue())
			Expect(trs[3].Tick).To(Equal(uint64(251)))
			Expect(trs[3].Controller).To(Equal("LKAS"))
			Expect(l.Disables()).To(Equal(1))
		})
	})

	Describe("DBTracer", func() {
		var (
			mockCtrl *gomock.Controller
			recorder *MockDataRecorder
			tracer   *DBTracer
		)

		BeforeEach(func() {
			mockCtrl = gomock.NewController(GinkgoT())
			recorder = NewMockDataRecorder(mockCtrl)

			recorder.EXPECT().CreateTable(TickTable, TickRow{})
			recorder.EXPECT().CreateTable(EngagementTable, EngagementRow{})
			recorder.EXPECT().CreateTable(FrameTable, FrameRow{})

			tracer = NewDBTracer(recorder)
			ctrl.AcceptHook(tracer)
		})

		AfterEach(func() {
			mockCtrl.Finish()
		})

		It("should record ticks and transitions", func() {
			recorder.EXPECT().InsertData(TickTable, TickRow{
				Controller: "LKAS",
				Tick:       1,
				State:      "fault_cooldown",
			})
			recorder.EXPECT().InsertData(TickTable, TickRow{
				Controller: "LKAS",
				Tick:       2,
				State:      "fault_cooldown",
				Commands:   1,
			})
			recorder.EXPECT().InsertData(EngagementTable, EngagementRow{
				Controller: "LKAS",
				Tick:       1,
				FromState:  "disabled",
				ToState:    "fault_cooldown",
			})

			run(2)
		})

		It("should only record ticks in range", func() {
			tracer.SetTickRange(5, 10)
			recorder.EXPECT().InsertData(TickTable, gomock.Any()).Times(6)

			run(20)
		})

		It("should record sent frames", func() {
			recorder.EXPECT().InsertData(FrameTable, FrameRow{
				ID:      "7",
				Session: "bus",
				Tick:    4,
				Kind:    "steering_torque",
				Bus:     2,
				Address: 0xa6,
				Data:    "0aff",
			})

			tracer.Func(hooking.HookCtx{
				Domain: namedDomain{name: "bus"},
				Pos:    session.HookPosFrameSent,
				Tick:   4,
				Item: session.SentFrame{
					ID:      "7",
					Tick:    4,
					Command: vehicle.SteeringTorque{OnBus: vehicle.BusCamera},
					Frame: vehicle.Frame{
						Bus:     vehicle.BusCamera,
						Address: 0xa6,
						Data:    []byte{0x0a, 0xff},
					},
				},
			})
		})

		It("should flush on terminate", func() {
			recorder.EXPECT().Flush()

			tracer.Terminate()
		})
	})

	Describe("DBTracer on SQLite", func() {
		It("should write every table to a real database", func() {
			db, err := sql.Open("sqlite3", ":memory:")
			Expect(err).NotTo(HaveOccurred())
			db.SetMaxOpenConns(1)
			defer db.Close()

			tracer := NewDBTracer(datarecording.NewWithDB(db))
			ctrl.AcceptHook(tracer)

			run(250)
			snap.SteerFaultTemporary = true
			run(1)
			tracer.Terminate()

			reader := datarecording.NewReaderWithDB(db)
			reader.MapTable(EngagementTable, EngagementRow{})
			ctx := context.Background()

			tables, err := reader.Tables(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(tables).To(Equal([]string{EngagementTable, FrameTable, TickTable}))

			ticks, err := reader.Count(ctx, TickTable)
			Expect(err).NotTo(HaveOccurred())
			Expect(ticks).To(Equal(251))

			rows, total, err := reader.Query(ctx, EngagementTable,
				datarecording.QueryParams{OrderBy: "Tick"})
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(Equal(4))
			Expect(rows[0]).To(Equal(&EngagementRow{
				Controller: "LKAS",
				Tick:       1,
				FromState:  "disabled",
				ToState:    "fault_cooldown",
			}))
			Expect(rows[3].(*EngagementRow).FallingEdge).To(BeTrue())
		})
	})

	Describe("Metrics", func() {
		It("should export loop activity", func() {
			reg := prometheus.NewRegistry()
			m := NewMetrics(reg)
			ctrl.AcceptHook(m)

			run(250)
			snap.SteerFaultTemporary = true
			run(1)

			Expect(testutil.ToFloat64(m.TicksTotal.WithLabelValues("LKAS"))).To(Equal(251.0))
			Expect(testutil.ToFloat64(
				m.CommandsTotal.WithLabelValues("LKAS", "keep_alive"))).To(Equal(5.0))
			Expect(testutil.ToFloat64(m.DisablesTotal.WithLabelValues("LKAS"))).To(Equal(1.0))
			Expect(testutil.ToFloat64(m.Engagement.WithLabelValues("LKAS"))).
				To(Equal(float64(engagement.FaultCooldown)))
			Expect(testutil.CollectAndCount(m.TickDuration)).To(Equal(1))

			m.Func(hooking.HookCtx{
				Domain: namedDomain{name: "bus"},
				Pos:    session.HookPosTickSkipped,
			})
			m.Func(hooking.HookCtx{
				Domain: namedDomain{name: "bus"},
				Pos:    session.HookPosFrameSent,
				Item: session.SentFrame{
					Command: vehicle.KeepAlive{},
					Frame:   vehicle.Frame{Bus: vehicle.BusPowertrain},
				},
			})

			Expect(testutil.ToFloat64(m.SkippedTotal.WithLabelValues("bus"))).To(Equal(1.0))
			Expect(testutil.ToFloat64(
				m.FramesSentTotal.WithLabelValues("bus", "powertrain"))).To(Equal(1.0))
		})
	})
})
