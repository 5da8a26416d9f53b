package tracing

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sarchlab/actuation/controller"
	"github.com/sarchlab/actuation/hooking"
	"github.com/sarchlab/actuation/session"
	"github.com/sarchlab/actuation/vehicle"
)

const namespace = "actuation"

// Metrics exports loop activity to Prometheus.
type Metrics struct {
	TicksTotal      *prometheus.CounterVec
	SkippedTotal    *prometheus.CounterVec
	CommandsTotal   *prometheus.CounterVec
	DisablesTotal   *prometheus.CounterVec
	FramesSentTotal *prometheus.CounterVec
	AppliedSteer    *prometheus.GaugeVec
	Engagement      *prometheus.GaugeVec
	TickDuration    *prometheus.HistogramVec

	lock      sync.Mutex
	tickStart map[string]time.Time
}

// NewMetrics registers the metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		TicksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "ticks_total",
			Help:      "Total controller ticks",
		}, []string{"controller"}),

		SkippedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "skipped_ticks_total",
			Help:      "Total ticks skipped for lack of a fresh snapshot",
		}, []string{"session"}),

		CommandsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "commands_total",
			Help:      "Total actuator commands emitted",
		}, []string{"controller", "kind"}),

		DisablesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "lateral_disables_total",
			Help:      "Total falling edges of the lateral control bit",
		}, []string{"controller"}),

		FramesSentTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "frames_sent_total",
			Help:      "Total frames put on the bus",
		}, []string{"session", "bus"}),

		AppliedSteer: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "applied_steer_torque",
			Help:      "Steering torque most recently applied",
		}, []string{"controller"}),

		Engagement: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "engagement_state",
			Help:      "Engagement state (0 disabled, 1 enabling, 2 enabled, 3 cooldown)",
		}, []string{"controller"}),

		TickDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "tick_duration_seconds",
			Help:      "Wall time spent in one controller tick",
			Buckets:   []float64{1e-6, 5e-6, 1e-5, 5e-5, 1e-4, 5e-4, 1e-3, 5e-3},
		}, []string{"controller"}),

		tickStart: make(map[string]time.Time),
	}
}

// Func implements hooking.Hook.
func (m *Metrics) Func(ctx hooking.HookCtx) {
	name := domainName(ctx)

	switch ctx.Pos {
	case controller.HookPosTickStart:
		m.lock.Lock()
		m.tickStart[name] = time.Now()
		m.lock.Unlock()
	case controller.HookPosTickEnd:
		m.tickEnded(name, ctx.Item.(controller.Result))
	case controller.HookPosCommand:
		cmd := ctx.Item.(vehicle.ActuatorCommand)
		m.CommandsTotal.WithLabelValues(name, cmd.Kind().String()).Inc()
	case controller.HookPosEngagement:
		change := ctx.Item.(controller.EngagementChange)
		m.Engagement.WithLabelValues(name).Set(float64(change.To))
		if change.FallingEdge {
			m.DisablesTotal.WithLabelValues(name).Inc()
		}
	case session.HookPosFrameSent:
		sent := ctx.Item.(session.SentFrame)
		m.FramesSentTotal.WithLabelValues(name, busLabel(sent.Frame.Bus)).Inc()
	case session.HookPosTickSkipped:
		m.SkippedTotal.WithLabelValues(name).Inc()
	}
}

func (m *Metrics) tickEnded(name string, res controller.Result) {
	m.TicksTotal.WithLabelValues(name).Inc()
	m.AppliedSteer.WithLabelValues(name).Set(float64(res.AppliedSteer))

	m.lock.Lock()
	start, ok := m.tickStart[name]
	delete(m.tickStart, name)
	m.lock.Unlock()

	if ok {
		m.TickDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}
}

func busLabel(b vehicle.Bus) string {
	switch b {
	case vehicle.BusPowertrain:
		return "powertrain"
	case vehicle.BusCamera:
		return "camera"
	default:
		return "other"
	}
}
