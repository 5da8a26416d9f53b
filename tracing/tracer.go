// Package tracing observes the control loop through hooks.
//
// Tracers attach to a Controller, a Session or both with AcceptHook. They
// count commands, log engagement transitions, store telemetry rows, and
// export Prometheus metrics. None of them changes what the loop does.
package tracing

import (
	"context"
	"log/slog"
	"sync"

	"github.com/sarchlab/actuation/controller"
	"github.com/sarchlab/actuation/hooking"
	"github.com/sarchlab/actuation/vehicle"
)

// NamedHookable is a hookable object with a name.
type NamedHookable interface {
	hooking.Hookable
	Name() string
}

func domainName(ctx hooking.HookCtx) string {
	if named, ok := ctx.Domain.(interface{ Name() string }); ok {
		return named.Name()
	}

	return ""
}

// CommandCountTracer counts the commands a controller emits, per kind.
type CommandCountTracer struct {
	lock      sync.Mutex
	kinds     []vehicle.CommandKind
	counts    map[vehicle.CommandKind]uint64
	ticks     uint64
	lastFrame map[vehicle.CommandKind]uint64
}

// NewCommandCountTracer creates a CommandCountTracer.
func NewCommandCountTracer() *CommandCountTracer {
	return &CommandCountTracer{
		counts:    make(map[vehicle.CommandKind]uint64),
		lastFrame: make(map[vehicle.CommandKind]uint64),
	}
}

// Func implements hooking.Hook.
func (t *CommandCountTracer) Func(ctx hooking.HookCtx) {
	t.lock.Lock()
	defer t.lock.Unlock()

	switch ctx.Pos {
	case controller.HookPosCommand:
		cmd := ctx.Item.(vehicle.ActuatorCommand)
		if _, ok := t.counts[cmd.Kind()]; !ok {
			t.kinds = append(t.kinds, cmd.Kind())
		}
		t.counts[cmd.Kind()]++
		t.lastFrame[cmd.Kind()] = ctx.Tick
	case controller.HookPosTickEnd:
		t.ticks++
	}
}

// Kinds returns the kinds seen, in order of first appearance.
func (t *CommandCountTracer) Kinds() []vehicle.CommandKind {
	t.lock.Lock()
	defer t.lock.Unlock()

	return append([]vehicle.CommandKind(nil), t.kinds...)
}

// Count returns how many commands of a kind were emitted.
func (t *CommandCountTracer) Count(kind vehicle.CommandKind) uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.counts[kind]
}

// LastFrame returns the frame of the last command of a kind.
func (t *CommandCountTracer) LastFrame(kind vehicle.CommandKind) uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.lastFrame[kind]
}

// Ticks returns the number of ticks observed.
func (t *CommandCountTracer) Ticks() uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.ticks
}

// Transition is one engagement change.
type Transition struct {
	Controller string
	Tick       uint64
	controller.EngagementChange
}

// EngagementLog keeps every engagement transition and logs lateral
// disables.
type EngagementLog struct {
	lock        sync.Mutex
	logger      *slog.Logger
	transitions []Transition
}

// NewEngagementLog creates an EngagementLog. A nil logger disables logging.
func NewEngagementLog(logger *slog.Logger) *EngagementLog {
	return &EngagementLog{logger: logger}
}

// Func implements hooking.Hook.
func (l *EngagementLog) Func(ctx hooking.HookCtx) {
	if ctx.Pos != controller.HookPosEngagement {
		return
	}

	change := ctx.Item.(controller.EngagementChange)
	tr := Transition{
		Controller:       domainName(ctx),
		Tick:             ctx.Tick,
		EngagementChange: change,
	}

	l.lock.Lock()
	l.transitions = append(l.transitions, tr)
	l.lock.Unlock()

	if l.logger == nil {
		return
	}

	level := slog.LevelDebug
	if change.FallingEdge {
		level = slog.LevelInfo
	}

	l.logger.Log(context.Background(), level, "engagement changed",
		"controller", tr.Controller,
		"tick", tr.Tick,
		"from", change.From.String(),
		"to", change.To.String(),
		"falling_edge", change.FallingEdge)
}

// Transitions returns the transitions recorded so far.
func (l *EngagementLog) Transitions() []Transition {
	l.lock.Lock()
	defer l.lock.Unlock()

	return append([]Transition(nil), l.transitions...)
}

// Disables returns the number of transitions caused by a falling edge of
// the control bit.
func (l *EngagementLog) Disables() int {
	l.lock.Lock()
	defer l.lock.Unlock()

	n := 0
	for _, tr := range l.transitions {
		if tr.FallingEdge {
			n++
		}
	}

	return n
}
