package tracing

import (
	"encoding/hex"
	"sync"

	"github.com/tebeka/atexit"

	"github.com/sarchlab/actuation/controller"
	"github.com/sarchlab/actuation/datarecording"
	"github.com/sarchlab/actuation/hooking"
	"github.com/sarchlab/actuation/session"
)

// Table names written by the DBTracer.
const (
	TickTable       = "ticks"
	EngagementTable = "engagement"
	FrameTable      = "frames"
)

// TickRow is one controller tick.
type TickRow struct {
	Controller   string
	Tick         uint64
	State        string
	ControlBit   bool
	Active       bool
	AppliedSteer int32
	Commands     int
}

// EngagementRow is one engagement transition.
type EngagementRow struct {
	Controller  string
	Tick        uint64
	FromState   string
	ToState     string
	FallingEdge bool
}

// FrameRow is one frame put on the bus.
type FrameRow struct {
	ID      string
	Session string
	Tick    uint64
	Kind    string
	Bus     uint8
	Address uint32
	Data    string
}

// DBTracer stores ticks, transitions and frames in a DataRecorder. Attach
// it to a Controller for ticks and transitions and to a Session for frames.
type DBTracer struct {
	lock    sync.Mutex
	backend datarecording.DataRecorder

	startTick, endTick uint64
}

// NewDBTracer creates the tables and returns the tracer. Buffered rows are
// flushed at exit.
func NewDBTracer(recorder datarecording.DataRecorder) *DBTracer {
	recorder.CreateTable(TickTable, TickRow{})
	recorder.CreateTable(EngagementTable, EngagementRow{})
	recorder.CreateTable(FrameTable, FrameRow{})

	t := &DBTracer{backend: recorder}

	atexit.Register(t.Terminate)

	return t
}

// SetTickRange limits recording to ticks in [start, end]. An end of zero
// means no upper bound.
func (t *DBTracer) SetTickRange(start, end uint64) {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.startTick = start
	t.endTick = end
}

func (t *DBTracer) inRange(tick uint64) bool {
	if tick < t.startTick {
		return false
	}

	return t.endTick == 0 || tick <= t.endTick
}

// Func implements hooking.Hook.
func (t *DBTracer) Func(ctx hooking.HookCtx) {
	t.lock.Lock()
	defer t.lock.Unlock()

	if !t.inRange(ctx.Tick) {
		return
	}

	switch ctx.Pos {
	case controller.HookPosTickEnd:
		res := ctx.Item.(controller.Result)
		t.backend.InsertData(TickTable, TickRow{
			Controller:   domainName(ctx),
			Tick:         res.Frame,
			State:        res.State.String(),
			ControlBit:   res.ControlBit,
			Active:       res.Active,
			AppliedSteer: res.AppliedSteer,
			Commands:     len(res.Commands),
		})
	case controller.HookPosEngagement:
		change := ctx.Item.(controller.EngagementChange)
		t.backend.InsertData(EngagementTable, EngagementRow{
			Controller:  domainName(ctx),
			Tick:        ctx.Tick,
			FromState:   change.From.String(),
			ToState:     change.To.String(),
			FallingEdge: change.FallingEdge,
		})
	case session.HookPosFrameSent:
		sent := ctx.Item.(session.SentFrame)
		t.backend.InsertData(FrameTable, FrameRow{
			ID:      sent.ID,
			Session: domainName(ctx),
			Tick:    sent.Tick,
			Kind:    sent.Command.Kind().String(),
			Bus:     uint8(sent.Frame.Bus),
			Address: sent.Frame.Address,
			Data:    hex.EncodeToString(sent.Frame.Data),
		})
	}
}

// Terminate flushes buffered rows.
func (t *DBTracer) Terminate() {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.backend.Flush()
}
