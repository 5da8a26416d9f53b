// Package session drives a Controller from a vehicle.
//
// A Session reads a snapshot, asks the planner for a request, runs one
// controller tick, serializes the resulting commands and sends the frames.
// It runs either against the wall clock (Run) or on a simulated engine
// (Schedule).
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/sarchlab/actuation/controller"
	"github.com/sarchlab/actuation/engagement"
	"github.com/sarchlab/actuation/hooking"
	"github.com/sarchlab/actuation/timing"
	"github.com/sarchlab/actuation/vehicle"
)

//go:generate mockgen -destination "mock_vehicle_test.go" -package $GOPACKAGE -write_package_comment=false github.com/sarchlab/actuation/vehicle SnapshotReader,RequestSource,Serializer
//go:generate mockgen -destination "mock_session_test.go" -package $GOPACKAGE -write_package_comment=false github.com/sarchlab/actuation/session Sender

// ErrSerialize and ErrSend classify the failures that stop a session.
var (
	ErrSerialize = errors.New("session: serialize failed")
	ErrSend      = errors.New("session: send failed")
)

// Hook positions raised by a Session.
var (
	HookPosFrameSent   = &hooking.HookPos{Name: "FrameSent"}
	HookPosTickSkipped = &hooking.HookPos{Name: "TickSkipped"}
)

// Sender puts frames on the bus.
type Sender interface {
	Send(frame vehicle.Frame) error
}

// Exhauster is implemented by snapshot readers that run out of data, such as
// recorded scenarios.
type Exhauster interface {
	Exhausted() bool
}

// SentFrame is the item of a HookPosFrameSent hook.
type SentFrame struct {
	ID      string
	Tick    uint64
	Command vehicle.ActuatorCommand
	Frame   vehicle.Frame
}

// Status is a point-in-time view of a session.
type Status struct {
	ID           string
	Name         string
	Family       string
	TickIndex    uint64
	Engagement   string
	AppliedSteer int32
	Skipped      uint64
	FramesSent   uint64
	Paused       bool
}

// Session binds a controller to its collaborators.
type Session struct {
	*hooking.HookableBase

	lock sync.Mutex

	id         xid.ID
	name       string
	reader     vehicle.SnapshotReader
	requests   vehicle.RequestSource
	ctrl       *controller.Controller
	serializer vehicle.Serializer
	sender     Sender
	ids        IDGenerator
	logger     *slog.Logger

	skipped    uint64
	framesSent uint64
	paused     bool
}

// ID returns the unique ID of the session.
func (s *Session) ID() string {
	return s.id.String()
}

// Name returns the name of the session.
func (s *Session) Name() string {
	return s.name
}

// Controller returns the controller driven by the session.
func (s *Session) Controller() *controller.Controller {
	return s.ctrl
}

// Step runs one tick. It returns false without touching the controller when
// the reader has no fresh snapshot. Serializer and sender failures are
// returned wrapped; the controller state of that tick is kept.
func (s *Session) Step() (bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.step()
}

func (s *Session) step() (bool, error) {
	snap, fresh := s.reader.ReadSnapshot()
	if !fresh {
		s.skipped++
		s.invoke(HookPosTickSkipped, s.ctrl.State().TickIndex, nil)

		return false, nil
	}

	req := s.requests.NextRequest()
	res := s.ctrl.Tick(req, snap)

	if res.FallingEdge {
		s.logger.Warn("lateral control dropped",
			"session", s.name, "tick", res.Frame, "state", res.State.String())
	}

	for _, cmd := range res.Commands {
		frames, err := s.serializer.Serialize(cmd)
		if err != nil {
			return true, fmt.Errorf("%w: tick %d %s: %w",
				ErrSerialize, res.Frame, cmd.Kind(), err)
		}

		for _, f := range frames {
			if err := s.sender.Send(f); err != nil {
				return true, fmt.Errorf("%w: tick %d 0x%x: %w",
					ErrSend, res.Frame, f.Address, err)
			}

			s.framesSent++
			s.invoke(HookPosFrameSent, res.Frame, SentFrame{
				ID:      s.ids.Generate(),
				Tick:    res.Frame,
				Command: cmd,
				Frame:   f,
			})
		}
	}

	return true, nil
}

func (s *Session) exhausted() bool {
	e, ok := s.reader.(Exhauster)
	return ok && e.Exhausted()
}

func (s *Session) invoke(pos *hooking.HookPos, tick uint64, item any) {
	if s.NumHooks() == 0 {
		return
	}

	s.InvokeHook(hooking.HookCtx{
		Domain: s,
		Pos:    pos,
		Tick:   tick,
		Item:   item,
	})
}

// Run ticks at the given frequency until the context is cancelled, the
// reader is exhausted, or a tick fails. Ticks that come while the session
// is paused are dropped; ticks are never caught up.
func (s *Session) Run(ctx context.Context, freq timing.Freq) error {
	ticker := time.NewTicker(freq.Period())
	defer ticker.Stop()

	s.logger.Info("session started",
		"session", s.name, "id", s.ID(), "period", freq.Period().String())

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("session stopped", "session", s.name,
				"reason", context.Cause(ctx).Error())
			return nil
		case <-ticker.C:
		}

		done, err := s.runOnce()
		if err != nil {
			s.logger.Error("session failed", "session", s.name, "error", err)
			return err
		}

		if done {
			s.logger.Info("session finished", "session", s.name)
			return nil
		}
	}
}

func (s *Session) runOnce() (done bool, err error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.paused {
		return false, nil
	}

	if s.exhausted() {
		return true, nil
	}

	_, err = s.step()

	return false, err
}

// Tick implements timing.Ticker. It keeps ticking until the reader is
// exhausted.
func (s *Session) Tick() (bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.exhausted() {
		return false, nil
	}

	if _, err := s.step(); err != nil {
		return false, err
	}

	return !s.exhausted(), nil
}

// Schedule attaches the session to a simulated engine, ticking every
// interval cycles starting at the current cycle.
func (s *Session) Schedule(
	engine timing.EventScheduler,
	interval timing.VTimeInCycle,
) *timing.TickingComponent {
	tc := timing.NewTickingComponent(s.name, engine, interval, s)
	tc.TickNow()

	return tc
}

// Pause makes Run drop ticks until Continue is called.
func (s *Session) Pause() {
	s.lock.Lock()
	s.paused = true
	s.lock.Unlock()
}

// Continue resumes a paused session.
func (s *Session) Continue() {
	s.lock.Lock()
	s.paused = false
	s.lock.Unlock()
}

// Status returns the current status of the session. It waits for a running
// tick to finish.
func (s *Session) Status() Status {
	s.lock.Lock()
	defer s.lock.Unlock()

	st := s.ctrl.State()

	return Status{
		ID:           s.ID(),
		Name:         s.name,
		Family:       string(s.ctrl.Params().Family),
		TickIndex:    st.TickIndex,
		Engagement:   s.ctrl.Engagement().String(),
		AppliedSteer: st.LastAppliedSteer,
		Skipped:      s.skipped,
		FramesSent:   s.framesSent,
		Paused:       s.paused,
	}
}

// Engagement returns the engagement state of the last tick.
func (s *Session) Engagement() engagement.State {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.ctrl.Engagement()
}

// LoopState returns a copy of the controller state between ticks.
func (s *Session) LoopState() controller.LoopState {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.ctrl.State()
}
