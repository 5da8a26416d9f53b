package timing

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/sarchlab/actuation/hooking"
)

// Hook positions raised by the SerialEngine.
var (
	HookPosBeforeEvent = &hooking.HookPos{Name: "BeforeEvent"}
	HookPosAfterEvent  = &hooking.HookPos{Name: "AfterEvent"}
)

// SerialEngine processes scheduled events one at a time in time order.
type SerialEngine struct {
	*hooking.HookableBase

	lock           sync.Mutex
	now            VTimeInCycle
	queue          *eventQueue
	secondaryQueue *eventQueue

	isPaused     bool
	isPausedLock sync.Mutex
	pauseLock    sync.Mutex

	singleRunLock sync.Mutex
}

// NewSerialEngine creates a SerialEngine.
func NewSerialEngine() *SerialEngine {
	return &SerialEngine{
		HookableBase:   hooking.NewHookableBase(),
		queue:          newEventQueue(),
		secondaryQueue: newEventQueue(),
	}
}

// Schedule registers an event to be handled in the future. Scheduling an
// event in the past panics.
func (e *SerialEngine) Schedule(evt ScheduledEvent) {
	e.lock.Lock()
	defer e.lock.Unlock()

	if evt.Time < e.now {
		panic(fmt.Sprintf(
			"timing: cannot schedule event in the past, evt %s @ %d, now %d",
			reflect.TypeOf(evt.Event), evt.Time, e.now,
		))
	}

	if evt.IsSecondary {
		e.secondaryQueue.Push(evt)
		return
	}

	e.queue.Push(evt)
}

// Run handles events until the queue drains or a handler fails. The first
// handler error stops the engine and is returned.
func (e *SerialEngine) Run() error {
	e.singleRunLock.Lock()
	defer e.singleRunLock.Unlock()

	for {
		e.pauseLock.Lock()

		evt := e.nextEvent()
		if evt == nil {
			e.pauseLock.Unlock()
			return nil
		}

		err := e.handle(evt)

		e.pauseLock.Unlock()

		if err != nil {
			return fmt.Errorf("timing: event %s @ %d: %w",
				reflect.TypeOf(evt.Event), evt.Time, err)
		}
	}
}

func (e *SerialEngine) handle(evt *queuedEvent) error {
	hookCtx := hooking.HookCtx{
		Domain: e,
		Pos:    HookPosBeforeEvent,
		Tick:   uint64(evt.Time),
		Item:   evt.ScheduledEvent,
	}
	e.InvokeHook(hookCtx)

	var err error
	if evt.Handler != nil {
		err = evt.Handler.Handle(evt.Event)
	}

	hookCtx.Pos = HookPosAfterEvent
	hookCtx.Detail = err
	e.InvokeHook(hookCtx)

	return err
}

func (e *SerialEngine) nextEvent() *queuedEvent {
	e.lock.Lock()
	defer e.lock.Unlock()

	var evt *queuedEvent

	primary := e.queue.Peek()
	secondary := e.secondaryQueue.Peek()

	switch {
	case primary == nil && secondary == nil:
		return nil
	case secondary == nil:
		evt = e.queue.Pop()
	case primary == nil:
		evt = e.secondaryQueue.Pop()
	case primary.Time <= secondary.Time:
		evt = e.queue.Pop()
	default:
		evt = e.secondaryQueue.Pop()
	}

	e.now = evt.Time

	return evt
}

// Pause stops the engine from handling more events until Continue is
// called.
func (e *SerialEngine) Pause() {
	e.isPausedLock.Lock()
	defer e.isPausedLock.Unlock()

	if e.isPaused {
		return
	}

	e.pauseLock.Lock()
	e.isPaused = true
}

// Continue resumes event handling after a Pause.
func (e *SerialEngine) Continue() {
	e.isPausedLock.Lock()
	defer e.isPausedLock.Unlock()

	if !e.isPaused {
		return
	}

	e.pauseLock.Unlock()
	e.isPaused = false
}

// IsPaused reports whether the engine is paused.
func (e *SerialEngine) IsPaused() bool {
	e.isPausedLock.Lock()
	defer e.isPausedLock.Unlock()

	return e.isPaused
}

// CurrentTime returns the cycle of the event being or last handled.
func (e *SerialEngine) CurrentTime() VTimeInCycle {
	e.lock.Lock()
	defer e.lock.Unlock()

	return e.now
}

var _ EventScheduler = (*SerialEngine)(nil)
