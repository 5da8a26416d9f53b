package timing

import "sync"

// TickEvent asks a TickingComponent to run one tick.
type TickEvent struct {
	Time VTimeInCycle
}

// A Ticker updates its state once per tick. It returns false when it has
// nothing more to do, which stops the ticking.
type Ticker interface {
	Tick() (madeProgress bool, err error)
}

// TickScheduler schedules tick events every fixed number of cycles.
type TickScheduler struct {
	lock      sync.Mutex
	handler   Handler
	engine    EventScheduler
	interval  VTimeInCycle
	secondary bool

	scheduled    bool
	nextTickTime VTimeInCycle
}

// NewTickScheduler creates a scheduler that ticks every interval cycles.
func NewTickScheduler(
	handler Handler,
	engine EventScheduler,
	interval VTimeInCycle,
) *TickScheduler {
	if interval == 0 {
		panic("timing: tick interval cannot be zero")
	}

	return &TickScheduler{
		handler:  handler,
		engine:   engine,
		interval: interval,
	}
}

// Interval returns the number of cycles between ticks.
func (t *TickScheduler) Interval() VTimeInCycle {
	return t.interval
}

// TickNow schedules a tick at the current cycle, or the next aligned cycle
// if the current one is not a tick boundary.
func (t *TickScheduler) TickNow() {
	now := t.engine.CurrentTime()
	t.schedule(t.alignUp(now))
}

// TickLater schedules a tick at the first tick boundary after now.
func (t *TickScheduler) TickLater() {
	now := t.engine.CurrentTime()
	t.schedule(t.alignUp(now + 1))
}

func (t *TickScheduler) alignUp(c VTimeInCycle) VTimeInCycle {
	return (c + t.interval - 1) / t.interval * t.interval
}

func (t *TickScheduler) schedule(at VTimeInCycle) {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.scheduled && t.nextTickTime >= at {
		return
	}

	t.scheduled = true
	t.nextTickTime = at
	t.engine.Schedule(ScheduledEvent{
		Event:       TickEvent{Time: at},
		Time:        at,
		Handler:     t.handler,
		IsSecondary: t.secondary,
	})
}

// TickingComponent runs a Ticker every interval cycles for as long as it
// makes progress.
type TickingComponent struct {
	*TickScheduler

	name   string
	ticker Ticker
}

// NewTickingComponent creates a ticking component.
func NewTickingComponent(
	name string,
	engine EventScheduler,
	interval VTimeInCycle,
	ticker Ticker,
) *TickingComponent {
	tc := &TickingComponent{name: name, ticker: ticker}
	tc.TickScheduler = NewTickScheduler(tc, engine, interval)

	return tc
}

// NewSecondaryTickingComponent creates a ticking component whose ticks run
// after the primary events of the same cycle.
func NewSecondaryTickingComponent(
	name string,
	engine EventScheduler,
	interval VTimeInCycle,
	ticker Ticker,
) *TickingComponent {
	tc := NewTickingComponent(name, engine, interval, ticker)
	tc.secondary = true

	return tc
}

// Name returns the name of the component.
func (c *TickingComponent) Name() string {
	return c.name
}

// Handle runs the ticker and schedules the next tick if it made progress.
func (c *TickingComponent) Handle(_ any) error {
	madeProgress, err := c.ticker.Tick()
	if err != nil {
		return err
	}

	if madeProgress {
		c.TickLater()
	}

	return nil
}
