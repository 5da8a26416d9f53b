package timing

// Handler processes events. Events are plain data; handlers type-switch on
// them.
type Handler interface {
	Handle(event any) error
}

// TimeTeller exposes the current cycle.
type TimeTeller interface {
	CurrentTime() VTimeInCycle
}

// EventScheduler schedules events on the timeline.
type EventScheduler interface {
	TimeTeller
	Schedule(event ScheduledEvent)
}

// ScheduledEvent wraps a payload with the metadata the engine needs.
type ScheduledEvent struct {
	// Event is the payload delivered to the handler.
	Event any

	// Time is the cycle at which the event is handled.
	Time VTimeInCycle

	Handler Handler

	// IsSecondary events run after every primary event of the same cycle.
	IsSecondary bool
}
