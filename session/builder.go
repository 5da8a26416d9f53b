package session

import (
	"log/slog"

	"github.com/rs/xid"

	"github.com/sarchlab/actuation/controller"
	"github.com/sarchlab/actuation/hooking"
	"github.com/sarchlab/actuation/vehicle"
)

// Builder builds Sessions.
type Builder struct {
	reader     vehicle.SnapshotReader
	requests   vehicle.RequestSource
	ctrl       *controller.Controller
	serializer vehicle.Serializer
	sender     Sender
	ids        IDGenerator
	logger     *slog.Logger
}

// MakeBuilder creates a Builder with default logging and sequential frame
// IDs.
func MakeBuilder() Builder {
	return Builder{}
}

// WithSnapshotReader sets where snapshots come from.
func (b Builder) WithSnapshotReader(r vehicle.SnapshotReader) Builder {
	b.reader = r
	return b
}

// WithRequestSource sets where requests come from.
func (b Builder) WithRequestSource(r vehicle.RequestSource) Builder {
	b.requests = r
	return b
}

// WithController sets the controller to drive.
func (b Builder) WithController(c *controller.Controller) Builder {
	b.ctrl = c
	return b
}

// WithSerializer sets how commands become frames.
func (b Builder) WithSerializer(s vehicle.Serializer) Builder {
	b.serializer = s
	return b
}

// WithSender sets where frames go.
func (b Builder) WithSender(s Sender) Builder {
	b.sender = s
	return b
}

// WithIDGenerator sets how frame IDs are generated.
func (b Builder) WithIDGenerator(g IDGenerator) Builder {
	b.ids = g
	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(l *slog.Logger) Builder {
	b.logger = l
	return b
}

// Build creates a session. Every collaborator must be set.
func (b Builder) Build(name string) *Session {
	switch {
	case b.reader == nil:
		panic("session: snapshot reader is not set")
	case b.requests == nil:
		panic("session: request source is not set")
	case b.ctrl == nil:
		panic("session: controller is not set")
	case b.serializer == nil:
		panic("session: serializer is not set")
	case b.sender == nil:
		panic("session: sender is not set")
	}

	s := &Session{
		HookableBase: hooking.NewHookableBase(),
		id:           xid.New(),
		name:         name,
		reader:       b.reader,
		requests:     b.requests,
		ctrl:         b.ctrl,
		serializer:   b.serializer,
		sender:       b.sender,
		ids:          b.ids,
		logger:       b.logger,
	}

	if s.ids == nil {
		s.ids = &SequentialIDGenerator{}
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.logger = s.logger.With("component", "session")

	return s
}
