package scenario

import (
	"sync"

	"github.com/sarchlab/actuation/canpack"
	"github.com/sarchlab/actuation/vehicle"
)

// Player feeds a scenario to a session one tick at a time. It is the
// session's snapshot reader, request source and frame sink at once.
type Player struct {
	lock sync.Mutex

	scenario *Scenario
	steps    []Step
	pos      int
	current  Step

	packer   *canpack.Packer
	measured *int32
	sent     map[uint32]int
}

// NewPlayer creates a player. The packer decodes steering frames when the
// scenario makes the actuator follow the loop.
func NewPlayer(sc *Scenario, packer *canpack.Packer) *Player {
	return &Player{
		scenario: sc,
		steps:    sc.Expand(),
		packer:   packer,
		sent:     make(map[uint32]int),
	}
}

// ReadSnapshot returns the snapshot of the next tick.
func (p *Player) ReadSnapshot() (vehicle.VehicleSnapshot, bool) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.pos >= len(p.steps) {
		return vehicle.VehicleSnapshot{}, false
	}

	p.current = p.steps[p.pos]
	p.pos++

	snap := p.current.Snapshot
	if p.measured != nil {
		snap.SteerTorqueMeasured = *p.measured
	}

	return snap, !p.current.Stale
}

// NextRequest returns the request of the tick last read.
func (p *Player) NextRequest() vehicle.ControlRequest {
	p.lock.Lock()
	defer p.lock.Unlock()

	return p.current.Request
}

// Exhausted reports whether every step has been read.
func (p *Player) Exhausted() bool {
	p.lock.Lock()
	defer p.lock.Unlock()

	return p.pos >= len(p.steps)
}

// Send records a frame. Steering frames move the measured torque when the
// actuator follows the loop.
func (p *Player) Send(f vehicle.Frame) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	p.sent[f.Address]++

	if !p.scenario.EPSFollows || f.Address != p.packer.Layout().Steering.Address {
		return nil
	}

	readback, err := p.packer.DecodeSteering(f)
	if err != nil {
		return err
	}

	torque := readback.Torque
	p.measured = &torque

	return nil
}

// Sent returns how many frames were sent per address.
func (p *Player) Sent() map[uint32]int {
	p.lock.Lock()
	defer p.lock.Unlock()

	out := make(map[uint32]int, len(p.sent))
	for k, v := range p.sent {
		out[k] = v
	}

	return out
}

// Progress returns the number of steps read and the total.
func (p *Player) Progress() (done, total int) {
	p.lock.Lock()
	defer p.lock.Unlock()

	return p.pos, len(p.steps)
}
