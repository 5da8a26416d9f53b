package controller

import (
	"sync/atomic"

	"github.com/sarchlab/actuation/calibration"
	"github.com/sarchlab/actuation/engagement"
	"github.com/sarchlab/actuation/hooking"
	"github.com/sarchlab/actuation/vehicle"
)

// Hook positions raised by a Controller during a tick.
var (
	HookPosTickStart  = &hooking.HookPos{Name: "TickStart"}
	HookPosEngagement = &hooking.HookPos{Name: "Engagement"}
	HookPosCommand    = &hooking.HookPos{Name: "Command"}
	HookPosTickEnd    = &hooking.HookPos{Name: "TickEnd"}
)

// EngagementChange is the item of a HookPosEngagement hook.
type EngagementChange struct {
	From        engagement.State
	To          engagement.State
	FallingEdge bool
}

// Controller owns the LoopState of one session and runs Tick on it.
type Controller struct {
	*hooking.HookableBase

	name   string
	params calibration.Params
	state  *LoopState

	lastEngagement engagement.State
	ticking        atomic.Bool
}

// Name returns the name of the controller.
func (c *Controller) Name() string {
	return c.name
}

// Params returns the calibration the controller runs on.
func (c *Controller) Params() calibration.Params {
	return c.params
}

// State returns a copy of the loop state.
func (c *Controller) State() LoopState {
	return c.state.Clone()
}

// Engagement returns the engagement state reported by the last tick.
func (c *Controller) Engagement() engagement.State {
	return c.lastEngagement
}

// Tick runs one control period. Tick is not reentrant; calling it while
// another call is in progress panics.
func (c *Controller) Tick(
	req vehicle.ControlRequest,
	snap vehicle.VehicleSnapshot,
) Result {
	if !c.ticking.CompareAndSwap(false, true) {
		panic("controller: tick called while another tick is running")
	}
	defer c.ticking.Store(false)

	c.invoke(HookPosTickStart, c.state.TickIndex+1, snap, req)

	res := Tick(c.params, req, snap, c.state)

	if res.State != c.lastEngagement {
		c.invoke(HookPosEngagement, res.Frame, EngagementChange{
			From:        c.lastEngagement,
			To:          res.State,
			FallingEdge: res.FallingEdge,
		}, nil)
		c.lastEngagement = res.State
	}

	for _, cmd := range res.Commands {
		c.invoke(HookPosCommand, res.Frame, cmd, nil)
	}

	c.invoke(HookPosTickEnd, res.Frame, res, nil)

	return res
}

func (c *Controller) invoke(pos *hooking.HookPos, frame uint64, item, detail any) {
	if c.NumHooks() == 0 {
		return
	}

	c.InvokeHook(hooking.HookCtx{
		Domain: c,
		Pos:    pos,
		Tick:   frame,
		Item:   item,
		Detail: detail,
	})
}
