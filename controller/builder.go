package controller

import (
	"github.com/sarchlab/actuation/calibration"
	"github.com/sarchlab/actuation/engagement"
	"github.com/sarchlab/actuation/hooking"
)

// Builder builds Controllers.
type Builder struct {
	params calibration.Params
	state  *LoopState
}

// MakeBuilder creates a builder for the given calibration.
func MakeBuilder(p calibration.Params) Builder {
	return Builder{params: p}
}

// WithState makes the controller continue from an existing state instead of
// a fresh session.
func (b Builder) WithState(st LoopState) Builder {
	c := st.Clone()
	b.state = &c

	return b
}

// Build creates a controller with the given name.
func (b Builder) Build(name string) *Controller {
	st := b.state
	if st == nil {
		st = NewLoopState()
	}

	c := &Controller{
		HookableBase:   hooking.NewHookableBase(),
		name:           name,
		params:         b.params,
		state:          st,
		lastEngagement: engagement.Disabled,
	}

	return c
}
