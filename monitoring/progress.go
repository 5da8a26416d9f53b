package monitoring

import (
	"sync"
	"time"

	"github.com/sarchlab/actuation/controller"
	"github.com/sarchlab/actuation/hooking"
	"github.com/sarchlab/actuation/session"
)

// A ProgressBar tracks how many ticks of a bounded run are done.
//
// A ProgressBar is also a hook. Attached to a controller and its session, it
// counts finished ticks and skipped ticks as finished.
type ProgressBar struct {
	sync.Mutex

	ID        string
	Name      string
	StartTime time.Time
	Total     uint64
	Finished  uint64
	Skipped   uint64
}

// ProgressBarStatus is a copy of a progress bar for reporting.
type ProgressBarStatus struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StartTime time.Time `json:"start_time"`
	Total     uint64    `json:"total"`
	Finished  uint64    `json:"finished"`
	Skipped   uint64    `json:"skipped"`
}

// IncrementFinished adds a certain amount to the finished ticks.
func (b *ProgressBar) IncrementFinished(amount uint64) {
	b.Lock()
	defer b.Unlock()

	b.Finished += amount
}

// IncrementSkipped adds a certain amount to the skipped ticks. Skipped ticks
// count as finished.
func (b *ProgressBar) IncrementSkipped(amount uint64) {
	b.Lock()
	defer b.Unlock()

	b.Skipped += amount
	b.Finished += amount
}

// Status returns a copy of the bar.
func (b *ProgressBar) Status() ProgressBarStatus {
	b.Lock()
	defer b.Unlock()

	return ProgressBarStatus{
		ID:        b.ID,
		Name:      b.Name,
		StartTime: b.StartTime,
		Total:     b.Total,
		Finished:  b.Finished,
		Skipped:   b.Skipped,
	}
}

// Func advances the bar on the end of a tick and on a skipped tick.
func (b *ProgressBar) Func(ctx hooking.HookCtx) {
	switch ctx.Pos {
	case controller.HookPosTickEnd:
		b.IncrementFinished(1)
	case session.HookPosTickSkipped:
		b.IncrementSkipped(1)
	}
}
