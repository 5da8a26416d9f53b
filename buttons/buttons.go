// Package buttons turns cancel and resume requests into cruise button
// presses, at most one per button sample.
package buttons

import "github.com/sarchlab/actuation/vehicle"

// Press is a button press to put on the bus.
type Press struct {
	Action vehicle.ButtonAction

	// Counter is the message counter the press must carry so that the
	// cruise module takes it as the next sample.
	Counter int
}

// Detect returns the press to send for the current button sample, or nil.
//
// A press is produced only when the sample identifier differs from
// *lastSeen; *lastSeen is updated whenever a press is produced. Cancel wins
// over resume.
func Detect(current int, lastSeen *int, cancel, resume bool) *Press {
	if current == *lastSeen {
		return nil
	}

	var action vehicle.ButtonAction
	switch {
	case cancel:
		action = vehicle.ButtonCancel
	case resume:
		action = vehicle.ButtonResume
	default:
		return nil
	}

	*lastSeen = current

	return &Press{Action: action, Counter: current + 1}
}
