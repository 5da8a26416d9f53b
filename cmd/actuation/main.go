// Command actuation runs the actuation control loop against recorded or
// built-in scenarios and inspects the telemetry it records.
package main

import (
	"github.com/tebeka/atexit"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}
