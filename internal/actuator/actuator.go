// Package actuator runs stimulation sequences on an output device.
package actuator

import "errors"

// ErrDeviceFault wraps any failure while driving the output. There is no
// safe way to resume a partial pulse train, so callers should stop.
var ErrDeviceFault = errors.New("actuator: device fault")

// Actuator runs one complete stimulation per Fire call.
type Actuator interface {
	// Fire blocks until the whole sequence has completed.
	// Concurrent calls are not supported.
	Fire() error
}
