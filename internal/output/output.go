// Package output drives the single analog output channel a stimulator is
// wired to. The real implementations use the Linux GPIO character device or
// an IIO DAC. The fake implementation allows testing without hardware.
package output

import "errors"

// ErrClosed is returned by Set after Close.
var ErrClosed = errors.New("output: closed")

// Output sets the level of one output channel.
type Output interface {
	// Set drives the channel to level, in volts. 0 means idle.
	Set(level float64) error

	// Close drives the channel back to 0 and releases the device.
	Close() error
}

// Default GPIO line (BCM numbering) and chip for the stimulator trigger.
const (
	DefaultChip = "gpiochip0"
	DefaultLine = 17
)
