//go:build !linux

package output

import "errors"

// GPIOOutput is not available on non-Linux platforms.
type GPIOOutput struct{}

// NewGPIOOutput returns an error on non-Linux platforms.
func NewGPIOOutput(chip string, offset int, activeLow bool) (*GPIOOutput, error) {
	return nil, errors.New("output: gpio not supported on this platform (requires Linux)")
}

// Set is not implemented on non-Linux platforms.
func (g *GPIOOutput) Set(level float64) error {
	return errors.New("output: gpio not supported")
}

// Close is not implemented on non-Linux platforms.
func (g *GPIOOutput) Close() error {
	return nil
}
