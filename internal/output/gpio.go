//go:build linux

package output

import (
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

// GPIOOutput drives a GPIO line using the Linux GPIO character device.
// Any non-zero level drives the line active; 0 drives it inactive. This suits
// stimulators that take a TTL trigger and set their own amplitude.
type GPIOOutput struct {
	mu     sync.Mutex
	chip   *gpiocdev.Chip
	line   *gpiocdev.Line
	closed bool
}

// NewGPIOOutput requests offset on chip as an output, initially inactive.
func NewGPIOOutput(chip string, offset int, activeLow bool) (*GPIOOutput, error) {
	c, err := gpiocdev.NewChip(chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	opts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(0)}
	if activeLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}
	line, err := c.RequestLine(offset, opts...)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("request line %d: %w", offset, err)
	}

	return &GPIOOutput{chip: c, line: line}, nil
}

// Set drives the line active for any non-zero level.
func (g *GPIOOutput) Set(level float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return ErrClosed
	}

	v := 0
	if level != 0 {
		v = 1
	}
	if err := g.line.SetValue(v); err != nil {
		return fmt.Errorf("set line value: %w", err)
	}
	return nil
}

// Close drives the line inactive, then reconfigures it as an input with
// pull-down (the Pi boot default) before releasing it, so nothing is left
// driving the stimulator input.
func (g *GPIOOutput) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true

	var errs []error
	if g.line != nil {
		if err := g.line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("zero line: %w", err))
		}
		if err := g.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure line: %w", err))
		}
		if err := g.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close line: %w", err))
		}
	}
	if g.chip != nil {
		if err := g.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
