package actuator

import (
	"errors"
	"fmt"
	"time"

	"github.com/sweeney/stim-relay/internal/logger"
	"github.com/sweeney/stim-relay/internal/output"
)

// PulseTrain describes one stimulation: Count pulses at Level volts, each
// held for Width and followed by Pause at 0.
type PulseTrain struct {
	Level float64
	Width time.Duration
	Pause time.Duration
	Count int
}

// Validate checks Count >= 1, Width > 0 and Pause >= 0.
func (p PulseTrain) Validate() error {
	if p.Count < 1 {
		return fmt.Errorf("pulse count must be >= 1, got %d", p.Count)
	}
	if p.Width <= 0 {
		return fmt.Errorf("pulse width must be > 0, got %v", p.Width)
	}
	if p.Pause < 0 {
		return fmt.Errorf("pause width must be >= 0, got %v", p.Pause)
	}
	return nil
}

// Duration is the nominal length of the whole train. The pause after the
// last pulse is included.
func (p PulseTrain) Duration() time.Duration {
	return time.Duration(p.Count) * (p.Width + p.Pause)
}

// Controller runs a PulseTrain on an output. Timing uses wall-clock sleeps;
// scheduling jitter is accepted and drift between pulses is not corrected.
type Controller struct {
	out   output.Output
	train PulseTrain
	log   logger.Logger

	// Sleep and Now default to time.Sleep and time.Now.
	Sleep func(time.Duration)
	Now   func() time.Time
}

// NewController validates train and returns a controller for out.
func NewController(out output.Output, train PulseTrain, log logger.Logger) (*Controller, error) {
	if out == nil {
		return nil, errors.New("actuator: nil output")
	}
	if err := train.Validate(); err != nil {
		return nil, err
	}
	return &Controller{
		out:   out,
		train: train,
		log:   log,
		Sleep: time.Sleep,
		Now:   time.Now,
	}, nil
}

// Train returns the configured pulse train.
func (c *Controller) Train() PulseTrain {
	return c.train
}

// Run drives the full pulse train. Every pulse, including the last, is
// followed by its pause. On a device fault the output is driven to 0 on a
// best-effort basis and the error is returned wrapped in ErrDeviceFault.
func (c *Controller) Run() error {
	start := c.Now()
	c.log.Info("pulse train started",
		logger.Time("start", start),
		logger.Int("pulses", c.train.Count),
		logger.Float64("level", c.train.Level))

	for i := 0; i < c.train.Count; i++ {
		if err := c.out.Set(c.train.Level); err != nil {
			return c.fault(i, err)
		}
		on := c.Now()
		c.Sleep(c.train.Width)

		if err := c.out.Set(0); err != nil {
			return c.fault(i, err)
		}
		off := c.Now()
		c.log.Debug("pulse",
			logger.Int("n", i+1),
			logger.String("start", on.Format("15:04:05.000")),
			logger.String("end", off.Format("15:04:05.000")))
		c.Sleep(c.train.Pause)
	}

	c.log.Info("pulse train finished", logger.Duration("elapsed", c.Now().Sub(start)))
	return nil
}

func (c *Controller) fault(pulse int, err error) error {
	if zeroErr := c.out.Set(0); zeroErr != nil {
		c.log.Error("failed to zero output after fault", logger.Error(zeroErr))
	}
	return fmt.Errorf("%w: pulse %d: %w", ErrDeviceFault, pulse+1, err)
}

// PulseTrainActuator fires a pulse train on an output it owns for its
// whole lifetime.
type PulseTrainActuator struct {
	ctrl *Controller
	out  output.Output
}

// NewPulseTrainActuator takes ownership of out. Close releases it.
func NewPulseTrainActuator(out output.Output, train PulseTrain, log logger.Logger) (*PulseTrainActuator, error) {
	ctrl, err := NewController(out, train, log)
	if err != nil {
		return nil, err
	}
	return &PulseTrainActuator{ctrl: ctrl, out: out}, nil
}

// Controller exposes the underlying controller, e.g. to inject a clock.
func (a *PulseTrainActuator) Controller() *Controller {
	return a.ctrl
}

// Fire runs the pulse train to completion.
func (a *PulseTrainActuator) Fire() error {
	return a.ctrl.Run()
}

// Close drives the output to 0 and releases the device.
func (a *PulseTrainActuator) Close() error {
	return a.out.Close()
}
